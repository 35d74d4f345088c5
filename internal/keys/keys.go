// Package keys builds the versioned etcd key paths used for coordination.
//
// All keys live under a configurable namespace and a schema version segment
// so that incompatible layout changes can coexist during migrations:
//
//	<ns>/v1/cgroups/<group>/leader-log        persisted leader state
//	<ns>/v1/cgroups/<group>/instances/<id>    instance lock keys
//	<ns>/v1/producers/<id>/locks/<token>      producer liveness keys
//	<ns>/v1/barriers/<token>                  rendezvous barriers
//	<ns>/v1/markers/<token>                   transient failover markers
package keys

import (
	"fmt"
	"strings"

	"github.com/streamward/failover/types"
)

// StateLog returns the key of the group's persisted leader state log entry.
func StateLog(ns string, group types.ConsumerGroupID) string {
	return fmt.Sprintf("%s/v1/cgroups/%s/leader-log", ns, group)
}

// InstanceLockPrefix returns the prefix under which the group's instance
// lock keys live.
func InstanceLockPrefix(ns string, group types.ConsumerGroupID) string {
	return fmt.Sprintf("%s/v1/cgroups/%s/instances/", ns, group)
}

// InstanceLock returns the lock key for one group instance.
func InstanceLock(ns string, group types.ConsumerGroupID, instance string) string {
	return InstanceLockPrefix(ns, group) + instance
}

// ProducersPrefix returns the prefix under which all producer liveness keys
// live.
func ProducersPrefix(ns string) string {
	return fmt.Sprintf("%s/v1/producers/", ns)
}

// ProducerLivenessPrefix returns the prefix of one producer's liveness keys.
// A producer is considered live while at least one key exists under it.
func ProducerLivenessPrefix(ns string, producer types.ProducerID) string {
	return fmt.Sprintf("%s%s/locks/", ProducersPrefix(ns), producer)
}

// ProducerLivenessKey returns a single liveness key for a producer instance,
// distinguished by an opaque token.
func ProducerLivenessKey(ns string, producer types.ProducerID, token string) string {
	return ProducerLivenessPrefix(ns, producer) + token
}

// Barrier returns the rendezvous key for a freshly minted barrier token.
func Barrier(ns, token string) string {
	return fmt.Sprintf("%s/v1/barriers/%s", ns, token)
}

// Marker returns the key of a transient marker staged when a producer loss
// is detected. Marker keys carry a short lease and expire on their own.
func Marker(ns, token string) string {
	return fmt.Sprintf("%s/v1/markers/%s", ns, token)
}

// ProducerFromLivenessKey extracts the producer ID from a liveness key.
// Returns false when the key does not belong to the namespace's producer
// subtree.
func ProducerFromLivenessKey(ns, key string) (types.ProducerID, bool) {
	rest, ok := strings.CutPrefix(key, ProducersPrefix(ns))
	if !ok {
		return "", false
	}

	id, _, ok := strings.Cut(rest, "/")
	if !ok || id == "" {
		return "", false
	}

	return types.ProducerID(id), true
}
