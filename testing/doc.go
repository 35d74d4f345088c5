// Package testing provides test utilities for the failover library.
//
// Its centerpiece is an in-memory coordination store implementing the
// clientv3 KV, Lease and Watcher interfaces that production code consumes
// through failover.Store. It follows Go's convention of providing testing
// utilities in a dedicated package (similar to net/http/httptest).
//
// Benefits over running a real etcd in tests:
//   - Zero external dependencies (no Docker, no etcd binary)
//   - Instant startup, perfect for parallel test execution
//   - Deterministic revisions for asserting optimistic-concurrency behavior
//
// Fidelity notes: transactions evaluate version/mod-revision/create/value
// compares and execute put/get/delete branches; watches support prefix
// ranges and start revisions. Lease TTL expiry is NOT simulated: keys
// attached to a lease stay until deleted explicitly, and Revoke only
// terminates keepalive streams. Tests exercise lease-driven cleanup by
// deleting keys directly.
//
// Example usage:
//
//	import (
//	    "testing"
//	    failovertest "github.com/streamward/failover/testing"
//	)
//
//	func TestMyComponent(t *testing.T) {
//	    store := failovertest.NewStore(t)
//	    // Use store anywhere a failover.Store is accepted
//	}
package testing
