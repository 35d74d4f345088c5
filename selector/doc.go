// Package selector provides producer-selection policies for failover.
//
// A policy decides which live producer replaces a dead one when the leader
// reaches the selection phase of the failover cycle. The leader filters out
// the lost producer before invoking the policy, so every policy here
// automatically honors the "never re-select the lost producer" rule.
//
// Available policies:
//   - Random: uniform random pick; spreads replacement load statistically.
//   - RoundRobin: rotates through candidates; predictable and fair over
//     repeated failovers.
//   - Rendezvous: highest-random-weight hashing of (group, producer);
//     deterministic and stable, so repeated selections for the same group
//     converge on the same producer while it stays alive.
package selector
