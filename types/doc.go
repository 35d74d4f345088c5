// Package types contains the shared types and interfaces of the failover
// library.
//
// It exists as a separate package so that internal packages can depend on
// these definitions without importing the root failover package, avoiding
// import cycles. The root package re-exports the public subset via type
// aliases.
package types
