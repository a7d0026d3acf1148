// Package ironauth provides an authentication engine built around encrypted
// opaque access tokens, a crypto offload connection pool, and a Redis-backed
// identity store.
//
// The package is designed for concurrent server workloads: Engine methods are
// safe to call from multiple goroutines after initialization through
// [Builder.Build].
//
// # Architecture boundaries
//
// ironauth is the public surface. It exposes [Engine], [Builder], [Config],
// the audit and mail sink interfaces, and value types (TokenGrant, ClientInfo,
// RegisterResult). Token semantics live in the token subpackage, storage in
// identity, wire plumbing in cryptopool.
//
// # What this package must NOT do
//
//   - Expose Redis clients, key layouts, or wire framing in its public API.
//   - Perform delivery: mail and audit consumers are injected sinks; the
//     engine only enqueues.
//   - Validate time-based codes itself; that capability is injected via
//     [CodeVerifier].
//
// # Token contract
//
// Tokens are opaque encrypted blobs produced by an external crypto offload
// service. Authorize performs exactly one decrypt round trip and collapses
// every failure into [ErrUnauthorized].
package ironauth
