// Package cryptopool implements the pooled client for the symmetric
// encryption offload service.
//
// The offload peer speaks a fixed-framing binary protocol: a request is a
// 1-byte opcode, a 4-byte big-endian payload length, and the payload; a
// response is a 1-byte status, a 4-byte big-endian length, and the
// transformed payload. Status 0 means success; every other status is a
// request failure and the payload is ignored.
//
// A [Pool] holds a fixed number of long-lived TCP connections per endpoint.
// Idle connections are handed out through a buffered channel, so acquisition
// blocks for at most the configured acquire timeout and exhaustion surfaces
// as [ErrPoolExhausted] instead of an unbounded wait. A connection that
// faults mid-request is closed and replaced with a fresh dial; the failed
// request itself is not retried.
package cryptopool
