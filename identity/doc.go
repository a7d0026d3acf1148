// Package identity is the keyed persistence layer for user and API-client
// records and for short-lived one-time keys (email verification, password
// reset).
//
// # Key layout
//
// Per-kind counters allocate numeric IDs:
//
//	next_user_id, next_client_id
//
// Primary records are hashes keyed by ID, with one reverse index per kind
// mapping a normalized unique attribute to the ID:
//
//	users:<id>        userkeys  (lowercased username → id)
//	                  emailkeys (lowercased email → id)
//	users:<id>:addr   auxiliary postal address sub-record
//	clients:<id>      clientkeys (client name → id)
//
// One-time keys live in their own TTL-scoped namespaces:
//
//	verify_emails:<key>, reset_passwords:<key>
//
// # Atomicity
//
// Record creation (uniqueness check + ID allocation + index insert +
// primary write) runs as a single Lua script, so no observer ever sees an
// index entry without its record or vice versa. ID allocation rides Redis
// INCR; deletes and index renames ride transactional pipelines; one-time
// redemption is a single GETDEL. The store never retries — storage faults
// surface as [ErrStoreUnavailable] and retry policy belongs to the caller.
package identity
