// Package internal contains helper utilities that are intentionally private
// to ironauth: secure random generation for one-time keys, client secrets,
// client ID suffixes, and authenticator secrets.
//
// # What this package must NOT do
//
//   - Export types that appear in the public ironauth API.
//   - Be imported by any package outside the ironauth module.
package internal
