// Package token models the stateless access token: a capability grant
// carrying the issuing app identity, a set of scopes, a transport kind, and
// an absolute expiration.
//
// Tokens are never stored server-side. A [Codec] turns a token into its
// transport form (field map → JSON → offload encryption → base64) and back;
// each direction costs exactly one crypto round trip. Authorization is a
// pure membership test over the decoded scope set: Admin, Public, or
// ownership of a specific user ID, with no precedence between them.
package token
