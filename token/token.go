package token

import (
	"time"
)

// Kind is the transport style of a token. Only Bearer is issued
// operationally; the field exists so the wire format can grow without a
// version bump.
type Kind string

// Bearer is the only token kind currently issued.
const Bearer Kind = "Bearer"

// AccessToken is a capability grant. It is constructed at issuance, encoded
// for transport immediately, and never mutated; decoded copies are rebuilt
// per request and discarded.
type AccessToken struct {
	// AppID identifies the issuing or owning principal (a client ID).
	AppID string

	// Scopes is the ordered capability set granted to the bearer.
	Scopes []Scope

	// Kind is the transport style, always Bearer in practice.
	Kind Kind

	// ExpiresAt is the absolute expiration instant.
	ExpiresAt time.Time
}

// New builds a token expiring validity from now. It has no failure mode and
// touches no shared state.
func New(appID string, scopes []Scope, kind Kind, validity time.Duration) *AccessToken {
	return &AccessToken{
		AppID:     appID,
		Scopes:    append([]Scope(nil), scopes...),
		Kind:      kind,
		ExpiresAt: time.Now().Add(validity),
	}
}

// HasExpired reports whether the token's expiration is at or before now.
// Validity is always evaluated against the clock, never cached.
func (t *AccessToken) HasExpired() bool {
	return !t.ExpiresAt.After(time.Now())
}

// IsAdmin reports whether the token carries the Admin scope.
func (t *AccessToken) IsAdmin() bool {
	for _, s := range t.Scopes {
		if s.IsAdmin() {
			return true
		}
	}
	return false
}

// IsPublic reports whether the token carries the Public scope.
func (t *AccessToken) IsPublic() bool {
	for _, s := range t.Scopes {
		if s.IsPublic() {
			return true
		}
	}
	return false
}

// IsUser reports whether the token carries the User scope for userID.
func (t *AccessToken) IsUser(userID uint64) bool {
	for _, s := range t.Scopes {
		if id, ok := s.UserID(); ok && id == userID {
			return true
		}
	}
	return false
}

// UserID returns the first User scope's ID, if the token has one.
func (t *AccessToken) UserID() (uint64, bool) {
	for _, s := range t.Scopes {
		if id, ok := s.UserID(); ok {
			return id, true
		}
	}
	return 0, false
}
