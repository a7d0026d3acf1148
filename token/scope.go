package token

import (
	"encoding/json"
	"fmt"
	"strconv"
)

type scopeKind uint8

const (
	scopeAdmin scopeKind = iota
	scopePublic
	scopeUser
)

// Scope is a single capability tag on a token: Admin, Public, or ownership
// of one user ID. Scopes are comparable; a token holds an ordered set of
// them.
type Scope struct {
	kind   scopeKind
	userID uint64
}

// Admin returns the administrative scope.
func Admin() Scope {
	return Scope{kind: scopeAdmin}
}

// Public returns the unauthenticated-access scope.
func Public() Scope {
	return Scope{kind: scopePublic}
}

// User returns the ownership scope for userID.
func User(userID uint64) Scope {
	return Scope{kind: scopeUser, userID: userID}
}

// IsAdmin reports whether s is the Admin scope.
func (s Scope) IsAdmin() bool { return s.kind == scopeAdmin }

// IsPublic reports whether s is the Public scope.
func (s Scope) IsPublic() bool { return s.kind == scopePublic }

// UserID returns the owned user ID and true when s is a User scope.
func (s Scope) UserID() (uint64, bool) {
	if s.kind != scopeUser {
		return 0, false
	}
	return s.userID, true
}

func (s Scope) String() string {
	switch s.kind {
	case scopeAdmin:
		return "admin"
	case scopePublic:
		return "public"
	default:
		return "user:" + strconv.FormatUint(s.userID, 10)
	}
}

// MarshalJSON encodes Admin and Public as bare strings and User scopes as
// a one-key object: "admin", "public", {"user": 42}.
func (s Scope) MarshalJSON() ([]byte, error) {
	switch s.kind {
	case scopeAdmin:
		return []byte(`"admin"`), nil
	case scopePublic:
		return []byte(`"public"`), nil
	case scopeUser:
		return json.Marshal(map[string]uint64{"user": s.userID})
	default:
		return nil, fmt.Errorf("unknown scope kind %d", s.kind)
	}
}

// UnmarshalJSON is the inverse of MarshalJSON. Unrecognized forms are an
// error: scopes only ever come from tokens this system minted.
func (s *Scope) UnmarshalJSON(data []byte) error {
	var tag string
	if err := json.Unmarshal(data, &tag); err == nil {
		switch tag {
		case "admin":
			*s = Admin()
			return nil
		case "public":
			*s = Public()
			return nil
		default:
			return fmt.Errorf("unknown scope %q", tag)
		}
	}

	var object map[string]uint64
	if err := json.Unmarshal(data, &object); err != nil {
		return fmt.Errorf("malformed scope %s", data)
	}
	userID, ok := object["user"]
	if !ok || len(object) != 1 {
		return fmt.Errorf("malformed scope object %s", data)
	}
	*s = User(userID)
	return nil
}
