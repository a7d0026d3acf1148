package ironauth

import (
	"time"

	"github.com/ironauth/ironauth/identity"
	"github.com/ironauth/ironauth/token"
)

// TokenGrant is the result of a successful token issuance.
type TokenGrant struct {
	// AccessToken is the encrypted transport form, safe to hand to the
	// client.
	AccessToken string
	TokenType   token.Kind
	ExpiresAt   time.Time
}

// ClientInfo is returned when a client application is created. Secret is
// shown exactly once, at creation or rotation.
type ClientInfo struct {
	ID           string
	Name         string
	Secret       string
	Scopes       []token.Scope
	RequestLimit uint64
}

// RegisterRequest carries the fields of a self-service registration.
type RegisterRequest struct {
	Username string
	Email    string
	Password string
}

// RegisterResult reports the outcome of a registration.
type RegisterResult struct {
	UserID uint64
	// VerificationKey is the one-time email confirmation key. It is also
	// enqueued for mail delivery; it is surfaced here for transports that
	// deliver it out of band.
	VerificationKey string
}

// UserChanges lists optional profile updates. Nil fields are left
// untouched. Changing Username or Email also moves the corresponding
// uniqueness index entry; changing Email resets its confirmation.
type UserChanges struct {
	Username    *string
	Email       *string
	Password    *string
	DisplayName *string
	FirstName   *string
	LastName    *string
	Birthday    *time.Time
	Phone       *string
	ImageURL    *string
	Address     *identity.Address
}

// AuthenticatorEnrollment is the result of provisioning a new
// authenticator secret.
type AuthenticatorEnrollment struct {
	Secret string
	// URI is the otpauth:// provisioning URI for the secret.
	URI string
	// QR is the rendered form of URI when a QRRenderer is installed, nil
	// otherwise.
	QR []byte
}
