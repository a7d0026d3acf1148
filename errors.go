package ironauth

import "errors"

var (
	// ErrEngineNotReady is returned when an Engine method is invoked on a
	// nil or unbuilt engine.
	ErrEngineNotReady = errors.New("engine not initialized")

	// ErrUnauthorized is the single failure mode of Authorize. Malformed,
	// tampered, and expired tokens all collapse into it so callers cannot
	// distinguish why a credential was rejected.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrInvalidCredentials is returned on login when the identifier or
	// password does not match.
	ErrInvalidCredentials = errors.New("invalid credentials")

	// ErrInvalidClientSecret is returned when a client credential check
	// fails. Unknown client IDs report the same error.
	ErrInvalidClientSecret = errors.New("invalid client credentials")

	// ErrAccountDisabled is returned on login for disabled accounts.
	ErrAccountDisabled = errors.New("account disabled")

	// ErrAccountBanned is returned on login for banned accounts.
	ErrAccountBanned = errors.New("account banned")

	// ErrPermissionDenied is returned when the presented token's scopes do
	// not cover the requested operation.
	ErrPermissionDenied = errors.New("permission denied")

	// ErrNoScopes is returned when a client would be created with an empty
	// scope list.
	ErrNoScopes = errors.New("client must carry at least one scope")

	// ErrInvalidRequest is returned when required request fields are
	// missing or malformed.
	ErrInvalidRequest = errors.New("invalid request")

	// ErrPasswordPolicy is returned when a new password violates the
	// configured minimum length.
	ErrPasswordPolicy = errors.New("password policy violation")

	// ErrCodeInvalid is returned when an authenticator code does not
	// verify.
	ErrCodeInvalid = errors.New("invalid authenticator code")

	// ErrAuthenticatorNotConfigured is returned when code verification is
	// attempted for a user without a stored authenticator secret, or when
	// no verifier capability was installed.
	ErrAuthenticatorNotConfigured = errors.New("authenticator not configured")
)
