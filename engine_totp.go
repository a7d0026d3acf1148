package ironauth

import (
	"context"
	"fmt"
	"net/url"

	"github.com/ironauth/ironauth/internal"
	"github.com/ironauth/ironauth/token"
)

// CodeVerifier checks a time-based code against a shared secret. Code
// generation and validation live outside this module; the engine only
// stores secrets and delegates.
type CodeVerifier interface {
	Verify(secret, code string) (bool, error)
}

// QRRenderer renders a provisioning URI into a scannable image. Optional;
// without one, AuthenticatorSetup returns the URI only.
type QRRenderer interface {
	Render(uri string) ([]byte, error)
}

// VerifyAuthenticatorCode checks a code against the token owner's stored
// authenticator secret via the installed CodeVerifier.
func (e *Engine) VerifyAuthenticatorCode(ctx context.Context, tok *token.AccessToken, code string) error {
	if e == nil || e.store == nil {
		return ErrEngineNotReady
	}
	if tok == nil {
		return ErrPermissionDenied
	}
	userID, ok := tok.UserID()
	if !ok {
		return ErrPermissionDenied
	}
	if e.codes == nil {
		return ErrAuthenticatorNotConfigured
	}

	rec, err := e.store.User(ctx, userID)
	if err != nil {
		return err
	}
	if rec.AuthenticatorSecret == nil {
		return ErrAuthenticatorNotConfigured
	}

	verified, err := e.codes.Verify(*rec.AuthenticatorSecret, code)
	if err != nil {
		return fmt.Errorf("verify code: %w", err)
	}
	if !verified {
		e.auditFailure(ctx, "authenticator_verified", AuditEvent{UserID: formatUserID(userID)}, ErrCodeInvalid)
		return ErrCodeInvalid
	}

	e.auditSuccess(ctx, "authenticator_verified", AuditEvent{UserID: formatUserID(userID)})
	return nil
}

// AuthenticatorSetup rotates the token owner's authenticator secret and
// returns the provisioning material. Rotation invalidates codes derived
// from the previous secret.
func (e *Engine) AuthenticatorSetup(ctx context.Context, tok *token.AccessToken, issuer string) (*AuthenticatorEnrollment, error) {
	if e == nil || e.store == nil {
		return nil, ErrEngineNotReady
	}
	if tok == nil {
		return nil, ErrPermissionDenied
	}
	userID, ok := tok.UserID()
	if !ok {
		return nil, ErrPermissionDenied
	}

	rec, err := e.store.User(ctx, userID)
	if err != nil {
		return nil, err
	}

	secret, err := internal.NewTOTPSecret()
	if err != nil {
		return nil, fmt.Errorf("generate authenticator secret: %w", err)
	}
	if err := e.store.RotateAuthenticatorSecret(ctx, userID, secret); err != nil {
		return nil, err
	}

	uri := provisioningURI(issuer, rec.Username, secret)
	enrollment := &AuthenticatorEnrollment{Secret: secret, URI: uri}
	if e.qr != nil {
		img, err := e.qr.Render(uri)
		if err != nil {
			return nil, fmt.Errorf("render provisioning code: %w", err)
		}
		enrollment.QR = img
	}

	e.auditSuccess(ctx, "authenticator_enrolled", AuditEvent{UserID: formatUserID(userID)})
	return enrollment, nil
}

func provisioningURI(issuer, account, secret string) string {
	q := url.Values{}
	q.Set("secret", secret)
	if issuer != "" {
		q.Set("issuer", issuer)
	}
	label := url.PathEscape(account)
	if issuer != "" {
		label = url.PathEscape(issuer) + ":" + label
	}
	return "otpauth://totp/" + label + "?" + q.Encode()
}
