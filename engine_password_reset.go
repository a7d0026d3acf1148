package ironauth

import (
	"context"
	"errors"

	"github.com/ironauth/ironauth/identity"
)

// StartPasswordReset issues a one-time reset key for the account behind
// identifier (email or username) and enqueues the reset mail. The key lives
// for the configured reset TTL. Unknown
// identifiers succeed silently so the flow cannot be used to enumerate
// accounts.
func (e *Engine) StartPasswordReset(ctx context.Context, identifier string) error {
	if e == nil || e.store == nil {
		return ErrEngineNotReady
	}

	userID, err := e.lookupIdentifier(ctx, identifier)
	if err != nil {
		if errors.Is(err, identity.ErrUserNotFound) {
			e.auditFailure(ctx, "password_reset_started", AuditEvent{}, err)
			return nil
		}
		return err
	}
	rec, err := e.store.User(ctx, userID)
	if err != nil {
		return err
	}
	if rec.Email == nil {
		// No address to deliver to; still silent.
		return nil
	}

	key, err := e.store.IssuePasswordReset(ctx, userID, e.config.Verification.ResetTTL)
	if err != nil {
		return err
	}
	e.enqueueMail(ctx, MailMessage{
		To:       *rec.Email,
		Username: rec.Username,
		Kind:     MailPasswordReset,
		Key:      key,
	})

	e.auditSuccess(ctx, "password_reset_started", AuditEvent{UserID: formatUserID(userID)})
	return nil
}

// ConfirmPasswordReset redeems a reset key and replaces the account's
// password. The key redeems at most once.
func (e *Engine) ConfirmPasswordReset(ctx context.Context, key, newPassword string) error {
	if e == nil || e.store == nil {
		return ErrEngineNotReady
	}
	if err := e.checkPasswordPolicy(newPassword); err != nil {
		return err
	}

	userID, err := e.store.RedeemPasswordReset(ctx, key)
	if err != nil {
		e.auditFailure(ctx, "password_reset_confirmed", AuditEvent{}, err)
		return err
	}

	hash, err := e.hasher.Hash(newPassword)
	if err != nil {
		return err
	}
	if err := e.store.SetPassword(ctx, userID, hash); err != nil {
		return err
	}

	e.auditSuccess(ctx, "password_reset_confirmed", AuditEvent{UserID: formatUserID(userID)})
	return nil
}
