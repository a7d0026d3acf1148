package ironauth

import (
	"context"
	"fmt"

	"github.com/ironauth/ironauth/token"
)

// ConfirmEmail redeems a verification key and marks the owning user's email
// address as confirmed. The key redeems at most once; a second attempt
// reports identity.ErrInvalidOrExpiredKey.
func (e *Engine) ConfirmEmail(ctx context.Context, key string) error {
	if e == nil || e.store == nil {
		return ErrEngineNotReady
	}

	userID, err := e.store.RedeemEmailVerification(ctx, key)
	if err != nil {
		e.auditFailure(ctx, "email_confirmed", AuditEvent{}, err)
		return err
	}
	if err := e.store.ConfirmEmail(ctx, userID); err != nil {
		return err
	}

	e.auditSuccess(ctx, "email_confirmed", AuditEvent{UserID: formatUserID(userID)})
	return nil
}

// ResendEmailConfirmation issues a fresh verification key with the extended
// resend lifetime and enqueues the mail. The presented token must be scoped
// to a user; prior unexpired keys stay valid.
func (e *Engine) ResendEmailConfirmation(ctx context.Context, tok *token.AccessToken) error {
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

	rec, err := e.store.User(ctx, userID)
	if err != nil {
		return err
	}
	if rec.Email == nil {
		return fmt.Errorf("%w: account has no email address", ErrInvalidRequest)
	}

	key, err := e.store.IssueEmailVerification(ctx, userID, e.config.Verification.EmailResendTTL)
	if err != nil {
		return err
	}
	e.enqueueMail(ctx, MailMessage{
		To:       *rec.Email,
		Username: rec.Username,
		Kind:     MailEmailVerification,
		Key:      key,
	})

	e.auditSuccess(ctx, "email_confirmation_resent", AuditEvent{UserID: formatUserID(userID)})
	return nil
}
