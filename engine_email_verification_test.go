package ironauth

import (
	"context"
	"errors"
	"testing"

	"github.com/ironauth/ironauth/identity"
)

func TestConfirmEmail(t *testing.T) {
	h := newTestEngine(t)
	ctx := context.Background()

	res := h.register(t, "alice", "alice@example.com", "long-enough-pass")

	if err := h.engine.ConfirmEmail(ctx, res.VerificationKey); err != nil {
		t.Fatalf("confirm: %v", err)
	}
	rec, err := h.engine.User(ctx, adminToken(), res.UserID)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if !rec.EmailConfirmed {
		t.Fatal("email not marked confirmed")
	}

	// The key is gone after the first redemption.
	if err := h.engine.ConfirmEmail(ctx, res.VerificationKey); !errors.Is(err, identity.ErrInvalidOrExpiredKey) {
		t.Fatalf("second confirm: got %v", err)
	}
}

func TestConfirmEmailUnknownKey(t *testing.T) {
	h := newTestEngine(t)

	if err := h.engine.ConfirmEmail(context.Background(), "bogus"); !errors.Is(err, identity.ErrInvalidOrExpiredKey) {
		t.Fatalf("unknown key: got %v", err)
	}
}

func TestResendEmailConfirmation(t *testing.T) {
	h := newTestEngine(t)
	ctx := context.Background()

	res := h.register(t, "bob", "bob@example.com", "long-enough-pass")
	h.nextMail(t) // registration mail

	if err := h.engine.ResendEmailConfirmation(ctx, userToken(res.UserID)); err != nil {
		t.Fatalf("resend: %v", err)
	}

	msg := h.nextMail(t)
	if msg.Kind != MailEmailVerification || msg.To != "bob@example.com" {
		t.Fatalf("unexpected mail: %+v", msg)
	}
	if msg.Key == res.VerificationKey {
		t.Fatal("resend must mint a fresh key")
	}

	// Resent keys carry the extended lifetime.
	if ttl := h.redis.TTL("verify_emails:" + msg.Key); ttl != h.engine.config.Verification.EmailResendTTL {
		t.Fatalf("resend ttl = %v, want %v", ttl, h.engine.config.Verification.EmailResendTTL)
	}

	// The earlier key is still redeemable: reissue does not invalidate it.
	if err := h.engine.ConfirmEmail(ctx, res.VerificationKey); err != nil {
		t.Fatalf("original key after resend: %v", err)
	}
	if err := h.engine.ConfirmEmail(ctx, msg.Key); err != nil {
		t.Fatalf("resent key: %v", err)
	}
}

func TestResendRequiresUserScope(t *testing.T) {
	h := newTestEngine(t)
	ctx := context.Background()

	if err := h.engine.ResendEmailConfirmation(ctx, publicToken()); !errors.Is(err, ErrPermissionDenied) {
		t.Fatalf("public token: got %v", err)
	}
	if err := h.engine.ResendEmailConfirmation(ctx, nil); !errors.Is(err, ErrPermissionDenied) {
		t.Fatalf("nil token: got %v", err)
	}
}
