package ironauth

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/ironauth/ironauth/identity"
)

func TestRegisterAndLogin(t *testing.T) {
	h := newTestEngine(t)
	ctx := context.Background()

	res := h.register(t, "alice", "alice@example.com", "correct-horse-battery")
	if res.UserID != 0 {
		t.Fatalf("first user should get ID 0, got %d", res.UserID)
	}
	if res.VerificationKey == "" {
		t.Fatal("no verification key issued")
	}

	msg := h.nextMail(t)
	if msg.Kind != MailEmailVerification || msg.To != "alice@example.com" || msg.Key != res.VerificationKey {
		t.Fatalf("unexpected mail: %+v", msg)
	}

	// Login by username and by email.
	for _, identifier := range []string{"alice", "alice@example.com"} {
		grant, err := h.engine.Login(ctx, publicToken(), identifier, "correct-horse-battery", false)
		if err != nil {
			t.Fatalf("login %q: %v", identifier, err)
		}
		tok, err := h.engine.Authorize(ctx, grant.AccessToken)
		if err != nil {
			t.Fatalf("authorize grant: %v", err)
		}
		if !tok.IsUser(res.UserID) {
			t.Fatalf("login grant not scoped to user %d", res.UserID)
		}
		if tok.IsAdmin() {
			t.Fatal("login grant must not carry admin scope")
		}
	}
}

func TestRegisterScopeAndPolicy(t *testing.T) {
	h := newTestEngine(t)
	ctx := context.Background()

	req := RegisterRequest{Username: "bob", Email: "bob@example.com", Password: "long-enough-pass"}

	if _, err := h.engine.Register(ctx, userToken(1), req); !errors.Is(err, ErrPermissionDenied) {
		t.Fatalf("user-scoped register: got %v", err)
	}
	if _, err := h.engine.Register(ctx, nil, req); !errors.Is(err, ErrPermissionDenied) {
		t.Fatalf("nil token register: got %v", err)
	}

	short := req
	short.Password = "short"
	if _, err := h.engine.Register(ctx, publicToken(), short); !errors.Is(err, ErrPasswordPolicy) {
		t.Fatalf("short password: got %v", err)
	}

	blank := req
	blank.Username = "  "
	if _, err := h.engine.Register(ctx, publicToken(), blank); !errors.Is(err, ErrInvalidRequest) {
		t.Fatalf("blank username: got %v", err)
	}

	// Admin tokens can register too.
	if _, err := h.engine.Register(ctx, adminToken(), req); err != nil {
		t.Fatalf("admin register: %v", err)
	}
}

func TestRegisterCaseInsensitiveClash(t *testing.T) {
	h := newTestEngine(t)
	ctx := context.Background()

	h.register(t, "Carol", "carol@example.com", "long-enough-pass")

	_, err := h.engine.Register(ctx, publicToken(), RegisterRequest{
		Username: "CAROL",
		Email:    "other@example.com",
		Password: "long-enough-pass",
	})
	if !errors.Is(err, identity.ErrUsernameTaken) {
		t.Fatalf("expected ErrUsernameTaken, got %v", err)
	}
}

func TestLoginFailures(t *testing.T) {
	h := newTestEngine(t)
	ctx := context.Background()

	h.register(t, "dave", "dave@example.com", "long-enough-pass")

	if _, err := h.engine.Login(ctx, publicToken(), "dave", "wrong-password!!", false); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("wrong password: got %v", err)
	}
	if _, err := h.engine.Login(ctx, publicToken(), "nobody", "long-enough-pass", false); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("unknown identifier: got %v", err)
	}
	if _, err := h.engine.Login(ctx, userToken(9), "dave", "long-enough-pass", false); !errors.Is(err, ErrPermissionDenied) {
		t.Fatalf("user-scoped login: got %v", err)
	}
}

func TestLoginGrantAppIDAndValidity(t *testing.T) {
	h := newTestEngine(t)
	ctx := context.Background()

	h.register(t, "judy", "judy@example.com", "long-enough-pass")

	grant, err := h.engine.Login(ctx, publicToken(), "judy", "long-enough-pass", false)
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	tok, err := h.engine.Authorize(ctx, grant.AccessToken)
	if err != nil {
		t.Fatalf("authorize: %v", err)
	}
	// The session token carries the calling client's app ID, not the
	// username.
	if tok.AppID != "gateway" {
		t.Fatalf("session app ID = %q, want %q", tok.AppID, "gateway")
	}
	if remaining := time.Until(grant.ExpiresAt); remaining > time.Hour || remaining < time.Hour-time.Minute {
		t.Fatalf("session validity = %v, want ~1h", remaining)
	}

	remembered, err := h.engine.Login(ctx, publicToken(), "judy", "long-enough-pass", true)
	if err != nil {
		t.Fatalf("remembered login: %v", err)
	}
	if remaining := time.Until(remembered.ExpiresAt); remaining < 13*24*time.Hour {
		t.Fatalf("remembered validity = %v, want ~2 weeks", remaining)
	}
}

func TestListUsers(t *testing.T) {
	h := newTestEngine(t)
	ctx := context.Background()

	a := h.register(t, "kate", "kate@example.com", "long-enough-pass")
	b := h.register(t, "liam", "liam@example.com", "long-enough-pass")

	if _, err := h.engine.ListUsers(ctx, publicToken()); !errors.Is(err, ErrPermissionDenied) {
		t.Fatalf("public list: got %v", err)
	}
	if _, err := h.engine.ListUsers(ctx, userToken(a.UserID)); !errors.Is(err, ErrPermissionDenied) {
		t.Fatalf("user list: got %v", err)
	}

	recs, err := h.engine.ListUsers(ctx, adminToken())
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(recs) != 2 {
		t.Fatalf("listed %d users, want 2", len(recs))
	}
	if recs[0].ID != a.UserID || recs[0].Username != "kate" {
		t.Fatalf("first record wrong: %+v", recs[0])
	}
	if recs[1].ID != b.UserID || recs[1].Username != "liam" {
		t.Fatalf("second record wrong: %+v", recs[1])
	}

	if err := h.engine.DeleteUser(ctx, adminToken(), a.UserID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	recs, err = h.engine.ListUsers(ctx, adminToken())
	if err != nil {
		t.Fatalf("list after delete: %v", err)
	}
	if len(recs) != 1 || recs[0].Username != "liam" {
		t.Fatalf("list after delete wrong: %+v", recs)
	}
}

func TestLoginBannedAndDisabled(t *testing.T) {
	h := newTestEngine(t)
	ctx := context.Background()

	res := h.register(t, "erin", "erin@example.com", "long-enough-pass")

	if err := h.engine.store.Ban(ctx, res.UserID, time.Now().Add(time.Hour)); err != nil {
		t.Fatalf("ban: %v", err)
	}
	if _, err := h.engine.Login(ctx, publicToken(), "erin", "long-enough-pass", false); !errors.Is(err, ErrAccountBanned) {
		t.Fatalf("banned login: got %v", err)
	}

	// Banning also disabled the account, so after the ban lifts the login
	// still fails until re-enabled.
	if err := h.engine.store.Unban(ctx, res.UserID); err != nil {
		t.Fatalf("unban: %v", err)
	}
	if _, err := h.engine.Login(ctx, publicToken(), "erin", "long-enough-pass", false); !errors.Is(err, ErrAccountDisabled) {
		t.Fatalf("disabled login: got %v", err)
	}
	if err := h.engine.store.SetEnabled(ctx, res.UserID, true); err != nil {
		t.Fatalf("enable: %v", err)
	}
	if _, err := h.engine.Login(ctx, publicToken(), "erin", "long-enough-pass", false); err != nil {
		t.Fatalf("login after unban: %v", err)
	}
}

func TestBanExpiresOnItsOwn(t *testing.T) {
	h := newTestEngine(t)
	ctx := context.Background()

	res := h.register(t, "ivan", "ivan@example.com", "long-enough-pass")

	if err := h.engine.store.Ban(ctx, res.UserID, time.Now().Add(-time.Minute)); err != nil {
		t.Fatalf("ban: %v", err)
	}
	rec, err := h.engine.store.User(ctx, res.UserID)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if rec.Banned(time.Now()) {
		t.Fatal("ban in the past still in force")
	}
	if rec.BannedUntil.IsZero() {
		t.Fatal("ban timestamp not recorded")
	}

	// The lapsed ban no longer blocks the login, only the disable does.
	if _, err := h.engine.Login(ctx, publicToken(), "ivan", "long-enough-pass", false); !errors.Is(err, ErrAccountDisabled) {
		t.Fatalf("expired ban login: got %v", err)
	}
	if err := h.engine.store.SetEnabled(ctx, res.UserID, true); err != nil {
		t.Fatalf("enable: %v", err)
	}
	if _, err := h.engine.Login(ctx, publicToken(), "ivan", "long-enough-pass", false); err != nil {
		t.Fatalf("login after ban expiry: %v", err)
	}
}

func TestUserScopeChecks(t *testing.T) {
	h := newTestEngine(t)
	ctx := context.Background()

	res := h.register(t, "frank", "frank@example.com", "long-enough-pass")

	if _, err := h.engine.User(ctx, userToken(res.UserID+1), res.UserID); !errors.Is(err, ErrPermissionDenied) {
		t.Fatalf("other user's token: got %v", err)
	}
	if _, err := h.engine.User(ctx, publicToken(), res.UserID); !errors.Is(err, ErrPermissionDenied) {
		t.Fatalf("public token: got %v", err)
	}

	rec, err := h.engine.User(ctx, userToken(res.UserID), res.UserID)
	if err != nil {
		t.Fatalf("owner token: %v", err)
	}
	if rec.Username != "frank" {
		t.Fatalf("wrong record: %+v", rec)
	}
	if _, err := h.engine.User(ctx, adminToken(), res.UserID); err != nil {
		t.Fatalf("admin token: %v", err)
	}
}

func TestUpdateUser(t *testing.T) {
	h := newTestEngine(t)
	ctx := context.Background()

	res := h.register(t, "gina", "gina@example.com", "long-enough-pass")
	h.nextMail(t) // registration verification mail

	bday := time.Date(1988, time.July, 2, 0, 0, 0, 0, time.UTC)
	err := h.engine.UpdateUser(ctx, userToken(res.UserID), res.UserID, UserChanges{
		Username:    strp("gina2"),
		Email:       strp("gina@new.example.com"),
		DisplayName: strp("Gina"),
		Birthday:    &bday,
		Address:     &identity.Address{Address1: "2 Side St", City: "Bend", Country: "US"},
	})
	if err != nil {
		t.Fatalf("update: %v", err)
	}

	// The email change triggers a fresh verification mail to the new address.
	msg := h.nextMail(t)
	if msg.Kind != MailEmailVerification || msg.To != "gina@new.example.com" {
		t.Fatalf("unexpected mail after email change: %+v", msg)
	}

	rec, err := h.engine.User(ctx, adminToken(), res.UserID)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if rec.Username != "gina2" || rec.Email == nil || *rec.Email != "gina@new.example.com" {
		t.Fatalf("changes not applied: %+v", rec)
	}
	if rec.EmailConfirmed {
		t.Fatal("email change must reset confirmation")
	}
	if rec.DisplayName == nil || *rec.DisplayName != "Gina" {
		t.Fatalf("display name not applied: %+v", rec.DisplayName)
	}
	if rec.Birthday == nil || !rec.Birthday.Equal(bday) {
		t.Fatalf("birthday not applied: %v", rec.Birthday)
	}

	// The old username is free again, the new one resolves.
	if _, err := h.engine.Login(ctx, publicToken(), "gina2", "long-enough-pass", false); err != nil {
		t.Fatalf("login under new username: %v", err)
	}
	if _, err := h.engine.Login(ctx, publicToken(), "gina", "long-enough-pass", false); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("login under old username: got %v", err)
	}
}

func TestDeleteUser(t *testing.T) {
	h := newTestEngine(t)
	ctx := context.Background()

	res := h.register(t, "hank", "hank@example.com", "long-enough-pass")

	if err := h.engine.DeleteUser(ctx, userToken(res.UserID+1), res.UserID); !errors.Is(err, ErrPermissionDenied) {
		t.Fatalf("foreign delete: got %v", err)
	}
	if err := h.engine.DeleteUser(ctx, userToken(res.UserID), res.UserID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := h.engine.User(ctx, adminToken(), res.UserID); !errors.Is(err, identity.ErrUserNotFound) {
		t.Fatalf("user survived delete: %v", err)
	}
	if _, err := h.engine.Login(ctx, publicToken(), "hank", "long-enough-pass", false); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("login after delete: got %v", err)
	}
}
