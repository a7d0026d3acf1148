package ironauth

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/ironauth/ironauth/identity"
	"github.com/ironauth/ironauth/internal"
	"github.com/ironauth/ironauth/token"
)

// Register creates a user account. The presented token needs Public scope.
// The new account gets a fresh authenticator secret and a 24h email
// verification key; the key is enqueued for mail delivery and returned for
// transports that deliver it out of band.
func (e *Engine) Register(ctx context.Context, tok *token.AccessToken, req RegisterRequest) (*RegisterResult, error) {
	if e == nil || e.store == nil {
		return nil, ErrEngineNotReady
	}
	if err := requirePublic(tok); err != nil {
		return nil, err
	}
	if err := e.checkPasswordPolicy(req.Password); err != nil {
		return nil, err
	}
	if strings.TrimSpace(req.Username) == "" || strings.TrimSpace(req.Email) == "" {
		return nil, fmt.Errorf("%w: username and email are required", ErrInvalidRequest)
	}

	hash, err := e.hasher.Hash(req.Password)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	userID, err := e.store.CreateUser(ctx, req.Username, req.Email, hash)
	if err != nil {
		e.auditFailure(ctx, "user_registered", AuditEvent{}, err)
		return nil, err
	}

	secret, err := internal.NewTOTPSecret()
	if err != nil {
		return nil, fmt.Errorf("generate authenticator secret: %w", err)
	}
	if err := e.store.RotateAuthenticatorSecret(ctx, userID, secret); err != nil {
		return nil, err
	}

	key, err := e.store.IssueEmailVerification(ctx, userID, e.config.Verification.EmailTTL)
	if err != nil {
		return nil, err
	}
	e.enqueueMail(ctx, MailMessage{
		To:       req.Email,
		Username: req.Username,
		Kind:     MailEmailVerification,
		Key:      key,
	})

	e.auditSuccess(ctx, "user_registered", AuditEvent{UserID: formatUserID(userID)})
	return &RegisterResult{UserID: userID, VerificationKey: key}, nil
}

// Login authenticates a user by email or username plus password and issues
// a Bearer token scoped to that user, carrying the calling client's app ID.
// The session lasts the configured login validity, or the longer remember
// validity when remember is set. The presented token needs Public scope.
// Banned and disabled accounts are rejected after the password check, so
// those states are not an enumeration oracle.
func (e *Engine) Login(ctx context.Context, tok *token.AccessToken, identifier, pass string, remember bool) (*TokenGrant, error) {
	if e == nil || e.store == nil {
		return nil, ErrEngineNotReady
	}
	if err := requirePublic(tok); err != nil {
		return nil, err
	}

	userID, err := e.lookupIdentifier(ctx, identifier)
	if err != nil {
		if errors.Is(err, identity.ErrUserNotFound) {
			e.auditFailure(ctx, "user_login", AuditEvent{}, ErrInvalidCredentials)
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}
	rec, err := e.store.User(ctx, userID)
	if err != nil {
		return nil, err
	}

	ok, err := e.hasher.Verify(pass, rec.PasswordHash)
	if err != nil {
		return nil, err
	}
	if !ok {
		e.auditFailure(ctx, "user_login", AuditEvent{UserID: formatUserID(userID)}, ErrInvalidCredentials)
		return nil, ErrInvalidCredentials
	}
	if rec.Banned(time.Now()) {
		e.auditFailure(ctx, "user_login", AuditEvent{UserID: formatUserID(userID)}, ErrAccountBanned)
		return nil, ErrAccountBanned
	}
	if !rec.Enabled {
		e.auditFailure(ctx, "user_login", AuditEvent{UserID: formatUserID(userID)}, ErrAccountDisabled)
		return nil, ErrAccountDisabled
	}

	if err := e.store.TouchActivity(ctx, userID); err != nil {
		return nil, err
	}

	validity := e.config.Token.LoginValidity
	if remember {
		validity = e.config.Token.RememberValidity
	}
	grant, err := e.issueToken(ctx, tok.AppID, []token.Scope{token.User(userID)}, validity)
	if err != nil {
		return nil, err
	}
	e.auditSuccess(ctx, "user_login", AuditEvent{UserID: formatUserID(userID)})
	return grant, nil
}

// User loads a user record. The presented token must be Admin or scoped to
// the requested user.
func (e *Engine) User(ctx context.Context, tok *token.AccessToken, userID uint64) (*identity.UserRecord, error) {
	if e == nil || e.store == nil {
		return nil, ErrEngineNotReady
	}
	if err := requireAdminOrOwner(tok, userID); err != nil {
		return nil, err
	}
	return e.store.User(ctx, userID)
}

// ListUsers returns every registered user, ordered by ID. Admin scope
// required.
func (e *Engine) ListUsers(ctx context.Context, tok *token.AccessToken) ([]*identity.UserRecord, error) {
	if e == nil || e.store == nil {
		return nil, ErrEngineNotReady
	}
	if err := requireAdmin(tok); err != nil {
		return nil, err
	}

	ids, err := e.store.UserIDs(ctx)
	if err != nil {
		return nil, err
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	recs := make([]*identity.UserRecord, 0, len(ids))
	for _, id := range ids {
		rec, err := e.store.User(ctx, id)
		if errors.Is(err, identity.ErrUserNotFound) {
			// Raced with a delete, skip.
			continue
		}
		if err != nil {
			return nil, err
		}
		recs = append(recs, rec)
	}
	return recs, nil
}

// UpdateUser applies the non-nil changes to a user's profile. Username and
// email changes move the uniqueness indices; an email change also resets
// its confirmation and triggers a fresh verification mail.
func (e *Engine) UpdateUser(ctx context.Context, tok *token.AccessToken, userID uint64, changes UserChanges) error {
	if e == nil || e.store == nil {
		return ErrEngineNotReady
	}
	if err := requireAdminOrOwner(tok, userID); err != nil {
		return err
	}

	// Renames need the current values; load once up front.
	rec, err := e.store.User(ctx, userID)
	if err != nil {
		return err
	}

	if changes.Username != nil {
		if err := e.store.UpdateUsername(ctx, userID, rec.Username, *changes.Username); err != nil {
			return err
		}
	}
	if changes.Email != nil {
		oldEmail := ""
		if rec.Email != nil {
			oldEmail = *rec.Email
		}
		if err := e.store.UpdateEmail(ctx, userID, oldEmail, *changes.Email); err != nil {
			return err
		}
		key, err := e.store.IssueEmailVerification(ctx, userID, e.config.Verification.EmailTTL)
		if err != nil {
			return err
		}
		e.enqueueMail(ctx, MailMessage{
			To:       *changes.Email,
			Username: rec.Username,
			Kind:     MailEmailVerification,
			Key:      key,
		})
	}
	if changes.Password != nil {
		if err := e.checkPasswordPolicy(*changes.Password); err != nil {
			return err
		}
		hash, err := e.hasher.Hash(*changes.Password)
		if err != nil {
			return err
		}
		if err := e.store.SetPassword(ctx, userID, hash); err != nil {
			return err
		}
	}
	if changes.DisplayName != nil {
		if err := e.store.SetDisplayName(ctx, userID, *changes.DisplayName); err != nil {
			return err
		}
	}
	if changes.FirstName != nil {
		if err := e.store.SetFirstName(ctx, userID, *changes.FirstName); err != nil {
			return err
		}
	}
	if changes.LastName != nil {
		if err := e.store.SetLastName(ctx, userID, *changes.LastName); err != nil {
			return err
		}
	}
	if changes.Birthday != nil {
		if err := e.store.SetBirthday(ctx, userID, *changes.Birthday); err != nil {
			return err
		}
	}
	if changes.Phone != nil {
		if err := e.store.SetPhone(ctx, userID, *changes.Phone); err != nil {
			return err
		}
	}
	if changes.ImageURL != nil {
		if err := e.store.SetImageURL(ctx, userID, *changes.ImageURL); err != nil {
			return err
		}
	}
	if changes.Address != nil {
		if err := e.store.SetAddress(ctx, userID, *changes.Address); err != nil {
			return err
		}
	}

	e.auditSuccess(ctx, "user_updated", AuditEvent{UserID: formatUserID(userID)})
	return nil
}

// DeleteUser removes the account, its address, and its index entries. The
// presented token must be Admin or scoped to the user.
func (e *Engine) DeleteUser(ctx context.Context, tok *token.AccessToken, userID uint64) error {
	if e == nil || e.store == nil {
		return ErrEngineNotReady
	}
	if err := requireAdminOrOwner(tok, userID); err != nil {
		return err
	}
	if err := e.store.DeleteUser(ctx, userID); err != nil {
		return err
	}
	e.auditSuccess(ctx, "user_deleted", AuditEvent{UserID: formatUserID(userID)})
	return nil
}

// lookupIdentifier resolves an email first, then falls back to username.
func (e *Engine) lookupIdentifier(ctx context.Context, identifier string) (uint64, error) {
	if strings.ContainsRune(identifier, '@') {
		if id, err := e.store.UserIDByEmail(ctx, identifier); err == nil {
			return id, nil
		} else if !errors.Is(err, identity.ErrUserNotFound) {
			return 0, err
		}
	}
	return e.store.UserIDByUsername(ctx, identifier)
}

func (e *Engine) checkPasswordPolicy(pass string) error {
	if len(pass) < e.config.Password.MinLength {
		return fmt.Errorf("%w: minimum length %d", ErrPasswordPolicy, e.config.Password.MinLength)
	}
	return nil
}

func formatUserID(id uint64) string {
	return strconv.FormatUint(id, 10)
}
