package identity

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/ironauth/ironauth/internal"
)

// One-time keys for email verification and password reset. Each key is
// issued with a TTL and consumed with GETDEL, so a key redeems at most once
// no matter how many callers race on it.

const (
	// EmailVerificationTTL is the lifetime of a first-issue verification
	// key.
	EmailVerificationTTL = 24 * time.Hour

	// EmailVerificationResendTTL is the extended lifetime used when a
	// verification email is resent.
	EmailVerificationResendTTL = 7 * 24 * time.Hour

	// PasswordResetTTL is the lifetime of a password reset key.
	PasswordResetTTL = 24 * time.Hour
)

// IssueEmailVerification mints a verification key bound to the user and
// stores it for the given lifetime. The returned key is URL-safe.
func (s *Store) IssueEmailVerification(ctx context.Context, userID uint64, ttl time.Duration) (string, error) {
	key, err := internal.NewVerificationKey()
	if err != nil {
		return "", fmt.Errorf("generate verification key: %w", err)
	}
	if err := s.issueKey(ctx, s.k(verifyEmailPrefix)+key, userID, ttl); err != nil {
		return "", err
	}
	return key, nil
}

// RedeemEmailVerification consumes a verification key and returns the user
// it was issued for. A second redemption of the same key fails with
// ErrInvalidOrExpiredKey.
func (s *Store) RedeemEmailVerification(ctx context.Context, key string) (uint64, error) {
	return s.redeemKey(ctx, s.k(verifyEmailPrefix)+key)
}

// IssuePasswordReset mints a password reset key bound to the user and
// stores it for the given lifetime. Reset keys are longer than verification
// keys since they gate a credential change.
func (s *Store) IssuePasswordReset(ctx context.Context, userID uint64, ttl time.Duration) (string, error) {
	key, err := internal.NewResetKey()
	if err != nil {
		return "", fmt.Errorf("generate reset key: %w", err)
	}
	if err := s.issueKey(ctx, s.k(resetPasswordPrefix)+key, userID, ttl); err != nil {
		return "", err
	}
	return key, nil
}

// RedeemPasswordReset consumes a reset key and returns the user it was
// issued for.
func (s *Store) RedeemPasswordReset(ctx context.Context, key string) (uint64, error) {
	return s.redeemKey(ctx, s.k(resetPasswordPrefix)+key)
}

func (s *Store) issueKey(ctx context.Context, fullKey string, userID uint64, ttl time.Duration) error {
	err := s.redis.Set(ctx, fullKey, strconv.FormatUint(userID, 10), ttl).Err()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return nil
}

func (s *Store) redeemKey(ctx context.Context, fullKey string) (uint64, error) {
	raw, err := s.redis.GetDel(ctx, fullKey).Result()
	if err == redis.Nil {
		return 0, ErrInvalidOrExpiredKey
	}
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	id, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: corrupt key payload %q", ErrStoreUnavailable, raw)
	}
	return id, nil
}
