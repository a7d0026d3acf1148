package identity

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

var (
	// ErrStoreUnavailable wraps any underlying storage I/O failure. The
	// store performs no retries.
	ErrStoreUnavailable = errors.New("identity store unavailable")

	// ErrAlreadyExists is the base error for uniqueness violations on
	// create and rename. The specific sentinels below wrap it.
	ErrAlreadyExists = errors.New("record already exists")

	// ErrUsernameTaken is returned when the normalized username is already
	// indexed.
	ErrUsernameTaken = fmt.Errorf("%w: username", ErrAlreadyExists)

	// ErrEmailTaken is returned when the normalized email is already
	// indexed.
	ErrEmailTaken = fmt.Errorf("%w: email", ErrAlreadyExists)

	// ErrClientExists is returned when the client name is already indexed.
	ErrClientExists = fmt.Errorf("%w: client name", ErrAlreadyExists)

	// ErrUserNotFound is returned by user lookups that resolve nothing.
	ErrUserNotFound = errors.New("user not found")

	// ErrClientNotFound is returned by client lookups that resolve nothing.
	ErrClientNotFound = errors.New("client not found")

	// ErrInvalidOrExpiredKey is returned when a one-time key cannot be
	// redeemed. Never-issued, already-redeemed, and expired keys are
	// deliberately indistinguishable.
	ErrInvalidOrExpiredKey = errors.New("invalid or expired key")

	// ErrRequestLimitReached is returned when a client's request count has
	// reached its nonzero limit.
	ErrRequestLimitReached = errors.New("request limit reached")
)

const (
	userCounterKey   = "next_user_id"
	clientCounterKey = "next_client_id"

	usernameIndexKey   = "userkeys"
	emailIndexKey      = "emailkeys"
	clientNameIndexKey = "clientkeys"

	userKeyPrefix   = "users:"
	clientKeyPrefix = "clients:"

	verifyEmailPrefix   = "verify_emails:"
	resetPasswordPrefix = "reset_passwords:"
)

// Store is the identity persistence layer. All operations are safe for
// concurrent use; atomicity contracts are enforced in Redis (scripts,
// transactions, single-command primitives), not by a process-local lock.
type Store struct {
	redis  redis.UniversalClient
	prefix string
}

// NewStore returns a store over the given Redis client. prefix namespaces
// every key; empty means no namespace.
func NewStore(client redis.UniversalClient, prefix string) *Store {
	return &Store{redis: client, prefix: prefix}
}

func (s *Store) k(name string) string {
	if s.prefix == "" {
		return name
	}
	return s.prefix + ":" + name
}

// AllocateUserID atomically draws the next user ID. IDs start at 0 and are
// dense: N concurrent allocations yield exactly the values [0, N).
func (s *Store) AllocateUserID(ctx context.Context) (uint64, error) {
	return s.allocateID(ctx, s.k(userCounterKey))
}

// AllocateClientID atomically draws the next client numeric ID.
func (s *Store) AllocateClientID(ctx context.Context) (uint64, error) {
	return s.allocateID(ctx, s.k(clientCounterKey))
}

func (s *Store) allocateID(ctx context.Context, counterKey string) (uint64, error) {
	next, err := s.redis.Incr(ctx, counterKey).Result()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return uint64(next - 1), nil
}

// Ping reports point-in-time store availability and latency.
func (s *Store) Ping(ctx context.Context) (time.Duration, error) {
	start := time.Now()
	if err := s.redis.Ping(ctx).Err(); err != nil {
		return time.Since(start), fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return time.Since(start), nil
}
