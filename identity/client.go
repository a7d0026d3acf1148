package identity

import (
	"context"
	"encoding/base64"
	"fmt"
	"strconv"

	"github.com/redis/go-redis/v9"

	"github.com/ironauth/ironauth/internal"
)

// ClientRecord is the typed view of a client hash. Scopes are stored as an
// opaque JSON document; decoding them is the caller's concern.
type ClientRecord struct {
	ID           string
	Name         string
	ScopesJSON   string
	Secret       string
	RequestCount uint64
	RequestLimit uint64
}

// KEYS[1] = client name index hash
// KEYS[2] = client ID counter
// ARGV[1] = normalized client name
// ARGV[2] = random ID suffix
// ARGV[3] = client key prefix
// ARGV[4..] = alternating field, value pairs for the new hash
//
// Returns the full public ID, or error string "client_exists".
var createClientLua = redis.NewScript(`
if redis.call('HEXISTS', KEYS[1], ARGV[1]) == 1 then
  return {err='client_exists'}
end
local n = redis.call('INCR', KEYS[2]) - 1
local id = n .. '-' .. ARGV[2]
redis.call('HSET', KEYS[1], ARGV[1], id)
local key = ARGV[3] .. id
for i = 4, #ARGV, 2 do
  redis.call('HSET', key, ARGV[i], ARGV[i + 1])
end
return id
`)

// CreateClient registers a client application under a unique name and
// returns its record. The public ID is "<n>-<suffix>" where n is drawn from
// the client counter and suffix is ten random alphanumeric characters. A
// limit of zero means unlimited requests.
func (s *Store) CreateClient(ctx context.Context, name, scopesJSON string, requestLimit uint64) (*ClientRecord, error) {
	secret, err := newEncodedSecret()
	if err != nil {
		return nil, fmt.Errorf("generate client secret: %w", err)
	}
	suffix, err := internal.NewClientIDSuffix()
	if err != nil {
		return nil, fmt.Errorf("generate client id: %w", err)
	}

	args := []interface{}{
		normalizeKey(name),
		suffix,
		s.k(clientKeyPrefix),
		"name", name,
		"scopes", scopesJSON,
		"secret", secret,
		"request_count", "0",
		"request_limit", strconv.FormatUint(requestLimit, 10),
	}
	keys := []string{s.k(clientNameIndexKey), s.k(clientCounterKey)}

	id, err := createClientLua.Run(ctx, s.redis, keys, args...).Text()
	if err != nil {
		if err.Error() == "client_exists" {
			return nil, ErrClientExists
		}
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return &ClientRecord{
		ID:           id,
		Name:         name,
		ScopesJSON:   scopesJSON,
		Secret:       secret,
		RequestLimit: requestLimit,
	}, nil
}

// Client loads the client hash for the given public ID.
func (s *Store) Client(ctx context.Context, id string) (*ClientRecord, error) {
	fields, err := s.redis.HGetAll(ctx, s.clientKey(id)).Result()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	if len(fields) == 0 {
		return nil, ErrClientNotFound
	}
	return decodeClient(id, fields)
}

// ClientIDByName resolves a client name to its public ID,
// case-insensitively.
func (s *Store) ClientIDByName(ctx context.Context, name string) (string, error) {
	id, err := s.redis.HGet(ctx, s.k(clientNameIndexKey), normalizeKey(name)).Result()
	if err == redis.Nil {
		return "", ErrClientNotFound
	}
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return id, nil
}

// ChangeClientSecret issues a fresh secret for the client and returns it.
func (s *Store) ChangeClientSecret(ctx context.Context, id string) (string, error) {
	exists, err := s.redis.Exists(ctx, s.clientKey(id)).Result()
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	if exists == 0 {
		return "", ErrClientNotFound
	}
	secret, err := newEncodedSecret()
	if err != nil {
		return "", fmt.Errorf("generate client secret: %w", err)
	}
	if err := s.redis.HSet(ctx, s.clientKey(id), "secret", secret).Err(); err != nil {
		return "", fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return secret, nil
}

// KEYS[1] = client name index hash
// KEYS[2] = client hash
// ARGV[1] = old normalized name
// ARGV[2] = new normalized name
// ARGV[3] = new raw name
var renameClientLua = redis.NewScript(`
if redis.call('HEXISTS', KEYS[1], ARGV[2]) == 1 then
  return {err='client_exists'}
end
local id = redis.call('HGET', KEYS[1], ARGV[1])
if not id then
  return {err='not_found'}
end
redis.call('HDEL', KEYS[1], ARGV[1])
redis.call('HSET', KEYS[1], ARGV[2], id)
redis.call('HSET', KEYS[2], 'name', ARGV[3])
return 1
`)

// ChangeClientName renames a client, keeping the name index consistent.
func (s *Store) ChangeClientName(ctx context.Context, id, oldName, newName string) error {
	keys := []string{s.k(clientNameIndexKey), s.clientKey(id)}
	err := renameClientLua.Run(ctx, s.redis, keys, normalizeKey(oldName), normalizeKey(newName), newName).Err()
	if err != nil {
		switch err.Error() {
		case "client_exists":
			return ErrClientExists
		case "not_found":
			return ErrClientNotFound
		}
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return nil
}

// KEYS[1] = client hash
//
// Returns the new count, or error string "limit_reached" / "not_found".
// A zero limit never rejects.
var incrRequestCountLua = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 0 then
  return {err='not_found'}
end
local limit = tonumber(redis.call('HGET', KEYS[1], 'request_limit') or '0')
local count = tonumber(redis.call('HGET', KEYS[1], 'request_count') or '0')
if limit ~= 0 and count >= limit then
  return {err='limit_reached'}
end
return redis.call('HINCRBY', KEYS[1], 'request_count', 1)
`)

// IncrRequestCount charges one request against the client's quota. When the
// limit is nonzero and already reached, the count is left untouched and
// ErrRequestLimitReached is returned. The check and increment are atomic, so
// concurrent callers can never push the count past the limit.
func (s *Store) IncrRequestCount(ctx context.Context, id string) (uint64, error) {
	count, err := incrRequestCountLua.Run(ctx, s.redis, []string{s.clientKey(id)}).Int64()
	if err != nil {
		switch err.Error() {
		case "limit_reached":
			return 0, ErrRequestLimitReached
		case "not_found":
			return 0, ErrClientNotFound
		}
		return 0, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return uint64(count), nil
}

// ResetRequestCount zeroes the client's request counter.
func (s *Store) ResetRequestCount(ctx context.Context, id string) error {
	exists, err := s.redis.Exists(ctx, s.clientKey(id)).Result()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	if exists == 0 {
		return ErrClientNotFound
	}
	if err := s.redis.HSet(ctx, s.clientKey(id), "request_count", "0").Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return nil
}

// DeleteClient removes the client hash and its name index entry.
func (s *Store) DeleteClient(ctx context.Context, id string) error {
	rec, err := s.Client(ctx, id)
	if err != nil {
		return err
	}
	_, err = s.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HDel(ctx, s.k(clientNameIndexKey), normalizeKey(rec.Name))
		pipe.Del(ctx, s.clientKey(id))
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return nil
}

// Secrets are stored and transported in standard base64.
func newEncodedSecret() (string, error) {
	raw, err := internal.NewClientSecret()
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(raw), nil
}

func (s *Store) clientKey(id string) string {
	return s.k(clientKeyPrefix) + id
}

func decodeClient(id string, fields map[string]string) (*ClientRecord, error) {
	rec := &ClientRecord{ID: id}
	for field, value := range fields {
		switch field {
		case "name":
			rec.Name = value
		case "scopes":
			rec.ScopesJSON = value
		case "secret":
			rec.Secret = value
		case "request_count":
			n, err := strconv.ParseUint(value, 10, 64)
			if err != nil {
				return nil, fmt.Errorf("%w: corrupt request_count %q", ErrStoreUnavailable, value)
			}
			rec.RequestCount = n
		case "request_limit":
			n, err := strconv.ParseUint(value, 10, 64)
			if err != nil {
				return nil, fmt.Errorf("%w: corrupt request_limit %q", ErrStoreUnavailable, value)
			}
			rec.RequestLimit = n
		}
	}
	return rec, nil
}
