package token

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"
)

// ErrDecode is returned when a transport string cannot be recovered:
// bad base64 or a failed offload decryption. Malformed and tampered tokens
// both land here.
var ErrDecode = errors.New("token decode failed")

// ErrParse is returned when decrypted bytes are not a valid token mapping.
// Seeing it in practice means a token was minted by different code — it is
// an internal-consistency failure, not caller input to recover from.
var ErrParse = errors.New("token parse failed")

// Cipher is the offload capability the codec needs. *cryptopool.Pool
// satisfies it.
type Cipher interface {
	Encrypt(ctx context.Context, payload []byte) ([]byte, error)
	Decrypt(ctx context.Context, payload []byte) ([]byte, error)
}

// Wire field keys. Fixed: the set is the whole schema, and Decode hard-fails
// on anything outside it.
const (
	fieldAppID      = "app_id"
	fieldScopes     = "scopes"
	fieldTokenType  = "token_type"
	fieldExpiration = "expiration"
)

// Codec encodes tokens to their encrypted transport form and back. Each
// Encode and Decode performs exactly one crypto round trip.
type Codec struct {
	cipher Cipher
}

// NewCodec returns a codec backed by cipher.
func NewCodec(cipher Cipher) *Codec {
	return &Codec{cipher: cipher}
}

// Encode serializes t into a flat field map, encrypts it through the
// offload service, and base64-encodes the ciphertext with the standard
// alphabet.
func (c *Codec) Encode(ctx context.Context, t *AccessToken) (string, error) {
	scopes, err := json.Marshal(t.Scopes)
	if err != nil {
		return "", fmt.Errorf("%w: scopes: %v", ErrParse, err)
	}

	fields := map[string]string{
		fieldAppID:      t.AppID,
		fieldScopes:     string(scopes),
		fieldTokenType:  string(t.Kind),
		fieldExpiration: strconv.FormatInt(t.ExpiresAt.Unix(), 10),
	}

	plaintext, err := json.Marshal(fields)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrParse, err)
	}

	ciphertext, err := c.cipher.Encrypt(ctx, plaintext)
	if err != nil {
		return "", err
	}

	return base64.StdEncoding.EncodeToString(ciphertext), nil
}

// Decode reverses Encode. Base64 and decryption failures return [ErrDecode];
// a decrypted payload that is not the expected mapping returns [ErrParse].
// Expiration is not checked here — callers compare against the clock.
func (c *Codec) Decode(ctx context.Context, transport string) (*AccessToken, error) {
	ciphertext, err := base64.StdEncoding.DecodeString(transport)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecode, err)
	}

	plaintext, err := c.cipher.Decrypt(ctx, ciphertext)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecode, err)
	}

	var fields map[string]string
	if err := json.Unmarshal(plaintext, &fields); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrParse, err)
	}

	t := &AccessToken{Kind: Bearer}
	for key, value := range fields {
		switch key {
		case fieldAppID:
			t.AppID = value
		case fieldScopes:
			if err := json.Unmarshal([]byte(value), &t.Scopes); err != nil {
				return nil, fmt.Errorf("%w: scopes: %v", ErrParse, err)
			}
		case fieldTokenType:
			t.Kind = Kind(value)
		case fieldExpiration:
			unix, err := strconv.ParseInt(value, 10, 64)
			if err != nil {
				return nil, fmt.Errorf("%w: expiration: %v", ErrParse, err)
			}
			t.ExpiresAt = time.Unix(unix, 0).UTC()
		default:
			return nil, fmt.Errorf("%w: unexpected field %q", ErrParse, key)
		}
	}

	return t, nil
}
