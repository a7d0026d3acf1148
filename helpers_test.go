package ironauth

import (
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/ironauth/ironauth/token"
)

// gcmCipher is an in-process stand-in for the crypto offload service.
// AES-GCM guarantees that any tampered ciphertext fails to decrypt.
type gcmCipher struct {
	aead cipher.AEAD
}

func newGCMCipher(t *testing.T) *gcmCipher {
	t.Helper()

	key := make([]byte, 32)
	for i := range key {
		key[i] = byte(i * 7)
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		t.Fatalf("aes: %v", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		t.Fatalf("gcm: %v", err)
	}
	return &gcmCipher{aead: aead}
}

func (c *gcmCipher) Encrypt(ctx context.Context, plaintext []byte) ([]byte, error) {
	nonce := make([]byte, c.aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, err
	}
	return c.aead.Seal(nonce, nonce, plaintext, nil), nil
}

func (c *gcmCipher) Decrypt(ctx context.Context, ciphertext []byte) ([]byte, error) {
	if len(ciphertext) < c.aead.NonceSize() {
		return nil, errors.New("ciphertext too short")
	}
	nonce, sealed := ciphertext[:c.aead.NonceSize()], ciphertext[c.aead.NonceSize():]
	return c.aead.Open(nil, nonce, sealed, nil)
}

type staticVerifier struct {
	code string
}

func (v staticVerifier) Verify(secret, code string) (bool, error) {
	return secret != "" && code == v.code, nil
}

type testHarness struct {
	engine *Engine
	redis  *miniredis.Miniredis
	audit  *ChannelSink
	mail   *ChannelMailSink
}

func newTestEngine(t *testing.T) *testHarness {
	return newTestEngineWith(t, nil)
}

func newTestEngineWith(t *testing.T, mutate func(*Config)) *testHarness {
	t.Helper()

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	audit := NewChannelSink(64)
	mail := NewChannelMailSink(64)

	b := New().
		WithRedis(rdb).
		WithCipher(newGCMCipher(t)).
		WithAuditSink(audit).
		WithMailSink(mail).
		WithCodeVerifier(staticVerifier{code: "314159"})
	if mutate != nil {
		cfg := defaultConfig()
		mutate(&cfg)
		b = b.WithConfig(cfg)
	}

	engine, err := b.Build(context.Background())
	if err != nil {
		t.Fatalf("build engine: %v", err)
	}
	t.Cleanup(engine.Close)

	return &testHarness{engine: engine, redis: mr, audit: audit, mail: mail}
}

func adminToken() *token.AccessToken {
	return token.New("root", []token.Scope{token.Admin()}, token.Bearer, time.Hour)
}

func publicToken() *token.AccessToken {
	return token.New("gateway", []token.Scope{token.Public()}, token.Bearer, time.Hour)
}

func userToken(id uint64) *token.AccessToken {
	return token.New("session", []token.Scope{token.User(id)}, token.Bearer, time.Hour)
}

func (h *testHarness) register(t *testing.T, username, email, pass string) *RegisterResult {
	t.Helper()

	res, err := h.engine.Register(context.Background(), publicToken(), RegisterRequest{
		Username: username,
		Email:    email,
		Password: pass,
	})
	if err != nil {
		t.Fatalf("register %s: %v", username, err)
	}
	return res
}

func (h *testHarness) nextMail(t *testing.T) MailMessage {
	t.Helper()

	select {
	case msg := <-h.mail.Messages():
		return msg
	case <-time.After(2 * time.Second):
		t.Fatal("no mail enqueued")
		return MailMessage{}
	}
}

func strp(s string) *string { return &s }
