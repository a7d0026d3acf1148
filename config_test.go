package ironauth

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func TestBuildRequiresRedis(t *testing.T) {
	_, err := New().WithCipher(newGCMCipher(t)).Build(context.Background())
	if err == nil {
		t.Fatal("expected build without redis to fail")
	}
}

func TestBuildRequiresCipherOrEndpoints(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	_, err := New().WithRedis(rdb).Build(context.Background())
	if err == nil {
		t.Fatal("expected build without cipher or endpoints to fail")
	}
}

func TestBuilderSingleUse(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	b := New().WithRedis(rdb).WithCipher(newGCMCipher(t))
	engine, err := b.Build(context.Background())
	if err != nil {
		t.Fatalf("first build: %v", err)
	}
	t.Cleanup(engine.Close)

	if _, err := b.Build(context.Background()); err == nil {
		t.Fatal("expected second build on same builder to fail")
	}
}

func TestBuildRejectsBadConfig(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero token validity", func(c *Config) { c.Token.Validity = 0 }},
		{"zero login validity", func(c *Config) { c.Token.LoginValidity = 0 }},
		{"zero reset ttl", func(c *Config) { c.Verification.ResetTTL = 0 }},
		{"zero password min", func(c *Config) { c.Password.MinLength = 0 }},
		{"audit no buffer", func(c *Config) { c.Audit.BufferSize = 0 }},
		{"weak argon memory", func(c *Config) { c.Password.Memory = 16 }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := defaultConfig()
			tc.mutate(&cfg)
			_, err := New().
				WithConfig(cfg).
				WithRedis(rdb).
				WithCipher(newGCMCipher(t)).
				Build(context.Background())
			if err == nil {
				t.Fatal("expected bad config to be rejected")
			}
		})
	}
}

func TestDefaultConfigValues(t *testing.T) {
	cfg := defaultConfig()
	if cfg.Token.Validity != 28800*time.Second {
		t.Fatalf("token validity = %v", cfg.Token.Validity)
	}
	if cfg.Token.LoginValidity != time.Hour || cfg.Token.RememberValidity != 14*24*time.Hour {
		t.Fatalf("login validities = %v / %v", cfg.Token.LoginValidity, cfg.Token.RememberValidity)
	}
	if cfg.Crypto.ConnsPerEndpoint != 20 {
		t.Fatalf("conns per endpoint = %d", cfg.Crypto.ConnsPerEndpoint)
	}
	if cfg.Verification.EmailTTL != 24*time.Hour || cfg.Verification.EmailResendTTL != 7*24*time.Hour {
		t.Fatalf("verification ttls = %v / %v", cfg.Verification.EmailTTL, cfg.Verification.EmailResendTTL)
	}
	if err := validateConfig(cfg); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
}
