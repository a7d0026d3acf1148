package ironauth

import (
	"errors"
	"time"
)

// Config carries every tunable of the engine. Configure it before
// [Builder.Build]; it is treated as immutable afterwards.
type Config struct {
	Crypto       CryptoConfig
	Store        StoreConfig
	Token        TokenConfig
	Password     PasswordConfig
	Verification VerificationConfig
	Audit        AuditConfig
	Mail         MailConfig
}

/*
====================================
CRYPTO OFFLOAD CONFIG
====================================
*/

// CryptoConfig describes the token encryption offload endpoints. Endpoints
// are host:port addresses; the pool keeps ConnsPerEndpoint long-lived
// connections to each. Ignored when a Cipher is injected directly.
type CryptoConfig struct {
	Endpoints        []string
	ConnsPerEndpoint int
	AcquireTimeout   time.Duration
	RequestTimeout   time.Duration
}

/*
====================================
STORE CONFIG
====================================
*/

// StoreConfig namespaces the identity keyspace.
type StoreConfig struct {
	RedisPrefix string
}

/*
====================================
TOKEN CONFIG
====================================
*/

// TokenConfig controls issued access tokens.
type TokenConfig struct {
	// Validity is the lifetime of a client-credential token.
	Validity time.Duration

	// LoginValidity is the lifetime of a user session token issued by
	// Login.
	LoginValidity time.Duration

	// RememberValidity is the session lifetime when the user asks to be
	// remembered.
	RememberValidity time.Duration
}

/*
====================================
PASSWORD CONFIG
====================================
*/

// PasswordConfig holds the Argon2id cost parameters plus engine-level
// password policy.
type PasswordConfig struct {
	Memory      uint32 // in KB
	Time        uint32
	Parallelism uint8
	SaltLength  uint32
	KeyLength   uint32

	// MinLength is the minimum accepted password length in bytes.
	MinLength int
}

/*
====================================
VERIFICATION CONFIG
====================================
*/

// VerificationConfig controls one-time key lifetimes.
type VerificationConfig struct {
	EmailTTL       time.Duration
	EmailResendTTL time.Duration
	ResetTTL       time.Duration
}

/*
====================================
AUDIT CONFIG
====================================
*/

// AuditConfig controls the asynchronous audit dispatcher.
type AuditConfig struct {
	Enabled    bool
	BufferSize int
	// DropIfFull drops events instead of blocking the caller when the
	// buffer is full. Dropped counts are observable via
	// [Engine.AuditDropped].
	DropIfFull bool
}

/*
====================================
MAIL CONFIG
====================================
*/

// MailConfig controls the outbound mail queue. The engine only enqueues;
// delivery is the installed MailSink's concern.
type MailConfig struct {
	Enabled    bool
	BufferSize int
	DropIfFull bool
}

func defaultConfig() Config {
	return Config{
		Crypto: CryptoConfig{
			ConnsPerEndpoint: 20,
			AcquireTimeout:   2 * time.Second,
			RequestTimeout:   5 * time.Second,
		},
		Store: StoreConfig{
			RedisPrefix: "",
		},
		Token: TokenConfig{
			Validity:         28800 * time.Second,
			LoginValidity:    time.Hour,
			RememberValidity: 14 * 24 * time.Hour,
		},
		Password: PasswordConfig{
			Memory:      64 * 1024,
			Time:        2,
			Parallelism: 2,
			SaltLength:  16,
			KeyLength:   32,
			MinLength:   10,
		},
		Verification: VerificationConfig{
			EmailTTL:       24 * time.Hour,
			EmailResendTTL: 7 * 24 * time.Hour,
			ResetTTL:       24 * time.Hour,
		},
		Audit: AuditConfig{
			Enabled:    true,
			BufferSize: 256,
			DropIfFull: true,
		},
		Mail: MailConfig{
			Enabled:    true,
			BufferSize: 256,
			DropIfFull: false,
		},
	}
}

func cloneConfig(cfg Config) Config {
	out := cfg
	out.Crypto.Endpoints = append([]string(nil), cfg.Crypto.Endpoints...)
	return out
}

func validateConfig(cfg Config) error {
	if cfg.Token.Validity <= 0 {
		return errors.New("token validity must be positive")
	}
	if cfg.Token.LoginValidity <= 0 || cfg.Token.RememberValidity <= 0 {
		return errors.New("login validities must be positive")
	}
	if cfg.Verification.EmailTTL <= 0 || cfg.Verification.EmailResendTTL <= 0 || cfg.Verification.ResetTTL <= 0 {
		return errors.New("verification TTLs must be positive")
	}
	if cfg.Password.MinLength < 1 {
		return errors.New("password minimum length must be >= 1")
	}
	if cfg.Audit.Enabled && cfg.Audit.BufferSize <= 0 {
		return errors.New("audit buffer size must be positive")
	}
	if cfg.Mail.Enabled && cfg.Mail.BufferSize <= 0 {
		return errors.New("mail buffer size must be positive")
	}
	return nil
}
