package ironauth

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/ironauth/ironauth/cryptopool"
	"github.com/ironauth/ironauth/identity"
	"github.com/ironauth/ironauth/password"
	"github.com/ironauth/ironauth/token"
)

// Builder assembles an Engine. It replaces process-global state: every
// dependency is injected here, and Build wires them into one immutable
// Engine.
type Builder struct {
	config Config
	redis  redis.UniversalClient

	cipher    token.Cipher
	auditSink AuditSink
	mailSink  MailSink
	codes     CodeVerifier
	qr        QRRenderer

	built bool
}

// New returns a Builder with default configuration.
func New() *Builder {
	return &Builder{
		config: defaultConfig(),
	}
}

// WithConfig replaces the whole configuration.
func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cloneConfig(cfg)
	return b
}

// WithRedis sets the Redis client backing the identity store. Required.
func (b *Builder) WithRedis(client redis.UniversalClient) *Builder {
	b.redis = client
	return b
}

// WithCipher injects the token cipher directly, bypassing the offload pool.
// When unset, Build dials a pool against Config.Crypto.Endpoints.
func (b *Builder) WithCipher(c token.Cipher) *Builder {
	b.cipher = c
	return b
}

// WithAuditSink sets the audit event consumer.
func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.auditSink = sink
	return b
}

// WithMailSink sets the outbound mail consumer.
func (b *Builder) WithMailSink(sink MailSink) *Builder {
	b.mailSink = sink
	return b
}

// WithCodeVerifier installs the authenticator code verification capability.
func (b *Builder) WithCodeVerifier(v CodeVerifier) *Builder {
	b.codes = v
	return b
}

// WithQRRenderer installs the provisioning URI renderer.
func (b *Builder) WithQRRenderer(r QRRenderer) *Builder {
	b.qr = r
	return b
}

// Build validates the configuration and assembles the Engine. When no
// cipher was injected, Build dials the configured crypto offload endpoints;
// ctx bounds that dialing. A Builder can build at most once.
func (b *Builder) Build(ctx context.Context) (*Engine, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}
	if err := validateConfig(b.config); err != nil {
		return nil, err
	}
	if b.redis == nil {
		return nil, errors.New("redis client is required")
	}
	if b.cipher == nil && len(b.config.Crypto.Endpoints) == 0 {
		return nil, errors.New("either a cipher or crypto endpoints are required")
	}

	hasher, err := password.NewHasher(password.Params{
		Memory:      b.config.Password.Memory,
		Time:        b.config.Password.Time,
		Parallelism: b.config.Password.Parallelism,
		SaltLength:  b.config.Password.SaltLength,
		KeyLength:   b.config.Password.KeyLength,
	})
	if err != nil {
		return nil, err
	}

	e := &Engine{
		config: b.config,
		store:  identity.NewStore(b.redis, b.config.Store.RedisPrefix),
		hasher: hasher,
		codes:  b.codes,
		qr:     b.qr,
	}

	cipher := b.cipher
	if cipher == nil {
		pool, err := cryptopool.New(ctx, cryptopool.Config{
			Endpoints:        b.config.Crypto.Endpoints,
			ConnsPerEndpoint: b.config.Crypto.ConnsPerEndpoint,
			AcquireTimeout:   b.config.Crypto.AcquireTimeout,
			RequestTimeout:   b.config.Crypto.RequestTimeout,
		})
		if err != nil {
			return nil, fmt.Errorf("dial crypto pool: %w", err)
		}
		e.pool = pool
		cipher = pool
	}
	e.codec = token.NewCodec(cipher)

	e.audit = newAuditDispatcher(b.config.Audit, b.auditSink)
	e.mail = newMailDispatcher(b.config.Mail, b.mailSink)

	b.built = true
	return e, nil
}
