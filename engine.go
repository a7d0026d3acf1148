package ironauth

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/ironauth/ironauth/cryptopool"
	"github.com/ironauth/ironauth/identity"
	"github.com/ironauth/ironauth/password"
	"github.com/ironauth/ironauth/token"
)

// Engine is the authentication engine. Build one through [Builder.Build];
// all methods are safe for concurrent use afterwards.
type Engine struct {
	config Config

	store  *identity.Store
	codec  *token.Codec
	hasher *password.Hasher

	// pool is set only when the engine dialed its own offload pool and
	// therefore owns its lifecycle.
	pool *cryptopool.Pool

	audit *auditDispatcher
	mail  *mailDispatcher

	codes CodeVerifier
	qr    QRRenderer
}

// Close releases engine-owned resources: the audit and mail dispatchers are
// drained, and the crypto pool is torn down when the engine dialed it.
func (e *Engine) Close() {
	if e == nil {
		return
	}
	if e.audit != nil {
		e.audit.Close()
	}
	if e.mail != nil {
		e.mail.Close()
	}
	if e.pool != nil {
		e.pool.Close()
	}
}

// AuditDropped reports how many audit events were dropped due to a full
// buffer.
func (e *Engine) AuditDropped() uint64 {
	if e == nil {
		return 0
	}
	return e.audit.Dropped()
}

// MailDropped reports how many mail messages were dropped due to a full
// queue.
func (e *Engine) MailDropped() uint64 {
	if e == nil {
		return 0
	}
	return e.mail.Dropped()
}

// Ping reports storage availability and round-trip latency.
func (e *Engine) Ping(ctx context.Context) (time.Duration, error) {
	if e == nil || e.store == nil {
		return 0, ErrEngineNotReady
	}
	return e.store.Ping(ctx)
}

// IssueClientToken authenticates a client application by ID and base64
// secret and issues a Bearer token carrying the client's configured scopes.
// Each issuance charges one request against the client's quota; a client at
// its nonzero limit gets identity.ErrRequestLimitReached.
func (e *Engine) IssueClientToken(ctx context.Context, clientID, secret string) (*TokenGrant, error) {
	if e == nil || e.store == nil {
		return nil, ErrEngineNotReady
	}

	rec, err := e.store.Client(ctx, clientID)
	if err != nil {
		if errors.Is(err, identity.ErrClientNotFound) {
			e.auditFailure(ctx, "token_issued", AuditEvent{ClientID: clientID}, ErrInvalidClientSecret)
			return nil, ErrInvalidClientSecret
		}
		return nil, err
	}
	if subtle.ConstantTimeCompare([]byte(secret), []byte(rec.Secret)) != 1 {
		e.auditFailure(ctx, "token_issued", AuditEvent{ClientID: clientID}, ErrInvalidClientSecret)
		return nil, ErrInvalidClientSecret
	}

	if _, err := e.store.IncrRequestCount(ctx, clientID); err != nil {
		e.auditFailure(ctx, "token_issued", AuditEvent{ClientID: clientID}, err)
		return nil, err
	}

	scopes, err := decodeScopes(rec.ScopesJSON)
	if err != nil {
		return nil, err
	}
	grant, err := e.issueToken(ctx, clientID, scopes, e.config.Token.Validity)
	if err != nil {
		return nil, err
	}

	e.auditSuccess(ctx, "token_issued", AuditEvent{ClientID: clientID})
	return grant, nil
}

// Authorize decodes a transport token and checks its expiry. Every failure
// collapses into ErrUnauthorized.
func (e *Engine) Authorize(ctx context.Context, transport string) (*token.AccessToken, error) {
	if e == nil || e.codec == nil {
		return nil, ErrEngineNotReady
	}

	tok, err := e.codec.Decode(ctx, transport)
	if err != nil {
		return nil, ErrUnauthorized
	}
	if tok.HasExpired() {
		return nil, ErrUnauthorized
	}
	return tok, nil
}

// issueToken mints and encodes a Bearer token for the given subject.
func (e *Engine) issueToken(ctx context.Context, appID string, scopes []token.Scope, validity time.Duration) (*TokenGrant, error) {
	tok := token.New(appID, scopes, token.Bearer, validity)
	transport, err := e.codec.Encode(ctx, tok)
	if err != nil {
		return nil, fmt.Errorf("encode token: %w", err)
	}
	return &TokenGrant{
		AccessToken: transport,
		TokenType:   tok.Kind,
		ExpiresAt:   tok.ExpiresAt,
	}, nil
}

// requireAdmin passes only tokens carrying Admin scope.
func requireAdmin(tok *token.AccessToken) error {
	if tok == nil || !tok.IsAdmin() {
		return ErrPermissionDenied
	}
	return nil
}

// requirePublic passes tokens carrying Admin or Public scope.
func requirePublic(tok *token.AccessToken) error {
	if tok == nil {
		return ErrPermissionDenied
	}
	if tok.IsAdmin() || tok.IsPublic() {
		return nil
	}
	return ErrPermissionDenied
}

// requireAdminOrOwner passes Admin tokens and tokens scoped to the given
// user.
func requireAdminOrOwner(tok *token.AccessToken, userID uint64) error {
	if tok == nil {
		return ErrPermissionDenied
	}
	if tok.IsAdmin() || tok.IsUser(userID) {
		return nil
	}
	return ErrPermissionDenied
}

func decodeScopes(scopesJSON string) ([]token.Scope, error) {
	var scopes []token.Scope
	if err := json.Unmarshal([]byte(scopesJSON), &scopes); err != nil {
		return nil, fmt.Errorf("decode stored scopes: %w", err)
	}
	return scopes, nil
}

func encodeScopes(scopes []token.Scope) (string, error) {
	raw, err := json.Marshal(scopes)
	if err != nil {
		return "", fmt.Errorf("encode scopes: %w", err)
	}
	return string(raw), nil
}

func (e *Engine) auditSuccess(ctx context.Context, eventType string, event AuditEvent) {
	event.EventType = eventType
	event.Success = true
	e.emitAudit(ctx, event)
}

func (e *Engine) auditFailure(ctx context.Context, eventType string, event AuditEvent, cause error) {
	event.EventType = eventType
	event.Success = false
	if cause != nil {
		event.Error = cause.Error()
	}
	e.emitAudit(ctx, event)
}

func (e *Engine) emitAudit(ctx context.Context, event AuditEvent) {
	if e.audit == nil {
		return
	}
	event.IP = clientIPFromContext(ctx)
	if ua := userAgentFromContext(ctx); ua != "" {
		if event.Metadata == nil {
			event.Metadata = map[string]string{}
		}
		event.Metadata["user_agent"] = ua
	}
	e.audit.Emit(ctx, event)
}

func (e *Engine) enqueueMail(ctx context.Context, msg MailMessage) {
	if e.mail == nil {
		return
	}
	e.mail.Enqueue(ctx, msg)
}
