package ironauth

import (
	"context"

	"github.com/ironauth/ironauth/token"
)

// CreateClient registers a client application. Admin scope is required, and
// the client must carry at least one scope. The returned secret is shown
// once; only rotation produces a new one.
func (e *Engine) CreateClient(ctx context.Context, tok *token.AccessToken, name string, scopes []token.Scope, requestLimit uint64) (*ClientInfo, error) {
	if e == nil || e.store == nil {
		return nil, ErrEngineNotReady
	}
	if err := requireAdmin(tok); err != nil {
		return nil, err
	}
	if len(scopes) == 0 {
		return nil, ErrNoScopes
	}

	scopesJSON, err := encodeScopes(scopes)
	if err != nil {
		return nil, err
	}
	rec, err := e.store.CreateClient(ctx, name, scopesJSON, requestLimit)
	if err != nil {
		e.auditFailure(ctx, "client_created", AuditEvent{}, err)
		return nil, err
	}

	e.auditSuccess(ctx, "client_created", AuditEvent{ClientID: rec.ID})
	return &ClientInfo{
		ID:           rec.ID,
		Name:         rec.Name,
		Secret:       rec.Secret,
		Scopes:       append([]token.Scope(nil), scopes...),
		RequestLimit: rec.RequestLimit,
	}, nil
}

// Client loads a client's record without its secret. Admin scope required.
func (e *Engine) Client(ctx context.Context, tok *token.AccessToken, clientID string) (*ClientInfo, error) {
	if e == nil || e.store == nil {
		return nil, ErrEngineNotReady
	}
	if err := requireAdmin(tok); err != nil {
		return nil, err
	}
	rec, err := e.store.Client(ctx, clientID)
	if err != nil {
		return nil, err
	}
	scopes, err := decodeScopes(rec.ScopesJSON)
	if err != nil {
		return nil, err
	}
	return &ClientInfo{
		ID:           rec.ID,
		Name:         rec.Name,
		Scopes:       scopes,
		RequestLimit: rec.RequestLimit,
	}, nil
}

// RotateClientSecret replaces a client's secret and returns the new one.
// Admin scope required.
func (e *Engine) RotateClientSecret(ctx context.Context, tok *token.AccessToken, clientID string) (string, error) {
	if e == nil || e.store == nil {
		return "", ErrEngineNotReady
	}
	if err := requireAdmin(tok); err != nil {
		return "", err
	}
	secret, err := e.store.ChangeClientSecret(ctx, clientID)
	if err != nil {
		return "", err
	}
	e.auditSuccess(ctx, "client_secret_rotated", AuditEvent{ClientID: clientID})
	return secret, nil
}

// RenameClient changes a client's unique name. Admin scope required.
func (e *Engine) RenameClient(ctx context.Context, tok *token.AccessToken, clientID, newName string) error {
	if e == nil || e.store == nil {
		return ErrEngineNotReady
	}
	if err := requireAdmin(tok); err != nil {
		return err
	}
	rec, err := e.store.Client(ctx, clientID)
	if err != nil {
		return err
	}
	if err := e.store.ChangeClientName(ctx, clientID, rec.Name, newName); err != nil {
		return err
	}
	e.auditSuccess(ctx, "client_renamed", AuditEvent{ClientID: clientID})
	return nil
}

// ResetClientRequests zeroes a client's request counter. Admin scope
// required.
func (e *Engine) ResetClientRequests(ctx context.Context, tok *token.AccessToken, clientID string) error {
	if e == nil || e.store == nil {
		return ErrEngineNotReady
	}
	if err := requireAdmin(tok); err != nil {
		return err
	}
	if err := e.store.ResetRequestCount(ctx, clientID); err != nil {
		return err
	}
	e.auditSuccess(ctx, "client_requests_reset", AuditEvent{ClientID: clientID})
	return nil
}

// DeleteClient removes a client and its name index entry. Admin scope
// required.
func (e *Engine) DeleteClient(ctx context.Context, tok *token.AccessToken, clientID string) error {
	if e == nil || e.store == nil {
		return ErrEngineNotReady
	}
	if err := requireAdmin(tok); err != nil {
		return err
	}
	if err := e.store.DeleteClient(ctx, clientID); err != nil {
		return err
	}
	e.auditSuccess(ctx, "client_deleted", AuditEvent{ClientID: clientID})
	return nil
}
