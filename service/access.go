package service

import (
	"context"
	"strings"

	"github.com/clearmesh/agentgate/core"
)

// AccessResolver bridges a raw credential into an authorization context by
// consulting the session store. The result is derived fresh per request and
// never persisted.
type AccessResolver struct {
	sessions *SessionService
}

// NewAccessResolver creates a resolver over the session service.
func NewAccessResolver(sessions *SessionService) *AccessResolver {
	return &AccessResolver{sessions: sessions}
}

// Resolve turns a session id into an AccessContext. An empty or unknown
// credential resolves to the unauthenticated zero identity, never an error.
func (r *AccessResolver) Resolve(ctx context.Context, sessionID string) core.AccessContext {
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return core.Anonymous()
	}
	session := r.sessions.Get(ctx, sessionID)
	if session == nil {
		return core.Anonymous()
	}
	return core.AccessContext{
		Address:       session.Address,
		Authenticated: true,
		Registered:    session.IsRegistered,
		SessionID:     session.ID,
	}
}
