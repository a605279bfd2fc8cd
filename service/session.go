package service

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/clearmesh/agentgate/core"
	"github.com/clearmesh/agentgate/ports"
)

const (
	sessionTTL       = 24 * time.Hour
	sessionKeyPrefix = "session:"
)

// SessionService manages authenticated identity records with a fixed
// absolute expiry. Transient backend faults never propagate: callers see a
// nil session or a false result instead.
type SessionService struct {
	store  ports.Store
	events ports.EventPublisher
	logger *slog.Logger

	now func() time.Time
}

// NewSessionService creates a session service. events may be nil.
func NewSessionService(store ports.Store, events ports.EventPublisher, logger *slog.Logger) *SessionService {
	if logger == nil {
		logger = slog.Default()
	}
	return &SessionService{store: store, events: events, logger: logger, now: time.Now}
}

// SetClock overrides the time source. Test hook.
func (s *SessionService) SetClock(now func() time.Time) { s.now = now }

// Create writes a new session with the absolute 24h expiry. The expiry is
// fixed at creation; nothing extends it.
func (s *SessionService) Create(ctx context.Context, address, tier string, privileged, registered bool) *core.Session {
	now := s.now()
	session := &core.Session{
		ID:           uuid.NewString(),
		Address:      address,
		Tier:         tier,
		IsPrivileged: privileged,
		IsRegistered: registered,
		CreatedAt:    now,
		ExpiresAt:    now.Add(sessionTTL),
	}
	if err := s.store.Set(ctx, sessionKeyPrefix+session.ID, mustJSON(session), sessionTTL); err != nil {
		s.logger.Warn("session write failed", "session_id", session.ID, "error", err)
	}
	return session
}

// Get returns the session or nil when unknown or expired. Reading an expired
// record deletes it opportunistically.
func (s *SessionService) Get(ctx context.Context, sessionID string) *core.Session {
	if sessionID == "" {
		return nil
	}
	raw, ok, err := s.store.Get(ctx, sessionKeyPrefix+sessionID)
	if err != nil {
		s.logger.Warn("session read failed", "session_id", sessionID, "error", err)
		return nil
	}
	if !ok {
		return nil
	}
	var session core.Session
	if err := unmarshalJSON(raw, &session); err != nil {
		s.logger.Warn("session record corrupt", "session_id", sessionID, "error", err)
		return nil
	}
	if !s.now().Before(session.ExpiresAt) {
		if _, err := s.store.Delete(ctx, sessionKeyPrefix+sessionID); err != nil {
			s.logger.Warn("expired session delete failed", "session_id", sessionID, "error", err)
		}
		return nil
	}
	return &session
}

// Invalidate deletes the session and reports whether a record existed. It is
// idempotent and publishes an invalidation event when something was removed.
func (s *SessionService) Invalidate(ctx context.Context, sessionID string) bool {
	session := s.Get(ctx, sessionID)
	existed, err := s.store.Delete(ctx, sessionKeyPrefix+sessionID)
	if err != nil {
		s.logger.Warn("session delete failed", "session_id", sessionID, "error", err)
		return false
	}
	if existed && session != nil && s.events != nil {
		if err := s.events.PublishSessionInvalidated(ctx, session.Address, sessionID); err != nil {
			s.logger.Warn("session invalidation publish failed", "session_id", sessionID, "error", err)
		}
	}
	return existed
}

// InvalidateAllForWallet removes every session belonging to address
// (case-insensitive) and returns how many were removed. Used on credential
// rotation.
func (s *SessionService) InvalidateAllForWallet(ctx context.Context, address string) int {
	keys, err := s.store.Keys(ctx, sessionKeyPrefix)
	if err != nil {
		s.logger.Warn("session scan failed", "error", err)
		return 0
	}
	count := 0
	for _, key := range keys {
		raw, ok, err := s.store.Get(ctx, key)
		if err != nil || !ok {
			continue
		}
		var session core.Session
		if err := unmarshalJSON(raw, &session); err != nil {
			continue
		}
		if !strings.EqualFold(session.Address, address) {
			continue
		}
		if s.Invalidate(ctx, strings.TrimPrefix(key, sessionKeyPrefix)) {
			count++
		}
	}
	return count
}

// UpdateRegistrationFlag flips isRegistered false to true, the one permitted
// post-creation mutation. It preserves the original absolute expiry and is a
// no-op when the session is absent or already registered.
func (s *SessionService) UpdateRegistrationFlag(ctx context.Context, sessionID string) {
	session := s.Get(ctx, sessionID)
	if session == nil || session.IsRegistered {
		return
	}
	session.IsRegistered = true
	remaining := session.ExpiresAt.Sub(s.now())
	if remaining <= 0 {
		return
	}
	if err := s.store.Set(ctx, sessionKeyPrefix+sessionID, mustJSON(session), remaining); err != nil {
		s.logger.Warn("session registration update failed", "session_id", sessionID, "error", err)
	}
}
