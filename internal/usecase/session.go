package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/Tchelo1688/brvm-academy-iam/internal/core/domain"
	"github.com/Tchelo1688/brvm-academy-iam/internal/core/port"
	"github.com/Tchelo1688/brvm-academy-iam/internal/infra/config"
	"github.com/Tchelo1688/brvm-academy-iam/internal/repository"
)

// ErrSessionNotFound indicates the session does not exist or belongs to
// another user.
var ErrSessionNotFound = errors.New("session not found")

// SessionService lists and revokes a user's active sessions.
type SessionService struct {
	cfg      *config.AppConfig
	sessions port.SessionRepository
	audit    *AuditService
	events   port.EventPublisher
	logger   *zap.Logger
	now      func() time.Time
}

// NewSessionService constructs a SessionService instance.
func NewSessionService(
	cfg *config.AppConfig,
	sessions port.SessionRepository,
	audit *AuditService,
	events port.EventPublisher,
	logger *zap.Logger,
) *SessionService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SessionService{
		cfg:      cfg,
		sessions: sessions,
		audit:    audit,
		events:   events,
		logger:   logger,
		now:      time.Now,
	}
}

// WithClock allows injection of a custom clock (primarily for testing).
func (s *SessionService) WithClock(now func() time.Time) *SessionService {
	if now != nil {
		s.now = now
	}
	return s
}

// List returns the user's sessions, newest first. Expired sessions that
// have not been swept yet are filtered out.
func (s *SessionService) List(ctx context.Context, userID string) ([]domain.Session, error) {
	sessions, err := s.sessions.ListByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}

	now := s.now().UTC()
	active := sessions[:0]
	for _, session := range sessions {
		if session.IsActive(now) {
			active = append(active, session)
		}
	}

	return active, nil
}

// Revoke deletes one session owned by the user.
func (s *SessionService) Revoke(ctx context.Context, user domain.User, sessionID string, meta RequestMeta) error {
	deleted, err := s.sessions.Delete(ctx, user.ID, sessionID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrSessionNotFound
		}
		return fmt.Errorf("delete session: %w", err)
	}
	if !deleted {
		return ErrSessionNotFound
	}

	s.recordSessionAudit(ctx, user, domain.ActionSessionRevoke, map[string]any{"sessionId": sessionID}, meta)
	s.publishRevoked(ctx, user.ID, sessionID, "user_revoked", meta)

	return nil
}

// RevokeAll deletes every session for the user, current one included. The
// caller is expected to force re-authentication afterwards.
func (s *SessionService) RevokeAll(ctx context.Context, user domain.User, meta RequestMeta) (int, error) {
	revoked, err := s.sessions.DeleteAllForUser(ctx, user.ID)
	if err != nil {
		return 0, fmt.Errorf("delete sessions: %w", err)
	}

	s.recordSessionAudit(ctx, user, domain.ActionSessionRevokeAll, map[string]any{"revoked": revoked}, meta)
	s.publishRevoked(ctx, user.ID, "", "user_revoked_all", meta)

	return revoked, nil
}

// PurgeExpired sweeps sessions past their expiry. Called from the
// background scheduler.
func (s *SessionService) PurgeExpired(ctx context.Context) (int64, error) {
	purged, err := s.sessions.DeleteExpired(ctx, s.now().UTC())
	if err != nil {
		return 0, fmt.Errorf("purge expired sessions: %w", err)
	}
	if purged > 0 {
		s.logger.Info("purged expired sessions", zap.Int64("count", purged))
	}
	return purged, nil
}

func (s *SessionService) publishRevoked(ctx context.Context, userID, sessionID, reason string, meta RequestMeta) {
	if s.events == nil {
		return
	}
	event := domain.SessionRevokedEvent{
		SessionID: sessionID,
		UserID:    userID,
		RevokedAt: s.now().UTC(),
		Reason:    reason,
	}
	if meta.IP != "" {
		ip := meta.IP
		event.IP = &ip
	}
	if err := s.events.PublishSessionRevoked(ctx, event); err != nil {
		s.logger.Warn("publish session revoked event", zap.Error(err))
	}
}

func (s *SessionService) recordSessionAudit(ctx context.Context, user domain.User, action domain.AuditAction, metadata map[string]any, meta RequestMeta) {
	s.audit.Record(ctx, domain.AuditEntry{
		ActorID:    &user.ID,
		ActorEmail: user.Email,
		ActorRole:  string(user.Role),
		Action:     action,
		Metadata:   metadata,
		IP:         meta.IP,
		UserAgent:  meta.UserAgent,
		Endpoint:   meta.Endpoint,
		HTTPMethod: meta.Method,
		Status:     domain.AuditSuccess,
	})
}
