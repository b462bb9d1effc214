package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/Tchelo1688/brvm-academy-iam/internal/core/domain"
	"github.com/Tchelo1688/brvm-academy-iam/internal/core/port"
	"github.com/Tchelo1688/brvm-academy-iam/internal/infra/config"
	"github.com/Tchelo1688/brvm-academy-iam/internal/infra/security"
	"github.com/Tchelo1688/brvm-academy-iam/internal/repository"
)

const resetTokenBytes = 32

var (
	// ErrWrongPassword indicates the supplied current password did not match.
	ErrWrongPassword = errors.New("current password is incorrect")
	// ErrPasswordReused indicates the new password matches a recent one.
	ErrPasswordReused = errors.New("password was used recently")
	// ErrInvalidResetToken indicates the reset token is unknown or expired.
	ErrInvalidResetToken = errors.New("invalid or expired reset token")
)

// PasswordService handles credential rotation and recovery.
type PasswordService struct {
	cfg               *config.AppConfig
	users             port.UserRepository
	sessions          port.SessionRepository
	auth              *AuthService
	audit             *AuditService
	events            port.EventPublisher
	passwordValidator port.PasswordPolicyValidator
	logger            *zap.Logger
	now               func() time.Time
}

// NewPasswordService constructs a PasswordService instance.
func NewPasswordService(
	cfg *config.AppConfig,
	users port.UserRepository,
	sessions port.SessionRepository,
	auth *AuthService,
	audit *AuditService,
	events port.EventPublisher,
	passwordValidator port.PasswordPolicyValidator,
	logger *zap.Logger,
) *PasswordService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PasswordService{
		cfg:               cfg,
		users:             users,
		sessions:          sessions,
		auth:              auth,
		audit:             audit,
		events:            events,
		passwordValidator: passwordValidator,
		logger:            logger,
		now:               time.Now,
	}
}

// WithClock allows injection of a custom clock (primarily for testing).
func (s *PasswordService) WithClock(now func() time.Time) *PasswordService {
	if now != nil {
		s.now = now
	}
	return s
}

// ChangeResult is returned after a successful password change. All other
// sessions are revoked; the caller keeps working on the fresh session.
type ChangeResult struct {
	Token           string
	SessionID       string
	SessionsRevoked int
}

// Change rotates the password for an authenticated user. The new password
// must pass the policy and must differ from the last few passwords.
func (s *PasswordService) Change(ctx context.Context, user domain.User, currentPassword, newPassword string, meta RequestMeta) (*ChangeResult, error) {
	ok, err := security.VerifyPassword(currentPassword, user.PasswordHash)
	if err != nil {
		return nil, fmt.Errorf("verify password: %w", err)
	}
	if !ok {
		s.recordPasswordAudit(ctx, user, domain.ActionPasswordChange, domain.AuditFailure, "current password mismatch", meta)
		return nil, ErrWrongPassword
	}

	if err := s.passwordValidator.Validate(newPassword, domain.PasswordContext{Name: user.Name, Email: user.Email}); err != nil {
		return nil, err
	}

	if err := s.checkReuse(ctx, user.ID, user.PasswordHash, newPassword); err != nil {
		return nil, err
	}

	hash, err := security.HashPassword(newPassword)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	now := s.now().UTC()
	if err := s.rotatePassword(ctx, user.ID, hash, now); err != nil {
		return nil, err
	}

	revoked, err := s.sessions.DeleteAllForUser(ctx, user.ID)
	if err != nil {
		return nil, fmt.Errorf("revoke sessions: %w", err)
	}

	user.PasswordHash = hash
	user.PasswordChangedAt = now

	token, session, err := s.auth.StartSession(ctx, user, now, meta)
	if err != nil {
		return nil, err
	}

	s.recordPasswordAudit(ctx, user, domain.ActionPasswordChange, domain.AuditSuccess, "", meta)

	if s.events != nil {
		event := domain.PasswordChangedEvent{
			UserID:          user.ID,
			ChangedAt:       now,
			SessionsRevoked: revoked,
		}
		if meta.IP != "" {
			ip := meta.IP
			event.IP = &ip
		}
		if err := s.events.PublishPasswordChanged(ctx, event); err != nil {
			s.logger.Warn("publish password changed event", zap.Error(err))
		}
	}

	return &ChangeResult{
		Token:           token,
		SessionID:       session.ID,
		SessionsRevoked: revoked,
	}, nil
}

// RequestReset issues a reset token for the given email. The return value
// never reveals whether the email exists; unknown addresses yield an empty
// token and no error.
func (s *PasswordService) RequestReset(ctx context.Context, email string, meta RequestMeta) (string, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return "", fmt.Errorf("email is required")
	}

	user, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return "", nil
		}
		return "", fmt.Errorf("lookup user: %w", err)
	}

	token, err := security.GenerateSecureToken(resetTokenBytes)
	if err != nil {
		return "", fmt.Errorf("generate reset token: %w", err)
	}

	now := s.now().UTC()
	expiresAt := now.Add(s.resetTokenTTL())
	if err := s.users.SetPasswordReset(ctx, user.ID, security.HashToken(token), expiresAt); err != nil {
		return "", fmt.Errorf("store reset token: %w", err)
	}

	s.recordPasswordAudit(ctx, *user, domain.ActionPasswordResetRequest, domain.AuditSuccess, "", meta)

	return token, nil
}

// ResetPassword consumes a reset token and sets a new password. All
// sessions are revoked; the user must log in with the new password.
func (s *PasswordService) ResetPassword(ctx context.Context, token, newPassword string, meta RequestMeta) error {
	token = strings.TrimSpace(token)
	if token == "" {
		return ErrInvalidResetToken
	}

	now := s.now().UTC()
	user, err := s.users.GetByResetTokenHash(ctx, security.HashToken(token), now)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrInvalidResetToken
		}
		return fmt.Errorf("lookup reset token: %w", err)
	}

	if err := s.passwordValidator.Validate(newPassword, domain.PasswordContext{Name: user.Name, Email: user.Email}); err != nil {
		return err
	}

	if err := s.checkReuse(ctx, user.ID, user.PasswordHash, newPassword); err != nil {
		return err
	}

	hash, err := security.HashPassword(newPassword)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}

	if err := s.rotatePassword(ctx, user.ID, hash, now); err != nil {
		return err
	}

	if err := s.users.ClearPasswordReset(ctx, user.ID); err != nil {
		s.logger.Warn("clear reset token", zap.Error(err))
	}

	revoked, err := s.sessions.DeleteAllForUser(ctx, user.ID)
	if err != nil {
		return fmt.Errorf("revoke sessions: %w", err)
	}

	s.recordPasswordAudit(ctx, *user, domain.ActionPasswordResetSuccess, domain.AuditSuccess, "", meta)

	if s.events != nil {
		event := domain.PasswordChangedEvent{
			UserID:          user.ID,
			ChangedAt:       now,
			SessionsRevoked: revoked,
		}
		if meta.IP != "" {
			ip := meta.IP
			event.IP = &ip
		}
		if err := s.events.PublishPasswordChanged(ctx, event); err != nil {
			s.logger.Warn("publish password changed event", zap.Error(err))
		}
	}

	return nil
}

// checkReuse rejects a candidate matching the current hash or any retained
// historical hash.
func (s *PasswordService) checkReuse(ctx context.Context, userID, currentHash, candidate string) error {
	if match, err := security.VerifyPassword(candidate, currentHash); err != nil {
		return fmt.Errorf("compare with current password: %w", err)
	} else if match {
		return ErrPasswordReused
	}

	history, err := s.users.ListPasswordHistory(ctx, userID, s.historyDepth())
	if err != nil {
		return fmt.Errorf("list password history: %w", err)
	}

	for _, entry := range history {
		match, err := security.VerifyPassword(candidate, entry.PasswordHash)
		if err != nil {
			return fmt.Errorf("compare with password history: %w", err)
		}
		if match {
			return ErrPasswordReused
		}
	}

	return nil
}

func (s *PasswordService) rotatePassword(ctx context.Context, userID, hash string, now time.Time) error {
	if err := s.users.UpdatePassword(ctx, userID, hash, now); err != nil {
		return fmt.Errorf("update password: %w", err)
	}
	if err := s.users.AddPasswordHistory(ctx, userID, hash, now); err != nil {
		return fmt.Errorf("record password history: %w", err)
	}
	if err := s.users.TrimPasswordHistory(ctx, userID, s.historyDepth()); err != nil {
		s.logger.Warn("trim password history", zap.Error(err))
	}
	return nil
}

func (s *PasswordService) recordPasswordAudit(ctx context.Context, user domain.User, action domain.AuditAction, status domain.AuditStatus, description string, meta RequestMeta) {
	s.audit.Record(ctx, domain.AuditEntry{
		ActorID:     &user.ID,
		ActorEmail:  user.Email,
		ActorRole:   string(user.Role),
		Action:      action,
		Description: description,
		IP:          meta.IP,
		UserAgent:   meta.UserAgent,
		Endpoint:    meta.Endpoint,
		HTTPMethod:  meta.Method,
		Status:      status,
	})
}

func (s *PasswordService) historyDepth() int {
	if s.cfg.Password.HistoryDepth > 0 {
		return s.cfg.Password.HistoryDepth
	}
	return 5
}

func (s *PasswordService) resetTokenTTL() time.Duration {
	if s.cfg.Password.ResetTokenTTL > 0 {
		return s.cfg.Password.ResetTokenTTL
	}
	return time.Hour
}
