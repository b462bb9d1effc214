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
)

var (
	// ErrTwoFactorAlreadyEnabled indicates 2FA is already active on the account.
	ErrTwoFactorAlreadyEnabled = errors.New("two-factor authentication already enabled")
	// ErrTwoFactorNotConfigured indicates no pending secret exists to verify.
	ErrTwoFactorNotConfigured = errors.New("two-factor setup not started")
	// ErrTwoFactorNotEnabled indicates 2FA is not active on the account.
	ErrTwoFactorNotEnabled = errors.New("two-factor authentication not enabled")
)

// TwoFactorSetup carries the material the user needs to enroll an
// authenticator app. Backup codes are shown in plain text exactly once.
type TwoFactorSetup struct {
	Secret          string
	ProvisioningURI string
	BackupCodes     []string
}

// TwoFactorService manages TOTP enrollment and teardown.
type TwoFactorService struct {
	cfg    *config.AppConfig
	users  port.UserRepository
	audit  *AuditService
	events port.EventPublisher
	logger *zap.Logger
	now    func() time.Time
}

// NewTwoFactorService constructs a TwoFactorService instance.
func NewTwoFactorService(
	cfg *config.AppConfig,
	users port.UserRepository,
	audit *AuditService,
	events port.EventPublisher,
	logger *zap.Logger,
) *TwoFactorService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TwoFactorService{
		cfg:    cfg,
		users:  users,
		audit:  audit,
		events: events,
		logger: logger,
		now:    time.Now,
	}
}

// WithClock allows injection of a custom clock (primarily for testing).
func (s *TwoFactorService) WithClock(now func() time.Time) *TwoFactorService {
	if now != nil {
		s.now = now
	}
	return s
}

// Setup generates a fresh secret and backup codes, stores them as pending,
// and returns the enrollment material. Enrollment only takes effect after
// VerifyEnable confirms the user's authenticator produces matching codes.
func (s *TwoFactorService) Setup(ctx context.Context, user domain.User) (*TwoFactorSetup, error) {
	if user.TwoFactorEnabled {
		return nil, ErrTwoFactorAlreadyEnabled
	}

	secret, err := security.GenerateTOTPSecret()
	if err != nil {
		return nil, fmt.Errorf("generate totp secret: %w", err)
	}

	codes, err := security.GenerateBackupCodes()
	if err != nil {
		return nil, fmt.Errorf("generate backup codes: %w", err)
	}

	now := s.now().UTC()
	if err := s.users.SetPendingTwoFactorSecret(ctx, user.ID, secret); err != nil {
		return nil, fmt.Errorf("store pending secret: %w", err)
	}

	hashes := make([]string, len(codes))
	for i, code := range codes {
		hashes[i] = security.HashToken(code)
	}
	if err := s.users.ReplaceBackupCodes(ctx, user.ID, hashes, now); err != nil {
		return nil, fmt.Errorf("store backup codes: %w", err)
	}

	return &TwoFactorSetup{
		Secret:          secret,
		ProvisioningURI: security.TOTPProvisioningURI(secret, s.issuer(), user.Email),
		BackupCodes:     codes,
	}, nil
}

// VerifyEnable promotes the pending secret once the user proves their
// authenticator generates valid codes.
func (s *TwoFactorService) VerifyEnable(ctx context.Context, user domain.User, code string, meta RequestMeta) error {
	if user.TwoFactorEnabled {
		return ErrTwoFactorAlreadyEnabled
	}
	if user.TwoFactorPending == nil || *user.TwoFactorPending == "" {
		return ErrTwoFactorNotConfigured
	}

	now := s.now().UTC()
	valid, err := security.VerifyTOTP(*user.TwoFactorPending, strings.TrimSpace(code), now)
	if err != nil {
		return fmt.Errorf("verify totp: %w", err)
	}
	if !valid {
		s.recordTwoFactorAudit(ctx, user, domain.ActionTwoFactorFailed, domain.AuditFailure, "enrollment code mismatch", meta)
		return ErrInvalidTwoFactorCode
	}

	if err := s.users.EnableTwoFactor(ctx, user.ID, *user.TwoFactorPending, now); err != nil {
		return fmt.Errorf("enable two-factor: %w", err)
	}

	s.recordTwoFactorAudit(ctx, user, domain.ActionTwoFactorEnabled, domain.AuditSuccess, "", meta)
	s.publishChange(ctx, user.ID, true, now, meta)

	return nil
}

// Disable turns off 2FA after re-verifying the account password, and
// discards the secret and any remaining backup codes.
func (s *TwoFactorService) Disable(ctx context.Context, user domain.User, password string, meta RequestMeta) error {
	if !user.TwoFactorEnabled {
		return ErrTwoFactorNotEnabled
	}

	ok, err := security.VerifyPassword(password, user.PasswordHash)
	if err != nil {
		return fmt.Errorf("verify password: %w", err)
	}
	if !ok {
		s.recordTwoFactorAudit(ctx, user, domain.ActionTwoFactorDisabled, domain.AuditFailure, "password mismatch", meta)
		return ErrWrongPassword
	}

	now := s.now().UTC()
	if err := s.users.DisableTwoFactor(ctx, user.ID); err != nil {
		return fmt.Errorf("disable two-factor: %w", err)
	}

	s.recordTwoFactorAudit(ctx, user, domain.ActionTwoFactorDisabled, domain.AuditSuccess, "", meta)
	s.publishChange(ctx, user.ID, false, now, meta)

	return nil
}

func (s *TwoFactorService) publishChange(ctx context.Context, userID string, enabled bool, now time.Time, meta RequestMeta) {
	if s.events == nil {
		return
	}
	event := domain.TwoFactorChangedEvent{
		UserID:    userID,
		Enabled:   enabled,
		ChangedAt: now,
	}
	if meta.IP != "" {
		ip := meta.IP
		event.IP = &ip
	}
	if err := s.events.PublishTwoFactorChanged(ctx, event); err != nil {
		s.logger.Warn("publish two-factor changed event", zap.Error(err))
	}
}

func (s *TwoFactorService) recordTwoFactorAudit(ctx context.Context, user domain.User, action domain.AuditAction, status domain.AuditStatus, description string, meta RequestMeta) {
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

func (s *TwoFactorService) issuer() string {
	if s.cfg.TwoFactor.Issuer != "" {
		return s.cfg.TwoFactor.Issuer
	}
	return "BRVMAcademy"
}
