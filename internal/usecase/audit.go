package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	uuid "github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Tchelo1688/brvm-academy-iam/internal/core/domain"
	"github.com/Tchelo1688/brvm-academy-iam/internal/core/port"
	"github.com/Tchelo1688/brvm-academy-iam/internal/infra/config"
)

const (
	maxUserAgentLength = 256

	// suspiciousIPThreshold is the failed-login count that flags a source
	// address in the security overview.
	suspiciousIPThreshold = 10
	suspiciousIPLimit     = 20
)

// ErrUnknownAuditAction indicates the action is outside the closed action set.
var ErrUnknownAuditAction = errors.New("unknown audit action")

// RequestMeta carries request attribution shared by every audited operation.
type RequestMeta struct {
	IP        string
	UserAgent string
	Endpoint  string
	Method    string
}

// AuditService appends and queries the security audit log.
type AuditService struct {
	cfg    *config.AppConfig
	repo   port.AuditRepository
	logger *zap.Logger
}

// NewAuditService constructs an AuditService instance.
func NewAuditService(cfg *config.AppConfig, repo port.AuditRepository, logger *zap.Logger) *AuditService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AuditService{cfg: cfg, repo: repo, logger: logger}
}

// Record appends an audit entry. The append is best-effort: storage
// failures are logged and swallowed so security logging never becomes an
// availability hazard for the calling flow.
func (s *AuditService) Record(ctx context.Context, entry domain.AuditEntry) {
	if !entry.Action.Valid() {
		s.logger.Error("dropping audit entry with unknown action", zap.String("action", string(entry.Action)))
		return
	}

	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now().UTC()
	}
	if entry.Status == "" {
		entry.Status = domain.AuditSuccess
	}
	if len(entry.UserAgent) > maxUserAgentLength {
		entry.UserAgent = entry.UserAgent[:maxUserAgentLength]
	}
	entry.Metadata = sanitizeMetadata(entry.Metadata)

	if err := s.repo.Insert(ctx, entry); err != nil {
		s.logger.Error("audit append failed",
			zap.String("action", string(entry.Action)),
			zap.Error(err),
		)
	}
}

// sanitizeMetadata strips credential material from opaque payloads before
// they reach storage.
func sanitizeMetadata(metadata map[string]any) map[string]any {
	if len(metadata) == 0 {
		return nil
	}

	safe := make(map[string]any, len(metadata))
	for key, value := range metadata {
		switch key {
		case "password", "currentPassword", "newPassword", "twoFactorSecret", "token":
			continue
		}
		safe[key] = value
	}
	return safe
}

// Query returns entries matching the filter plus the total count.
func (s *AuditService) Query(ctx context.Context, filter domain.AuditFilter, limit, offset int) ([]domain.AuditEntry, int64, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	if filter.Action != nil && !filter.Action.Valid() {
		return nil, 0, ErrUnknownAuditAction
	}

	entries, total, err := s.repo.List(ctx, filter, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("query audit log: %w", err)
	}

	return entries, total, nil
}

// SecurityOverview computes failed-login aggregates at read time over the
// audit log. No separate counters are maintained.
func (s *AuditService) SecurityOverview(ctx context.Context) (*domain.SecurityOverview, error) {
	now := time.Now().UTC()
	dayAgo := now.Add(-24 * time.Hour)
	weekAgo := now.Add(-7 * 24 * time.Hour)

	failures24h, err := s.repo.CountByActionSince(ctx, domain.ActionLoginFailed, dayAgo)
	if err != nil {
		return nil, fmt.Errorf("count 24h failures: %w", err)
	}

	failures7d, err := s.repo.CountByActionSince(ctx, domain.ActionLoginFailed, weekAgo)
	if err != nil {
		return nil, fmt.Errorf("count 7d failures: %w", err)
	}

	locked7d, err := s.repo.CountByActionSince(ctx, domain.ActionLoginLocked, weekAgo)
	if err != nil {
		return nil, fmt.Errorf("count 7d lockouts: %w", err)
	}

	suspicious, err := s.repo.FailureIPsSince(ctx, dayAgo, suspiciousIPThreshold, suspiciousIPLimit)
	if err != nil {
		return nil, fmt.Errorf("aggregate suspicious ips: %w", err)
	}

	breakdown, err := s.repo.ActionBreakdownSince(ctx, weekAgo)
	if err != nil {
		return nil, fmt.Errorf("aggregate action breakdown: %w", err)
	}

	return &domain.SecurityOverview{
		FailedLogins24h:  failures24h,
		FailedLogins7d:   failures7d,
		LockedAccounts7d: locked7d,
		SuspiciousIPs:    suspicious,
		ActionBreakdown:  breakdown,
		GeneratedAt:      now,
	}, nil
}

// PurgeExpired enforces the retention policy, deleting entries older than
// the configured horizon.
func (s *AuditService) PurgeExpired(ctx context.Context) (int64, error) {
	days := s.cfg.Audit.RetentionDays
	if days <= 0 {
		days = 90
	}

	cutoff := time.Now().UTC().AddDate(0, 0, -days)
	purged, err := s.repo.PurgeBefore(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("purge audit log: %w", err)
	}

	if purged > 0 {
		s.logger.Info("audit retention sweep", zap.Int64("purged", purged), zap.Time("cutoff", cutoff))
	}

	return purged, nil
}
