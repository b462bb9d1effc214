package port

import (
	"context"
	"time"

	"github.com/Tchelo1688/brvm-academy-iam/internal/core/domain"
)

// AuditRepository exposes append and read-time-aggregation behavior for
// the security audit log.
type AuditRepository interface {
	Insert(ctx context.Context, entry domain.AuditEntry) error
	List(ctx context.Context, filter domain.AuditFilter, limit, offset int) ([]domain.AuditEntry, int64, error)
	CountByActionSince(ctx context.Context, action domain.AuditAction, since time.Time) (int64, error)
	// FailureIPsSince lists source addresses whose failed-login count in
	// the window meets the threshold, ordered by count descending.
	FailureIPsSince(ctx context.Context, since time.Time, threshold int64, limit int) ([]domain.IPFailureCount, error)
	ActionBreakdownSince(ctx context.Context, since time.Time) ([]domain.ActionCount, error)
	PurgeBefore(ctx context.Context, cutoff time.Time) (int64, error)
}
