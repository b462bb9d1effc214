package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	squirrel "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Tchelo1688/brvm-academy-iam/internal/core/domain"
	"github.com/Tchelo1688/brvm-academy-iam/internal/core/port"
)

var auditColumns = []string{
	"id",
	"actor_id",
	"actor_email",
	"actor_role",
	"action",
	"description",
	"metadata",
	"ip",
	"user_agent",
	"endpoint",
	"http_method",
	"status",
	"ts",
}

// AuditRepository implements port.AuditRepository backed by PostgreSQL.
type AuditRepository struct {
	pool    *pgxpool.Pool
	exec    pgExecutor
	builder squirrel.StatementBuilderType
}

// NewAuditRepository constructs a repository backed by any executor that satisfies pgExecutor.
func NewAuditRepository(exec pgExecutor) *AuditRepository {
	repo := &AuditRepository{
		exec:    exec,
		builder: squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
	}
	if pool, ok := exec.(*pgxpool.Pool); ok {
		repo.pool = pool
	}
	return repo
}

// Insert appends one audit entry.
func (r *AuditRepository) Insert(ctx context.Context, entry domain.AuditEntry) error {
	var metadata []byte
	if len(entry.Metadata) > 0 {
		encoded, err := json.Marshal(entry.Metadata)
		if err != nil {
			return fmt.Errorf("marshal audit metadata: %w", err)
		}
		metadata = encoded
	}

	var actorID any
	if entry.ActorID != nil && *entry.ActorID != "" {
		actorID = *entry.ActorID
	}

	stmt, args, err := r.builder.Insert("iam.audit_log").
		Columns(auditColumns...).
		Values(
			entry.ID,
			actorID,
			entry.ActorEmail,
			entry.ActorRole,
			string(entry.Action),
			entry.Description,
			metadata,
			entry.IP,
			entry.UserAgent,
			entry.Endpoint,
			entry.HTTPMethod,
			string(entry.Status),
			entry.Timestamp,
		).
		ToSql()
	if err != nil {
		return fmt.Errorf("build insert audit sql: %w", err)
	}

	if _, err := r.exec.Exec(ctx, stmt, args...); err != nil {
		return fmt.Errorf("insert audit entry: %w", err)
	}

	return nil
}

// List returns entries matching the filter, newest first, plus the total
// count for pagination.
func (r *AuditRepository) List(ctx context.Context, filter domain.AuditFilter, limit, offset int) ([]domain.AuditEntry, int64, error) {
	conditions := r.filterConditions(filter)

	countBuilder := r.builder.Select("COUNT(*)").From("iam.audit_log")
	for _, cond := range conditions {
		countBuilder = countBuilder.Where(cond)
	}

	countStmt, countArgs, err := countBuilder.ToSql()
	if err != nil {
		return nil, 0, fmt.Errorf("build count audit sql: %w", err)
	}

	var total int64
	if err := r.exec.QueryRow(ctx, countStmt, countArgs...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count audit entries: %w", err)
	}

	listBuilder := r.builder.Select(auditColumns...).
		From("iam.audit_log").
		OrderBy("ts DESC")
	for _, cond := range conditions {
		listBuilder = listBuilder.Where(cond)
	}
	if limit > 0 {
		listBuilder = listBuilder.Limit(uint64(limit))
	}
	if offset > 0 {
		listBuilder = listBuilder.Offset(uint64(offset))
	}

	stmt, args, err := listBuilder.ToSql()
	if err != nil {
		return nil, 0, fmt.Errorf("build list audit sql: %w", err)
	}

	rows, err := r.exec.Query(ctx, stmt, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("query audit entries: %w", err)
	}
	defer rows.Close()

	entries := make([]domain.AuditEntry, 0)
	for rows.Next() {
		var (
			entry    domain.AuditEntry
			actorID  sql.NullString
			action   string
			status   string
			metadata []byte
		)
		if err := rows.Scan(
			&entry.ID,
			&actorID,
			&entry.ActorEmail,
			&entry.ActorRole,
			&action,
			&entry.Description,
			&metadata,
			&entry.IP,
			&entry.UserAgent,
			&entry.Endpoint,
			&entry.HTTPMethod,
			&status,
			&entry.Timestamp,
		); err != nil {
			return nil, 0, fmt.Errorf("scan audit entry: %w", err)
		}

		entry.Action = domain.AuditAction(action)
		entry.Status = domain.AuditStatus(status)
		if actorID.Valid {
			val := actorID.String
			entry.ActorID = &val
		}
		if len(metadata) > 0 {
			if err := json.Unmarshal(metadata, &entry.Metadata); err != nil {
				return nil, 0, fmt.Errorf("unmarshal audit metadata: %w", err)
			}
		}

		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterate audit entries: %w", err)
	}

	return entries, total, nil
}

func (r *AuditRepository) filterConditions(filter domain.AuditFilter) []squirrel.Sqlizer {
	conditions := make([]squirrel.Sqlizer, 0, 6)
	if filter.ActorID != nil && *filter.ActorID != "" {
		conditions = append(conditions, squirrel.Eq{"actor_id": *filter.ActorID})
	}
	if filter.Action != nil && *filter.Action != "" {
		conditions = append(conditions, squirrel.Eq{"action": string(*filter.Action)})
	}
	if filter.Status != nil && *filter.Status != "" {
		conditions = append(conditions, squirrel.Eq{"status": string(*filter.Status)})
	}
	if filter.IP != nil && *filter.IP != "" {
		conditions = append(conditions, squirrel.Eq{"ip": *filter.IP})
	}
	if filter.From != nil {
		conditions = append(conditions, squirrel.GtOrEq{"ts": *filter.From})
	}
	if filter.To != nil {
		conditions = append(conditions, squirrel.Lt{"ts": *filter.To})
	}
	return conditions
}

// CountByActionSince counts entries for one action inside the trailing window.
func (r *AuditRepository) CountByActionSince(ctx context.Context, action domain.AuditAction, since time.Time) (int64, error) {
	stmt, args, err := r.builder.Select("COUNT(*)").
		From("iam.audit_log").
		Where(squirrel.Eq{"action": string(action)}).
		Where(squirrel.GtOrEq{"ts": since}).
		ToSql()
	if err != nil {
		return 0, fmt.Errorf("build count by action sql: %w", err)
	}

	var count int64
	if err := r.exec.QueryRow(ctx, stmt, args...).Scan(&count); err != nil {
		return 0, fmt.Errorf("count by action: %w", err)
	}

	return count, nil
}

// FailureIPsSince aggregates failed-login counts per source address,
// keeping only addresses at or above the threshold.
func (r *AuditRepository) FailureIPsSince(ctx context.Context, since time.Time, threshold int64, limit int) ([]domain.IPFailureCount, error) {
	stmt := `
		SELECT ip, COUNT(*) AS failures
		  FROM iam.audit_log
		 WHERE action = $1
		   AND ts >= $2
		   AND ip <> ''
		 GROUP BY ip
		HAVING COUNT(*) >= $3
		 ORDER BY failures DESC
		 LIMIT $4
	`

	rows, err := r.exec.Query(ctx, stmt, string(domain.ActionLoginFailed), since, threshold, limit)
	if err != nil {
		return nil, fmt.Errorf("query failure ips: %w", err)
	}
	defer rows.Close()

	results := make([]domain.IPFailureCount, 0)
	for rows.Next() {
		var item domain.IPFailureCount
		if err := rows.Scan(&item.IP, &item.Count); err != nil {
			return nil, fmt.Errorf("scan failure ip: %w", err)
		}
		results = append(results, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate failure ips: %w", err)
	}

	return results, nil
}

// ActionBreakdownSince reports per-action entry counts inside the window.
func (r *AuditRepository) ActionBreakdownSince(ctx context.Context, since time.Time) ([]domain.ActionCount, error) {
	stmt := `
		SELECT action, COUNT(*) AS occurrences
		  FROM iam.audit_log
		 WHERE ts >= $1
		 GROUP BY action
		 ORDER BY occurrences DESC
	`

	rows, err := r.exec.Query(ctx, stmt, since)
	if err != nil {
		return nil, fmt.Errorf("query action breakdown: %w", err)
	}
	defer rows.Close()

	results := make([]domain.ActionCount, 0)
	for rows.Next() {
		var (
			action string
			count  int64
		)
		if err := rows.Scan(&action, &count); err != nil {
			return nil, fmt.Errorf("scan action count: %w", err)
		}
		results = append(results, domain.ActionCount{Action: domain.AuditAction(action), Count: count})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate action breakdown: %w", err)
	}

	return results, nil
}

// PurgeBefore enforces the retention policy by deleting entries older than the cutoff.
func (r *AuditRepository) PurgeBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	stmt, args, err := r.builder.Delete("iam.audit_log").
		Where(squirrel.Lt{"ts": cutoff}).
		ToSql()
	if err != nil {
		return 0, fmt.Errorf("build purge audit sql: %w", err)
	}

	ct, err := r.exec.Exec(ctx, stmt, args...)
	if err != nil {
		return 0, fmt.Errorf("purge audit entries: %w", err)
	}

	return ct.RowsAffected(), nil
}

var _ port.AuditRepository = (*AuditRepository)(nil)
