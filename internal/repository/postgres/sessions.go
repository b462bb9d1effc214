package postgres

import (
	"context"
	"fmt"
	"time"

	squirrel "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Tchelo1688/brvm-academy-iam/internal/core/domain"
	"github.com/Tchelo1688/brvm-academy-iam/internal/core/port"
	"github.com/Tchelo1688/brvm-academy-iam/internal/repository"
)

// SessionRepository implements port.SessionRepository backed by PostgreSQL.
type SessionRepository struct {
	pool    *pgxpool.Pool
	exec    pgExecutor
	builder squirrel.StatementBuilderType
}

// NewSessionRepository constructs a repository backed by any executor that satisfies pgExecutor.
func NewSessionRepository(exec pgExecutor) *SessionRepository {
	repo := &SessionRepository{
		exec:    exec,
		builder: squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
	}
	if pool, ok := exec.(*pgxpool.Pool); ok {
		repo.pool = pool
	}
	return repo
}

// WithTx returns a repository instance that executes statements within the supplied transaction.
func (r *SessionRepository) WithTx(tx pgx.Tx) *SessionRepository {
	if tx == nil {
		return r
	}
	return &SessionRepository{
		pool:    r.pool,
		exec:    tx,
		builder: r.builder,
	}
}

// Add inserts the session and evicts the oldest sessions beyond maxPerUser
// in the same transaction, so the per-user ceiling holds under concurrent
// logins.
func (r *SessionRepository) Add(ctx context.Context, session domain.Session, maxPerUser int) (int, error) {
	run := func(exec pgExecutor) (int, error) {
		stmt, args, err := r.builder.Insert("iam.user_sessions").
			Columns("id", "user_id", "ip", "user_agent", "created_at", "expires_at").
			Values(session.ID, session.UserID, session.IP, session.UserAgent, session.CreatedAt, session.ExpiresAt).
			ToSql()
		if err != nil {
			return 0, fmt.Errorf("build insert session sql: %w", err)
		}

		if _, err := exec.Exec(ctx, stmt, args...); err != nil {
			return 0, fmt.Errorf("insert session: %w", err)
		}

		if maxPerUser <= 0 {
			return 0, nil
		}

		evict := `
			DELETE FROM iam.user_sessions
			 WHERE user_id = $1
			   AND id NOT IN (
					SELECT id
					  FROM iam.user_sessions
					 WHERE user_id = $1
					 ORDER BY created_at DESC, id DESC
					 LIMIT $2
			   )
		`

		ct, err := exec.Exec(ctx, evict, session.UserID, maxPerUser)
		if err != nil {
			return 0, fmt.Errorf("evict oldest sessions: %w", err)
		}

		return int(ct.RowsAffected()), nil
	}

	if r.pool == nil {
		return run(r.exec)
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("begin add session tx: %w", err)
	}
	defer tx.Rollback(ctx)

	evicted, err := run(tx)
	if err != nil {
		return 0, err
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("commit add session tx: %w", err)
	}

	return evicted, nil
}

// Get retrieves a session by identifier.
func (r *SessionRepository) Get(ctx context.Context, id string) (*domain.Session, error) {
	stmt, args, err := r.builder.Select("id", "user_id", "ip", "user_agent", "created_at", "expires_at").
		From("iam.user_sessions").
		Where(squirrel.Eq{"id": id}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select session sql: %w", err)
	}

	var session domain.Session
	if err := r.exec.QueryRow(ctx, stmt, args...).Scan(
		&session.ID,
		&session.UserID,
		&session.IP,
		&session.UserAgent,
		&session.CreatedAt,
		&session.ExpiresAt,
	); err != nil {
		if err == pgx.ErrNoRows {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("scan session: %w", err)
	}

	return &session, nil
}

// ListByUser returns the user's sessions ordered newest first.
func (r *SessionRepository) ListByUser(ctx context.Context, userID string) ([]domain.Session, error) {
	stmt, args, err := r.builder.Select("id", "user_id", "ip", "user_agent", "created_at", "expires_at").
		From("iam.user_sessions").
		Where(squirrel.Eq{"user_id": userID}).
		OrderBy("created_at DESC").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build list sessions sql: %w", err)
	}

	rows, err := r.exec.Query(ctx, stmt, args...)
	if err != nil {
		return nil, fmt.Errorf("query sessions: %w", err)
	}
	defer rows.Close()

	sessions := make([]domain.Session, 0)
	for rows.Next() {
		var session domain.Session
		if err := rows.Scan(
			&session.ID,
			&session.UserID,
			&session.IP,
			&session.UserAgent,
			&session.CreatedAt,
			&session.ExpiresAt,
		); err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		sessions = append(sessions, session)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate sessions: %w", err)
	}

	return sessions, nil
}

// Delete removes one session owned by the user.
func (r *SessionRepository) Delete(ctx context.Context, userID string, id string) (bool, error) {
	stmt, args, err := r.builder.Delete("iam.user_sessions").
		Where(squirrel.Eq{"user_id": userID, "id": id}).
		ToSql()
	if err != nil {
		return false, fmt.Errorf("build delete session sql: %w", err)
	}

	ct, err := r.exec.Exec(ctx, stmt, args...)
	if err != nil {
		return false, fmt.Errorf("delete session: %w", err)
	}

	return ct.RowsAffected() > 0, nil
}

// DeleteAllForUser removes every session belonging to the user.
func (r *SessionRepository) DeleteAllForUser(ctx context.Context, userID string) (int, error) {
	stmt, args, err := r.builder.Delete("iam.user_sessions").
		Where(squirrel.Eq{"user_id": userID}).
		ToSql()
	if err != nil {
		return 0, fmt.Errorf("build delete sessions sql: %w", err)
	}

	ct, err := r.exec.Exec(ctx, stmt, args...)
	if err != nil {
		return 0, fmt.Errorf("delete sessions: %w", err)
	}

	return int(ct.RowsAffected()), nil
}

// DeleteExpired reaps sessions whose expiry is in the past.
func (r *SessionRepository) DeleteExpired(ctx context.Context, before time.Time) (int64, error) {
	stmt, args, err := r.builder.Delete("iam.user_sessions").
		Where(squirrel.LtOrEq{"expires_at": before}).
		ToSql()
	if err != nil {
		return 0, fmt.Errorf("build delete expired sessions sql: %w", err)
	}

	ct, err := r.exec.Exec(ctx, stmt, args...)
	if err != nil {
		return 0, fmt.Errorf("delete expired sessions: %w", err)
	}

	return ct.RowsAffected(), nil
}

var _ port.SessionRepository = (*SessionRepository)(nil)
