package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	squirrel "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Tchelo1688/brvm-academy-iam/internal/core/domain"
	"github.com/Tchelo1688/brvm-academy-iam/internal/core/port"
	"github.com/Tchelo1688/brvm-academy-iam/internal/repository"
)

var userColumns = []string{
	"id",
	"name",
	"email",
	"password_hash",
	"country",
	"role",
	"is_active",
	"is_email_verified",
	"two_factor_enabled",
	"two_factor_secret",
	"two_factor_pending",
	"login_attempts",
	"lock_until",
	"last_login_at",
	"last_login_ip",
	"password_changed_at",
	"created_at",
	"updated_at",
}

// UserRepository implements port.UserRepository using PostgreSQL.
type UserRepository struct {
	pool    *pgxpool.Pool
	exec    pgExecutor
	builder squirrel.StatementBuilderType
}

// NewUserRepository constructs a repository backed by any executor that satisfies pgExecutor.
func NewUserRepository(exec pgExecutor) *UserRepository {
	repo := &UserRepository{
		exec:    exec,
		builder: squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
	}
	if pool, ok := exec.(*pgxpool.Pool); ok {
		repo.pool = pool
	}
	return repo
}

// WithTx returns a repository instance operating within the supplied transaction.
func (r *UserRepository) WithTx(tx pgx.Tx) *UserRepository {
	if tx == nil {
		return r
	}
	return &UserRepository{
		pool:    r.pool,
		exec:    tx,
		builder: r.builder,
	}
}

// Create inserts a new user row.
func (r *UserRepository) Create(ctx context.Context, user domain.User) error {
	query := r.builder.Insert("iam.users").
		Columns(
			"id",
			"name",
			"email",
			"password_hash",
			"country",
			"role",
			"is_active",
			"is_email_verified",
			"two_factor_enabled",
			"login_attempts",
			"password_changed_at",
			"created_at",
			"updated_at",
		).
		Values(
			user.ID,
			user.Name,
			strings.ToLower(user.Email),
			user.PasswordHash,
			user.Country,
			string(user.Role),
			user.IsActive,
			user.IsEmailVerified,
			user.TwoFactorEnabled,
			user.LoginAttempts,
			user.PasswordChangedAt,
			user.CreatedAt,
			user.UpdatedAt,
		)

	stmt, args, err := query.ToSql()
	if err != nil {
		return fmt.Errorf("build insert user sql: %w", err)
	}

	if _, err := r.exec.Exec(ctx, stmt, args...); err != nil {
		return fmt.Errorf("insert user: %w", err)
	}

	return nil
}

// GetByID retrieves a user by identifier.
func (r *UserRepository) GetByID(ctx context.Context, id string) (*domain.User, error) {
	stmt, args, err := r.builder.Select(userColumns...).
		From("iam.users").
		Where(squirrel.Eq{"id": id}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select user sql: %w", err)
	}

	return r.scanUser(r.exec.QueryRow(ctx, stmt, args...))
}

// GetByEmail retrieves a user by normalized email address.
func (r *UserRepository) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	stmt, args, err := r.builder.Select(userColumns...).
		From("iam.users").
		Where(squirrel.Eq{"email": strings.ToLower(strings.TrimSpace(email))}).
		Limit(1).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select user by email sql: %w", err)
	}

	return r.scanUser(r.exec.QueryRow(ctx, stmt, args...))
}

func (r *UserRepository) scanUser(row pgx.Row) (*domain.User, error) {
	var (
		user        domain.User
		role        string
		secret      sql.NullString
		pending     sql.NullString
		lockUntil   *time.Time
		lastLoginAt *time.Time
		lastLoginIP sql.NullString
	)

	if err := row.Scan(
		&user.ID,
		&user.Name,
		&user.Email,
		&user.PasswordHash,
		&user.Country,
		&role,
		&user.IsActive,
		&user.IsEmailVerified,
		&user.TwoFactorEnabled,
		&secret,
		&pending,
		&user.LoginAttempts,
		&lockUntil,
		&lastLoginAt,
		&lastLoginIP,
		&user.PasswordChangedAt,
		&user.CreatedAt,
		&user.UpdatedAt,
	); err != nil {
		if err == pgx.ErrNoRows {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("scan user: %w", err)
	}

	user.Role = domain.ParseRole(role)
	user.LockUntil = lockUntil
	user.LastLoginAt = lastLoginAt
	if secret.Valid {
		val := secret.String
		user.TwoFactorSecret = &val
	}
	if pending.Valid {
		val := pending.String
		user.TwoFactorPending = &val
	}
	if lastLoginIP.Valid {
		val := lastLoginIP.String
		user.LastLoginIP = &val
	}

	return &user, nil
}

// UpdatePassword replaces the stored hash and stamps the change time.
func (r *UserRepository) UpdatePassword(ctx context.Context, id string, passwordHash string, changedAt time.Time) error {
	stmt, args, err := r.builder.Update("iam.users").
		Set("password_hash", passwordHash).
		Set("password_changed_at", changedAt).
		Set("updated_at", changedAt).
		Where(squirrel.Eq{"id": id}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build update password sql: %w", err)
	}

	ct, err := r.exec.Exec(ctx, stmt, args...)
	if err != nil {
		return fmt.Errorf("update password: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return repository.ErrNotFound
	}

	return nil
}

// AddPasswordHistory inserts a password hash into the history table.
func (r *UserRepository) AddPasswordHistory(ctx context.Context, userID string, passwordHash string, setAt time.Time) error {
	if strings.TrimSpace(userID) == "" {
		return fmt.Errorf("user id is required")
	}
	if strings.TrimSpace(passwordHash) == "" {
		return fmt.Errorf("password hash is required")
	}
	if setAt.IsZero() {
		setAt = time.Now().UTC()
	}

	stmt, args, err := r.builder.Insert("iam.user_password_history").
		Columns("user_id", "password_hash", "set_at").
		Values(userID, passwordHash, setAt).
		ToSql()
	if err != nil {
		return fmt.Errorf("build insert password history sql: %w", err)
	}

	if _, err := r.exec.Exec(ctx, stmt, args...); err != nil {
		return fmt.Errorf("insert password history: %w", err)
	}

	return nil
}

// TrimPasswordHistory ensures only the most recent keep hashes are retained.
func (r *UserRepository) TrimPasswordHistory(ctx context.Context, userID string, keep int) error {
	if keep <= 0 {
		return nil
	}
	if strings.TrimSpace(userID) == "" {
		return fmt.Errorf("user id is required")
	}

	stmt := `
		DELETE FROM iam.user_password_history
		 WHERE user_id = $1
		   AND id NOT IN (
				SELECT id
				  FROM iam.user_password_history
				 WHERE user_id = $1
				 ORDER BY set_at DESC
				 LIMIT $2
		   )
	`

	if _, err := r.exec.Exec(ctx, stmt, userID, keep); err != nil {
		return fmt.Errorf("trim password history: %w", err)
	}

	return nil
}

// ListPasswordHistory retrieves the most recent password hashes for a user.
func (r *UserRepository) ListPasswordHistory(ctx context.Context, userID string, limit int) ([]domain.UserPasswordHistory, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, fmt.Errorf("user id is required")
	}

	builder := r.builder.Select("id", "user_id", "password_hash", "set_at").
		From("iam.user_password_history").
		Where(squirrel.Eq{"user_id": userID}).
		OrderBy("set_at DESC")
	if limit > 0 {
		builder = builder.Limit(uint64(limit))
	}

	stmt, args, err := builder.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select password history sql: %w", err)
	}

	rows, err := r.exec.Query(ctx, stmt, args...)
	if err != nil {
		return nil, fmt.Errorf("query password history: %w", err)
	}
	defer rows.Close()

	history := make([]domain.UserPasswordHistory, 0)
	for rows.Next() {
		var record domain.UserPasswordHistory
		if err := rows.Scan(&record.ID, &record.UserID, &record.PasswordHash, &record.SetAt); err != nil {
			return nil, fmt.Errorf("scan password history: %w", err)
		}
		history = append(history, record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate password history: %w", err)
	}

	return history, nil
}

// RecordLoginFailure increments the failure counter in a single statement.
// An expired lock resets the counter to one; reaching the threshold arms
// a fresh lock. The post-increment counter and lock deadline are returned
// so callers can report attempts left without a second read.
func (r *UserRepository) RecordLoginFailure(ctx context.Context, id string, threshold int, lockFor time.Duration, at time.Time) (int, *time.Time, error) {
	stmt := `
		UPDATE iam.users
		   SET login_attempts = CASE
				WHEN lock_until IS NOT NULL AND lock_until < $2 THEN 1
				ELSE login_attempts + 1
			END,
		       lock_until = CASE
				WHEN lock_until IS NOT NULL AND lock_until < $2 THEN NULL
				WHEN login_attempts + 1 >= $3 THEN $4
				ELSE lock_until
			END,
		       updated_at = $2
		 WHERE id = $1
		RETURNING login_attempts, lock_until
	`

	var (
		attempts  int
		lockUntil *time.Time
	)
	if err := r.exec.QueryRow(ctx, stmt, id, at, threshold, at.Add(lockFor)).Scan(&attempts, &lockUntil); err != nil {
		if err == pgx.ErrNoRows {
			return 0, nil, repository.ErrNotFound
		}
		return 0, nil, fmt.Errorf("record login failure: %w", err)
	}

	return attempts, lockUntil, nil
}

// ResetLoginState clears the failure counter and lock after a successful login.
func (r *UserRepository) ResetLoginState(ctx context.Context, id string, at time.Time, ip string) error {
	stmt, args, err := r.builder.Update("iam.users").
		Set("login_attempts", 0).
		Set("lock_until", nil).
		Set("last_login_at", at).
		Set("last_login_ip", ip).
		Set("updated_at", at).
		Where(squirrel.Eq{"id": id}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build reset login state sql: %w", err)
	}

	ct, err := r.exec.Exec(ctx, stmt, args...)
	if err != nil {
		return fmt.Errorf("reset login state: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return repository.ErrNotFound
	}

	return nil
}

// SetPendingTwoFactorSecret stages a secret awaiting code verification.
func (r *UserRepository) SetPendingTwoFactorSecret(ctx context.Context, id string, secret string) error {
	stmt, args, err := r.builder.Update("iam.users").
		Set("two_factor_pending", secret).
		Set("updated_at", time.Now().UTC()).
		Where(squirrel.Eq{"id": id}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build set pending secret sql: %w", err)
	}

	ct, err := r.exec.Exec(ctx, stmt, args...)
	if err != nil {
		return fmt.Errorf("set pending two-factor secret: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return repository.ErrNotFound
	}

	return nil
}

// ReplaceBackupCodes swaps the full recovery code set in one transaction.
func (r *UserRepository) ReplaceBackupCodes(ctx context.Context, userID string, codeHashes []string, at time.Time) error {
	run := func(exec pgExecutor) error {
		if _, err := exec.Exec(ctx, "DELETE FROM iam.user_backup_codes WHERE user_id = $1", userID); err != nil {
			return fmt.Errorf("clear backup codes: %w", err)
		}

		for _, hash := range codeHashes {
			insert, insertArgs, err := r.builder.Insert("iam.user_backup_codes").
				Columns("user_id", "code_hash", "issued_at").
				Values(userID, hash, at).
				ToSql()
			if err != nil {
				return fmt.Errorf("build insert backup code sql: %w", err)
			}
			if _, err := exec.Exec(ctx, insert, insertArgs...); err != nil {
				return fmt.Errorf("insert backup code: %w", err)
			}
		}

		return nil
	}

	if r.pool == nil {
		return run(r.exec)
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin replace backup codes tx: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := run(tx); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit replace backup codes tx: %w", err)
	}

	return nil
}

// EnableTwoFactor promotes the verified secret and clears the pending one.
func (r *UserRepository) EnableTwoFactor(ctx context.Context, id string, secret string, at time.Time) error {
	stmt, args, err := r.builder.Update("iam.users").
		Set("two_factor_enabled", true).
		Set("two_factor_secret", secret).
		Set("two_factor_pending", nil).
		Set("updated_at", at).
		Where(squirrel.Eq{"id": id}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build enable two-factor sql: %w", err)
	}

	ct, err := r.exec.Exec(ctx, stmt, args...)
	if err != nil {
		return fmt.Errorf("enable two-factor: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return repository.ErrNotFound
	}

	return nil
}

// DisableTwoFactor clears the secret, pending secret, and recovery codes.
func (r *UserRepository) DisableTwoFactor(ctx context.Context, id string) error {
	stmt, args, err := r.builder.Update("iam.users").
		Set("two_factor_enabled", false).
		Set("two_factor_secret", nil).
		Set("two_factor_pending", nil).
		Set("updated_at", time.Now().UTC()).
		Where(squirrel.Eq{"id": id}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build disable two-factor sql: %w", err)
	}

	ct, err := r.exec.Exec(ctx, stmt, args...)
	if err != nil {
		return fmt.Errorf("disable two-factor: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return repository.ErrNotFound
	}

	if _, err := r.exec.Exec(ctx, "DELETE FROM iam.user_backup_codes WHERE user_id = $1", id); err != nil {
		return fmt.Errorf("clear backup codes: %w", err)
	}

	return nil
}

// ConsumeBackupCode deletes a matching recovery code in a single statement
// so the same code cannot be redeemed twice.
func (r *UserRepository) ConsumeBackupCode(ctx context.Context, userID string, codeHash string) (bool, error) {
	stmt := `
		DELETE FROM iam.user_backup_codes
		 WHERE id = (
			SELECT id
			  FROM iam.user_backup_codes
			 WHERE user_id = $1 AND code_hash = $2
			 LIMIT 1
		 )
	`

	ct, err := r.exec.Exec(ctx, stmt, userID, codeHash)
	if err != nil {
		return false, fmt.Errorf("consume backup code: %w", err)
	}

	return ct.RowsAffected() > 0, nil
}

// SetPasswordReset stores the hashed single-use reset token.
func (r *UserRepository) SetPasswordReset(ctx context.Context, userID string, tokenHash string, expiresAt time.Time) error {
	stmt, args, err := r.builder.Update("iam.users").
		Set("password_reset_token_hash", tokenHash).
		Set("password_reset_expires", expiresAt).
		Set("updated_at", time.Now().UTC()).
		Where(squirrel.Eq{"id": userID}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build set password reset sql: %w", err)
	}

	ct, err := r.exec.Exec(ctx, stmt, args...)
	if err != nil {
		return fmt.Errorf("set password reset: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return repository.ErrNotFound
	}

	return nil
}

// GetByResetTokenHash looks up the owner of an unexpired reset token.
func (r *UserRepository) GetByResetTokenHash(ctx context.Context, tokenHash string, at time.Time) (*domain.User, error) {
	stmt, args, err := r.builder.Select(userColumns...).
		From("iam.users").
		Where(squirrel.Eq{"password_reset_token_hash": tokenHash}).
		Where(squirrel.Gt{"password_reset_expires": at}).
		Limit(1).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select by reset token sql: %w", err)
	}

	return r.scanUser(r.exec.QueryRow(ctx, stmt, args...))
}

// ClearPasswordReset removes any outstanding reset token.
func (r *UserRepository) ClearPasswordReset(ctx context.Context, userID string) error {
	stmt, args, err := r.builder.Update("iam.users").
		Set("password_reset_token_hash", nil).
		Set("password_reset_expires", nil).
		Set("updated_at", time.Now().UTC()).
		Where(squirrel.Eq{"id": userID}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build clear password reset sql: %w", err)
	}

	if _, err := r.exec.Exec(ctx, stmt, args...); err != nil {
		return fmt.Errorf("clear password reset: %w", err)
	}

	return nil
}

var _ port.UserRepository = (*UserRepository)(nil)
