package port

import (
	"context"
	"time"

	"github.com/Tchelo1688/brvm-academy-iam/internal/core/domain"
)

// UserRepository exposes persistence behavior for users, their
// credentials, and their two-factor material.
type UserRepository interface {
	Create(ctx context.Context, user domain.User) error
	GetByID(ctx context.Context, id string) (*domain.User, error)
	GetByEmail(ctx context.Context, email string) (*domain.User, error)

	// UpdatePassword replaces the current hash and stamps the change time.
	// Callers are expected to pair it with AddPasswordHistory/TrimPasswordHistory.
	UpdatePassword(ctx context.Context, id string, passwordHash string, changedAt time.Time) error
	AddPasswordHistory(ctx context.Context, userID string, passwordHash string, setAt time.Time) error
	TrimPasswordHistory(ctx context.Context, userID string, keep int) error
	ListPasswordHistory(ctx context.Context, userID string, limit int) ([]domain.UserPasswordHistory, error)

	// RecordLoginFailure increments the failure counter in a single
	// statement and applies the lock when the threshold is reached.
	// It returns the post-increment counter and the lock deadline, if any.
	RecordLoginFailure(ctx context.Context, id string, threshold int, lockFor time.Duration, at time.Time) (int, *time.Time, error)
	// ResetLoginState clears the failure counter and lock, and records
	// the successful login time and source address.
	ResetLoginState(ctx context.Context, id string, at time.Time, ip string) error

	SetPendingTwoFactorSecret(ctx context.Context, id string, secret string) error
	// ReplaceBackupCodes swaps the full recovery code set for the user.
	ReplaceBackupCodes(ctx context.Context, userID string, codeHashes []string, at time.Time) error
	// EnableTwoFactor promotes the verified secret and clears the pending one.
	EnableTwoFactor(ctx context.Context, id string, secret string, at time.Time) error
	DisableTwoFactor(ctx context.Context, id string) error
	// ConsumeBackupCode atomically deletes a matching single-use recovery
	// code and reports whether one was consumed.
	ConsumeBackupCode(ctx context.Context, userID string, codeHash string) (bool, error)

	SetPasswordReset(ctx context.Context, userID string, tokenHash string, expiresAt time.Time) error
	GetByResetTokenHash(ctx context.Context, tokenHash string, at time.Time) (*domain.User, error)
	ClearPasswordReset(ctx context.Context, userID string) error
}
