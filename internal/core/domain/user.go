package domain

import "time"

// User mirrors the persisted representation in the users table.
// Password and two-factor secrets are stored hashed or base32-encoded;
// they are never serialized to API responses.
type User struct {
	ID                string
	Name              string
	Email             string
	PasswordHash      string
	Country           string
	Role              Role
	IsActive          bool
	IsEmailVerified   bool
	TwoFactorEnabled  bool
	TwoFactorSecret   *string
	TwoFactorPending  *string
	LoginAttempts     int
	LockUntil         *time.Time
	LastLoginAt       *time.Time
	LastLoginIP       *string
	PasswordChangedAt time.Time
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// IsLocked reports whether the account lockout is in effect at the supplied moment.
func (u User) IsLocked(at time.Time) bool {
	return u.LockUntil != nil && u.LockUntil.After(at)
}

// UserPasswordHistory tracks historical password hashes for reuse prevention.
type UserPasswordHistory struct {
	ID           string
	UserID       string
	PasswordHash string
	SetAt        time.Time
}

// BackupCode represents a single-use two-factor recovery code (stored as a hash).
type BackupCode struct {
	ID       string
	UserID   string
	CodeHash string
	IssuedAt time.Time
}

// PasswordContext carries user-derived inputs a password must not resemble.
type PasswordContext struct {
	Name  string
	Email string
}

// PasswordResetRequest captures an outstanding reset token (stored as a hash).
type PasswordResetRequest struct {
	UserID    string
	TokenHash string
	ExpiresAt time.Time
}
