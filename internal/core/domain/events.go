package domain

import "time"

// UserRegisteredEvent represents the payload for iam.user.registered messages.
type UserRegisteredEvent struct {
	EventID      string
	UserID       string
	Email        string
	Name         string
	Country      string
	RegisteredAt time.Time
	IP           *string
}

// PasswordChangedEvent represents the payload for iam.user.password.changed messages.
type PasswordChangedEvent struct {
	EventID         string
	UserID          string
	ChangedAt       time.Time
	SessionsRevoked int
	IP              *string
}

// AccountLockedEvent represents the payload for iam.user.locked messages.
type AccountLockedEvent struct {
	EventID   string
	UserID    string
	Email     string
	LockedAt  time.Time
	LockUntil time.Time
	Attempts  int
	IP        *string
}

// SessionRevokedEvent represents the payload for iam.session.revoked messages.
type SessionRevokedEvent struct {
	EventID   string
	SessionID string
	UserID    string
	RevokedAt time.Time
	Reason    string
	IP        *string
}

// TwoFactorChangedEvent represents the payload for iam.user.twofactor.changed messages.
type TwoFactorChangedEvent struct {
	EventID   string
	UserID    string
	Enabled   bool
	ChangedAt time.Time
	IP        *string
}
