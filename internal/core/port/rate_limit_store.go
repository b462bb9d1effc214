package port

import (
	"context"
	"time"
)

// RateLimitStore records request attempts and answers sliding-window queries
// for the login and password-reset throttles. Identifiers are opaque here; the
// middleware composes them from rule name plus client IP or account email.
type RateLimitStore interface {
	TrimWindow(ctx context.Context, identifier string, window time.Duration, reference time.Time) error
	CountAttempts(ctx context.Context, identifier string, window time.Duration, reference time.Time) (int, error)
	RecordAttempt(ctx context.Context, identifier string, at time.Time) error
	OldestAttempt(ctx context.Context, identifier string, window time.Duration, reference time.Time) (time.Time, bool, error)
}
