package port

import (
	"context"
	"time"

	"github.com/Tchelo1688/brvm-academy-iam/internal/core/domain"
)

// SessionRepository exposes persistence behavior for login sessions.
type SessionRepository interface {
	// Add inserts the session and, when the user already holds maxPerUser
	// sessions, evicts the oldest ones in the same transaction. It returns
	// the number of sessions evicted.
	Add(ctx context.Context, session domain.Session, maxPerUser int) (int, error)
	Get(ctx context.Context, id string) (*domain.Session, error)
	ListByUser(ctx context.Context, userID string) ([]domain.Session, error)
	// Delete removes one session owned by the user and reports whether a
	// row was removed.
	Delete(ctx context.Context, userID string, id string) (bool, error)
	DeleteAllForUser(ctx context.Context, userID string) (int, error)
	DeleteExpired(ctx context.Context, before time.Time) (int64, error)
}
