package port

import (
	"context"

	"github.com/Tchelo1688/brvm-academy-iam/internal/core/domain"
)

// EventPublisher publishes security events to the message bus. Delivery
// is best-effort; authentication flows never block on it.
type EventPublisher interface {
	PublishUserRegistered(ctx context.Context, event domain.UserRegisteredEvent) error
	PublishPasswordChanged(ctx context.Context, event domain.PasswordChangedEvent) error
	PublishAccountLocked(ctx context.Context, event domain.AccountLockedEvent) error
	PublishSessionRevoked(ctx context.Context, event domain.SessionRevokedEvent) error
	PublishTwoFactorChanged(ctx context.Context, event domain.TwoFactorChangedEvent) error
}
