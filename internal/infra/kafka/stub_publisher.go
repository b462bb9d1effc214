package kafka

import (
	"context"

	"go.uber.org/zap"

	"github.com/Tchelo1688/brvm-academy-iam/internal/core/domain"
	"github.com/Tchelo1688/brvm-academy-iam/internal/core/port"
)

// StubPublisher satisfies port.EventPublisher when Kafka is disabled.
// Events are logged at debug level and dropped.
type StubPublisher struct {
	logger *zap.Logger
}

// NewStubPublisher constructs a no-op publisher.
func NewStubPublisher(logger *zap.Logger) *StubPublisher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StubPublisher{logger: logger}
}

func (s *StubPublisher) PublishUserRegistered(_ context.Context, event domain.UserRegisteredEvent) error {
	s.logger.Debug("event dropped (kafka disabled)", zap.String("type", "iam.user.registered"), zap.String("user_id", event.UserID))
	return nil
}

func (s *StubPublisher) PublishPasswordChanged(_ context.Context, event domain.PasswordChangedEvent) error {
	s.logger.Debug("event dropped (kafka disabled)", zap.String("type", "iam.user.password.changed"), zap.String("user_id", event.UserID))
	return nil
}

func (s *StubPublisher) PublishAccountLocked(_ context.Context, event domain.AccountLockedEvent) error {
	s.logger.Debug("event dropped (kafka disabled)", zap.String("type", "iam.user.locked"), zap.String("user_id", event.UserID))
	return nil
}

func (s *StubPublisher) PublishSessionRevoked(_ context.Context, event domain.SessionRevokedEvent) error {
	s.logger.Debug("event dropped (kafka disabled)", zap.String("type", "iam.session.revoked"), zap.String("user_id", event.UserID))
	return nil
}

func (s *StubPublisher) PublishTwoFactorChanged(_ context.Context, event domain.TwoFactorChangedEvent) error {
	s.logger.Debug("event dropped (kafka disabled)", zap.String("type", "iam.user.twofactor.changed"), zap.String("user_id", event.UserID))
	return nil
}

var _ port.EventPublisher = (*StubPublisher)(nil)
