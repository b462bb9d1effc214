package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/IBM/sarama"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Tchelo1688/brvm-academy-iam/internal/core/domain"
	"github.com/Tchelo1688/brvm-academy-iam/internal/core/port"
	"github.com/Tchelo1688/brvm-academy-iam/internal/infra/config"
)

const schemaVersion = "1.0"

// EventPublisher implements port.EventPublisher using Kafka.
type EventPublisher struct {
	producer *Producer
	logger   *zap.Logger
	appCfg   config.AppSettings
}

// NewEventPublisher constructs a Kafka-backed event publisher.
func NewEventPublisher(producer *Producer, appCfg config.AppSettings, logger *zap.Logger) *EventPublisher {
	return &EventPublisher{producer: producer, appCfg: appCfg, logger: logger}
}

type envelopeMetadata map[string]string

type eventEnvelope struct {
	EventID   string           `json:"event_id"`
	EventType string           `json:"event_type"`
	UserID    string           `json:"user_id,omitempty"`
	Timestamp time.Time        `json:"timestamp"`
	Version   string           `json:"version"`
	Payload   any              `json:"payload"`
	Metadata  envelopeMetadata `json:"metadata,omitempty"`
}

func (p *EventPublisher) publish(ctx context.Context, eventID, eventType, userID string, ts time.Time, payload any) error {
	if ts.IsZero() {
		ts = time.Now().UTC()
	}

	id := eventID
	if id == "" {
		id = uuid.NewString()
	}

	metadata := envelopeMetadata{
		"service":     p.appCfg.Name,
		"environment": p.appCfg.Env,
	}

	envelope := eventEnvelope{
		EventID:   id,
		EventType: eventType,
		UserID:    userID,
		Timestamp: ts.UTC(),
		Version:   schemaVersion,
		Payload:   payload,
		Metadata:  metadata,
	}

	bytes, err := json.Marshal(envelope)
	if err != nil {
		return fmt.Errorf("marshal event envelope: %w", err)
	}

	message := &sarama.ProducerMessage{
		Topic: p.producer.TopicName(eventType),
		Value: sarama.ByteEncoder(bytes),
	}

	select {
	case p.producer.Producer().Input() <- message:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// PublishUserRegistered publishes iam.user.registered events.
func (p *EventPublisher) PublishUserRegistered(ctx context.Context, event domain.UserRegisteredEvent) error {
	payload := struct {
		UserID       string    `json:"user_id"`
		Email        string    `json:"email"`
		Name         string    `json:"name"`
		Country      string    `json:"country,omitempty"`
		RegisteredAt time.Time `json:"registered_at"`
		IP           *string   `json:"ip,omitempty"`
	}{
		UserID:       event.UserID,
		Email:        event.Email,
		Name:         event.Name,
		Country:      event.Country,
		RegisteredAt: event.RegisteredAt.UTC(),
		IP:           event.IP,
	}

	return p.publish(ctx, event.EventID, "iam.user.registered", event.UserID, event.RegisteredAt, payload)
}

// PublishPasswordChanged publishes iam.user.password.changed events.
func (p *EventPublisher) PublishPasswordChanged(ctx context.Context, event domain.PasswordChangedEvent) error {
	payload := struct {
		UserID          string    `json:"user_id"`
		ChangedAt       time.Time `json:"changed_at"`
		SessionsRevoked int       `json:"sessions_revoked"`
		IP              *string   `json:"ip,omitempty"`
	}{
		UserID:          event.UserID,
		ChangedAt:       event.ChangedAt.UTC(),
		SessionsRevoked: event.SessionsRevoked,
		IP:              event.IP,
	}

	return p.publish(ctx, event.EventID, "iam.user.password.changed", event.UserID, event.ChangedAt, payload)
}

// PublishAccountLocked publishes iam.user.locked events.
func (p *EventPublisher) PublishAccountLocked(ctx context.Context, event domain.AccountLockedEvent) error {
	payload := struct {
		UserID    string    `json:"user_id"`
		Email     string    `json:"email"`
		LockedAt  time.Time `json:"locked_at"`
		LockUntil time.Time `json:"lock_until"`
		Attempts  int       `json:"attempts"`
		IP        *string   `json:"ip,omitempty"`
	}{
		UserID:    event.UserID,
		Email:     event.Email,
		LockedAt:  event.LockedAt.UTC(),
		LockUntil: event.LockUntil.UTC(),
		Attempts:  event.Attempts,
		IP:        event.IP,
	}

	return p.publish(ctx, event.EventID, "iam.user.locked", event.UserID, event.LockedAt, payload)
}

// PublishSessionRevoked publishes iam.session.revoked events.
func (p *EventPublisher) PublishSessionRevoked(ctx context.Context, event domain.SessionRevokedEvent) error {
	payload := struct {
		SessionID string    `json:"session_id"`
		UserID    string    `json:"user_id"`
		RevokedAt time.Time `json:"revoked_at"`
		Reason    string    `json:"reason"`
		IP        *string   `json:"ip,omitempty"`
	}{
		SessionID: event.SessionID,
		UserID:    event.UserID,
		RevokedAt: event.RevokedAt.UTC(),
		Reason:    event.Reason,
		IP:        event.IP,
	}

	return p.publish(ctx, event.EventID, "iam.session.revoked", event.UserID, event.RevokedAt, payload)
}

// PublishTwoFactorChanged publishes iam.user.twofactor.changed events.
func (p *EventPublisher) PublishTwoFactorChanged(ctx context.Context, event domain.TwoFactorChangedEvent) error {
	payload := struct {
		UserID    string    `json:"user_id"`
		Enabled   bool      `json:"enabled"`
		ChangedAt time.Time `json:"changed_at"`
		IP        *string   `json:"ip,omitempty"`
	}{
		UserID:    event.UserID,
		Enabled:   event.Enabled,
		ChangedAt: event.ChangedAt.UTC(),
		IP:        event.IP,
	}

	return p.publish(ctx, event.EventID, "iam.user.twofactor.changed", event.UserID, event.ChangedAt, payload)
}

var _ port.EventPublisher = (*EventPublisher)(nil)
