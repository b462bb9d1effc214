package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	uuid "github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Tchelo1688/brvm-academy-iam/internal/core/domain"
	"github.com/Tchelo1688/brvm-academy-iam/internal/core/port"
	"github.com/Tchelo1688/brvm-academy-iam/internal/infra/config"
	applogger "github.com/Tchelo1688/brvm-academy-iam/internal/infra/logger"
	"github.com/Tchelo1688/brvm-academy-iam/internal/infra/security"
	"github.com/Tchelo1688/brvm-academy-iam/internal/repository"
)

const (
	minNameLength = 2
	maxNameLength = 50
)

var (
	// ErrEmailTaken indicates the email address is already registered.
	ErrEmailTaken = errors.New("email already registered")
	// ErrInvalidName indicates the display name fails length validation.
	ErrInvalidName = errors.New("name must be between 2 and 50 characters")
)

// RegisterInput carries the fields for a new account.
type RegisterInput struct {
	Name     string
	Email    string
	Password string
	Country  string
	Meta     RequestMeta
}

// RegistrationService handles account creation.
type RegistrationService struct {
	cfg               *config.AppConfig
	users             port.UserRepository
	auth              *AuthService
	audit             *AuditService
	events            port.EventPublisher
	passwordValidator port.PasswordPolicyValidator
	logger            *zap.Logger
	now               func() time.Time
}

// NewRegistrationService constructs a RegistrationService instance.
func NewRegistrationService(
	cfg *config.AppConfig,
	users port.UserRepository,
	auth *AuthService,
	audit *AuditService,
	events port.EventPublisher,
	passwordValidator port.PasswordPolicyValidator,
	logger *zap.Logger,
) *RegistrationService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RegistrationService{
		cfg:               cfg,
		users:             users,
		auth:              auth,
		audit:             audit,
		events:            events,
		passwordValidator: passwordValidator,
		logger:            logger,
		now:               time.Now,
	}
}

// WithClock allows injection of a custom clock (primarily for testing).
func (s *RegistrationService) WithClock(now func() time.Time) *RegistrationService {
	if now != nil {
		s.now = now
	}
	return s
}

// Register validates the input, creates the account with the default role,
// and starts an initial session so the caller is logged in immediately.
func (s *RegistrationService) Register(ctx context.Context, input RegisterInput) (*LoginResult, error) {
	name := strings.TrimSpace(input.Name)
	if len(name) < minNameLength || len(name) > maxNameLength {
		return nil, ErrInvalidName
	}

	email := strings.ToLower(strings.TrimSpace(input.Email))
	if email == "" || !strings.Contains(email, "@") {
		return nil, fmt.Errorf("a valid email is required")
	}

	if _, err := s.users.GetByEmail(ctx, email); err == nil {
		return nil, ErrEmailTaken
	} else if !errors.Is(err, repository.ErrNotFound) {
		return nil, fmt.Errorf("lookup email: %w", err)
	}

	if err := s.passwordValidator.Validate(input.Password, domain.PasswordContext{Name: name, Email: email}); err != nil {
		return nil, err
	}

	hash, err := security.HashPassword(input.Password)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	now := s.now().UTC()
	user := domain.User{
		ID:                uuid.NewString(),
		Name:              name,
		Email:             email,
		PasswordHash:      hash,
		Country:           strings.TrimSpace(input.Country),
		Role:              domain.RoleUser,
		IsActive:          true,
		PasswordChangedAt: now,
		CreatedAt:         now,
		UpdatedAt:         now,
	}

	if err := s.users.Create(ctx, user); err != nil {
		return nil, fmt.Errorf("create user: %w", err)
	}

	// The initial hash joins the history so it counts against reuse checks.
	if err := s.users.AddPasswordHistory(ctx, user.ID, hash, now); err != nil {
		s.logger.Warn("record initial password history", zap.Error(err))
	}

	token, session, err := s.auth.StartSession(ctx, user, now, input.Meta)
	if err != nil {
		return nil, err
	}

	s.audit.Record(ctx, domain.AuditEntry{
		ActorID:    &user.ID,
		ActorEmail: user.Email,
		ActorRole:  string(user.Role),
		Action:     domain.ActionRegister,
		IP:         input.Meta.IP,
		UserAgent:  input.Meta.UserAgent,
		Endpoint:   input.Meta.Endpoint,
		HTTPMethod: input.Meta.Method,
		Status:     domain.AuditSuccess,
	})

	if s.events != nil {
		event := domain.UserRegisteredEvent{
			UserID:       user.ID,
			Email:        user.Email,
			Name:         user.Name,
			Country:      user.Country,
			RegisteredAt: now,
		}
		if err := s.events.PublishUserRegistered(ctx, event); err != nil {
			s.logger.Warn("publish user registered event", zap.Error(err))
		}
	}

	s.logger.Info("user registered",
		zap.String("user_id", user.ID),
		zap.String("email", applogger.MaskEmail(user.Email)),
	)

	sanitized := user
	sanitized.PasswordHash = ""

	return &LoginResult{
		Token:     token,
		User:      sanitized,
		SessionID: session.ID,
	}, nil
}
