package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	uuid "github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Tchelo1688/brvm-academy-iam/internal/core/domain"
	"github.com/Tchelo1688/brvm-academy-iam/internal/core/port"
	"github.com/Tchelo1688/brvm-academy-iam/internal/infra/config"
	"github.com/Tchelo1688/brvm-academy-iam/internal/infra/security"
	"github.com/Tchelo1688/brvm-academy-iam/internal/repository"
)

var (
	// ErrInvalidCredentials indicates the provided email or password are incorrect.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrAccountDisabled indicates the account has been deactivated.
	ErrAccountDisabled = errors.New("account disabled")
	// ErrAccountLocked indicates the lockout window is in effect.
	ErrAccountLocked = errors.New("account locked")
	// ErrTwoFactorRequired indicates the password matched but a second factor is needed.
	ErrTwoFactorRequired = errors.New("two-factor code required")
	// ErrInvalidTwoFactorCode indicates neither the TOTP code nor a backup code matched.
	ErrInvalidTwoFactorCode = errors.New("invalid two-factor code")
	// ErrInvalidAccessToken indicates the token is malformed or signature validation failed.
	ErrInvalidAccessToken = errors.New("invalid access token")
	// ErrExpiredAccessToken indicates the token has expired.
	ErrExpiredAccessToken = errors.New("access token expired")
	// ErrStaleToken indicates the password changed after the token was issued.
	ErrStaleToken = errors.New("token predates password change")
	// ErrSessionRevoked indicates the session behind the token no longer exists.
	ErrSessionRevoked = errors.New("session revoked")
	// ErrSessionExpired indicates the session behind the token has expired.
	ErrSessionExpired = errors.New("session expired")
)

// AccountLockedError reports the lock deadline alongside ErrAccountLocked.
type AccountLockedError struct {
	Until time.Time
}

func (e *AccountLockedError) Error() string {
	return fmt.Sprintf("account locked until %s", e.Until.Format(time.RFC3339))
}

// Is makes the error match ErrAccountLocked under errors.Is.
func (e *AccountLockedError) Is(target error) bool {
	return target == ErrAccountLocked
}

// CredentialsError reports remaining attempts alongside ErrInvalidCredentials.
type CredentialsError struct {
	AttemptsLeft int
}

func (e *CredentialsError) Error() string {
	return fmt.Sprintf("invalid credentials, %d attempts left", e.AttemptsLeft)
}

// Is makes the error match ErrInvalidCredentials under errors.Is.
func (e *CredentialsError) Is(target error) bool {
	return target == ErrInvalidCredentials
}

// SessionTokenClaims is the authenticated payload carried by an access token.
type SessionTokenClaims struct {
	UserID    string `json:"uid"`
	SessionID string `json:"sid"`
	jwt.RegisteredClaims
}

// LoginInput carries credentials and attribution for one login attempt.
type LoginInput struct {
	Email         string
	Password      string
	TwoFactorCode string
	Meta          RequestMeta
}

// LoginResult is returned on successful authentication.
type LoginResult struct {
	Token          string
	User           domain.User
	SessionID      string
	UsedBackupCode bool
}

// AuthService coordinates authentication flows.
type AuthService struct {
	cfg            *config.AppConfig
	users          port.UserRepository
	sessions       port.SessionRepository
	audit          *AuditService
	events         port.EventPublisher
	tokenGenerator *security.TokenGenerator
	keyProvider    security.KeyProvider
	logger         *zap.Logger
	now            func() time.Time
}

// NewAuthService constructs an AuthService instance.
func NewAuthService(
	cfg *config.AppConfig,
	users port.UserRepository,
	sessions port.SessionRepository,
	audit *AuditService,
	events port.EventPublisher,
	tokenGenerator *security.TokenGenerator,
	keyProvider security.KeyProvider,
	logger *zap.Logger,
) *AuthService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AuthService{
		cfg:            cfg,
		users:          users,
		sessions:       sessions,
		audit:          audit,
		events:         events,
		tokenGenerator: tokenGenerator,
		keyProvider:    keyProvider,
		logger:         logger,
		now:            time.Now,
	}
}

// WithClock allows injection of a custom clock (primarily for testing).
func (s *AuthService) WithClock(now func() time.Time) *AuthService {
	if now != nil {
		s.now = now
	}
	return s
}

// Login runs the authentication state machine: account status, lockout,
// credential comparison, second factor, then session issuance. Every
// outcome leaves an audit entry.
func (s *AuthService) Login(ctx context.Context, input LoginInput) (*LoginResult, error) {
	email := strings.ToLower(strings.TrimSpace(input.Email))
	if email == "" {
		return nil, fmt.Errorf("email is required")
	}
	if input.Password == "" {
		return nil, fmt.Errorf("password is required")
	}

	now := s.now().UTC()

	user, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			s.recordLogin(ctx, domain.ActionLoginFailed, nil, email, "", domain.AuditFailure, "unknown email", nil, input.Meta)
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("lookup user: %w", err)
	}

	if !user.IsActive {
		s.recordLogin(ctx, domain.ActionLoginFailed, &user.ID, email, string(user.Role), domain.AuditFailure, "account disabled", nil, input.Meta)
		return nil, ErrAccountDisabled
	}

	// Lock check happens before the credential compare so a locked account
	// leaks nothing about password validity.
	if user.IsLocked(now) {
		s.recordLogin(ctx, domain.ActionLoginLocked, &user.ID, email, string(user.Role), domain.AuditFailure, "", nil, input.Meta)
		return nil, &AccountLockedError{Until: *user.LockUntil}
	}

	ok, err := security.VerifyPassword(input.Password, user.PasswordHash)
	if err != nil {
		return nil, fmt.Errorf("verify password: %w", err)
	}
	if !ok {
		return nil, s.handleFailedPassword(ctx, user, email, now, input.Meta)
	}

	usedBackup := false
	if user.TwoFactorEnabled {
		if strings.TrimSpace(input.TwoFactorCode) == "" {
			return nil, ErrTwoFactorRequired
		}

		usedBackup, err = s.verifySecondFactor(ctx, user, input.TwoFactorCode, now)
		if err != nil {
			if errors.Is(err, ErrInvalidTwoFactorCode) {
				s.recordLogin(ctx, domain.ActionTwoFactorFailed, &user.ID, email, string(user.Role), domain.AuditFailure, "", nil, input.Meta)
			}
			return nil, err
		}
	}

	if err := s.users.ResetLoginState(ctx, user.ID, now, input.Meta.IP); err != nil {
		return nil, fmt.Errorf("reset login state: %w", err)
	}

	token, session, err := s.StartSession(ctx, *user, now, input.Meta)
	if err != nil {
		return nil, err
	}

	s.recordLogin(ctx, domain.ActionLoginSuccess, &user.ID, email, string(user.Role), domain.AuditSuccess, "", nil, input.Meta)

	sanitized := *user
	sanitized.PasswordHash = ""
	sanitized.TwoFactorSecret = nil
	sanitized.TwoFactorPending = nil
	sanitized.LastLoginAt = &now
	lastIP := input.Meta.IP
	sanitized.LastLoginIP = &lastIP

	return &LoginResult{
		Token:          token,
		User:           sanitized,
		SessionID:      session.ID,
		UsedBackupCode: usedBackup,
	}, nil
}

func (s *AuthService) handleFailedPassword(ctx context.Context, user *domain.User, email string, now time.Time, meta RequestMeta) error {
	threshold := s.lockoutThreshold()

	attempts, lockUntil, err := s.users.RecordLoginFailure(ctx, user.ID, threshold, s.lockoutDuration(), now)
	if err != nil {
		return fmt.Errorf("record login failure: %w", err)
	}

	attemptsLeft := threshold - attempts
	if attemptsLeft < 0 {
		attemptsLeft = 0
	}

	s.recordLogin(ctx, domain.ActionLoginFailed, &user.ID, email, string(user.Role), domain.AuditFailure, "",
		map[string]any{"attemptsLeft": attemptsLeft}, meta)

	if lockUntil != nil && lockUntil.After(now) {
		if s.events != nil {
			event := domain.AccountLockedEvent{
				UserID:    user.ID,
				Email:     email,
				LockedAt:  now,
				LockUntil: *lockUntil,
				Attempts:  attempts,
			}
			if meta.IP != "" {
				ip := meta.IP
				event.IP = &ip
			}
			if err := s.events.PublishAccountLocked(ctx, event); err != nil {
				s.logger.Warn("publish account locked event", zap.Error(err))
			}
		}
		return &AccountLockedError{Until: *lockUntil}
	}

	return &CredentialsError{AttemptsLeft: attemptsLeft}
}

// verifySecondFactor accepts a TOTP code, falling back to the single-use
// backup code set. Reports whether a backup code was consumed.
func (s *AuthService) verifySecondFactor(ctx context.Context, user *domain.User, code string, now time.Time) (bool, error) {
	secret := ""
	if user.TwoFactorSecret != nil {
		secret = *user.TwoFactorSecret
	}

	valid, err := security.VerifyTOTP(secret, code, now)
	if err != nil && !errors.Is(err, security.ErrMissingSecret) {
		return false, fmt.Errorf("verify totp: %w", err)
	}
	if valid {
		return false, nil
	}

	consumed, err := s.users.ConsumeBackupCode(ctx, user.ID, security.HashToken(strings.TrimSpace(code)))
	if err != nil {
		return false, fmt.Errorf("consume backup code: %w", err)
	}
	if consumed {
		return true, nil
	}

	return false, ErrInvalidTwoFactorCode
}

// StartSession persists a new session (evicting the oldest beyond the
// per-user ceiling) and issues the matching access token.
func (s *AuthService) StartSession(ctx context.Context, user domain.User, now time.Time, meta RequestMeta) (string, *domain.Session, error) {
	userAgent := meta.UserAgent
	if len(userAgent) > maxUserAgentLength {
		userAgent = userAgent[:maxUserAgentLength]
	}

	session := domain.Session{
		ID:        uuid.NewString(),
		UserID:    user.ID,
		IP:        meta.IP,
		UserAgent: userAgent,
		CreatedAt: now,
		ExpiresAt: now.Add(s.sessionTTL()),
	}

	evicted, err := s.sessions.Add(ctx, session, s.sessionCap())
	if err != nil {
		return "", nil, fmt.Errorf("create session: %w", err)
	}
	if evicted > 0 {
		s.logger.Debug("evicted oldest sessions", zap.String("user_id", user.ID), zap.Int("count", evicted))
	}

	token, err := s.IssueToken(ctx, user, session.ID, now)
	if err != nil {
		return "", nil, err
	}

	return token, &session, nil
}

// IssueToken signs a JWT bound to the user and session.
func (s *AuthService) IssueToken(_ context.Context, user domain.User, sessionID string, now time.Time) (string, error) {
	if user.ID == "" {
		return "", fmt.Errorf("user id is required")
	}
	if sessionID == "" {
		return "", fmt.Errorf("session id is required")
	}

	claimAudience := jwt.ClaimStrings{}
	if s.cfg.App.Name != "" {
		claimAudience = append(claimAudience, s.cfg.App.Name)
	}

	claims := SessionTokenClaims{
		UserID:    user.ID,
		SessionID: sessionID,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   user.ID,
			Issuer:    s.cfg.App.Name,
			Audience:  claimAudience,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.tokenTTL())),
			ID:        uuid.NewString(),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	token.Header["kid"] = s.tokenGenerator.GetKID()

	signingKey, err := s.keyProvider.GetSigningKey()
	if err != nil {
		return "", fmt.Errorf("get signing key: %w", err)
	}

	signed, err := token.SignedString(signingKey)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}

	return signed, nil
}

// ParseAccessToken validates the JWT access token and returns its claims.
func (s *AuthService) ParseAccessToken(token string) (*SessionTokenClaims, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, ErrInvalidAccessToken
	}

	claims := &SessionTokenClaims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodRSA); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}

		kid, ok := t.Header["kid"].(string)
		if !ok {
			return nil, fmt.Errorf("kid header not found")
		}

		return s.keyProvider.GetVerificationKey(kid)
	}, jwt.WithIssuer(s.cfg.App.Name), jwt.WithAudience(s.cfg.App.Name))
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpiredAccessToken
		}
		return nil, ErrInvalidAccessToken
	}

	if parsed == nil || !parsed.Valid {
		return nil, ErrInvalidAccessToken
	}
	if strings.TrimSpace(claims.UserID) == "" || strings.TrimSpace(claims.SessionID) == "" {
		return nil, ErrInvalidAccessToken
	}

	return claims, nil
}

// ValidateToken parses a token and checks it against live account state:
// the account must be active, the password unchanged since issuance, and
// the session still present and unexpired.
func (s *AuthService) ValidateToken(ctx context.Context, token string) (*domain.User, *SessionTokenClaims, error) {
	claims, err := s.ParseAccessToken(token)
	if err != nil {
		return nil, nil, err
	}

	user, err := s.users.GetByID(ctx, claims.UserID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, nil, ErrInvalidAccessToken
		}
		return nil, nil, fmt.Errorf("lookup user: %w", err)
	}

	if !user.IsActive {
		return nil, nil, ErrAccountDisabled
	}

	if claims.IssuedAt != nil && claims.IssuedAt.Time.Before(user.PasswordChangedAt.Truncate(time.Second)) {
		return nil, nil, ErrStaleToken
	}

	session, err := s.sessions.Get(ctx, claims.SessionID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, nil, ErrSessionRevoked
		}
		return nil, nil, fmt.Errorf("lookup session: %w", err)
	}

	if !session.IsActive(s.now().UTC()) {
		return nil, nil, ErrSessionExpired
	}

	return user, claims, nil
}

// Logout removes the session carried by the token. The operation is
// idempotent: logging out an already-revoked session still succeeds.
func (s *AuthService) Logout(ctx context.Context, user domain.User, sessionID string, meta RequestMeta) error {
	if sessionID != "" {
		if _, err := s.sessions.Delete(ctx, user.ID, sessionID); err != nil {
			s.logger.Warn("delete session on logout", zap.Error(err))
		}
	}

	s.audit.Record(ctx, domain.AuditEntry{
		ActorID:    &user.ID,
		ActorEmail: user.Email,
		ActorRole:  string(user.Role),
		Action:     domain.ActionLogout,
		IP:         meta.IP,
		UserAgent:  meta.UserAgent,
		Endpoint:   meta.Endpoint,
		HTTPMethod: meta.Method,
		Status:     domain.AuditSuccess,
	})

	return nil
}

func (s *AuthService) recordLogin(ctx context.Context, action domain.AuditAction, actorID *string, email, role string, status domain.AuditStatus, description string, metadata map[string]any, meta RequestMeta) {
	s.audit.Record(ctx, domain.AuditEntry{
		ActorID:     actorID,
		ActorEmail:  email,
		ActorRole:   role,
		Action:      action,
		Description: description,
		Metadata:    metadata,
		IP:          meta.IP,
		UserAgent:   meta.UserAgent,
		Endpoint:    meta.Endpoint,
		HTTPMethod:  meta.Method,
		Status:      status,
	})
}

func (s *AuthService) lockoutThreshold() int {
	if s.cfg.Lockout.MaxAttempts > 0 {
		return s.cfg.Lockout.MaxAttempts
	}
	return 5
}

func (s *AuthService) lockoutDuration() time.Duration {
	if s.cfg.Lockout.LockDuration > 0 {
		return s.cfg.Lockout.LockDuration
	}
	return 30 * time.Minute
}

func (s *AuthService) sessionCap() int {
	if s.cfg.Sessions.MaxPerUser > 0 {
		return s.cfg.Sessions.MaxPerUser
	}
	return 5
}

func (s *AuthService) sessionTTL() time.Duration {
	if s.cfg.Sessions.TTL > 0 {
		return s.cfg.Sessions.TTL
	}
	return 7 * 24 * time.Hour
}

func (s *AuthService) tokenTTL() time.Duration {
	if s.cfg.JWT.AccessTokenTTL > 0 {
		return s.cfg.JWT.AccessTokenTTL
	}
	return 7 * 24 * time.Hour
}
