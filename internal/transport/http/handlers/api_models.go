package handlers

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/Tchelo1688/brvm-academy-iam/internal/core/domain"
)

const (
	sessionIDDisplayLength = 8
	userAgentDisplayLength = 100
)

// ErrorResponse represents a generic error payload with trace ID for debugging.
// Login failures additionally carry attempts left or the lock countdown.
type ErrorResponse struct {
	Error             string `json:"error"`
	TraceID           string `json:"trace_id,omitempty"`
	AttemptsLeft      *int   `json:"attempts_left,omitempty"`
	RetryAfterMinutes int    `json:"retry_after_minutes,omitempty"`
}

// NewErrorResponse creates an error response with trace ID from context
func NewErrorResponse(c *gin.Context, errorMsg string) ErrorResponse {
	traceID, _ := c.Get("trace_id")
	traceIDStr, _ := traceID.(string)

	return ErrorResponse{
		Error:   errorMsg,
		TraceID: traceIDStr,
	}
}

// MessageResponse represents a simple message payload.
type MessageResponse struct {
	Message string `json:"message"`
}

// UserSummary describes a minimal view of a user returned by the API.
type UserSummary struct {
	ID               string  `json:"id"`
	Name             string  `json:"name"`
	Email            string  `json:"email"`
	Country          string  `json:"country,omitempty"`
	Role             string  `json:"role"`
	TwoFactorEnabled bool    `json:"two_factor_enabled"`
	LastLoginAt      *string `json:"last_login_at,omitempty"`
}

func newUserSummary(user domain.User) UserSummary {
	summary := UserSummary{
		ID:               user.ID,
		Name:             user.Name,
		Email:            user.Email,
		Country:          user.Country,
		Role:             string(user.Role),
		TwoFactorEnabled: user.TwoFactorEnabled,
	}
	if user.LastLoginAt != nil {
		lastLogin := user.LastLoginAt.UTC().Format(time.RFC3339)
		summary.LastLoginAt = &lastLogin
	}
	return summary
}

// AuthLoginRequest defines the payload for the login endpoint.
type AuthLoginRequest struct {
	Email         string `json:"email" binding:"required,email"`
	Password      string `json:"password" binding:"required"`
	TwoFactorCode string `json:"two_factor_code"`
}

// AuthLoginResponse describes the response returned for a successful login.
type AuthLoginResponse struct {
	Token          string      `json:"token"`
	TokenType      string      `json:"token_type"`
	User           UserSummary `json:"user"`
	SessionID      string      `json:"session_id"`
	UsedBackupCode bool        `json:"used_backup_code,omitempty"`
}

// AuthPendingResponse is returned when a login needs a second factor.
type AuthPendingResponse struct {
	Requires2FA bool   `json:"requires_2fa"`
	Message     string `json:"message"`
}

// RegistrationRequest defines the account registration payload.
type RegistrationRequest struct {
	Name     string `json:"name" binding:"required"`
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required,min=8"`
	Country  string `json:"country"`
}

// PasswordChangeRequest carries a credential rotation payload.
type PasswordChangeRequest struct {
	CurrentPassword string `json:"current_password" binding:"required"`
	NewPassword     string `json:"new_password" binding:"required,min=8"`
}

// PasswordChangeResponse returns the fresh session issued after a change.
type PasswordChangeResponse struct {
	Message         string `json:"message"`
	Token           string `json:"token"`
	SessionsRevoked int    `json:"sessions_revoked"`
}

// PasswordResetRequestPayload starts the reset flow.
type PasswordResetRequestPayload struct {
	Email string `json:"email" binding:"required,email"`
}

// PasswordResetRequestResponse acknowledges a reset request without
// revealing whether the email exists.
type PasswordResetRequestResponse struct {
	Message string `json:"message"`
	// SECURITY: DevToken is ONLY exposed in development mode.
	DevToken *string `json:"dev_token,omitempty"` // Development only
}

// PasswordResetConfirmRequest completes the reset flow.
type PasswordResetConfirmRequest struct {
	Token       string `json:"token" binding:"required"`
	NewPassword string `json:"new_password" binding:"required,min=8"`
}

// TwoFactorSetupResponse carries the enrollment material. Backup codes
// are shown exactly once.
type TwoFactorSetupResponse struct {
	Secret          string   `json:"secret"`
	ProvisioningURI string   `json:"provisioning_uri"`
	BackupCodes     []string `json:"backup_codes"`
}

// TwoFactorVerifyRequest confirms enrollment with an authenticator code.
type TwoFactorVerifyRequest struct {
	Code string `json:"code" binding:"required"`
}

// TwoFactorDisableRequest turns 2FA off after password re-verification.
type TwoFactorDisableRequest struct {
	Password string `json:"password" binding:"required"`
}

// SessionSummary provides a compact view of an active session. The ID is
// truncated so listings cannot be replayed as bearer references.
type SessionSummary struct {
	ID        string    `json:"id"`
	IP        string    `json:"ip"`
	UserAgent string    `json:"user_agent"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
	Current   bool      `json:"current"`
}

func newSessionSummary(session domain.Session, currentSessionID string) SessionSummary {
	id := session.ID
	if len(id) > sessionIDDisplayLength {
		id = id[:sessionIDDisplayLength]
	}
	userAgent := session.UserAgent
	if len(userAgent) > userAgentDisplayLength {
		userAgent = userAgent[:userAgentDisplayLength]
	}
	return SessionSummary{
		ID:        id,
		IP:        session.IP,
		UserAgent: userAgent,
		CreatedAt: session.CreatedAt,
		ExpiresAt: session.ExpiresAt,
		Current:   session.ID == currentSessionID,
	}
}

// SessionListResponse wraps the session listing payload.
type SessionListResponse struct {
	Sessions []SessionSummary `json:"sessions"`
	Count    int              `json:"count"`
}

// SessionRevokeAllResponse reports how many sessions were revoked.
type SessionRevokeAllResponse struct {
	Message string `json:"message"`
	Revoked int    `json:"revoked"`
}

// AuditEntryView is the operator-facing audit record shape.
type AuditEntryView struct {
	ID          string         `json:"id"`
	ActorID     *string        `json:"actor_id,omitempty"`
	ActorEmail  string         `json:"actor_email,omitempty"`
	ActorRole   string         `json:"actor_role,omitempty"`
	Action      string         `json:"action"`
	Description string         `json:"description,omitempty"`
	Metadata    map[string]any `json:"metadata,omitempty"`
	IP          string         `json:"ip,omitempty"`
	UserAgent   string         `json:"user_agent,omitempty"`
	Endpoint    string         `json:"endpoint,omitempty"`
	HTTPMethod  string         `json:"http_method,omitempty"`
	Status      string         `json:"status"`
	Timestamp   time.Time      `json:"timestamp"`
}

func newAuditEntryView(entry domain.AuditEntry) AuditEntryView {
	return AuditEntryView{
		ID:          entry.ID,
		ActorID:     entry.ActorID,
		ActorEmail:  entry.ActorEmail,
		ActorRole:   entry.ActorRole,
		Action:      string(entry.Action),
		Description: entry.Description,
		Metadata:    entry.Metadata,
		IP:          entry.IP,
		UserAgent:   entry.UserAgent,
		Endpoint:    entry.Endpoint,
		HTTPMethod:  entry.HTTPMethod,
		Status:      string(entry.Status),
		Timestamp:   entry.Timestamp,
	}
}

// AuditListResponse pages through audit records.
type AuditListResponse struct {
	Entries []AuditEntryView `json:"entries"`
	Total   int64            `json:"total"`
	Limit   int              `json:"limit"`
	Offset  int              `json:"offset"`
}

// SecurityOverviewResponse summarises recent authentication failures.
type SecurityOverviewResponse struct {
	FailedLogins24h int64                   `json:"failed_logins_24h"`
	FailedLogins7d  int64                   `json:"failed_logins_7d"`
	LockedAccounts  int64                   `json:"locked_accounts_7d"`
	SuspiciousIPs   []domain.IPFailureCount `json:"suspicious_ips"`
	ActionBreakdown []domain.ActionCount    `json:"action_breakdown"`
	GeneratedAt     time.Time               `json:"generated_at"`
}

// HealthResponse describes the service health payload.
type HealthResponse struct {
	Status    string    `json:"status"`
	StartedAt time.Time `json:"started_at"`
}

// ReadinessCheckResult captures a single dependency probe outcome.
type ReadinessCheckResult struct {
	Name   string `json:"name"`
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}

// ReadinessResponse aggregates dependency probe results.
type ReadinessResponse struct {
	Status string                 `json:"status"`
	Checks []ReadinessCheckResult `json:"checks"`
}
