package middleware

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/Tchelo1688/brvm-academy-iam/internal/core/domain"
	"github.com/Tchelo1688/brvm-academy-iam/internal/usecase"
)

const (
	// CurrentUserKey is the context key for the authenticated user.
	CurrentUserKey = "current_user"
	// ClaimsKey is the context key for the parsed token claims.
	ClaimsKey = "claims"
)

// ErrorResponse matches the handlers.ErrorResponse structure
type ErrorResponse struct {
	Error   string `json:"error"`
	TraceID string `json:"trace_id,omitempty"`
}

// newErrorResponse creates an error response with trace ID
func newErrorResponse(c *gin.Context, errorMsg string) ErrorResponse {
	return ErrorResponse{
		Error:   errorMsg,
		TraceID: GetTraceID(c),
	}
}

// RequestMeta builds the attribution record audited flows attach to entries.
func RequestMeta(c *gin.Context) usecase.RequestMeta {
	endpoint := c.FullPath()
	if endpoint == "" {
		endpoint = c.Request.URL.Path
	}
	return usecase.RequestMeta{
		IP:        c.ClientIP(),
		UserAgent: c.Request.UserAgent(),
		Endpoint:  endpoint,
		Method:    c.Request.Method,
	}
}

// RequireAuth validates the Authorization header against live account and
// session state, then stores the user and claims in the request context.
func RequireAuth(authService *usecase.AuthService, auditService *usecase.AuditService) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized,
				newErrorResponse(c, "missing authorization header"))
			return
		}

		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
			c.AbortWithStatusJSON(http.StatusUnauthorized,
				newErrorResponse(c, "invalid authorization format: expected 'Bearer <token>'"))
			return
		}

		token := strings.TrimSpace(parts[1])
		if token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized,
				newErrorResponse(c, "missing access token"))
			return
		}

		user, claims, err := authService.ValidateToken(c.Request.Context(), token)
		if err != nil {
			recordTokenRejection(c, auditService, err)

			switch {
			case errors.Is(err, usecase.ErrExpiredAccessToken):
				c.AbortWithStatusJSON(http.StatusUnauthorized,
					newErrorResponse(c, "access token expired"))
			case errors.Is(err, usecase.ErrStaleToken):
				c.AbortWithStatusJSON(http.StatusUnauthorized,
					newErrorResponse(c, "password changed, please log in again"))
			case errors.Is(err, usecase.ErrSessionRevoked):
				c.AbortWithStatusJSON(http.StatusUnauthorized,
					newErrorResponse(c, "session revoked"))
			case errors.Is(err, usecase.ErrSessionExpired):
				c.AbortWithStatusJSON(http.StatusUnauthorized,
					newErrorResponse(c, "session expired"))
			case errors.Is(err, usecase.ErrAccountDisabled):
				c.AbortWithStatusJSON(http.StatusUnauthorized,
					newErrorResponse(c, "account disabled"))
			case errors.Is(err, usecase.ErrInvalidAccessToken):
				c.AbortWithStatusJSON(http.StatusUnauthorized,
					newErrorResponse(c, "invalid access token"))
			default:
				c.AbortWithStatusJSON(http.StatusInternalServerError,
					newErrorResponse(c, "authentication failed"))
			}
			return
		}

		c.Set(UserIDKey, user.ID)
		c.Set(CurrentUserKey, user)
		c.Set(ClaimsKey, claims)

		if reqCtx := GetRequestContext(c); reqCtx != nil {
			reqCtx.UserID = user.ID
		}

		c.Next()
	}
}

// RequireRole checks that the authenticated user's role sits at or above
// the required role in the hierarchy.
func RequireRole(auditService *usecase.AuditService, role domain.Role) gin.HandlerFunc {
	return func(c *gin.Context) {
		user, ok := CurrentUser(c)
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized,
				newErrorResponse(c, "authentication required"))
			return
		}

		if !user.Role.AtLeast(role) {
			recordAccessDenial(c, auditService, user, map[string]any{"requiredRole": string(role)})
			c.AbortWithStatusJSON(http.StatusForbidden,
				newErrorResponse(c, "insufficient permissions"))
			return
		}

		c.Next()
	}
}

// RequirePermission checks that the authenticated user's role grants the
// named permission.
func RequirePermission(auditService *usecase.AuditService, permission string) gin.HandlerFunc {
	return func(c *gin.Context) {
		user, ok := CurrentUser(c)
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized,
				newErrorResponse(c, "authentication required"))
			return
		}

		if !user.Role.HasPermission(permission) {
			recordAccessDenial(c, auditService, user, map[string]any{"requiredPermission": permission})
			c.AbortWithStatusJSON(http.StatusForbidden,
				newErrorResponse(c, "insufficient permissions"))
			return
		}

		c.Next()
	}
}

// CurrentUser retrieves the authenticated user from context.
func CurrentUser(c *gin.Context) (*domain.User, bool) {
	value, exists := c.Get(CurrentUserKey)
	if !exists {
		return nil, false
	}

	user, ok := value.(*domain.User)
	if !ok || user == nil {
		return nil, false
	}

	return user, true
}

// GetAccessTokenClaims retrieves the parsed claims from context.
func GetAccessTokenClaims(c *gin.Context) *usecase.SessionTokenClaims {
	value, exists := c.Get(ClaimsKey)
	if !exists {
		return nil
	}

	claims, ok := value.(*usecase.SessionTokenClaims)
	if !ok {
		return nil
	}

	return claims
}

// GetAuthenticatedUserID retrieves the user ID from context (helper for handlers)
func GetAuthenticatedUserID(c *gin.Context) (string, bool) {
	userID, exists := c.Get(UserIDKey)
	if !exists {
		return "", false
	}

	if id, ok := userID.(string); ok {
		return id, true
	}

	return "", false
}

func recordTokenRejection(c *gin.Context, auditService *usecase.AuditService, err error) {
	if auditService == nil {
		return
	}

	// Server-side failures are not audit events.
	if !errors.Is(err, usecase.ErrInvalidAccessToken) &&
		!errors.Is(err, usecase.ErrExpiredAccessToken) &&
		!errors.Is(err, usecase.ErrStaleToken) &&
		!errors.Is(err, usecase.ErrSessionRevoked) &&
		!errors.Is(err, usecase.ErrSessionExpired) &&
		!errors.Is(err, usecase.ErrAccountDisabled) {
		return
	}

	meta := RequestMeta(c)
	auditService.Record(c.Request.Context(), domain.AuditEntry{
		Action:      domain.ActionInvalidToken,
		Description: err.Error(),
		IP:          meta.IP,
		UserAgent:   meta.UserAgent,
		Endpoint:    meta.Endpoint,
		HTTPMethod:  meta.Method,
		Status:      domain.AuditFailure,
	})
}

func recordAccessDenial(c *gin.Context, auditService *usecase.AuditService, user *domain.User, metadata map[string]any) {
	if auditService == nil {
		return
	}

	meta := RequestMeta(c)
	auditService.Record(c.Request.Context(), domain.AuditEntry{
		ActorID:    &user.ID,
		ActorEmail: user.Email,
		ActorRole:  string(user.Role),
		Action:     domain.ActionUnauthorizedAccess,
		Metadata:   metadata,
		IP:         meta.IP,
		UserAgent:  meta.UserAgent,
		Endpoint:   meta.Endpoint,
		HTTPMethod: meta.Method,
		Status:     domain.AuditWarning,
	})
}
