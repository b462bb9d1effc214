package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/Tchelo1688/brvm-academy-iam/internal/transport/http/middleware"
	"github.com/Tchelo1688/brvm-academy-iam/internal/usecase"
)

// AuthHandler exposes authentication endpoints.
type AuthHandler struct {
	auth         *usecase.AuthService
	registration *usecase.RegistrationService
	audit        *usecase.AuditService
}

// NewAuthHandler constructs AuthHandler.
func NewAuthHandler(auth *usecase.AuthService, registration *usecase.RegistrationService, audit *usecase.AuditService) *AuthHandler {
	return &AuthHandler{
		auth:         auth,
		registration: registration,
		audit:        audit,
	}
}

// RegisterRoutes binds authentication routes, applying optional middleware ahead of handlers.
func (h *AuthHandler) RegisterRoutes(r *gin.RouterGroup, loginMiddlewares, registerMiddlewares []gin.HandlerFunc) {
	registerChain := append([]gin.HandlerFunc{}, registerMiddlewares...)
	registerChain = append(registerChain, h.register)
	r.POST("/register", registerChain...)

	loginChain := append([]gin.HandlerFunc{}, loginMiddlewares...)
	loginChain = append(loginChain, h.login)
	r.POST("/login", loginChain...)

	r.POST("/logout", middleware.RequireAuth(h.auth, h.audit), h.logout)
	r.GET("/me", middleware.RequireAuth(h.auth, h.audit), h.me)
}

// Register godoc
// @Summary Register a new user account
// @Description Creates the account with the default role and starts an initial session.
// @Tags Authentication
// @Accept json
// @Produce json
// @Param request body RegistrationRequest true "Registration request payload"
// @Success 201 {object} AuthLoginResponse
// @Failure 400 {object} ErrorResponse
// @Failure 500 {object} ErrorResponse
// @Router /api/v1/auth/register [post]
func (h *AuthHandler) register(c *gin.Context) {
	var req RegistrationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "invalid registration payload"))
		return
	}

	result, err := h.registration.Register(c.Request.Context(), usecase.RegisterInput{
		Name:     req.Name,
		Email:    req.Email,
		Password: req.Password,
		Country:  req.Country,
		Meta:     middleware.RequestMeta(c),
	})
	if err != nil {
		status, body := registerFailureResponse(c, err)
		c.JSON(status, body)
		return
	}

	c.JSON(http.StatusCreated, AuthLoginResponse{
		Token:     result.Token,
		TokenType: "Bearer",
		User:      newUserSummary(result.User),
		SessionID: result.SessionID,
	})
}

// Login godoc
// @Summary Authenticate a user
// @Description Verifies credentials and the second factor when enabled, then issues a session token.
// @Tags Authentication
// @Accept json
// @Produce json
// @Param request body AuthLoginRequest true "Login request payload"
// @Success 200 {object} AuthLoginResponse
// @Failure 400 {object} ErrorResponse
// @Failure 401 {object} ErrorResponse
// @Failure 423 {object} ErrorResponse
// @Failure 500 {object} ErrorResponse
// @Router /api/v1/auth/login [post]
func (h *AuthHandler) login(c *gin.Context) {
	var req AuthLoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "invalid login payload"))
		return
	}

	result, err := h.auth.Login(c.Request.Context(), usecase.LoginInput{
		Email:         req.Email,
		Password:      req.Password,
		TwoFactorCode: req.TwoFactorCode,
		Meta:          middleware.RequestMeta(c),
	})
	if err != nil {
		status, body := loginFailureResponse(c, err, time.Now())
		c.JSON(status, body)
		return
	}

	c.JSON(http.StatusOK, AuthLoginResponse{
		Token:          result.Token,
		TokenType:      "Bearer",
		User:           newUserSummary(result.User),
		SessionID:      result.SessionID,
		UsedBackupCode: result.UsedBackupCode,
	})
}

// registerFailureResponse maps registration errors onto transport responses.
// Duplicate emails answer 400 like any other rejected input so the status code
// itself does not confirm an account exists.
func registerFailureResponse(c *gin.Context, err error) (int, ErrorResponse) {
	var pgErr *pgconn.PgError

	switch {
	case errors.As(err, &pgErr) && pgErr.Code == "23505",
		errors.Is(err, usecase.ErrEmailTaken):
		return http.StatusBadRequest, NewErrorResponse(c, "email already registered")
	case errors.Is(err, usecase.ErrInvalidName):
		return http.StatusBadRequest, NewErrorResponse(c, "name must be between 2 and 50 characters")
	}

	if msg := policyViolationMessage(err); msg != "" {
		return http.StatusBadRequest, NewErrorResponse(c, msg)
	}

	return http.StatusInternalServerError, NewErrorResponse(c, "failed to register user")
}

// loginFailureResponse maps login failures onto transport responses. Lock and
// credential errors carry their countdowns so clients can tell users how long
// to wait and how many attempts remain.
func loginFailureResponse(c *gin.Context, err error, now time.Time) (int, any) {
	var lockedErr *usecase.AccountLockedError
	var credsErr *usecase.CredentialsError

	switch {
	case errors.Is(err, usecase.ErrTwoFactorRequired):
		// The password matched; the client should re-submit with a code.
		return http.StatusOK, AuthPendingResponse{
			Requires2FA: true,
			Message:     "two-factor code required",
		}
	case errors.As(err, &lockedErr):
		minutes := remainingLockMinutes(lockedErr.Until, now)
		resp := NewErrorResponse(c, fmt.Sprintf("account temporarily locked, retry in %d min", minutes))
		resp.RetryAfterMinutes = minutes
		return http.StatusLocked, resp
	case errors.Is(err, usecase.ErrAccountLocked):
		return http.StatusLocked, NewErrorResponse(c, "account temporarily locked due to failed login attempts")
	case errors.As(err, &credsErr):
		left := credsErr.AttemptsLeft
		resp := NewErrorResponse(c, fmt.Sprintf("invalid email or password, %d attempts left", left))
		resp.AttemptsLeft = &left
		return http.StatusUnauthorized, resp
	case errors.Is(err, usecase.ErrInvalidCredentials),
		errors.Is(err, usecase.ErrAccountDisabled):
		return http.StatusUnauthorized, NewErrorResponse(c, "invalid email or password")
	case errors.Is(err, usecase.ErrInvalidTwoFactorCode):
		return http.StatusUnauthorized, NewErrorResponse(c, "invalid two-factor code")
	default:
		return http.StatusInternalServerError, NewErrorResponse(c, "login failed")
	}
}

// remainingLockMinutes rounds the lock deadline up to whole minutes; a lock
// about to expire still reports one minute.
func remainingLockMinutes(until, now time.Time) int {
	minutes := int((until.Sub(now) + time.Minute - 1) / time.Minute)
	if minutes < 1 {
		minutes = 1
	}
	return minutes
}

// Logout godoc
// @Summary Logout the current session
// @Description Revokes the caller's session using the access token's session context. Idempotent.
// @Tags Authentication
// @Produce json
// @Success 200 {object} MessageResponse
// @Failure 401 {object} ErrorResponse
// @Router /api/v1/auth/logout [post]
func (h *AuthHandler) logout(c *gin.Context) {
	user, ok := middleware.CurrentUser(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, NewErrorResponse(c, "authentication required"))
		return
	}

	sessionID := ""
	if claims := middleware.GetAccessTokenClaims(c); claims != nil {
		sessionID = strings.TrimSpace(claims.SessionID)
	}

	// Logout is idempotent: a session already gone still answers 200.
	if err := h.auth.Logout(c.Request.Context(), *user, sessionID, middleware.RequestMeta(c)); err != nil {
		c.JSON(http.StatusInternalServerError, NewErrorResponse(c, "failed to revoke session"))
		return
	}

	c.JSON(http.StatusOK, MessageResponse{Message: "logged out"})
}

// Me godoc
// @Summary Current user profile
// @Description Returns the authenticated user's profile summary.
// @Tags Authentication
// @Produce json
// @Success 200 {object} UserSummary
// @Failure 401 {object} ErrorResponse
// @Router /api/v1/auth/me [get]
func (h *AuthHandler) me(c *gin.Context) {
	user, ok := middleware.CurrentUser(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, NewErrorResponse(c, "authentication required"))
		return
	}

	c.JSON(http.StatusOK, newUserSummary(*user))
}
