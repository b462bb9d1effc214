package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/Tchelo1688/brvm-academy-iam/internal/transport/http/middleware"
	"github.com/Tchelo1688/brvm-academy-iam/internal/usecase"
)

// PasswordHandler exposes password rotation and recovery endpoints.
type PasswordHandler struct {
	passwords *usecase.PasswordService
	isDev     bool
}

// NewPasswordHandler constructs PasswordHandler.
func NewPasswordHandler(passwords *usecase.PasswordService, isDev bool) *PasswordHandler {
	return &PasswordHandler{
		passwords: passwords,
		isDev:     isDev,
	}
}

// ChangePassword godoc
// @Summary Change the account password
// @Description Rotates the password, revokes all sessions, and issues a fresh session token.
// @Tags Password
// @Accept json
// @Produce json
// @Param request body PasswordChangeRequest true "Password change payload"
// @Success 200 {object} PasswordChangeResponse
// @Failure 400 {object} ErrorResponse
// @Failure 401 {object} ErrorResponse
// @Failure 500 {object} ErrorResponse
// @Router /api/v1/auth/change-password [post]
func (h *PasswordHandler) ChangePassword(c *gin.Context) {
	user, ok := middleware.CurrentUser(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, NewErrorResponse(c, "authentication required"))
		return
	}

	var req PasswordChangeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "invalid password change payload"))
		return
	}

	result, err := h.passwords.Change(c.Request.Context(), *user, req.CurrentPassword, req.NewPassword, middleware.RequestMeta(c))
	if err != nil {
		switch {
		case errors.Is(err, usecase.ErrWrongPassword):
			c.JSON(http.StatusUnauthorized, NewErrorResponse(c, "current password is incorrect"))
		case errors.Is(err, usecase.ErrPasswordReused):
			c.JSON(http.StatusBadRequest, NewErrorResponse(c, "new password must differ from recently used passwords"))
		default:
			if msg := policyViolationMessage(err); msg != "" {
				c.JSON(http.StatusBadRequest, NewErrorResponse(c, msg))
				return
			}
			c.JSON(http.StatusInternalServerError, NewErrorResponse(c, "failed to change password"))
		}
		return
	}

	c.JSON(http.StatusOK, PasswordChangeResponse{
		Message:         "password changed, other sessions revoked",
		Token:           result.Token,
		SessionsRevoked: result.SessionsRevoked,
	})
}

// RequestReset godoc
// @Summary Request a password reset token
// @Description Always acknowledges the request without revealing whether the email is registered.
// @Tags Password
// @Accept json
// @Produce json
// @Param request body PasswordResetRequestPayload true "Reset request payload"
// @Success 200 {object} PasswordResetRequestResponse
// @Failure 400 {object} ErrorResponse
// @Failure 500 {object} ErrorResponse
// @Router /api/v1/auth/password-reset/request [post]
func (h *PasswordHandler) RequestReset(c *gin.Context) {
	var req PasswordResetRequestPayload
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "invalid reset request payload"))
		return
	}

	token, err := h.passwords.RequestReset(c.Request.Context(), req.Email, middleware.RequestMeta(c))
	if err != nil {
		c.JSON(http.StatusInternalServerError, NewErrorResponse(c, "failed to process reset request"))
		return
	}

	resp := PasswordResetRequestResponse{
		Message: "if the email is registered, reset instructions have been sent",
	}
	if h.isDev && token != "" {
		resp.DevToken = &token
	}

	c.JSON(http.StatusOK, resp)
}

// ConfirmReset godoc
// @Summary Complete a password reset
// @Description Consumes the reset token, sets the new password, and revokes all sessions.
// @Tags Password
// @Accept json
// @Produce json
// @Param request body PasswordResetConfirmRequest true "Reset confirmation payload"
// @Success 200 {object} MessageResponse
// @Failure 400 {object} ErrorResponse
// @Failure 500 {object} ErrorResponse
// @Router /api/v1/auth/password-reset/confirm [post]
func (h *PasswordHandler) ConfirmReset(c *gin.Context) {
	var req PasswordResetConfirmRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "invalid reset confirmation payload"))
		return
	}

	err := h.passwords.ResetPassword(c.Request.Context(), req.Token, req.NewPassword, middleware.RequestMeta(c))
	if err != nil {
		switch {
		case errors.Is(err, usecase.ErrInvalidResetToken):
			c.JSON(http.StatusBadRequest, NewErrorResponse(c, "invalid or expired reset token"))
		case errors.Is(err, usecase.ErrPasswordReused):
			c.JSON(http.StatusBadRequest, NewErrorResponse(c, "new password must differ from recently used passwords"))
		default:
			if msg := policyViolationMessage(err); msg != "" {
				c.JSON(http.StatusBadRequest, NewErrorResponse(c, msg))
				return
			}
			c.JSON(http.StatusInternalServerError, NewErrorResponse(c, "failed to reset password"))
		}
		return
	}

	c.JSON(http.StatusOK, MessageResponse{Message: "password reset, please log in with the new password"})
}
