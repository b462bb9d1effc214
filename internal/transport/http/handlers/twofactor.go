package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/Tchelo1688/brvm-academy-iam/internal/transport/http/middleware"
	"github.com/Tchelo1688/brvm-academy-iam/internal/usecase"
)

// TwoFactorHandler exposes TOTP enrollment endpoints.
type TwoFactorHandler struct {
	twoFactor *usecase.TwoFactorService
}

// NewTwoFactorHandler constructs TwoFactorHandler.
func NewTwoFactorHandler(twoFactor *usecase.TwoFactorService) *TwoFactorHandler {
	return &TwoFactorHandler{twoFactor: twoFactor}
}

// RegisterRoutes binds two-factor routes. All routes require authentication.
func (h *TwoFactorHandler) RegisterRoutes(r *gin.RouterGroup) {
	r.POST("/setup", h.setup)
	r.POST("/verify", h.verify)
	r.POST("/disable", h.disable)
}

// Setup godoc
// @Summary Begin two-factor enrollment
// @Description Generates a TOTP secret and backup codes. Enrollment activates only after verification.
// @Tags TwoFactor
// @Produce json
// @Success 200 {object} TwoFactorSetupResponse
// @Failure 401 {object} ErrorResponse
// @Failure 409 {object} ErrorResponse
// @Failure 500 {object} ErrorResponse
// @Router /api/v1/auth/2fa/setup [post]
func (h *TwoFactorHandler) setup(c *gin.Context) {
	user, ok := middleware.CurrentUser(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, NewErrorResponse(c, "authentication required"))
		return
	}

	setup, err := h.twoFactor.Setup(c.Request.Context(), *user)
	if err != nil {
		if errors.Is(err, usecase.ErrTwoFactorAlreadyEnabled) {
			c.JSON(http.StatusConflict, NewErrorResponse(c, "two-factor authentication already enabled"))
			return
		}
		c.JSON(http.StatusInternalServerError, NewErrorResponse(c, "failed to start two-factor setup"))
		return
	}

	c.JSON(http.StatusOK, TwoFactorSetupResponse{
		Secret:          setup.Secret,
		ProvisioningURI: setup.ProvisioningURI,
		BackupCodes:     setup.BackupCodes,
	})
}

// Verify godoc
// @Summary Confirm two-factor enrollment
// @Description Verifies a code from the authenticator app and activates two-factor authentication.
// @Tags TwoFactor
// @Accept json
// @Produce json
// @Param request body TwoFactorVerifyRequest true "Verification payload"
// @Success 200 {object} MessageResponse
// @Failure 400 {object} ErrorResponse
// @Failure 401 {object} ErrorResponse
// @Failure 409 {object} ErrorResponse
// @Failure 500 {object} ErrorResponse
// @Router /api/v1/auth/2fa/verify [post]
func (h *TwoFactorHandler) verify(c *gin.Context) {
	user, ok := middleware.CurrentUser(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, NewErrorResponse(c, "authentication required"))
		return
	}

	var req TwoFactorVerifyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "invalid verification payload"))
		return
	}

	err := h.twoFactor.VerifyEnable(c.Request.Context(), *user, req.Code, middleware.RequestMeta(c))
	if err != nil {
		switch {
		case errors.Is(err, usecase.ErrTwoFactorAlreadyEnabled):
			c.JSON(http.StatusConflict, NewErrorResponse(c, "two-factor authentication already enabled"))
		case errors.Is(err, usecase.ErrTwoFactorNotConfigured):
			c.JSON(http.StatusBadRequest, NewErrorResponse(c, "two-factor setup has not been started"))
		case errors.Is(err, usecase.ErrInvalidTwoFactorCode):
			c.JSON(http.StatusBadRequest, NewErrorResponse(c, "invalid two-factor code"))
		default:
			c.JSON(http.StatusInternalServerError, NewErrorResponse(c, "failed to verify two-factor code"))
		}
		return
	}

	c.JSON(http.StatusOK, MessageResponse{Message: "two-factor authentication enabled"})
}

// Disable godoc
// @Summary Disable two-factor authentication
// @Description Turns off two-factor authentication after re-verifying the account password.
// @Tags TwoFactor
// @Accept json
// @Produce json
// @Param request body TwoFactorDisableRequest true "Disable payload"
// @Success 200 {object} MessageResponse
// @Failure 400 {object} ErrorResponse
// @Failure 401 {object} ErrorResponse
// @Failure 500 {object} ErrorResponse
// @Router /api/v1/auth/2fa/disable [post]
func (h *TwoFactorHandler) disable(c *gin.Context) {
	user, ok := middleware.CurrentUser(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, NewErrorResponse(c, "authentication required"))
		return
	}

	var req TwoFactorDisableRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "invalid disable payload"))
		return
	}

	err := h.twoFactor.Disable(c.Request.Context(), *user, req.Password, middleware.RequestMeta(c))
	if err != nil {
		switch {
		case errors.Is(err, usecase.ErrTwoFactorNotEnabled):
			c.JSON(http.StatusBadRequest, NewErrorResponse(c, "two-factor authentication is not enabled"))
		case errors.Is(err, usecase.ErrWrongPassword):
			c.JSON(http.StatusUnauthorized, NewErrorResponse(c, "password is incorrect"))
		default:
			c.JSON(http.StatusInternalServerError, NewErrorResponse(c, "failed to disable two-factor authentication"))
		}
		return
	}

	c.JSON(http.StatusOK, MessageResponse{Message: "two-factor authentication disabled"})
}
