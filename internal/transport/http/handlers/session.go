package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/Tchelo1688/brvm-academy-iam/internal/transport/http/middleware"
	"github.com/Tchelo1688/brvm-academy-iam/internal/usecase"
)

// SessionHandler exposes session management endpoints.
type SessionHandler struct {
	sessions *usecase.SessionService
}

// NewSessionHandler constructs SessionHandler.
func NewSessionHandler(sessions *usecase.SessionService) *SessionHandler {
	return &SessionHandler{sessions: sessions}
}

// RegisterRoutes binds session routes. All routes require authentication.
func (h *SessionHandler) RegisterRoutes(r *gin.RouterGroup) {
	r.GET("", h.list)
	r.POST("/revoke-all", h.revokeAll)
	r.DELETE("/:id", h.revoke)
}

// List godoc
// @Summary List active sessions
// @Description Returns the caller's active sessions with truncated identifiers, newest first.
// @Tags Sessions
// @Produce json
// @Success 200 {object} SessionListResponse
// @Failure 401 {object} ErrorResponse
// @Failure 500 {object} ErrorResponse
// @Router /api/v1/auth/sessions [get]
func (h *SessionHandler) list(c *gin.Context) {
	user, ok := middleware.CurrentUser(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, NewErrorResponse(c, "authentication required"))
		return
	}

	sessions, err := h.sessions.List(c.Request.Context(), user.ID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, NewErrorResponse(c, "failed to list sessions"))
		return
	}

	currentSessionID := ""
	if claims := middleware.GetAccessTokenClaims(c); claims != nil {
		currentSessionID = claims.SessionID
	}

	summaries := make([]SessionSummary, 0, len(sessions))
	for _, session := range sessions {
		summaries = append(summaries, newSessionSummary(session, currentSessionID))
	}

	c.JSON(http.StatusOK, SessionListResponse{
		Sessions: summaries,
		Count:    len(summaries),
	})
}

// Revoke godoc
// @Summary Revoke one session
// @Description Deletes a session owned by the caller. Accepts the full session ID.
// @Tags Sessions
// @Produce json
// @Param id path string true "Session ID"
// @Success 204 {string} string ""
// @Failure 400 {object} ErrorResponse
// @Failure 401 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Failure 500 {object} ErrorResponse
// @Router /api/v1/auth/sessions/{id} [delete]
func (h *SessionHandler) revoke(c *gin.Context) {
	user, ok := middleware.CurrentUser(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, NewErrorResponse(c, "authentication required"))
		return
	}

	sessionID := strings.TrimSpace(c.Param("id"))
	if sessionID == "" {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "session id is required"))
		return
	}

	err := h.sessions.Revoke(c.Request.Context(), *user, sessionID, middleware.RequestMeta(c))
	if err != nil {
		if errors.Is(err, usecase.ErrSessionNotFound) {
			c.JSON(http.StatusNotFound, NewErrorResponse(c, "session not found"))
			return
		}
		c.JSON(http.StatusInternalServerError, NewErrorResponse(c, "failed to revoke session"))
		return
	}

	c.Status(http.StatusNoContent)
}

// RevokeAll godoc
// @Summary Revoke all sessions
// @Description Deletes every session for the caller, including the current one.
// @Tags Sessions
// @Produce json
// @Success 200 {object} SessionRevokeAllResponse
// @Failure 401 {object} ErrorResponse
// @Failure 500 {object} ErrorResponse
// @Router /api/v1/auth/sessions/revoke-all [post]
func (h *SessionHandler) revokeAll(c *gin.Context) {
	user, ok := middleware.CurrentUser(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, NewErrorResponse(c, "authentication required"))
		return
	}

	revoked, err := h.sessions.RevokeAll(c.Request.Context(), *user, middleware.RequestMeta(c))
	if err != nil {
		c.JSON(http.StatusInternalServerError, NewErrorResponse(c, "failed to revoke sessions"))
		return
	}

	c.JSON(http.StatusOK, SessionRevokeAllResponse{
		Message: "all sessions revoked, please log in again",
		Revoked: revoked,
	})
}
