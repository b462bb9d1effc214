package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/Tchelo1688/brvm-academy-iam/internal/core/domain"
	"github.com/Tchelo1688/brvm-academy-iam/internal/usecase"
)

// AuditHandler exposes operator endpoints over the security audit log.
type AuditHandler struct {
	audit *usecase.AuditService
}

// NewAuditHandler constructs AuditHandler.
func NewAuditHandler(audit *usecase.AuditService) *AuditHandler {
	return &AuditHandler{audit: audit}
}

// RegisterRoutes binds audit routes. Access control is applied by the caller.
func (h *AuditHandler) RegisterRoutes(r *gin.RouterGroup) {
	r.GET("", h.list)
	r.GET("/overview", h.overview)
}

// List godoc
// @Summary Query the audit log
// @Description Pages through audit entries filtered by actor, action, status, IP, and time range.
// @Tags Audit
// @Produce json
// @Param actor_id query string false "Actor user ID"
// @Param action query string false "Audit action"
// @Param status query string false "Entry status (success, failure, warning)"
// @Param ip query string false "Client IP"
// @Param from query string false "Start of time range (RFC 3339)"
// @Param to query string false "End of time range (RFC 3339)"
// @Param limit query int false "Page size (max 200)"
// @Param offset query int false "Page offset"
// @Success 200 {object} AuditListResponse
// @Failure 400 {object} ErrorResponse
// @Failure 401 {object} ErrorResponse
// @Failure 403 {object} ErrorResponse
// @Failure 500 {object} ErrorResponse
// @Router /api/v1/audit [get]
func (h *AuditHandler) list(c *gin.Context) {
	filter, err := parseAuditFilter(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, err.Error()))
		return
	}

	limit := parseIntQuery(c, "limit", 50)
	offset := parseIntQuery(c, "offset", 0)
	if offset < 0 {
		offset = 0
	}

	entries, total, err := h.audit.Query(c.Request.Context(), filter, limit, offset)
	if err != nil {
		if errors.Is(err, usecase.ErrUnknownAuditAction) {
			c.JSON(http.StatusBadRequest, NewErrorResponse(c, "unknown audit action"))
			return
		}
		c.JSON(http.StatusInternalServerError, NewErrorResponse(c, "failed to query audit log"))
		return
	}

	views := make([]AuditEntryView, 0, len(entries))
	for _, entry := range entries {
		views = append(views, newAuditEntryView(entry))
	}

	c.JSON(http.StatusOK, AuditListResponse{
		Entries: views,
		Total:   total,
		Limit:   limit,
		Offset:  offset,
	})
}

// Overview godoc
// @Summary Security overview
// @Description Aggregates recent login failures, lockouts, and suspicious IP activity.
// @Tags Audit
// @Produce json
// @Success 200 {object} SecurityOverviewResponse
// @Failure 401 {object} ErrorResponse
// @Failure 403 {object} ErrorResponse
// @Failure 500 {object} ErrorResponse
// @Router /api/v1/audit/overview [get]
func (h *AuditHandler) overview(c *gin.Context) {
	overview, err := h.audit.SecurityOverview(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, NewErrorResponse(c, "failed to build security overview"))
		return
	}

	c.JSON(http.StatusOK, SecurityOverviewResponse{
		FailedLogins24h: overview.FailedLogins24h,
		FailedLogins7d:  overview.FailedLogins7d,
		LockedAccounts:  overview.LockedAccounts7d,
		SuspiciousIPs:   overview.SuspiciousIPs,
		ActionBreakdown: overview.ActionBreakdown,
		GeneratedAt:     overview.GeneratedAt,
	})
}

func parseAuditFilter(c *gin.Context) (domain.AuditFilter, error) {
	var filter domain.AuditFilter

	if actorID := strings.TrimSpace(c.Query("actor_id")); actorID != "" {
		filter.ActorID = &actorID
	}
	if action := strings.TrimSpace(c.Query("action")); action != "" {
		auditAction := domain.AuditAction(action)
		filter.Action = &auditAction
	}
	if status := strings.TrimSpace(c.Query("status")); status != "" {
		auditStatus := domain.AuditStatus(status)
		filter.Status = &auditStatus
	}
	if ip := strings.TrimSpace(c.Query("ip")); ip != "" {
		filter.IP = &ip
	}

	if from := strings.TrimSpace(c.Query("from")); from != "" {
		parsed, err := time.Parse(time.RFC3339, from)
		if err != nil {
			return filter, errors.New("invalid 'from' timestamp, expected RFC 3339")
		}
		filter.From = &parsed
	}
	if to := strings.TrimSpace(c.Query("to")); to != "" {
		parsed, err := time.Parse(time.RFC3339, to)
		if err != nil {
			return filter, errors.New("invalid 'to' timestamp, expected RFC 3339")
		}
		filter.To = &parsed
	}

	return filter, nil
}

func parseIntQuery(c *gin.Context, name string, fallback int) int {
	raw := strings.TrimSpace(c.Query(name))
	if raw == "" {
		return fallback
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return value
}
