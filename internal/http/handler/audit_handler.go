package handler

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/archject/portal-access/internal/audit"
	"github.com/archject/portal-access/internal/domain"
	"github.com/archject/portal-access/internal/http/middleware"
)

// AuditHandler exposes the trail to staff.
type AuditHandler struct {
	Trail *audit.Trail
}

func NewAuditHandler(trail *audit.Trail) *AuditHandler {
	return &AuditHandler{Trail: trail}
}

// Query returns trail entries newest first, filtered by actor, action, and
// time range.
func (h *AuditHandler) Query(c *gin.Context) {
	tenantCtx, ok := middleware.GetTenantContext(c)
	if !ok {
		respondMissingTenant(c)
		return
	}

	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))

	q := domain.AuditQuery{
		TenantID: tenantCtx.Studio.ID,
		ActorID:  c.Query("actor_id"),
		Action:   domain.AuditAction(c.Query("action")),
		Limit:    limit,
		Offset:   offset,
	}
	if raw := c.Query("from"); raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request", "error_description": "from must be RFC 3339."})
			return
		}
		q.From = t
	}
	if raw := c.Query("to"); raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request", "error_description": "to must be RFC 3339."})
			return
		}
		q.To = t
	}

	entries, err := h.Trail.Query(c.Request.Context(), q)
	if err != nil {
		respondError(c, err)
		return
	}
	if entries == nil {
		entries = []domain.AuditLogEntry{}
	}
	c.JSON(http.StatusOK, gin.H{"entries": entries})
}
