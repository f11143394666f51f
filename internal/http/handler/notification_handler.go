package handler

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/archject/portal-access/internal/domain"
	"github.com/archject/portal-access/internal/http/middleware"
	"github.com/archject/portal-access/internal/notification"
)

// NotificationHandler serves the decision notification feed.
type NotificationHandler struct {
	Fanout *notification.Fanout
}

func NewNotificationHandler(fanout *notification.Fanout) *NotificationHandler {
	return &NotificationHandler{Fanout: fanout}
}

// Ingest accepts a trail event and fans it out to recipients. Staff only;
// upstream services post here when a decision changes.
func (h *NotificationHandler) Ingest(c *gin.Context) {
	tenantCtx, ok := middleware.GetTenantContext(c)
	if !ok {
		respondMissingTenant(c)
		return
	}

	var req struct {
		Type       string         `json:"type" binding:"required"`
		DecisionID string         `json:"decision_id" binding:"required"`
		ActorID    string         `json:"actor_id"`
		OwnerID    string         `json:"owner_id"`
		Assignees  []string       `json:"assignees"`
		Mentions   []string       `json:"mentions"`
		Payload    map[string]any `json:"payload"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request", "error_description": "Invalid event."})
		return
	}

	created, err := h.Fanout.Derive(c.Request.Context(), domain.TrailEvent{
		Type:       domain.NotificationType(req.Type),
		TenantID:   tenantCtx.Studio.ID,
		DecisionID: req.DecisionID,
		ActorID:    req.ActorID,
		OwnerID:    req.OwnerID,
		Assignees:  req.Assignees,
		Mentions:   req.Mentions,
		Payload:    req.Payload,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"created": len(created), "notifications": created})
}

// List returns the caller's notifications, newest first.
func (h *NotificationHandler) List(c *gin.Context) {
	tenantCtx, ok := middleware.GetTenantContext(c)
	if !ok {
		respondMissingTenant(c)
		return
	}
	userID := c.Query("user_id")
	if userID == "" {
		if claims, ok := middleware.GetStaffClaims(c); ok {
			userID = claims.ActorID
		}
	}
	if userID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request", "error_description": "user_id is required."})
		return
	}

	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))

	items, err := h.Fanout.ListForUser(c.Request.Context(), tenantCtx.Studio.ID, userID, limit, offset)
	if err != nil {
		respondError(c, err)
		return
	}
	if items == nil {
		items = []domain.DecisionNotification{}
	}
	c.JSON(http.StatusOK, gin.H{"notifications": items})
}

// MarkRead flips a single notification to read. Already-read rows keep their
// original timestamp.
func (h *NotificationHandler) MarkRead(c *gin.Context) {
	tenantCtx, ok := middleware.GetTenantContext(c)
	if !ok {
		respondMissingTenant(c)
		return
	}
	if err := h.Fanout.MarkRead(c.Request.Context(), tenantCtx.Studio.ID, c.Param("id")); err != nil {
		respondError(c, err)
		return
	}
	updated, err := h.Fanout.Get(c.Request.Context(), tenantCtx.Studio.ID, c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, updated)
}

// MarkAllRead flips every unread notification for the caller.
func (h *NotificationHandler) MarkAllRead(c *gin.Context) {
	tenantCtx, ok := middleware.GetTenantContext(c)
	if !ok {
		respondMissingTenant(c)
		return
	}
	userID := c.Query("user_id")
	if userID == "" {
		if claims, ok := middleware.GetStaffClaims(c); ok {
			userID = claims.ActorID
		}
	}
	if userID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request", "error_description": "user_id is required."})
		return
	}
	if err := h.Fanout.MarkAllRead(c.Request.Context(), tenantCtx.Studio.ID, userID); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"read": true})
}

// Mute silences a notification. duration_seconds 0 or absent mutes
// indefinitely.
func (h *NotificationHandler) Mute(c *gin.Context) {
	tenantCtx, ok := middleware.GetTenantContext(c)
	if !ok {
		respondMissingTenant(c)
		return
	}

	var req struct {
		DurationSeconds int64 `json:"duration_seconds"`
	}
	// The body is optional; absence means indefinite.
	_ = c.ShouldBindJSON(&req)
	if req.DurationSeconds < 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request", "error_description": "duration_seconds must not be negative."})
		return
	}

	duration := time.Duration(req.DurationSeconds) * time.Second
	if err := h.Fanout.Mute(c.Request.Context(), tenantCtx.Studio.ID, c.Param("id"), duration); err != nil {
		respondError(c, err)
		return
	}
	updated, err := h.Fanout.Get(c.Request.Context(), tenantCtx.Studio.ID, c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, updated)
}
