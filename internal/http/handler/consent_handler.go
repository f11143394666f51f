package handler

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/archject/portal-access/internal/consent"
	"github.com/archject/portal-access/internal/domain"
	"github.com/archject/portal-access/internal/http/middleware"
)

// ConsentHandler manages cookie-consent state for portal visitors. Visitors
// are identified by an opaque subject id the frontend mints and stores
// alongside the consent cookie.
type ConsentHandler struct {
	Consent *consent.Manager
}

func NewConsentHandler(manager *consent.Manager) *ConsentHandler {
	return &ConsentHandler{Consent: manager}
}

// Get returns current consent plus history; an unknown subject sees defaults.
func (h *ConsentHandler) Get(c *gin.Context) {
	tenantCtx, ok := middleware.GetTenantContext(c)
	if !ok {
		respondMissingTenant(c)
		return
	}
	subjectID, ok := subjectIDFrom(c)
	if !ok {
		return
	}
	record, err := h.Consent.Get(c.Request.Context(), tenantCtx.Studio.ID, subjectID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, record)
}

// Save replaces the consent state. The necessary category cannot be opted
// out of; the service forces it on.
func (h *ConsentHandler) Save(c *gin.Context) {
	tenantCtx, ok := middleware.GetTenantContext(c)
	if !ok {
		respondMissingTenant(c)
		return
	}
	subjectID, ok := subjectIDFrom(c)
	if !ok {
		return
	}

	var req struct {
		Consent domain.ConsentState `json:"consent"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request", "error_description": "Invalid consent payload."})
		return
	}

	record, err := h.Consent.Save(c.Request.Context(), tenantCtx.Studio.ID, subjectID, req.Consent)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, record)
}

// AcceptAll opts in to every category.
func (h *ConsentHandler) AcceptAll(c *gin.Context) {
	tenantCtx, ok := middleware.GetTenantContext(c)
	if !ok {
		respondMissingTenant(c)
		return
	}
	subjectID, ok := subjectIDFrom(c)
	if !ok {
		return
	}
	record, err := h.Consent.AcceptAll(c.Request.Context(), tenantCtx.Studio.ID, subjectID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, record)
}

// Reset returns the subject to defaults, recording the opt-outs.
func (h *ConsentHandler) Reset(c *gin.Context) {
	tenantCtx, ok := middleware.GetTenantContext(c)
	if !ok {
		respondMissingTenant(c)
		return
	}
	subjectID, ok := subjectIDFrom(c)
	if !ok {
		return
	}
	record, err := h.Consent.Reset(c.Request.Context(), tenantCtx.Studio.ID, subjectID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, record)
}

// History returns change-only entries, oldest first.
func (h *ConsentHandler) History(c *gin.Context) {
	tenantCtx, ok := middleware.GetTenantContext(c)
	if !ok {
		respondMissingTenant(c)
		return
	}
	subjectID, ok := subjectIDFrom(c)
	if !ok {
		return
	}
	record, err := h.Consent.Get(c.Request.Context(), tenantCtx.Studio.ID, subjectID)
	if err != nil {
		respondError(c, err)
		return
	}
	history := record.History
	if history == nil {
		history = []domain.ChangeHistoryEntry{}
	}
	c.JSON(http.StatusOK, gin.H{"history": history})
}

func subjectIDFrom(c *gin.Context) (string, bool) {
	subjectID := strings.TrimSpace(c.Query("subject_id"))
	if subjectID == "" {
		subjectID = strings.TrimSpace(c.GetHeader("X-Subject-ID"))
	}
	if subjectID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request", "error_description": "subject_id is required."})
		return "", false
	}
	return subjectID, true
}
