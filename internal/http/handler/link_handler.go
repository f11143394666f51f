package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/archject/portal-access/internal/http/middleware"
	"github.com/archject/portal-access/internal/service"
	"github.com/archject/portal-access/internal/session"
)

// otpSessionHeader carries the signed verification claim issued by
// verify-otp back on the consume call.
const otpSessionHeader = "X-OTP-Session"

// LinkHandler exposes the share-link lifecycle.
type LinkHandler struct {
	Links    *service.LinkService
	Sessions *session.Issuer
}

func NewLinkHandler(links *service.LinkService, sessions *session.Issuer) *LinkHandler {
	return &LinkHandler{Links: links, Sessions: sessions}
}

// Generate mints a link for a decision. Staff only.
func (h *LinkHandler) Generate(c *gin.Context) {
	tenantCtx, ok := middleware.GetTenantContext(c)
	if !ok {
		respondMissingTenant(c)
		return
	}

	var req struct {
		ResourceID    string `json:"resource_id" binding:"required"`
		ExpirySeconds *int64 `json:"expiry_seconds"`
		RequireOTP    bool   `json:"require_otp"`
		MaxUsage      *int32 `json:"max_usage"`
		Recipient     string `json:"recipient"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request", "error_description": "Invalid generate request."})
		return
	}

	result, err := h.Links.Generate(c.Request.Context(), tenantCtx, actorID(c), service.GenerateInput{
		ResourceID:    req.ResourceID,
		ExpirySeconds: req.ExpirySeconds,
		RequireOTP:    req.RequireOTP,
		MaxUsage:      req.MaxUsage,
		Recipient:     req.Recipient,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, result)
}

// Verify reports liveness without consuming a usage.
func (h *LinkHandler) Verify(c *gin.Context) {
	tenantCtx, ok := middleware.GetTenantContext(c)
	if !ok {
		respondMissingTenant(c)
		return
	}
	result, err := h.Links.Verify(c.Request.Context(), tenantCtx, c.Param("token"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// Consume marks one usage and returns the protected decision. For OTP-gated
// links the caller must present the verification claim from verify-otp.
func (h *LinkHandler) Consume(c *gin.Context) {
	tenantCtx, ok := middleware.GetTenantContext(c)
	if !ok {
		respondMissingTenant(c)
		return
	}

	otpVerified := h.otpCheck(c, tenantCtx.Studio.ID)
	result, err := h.Links.Consume(c.Request.Context(), tenantCtx, c.Param("token"), otpVerified)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// Revoke kills a link. Staff only; idempotent.
func (h *LinkHandler) Revoke(c *gin.Context) {
	tenantCtx, ok := middleware.GetTenantContext(c)
	if !ok {
		respondMissingTenant(c)
		return
	}
	if err := h.Links.Revoke(c.Request.Context(), tenantCtx, actorID(c), c.Param("token")); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"revoked": true})
}

// Reissue replaces the token behind a link. Staff only.
func (h *LinkHandler) Reissue(c *gin.Context) {
	tenantCtx, ok := middleware.GetTenantContext(c)
	if !ok {
		respondMissingTenant(c)
		return
	}
	result, err := h.Links.Reissue(c.Request.Context(), tenantCtx, actorID(c), c.Param("token"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, result)
}

// Extend pushes the expiry forward. Staff only.
func (h *LinkHandler) Extend(c *gin.Context) {
	tenantCtx, ok := middleware.GetTenantContext(c)
	if !ok {
		respondMissingTenant(c)
		return
	}

	var req struct {
		ExpiresAt     *time.Time `json:"expires_at"`
		ExpirySeconds *int64     `json:"expiry_seconds"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request", "error_description": "Invalid extend request."})
		return
	}

	expiresAt, err := h.Links.Extend(c.Request.Context(), tenantCtx, actorID(c), c.Param("token"), service.ExtendInput{
		ExpiresAt:     req.ExpiresAt,
		ExpirySeconds: req.ExpirySeconds,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"expires_at": expiresAt})
}

// otpCheck turns the X-OTP-Session header into the per-resource assertion the
// service consults. Absent or invalid claims yield nil so a gated link fails
// with the generic message.
func (h *LinkHandler) otpCheck(c *gin.Context, tenantID int64) func(resourceID string) bool {
	raw := c.GetHeader(otpSessionHeader)
	if raw == "" {
		return nil
	}
	claims, err := h.Sessions.Verify(raw, session.KindOTPVerified, tenantID, time.Now().UTC())
	if err != nil {
		return nil
	}
	return func(resourceID string) bool {
		return claims.ResourceID == resourceID
	}
}

func actorID(c *gin.Context) string {
	if claims, ok := middleware.GetStaffClaims(c); ok {
		return claims.ActorID
	}
	return ""
}
