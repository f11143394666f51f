package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/archject/portal-access/internal/http/middleware"
	"github.com/archject/portal-access/internal/service"
	"github.com/archject/portal-access/internal/session"
)

// VerificationHandler runs the OTP gate for protected links.
type VerificationHandler struct {
	OTP      *service.OtpService
	Sessions *session.Issuer
}

func NewVerificationHandler(otp *service.OtpService, sessions *session.Issuer) *VerificationHandler {
	return &VerificationHandler{OTP: otp, Sessions: sessions}
}

// SendOTP issues a code to the given email for a decision.
func (h *VerificationHandler) SendOTP(c *gin.Context) {
	tenantCtx, ok := middleware.GetTenantContext(c)
	if !ok {
		respondMissingTenant(c)
		return
	}

	var req struct {
		ResourceID string `json:"resource_id" binding:"required"`
		Email      string `json:"email" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request", "error_description": "resource_id and email are required."})
		return
	}

	if err := h.OTP.Send(c.Request.Context(), tenantCtx, req.ResourceID, req.Email); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"sent": true})
}

// VerifyOTP checks a presented code and, on success, returns the signed
// verification claim the consume call presents in X-OTP-Session.
func (h *VerificationHandler) VerifyOTP(c *gin.Context) {
	tenantCtx, ok := middleware.GetTenantContext(c)
	if !ok {
		respondMissingTenant(c)
		return
	}

	var req struct {
		ResourceID string `json:"resource_id" binding:"required"`
		Email      string `json:"email" binding:"required"`
		Code       string `json:"code" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request", "error_description": "resource_id, email, and code are required."})
		return
	}

	if err := h.OTP.Verify(c.Request.Context(), tenantCtx, req.ResourceID, req.Email, req.Code); err != nil {
		respondError(c, err)
		return
	}

	claim, err := h.Sessions.IssueOTPVerified(tenantCtx.Studio.ID, req.ResourceID, req.Email, time.Now().UTC())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"verified": true, "otp_session": claim})
}
