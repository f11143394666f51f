package middleware

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/archject/portal-access/internal/session"
)

const staffClaimsKey = "staffClaims"

// Auth validates staff session tokens on management endpoints.
type Auth struct {
	Sessions *session.Issuer
}

// RequireStaff ensures the request carries a valid staff bearer token for the
// resolved studio.
func (m *Auth) RequireStaff(c *gin.Context) {
	tenantCtx, ok := GetTenantContext(c)
	if !ok {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid_tenant", "error_description": "Tenant missing."})
		return
	}
	header := c.GetHeader("Authorization")
	if header == "" {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid_token", "error_description": "Authorization header required."})
		return
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid_token", "error_description": "Bearer token required."})
		return
	}
	claims, err := m.Sessions.Verify(parts[1], session.KindStaff, tenantCtx.Studio.ID, time.Now().UTC())
	if err != nil {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid_token", "error_description": "Invalid session token."})
		return
	}
	c.Set(staffClaimsKey, claims)
	c.Next()
}

// GetStaffClaims exposes the validated staff claims to handlers.
func GetStaffClaims(c *gin.Context) (*session.Claims, bool) {
	value, ok := c.Get(staffClaimsKey)
	if !ok {
		return nil, false
	}
	claims, ok := value.(*session.Claims)
	return claims, ok
}
