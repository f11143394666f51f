package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/archject/portal-access/internal/repository"
	"github.com/archject/portal-access/internal/service"
)

// respondError renders the error taxonomy as JSON. Anything that is neither a
// PortalError nor a not-found is a programming or infrastructure fault and
// collapses to a bare server_error.
func respondError(c *gin.Context, err error) {
	if portalErr, ok := err.(*service.PortalError); ok {
		c.JSON(portalErr.Status, gin.H{"error": portalErr.Code, "error_description": portalErr.Description})
		return
	}
	if errors.Is(err, repository.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "not_found", "error_description": "Resource not found."})
		return
	}
	c.JSON(http.StatusInternalServerError, gin.H{"error": "server_error", "error_description": "Internal error."})
}

func respondMissingTenant(c *gin.Context) {
	c.JSON(http.StatusNotFound, gin.H{"error": "invalid_tenant", "error_description": "Tenant not resolved."})
}
