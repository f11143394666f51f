package http

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/archject/portal-access/internal/config"
	"github.com/archject/portal-access/internal/http/handler"
	httpmiddleware "github.com/archject/portal-access/internal/http/middleware"
	"github.com/archject/portal-access/internal/metrics"
	"github.com/archject/portal-access/internal/middleware"
	"github.com/archject/portal-access/internal/tenant"
)

// Handlers groups the route handlers the router wires up.
type Handlers struct {
	Links         *handler.LinkHandler
	Verification  *handler.VerificationHandler
	Notifications *handler.NotificationHandler
	Consent       *handler.ConsentHandler
	Audit         *handler.AuditHandler
}

// NewRouter wires Gin routes and middleware.
func NewRouter(cfg config.Config, h Handlers, authMiddleware *httpmiddleware.Auth, resolver *tenant.Resolver, rateLimiter *middleware.RateLimiter, m *metrics.Metrics) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(httpmiddleware.RequestLogger(nil))
	if rateLimiter != nil {
		r.Use(rateLimiter.Handler())
	}

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	if m != nil {
		r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{})))
	}

	tenanted := r.Group("/")
	tenanted.Use(middleware.Tenant(resolver))
	tenanted.Use(middleware.TenantCORS(cfg))
	tenanted.Use(otelgin.Middleware(cfg.ServiceName))

	links := tenanted.Group("/links")
	{
		links.POST("/generate", authMiddleware.RequireStaff, h.Links.Generate)
		links.GET("/:token/verify", h.Links.Verify)
		links.POST("/:token/consume", h.Links.Consume)
		links.POST("/:token/revoke", authMiddleware.RequireStaff, h.Links.Revoke)
		links.POST("/:token/reissue", authMiddleware.RequireStaff, h.Links.Reissue)
		links.POST("/:token/extend", authMiddleware.RequireStaff, h.Links.Extend)
	}

	verification := tenanted.Group("/verification")
	{
		verification.POST("/send-otp", h.Verification.SendOTP)
		verification.POST("/verify-otp", h.Verification.VerifyOTP)
	}

	notifications := tenanted.Group("/notifications")
	notifications.Use(authMiddleware.RequireStaff)
	{
		notifications.POST("/events", h.Notifications.Ingest)
		notifications.GET("", h.Notifications.List)
		notifications.POST("/:id/read", h.Notifications.MarkRead)
		notifications.POST("/read-all", h.Notifications.MarkAllRead)
		notifications.POST("/:id/mute", h.Notifications.Mute)
	}

	consentGroup := tenanted.Group("/consent")
	{
		consentGroup.GET("", h.Consent.Get)
		consentGroup.PUT("", h.Consent.Save)
		consentGroup.POST("/accept-all", h.Consent.AcceptAll)
		consentGroup.POST("/reset", h.Consent.Reset)
		consentGroup.GET("/history", h.Consent.History)
	}

	tenanted.GET("/audit", authMiddleware.RequireStaff, h.Audit.Query)

	return r
}
