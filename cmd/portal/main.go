package main

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/archject/portal-access/internal/audit"
	"github.com/archject/portal-access/internal/config"
	"github.com/archject/portal-access/internal/consent"
	"github.com/archject/portal-access/internal/dispatch"
	httptransport "github.com/archject/portal-access/internal/http"
	"github.com/archject/portal-access/internal/http/handler"
	httpmiddleware "github.com/archject/portal-access/internal/http/middleware"
	"github.com/archject/portal-access/internal/metrics"
	apimiddleware "github.com/archject/portal-access/internal/middleware"
	"github.com/archject/portal-access/internal/notification"
	"github.com/archject/portal-access/internal/rate"
	"github.com/archject/portal-access/internal/repository"
	"github.com/archject/portal-access/internal/resource"
	"github.com/archject/portal-access/internal/server"
	"github.com/archject/portal-access/internal/service"
	"github.com/archject/portal-access/internal/session"
	"github.com/archject/portal-access/internal/telemetry"
	"github.com/archject/portal-access/internal/tenant"
)

func main() {
	app := fx.New(
		fx.Provide(
			newConfig,
			newLogger,
			newTelemetry,
			newPGXPool,
			newLinkRepository,
			newOtpRepository,
			newAuditRepository,
			newNotificationRepository,
			newConsentRepository,
			newTenantRepository,
			newRateLimiter,
			newRequestLimiter,
			newMetrics,
			newSessionIssuer,
			newDispatchSender,
			newResourceClient,
			tenant.NewResolver,
			newTrail,
			newFanout,
			newConsentManager,
			service.NewLinkService,
			service.NewOtpService,
			handler.NewLinkHandler,
			handler.NewVerificationHandler,
			handler.NewNotificationHandler,
			handler.NewConsentHandler,
			handler.NewAuditHandler,
			newHandlers,
			newAuthMiddleware,
			httptransport.NewRouter,
			server.NewHTTPServer,
		),
		fx.Invoke(useTelemetry, startHTTPServer),
	)

	app.Run()
}

func newConfig() (config.Config, error) {
	return config.Load()
}

func newLogger(cfg config.Config) (*zap.Logger, error) {
	var (
		logger *zap.Logger
		err    error
	)
	if cfg.Environment == "development" {
		logger, err = zap.NewDevelopment()
	} else {
		logger, err = zap.NewProduction()
	}
	if err != nil {
		return nil, err
	}
	zap.ReplaceGlobals(logger)
	return logger, nil
}

func newTelemetry(lc fx.Lifecycle, cfg config.Config, logger *zap.Logger) (*telemetry.Provider, error) {
	provider, err := telemetry.New(context.Background(), cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("telemetry init: %w", err)
	}

	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			stopCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
			defer cancel()
			return provider.Shutdown(stopCtx)
		},
	})

	return provider, nil
}

func newPGXPool(lc fx.Lifecycle, cfg config.Config) (*pgxpool.Pool, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	lc.Append(fx.Hook{
		OnStop: func(context.Context) error {
			pool.Close()
			return nil
		},
	})

	return pool, nil
}

func newLinkRepository(pool *pgxpool.Pool) repository.LinkRepository {
	return repository.NewPostgresLinkRepo(pool)
}

func newOtpRepository(pool *pgxpool.Pool) repository.OtpRepository {
	return repository.NewPostgresOtpRepo(pool)
}

func newAuditRepository(pool *pgxpool.Pool) repository.AuditRepository {
	return repository.NewPostgresAuditRepo(pool)
}

func newNotificationRepository(pool *pgxpool.Pool) repository.NotificationRepository {
	return repository.NewPostgresNotificationRepo(pool)
}

func newConsentRepository(pool *pgxpool.Pool) repository.ConsentRepository {
	return repository.NewPostgresConsentRepo(pool)
}

func newTenantRepository(pool *pgxpool.Pool) repository.TenantRepository {
	return repository.NewPostgresTenantRepo(pool)
}

func newRateLimiter(cfg config.Config) *apimiddleware.RateLimiter {
	return apimiddleware.NewRateLimiter(cfg.RateLimitRPM)
}

func newRequestLimiter() *rate.Limiter {
	return rate.NewLimiter()
}

func newMetrics() *metrics.Metrics {
	return metrics.New()
}

func newSessionIssuer(cfg config.Config) *session.Issuer {
	return session.NewIssuer(cfg.SessionSigningSecret, cfg.SessionTTL, cfg.OTPSessionTTL)
}

func newDispatchSender(cfg config.Config, logger *zap.Logger) dispatch.Sender {
	return dispatch.NewSender(cfg, logger)
}

func newResourceClient(cfg config.Config) resource.DecisionClient {
	return resource.NewClient(cfg)
}

func newTrail(repo repository.AuditRepository, logger *zap.Logger) *audit.Trail {
	return audit.NewTrail(repo, logger)
}

func newFanout(repo repository.NotificationRepository, m *metrics.Metrics, logger *zap.Logger, cfg config.Config) *notification.Fanout {
	return notification.NewFanout(repo, m, logger, cfg.FanoutRetry)
}

func newConsentManager(repo repository.ConsentRepository, trail *audit.Trail, logger *zap.Logger) *consent.Manager {
	return consent.NewManager(repo, trail, logger)
}

func newHandlers(
	links *handler.LinkHandler,
	verification *handler.VerificationHandler,
	notifications *handler.NotificationHandler,
	consentHandler *handler.ConsentHandler,
	auditHandler *handler.AuditHandler,
) httptransport.Handlers {
	return httptransport.Handlers{
		Links:         links,
		Verification:  verification,
		Notifications: notifications,
		Consent:       consentHandler,
		Audit:         auditHandler,
	}
}

func newAuthMiddleware(sessions *session.Issuer) *httpmiddleware.Auth {
	return &httpmiddleware.Auth{Sessions: sessions}
}

func startHTTPServer(lc fx.Lifecycle, srv *server.HTTPServer, cfg config.Config, logger *zap.Logger) {
	addr := ":" + cfg.HTTPPort
	var (
		cancel context.CancelFunc
		done   chan struct{}
	)

	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			runCtx, stop := context.WithCancel(context.Background())
			cancel = stop
			done = make(chan struct{})

			go func() {
				if err := srv.Run(runCtx, addr); err != nil {
					logger.Error("http server stopped", zap.Error(err))
				}
				close(done)
			}()

			return nil
		},
		OnStop: func(ctx context.Context) error {
			if cancel != nil {
				cancel()
			}
			if done == nil {
				return nil
			}
			select {
			case <-done:
				return nil
			case <-ctx.Done():
				return ctx.Err()
			}
		},
	})
}

func useTelemetry(*telemetry.Provider) {}
