package routes

import (
	"context"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/Tchelo1688/brvm-academy-iam/internal/infra/config"
	"github.com/Tchelo1688/brvm-academy-iam/internal/transport/http/handlers"
	"github.com/Tchelo1688/brvm-academy-iam/internal/transport/http/middleware"
	"github.com/Tchelo1688/brvm-academy-iam/internal/usecase"
)

// ServiceSet groups the services the HTTP layer depends on.
type ServiceSet struct {
	Auth         *usecase.AuthService
	Registration *usecase.RegistrationService
	Passwords    *usecase.PasswordService
	TwoFactor    *usecase.TwoFactorService
	Sessions     *usecase.SessionService
	Audit        *usecase.AuditService
}

// Dependencies encapsulates the objects required to register routes.
type Dependencies struct {
	Config      *config.AppConfig
	Logger      *zap.Logger
	RateLimiter *middleware.RateLimiter
	Metrics     *middleware.HTTPMetrics
	Services    ServiceSet
	Database    DatabaseChecker
	Cache       CacheChecker
}

// DatabaseChecker exposes readiness behaviour for database connections.
type DatabaseChecker interface {
	Ping(ctx context.Context) error
}

// CacheChecker exposes readiness behaviour for cache backends.
type CacheChecker interface {
	HealthCheck(ctx context.Context) error
}

// Register configures the Gin engine with routes and middleware.
func Register(deps Dependencies) *gin.Engine {
	if deps.Config.App.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.EnrichContext())
	r.Use(middleware.RequestID())
	r.Use(middleware.Logger(deps.Logger))
	r.Use(middleware.CORS(deps.Config.CORS.AllowedOrigins))

	if deps.Metrics != nil {
		r.Use(deps.Metrics.Handler())
	}

	authMiddleware := middleware.RequireAuth(deps.Services.Auth, deps.Services.Audit)

	healthOptions := make([]handlers.HealthOption, 0, 2)

	if deps.Database != nil {
		healthOptions = append(healthOptions, handlers.WithReadinessCheck("database", deps.Database.Ping))
	}

	if deps.Cache != nil {
		healthOptions = append(healthOptions, handlers.WithReadinessCheck("redis", deps.Cache.HealthCheck))
	}

	healthHandler := handlers.NewHealthHandler(healthOptions...)

	r.GET("/healthz", healthHandler.Status)
	r.GET("/readyz", healthHandler.Readiness)

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := r.Group("/api/v1")
	{
		isDev := deps.Config.App.Env == "development"

		authGroup := api.Group("/auth")
		authHandler := handlers.NewAuthHandler(deps.Services.Auth, deps.Services.Registration, deps.Services.Audit)
		authHandler.RegisterRoutes(authGroup,
			buildRateLimitMiddlewares(deps, "auth_login_ip", deps.Config.RateLimit.LoginMaxAttempts),
			buildRateLimitMiddlewares(deps, "auth_register_ip", deps.Config.RateLimit.RegisterMaxAttempts))

		passwordHandler := handlers.NewPasswordHandler(deps.Services.Passwords, isDev)
		authGroup.POST("/change-password", authMiddleware, passwordHandler.ChangePassword)

		resetMiddlewares := buildRateLimitMiddlewares(deps, "password_reset_ip", deps.Config.RateLimit.PasswordResetMaxAttempts)
		resetGroup := authGroup.Group("/password-reset")
		if len(resetMiddlewares) > 0 {
			resetGroup.Use(resetMiddlewares...)
		}
		resetGroup.POST("/request", passwordHandler.RequestReset)
		resetGroup.POST("/confirm", passwordHandler.ConfirmReset)

		twoFactorHandler := handlers.NewTwoFactorHandler(deps.Services.TwoFactor)
		twoFactorGroup := authGroup.Group("/2fa")
		twoFactorGroup.Use(authMiddleware)
		twoFactorHandler.RegisterRoutes(twoFactorGroup)

		sessionHandler := handlers.NewSessionHandler(deps.Services.Sessions)
		sessionGroup := authGroup.Group("/sessions")
		sessionGroup.Use(authMiddleware)
		sessionHandler.RegisterRoutes(sessionGroup)

		auditHandler := handlers.NewAuditHandler(deps.Services.Audit)
		auditGroup := api.Group("/audit")
		auditGroup.Use(authMiddleware, middleware.RequirePermission(deps.Services.Audit, "audit:read"))
		auditHandler.RegisterRoutes(auditGroup)
	}

	return r
}

func buildRateLimitMiddlewares(deps Dependencies, name string, limit int) []gin.HandlerFunc {
	if deps.RateLimiter == nil || deps.Config == nil {
		return nil
	}

	if limit <= 0 {
		return nil
	}

	window := deps.Config.RateLimit.WindowDuration
	if window <= 0 {
		window = time.Minute
	}

	rule := middleware.RateLimitRule{
		Name:       name,
		Limit:      limit,
		Window:     window,
		Identifier: middleware.ClientIPIdentifier(),
	}

	return []gin.HandlerFunc{deps.RateLimiter.RateLimit(rule)}
}
