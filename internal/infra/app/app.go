package app

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/Tchelo1688/brvm-academy-iam/internal/core/domain"
	"github.com/Tchelo1688/brvm-academy-iam/internal/core/port"
	"github.com/Tchelo1688/brvm-academy-iam/internal/infra/config"
	"github.com/Tchelo1688/brvm-academy-iam/internal/infra/database"
	kafkainfra "github.com/Tchelo1688/brvm-academy-iam/internal/infra/kafka"
	"github.com/Tchelo1688/brvm-academy-iam/internal/infra/logger"
	redisinfra "github.com/Tchelo1688/brvm-academy-iam/internal/infra/redis"
	"github.com/Tchelo1688/brvm-academy-iam/internal/infra/security"
	postgresrepo "github.com/Tchelo1688/brvm-academy-iam/internal/repository/postgres"
	redisrepo "github.com/Tchelo1688/brvm-academy-iam/internal/repository/redis"
	"github.com/Tchelo1688/brvm-academy-iam/internal/transport/http/middleware"
	"github.com/Tchelo1688/brvm-academy-iam/internal/transport/http/routes"
	"github.com/Tchelo1688/brvm-academy-iam/internal/usecase"
)

type Application struct {
	cfg       *config.AppConfig
	engine    *gin.Engine
	logger    *zap.Logger
	pool      *pgxpool.Pool
	redis     *redisinfra.Client
	producer  *kafkainfra.Producer
	scheduler *cron.Cron
}

func New(ctx context.Context, cfg *config.AppConfig) (*Application, error) {
	log, err := logger.New(cfg.App.Env)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}

	pool, err := database.NewPostgresPool(ctx, cfg.Postgres, log)
	if err != nil {
		return nil, fmt.Errorf("init postgres: %w", err)
	}

	keyProvider, err := security.NewKeyProvider(cfg.App.Env, cfg.JWT.KeyDirectory)
	if err != nil {
		return nil, fmt.Errorf("init key provider: %w", err)
	}

	argonCfg := security.Argon2Config{
		Memory:      cfg.Argon2.Memory,
		Iterations:  cfg.Argon2.Iterations,
		Parallelism: cfg.Argon2.Parallelism,
		SaltLength:  cfg.Argon2.SaltLength,
		KeyLength:   cfg.Argon2.KeyLength,
	}
	if err := security.ConfigureArgon2(argonCfg); err != nil {
		return nil, fmt.Errorf("configure argon2: %w", err)
	}

	tokenGenerator, err := security.NewTokenGenerator(keyProvider, "v1")
	if err != nil {
		return nil, fmt.Errorf("init token generator: %w", err)
	}

	redisClient, err := redisinfra.NewClient(cfg.Redis, log)
	if err != nil {
		return nil, fmt.Errorf("init redis: %w", err)
	}

	userRepo := postgresrepo.NewUserRepository(pool)
	sessionRepo := postgresrepo.NewSessionRepository(pool)
	auditRepo := postgresrepo.NewAuditRepository(pool)

	var eventPublisher port.EventPublisher
	var producer *kafkainfra.Producer
	if cfg.Kafka.Enabled && len(cfg.Kafka.Brokers) > 0 {
		producer, err = kafkainfra.NewProducer(cfg.Kafka, log)
		if err != nil {
			log.Warn("failed to init kafka producer, using stub publisher", zap.Error(err))
			eventPublisher = kafkainfra.NewStubPublisher(log)
		} else {
			eventPublisher = kafkainfra.NewEventPublisher(producer, cfg.App, log)
			log.Info("kafka event publisher initialized", zap.Strings("brokers", cfg.Kafka.Brokers))
		}
	} else {
		log.Info("kafka disabled, using stub publisher")
		eventPublisher = kafkainfra.NewStubPublisher(log)
	}

	passwordPolicy := security.NewPasswordPolicy()

	rateLimitWindow := cfg.RateLimit.WindowDuration
	if rateLimitWindow <= 0 {
		rateLimitWindow = time.Minute
	}
	rateLimitStore := redisrepo.NewRateLimitRepository(redisClient.Client(), redisrepo.SlidingWindowConfig{
		KeyPrefix: "iam:rate-limit",
		TTL:       rateLimitWindow * 2,
	})

	rateLimiter := middleware.NewRateLimiter(rateLimitStore, log)

	metrics, err := middleware.NewHTTPMetrics(middleware.HTTPMetricsOptions{})
	if err != nil {
		return nil, fmt.Errorf("init http metrics: %w", err)
	}

	auditService := usecase.NewAuditService(cfg, auditRepo, log)

	// Throttled requests are security signals, not just transport noise.
	rateLimiter.WithHitRecorder(func(c *gin.Context, rule, identifier string) {
		auditService.Record(c.Request.Context(), domain.AuditEntry{
			Action:     domain.ActionRateLimitHit,
			Metadata:   map[string]any{"rule": rule, "identifier": identifier},
			IP:         c.ClientIP(),
			UserAgent:  c.Request.UserAgent(),
			Endpoint:   c.FullPath(),
			HTTPMethod: c.Request.Method,
			Status:     domain.AuditWarning,
		})
	})

	authService := usecase.NewAuthService(cfg, userRepo, sessionRepo, auditService, eventPublisher, tokenGenerator, keyProvider, log)
	registrationService := usecase.NewRegistrationService(cfg, userRepo, authService, auditService, eventPublisher, passwordPolicy, log)
	passwordService := usecase.NewPasswordService(cfg, userRepo, sessionRepo, authService, auditService, eventPublisher, passwordPolicy, log)
	twoFactorService := usecase.NewTwoFactorService(cfg, userRepo, auditService, eventPublisher, log)
	sessionService := usecase.NewSessionService(cfg, sessionRepo, auditService, eventPublisher, log)

	scheduler := cron.New()
	schedule := cfg.Audit.PurgeSchedule
	if schedule == "" {
		schedule = "@hourly"
	}
	if _, err := scheduler.AddFunc(schedule, func() {
		sweepCtx, cancel := context.WithTimeout(context.Background(), time.Minute)
		defer cancel()
		if _, err := auditService.PurgeExpired(sweepCtx); err != nil {
			log.Error("audit retention sweep failed", zap.Error(err))
		}
		if _, err := sessionService.PurgeExpired(sweepCtx); err != nil {
			log.Error("session expiry sweep failed", zap.Error(err))
		}
	}); err != nil {
		return nil, fmt.Errorf("schedule retention sweep: %w", err)
	}

	engine := routes.Register(routes.Dependencies{
		Config:      cfg,
		Logger:      log,
		RateLimiter: rateLimiter,
		Metrics:     metrics,
		Database:    pool,
		Cache:       redisClient,
		Services: routes.ServiceSet{
			Auth:         authService,
			Registration: registrationService,
			Passwords:    passwordService,
			TwoFactor:    twoFactorService,
			Sessions:     sessionService,
			Audit:        auditService,
		},
	})

	return &Application{
		cfg:       cfg,
		engine:    engine,
		logger:    log,
		pool:      pool,
		redis:     redisClient,
		producer:  producer,
		scheduler: scheduler,
	}, nil
}

func (a *Application) Run(ctx context.Context) error {
	defer func() {
		_ = a.logger.Sync()
	}()
	defer func() {
		if a.pool != nil {
			a.pool.Close()
		}
	}()
	defer func() {
		if a.redis != nil {
			_ = a.redis.Close()
		}
	}()
	defer func() {
		if a.producer != nil {
			_ = a.producer.Close()
		}
	}()

	a.scheduler.Start()
	defer a.scheduler.Stop()

	srv := &http.Server{
		Addr:              fmt.Sprintf("%s:%d", a.cfg.App.Host, a.cfg.App.Port),
		Handler:           a.engine,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	a.logger.Info("starting IAM API",
		zap.String("env", a.cfg.App.Env),
		zap.String("address", srv.Addr),
	)

	serverErrCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErrCh <- fmt.Errorf("run server: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown server: %w", err)
		}
		return nil
	case err := <-serverErrCh:
		return err
	}
}
