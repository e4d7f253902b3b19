package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/akabrrown/voice-of-upsa-sub004/internal/core/domain"
	"github.com/akabrrown/voice-of-upsa-sub004/internal/core/port"
	"github.com/akabrrown/voice-of-upsa-sub004/internal/infra/config"
	"github.com/akabrrown/voice-of-upsa-sub004/internal/infra/database"
	"github.com/akabrrown/voice-of-upsa-sub004/internal/infra/identity"
	kafkainfra "github.com/akabrrown/voice-of-upsa-sub004/internal/infra/kafka"
	"github.com/akabrrown/voice-of-upsa-sub004/internal/infra/logger"
	redisinfra "github.com/akabrrown/voice-of-upsa-sub004/internal/infra/redis"
	"github.com/akabrrown/voice-of-upsa-sub004/internal/infra/security"
	"github.com/akabrrown/voice-of-upsa-sub004/internal/infra/telemetry"
	"github.com/akabrrown/voice-of-upsa-sub004/internal/repository/memory"
	postgresrepo "github.com/akabrrown/voice-of-upsa-sub004/internal/repository/postgres"
	redisrepo "github.com/akabrrown/voice-of-upsa-sub004/internal/repository/redis"
	"github.com/akabrrown/voice-of-upsa-sub004/internal/transport/http/middleware"
	"github.com/akabrrown/voice-of-upsa-sub004/internal/transport/http/routes"
	"github.com/akabrrown/voice-of-upsa-sub004/internal/usecase"
	"github.com/akabrrown/voice-of-upsa-sub004/internal/validation"
)

const janitorInterval = 10 * time.Minute

type Application struct {
	cfg      *config.AppConfig
	engine   *gin.Engine
	logger   *zap.Logger
	pool     *pgxpool.Pool
	redis    *redisinfra.Client
	tracer   *telemetry.TracerProvider
	closers  []io.Closer
	limiter  *usecase.RateLimiterService
	rateRepo *postgresrepo.RateLimitRepository
}

// New wires the security layer. Postgres and Redis are optional: a missing
// store removes its tier from the limiter chain and the in-process tier takes
// over when the degradation policy allows it.
func New(ctx context.Context, cfg *config.AppConfig) (*Application, error) {
	log, err := logger.New(cfg.App.Env, cfg.App.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}

	mode, err := domain.ParseDegradationMode(cfg.RateLimit.DegradationPolicy)
	if err != nil {
		return nil, err
	}

	a := &Application{cfg: cfg, logger: log}

	if cfg.Telemetry.TracingEnabled {
		tp, err := telemetry.NewTracerProvider(ctx, cfg.Telemetry, log)
		if err != nil {
			return nil, fmt.Errorf("init telemetry: %w", err)
		}
		a.tracer = tp
	}

	degradation := domain.NewDegradationPolicy(mode)
	production := cfg.App.IsProduction()

	metrics, err := telemetry.NewSecurityMetrics(prometheus.DefaultRegisterer)
	if err != nil {
		return nil, fmt.Errorf("init security metrics: %w", err)
	}
	httpMetrics, err := middleware.NewHTTPMetrics(middleware.HTTPMetricsOptions{})
	if err != nil {
		return nil, fmt.Errorf("init http metrics: %w", err)
	}

	pool, err := database.NewPostgresPool(ctx, cfg.Postgres, log)
	if err != nil {
		log.Warn("postgres unavailable, database tier disabled", zap.Error(err))
	} else {
		a.pool = pool
	}

	redisClient, err := redisinfra.NewClient(ctx, cfg.Redis, log)
	if err != nil {
		log.Warn("redis unavailable, cache tier disabled", zap.Error(err))
	} else {
		a.redis = redisClient
	}

	stores := make([]port.RateLimitStore, 0, 3)
	if a.redis != nil {
		stores = append(stores, redisrepo.NewRateLimitRepository(a.redis.Client(), redisrepo.SlidingWindowConfig{
			KeyPrefix: cfg.Redis.RateLimitKeyPrefix,
		}))
	}
	var repos *postgresrepo.Repositories
	if a.pool != nil {
		repos = postgresrepo.NewRepositories(a.pool)
		a.rateRepo = repos.RateLimits
		stores = append(stores, repos.RateLimits)
	}
	stores = append(stores, memory.NewRateLimitRepository())

	events := a.eventPublisher(cfg)

	a.limiter = usecase.NewRateLimiterService(stores, usecase.RateLimiterOptions{
		Policies:    usecase.RateLimitPoliciesFromConfig(cfg.RateLimit),
		Degradation: degradation,
		Events:      events,
		Metrics:     metrics,
		Logger:      log,
	})

	identityProvider, tokens, err := a.identityProvider(cfg, repos)
	if err != nil {
		a.close()
		return nil, err
	}

	csrfManager, err := security.NewCSRFManager(cfg.CSRF.Secret, cfg.CSRF.TTL)
	if err != nil {
		a.close()
		return nil, fmt.Errorf("init csrf manager: %w", err)
	}

	errs := middleware.NewErrorWriter(production)
	nonces := security.NewNonceGenerator(degradation, metrics, log)
	headers := middleware.NewSecurityHeaders(security.NewCSPPolicy(production, cfg.CSP), nonces, production, log)

	deps := routes.Dependencies{
		Config:       cfg,
		Logger:       log,
		RateLimits:   a.limiter,
		Gatherer:     prometheus.DefaultGatherer,
		StrictStores: degradation.IsStrict(),
		Security: routes.SecuritySet{
			Guard: middleware.NewRouteGuard(identityProvider, cfg.Guard, middleware.GuardOptions{
				Headers: headers,
				Errors:  errs,
				Events:  events,
				Metrics: metrics,
				Logger:  log,
			}),
			CSRF: middleware.NewCSRFProtector(csrfManager, cfg.CSRF, middleware.CSRFOptions{
				Errors:  errs,
				Events:  events,
				Metrics: metrics,
				Logger:  log,
			}),
			RateLimiter: middleware.NewRateLimiter(a.limiter, errs, log),
			HTTPMetrics: httpMetrics,
			Errors:      errs,
			Validator:   validation.New(),
			Sanitizer:   security.NewSanitizer(),
		},
	}
	if a.pool != nil {
		deps.Database = a.pool
	}
	if a.redis != nil {
		deps.Cache = a.redis
	}
	if tokens != nil {
		deps.Credentials = tokens
	}

	a.engine = routes.Register(deps)

	log.Info("security layer initialised",
		zap.String("env", cfg.App.Env),
		zap.String("degradation_policy", string(degradation.Mode())),
		zap.Int("rate_limit_tiers", len(stores)),
		zap.String("identity_mode", cfg.Identity.Mode),
	)

	return a, nil
}

func (a *Application) eventPublisher(cfg *config.AppConfig) port.SecurityEventPublisher {
	if !cfg.Kafka.Enabled || len(cfg.Kafka.Brokers) == 0 {
		a.logger.Info("kafka disabled, security events go to the log")
		return kafkainfra.NewStubPublisher(a.logger)
	}

	producer, err := kafkainfra.NewProducer(cfg.Kafka, a.logger)
	if err != nil {
		a.logger.Warn("failed to init kafka producer, using stub publisher", zap.Error(err))
		return kafkainfra.NewStubPublisher(a.logger)
	}
	a.closers = append(a.closers, producer)
	a.logger.Info("kafka security event publisher initialised", zap.Strings("brokers", cfg.Kafka.Brokers))
	return kafkainfra.NewSecurityEventPublisher(producer, cfg.App, a.logger)
}

// identityProvider returns the resolver for bearer credentials. In token mode it
// also returns the provider itself so administrators can revoke credentials.
func (a *Application) identityProvider(cfg *config.AppConfig, repos *postgresrepo.Repositories) (port.IdentityProvider, *usecase.TokenIdentityProvider, error) {
	switch cfg.Identity.Mode {
	case "remote":
		client := &http.Client{Timeout: cfg.Identity.Timeout}
		return identity.NewRemoteProvider(cfg.Identity, client, a.logger), nil, nil
	default:
		if repos == nil {
			return nil, nil, errors.New("identity mode token requires postgres for role lookups")
		}
		tokens := usecase.NewTokenIdentityProvider(
			[]byte(cfg.Identity.JWTSecret),
			cfg.Identity.JWTIssuer,
			repos.Roles,
			cfg.Identity.Timeout,
			a.logger,
		)
		if a.redis == nil {
			return tokens, nil, nil
		}
		tokens.WithRevocations(
			redisrepo.NewRevocationRepository(a.redis.Client(), cfg.Redis.RevocationPrefix),
			cfg.Identity.CredentialTTL,
		)
		return tokens, tokens, nil
	}
}

func (a *Application) Run(ctx context.Context) error {
	defer func() {
		_ = a.logger.Sync()
	}()
	defer a.close()

	if a.rateRepo != nil {
		go a.limiter.RunJanitor(ctx, a.rateRepo, janitorInterval)
	}

	srv := &http.Server{
		Addr:              fmt.Sprintf("%s:%d", a.cfg.App.Host, a.cfg.App.Port),
		Handler:           a.engine,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	a.logger.Info("starting newsroom edge",
		zap.String("env", a.cfg.App.Env),
		zap.String("address", srv.Addr),
	)

	serverErrCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
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

func (a *Application) close() {
	for _, c := range a.closers {
		if err := c.Close(); err != nil {
			a.logger.Warn("close failed", zap.Error(err))
		}
	}
	a.closers = nil
	if a.tracer != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := a.tracer.Shutdown(shutdownCtx); err != nil {
			a.logger.Warn("tracer shutdown failed", zap.Error(err))
		}
		a.tracer = nil
	}
	if a.pool != nil {
		a.pool.Close()
		a.pool = nil
	}
	if a.redis != nil {
		_ = a.redis.Close()
		a.redis = nil
	}
}
