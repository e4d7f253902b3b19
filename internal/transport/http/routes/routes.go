package routes

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/akabrrown/voice-of-upsa-sub004/internal/core/domain"
	"github.com/akabrrown/voice-of-upsa-sub004/internal/infra/config"
	"github.com/akabrrown/voice-of-upsa-sub004/internal/infra/security"
	"github.com/akabrrown/voice-of-upsa-sub004/internal/infra/telemetry"
	"github.com/akabrrown/voice-of-upsa-sub004/internal/transport/http/handlers"
	"github.com/akabrrown/voice-of-upsa-sub004/internal/transport/http/middleware"
	"github.com/akabrrown/voice-of-upsa-sub004/internal/validation"
)

// SecuritySet groups the request-security middleware.
type SecuritySet struct {
	Guard       *middleware.RouteGuard
	CSRF        *middleware.CSRFProtector
	RateLimiter *middleware.RateLimiter
	HTTPMetrics *middleware.HTTPMetrics
	Errors      *middleware.ErrorWriter
	Validator   *validation.Validator
	Sanitizer   *security.Sanitizer
}

// Dependencies encapsulates the objects required to register routes.
type Dependencies struct {
	Config     *config.AppConfig
	Logger     *zap.Logger
	Security   SecuritySet
	RateLimits handlers.RateLimitAdministrator
	Database   DatabaseChecker
	Cache      CacheChecker
	Gatherer   prometheus.Gatherer
	// Credentials is nil when revocation is not configured.
	Credentials handlers.CredentialRevoker
	// StrictStores makes the counter stores required for readiness.
	StrictStores bool
}

// DatabaseChecker exposes readiness behaviour for database connections.
type DatabaseChecker interface {
	Ping(ctx context.Context) error
}

// CacheChecker exposes readiness behaviour for cache backends.
type CacheChecker interface {
	HealthCheck(ctx context.Context) error
}

// Register configures the Gin engine with routes and middleware. The guard runs
// before CSRF and rate limiting so both see the resolved identity.
func Register(deps Dependencies) *gin.Engine {
	cfg := deps.Config
	if cfg == nil {
		cfg = &config.AppConfig{}
	}
	if cfg.App.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	log := deps.Logger
	if log == nil {
		log = zap.NewNop()
	}
	sec := deps.Security
	if sec.Errors == nil {
		sec.Errors = middleware.NewErrorWriter(cfg.App.IsProduction())
	}
	if sec.Validator == nil {
		sec.Validator = validation.New()
	}
	if sec.Sanitizer == nil {
		sec.Sanitizer = security.NewSanitizer()
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.EnrichContext())
	r.Use(middleware.RequestID())
	r.Use(middleware.Tracing(telemetry.Tracer()))
	r.Use(middleware.Logger(log, "/healthz", "/readyz", "/metrics"))
	r.Use(sec.HTTPMetrics.Handler())
	r.Use(middleware.CORS(cfg.CORS.AllowedOrigins))
	if sec.Guard != nil {
		r.Use(sec.Guard.Handler())
	}
	if sec.CSRF != nil {
		r.Use(sec.CSRF.Handler())
	}

	healthHandler := handlers.NewHealthHandler(healthOptions(deps, log)...)
	r.GET("/healthz", healthHandler.Status)
	r.GET("/readyz", healthHandler.Readiness)

	metricsHandler := promhttp.Handler()
	if deps.Gatherer != nil {
		metricsHandler = promhttp.HandlerFor(deps.Gatherer, promhttp.HandlerOpts{})
	}
	r.GET("/metrics", gin.WrapH(metricsHandler))

	intake := handlers.NewIntakeHandler(sec.Validator, sec.Sanitizer, sec.Errors, log)

	api := r.Group("/api")
	api.Use(limit(sec.RateLimiter, middleware.RateLimitRule{Action: domain.ActionAPI}))
	{
		if sec.CSRF != nil {
			api.GET("/csrf-token", handlers.NewCSRFHandler(sec.CSRF, sec.Errors, log).Token)
		}
		api.GET("/search", intake.Search)

		auth := api.Group("/auth")
		auth.POST("/login", limitByIP(sec.RateLimiter, domain.ActionLogin), intake.Login)
		auth.POST("/signup", limitByIP(sec.RateLimiter, domain.ActionSignup), intake.Signup)
		auth.POST("/password-reset", limitByIP(sec.RateLimiter, domain.ActionPasswordReset), intake.PasswordReset)

		api.POST("/comments", limit(sec.RateLimiter, middleware.RateLimitRule{Action: domain.ActionComment}), intake.Comment)
		api.POST("/contact", limitByIP(sec.RateLimiter, domain.ActionContact), intake.Contact)
		api.POST("/stories", limit(sec.RateLimiter, middleware.RateLimitRule{Action: domain.ActionPost}), intake.Story)
		api.POST("/ads", limit(sec.RateLimiter, middleware.RateLimitRule{Action: domain.ActionPost}), intake.Ad)

		editor := api.Group("/editor")
		editor.POST("/articles", limit(sec.RateLimiter, middleware.RateLimitRule{Action: domain.ActionPost}), intake.Article)

		admin := api.Group("/admin")
		if deps.RateLimits != nil {
			handlers.NewRateLimitHandler(deps.RateLimits, sec.Errors, log).RegisterRoutes(admin)
		}
		if deps.Credentials != nil {
			handlers.NewCredentialHandler(deps.Credentials, sec.Validator, sec.Sanitizer, sec.Errors, log).RegisterRoutes(admin)
		}
	}

	r.NoRoute(func(c *gin.Context) {
		sec.Errors.Abort(c, http.StatusNotFound, middleware.CodeNotFound, "Resource not found.", nil)
	})

	return r
}

func healthOptions(deps Dependencies, log *zap.Logger) []handlers.HealthOption {
	opts := []handlers.HealthOption{handlers.WithHealthLogger(log)}

	register := handlers.WithOptionalCheck
	if deps.StrictStores {
		register = handlers.WithReadinessCheck
	}
	if deps.Database != nil {
		opts = append(opts, register("database", deps.Database.Ping))
	}
	if deps.Cache != nil {
		opts = append(opts, register("redis", deps.Cache.HealthCheck))
	}
	return opts
}

func limit(rl *middleware.RateLimiter, rules ...middleware.RateLimitRule) gin.HandlerFunc {
	if rl == nil {
		return func(c *gin.Context) { c.Next() }
	}
	return rl.RateLimit(rules...)
}

func limitByIP(rl *middleware.RateLimiter, action domain.RateLimitAction) gin.HandlerFunc {
	return limit(rl, middleware.RateLimitRule{Action: action, Identifier: middleware.ClientIPIdentifier()})
}
