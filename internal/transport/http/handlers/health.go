package handlers

import (
	"context"
	"net/http"
	"sort"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const defaultCheckTimeout = 2 * time.Second

// CheckFunc probes one dependency.
type CheckFunc func(ctx context.Context) error

type readinessCheck struct {
	name     string
	check    CheckFunc
	required bool
}

// HealthOption configures the health handler.
type HealthOption func(*HealthHandler)

// WithReadinessCheck registers a dependency that must be reachable for the
// service to report ready.
func WithReadinessCheck(name string, check CheckFunc) HealthOption {
	return func(h *HealthHandler) {
		if check != nil {
			h.checks = append(h.checks, readinessCheck{name: name, check: check, required: true})
		}
	}
}

// WithOptionalCheck registers a dependency that is reported but does not fail
// readiness, e.g. a rate-limit tier with a fallback behind it.
func WithOptionalCheck(name string, check CheckFunc) HealthOption {
	return func(h *HealthHandler) {
		if check != nil {
			h.checks = append(h.checks, readinessCheck{name: name, check: check})
		}
	}
}

// WithCheckTimeout bounds each probe.
func WithCheckTimeout(timeout time.Duration) HealthOption {
	return func(h *HealthHandler) {
		if timeout > 0 {
			h.timeout = timeout
		}
	}
}

// WithHealthLogger sets the logger used for failed probes.
func WithHealthLogger(logger *zap.Logger) HealthOption {
	return func(h *HealthHandler) {
		if logger != nil {
			h.logger = logger
		}
	}
}

// HealthHandler exposes liveness and readiness information.
type HealthHandler struct {
	startedAt time.Time
	checks    []readinessCheck
	timeout   time.Duration
	logger    *zap.Logger
}

// NewHealthHandler builds a new health handler instance.
func NewHealthHandler(opts ...HealthOption) *HealthHandler {
	h := &HealthHandler{
		startedAt: time.Now().UTC(),
		timeout:   defaultCheckTimeout,
		logger:    zap.NewNop(),
	}
	for _, opt := range opts {
		opt(h)
	}
	sort.SliceStable(h.checks, func(i, j int) bool { return h.checks[i].name < h.checks[j].name })
	return h
}

// Status reports that the process is serving.
func (h *HealthHandler) Status(c *gin.Context) {
	c.JSON(http.StatusOK, HealthResponse{
		Status:    "ok",
		StartedAt: h.startedAt,
	})
}

// Readiness runs every probe. A failing required probe answers 503; a failing
// optional probe only marks the response as degraded.
func (h *HealthHandler) Readiness(c *gin.Context) {
	resp := ReadinessResponse{
		Status:    "ready",
		Checks:    make(map[string]CheckResult, len(h.checks)),
		CheckedAt: time.Now().UTC(),
	}
	status := http.StatusOK

	for _, rc := range h.checks {
		ctx, cancel := context.WithTimeout(c.Request.Context(), h.timeout)
		err := rc.check(ctx)
		cancel()

		result := CheckResult{Status: "ok", Required: rc.required}
		if err != nil {
			result.Status = "unavailable"
			result.Error = err.Error()
			h.logger.Warn("readiness check failed",
				zap.String("check", rc.name),
				zap.Bool("required", rc.required),
				zap.Error(err),
			)
			if rc.required {
				resp.Status = "unavailable"
				status = http.StatusServiceUnavailable
			} else if resp.Status == "ready" {
				resp.Status = "degraded"
			}
		}
		resp.Checks[rc.name] = result
	}

	c.JSON(status, resp)
}
