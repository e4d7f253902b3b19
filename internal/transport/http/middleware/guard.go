package middleware

import (
	"errors"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/akabrrown/voice-of-upsa-sub004/internal/core/domain"
	"github.com/akabrrown/voice-of-upsa-sub004/internal/core/port"
	"github.com/akabrrown/voice-of-upsa-sub004/internal/infra/config"
	appLogger "github.com/akabrrown/voice-of-upsa-sub004/internal/infra/logger"
	"github.com/akabrrown/voice-of-upsa-sub004/internal/infra/telemetry"
)

// Internal headers forwarded to handlers after the guard resolved the caller.
// Any client-supplied header with the X-User- prefix is removed first.
const (
	HeaderUserID          = "X-User-Id"
	HeaderUserRole        = "X-User-Role"
	HeaderUserPermissions = "X-User-Permissions"

	internalHeaderPrefix = "X-User-"
	sessionCookie        = "access-token"
)

// Guard outcomes used for metrics and logs.
const (
	guardPublic          = "public"
	guardAllowed         = "allowed"
	guardUnauthenticated = "unauthenticated"
	guardForbidden       = "forbidden"
	guardHTTPSRedirect   = "https_redirect"
)

// RoleRule requires one of Roles for every path starting with Prefix.
type RoleRule struct {
	Prefix string
	Roles  domain.RoleRequirement
}

// DefaultRoleRules maps the admin and editor areas and the metrics endpoint.
// Other protected paths only need a valid credential.
func DefaultRoleRules() []RoleRule {
	return []RoleRule{
		{Prefix: "/metrics", Roles: domain.RoleRequirement{domain.RoleAdmin}},
		{Prefix: "/api/admin", Roles: domain.RoleRequirement{domain.RoleAdmin}},
		{Prefix: "/admin", Roles: domain.RoleRequirement{domain.RoleAdmin}},
		{Prefix: "/api/editor", Roles: domain.RoleRequirement{domain.RoleAdmin, domain.RoleEditor}},
		{Prefix: "/editor", Roles: domain.RoleRequirement{domain.RoleAdmin, domain.RoleEditor}},
	}
}

// GuardOptions carries the optional collaborators of the route guard.
type GuardOptions struct {
	RoleRules []RoleRule
	Headers   *SecurityHeaders
	Errors    *ErrorWriter
	Events    port.SecurityEventPublisher
	Metrics   *telemetry.SecurityMetrics
	Logger    *zap.Logger
}

// RouteGuard is the first middleware every request passes. It attaches the
// security headers, forces HTTPS, lets public paths through and resolves the
// caller for everything else.
type RouteGuard struct {
	identity      port.IdentityProvider
	loginPath     string
	dashboardPath string
	publicExact   map[string]struct{}
	publicPrefix  []string
	forceHTTPS    bool
	devHosts      map[string]struct{}
	rules         []RoleRule
	headers       *SecurityHeaders
	errors        *ErrorWriter
	events        port.SecurityEventPublisher
	metrics       *telemetry.SecurityMetrics
	logger        *zap.Logger
}

// NewRouteGuard builds the guard. Public entries ending in "/" match as
// prefixes; every other entry matches exactly.
func NewRouteGuard(identity port.IdentityProvider, cfg config.GuardSettings, opts GuardOptions) *RouteGuard {
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	errs := opts.Errors
	if errs == nil {
		errs = NewErrorWriter(false)
	}
	rules := opts.RoleRules
	if len(rules) == 0 {
		rules = DefaultRoleRules()
	}

	g := &RouteGuard{
		identity:      identity,
		loginPath:     defaultString(cfg.LoginPath, "/login"),
		dashboardPath: defaultString(cfg.DashboardPath, "/dashboard"),
		publicExact:   make(map[string]struct{}),
		forceHTTPS:    cfg.ForceHTTPS,
		devHosts:      make(map[string]struct{}),
		rules:         rules,
		headers:       opts.Headers,
		errors:        errs,
		events:        opts.Events,
		metrics:       opts.Metrics,
		logger:        log,
	}

	for _, p := range cfg.PublicPaths {
		p = strings.TrimSpace(p)
		switch {
		case p == "":
		case p != "/" && strings.HasSuffix(p, "/"):
			g.publicPrefix = append(g.publicPrefix, p)
		default:
			g.publicExact[p] = struct{}{}
		}
	}
	g.publicExact[g.loginPath] = struct{}{}

	for _, h := range cfg.DevHosts {
		if h = strings.ToLower(strings.TrimSpace(h)); h != "" {
			g.devHosts[h] = struct{}{}
		}
	}

	return g
}

// Handler returns the gin middleware.
func (g *RouteGuard) Handler() gin.HandlerFunc {
	return func(c *gin.Context) {
		stripInternalHeaders(c.Request.Header)
		g.headers.Apply(c)

		if g.shouldRedirectToHTTPS(c.Request) {
			g.metrics.ObserveGuard(guardHTTPSRedirect)
			target := "https://" + c.Request.Host + c.Request.URL.RequestURI()
			c.Redirect(http.StatusMovedPermanently, target)
			c.Abort()
			return
		}

		path := c.Request.URL.Path
		if g.IsPublic(path) {
			g.metrics.ObserveGuard(guardPublic)
			c.Next()
			return
		}

		credential := bearerCredential(c)
		if credential == "" {
			g.unauthenticated(c, "missing credential", nil)
			return
		}

		identity, err := g.identity.Resolve(c.Request.Context(), credential)
		if err != nil {
			g.unauthenticated(c, credentialFailureReason(err), err)
			return
		}
		if !identity.Authenticated() {
			g.unauthenticated(c, "identity without role", nil)
			return
		}

		if required := g.RequiredRoles(path); !required.Allows(identity.Role) {
			g.forbidden(c, identity, required)
			return
		}

		c.Request.Header.Set(HeaderUserID, identity.UserID)
		c.Request.Header.Set(HeaderUserRole, string(identity.Role))
		c.Request.Header.Set(HeaderUserPermissions, strings.Join(identity.Permissions.Strings(), ","))
		c.Set(IdentityKey, identity)

		g.metrics.ObserveGuard(guardAllowed)
		c.Next()
	}
}

// IsPublic reports whether path bypasses identity resolution.
func (g *RouteGuard) IsPublic(path string) bool {
	if _, ok := g.publicExact[path]; ok {
		return true
	}
	for _, prefix := range g.publicPrefix {
		if strings.HasPrefix(path, prefix) {
			return true
		}
	}
	return false
}

// RequiredRoles returns the roles allowed on path. Rules match by plain string
// prefix, so /administrator falls under /admin. An empty requirement means any
// authenticated role.
func (g *RouteGuard) RequiredRoles(path string) domain.RoleRequirement {
	for _, rule := range g.rules {
		if strings.HasPrefix(path, rule.Prefix) {
			return rule.Roles
		}
	}
	return nil
}

func (g *RouteGuard) unauthenticated(c *gin.Context, reason string, cause error) {
	path := c.Request.URL.Path
	fields := []zap.Field{
		zap.String("reason", reason),
		zap.String("method", c.Request.Method),
		zap.String("path", path),
		zap.String("identifier", appLogger.MaskIP(ClientIP(c.Request))),
		zap.String("trace_id", GetTraceID(c)),
	}
	if cause != nil {
		fields = append(fields, zap.Error(cause))
	}
	if errors.Is(cause, port.ErrIdentityUnavailable) {
		g.logger.Warn("identity provider unavailable, denying request", fields...)
	} else {
		g.logger.Info("unauthenticated request to protected route", fields...)
	}

	g.metrics.ObserveGuard(guardUnauthenticated)
	g.publish(c, domain.SecurityEvent{
		Kind:       domain.SecurityEventUnauthenticated,
		Identifier: ClientIP(c.Request),
		Route:      path,
		Method:     c.Request.Method,
		Role:       domain.RoleAnonymous,
		Reason:     reason,
	})

	if isAPIPath(path) {
		env := g.errors.Envelope(c, CodeUnauthenticated, "Authentication required.", map[string]string{"reason": reason})
		env.RedirectTo = g.loginPath
		g.errors.AbortWith(c, http.StatusUnauthorized, env)
		return
	}

	target := g.loginPath + "?" + url.Values{"next": {c.Request.URL.RequestURI()}}.Encode()
	c.Redirect(http.StatusTemporaryRedirect, target)
	c.Abort()
}

func (g *RouteGuard) forbidden(c *gin.Context, identity domain.Identity, required domain.RoleRequirement) {
	path := c.Request.URL.Path
	requiredNames := make([]string, 0, len(required))
	for _, r := range required {
		requiredNames = append(requiredNames, string(r))
	}

	g.logger.Warn("insufficient role for route",
		zap.String("user_id", identity.UserID),
		zap.String("role", string(identity.Role)),
		zap.Strings("required_roles", requiredNames),
		zap.String("method", c.Request.Method),
		zap.String("path", path),
		zap.String("trace_id", GetTraceID(c)),
	)

	g.metrics.ObserveGuard(guardForbidden)
	g.publish(c, domain.SecurityEvent{
		Kind:       domain.SecurityEventForbidden,
		Identifier: "user:" + identity.UserID,
		Route:      path,
		Method:     c.Request.Method,
		Role:       identity.Role,
		UserID:     identity.UserID,
		Reason:     "insufficient role",
		Metadata:   map[string]any{"required_roles": requiredNames},
	})

	if isAPIPath(path) {
		env := g.errors.Envelope(c, CodeForbidden, "You do not have permission to access this resource.",
			map[string]any{"role": identity.Role, "required": requiredNames})
		env.RedirectTo = g.dashboardPath
		g.errors.AbortWith(c, http.StatusForbidden, env)
		return
	}

	c.Redirect(http.StatusFound, g.dashboardPath)
	c.Abort()
}

func (g *RouteGuard) publish(c *gin.Context, event domain.SecurityEvent) {
	if g.events == nil {
		return
	}
	event.OccurredAt = time.Now().UTC()
	if err := g.events.PublishSecurityEvent(c.Request.Context(), event); err != nil {
		g.logger.Warn("publish guard event failed", zap.String("kind", string(event.Kind)), zap.Error(err))
	}
}

func (g *RouteGuard) shouldRedirectToHTTPS(r *http.Request) bool {
	if !g.forceHTTPS || !strings.EqualFold(r.Header.Get("X-Forwarded-Proto"), "http") {
		return false
	}

	host := r.Host
	if h, _, err := net.SplitHostPort(host); err == nil {
		host = h
	}
	host = strings.ToLower(strings.Trim(host, "[]"))

	if _, dev := g.devHosts[host]; dev {
		return false
	}
	if ip := net.ParseIP(host); ip != nil && ip.IsLoopback() {
		return false
	}
	return true
}

func stripInternalHeaders(h http.Header) {
	for key := range h {
		if strings.HasPrefix(http.CanonicalHeaderKey(key), internalHeaderPrefix) {
			delete(h, key)
		}
	}
}

func bearerCredential(c *gin.Context) string {
	if header := c.GetHeader("Authorization"); header != "" {
		scheme, token, found := strings.Cut(header, " ")
		if found && strings.EqualFold(scheme, "Bearer") {
			return strings.TrimSpace(token)
		}
		return ""
	}
	if cookie, err := c.Cookie(sessionCookie); err == nil {
		return strings.TrimSpace(cookie)
	}
	return ""
}

func credentialFailureReason(err error) string {
	switch {
	case errors.Is(err, port.ErrExpiredCredential):
		return "credential expired"
	case errors.Is(err, port.ErrIdentityUnavailable):
		return "identity provider unavailable"
	default:
		return "invalid credential"
	}
}

func isAPIPath(path string) bool {
	return path == "/api" || strings.HasPrefix(path, "/api/")
}

func defaultString(value, fallback string) string {
	if v := strings.TrimSpace(value); v != "" {
		return v
	}
	return fallback
}
