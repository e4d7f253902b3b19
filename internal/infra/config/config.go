package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const envPrefix = "NEWSROOM"

type AppConfig struct {
	App       AppSettings       `mapstructure:"app"`
	Postgres  PostgresSettings  `mapstructure:"postgres"`
	Redis     RedisSettings     `mapstructure:"redis"`
	Kafka     KafkaSettings     `mapstructure:"kafka"`
	Identity  IdentitySettings  `mapstructure:"identity"`
	Telemetry TelemetrySettings `mapstructure:"telemetry"`
	RateLimit RateLimitSettings `mapstructure:"rate_limit"`
	CSRF      CSRFSettings      `mapstructure:"csrf"`
	CSP       CSPSettings       `mapstructure:"csp"`
	Guard     GuardSettings     `mapstructure:"guard"`
	CORS      CORSSettings      `mapstructure:"cors"`
}

type AppSettings struct {
	Name string `mapstructure:"name"`
	Env  string `mapstructure:"env"`
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
	// LogLevel overrides the environment default (debug in development, info in production).
	LogLevel string `mapstructure:"log_level"`
}

// IsProduction reports whether the service runs with production hardening.
func (s AppSettings) IsProduction() bool {
	return strings.EqualFold(strings.TrimSpace(s.Env), "production")
}

type PostgresSettings struct {
	Host              string        `mapstructure:"host"`
	Port              int           `mapstructure:"port"`
	User              string        `mapstructure:"user"`
	Password          string        `mapstructure:"password"`
	Database          string        `mapstructure:"database"`
	SSLMode           string        `mapstructure:"ssl_mode"`
	MaxConns          int32         `mapstructure:"max_conns"`
	MinConns          int32         `mapstructure:"min_conns"`
	MaxConnLifetime   time.Duration `mapstructure:"max_conn_lifetime"`
	MaxConnIdleTime   time.Duration `mapstructure:"max_conn_idle_time"`
	HealthCheckPeriod time.Duration `mapstructure:"health_check_period"`
	// StatementTimeout bounds every query so a slow database tier falls through
	// to the next store instead of stalling the request.
	StatementTimeout time.Duration `mapstructure:"statement_timeout"`
}

// RedisSettings configures the Redis connection backing the cache rate-limit tier.
type RedisSettings struct {
	Host               string `mapstructure:"host"`
	Port               int    `mapstructure:"port"`
	DB                 int    `mapstructure:"db"`
	Password           string `mapstructure:"password"`
	TLSEnabled         bool   `mapstructure:"tls_enabled"`
	RateLimitKeyPrefix string `mapstructure:"rate_limit_key_prefix"`
	RevocationPrefix   string `mapstructure:"revocation_prefix"`
}

// KafkaSettings configures the security audit event producer.
type KafkaSettings struct {
	Enabled     bool     `mapstructure:"enabled"`
	Brokers     []string `mapstructure:"brokers"`
	TopicPrefix string   `mapstructure:"topic_prefix"`
	Async       bool     `mapstructure:"async"`
}

// IdentitySettings selects how bearer credentials are resolved into identities.
// Mode "token" verifies signed JWTs locally and reads the role from Postgres;
// mode "remote" delegates to an external identity endpoint.
type IdentitySettings struct {
	Mode             string        `mapstructure:"mode"`
	JWTSecret        string        `mapstructure:"jwt_secret"`
	JWTIssuer        string        `mapstructure:"jwt_issuer"`
	RemoteURL        string        `mapstructure:"remote_url"`
	Timeout          time.Duration `mapstructure:"timeout"`
	BreakerFailures  uint32        `mapstructure:"breaker_failures"`
	BreakerOpenDelay time.Duration `mapstructure:"breaker_open_delay"`
	CredentialTTL    time.Duration `mapstructure:"credential_ttl"`
}

type TelemetrySettings struct {
	TracingEnabled bool    `mapstructure:"tracing_enabled"`
	OTLPEndpoint   string  `mapstructure:"otlp_endpoint"`
	ServiceName    string  `mapstructure:"service_name"`
	SamplingRate   float64 `mapstructure:"sampling_rate"`
}

// RateLimitRule is a single (limit, window) pair.
type RateLimitRule struct {
	Limit  int           `mapstructure:"limit"`
	Window time.Duration `mapstructure:"window"`
}

// RateLimitSettings holds the per-action table and the degradation policy for the memory tier.
type RateLimitSettings struct {
	DegradationPolicy string        `mapstructure:"degradation_policy"`
	Login             RateLimitRule `mapstructure:"login"`
	Signup            RateLimitRule `mapstructure:"signup"`
	API               RateLimitRule `mapstructure:"api"`
	Post              RateLimitRule `mapstructure:"post"`
	Comment           RateLimitRule `mapstructure:"comment"`
	Contact           RateLimitRule `mapstructure:"contact"`
	PasswordReset     RateLimitRule `mapstructure:"password_reset"`
}

// CSRFSettings configures stateless double-submit tokens.
type CSRFSettings struct {
	Secret       string        `mapstructure:"secret"`
	TTL          time.Duration `mapstructure:"ttl"`
	CookieName   string        `mapstructure:"cookie_name"`
	ExemptPaths  []string      `mapstructure:"exempt_paths"`
	SecureCookie bool          `mapstructure:"secure_cookie"`
}

// CSPSettings lists extra sources merged into the base directive table.
type CSPSettings struct {
	ReportURI      string   `mapstructure:"report_uri"`
	ScriptSources  []string `mapstructure:"script_sources"`
	ImageSources   []string `mapstructure:"image_sources"`
	ConnectSources []string `mapstructure:"connect_sources"`
}

// GuardSettings configures route protection.
type GuardSettings struct {
	LoginPath     string   `mapstructure:"login_path"`
	DashboardPath string   `mapstructure:"dashboard_path"`
	PublicPaths   []string `mapstructure:"public_paths"`
	ForceHTTPS    bool     `mapstructure:"force_https"`
	DevHosts      []string `mapstructure:"dev_hosts"`
}

type CORSSettings struct {
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

func Load() (*AppConfig, error) {
	v := viper.New()

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.SetEnvPrefix(envPrefix)

	setDefaults(v)

	if err := bindEnvs(v, []string{
		"app.name",
		"app.env",
		"app.host",
		"app.port",
		"app.log_level",
		"postgres.host",
		"postgres.port",
		"postgres.user",
		"postgres.password",
		"postgres.database",
		"postgres.ssl_mode",
		"postgres.max_conns",
		"postgres.min_conns",
		"postgres.max_conn_lifetime",
		"postgres.max_conn_idle_time",
		"postgres.health_check_period",
		"postgres.statement_timeout",
		"redis.host",
		"redis.port",
		"redis.db",
		"redis.password",
		"redis.tls_enabled",
		"redis.rate_limit_key_prefix",
		"redis.revocation_prefix",
		"kafka.enabled",
		"kafka.brokers",
		"kafka.topic_prefix",
		"kafka.async",
		"identity.mode",
		"identity.jwt_secret",
		"identity.jwt_issuer",
		"identity.remote_url",
		"identity.timeout",
		"identity.breaker_failures",
		"identity.breaker_open_delay",
		"identity.credential_ttl",
		"telemetry.tracing_enabled",
		"telemetry.otlp_endpoint",
		"telemetry.service_name",
		"telemetry.sampling_rate",
		"rate_limit.degradation_policy",
		"rate_limit.login.limit",
		"rate_limit.login.window",
		"rate_limit.signup.limit",
		"rate_limit.signup.window",
		"rate_limit.api.limit",
		"rate_limit.api.window",
		"rate_limit.post.limit",
		"rate_limit.post.window",
		"rate_limit.comment.limit",
		"rate_limit.comment.window",
		"rate_limit.contact.limit",
		"rate_limit.contact.window",
		"rate_limit.password_reset.limit",
		"rate_limit.password_reset.window",
		"csrf.secret",
		"csrf.ttl",
		"csrf.cookie_name",
		"csrf.exempt_paths",
		"csrf.secure_cookie",
		"csp.report_uri",
		"csp.script_sources",
		"csp.image_sources",
		"csp.connect_sources",
		"guard.login_path",
		"guard.dashboard_path",
		"guard.public_paths",
		"guard.force_https",
		"guard.dev_hosts",
		"cors.allowed_origins",
	}); err != nil {
		return nil, err
	}

	v.AutomaticEnv()

	var cfg AppConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate rejects configurations that would leave a security primitive unusable.
func (c *AppConfig) Validate() error {
	if c.App.IsProduction() {
		if len(c.CSRF.Secret) < 32 {
			return fmt.Errorf("csrf.secret must be at least 32 bytes in production")
		}
		if c.Identity.Mode == "token" && len(c.Identity.JWTSecret) < 32 {
			return fmt.Errorf("identity.jwt_secret must be at least 32 bytes in production")
		}
	}
	if c.CSRF.Secret == "" {
		return fmt.Errorf("csrf.secret is required")
	}
	switch c.Identity.Mode {
	case "token", "remote":
	default:
		return fmt.Errorf("identity.mode %q is not supported", c.Identity.Mode)
	}
	if c.Identity.Mode == "remote" && strings.TrimSpace(c.Identity.RemoteURL) == "" {
		return fmt.Errorf("identity.remote_url is required in remote mode")
	}
	if c.Identity.Timeout <= 0 {
		return fmt.Errorf("identity.timeout must be positive")
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "newsroom-edge")
	v.SetDefault("app.env", "development")
	v.SetDefault("app.host", "0.0.0.0")
	v.SetDefault("app.port", 8080)

	v.SetDefault("postgres.host", "localhost")
	v.SetDefault("postgres.port", 5432)
	v.SetDefault("postgres.user", "newsroom")
	v.SetDefault("postgres.password", "newsroom_password")
	v.SetDefault("postgres.database", "newsroom")
	v.SetDefault("postgres.ssl_mode", "disable")
	v.SetDefault("postgres.max_conns", 10)
	v.SetDefault("postgres.min_conns", 2)
	v.SetDefault("postgres.max_conn_lifetime", "60m")
	v.SetDefault("postgres.max_conn_idle_time", "15m")
	v.SetDefault("postgres.health_check_period", "30s")
	v.SetDefault("postgres.statement_timeout", "2s")

	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.tls_enabled", false)
	v.SetDefault("redis.rate_limit_key_prefix", "newsroom:rl")
	v.SetDefault("redis.revocation_prefix", "newsroom:revoked")

	v.SetDefault("kafka.enabled", false)
	v.SetDefault("kafka.brokers", []string{"localhost:9092"})
	v.SetDefault("kafka.topic_prefix", "newsroom")
	v.SetDefault("kafka.async", true)

	v.SetDefault("identity.mode", "token")
	v.SetDefault("identity.jwt_secret", "")
	v.SetDefault("identity.jwt_issuer", "newsroom")
	v.SetDefault("identity.remote_url", "")
	v.SetDefault("identity.timeout", "3s")
	v.SetDefault("identity.breaker_failures", 5)
	v.SetDefault("identity.breaker_open_delay", "30s")
	v.SetDefault("identity.credential_ttl", "24h")

	v.SetDefault("telemetry.tracing_enabled", false)
	v.SetDefault("telemetry.otlp_endpoint", "localhost:4318")
	v.SetDefault("telemetry.service_name", "newsroom-edge")
	v.SetDefault("telemetry.sampling_rate", 1.0)

	v.SetDefault("rate_limit.degradation_policy", "lenient")
	v.SetDefault("rate_limit.login.limit", 5)
	v.SetDefault("rate_limit.login.window", "15m")
	v.SetDefault("rate_limit.signup.limit", 3)
	v.SetDefault("rate_limit.signup.window", "1h")
	v.SetDefault("rate_limit.api.limit", 100)
	v.SetDefault("rate_limit.api.window", "1m")
	v.SetDefault("rate_limit.post.limit", 10)
	v.SetDefault("rate_limit.post.window", "1h")
	v.SetDefault("rate_limit.comment.limit", 20)
	v.SetDefault("rate_limit.comment.window", "15m")
	v.SetDefault("rate_limit.contact.limit", 5)
	v.SetDefault("rate_limit.contact.window", "1h")
	v.SetDefault("rate_limit.password_reset.limit", 3)
	v.SetDefault("rate_limit.password_reset.window", "1h")

	v.SetDefault("csrf.secret", "")
	v.SetDefault("csrf.ttl", "24h")
	v.SetDefault("csrf.cookie_name", "csrf-token")
	v.SetDefault("csrf.exempt_paths", []string{"/api/webhooks/"})
	v.SetDefault("csrf.secure_cookie", true)

	v.SetDefault("csp.report_uri", "")
	v.SetDefault("csp.script_sources", []string{})
	v.SetDefault("csp.image_sources", []string{})
	v.SetDefault("csp.connect_sources", []string{})

	v.SetDefault("guard.login_path", "/login")
	v.SetDefault("guard.dashboard_path", "/dashboard")
	v.SetDefault("guard.public_paths", []string{
		"/", "/login", "/signup", "/articles/", "/categories/", "/search",
		"/api/articles", "/api/search", "/api/csrf-token", "/api/auth/", "/api/contact", "/api/stories",
		"/healthz", "/readyz", "/static/",
	})
	v.SetDefault("guard.force_https", true)
	v.SetDefault("guard.dev_hosts", []string{"localhost", "127.0.0.1", "::1"})

	v.SetDefault("cors.allowed_origins", []string{})
}

func bindEnvs(v *viper.Viper, keys []string) error {
	for _, key := range keys {
		envKey := strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
		if err := v.BindEnv(key, envPrefix+"_"+envKey, envKey); err != nil {
			return fmt.Errorf("bind env for %s: %w", key, err)
		}
	}
	return nil
}
