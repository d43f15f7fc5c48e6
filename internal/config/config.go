// Package config loads runtime settings from the environment (and a local
// .env file when present) through koanf, then validates them.
package config

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/v2"
	"github.com/samber/lo"
)

// Config holds application configuration. Field tags name the environment
// variable each value is read from.
type Config struct {
	AppEnv             string   `koanf:"APP_ENV"`
	Port               string   `koanf:"PORT"`
	DatabaseURL        string   `koanf:"DATABASE_URL" validate:"required"`
	RedisURL           string   `koanf:"REDIS_URL" validate:"required"`
	CORSAllowedOrigins []string `koanf:"CORS_ALLOWED_ORIGINS"`

	DBMaxConns               int           `koanf:"DB_MAX_CONNS" validate:"gte=0"`
	DBMinConns               int           `koanf:"DB_MIN_CONNS" validate:"gte=0"`
	DBStatementCacheCapacity int           `koanf:"DB_STATEMENT_CACHE_CAPACITY"`
	DBSlowQuery              time.Duration `koanf:"DB_SLOW_QUERY"`
	// DBAutoMigrate defaults to on outside production.
	DBAutoMigrate *bool `koanf:"DB_AUTO_MIGRATE"`

	// BaaS auth. Tokens are verified locally with AuthJWTSecret when set and
	// against the auth API at SupabaseURL otherwise.
	AuthJWTSecret   string        `koanf:"AUTH_JWT_SECRET" validate:"required_without=SupabaseURL"`
	AuthIssuer      string        `koanf:"AUTH_ISSUER"`
	AuthAudience    string        `koanf:"AUTH_AUDIENCE"`
	AuthClockSkew   time.Duration `koanf:"AUTH_CLOCK_SKEW"`
	SupabaseURL     string        `koanf:"SUPABASE_URL" validate:"omitempty,url"`
	SupabaseAnonKey string        `koanf:"SUPABASE_ANON_KEY"`

	FunctionsURL       string        `koanf:"FUNCTIONS_URL" validate:"omitempty,url"`
	FunctionsKey       string        `koanf:"FUNCTIONS_SERVICE_KEY"`
	EmailEnabled       bool          `koanf:"EMAIL_ENABLED"`
	OutboundTimeout    time.Duration `koanf:"OUTBOUND_TIMEOUT"`
	RetryBase          time.Duration `koanf:"RETRY_BASE"`
	RetryMaxAttempts   int           `koanf:"RETRY_MAX_ATTEMPTS" validate:"gte=1"`
	RetryJitterPercent int           `koanf:"RETRY_JITTER_PERCENT" validate:"gte=0,lte=100"`
	CircuitMinRequests int           `koanf:"CIRCUIT_MIN_REQUESTS" validate:"gte=1"`
	CircuitFailureRate float64       `koanf:"CIRCUIT_FAILURE_RATE" validate:"gt=0,lte=1"`
	CircuitOpenFor     time.Duration `koanf:"CIRCUIT_OPEN_FOR"`

	DraftOrderTTL     time.Duration `koanf:"DRAFT_ORDER_TTL"`
	KPICacheTTL       time.Duration `koanf:"KPI_CACHE_TTL"`
	IdempotencyTTL    time.Duration `koanf:"IDEMPOTENCY_TTL"`
	WidgetTimeout     time.Duration `koanf:"WIDGET_TIMEOUT"`
	PaymentRequestTTL time.Duration `koanf:"PAYMENT_REQUEST_TTL"`
	PaymentLinkBase   string        `koanf:"PAYMENT_LINK_BASE_URL" validate:"url"`

	AuditEnabled      bool          `koanf:"AUDIT_ENABLED"`
	AuditSamplingRate float64       `koanf:"AUDIT_SAMPLING_RATE" validate:"gte=0,lte=1"`
	AuditTimeout      time.Duration `koanf:"AUDIT_TIMEOUT"`

	RateLimitPublicPerMin int `koanf:"RATE_LIMIT_PUBLIC_PER_MIN" validate:"gte=0"`

	QueueRedisPrefix        string        `koanf:"QUEUE_REDIS_PREFIX"`
	QueueMaxAttempts        int           `koanf:"QUEUE_MAX_ATTEMPTS" validate:"gte=1"`
	QueueConcurrency        int           `koanf:"QUEUE_CONCURRENCY" validate:"gte=1"`
	QueueVisibilityTimeout  time.Duration `koanf:"QUEUE_VISIBILITY_TIMEOUT"`
	QueueBackoffBase        time.Duration `koanf:"QUEUE_BACKOFF_BASE"`
	QueueBackoffJitter      float64       `koanf:"QUEUE_BACKOFF_JITTER" validate:"gte=0,lte=1"`
	WorkerHeartbeatInterval time.Duration `koanf:"WORKER_HEARTBEAT_INTERVAL"`
	WorkerJobSoftDeadline   time.Duration `koanf:"WORKER_JOB_SOFT_DEADLINE"`
	WorkerMetricsAddr       string        `koanf:"WORKER_METRICS_ADDR"`

	LogFormat         string  `koanf:"OBS_LOG_FORMAT" validate:"oneof=json console text"`
	LogLevel          string  `koanf:"OBS_LOG_LEVEL"`
	MetricsEnabled    bool    `koanf:"OBS_ENABLE_PROMETHEUS"`
	MetricsNamespace  string  `koanf:"OBS_METRICS_NAMESPACE"`
	MetricsBucketsMS  string  `koanf:"OBS_METRICS_BUCKETS_MS"`
	TracingEnabled    bool    `koanf:"OBS_ENABLE_TRACING"`
	TracingExporter   string  `koanf:"OBS_TRACING_EXPORTER"`
	OTLPEndpoint      string  `koanf:"OBS_OTLP_ENDPOINT"`
	TracingSampling   float64 `koanf:"OBS_TRACING_SAMPLING_RATIO" validate:"gte=0,lte=1"`
	PprofEnabled      *bool   `koanf:"OBS_ENABLE_PPROF"`
	PprofUser         string  `koanf:"SECURE_PPROF_BASIC_AUTH_USER"`
	PprofPass         string  `koanf:"SECURE_PPROF_BASIC_AUTH_PASS"`
}

var defaults = map[string]any{
	"APP_ENV":                     "development",
	"PORT":                        "8080",
	"DB_MAX_CONNS":                10,
	"DB_STATEMENT_CACHE_CAPACITY": -1,
	"DB_SLOW_QUERY":               "500ms",
	"AUTH_AUDIENCE":               "authenticated",
	"AUTH_CLOCK_SKEW":             "30s",
	"EMAIL_ENABLED":               true,
	"OUTBOUND_TIMEOUT":            "10s",
	"RETRY_BASE":                  "200ms",
	"RETRY_MAX_ATTEMPTS":          3,
	"RETRY_JITTER_PERCENT":        20,
	"CIRCUIT_MIN_REQUESTS":        10,
	"CIRCUIT_FAILURE_RATE":        0.5,
	"CIRCUIT_OPEN_FOR":            "30s",
	"DRAFT_ORDER_TTL":             "2h",
	"KPI_CACHE_TTL":               "60s",
	"IDEMPOTENCY_TTL":             "24h",
	"WIDGET_TIMEOUT":              "10s",
	"PAYMENT_REQUEST_TTL":         "168h",
	"PAYMENT_LINK_BASE_URL":       "http://localhost:5173/pay",
	"AUDIT_ENABLED":               true,
	"AUDIT_SAMPLING_RATE":         1,
	"AUDIT_TIMEOUT":               "2s",
	"RATE_LIMIT_PUBLIC_PER_MIN":   30,
	"QUEUE_REDIS_PREFIX":          "telco:queue",
	"QUEUE_MAX_ATTEMPTS":          5,
	"QUEUE_CONCURRENCY":           4,
	"QUEUE_VISIBILITY_TIMEOUT":    "30s",
	"QUEUE_BACKOFF_BASE":          "2s",
	"QUEUE_BACKOFF_JITTER":        0.2,
	"WORKER_HEARTBEAT_INTERVAL":   "10s",
	"WORKER_JOB_SOFT_DEADLINE":    "25s",
	"OBS_LOG_FORMAT":              "json",
	"OBS_LOG_LEVEL":               "info",
	"OBS_ENABLE_PROMETHEUS":       true,
	"OBS_METRICS_NAMESPACE":       "telco",
	"OBS_ENABLE_TRACING":          true,
	"OBS_TRACING_EXPORTER":        "otlp",
	"OBS_TRACING_SAMPLING_RATIO":  1,
}

// Load reads defaults, then the process environment (after an optional .env
// file), and validates the result.
func Load() (*Config, error) {
	_ = godotenv.Load()

	k := koanf.New(".")
	if err := k.Load(confmap.Provider(defaults, "."), nil); err != nil {
		return nil, fmt.Errorf("load defaults: %w", err)
	}
	// blank variables count as unset so a .env template cannot wipe a default
	if err := k.Load(env.ProviderWithValue("", ".", func(key, value string) (string, any) {
		value = strings.TrimSpace(value)
		if value == "" {
			return "", nil
		}
		return key, value
	}), nil); err != nil {
		return nil, fmt.Errorf("load env: %w", err)
	}

	var cfg Config
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	cfg.derive()
	if err := validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) derive() {
	c.SupabaseURL = strings.TrimRight(c.SupabaseURL, "/")
	c.FunctionsURL = strings.TrimRight(c.FunctionsURL, "/")
	if c.SupabaseURL != "" {
		c.AuthIssuer = lo.CoalesceOrEmpty(c.AuthIssuer, c.SupabaseURL+"/auth/v1")
		c.FunctionsURL = lo.CoalesceOrEmpty(c.FunctionsURL, c.SupabaseURL+"/functions/v1")
	}
	// a single env value arrives as one comma-separated element
	origins := lo.FlatMap(c.CORSAllowedOrigins, func(v string, _ int) []string { return strings.Split(v, ",") })
	c.CORSAllowedOrigins = lo.Compact(lo.Map(origins, func(o string, _ int) string { return strings.TrimSpace(o) }))
	c.LogFormat = strings.ToLower(c.LogFormat)
}

func validate(c *Config) error {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string { return f.Tag.Get("koanf") })
	err := v.Struct(c)
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return err
	}
	problems := lo.Map(fieldErrs, func(fe validator.FieldError, _ int) string {
		return fmt.Sprintf("%s failed %q", fe.Field(), fe.Tag())
	})
	return fmt.Errorf("invalid config: %s", strings.Join(problems, "; "))
}

// HTTPAddr returns the address the HTTP server should bind to.
func (c *Config) HTTPAddr() string {
	port := strings.TrimSpace(c.Port)
	if port == "" {
		port = "8080"
	}
	if strings.HasPrefix(port, ":") {
		return port
	}
	return ":" + port
}

// IsProduction reports whether the service runs in production.
func (c *Config) IsProduction() bool {
	return strings.EqualFold(c.AppEnv, "production")
}

// AutoMigrate reports whether the API applies migrations on start.
func (c *Config) AutoMigrate() bool {
	return lo.FromPtrOr(c.DBAutoMigrate, !c.IsProduction())
}

// PprofOn reports whether /debug/pprof is mounted.
func (c *Config) PprofOn() bool {
	return lo.FromPtrOr(c.PprofEnabled, !c.IsProduction())
}
