// Package config provides application configuration loaded from environment
// variables with defaults and validation. It covers server timeouts, logging,
// the SQLite path, the inference backend, authentication and observability.
package config

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// CORSConfig defines Cross-Origin Resource Sharing settings.
type CORSConfig struct {
	AllowedOrigins []string
}

// SecurityConfig defines security-related settings such as HSTS.
type SecurityConfig struct {
	EnableHSTS bool
	HSTSMaxAge time.Duration
}

// OTELConfig defines OpenTelemetry observability settings.
type OTELConfig struct {
	Enabled     bool    // OTEL_ENABLED
	Endpoint    string  // OTEL_EXPORTER_OTLP_ENDPOINT (e.g. "otel:4317")
	Insecure    bool    // OTEL_EXPORTER_OTLP_INSECURE (true if no TLS)
	ServiceName string  // OTEL_SERVICE_NAME (e.g. "cot-chat")
	SampleRatio float64 // OTEL_TRACES_SAMPLER_ARG in [0..1]
}

// InferenceConfig selects and parameterizes the remote model backend.
type InferenceConfig struct {
	Backend         string        // INFERENCE_BACKEND: gradio|openai|placeholder
	URL             string        // INFERENCE_URL (gradio predict endpoint)
	APIToken        string        // INFERENCE_API_TOKEN
	Timeout         time.Duration // INFERENCE_TIMEOUT
	OpenAIBaseURL   string        // OPENAI_BASE_URL
	DefaultModel    string        // DEFAULT_MODEL
	AvailableModels []string      // AVAILABLE_MODELS (CSV)
}

// AuthConfig defines connection token and login settings.
type AuthConfig struct {
	Secret       string        // AUTH_SECRET (HS256 key)
	Ephemeral    bool          // true when Secret was generated at startup
	TokenTTL     time.Duration // AUTH_TOKEN_TTL
	RequireLogin bool          // REQUIRE_LOGIN: gate chat endpoints behind login
}

// Config holds all configuration values for the application.
type Config struct {
	// Server
	Port              string        // just the number
	ReadTimeout       time.Duration // e.g. 15s
	ReadHeaderTimeout time.Duration // e.g. 10s
	WriteTimeout      time.Duration // must outlast INFERENCE_TIMEOUT
	IdleTimeout       time.Duration // e.g. 60s
	MaxHeaderBytes    int           // bytes
	GinMode           string        // debug|release|test

	// Logging / Docs
	LogLevel       string // debug|info|warn|error|fatal|panic
	LogPretty      bool   // pretty console logs in dev
	SwaggerEnabled bool   // enable Swagger UI route
	APIBasePath    string // base path for API routes

	// App
	DBPath         string        // SQLite path
	SessionIdleTTL time.Duration // evict idle connections after this long
	TitleMaxLen    int           // runes of the first message kept in a title
	MaxPromptRunes int           // upper bound on a single prompt

	Inference InferenceConfig
	Auth      AuthConfig

	// Rate limiting
	RateRPS   float64 // tokens per second (>= 0)
	RateBurst int     // bucket size (>= 1)

	// Web protection
	CORS     CORSConfig
	Security SecurityConfig

	// Idempotency
	IdempotencyTTL time.Duration // how long a given Idempotency-Key is valid

	// Observability
	OTEL OTELConfig
}

// MustLoad loads the configuration and panics if validation fails.
func MustLoad() Config {
	cfg, err := Load()
	if err != nil {
		panic(err)
	}
	return cfg
}

// Load reads configuration from environment variables,
// applies defaults, normalizes values, and validates the result.
func Load() (Config, error) {
	cfg := Config{
		// Server
		Port:              getenv("PORT", "8080"),
		ReadTimeout:       getdur("READ_TIMEOUT", 15*time.Second),
		ReadHeaderTimeout: getdur("READ_HEADER_TIMEOUT", 10*time.Second),
		WriteTimeout:      getdur("WRITE_TIMEOUT", 90*time.Second),
		IdleTimeout:       getdur("IDLE_TIMEOUT", 60*time.Second),
		MaxHeaderBytes:    getint("MAX_HEADER_BYTES", 1<<20),
		GinMode:           strings.ToLower(getenv("GIN_MODE", "release")),

		// Logging / Docs
		LogLevel:       strings.ToLower(getenv("LOG_LEVEL", "info")),
		LogPretty:      getbool("LOG_PRETTY", false),
		SwaggerEnabled: getbool("SWAGGER_ENABLED", false),
		APIBasePath:    normalizeBasePath(getenv("API_BASE_PATH", "/api/v1")),

		// App
		DBPath:         getenv("DB_PATH", "chat_history.db"),
		SessionIdleTTL: getdur("SESSION_IDLE_TTL", 2*time.Hour),
		TitleMaxLen:    getint("TITLE_MAX_LEN", 50),
		MaxPromptRunes: getint("MAX_PROMPT_RUNES", 4000),

		Inference: InferenceConfig{
			Backend:         strings.ToLower(getenv("INFERENCE_BACKEND", "placeholder")),
			URL:             getenv("INFERENCE_URL", ""),
			APIToken:        getenv("INFERENCE_API_TOKEN", ""),
			Timeout:         getdur("INFERENCE_TIMEOUT", 60*time.Second),
			OpenAIBaseURL:   getenv("OPENAI_BASE_URL", ""),
			DefaultModel:    getenv("DEFAULT_MODEL", "cot-base"),
			AvailableModels: splitCSV(getenv("AVAILABLE_MODELS", "")),
		},
		Auth: AuthConfig{
			Secret:       getenv("AUTH_SECRET", ""),
			TokenTTL:     getdur("AUTH_TOKEN_TTL", 24*time.Hour),
			RequireLogin: getbool("REQUIRE_LOGIN", false),
		},

		// Rate limiting
		RateRPS:   getfloat("RATE_RPS", 5.0),
		RateBurst: getint("RATE_BURST", 10),

		// Web protection
		CORS: CORSConfig{
			AllowedOrigins: splitCSV(getenv("CORS_ALLOWED_ORIGINS", "")),
		},
		Security: SecurityConfig{
			EnableHSTS: getbool("ENABLE_HSTS", false),
			HSTSMaxAge: getdur("HSTS_MAX_AGE", 180*24*time.Hour),
		},

		// Idempotency
		IdempotencyTTL: getdur("IDEMPOTENCY_TTL", 24*time.Hour),

		// Observability (OpenTelemetry)
		OTEL: OTELConfig{
			Enabled:     getbool("OTEL_ENABLED", false),
			Endpoint:    getenv("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317"),
			Insecure:    getbool("OTEL_EXPORTER_OTLP_INSECURE", true),
			ServiceName: getenv("OTEL_SERVICE_NAME", "cot-chat"),
			SampleRatio: getfloat("OTEL_TRACES_SAMPLER_ARG", 1.0),
		},
	}

	// --- normalization ---
	if cfg.LogLevel == "warning" {
		cfg.LogLevel = "warn"
	}
	switch cfg.GinMode {
	case "debug", "release", "test":
	default:
		cfg.GinMode = "release"
	}
	if cfg.Auth.Secret == "" {
		cfg.Auth.Secret = randomSecret()
		cfg.Auth.Ephemeral = true
	}
	if len(cfg.Inference.AvailableModels) == 0 {
		cfg.Inference.AvailableModels = []string{cfg.Inference.DefaultModel}
	} else if !contains(cfg.Inference.AvailableModels, cfg.Inference.DefaultModel) {
		cfg.Inference.AvailableModels = append([]string{cfg.Inference.DefaultModel}, cfg.Inference.AvailableModels...)
	}

	// --- validation ---
	switch cfg.LogLevel {
	case "debug", "info", "warn", "error", "fatal", "panic":
	default:
		return cfg, errors.New("LOG_LEVEL must be one of: debug, info, warn, error, fatal, panic")
	}
	if strings.TrimSpace(cfg.Port) == "" {
		return cfg, errors.New("PORT must not be empty")
	}
	if cfg.ReadTimeout <= 0 || cfg.ReadHeaderTimeout <= 0 || cfg.WriteTimeout <= 0 || cfg.IdleTimeout <= 0 {
		return cfg, errors.New("timeouts must be positive durations")
	}
	if cfg.MaxHeaderBytes <= 0 {
		return cfg, errors.New("MAX_HEADER_BYTES must be > 0")
	}
	if strings.TrimSpace(cfg.DBPath) == "" {
		return cfg, errors.New("DB_PATH must not be empty")
	}
	if cfg.SessionIdleTTL <= 0 {
		return cfg, errors.New("SESSION_IDLE_TTL must be > 0")
	}
	if cfg.TitleMaxLen < 1 {
		return cfg, errors.New("TITLE_MAX_LEN must be >= 1")
	}
	if cfg.MaxPromptRunes < 1 {
		return cfg, errors.New("MAX_PROMPT_RUNES must be >= 1")
	}
	switch cfg.Inference.Backend {
	case "placeholder":
	case "gradio":
		if strings.TrimSpace(cfg.Inference.URL) == "" {
			return cfg, errors.New("INFERENCE_URL is required for the gradio backend")
		}
	case "openai":
		if strings.TrimSpace(cfg.Inference.APIToken) == "" {
			return cfg, errors.New("INFERENCE_API_TOKEN is required for the openai backend")
		}
	default:
		return cfg, fmt.Errorf("INFERENCE_BACKEND %q must be one of: gradio, openai, placeholder", cfg.Inference.Backend)
	}
	if cfg.Inference.Timeout <= 0 {
		return cfg, errors.New("INFERENCE_TIMEOUT must be > 0")
	}
	if strings.TrimSpace(cfg.Inference.DefaultModel) == "" {
		return cfg, errors.New("DEFAULT_MODEL must not be empty")
	}
	if len(cfg.Auth.Secret) < 16 {
		return cfg, errors.New("AUTH_SECRET must be at least 16 bytes")
	}
	if cfg.Auth.TokenTTL <= 0 {
		return cfg, errors.New("AUTH_TOKEN_TTL must be > 0")
	}
	if cfg.RateRPS < 0 {
		return cfg, errors.New("RATE_RPS must be >= 0")
	}
	if cfg.RateBurst < 1 {
		return cfg, errors.New("RATE_BURST must be >= 1")
	}
	if cfg.Security.HSTSMaxAge < 0 {
		return cfg, errors.New("HSTS_MAX_AGE must be >= 0")
	}
	if cfg.IdempotencyTTL <= 0 {
		return cfg, errors.New("IDEMPOTENCY_TTL must be > 0")
	}
	if cfg.OTEL.SampleRatio < 0 || cfg.OTEL.SampleRatio > 1 {
		return cfg, errors.New("OTEL_TRACES_SAMPLER_ARG must be in [0,1]")
	}
	return cfg, nil
}

// ---- helpers (no external deps) ----

func getenv(k, def string) string {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		return v
	}
	return def
}

func getfloat(k string, def float64) float64 {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func getint(k string, def int) int {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return def
}

func getbool(k string, def bool) bool {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "1", "true", "yes", "y", "on":
			return true
		case "0", "false", "no", "n", "off":
			return false
		}
	}
	return def
}

func getdur(k string, def time.Duration) time.Duration {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

func splitCSV(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		t := strings.TrimSpace(p)
		if t != "" {
			out = append(out, t)
		}
	}
	return out
}

// randomSecret returns a per-process signing key. Tokens signed with it do
// not survive a restart.
func randomSecret() string {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		panic(err)
	}
	return hex.EncodeToString(b)
}

func contains(xs []string, v string) bool {
	for _, x := range xs {
		if x == v {
			return true
		}
	}
	return false
}

// normalizeBasePath ensures leading '/' and strips trailing '/' (except root).
func normalizeBasePath(p string) string {
	p = strings.TrimSpace(p)
	if p == "" {
		return "/"
	}
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	if len(p) > 1 && strings.HasSuffix(p, "/") {
		p = strings.TrimRight(p, "/")
	}
	return p
}
