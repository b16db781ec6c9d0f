package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
)

type Config struct {
	Addr string `validate:"required"`

	DBDriver       string `validate:"oneof=sqlite3 postgres"`
	DBDSN          string `validate:"required_if=DBDriver postgres"`
	DBMaxOpenConns int    `validate:"gte=0"`

	GeminiAPIKey      string
	GeminiModel       string        `validate:"required"`
	GeminiBaseURL     string        `validate:"required,url"`
	GenerationTimeout time.Duration `validate:"gt=0"`

	// WebhookSigningSecret may be empty; the webhook then fails closed per request.
	WebhookSigningSecret string

	AuthIssuer    string `validate:"required_with=AuthJWKSURL"`
	AuthJWKSURL   string `validate:"omitempty,url"`
	AuthAudience  string
	AuthDevSecret string

	RedisURL string `validate:"omitempty,url"`

	LogLevel string `validate:"omitempty,oneof=debug info warn warning error"`
	LogFile  string
}

var configPaths = []string{
	"config.env",
	"../config.env",
	"../../config.env",
}

// Load reads config.env (or .env) when present and then the process
// environment. Variables already set in the environment win.
func Load() (Config, error) {
	loaded := false
	for _, path := range configPaths {
		if err := godotenv.Load(path); err == nil {
			loaded = true
			break
		}
	}
	if !loaded {
		_ = godotenv.Load()
	}
	return FromEnv()
}

func FromEnv() (Config, error) {
	timeout, err := getDuration("GENERATION_TIMEOUT", 45*time.Second)
	if err != nil {
		return Config{}, err
	}
	maxOpen, err := getInt("DB_MAX_OPEN_CONNS", 10)
	if err != nil {
		return Config{}, err
	}

	cfg := Config{
		Addr:                 getEnv("ADDR", ":8080"),
		DBDriver:             getEnv("DB_DRIVER", "sqlite3"),
		DBDSN:                getEnv("DB_DSN", ""),
		DBMaxOpenConns:       maxOpen,
		GeminiAPIKey:         getEnv("GEMINI_API_KEY", ""),
		GeminiModel:          getEnv("GEMINI_MODEL", "gemini-2.5-flash"),
		GeminiBaseURL:        getEnv("GEMINI_BASE_URL", "https://generativelanguage.googleapis.com"),
		GenerationTimeout:    timeout,
		WebhookSigningSecret: getEnv("WEBHOOK_SIGNING_SECRET", ""),
		AuthIssuer:           getEnv("AUTH_ISSUER", ""),
		AuthJWKSURL:          getEnv("AUTH_JWKS_URL", ""),
		AuthAudience:         getEnv("AUTH_AUDIENCE", ""),
		AuthDevSecret:        getEnv("AUTH_DEV_SECRET", ""),
		RedisURL:             getEnv("REDIS_URL", ""),
		LogLevel:             getEnv("LOG_LEVEL", "info"),
		LogFile:              getEnv("LOG_FILE", ""),
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterStructValidation(authConfigValidation, Config{})
	return v
}

// authConfigValidation requires at least one way to verify session tokens.
func authConfigValidation(sl validator.StructLevel) {
	cfg := sl.Current().Interface().(Config)
	if cfg.AuthJWKSURL == "" && cfg.AuthDevSecret == "" {
		sl.ReportError(cfg.AuthJWKSURL, "AuthJWKSURL", "AuthJWKSURL", "auth_verifier_required", "")
	}
}

func (c Config) Validate() error {
	err := validate.Struct(c)
	if err == nil {
		return nil
	}

	var validationErrors validator.ValidationErrors
	if !errors.As(err, &validationErrors) {
		return err
	}

	messages := make([]string, 0, len(validationErrors))
	for _, fieldErr := range validationErrors {
		messages = append(messages, fmt.Sprintf("%s failed %q", fieldErr.Field(), fieldErr.Tag()))
	}
	return fmt.Errorf("invalid config: %s", strings.Join(messages, "; "))
}

func getEnv(key, defaultValue string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return defaultValue
}

func getInt(key string, defaultValue int) (int, error) {
	raw := getEnv(key, "")
	if raw == "" {
		return defaultValue, nil
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return value, nil
}

func getDuration(key string, defaultValue time.Duration) (time.Duration, error) {
	raw := getEnv(key, "")
	if raw == "" {
		return defaultValue, nil
	}
	value, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return value, nil
}
