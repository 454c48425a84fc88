package common

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds all application configuration
type Config struct {
	API        APIConfig        `yaml:"api"`
	Processing ProcessingConfig `yaml:"processing"`
	Editing    EditingConfig    `yaml:"editing"`
	Preview    PreviewConfig    `yaml:"preview"`
	Journal    JournalConfig    `yaml:"journal"`
	Session    SessionConfig    `yaml:"session"`
	Log        LogConfig        `yaml:"log"`
	Metrics    MetricsConfig    `yaml:"metrics"`
}

// APIConfig holds document service connection settings
type APIConfig struct {
	BaseURL   string        `yaml:"base_url"`
	Timeout   time.Duration `yaml:"timeout"`
	RateLimit float64       `yaml:"rate_limit"`
	RateBurst int           `yaml:"rate_burst"`
}

// ProcessingConfig holds the defaults sent with split-init
type ProcessingConfig struct {
	Engine    string   `yaml:"engine"`
	Languages []string `yaml:"languages"`
}

// EditingConfig holds autosave settings
type EditingConfig struct {
	AutosaveDelay  time.Duration `yaml:"autosave_delay"`
	SaveMaxRetries int           `yaml:"save_max_retries"`
}

// PreviewConfig holds preview handle settings
type PreviewConfig struct {
	Dir string `yaml:"dir"`
}

// JournalConfig holds the optional edit journal DSN
type JournalConfig struct {
	DSN string `yaml:"dsn"`
}

// SessionConfig allows resuming a known session
type SessionConfig struct {
	ID string `yaml:"id"`
}

// LogConfig holds logger settings
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// MetricsConfig holds the optional metrics listener address
type MetricsConfig struct {
	Addr string `yaml:"addr"`
}

// DefaultLanguages is used when no OCR language list is given.
var DefaultLanguages = []string{"en", "vi"}

// DefaultConfig returns the built-in defaults.
func DefaultConfig() *Config {
	return &Config{
		API: APIConfig{
			BaseURL:   "http://localhost:8000/api",
			Timeout:   2 * time.Minute,
			RateLimit: 10,
			RateBurst: 5,
		},
		Processing: ProcessingConfig{
			Engine:    "easyocr",
			Languages: append([]string(nil), DefaultLanguages...),
		},
		Editing: EditingConfig{
			AutosaveDelay:  1500 * time.Millisecond,
			SaveMaxRetries: 3,
		},
		Preview: PreviewConfig{
			Dir: os.TempDir(),
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// LoadConfig builds the configuration from defaults, an optional YAML file
// named by DOCFLOW_CONFIG, a .env file, then environment variables.
func LoadConfig() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		slog.Debug("config.dotenv.skipped", "error", err)
	}

	cfg := DefaultConfig()

	if path := os.Getenv("DOCFLOW_CONFIG"); path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, NewAppError("CONFIG_ERROR", "read config file", err)
		}
		if err := yaml.Unmarshal(raw, cfg); err != nil {
			return nil, NewAppError("CONFIG_ERROR", "parse config file", err)
		}
	}

	cfg.API.BaseURL = getEnv("DOCFLOW_API_URL", cfg.API.BaseURL)
	cfg.API.Timeout = getEnvAsDuration("DOCFLOW_HTTP_TIMEOUT", cfg.API.Timeout)
	cfg.API.RateLimit = getEnvAsFloat64("DOCFLOW_RATE_LIMIT", cfg.API.RateLimit)
	cfg.API.RateBurst = getEnvAsInt("DOCFLOW_RATE_BURST", cfg.API.RateBurst)
	cfg.Processing.Engine = getEnv("DOCFLOW_OCR_ENGINE", cfg.Processing.Engine)
	if raw := os.Getenv("DOCFLOW_OCR_LANGS"); raw != "" {
		cfg.Processing.Languages = ParseLanguages(raw)
	}
	cfg.Editing.AutosaveDelay = getEnvAsDuration("DOCFLOW_AUTOSAVE_DELAY", cfg.Editing.AutosaveDelay)
	cfg.Editing.SaveMaxRetries = getEnvAsInt("DOCFLOW_SAVE_MAX_RETRIES", cfg.Editing.SaveMaxRetries)
	cfg.Preview.Dir = getEnv("DOCFLOW_PREVIEW_DIR", cfg.Preview.Dir)
	cfg.Journal.DSN = getEnv("DOCFLOW_JOURNAL_DSN", cfg.Journal.DSN)
	cfg.Session.ID = getEnv("DOCFLOW_SESSION_ID", cfg.Session.ID)
	cfg.Metrics.Addr = getEnv("DOCFLOW_METRICS_ADDR", cfg.Metrics.Addr)
	cfg.Log.Level = getEnv("LOG_LEVEL", cfg.Log.Level)
	cfg.Log.Format = getEnv("LOG_FORMAT", cfg.Log.Format)

	return cfg, nil
}

// ParseLanguages splits a comma separated language list, falling back to the defaults.
func ParseLanguages(raw string) []string {
	var langs []string
	for _, part := range strings.Split(raw, ",") {
		if p := strings.TrimSpace(part); p != "" {
			langs = append(langs, p)
		}
	}
	if len(langs) == 0 {
		return append([]string(nil), DefaultLanguages...)
	}
	return langs
}

// SlogLevel converts the configured level name.
func (c LogConfig) SlogLevel() slog.Level {
	switch strings.ToLower(c.Level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Helper functions for environment variable parsing
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsFloat64(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatVal, err := strconv.ParseFloat(value, 64); err == nil {
			return floatVal
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

// Validate validates the loaded configuration
func (c *Config) Validate() error {
	v := NewValidator().
		Field("api.base_url", c.API.BaseURL, Required).
		Field("processing.engine", c.Processing.Engine, Required).
		Field("processing.languages", c.Processing.Languages, Required).
		Field("editing.save_max_retries", c.Editing.SaveMaxRetries, Positive)
	if c.Session.ID != "" {
		v.Field("session.id", c.Session.ID, MaxLength(128))
	}
	if v.HasErrors() {
		return NewAppError("CONFIG_ERROR", v.ErrorMessage(), ErrInvalidInput)
	}
	if c.API.Timeout <= 0 {
		return NewAppError("CONFIG_ERROR", fmt.Sprintf("api.timeout must be positive, got %s", c.API.Timeout), ErrInvalidInput)
	}
	if c.Editing.AutosaveDelay <= 0 {
		return NewAppError("CONFIG_ERROR", "editing.autosave_delay must be positive", ErrInvalidInput)
	}
	return nil
}
