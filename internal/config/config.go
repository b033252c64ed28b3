package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Port        string   `mapstructure:"PORT"`
	Env         string   `mapstructure:"ENV"`
	DatabaseURL string   `mapstructure:"DATABASE_URL"`
	DBMaxConns  int32    `mapstructure:"DB_MAX_CONNS"`
	DBMinConns  int32    `mapstructure:"DB_MIN_CONNS"`
	CORSOrigins []string `mapstructure:"CORS_ORIGINS"`

	AuthIssuer   string `mapstructure:"AUTH_ISSUER"`
	AuthAudience string `mapstructure:"AUTH_AUDIENCE"`
	AuthHMACKey  string `mapstructure:"AUTH_HMAC_KEY"`

	// Task queue
	TaskPollInterval time.Duration `mapstructure:"TASK_POLL_INTERVAL"` // <= 0 disables the poll loop
	TaskRetryDelay   time.Duration `mapstructure:"TASK_RETRY_DELAY"`
	TaskMaxAttempts  int           `mapstructure:"TASK_MAX_ATTEMPTS"`
	TaskBatchSize    int           `mapstructure:"TASK_BATCH_SIZE"`

	// Recurring scan scheduler
	ScanHour   int `mapstructure:"SCAN_HOUR"`
	ScanMinute int `mapstructure:"SCAN_MINUTE"`

	// Workflow policy defaults (facility rows may override)
	FollowUpDays        int `mapstructure:"FOLLOWUP_DAYS"`
	ReassessCadenceDays int `mapstructure:"REASSESS_CADENCE_DAYS"`

	// Export schedules
	ExportStaleTolerance time.Duration `mapstructure:"EXPORT_STALE_TOLERANCE"`

	// Model runs
	ModelRunScript  string        `mapstructure:"MODEL_RUN_SCRIPT"`
	ModelRunTimeout time.Duration `mapstructure:"MODEL_RUN_TIMEOUT"`

	// Mail / outbox
	SMTPHost   string `mapstructure:"SMTP_HOST"`
	SMTPPort   int    `mapstructure:"SMTP_PORT"`
	SMTPUser   string `mapstructure:"SMTP_USER"`
	SMTPPass   string `mapstructure:"SMTP_PASS"`
	SMTPFrom   string `mapstructure:"SMTP_FROM"`
	OutboxPath string `mapstructure:"OUTBOX_PATH"`

	// Rate limiting
	RateLimitRPS    float64       `mapstructure:"RATE_LIMIT_RPS"`
	RateLimitBurst  int           `mapstructure:"RATE_LIMIT_BURST"`
	RateLimitWindow time.Duration `mapstructure:"RATE_LIMIT_WINDOW"`
}

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("PORT", "8000")
	v.SetDefault("ENV", "development")
	v.SetDefault("DB_MAX_CONNS", 20)
	v.SetDefault("DB_MIN_CONNS", 5)
	v.SetDefault("CORS_ORIGINS", "http://localhost:3000")
	v.SetDefault("TASK_POLL_INTERVAL", "15s")
	v.SetDefault("TASK_RETRY_DELAY", "5m")
	v.SetDefault("TASK_MAX_ATTEMPTS", 3)
	v.SetDefault("TASK_BATCH_SIZE", 10)
	v.SetDefault("SCAN_HOUR", 6)
	v.SetDefault("SCAN_MINUTE", 0)
	v.SetDefault("FOLLOWUP_DAYS", 3)
	v.SetDefault("REASSESS_CADENCE_DAYS", 180)
	v.SetDefault("EXPORT_STALE_TOLERANCE", "5m")
	v.SetDefault("MODEL_RUN_TIMEOUT", "10m")
	v.SetDefault("OUTBOX_PATH", "outbox/notifications.jsonl")
	v.SetDefault("SMTP_PORT", 587)
	v.SetDefault("RATE_LIMIT_RPS", 100)
	v.SetDefault("RATE_LIMIT_BURST", 200)
	v.SetDefault("RATE_LIMIT_WINDOW", "1m")

	// Bind env vars explicitly so Unmarshal picks them up
	for _, key := range []string{
		"PORT", "ENV", "DATABASE_URL", "DB_MAX_CONNS", "DB_MIN_CONNS",
		"CORS_ORIGINS", "AUTH_ISSUER", "AUTH_AUDIENCE", "AUTH_HMAC_KEY",
		"TASK_POLL_INTERVAL", "TASK_RETRY_DELAY", "TASK_MAX_ATTEMPTS",
		"TASK_BATCH_SIZE", "SCAN_HOUR", "SCAN_MINUTE", "FOLLOWUP_DAYS",
		"REASSESS_CADENCE_DAYS", "EXPORT_STALE_TOLERANCE",
		"MODEL_RUN_SCRIPT", "MODEL_RUN_TIMEOUT",
		"SMTP_HOST", "SMTP_PORT", "SMTP_USER", "SMTP_PASS", "SMTP_FROM",
		"OUTBOX_PATH", "RATE_LIMIT_RPS", "RATE_LIMIT_BURST", "RATE_LIMIT_WINDOW",
	} {
		v.BindEnv(key)
	}

	// Try reading .env file, but don't fail if missing
	_ = v.ReadInConfig()

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if cfg.CORSOrigins == nil {
		if origins := v.GetString("CORS_ORIGINS"); origins != "" {
			cfg.CORSOrigins = strings.Split(origins, ",")
		}
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) IsDev() bool {
	return c.Env == "development"
}

// Validate checks cross-field constraints that viper defaults alone cannot
// enforce.
func (c *Config) Validate() error {
	if c.ScanHour < 0 || c.ScanHour > 23 {
		return fmt.Errorf("SCAN_HOUR must be 0-23, got %d", c.ScanHour)
	}
	if c.ScanMinute < 0 || c.ScanMinute > 59 {
		return fmt.Errorf("SCAN_MINUTE must be 0-59, got %d", c.ScanMinute)
	}
	if c.TaskMaxAttempts < 1 {
		return fmt.Errorf("TASK_MAX_ATTEMPTS must be >= 1, got %d", c.TaskMaxAttempts)
	}
	if c.TaskBatchSize < 1 {
		return fmt.Errorf("TASK_BATCH_SIZE must be >= 1, got %d", c.TaskBatchSize)
	}
	if c.FollowUpDays < 0 {
		return fmt.Errorf("FOLLOWUP_DAYS must be >= 0, got %d", c.FollowUpDays)
	}
	if c.ReassessCadenceDays < 1 {
		return fmt.Errorf("REASSESS_CADENCE_DAYS must be >= 1, got %d", c.ReassessCadenceDays)
	}
	if !c.IsDev() && c.AuthHMACKey == "" && c.AuthIssuer == "" {
		return fmt.Errorf("AUTH_HMAC_KEY or AUTH_ISSUER must be set outside development")
	}
	return nil
}
