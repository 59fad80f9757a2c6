package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	EnvConfigPath = "CONFIG_PATH"
	EnvFile       = ".env"
)

type Config struct {
	ListenAddr string `yaml:"listen-addr"`
	GinMode    string `yaml:"gin-mode"`
	LogLevel   string `yaml:"log-level"`
	LogFormat  string `yaml:"log-format"`

	DBDriver   string `yaml:"db-driver"`
	DBDSN      string `yaml:"db-dsn"`
	DBHost     string `yaml:"db-host"`
	DBPort     string `yaml:"db-port"`
	DBUser     string `yaml:"db-user"`
	DBPassword string `yaml:"db-password"`
	DBName     string `yaml:"db-name"`

	RedisAddr     string        `yaml:"redis-addr"`
	RedisPassword string        `yaml:"redis-password"`
	DeliveryTTL   time.Duration `yaml:"delivery-ttl"`

	CronSecret string `yaml:"cron-secret"`
	AdminToken string `yaml:"admin-token"`

	SlackBotToken   string        `yaml:"slack-bot-token"`
	SlackAPIBaseURL string        `yaml:"slack-api-base-url"`
	SlackStubMode   bool          `yaml:"slack-stub-mode"`
	NotifyTimeout   time.Duration `yaml:"notify-timeout"`
	AckReplies      bool          `yaml:"ack-replies"`

	SchedulerConcurrency int    `yaml:"scheduler-concurrency"`
	DefaultCadenceDays   int    `yaml:"default-cadence-days"`
	DefaultTimezone      string `yaml:"default-timezone"`
}

// Load resolves configuration from a .env file, an optional YAML file and
// the process environment, in increasing order of precedence.
func Load() (*Config, error) {
	// A missing .env is normal outside local development.
	_ = godotenv.Load(EnvFile)

	cfg := defaults()
	if path := strings.TrimSpace(os.Getenv(EnvConfigPath)); path != "" {
		if err := loadFile(cfg, path); err != nil {
			return nil, err
		}
	}
	applyEnv(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func defaults() *Config {
	return &Config{
		ListenAddr:           ":8080",
		GinMode:              "debug",
		LogLevel:             "info",
		LogFormat:            "text",
		DBDriver:             "sqlite",
		DBDSN:                "data.db",
		DBHost:               "localhost",
		DBPort:               "5432",
		DeliveryTTL:          24 * time.Hour,
		SlackAPIBaseURL:      "https://slack.com/api",
		NotifyTimeout:        5 * time.Second,
		AckReplies:           true,
		SchedulerConcurrency: 4,
		DefaultCadenceDays:   7,
		DefaultTimezone:      "Europe/London",
	}
}

func loadFile(cfg *Config, path string) error {
	if abs, err := filepath.Abs(path); err == nil {
		path = abs
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse config file: %w", err)
	}
	return nil
}

func applyEnv(cfg *Config) {
	cfg.ListenAddr = getEnv("LISTEN_ADDR", cfg.ListenAddr)
	cfg.GinMode = getEnv("GIN_MODE", cfg.GinMode)
	cfg.LogLevel = getEnv("LOG_LEVEL", cfg.LogLevel)
	cfg.LogFormat = getEnv("LOG_FORMAT", cfg.LogFormat)

	cfg.DBDriver = getEnv("DB_DRIVER", cfg.DBDriver)
	cfg.DBDSN = getEnv("DATABASE_URL", cfg.DBDSN)
	cfg.DBHost = getEnv("DB_HOST", cfg.DBHost)
	cfg.DBPort = getEnv("DB_PORT", cfg.DBPort)
	cfg.DBUser = getEnv("DB_USER", cfg.DBUser)
	cfg.DBPassword = getEnv("DB_PASSWORD", cfg.DBPassword)
	cfg.DBName = getEnv("DB_NAME", cfg.DBName)

	cfg.RedisAddr = getEnv("REDIS_ADDR", cfg.RedisAddr)
	cfg.RedisPassword = getEnv("REDIS_PASSWORD", cfg.RedisPassword)
	cfg.DeliveryTTL = getEnvDuration("DELIVERY_TTL", cfg.DeliveryTTL)

	cfg.CronSecret = getEnv("CRON_SECRET", cfg.CronSecret)
	cfg.AdminToken = getEnv("ADMIN_TOKEN", cfg.AdminToken)

	cfg.SlackBotToken = getEnv("SLACK_BOT_TOKEN", cfg.SlackBotToken)
	cfg.SlackAPIBaseURL = getEnv("SLACK_API_BASE_URL", cfg.SlackAPIBaseURL)
	cfg.SlackStubMode = getEnvBool("SLACK_STUB_MODE", cfg.SlackStubMode)
	cfg.NotifyTimeout = getEnvDuration("NOTIFY_TIMEOUT", cfg.NotifyTimeout)
	cfg.AckReplies = getEnvBool("ACK_REPLIES", cfg.AckReplies)

	cfg.SchedulerConcurrency = getEnvInt("SCHEDULER_CONCURRENCY", cfg.SchedulerConcurrency)
	cfg.DefaultCadenceDays = getEnvInt("DEFAULT_CADENCE_DAYS", cfg.DefaultCadenceDays)
	cfg.DefaultTimezone = getEnv("DEFAULT_TIMEZONE", cfg.DefaultTimezone)
}

// Validate rejects configurations the service cannot start with.
func (c *Config) Validate() error {
	if c.CronSecret == "" {
		return fmt.Errorf("config: CRON_SECRET is required")
	}
	if c.SlackBotToken == "" && !c.SlackStubMode {
		return fmt.Errorf("config: SLACK_BOT_TOKEN is required unless SLACK_STUB_MODE is set")
	}
	if c.NotifyTimeout <= 0 {
		return fmt.Errorf("config: NOTIFY_TIMEOUT must be positive")
	}
	if c.DefaultCadenceDays <= 0 {
		return fmt.Errorf("config: DEFAULT_CADENCE_DAYS must be positive")
	}
	if c.SchedulerConcurrency <= 0 {
		c.SchedulerConcurrency = 1
	}
	if _, err := time.LoadLocation(c.DefaultTimezone); err != nil {
		return fmt.Errorf("config: invalid DEFAULT_TIMEZONE %q: %w", c.DefaultTimezone, err)
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return defaultValue
	}
	return value
}

func getEnvInt(key string, defaultValue int) int {
	if n, err := strconv.Atoi(getEnv(key, "")); err == nil {
		return n
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if b, err := strconv.ParseBool(getEnv(key, "")); err == nil {
		return b
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if d, err := time.ParseDuration(getEnv(key, "")); err == nil && d > 0 {
		return d
	}
	return defaultValue
}
