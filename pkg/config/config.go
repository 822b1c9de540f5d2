package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
)

const (
	DefaultMessageQuota    = 20
	DefaultProviderTimeout = 2 * time.Minute
	DefaultModel           = "gpt-3.5-turbo"
)

var ErrMissing = errors.New("required configuration value is missing")

type Config struct {
	OpenAIKey       string
	OpenAIModel     string
	OpenAIBaseURL   string
	ProviderTimeout time.Duration

	DBDriver    string
	DatabaseURL string

	AccessPassword string
	MessageQuota   int

	ServerHost string
	ServerPort string
	StaticDir  string
	LogLevel   string
}

func (c *Config) Addr() string {
	return c.ServerHost + ":" + c.ServerPort
}

// LoadConfig reads .env (when present) and the process environment. Any missing
// required value or unparsable optional value is returned as an error so the
// caller can refuse to start.
func LoadConfig() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		logrus.Warn(".env file not found, using process environment")
	}
	return FromEnv()
}

func FromEnv() (*Config, error) {
	cfg := &Config{
		OpenAIKey:      os.Getenv("OPENAI_API_KEY"),
		OpenAIModel:    getEnv("OPENAI_MODEL", DefaultModel),
		OpenAIBaseURL:  os.Getenv("OPENAI_BASE_URL"),
		DBDriver:       getEnv("DB_DRIVER", "postgres"),
		DatabaseURL:    os.Getenv("DATABASE_URL"),
		AccessPassword: os.Getenv("ACCESS_PASSWORD"),
		ServerHost:     getEnv("SERVER_HOST", "0.0.0.0"),
		ServerPort:     getEnv("SERVER_PORT", "8080"),
		StaticDir:      os.Getenv("STATIC_DIR"),
		LogLevel:       getEnv("LOG_LEVEL", "info"),
	}

	required := []struct {
		name  string
		value string
	}{
		{"OPENAI_API_KEY", cfg.OpenAIKey},
		{"DATABASE_URL", cfg.DatabaseURL},
		{"ACCESS_PASSWORD", cfg.AccessPassword},
	}
	for _, r := range required {
		if r.value == "" {
			return nil, fmt.Errorf("%s: %w", r.name, ErrMissing)
		}
	}

	quota, err := getEnvInt("MESSAGE_QUOTA", DefaultMessageQuota)
	if err != nil {
		return nil, err
	}
	if quota < 0 {
		return nil, fmt.Errorf("MESSAGE_QUOTA must not be negative, got %d", quota)
	}
	cfg.MessageQuota = quota

	timeout, err := getEnvDuration("PROVIDER_TIMEOUT", DefaultProviderTimeout)
	if err != nil {
		return nil, err
	}
	cfg.ProviderTimeout = timeout

	switch cfg.DBDriver {
	case "postgres", "sqlite3":
	default:
		return nil, fmt.Errorf("DB_DRIVER %q is not supported (postgres, sqlite3)", cfg.DBDriver)
	}

	return cfg, nil
}

func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

func getEnvInt(key string, defaultValue int) (int, error) {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return defaultValue, nil
	}
	i, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid integer %q: %w", key, value, err)
	}
	return i, nil
}

func getEnvDuration(key string, defaultValue time.Duration) (time.Duration, error) {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return defaultValue, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid duration %q: %w", key, value, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("%s must not be negative, got %s", key, d)
	}
	return d, nil
}
