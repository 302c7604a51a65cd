package app

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config описывает настройки запуска сервиса. Секрет webhook загружается
// один раз при старте процесса.
type Config struct {
	APIAddr     string
	MetricsAddr string

	PostgresDSN   string
	RedisAddr     string
	KafkaBrokers  string
	WebhookSecret string

	// AllowUnverifiedWebhooks отключает проверку подписи. Только для
	// локальной разработки, никогда по умолчанию.
	AllowUnverifiedWebhooks bool

	NotifyPollInterval   time.Duration
	RestockSweepInterval time.Duration
	CleanupInterval      time.Duration
}

// DefaultConfig возвращает базовые настройки.
func DefaultConfig() Config {
	return Config{
		APIAddr:              ":8080",
		MetricsAddr:          ":9090",
		NotifyPollInterval:   time.Second,
		RestockSweepInterval: 15 * time.Minute,
		CleanupInterval:      10 * time.Minute,
	}
}

// Load читает конфигурацию из окружения (и .env, если файл есть).
func Load() Config {
	_ = godotenv.Load()

	cfg := DefaultConfig()
	cfg.APIAddr = getEnv("FULFILLMENT_API_ADDR", cfg.APIAddr)
	cfg.MetricsAddr = getEnv("FULFILLMENT_METRICS_ADDR", cfg.MetricsAddr)
	cfg.PostgresDSN = getEnv("FULFILLMENT_POSTGRES_DSN", "")
	cfg.RedisAddr = getEnv("FULFILLMENT_REDIS_ADDR", "")
	cfg.KafkaBrokers = getEnv("FULFILLMENT_KAFKA_BROKERS", "")
	cfg.WebhookSecret = getEnv("FULFILLMENT_WEBHOOK_SECRET", "")
	cfg.AllowUnverifiedWebhooks = getEnvBool("FULFILLMENT_ALLOW_UNVERIFIED_WEBHOOKS", false)
	cfg.NotifyPollInterval = getEnvDuration("FULFILLMENT_NOTIFY_POLL_INTERVAL", cfg.NotifyPollInterval)
	cfg.RestockSweepInterval = getEnvDuration("FULFILLMENT_RESTOCK_SWEEP_INTERVAL", cfg.RestockSweepInterval)
	cfg.CleanupInterval = getEnvDuration("FULFILLMENT_CLEANUP_INTERVAL", cfg.CleanupInterval)
	return cfg
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseBool(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if parsed, err := time.ParseDuration(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}
