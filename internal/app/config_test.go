package app

import (
	"testing"
	"time"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.APIAddr != ":8080" {
		t.Errorf("unexpected api addr: %s", cfg.APIAddr)
	}
	if cfg.MetricsAddr != ":9090" {
		t.Errorf("unexpected metrics addr: %s", cfg.MetricsAddr)
	}
	if cfg.AllowUnverifiedWebhooks {
		t.Error("unverified webhooks must be disabled by default")
	}
	if cfg.NotifyPollInterval != time.Second {
		t.Errorf("unexpected notify poll interval: %s", cfg.NotifyPollInterval)
	}
	if cfg.RestockSweepInterval != 15*time.Minute {
		t.Errorf("unexpected restock sweep interval: %s", cfg.RestockSweepInterval)
	}
}

func TestLoad_FromEnvironment(t *testing.T) {
	t.Setenv("FULFILLMENT_API_ADDR", ":18080")
	t.Setenv("FULFILLMENT_METRICS_ADDR", ":19090")
	t.Setenv("FULFILLMENT_POSTGRES_DSN", "postgres://u:p@localhost:5432/fulfillment")
	t.Setenv("FULFILLMENT_REDIS_ADDR", "localhost:6379")
	t.Setenv("FULFILLMENT_KAFKA_BROKERS", "localhost:9092,localhost:9093")
	t.Setenv("FULFILLMENT_WEBHOOK_SECRET", "whsec_env")
	t.Setenv("FULFILLMENT_ALLOW_UNVERIFIED_WEBHOOKS", "true")
	t.Setenv("FULFILLMENT_NOTIFY_POLL_INTERVAL", "250ms")
	t.Setenv("FULFILLMENT_RESTOCK_SWEEP_INTERVAL", "1m")
	t.Setenv("FULFILLMENT_CLEANUP_INTERVAL", "30s")

	cfg := Load()

	if cfg.APIAddr != ":18080" {
		t.Errorf("unexpected api addr: %s", cfg.APIAddr)
	}
	if cfg.MetricsAddr != ":19090" {
		t.Errorf("unexpected metrics addr: %s", cfg.MetricsAddr)
	}
	if cfg.PostgresDSN != "postgres://u:p@localhost:5432/fulfillment" {
		t.Errorf("unexpected postgres dsn: %s", cfg.PostgresDSN)
	}
	if cfg.RedisAddr != "localhost:6379" {
		t.Errorf("unexpected redis addr: %s", cfg.RedisAddr)
	}
	if cfg.KafkaBrokers != "localhost:9092,localhost:9093" {
		t.Errorf("unexpected kafka brokers: %s", cfg.KafkaBrokers)
	}
	if cfg.WebhookSecret != "whsec_env" {
		t.Errorf("unexpected webhook secret: %s", cfg.WebhookSecret)
	}
	if !cfg.AllowUnverifiedWebhooks {
		t.Error("expected unverified webhooks to be allowed")
	}
	if cfg.NotifyPollInterval != 250*time.Millisecond {
		t.Errorf("unexpected notify poll interval: %s", cfg.NotifyPollInterval)
	}
	if cfg.RestockSweepInterval != time.Minute {
		t.Errorf("unexpected restock sweep interval: %s", cfg.RestockSweepInterval)
	}
	if cfg.CleanupInterval != 30*time.Second {
		t.Errorf("unexpected cleanup interval: %s", cfg.CleanupInterval)
	}
}

func TestLoad_BadValuesFallBack(t *testing.T) {
	t.Setenv("FULFILLMENT_ALLOW_UNVERIFIED_WEBHOOKS", "definitely")
	t.Setenv("FULFILLMENT_NOTIFY_POLL_INTERVAL", "not-a-duration")

	cfg := Load()

	if cfg.AllowUnverifiedWebhooks {
		t.Error("unparsable bool must fall back to default")
	}
	if cfg.NotifyPollInterval != time.Second {
		t.Errorf("unparsable duration must fall back to default, got %s", cfg.NotifyPollInterval)
	}
}

func TestNewDependencies_InMemory(t *testing.T) {
	deps := NewDependencies(nil)

	if deps.Variants == nil || deps.Orders == nil || deps.Timeline == nil ||
		deps.Restock == nil || deps.Webhooks == nil || deps.Queue == nil {
		t.Fatal("all repositories must be initialized")
	}
	if deps.Logger == nil {
		t.Fatal("logger must be defaulted")
	}
}
