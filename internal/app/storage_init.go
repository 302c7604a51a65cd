package app

import (
	"context"
	"fmt"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/fulfillment/internal/storage/postgres"
)

// initStorage собирает хранилища по конфигурации: с DSN — PostgreSQL
// с прогоном миграций при старте, без DSN — in-memory режим для локальной
// разработки. Вернувшийся Store равен nil в in-memory режиме.
func initStorage(ctx context.Context, cfg Config, logger *log.Entry) (*Dependencies, *postgres.Store, error) {
	if cfg.PostgresDSN == "" {
		logger.Info("postgres dsn is empty, using in-memory storage")
		return NewDependencies(logger), nil, nil
	}

	store, err := postgres.Open(ctx, cfg.PostgresDSN)
	if err != nil {
		return nil, nil, fmt.Errorf("open postgres: %w", err)
	}

	if err := store.EnsureSchema(ctx); err != nil {
		_ = store.Close()
		return nil, nil, fmt.Errorf("apply migrations: %w", err)
	}

	version, applied, err := store.MigrationStatus(ctx)
	if err == nil {
		logger.WithFields(log.Fields{
			"schema_version": version,
			"applied":        applied,
		}).Info("postgres storage initialized")
	}

	deps := &Dependencies{
		Variants: postgres.NewVariantRepository(store),
		Orders:   postgres.NewOrderRepository(store),
		Timeline: postgres.NewTimelineRepository(store),
		Restock:  postgres.NewRestockRepository(store),
		Webhooks: postgres.NewWebhookEventRepository(store),
		Queue:    postgres.NewNotificationQueue(store),
		Logger:   logger,
	}
	return deps, store, nil
}
