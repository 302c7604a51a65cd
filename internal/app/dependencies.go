package app

import (
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/fulfillment/internal/domain"
	"github.com/vladislavdragonenkov/fulfillment/internal/storage/memory"
)

// Dependencies содержит хранилища приложения.
type Dependencies struct {
	Variants domain.VariantRepository
	Orders   domain.OrderRepository
	Timeline domain.TimelineRepository
	Restock  domain.RestockRepository
	Webhooks domain.WebhookEventRepository
	Queue    domain.NotificationQueue

	Logger *log.Entry
}

// NewDependencies возвращает in-memory набор зависимостей для локальной
// разработки и тестов. Production-режим собирается в initStorage по DSN.
func NewDependencies(logger *log.Entry) *Dependencies {
	if logger == nil {
		logger = log.WithField("component", "app")
	}

	return &Dependencies{
		Variants: memory.NewVariantRepository(),
		Orders:   memory.NewOrderRepository(),
		Timeline: memory.NewTimelineRepository(),
		Restock:  memory.NewRestockRepository(),
		Webhooks: memory.NewWebhookEventRepository(),
		Queue:    memory.NewNotificationQueue(),
		Logger:   logger,
	}
}
