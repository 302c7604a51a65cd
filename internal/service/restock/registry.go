package restock

import (
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/fulfillment/internal/domain"
	"github.com/vladislavdragonenkov/fulfillment/internal/messaging/kafka"
	"github.com/vladislavdragonenkov/fulfillment/internal/metrics"
	"github.com/vladislavdragonenkov/fulfillment/internal/service/notify"
)

// Registry управляет подписками «сообщите о поступлении» и рассылкой
// back-in-stock уведомлений. Активная подписка уникальна по
// (product, variant-or-any, email); конкурентные sweep'ы сериализуются
// условной записью MarkNotified, поэтому каждый подписчик получает
// ровно одно уведомление.
type Registry struct {
	subs          domain.RestockRepository
	variants      domain.VariantRepository
	dispatcher    *notify.Dispatcher
	logger        *log.Entry
	metrics       *metrics.CoreMetrics
	kafkaProducer *kafka.Producer
}

// Option настраивает Registry.
type Option func(*Registry)

// WithLogger задаёт logger.
func WithLogger(logger *log.Entry) Option {
	return func(r *Registry) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// WithMetrics задаёт метрики ядра.
func WithMetrics(m *metrics.CoreMetrics) Option {
	return func(r *Registry) {
		r.metrics = m
	}
}

// WithKafkaProducer задаёт producer для restock-событий.
func WithKafkaProducer(producer *kafka.Producer) Option {
	return func(r *Registry) {
		r.kafkaProducer = producer
	}
}

// WithDispatcher задаёт dispatcher уведомлений.
func WithDispatcher(dispatcher *notify.Dispatcher) Option {
	return func(r *Registry) {
		r.dispatcher = dispatcher
	}
}

// NewRegistry создаёт реестр restock-подписок.
func NewRegistry(subs domain.RestockRepository, variants domain.VariantRepository, options ...Option) *Registry {
	registry := &Registry{
		subs:     subs,
		variants: variants,
		logger:   log.WithField("component", "restock"),
	}
	for _, option := range options {
		option(registry)
	}
	return registry
}

// Subscribe регистрирует подписку. Повторная активная подписка на тот же
// (product, variant, email) отклоняется с ErrSubscriptionExists; после
// уведомления тот же клиент может подписаться заново.
func (r *Registry) Subscribe(sub domain.RestockSubscription) (domain.RestockSubscription, error) {
	if errs := sub.Validate(); len(errs) != 0 {
		return domain.RestockSubscription{}, errs[0]
	}

	created, err := r.subs.CreateActive(sub)
	if err != nil {
		return domain.RestockSubscription{}, err
	}

	r.metrics.RecordRestockSubscription()
	r.logger.WithFields(log.Fields{
		"subscription_id": created.ID,
		"product_id":      created.ProductID,
		"variant_id":      created.VariantID,
	}).Info("restock subscription created")
	return created, nil
}

// Get возвращает подписку по идентификатору.
func (r *Registry) Get(id string) (domain.RestockSubscription, error) {
	return r.subs.Get(id)
}

// SweepOnce проходит по активным подпискам и уведомляет тех, чей товар
// вернулся на остаток. Безопасен при конкурентном запуске: флаг notified
// переводится одиночной условной записью, и уведомление отправляет только
// выигравший её sweep.
func (r *Registry) SweepOnce(batchSize int) (int, error) {
	started := time.Now()
	defer func() {
		r.metrics.RecordRestockSweepDuration(time.Since(started))
	}()

	subs, err := r.subs.ListActive(batchSize)
	if err != nil {
		return 0, err
	}

	notified := 0
	for _, sub := range subs {
		inStock, err := r.backInStock(sub)
		if err != nil {
			r.logger.WithError(err).WithField("subscription_id", sub.ID).Warn("failed to check stock for subscription")
			continue
		}
		if !inStock {
			continue
		}

		won, err := r.subs.MarkNotified(sub.ID, time.Now().UTC())
		if err != nil {
			r.logger.WithError(err).WithField("subscription_id", sub.ID).Warn("failed to mark subscription notified")
			continue
		}
		if !won {
			continue
		}

		r.dispatcher.DispatchBackInStock(sub)
		r.metrics.RecordRestockNotification()
		r.publishRestockEvent(sub)
		notified++
	}

	return notified, nil
}

// backInStock проверяет остаток в объёме подписки: конкретный вариант
// или любой вариант продукта.
func (r *Registry) backInStock(sub domain.RestockSubscription) (bool, error) {
	if sub.VariantID != "" {
		variant, err := r.variants.Get(sub.VariantID)
		if err != nil {
			return false, err
		}
		return variant.Quantity > 0, nil
	}

	variants, err := r.variants.ListByProduct(sub.ProductID)
	if err != nil {
		return false, err
	}
	for _, variant := range variants {
		if variant.Quantity > 0 {
			return true, nil
		}
	}
	return false, nil
}

func (r *Registry) publishRestockEvent(sub domain.RestockSubscription) {
	if r.kafkaProducer == nil {
		return
	}
	event := kafka.NewRestockEvent(sub.ID, sub.ProductID, sub.VariantID)
	if err := r.kafkaProducer.PublishEvent(kafka.TopicRestockEvents, sub.ProductID, event); err != nil {
		r.logger.WithError(err).WithField("subscription_id", sub.ID).Warn("failed to publish restock event")
	}
}
