package orders

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/fulfillment/internal/domain"
	"github.com/vladislavdragonenkov/fulfillment/internal/messaging/kafka"
	"github.com/vladislavdragonenkov/fulfillment/internal/metrics"
	"github.com/vladislavdragonenkov/fulfillment/internal/service/inventory"
	"github.com/vladislavdragonenkov/fulfillment/internal/service/notify"
)

const (
	maxSaveRetries = 3
	saveBaseDelay  = 10 * time.Millisecond
)

// Ledger управляет жизненным циклом заказа: идемпотентное создание из
// webhook-события, переходы статусов по таблице §NextStatus и побочные
// эффекты переходов (сток, timeline, уведомления, события).
type Ledger struct {
	orders        domain.OrderRepository
	inventory     *inventory.Ledger
	timeline      domain.TimelineRepository
	dispatcher    *notify.Dispatcher
	logger        *log.Entry
	metrics       *metrics.CoreMetrics
	kafkaProducer *kafka.Producer
}

// Option настраивает Ledger.
type Option func(*Ledger)

// WithLogger задаёт logger.
func WithLogger(logger *log.Entry) Option {
	return func(l *Ledger) {
		if logger != nil {
			l.logger = logger
		}
	}
}

// WithMetrics задаёт метрики ядра.
func WithMetrics(m *metrics.CoreMetrics) Option {
	return func(l *Ledger) {
		l.metrics = m
	}
}

// WithKafkaProducer задаёт producer для публикации событий заказа.
func WithKafkaProducer(producer *kafka.Producer) Option {
	return func(l *Ledger) {
		l.kafkaProducer = producer
	}
}

// WithDispatcher задаёт dispatcher уведомлений.
func WithDispatcher(dispatcher *notify.Dispatcher) Option {
	return func(l *Ledger) {
		l.dispatcher = dispatcher
	}
}

// NewLedger создаёт ledger заказов.
func NewLedger(orders domain.OrderRepository, stock *inventory.Ledger, timeline domain.TimelineRepository, options ...Option) *Ledger {
	ledger := &Ledger{
		orders:    orders,
		inventory: stock,
		timeline:  timeline,
		logger:    log.WithField("component", "orders"),
	}
	for _, option := range options {
		option(ledger)
	}
	return ledger
}

// CreateOrderInput — данные заказа, извлечённые из webhook-события.
type CreateOrderInput struct {
	PaymentRef  string
	CustomerRef string
	Currency    string
	AmountMinor int64
	Customer    domain.CustomerInfo
	Shipping    domain.Address
	Billing     domain.Address
	Items       []domain.OrderItem
}

// CreateFromWebhook создаёт заказ из сверенного webhook-события.
// Идемпотентен по PaymentRef: при повторной доставке возвращает уже
// существующий заказ (created=false) и не трогает сток. Единственность
// обеспечивает уникальный индекс хранилища: проигравший гонку insert
// получает ErrDuplicateOrder и читает заказ победителя.
//
// Сток списывается после insert. Если остатка уже не хватает (между
// созданием сессии и приходом webhook сток не резервируется), заказ
// переводится в canceled и возвращается вместе с InsufficientStockError —
// вызывающий webhook-слой подтверждает доставку, а не просит retry.
func (l *Ledger) CreateFromWebhook(input CreateOrderInput) (domain.Order, bool, error) {
	now := time.Now().UTC()
	order := domain.Order{
		ID:          uuid.NewString(),
		CustomerRef: input.CustomerRef,
		Status:      domain.OrderStatusPending,
		Currency:    input.Currency,
		AmountMinor: input.AmountMinor,
		PaymentRef:  input.PaymentRef,
		Customer:    input.Customer,
		Shipping:    input.Shipping,
		Billing:     input.Billing,
		Items:       input.Items,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if errs := order.ValidateInvariants(); len(errs) != 0 {
		return domain.Order{}, false, errs[0]
	}

	if err := l.orders.Create(order); err != nil {
		if errors.Is(err, domain.ErrDuplicateOrder) {
			existing, getErr := l.orders.GetByPaymentRef(input.PaymentRef)
			if getErr != nil {
				return domain.Order{}, false, getErr
			}
			l.logger.WithFields(log.Fields{
				"order_id":    existing.ID,
				"payment_ref": input.PaymentRef,
			}).Info("duplicate webhook for existing order")
			return existing, false, nil
		}
		return domain.Order{}, false, err
	}

	l.appendTimeline(order.ID, domain.TimelineEventCreated, "order created from reconciled webhook")

	if err := l.inventory.DecrementLineItems(order.Lines()); err != nil {
		if domain.IsInsufficientStock(err) {
			l.logger.WithError(err).WithFields(log.Fields{
				"order_id":    order.ID,
				"payment_ref": order.PaymentRef,
			}).Warn("stock ran out before webhook arrived, canceling order")
			canceled, cancelErr := l.cancelWithoutRestock(order, "insufficient stock at reconciliation")
			if cancelErr != nil {
				return order, true, cancelErr
			}
			return canceled, true, err
		}
		return order, true, err
	}

	l.metrics.RecordOrderCreated()
	l.dispatcher.DispatchOrderEvent(domain.TemplateOrderReceived, order)
	l.publishOrderEvent(kafka.EventTypeOrderCreated, order, nil)

	return order, true, nil
}

// TransitionRequest описывает запрошенный переход статуса.
type TransitionRequest struct {
	To       domain.OrderStatus
	Reason   string
	Tracking string
}

// Transition переводит заказ в новый статус с проверкой по таблице
// переходов и optimistic locking с retry при version conflict.
func (l *Ledger) Transition(orderID string, req TransitionRequest) (domain.Order, error) {
	order, err := l.orders.Get(orderID)
	if err != nil {
		return domain.Order{}, err
	}

	for attempt := 0; attempt < maxSaveRetries; attempt++ {
		if err := domain.NextStatus(order.Status, req.To); err != nil {
			return domain.Order{}, err
		}

		updated := order
		updated.Status = req.To
		updated.UpdatedAt = time.Now().UTC()
		if req.Tracking != "" {
			updated.Tracking = req.Tracking
		}
		stampTransition(&updated)

		if err := l.orders.Save(updated); err != nil {
			if domain.IsVersionConflict(err) && attempt < maxSaveRetries-1 {
				l.logger.WithFields(log.Fields{
					"order_id": orderID,
					"attempt":  attempt + 1,
					"version":  order.Version,
				}).Warn("version conflict detected, retrying")

				fresh, loadErr := l.orders.Get(orderID)
				if loadErr != nil {
					return domain.Order{}, loadErr
				}
				order = fresh

				time.Sleep(saveBaseDelay * time.Duration(1<<uint(attempt)))
				continue
			}
			return domain.Order{}, err
		}

		updated.Version = order.Version + 1
		l.finishTransition(updated, req)
		return updated, nil
	}

	return domain.Order{}, domain.ErrOrderVersionConflict
}

// Cancel отменяет заказ и возвращает списанный сток на остатки.
func (l *Ledger) Cancel(orderID, reason string) (domain.Order, error) {
	return l.Transition(orderID, TransitionRequest{To: domain.OrderStatusCanceled, Reason: reason})
}

// Refund переводит заказ в refunded и возвращает сток на остатки.
func (l *Ledger) Refund(orderID, reason string) (domain.Order, error) {
	return l.Transition(orderID, TransitionRequest{To: domain.OrderStatusRefunded, Reason: reason})
}

// Get возвращает заказ по идентификатору.
func (l *Ledger) Get(orderID string) (domain.Order, error) {
	return l.orders.Get(orderID)
}

// GetByPaymentRef возвращает заказ по платёжной ссылке.
func (l *Ledger) GetByPaymentRef(paymentRef string) (domain.Order, error) {
	return l.orders.GetByPaymentRef(paymentRef)
}

// ListByCustomer возвращает заказы клиента, новые первыми.
func (l *Ledger) ListByCustomer(customerRef string, limit int) ([]domain.Order, error) {
	return l.orders.ListByCustomer(customerRef, limit)
}

// Timeline возвращает аудит событий заказа.
func (l *Ledger) Timeline(orderID string) ([]domain.TimelineEvent, error) {
	if _, err := l.orders.Get(orderID); err != nil {
		return nil, err
	}
	return l.timeline.List(orderID)
}

// stampTransition проставляет audit-таймстемпы перехода.
func stampTransition(order *domain.Order) {
	now := order.UpdatedAt
	switch order.Status {
	case domain.OrderStatusPaid:
		if order.PaidAt == nil {
			order.PaidAt = &now
		}
	case domain.OrderStatusShipped:
		if order.ShippedAt == nil {
			order.ShippedAt = &now
		}
	case domain.OrderStatusDelivered:
		if order.DeliveredAt == nil {
			order.DeliveredAt = &now
		}
	}
}

// finishTransition выполняет побочные эффекты успешно сохранённого
// перехода: возврат стока, timeline, уведомление, событие, метрики.
func (l *Ledger) finishTransition(order domain.Order, req TransitionRequest) {
	l.metrics.RecordOrderTransition(string(order.Status))
	l.appendTimeline(order.ID, string(order.Status), req.Reason)

	if order.Status == domain.OrderStatusCanceled || order.Status == domain.OrderStatusRefunded {
		if err := l.inventory.IncrementLineItems(order.Lines()); err != nil {
			l.logger.WithError(err).WithField("order_id", order.ID).Error("failed to restore stock")
		}
	}

	if template, ok := transitionTemplates[order.Status]; ok {
		l.dispatcher.DispatchOrderEvent(template, order)
	}
	if eventType, ok := transitionEvents[order.Status]; ok {
		metadata := map[string]interface{}{}
		if req.Reason != "" {
			metadata["reason"] = req.Reason
		}
		if order.Tracking != "" {
			metadata["tracking"] = order.Tracking
		}
		l.publishOrderEvent(eventType, order, metadata)
	}
}

var transitionTemplates = map[domain.OrderStatus]domain.NotificationTemplate{
	domain.OrderStatusPaid:      domain.TemplateOrderConfirmed,
	domain.OrderStatusShipped:   domain.TemplateOrderShipped,
	domain.OrderStatusDelivered: domain.TemplateOrderDelivered,
	domain.OrderStatusCanceled:  domain.TemplateOrderCanceled,
	domain.OrderStatusRefunded:  domain.TemplateOrderRefunded,
}

var transitionEvents = map[domain.OrderStatus]kafka.EventType{
	domain.OrderStatusPaid:      kafka.EventTypeOrderPaid,
	domain.OrderStatusShipped:   kafka.EventTypeOrderShipped,
	domain.OrderStatusDelivered: kafka.EventTypeOrderDelivered,
	domain.OrderStatusCanceled:  kafka.EventTypeOrderCanceled,
	domain.OrderStatusRefunded:  kafka.EventTypeOrderRefunded,
}

// cancelWithoutRestock переводит только что созданный заказ в canceled,
// не возвращая сток: списание для него не состоялось.
func (l *Ledger) cancelWithoutRestock(order domain.Order, reason string) (domain.Order, error) {
	order.Status = domain.OrderStatusCanceled
	order.UpdatedAt = time.Now().UTC()
	if err := l.orders.Save(order); err != nil {
		return domain.Order{}, fmt.Errorf("cancel order %s: %w", order.ID, err)
	}
	order.Version++

	l.metrics.RecordOrderTransition(string(domain.OrderStatusCanceled))
	l.appendTimeline(order.ID, string(domain.OrderStatusCanceled), reason)
	l.dispatcher.DispatchOrderEvent(domain.TemplateOrderCanceled, order)
	l.publishOrderEvent(kafka.EventTypeOrderCanceled, order, map[string]interface{}{"reason": reason})
	return order, nil
}

func (l *Ledger) appendTimeline(orderID, eventType, reason string) {
	if l.timeline == nil {
		return
	}
	err := l.timeline.Append(domain.TimelineEvent{
		OrderID:  orderID,
		Type:     eventType,
		Reason:   reason,
		Occurred: time.Now().UTC(),
	})
	if err != nil {
		l.logger.WithError(err).WithField("order_id", orderID).Warn("failed to append timeline event")
	}
}

func (l *Ledger) publishOrderEvent(eventType kafka.EventType, order domain.Order, metadata map[string]interface{}) {
	if l.kafkaProducer == nil {
		return
	}
	event := kafka.NewOrderEvent(eventType, order.ID, order.CustomerRef, string(order.Status), metadata)
	if err := l.kafkaProducer.PublishEvent(kafka.TopicOrderEvents, order.ID, event); err != nil {
		l.logger.WithError(err).WithFields(log.Fields{
			"order_id": order.ID,
			"event":    eventType,
		}).Warn("failed to publish order event")
	}
}
