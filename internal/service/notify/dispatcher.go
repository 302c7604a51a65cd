package notify

import (
	"encoding/json"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/fulfillment/internal/domain"
)

// Dispatcher ставит уведомления в очередь. Контракт: вызывающий код
// никогда не получает ошибку — отказ очереди логируется и отражается в
// Result, но мутация состояния (заказ, сток), ради которой уведомление
// создавалось, не откатывается.
type Dispatcher struct {
	queue  domain.NotificationQueue
	logger *log.Entry
}

// Result описывает исход постановки уведомления в очередь.
type Result struct {
	NotificationID string
	Enqueued       bool
}

// NewDispatcher создаёт dispatcher поверх очереди уведомлений.
func NewDispatcher(queue domain.NotificationQueue, logger *log.Entry) *Dispatcher {
	if logger == nil {
		logger = log.WithField("component", "notify-dispatcher")
	}
	return &Dispatcher{queue: queue, logger: logger}
}

// Dispatch ставит уведомление в очередь. Ошибок не возвращает.
func (d *Dispatcher) Dispatch(channel domain.NotificationChannel, template domain.NotificationTemplate, recipient string, payload map[string]any) Result {
	if d == nil || d.queue == nil {
		return Result{}
	}
	if recipient == "" {
		d.logger.WithField("template", template).Debug("notification skipped: empty recipient")
		return Result{}
	}

	body, err := json.Marshal(payload)
	if err != nil {
		d.logger.WithError(err).WithField("template", template).Warn("failed to marshal notification payload")
		return Result{}
	}

	stored, err := d.queue.Enqueue(domain.Notification{
		Channel:   channel,
		Template:  template,
		Recipient: recipient,
		Payload:   body,
	})
	if err != nil {
		d.logger.WithError(err).WithFields(log.Fields{
			"template":  template,
			"channel":   channel,
			"recipient": recipient,
		}).Warn("failed to enqueue notification")
		return Result{}
	}

	return Result{NotificationID: stored.ID, Enqueued: true}
}

// DispatchOrderEvent ставит email-уведомление по событию заказа.
func (d *Dispatcher) DispatchOrderEvent(template domain.NotificationTemplate, order domain.Order) Result {
	return d.Dispatch(domain.NotificationChannelEmail, template, order.Customer.Email, map[string]any{
		"order_id":     order.ID,
		"payment_ref":  order.PaymentRef,
		"status":       string(order.Status),
		"amount_minor": order.AmountMinor,
		"currency":     order.Currency,
	})
}

// DispatchBackInStock ставит back-in-stock уведомление по подписке.
func (d *Dispatcher) DispatchBackInStock(sub domain.RestockSubscription) Result {
	channel := domain.NotificationChannelEmail
	recipient := sub.Email
	if recipient == "" && sub.Phone != "" {
		channel = domain.NotificationChannelSMS
		recipient = sub.Phone
	}
	return d.Dispatch(channel, domain.TemplateBackInStock, recipient, map[string]any{
		"subscription_id": sub.ID,
		"product_id":      sub.ProductID,
		"variant_id":      sub.VariantID,
	})
}
