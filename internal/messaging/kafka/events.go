package kafka

import "time"

// EventType определяет тип события ядра.
type EventType string

const (
	// Inventory события
	EventTypeLowStock     EventType = "inventory.low_stock"
	EventTypeStockChanged EventType = "inventory.stock_changed"

	// Order события
	EventTypeOrderCreated   EventType = "order.created"
	EventTypeOrderPaid      EventType = "order.paid"
	EventTypeOrderShipped   EventType = "order.shipped"
	EventTypeOrderDelivered EventType = "order.delivered"
	EventTypeOrderCanceled  EventType = "order.canceled"
	EventTypeOrderRefunded  EventType = "order.refunded"

	// Restock события
	EventTypeRestockNotified EventType = "restock.notified"
)

// Topics для Kafka
const (
	TopicInventoryEvents = "fulfillment.inventory.events"
	TopicOrderEvents     = "fulfillment.order.events"
	TopicRestockEvents   = "fulfillment.restock.events"
	TopicDeadLetterQueue = "fulfillment.dlq" // Dead Letter Queue для failed messages
)

// Kafka headers для retry логики
const (
	HeaderRetryCount    = "x-retry-count"
	HeaderOriginalTopic = "x-original-topic"
	HeaderErrorMessage  = "x-error-message"
	HeaderFailedAt      = "x-failed-at"
)

// LowStockEvent — сигнал «остаток на пороге», потребляется админским
// наблюдателем.
type LowStockEvent struct {
	EventType EventType `json:"event_type"`
	ProductID string    `json:"product_id"`
	VariantID string    `json:"variant_id"`
	Stock     int32     `json:"stock"`
	Severity  string    `json:"severity"`
	Timestamp time.Time `json:"timestamp"`
}

// OrderEvent представляет событие жизненного цикла заказа.
type OrderEvent struct {
	EventType   EventType              `json:"event_type"`
	OrderID     string                 `json:"order_id"`
	CustomerRef string                 `json:"customer_ref,omitempty"`
	Status      string                 `json:"status"`
	Timestamp   time.Time              `json:"timestamp"`
	Metadata    map[string]interface{} `json:"metadata,omitempty"`
}

// RestockEvent — факт отправки back-in-stock уведомления.
type RestockEvent struct {
	EventType      EventType `json:"event_type"`
	SubscriptionID string    `json:"subscription_id"`
	ProductID      string    `json:"product_id"`
	VariantID      string    `json:"variant_id,omitempty"`
	Timestamp      time.Time `json:"timestamp"`
}

// NewLowStockEvent создает событие low-stock сигнала.
func NewLowStockEvent(productID, variantID string, stock int32, severity string) *LowStockEvent {
	return &LowStockEvent{
		EventType: EventTypeLowStock,
		ProductID: productID,
		VariantID: variantID,
		Stock:     stock,
		Severity:  severity,
		Timestamp: time.Now(),
	}
}

// NewOrderEvent создает событие заказа.
func NewOrderEvent(eventType EventType, orderID, customerRef, status string, metadata map[string]interface{}) *OrderEvent {
	return &OrderEvent{
		EventType:   eventType,
		OrderID:     orderID,
		CustomerRef: customerRef,
		Status:      status,
		Timestamp:   time.Now(),
		Metadata:    metadata,
	}
}

// NewRestockEvent создает событие об отправленном уведомлении.
func NewRestockEvent(subscriptionID, productID, variantID string) *RestockEvent {
	return &RestockEvent{
		EventType:      EventTypeRestockNotified,
		SubscriptionID: subscriptionID,
		ProductID:      productID,
		VariantID:      variantID,
		Timestamp:      time.Now(),
	}
}
