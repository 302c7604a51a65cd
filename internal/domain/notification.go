package domain

import "time"

// NotificationChannel — канал доставки уведомления.
type NotificationChannel string

const (
	NotificationChannelEmail NotificationChannel = "email"
	NotificationChannelSMS   NotificationChannel = "sms"
	NotificationChannelPush  NotificationChannel = "push"
)

// NotificationTemplate — шаблон уведомления, привязанный к событию ядра.
type NotificationTemplate string

const (
	TemplateOrderReceived  NotificationTemplate = "order_received"
	TemplateOrderConfirmed NotificationTemplate = "order_confirmed"
	TemplateOrderShipped   NotificationTemplate = "order_shipped"
	TemplateOrderDelivered NotificationTemplate = "order_delivered"
	TemplateOrderCanceled  NotificationTemplate = "order_canceled"
	TemplateOrderRefunded  NotificationTemplate = "order_refunded"
	TemplateBackInStock    NotificationTemplate = "back_in_stock"
)

// Notification — задание на отправку. Ставится в очередь в том же месте,
// где фиксируется мутация состояния, и доставляется асинхронно: отказ
// почтового провайдера не трогает сток и статус заказа.
type Notification struct {
	ID        string
	Channel   NotificationChannel
	Template  NotificationTemplate
	Recipient string
	Payload   []byte
	CreatedAt time.Time
}

// NotificationStats описывает текущий backlog очереди уведомлений.
type NotificationStats struct {
	PendingCount    int
	OldestPendingAt time.Time
}
