package domain

import "time"

// VariantRepository описывает требования к хранилищу остатков. Мутации
// обязаны выполняться как одиночные условные записи на уровне хранилища
// (сравнение и списание в одной атомарной операции), а не как
// «прочитали, сравнили в приложении, записали».
type VariantRepository interface {
	// Get возвращает вариант или ErrVariantNotFound.
	Get(id string) (Variant, error)
	// ListByProduct возвращает все варианты продукта.
	ListByProduct(productID string) ([]Variant, error)
	// Decrement атомарно списывает qty, если остатка хватает.
	// Возвращает InsufficientStockError с фактическим остатком при нехватке.
	Decrement(id string, qty int32) (Variant, error)
	// Increment атомарно возвращает qty на остаток (отмена/возврат).
	Increment(id string, qty int32) (Variant, error)
	// DecrementLines применяет списания всех строк целиком или не применяет
	// ничего: при нехватке по любой строке остатки не меняются.
	DecrementLines(lines []LineItem) ([]Variant, error)
	// IncrementLines возвращает остатки по всем строкам.
	IncrementLines(lines []LineItem) ([]Variant, error)
	// Upsert сохраняет вариант (каталожное наполнение, вне ядра).
	Upsert(variant Variant) error
}

// OrderRepository описывает требования к хранилищу заказов. Уникальность
// payment_ref обеспечивается самим хранилищем: проигравший гонку insert
// получает ErrDuplicateOrder, а не второй заказ.
type OrderRepository interface {
	// Create сохраняет новый заказ; ErrDuplicateOrder при совпадении payment_ref.
	Create(order Order) error
	// Get возвращает заказ по идентификатору или ErrOrderNotFound.
	Get(id string) (Order, error)
	// GetByPaymentRef возвращает заказ по платёжной ссылке или ErrOrderNotFound.
	GetByPaymentRef(paymentRef string) (Order, error)
	// ListByCustomer возвращает заказы клиента с опциональным лимитом.
	ListByCustomer(customerRef string, limit int) ([]Order, error)
	// Save применяет обновления к заказу с учётом optimistic locking.
	Save(order Order) error
}

// RestockRepository хранит подписки «сообщите о поступлении».
type RestockRepository interface {
	// CreateActive сохраняет подписку; ErrSubscriptionExists, если активная
	// подписка на тот же (product, variant-or-empty, email) уже есть.
	CreateActive(sub RestockSubscription) (RestockSubscription, error)
	// Get возвращает подписку или ErrSubscriptionNotFound.
	Get(id string) (RestockSubscription, error)
	// ListActive возвращает до limit неуведомлённых подписок.
	ListActive(limit int) ([]RestockSubscription, error)
	// MarkNotified переводит подписку в notified одиночной условной записью.
	// Возвращает false, если подписка уже была уведомлена (конкурентный
	// sweep выиграл) — уведомление в этом случае не отправляется.
	MarkNotified(id string, at time.Time) (bool, error)
}

// TimelineRepository хранит события жизненного цикла заказа.
type TimelineRepository interface {
	Append(event TimelineEvent) error
	List(orderID string) ([]TimelineEvent, error)
}

// WebhookEventRepository — аудит принятых webhook-событий и первая линия
// дедупликации по event id провайдера.
type WebhookEventRepository interface {
	// Record сохраняет запись; ErrWebhookEventExists при повторном event id.
	Record(rec WebhookRecord) error
	// Get возвращает запись или ErrWebhookEventNotFound.
	Get(eventID string) (WebhookRecord, error)
	// DeleteExpired удаляет до limit записей с ttl_at <= before.
	DeleteExpired(before time.Time, limit int) (int, error)
}

// NotificationQueue — транзакционная очередь уведомлений (outbox):
// постановка при мутации, асинхронная доставка воркером.
type NotificationQueue interface {
	Enqueue(n Notification) (Notification, error)
	PullPending(limit int) ([]Notification, error)
	Stats() (NotificationStats, error)
	MarkSent(id string) error
	MarkFailed(id string) error
}

// NotificationSender доставляет уведомление в конкретный канал.
// Ошибка отправки — сигнал для retry, никогда не причина отката мутации.
type NotificationSender interface {
	Send(n Notification) error
}

// PaymentGateway — инжектируемая зависимость на платёжного провайдера.
// Секреты загружаются один раз при старте процесса; глобального клиента нет.
type PaymentGateway interface {
	// CreateCheckoutSession создаёт сессию у провайдера и возвращает
	// непрозрачный redirect URL.
	CreateCheckoutSession(session CheckoutSession) (string, error)
}
