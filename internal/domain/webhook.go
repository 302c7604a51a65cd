package domain

import "time"

// WebhookOutcome — результат обработки webhook-события.
type WebhookOutcome string

const (
	// WebhookOutcomeProcessed — событие сверено, заказ создан.
	WebhookOutcomeProcessed WebhookOutcome = "processed"
	// WebhookOutcomeDuplicate — заказ по этой платёжной ссылке уже был.
	WebhookOutcomeDuplicate WebhookOutcome = "duplicate"
	// WebhookOutcomeSkipped — тип события вне обрабатываемого семейства.
	WebhookOutcomeSkipped WebhookOutcome = "skipped"
	// WebhookOutcomeDropped — payload битый, подтверждаем и не повторяем.
	WebhookOutcomeDropped WebhookOutcome = "dropped"
	// WebhookOutcomeFailed — обработка упала после валидного разбора.
	WebhookOutcomeFailed WebhookOutcome = "failed"
)

// WebhookRecord — аудиторская запись о принятом событии провайдера.
// Ключ дедупликации — EventID провайдера; запись с TTL вычищается
// retention-воркером.
type WebhookRecord struct {
	EventID        string
	EventType      string
	PaymentRef     string
	SignatureValid bool
	Outcome        WebhookOutcome
	ProcessedAt    time.Time
	TTLAt          time.Time
	CreatedAt      time.Time
}

// CheckoutSession — данные сессии, передаваемые платёжному шлюзу.
// Ядро не резервирует сток на время оплаты: сессия несёт только снимок
// строк и сумму.
type CheckoutSession struct {
	ID          string
	CustomerRef string
	Currency    string
	AmountMinor int64
	Lines       []LineItem
	CreatedAt   time.Time
}
