package domain

import (
	"errors"
	"fmt"
)

var (
	// Ошибка отсутствующего идентификатора продукта у варианта.
	ErrProductIDRequired = errors.New("product_id is required")
	// Ошибка отрицательного остатка варианта.
	ErrQuantityNegative = errors.New("variant quantity must be non-negative")
	// Ошибка пустого списка строк для операции со стоком.
	ErrLinesRequired = errors.New("at least one line item is required")
	// Ошибка отсутствующего SKU в строке.
	ErrLineSKURequired = errors.New("line sku is required")
	// Ошибка некорректного количества в строке (<= 0).
	ErrLineQtyInvalid = errors.New("line qty must be greater than zero")
	// Ошибка отсутствующей платёжной ссылки у заказа.
	ErrPaymentRefRequired = errors.New("payment_ref is required")
	// Ошибка отсутствия хотя бы одной позиции в заказе.
	ErrItemsRequired = errors.New("order must contain at least one item")
	// Ошибка отрицательной суммы заказа.
	ErrAmountNegative = errors.New("amount_minor must be non-negative")
	// Ошибка при некорректном количестве позиции (<= 0).
	ErrItemQtyInvalid = errors.New("item qty must be greater than zero")
	// Ошибка, если цена позиции отрицательная.
	ErrItemPriceInvalid = errors.New("item price must be non-negative")
	// Ошибка несоответствия суммы заказа и сумм позиций.
	ErrAmountMismatch = errors.New("order amount does not match items sum")
	// Ошибка неизвестного статуса заказа при разборе.
	ErrUnknownOrderStatus = errors.New("unknown order status")

	// ErrVariantNotFound возвращается, если SKU отсутствует в хранилище.
	ErrVariantNotFound = errors.New("variant not found")
	// ErrOrderNotFound возвращается, если заказ не найден.
	ErrOrderNotFound = errors.New("order not found")
	// ErrOrderVersionConflict сигнализирует о конфликте версий при сохранении.
	ErrOrderVersionConflict = errors.New("order version conflict")
	// ErrDuplicateOrder — заказ с таким payment_ref уже существует; на
	// webhook-пути это эквивалент успеха («уже обработано»).
	ErrDuplicateOrder = errors.New("order already exists for payment reference")

	// ErrSubscriptionNotFound — подписка на поступление не найдена.
	ErrSubscriptionNotFound = errors.New("restock subscription not found")
	// ErrSubscriptionExists — активная подписка на тот же (product, variant,
	// email) уже есть; повторная регистрация отклоняется до уведомления.
	ErrSubscriptionExists = errors.New("active restock subscription already exists")
	// Ошибка отсутствующего email при подписке.
	ErrSubscriptionEmailRequired = errors.New("subscription email is required")

	// ErrInvalidSignature — подпись webhook-события не прошла проверку.
	ErrInvalidSignature = errors.New("webhook signature verification failed")
	// ErrWebhookEventExists — событие с таким id уже зарегистрировано.
	ErrWebhookEventExists = errors.New("webhook event already recorded")
	// ErrWebhookEventNotFound — запись о событии не найдена.
	ErrWebhookEventNotFound = errors.New("webhook event not found")
	// Ошибка отсутствующего идентификатора webhook-события.
	ErrWebhookEventIDRequired = errors.New("webhook event id is required")

	// ErrNotificationNotFound — запись очереди уведомлений не найдена.
	ErrNotificationNotFound = errors.New("notification not found")
)

// InsufficientStockError несёт фактический остаток, чтобы вызывающая сторона
// могла показать «осталось всего N».
type InsufficientStockError struct {
	SKU       string
	Requested int32
	Available int32
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for sku %s: requested %d, available %d", e.SKU, e.Requested, e.Available)
}

// IsInsufficientStock проверяет, является ли ошибка нехваткой стока.
func IsInsufficientStock(err error) bool {
	var target *InsufficientStockError
	return errors.As(err, &target)
}

// InvalidTransitionError — запрошенная смена статуса не входит в таблицу переходов.
type InvalidTransitionError struct {
	From OrderStatus
	To   OrderStatus
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("invalid order transition %s -> %s", e.From, e.To)
}

// IsInvalidTransition проверяет, является ли ошибка запрещённым переходом.
func IsInvalidTransition(err error) bool {
	var target *InvalidTransitionError
	return errors.As(err, &target)
}

// StorageUnavailableError — временная недоступность хранилища. Единственный
// класс ошибок, который webhook-путь обязан отдать провайдеру как retryable
// (non-2xx), вместо подтверждения приёма.
type StorageUnavailableError struct {
	Op  string
	Err error
}

func (e *StorageUnavailableError) Error() string {
	return fmt.Sprintf("storage unavailable during %s: %v", e.Op, e.Err)
}

func (e *StorageUnavailableError) Unwrap() error {
	return e.Err
}

// IsStorageUnavailable проверяет, является ли ошибка временным отказом хранилища.
func IsStorageUnavailable(err error) bool {
	var target *StorageUnavailableError
	return errors.As(err, &target)
}

// IsVersionConflict проверяет, является ли ошибка конфликтом версий.
func IsVersionConflict(err error) bool {
	return errors.Is(err, ErrOrderVersionConflict)
}
