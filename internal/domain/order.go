package domain

import "time"

// OrderStatus описывает жизненный цикл заказа.
type OrderStatus string

const (
	// OrderStatusPending — заказ создан из сверенного webhook-события, сток списан.
	OrderStatusPending OrderStatus = "pending"
	// OrderStatusPaid — поступление средств подтверждено.
	OrderStatusPaid OrderStatus = "paid"
	// OrderStatusProcessing — заказ взят в сборку.
	OrderStatusProcessing OrderStatus = "processing"
	// OrderStatusShipped — заказ передан в доставку.
	OrderStatusShipped OrderStatus = "shipped"
	// OrderStatusDelivered — заказ получен клиентом.
	OrderStatusDelivered OrderStatus = "delivered"
	// OrderStatusCanceled — заказ отменён, сток возвращён.
	OrderStatusCanceled OrderStatus = "canceled"
	// OrderStatusRefunded — средства возвращены, сток возвращён.
	OrderStatusRefunded OrderStatus = "refunded"

	// OrderStatusConfirmed — legacy-статус из старой модели. Источник
	// использовал его неоднозначно между paid и processing, поэтому при
	// чтении исторических данных он остаётся валидным, но новые записи его
	// не получают. Исходящие переходы — объединение paid и processing.
	OrderStatusConfirmed OrderStatus = "confirmed"
)

// orderTransitions — единственная таблица допустимых переходов. Любая смена
// статуса вне таблицы отклоняется, «сырое» присваивание поля не допускается.
var orderTransitions = map[OrderStatus][]OrderStatus{
	OrderStatusPending:    {OrderStatusPaid, OrderStatusCanceled},
	OrderStatusPaid:       {OrderStatusProcessing, OrderStatusCanceled, OrderStatusRefunded},
	OrderStatusProcessing: {OrderStatusShipped, OrderStatusCanceled, OrderStatusRefunded},
	OrderStatusShipped:    {OrderStatusDelivered, OrderStatusCanceled, OrderStatusRefunded},
	OrderStatusDelivered:  {OrderStatusRefunded},
	OrderStatusConfirmed:  {OrderStatusProcessing, OrderStatusShipped, OrderStatusCanceled, OrderStatusRefunded},
}

// OrderItem — позиция заказа: неизменяемый снимок варианта на момент
// создания, а не живая ссылка на текущее состояние каталога.
type OrderItem struct {
	ID         string
	SKU        string
	Qty        int32
	PriceMinor int64
	Color      string
	Size       string
	CreatedAt  time.Time
}

// CustomerInfo — контакт клиента, снятый из webhook-события.
type CustomerInfo struct {
	Name  string
	Email string
	Phone string
}

// Address — снимок адреса на момент оформления.
type Address struct {
	Line1      string
	Line2      string
	City       string
	Region     string
	PostalCode string
	Country    string
}

// Order агрегирует состояние заказа, его позиции и аудит переходов.
// PaymentRef — внешняя ссылка платёжного провайдера; на ней держится
// единственность заказа (ровно один Order на уникальный PaymentRef).
type Order struct {
	ID          string
	CustomerRef string
	Status      OrderStatus
	Currency    string
	AmountMinor int64
	PaymentRef  string
	Customer    CustomerInfo
	Shipping    Address
	Billing     Address
	Items       []OrderItem
	Tracking    string
	PaidAt      *time.Time
	ShippedAt   *time.Time
	DeliveredAt *time.Time
	Version     int64
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// NextStatus проверяет переход from→to по таблице и возвращает
// InvalidTransitionError, если переход не разрешён.
func NextStatus(from, to OrderStatus) error {
	for _, allowed := range orderTransitions[from] {
		if allowed == to {
			return nil
		}
	}
	return &InvalidTransitionError{From: from, To: to}
}

// IsTerminal сообщает, что из статуса нет исходящих переходов.
func (s OrderStatus) IsTerminal() bool {
	return len(orderTransitions[s]) == 0
}

// Valid проверяет, что статус относится к поддерживаемым значениям
// (включая legacy confirmed на чтении).
func (s OrderStatus) Valid() bool {
	switch s {
	case OrderStatusPending, OrderStatusPaid, OrderStatusProcessing,
		OrderStatusShipped, OrderStatusDelivered,
		OrderStatusCanceled, OrderStatusRefunded, OrderStatusConfirmed:
		return true
	default:
		return false
	}
}

// ParseOrderStatus разбирает строковое представление статуса.
func ParseOrderStatus(raw string) (OrderStatus, error) {
	status := OrderStatus(raw)
	if !status.Valid() {
		return "", ErrUnknownOrderStatus
	}
	return status, nil
}

// ValidateInvariants проверяет базовые инварианты заказа и возвращает список замечаний.
func (o *Order) ValidateInvariants() []error {
	var errs []error

	if o.PaymentRef == "" {
		errs = append(errs, ErrPaymentRefRequired)
	}
	if len(o.Items) == 0 {
		errs = append(errs, ErrItemsRequired)
	}
	if o.AmountMinor < 0 {
		errs = append(errs, ErrAmountNegative)
	}

	// Сверяем сумму заказа с суммой позиций: qty * price.
	var calc int64
	for _, item := range o.Items {
		if item.Qty <= 0 {
			errs = append(errs, ErrItemQtyInvalid)
		}
		if item.PriceMinor < 0 {
			errs = append(errs, ErrItemPriceInvalid)
		}
		calc += int64(item.Qty) * item.PriceMinor
	}
	if len(o.Items) > 0 && calc != o.AmountMinor {
		errs = append(errs, ErrAmountMismatch)
	}

	return errs
}

// Lines возвращает позиции заказа в форме строк для операций со стоком.
func (o *Order) Lines() []LineItem {
	lines := make([]LineItem, 0, len(o.Items))
	for _, item := range o.Items {
		lines = append(lines, LineItem{SKU: item.SKU, Qty: item.Qty, PriceMinor: item.PriceMinor})
	}
	return lines
}
