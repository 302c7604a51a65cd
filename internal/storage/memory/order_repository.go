package memory

import (
	"sort"
	"sync"

	"github.com/vladislavdragonenkov/fulfillment/internal/domain"
)

// orderRepositoryInMemory — простая in-memory реализация OrderRepository.
// Индекс по payment_ref воспроизводит уникальный constraint хранилища:
// проигравший гонку Create получает ErrDuplicateOrder.
type orderRepositoryInMemory struct {
	mu           sync.RWMutex
	items        map[string]domain.Order
	byPaymentRef map[string]string
}

// NewOrderRepository возвращает in-memory репозиторий для локальной разработки и тестов.
func NewOrderRepository() domain.OrderRepository {
	return &orderRepositoryInMemory{
		items:        make(map[string]domain.Order),
		byPaymentRef: make(map[string]string),
	}
}

// Create сохраняет новый заказ, если payment_ref ещё не занят.
func (r *orderRepositoryInMemory) Create(order domain.Order) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.byPaymentRef[order.PaymentRef]; exists {
		return domain.ErrDuplicateOrder
	}
	if _, exists := r.items[order.ID]; exists {
		return domain.ErrOrderVersionConflict
	}

	// Сохраняем копию, чтобы избежать непредсказуемых мутаций извне.
	r.items[order.ID] = cloneOrder(order)
	r.byPaymentRef[order.PaymentRef] = order.ID
	return nil
}

// Get возвращает заказ или ErrOrderNotFound.
func (r *orderRepositoryInMemory) Get(id string) (domain.Order, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	order, ok := r.items[id]
	if !ok {
		return domain.Order{}, domain.ErrOrderNotFound
	}
	return cloneOrder(order), nil
}

// GetByPaymentRef возвращает заказ по платёжной ссылке.
func (r *orderRepositoryInMemory) GetByPaymentRef(paymentRef string) (domain.Order, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	id, ok := r.byPaymentRef[paymentRef]
	if !ok {
		return domain.Order{}, domain.ErrOrderNotFound
	}
	return cloneOrder(r.items[id]), nil
}

// ListByCustomer возвращает заказы клиента, ограничивая выборку limit (если >0).
func (r *orderRepositoryInMemory) ListByCustomer(customerRef string, limit int) ([]domain.Order, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]domain.Order, 0, len(r.items))
	for _, order := range r.items {
		if order.CustomerRef != customerRef {
			continue
		}
		result = append(result, cloneOrder(order))
	}

	sort.Slice(result, func(i, j int) bool {
		if !result[i].CreatedAt.Equal(result[j].CreatedAt) {
			return result[i].CreatedAt.After(result[j].CreatedAt)
		}
		return result[i].ID > result[j].ID
	})

	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}

	return result, nil
}

// Save перезаписывает заказ, проверяя версию (optimistic locking).
func (r *orderRepositoryInMemory) Save(order domain.Order) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	current, ok := r.items[order.ID]
	if !ok {
		return domain.ErrOrderNotFound
	}
	if current.Version != order.Version {
		return domain.ErrOrderVersionConflict
	}
	// Инкрементируем версию перед сохранением.
	order.Version++
	r.items[order.ID] = cloneOrder(order)
	return nil
}

func cloneOrder(src domain.Order) domain.Order {
	dst := src
	dst.Items = append([]domain.OrderItem(nil), src.Items...)
	if src.PaidAt != nil {
		t := *src.PaidAt
		dst.PaidAt = &t
	}
	if src.ShippedAt != nil {
		t := *src.ShippedAt
		dst.ShippedAt = &t
	}
	if src.DeliveredAt != nil {
		t := *src.DeliveredAt
		dst.DeliveredAt = &t
	}
	return dst
}

var _ domain.OrderRepository = (*orderRepositoryInMemory)(nil)
