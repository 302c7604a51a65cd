package memory

import (
	"sort"
	"sync"
	"time"

	"github.com/vladislavdragonenkov/fulfillment/internal/domain"
)

// variantRepositoryInMemory — in-memory реализация VariantRepository.
// Мутации выполняются под одним write-lock, что воспроизводит семантику
// одиночной условной записи production-хранилища.
type variantRepositoryInMemory struct {
	mu    sync.RWMutex
	items map[string]domain.Variant
}

// NewVariantRepository возвращает in-memory репозиторий для локальной разработки и тестов.
func NewVariantRepository() domain.VariantRepository {
	return &variantRepositoryInMemory{
		items: make(map[string]domain.Variant),
	}
}

// Get возвращает вариант или ErrVariantNotFound.
func (r *variantRepositoryInMemory) Get(id string) (domain.Variant, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	variant, ok := r.items[id]
	if !ok {
		return domain.Variant{}, domain.ErrVariantNotFound
	}
	return variant, nil
}

// ListByProduct возвращает варианты продукта в стабильном порядке.
func (r *variantRepositoryInMemory) ListByProduct(productID string) ([]domain.Variant, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]domain.Variant, 0)
	for _, variant := range r.items {
		if variant.ProductID != productID {
			continue
		}
		result = append(result, variant)
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].ID < result[j].ID
	})

	return result, nil
}

// Decrement атомарно списывает qty; проверка остатка и запись происходят
// под одним lock, повторяя условный UPDATE хранилища.
func (r *variantRepositoryInMemory) Decrement(id string, qty int32) (domain.Variant, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.decrementLocked(id, qty)
}

// Increment атомарно возвращает qty на остаток.
func (r *variantRepositoryInMemory) Increment(id string, qty int32) (domain.Variant, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.incrementLocked(id, qty)
}

// DecrementLines проверяет все строки до первой мутации: либо списываются
// все строки, либо остатки не меняются вовсе.
func (r *variantRepositoryInMemory) DecrementLines(lines []domain.LineItem) ([]domain.Variant, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	// Фаза проверки: ни одной мутации до полной валидации.
	need := make(map[string]int32, len(lines))
	for _, line := range lines {
		need[line.SKU] += line.Qty
	}
	for sku, qty := range need {
		variant, ok := r.items[sku]
		if !ok {
			return nil, domain.ErrVariantNotFound
		}
		if variant.Quantity < qty {
			return nil, &domain.InsufficientStockError{
				SKU:       sku,
				Requested: qty,
				Available: variant.Quantity,
			}
		}
	}

	result := make([]domain.Variant, 0, len(lines))
	for _, line := range lines {
		variant, err := r.decrementLocked(line.SKU, line.Qty)
		if err != nil {
			// Недостижимо после фазы проверки, но не глотаем на всякий случай.
			return nil, err
		}
		result = append(result, variant)
	}

	return result, nil
}

// IncrementLines возвращает остатки по всем строкам.
func (r *variantRepositoryInMemory) IncrementLines(lines []domain.LineItem) ([]domain.Variant, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, line := range lines {
		if _, ok := r.items[line.SKU]; !ok {
			return nil, domain.ErrVariantNotFound
		}
	}

	result := make([]domain.Variant, 0, len(lines))
	for _, line := range lines {
		variant, err := r.incrementLocked(line.SKU, line.Qty)
		if err != nil {
			return nil, err
		}
		result = append(result, variant)
	}

	return result, nil
}

// Upsert сохраняет вариант (наполнение каталога, вне ядра).
func (r *variantRepositoryInMemory) Upsert(variant domain.Variant) error {
	if errs := variant.Validate(); len(errs) != 0 {
		return errs[0]
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now().UTC()
	if existing, ok := r.items[variant.ID]; ok {
		variant.CreatedAt = existing.CreatedAt
		variant.Version = existing.Version + 1
	} else if variant.CreatedAt.IsZero() {
		variant.CreatedAt = now
	}
	variant.UpdatedAt = now
	r.items[variant.ID] = variant
	return nil
}

func (r *variantRepositoryInMemory) decrementLocked(id string, qty int32) (domain.Variant, error) {
	variant, ok := r.items[id]
	if !ok {
		return domain.Variant{}, domain.ErrVariantNotFound
	}
	if variant.Quantity < qty {
		return domain.Variant{}, &domain.InsufficientStockError{
			SKU:       id,
			Requested: qty,
			Available: variant.Quantity,
		}
	}

	variant.Quantity -= qty
	variant.Version++
	variant.UpdatedAt = time.Now().UTC()
	r.items[id] = variant
	return variant, nil
}

func (r *variantRepositoryInMemory) incrementLocked(id string, qty int32) (domain.Variant, error) {
	variant, ok := r.items[id]
	if !ok {
		return domain.Variant{}, domain.ErrVariantNotFound
	}

	variant.Quantity += qty
	variant.Version++
	variant.UpdatedAt = time.Now().UTC()
	r.items[id] = variant
	return variant, nil
}

var _ domain.VariantRepository = (*variantRepositoryInMemory)(nil)
