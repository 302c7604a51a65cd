package memory

import (
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/vladislavdragonenkov/fulfillment/internal/domain"
)

// restockRepositoryInMemory хранит подписки «сообщите о поступлении».
// Активная уникальность по (product, variant-or-empty, email) воспроизводит
// частичный уникальный индекс production-хранилища.
type restockRepositoryInMemory struct {
	mu     sync.RWMutex
	items  map[string]domain.RestockSubscription
	active map[string]string // activeKey -> subscription id
}

// NewRestockRepository создаёт in-memory реализацию RestockRepository.
func NewRestockRepository() domain.RestockRepository {
	return &restockRepositoryInMemory{
		items:  make(map[string]domain.RestockSubscription),
		active: make(map[string]string),
	}
}

// CreateActive сохраняет подписку, если активной с тем же ключом ещё нет.
func (r *restockRepositoryInMemory) CreateActive(sub domain.RestockSubscription) (domain.RestockSubscription, error) {
	if errs := sub.Validate(); len(errs) != 0 {
		return domain.RestockSubscription{}, errs[0]
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	key := activeKey(sub.ProductID, sub.VariantID, sub.Email)
	if _, exists := r.active[key]; exists {
		return domain.RestockSubscription{}, domain.ErrSubscriptionExists
	}

	if sub.ID == "" {
		sub.ID = uuid.NewString()
	}
	if sub.CreatedAt.IsZero() {
		sub.CreatedAt = time.Now().UTC()
	}
	sub.Notified = false
	sub.NotifiedAt = nil

	r.items[sub.ID] = sub
	r.active[key] = sub.ID
	return sub, nil
}

// Get возвращает подписку или ErrSubscriptionNotFound.
func (r *restockRepositoryInMemory) Get(id string) (domain.RestockSubscription, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	sub, ok := r.items[id]
	if !ok {
		return domain.RestockSubscription{}, domain.ErrSubscriptionNotFound
	}
	return sub, nil
}

// ListActive возвращает до limit неуведомлённых подписок в порядке создания.
func (r *restockRepositoryInMemory) ListActive(limit int) ([]domain.RestockSubscription, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]domain.RestockSubscription, 0)
	for _, sub := range r.items {
		if sub.Notified {
			continue
		}
		result = append(result, sub)
	}

	sort.Slice(result, func(i, j int) bool {
		if !result[i].CreatedAt.Equal(result[j].CreatedAt) {
			return result[i].CreatedAt.Before(result[j].CreatedAt)
		}
		return result[i].ID < result[j].ID
	})

	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}

	return result, nil
}

// MarkNotified переводит подписку в notified; false означает, что она уже
// была уведомлена и отправлять ничего не нужно.
func (r *restockRepositoryInMemory) MarkNotified(id string, at time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	sub, ok := r.items[id]
	if !ok {
		return false, domain.ErrSubscriptionNotFound
	}
	if sub.Notified {
		return false, nil
	}

	if at.IsZero() {
		at = time.Now().UTC()
	}
	sub.Notified = true
	sub.NotifiedAt = &at
	r.items[id] = sub
	delete(r.active, activeKey(sub.ProductID, sub.VariantID, sub.Email))
	return true, nil
}

func activeKey(productID, variantID, email string) string {
	return strings.Join([]string{productID, variantID, strings.ToLower(email)}, "|")
}

var _ domain.RestockRepository = (*restockRepositoryInMemory)(nil)
