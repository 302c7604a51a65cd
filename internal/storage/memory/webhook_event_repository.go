package memory

import (
	"strings"
	"sync"
	"time"

	"github.com/vladislavdragonenkov/fulfillment/internal/domain"
)

// webhookEventRepositoryInMemory — аудит принятых webhook-событий.
type webhookEventRepositoryInMemory struct {
	mu    sync.RWMutex
	items map[string]domain.WebhookRecord
}

// NewWebhookEventRepository создаёт in-memory реализацию WebhookEventRepository.
func NewWebhookEventRepository() domain.WebhookEventRepository {
	return &webhookEventRepositoryInMemory{
		items: make(map[string]domain.WebhookRecord),
	}
}

// Record сохраняет запись; повторный event id отклоняется.
func (r *webhookEventRepositoryInMemory) Record(rec domain.WebhookRecord) error {
	rec.EventID = strings.TrimSpace(rec.EventID)
	if rec.EventID == "" {
		return domain.ErrWebhookEventIDRequired
	}

	now := time.Now().UTC()
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = now
	}
	if rec.TTLAt.IsZero() {
		rec.TTLAt = now.Add(72 * time.Hour)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.items[rec.EventID]; exists {
		return domain.ErrWebhookEventExists
	}
	r.items[rec.EventID] = rec
	return nil
}

// Get возвращает запись по event id провайдера.
func (r *webhookEventRepositoryInMemory) Get(eventID string) (domain.WebhookRecord, error) {
	eventID = strings.TrimSpace(eventID)
	if eventID == "" {
		return domain.WebhookRecord{}, domain.ErrWebhookEventIDRequired
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	rec, ok := r.items[eventID]
	if !ok {
		return domain.WebhookRecord{}, domain.ErrWebhookEventNotFound
	}
	return rec, nil
}

// DeleteExpired удаляет записи с ttl_at <= before порциями limit.
func (r *webhookEventRepositoryInMemory) DeleteExpired(before time.Time, limit int) (int, error) {
	if before.IsZero() {
		before = time.Now().UTC()
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	removed := 0
	for id, rec := range r.items {
		if rec.TTLAt.After(before) {
			continue
		}

		delete(r.items, id)
		removed++
		if limit > 0 && removed >= limit {
			break
		}
	}

	return removed, nil
}

var _ domain.WebhookEventRepository = (*webhookEventRepositoryInMemory)(nil)
