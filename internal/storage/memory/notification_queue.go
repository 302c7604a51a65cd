package memory

import (
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/vladislavdragonenkov/fulfillment/internal/domain"
)

// notificationRecord хранит уведомление и служебные поля очереди.
type notificationRecord struct {
	notification domain.Notification
	status       string
	attemptCnt   int
	createdAt    time.Time
	updatedAt    time.Time
}

// notificationQueueInMemory — in-memory транзакционная очередь уведомлений.
type notificationQueueInMemory struct {
	mu      sync.RWMutex
	records map[string]*notificationRecord
}

// NewNotificationQueue создаёт in-memory реализацию NotificationQueue.
func NewNotificationQueue() *notificationQueueInMemory {
	return &notificationQueueInMemory{records: make(map[string]*notificationRecord)}
}

// Enqueue сохраняет уведомление со статусом `pending`.
func (r *notificationQueueInMemory) Enqueue(n domain.Notification) (domain.Notification, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if n.ID == "" {
		n.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if n.CreatedAt.IsZero() {
		n.CreatedAt = now
	}
	r.records[n.ID] = &notificationRecord{
		notification: n,
		status:       "pending",
		createdAt:    now,
		updatedAt:    now,
	}
	return n, nil
}

// PullPending возвращает до limit уведомлений со статусом `pending`
// в порядке постановки.
func (r *notificationQueueInMemory) PullPending(limit int) ([]domain.Notification, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if limit <= 0 {
		limit = 100
	}

	pending := make([]*notificationRecord, 0, limit)
	for _, rec := range r.records {
		if rec.status != "pending" {
			continue
		}
		pending = append(pending, rec)
	}

	sort.Slice(pending, func(i, j int) bool {
		if !pending[i].createdAt.Equal(pending[j].createdAt) {
			return pending[i].createdAt.Before(pending[j].createdAt)
		}
		return pending[i].notification.ID < pending[j].notification.ID
	})

	if len(pending) > limit {
		pending = pending[:limit]
	}

	result := make([]domain.Notification, 0, len(pending))
	for _, rec := range pending {
		result = append(result, rec.notification)
	}
	return result, nil
}

// Stats возвращает состояние backlog очереди.
func (r *notificationQueueInMemory) Stats() (domain.NotificationStats, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	stats := domain.NotificationStats{}
	for _, rec := range r.records {
		if rec.status != "pending" {
			continue
		}
		stats.PendingCount++
		if stats.OldestPendingAt.IsZero() || rec.createdAt.Before(stats.OldestPendingAt) {
			stats.OldestPendingAt = rec.createdAt
		}
	}
	return stats, nil
}

// MarkSent фиксирует успешную доставку.
func (r *notificationQueueInMemory) MarkSent(id string) error {
	return r.markStatus(id, "sent")
}

// MarkFailed фиксирует исчерпание попыток доставки.
func (r *notificationQueueInMemory) MarkFailed(id string) error {
	return r.markStatus(id, "failed")
}

func (r *notificationQueueInMemory) markStatus(id, status string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, ok := r.records[id]
	if !ok {
		return domain.ErrNotificationNotFound
	}
	rec.status = status
	rec.attemptCnt++
	rec.updatedAt = time.Now().UTC()
	return nil
}

// AllPending возвращает копию всех pending-уведомлений (используется в тестах).
func (r *notificationQueueInMemory) AllPending() []domain.Notification {
	r.mu.RLock()
	total := len(r.records)
	r.mu.RUnlock()

	result, _ := r.PullPending(total)
	return result
}

var _ domain.NotificationQueue = (*notificationQueueInMemory)(nil)
