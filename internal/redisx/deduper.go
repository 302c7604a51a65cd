package redisx

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	// KeyWebhookDedup — ключ дедупликации webhook-события: dedup:webhook:{event_id}.
	KeyWebhookDedup = "dedup:webhook:%s"

	opTimeout = 2 * time.Second
)

// TTLWebhookDedup согласован с retention аудита webhook-событий.
var TTLWebhookDedup = 72 * time.Hour

// Deduper — best-effort дедупликация по event id поверх Redis SETNX.
// Недоступность Redis не роняет обработку: вызывающий код откатывается
// к дедупликации хранилища.
type Deduper struct {
	rdb *redis.Client
}

// NewDeduper создаёт deduper поверх клиента.
func NewDeduper(rdb *redis.Client) *Deduper {
	return &Deduper{rdb: rdb}
}

// Seen атомарно регистрирует event id. true — событие уже видели.
func (d *Deduper) Seen(eventID string) (bool, error) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	key := fmt.Sprintf(KeyWebhookDedup, eventID)
	set, err := d.rdb.SetNX(ctx, key, "1", TTLWebhookDedup).Result()
	if err != nil {
		return false, err
	}
	return !set, nil
}
