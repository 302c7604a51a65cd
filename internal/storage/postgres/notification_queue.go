package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/vladislavdragonenkov/fulfillment/internal/domain"
)

// notificationQueue — PostgreSQL-реализация NotificationQueue поверх
// таблицы notifications со статусной колонкой (pending → sent/failed).
type notificationQueue struct {
	db *sql.DB
}

// NewNotificationQueue создаёт PostgreSQL-реализацию NotificationQueue.
func NewNotificationQueue(store *Store) domain.NotificationQueue {
	return &notificationQueue{db: store.DB()}
}

func (r *notificationQueue) Enqueue(n domain.Notification) (domain.Notification, error) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	if n.ID == "" {
		n.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if n.CreatedAt.IsZero() {
		n.CreatedAt = now
	}

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO notifications (
			id, channel, template, recipient, payload,
			status, attempt_count, created_at, updated_at
		) VALUES ($1,$2,$3,$4,$5,'pending',0,$6,$7)
	`,
		n.ID, string(n.Channel), string(n.Template), n.Recipient, n.Payload,
		n.CreatedAt, now,
	)
	if err != nil {
		return domain.Notification{}, fmt.Errorf("enqueue notification: %w", err)
	}

	return n, nil
}

func (r *notificationQueue) PullPending(limit int) ([]domain.Notification, error) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	if limit <= 0 {
		limit = 100
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT id, channel, template, recipient, payload, created_at
		FROM notifications
		WHERE status = 'pending'
		ORDER BY created_at, id
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("pull pending notifications: %w", err)
	}
	defer rows.Close()

	result := make([]domain.Notification, 0, limit)
	for rows.Next() {
		var (
			n        domain.Notification
			channel  string
			template string
		)
		if err := rows.Scan(&n.ID, &channel, &template, &n.Recipient, &n.Payload, &n.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan notification: %w", err)
		}
		n.Channel = domain.NotificationChannel(channel)
		n.Template = domain.NotificationTemplate(template)
		result = append(result, n)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate notification rows: %w", err)
	}

	return result, nil
}

func (r *notificationQueue) Stats() (domain.NotificationStats, error) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	var (
		stats  domain.NotificationStats
		oldest sql.NullTime
	)
	if err := r.db.QueryRowContext(ctx, `
		SELECT COUNT(*), MIN(created_at)
		FROM notifications
		WHERE status = 'pending'
	`).Scan(&stats.PendingCount, &oldest); err != nil {
		return domain.NotificationStats{}, fmt.Errorf("notification stats query failed: %w", err)
	}

	if oldest.Valid {
		stats.OldestPendingAt = oldest.Time.UTC()
	}

	return stats, nil
}

func (r *notificationQueue) MarkSent(id string) error {
	return r.markStatus(id, "sent")
}

func (r *notificationQueue) MarkFailed(id string) error {
	return r.markStatus(id, "failed")
}

func (r *notificationQueue) markStatus(id, status string) error {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	res, err := r.db.ExecContext(ctx, `
		UPDATE notifications
		SET status = $2,
		    attempt_count = attempt_count + 1,
		    updated_at = $3
		WHERE id = $1
	`, id, status, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("mark notification as %s: %w", status, err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("notification rows affected: %w", err)
	}
	if affected == 0 {
		return domain.ErrNotificationNotFound
	}

	return nil
}

var _ domain.NotificationQueue = (*notificationQueue)(nil)
