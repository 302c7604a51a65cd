package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/vladislavdragonenkov/fulfillment/internal/domain"
)

// webhookEventRepository — PostgreSQL-реализация WebhookEventRepository.
// Первичный ключ по event_id провайдера даёт дедупликацию на уровне базы.
type webhookEventRepository struct {
	db *sql.DB
}

// NewWebhookEventRepository создаёт PostgreSQL-реализацию WebhookEventRepository.
func NewWebhookEventRepository(store *Store) domain.WebhookEventRepository {
	return &webhookEventRepository{db: store.DB()}
}

func (r *webhookEventRepository) Record(rec domain.WebhookRecord) error {
	rec.EventID = strings.TrimSpace(rec.EventID)
	if rec.EventID == "" {
		return domain.ErrWebhookEventIDRequired
	}

	now := time.Now().UTC()
	if rec.ProcessedAt.IsZero() {
		rec.ProcessedAt = now
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = now
	}
	if rec.TTLAt.IsZero() {
		rec.TTLAt = now.Add(72 * time.Hour)
	}

	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO webhook_events (
			event_id, event_type, payment_ref, signature_valid,
			outcome, processed_at, ttl_at, created_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
	`,
		rec.EventID, rec.EventType, rec.PaymentRef, rec.SignatureValid,
		string(rec.Outcome), rec.ProcessedAt, rec.TTLAt, rec.CreatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.ErrWebhookEventExists
		}
		return fmt.Errorf("insert webhook event: %w", err)
	}

	return nil
}

func (r *webhookEventRepository) Get(eventID string) (domain.WebhookRecord, error) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	var (
		rec     domain.WebhookRecord
		outcome string
	)
	err := r.db.QueryRowContext(ctx, `
		SELECT event_id, event_type, payment_ref, signature_valid,
		       outcome, processed_at, ttl_at, created_at
		FROM webhook_events
		WHERE event_id = $1
	`, eventID).Scan(
		&rec.EventID, &rec.EventType, &rec.PaymentRef, &rec.SignatureValid,
		&outcome, &rec.ProcessedAt, &rec.TTLAt, &rec.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.WebhookRecord{}, domain.ErrWebhookEventNotFound
		}
		return domain.WebhookRecord{}, fmt.Errorf("select webhook event: %w", err)
	}
	rec.Outcome = domain.WebhookOutcome(outcome)

	return rec, nil
}

func (r *webhookEventRepository) DeleteExpired(before time.Time, limit int) (int, error) {
	if before.IsZero() {
		before = time.Now().UTC()
	}

	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	var (
		res sql.Result
		err error
	)
	if limit > 0 {
		res, err = r.db.ExecContext(ctx, `
			DELETE FROM webhook_events
			WHERE event_id IN (
				SELECT event_id
				FROM webhook_events
				WHERE ttl_at <= $1
				ORDER BY ttl_at
				LIMIT $2
			)
		`, before, limit)
	} else {
		res, err = r.db.ExecContext(ctx, `
			DELETE FROM webhook_events
			WHERE ttl_at <= $1
		`, before)
	}
	if err != nil {
		return 0, fmt.Errorf("delete expired webhook events: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("webhook rows affected: %w", err)
	}

	return int(affected), nil
}

var _ domain.WebhookEventRepository = (*webhookEventRepository)(nil)
