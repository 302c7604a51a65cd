package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/vladislavdragonenkov/fulfillment/internal/domain"
)

// restockRepository — PostgreSQL-реализация RestockRepository. Одну активную
// подписку на (product, variant-or-empty, email) держит частичный уникальный
// индекс; MarkNotified — условный UPDATE, который выигрывает ровно один
// конкурентный sweep.
type restockRepository struct {
	db *sql.DB
}

// NewRestockRepository создаёт PostgreSQL-реализацию RestockRepository.
func NewRestockRepository(store *Store) domain.RestockRepository {
	return &restockRepository{db: store.DB()}
}

const restockColumns = "id, product_id, variant_id, email, phone, notified, notified_at, created_at"

func (r *restockRepository) CreateActive(sub domain.RestockSubscription) (domain.RestockSubscription, error) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	if sub.ID == "" {
		sub.ID = uuid.NewString()
	}
	if sub.CreatedAt.IsZero() {
		sub.CreatedAt = time.Now().UTC()
	}
	sub.Notified = false
	sub.NotifiedAt = nil

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO restock_subscriptions (id, product_id, variant_id, email, phone, notified, created_at)
		VALUES ($1,$2,$3,$4,$5,FALSE,$6)
	`,
		sub.ID, sub.ProductID, sub.VariantID, sub.Email, sub.Phone, sub.CreatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.RestockSubscription{}, domain.ErrSubscriptionExists
		}
		return domain.RestockSubscription{}, fmt.Errorf("insert restock subscription: %w", err)
	}

	return sub, nil
}

func (r *restockRepository) Get(id string) (domain.RestockSubscription, error) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	var (
		sub        domain.RestockSubscription
		notifiedAt sql.NullTime
	)
	err := r.db.QueryRowContext(ctx, `
		SELECT `+restockColumns+`
		FROM restock_subscriptions
		WHERE id = $1
	`, id).Scan(
		&sub.ID, &sub.ProductID, &sub.VariantID, &sub.Email, &sub.Phone,
		&sub.Notified, &notifiedAt, &sub.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.RestockSubscription{}, domain.ErrSubscriptionNotFound
		}
		return domain.RestockSubscription{}, fmt.Errorf("select restock subscription: %w", err)
	}
	sub.NotifiedAt = nullableTime(notifiedAt)

	return sub, nil
}

func (r *restockRepository) ListActive(limit int) ([]domain.RestockSubscription, error) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	if limit <= 0 {
		limit = 500
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT `+restockColumns+`
		FROM restock_subscriptions
		WHERE NOT notified
		ORDER BY created_at, id
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("list active restock subscriptions: %w", err)
	}
	defer rows.Close()

	subs := make([]domain.RestockSubscription, 0, limit)
	for rows.Next() {
		var (
			sub        domain.RestockSubscription
			notifiedAt sql.NullTime
		)
		if err := rows.Scan(
			&sub.ID, &sub.ProductID, &sub.VariantID, &sub.Email, &sub.Phone,
			&sub.Notified, &notifiedAt, &sub.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan restock subscription: %w", err)
		}
		sub.NotifiedAt = nullableTime(notifiedAt)
		subs = append(subs, sub)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate restock subscriptions: %w", err)
	}

	return subs, nil
}

func (r *restockRepository) MarkNotified(id string, at time.Time) (bool, error) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	if at.IsZero() {
		at = time.Now().UTC()
	}

	res, err := r.db.ExecContext(ctx, `
		UPDATE restock_subscriptions
		SET notified = TRUE,
		    notified_at = $2
		WHERE id = $1
		  AND NOT notified
	`, id, at)
	if err != nil {
		return false, fmt.Errorf("mark restock subscription notified: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("restock rows affected: %w", err)
	}
	if affected == 0 {
		var exists bool
		if err := r.db.QueryRowContext(ctx, `
			SELECT EXISTS (SELECT 1 FROM restock_subscriptions WHERE id = $1)
		`, id).Scan(&exists); err != nil {
			return false, fmt.Errorf("check restock subscription existence: %w", err)
		}
		if !exists {
			return false, domain.ErrSubscriptionNotFound
		}
		return false, nil
	}

	return true, nil
}

var _ domain.RestockRepository = (*restockRepository)(nil)
