package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/vladislavdragonenkov/fulfillment/internal/domain"
)

const variantColumns = "id, product_id, color, size, quantity, version, created_at, updated_at"

// variantRepository — PostgreSQL-реализация VariantRepository. Списание —
// одиночный условный UPDATE с предикатом по остатку: сравнение и запись
// происходят в одной команде, оверселл исключён на уровне базы.
type variantRepository struct {
	db *sql.DB
}

// NewVariantRepository создаёт PostgreSQL-реализацию VariantRepository.
func NewVariantRepository(store *Store) domain.VariantRepository {
	return &variantRepository{db: store.DB()}
}

func (r *variantRepository) Get(id string) (domain.Variant, error) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	return r.get(ctx, r.db, id)
}

func (r *variantRepository) ListByProduct(productID string) ([]domain.Variant, error) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	rows, err := r.db.QueryContext(ctx, `
		SELECT `+variantColumns+`
		FROM variants
		WHERE product_id = $1
		ORDER BY id
	`, productID)
	if err != nil {
		return nil, fmt.Errorf("list variants: %w", err)
	}
	defer rows.Close()

	variants := make([]domain.Variant, 0)
	for rows.Next() {
		variant, err := scanVariant(rows)
		if err != nil {
			return nil, err
		}
		variants = append(variants, variant)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate variant rows: %w", err)
	}

	return variants, nil
}

func (r *variantRepository) Decrement(id string, qty int32) (domain.Variant, error) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	return r.decrement(ctx, r.db, id, qty)
}

func (r *variantRepository) Increment(id string, qty int32) (domain.Variant, error) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	return r.increment(ctx, r.db, id, qty)
}

// DecrementLines списывает все строки в одной транзакции: нехватка по любой
// строке откатывает списания по остальным.
func (r *variantRepository) DecrementLines(lines []domain.LineItem) ([]domain.Variant, error) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}

	result := make([]domain.Variant, 0, len(lines))
	for _, line := range lines {
		variant, err := r.decrement(ctx, tx, line.SKU, line.Qty)
		if err != nil {
			_ = tx.Rollback()
			return nil, err
		}
		result = append(result, variant)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit decrement lines: %w", err)
	}
	return result, nil
}

// IncrementLines возвращает остатки по всем строкам в одной транзакции.
func (r *variantRepository) IncrementLines(lines []domain.LineItem) ([]domain.Variant, error) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}

	result := make([]domain.Variant, 0, len(lines))
	for _, line := range lines {
		variant, err := r.increment(ctx, tx, line.SKU, line.Qty)
		if err != nil {
			_ = tx.Rollback()
			return nil, err
		}
		result = append(result, variant)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit increment lines: %w", err)
	}
	return result, nil
}

func (r *variantRepository) Upsert(variant domain.Variant) error {
	if errs := variant.Validate(); len(errs) != 0 {
		return errs[0]
	}

	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	now := time.Now().UTC()
	if variant.CreatedAt.IsZero() {
		variant.CreatedAt = now
	}

	if _, err := r.db.ExecContext(ctx, `
		INSERT INTO variants (id, product_id, color, size, quantity, version, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,0,$6,$7)
		ON CONFLICT (id) DO UPDATE
		SET product_id = EXCLUDED.product_id,
		    color = EXCLUDED.color,
		    size = EXCLUDED.size,
		    quantity = EXCLUDED.quantity,
		    version = variants.version + 1,
		    updated_at = EXCLUDED.updated_at
	`,
		variant.ID, variant.ProductID, variant.Color, variant.Size,
		variant.Quantity, variant.CreatedAt, now,
	); err != nil {
		return fmt.Errorf("upsert variant: %w", err)
	}

	return nil
}

// queryer покрывает *sql.DB и *sql.Tx для переиспользования условных
// мутаций внутри и вне транзакции.
type queryer interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (r *variantRepository) decrement(ctx context.Context, q queryer, id string, qty int32) (domain.Variant, error) {
	row := q.QueryRowContext(ctx, `
		UPDATE variants
		SET quantity = quantity - $2,
		    version = version + 1,
		    updated_at = NOW()
		WHERE id = $1
		  AND quantity >= $2
		RETURNING `+variantColumns,
		id, qty,
	)

	variant, err := scanVariant(row)
	if err == nil {
		return variant, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return domain.Variant{}, fmt.Errorf("decrement variant: %w", err)
	}

	// Условие не сработало: различаем отсутствие SKU и нехватку остатка.
	current, getErr := r.get(ctx, q, id)
	if getErr != nil {
		return domain.Variant{}, getErr
	}
	return domain.Variant{}, &domain.InsufficientStockError{
		SKU:       id,
		Requested: qty,
		Available: current.Quantity,
	}
}

func (r *variantRepository) increment(ctx context.Context, q queryer, id string, qty int32) (domain.Variant, error) {
	row := q.QueryRowContext(ctx, `
		UPDATE variants
		SET quantity = quantity + $2,
		    version = version + 1,
		    updated_at = NOW()
		WHERE id = $1
		RETURNING `+variantColumns,
		id, qty,
	)

	variant, err := scanVariant(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Variant{}, domain.ErrVariantNotFound
		}
		return domain.Variant{}, fmt.Errorf("increment variant: %w", err)
	}
	return variant, nil
}

func (r *variantRepository) get(ctx context.Context, q queryer, id string) (domain.Variant, error) {
	row := q.QueryRowContext(ctx, `
		SELECT `+variantColumns+`
		FROM variants
		WHERE id = $1
	`, id)

	variant, err := scanVariant(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Variant{}, domain.ErrVariantNotFound
		}
		return domain.Variant{}, fmt.Errorf("select variant: %w", err)
	}
	return variant, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanVariant(row rowScanner) (domain.Variant, error) {
	var variant domain.Variant
	if err := row.Scan(
		&variant.ID, &variant.ProductID, &variant.Color, &variant.Size,
		&variant.Quantity, &variant.Version, &variant.CreatedAt, &variant.UpdatedAt,
	); err != nil {
		return domain.Variant{}, err
	}
	return variant, nil
}

var _ domain.VariantRepository = (*variantRepository)(nil)
