package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/vladislavdragonenkov/fulfillment/internal/domain"
)

// orderRepository — PostgreSQL-реализация OrderRepository. Единственность
// заказа на payment_ref держит уникальный constraint: проигравший гонку
// insert получает ErrDuplicateOrder вместо второго заказа.
type orderRepository struct {
	db *sql.DB
}

// NewOrderRepository создаёт PostgreSQL-реализацию OrderRepository.
func NewOrderRepository(store *Store) domain.OrderRepository {
	return &orderRepository{db: store.DB()}
}

const orderColumns = `id, customer_ref, status, currency, amount_minor, payment_ref,
	customer_name, customer_email, customer_phone,
	shipping_address, billing_address, tracking,
	paid_at, shipped_at, delivered_at, version, created_at, updated_at`

func (r *orderRepository) Create(order domain.Order) error {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	shipping, billing, err := marshalAddresses(order)
	if err != nil {
		return err
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return &domain.StorageUnavailableError{Op: "create order", Err: err}
	}

	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO orders (`+orderColumns+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18)
	`,
		order.ID, order.CustomerRef, string(order.Status), order.Currency,
		order.AmountMinor, order.PaymentRef,
		order.Customer.Name, order.Customer.Email, order.Customer.Phone,
		shipping, billing, order.Tracking,
		order.PaidAt, order.ShippedAt, order.DeliveredAt,
		order.Version, order.CreatedAt, order.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			if strings.Contains(constraintName(err), "payment_ref") {
				return domain.ErrDuplicateOrder
			}
			return domain.ErrOrderVersionConflict
		}
		return fmt.Errorf("insert order: %w", err)
	}

	for _, item := range order.Items {
		if _, err = tx.ExecContext(ctx, `
			INSERT INTO order_items (id, order_id, sku, qty, price_minor, color, size, created_at)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
		`,
			item.ID, order.ID, item.SKU, item.Qty, item.PriceMinor,
			item.Color, item.Size, item.CreatedAt,
		); err != nil {
			return fmt.Errorf("insert order item: %w", err)
		}
	}

	if err = tx.Commit(); err != nil {
		return &domain.StorageUnavailableError{Op: "commit create order", Err: err}
	}

	return nil
}

func (r *orderRepository) Get(id string) (domain.Order, error) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	return r.getBy(ctx, "id", id)
}

func (r *orderRepository) GetByPaymentRef(paymentRef string) (domain.Order, error) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	return r.getBy(ctx, "payment_ref", paymentRef)
}

func (r *orderRepository) getBy(ctx context.Context, column, value string) (domain.Order, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT `+orderColumns+`
		FROM orders
		WHERE `+column+` = $1
	`, value)

	order, err := scanOrder(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Order{}, domain.ErrOrderNotFound
		}
		return domain.Order{}, fmt.Errorf("select order by %s: %w", column, err)
	}

	items, err := r.loadItems(ctx, order.ID)
	if err != nil {
		return domain.Order{}, err
	}
	order.Items = items

	return order, nil
}

func (r *orderRepository) ListByCustomer(customerRef string, limit int) ([]domain.Order, error) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	query := `
		SELECT ` + orderColumns + `
		FROM orders
		WHERE customer_ref = $1
		ORDER BY created_at DESC, id DESC
	`

	var (
		rows *sql.Rows
		err  error
	)
	if limit > 0 {
		rows, err = r.db.QueryContext(ctx, query+" LIMIT $2", customerRef, limit)
	} else {
		rows, err = r.db.QueryContext(ctx, query, customerRef)
	}
	if err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}
	defer rows.Close()

	orders := make([]domain.Order, 0)
	for rows.Next() {
		order, err := scanOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("scan order row: %w", err)
		}
		orders = append(orders, order)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate order rows: %w", err)
	}

	for i := range orders {
		items, err := r.loadItems(ctx, orders[i].ID)
		if err != nil {
			return nil, err
		}
		orders[i].Items = items
	}

	return orders, nil
}

// Save обновляет заказ при совпадении версии; позиции заказа неизменяемы
// и не перезаписываются.
func (r *orderRepository) Save(order domain.Order) error {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	res, err := r.db.ExecContext(ctx, `
		UPDATE orders
		SET status = $1,
		    tracking = $2,
		    paid_at = $3,
		    shipped_at = $4,
		    delivered_at = $5,
		    version = version + 1,
		    updated_at = $6
		WHERE id = $7
		  AND version = $8
	`,
		string(order.Status), order.Tracking,
		order.PaidAt, order.ShippedAt, order.DeliveredAt,
		order.UpdatedAt, order.ID, order.Version,
	)
	if err != nil {
		return fmt.Errorf("update order: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		var exists bool
		if err := r.db.QueryRowContext(ctx, `
			SELECT EXISTS (SELECT 1 FROM orders WHERE id = $1)
		`, order.ID).Scan(&exists); err != nil {
			return fmt.Errorf("check order existence: %w", err)
		}
		if !exists {
			return domain.ErrOrderNotFound
		}
		return domain.ErrOrderVersionConflict
	}

	return nil
}

func (r *orderRepository) loadItems(ctx context.Context, orderID string) ([]domain.OrderItem, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, sku, qty, price_minor, color, size, created_at
		FROM order_items
		WHERE order_id = $1
		ORDER BY created_at, id
	`, orderID)
	if err != nil {
		return nil, fmt.Errorf("load order items: %w", err)
	}
	defer rows.Close()

	items := make([]domain.OrderItem, 0)
	for rows.Next() {
		var item domain.OrderItem
		if err := rows.Scan(
			&item.ID, &item.SKU, &item.Qty, &item.PriceMinor,
			&item.Color, &item.Size, &item.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan order item: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate order items: %w", err)
	}

	return items, nil
}

func marshalAddresses(order domain.Order) (shipping, billing []byte, err error) {
	if shipping, err = json.Marshal(order.Shipping); err != nil {
		return nil, nil, fmt.Errorf("marshal shipping address: %w", err)
	}
	if billing, err = json.Marshal(order.Billing); err != nil {
		return nil, nil, fmt.Errorf("marshal billing address: %w", err)
	}
	return shipping, billing, nil
}

func scanOrder(row rowScanner) (domain.Order, error) {
	var (
		order       domain.Order
		status      string
		shipping    []byte
		billing     []byte
		paidAt      sql.NullTime
		shippedAt   sql.NullTime
		deliveredAt sql.NullTime
	)

	if err := row.Scan(
		&order.ID, &order.CustomerRef, &status, &order.Currency,
		&order.AmountMinor, &order.PaymentRef,
		&order.Customer.Name, &order.Customer.Email, &order.Customer.Phone,
		&shipping, &billing, &order.Tracking,
		&paidAt, &shippedAt, &deliveredAt,
		&order.Version, &order.CreatedAt, &order.UpdatedAt,
	); err != nil {
		return domain.Order{}, err
	}

	order.Status = domain.OrderStatus(status)
	if err := json.Unmarshal(shipping, &order.Shipping); err != nil {
		return domain.Order{}, fmt.Errorf("unmarshal shipping address: %w", err)
	}
	if err := json.Unmarshal(billing, &order.Billing); err != nil {
		return domain.Order{}, fmt.Errorf("unmarshal billing address: %w", err)
	}
	order.PaidAt = nullableTime(paidAt)
	order.ShippedAt = nullableTime(shippedAt)
	order.DeliveredAt = nullableTime(deliveredAt)

	return order, nil
}

func nullableTime(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	utc := t.Time.UTC()
	return &utc
}

var _ domain.OrderRepository = (*orderRepository)(nil)
