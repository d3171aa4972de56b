package postgres

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/bazaar-api/internal/domain/order"
)

const (
	createOrderSQL = `INSERT INTO orders (id, order_number, customer_id, status, total_amount)
		VALUES ($1, $2, $3, $4, $5)`

	createOrderItemSQL = `INSERT INTO order_items (order_id, product_id, quantity, price_at_purchase)
		VALUES ($1, $2, $3, $4)`

	getOrderSQL = `SELECT id, order_number, customer_id, status, total_amount, created_at
		FROM orders WHERE id = $1`

	getOrderItemsSQL = `SELECT product_id, quantity, price_at_purchase
		FROM order_items WHERE order_id = $1 ORDER BY product_id`

	listOrdersSQL = `SELECT id, order_number, customer_id, status, total_amount, created_at
		FROM orders WHERE customer_id = $1 AND ($2 = '' OR order_number ILIKE $3)
		ORDER BY created_at DESC LIMIT $4 OFFSET $5`

	countOrdersSQL = `SELECT count(*) FROM orders
		WHERE customer_id = $1 AND ($2 = '' OR order_number ILIKE $3)`

	updateOrderStatusSQL = `UPDATE orders SET status = $2 WHERE id = $1`

	orderHasVendorProductSQL = `SELECT EXISTS (
		SELECT 1 FROM order_items oi
		JOIN products p ON p.id = oi.product_id
		WHERE oi.order_id = $1 AND p.vendor_id = $2)`
)

var _ order.Repository = (*OrderRepository)(nil)

// OrderRepository implements order.Repository backed by PostgreSQL.
type OrderRepository struct {
	pool *pgxpool.Pool
}

// NewOrderRepository returns an OrderRepository that uses the given pool.
func NewOrderRepository(pool *pgxpool.Pool) *OrderRepository {
	return &OrderRepository{pool: pool}
}

// CreateWithItems persists the order and its items in one transaction, so a
// failed item insert never leaves a bare order row visible. A unique
// violation on the order number surfaces as order.ErrNumberTaken.
func (r *OrderRepository) CreateWithItems(ctx context.Context, o *order.Order) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("beginning order transaction: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck // no-op after commit

	_, err = tx.Exec(ctx, createOrderSQL, o.ID, o.Number, o.CustomerID, string(o.Status), o.Total)
	if err != nil {
		if isUniqueViolation(err) {
			return order.ErrNumberTaken
		}
		return fmt.Errorf("creating order %q: %w", o.ID, err)
	}

	for _, it := range o.Items {
		_, err = tx.Exec(ctx, createOrderItemSQL, o.ID, it.ProductID, it.Quantity, it.PriceAtPurchase)
		if err != nil {
			return fmt.Errorf("creating order item %q for order %q: %w", it.ProductID, o.ID, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("committing order %q: %w", o.ID, err)
	}
	return nil
}

// Get returns a single order with its items.
func (r *OrderRepository) Get(ctx context.Context, id string) (*order.Order, error) {
	rows, err := r.pool.Query(ctx, getOrderSQL, id)
	if err != nil {
		return nil, fmt.Errorf("getting order %q: %w", id, err)
	}

	o, err := pgx.CollectExactlyOneRow(rows, scanOrder)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, order.ErrNotFound
		}
		return nil, fmt.Errorf("getting order %q: %w", id, err)
	}

	o.Items, err = r.items(ctx, id)
	if err != nil {
		return nil, err
	}
	return &o, nil
}

// ListByCustomer returns one page of the customer's orders, newest first,
// optionally filtered by an order-number substring, items included.
func (r *OrderRepository) ListByCustomer(ctx context.Context, customerID string, p order.ListParams) (*order.ListPage, error) {
	pattern := "%" + p.Search + "%"
	offset := (p.Page - 1) * p.Limit

	var total int
	if err := r.pool.QueryRow(ctx, countOrdersSQL, customerID, p.Search, pattern).Scan(&total); err != nil {
		return nil, fmt.Errorf("counting orders for customer %q: %w", customerID, err)
	}

	rows, err := r.pool.Query(ctx, listOrdersSQL, customerID, p.Search, pattern, p.Limit, offset)
	if err != nil {
		return nil, fmt.Errorf("listing orders for customer %q: %w", customerID, err)
	}
	orders, err := pgx.CollectRows(rows, scanOrder)
	if err != nil {
		return nil, fmt.Errorf("listing orders for customer %q: %w", customerID, err)
	}

	for i := range orders {
		orders[i].Items, err = r.items(ctx, orders[i].ID)
		if err != nil {
			return nil, err
		}
	}
	return &order.ListPage{Orders: orders, Total: total}, nil
}

// UpdateStatus sets the order status.
func (r *OrderRepository) UpdateStatus(ctx context.Context, id string, status order.Status) error {
	tag, err := r.pool.Exec(ctx, updateOrderStatusSQL, id, string(status))
	if err != nil {
		return fmt.Errorf("updating status of order %q: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return order.ErrNotFound
	}
	return nil
}

// ContainsVendorProduct reports whether any order item belongs to the vendor.
func (r *OrderRepository) ContainsVendorProduct(ctx context.Context, orderID, vendorID string) (bool, error) {
	var ok bool
	err := r.pool.QueryRow(ctx, orderHasVendorProductSQL, orderID, vendorID).Scan(&ok)
	if err != nil {
		return false, fmt.Errorf("checking vendor %q items in order %q: %w", vendorID, orderID, err)
	}
	return ok, nil
}

func (r *OrderRepository) items(ctx context.Context, orderID string) ([]order.Item, error) {
	rows, err := r.pool.Query(ctx, getOrderItemsSQL, orderID)
	if err != nil {
		return nil, fmt.Errorf("getting items for order %q: %w", orderID, err)
	}
	items, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (order.Item, error) {
		var it order.Item
		err := row.Scan(&it.ProductID, &it.Quantity, &it.PriceAtPurchase)
		return it, err
	})
	if err != nil {
		return nil, fmt.Errorf("getting items for order %q: %w", orderID, err)
	}
	return items, nil
}

func scanOrder(row pgx.CollectableRow) (order.Order, error) {
	var (
		o      order.Order
		status string
	)
	err := row.Scan(&o.ID, &o.Number, &o.CustomerID, &status, &o.Total, &o.CreatedAt)
	o.Status = order.Status(status)
	return o, err
}
