package postgres

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/bazaar-api/internal/domain/cart"
)

const (
	getCartSQL = `SELECT id, customer_id FROM carts WHERE customer_id = $1`

	// ON CONFLICT keeps lazy creation race-safe: two concurrent first
	// accesses both end up with the same cart row.
	createCartSQL = `INSERT INTO carts (id, customer_id) VALUES ($1, $2)
		ON CONFLICT (customer_id) DO UPDATE SET customer_id = EXCLUDED.customer_id
		RETURNING id, customer_id`

	getCartItemsSQL = `SELECT product_id, quantity FROM cart_items
		WHERE cart_id = $1 ORDER BY product_id`

	upsertCartItemSQL = `INSERT INTO cart_items (cart_id, product_id, quantity)
		VALUES ($1, $2, $3)
		ON CONFLICT (cart_id, product_id)
		DO UPDATE SET quantity = cart_items.quantity + EXCLUDED.quantity`

	updateCartItemSQL = `UPDATE cart_items SET quantity = $3
		WHERE cart_id = $1 AND product_id = $2`

	removeCartItemSQL = `DELETE FROM cart_items WHERE cart_id = $1 AND product_id = $2`

	clearCartSQL = `DELETE FROM cart_items WHERE cart_id = $1`
)

var _ cart.Repository = (*CartRepository)(nil)

// CartRepository implements cart.Repository backed by PostgreSQL.
type CartRepository struct {
	pool *pgxpool.Pool
}

// NewCartRepository returns a CartRepository that uses the given pool.
func NewCartRepository(pool *pgxpool.Pool) *CartRepository {
	return &CartRepository{pool: pool}
}

// GetOrCreate returns the customer's cart, creating it on first access.
func (r *CartRepository) GetOrCreate(ctx context.Context, customerID string) (*cart.Cart, error) {
	var c cart.Cart
	err := r.pool.QueryRow(ctx, getCartSQL, customerID).Scan(&c.ID, &c.CustomerID)
	if err == nil {
		return &c, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("getting cart for customer %q: %w", customerID, err)
	}

	err = r.pool.QueryRow(ctx, createCartSQL, uuid.New().String(), customerID).
		Scan(&c.ID, &c.CustomerID)
	if err != nil {
		return nil, fmt.Errorf("creating cart for customer %q: %w", customerID, err)
	}
	return &c, nil
}

// Items returns the cart's line items ordered by product ID.
func (r *CartRepository) Items(ctx context.Context, cartID string) ([]cart.Item, error) {
	rows, err := r.pool.Query(ctx, getCartItemsSQL, cartID)
	if err != nil {
		return nil, fmt.Errorf("getting items for cart %q: %w", cartID, err)
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (cart.Item, error) {
		var it cart.Item
		err := row.Scan(&it.ProductID, &it.Quantity)
		return it, err
	})
}

// Upsert adds qty to an existing line item or inserts a new one.
func (r *CartRepository) Upsert(ctx context.Context, cartID, productID string, qty int) error {
	if qty <= 0 {
		return cart.ErrInvalidQuantity
	}
	_, err := r.pool.Exec(ctx, upsertCartItemSQL, cartID, productID, qty)
	if err != nil {
		return fmt.Errorf("upserting item %q in cart %q: %w", productID, cartID, err)
	}
	return nil
}

// UpdateQuantity replaces a line item's quantity.
func (r *CartRepository) UpdateQuantity(ctx context.Context, cartID, productID string, qty int) error {
	if qty <= 0 {
		return cart.ErrInvalidQuantity
	}
	tag, err := r.pool.Exec(ctx, updateCartItemSQL, cartID, productID, qty)
	if err != nil {
		return fmt.Errorf("updating item %q in cart %q: %w", productID, cartID, err)
	}
	if tag.RowsAffected() == 0 {
		return cart.ErrItemNotFound
	}
	return nil
}

// Remove deletes a line item from the cart.
func (r *CartRepository) Remove(ctx context.Context, cartID, productID string) error {
	tag, err := r.pool.Exec(ctx, removeCartItemSQL, cartID, productID)
	if err != nil {
		return fmt.Errorf("removing item %q from cart %q: %w", productID, cartID, err)
	}
	if tag.RowsAffected() == 0 {
		return cart.ErrItemNotFound
	}
	return nil
}

// Clear deletes all line items, keeping the cart row for future use.
func (r *CartRepository) Clear(ctx context.Context, cartID string) error {
	_, err := r.pool.Exec(ctx, clearCartSQL, cartID)
	if err != nil {
		return fmt.Errorf("clearing cart %q: %w", cartID, err)
	}
	return nil
}
