package postgres

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/bazaar-api/internal/domain/inventory"
)

const (
	getStockSQL = `SELECT stock_quantity FROM inventory WHERE product_id = $1`

	// The guard condition makes the check-and-subtract a single atomic
	// operation evaluated by the database. Zero rows affected means the
	// decrement would have driven stock negative.
	decrementStockSQL = `UPDATE inventory SET stock_quantity = stock_quantity - $2
		WHERE product_id = $1 AND stock_quantity >= $2`

	incrementStockSQL = `UPDATE inventory SET stock_quantity = stock_quantity + $2
		WHERE product_id = $1`

	setStockSQL = `INSERT INTO inventory (product_id, stock_quantity) VALUES ($1, $2)
		ON CONFLICT (product_id) DO UPDATE SET stock_quantity = EXCLUDED.stock_quantity`
)

var _ inventory.Ledger = (*InventoryLedger)(nil)

// InventoryLedger implements inventory.Ledger backed by PostgreSQL. All stock
// arithmetic happens inside single UPDATE statements so that concurrent
// checkouts against the same product serialize on the row.
type InventoryLedger struct {
	pool *pgxpool.Pool
}

// NewInventoryLedger returns an InventoryLedger that uses the given pool.
func NewInventoryLedger(pool *pgxpool.Pool) *InventoryLedger {
	return &InventoryLedger{pool: pool}
}

// GetStock returns the current stock quantity for a product. A product
// without an inventory row reads as zero stock.
func (l *InventoryLedger) GetStock(ctx context.Context, productID string) (int, error) {
	var qty int
	err := l.pool.QueryRow(ctx, getStockSQL, productID).Scan(&qty)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, nil
		}
		return 0, fmt.Errorf("getting stock for %q: %w", productID, err)
	}
	return qty, nil
}

// Decrement atomically subtracts qty, failing with InsufficientStockError
// when the guarded update matches no row.
func (l *InventoryLedger) Decrement(ctx context.Context, productID string, qty int) error {
	tag, err := l.pool.Exec(ctx, decrementStockSQL, productID, qty)
	if err != nil {
		return fmt.Errorf("decrementing stock for %q: %w", productID, err)
	}
	if tag.RowsAffected() == 0 {
		return &inventory.InsufficientStockError{ProductID: productID}
	}
	return nil
}

// Increment adds qty back to the stored quantity.
func (l *InventoryLedger) Increment(ctx context.Context, productID string, qty int) error {
	_, err := l.pool.Exec(ctx, incrementStockSQL, productID, qty)
	if err != nil {
		return fmt.Errorf("incrementing stock for %q: %w", productID, err)
	}
	return nil
}

// SetStock overwrites the stored quantity, creating the row when absent.
func (l *InventoryLedger) SetStock(ctx context.Context, productID string, qty int) error {
	_, err := l.pool.Exec(ctx, setStockSQL, productID, qty)
	if err != nil {
		return fmt.Errorf("setting stock for %q: %w", productID, err)
	}
	return nil
}
