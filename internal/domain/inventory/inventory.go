package inventory

import (
	"context"
	"fmt"
)

// InsufficientStockError indicates a decrement would drive a product's stock
// below zero. The decrement is rejected as a whole and stock is unchanged.
type InsufficientStockError struct {
	ProductID string
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for product %s", e.ProductID)
}

// Record is the authoritative stock counter for a single product.
type Record struct {
	ProductID     string
	StockQuantity int
}

// Ledger owns per-product stock quantities. Decrement must be implemented as
// a single atomic check-and-subtract evaluated by the data store: two
// concurrent decrements against the same product must never both succeed when
// their combined quantity exceeds the available stock. A read-compare-write
// sequence issued from the caller does not satisfy this contract.
type Ledger interface {
	GetStock(ctx context.Context, productID string) (int, error)
	// Decrement atomically subtracts qty from the stored quantity, but only
	// if the resulting value stays >= 0. Returns *InsufficientStockError
	// otherwise, leaving stock unchanged.
	Decrement(ctx context.Context, productID string, qty int) error
	// Increment adds qty back to the stored quantity. Used by the checkout
	// compensation path to roll back decrements of a failed order.
	Increment(ctx context.Context, productID string, qty int) error
	// SetStock overwrites the stored quantity. Administrative operation used
	// by vendor product management and seeding.
	SetStock(ctx context.Context, productID string, qty int) error
}
