package cart

import (
	"context"

	"github.com/go-faster/errors"
)

// Sentinel errors for cart operations.
var (
	// ErrInvalidQuantity is returned when a cart mutation carries a
	// non-positive quantity. Quantity is validated here, at mutation time,
	// so checkout never sees a zero or negative line item.
	ErrInvalidQuantity = errors.New("quantity must be greater than 0")
	// ErrItemNotFound is returned when updating or removing a line item
	// that is not in the cart.
	ErrItemNotFound = errors.New("cart item not found")
)

// Cart is the per-customer mutable pre-purchase line-item collection. There
// is exactly one cart per customer, created lazily on first access. Checkout
// empties the cart but never deletes the cart row itself.
type Cart struct {
	ID         string
	CustomerID string
}

// Item is a single line in a cart, keyed by (cart, product).
type Item struct {
	ProductID string
	Quantity  int
}

// Repository defines persistence operations for carts and their items.
type Repository interface {
	// GetOrCreate returns the customer's cart, creating it on first access.
	GetOrCreate(ctx context.Context, customerID string) (*Cart, error)
	Items(ctx context.Context, cartID string) ([]Item, error)
	// Upsert adds qty to an existing line item's quantity, or inserts a new
	// line item when none exists for the product.
	Upsert(ctx context.Context, cartID, productID string, qty int) error
	// UpdateQuantity replaces a line item's quantity.
	UpdateQuantity(ctx context.Context, cartID, productID string, qty int) error
	Remove(ctx context.Context, cartID, productID string) error
	// Clear deletes all line items, keeping the cart row.
	Clear(ctx context.Context, cartID string) error
}
