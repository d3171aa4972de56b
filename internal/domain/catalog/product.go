package catalog

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// ErrNotFound is returned when a requested product does not exist.
var ErrNotFound = errors.New("product not found")

// Product is the read-only view of a catalog item as seen by the checkout
// path. Price and Active must always be re-read at checkout time; values
// cached alongside the cart are advisory only.
type Product struct {
	ID       string
	VendorID string
	Name     string
	Price    decimal.Decimal
	ImageURL string
	Active   bool
}

// Repository defines read operations against the product catalog.
type Repository interface {
	GetByID(ctx context.Context, id string) (*Product, error)
	// GetByIDs returns the products matching any of the given IDs. Missing
	// IDs are simply absent from the result; callers decide how to treat
	// them (the checkout path treats a vanished product as inactive).
	GetByIDs(ctx context.Context, ids []string) ([]Product, error)
}
