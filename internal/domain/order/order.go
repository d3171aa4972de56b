package order

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// Status enumerates the order lifecycle states. The happy path is
// pending -> processing -> shipped -> delivered; pending or processing
// orders may be cancelled. Beyond enum membership no transition graph is
// enforced here: which transitions are legal for which caller is a
// role-policy decision made by the handlers.
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusShipped    Status = "shipped"
	StatusDelivered  Status = "delivered"
	StatusCancelled  Status = "cancelled"
)

// ErrUnknownStatus is returned by ParseStatus for values outside the enum.
var ErrUnknownStatus = errors.New("unknown order status")

// ParseStatus validates a raw status value against the known enum.
func ParseStatus(s string) (Status, error) {
	switch Status(s) {
	case StatusPending, StatusProcessing, StatusShipped, StatusDelivered, StatusCancelled:
		return Status(s), nil
	}
	return "", errors.Wrapf(ErrUnknownStatus, "%q", s)
}

var (
	// ErrNotFound is returned when a requested order does not exist.
	ErrNotFound = errors.New("order not found")
	// ErrNumberTaken is returned when the generated order number collides
	// with an existing order. Callers retry with a fresh number.
	ErrNumberTaken = errors.New("order number already taken")
)

// Order is the immutable record of a completed checkout. Total and the items
// are frozen at creation; only Status changes afterwards.
type Order struct {
	ID         string
	Number     string
	CustomerID string
	Status     Status
	Total      decimal.Decimal
	Items      []Item
	CreatedAt  time.Time
}

// Item is a single order line. PriceAtPurchase is the unit price frozen at
// checkout time: it is the audit trail for what was actually sold and is
// immune to later catalog price changes.
type Item struct {
	ProductID       string
	Quantity        int
	PriceAtPurchase decimal.Decimal
}

// ListPage holds one page of a customer's order history.
type ListPage struct {
	Orders []Order
	Total  int
}

// ListParams controls pagination and order-number search for ListByCustomer.
type ListParams struct {
	Page   int
	Limit  int
	Search string
}

// Repository defines persistence operations for orders.
type Repository interface {
	// CreateWithItems persists the order and all of its items as a single
	// transaction: either everything is visible afterwards or nothing is.
	// Returns ErrNumberTaken when the order number is already in use.
	CreateWithItems(ctx context.Context, o *Order) error
	Get(ctx context.Context, id string) (*Order, error)
	ListByCustomer(ctx context.Context, customerID string, p ListParams) (*ListPage, error)
	// UpdateStatus sets the order status. The value has already passed
	// ParseStatus; no transition checks happen here.
	UpdateStatus(ctx context.Context, id string, status Status) error
	// ContainsVendorProduct reports whether any item of the order belongs
	// to the given vendor. Used for the vendor ownership check on status
	// updates; admins bypass it.
	ContainsVendorProduct(ctx context.Context, orderID, vendorID string) (bool, error)
}
