package referral

import (
	"context"
	"time"

	"github.com/go-faster/errors"
)

// EventType enumerates the kinds of referral events. Events form an
// append-only ledger; they are never mutated or deleted.
type EventType string

const (
	EventClick    EventType = "click"
	EventView     EventType = "view"
	EventPurchase EventType = "purchase"
)

var (
	// ErrLinkNotFound is returned when no link exists for a code.
	ErrLinkNotFound = errors.New("referral link not found")
	// ErrInvalidDiscount is returned when a link's discount percent is
	// outside the allowed 0-90 range.
	ErrInvalidDiscount = errors.New("discount percent must be between 0 and 90")
	// ErrNotVendorProduct is returned when a vendor tries to create a link
	// for a product they do not own.
	ErrNotVendorProduct = errors.New("product does not belong to vendor")
	// ErrCodeTaken is returned when a generated code collides with an
	// existing link. The tracker retries with a fresh code.
	ErrCodeTaken = errors.New("referral code already taken")
)

// Link is a vendor-issued trackable code tied to a single product. Immutable
// after creation except the Active flag and expiry.
type Link struct {
	ID              string
	VendorID        string
	ProductID       string
	Code            string
	DiscountPercent int
	ExpiresAt       *time.Time
	Active          bool
	CreatedAt       time.Time
}

// Valid reports whether the link is usable at the given instant: it must be
// active and either carry no expiry or expire in the future. Validity is
// computed at resolution time and never cached.
func (l *Link) Valid(now time.Time) bool {
	if !l.Active {
		return false
	}
	return l.ExpiresAt == nil || l.ExpiresAt.After(now)
}

// Event is one append-only ledger entry tied to a link. CustomerID and
// OrderID are optional; a purchase event links a specific order to a specific
// link, at most once per order.
type Event struct {
	LinkID     string
	Type       EventType
	CustomerID string
	OrderID    string
	Meta       map[string]any
}

// LinkStats aggregates per-link event counts for vendor analytics.
type LinkStats struct {
	Link      Link
	Clicks    int
	Views     int
	Purchases int
}

// Repository defines persistence operations for referral links and events.
type Repository interface {
	// CreateLink persists a new link. Returns ErrCodeTaken when the code
	// collides with an existing one.
	CreateLink(ctx context.Context, l *Link) error
	FindByCode(ctx context.Context, code string) (*Link, error)
	// ListCodes returns every issued code. Used to warm the tracker's
	// negative-cache filter at startup.
	ListCodes(ctx context.Context) ([]string, error)
	AppendEvent(ctx context.Context, e *Event) error
	// StatsByVendor returns per-link event counts for all of the vendor's
	// links, restricted to events inside [from, to] when those are non-zero.
	StatsByVendor(ctx context.Context, vendorID string, from, to time.Time) ([]LinkStats, error)
}
