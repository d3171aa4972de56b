package referral

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"sync"
	"time"

	"github.com/bits-and-blooms/bloom/v3"
	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/xenking/bazaar-api/internal/domain/catalog"
)

const (
	codeBytes = 6 // 12 hex characters

	// Filter sizing: /r/{code} is unauthenticated, so the filter absorbs
	// junk-code probes without a database round trip. A false positive
	// merely costs one lookup.
	filterCapacity = 1_000_000
	filterFPR      = 0.001

	codeRetries = 5
)

// Tracker owns referral-link resolution, click/view/purchase event logging,
// and per-link analytics. The checkout orchestrator calls PurchaseEvent; the
// public referral endpoints call Resolve and LogView.
type Tracker struct {
	repo     Repository
	products catalog.Repository
	now      func() time.Time

	// filterMu guards the bloom filter: codes are added on link creation
	// and tested on every resolve. Codes are never removed, which matches
	// links never being deleted.
	filterMu sync.RWMutex
	filter   *bloom.BloomFilter
}

// NewTracker creates a Tracker. Call Warm before serving to seed the
// negative-cache filter with already-issued codes.
func NewTracker(repo Repository, products catalog.Repository) *Tracker {
	return &Tracker{
		repo:     repo,
		products: products,
		now:      time.Now,
		filter:   bloom.NewWithEstimates(filterCapacity, filterFPR),
	}
}

// Warm seeds the code filter from the repository.
func (t *Tracker) Warm(ctx context.Context) error {
	codes, err := t.repo.ListCodes(ctx)
	if err != nil {
		return errors.Wrap(err, "list referral codes")
	}

	t.filterMu.Lock()
	defer t.filterMu.Unlock()
	for _, code := range codes {
		t.filter.AddString(code)
	}
	return nil
}

// CreateLink issues a new referral link for one of the vendor's products.
// The discount percent must be within [0, 90] and the product must belong to
// the vendor. Code collisions are retried with fresh random codes.
func (t *Tracker) CreateLink(ctx context.Context, vendorID, productID string, discountPercent int, expiresAt *time.Time) (*Link, error) {
	if discountPercent < 0 || discountPercent > 90 {
		return nil, ErrInvalidDiscount
	}

	p, err := t.products.GetByID(ctx, productID)
	if err != nil {
		return nil, errors.Wrapf(err, "get product %s", productID)
	}
	if p.VendorID != vendorID {
		return nil, ErrNotVendorProduct
	}

	l := &Link{
		ID:              uuid.New().String(),
		VendorID:        vendorID,
		ProductID:       productID,
		DiscountPercent: discountPercent,
		ExpiresAt:       expiresAt,
		Active:          true,
	}

	for attempt := 0; attempt < codeRetries; attempt++ {
		l.Code = newCode()
		err = t.repo.CreateLink(ctx, l)
		if err == nil {
			t.filterMu.Lock()
			t.filter.AddString(l.Code)
			t.filterMu.Unlock()
			return l, nil
		}
		if !errors.Is(err, ErrCodeTaken) {
			return nil, errors.Wrap(err, "create referral link")
		}
	}
	return nil, errors.Wrap(err, "generate unique referral code")
}

// Resolve looks up a link by code and appends a click event. The click is
// logged even when the link is no longer valid: invalid-link traffic is
// useful for abuse analytics. Validity is computed against the current clock
// on every call.
func (t *Tracker) Resolve(ctx context.Context, code, customerID string) (*Link, bool, error) {
	t.filterMu.RLock()
	known := t.filter.TestString(code)
	t.filterMu.RUnlock()
	if !known {
		return nil, false, ErrLinkNotFound
	}

	l, err := t.repo.FindByCode(ctx, code)
	if err != nil {
		return nil, false, err
	}

	valid := l.Valid(t.now())
	t.logEvent(ctx, &Event{
		LinkID:     l.ID,
		Type:       EventClick,
		CustomerID: customerID,
		Meta:       map[string]any{"isValid": valid},
	})

	return l, valid, nil
}

// LogView appends a view event for the link behind the given code.
func (t *Tracker) LogView(ctx context.Context, code, customerID string) error {
	l, err := t.repo.FindByCode(ctx, code)
	if err != nil {
		return err
	}
	t.logEvent(ctx, &Event{
		LinkID:     l.ID,
		Type:       EventView,
		CustomerID: customerID,
		Meta:       map[string]any{"productId": l.ProductID},
	})
	return nil
}

// PurchaseEvent appends a purchase event tying an order to a link. Called by
// the checkout orchestrator only; a missing or stale code has already been
// filtered out by ResolveForPurchase.
func (t *Tracker) PurchaseEvent(ctx context.Context, linkID, orderID, customerID string, meta map[string]any) error {
	return t.repo.AppendEvent(ctx, &Event{
		LinkID:     linkID,
		Type:       EventPurchase,
		CustomerID: customerID,
		OrderID:    orderID,
		Meta:       meta,
	})
}

// ResolveForPurchase resolves a code without logging a click event. Returns
// ErrLinkNotFound for unknown codes; the checkout path treats that as "no
// attribution", not as a failure.
func (t *Tracker) ResolveForPurchase(ctx context.Context, code string) (*Link, error) {
	t.filterMu.RLock()
	known := t.filter.TestString(code)
	t.filterMu.RUnlock()
	if !known {
		return nil, ErrLinkNotFound
	}
	return t.repo.FindByCode(ctx, code)
}

// LinkReport is one row of vendor referral analytics.
type LinkReport struct {
	Code            string
	ProductID       string
	DiscountPercent int
	CreatedAt       time.Time
	Active          bool
	ExpiresAt       *time.Time
	Clicks          int
	Views           int
	Purchases       int
	// ConversionRate is purchases/clicks as a percentage, 0 when the link
	// has no clicks.
	ConversionRate float64
}

// Totals aggregates event counts across all of a vendor's links.
type Totals struct {
	Clicks    int
	Views     int
	Purchases int
}

// VendorAnalytics returns per-link reports plus totals for the vendor's
// links, restricted to events inside [from, to] when those are non-zero.
func (t *Tracker) VendorAnalytics(ctx context.Context, vendorID string, from, to time.Time) ([]LinkReport, Totals, error) {
	stats, err := t.repo.StatsByVendor(ctx, vendorID, from, to)
	if err != nil {
		return nil, Totals{}, errors.Wrap(err, "referral stats")
	}

	reports := make([]LinkReport, len(stats))
	var totals Totals
	for i, s := range stats {
		rate := 0.0
		if s.Clicks > 0 {
			rate = float64(s.Purchases) / float64(s.Clicks) * 100
		}
		reports[i] = LinkReport{
			Code:            s.Link.Code,
			ProductID:       s.Link.ProductID,
			DiscountPercent: s.Link.DiscountPercent,
			CreatedAt:       s.Link.CreatedAt,
			Active:          s.Link.Active,
			ExpiresAt:       s.Link.ExpiresAt,
			Clicks:          s.Clicks,
			Views:           s.Views,
			Purchases:       s.Purchases,
			ConversionRate:  rate,
		}
		totals.Clicks += s.Clicks
		totals.Views += s.Views
		totals.Purchases += s.Purchases
	}
	return reports, totals, nil
}

// logEvent appends an event, logging failures instead of propagating them.
// Event writes are best-effort relative to the caller's result.
func (t *Tracker) logEvent(ctx context.Context, e *Event) {
	if err := t.repo.AppendEvent(ctx, e); err != nil {
		zctx.From(ctx).Warn("Failed to log referral event",
			zap.String("link_id", e.LinkID),
			zap.String("type", string(e.Type)),
			zap.Error(err),
		)
	}
}

// newCode returns a 12-character lowercase hex referral code.
func newCode() string {
	buf := make([]byte, codeBytes)
	if _, err := rand.Read(buf); err != nil {
		// Entropy exhaustion is not recoverable here; fall back to a UUID
		// fragment, which keeps the 12-char hex shape.
		u := uuid.New()
		return hex.EncodeToString(u[:codeBytes])
	}
	return hex.EncodeToString(buf)
}
