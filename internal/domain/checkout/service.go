// Package checkout implements the cart-to-order pipeline: stock and activity
// validation, total computation, order persistence, inventory decrement with
// compensation, referral attribution, and cart clearing.
package checkout

import (
	"context"
	"fmt"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"

	"github.com/xenking/bazaar-api/internal/domain/cart"
	"github.com/xenking/bazaar-api/internal/domain/catalog"
	"github.com/xenking/bazaar-api/internal/domain/inventory"
	"github.com/xenking/bazaar-api/internal/domain/order"
	"github.com/xenking/bazaar-api/internal/domain/referral"
)

// ErrEmptyCart is returned when the customer has no cart or the cart holds
// no items.
var ErrEmptyCart = errors.New("cart is empty")

// ProductInactiveError indicates a cart references a product that is no
// longer purchasable. A product deleted from the catalog is reported the
// same way.
type ProductInactiveError struct {
	ProductID string
}

func (e *ProductInactiveError) Error() string {
	return fmt.Sprintf("product %s is inactive", e.ProductID)
}

// Summary is the customer-facing result of a successful checkout.
type Summary struct {
	OrderID     string
	OrderNumber string
	Total       decimal.Decimal
	Status      order.Status
}

// Metrics counts checkout outcomes. A nil *Metrics disables counting.
type Metrics struct {
	placed   metric.Int64Counter
	rejected metric.Int64Counter
}

// NewMetrics registers the checkout outcome counters on the given meter.
func NewMetrics(meter metric.Meter) (*Metrics, error) {
	placed, err := meter.Int64Counter("checkout.orders.placed",
		metric.WithDescription("Orders successfully placed"))
	if err != nil {
		return nil, errors.Wrap(err, "placed counter")
	}
	rejected, err := meter.Int64Counter("checkout.orders.rejected",
		metric.WithDescription("Checkout attempts rejected, by reason"))
	if err != nil {
		return nil, errors.Wrap(err, "rejected counter")
	}
	return &Metrics{placed: placed, rejected: rejected}, nil
}

func (m *Metrics) addPlaced(ctx context.Context) {
	if m != nil {
		m.placed.Add(ctx, 1)
	}
}

func (m *Metrics) addRejected(ctx context.Context, reason string) {
	if m != nil {
		m.rejected.Add(ctx, 1, metric.WithAttributes(attribute.String("reason", reason)))
	}
}

// Service is the checkout orchestrator. It consumes a read-only view of the
// catalog and the customer's cart, and emits an order, inventory decrements,
// a cart clear, and optionally a referral purchase event.
type Service struct {
	carts    cart.Repository
	catalog  catalog.Repository
	ledger   inventory.Ledger
	orders   order.Repository
	referral *referral.Tracker
	metrics  *Metrics
	now      func() time.Time
}

// NewService creates a checkout Service. The referral tracker and metrics
// may be nil; checkout then skips attribution and counting.
func NewService(
	carts cart.Repository,
	cat catalog.Repository,
	ledger inventory.Ledger,
	orders order.Repository,
	tracker *referral.Tracker,
	metrics *Metrics,
) *Service {
	return &Service{
		carts:    carts,
		catalog:  cat,
		ledger:   ledger,
		orders:   orders,
		referral: tracker,
		metrics:  metrics,
		now:      time.Now,
	}
}

const numberRetries = 3

// Checkout converts the customer's cart into a pending order.
//
// The advisory stock pre-check rejects obviously invalid carts before any
// mutation; the ledger's atomic decrement remains the authoritative guard
// under concurrency. On a partial decrement failure the already-applied
// decrements are compensated and the order is marked cancelled, so no
// inconsistent stock is left behind. A referral code that does not resolve
// is ignored: attribution is best-effort.
func (s *Service) Checkout(ctx context.Context, customerID, referralCode string) (*Summary, error) {
	lg := zctx.From(ctx)

	// Step 1: resolve the cart and its items.
	c, err := s.carts.GetOrCreate(ctx, customerID)
	if err != nil {
		return nil, errors.Wrap(err, "get cart")
	}
	items, err := s.carts.Items(ctx, c.ID)
	if err != nil {
		return nil, errors.Wrap(err, "get cart items")
	}
	if len(items) == 0 {
		s.metrics.addRejected(ctx, "empty_cart")
		return nil, ErrEmptyCart
	}

	// Step 2: snapshot products at current catalog state. Prices cached in
	// the cart are never trusted.
	ids := make([]string, len(items))
	for i, it := range items {
		ids[i] = it.ProductID
	}
	fetched, err := s.catalog.GetByIDs(ctx, ids)
	if err != nil {
		return nil, errors.Wrap(err, "snapshot products")
	}
	products := make(map[string]catalog.Product, len(fetched))
	for _, p := range fetched {
		products[p.ID] = p
	}

	// Advisory validation: inactive products and visibly short stock fail
	// fast, before any mutation. The atomic decrement below is the real
	// stock guard.
	for _, it := range items {
		p, ok := products[it.ProductID]
		if !ok || !p.Active {
			s.metrics.addRejected(ctx, "product_inactive")
			return nil, &ProductInactiveError{ProductID: it.ProductID}
		}
		stock, err := s.ledger.GetStock(ctx, it.ProductID)
		if err != nil {
			return nil, errors.Wrapf(err, "get stock %s", it.ProductID)
		}
		if stock < it.Quantity {
			s.metrics.addRejected(ctx, "insufficient_stock")
			return nil, &inventory.InsufficientStockError{ProductID: it.ProductID}
		}
	}

	// Step 3: total from snapshot prices.
	orderItems := make([]order.Item, len(items))
	total := decimal.Zero
	for i, it := range items {
		p := products[it.ProductID]
		orderItems[i] = order.Item{
			ProductID:       it.ProductID,
			Quantity:        it.Quantity,
			PriceAtPurchase: p.Price,
		}
		total = total.Add(p.Price.Mul(decimal.NewFromInt(int64(it.Quantity))))
	}
	total = total.Round(2)

	// Steps 4-5: persist order + items as one unit, retrying the
	// time-derived number with random ones on collision.
	o := &order.Order{
		ID:         uuid.New().String(),
		CustomerID: customerID,
		Status:     order.StatusPending,
		Total:      total,
		Items:      orderItems,
	}
	o.Number = order.NumberFromTime(s.now())
	for attempt := 0; ; attempt++ {
		err = s.orders.CreateWithItems(ctx, o)
		if err == nil {
			break
		}
		if !errors.Is(err, order.ErrNumberTaken) || attempt >= numberRetries {
			return nil, errors.Wrap(err, "create order")
		}
		o.Number = order.RandomNumber()
	}

	// Step 6: decrement inventory per item, compensating on partial failure.
	if err := s.decrementAll(ctx, o); err != nil {
		var ise *inventory.InsufficientStockError
		if errors.As(err, &ise) {
			s.metrics.addRejected(ctx, "insufficient_stock")
		}
		return nil, err
	}

	// Step 7: best-effort referral attribution.
	if referralCode != "" {
		s.attribute(ctx, referralCode, o)
	}

	// Step 8: clear the cart, keeping the cart row. A failure here leaves a
	// paid-for order intact, so it is surfaced but the order stands.
	if err := s.carts.Clear(ctx, c.ID); err != nil {
		lg.Error("Failed to clear cart after checkout",
			zap.String("cart_id", c.ID),
			zap.String("order_id", o.ID),
			zap.Error(err),
		)
	}

	s.metrics.addPlaced(ctx)
	lg.Info("Order placed",
		zap.String("order_id", o.ID),
		zap.String("order_number", o.Number),
		zap.String("total", total.String()),
	)

	return &Summary{
		OrderID:     o.ID,
		OrderNumber: o.Number,
		Total:       total,
		Status:      order.StatusPending,
	}, nil
}

// decrementAll applies the order's inventory decrements one by one. When a
// decrement fails, the already-applied ones are re-incremented and the order
// is marked cancelled, so the caller never observes partial stock mutations
// alongside a pending order.
func (s *Service) decrementAll(ctx context.Context, o *order.Order) error {
	for i, it := range o.Items {
		err := s.ledger.Decrement(ctx, it.ProductID, it.Quantity)
		if err == nil {
			continue
		}

		s.compensate(ctx, o, i)

		var ise *inventory.InsufficientStockError
		if errors.As(err, &ise) {
			return err
		}
		return errors.Wrapf(err, "decrement stock %s", it.ProductID)
	}
	return nil
}

// compensate rolls back the first applied decrements of a failed order and
// marks the order cancelled.
func (s *Service) compensate(ctx context.Context, o *order.Order, applied int) {
	lg := zctx.From(ctx)
	for _, done := range o.Items[:applied] {
		if err := s.ledger.Increment(ctx, done.ProductID, done.Quantity); err != nil {
			// Nothing left to do but record it: the increment is the
			// compensation itself.
			lg.Error("Compensating increment failed",
				zap.String("order_id", o.ID),
				zap.String("product_id", done.ProductID),
				zap.Int("quantity", done.Quantity),
				zap.Error(err),
			)
		}
	}
	if err := s.orders.UpdateStatus(ctx, o.ID, order.StatusCancelled); err != nil {
		lg.Error("Failed to cancel order after decrement failure",
			zap.String("order_id", o.ID),
			zap.Error(err),
		)
	}
}

// attribute resolves the referral code and appends a purchase event. Any
// failure is logged and swallowed: attribution never fails a checkout, and
// an unknown code is simply ignored.
func (s *Service) attribute(ctx context.Context, code string, o *order.Order) {
	if s.referral == nil {
		return
	}
	lg := zctx.From(ctx)

	link, err := s.referral.ResolveForPurchase(ctx, code)
	if err != nil {
		if !errors.Is(err, referral.ErrLinkNotFound) {
			lg.Warn("Referral code resolution failed",
				zap.String("code", code),
				zap.Error(err),
			)
		}
		return
	}

	meta := map[string]any{"total": o.Total.String()}
	if err := s.referral.PurchaseEvent(ctx, link.ID, o.ID, o.CustomerID, meta); err != nil {
		lg.Warn("Failed to record referral purchase event",
			zap.String("link_id", link.ID),
			zap.String("order_id", o.ID),
			zap.Error(err),
		)
	}
}
