package handler

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenking/bazaar-api/internal/domain/auth"
	"github.com/xenking/bazaar-api/internal/domain/cart"
	"github.com/xenking/bazaar-api/internal/domain/catalog"
	"github.com/xenking/bazaar-api/internal/domain/checkout"
	"github.com/xenking/bazaar-api/internal/domain/inventory"
	"github.com/xenking/bazaar-api/internal/domain/order"
	"github.com/xenking/bazaar-api/internal/domain/referral"
)

const testPepper = "test-pepper"

// --- Mock implementations ---

type mockCartRepo struct {
	items   map[string][]cart.Item
	cleared map[string]bool
}

func newCartRepo() *mockCartRepo {
	return &mockCartRepo{items: make(map[string][]cart.Item), cleared: make(map[string]bool)}
}

func (m *mockCartRepo) put(customerID string, items ...cart.Item) {
	m.items["cart-"+customerID] = items
}

func (m *mockCartRepo) GetOrCreate(_ context.Context, customerID string) (*cart.Cart, error) {
	return &cart.Cart{ID: "cart-" + customerID, CustomerID: customerID}, nil
}

func (m *mockCartRepo) Items(_ context.Context, cartID string) ([]cart.Item, error) {
	return m.items[cartID], nil
}

func (m *mockCartRepo) Upsert(_ context.Context, cartID, productID string, qty int) error {
	for i, it := range m.items[cartID] {
		if it.ProductID == productID {
			m.items[cartID][i].Quantity += qty
			return nil
		}
	}
	m.items[cartID] = append(m.items[cartID], cart.Item{ProductID: productID, Quantity: qty})
	return nil
}

func (m *mockCartRepo) UpdateQuantity(_ context.Context, cartID, productID string, qty int) error {
	for i, it := range m.items[cartID] {
		if it.ProductID == productID {
			m.items[cartID][i].Quantity = qty
			return nil
		}
	}
	return cart.ErrItemNotFound
}

func (m *mockCartRepo) Remove(_ context.Context, cartID, productID string) error {
	for i, it := range m.items[cartID] {
		if it.ProductID == productID {
			m.items[cartID] = append(m.items[cartID][:i], m.items[cartID][i+1:]...)
			return nil
		}
	}
	return cart.ErrItemNotFound
}

func (m *mockCartRepo) Clear(_ context.Context, cartID string) error {
	m.cleared[cartID] = true
	m.items[cartID] = nil
	return nil
}

type mockCatalogRepo struct {
	byID map[string]catalog.Product
}

func newCatalogRepo(products ...catalog.Product) *mockCatalogRepo {
	byID := make(map[string]catalog.Product, len(products))
	for _, p := range products {
		byID[p.ID] = p
	}
	return &mockCatalogRepo{byID: byID}
}

func (m *mockCatalogRepo) GetByID(_ context.Context, id string) (*catalog.Product, error) {
	p, ok := m.byID[id]
	if !ok {
		return nil, catalog.ErrNotFound
	}
	return &p, nil
}

func (m *mockCatalogRepo) GetByIDs(_ context.Context, ids []string) ([]catalog.Product, error) {
	out := make([]catalog.Product, 0, len(ids))
	for _, id := range ids {
		if p, ok := m.byID[id]; ok {
			out = append(out, p)
		}
	}
	return out, nil
}

type memLedger struct {
	stock map[string]int
}

func (l *memLedger) GetStock(_ context.Context, productID string) (int, error) {
	return l.stock[productID], nil
}

func (l *memLedger) Decrement(_ context.Context, productID string, qty int) error {
	if l.stock[productID] < qty {
		return &inventory.InsufficientStockError{ProductID: productID}
	}
	l.stock[productID] -= qty
	return nil
}

func (l *memLedger) Increment(_ context.Context, productID string, qty int) error {
	l.stock[productID] += qty
	return nil
}

func (l *memLedger) SetStock(_ context.Context, productID string, qty int) error {
	l.stock[productID] = qty
	return nil
}

type mockOrderRepo struct {
	created      []*order.Order
	byID         map[string]*order.Order
	statuses     map[string]order.Status
	page         *order.ListPage
	vendorOwns   bool
	lastListArgs order.ListParams
}

func newOrderRepo() *mockOrderRepo {
	return &mockOrderRepo{
		byID:     make(map[string]*order.Order),
		statuses: make(map[string]order.Status),
		page:     &order.ListPage{},
	}
}

func (m *mockOrderRepo) CreateWithItems(_ context.Context, o *order.Order) error {
	cp := *o
	m.created = append(m.created, &cp)
	m.byID[o.ID] = &cp
	return nil
}

func (m *mockOrderRepo) Get(_ context.Context, id string) (*order.Order, error) {
	o, ok := m.byID[id]
	if !ok {
		return nil, order.ErrNotFound
	}
	return o, nil
}

func (m *mockOrderRepo) ListByCustomer(_ context.Context, _ string, p order.ListParams) (*order.ListPage, error) {
	m.lastListArgs = p
	return m.page, nil
}

func (m *mockOrderRepo) UpdateStatus(_ context.Context, id string, status order.Status) error {
	if _, ok := m.byID[id]; !ok {
		return order.ErrNotFound
	}
	m.statuses[id] = status
	return nil
}

func (m *mockOrderRepo) ContainsVendorProduct(_ context.Context, _, _ string) (bool, error) {
	return m.vendorOwns, nil
}

type mockReferralRepo struct {
	byCode map[string]*referral.Link
	events []*referral.Event
	stats  []referral.LinkStats
}

func newReferralRepo(links ...*referral.Link) *mockReferralRepo {
	byCode := make(map[string]*referral.Link, len(links))
	for _, l := range links {
		byCode[l.Code] = l
	}
	return &mockReferralRepo{byCode: byCode}
}

func (m *mockReferralRepo) CreateLink(_ context.Context, l *referral.Link) error {
	m.byCode[l.Code] = l
	return nil
}

func (m *mockReferralRepo) FindByCode(_ context.Context, code string) (*referral.Link, error) {
	l, ok := m.byCode[code]
	if !ok {
		return nil, referral.ErrLinkNotFound
	}
	return l, nil
}

func (m *mockReferralRepo) ListCodes(_ context.Context) ([]string, error) {
	codes := make([]string, 0, len(m.byCode))
	for c := range m.byCode {
		codes = append(codes, c)
	}
	return codes, nil
}

func (m *mockReferralRepo) AppendEvent(_ context.Context, e *referral.Event) error {
	m.events = append(m.events, e)
	return nil
}

func (m *mockReferralRepo) StatsByVendor(_ context.Context, _ string, _, _ time.Time) ([]referral.LinkStats, error) {
	return m.stats, nil
}

type mockAPIKeyRepo struct {
	byHash map[string]*auth.APIKeyInfo
}

func (m *mockAPIKeyRepo) FindByHash(_ context.Context, hash string) (*auth.APIKeyInfo, error) {
	info, ok := m.byHash[hash]
	if !ok {
		return nil, auth.ErrUnauthorized
	}
	return info, nil
}

// --- Helpers ---

func hashKey(key string) string {
	mac := hmac.New(sha256.New, []byte(testPepper))
	mac.Write([]byte(key))
	return hex.EncodeToString(mac.Sum(nil))
}

func newKeyRepo() *mockAPIKeyRepo {
	byHash := make(map[string]*auth.APIKeyInfo)
	for _, k := range []struct {
		key     string
		role    auth.Role
		subject string
	}{
		{"customer-key", auth.RoleCustomer, "cust-1"},
		{"vendor-key", auth.RoleVendor, "v1"},
		{"admin-key", auth.RoleAdmin, ""},
	} {
		h := hashKey(k.key)
		byHash[h] = &auth.APIKeyInfo{
			ID:        "key-" + string(k.role),
			KeyHash:   h,
			Name:      string(k.role),
			Role:      k.role,
			SubjectID: k.subject,
		}
	}
	return &mockAPIKeyRepo{byHash: byHash}
}

func testProduct(id, vendorID, price string, active bool) catalog.Product {
	return catalog.Product{
		ID:       id,
		VendorID: vendorID,
		Name:     "Product " + id,
		Price:    decimal.RequireFromString(price),
		ImageURL: "https://cdn.example/" + id + ".jpg",
		Active:   active,
	}
}

type fixture struct {
	carts   *mockCartRepo
	catalog *mockCatalogRepo
	ledger  *memLedger
	orders  *mockOrderRepo
	refRepo *mockReferralRepo
	tracker *referral.Tracker
	mux     *http.ServeMux
}

func newFixture(t *testing.T, products []catalog.Product, stock map[string]int, links ...*referral.Link) *fixture {
	t.Helper()
	if stock == nil {
		stock = make(map[string]int)
	}

	f := &fixture{
		carts:   newCartRepo(),
		catalog: newCatalogRepo(products...),
		ledger:  &memLedger{stock: stock},
		orders:  newOrderRepo(),
		refRepo: newReferralRepo(links...),
	}
	f.tracker = referral.NewTracker(f.refRepo, f.catalog)
	require.NoError(t, f.tracker.Warm(context.Background()))

	svc := checkout.NewService(f.carts, f.catalog, f.ledger, f.orders, f.tracker, nil)
	authn := NewAuthenticator(newKeyRepo(), []byte(testPepper))
	f.mux = New(f.carts, f.catalog, f.ledger, f.orders, svc, f.tracker, authn).Routes()
	return f
}

func (f *fixture) do(t *testing.T, method, path, apiKey, body string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()

	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if apiKey != "" {
		req.Header.Set("api_key", apiKey)
	}

	rec := httptest.NewRecorder()
	f.mux.ServeHTTP(rec, req)

	var decoded map[string]any
	if rec.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &decoded))
	}
	return rec, decoded
}

// --- Tests ---

func TestAuth_MissingKey(t *testing.T) {
	f := newFixture(t, nil, nil)

	rec, body := f.do(t, http.MethodPost, "/api/checkout", "", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "unauthorized", body["message"])
}

func TestAuth_UnknownKey(t *testing.T) {
	f := newFixture(t, nil, nil)

	rec, _ := f.do(t, http.MethodGet, "/api/cart", "no-such-key", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestAuth_WrongRole(t *testing.T) {
	f := newFixture(t, nil, nil)

	// A vendor key cannot check out.
	rec, body := f.do(t, http.MethodPost, "/api/checkout", "vendor-key", "")
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, "forbidden", body["message"])

	// A customer key cannot mint referral links.
	rec, _ = f.do(t, http.MethodPost, "/api/vendor/referrals/links", "customer-key", `{"productId":"p1"}`)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestCheckout_OK(t *testing.T) {
	f := newFixture(t, []catalog.Product{testProduct("p1", "v1", "10.00", true)}, map[string]int{"p1": 5})
	f.carts.put("cust-1", cart.Item{ProductID: "p1", Quantity: 3})

	rec, body := f.do(t, http.MethodPost, "/api/checkout", "customer-key", "{}")
	require.Equal(t, http.StatusCreated, rec.Code)

	assert.Regexp(t, `^ORD-\d{6}$`, body["orderNumber"])
	assert.Equal(t, "pending", body["status"])
	assert.InDelta(t, 30.0, body["total"], 1e-9)

	assert.Equal(t, 2, f.ledger.stock["p1"])
	assert.True(t, f.carts.cleared["cart-cust-1"])
}

func TestCheckout_EmptyCart(t *testing.T) {
	f := newFixture(t, nil, nil)

	rec, body := f.do(t, http.MethodPost, "/api/checkout", "customer-key", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "cart is empty", body["message"])
}

func TestCheckout_InsufficientStock(t *testing.T) {
	f := newFixture(t, []catalog.Product{testProduct("p1", "v1", "10.00", true)}, map[string]int{"p1": 1})
	f.carts.put("cust-1", cart.Item{ProductID: "p1", Quantity: 2})

	rec, body := f.do(t, http.MethodPost, "/api/checkout", "customer-key", "{}")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "p1", body["productId"])
}

func TestCheckout_InactiveProduct(t *testing.T) {
	f := newFixture(t, []catalog.Product{testProduct("p1", "v1", "10.00", false)}, map[string]int{"p1": 5})
	f.carts.put("cust-1", cart.Item{ProductID: "p1", Quantity: 1})

	rec, body := f.do(t, http.MethodPost, "/api/checkout", "customer-key", "{}")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "p1", body["productId"])
}

func TestCheckout_WithReferral(t *testing.T) {
	link := &referral.Link{ID: "link-1", VendorID: "v1", ProductID: "p1", Code: "abcdef123456", Active: true}
	f := newFixture(t, []catalog.Product{testProduct("p1", "v1", "10.00", true)}, map[string]int{"p1": 5}, link)
	f.carts.put("cust-1", cart.Item{ProductID: "p1", Quantity: 1})

	rec, _ := f.do(t, http.MethodPost, "/api/checkout", "customer-key", `{"referralCode":"abcdef123456"}`)
	require.Equal(t, http.StatusCreated, rec.Code)

	require.Len(t, f.refRepo.events, 1)
	assert.Equal(t, referral.EventPurchase, f.refRepo.events[0].Type)
}

func TestGetCart(t *testing.T) {
	f := newFixture(t, []catalog.Product{testProduct("p1", "v1", "10.00", true)}, map[string]int{"p1": 5})
	f.carts.put("cust-1", cart.Item{ProductID: "p1", Quantity: 2})

	rec, body := f.do(t, http.MethodGet, "/api/cart", "customer-key", "")
	require.Equal(t, http.StatusOK, rec.Code)

	items := body["items"].([]any)
	require.Len(t, items, 1)
	item := items[0].(map[string]any)
	assert.Equal(t, "p1", item["productId"])
	assert.InDelta(t, 20.0, item["lineTotal"], 1e-9)
	assert.InDelta(t, 20.0, body["subtotal"], 1e-9)
}

func TestAddCartItem(t *testing.T) {
	f := newFixture(t, []catalog.Product{testProduct("p1", "v1", "10.00", true)}, map[string]int{"p1": 5})

	rec, _ := f.do(t, http.MethodPost, "/api/cart/items", "customer-key", `{"productId":"p1","quantity":2}`)
	require.Equal(t, http.StatusCreated, rec.Code)
	require.Len(t, f.carts.items["cart-cust-1"], 1)
	assert.Equal(t, 2, f.carts.items["cart-cust-1"][0].Quantity)

	// Adding the same product stacks quantities.
	rec, _ = f.do(t, http.MethodPost, "/api/cart/items", "customer-key", `{"productId":"p1","quantity":1}`)
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, 3, f.carts.items["cart-cust-1"][0].Quantity)
}

func TestAddCartItem_Errors(t *testing.T) {
	f := newFixture(t, []catalog.Product{testProduct("p1", "v1", "10.00", true)}, map[string]int{"p1": 1})

	rec, _ := f.do(t, http.MethodPost, "/api/cart/items", "customer-key", `{"productId":"missing"}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec, body := f.do(t, http.MethodPost, "/api/cart/items", "customer-key", `{"productId":"p1","quantity":5}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "p1", body["productId"])

	rec, _ = f.do(t, http.MethodPost, "/api/cart/items", "customer-key", `{"productId":"p1","quantity":0}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, _ = f.do(t, http.MethodPost, "/api/cart/items", "customer-key", `{"quantity":1}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestUpdateCartItem(t *testing.T) {
	f := newFixture(t, []catalog.Product{testProduct("p1", "v1", "10.00", true)}, map[string]int{"p1": 5})
	f.carts.put("cust-1", cart.Item{ProductID: "p1", Quantity: 1})

	rec, _ := f.do(t, http.MethodPatch, "/api/cart/items/p1", "customer-key", `{"quantity":4}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 4, f.carts.items["cart-cust-1"][0].Quantity)

	// Quantity is mandatory on update.
	rec, _ = f.do(t, http.MethodPatch, "/api/cart/items/p1", "customer-key", `{}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, _ = f.do(t, http.MethodPatch, "/api/cart/items/p2", "customer-key", `{"quantity":1}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRemoveCartItem(t *testing.T) {
	f := newFixture(t, []catalog.Product{testProduct("p1", "v1", "10.00", true)}, map[string]int{"p1": 5})
	f.carts.put("cust-1", cart.Item{ProductID: "p1", Quantity: 1})

	rec, _ := f.do(t, http.MethodDelete, "/api/cart/items/p1", "customer-key", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, f.carts.items["cart-cust-1"])

	rec, _ = f.do(t, http.MethodDelete, "/api/cart/items/p1", "customer-key", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestListOrders_Pagination(t *testing.T) {
	f := newFixture(t, nil, nil)
	f.orders.page = &order.ListPage{Total: 42}

	rec, body := f.do(t, http.MethodGet, "/api/orders?page=3&limit=50&search=ORD", "customer-key", "")
	require.Equal(t, http.StatusOK, rec.Code)

	// The limit is clamped to the maximum page size.
	assert.Equal(t, order.ListParams{Page: 3, Limit: 20, Search: "ORD"}, f.orders.lastListArgs)

	p := body["pagination"].(map[string]any)
	assert.InDelta(t, 3, p["page"], 0)
	assert.InDelta(t, 20, p["limit"], 0)
	assert.InDelta(t, 42, p["total"], 0)
	assert.InDelta(t, 3, p["totalPages"], 0)
}

func TestGetOrder(t *testing.T) {
	f := newFixture(t, nil, nil)
	f.orders.byID["o1"] = &order.Order{
		ID:         "o1",
		Number:     "ORD-000001",
		CustomerID: "cust-1",
		Status:     order.StatusPending,
		Total:      decimal.RequireFromString("30.00"),
		CreatedAt:  time.Now(),
	}

	rec, body := f.do(t, http.MethodGet, "/api/orders/o1", "customer-key", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ORD-000001", body["orderNumber"])
}

func TestGetOrder_ForeignReadsAsNotFound(t *testing.T) {
	f := newFixture(t, nil, nil)
	f.orders.byID["o1"] = &order.Order{ID: "o1", CustomerID: "someone-else"}

	rec, _ := f.do(t, http.MethodGet, "/api/orders/o1", "customer-key", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec, _ = f.do(t, http.MethodGet, "/api/orders/missing", "customer-key", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestUpdateOrderStatus_Admin(t *testing.T) {
	f := newFixture(t, nil, nil)
	f.orders.byID["o1"] = &order.Order{ID: "o1", CustomerID: "cust-1"}

	rec, body := f.do(t, http.MethodPatch, "/api/orders/o1/status", "admin-key", `{"status":"shipped"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "shipped", body["status"])
	assert.Equal(t, order.StatusShipped, f.orders.statuses["o1"])
}

func TestUpdateOrderStatus_InvalidValue(t *testing.T) {
	f := newFixture(t, nil, nil)
	f.orders.byID["o1"] = &order.Order{ID: "o1"}

	rec, body := f.do(t, http.MethodPatch, "/api/orders/o1/status", "admin-key", `{"status":"refunded"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "invalid status", body["message"])
}

func TestUpdateOrderStatus_VendorOwnership(t *testing.T) {
	f := newFixture(t, nil, nil)
	f.orders.byID["o1"] = &order.Order{ID: "o1"}

	// Order has no items from this vendor.
	rec, _ := f.do(t, http.MethodPatch, "/api/orders/o1/status", "vendor-key", `{"status":"processing"}`)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	f.orders.vendorOwns = true
	rec, _ = f.do(t, http.MethodPatch, "/api/orders/o1/status", "vendor-key", `{"status":"processing"}`)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestUpdateOrderStatus_NotFound(t *testing.T) {
	f := newFixture(t, nil, nil)

	rec, _ := f.do(t, http.MethodPatch, "/api/orders/missing/status", "admin-key", `{"status":"shipped"}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCreateReferralLink(t *testing.T) {
	f := newFixture(t, []catalog.Product{testProduct("p1", "v1", "10.00", true)}, nil)

	rec, body := f.do(t, http.MethodPost, "/api/vendor/referrals/links", "vendor-key",
		`{"productId":"p1","discountPercent":15}`)
	require.Equal(t, http.StatusCreated, rec.Code)

	link := body["link"].(map[string]any)
	assert.Regexp(t, `^[0-9a-f]{12}$`, link["code"])
	assert.Equal(t, "p1", link["productId"])
	assert.InDelta(t, 15, link["discountPercent"], 0)
	assert.Equal(t, "/r/"+link["code"].(string), body["sharePath"])
}

func TestCreateReferralLink_Errors(t *testing.T) {
	f := newFixture(t, []catalog.Product{testProduct("p1", "v1", "10.00", true), testProduct("p2", "v2", "5.00", true)}, nil)

	rec, _ := f.do(t, http.MethodPost, "/api/vendor/referrals/links", "vendor-key",
		`{"productId":"p1","discountPercent":95}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, _ = f.do(t, http.MethodPost, "/api/vendor/referrals/links", "vendor-key",
		`{"productId":"p2","discountPercent":10}`)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec, _ = f.do(t, http.MethodPost, "/api/vendor/referrals/links", "vendor-key",
		`{"productId":"missing","discountPercent":10}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec, _ = f.do(t, http.MethodPost, "/api/vendor/referrals/links", "vendor-key", `{"discountPercent":10}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestResolveReferral(t *testing.T) {
	link := &referral.Link{ID: "link-1", VendorID: "v1", ProductID: "p1", Code: "abcdef123456", DiscountPercent: 20, Active: true}
	f := newFixture(t, nil, nil, link)

	// Public endpoint: no API key needed.
	rec, body := f.do(t, http.MethodGet, "/api/referrals/abcdef123456", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "p1", body["productId"])
	assert.Equal(t, true, body["isValid"])

	require.Len(t, f.refRepo.events, 1)
	assert.Equal(t, referral.EventClick, f.refRepo.events[0].Type)
}

func TestResolveReferral_Expired(t *testing.T) {
	past := time.Now().Add(-time.Hour)
	link := &referral.Link{ID: "link-1", Code: "abcdef123456", Active: true, ExpiresAt: &past}
	f := newFixture(t, nil, nil, link)

	rec, body := f.do(t, http.MethodGet, "/api/referrals/abcdef123456", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, false, body["isValid"])
	require.Len(t, f.refRepo.events, 1)
}

func TestResolveReferral_Unknown(t *testing.T) {
	f := newFixture(t, nil, nil)

	rec, _ := f.do(t, http.MethodGet, "/api/referrals/nosuchcode00", "", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Empty(t, f.refRepo.events)
}

func TestLogReferralView(t *testing.T) {
	link := &referral.Link{ID: "link-1", ProductID: "p1", Code: "abcdef123456", Active: true}
	f := newFixture(t, nil, nil, link)

	rec, _ := f.do(t, http.MethodPost, "/api/referrals/abcdef123456/view", "customer-key", "")
	require.Equal(t, http.StatusOK, rec.Code)

	require.Len(t, f.refRepo.events, 1)
	assert.Equal(t, referral.EventView, f.refRepo.events[0].Type)
	assert.Equal(t, "cust-1", f.refRepo.events[0].CustomerID)
}

func TestReferralAnalytics(t *testing.T) {
	f := newFixture(t, nil, nil)
	f.refRepo.stats = []referral.LinkStats{
		{
			Link:      referral.Link{Code: "aaaaaaaaaaaa", ProductID: "p1"},
			Clicks:    10,
			Views:     4,
			Purchases: 2,
		},
	}

	rec, body := f.do(t, http.MethodGet, "/api/vendor/referrals/analytics", "vendor-key", "")
	require.Equal(t, http.StatusOK, rec.Code)

	results := body["results"].([]any)
	require.Len(t, results, 1)
	row := results[0].(map[string]any)
	assert.InDelta(t, 20.0, row["conversionRate"], 1e-9)

	totals := body["totals"].(map[string]any)
	assert.InDelta(t, 10, totals["clicks"], 0)
}

func TestReferralAnalytics_BadTimeParam(t *testing.T) {
	f := newFixture(t, nil, nil)

	rec, _ := f.do(t, http.MethodGet, "/api/vendor/referrals/analytics?from=yesterday", "vendor-key", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
