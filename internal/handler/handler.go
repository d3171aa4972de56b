// Package handler exposes the marketplace HTTP surface: checkout, cart
// mutation, order lifecycle, and referral endpoints.
package handler

import (
	"net/http"

	"github.com/xenking/bazaar-api/internal/domain/auth"
	"github.com/xenking/bazaar-api/internal/domain/cart"
	"github.com/xenking/bazaar-api/internal/domain/catalog"
	"github.com/xenking/bazaar-api/internal/domain/checkout"
	"github.com/xenking/bazaar-api/internal/domain/inventory"
	"github.com/xenking/bazaar-api/internal/domain/order"
	"github.com/xenking/bazaar-api/internal/domain/referral"
)

// Handler serves the /api routes, delegating business logic to the domain
// services and repositories. Each dependency is the narrowest interface the
// routes need: the catalog is read-only here, and only the ledger can touch
// stock.
type Handler struct {
	carts    cart.Repository
	catalog  catalog.Repository
	ledger   inventory.Ledger
	orders   order.Repository
	checkout *checkout.Service
	referral *referral.Tracker
	auth     *Authenticator
}

// New constructs a Handler with the required dependencies.
func New(
	carts cart.Repository,
	cat catalog.Repository,
	ledger inventory.Ledger,
	orders order.Repository,
	checkoutSvc *checkout.Service,
	tracker *referral.Tracker,
	authn *Authenticator,
) *Handler {
	return &Handler{
		carts:    carts,
		catalog:  cat,
		ledger:   ledger,
		orders:   orders,
		checkout: checkoutSvc,
		referral: tracker,
		auth:     authn,
	}
}

// Routes registers all API routes on a fresh ServeMux. The mux is mounted
// under /api by the caller.
func (h *Handler) Routes() *http.ServeMux {
	mux := http.NewServeMux()

	// Checkout and cart: customer only.
	mux.HandleFunc("POST /api/checkout", h.auth.Require(h.Checkout, auth.RoleCustomer))
	mux.HandleFunc("GET /api/cart", h.auth.Require(h.GetCart, auth.RoleCustomer))
	mux.HandleFunc("POST /api/cart/items", h.auth.Require(h.AddCartItem, auth.RoleCustomer))
	mux.HandleFunc("PATCH /api/cart/items/{productID}", h.auth.Require(h.UpdateCartItem, auth.RoleCustomer))
	mux.HandleFunc("DELETE /api/cart/items/{productID}", h.auth.Require(h.RemoveCartItem, auth.RoleCustomer))

	// Order views and lifecycle.
	mux.HandleFunc("GET /api/orders", h.auth.Require(h.ListOrders, auth.RoleCustomer))
	mux.HandleFunc("GET /api/orders/{id}", h.auth.Require(h.GetOrder, auth.RoleCustomer))
	mux.HandleFunc("PATCH /api/orders/{id}/status", h.auth.Require(h.UpdateOrderStatus, auth.RoleVendor, auth.RoleAdmin))

	// Referrals: link management is vendor-scoped, resolution is public.
	mux.HandleFunc("POST /api/vendor/referrals/links", h.auth.Require(h.CreateReferralLink, auth.RoleVendor))
	mux.HandleFunc("GET /api/vendor/referrals/analytics", h.auth.Require(h.ReferralAnalytics, auth.RoleVendor))
	mux.HandleFunc("GET /api/referrals/{code}", h.auth.Optional(h.ResolveReferral))
	mux.HandleFunc("POST /api/referrals/{code}/view", h.auth.Optional(h.LogReferralView))

	return mux
}
