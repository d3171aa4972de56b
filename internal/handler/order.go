package handler

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"

	"github.com/xenking/bazaar-api/internal/domain/auth"
	"github.com/xenking/bazaar-api/internal/domain/order"
)

const (
	defaultPageLimit = 5
	maxPageLimit     = 20
)

// ListOrders returns one page of the customer's order history, newest first.
// Supports ?page=, ?limit= and ?search= (order-number substring).
func (h *Handler) ListOrders(w http.ResponseWriter, r *http.Request) {
	id, _ := IdentityFromContext(r.Context())

	p := order.ListParams{Page: 1, Limit: defaultPageLimit, Search: r.URL.Query().Get("search")}
	if v, err := strconv.Atoi(r.URL.Query().Get("page")); err == nil && v > 1 {
		p.Page = v
	}
	if v, err := strconv.Atoi(r.URL.Query().Get("limit")); err == nil && v >= 1 {
		p.Limit = min(v, maxPageLimit)
	}

	page, err := h.orders.ListByCustomer(r.Context(), id.SubjectID, p)
	if err != nil {
		writeInternalError(w, r, err)
		return
	}

	totalPages := (page.Total + p.Limit - 1) / p.Limit
	writeJSON(w, r, http.StatusOK, func(e *jx.Encoder) {
		e.Obj(func(e *jx.Encoder) {
			e.Field("results", func(e *jx.Encoder) {
				e.Arr(func(e *jx.Encoder) {
					for i := range page.Orders {
						encodeOrder(e, &page.Orders[i])
					}
				})
			})
			e.Field("pagination", func(e *jx.Encoder) {
				e.Obj(func(e *jx.Encoder) {
					e.Field("page", func(e *jx.Encoder) { e.Int(p.Page) })
					e.Field("limit", func(e *jx.Encoder) { e.Int(p.Limit) })
					e.Field("total", func(e *jx.Encoder) { e.Int(page.Total) })
					e.Field("totalPages", func(e *jx.Encoder) { e.Int(totalPages) })
				})
			})
		})
	})
}

// GetOrder returns a single order. Customers only see their own orders; a
// foreign order id reads as not found rather than forbidden.
func (h *Handler) GetOrder(w http.ResponseWriter, r *http.Request) {
	id, _ := IdentityFromContext(r.Context())

	o, err := h.orders.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		if errors.Is(err, order.ErrNotFound) {
			writeError(w, r, apiError{Code: http.StatusNotFound, Message: "order not found"})
			return
		}
		writeInternalError(w, r, err)
		return
	}
	if o.CustomerID != id.SubjectID {
		writeError(w, r, apiError{Code: http.StatusNotFound, Message: "order not found"})
		return
	}

	writeJSON(w, r, http.StatusOK, func(e *jx.Encoder) {
		encodeOrder(e, o)
	})
}

// UpdateOrderStatus sets an order's status. The value must be one of the five
// known states; no transition graph is enforced beyond that. A vendor may
// only touch orders containing at least one of their products; admins bypass
// that check.
func (h *Handler) UpdateOrderStatus(w http.ResponseWriter, r *http.Request) {
	id, _ := IdentityFromContext(r.Context())
	ctx := r.Context()
	orderID := r.PathValue("id")

	var rawStatus string
	err := decodeBody(r, func(d *jx.Decoder) error {
		return d.Obj(func(d *jx.Decoder, key string) error {
			if key == "status" {
				var err error
				rawStatus, err = d.Str()
				return err
			}
			return d.Skip()
		})
	})
	if err != nil {
		writeError(w, r, apiError{Code: http.StatusBadRequest, Message: "invalid request body"})
		return
	}

	status, err := order.ParseStatus(rawStatus)
	if err != nil {
		writeError(w, r, apiError{Code: http.StatusBadRequest, Message: "invalid status"})
		return
	}

	if id.Role == auth.RoleVendor {
		owns, err := h.orders.ContainsVendorProduct(ctx, orderID, id.SubjectID)
		if err != nil {
			writeInternalError(w, r, err)
			return
		}
		if !owns {
			writeError(w, r, apiError{Code: http.StatusForbidden, Message: "order has no items from this vendor"})
			return
		}
	}

	if err := h.orders.UpdateStatus(ctx, orderID, status); err != nil {
		if errors.Is(err, order.ErrNotFound) {
			writeError(w, r, apiError{Code: http.StatusNotFound, Message: "order not found"})
			return
		}
		writeInternalError(w, r, err)
		return
	}

	writeJSON(w, r, http.StatusOK, func(e *jx.Encoder) {
		e.Obj(func(e *jx.Encoder) {
			e.Field("id", func(e *jx.Encoder) { e.Str(orderID) })
			e.Field("status", func(e *jx.Encoder) { e.Str(string(status)) })
		})
	})
}

func encodeOrder(e *jx.Encoder, o *order.Order) {
	e.Obj(func(e *jx.Encoder) {
		e.Field("id", func(e *jx.Encoder) { e.Str(o.ID) })
		e.Field("orderNumber", func(e *jx.Encoder) { e.Str(o.Number) })
		e.Field("status", func(e *jx.Encoder) { e.Str(string(o.Status)) })
		e.Field("total", func(e *jx.Encoder) { e.Float64(o.Total.InexactFloat64()) })
		e.Field("date", func(e *jx.Encoder) { e.Str(o.CreatedAt.Format(time.RFC3339)) })
		e.Field("items", func(e *jx.Encoder) {
			e.Arr(func(e *jx.Encoder) {
				for _, it := range o.Items {
					e.Obj(func(e *jx.Encoder) {
						e.Field("productId", func(e *jx.Encoder) { e.Str(it.ProductID) })
						e.Field("quantity", func(e *jx.Encoder) { e.Int(it.Quantity) })
						e.Field("price", func(e *jx.Encoder) { e.Float64(it.PriceAtPurchase.InexactFloat64()) })
					})
				}
			})
		})
	})
}
