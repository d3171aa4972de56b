package handler

import (
	"net/http"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"

	"github.com/xenking/bazaar-api/internal/domain/checkout"
	"github.com/xenking/bazaar-api/internal/domain/inventory"
)

// Checkout converts the authenticated customer's cart into a pending order.
// Re-submitting after a successful checkout starts a new, independent order;
// there is no idempotency key deduplication across calls.
func (h *Handler) Checkout(w http.ResponseWriter, r *http.Request) {
	id, _ := IdentityFromContext(r.Context())

	var referralCode string
	err := decodeBody(r, func(d *jx.Decoder) error {
		return d.Obj(func(d *jx.Decoder, key string) error {
			switch key {
			case "referralCode":
				var err error
				referralCode, err = d.Str()
				return err
			default:
				return d.Skip()
			}
		})
	})
	if err != nil {
		writeError(w, r, apiError{Code: http.StatusBadRequest, Message: "invalid request body"})
		return
	}

	summary, err := h.checkout.Checkout(r.Context(), id.SubjectID, referralCode)
	if err != nil {
		h.writeCheckoutError(w, r, err)
		return
	}

	writeJSON(w, r, http.StatusCreated, func(e *jx.Encoder) {
		e.Obj(func(e *jx.Encoder) {
			e.Field("orderId", func(e *jx.Encoder) { e.Str(summary.OrderID) })
			e.Field("orderNumber", func(e *jx.Encoder) { e.Str(summary.OrderNumber) })
			e.Field("total", func(e *jx.Encoder) { e.Float64(summary.Total.InexactFloat64()) })
			e.Field("status", func(e *jx.Encoder) { e.Str(string(summary.Status)) })
		})
	})
}

// writeCheckoutError maps orchestrator errors to the API taxonomy. The
// customer sees one terminal error identifying the first failing item.
func (h *Handler) writeCheckoutError(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, checkout.ErrEmptyCart) {
		writeError(w, r, apiError{Code: http.StatusBadRequest, Message: "cart is empty"})
		return
	}

	var inactiveErr *checkout.ProductInactiveError
	if errors.As(err, &inactiveErr) {
		writeError(w, r, apiError{
			Code:      http.StatusBadRequest,
			Message:   "one or more products are inactive",
			ProductID: inactiveErr.ProductID,
		})
		return
	}

	var stockErr *inventory.InsufficientStockError
	if errors.As(err, &stockErr) {
		writeError(w, r, apiError{
			Code:      http.StatusBadRequest,
			Message:   "not enough stock for one or more items",
			ProductID: stockErr.ProductID,
		})
		return
	}

	writeInternalError(w, r, err)
}
