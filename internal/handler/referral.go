package handler

import (
	"net/http"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"

	"github.com/xenking/bazaar-api/internal/domain/catalog"
	"github.com/xenking/bazaar-api/internal/domain/referral"
)

// CreateReferralLink issues a referral link for one of the vendor's products.
func (h *Handler) CreateReferralLink(w http.ResponseWriter, r *http.Request) {
	id, _ := IdentityFromContext(r.Context())

	var (
		productID       string
		discountPercent int
		expiresAt       *time.Time
	)
	err := decodeBody(r, func(d *jx.Decoder) error {
		return d.Obj(func(d *jx.Decoder, key string) error {
			var err error
			switch key {
			case "productId":
				productID, err = d.Str()
			case "discountPercent":
				discountPercent, err = d.Int()
			case "expiresAt":
				if d.Next() == jx.Null {
					return d.Null()
				}
				var raw string
				raw, err = d.Str()
				if err != nil {
					return err
				}
				var t time.Time
				t, err = time.Parse(time.RFC3339, raw)
				if err == nil {
					expiresAt = &t
				}
			default:
				err = d.Skip()
			}
			return err
		})
	})
	if err != nil {
		writeError(w, r, apiError{Code: http.StatusBadRequest, Message: "invalid request body"})
		return
	}
	if productID == "" {
		writeError(w, r, apiError{Code: http.StatusBadRequest, Message: "productId is required"})
		return
	}

	link, err := h.referral.CreateLink(r.Context(), id.SubjectID, productID, discountPercent, expiresAt)
	if err != nil {
		switch {
		case errors.Is(err, referral.ErrInvalidDiscount):
			writeError(w, r, apiError{Code: http.StatusBadRequest, Message: "discountPercent must be between 0 and 90"})
		case errors.Is(err, referral.ErrNotVendorProduct):
			writeError(w, r, apiError{Code: http.StatusForbidden, Message: "not your product"})
		case errors.Is(err, catalog.ErrNotFound):
			writeError(w, r, apiError{Code: http.StatusNotFound, Message: "product not found"})
		default:
			writeInternalError(w, r, err)
		}
		return
	}

	writeJSON(w, r, http.StatusCreated, func(e *jx.Encoder) {
		e.Obj(func(e *jx.Encoder) {
			e.Field("link", func(e *jx.Encoder) {
				e.Obj(func(e *jx.Encoder) {
					e.Field("id", func(e *jx.Encoder) { e.Str(link.ID) })
					e.Field("code", func(e *jx.Encoder) { e.Str(link.Code) })
					e.Field("productId", func(e *jx.Encoder) { e.Str(link.ProductID) })
					e.Field("discountPercent", func(e *jx.Encoder) { e.Int(link.DiscountPercent) })
					optTimeField(e, "expiresAt", link.ExpiresAt)
					e.Field("isActive", func(e *jx.Encoder) { e.Bool(link.Active) })
				})
			})
			e.Field("sharePath", func(e *jx.Encoder) { e.Str("/r/" + link.Code) })
		})
	})
}

// ResolveReferral resolves a code, logs a click event, and reports validity.
// Public endpoint: the customer id is attached only when a key was presented.
func (h *Handler) ResolveReferral(w http.ResponseWriter, r *http.Request) {
	id, _ := IdentityFromContext(r.Context())

	link, valid, err := h.referral.Resolve(r.Context(), r.PathValue("code"), id.SubjectID)
	if err != nil {
		if errors.Is(err, referral.ErrLinkNotFound) {
			writeError(w, r, apiError{Code: http.StatusNotFound, Message: "referral link not found"})
			return
		}
		writeInternalError(w, r, err)
		return
	}

	writeJSON(w, r, http.StatusOK, func(e *jx.Encoder) {
		e.Obj(func(e *jx.Encoder) {
			e.Field("productId", func(e *jx.Encoder) { e.Str(link.ProductID) })
			e.Field("discountPercent", func(e *jx.Encoder) { e.Int(link.DiscountPercent) })
			optTimeField(e, "expiresAt", link.ExpiresAt)
			e.Field("isValid", func(e *jx.Encoder) { e.Bool(valid) })
		})
	})
}

// LogReferralView logs a view event for the link behind the code.
func (h *Handler) LogReferralView(w http.ResponseWriter, r *http.Request) {
	id, _ := IdentityFromContext(r.Context())

	if err := h.referral.LogView(r.Context(), r.PathValue("code"), id.SubjectID); err != nil {
		if errors.Is(err, referral.ErrLinkNotFound) {
			writeError(w, r, apiError{Code: http.StatusNotFound, Message: "referral link not found"})
			return
		}
		writeInternalError(w, r, err)
		return
	}

	writeJSON(w, r, http.StatusOK, func(e *jx.Encoder) {
		e.Obj(func(e *jx.Encoder) {
			e.Field("message", func(e *jx.Encoder) { e.Str("view logged") })
		})
	})
}

// ReferralAnalytics returns per-link click/view/purchase counts plus totals
// for the vendor's links. ?from= and ?to= bound the event window (RFC 3339 or
// date-only).
func (h *Handler) ReferralAnalytics(w http.ResponseWriter, r *http.Request) {
	id, _ := IdentityFromContext(r.Context())

	from, ok := parseTimeParam(r.URL.Query().Get("from"))
	if !ok {
		writeError(w, r, apiError{Code: http.StatusBadRequest, Message: "invalid from"})
		return
	}
	to, ok := parseTimeParam(r.URL.Query().Get("to"))
	if !ok {
		writeError(w, r, apiError{Code: http.StatusBadRequest, Message: "invalid to"})
		return
	}

	reports, totals, err := h.referral.VendorAnalytics(r.Context(), id.SubjectID, from, to)
	if err != nil {
		writeInternalError(w, r, err)
		return
	}

	writeJSON(w, r, http.StatusOK, func(e *jx.Encoder) {
		e.Obj(func(e *jx.Encoder) {
			e.Field("results", func(e *jx.Encoder) {
				e.Arr(func(e *jx.Encoder) {
					for _, rep := range reports {
						e.Obj(func(e *jx.Encoder) {
							e.Field("code", func(e *jx.Encoder) { e.Str(rep.Code) })
							e.Field("productId", func(e *jx.Encoder) { e.Str(rep.ProductID) })
							e.Field("discountPercent", func(e *jx.Encoder) { e.Int(rep.DiscountPercent) })
							e.Field("createdAt", func(e *jx.Encoder) { e.Str(rep.CreatedAt.Format(time.RFC3339)) })
							e.Field("isActive", func(e *jx.Encoder) { e.Bool(rep.Active) })
							optTimeField(e, "expiresAt", rep.ExpiresAt)
							e.Field("clicks", func(e *jx.Encoder) { e.Int(rep.Clicks) })
							e.Field("views", func(e *jx.Encoder) { e.Int(rep.Views) })
							e.Field("purchases", func(e *jx.Encoder) { e.Int(rep.Purchases) })
							e.Field("conversionRate", func(e *jx.Encoder) { e.Float64(rep.ConversionRate) })
						})
					}
				})
			})
			e.Field("totals", func(e *jx.Encoder) {
				e.Obj(func(e *jx.Encoder) {
					e.Field("clicks", func(e *jx.Encoder) { e.Int(totals.Clicks) })
					e.Field("views", func(e *jx.Encoder) { e.Int(totals.Views) })
					e.Field("purchases", func(e *jx.Encoder) { e.Int(totals.Purchases) })
				})
			})
		})
	})
}

// parseTimeParam parses an optional RFC 3339 or date-only query value. The
// zero time means "unbounded".
func parseTimeParam(raw string) (time.Time, bool) {
	if raw == "" {
		return time.Time{}, true
	}
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t, true
	}
	if t, err := time.Parse("2006-01-02", raw); err == nil {
		return t, true
	}
	return time.Time{}, false
}
