package handler

import (
	"net/http"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/shopspring/decimal"

	"github.com/xenking/bazaar-api/internal/domain/cart"
	"github.com/xenking/bazaar-api/internal/domain/catalog"
)

// GetCart returns the customer's cart with denormalized product details and
// line totals. The cart is created lazily on first access.
func (h *Handler) GetCart(w http.ResponseWriter, r *http.Request) {
	id, _ := IdentityFromContext(r.Context())
	ctx := r.Context()

	c, err := h.carts.GetOrCreate(ctx, id.SubjectID)
	if err != nil {
		writeInternalError(w, r, err)
		return
	}
	items, err := h.carts.Items(ctx, c.ID)
	if err != nil {
		writeInternalError(w, r, err)
		return
	}

	ids := make([]string, len(items))
	for i, it := range items {
		ids[i] = it.ProductID
	}
	var products map[string]catalog.Product
	if len(ids) > 0 {
		fetched, err := h.catalog.GetByIDs(ctx, ids)
		if err != nil {
			writeInternalError(w, r, err)
			return
		}
		products = make(map[string]catalog.Product, len(fetched))
		for _, p := range fetched {
			products[p.ID] = p
		}
	}

	subtotal := decimal.Zero
	writeJSON(w, r, http.StatusOK, func(e *jx.Encoder) {
		e.Obj(func(e *jx.Encoder) {
			e.Field("cartId", func(e *jx.Encoder) { e.Str(c.ID) })
			e.Field("items", func(e *jx.Encoder) {
				e.Arr(func(e *jx.Encoder) {
					for _, it := range items {
						p := products[it.ProductID]
						line := p.Price.Mul(decimal.NewFromInt(int64(it.Quantity)))
						subtotal = subtotal.Add(line)
						e.Obj(func(e *jx.Encoder) {
							e.Field("productId", func(e *jx.Encoder) { e.Str(it.ProductID) })
							e.Field("quantity", func(e *jx.Encoder) { e.Int(it.Quantity) })
							e.Field("name", func(e *jx.Encoder) { e.Str(p.Name) })
							e.Field("price", func(e *jx.Encoder) { e.Float64(p.Price.InexactFloat64()) })
							e.Field("imageUrl", func(e *jx.Encoder) { e.Str(p.ImageURL) })
							e.Field("lineTotal", func(e *jx.Encoder) { e.Float64(line.InexactFloat64()) })
						})
					}
				})
			})
			e.Field("subtotal", func(e *jx.Encoder) { e.Float64(subtotal.InexactFloat64()) })
		})
	})
}

// cartItemRequest is the body of cart add/update calls.
type cartItemRequest struct {
	ProductID string
	Quantity  int
	qtySet    bool
}

func decodeCartItem(r *http.Request) (cartItemRequest, error) {
	req := cartItemRequest{Quantity: 1}
	err := decodeBody(r, func(d *jx.Decoder) error {
		return d.Obj(func(d *jx.Decoder, key string) error {
			var err error
			switch key {
			case "productId":
				req.ProductID, err = d.Str()
			case "quantity":
				req.Quantity, err = d.Int()
				req.qtySet = true
			default:
				err = d.Skip()
			}
			return err
		})
	})
	return req, err
}

// AddCartItem adds quantity to a line item, inserting it when absent. Stock
// is checked here as a courtesy; checkout re-validates against live stock.
func (h *Handler) AddCartItem(w http.ResponseWriter, r *http.Request) {
	id, _ := IdentityFromContext(r.Context())
	ctx := r.Context()

	req, err := decodeCartItem(r)
	if err != nil {
		writeError(w, r, apiError{Code: http.StatusBadRequest, Message: "invalid request body"})
		return
	}
	if req.ProductID == "" {
		writeError(w, r, apiError{Code: http.StatusBadRequest, Message: "productId is required"})
		return
	}
	if req.Quantity <= 0 {
		writeError(w, r, apiError{Code: http.StatusBadRequest, Message: "invalid quantity"})
		return
	}

	if _, err := h.catalog.GetByID(ctx, req.ProductID); err != nil {
		if errors.Is(err, catalog.ErrNotFound) {
			writeError(w, r, apiError{Code: http.StatusNotFound, Message: "product not found"})
			return
		}
		writeInternalError(w, r, err)
		return
	}

	stock, err := h.ledger.GetStock(ctx, req.ProductID)
	if err != nil {
		writeInternalError(w, r, err)
		return
	}
	if stock < req.Quantity {
		writeError(w, r, apiError{
			Code:      http.StatusBadRequest,
			Message:   "not enough stock",
			ProductID: req.ProductID,
		})
		return
	}

	c, err := h.carts.GetOrCreate(ctx, id.SubjectID)
	if err != nil {
		writeInternalError(w, r, err)
		return
	}
	if err := h.carts.Upsert(ctx, c.ID, req.ProductID, req.Quantity); err != nil {
		writeInternalError(w, r, err)
		return
	}

	writeJSON(w, r, http.StatusCreated, func(e *jx.Encoder) {
		e.Obj(func(e *jx.Encoder) {
			e.Field("message", func(e *jx.Encoder) { e.Str("added to cart") })
		})
	})
}

// UpdateCartItem replaces a line item's quantity.
func (h *Handler) UpdateCartItem(w http.ResponseWriter, r *http.Request) {
	id, _ := IdentityFromContext(r.Context())
	ctx := r.Context()
	productID := r.PathValue("productID")

	req, err := decodeCartItem(r)
	if err != nil || !req.qtySet {
		writeError(w, r, apiError{Code: http.StatusBadRequest, Message: "invalid request body"})
		return
	}
	if req.Quantity <= 0 {
		writeError(w, r, apiError{Code: http.StatusBadRequest, Message: "invalid quantity"})
		return
	}

	stock, err := h.ledger.GetStock(ctx, productID)
	if err != nil {
		writeInternalError(w, r, err)
		return
	}
	if stock < req.Quantity {
		writeError(w, r, apiError{
			Code:      http.StatusBadRequest,
			Message:   "not enough stock",
			ProductID: productID,
		})
		return
	}

	c, err := h.carts.GetOrCreate(ctx, id.SubjectID)
	if err != nil {
		writeInternalError(w, r, err)
		return
	}
	if err := h.carts.UpdateQuantity(ctx, c.ID, productID, req.Quantity); err != nil {
		if errors.Is(err, cart.ErrItemNotFound) {
			writeError(w, r, apiError{Code: http.StatusNotFound, Message: "cart item not found"})
			return
		}
		writeInternalError(w, r, err)
		return
	}

	writeJSON(w, r, http.StatusOK, func(e *jx.Encoder) {
		e.Obj(func(e *jx.Encoder) {
			e.Field("message", func(e *jx.Encoder) { e.Str("cart item updated") })
		})
	})
}

// RemoveCartItem deletes a line item from the cart.
func (h *Handler) RemoveCartItem(w http.ResponseWriter, r *http.Request) {
	id, _ := IdentityFromContext(r.Context())
	ctx := r.Context()
	productID := r.PathValue("productID")

	c, err := h.carts.GetOrCreate(ctx, id.SubjectID)
	if err != nil {
		writeInternalError(w, r, err)
		return
	}
	if err := h.carts.Remove(ctx, c.ID, productID); err != nil {
		if errors.Is(err, cart.ErrItemNotFound) {
			writeError(w, r, apiError{Code: http.StatusNotFound, Message: "cart item not found"})
			return
		}
		writeInternalError(w, r, err)
		return
	}

	writeJSON(w, r, http.StatusOK, func(e *jx.Encoder) {
		e.Obj(func(e *jx.Encoder) {
			e.Field("message", func(e *jx.Encoder) { e.Str("removed from cart") })
		})
	})
}
