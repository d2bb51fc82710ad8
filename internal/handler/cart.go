package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/xenking/pos-pricing/internal/domain/cart"
	"github.com/xenking/pos-pricing/internal/domain/pricing"
	"github.com/xenking/pos-pricing/internal/domain/session"
)

// money renders amounts with two decimals.
type money decimal.Decimal

func (m money) MarshalJSON() ([]byte, error) {
	return []byte(`"` + decimal.Decimal(m).StringFixed(2) + `"`), nil
}

type totalsResponse struct {
	Subtotal            money `json:"subtotal"`
	AddonsCost          money `json:"addons_cost"`
	PromotionalDiscount money `json:"promotional_discount"`
	ManualDiscount      money `json:"manual_discount"`
	Total               money `json:"total"`
}

type lineResponse struct {
	Index     int             `json:"index"`
	ProductID string          `json:"product_id"`
	Name      string          `json:"name"`
	Category  string          `json:"category,omitempty"`
	Kind      cart.Kind       `json:"kind"`
	UnitPrice money           `json:"unit_price"`
	Quantity  int             `json:"quantity"`
	Addons    []cart.Addon    `json:"addons,omitempty"`
	Bundle    *cart.BundleRef `json:"bundle,omitempty"`
}

type allocationResponse struct {
	Index    int   `json:"index"`
	Quantity int   `json:"quantity"`
	Amount   money `json:"amount"`
}

type discountResponse struct {
	Position    int                  `json:"position"`
	ID          string               `json:"id"`
	Name        string               `json:"name"`
	Amount      money                `json:"amount"`
	Allocations []allocationResponse `json:"allocations"`
}

type promotionResponse struct {
	Index         int    `json:"index"`
	PromotionID   string `json:"promotion_id"`
	PromotionName string `json:"promotion_name"`
	Quantity      int    `json:"quantity"`
	Amount        money  `json:"amount"`
}

type cartResponse struct {
	ID         string              `json:"id"`
	Version    int64               `json:"version"`
	Items      []lineResponse      `json:"items"`
	Discounts  []discountResponse  `json:"discounts"`
	Promotions []promotionResponse `json:"promotions"`
	Totals     totalsResponse      `json:"totals"`
}

func totalsOf(q pricing.Quote) totalsResponse {
	return totalsResponse{
		Subtotal:            money(q.Subtotal),
		AddonsCost:          money(q.AddonsCost),
		PromotionalDiscount: money(q.PromotionalDiscount),
		ManualDiscount:      money(q.ManualDiscount),
		Total:               money(q.Total),
	}
}

func cartOf(v *session.View) cartResponse {
	c := v.Session.Cart
	out := cartResponse{
		ID:         c.ID,
		Version:    c.Version,
		Items:      make([]lineResponse, len(c.Items)),
		Discounts:  make([]discountResponse, len(c.Discounts)),
		Promotions: make([]promotionResponse, len(v.Quote.ItemPromotions)),
		Totals:     totalsOf(v.Quote),
	}
	for i, li := range c.Items {
		out.Items[i] = lineResponse{
			Index:     i,
			ProductID: li.ProductID,
			Name:      li.Name,
			Category:  li.Category,
			Kind:      li.Kind,
			UnitPrice: money(li.UnitPrice),
			Quantity:  li.Quantity,
			Addons:    li.Addons,
			Bundle:    li.Bundle,
		}
	}
	for i, d := range c.Discounts {
		dr := discountResponse{
			Position: i,
			ID:       d.Definition.ID,
			Name:     d.Definition.Name,
			Amount:   money(d.Amount()),
		}
		for _, idx := range d.Indexes() {
			a := d.Allocations[idx]
			dr.Allocations = append(dr.Allocations, allocationResponse{Index: idx, Quantity: a.Quantity, Amount: money(a.Amount)})
		}
		out.Discounts[i] = dr
	}
	for i, p := range v.Quote.ItemPromotions {
		out.Promotions[i] = promotionResponse{
			Index:         p.ItemIndex,
			PromotionID:   p.PromotionID,
			PromotionName: p.PromotionName,
			Quantity:      p.Quantity,
			Amount:        money(p.Amount),
		}
	}
	return out
}

func writeCart(w http.ResponseWriter, status int, v *session.View) {
	w.Header().Set("ETag", etag(v.Session.Cart.Version))
	writeJSON(w, status, cartOf(v))
}

// mutation runs fn with the If-Match version and writes the resulting cart.
func (h *Handler) mutation(w http.ResponseWriter, r *http.Request, fn func(id string, version int64) (*session.View, error)) {
	version, err := ifMatch(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	v, err := fn(chi.URLParam(r, "id"), version)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeCart(w, http.StatusOK, v)
}

func (h *Handler) openCart(w http.ResponseWriter, r *http.Request) {
	v, err := h.sessions.Open(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	w.Header().Set("Location", "/api/carts/"+v.Session.ID)
	writeCart(w, http.StatusCreated, v)
}

func (h *Handler) getCart(w http.ResponseWriter, r *http.Request) {
	v, err := h.sessions.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeCart(w, http.StatusOK, v)
}

func (h *Handler) discardCart(w http.ResponseWriter, r *http.Request) {
	if err := h.sessions.Discard(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type addItemRequest struct {
	ProductID string       `json:"product_id"`
	Quantity  int          `json:"quantity"`
	Addons    []cart.Addon `json:"addons"`
}

func (h *Handler) addItem(w http.ResponseWriter, r *http.Request) {
	var req addItemRequest
	if err := decode(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	if req.ProductID == "" {
		writeError(w, r, badRequest("product_id is required"))
		return
	}
	if req.Quantity == 0 {
		req.Quantity = 1
	}
	h.mutation(w, r, func(id string, version int64) (*session.View, error) {
		return h.sessions.AddItem(r.Context(), id, version, session.AddItemRequest{
			ProductID: req.ProductID,
			Quantity:  req.Quantity,
			Addons:    req.Addons,
		})
	})
}

func (h *Handler) clearCart(w http.ResponseWriter, r *http.Request) {
	h.mutation(w, r, func(id string, version int64) (*session.View, error) {
		return h.sessions.Clear(r.Context(), id, version)
	})
}

type quantityRequest struct {
	Quantity int `json:"quantity"`
}

func (h *Handler) changeQuantity(w http.ResponseWriter, r *http.Request) {
	index, err := pathIndex(r, "index")
	if err != nil {
		writeError(w, r, err)
		return
	}
	var req quantityRequest
	if err := decode(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	h.mutation(w, r, func(id string, version int64) (*session.View, error) {
		return h.sessions.ChangeQuantity(r.Context(), id, version, index, req.Quantity)
	})
}

func (h *Handler) removeItem(w http.ResponseWriter, r *http.Request) {
	index, err := pathIndex(r, "index")
	if err != nil {
		writeError(w, r, err)
		return
	}
	h.mutation(w, r, func(id string, version int64) (*session.View, error) {
		return h.sessions.RemoveItem(r.Context(), id, version, index)
	})
}

type addonsRequest struct {
	Addons []cart.Addon `json:"addons"`
}

func (h *Handler) setAddons(w http.ResponseWriter, r *http.Request) {
	index, err := pathIndex(r, "index")
	if err != nil {
		writeError(w, r, err)
		return
	}
	var req addonsRequest
	if err := decode(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	h.mutation(w, r, func(id string, version int64) (*session.View, error) {
		return h.sessions.SetAddons(r.Context(), id, version, index, req.Addons)
	})
}

type bundleRequest struct {
	PromotionID string `json:"promotion_id"`
}

func (h *Handler) addBundle(w http.ResponseWriter, r *http.Request) {
	var req bundleRequest
	if err := decode(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	if req.PromotionID == "" {
		writeError(w, r, badRequest("promotion_id is required"))
		return
	}
	h.mutation(w, r, func(id string, version int64) (*session.View, error) {
		return h.sessions.AddBundle(r.Context(), id, version, req.PromotionID)
	})
}

func (h *Handler) removeBundle(w http.ResponseWriter, r *http.Request) {
	group := cart.BundleGroupID(chi.URLParam(r, "group"))
	h.mutation(w, r, func(id string, version int64) (*session.View, error) {
		return h.sessions.RemoveBundle(r.Context(), id, version, group)
	})
}

type selection struct {
	Index    int `json:"index"`
	Quantity int `json:"quantity"`
}

type applyDiscountRequest struct {
	DiscountID string      `json:"discount_id"`
	Items      []selection `json:"items"`
}

func (h *Handler) applyDiscount(w http.ResponseWriter, r *http.Request) {
	var req applyDiscountRequest
	if err := decode(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	if req.DiscountID == "" {
		writeError(w, r, badRequest("discount_id is required"))
		return
	}
	selected := make(map[int]int, len(req.Items))
	for _, s := range req.Items {
		selected[s.Index] += s.Quantity
	}
	h.mutation(w, r, func(id string, version int64) (*session.View, error) {
		return h.sessions.ApplyDiscount(r.Context(), id, version, req.DiscountID, selected)
	})
}

func (h *Handler) removeDiscount(w http.ResponseWriter, r *http.Request) {
	position, err := pathIndex(r, "position")
	if err != nil {
		writeError(w, r, err)
		return
	}
	h.mutation(w, r, func(id string, version int64) (*session.View, error) {
		return h.sessions.RemoveDiscount(r.Context(), id, version, position)
	})
}
