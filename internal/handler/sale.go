package handler

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/xenking/pos-pricing/internal/domain/refund"
	"github.com/xenking/pos-pricing/internal/domain/sale"
)

type reductionResponse struct {
	Name     string `json:"name"`
	Quantity int    `json:"quantity"`
	Amount   money  `json:"amount"`
}

type saleItemResponse struct {
	Index      int                 `json:"index"`
	ProductID  string              `json:"product_id"`
	Name       string              `json:"name"`
	UnitPrice  money               `json:"unit_price"`
	AddonCost  money               `json:"addon_unit_cost"`
	Quantity   int                 `json:"quantity"`
	Discounts  []reductionResponse `json:"discounts,omitempty"`
	Promotions []reductionResponse `json:"promotions,omitempty"`
}

type saleResponse struct {
	ID          string             `json:"id"`
	CartID      string             `json:"cart_id"`
	Status      sale.Status        `json:"status"`
	CompletedAt time.Time          `json:"completed_at"`
	Items       []saleItemResponse `json:"items"`
	Totals      totalsResponse     `json:"totals"`
}

type refundRecordResponse struct {
	ID        string        `json:"id"`
	Lines     []refund.Line `json:"lines"`
	Amount    money         `json:"amount"`
	Full      bool          `json:"full"`
	Reason    string        `json:"reason,omitempty"`
	CreatedAt time.Time     `json:"created_at"`
}

type saleStatusResponse struct {
	saleResponse
	RefundExpiresAt time.Time              `json:"refund_expires_at"`
	Refundable      map[string]int         `json:"refundable"`
	Refunds         []refundRecordResponse `json:"refunds"`
}

func reductions(rs []sale.Reduction) []reductionResponse {
	out := make([]reductionResponse, len(rs))
	for i, r := range rs {
		out[i] = reductionResponse{Name: r.Name, Quantity: r.Quantity, Amount: money(r.Amount)}
	}
	return out
}

func saleOf(s *sale.Sale) saleResponse {
	out := saleResponse{
		ID:          s.ID,
		CartID:      s.CartID,
		Status:      s.Status,
		CompletedAt: s.CompletedAt,
		Items:       make([]saleItemResponse, len(s.Items)),
		Totals: totalsResponse{
			Subtotal:            money(s.Subtotal),
			AddonsCost:          money(s.AddonsCost),
			PromotionalDiscount: money(s.PromotionalDiscount),
			ManualDiscount:      money(s.ManualDiscount),
			Total:               money(s.Total),
		},
	}
	for i, it := range s.Items {
		out.Items[i] = saleItemResponse{
			Index:      it.Index,
			ProductID:  it.ProductID,
			Name:       it.Name,
			UnitPrice:  money(it.UnitPrice),
			AddonCost:  money(it.AddonUnitCost()),
			Quantity:   it.Quantity,
			Discounts:  reductions(it.Discounts),
			Promotions: reductions(it.Promotions),
		}
	}
	return out
}

func recordOf(rec refund.Record) refundRecordResponse {
	return refundRecordResponse{
		ID:        rec.ID,
		Lines:     rec.Lines,
		Amount:    money(rec.Amount),
		Full:      rec.Full,
		Reason:    rec.Reason,
		CreatedAt: rec.CreatedAt,
	}
}

func (h *Handler) checkout(w http.ResponseWriter, r *http.Request) {
	version, err := ifMatch(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	s, err := h.sessions.Checkout(r.Context(), chi.URLParam(r, "id"), version)
	if err != nil {
		writeError(w, r, err)
		return
	}
	w.Header().Set("Location", "/api/sales/"+s.ID)
	writeJSON(w, http.StatusCreated, saleOf(s))
}

func (h *Handler) getSale(w http.ResponseWriter, r *http.Request) {
	snap, err := h.refunds.Status(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	resp := saleStatusResponse{
		saleResponse:    saleOf(&snap.Sale),
		RefundExpiresAt: snap.ExpiresAt,
		Refundable:      snap.Refundable,
		Refunds:         make([]refundRecordResponse, len(snap.Records)),
	}
	resp.Status = snap.Status
	for i, rec := range snap.Records {
		resp.Refunds[i] = recordOf(rec)
	}
	writeJSON(w, http.StatusOK, resp)
}

type refundLine struct {
	Name     string `json:"name"`
	Quantity int    `json:"quantity"`
}

type refundRequest struct {
	Items  []refundLine `json:"items"`
	Full   bool         `json:"full"`
	Reason string       `json:"reason"`
}

type breakdownResponse struct {
	Index        int    `json:"index"`
	Name         string `json:"name"`
	Quantity     int    `json:"quantity"`
	NetUnitPrice money  `json:"net_unit_price"`
	Amount       money  `json:"amount"`
}

type refundResponse struct {
	Refund     refundRecordResponse `json:"refund"`
	Breakdown  []breakdownResponse  `json:"breakdown"`
	SaleStatus sale.Status          `json:"sale_status"`
}

func (h *Handler) refund(w http.ResponseWriter, r *http.Request) {
	var req refundRequest
	if err := decode(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	if req.Full && len(req.Items) > 0 {
		writeError(w, r, badRequest("full refunds take no items"))
		return
	}
	items := make(map[string]int, len(req.Items))
	for _, l := range req.Items {
		items[l.Name] += l.Quantity
	}

	out, err := h.refunds.Refund(r.Context(), refund.Request{
		SaleID: chi.URLParam(r, "id"),
		Items:  items,
		Full:   req.Full,
		Reason: req.Reason,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}

	resp := refundResponse{
		Refund:     recordOf(out.Record),
		Breakdown:  make([]breakdownResponse, len(out.Result.Items)),
		SaleStatus: out.Status,
	}
	for i, it := range out.Result.Items {
		resp.Breakdown[i] = breakdownResponse{
			Index:        it.ItemIndex,
			Name:         it.ItemName,
			Quantity:     it.Quantity,
			NetUnitPrice: money(it.NetUnitPrice),
			Amount:       money(it.Amount),
		}
	}
	writeJSON(w, http.StatusCreated, resp)
}
