package handler

import (
	"net/http"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/pos-pricing/internal/domain/cart"
	"github.com/xenking/pos-pricing/internal/domain/catalog"
	"github.com/xenking/pos-pricing/internal/domain/pricing"
	"github.com/xenking/pos-pricing/internal/domain/refund"
	"github.com/xenking/pos-pricing/internal/domain/sale"
	"github.com/xenking/pos-pricing/internal/domain/session"
)

type errorResponse struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

// quantityDetail describes a quantity the register asked for and what the
// cart, stock or sale could actually give.
type quantityDetail struct {
	Item      string `json:"item"`
	Requested int    `json:"requested"`
	Available int    `json:"available"`
}

var notFound = []error{
	session.ErrNotFound,
	session.ErrUnknownPromotion,
	session.ErrUnknownDiscount,
	sale.ErrNotFound,
	catalog.ErrNotFound,
	cart.ErrLineNotFound,
	cart.ErrBundleNotFound,
	cart.ErrDiscountNotFound,
}

var conflict = []error{
	cart.ErrVersionConflict,
	session.ErrCheckedOut,
	refund.ErrWindowExpired,
}

var unprocessable = []error{
	session.ErrEmptyCart,
	session.ErrNotBundle,
	catalog.ErrUnavailable,
	pricing.ErrNothingSelected,
	pricing.ErrInvalidDiscount,
	refund.ErrNothingRequested,
	refund.ErrInvalidQuantity,
	refund.ErrExceedsAvailableQuantity,
}

func isAny(err error, targets []error) bool {
	for _, t := range targets {
		if errors.Is(err, t) {
			return true
		}
	}
	return false
}

// classify maps a domain error onto a response. Unknown errors become 500.
func classify(err error) errorResponse {
	var (
		badReq   *badRequestError
		insuff   *pricing.InsufficientQuantityError
		exceeds  *refund.ExceedsAvailableError
		below    *cart.BelowDiscountedError
		addons   *cart.DiscountedAddonsError
		over     *cart.OverAllocatedError
		invQty   *cart.InvalidQuantityError
		invLine  *cart.InvalidLineError
		stock    *catalog.InventoryConflictError
		missing  *pricing.ItemNotFoundError
		inelig   *pricing.IneligibleItemError
		minSpend *pricing.MinSpendError
	)
	resp := func(code int, details any) errorResponse {
		return errorResponse{Code: code, Message: err.Error(), Details: details}
	}

	switch {
	case errors.As(err, &badReq):
		return resp(http.StatusBadRequest, nil)
	case errors.As(err, &insuff):
		return resp(http.StatusUnprocessableEntity, quantityDetail{insuff.ItemName, insuff.Requested, insuff.Available})
	case errors.As(err, &exceeds):
		return resp(http.StatusUnprocessableEntity, quantityDetail{exceeds.ItemName, exceeds.Requested, exceeds.Available})
	case errors.As(err, &below):
		return resp(http.StatusUnprocessableEntity, quantityDetail{below.Name, below.Requested, below.Discounted})
	case errors.As(err, &addons):
		return resp(http.StatusUnprocessableEntity, nil)
	case errors.As(err, &over):
		return resp(http.StatusUnprocessableEntity, quantityDetail{over.Name, over.Allocated, over.Quantity})
	case errors.As(err, &stock):
		return resp(http.StatusUnprocessableEntity, stock.Conflicts)
	case errors.As(err, &invQty), errors.As(err, &invLine):
		return resp(http.StatusBadRequest, nil)
	case errors.As(err, &missing):
		return resp(http.StatusNotFound, nil)
	case errors.As(err, &inelig), errors.As(err, &minSpend):
		return resp(http.StatusUnprocessableEntity, nil)
	case isAny(err, notFound):
		return resp(http.StatusNotFound, nil)
	case isAny(err, conflict):
		return resp(http.StatusConflict, nil)
	case isAny(err, unprocessable):
		return resp(http.StatusUnprocessableEntity, nil)
	default:
		return errorResponse{Code: http.StatusInternalServerError, Message: "internal server error"}
	}
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	resp := classify(err)
	if resp.Code == http.StatusInternalServerError {
		zctx.From(r.Context()).Error("Unhandled error", zap.Error(err))
	}
	writeJSON(w, resp.Code, resp)
}
