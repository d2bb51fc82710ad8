package pricing

import (
	"fmt"
	"maps"
	"slices"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/xenking/pos-pricing/internal/domain/cart"
	"github.com/xenking/pos-pricing/internal/domain/discount"
)

var (
	ErrNothingSelected = errors.New("no item quantities selected")
	ErrInvalidDiscount = errors.New("invalid discount definition")
)

// ItemNotFoundError indicates a selection referencing a missing line.
type ItemNotFoundError struct {
	Index int
}

func (e *ItemNotFoundError) Error() string {
	return fmt.Sprintf("cart line %d not found", e.Index)
}

// IneligibleItemError indicates a line the discount may not target.
type IneligibleItemError struct {
	Index  int
	Name   string
	Reason string
}

func (e *IneligibleItemError) Error() string {
	return fmt.Sprintf("%s is not eligible: %s", e.Name, e.Reason)
}

// InsufficientQuantityError rejects a selection larger than the line's
// undiscounted remainder.
type InsufficientQuantityError struct {
	Index     int
	ItemName  string
	Requested int
	Available int
}

func (e *InsufficientQuantityError) Error() string {
	return fmt.Sprintf("%s: requested %d units, only %d undiscounted", e.ItemName, e.Requested, e.Available)
}

// MinSpendError indicates the cart does not reach the discount's minimum.
type MinSpendError struct {
	MinSpend decimal.Decimal
	Spent    decimal.Decimal
}

func (e *MinSpendError) Error() string {
	return fmt.Sprintf("minimum spend %s not reached, cart is %s", e.MinSpend.StringFixed(2), e.Spent.StringFixed(2))
}

// ApplyDiscount binds def to the selected quantities, keyed by line index.
// Units already covered by the cart's existing discounts are unavailable;
// the discount base of a unit includes its addons.
func ApplyDiscount(c cart.Cart, def discount.Definition, selected map[int]int) (discount.Applied, error) {
	if def.Type != discount.Percentage && def.Type != discount.Fixed {
		return discount.Applied{}, errors.Wrapf(ErrInvalidDiscount, "type %q", def.Type)
	}
	if def.Value.IsNegative() {
		return discount.Applied{}, errors.Wrap(ErrInvalidDiscount, "negative value")
	}

	if def.MinSpend.IsPositive() {
		spent := Subtotal(c.Items).Add(AddonsCost(c.Items))
		if spent.LessThan(def.MinSpend) {
			return discount.Applied{}, &MinSpendError{MinSpend: def.MinSpend, Spent: spent}
		}
	}

	consumed := c.DiscountedQuantity()
	allocs := make(map[int]discount.Allocation, len(selected))
	for _, idx := range slices.Sorted(maps.Keys(selected)) {
		qty := selected[idx]
		if qty <= 0 {
			continue
		}
		if idx < 0 || idx >= len(c.Items) {
			return discount.Applied{}, &ItemNotFoundError{Index: idx}
		}
		item := c.Items[idx]
		switch {
		case item.IsFromBundle():
			return discount.Applied{}, &IneligibleItemError{Index: idx, Name: item.Name, Reason: "part of a bundle"}
		case item.Kind != cart.KindProduct:
			return discount.Applied{}, &IneligibleItemError{Index: idx, Name: item.Name, Reason: "not a product"}
		case !def.Target.Matches(item.Name, item.Category):
			return discount.Applied{}, &IneligibleItemError{Index: idx, Name: item.Name, Reason: "outside discount scope"}
		}

		available := item.Quantity - consumed[idx]
		if qty > available {
			return discount.Applied{}, &InsufficientQuantityError{
				Index:     idx,
				ItemName:  item.Name,
				Requested: qty,
				Available: max(0, available),
			}
		}

		base := item.UnitPrice.Add(item.AddonUnitCost())
		allocs[idx] = discount.Allocation{
			Quantity: qty,
			Amount:   discount.PerUnit(def.Type, def.Value, base).Mul(decimal.NewFromInt(int64(qty))),
		}
	}
	if len(allocs) == 0 {
		return discount.Applied{}, ErrNothingSelected
	}

	return discount.Applied{Definition: def, Allocations: allocs}, nil
}
