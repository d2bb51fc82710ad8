package discount

import (
	"context"
	"maps"
	"slices"

	"github.com/shopspring/decimal"
)

// Definition is a discount the operator may apply by hand.
type Definition struct {
	ID       string          `json:"id"`
	Name     string          `json:"name"`
	Type     Type            `json:"type"`
	Value    decimal.Decimal `json:"value"`
	MinSpend decimal.Decimal `json:"min_spend"`
	Target   Target          `json:"target"`
}

// Allocation is the share of a discount granted to one cart line.
type Allocation struct {
	Quantity int             `json:"quantity"`
	Amount   decimal.Decimal `json:"amount"`
}

// Applied is a manual discount bound to explicit line quantities. The map is
// keyed by line index in the owning cart.
type Applied struct {
	Definition  Definition         `json:"definition"`
	Allocations map[int]Allocation `json:"allocations"`
}

// Amount is the total value of the discount across all lines.
func (a Applied) Amount() decimal.Decimal {
	sum := decimal.Zero
	for _, alloc := range a.Allocations {
		sum = sum.Add(alloc.Amount)
	}
	return sum
}

// Indexes returns the allocated line indexes in ascending order.
func (a Applied) Indexes() []int {
	return slices.Sorted(maps.Keys(a.Allocations))
}

// Clone returns a deep copy so snapshots never share allocation maps.
func (a Applied) Clone() Applied {
	a.Definition.Target.Names = slices.Clone(a.Definition.Target.Names)
	a.Allocations = maps.Clone(a.Allocations)
	return a
}

// ConsumedQuantity sums, per line index, the quantity already covered by the
// given discounts.
func ConsumedQuantity(applied []Applied) map[int]int {
	used := make(map[int]int)
	for _, a := range applied {
		for idx, alloc := range a.Allocations {
			used[idx] += alloc.Quantity
		}
	}
	return used
}

// Repository lists the discounts an operator may choose from.
type Repository interface {
	ListDiscounts(ctx context.Context) ([]Definition, error)
}
