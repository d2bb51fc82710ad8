package pricing

import (
	"github.com/shopspring/decimal"

	"github.com/xenking/pos-pricing/internal/domain/cart"
	"github.com/xenking/pos-pricing/internal/domain/discount"
	"github.com/xenking/pos-pricing/internal/domain/promotion"
)

// Quote is the outcome of one allocation pass over a cart. Component sums
// are exact; only Total is rounded.
type Quote struct {
	ItemPromotions      []ItemPromotion `json:"item_promotions"`
	Subtotal            decimal.Decimal `json:"subtotal"`
	AddonsCost          decimal.Decimal `json:"addons_cost"`
	PromotionalDiscount decimal.Decimal `json:"promotional_discount"`
	ManualDiscount      decimal.Decimal `json:"manual_discount"`
	Total               decimal.Decimal `json:"total"`
}

// Allocate runs the whole forward pipeline with the default allocator.
func Allocate(items []cart.LineItem, promotions []promotion.Definition, manual []discount.Applied) Quote {
	return Allocator{}.Allocate(items, promotions, manual)
}

// Allocate groups the cart, allocates promotions around the manual
// discounts and computes the totals.
func (a Allocator) Allocate(items []cart.LineItem, promotions []promotion.Definition, manual []discount.Applied) Quote {
	return Totals(items, a.Promotions(items, promotions, manual), manual)
}

// Totals folds line prices, addons and allocations into a Quote. The total
// is rounded half-up to two places once, then floored at zero.
func Totals(items []cart.LineItem, promos []ItemPromotion, manual []discount.Applied) Quote {
	q := Quote{
		ItemPromotions:      promos,
		Subtotal:            Subtotal(items),
		AddonsCost:          AddonsCost(items),
		PromotionalDiscount: decimal.Zero,
		ManualDiscount:      decimal.Zero,
	}
	for _, p := range promos {
		q.PromotionalDiscount = q.PromotionalDiscount.Add(p.Amount)
	}
	for _, m := range manual {
		q.ManualDiscount = q.ManualDiscount.Add(m.Amount())
	}

	total := q.Subtotal.Add(q.AddonsCost).Sub(q.ManualDiscount).Sub(q.PromotionalDiscount)
	q.Total = floorAtZero(total.Round(2))
	return q
}

// Subtotal is the sum of price times quantity over all lines.
func Subtotal(items []cart.LineItem) decimal.Decimal {
	sum := decimal.Zero
	for _, item := range items {
		sum = sum.Add(item.UnitPrice.Mul(decimal.NewFromInt(int64(item.Quantity))))
	}
	return sum
}

// AddonsCost is the addon price of every unit in the cart.
func AddonsCost(items []cart.LineItem) decimal.Decimal {
	sum := decimal.Zero
	for _, item := range items {
		sum = sum.Add(item.AddonUnitCost().Mul(decimal.NewFromInt(int64(item.Quantity))))
	}
	return sum
}

// PromotionsFor returns the allocations that target line idx.
func (q Quote) PromotionsFor(idx int) []ItemPromotion {
	var out []ItemPromotion
	for _, p := range q.ItemPromotions {
		if p.ItemIndex == idx {
			out = append(out, p)
		}
	}
	return out
}

func floorAtZero(d decimal.Decimal) decimal.Decimal {
	if d.IsNegative() {
		return decimal.Zero
	}
	return d
}
