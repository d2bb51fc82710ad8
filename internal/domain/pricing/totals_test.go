package pricing

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/xenking/pos-pricing/internal/domain/cart"
	"github.com/xenking/pos-pricing/internal/domain/discount"
)

func TestTotals(t *testing.T) {
	withAddons := item("p1", "Latte", "99.99", 3)
	withAddons.Addons = []cart.Addon{
		{ID: "a1", Name: "Shot", UnitPrice: d("15.50"), Quantity: 2},
		{ID: "a2", Name: "Oat milk", UnitPrice: d("10"), Quantity: 1},
	}

	tests := []struct {
		name     string
		items    []cart.LineItem
		promos   []ItemPromotion
		manual   []discount.Applied
		subtotal string
		addons   string
		total    string
	}{
		{
			name:     "empty cart",
			subtotal: "0",
			addons:   "0",
			total:    "0",
		},
		{
			name:     "addons count per unit",
			items:    []cart.LineItem{withAddons},
			subtotal: "299.97",
			addons:   "123",
			total:    "422.97",
		},
		{
			name:     "rounded once at the end",
			items:    []cart.LineItem{item("p1", "Latte", "10", 3)},
			promos:   []ItemPromotion{{ItemIndex: 0, Quantity: 1, Amount: d("3.333")}, {ItemIndex: 0, Quantity: 1, Amount: d("3.333")}},
			manual:   []discount.Applied{{Allocations: map[int]discount.Allocation{0: {Quantity: 1, Amount: d("0.004")}}}},
			subtotal: "30",
			addons:   "0",
			total:    "23.33",
		},
		{
			name:     "half rounds up",
			items:    []cart.LineItem{item("p1", "Latte", "10.005", 1)},
			subtotal: "10.005",
			addons:   "0",
			total:    "10.01",
		},
		{
			name:     "floored at zero",
			items:    []cart.LineItem{item("p1", "Latte", "10", 1)},
			promos:   []ItemPromotion{{ItemIndex: 0, Quantity: 1, Amount: d("8")}},
			manual:   []discount.Applied{{Allocations: map[int]discount.Allocation{0: {Quantity: 1, Amount: d("5")}}}},
			subtotal: "10",
			addons:   "0",
			total:    "0",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q := Totals(tt.items, tt.promos, tt.manual)
			assertDecimal(t, tt.subtotal, q.Subtotal)
			assertDecimal(t, tt.addons, q.AddonsCost)
			assertDecimal(t, tt.total, q.Total)

			want := q.Subtotal.Add(q.AddonsCost).Sub(q.ManualDiscount).Sub(q.PromotionalDiscount).Round(2)
			if want.IsNegative() {
				want = d("0")
			}
			assert.True(t, want.Equal(q.Total))
		})
	}
}
