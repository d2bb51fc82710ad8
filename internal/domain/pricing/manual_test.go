package pricing

import (
	"testing"

	"github.com/go-faster/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenking/pos-pricing/internal/domain/cart"
	"github.com/xenking/pos-pricing/internal/domain/discount"
)

func newCart(t *testing.T, items ...cart.LineItem) cart.Cart {
	t.Helper()
	c := cart.New("c")
	for _, li := range items {
		var err error
		c, err = c.Apply(cart.AddLine{Item: li})
		require.NoError(t, err)
	}
	return c
}

func percentOff(value string) discount.Definition {
	return discount.Definition{
		ID:     "pct",
		Name:   "Percent off",
		Type:   discount.Percentage,
		Value:  d(value),
		Target: discount.Target{Scope: discount.ScopeAllProducts},
	}
}

func TestApplyDiscount(t *testing.T) {
	latte := item("p1", "Latte", "100", 3)
	latte.Addons = []cart.Addon{{ID: "a1", Name: "Shot", UnitPrice: d("20"), Quantity: 1}}
	c := newCart(t, latte, item("p2", "Mocha", "140", 1))

	applied, err := ApplyDiscount(c, percentOff("10"), map[int]int{0: 2, 1: 1})
	require.NoError(t, err)

	assert.Equal(t, "pct", applied.Definition.ID)
	assert.Equal(t, 2, applied.Allocations[0].Quantity)
	assertDecimal(t, "24", applied.Allocations[0].Amount)
	assertDecimal(t, "14", applied.Allocations[1].Amount)
	assertDecimal(t, "38", applied.Amount())
}

func TestApplyDiscount_StacksOnDifferentUnits(t *testing.T) {
	c := newCart(t, item("p1", "Latte", "100", 3))

	first, err := ApplyDiscount(c, percentOff("10"), map[int]int{0: 2})
	require.NoError(t, err)
	c, err = c.Apply(cart.AttachDiscount{Discount: first})
	require.NoError(t, err)

	fixed := discount.Definition{ID: "fixed", Type: discount.Fixed, Value: d("30"), Target: discount.Target{Scope: discount.ScopeAllProducts}}
	second, err := ApplyDiscount(c, fixed, map[int]int{0: 1})
	require.NoError(t, err)
	assertDecimal(t, "30", second.Amount())

	c, err = c.Apply(cart.AttachDiscount{Discount: second})
	require.NoError(t, err)

	_, err = ApplyDiscount(c, fixed, map[int]int{0: 1})
	var qe *InsufficientQuantityError
	require.True(t, errors.As(err, &qe))
	assert.Equal(t, "Latte", qe.ItemName)
	assert.Equal(t, 1, qe.Requested)
	assert.Equal(t, 0, qe.Available)

	c, err = c.Apply(cart.DetachDiscount{Position: 0})
	require.NoError(t, err)
	_, err = ApplyDiscount(c, fixed, map[int]int{0: 2})
	require.NoError(t, err)
}

func TestApplyDiscount_Errors(t *testing.T) {
	merch := item("m1", "Mug", "300", 1)
	merch.Kind = cart.KindMerchandise
	c := newCart(t,
		item("p1", "Latte", "100", 2),
		bundled(item("p2", "Donut", "50", 2), "g1", "bogo"),
		merch,
	)

	scoped := percentOff("10")
	scoped.Target = discount.Target{Scope: discount.ScopeSpecificProducts, Names: []string{"Mocha"}}

	minSpend := percentOff("10")
	minSpend.MinSpend = d("1000")

	tests := []struct {
		name     string
		def      discount.Definition
		selected map[int]int
		check    func(t *testing.T, err error)
	}{
		{
			name:     "nothing selected",
			def:      percentOff("10"),
			selected: map[int]int{0: 0},
			check:    func(t *testing.T, err error) { require.ErrorIs(t, err, ErrNothingSelected) },
		},
		{
			name:     "missing line",
			def:      percentOff("10"),
			selected: map[int]int{7: 1},
			check: func(t *testing.T, err error) {
				var nf *ItemNotFoundError
				require.True(t, errors.As(err, &nf))
				assert.Equal(t, 7, nf.Index)
			},
		},
		{
			name:     "more than in cart",
			def:      percentOff("10"),
			selected: map[int]int{0: 3},
			check: func(t *testing.T, err error) {
				var qe *InsufficientQuantityError
				require.True(t, errors.As(err, &qe))
				assert.Equal(t, 2, qe.Available)
			},
		},
		{
			name:     "bundle line",
			def:      percentOff("10"),
			selected: map[int]int{1: 1},
			check:    ineligible("part of a bundle"),
		},
		{
			name:     "merchandise",
			def:      percentOff("10"),
			selected: map[int]int{2: 1},
			check:    ineligible("not a product"),
		},
		{
			name:     "out of scope",
			def:      scoped,
			selected: map[int]int{0: 1},
			check:    ineligible("outside discount scope"),
		},
		{
			name:     "min spend",
			def:      minSpend,
			selected: map[int]int{0: 1},
			check: func(t *testing.T, err error) {
				var me *MinSpendError
				require.True(t, errors.As(err, &me))
				assertDecimal(t, "600", me.Spent)
			},
		},
		{
			name:     "unknown type",
			def:      discount.Definition{ID: "x", Type: "bogus", Target: discount.Target{Scope: discount.ScopeAllProducts}},
			selected: map[int]int{0: 1},
			check:    func(t *testing.T, err error) { require.ErrorIs(t, err, ErrInvalidDiscount) },
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ApplyDiscount(c, tt.def, tt.selected)
			require.Error(t, err)
			tt.check(t, err)
		})
	}
}

func ineligible(reason string) func(t *testing.T, err error) {
	return func(t *testing.T, err error) {
		var ie *IneligibleItemError
		require.True(t, errors.As(err, &ie))
		assert.Equal(t, reason, ie.Reason)
	}
}
