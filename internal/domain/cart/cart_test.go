package cart

import (
	"testing"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenking/pos-pricing/internal/domain/discount"
)

func d(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func latte(qty int) LineItem {
	return LineItem{ProductID: "p-latte", Name: "Latte", Category: "Coffee", UnitPrice: d("120"), Quantity: qty, Kind: KindProduct}
}

func mocha(qty int) LineItem {
	return LineItem{ProductID: "p-mocha", Name: "Mocha", Category: "Coffee", UnitPrice: d("140"), Quantity: qty, Kind: KindProduct}
}

func mustApply(t *testing.T, c Cart, m Mutation) Cart {
	t.Helper()
	next, err := c.Apply(m)
	require.NoError(t, err)
	return next
}

func TestApply_BumpsVersionAndKeepsPrevious(t *testing.T) {
	c := New("c1")
	next := mustApply(t, c, AddLine{Item: latte(2)})

	assert.Equal(t, int64(1), c.Version)
	assert.Empty(t, c.Items)
	assert.Equal(t, int64(2), next.Version)
	require.Len(t, next.Items, 1)

	next.Items[0].Quantity = 99
	again := mustApply(t, next, SetQuantity{Index: 0, Quantity: 3})
	assert.Equal(t, 3, again.Items[0].Quantity)
	assert.Equal(t, 99, next.Items[0].Quantity)
}

func TestApply_FailureLeavesSnapshot(t *testing.T) {
	c := mustApply(t, New("c1"), AddLine{Item: latte(2)})

	got, err := c.Apply(SetQuantity{Index: 5, Quantity: 1})
	require.ErrorIs(t, err, ErrLineNotFound)
	assert.Equal(t, c.Version, got.Version)
	assert.Equal(t, c.Items, got.Items)
}

func TestAddLine(t *testing.T) {
	shot := Addon{ID: "a-shot", Name: "Extra shot", UnitPrice: d("20"), Quantity: 1}

	tests := []struct {
		name      string
		start     []Mutation
		add       LineItem
		wantLines int
		wantQty   []int
	}{
		{
			name:      "merges same product",
			start:     []Mutation{AddLine{Item: latte(1)}},
			add:       latte(2),
			wantLines: 1,
			wantQty:   []int{3},
		},
		{
			name:      "different product appends",
			start:     []Mutation{AddLine{Item: latte(1)}},
			add:       mocha(1),
			wantLines: 2,
			wantQty:   []int{1, 1},
		},
		{
			name:  "different addons append",
			start: []Mutation{AddLine{Item: latte(1)}},
			add: func() LineItem {
				li := latte(1)
				li.Addons = []Addon{shot}
				return li
			}(),
			wantLines: 2,
			wantQty:   []int{1, 1},
		},
		{
			name:  "bundle lines never merge",
			start: []Mutation{AddLine{Item: latte(1)}},
			add: func() LineItem {
				li := latte(2)
				li.Bundle = &BundleRef{GroupID: "g1", PromotionID: "promo"}
				return li
			}(),
			wantLines: 2,
			wantQty:   []int{1, 2},
		},
		{
			name: "discounted line does not absorb new units",
			start: []Mutation{
				AddLine{Item: latte(1)},
				AttachDiscount{Discount: discount.Applied{Allocations: map[int]discount.Allocation{0: {Quantity: 1, Amount: d("12")}}}},
			},
			add:       latte(1),
			wantLines: 2,
			wantQty:   []int{1, 1},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := New("c")
			for _, m := range tt.start {
				c = mustApply(t, c, m)
			}
			c = mustApply(t, c, AddLine{Item: tt.add})
			require.Len(t, c.Items, tt.wantLines)
			for i, q := range tt.wantQty {
				assert.Equal(t, q, c.Items[i].Quantity, "line %d", i)
			}
		})
	}
}

func TestAddLine_RejectsZeroQuantity(t *testing.T) {
	_, err := New("c").Apply(AddLine{Item: latte(0)})
	var qe *InvalidQuantityError
	require.True(t, errors.As(err, &qe))
}

func TestSetQuantity_BelowDiscounted(t *testing.T) {
	c := mustApply(t, New("c"), AddLine{Item: latte(3)})
	c = mustApply(t, c, AttachDiscount{Discount: discount.Applied{
		Allocations: map[int]discount.Allocation{0: {Quantity: 2, Amount: d("24")}},
	}})

	_, err := c.Apply(SetQuantity{Index: 0, Quantity: 1})
	var be *BelowDiscountedError
	require.True(t, errors.As(err, &be))
	assert.Equal(t, "Latte", be.Name)
	assert.Equal(t, 1, be.Requested)
	assert.Equal(t, 2, be.Discounted)

	c = mustApply(t, c, SetQuantity{Index: 0, Quantity: 2})
	assert.Equal(t, 2, c.Items[0].Quantity)
}

func TestSetAddons_Discounted(t *testing.T) {
	shot := Addon{ID: "a1", Name: "Shot", UnitPrice: d("20"), Quantity: 1}
	c := mustApply(t, New("c"), AddLine{Item: latte(2)})
	c = mustApply(t, c, AddLine{Item: mocha(1)})
	c = mustApply(t, c, AttachDiscount{Discount: discount.Applied{
		Allocations: map[int]discount.Allocation{0: {Quantity: 1, Amount: d("12")}},
	}})

	_, err := c.Apply(SetAddons{Index: 0, Addons: []Addon{shot}})
	var de *DiscountedAddonsError
	require.True(t, errors.As(err, &de))
	assert.Equal(t, "Latte", de.Name)
	assert.Equal(t, 1, de.Discounted)

	c = mustApply(t, c, SetAddons{Index: 1, Addons: []Addon{shot}})
	require.Len(t, c.Items[1].Addons, 1)
	assert.Equal(t, "a1", c.Items[1].Addons[0].ID)

	c = mustApply(t, c, DetachDiscount{Position: 0})
	c = mustApply(t, c, SetAddons{Index: 0, Addons: []Addon{shot}})
	assert.Len(t, c.Items[0].Addons, 1)
}

func TestSetQuantity_ZeroRemovesLine(t *testing.T) {
	c := mustApply(t, New("c"), AddLine{Item: latte(1)})
	c = mustApply(t, c, AddLine{Item: mocha(1)})
	c = mustApply(t, c, SetQuantity{Index: 0, Quantity: 0})

	require.Len(t, c.Items, 1)
	assert.Equal(t, "Mocha", c.Items[0].Name)
}

func TestRemoveLine_ReindexesDiscounts(t *testing.T) {
	c := mustApply(t, New("c"), AddLine{Item: latte(1)})
	c = mustApply(t, c, AddLine{Item: mocha(2)})
	c = mustApply(t, c, AttachDiscount{Discount: discount.Applied{
		Definition:  discount.Definition{ID: "only-latte"},
		Allocations: map[int]discount.Allocation{0: {Quantity: 1, Amount: d("12")}},
	}})
	c = mustApply(t, c, AttachDiscount{Discount: discount.Applied{
		Definition: discount.Definition{ID: "both"},
		Allocations: map[int]discount.Allocation{
			0: {Quantity: 0},
			1: {Quantity: 1, Amount: d("14")},
		},
	}})

	c = mustApply(t, c, RemoveLine{Index: 0})

	require.Len(t, c.Items, 1)
	require.Len(t, c.Discounts, 1)
	assert.Equal(t, "both", c.Discounts[0].Definition.ID)
	assert.Equal(t, map[int]discount.Allocation{0: {Quantity: 1, Amount: d("14")}}, c.Discounts[0].Allocations)
}

func TestRemoveBundle(t *testing.T) {
	bundled := func(item LineItem, id BundleGroupID) LineItem {
		item.Bundle = &BundleRef{GroupID: id, PromotionID: "b1"}
		return item
	}

	c := mustApply(t, New("c"), AddLine{Item: bundled(latte(1), "g1")})
	c = mustApply(t, c, AddLine{Item: mocha(1)})
	c = mustApply(t, c, AddLine{Item: bundled(latte(1), "g1")})
	c = mustApply(t, c, AddLine{Item: bundled(latte(2), "g2")})

	assert.Equal(t, []int{0, 2}, c.BundleLines("g1"))

	c = mustApply(t, c, RemoveBundle{GroupID: "g1"})
	require.Len(t, c.Items, 2)
	assert.Equal(t, "Mocha", c.Items[0].Name)
	assert.Equal(t, BundleGroupID("g2"), c.Items[1].Bundle.GroupID)

	_, err := c.Apply(RemoveBundle{GroupID: "g1"})
	require.ErrorIs(t, err, ErrBundleNotFound)
}

func TestAttachDiscount_RejectsOverAllocation(t *testing.T) {
	c := mustApply(t, New("c"), AddLine{Item: latte(2)})
	c = mustApply(t, c, AttachDiscount{Discount: discount.Applied{
		Allocations: map[int]discount.Allocation{0: {Quantity: 1}},
	}})

	_, err := c.Apply(AttachDiscount{Discount: discount.Applied{
		Allocations: map[int]discount.Allocation{0: {Quantity: 2}},
	}})
	var oe *OverAllocatedError
	require.True(t, errors.As(err, &oe))
	assert.Equal(t, 3, oe.Allocated)
	assert.Equal(t, 2, oe.Quantity)
}

func TestDetachDiscountAndClear(t *testing.T) {
	c := mustApply(t, New("c"), AddLine{Item: latte(2)})
	c = mustApply(t, c, AttachDiscount{Discount: discount.Applied{
		Allocations: map[int]discount.Allocation{0: {Quantity: 2}},
	}})
	assert.Equal(t, map[int]int{0: 2}, c.DiscountedQuantity())

	c = mustApply(t, c, DetachDiscount{Position: 0})
	assert.Empty(t, c.DiscountedQuantity())

	_, err := c.Apply(DetachDiscount{Position: 0})
	require.ErrorIs(t, err, ErrDiscountNotFound)

	c = mustApply(t, c, Clear{})
	assert.Empty(t, c.Items)
	assert.Empty(t, c.Discounts)
}

func TestBatch(t *testing.T) {
	ref := &BundleRef{GroupID: "g1", PromotionID: "b1"}
	a, b := latte(2), mocha(1)
	a.Bundle, b.Bundle = ref, ref

	c := mustApply(t, New("c"), Batch{AddLine{Item: a}, AddLine{Item: b}})
	assert.Equal(t, int64(2), c.Version)
	assert.Equal(t, []int{0, 1}, c.BundleLines("g1"))

	got, err := c.Apply(Batch{AddLine{Item: latte(1)}, SetQuantity{Index: 9, Quantity: 1}})
	require.ErrorIs(t, err, ErrLineNotFound)
	assert.Len(t, got.Items, 2)
}

func TestLineItem_AddonUnitCost(t *testing.T) {
	li := latte(3)
	li.Addons = []Addon{
		{ID: "a1", Name: "Shot", UnitPrice: d("20"), Quantity: 2},
		{ID: "a2", Name: "Syrup", UnitPrice: d("15.5"), Quantity: 1},
	}
	assert.True(t, d("55.5").Equal(li.AddonUnitCost()))
}

func TestNewBundleGroupID_Unique(t *testing.T) {
	a, b := NewBundleGroupID(), NewBundleGroupID()
	assert.NotEmpty(t, a)
	assert.NotEqual(t, a, b)
}
