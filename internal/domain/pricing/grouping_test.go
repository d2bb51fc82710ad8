package pricing

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenking/pos-pricing/internal/domain/cart"
)

func TestGroupItems(t *testing.T) {
	items := []cart.LineItem{
		bundled(item("p-latte", "Latte", "100", 1), "g1", "bogo"),
		item("p-mocha", "Mocha", "140", 2),
		bundled(item("p-donut", "Donut", "50", 2), "g2", "pair"),
		bundled(item("p-latte", "Latte", "100", 2), "g1", "bogo"),
		item("p-tea", "Tea", "60", 1),
		bundled(item("p-coffee", "Coffee", "80", 1), "g2", "pair"),
	}

	groups := GroupItems(items)
	require.Len(t, groups, 4)

	assert.Equal(t, GroupBundle, groups[0].Type)
	assert.Equal(t, cart.BundleGroupID("g1"), groups[0].BundleID)
	assert.Equal(t, []int{0, 3}, memberIndexes(groups[0]))
	assert.Equal(t, 3, groups[0].TotalQuantity())

	assert.Equal(t, GroupSingleton, groups[1].Type)
	assert.Equal(t, []int{1}, memberIndexes(groups[1]))

	assert.Equal(t, GroupBundle, groups[2].Type)
	assert.Equal(t, []int{2, 5}, memberIndexes(groups[2]))

	assert.Equal(t, []int{4}, memberIndexes(groups[3]))

	assert.Equal(t, "bundle:g1", groups[0].Key())
	assert.Equal(t, "item:1:p-mocha", groups[1].Key())
	assert.Equal(t, "singleton", groups[1].Type.String())
}

func TestGroupItems_Idempotent(t *testing.T) {
	items := []cart.LineItem{
		bundled(item("p-latte", "Latte", "100", 3), "g1", "bogo"),
		item("p-mocha", "Mocha", "140", 2),
		bundled(item("p-latte", "Latte", "100", 1), "g1", "bogo"),
	}

	first := GroupItems(items)
	second := GroupItems(items)
	assert.Equal(t, first, second)
}

func TestGroup_Instances(t *testing.T) {
	g := GroupItems([]cart.LineItem{
		bundled(item("p-latte", "Latte", "100", 2), "g1", "bogo"),
		bundled(item("p-latte", "Latte", "100", 1), "g1", "bogo"),
	})[0]

	assert.Equal(t, []Instance{
		{SourceIndex: 0, SourceProductID: "p-latte", InstanceIndex: 0},
		{SourceIndex: 0, SourceProductID: "p-latte", InstanceIndex: 1},
		{SourceIndex: 1, SourceProductID: "p-latte", InstanceIndex: 0},
	}, g.Instances())
}

func TestGroupItems_Empty(t *testing.T) {
	assert.Empty(t, GroupItems(nil))
}

func memberIndexes(g Group) []int {
	out := make([]int, len(g.Members))
	for i, m := range g.Members {
		out[i] = m.Index
	}
	return out
}
