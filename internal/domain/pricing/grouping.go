package pricing

import (
	"strconv"

	"github.com/xenking/pos-pricing/internal/domain/cart"
)

// GroupType tells bundle groups from standalone lines.
type GroupType int

const (
	GroupSingleton GroupType = iota
	GroupBundle
)

func (t GroupType) String() string {
	if t == GroupBundle {
		return "bundle"
	}
	return "singleton"
}

// Member is a cart line placed in a group, with its index in the cart.
type Member struct {
	Index int
	Item  cart.LineItem
}

// Instance is a single unit of a member line.
type Instance struct {
	SourceIndex     int
	SourceProductID string
	InstanceIndex   int
}

// Group is a set of lines that are discounted and removed together.
type Group struct {
	Type     GroupType
	BundleID cart.BundleGroupID
	Members  []Member
}

// Key identifies the group across recomputations. Bundle keys depend only
// on the bundle instance, singleton keys on the line position and product.
func (g Group) Key() string {
	if g.Type == GroupBundle {
		return "bundle:" + string(g.BundleID)
	}
	m := g.Members[0]
	return "item:" + strconv.Itoa(m.Index) + ":" + m.Item.ProductID
}

// TotalQuantity sums the quantity of every member.
func (g Group) TotalQuantity() int {
	total := 0
	for _, m := range g.Members {
		total += m.Item.Quantity
	}
	return total
}

// Instances expands every member into one entry per unit.
func (g Group) Instances() []Instance {
	out := make([]Instance, 0, g.TotalQuantity())
	for _, m := range g.Members {
		for i := range m.Item.Quantity {
			out = append(out, Instance{
				SourceIndex:     m.Index,
				SourceProductID: m.Item.ProductID,
				InstanceIndex:   i,
			})
		}
	}
	return out
}

// GroupItems partitions items into bundle and singleton groups. Groups come
// out in the order of their first line.
func GroupItems(items []cart.LineItem) []Group {
	visited := make([]bool, len(items))
	groups := make([]Group, 0, len(items))

	for i, item := range items {
		if visited[i] {
			continue
		}
		visited[i] = true

		if item.Bundle == nil || item.Bundle.GroupID == "" {
			groups = append(groups, Group{
				Type:    GroupSingleton,
				Members: []Member{{Index: i, Item: item}},
			})
			continue
		}

		id := item.Bundle.GroupID
		g := Group{
			Type:     GroupBundle,
			BundleID: id,
			Members:  []Member{{Index: i, Item: item}},
		}
		for j := i + 1; j < len(items); j++ {
			other := items[j]
			if visited[j] || other.Bundle == nil || other.Bundle.GroupID != id {
				continue
			}
			visited[j] = true
			g.Members = append(g.Members, Member{Index: j, Item: other})
		}
		groups = append(groups, g)
	}
	return groups
}
