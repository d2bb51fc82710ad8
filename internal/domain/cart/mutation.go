package cart

import (
	"slices"
	"strconv"

	"github.com/xenking/pos-pricing/internal/domain/discount"
)

// Mutation is a single change to a cart. Mutations operate on a private copy
// inside Cart.Apply.
type Mutation interface {
	apply(c *Cart) error
}

// AddLine appends an item, or merges it into an existing standalone line of
// the same product with the same addons and no manual discount.
type AddLine struct {
	Item LineItem
}

func (m AddLine) apply(c *Cart) error {
	if m.Item.Quantity <= 0 {
		return &InvalidQuantityError{Index: len(c.Items), Quantity: m.Item.Quantity}
	}
	if m.Item.Bundle == nil {
		discounted := c.DiscountedQuantity()
		for i := range c.Items {
			existing := &c.Items[i]
			if existing.Bundle != nil || existing.ProductID != m.Item.ProductID || discounted[i] > 0 {
				continue
			}
			if !slices.Equal(addonKeys(existing.Addons), addonKeys(m.Item.Addons)) {
				continue
			}
			existing.Quantity += m.Item.Quantity
			return nil
		}
	}
	c.Items = append(c.Items, m.Item.clone())
	return nil
}

func addonKeys(addons []Addon) []string {
	keys := make([]string, 0, len(addons))
	for _, a := range addons {
		keys = append(keys, a.ID+"/"+a.UnitPrice.String()+"/"+strconv.Itoa(a.Quantity))
	}
	slices.Sort(keys)
	return keys
}

// SetQuantity changes the quantity of one line. Zero removes the line.
type SetQuantity struct {
	Index    int
	Quantity int
}

func (m SetQuantity) apply(c *Cart) error {
	if m.Index < 0 || m.Index >= len(c.Items) {
		return ErrLineNotFound
	}
	if m.Quantity < 0 {
		return &InvalidQuantityError{Index: m.Index, Quantity: m.Quantity}
	}
	if used := c.DiscountedQuantity()[m.Index]; m.Quantity < used {
		return &BelowDiscountedError{Name: c.Items[m.Index].Name, Requested: m.Quantity, Discounted: used}
	}
	if m.Quantity == 0 {
		return RemoveLine{Index: m.Index}.apply(c)
	}
	c.Items[m.Index].Quantity = m.Quantity
	return nil
}

// RemoveLine deletes a line together with any discount allocations it holds.
type RemoveLine struct {
	Index int
}

func (m RemoveLine) apply(c *Cart) error {
	if m.Index < 0 || m.Index >= len(c.Items) {
		return ErrLineNotFound
	}
	c.removeLines([]int{m.Index})
	return nil
}

// RemoveBundle deletes every line of one bundle instance.
type RemoveBundle struct {
	GroupID BundleGroupID
}

func (m RemoveBundle) apply(c *Cart) error {
	lines := c.BundleLines(m.GroupID)
	if len(lines) == 0 {
		return ErrBundleNotFound
	}
	c.removeLines(lines)
	return nil
}

// SetAddons replaces the addons of one line. Lines holding manual discount
// units keep their addons until the discount is removed.
type SetAddons struct {
	Index  int
	Addons []Addon
}

func (m SetAddons) apply(c *Cart) error {
	if m.Index < 0 || m.Index >= len(c.Items) {
		return ErrLineNotFound
	}
	if used := c.DiscountedQuantity()[m.Index]; used > 0 {
		return &DiscountedAddonsError{Name: c.Items[m.Index].Name, Discounted: used}
	}
	c.Items[m.Index].Addons = slices.Clone(m.Addons)
	return nil
}

// AttachDiscount records a manual discount. Validate rejects it when any line
// would end up with more discounted units than it holds.
type AttachDiscount struct {
	Discount discount.Applied
}

func (m AttachDiscount) apply(c *Cart) error {
	c.Discounts = append(c.Discounts, m.Discount.Clone())
	return nil
}

// DetachDiscount removes the manual discount at Position, freeing its units.
type DetachDiscount struct {
	Position int
}

func (m DetachDiscount) apply(c *Cart) error {
	if m.Position < 0 || m.Position >= len(c.Discounts) {
		return ErrDiscountNotFound
	}
	c.Discounts = slices.Delete(c.Discounts, m.Position, m.Position+1)
	return nil
}

// Batch applies several mutations as one version step. The first failure
// aborts the whole batch.
type Batch []Mutation

func (b Batch) apply(c *Cart) error {
	for _, m := range b {
		if err := m.apply(c); err != nil {
			return err
		}
	}
	return nil
}

// Clear empties the cart.
type Clear struct{}

func (Clear) apply(c *Cart) error {
	c.Items = nil
	c.Discounts = nil
	return nil
}

// removeLines deletes the given line indexes and shifts discount allocations
// of the lines that follow. Discounts left without allocations are dropped.
func (c *Cart) removeLines(indexes []int) {
	drop := make(map[int]bool, len(indexes))
	for _, i := range indexes {
		drop[i] = true
	}

	remap := make(map[int]int, len(c.Items))
	kept := c.Items[:0]
	for i, item := range c.Items {
		if drop[i] {
			continue
		}
		remap[i] = len(kept)
		kept = append(kept, item)
	}
	c.Items = kept

	discounts := c.Discounts[:0]
	for _, a := range c.Discounts {
		allocs := make(map[int]discount.Allocation, len(a.Allocations))
		for idx, alloc := range a.Allocations {
			if n, ok := remap[idx]; ok {
				allocs[n] = alloc
			}
		}
		if len(allocs) == 0 {
			continue
		}
		a.Allocations = allocs
		discounts = append(discounts, a)
	}
	if len(discounts) == 0 {
		discounts = nil
	}
	c.Discounts = discounts
}
