// Package cart models the register cart as immutable, versioned snapshots.
// All changes go through Cart.Apply, which returns the next snapshot or an
// error leaving the current one untouched.
package cart

import (
	"slices"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/xenking/pos-pricing/internal/domain/discount"
)

// Kind distinguishes sellable goods that promotions may target.
type Kind string

const (
	KindProduct     Kind = "product"
	KindMerchandise Kind = "merchandise"
)

// BundleGroupID identifies one bundle instance. Every unit added as part of
// the same bundle shares the identifier.
type BundleGroupID string

// NewBundleGroupID mints an identifier for a new bundle instance.
func NewBundleGroupID() BundleGroupID {
	return BundleGroupID(uuid.NewString())
}

// Addon is an extra attached to every unit of a line.
type Addon struct {
	ID        string          `json:"id"`
	Name      string          `json:"name"`
	UnitPrice decimal.Decimal `json:"unit_price"`
	Quantity  int             `json:"quantity"`
}

// BundleRef records the bundle instance a line was added under, along with
// the discount terms shown to the cashier at the time.
type BundleRef struct {
	GroupID       BundleGroupID   `json:"group_id"`
	PromotionID   string          `json:"promotion_id"`
	PromotionName string          `json:"promotion_name"`
	DiscountType  discount.Type   `json:"discount_type,omitempty"`
	DiscountValue decimal.Decimal `json:"discount_value"`
}

// LineItem is one row of the cart.
type LineItem struct {
	ProductID string          `json:"product_id"`
	Name      string          `json:"name"`
	Category  string          `json:"category,omitempty"`
	UnitPrice decimal.Decimal `json:"unit_price"`
	Quantity  int             `json:"quantity"`
	Kind      Kind            `json:"kind"`
	Addons    []Addon         `json:"addons,omitempty"`
	Bundle    *BundleRef      `json:"bundle,omitempty"`
}

// IsFromBundle reports whether the line belongs to a bundle instance.
func (li LineItem) IsFromBundle() bool {
	return li.Bundle != nil
}

// AddonUnitCost is the price of all addons attached to a single unit.
func (li LineItem) AddonUnitCost() decimal.Decimal {
	sum := decimal.Zero
	for _, a := range li.Addons {
		sum = sum.Add(a.UnitPrice.Mul(decimal.NewFromInt(int64(a.Quantity))))
	}
	return sum
}

func (li LineItem) clone() LineItem {
	li.Addons = slices.Clone(li.Addons)
	if li.Bundle != nil {
		b := *li.Bundle
		li.Bundle = &b
	}
	return li
}

// Cart is an immutable snapshot. Version grows by one with every successful
// mutation.
type Cart struct {
	ID        string             `json:"id"`
	Version   int64              `json:"version"`
	Items     []LineItem         `json:"items"`
	Discounts []discount.Applied `json:"discounts,omitempty"`
}

// New returns an empty cart at version 1.
func New(id string) Cart {
	return Cart{ID: id, Version: 1}
}

// Apply runs m against a copy of c and returns the resulting snapshot.
func (c Cart) Apply(m Mutation) (Cart, error) {
	next := c.clone()
	if err := m.apply(&next); err != nil {
		return c, err
	}
	if err := next.Validate(); err != nil {
		return c, err
	}
	next.Version = c.Version + 1
	return next, nil
}

// Validate checks the structural invariants of a snapshot.
func (c Cart) Validate() error {
	for i, item := range c.Items {
		if item.Quantity <= 0 {
			return &InvalidQuantityError{Index: i, Quantity: item.Quantity}
		}
		if item.Bundle != nil && item.Bundle.GroupID == "" {
			return &InvalidLineError{Index: i, Reason: "bundle line without group id"}
		}
		for _, a := range item.Addons {
			if a.Quantity <= 0 {
				return &InvalidLineError{Index: i, Reason: "addon " + a.Name + " has non-positive quantity"}
			}
		}
	}
	for idx, used := range c.DiscountedQuantity() {
		if idx < 0 || idx >= len(c.Items) {
			return &InvalidLineError{Index: idx, Reason: "discount allocated to missing line"}
		}
		if used > c.Items[idx].Quantity {
			return &OverAllocatedError{Index: idx, Name: c.Items[idx].Name, Allocated: used, Quantity: c.Items[idx].Quantity}
		}
	}
	return nil
}

// DiscountedQuantity returns, per line index, the units covered by manual
// discounts.
func (c Cart) DiscountedQuantity() map[int]int {
	return discount.ConsumedQuantity(c.Discounts)
}

// BundleLines returns the indexes of lines that belong to the given bundle
// instance.
func (c Cart) BundleLines(id BundleGroupID) []int {
	var out []int
	for i, item := range c.Items {
		if item.Bundle != nil && item.Bundle.GroupID == id {
			out = append(out, i)
		}
	}
	return out
}

func (c Cart) clone() Cart {
	items := make([]LineItem, len(c.Items))
	for i, item := range c.Items {
		items[i] = item.clone()
	}
	var discounts []discount.Applied
	if len(c.Discounts) > 0 {
		discounts = make([]discount.Applied, len(c.Discounts))
		for i, a := range c.Discounts {
			discounts[i] = a.Clone()
		}
	}
	c.Items = items
	c.Discounts = discounts
	return c
}
