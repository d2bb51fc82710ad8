// Package promotion normalizes externally stored promotion records into the
// Definition variant consumed by the pricing allocator.
package promotion

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/xenking/pos-pricing/internal/domain/discount"
)

// Kind is the shape of a promotion.
type Kind string

const (
	KindPercentage Kind = "percentage"
	KindFixed      Kind = "fixed"
	KindBundle     Kind = "bundle"
)

// BundleTerms describes a buy-X-get-Y offer. Products holds one name when
// buy and get units are the same product, or two names (buy, get).
type BundleTerms struct {
	BuyQuantity   int             `json:"buy_quantity"`
	GetQuantity   int             `json:"get_quantity"`
	Products      []string        `json:"products"`
	DiscountType  discount.Type   `json:"discount_type"`
	DiscountValue decimal.Decimal `json:"discount_value"`
}

// Size is the number of units that make up one bundle.
func (b BundleTerms) Size() int {
	return b.BuyQuantity + b.GetQuantity
}

// Definition is a normalized automatic promotion.
type Definition struct {
	ID         string          `json:"id"`
	Name       string          `json:"name"`
	Kind       Kind            `json:"kind"`
	Value      decimal.Decimal `json:"value"`
	Target     discount.Target `json:"target"`
	Priority   int             `json:"priority"`
	Bundle     *BundleTerms    `json:"bundle,omitempty"`
	ValidFrom  *time.Time      `json:"valid_from,omitempty"`
	ValidUntil *time.Time      `json:"valid_until,omitempty"`
}

// DiscountType maps a percentage or fixed promotion onto the per-unit rule.
func (d Definition) DiscountType() discount.Type {
	if d.Kind == KindPercentage {
		return discount.Percentage
	}
	return discount.Fixed
}

// ActiveAt reports whether now falls inside the promotion's validity window.
func (d Definition) ActiveAt(now time.Time) bool {
	if d.ValidFrom != nil && now.Before(*d.ValidFrom) {
		return false
	}
	if d.ValidUntil != nil && now.After(*d.ValidUntil) {
		return false
	}
	return true
}

// Catalog is an ordered, read-only set of definitions.
type Catalog struct {
	defs []Definition
	byID map[string]int
}

// NewCatalog indexes defs by id. Order is preserved; when ids repeat the
// first definition wins the lookup.
func NewCatalog(defs []Definition) *Catalog {
	c := &Catalog{defs: defs, byID: make(map[string]int, len(defs))}
	for i, def := range defs {
		if _, ok := c.byID[def.ID]; !ok {
			c.byID[def.ID] = i
		}
	}
	return c
}

// Lookup returns the definition with the given id.
func (c *Catalog) Lookup(id string) (Definition, bool) {
	i, ok := c.byID[id]
	if !ok {
		return Definition{}, false
	}
	return c.defs[i], true
}

// All returns the definitions in catalog order.
func (c *Catalog) All() []Definition {
	return c.defs
}
