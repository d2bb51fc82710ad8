// Package pricing allocates automatic promotions and manual discounts to
// cart units and folds them into cart totals. Every function here is pure:
// callers fetch collaborators' data first and pass snapshots in.
package pricing

import (
	"github.com/shopspring/decimal"

	"github.com/xenking/pos-pricing/internal/domain/cart"
	"github.com/xenking/pos-pricing/internal/domain/discount"
	"github.com/xenking/pos-pricing/internal/domain/promotion"
)

// ItemPromotion is the share of an automatic promotion granted to one line.
type ItemPromotion struct {
	ItemIndex     int             `json:"item_index"`
	Quantity      int             `json:"quantity"`
	Amount        decimal.Decimal `json:"amount"`
	PromotionID   string          `json:"promotion_id"`
	PromotionName string          `json:"promotion_name"`
}

// BuyUnitDiscount is an extra discount on the "buy" product of two-product
// bundles, granted once per completed set while the group stays within
// floor(total/size)*get promoted units. Rate is a fraction of the buy unit
// price; Cap bounds it for fixed-value bundles.
type BuyUnitDiscount struct {
	Rate decimal.Decimal
	Cap  decimal.Decimal
}

// Allocator computes promotion allocations. The zero value discounts only
// the "get" units of bundles.
type Allocator struct {
	BuyUnitDiscount *BuyUnitDiscount
}

// Promotions returns the automatic promotion allocations for items, leaving
// out units already covered by manual discounts.
func (a Allocator) Promotions(items []cart.LineItem, promotions []promotion.Definition, manual []discount.Applied) []ItemPromotion {
	catalog := promotion.NewCatalog(promotions)
	consumed := discount.ConsumedQuantity(manual)

	var out []ItemPromotion
	for _, g := range GroupItems(items) {
		switch g.Type {
		case GroupBundle:
			out = append(out, a.allocateBundle(g, catalog, consumed)...)
		case GroupSingleton:
			if p, ok := bestPromotion(g.Members[0], promotions, consumed); ok {
				out = append(out, p)
			}
		}
	}

	assertNoOverlap(items, out, consumed)
	return out
}

func (a Allocator) allocateBundle(g Group, catalog *promotion.Catalog, consumed map[int]int) []ItemPromotion {
	ref := g.Members[0].Item.Bundle
	def, ok := catalog.Lookup(ref.PromotionID)
	if !ok || def.Bundle == nil {
		return nil
	}
	terms := *def.Bundle
	if ref.DiscountType != "" {
		terms.DiscountType = ref.DiscountType
		terms.DiscountValue = ref.DiscountValue
	}

	if len(terms.Products) == 1 {
		return allocateSingleProduct(g, def, terms, consumed)
	}
	return a.allocateTwoProducts(g, def, terms, consumed)
}

func allocateSingleProduct(g Group, def promotion.Definition, terms promotion.BundleTerms, consumed map[int]int) []ItemPromotion {
	members := membersNamed(g, terms.Products[0])
	total := sumQuantity(members)
	if total == 0 || terms.Size() == 0 {
		return nil
	}

	bundles := total / terms.Size()
	units := bundles * terms.GetQuantity
	if units == 0 {
		return nil
	}

	out := spread(def, members, units, total, consumed, func(price decimal.Decimal) decimal.Decimal {
		return discount.PerUnit(terms.DiscountType, terms.DiscountValue, price)
	})
	assertBundleBound(g, out, units)
	return out
}

func (a Allocator) allocateTwoProducts(g Group, def promotion.Definition, terms promotion.BundleTerms, consumed map[int]int) []ItemPromotion {
	buyMembers := membersNamed(g, terms.Products[0])
	getMembers := membersNamed(g, terms.Products[1])
	buyQty := sumQuantity(buyMembers)
	getQty := sumQuantity(getMembers)
	if terms.BuyQuantity <= 0 || getQty == 0 {
		return nil
	}

	sets := buyQty / terms.BuyQuantity
	units := min(getQty, sets*terms.GetQuantity)
	if units == 0 {
		return nil
	}

	out := spread(def, getMembers, units, getQty, consumed, func(price decimal.Decimal) decimal.Decimal {
		return discount.PerUnit(terms.DiscountType, terms.DiscountValue, price)
	})
	assertBundleBound(g, out, units)

	bu := a.BuyUnitDiscount
	if bu == nil || sets == 0 {
		return out
	}
	// Buy units only take what the group bound leaves after the get units.
	bound := sumQuantity(g.Members) / terms.Size() * terms.GetQuantity
	if room := min(sets, bound-promotedUnits(out)); room > 0 {
		out = append(out, spread(def, buyMembers, room, buyQty, consumed, func(price decimal.Decimal) decimal.Decimal {
			extra := price.Mul(bu.Rate)
			if terms.DiscountType == discount.Fixed {
				extra = decimal.Min(extra, bu.Cap)
			}
			return extra
		})...)
		assertBundleBound(g, out, bound)
	}
	return out
}

// spread hands units out across members in proportion to their quantity.
// Each member first gets floor(q*units/total); leftover units go one at a
// time to the earliest members that still have undiscounted units. Amounts
// are computed per unit, so the sum is exactly units times the per-unit
// discount.
func spread(
	def promotion.Definition,
	members []Member,
	units, total int,
	consumed map[int]int,
	perUnit func(price decimal.Decimal) decimal.Decimal,
) []ItemPromotion {
	capacity := make([]int, len(members))
	available := 0
	for i, m := range members {
		capacity[i] = max(0, m.Item.Quantity-consumed[m.Index])
		available += capacity[i]
	}
	units = min(units, available)

	shares := make([]int, len(members))
	left := units
	for i, m := range members {
		shares[i] = min(m.Item.Quantity*units/total, capacity[i])
		left -= shares[i]
	}
	for i := 0; left > 0 && i < len(members); i++ {
		extra := min(capacity[i]-shares[i], left)
		shares[i] += extra
		left -= extra
	}

	var out []ItemPromotion
	for i, m := range members {
		if shares[i] == 0 {
			continue
		}
		amount := perUnit(m.Item.UnitPrice).Mul(decimal.NewFromInt(int64(shares[i])))
		if !amount.IsPositive() {
			continue
		}
		out = append(out, ItemPromotion{
			ItemIndex:     m.Index,
			Quantity:      shares[i],
			Amount:        amount,
			PromotionID:   def.ID,
			PromotionName: def.Name,
		})
	}
	return out
}

// bestPromotion picks the percentage or fixed promotion worth the most on
// the undiscounted units of a standalone line. An equal amount only wins
// with a higher priority, so equal priorities keep catalog order.
func bestPromotion(m Member, promotions []promotion.Definition, consumed map[int]int) (ItemPromotion, bool) {
	item := m.Item
	if item.Kind != cart.KindProduct || item.IsFromBundle() {
		return ItemPromotion{}, false
	}
	qty := item.Quantity - consumed[m.Index]
	if qty <= 0 {
		return ItemPromotion{}, false
	}

	var (
		best     ItemPromotion
		priority int
		found    bool
	)
	for _, def := range promotions {
		if def.Kind != promotion.KindPercentage && def.Kind != promotion.KindFixed {
			continue
		}
		if !def.Target.Matches(item.Name, item.Category) {
			continue
		}
		amount := discount.PerUnit(def.DiscountType(), def.Value, item.UnitPrice).Mul(decimal.NewFromInt(int64(qty)))
		if !amount.IsPositive() {
			continue
		}
		if found && (amount.LessThan(best.Amount) || amount.Equal(best.Amount) && def.Priority <= priority) {
			continue
		}
		best = ItemPromotion{
			ItemIndex:     m.Index,
			Quantity:      qty,
			Amount:        amount,
			PromotionID:   def.ID,
			PromotionName: def.Name,
		}
		priority = def.Priority
		found = true
	}
	return best, found
}

func membersNamed(g Group, name string) []Member {
	var out []Member
	for _, m := range g.Members {
		if m.Item.Name == name {
			out = append(out, m)
		}
	}
	return out
}

func sumQuantity(members []Member) int {
	total := 0
	for _, m := range members {
		total += m.Item.Quantity
	}
	return total
}
