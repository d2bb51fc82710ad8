// Package sale holds finalized sales together with the allocation breakdown
// that refunds are computed from.
package sale

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/xenking/pos-pricing/internal/domain/cart"
	"github.com/xenking/pos-pricing/internal/domain/pricing"
)

// ErrNotFound is returned when a requested sale does not exist.
var ErrNotFound = errors.New("sale not found")

// Status is the refund state of a sale.
type Status string

const (
	StatusOpenForRefund     Status = "OPEN_FOR_REFUND"
	StatusPartiallyRefunded Status = "PARTIALLY_REFUNDED"
	StatusFullyRefunded     Status = "FULLY_REFUNDED"
	StatusRefundExpired     Status = "REFUND_EXPIRED"
)

// Terminal reports whether no further refund can change the status.
func (s Status) Terminal() bool {
	return s == StatusFullyRefunded || s == StatusRefundExpired
}

// Reduction is one manual discount or promotion applied to a sold line.
type Reduction struct {
	Name     string          `json:"name"`
	Quantity int             `json:"quantity"`
	Amount   decimal.Decimal `json:"amount"`
}

// Item is a sold line with the reductions it received at checkout.
type Item struct {
	Index      int             `json:"index"`
	ProductID  string          `json:"product_id"`
	Name       string          `json:"name"`
	Category   string          `json:"category,omitempty"`
	Kind       cart.Kind       `json:"kind"`
	UnitPrice  decimal.Decimal `json:"unit_price"`
	Quantity   int             `json:"quantity"`
	Addons     []cart.Addon    `json:"addons,omitempty"`
	Discounts  []Reduction     `json:"discounts,omitempty"`
	Promotions []Reduction     `json:"promotions,omitempty"`
}

// AddonUnitCost is the addon price of one unit.
func (i Item) AddonUnitCost() decimal.Decimal {
	sum := decimal.Zero
	for _, a := range i.Addons {
		sum = sum.Add(a.UnitPrice.Mul(decimal.NewFromInt(int64(a.Quantity))))
	}
	return sum
}

// DiscountAmount sums the manual discounts on the line.
func (i Item) DiscountAmount() decimal.Decimal {
	return sumReductions(i.Discounts)
}

// PromotionAmount sums the automatic promotions on the line.
func (i Item) PromotionAmount() decimal.Decimal {
	return sumReductions(i.Promotions)
}

func sumReductions(rs []Reduction) decimal.Decimal {
	sum := decimal.Zero
	for _, r := range rs {
		sum = sum.Add(r.Amount)
	}
	return sum
}

// Sale is a completed checkout.
type Sale struct {
	ID                  string
	CartID              string
	Items               []Item
	Subtotal            decimal.Decimal
	AddonsCost          decimal.Decimal
	ManualDiscount      decimal.Decimal
	PromotionalDiscount decimal.Decimal
	Total               decimal.Decimal
	Status              Status
	CompletedAt         time.Time
}

// Build freezes a cart and its quote into a sale completed at now.
func Build(id string, c cart.Cart, q pricing.Quote, now time.Time) Sale {
	items := make([]Item, len(c.Items))
	for i, li := range c.Items {
		items[i] = Item{
			Index:     i,
			ProductID: li.ProductID,
			Name:      li.Name,
			Category:  li.Category,
			Kind:      li.Kind,
			UnitPrice: li.UnitPrice,
			Quantity:  li.Quantity,
			Addons:    li.Addons,
		}
	}
	for _, d := range c.Discounts {
		for _, idx := range d.Indexes() {
			alloc := d.Allocations[idx]
			items[idx].Discounts = append(items[idx].Discounts, Reduction{
				Name:     d.Definition.Name,
				Quantity: alloc.Quantity,
				Amount:   alloc.Amount,
			})
		}
	}
	for _, p := range q.ItemPromotions {
		items[p.ItemIndex].Promotions = append(items[p.ItemIndex].Promotions, Reduction{
			Name:     p.PromotionName,
			Quantity: p.Quantity,
			Amount:   p.Amount,
		})
	}

	return Sale{
		ID:                  id,
		CartID:              c.ID,
		Items:               items,
		Subtotal:            q.Subtotal,
		AddonsCost:          q.AddonsCost,
		ManualDiscount:      q.ManualDiscount,
		PromotionalDiscount: q.PromotionalDiscount,
		Total:               q.Total,
		Status:              StatusOpenForRefund,
		CompletedAt:         now,
	}
}

// Repository persists finalized sales.
type Repository interface {
	Create(ctx context.Context, s *Sale) error
	Get(ctx context.Context, id string) (*Sale, error)
}
