// Package catalog defines the product and inventory collaborators the
// register consults before changing a cart.
package catalog

import (
	"context"
	"fmt"
	"strings"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/xenking/pos-pricing/internal/domain/cart"
)

var (
	ErrNotFound    = errors.New("product not found")
	ErrUnavailable = errors.New("product unavailable")
)

// Product is a sellable catalog entry.
type Product struct {
	ID        string
	Name      string
	Category  string
	Price     decimal.Decimal
	Kind      cart.Kind
	Available bool
}

// LineItem builds a cart line for qty units of p.
func (p Product) LineItem(qty int, addons []cart.Addon) cart.LineItem {
	return cart.LineItem{
		ProductID: p.ID,
		Name:      p.Name,
		Category:  p.Category,
		UnitPrice: p.Price,
		Quantity:  qty,
		Kind:      p.Kind,
		Addons:    addons,
	}
}

// Repository looks products up by id or display name.
type Repository interface {
	GetByID(ctx context.Context, id string) (*Product, error)
	GetByName(ctx context.Context, name string) (*Product, error)
}

// Conflict is a shared resource that cannot cover the demanded units.
type Conflict struct {
	Type      string `json:"type"`
	Name      string `json:"name"`
	Needed    int    `json:"needed"`
	Available int    `json:"available"`
}

// InventoryConflictError blocks an add or quantity increase.
type InventoryConflictError struct {
	Conflicts []Conflict
}

func (e *InventoryConflictError) Error() string {
	parts := make([]string, len(e.Conflicts))
	for i, c := range e.Conflicts {
		parts[i] = fmt.Sprintf("%s %s needs %d, %d available", c.Type, c.Name, c.Needed, c.Available)
	}
	return "inventory conflict: " + strings.Join(parts, "; ")
}

// Inventory reports shared-resource conflicts for the total demand, keyed by
// product id, that a cart would place on stock.
type Inventory interface {
	Check(ctx context.Context, demand map[string]int) ([]Conflict, error)
}

// Demand sums cart quantities per product id.
func Demand(items []cart.LineItem) map[string]int {
	out := make(map[string]int, len(items))
	for _, it := range items {
		out[it.ProductID] += it.Quantity
	}
	return out
}

// CheckDemand returns *InventoryConflictError when inv reports conflicts for
// the demand of items.
func CheckDemand(ctx context.Context, inv Inventory, items []cart.LineItem) error {
	if inv == nil {
		return nil
	}
	conflicts, err := inv.Check(ctx, Demand(items))
	if err != nil {
		return errors.Wrap(err, "check inventory")
	}
	if len(conflicts) > 0 {
		return &InventoryConflictError{Conflicts: conflicts}
	}
	return nil
}
