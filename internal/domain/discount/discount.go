// Package discount holds the vocabulary shared by automatic promotions and
// manually applied discounts: discount types, application scopes and the
// per-unit discount rule.
package discount

import (
	"slices"
	"strings"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// Type is the arithmetic applied to a unit price.
type Type string

const (
	Percentage Type = "percentage"
	Fixed      Type = "fixed"
)

// Scope selects which items a discount or promotion may target.
type Scope string

const (
	ScopeAllProducts        Scope = "all_products"
	ScopeSpecificCategories Scope = "specific_categories"
	ScopeSpecificProducts   Scope = "specific_products"
)

var hundred = decimal.NewFromInt(100)

// ErrUnknownType is returned by ParseType for unsupported type names.
var ErrUnknownType = errors.New("unknown discount type")

// ParseType maps external type names onto Type. Both "fixed" and
// "fixed_amount" denote a fixed amount.
func ParseType(s string) (Type, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "percentage", "percent":
		return Percentage, nil
	case "fixed", "fixed_amount":
		return Fixed, nil
	default:
		return "", errors.Wrapf(ErrUnknownType, "%q", s)
	}
}

// PerUnit returns the discount granted on one unit priced at price.
// Percentage discounts take value percent of the price; fixed discounts
// never exceed the price.
func PerUnit(t Type, value, price decimal.Decimal) decimal.Decimal {
	var d decimal.Decimal
	switch t {
	case Percentage:
		d = price.Mul(value).Div(hundred)
	case Fixed:
		d = decimal.Min(value, price)
	}
	if d.IsNegative() {
		return decimal.Zero
	}
	return d
}

// Target is an application scope together with the names it lists.
type Target struct {
	Scope Scope    `json:"scope"`
	Names []string `json:"names,omitempty"`
}

// Matches reports whether an item with the given name and category falls
// inside the target.
func (t Target) Matches(name, category string) bool {
	switch t.Scope {
	case ScopeAllProducts:
		return true
	case ScopeSpecificCategories:
		return category != "" && slices.Contains(t.Names, category)
	case ScopeSpecificProducts:
		return slices.Contains(t.Names, name)
	default:
		return false
	}
}

// Priority ranks scopes from broad to narrow.
func (s Scope) Priority() int {
	switch s {
	case ScopeSpecificProducts:
		return 3
	case ScopeSpecificCategories:
		return 2
	case ScopeAllProducts:
		return 1
	default:
		return 0
	}
}

// Valid reports whether s is one of the known scopes.
func (s Scope) Valid() bool {
	return s.Priority() > 0
}
