package discount

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func d(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func TestPerUnit(t *testing.T) {
	tests := []struct {
		name  string
		typ   Type
		value decimal.Decimal
		price decimal.Decimal
		want  decimal.Decimal
	}{
		{name: "percentage", typ: Percentage, value: d("50"), price: d("100"), want: d("50")},
		{name: "percentage fraction", typ: Percentage, value: d("15"), price: d("9.99"), want: d("1.4985")},
		{name: "fixed below price", typ: Fixed, value: d("20"), price: d("100"), want: d("20")},
		{name: "fixed capped at price", typ: Fixed, value: d("150"), price: d("80"), want: d("80")},
		{name: "negative value floors at zero", typ: Fixed, value: d("-5"), price: d("80"), want: decimal.Zero},
		{name: "unknown type", typ: Type("bogus"), value: d("5"), price: d("80"), want: decimal.Zero},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := PerUnit(tt.typ, tt.value, tt.price)
			assert.True(t, tt.want.Equal(got), "want %s, got %s", tt.want, got)
		})
	}
}

func TestParseType(t *testing.T) {
	typ, err := ParseType(" Fixed_Amount ")
	require.NoError(t, err)
	assert.Equal(t, Fixed, typ)

	typ, err = ParseType("percentage")
	require.NoError(t, err)
	assert.Equal(t, Percentage, typ)

	_, err = ParseType("bogo")
	require.ErrorIs(t, err, ErrUnknownType)
}

func TestTarget_Matches(t *testing.T) {
	tests := []struct {
		name     string
		target   Target
		item     string
		category string
		want     bool
	}{
		{name: "all products", target: Target{Scope: ScopeAllProducts}, item: "Latte", want: true},
		{name: "category hit", target: Target{Scope: ScopeSpecificCategories, Names: []string{"Coffee"}}, item: "Latte", category: "Coffee", want: true},
		{name: "category miss", target: Target{Scope: ScopeSpecificCategories, Names: []string{"Tea"}}, item: "Latte", category: "Coffee"},
		{name: "empty category never matches", target: Target{Scope: ScopeSpecificCategories, Names: []string{""}}, item: "Latte"},
		{name: "exact name", target: Target{Scope: ScopeSpecificProducts, Names: []string{"Latte"}}, item: "Latte", want: true},
		{name: "name is case sensitive", target: Target{Scope: ScopeSpecificProducts, Names: []string{"latte"}}, item: "Latte"},
		{name: "product scope ignores category", target: Target{Scope: ScopeSpecificProducts, Names: []string{"Coffee"}}, item: "Latte", category: "Coffee"},
		{name: "unknown scope", target: Target{Scope: "bogus"}, item: "Latte"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.target.Matches(tt.item, tt.category))
		})
	}
}

func TestApplied(t *testing.T) {
	a := Applied{
		Definition: Definition{ID: "d1", Target: Target{Scope: ScopeSpecificProducts, Names: []string{"Latte"}}},
		Allocations: map[int]Allocation{
			2: {Quantity: 1, Amount: d("10")},
			0: {Quantity: 2, Amount: d("5.5")},
		},
	}

	assert.True(t, d("15.5").Equal(a.Amount()))
	assert.Equal(t, []int{0, 2}, a.Indexes())

	c := a.Clone()
	c.Allocations[0] = Allocation{Quantity: 9}
	c.Definition.Target.Names[0] = "Mocha"
	assert.Equal(t, 2, a.Allocations[0].Quantity)
	assert.Equal(t, "Latte", a.Definition.Target.Names[0])

	used := ConsumedQuantity([]Applied{a, {Allocations: map[int]Allocation{0: {Quantity: 1}}}})
	assert.Equal(t, map[int]int{0: 3, 2: 1}, used)
}
