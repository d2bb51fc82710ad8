package pricing

import (
	"fmt"

	"github.com/xenking/pos-pricing/internal/domain/cart"
)

// OverlapViolation is raised through panic when an allocation covers a unit
// twice or exceeds a bundle's bound. It indicates a bug, not bad input.
type OverlapViolation struct {
	ItemIndex int
	Detail    string
}

func (e *OverlapViolation) Error() string {
	return fmt.Sprintf("allocation overlap on line %d: %s", e.ItemIndex, e.Detail)
}

func assertNoOverlap(items []cart.LineItem, promos []ItemPromotion, consumed map[int]int) {
	covered := make(map[int]int, len(promos))
	for _, p := range promos {
		covered[p.ItemIndex] += p.Quantity
	}
	for idx, n := range covered {
		if idx < 0 || idx >= len(items) {
			panic(&OverlapViolation{ItemIndex: idx, Detail: "promotion on missing line"})
		}
		if q := items[idx].Quantity; consumed[idx]+n > q {
			panic(&OverlapViolation{
				ItemIndex: idx,
				Detail:    fmt.Sprintf("%d manual + %d promotion units exceed quantity %d", consumed[idx], n, q),
			})
		}
	}
}

func promotedUnits(promos []ItemPromotion) int {
	total := 0
	for _, p := range promos {
		total += p.Quantity
	}
	return total
}

func assertBundleBound(g Group, promos []ItemPromotion, bound int) {
	if total := promotedUnits(promos); total > bound {
		panic(&OverlapViolation{
			ItemIndex: g.Members[0].Index,
			Detail:    fmt.Sprintf("bundle %s discounts %d units, bound is %d", g.BundleID, total, bound),
		})
	}
}
