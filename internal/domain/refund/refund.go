// Package refund reverses the allocations of a completed sale. Amounts are
// derived from the discounts and promotions persisted with the sale, never
// from the current promotion catalog.
package refund

import (
	"fmt"
	"maps"
	"slices"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/xenking/pos-pricing/internal/domain/sale"
)

// DefaultWindow is how long after completion a sale accepts refunds.
const DefaultWindow = 30 * time.Minute

var (
	ErrExceedsAvailableQuantity = errors.New("refund exceeds available quantity")
	ErrWindowExpired            = errors.New("refund window expired")
	ErrNothingRequested         = errors.New("no refund quantities requested")
	ErrInvalidQuantity          = errors.New("refund quantity must be positive")
)

// ExceedsAvailableError rejects a request for more units than remain
// unrefunded.
type ExceedsAvailableError struct {
	ItemName  string
	Requested int
	Available int
}

func (e *ExceedsAvailableError) Error() string {
	return fmt.Sprintf("%s: requested %d, only %d refundable", e.ItemName, e.Requested, e.Available)
}

func (e *ExceedsAvailableError) Is(target error) bool {
	return target == ErrExceedsAvailableQuantity
}

// WindowExpiredError rejects any refund once the window has elapsed.
type WindowExpiredError struct {
	SaleID      string
	CompletedAt time.Time
	Window      time.Duration
}

func (e *WindowExpiredError) Error() string {
	return fmt.Sprintf("sale %s completed at %s is past the %s refund window",
		e.SaleID, e.CompletedAt.Format(time.RFC3339), e.Window)
}

func (e *WindowExpiredError) Is(target error) bool {
	return target == ErrWindowExpired
}

// Line is a quantity of one item name returned in a refund.
type Line struct {
	ItemName string `json:"item_name"`
	Quantity int    `json:"quantity"`
}

// Record is one accepted refund in a sale's ledger.
type Record struct {
	ID        string
	SaleID    string
	Lines     []Line
	Amount    decimal.Decimal
	Full      bool
	Reason    string
	CreatedAt time.Time
}

// ItemBreakdown is the refund taken from one sold line.
type ItemBreakdown struct {
	ItemIndex    int             `json:"item_index"`
	ItemName     string          `json:"item_name"`
	Quantity     int             `json:"quantity"`
	NetUnitPrice decimal.Decimal `json:"net_unit_price"`
	Amount       decimal.Decimal `json:"amount"`
}

// Result is a computed, not yet persisted, refund.
type Result struct {
	Amount decimal.Decimal
	Items  []ItemBreakdown
	Full   bool
}

// Lines collapses the breakdown into ledger lines keyed by item name.
func (r Result) Lines() []Line {
	var out []Line
	pos := make(map[string]int)
	for _, it := range r.Items {
		if i, ok := pos[it.ItemName]; ok {
			out[i].Quantity += it.Quantity
			continue
		}
		pos[it.ItemName] = len(out)
		out = append(out, Line{ItemName: it.ItemName, Quantity: it.Quantity})
	}
	return out
}

// AlreadyRefunded sums refunded quantities per item name.
func AlreadyRefunded(ledger []Record) map[string]int {
	out := make(map[string]int)
	for _, rec := range ledger {
		for _, l := range rec.Lines {
			out[l.ItemName] += l.Quantity
		}
	}
	return out
}

// Expired reports whether the window has elapsed at now.
func Expired(completedAt, now time.Time, window time.Duration) bool {
	return now.Sub(completedAt) >= window
}

// NetUnitPrice is the per-unit price of a sold line after its share of
// discounts and promotions.
func NetUnitPrice(it sale.Item) decimal.Decimal {
	if it.Quantity <= 0 {
		return decimal.Zero
	}
	qty := decimal.NewFromInt(int64(it.Quantity))
	reductions := it.DiscountAmount().Add(it.PromotionAmount())
	return it.UnitPrice.Add(it.AddonUnitCost()).Sub(reductions.Div(qty))
}

// lineAmount avoids dividing before multiplying so whole-line refunds are
// exact.
func lineAmount(it sale.Item, q int) decimal.Decimal {
	qd := decimal.NewFromInt(int64(q))
	gross := it.UnitPrice.Add(it.AddonUnitCost()).Mul(qd)
	if q == it.Quantity {
		return gross.Sub(it.DiscountAmount()).Sub(it.PromotionAmount())
	}
	reductions := it.DiscountAmount().Add(it.PromotionAmount())
	return gross.Sub(reductions.Mul(qd).Div(decimal.NewFromInt(int64(it.Quantity))))
}

// remaining returns, per sold line, the units not yet refunded. Refunded
// units of a name are attributed to its lines in sale order.
func remaining(s sale.Sale, ledger []Record) []int {
	refunded := AlreadyRefunded(ledger)
	out := make([]int, len(s.Items))
	for i, it := range s.Items {
		taken := min(it.Quantity, refunded[it.Name])
		refunded[it.Name] -= taken
		out[i] = it.Quantity - taken
	}
	return out
}

// StateOf derives the refund state of a sale at now. Full refunds win over
// expiry, expiry over partial refunds.
func StateOf(s sale.Sale, ledger []Record, now time.Time, window time.Duration) sale.Status {
	left := 0
	for _, n := range remaining(s, ledger) {
		left += n
	}
	for _, rec := range ledger {
		if rec.Full {
			left = 0
		}
	}
	switch {
	case len(s.Items) > 0 && left == 0, s.Status == sale.StatusFullyRefunded:
		return sale.StatusFullyRefunded
	case s.Status == sale.StatusRefundExpired, Expired(s.CompletedAt, now, window):
		return sale.StatusRefundExpired
	case len(ledger) > 0:
		return sale.StatusPartiallyRefunded
	default:
		return sale.StatusOpenForRefund
	}
}

func checkWindow(s sale.Sale, now time.Time, window time.Duration) error {
	if s.Status == sale.StatusRefundExpired || Expired(s.CompletedAt, now, window) {
		return &WindowExpiredError{SaleID: s.ID, CompletedAt: s.CompletedAt, Window: window}
	}
	return nil
}

// Compute prices a partial refund of the requested quantities, keyed by
// item name. Requests above the unrefunded remainder are rejected.
func Compute(s sale.Sale, ledger []Record, requested map[string]int, now time.Time, window time.Duration) (Result, error) {
	if err := checkWindow(s, now, window); err != nil {
		return Result{}, err
	}

	names := slices.Sorted(maps.Keys(requested))
	want := make(map[string]int, len(requested))
	for _, name := range names {
		switch q := requested[name]; {
		case q < 0:
			return Result{}, errors.Wrapf(ErrInvalidQuantity, "%s: %d", name, q)
		case q > 0:
			want[name] = q
		}
	}
	if len(want) == 0 {
		return Result{}, ErrNothingRequested
	}

	left := remaining(s, ledger)
	available := make(map[string]int)
	for i, it := range s.Items {
		available[it.Name] += left[i]
	}
	for _, name := range names {
		if q := want[name]; q > available[name] {
			return Result{}, &ExceedsAvailableError{ItemName: name, Requested: q, Available: available[name]}
		}
	}

	var res Result
	total := decimal.Zero
	for i, it := range s.Items {
		take := min(want[it.Name], left[i])
		if take <= 0 {
			continue
		}
		want[it.Name] -= take
		amount := lineAmount(it, take)
		total = total.Add(amount)
		res.Items = append(res.Items, ItemBreakdown{
			ItemIndex:    i,
			ItemName:     it.Name,
			Quantity:     take,
			NetUnitPrice: NetUnitPrice(it),
			Amount:       amount,
		})
	}
	res.Amount = total.Round(2)
	return res, nil
}

// ComputeFull prices a refund of everything not yet refunded: the net value
// of the whole sale minus the amounts already paid back.
func ComputeFull(s sale.Sale, ledger []Record, now time.Time, window time.Duration) (Result, error) {
	if err := checkWindow(s, now, window); err != nil {
		return Result{}, err
	}

	left := remaining(s, ledger)
	res := Result{Full: true}
	gross := decimal.Zero
	for i, it := range s.Items {
		gross = gross.Add(lineAmount(it, it.Quantity))
		if left[i] == 0 {
			continue
		}
		res.Items = append(res.Items, ItemBreakdown{
			ItemIndex:    i,
			ItemName:     it.Name,
			Quantity:     left[i],
			NetUnitPrice: NetUnitPrice(it),
			Amount:       lineAmount(it, left[i]),
		})
	}
	if len(res.Items) == 0 || StateOf(s, ledger, now, window) == sale.StatusFullyRefunded {
		return Result{}, errors.Wrapf(ErrExceedsAvailableQuantity, "sale %s has nothing left to refund", s.ID)
	}

	for _, rec := range ledger {
		gross = gross.Sub(rec.Amount)
	}
	res.Amount = gross.Round(2)
	if res.Amount.IsNegative() {
		res.Amount = decimal.Zero
	}
	return res, nil
}
