package promotion

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/xenking/pos-pricing/internal/domain/discount"
)

// ErrInactive marks a well-formed record that is switched off upstream.
var ErrInactive = errors.New("promotion is not active")

// ValidationError describes why a record could not be normalized.
type ValidationError struct {
	PromotionID string
	Field       string
	Reason      string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("promotion %q: %s: %s", e.PromotionID, e.Field, e.Reason)
}

var hundred = decimal.NewFromInt(100)

// Normalize converts a raw record into a Definition.
func Normalize(r Record) (Definition, error) {
	invalid := func(field, reason string) (Definition, error) {
		return Definition{}, &ValidationError{PromotionID: r.ID, Field: field, Reason: reason}
	}

	id := strings.TrimSpace(r.ID)
	if id == "" {
		return invalid("id", "missing")
	}
	if s := strings.ToLower(strings.TrimSpace(r.Status)); s != "" && s != "active" {
		return Definition{}, errors.Wrapf(ErrInactive, "promotion %q status %q", id, r.Status)
	}

	kind, ok := parseKind(firstNonEmpty(r.Type, r.PromotionType))
	if !ok {
		return invalid("type", fmt.Sprintf("unsupported %q", firstNonEmpty(r.Type, r.PromotionType)))
	}

	value, percent, err := parseAmount(r.Value)
	if err != nil {
		return invalid("value", err.Error())
	}

	def := Definition{
		ID:   id,
		Name: firstNonEmpty(strings.TrimSpace(r.Name), id),
		Kind: kind,
	}
	if def.ValidFrom, err = parseDate(r.StartDate, false); err != nil {
		return invalid("start_date", err.Error())
	}
	if def.ValidUntil, err = parseDate(r.EndDate, true); err != nil {
		return invalid("end_date", err.Error())
	}

	if kind == KindBundle {
		terms, field, err := normalizeBundle(r, value, percent)
		if err != nil {
			return invalid(field, err.Error())
		}
		def.Bundle = &terms
		def.Target = discount.Target{Scope: discount.ScopeSpecificProducts, Names: terms.Products}
		def.Priority = discount.ScopeSpecificProducts.Priority()
		return def, nil
	}

	if kind == KindPercentage && value.GreaterThan(hundred) {
		return invalid("value", "percentage above 100")
	}
	scope := discount.Scope(strings.ToLower(strings.TrimSpace(r.ApplicationType)))
	if scope == "" {
		scope = discount.ScopeSpecificProducts
	}
	if !scope.Valid() {
		return invalid("application_type", fmt.Sprintf("unsupported %q", r.ApplicationType))
	}
	if scope != discount.ScopeAllProducts && len(r.Products) == 0 {
		return invalid("products", "empty scope")
	}

	def.Value = value
	def.Target = discount.Target{Scope: scope, Names: r.Products}
	def.Priority = scope.Priority()
	return def, nil
}

func normalizeBundle(r Record, value decimal.Decimal, percent bool) (BundleTerms, string, error) {
	buy, err := parseQuantity(firstNonEmpty(r.BuyQuantity, r.BuyQuantitySnake))
	if err != nil {
		return BundleTerms{}, "buy_quantity", err
	}
	get, err := parseQuantity(firstNonEmpty(r.GetQuantity, r.GetQuantitySnake))
	if err != nil {
		return BundleTerms{}, "get_quantity", err
	}
	products := r.Products
	if len(products) == 2 && products[0] == products[1] {
		products = products[:1]
	}
	if n := len(products); n < 1 || n > 2 {
		return BundleTerms{}, "products", errors.Errorf("bundle needs 1 or 2 products, got %d", n)
	}

	typ := discount.Fixed
	if percent {
		typ = discount.Percentage
	}
	if raw := strings.TrimSpace(r.BundleDiscountType); raw != "" {
		if typ, err = discount.ParseType(raw); err != nil {
			return BundleTerms{}, "bundle_discount_type", err
		}
	}
	if typ == discount.Percentage && value.GreaterThan(hundred) {
		return BundleTerms{}, "value", errors.New("percentage above 100")
	}

	return BundleTerms{
		BuyQuantity:   buy,
		GetQuantity:   get,
		Products:      products,
		DiscountType:  typ,
		DiscountValue: value,
	}, "", nil
}

// NormalizeAll normalizes records in order, dropping the ones that are
// malformed, inactive or outside their validity window at now.
func NormalizeAll(lg *zap.Logger, records []Record, now time.Time) []Definition {
	defs := make([]Definition, 0, len(records))
	for _, r := range records {
		def, err := Normalize(r)
		switch {
		case errors.Is(err, ErrInactive):
			lg.Debug("Skipping inactive promotion", zap.String("promotion_id", r.ID))
			continue
		case err != nil:
			lg.Warn("Skipping malformed promotion", zap.String("promotion_id", r.ID), zap.Error(err))
			continue
		}
		if !def.ActiveAt(now) {
			lg.Debug("Skipping promotion outside validity window", zap.String("promotion_id", def.ID))
			continue
		}
		defs = append(defs, def)
	}
	return defs
}

func parseKind(s string) (Kind, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "percentage", "percent":
		return KindPercentage, true
	case "fixed", "fixed_amount":
		return KindFixed, true
	case "bundle", "bogo", "buy_x_get_y":
		return KindBundle, true
	default:
		return "", false
	}
}

// parseAmount reads values such as "50%", "₱100", "PHP 1,250.50" or "20".
// percent reports whether a percent sign was present.
func parseAmount(s string) (v decimal.Decimal, percent bool, err error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return decimal.Zero, false, errors.New("missing")
	}
	percent = strings.Contains(s, "%")
	cleaned := strings.Map(func(r rune) rune {
		switch {
		case r >= '0' && r <= '9', r == '.', r == '-':
			return r
		default:
			return -1
		}
	}, s)
	v, err = decimal.NewFromString(cleaned)
	if err != nil {
		return decimal.Zero, false, errors.Errorf("not a number: %q", s)
	}
	if v.IsNegative() {
		return decimal.Zero, false, errors.New("negative")
	}
	return v, percent, nil
}

// parseQuantity defaults a missing quantity to 1.
func parseQuantity(s string) (int, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 1, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, errors.Errorf("not an integer: %q", s)
	}
	if n < 1 {
		return 0, errors.Errorf("must be at least 1, got %d", n)
	}
	return n, nil
}

// parseDate accepts RFC 3339 timestamps or plain dates. A plain end date
// covers the whole day.
func parseDate(s string, endOfDay bool) (*time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return &t, nil
	}
	t, err := time.Parse(time.DateOnly, s)
	if err != nil {
		return nil, errors.Errorf("unrecognized date %q", s)
	}
	if endOfDay {
		t = t.Add(24*time.Hour - time.Nanosecond)
	}
	return &t, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
