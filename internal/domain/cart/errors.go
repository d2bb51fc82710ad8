package cart

import (
	"fmt"

	"github.com/go-faster/errors"
)

var (
	// ErrVersionConflict is returned when a caller mutates a snapshot that is
	// no longer current.
	ErrVersionConflict  = errors.New("cart version conflict")
	ErrLineNotFound     = errors.New("cart line not found")
	ErrBundleNotFound   = errors.New("bundle not found in cart")
	ErrDiscountNotFound = errors.New("discount not found in cart")
)

// InvalidQuantityError indicates a line with a non-positive quantity.
type InvalidQuantityError struct {
	Index    int
	Quantity int
}

func (e *InvalidQuantityError) Error() string {
	return fmt.Sprintf("line %d: quantity %d must be greater than 0", e.Index, e.Quantity)
}

// InvalidLineError indicates a structurally broken line.
type InvalidLineError struct {
	Index  int
	Reason string
}

func (e *InvalidLineError) Error() string {
	return fmt.Sprintf("line %d: %s", e.Index, e.Reason)
}

// OverAllocatedError indicates manual discounts cover more units than a line
// holds.
type OverAllocatedError struct {
	Index     int
	Name      string
	Allocated int
	Quantity  int
}

func (e *OverAllocatedError) Error() string {
	return fmt.Sprintf("%s: %d units discounted but only %d in cart", e.Name, e.Allocated, e.Quantity)
}

// BelowDiscountedError rejects lowering a quantity under the units already
// covered by manual discounts.
type BelowDiscountedError struct {
	Name       string
	Requested  int
	Discounted int
}

func (e *BelowDiscountedError) Error() string {
	return fmt.Sprintf("%s: cannot reduce quantity to %d, %d units are discounted", e.Name, e.Requested, e.Discounted)
}

// DiscountedAddonsError rejects an addon change on a line whose manual
// discount amounts were priced with the current addons.
type DiscountedAddonsError struct {
	Name       string
	Discounted int
}

func (e *DiscountedAddonsError) Error() string {
	return fmt.Sprintf("%s: cannot change addons, %d units are discounted", e.Name, e.Discounted)
}
