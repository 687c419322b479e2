package settlement

import (
	"errors"
	"fmt"
	"sort"

	"github.com/shopspring/decimal"

	"kasirinaja/checkout/internal/domain"
)

var (
	ErrBalanceMismatch = errors.New("payment entries do not add up to the total")
	ErrTooFewEntries   = errors.New("not enough payment entries")
	ErrInvalidEntry    = errors.New("invalid payment entry")
	ErrInvalidState    = errors.New("operation not allowed in current settlement state")
	ErrRefundFailed    = errors.New("one or more refunds failed")
)

// Epsilon is the largest gap between the entries and the total a split may confirm with.
var Epsilon = decimal.RequireFromString("0.005")

const (
	MinSplitEntries  = 2
	MinSingleEntries = 1
)

// Validate checks new entries against the total, counting entries already captured.
// Nothing is rounded or force balanced.
func Validate(total decimal.Decimal, captured, entries []domain.SplitEntry, minEntries int) error {
	for i, e := range entries {
		if !e.Method.Valid() {
			return fmt.Errorf("%w: entry %d has unknown method %q", ErrInvalidEntry, i+1, e.Method)
		}
		switch {
		case e.AmountInMain.IsNegative():
			return fmt.Errorf("%w: entry %d amount is negative", ErrInvalidEntry, i+1)
		case e.AmountInMain.IsZero() && !(total.IsZero() && !e.RequiresProvider()):
			// Only a fully comped sale settles with zero, and never through a provider.
			return fmt.Errorf("%w: entry %d amount must be positive", ErrInvalidEntry, i+1)
		}
		if e.ChargeAmount.IsNegative() {
			return fmt.Errorf("%w: entry %d charge amount is negative", ErrInvalidEntry, i+1)
		}
	}
	if len(captured)+len(entries) < minEntries {
		return fmt.Errorf("%w: need at least %d, got %d", ErrTooFewEntries, minEntries, len(captured)+len(entries))
	}

	sum := Sum(captured).Add(Sum(entries))
	if sum.Sub(total).Abs().GreaterThan(Epsilon) {
		return fmt.Errorf("%w: entries sum to %s, total is %s", ErrBalanceMismatch, sum.String(), total.String())
	}
	return nil
}

func Sum(entries []domain.SplitEntry) decimal.Decimal {
	sum := decimal.Zero
	for _, e := range entries {
		sum = sum.Add(e.AmountInMain)
	}
	return sum
}

// queueOrder sorts entries so the hardest to settle run first. Equal methods keep their order.
func queueOrder(entries []domain.SplitEntry) []domain.SplitEntry {
	out := append([]domain.SplitEntry(nil), entries...)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Method.Complexity() > out[j].Method.Complexity()
	})
	return out
}

// byPosition orders captured entries for the transaction history.
func byPosition(entries []domain.SplitEntry) []domain.SplitEntry {
	out := append([]domain.SplitEntry(nil), entries...)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Position < out[j].Position
	})
	return out
}
