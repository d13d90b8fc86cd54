// Package balance holds the arithmetic shared by every document that tracks how much of
// its total has been invoiced, billed or paid.
package balance

import (
	"errors"

	"github.com/shopspring/decimal"
)

var (
	ErrNegativeAmount   = errors.New("negative_amount")
	ErrExceedsRemaining = errors.New("amount_exceeds_remaining")
)

// Ledger is the invoiced/remaining pair carried by a job order, change order or purchase order.
// A consistent ledger satisfies Invoiced + Remaining == Total with both inside [0, Total].
type Ledger struct {
	Total     int64
	Invoiced  int64
	Remaining int64
}

// New returns a ledger with nothing invoiced.
func New(total int64) Ledger {
	return Ledger{Total: total, Invoiced: 0, Remaining: total}
}

// Consistent reports whether the ledger satisfies its invariant.
func (l Ledger) Consistent() bool {
	return l.Invoiced >= 0 && l.Remaining >= 0 &&
		l.Invoiced <= l.Total && l.Remaining <= l.Total &&
		l.Invoiced+l.Remaining == l.Total
}

// Apply records a new child document worth amount against the ledger.
func (l Ledger) Apply(amount int64) (Ledger, error) {
	if amount < 0 {
		return l, ErrNegativeAmount
	}
	if amount > l.Remaining {
		return l, ErrExceedsRemaining
	}
	l.Invoiced = min(l.Total, l.Invoiced+amount)
	l.Remaining = max(0, l.Remaining-amount)
	return l, nil
}

// Reverse removes a child document's contribution. Both sides are clamped so a reversal
// against a ledger that was already inconsistent cannot push it further out of range.
func (l Ledger) Reverse(amount int64) Ledger {
	if amount <= 0 {
		return l
	}
	l.Invoiced = max(0, l.Invoiced-amount)
	l.Remaining = min(l.Total, l.Remaining+amount)
	return l
}

// Adjust applies the difference between a child's new and old totals.
func (l Ledger) Adjust(oldAmount, newAmount int64) (Ledger, error) {
	if newAmount < 0 {
		return l, ErrNegativeAmount
	}
	difference := newAmount - oldAmount
	switch {
	case difference > 0:
		return l.Apply(difference)
	case difference < 0:
		return l.Reverse(-difference), nil
	default:
		return l, nil
	}
}

// Retotal changes the ledger's own total, keeping what was already invoiced.
func (l Ledger) Retotal(total int64) (Ledger, error) {
	if total < 0 {
		return l, ErrNegativeAmount
	}
	if total < l.Invoiced {
		return l, ErrExceedsRemaining
	}
	l.Total = total
	l.Remaining = total - l.Invoiced
	return l, nil
}

// ClampQuantity adds delta to a billed quantity and keeps the result inside [0, ordered].
func ClampQuantity(billed, delta, ordered decimal.Decimal) decimal.Decimal {
	next := billed.Add(delta)
	if next.IsNegative() {
		return decimal.Zero
	}
	if next.GreaterThan(ordered) {
		return ordered
	}
	return next
}
