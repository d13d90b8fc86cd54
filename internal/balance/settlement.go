package balance

const (
	StatusPaid          = "paid"
	StatusPartiallyPaid = "partially_paid"
)

// Settlement is a document's payment aggregate derived from its live payment rows.
type Settlement struct {
	Paid      int64
	Remaining int64
	Status    string
}

// Settle sums payments against total. Status is paid when the sum reaches the total,
// partially_paid when some but not all of it is covered, and unpaidStatus otherwise.
func Settle(total int64, payments []int64, unpaidStatus string) Settlement {
	var sum int64
	for _, amount := range payments {
		sum += amount
	}

	status := unpaidStatus
	switch {
	case sum >= total:
		status = StatusPaid
	case sum > 0:
		status = StatusPartiallyPaid
	}

	return Settlement{
		Paid:      sum,
		Remaining: max(0, total-sum),
		Status:    status,
	}
}

// ValidatePayment checks a single payment against what is still owed.
func ValidatePayment(amount, remaining int64) error {
	if amount <= 0 {
		return ErrNegativeAmount
	}
	if amount > remaining {
		return ErrExceedsRemaining
	}
	return nil
}
