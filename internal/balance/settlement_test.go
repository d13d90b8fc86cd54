package balance

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSettleThresholds(t *testing.T) {
	cases := []struct {
		name      string
		total     int64
		payments  []int64
		status    string
		remaining int64
	}{
		{name: "none", total: 500, payments: nil, status: "sent", remaining: 500},
		{name: "partial", total: 500, payments: []int64{200}, status: StatusPartiallyPaid, remaining: 300},
		{name: "exact", total: 500, payments: []int64{200, 300}, status: StatusPaid, remaining: 0},
		{name: "over", total: 500, payments: []int64{600}, status: StatusPaid, remaining: 0},
		{name: "one_short", total: 500, payments: []int64{499}, status: StatusPartiallyPaid, remaining: 1},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			s := Settle(tc.total, tc.payments, "sent")
			assert.Equal(t, tc.status, s.Status)
			assert.Equal(t, tc.remaining, s.Remaining)

			var sum int64
			for _, p := range tc.payments {
				sum += p
			}
			assert.Equal(t, sum, s.Paid)
		})
	}
}

func TestSettleUsesUnpaidStatus(t *testing.T) {
	assert.Equal(t, "open", Settle(100, nil, "open").Status)
}

func TestValidatePayment(t *testing.T) {
	assert.ErrorIs(t, ValidatePayment(0, 100), ErrNegativeAmount)
	assert.ErrorIs(t, ValidatePayment(-5, 100), ErrNegativeAmount)
	assert.ErrorIs(t, ValidatePayment(101, 100), ErrExceedsRemaining)
	assert.NoError(t, ValidatePayment(100, 100))
}
