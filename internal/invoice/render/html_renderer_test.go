package render

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFormatMoney(t *testing.T) {
	cases := map[int64]string{
		0:          "$0.00",
		5:          "$0.05",
		123456:     "$1,234.56",
		100000000:  "$1,000,000.00",
		-250075:    "-$2,500.75",
		99999:      "$999.99",
		1234567890: "$12,345,678.90",
	}
	for cents, want := range cases {
		assert.Equal(t, want, FormatMoney(cents), "cents=%d", cents)
	}
}

func TestFormatQuantity(t *testing.T) {
	assert.Equal(t, "2.5", FormatQuantity(decimal.RequireFromString("2.500")))
	assert.Equal(t, "3", FormatQuantity(decimal.RequireFromString("3.000")))
}

func TestRenderEmail(t *testing.T) {
	due := time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC)
	html, err := NewRenderer().RenderEmail(EmailView{
		CompanyName:  "Fieldbooks Construction",
		CustomerName: "Acme <Builders>",
		Number:       "INV-00001",
		DueDate:      &due,
		Total:        50000,
		AmountDue:    30000,
		Paid:         20000,
	})
	require.NoError(t, err)
	assert.Contains(t, html, "invoice INV-00001 attached")
	assert.Contains(t, html, "$300.00")
	assert.Contains(t, html, "2026-04-01")
	assert.Contains(t, html, "Acme &lt;Builders&gt;")
	assert.Contains(t, html, "Paid to date")
}
