package render

import (
	"bytes"
	"html/template"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

const invoiceEmailTemplate = `<!doctype html>
<html lang="en">
<head>
  <meta charset="utf-8" />
  <title>Invoice {{.Number}}</title>
  <style>
    body { margin: 0; padding: 32px; font-family: -apple-system, "Segoe UI", Roboto, Helvetica, Arial, sans-serif; color: #1a1f36; background: #f7f9fc; }
    .card { background: #ffffff; max-width: 640px; margin: 0 auto; padding: 40px; border-radius: 4px; }
    .label { font-size: 11px; text-transform: uppercase; color: #8792a2; font-weight: 600; margin-top: 16px; }
    .value { font-size: 14px; line-height: 1.5; }
    .amount { font-size: 28px; font-weight: 700; margin: 24px 0 4px; }
    .footer { margin-top: 40px; font-size: 12px; color: #8792a2; border-top: 1px solid #e3e8ee; padding-top: 16px; }
  </style>
</head>
<body>
  <div class="card">
    <h1 style="margin:0;font-size:22px;">{{.CompanyName}}</h1>
    <p class="value">Hello {{.CustomerName}}, please find invoice {{.Number}} attached.</p>
    {{if .JobReference}}<div class="label">Job</div><div class="value">{{.JobReference}}</div>{{end}}
    <div class="amount">{{money .AmountDue}}</div>
    <div class="value" style="color:#697386;">due {{date .DueDate}}</div>
    <div class="label">Invoice total</div>
    <div class="value">{{money .Total}}</div>
    {{if .Paid}}<div class="label">Paid to date</div><div class="value">{{money .Paid}}</div>{{end}}
    {{if .Notes}}<div class="footer">{{.Notes}}</div>{{end}}
  </div>
</body>
</html>
`

// EmailView is what the invoice email body shows. Amounts are cents.
type EmailView struct {
	CompanyName  string
	CustomerName string
	Number       string
	JobReference string
	DueDate      *time.Time
	Total        int64
	Paid         int64
	AmountDue    int64
	Notes        string
}

type Renderer interface {
	RenderEmail(view EmailView) (string, error)
}

type HTMLRenderer struct {
	tpl *template.Template
}

func NewRenderer() Renderer {
	funcs := template.FuncMap{
		"money": FormatMoney,
		"date":  FormatDate,
	}
	return &HTMLRenderer{
		tpl: template.Must(template.New("invoice_email").Funcs(funcs).Parse(invoiceEmailTemplate)),
	}
}

func (r *HTMLRenderer) RenderEmail(view EmailView) (string, error) {
	if view.CompanyName == "" {
		view.CompanyName = "Invoice"
	}
	if view.CustomerName == "" {
		view.CustomerName = "there"
	}

	var buf bytes.Buffer
	if err := r.tpl.Execute(&buf, view); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// FormatMoney renders cents as a dollar amount with thousands separators, e.g. $1,234.56.
func FormatMoney(cents int64) string {
	fixed := decimal.New(cents, -2).StringFixed(2)
	sign := ""
	if strings.HasPrefix(fixed, "-") {
		sign, fixed = "-", fixed[1:]
	}
	whole, fraction, _ := strings.Cut(fixed, ".")

	var grouped strings.Builder
	for i, digit := range whole {
		if i > 0 && (len(whole)-i)%3 == 0 {
			grouped.WriteByte(',')
		}
		grouped.WriteRune(digit)
	}
	return sign + "$" + grouped.String() + "." + fraction
}

func FormatDate(value *time.Time) string {
	if value == nil || value.IsZero() {
		return "-"
	}
	return value.UTC().Format("2006-01-02")
}

// FormatQuantity trims trailing zeros, so 2.500 renders as 2.5.
func FormatQuantity(value decimal.Decimal) string {
	return value.String()
}
