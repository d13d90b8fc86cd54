package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/smallbiznis/fieldbooks/internal/accounting/domain"
)

const quickBooksMinorVersion = "73"

type QuickBooksConfig struct {
	BaseURL     string
	RealmID     string
	AccessToken string
	Timeout     time.Duration
}

// QuickBooks pushes documents to the QuickBooks Online accounting API.
type QuickBooks struct {
	cfg    QuickBooksConfig
	client *http.Client
}

func NewQuickBooks(cfg QuickBooksConfig, client *http.Client) *QuickBooks {
	if client == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = 10 * time.Second
		}
		client = &http.Client{Timeout: timeout}
	}
	cfg.BaseURL = strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	return &QuickBooks{cfg: cfg, client: client}
}

func (q *QuickBooks) Name() string { return "quickbooks" }

type quickBooksFault struct {
	Fault struct {
		Error []struct {
			Message string `json:"Message"`
			Detail  string `json:"Detail"`
		} `json:"Error"`
	} `json:"Fault"`
}

type quickBooksEntity struct {
	ID        string `json:"Id"`
	SyncToken string `json:"SyncToken"`
}

func (q *QuickBooks) Push(ctx context.Context, doc domain.Document, ref domain.ExternalRef) (domain.ExternalRef, error) {
	if q.cfg.RealmID == "" || q.cfg.AccessToken == "" || q.cfg.BaseURL == "" {
		return ref, domain.ErrProviderConfig
	}
	entity, ok := quickBooksEntities[doc.EntityType]
	if !ok {
		return ref, domain.ErrInvalidEntityType
	}

	query := url.Values{}
	query.Set("minorversion", quickBooksMinorVersion)
	var body map[string]any
	switch doc.Operation {
	case domain.OperationDelete:
		if ref.ID == "" {
			// Never reached the provider; nothing to remove.
			return ref, nil
		}
		operation := "delete"
		if doc.EntityType == domain.EntityInvoice {
			operation = "void"
		}
		query.Set("operation", operation)
		body = map[string]any{"Id": ref.ID, "SyncToken": ref.Version}
	default:
		body = quickBooksBody(doc)
		if ref.ID != "" {
			body["Id"] = ref.ID
			body["SyncToken"] = ref.Version
			body["sparse"] = true
		}
	}

	endpoint := fmt.Sprintf("%s/v3/company/%s/%s?%s", q.cfg.BaseURL, url.PathEscape(q.cfg.RealmID), entity, query.Encode())
	resp, err := q.do(ctx, endpoint, body)
	if err != nil {
		return ref, err
	}

	var created quickBooksEntity
	for _, raw := range resp {
		if err := json.Unmarshal(raw, &created); err == nil && created.ID != "" {
			break
		}
	}
	if created.ID == "" {
		return ref, errors.New("quickbooks_response_invalid")
	}
	return domain.ExternalRef{ID: created.ID, Version: created.SyncToken}, nil
}

func (q *QuickBooks) do(ctx context.Context, endpoint string, body map[string]any) (map[string]json.RawMessage, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+q.cfg.AccessToken)
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Content-Type", "application/json")

	resp, err := q.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		var fault quickBooksFault
		if err := json.NewDecoder(resp.Body).Decode(&fault); err == nil && len(fault.Fault.Error) > 0 {
			message := strings.TrimSpace(fault.Fault.Error[0].Message)
			if detail := strings.TrimSpace(fault.Fault.Error[0].Detail); detail != "" {
				message += ": " + detail
			}
			return nil, fmt.Errorf("%w: %s", domain.ErrProviderRejected, message)
		}
		return nil, fmt.Errorf("%w: status %d", domain.ErrProviderRejected, resp.StatusCode)
	}

	var out map[string]json.RawMessage
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, err
	}
	return out, nil
}

var quickBooksEntities = map[domain.EntityType]string{
	domain.EntityCustomer:          "customer",
	domain.EntityVendor:            "vendor",
	domain.EntityInvoice:           "invoice",
	domain.EntityInvoicePayment:    "payment",
	domain.EntityVendorBill:        "bill",
	domain.EntityVendorBillPayment: "billpayment",
}

// quickBooksBody translates a local payload snapshot into the provider's field names.
func quickBooksBody(doc domain.Document) map[string]any {
	p := doc.Payload
	body := map[string]any{
		"PrivateNote": "fieldbooks:" + doc.EntityID.String(),
	}
	switch doc.EntityType {
	case domain.EntityCustomer, domain.EntityVendor:
		body["DisplayName"] = p["name"]
		if email, _ := p["email"].(string); email != "" {
			body["PrimaryEmailAddr"] = map[string]any{"Address": email}
		}
		if phone, _ := p["phone"].(string); phone != "" {
			body["PrimaryPhone"] = map[string]any{"FreeFormNumber": phone}
		}
	case domain.EntityInvoice, domain.EntityVendorBill:
		body["DocNumber"] = p["number"]
		if due, _ := p["due_date"].(string); due != "" {
			body["DueDate"] = due
		}
		detail := "SalesItemLineDetail"
		if doc.EntityType == domain.EntityVendorBill {
			detail = "AccountBasedExpenseLineDetail"
		}
		body["Line"] = []map[string]any{{
			"Amount":      dollars(p["total"]),
			"DetailType":  detail,
			"Description": p["number"],
		}}
	case domain.EntityInvoicePayment, domain.EntityVendorBillPayment:
		body["TotalAmt"] = dollars(p["amount"])
		if date, _ := p["payment_date"].(string); date != "" {
			body["TxnDate"] = date
		}
		if reference, _ := p["reference"].(string); reference != "" {
			body["PaymentRefNum"] = reference
		}
	}
	return body
}

// dollars converts a cents value from a payload snapshot to a two-place decimal amount.
func dollars(v any) decimal.Decimal {
	switch n := v.(type) {
	case int64:
		return decimal.New(n, -2)
	case int:
		return decimal.New(int64(n), -2)
	case float64:
		return decimal.NewFromFloat(n).Shift(-2).Round(2)
	case json.Number:
		d, err := decimal.NewFromString(n.String())
		if err != nil {
			return decimal.Zero
		}
		return d.Shift(-2).Round(2)
	default:
		return decimal.Zero
	}
}
