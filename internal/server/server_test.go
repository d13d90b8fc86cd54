package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/fieldbooks/internal/authorization"
	"github.com/smallbiznis/fieldbooks/internal/config"
	customerdomain "github.com/smallbiznis/fieldbooks/internal/customer/domain"
	invoicedomain "github.com/smallbiznis/fieldbooks/internal/invoice/domain"
	"github.com/smallbiznis/fieldbooks/internal/orgcontext"
	"github.com/smallbiznis/fieldbooks/pkg/db"
	"github.com/smallbiznis/fieldbooks/pkg/db/pagination"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const testSecret = "test-secret"

type fakeCustomerService struct {
	customerdomain.Service

	created  []customerdomain.CreateCustomerRequest
	lastOrg  snowflake.ID
	listResp customerdomain.ListCustomerResponse
	getErr   error
}

func (f *fakeCustomerService) Create(ctx context.Context, req customerdomain.CreateCustomerRequest) (customerdomain.Customer, error) {
	f.created = append(f.created, req)
	f.lastOrg, _ = orgcontext.OrgIDFromContext(ctx)
	return customerdomain.Customer{ID: snowflake.ID(10), OrgID: f.lastOrg, Name: req.Name}, nil
}

func (f *fakeCustomerService) List(ctx context.Context, req customerdomain.ListCustomerRequest) (customerdomain.ListCustomerResponse, error) {
	return f.listResp, nil
}

func (f *fakeCustomerService) GetByID(ctx context.Context, id string) (customerdomain.Customer, error) {
	if f.getErr != nil {
		return customerdomain.Customer{}, f.getErr
	}
	return customerdomain.Customer{ID: snowflake.ID(10), Name: "Acme"}, nil
}

type fakeInvoiceService struct {
	invoicedomain.Service

	warnings []string
	bulk     []invoicedomain.BulkPaymentResult
}

func (f *fakeInvoiceService) Create(ctx context.Context, req invoicedomain.CreateInvoiceRequest) (invoicedomain.Invoice, []string, error) {
	return invoicedomain.Invoice{ID: snowflake.ID(20), CustomerID: req.CustomerID, Number: req.Number, Total: req.Total}, f.warnings, nil
}

func (f *fakeInvoiceService) BulkPayments(ctx context.Context, req invoicedomain.BulkPaymentRequest) ([]invoicedomain.BulkPaymentResult, error) {
	return f.bulk, nil
}

type testServer struct {
	srv       *Server
	customers *fakeCustomerService
	invoices  *fakeInvoiceService
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	enforcer, err := authorization.NewEnforcer(db.NewTest(t))
	require.NoError(t, err)

	customers := &fakeCustomerService{}
	invoices := &fakeInvoiceService{}

	engine := gin.New()
	engine.Use(ErrorHandlingMiddleware())
	srv := &Server{
		engine:      engine,
		cfg:         config.Config{AuthJWTSecret: testSecret, AuthJWTIssuer: "fieldbooks-test"},
		log:         zap.NewNop(),
		authzSvc:    authorization.NewService(authorization.Params{Log: zap.NewNop(), Enforcer: enforcer}),
		customerSvc: customers,
		invoiceSvc:  invoices,
	}
	srv.registerAPIRoutes()
	srv.registerFallback()

	return &testServer{srv: srv, customers: customers, invoices: invoices}
}

func token(t *testing.T, role string, vendorID *snowflake.ID) string {
	t.Helper()
	claims := NewClaims("user-1", "fieldbooks-test", snowflake.ID(1), role, vendorID, time.Now(), time.Hour)
	raw, err := IssueToken(testSecret, claims)
	require.NoError(t, err)
	return raw
}

func (ts *testServer) do(t *testing.T, method, path, bearer string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	rec := httptest.NewRecorder()
	ts.srv.engine.ServeHTTP(rec, req)
	return rec
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) errorPayload {
	t.Helper()
	var resp errorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp.Error
}

func TestMissingTokenIsUnauthorized(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, http.MethodGet, "/api/v1/customers", "", nil)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "unauthorized", decodeError(t, rec).Type)
}

func TestTokenSignedWithOtherSecretIsUnauthorized(t *testing.T) {
	ts := newTestServer(t)
	raw, err := IssueToken("other-secret", NewClaims("user-1", "fieldbooks-test", snowflake.ID(1), authorization.RoleAdmin, nil, time.Now(), time.Hour))
	require.NoError(t, err)

	rec := ts.do(t, http.MethodGet, "/api/v1/customers", raw, nil)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestExpiredTokenIsUnauthorized(t *testing.T) {
	ts := newTestServer(t)
	claims := NewClaims("user-1", "fieldbooks-test", snowflake.ID(1), authorization.RoleAdmin, nil, time.Now().Add(-2*time.Hour), time.Hour)
	raw, err := IssueToken(testSecret, claims)
	require.NoError(t, err)

	rec := ts.do(t, http.MethodGet, "/api/v1/customers", raw, nil)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestVendorRoleRequiresVendorID(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, http.MethodGet, "/api/v1/vendor-bills", token(t, authorization.RoleVendor, nil), nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	vendorID := snowflake.ID(7)
	rec = ts.do(t, http.MethodGet, "/api/v1/customers", token(t, authorization.RoleOffice, &vendorID), nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestRolePolicyIsEnforced(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, http.MethodGet, "/api/v1/invoices", token(t, authorization.RoleField, nil), nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	vendorID := snowflake.ID(7)
	rec = ts.do(t, http.MethodPost, "/api/v1/customers", token(t, authorization.RoleVendor, &vendorID), map[string]any{"name": "Acme"})
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Empty(t, ts.customers.created)
}

func TestCreateCustomerCarriesOrgFromToken(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, http.MethodPost, "/api/v1/customers", token(t, authorization.RoleOffice, nil), map[string]any{
		"name":  "Acme Builders",
		"email": "ap@acme.test",
	})

	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	require.Len(t, ts.customers.created, 1)
	assert.Equal(t, "Acme Builders", ts.customers.created[0].Name)
	assert.Equal(t, snowflake.ID(1), ts.customers.lastOrg)

	var body struct {
		Data customerdomain.Customer `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, snowflake.ID(10), body.Data.ID)
}

func TestListCustomersReturnsPageInfo(t *testing.T) {
	ts := newTestServer(t)
	ts.customers.listResp = customerdomain.ListCustomerResponse{
		PageInfo:  pagination.PageInfo{NextPageToken: "next", HasMore: true},
		Customers: []customerdomain.Customer{{ID: snowflake.ID(10), Name: "Acme"}},
	}

	rec := ts.do(t, http.MethodGet, "/api/v1/customers?page_size=1", token(t, authorization.RoleOffice, nil), nil)

	require.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		Data     []customerdomain.Customer `json:"data"`
		PageInfo pagination.PageInfo       `json:"page_info"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Len(t, body.Data, 1)
	assert.True(t, body.PageInfo.HasMore)
	assert.Equal(t, "next", body.PageInfo.NextPageToken)
}

func TestDomainNotFoundMapsTo404(t *testing.T) {
	ts := newTestServer(t)
	ts.customers.getErr = customerdomain.ErrNotFound

	rec := ts.do(t, http.MethodGet, "/api/v1/customers/99", token(t, authorization.RoleOffice, nil), nil)

	assert.Equal(t, http.StatusNotFound, rec.Code)
	payload := decodeError(t, rec)
	assert.Equal(t, "not_found", payload.Type)
	assert.Equal(t, "customer_not_found", payload.Message)
}

func TestMalformedBodyIsValidationError(t *testing.T) {
	ts := newTestServer(t)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/customers", bytes.NewBufferString(`{"name":`))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token(t, authorization.RoleOffice, nil))
	rec := httptest.NewRecorder()

	ts.srv.engine.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "validation_error", decodeError(t, rec).Type)
}

func TestSyncWarningsAreReturnedAlongsideData(t *testing.T) {
	ts := newTestServer(t)
	ts.invoices.warnings = []string{"accounting sync failed: provider unavailable"}

	rec := ts.do(t, http.MethodPost, "/api/v1/invoices", token(t, authorization.RoleOffice, nil), map[string]any{
		"customer_id": "5",
		"number":      "INV-1",
		"total":       1000,
	})

	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var body struct {
		Data     invoicedomain.Invoice `json:"data"`
		Warnings []string              `json:"warnings"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "INV-1", body.Data.Number)
	assert.Equal(t, ts.invoices.warnings, body.Warnings)
}

func TestBulkPaymentsReportPartialFailure(t *testing.T) {
	ts := newTestServer(t)
	payment := invoicedomain.Payment{ID: snowflake.ID(30), Amount: 500}
	ts.invoices.bulk = []invoicedomain.BulkPaymentResult{
		{Index: 0, InvoiceID: snowflake.ID(20), Payment: &payment},
		{Index: 1, InvoiceID: snowflake.ID(21), Error: "payment_exceeds_remaining"},
	}

	rec := ts.do(t, http.MethodPost, "/api/v1/invoice-payments/bulk", token(t, authorization.RoleOffice, nil), map[string]any{
		"payments": []map[string]any{
			{"invoice_id": "20", "amount": 500, "payment_date": "2026-03-02T00:00:00Z"},
			{"invoice_id": "21", "amount": 900, "payment_date": "2026-03-02T00:00:00Z"},
		},
	})

	assert.Equal(t, http.StatusMultiStatus, rec.Code)

	ts.invoices.bulk = ts.invoices.bulk[:1]
	rec = ts.do(t, http.MethodPost, "/api/v1/invoice-payments/bulk", token(t, authorization.RoleOffice, nil), map[string]any{
		"payments": []map[string]any{{"invoice_id": "20", "amount": 500, "payment_date": "2026-03-02T00:00:00Z"}},
	})
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRunJobWithoutSchedulerIsUnavailable(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, http.MethodPost, "/api/v1/jobs/accounting_sync_retry/run", token(t, authorization.RoleAdmin, nil), nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	rec = ts.do(t, http.MethodPost, "/api/v1/jobs/accounting_sync_retry/run", token(t, authorization.RoleOffice, nil), nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestUnknownRouteIsNotFound(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, http.MethodGet, "/nope", "", nil)

	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "not_found", decodeError(t, rec).Type)
}
