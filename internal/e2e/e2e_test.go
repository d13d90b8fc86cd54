package e2e

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/fieldbooks/internal/clock"
	"github.com/smallbiznis/fieldbooks/internal/config"
	"github.com/smallbiznis/fieldbooks/internal/lock"
	"github.com/smallbiznis/fieldbooks/internal/migration"
	"github.com/smallbiznis/fieldbooks/internal/observability"
	"github.com/smallbiznis/fieldbooks/internal/scheduler"
	"github.com/smallbiznis/fieldbooks/internal/server"
	"github.com/smallbiznis/fieldbooks/pkg/db"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/fx"
	"gorm.io/gorm"
)

const e2eSecret = "e2e-secret"

type testEnv struct {
	app     *fx.App
	db      *gorm.DB
	cfg     config.Config
	genID   *snowflake.Node
	httpSrv *httptest.Server
	dataDir string
}

var env *testEnv

func TestMain(m *testing.M) {
	gin.SetMode(gin.TestMode)

	dataDir, err := os.MkdirTemp("", "fieldbooks-e2e-")
	if err != nil {
		fmt.Fprintln(os.Stderr, "create data dir:", err)
		os.Exit(1)
	}
	setDefaultEnv(dataDir)

	env, err = startEnv()
	if err != nil {
		fmt.Fprintln(os.Stderr, "failed to start test environment:", err)
		_ = os.RemoveAll(dataDir)
		os.Exit(1)
	}
	env.dataDir = dataDir

	code := m.Run()
	env.shutdown()
	os.Exit(code)
}

func startEnv() (*testEnv, error) {
	var (
		srv    *server.Server
		dbConn *gorm.DB
		cfg    config.Config
		genID  *snowflake.Node
	)

	app := fx.New(
		config.Module,
		observability.Module,
		fx.Provide(func() (*snowflake.Node, error) { return snowflake.NewNode(1) }),
		db.Module,
		clock.Module,
		lock.Module,
		migration.Module,
		server.Module,
		scheduler.Module,
		fx.Populate(&srv, &dbConn, &cfg, &genID),
		fx.NopLogger,
	)
	if err := app.Err(); err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := app.Start(ctx); err != nil {
		return nil, err
	}
	if cfg.DBType != "sqlite" {
		_ = app.Stop(context.Background())
		return nil, fmt.Errorf("expected sqlite db, got %s", cfg.DBType)
	}

	return &testEnv{
		app:     app,
		db:      dbConn,
		cfg:     cfg,
		genID:   genID,
		httpSrv: httptest.NewServer(srv.Engine()),
	}, nil
}

func (e *testEnv) shutdown() {
	if e == nil {
		return
	}
	if e.httpSrv != nil {
		e.httpSrv.Close()
	}
	if e.app != nil {
		_ = e.app.Stop(context.Background())
	}
	if e.dataDir != "" {
		_ = os.RemoveAll(e.dataDir)
	}
}

func setDefaultEnv(dataDir string) {
	setEnvIfEmpty("ENVIRONMENT", "test")
	setEnvIfEmpty("LOG_LEVEL", "error")
	setEnvIfEmpty("HTTP_ADDR", "127.0.0.1:0")
	setEnvIfEmpty("AUTH_JWT_SECRET", e2eSecret)
	setEnvIfEmpty("AUTH_JWT_ISSUER", "fieldbooks-e2e")
	setEnvIfEmpty("DATABASE_TYPE", "sqlite")
	setEnvIfEmpty("DATABASE_PATH", "file:fieldbooks_e2e?mode=memory&cache=shared")
	setEnvIfEmpty("DATABASE_MAX_OPEN_CONN", "1")
	setEnvIfEmpty("DATABASE_MAX_IDLE_CONN", "1")
	setEnvIfEmpty("STORAGE_ROOT", dataDir)
	setEnvIfEmpty("SCHEDULER_ENABLED", "false")
	setEnvIfEmpty("ACCOUNTING_PROVIDER", "noop")
}

func setEnvIfEmpty(key, value string) {
	if os.Getenv(key) == "" {
		_ = os.Setenv(key, value)
	}
}

// tenant is one organization with a token per role. Each test gets its own so tests never
// see each other's rows or cached views.
type tenant struct {
	orgID  snowflake.ID
	tokens map[string]string
}

func newTenant(t *testing.T) *tenant {
	t.Helper()
	return &tenant{orgID: env.genID.Generate(), tokens: map[string]string{}}
}

func (tn *tenant) token(t *testing.T, role string, vendorID *snowflake.ID) string {
	t.Helper()
	key := role
	if vendorID != nil {
		key += ":" + vendorID.String()
	}
	if raw, ok := tn.tokens[key]; ok {
		return raw
	}
	claims := server.NewClaims(role+"@e2e", env.cfg.AuthJWTIssuer, tn.orgID, role, vendorID, time.Now(), time.Hour)
	raw, err := server.IssueToken(env.cfg.AuthJWTSecret, claims)
	require.NoError(t, err)
	tn.tokens[key] = raw
	return raw
}

type envelope struct {
	Data     json.RawMessage `json:"data"`
	Warnings []string        `json:"warnings"`
	Error    *struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error"`
}

func doJSON(t *testing.T, method, path, bearer string, payload any) (int, envelope) {
	t.Helper()

	var body io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		require.NoError(t, err)
		body = bytes.NewReader(raw)
	}

	req, err := http.NewRequest(method, env.httpSrv.URL+path, body)
	require.NoError(t, err)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}

	resp, err := env.httpSrv.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	var out envelope
	if len(data) > 0 {
		require.NoErrorf(t, json.Unmarshal(data, &out), "decode %s", string(data))
	}
	return resp.StatusCode, out
}

func mustStatus(t *testing.T, want int, method, path, bearer string, payload any, dst any) envelope {
	t.Helper()
	status, out := doJSON(t, method, path, bearer, payload)
	require.Equalf(t, want, status, "%s %s: %+v", method, path, out.Error)
	if dst != nil {
		require.NoError(t, json.Unmarshal(out.Data, dst))
	}
	return out
}

type idOnly struct {
	ID string `json:"id"`
}

type ledgerView struct {
	ID              string `json:"id"`
	Status          string `json:"status"`
	Total           int64  `json:"total"`
	InvoicedAmount  int64  `json:"invoiced_amount"`
	PaidAmount      int64  `json:"paid_amount"`
	RemainingAmount int64  `json:"remaining_amount"`
}

func TestE2E_HealthCheck(t *testing.T) {
	resp, err := http.Get(env.httpSrv.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestE2E_EstimateToPaidInvoice(t *testing.T) {
	tn := newTenant(t)
	office := tn.token(t, "office", nil)

	var customer idOnly
	mustStatus(t, http.StatusCreated, http.MethodPost, "/api/v1/customers", office, map[string]any{
		"name":  "Harbor View Condos",
		"email": "ap@harborview.test",
	}, &customer)

	var estimate ledgerView
	mustStatus(t, http.StatusCreated, http.MethodPost, "/api/v1/estimates", office, map[string]any{
		"customer_id": customer.ID,
		"number":      "EST-100",
		"title":       "Lobby renovation",
		"lines": []map[string]any{
			{"description": "Demolition", "quantity": "2", "unit_price": 50000},
			{"description": "Drywall", "quantity": "1", "unit_price": 25000},
		},
	}, &estimate)
	assert.Equal(t, int64(125000), estimate.Total)

	mustStatus(t, http.StatusOK, http.MethodPost, "/api/v1/estimates/"+estimate.ID+"/transition", office, map[string]any{"status": "sent"}, nil)
	mustStatus(t, http.StatusOK, http.MethodPost, "/api/v1/estimates/"+estimate.ID+"/transition", office, map[string]any{"status": "approved"}, nil)

	var job ledgerView
	mustStatus(t, http.StatusCreated, http.MethodPost, "/api/v1/estimates/"+estimate.ID+"/job-order", office, nil, &job)
	assert.Equal(t, int64(125000), job.Total)
	assert.Equal(t, int64(125000), job.RemainingAmount)

	// An estimate converts once.
	status, out := doJSON(t, http.MethodPost, "/api/v1/estimates/"+estimate.ID+"/job-order", office, nil)
	assert.Equal(t, http.StatusConflict, status)
	require.NotNil(t, out.Error)

	var invoice ledgerView
	mustStatus(t, http.StatusCreated, http.MethodPost, "/api/v1/invoices", office, map[string]any{
		"customer_id":  customer.ID,
		"job_order_id": job.ID,
		"number":       "INV-100",
		"total":        100000,
	}, &invoice)

	mustStatus(t, http.StatusOK, http.MethodGet, "/api/v1/job-orders/"+job.ID, office, nil, &job)
	assert.Equal(t, int64(100000), job.InvoicedAmount)
	assert.Equal(t, int64(25000), job.RemainingAmount)

	status, _ = doJSON(t, http.MethodPost, "/api/v1/invoices", office, map[string]any{
		"customer_id":  customer.ID,
		"job_order_id": job.ID,
		"number":       "INV-101",
		"total":        30000,
	})
	assert.Equal(t, http.StatusConflict, status)

	var payment struct {
		Invoice ledgerView `json:"invoice"`
	}
	mustStatus(t, http.StatusCreated, http.MethodPost, "/api/v1/invoices/"+invoice.ID+"/payments", office, map[string]any{
		"amount":       40000,
		"payment_date": "2026-03-02T00:00:00Z",
		"method":       "check",
	}, &payment)
	assert.Equal(t, int64(40000), payment.Invoice.PaidAmount)
	assert.Equal(t, int64(60000), payment.Invoice.RemainingAmount)

	status, _ = doJSON(t, http.MethodPost, "/api/v1/invoices/"+invoice.ID+"/payments", office, map[string]any{
		"amount":       60001,
		"payment_date": "2026-03-03T00:00:00Z",
	})
	assert.Equal(t, http.StatusConflict, status)

	// Invoiced work keeps the job order alive.
	status, _ = doJSON(t, http.MethodDelete, "/api/v1/job-orders/"+job.ID, office, nil)
	assert.Equal(t, http.StatusConflict, status)

	var summary struct {
		ContractValue int64 `json:"contract_value"`
		Invoiced      int64 `json:"invoiced_amount"`
		Remaining     int64 `json:"remaining_amount"`
	}
	mustStatus(t, http.StatusOK, http.MethodGet, "/api/v1/job-orders/"+job.ID+"/summary", office, nil, &summary)
	assert.Equal(t, int64(125000), summary.ContractValue)
	assert.Equal(t, int64(100000), summary.Invoiced)
	assert.Equal(t, int64(25000), summary.Remaining)

	var logs []struct {
		Action string `json:"action"`
	}
	mustStatus(t, http.StatusOK, http.MethodGet, "/api/v1/audit-logs?target_type=invoice", tn.token(t, "admin", nil), nil, &logs)
	assert.NotEmpty(t, logs)
}

func TestE2E_ChangeOrderExtendsContract(t *testing.T) {
	tn := newTenant(t)
	office := tn.token(t, "office", nil)

	var customer idOnly
	mustStatus(t, http.StatusCreated, http.MethodPost, "/api/v1/customers", office, map[string]any{"name": "Riverside School District"}, &customer)

	var job ledgerView
	mustStatus(t, http.StatusCreated, http.MethodPost, "/api/v1/job-orders", office, map[string]any{
		"customer_id": customer.ID,
		"number":      "JO-200",
		"title":       "Gym roof",
		"total":       80000,
	}, &job)

	var co ledgerView
	mustStatus(t, http.StatusCreated, http.MethodPost, "/api/v1/job-orders/"+job.ID+"/change-orders", office, map[string]any{
		"number":      "CO-1",
		"description": "Replace rotted decking",
		"kind":        "additive",
		"total":       15000,
	}, &co)

	// Pending change orders cannot be invoiced.
	status, _ := doJSON(t, http.MethodPost, "/api/v1/invoices", office, map[string]any{
		"customer_id":     customer.ID,
		"change_order_id": co.ID,
		"number":          "INV-CO-1",
		"total":           15000,
	})
	assert.Equal(t, http.StatusConflict, status)

	mustStatus(t, http.StatusOK, http.MethodPost, "/api/v1/change-orders/"+co.ID+"/decision", office, map[string]any{"status": "approved"}, nil)

	mustStatus(t, http.StatusCreated, http.MethodPost, "/api/v1/invoices", office, map[string]any{
		"customer_id":     customer.ID,
		"change_order_id": co.ID,
		"number":          "INV-CO-1",
		"total":           15000,
	}, nil)

	var summary struct {
		ContractValue int64 `json:"contract_value"`
		Invoiced      int64 `json:"invoiced_amount"`
	}
	mustStatus(t, http.StatusOK, http.MethodGet, "/api/v1/job-orders/"+job.ID+"/summary", office, nil, &summary)
	assert.Equal(t, int64(95000), summary.ContractValue)
	assert.Equal(t, int64(15000), summary.Invoiced)
}

func TestE2E_VendorPortalSeesOnlyItsBills(t *testing.T) {
	tn := newTenant(t)
	office := tn.token(t, "office", nil)

	var vendorA, vendorB idOnly
	mustStatus(t, http.StatusCreated, http.MethodPost, "/api/v1/vendors", office, map[string]any{"name": "Acme Lumber", "trade": "framing"}, &vendorA)
	mustStatus(t, http.StatusCreated, http.MethodPost, "/api/v1/vendors", office, map[string]any{"name": "Bright Electric", "trade": "electrical"}, &vendorB)

	var po ledgerView
	mustStatus(t, http.StatusCreated, http.MethodPost, "/api/v1/purchase-orders", office, map[string]any{
		"vendor_id": vendorA.ID,
		"number":    "PO-300",
		"lines": []map[string]any{
			{"description": "2x4 studs", "quantity": "100", "unit_price": 10},
		},
	}, &po)
	assert.Equal(t, int64(1000), po.Total)

	idA := mustParseID(t, vendorA.ID)
	idB := mustParseID(t, vendorB.ID)
	portalA := tn.token(t, "vendor", &idA)
	portalB := tn.token(t, "vendor", &idB)

	var bill ledgerView
	mustStatus(t, http.StatusCreated, http.MethodPost, "/api/v1/vendor-bills", portalA, map[string]any{
		"purchase_order_id": po.ID,
		"number":            "ACME-1",
		"lines": []map[string]any{
			{"description": "Studs delivered", "quantity": "30", "unit_price": 10},
		},
	}, &bill)
	assert.Equal(t, int64(300), bill.Total)

	// Another vendor cannot bill on someone else's behalf or see the bill.
	status, _ := doJSON(t, http.MethodPost, "/api/v1/vendor-bills", portalB, map[string]any{
		"vendor_id": vendorA.ID,
		"number":    "FAKE-1",
		"lines":     []map[string]any{{"description": "x", "quantity": "1", "unit_price": 1}},
	})
	assert.Equal(t, http.StatusForbidden, status)

	status, _ = doJSON(t, http.MethodGet, "/api/v1/vendor-bills/"+bill.ID, portalB, nil)
	assert.Equal(t, http.StatusNotFound, status)

	var listed []idOnly
	mustStatus(t, http.StatusOK, http.MethodGet, "/api/v1/vendor-bills", portalB, nil, &listed)
	assert.Empty(t, listed)

	mustStatus(t, http.StatusOK, http.MethodGet, "/api/v1/vendor-bills", portalA, nil, &listed)
	assert.Len(t, listed, 1)

	// Portal users have no access to the office side.
	status, _ = doJSON(t, http.MethodGet, "/api/v1/customers", portalA, nil)
	assert.Equal(t, http.StatusForbidden, status)

	var refreshed ledgerView
	mustStatus(t, http.StatusOK, http.MethodGet, "/api/v1/purchase-orders/"+po.ID, office, nil, &refreshed)
	assert.Equal(t, int64(700), refreshed.RemainingAmount)
}

func TestE2E_FieldCrewLogsTime(t *testing.T) {
	tn := newTenant(t)
	office := tn.token(t, "office", nil)
	field := tn.token(t, "field", nil)

	var customer, person idOnly
	mustStatus(t, http.StatusCreated, http.MethodPost, "/api/v1/customers", office, map[string]any{"name": "Maple Street HOA"}, &customer)
	mustStatus(t, http.StatusCreated, http.MethodPost, "/api/v1/people", office, map[string]any{
		"name":        "Dana Ortiz",
		"trade":       "carpentry",
		"hourly_rate": 4200,
	}, &person)

	var job idOnly
	mustStatus(t, http.StatusCreated, http.MethodPost, "/api/v1/job-orders", office, map[string]any{
		"customer_id": customer.ID,
		"number":      "JO-400",
		"title":       "Fence repair",
		"total":       20000,
	}, &job)

	var entry struct {
		RegularHours  string `json:"regular_hours"`
		OvertimeHours string `json:"overtime_hours"`
	}
	mustStatus(t, http.StatusCreated, http.MethodPost, "/api/v1/time-entries", field, map[string]any{
		"person_id":    person.ID,
		"job_order_id": job.ID,
		"work_date":    "2026-03-02T00:00:00Z",
		"hours":        "10",
	}, &entry)
	assert.Equal(t, "8", entry.RegularHours)
	assert.Equal(t, "2", entry.OvertimeHours)

	mustStatus(t, http.StatusCreated, http.MethodPost, "/api/v1/time-entries", field, map[string]any{
		"person_id":    person.ID,
		"job_order_id": job.ID,
		"work_date":    "2026-03-04T00:00:00Z",
		"hours":        "6.5",
	}, nil)

	status, _ := doJSON(t, http.MethodPost, "/api/v1/time-entries", field, map[string]any{
		"person_id":    person.ID,
		"job_order_id": job.ID,
		"work_date":    "2026-03-05T00:00:00Z",
		"hours":        "25",
	})
	assert.Equal(t, http.StatusBadRequest, status)

	var summary struct {
		Totals struct {
			Entries       int    `json:"entries"`
			Hours         string `json:"hours"`
			OvertimeHours string `json:"overtime_hours"`
		} `json:"totals"`
	}
	mustStatus(t, http.StatusOK, http.MethodGet, "/api/v1/time-entries/weekly-summary?week=2026-03-04", field, nil, &summary)
	assert.Equal(t, 2, summary.Totals.Entries)
	assert.Equal(t, "16.5", summary.Totals.Hours)
	assert.Equal(t, "2", summary.Totals.OvertimeHours)

	// Field crews log time but never see invoices.
	status, _ = doJSON(t, http.MethodGet, "/api/v1/invoices", field, nil)
	assert.Equal(t, http.StatusForbidden, status)
}

func TestE2E_ManualJobRun(t *testing.T) {
	tn := newTenant(t)
	admin := tn.token(t, "admin", nil)

	mustStatus(t, http.StatusOK, http.MethodPost, "/api/v1/jobs/"+scheduler.JobSyncRetry+"/run", admin, nil, nil)
	mustStatus(t, http.StatusOK, http.MethodPost, "/api/v1/jobs/"+scheduler.JobCertExpiry+"/run", admin, nil, nil)

	status, _ := doJSON(t, http.MethodPost, "/api/v1/jobs/nightly_backup/run", admin, nil)
	assert.Equal(t, http.StatusNotFound, status)
}

func mustParseID(t *testing.T, value string) snowflake.ID {
	t.Helper()
	id, err := snowflake.ParseString(value)
	require.NoError(t, err)
	return id
}
