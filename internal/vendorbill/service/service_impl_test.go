package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	accountingdomain "github.com/smallbiznis/fieldbooks/internal/accounting/domain"
	accountingrepo "github.com/smallbiznis/fieldbooks/internal/accounting/repository"
	accountingsvc "github.com/smallbiznis/fieldbooks/internal/accounting/service"
	"github.com/smallbiznis/fieldbooks/internal/clock"
	joborderdomain "github.com/smallbiznis/fieldbooks/internal/joborder/domain"
	joborderrepo "github.com/smallbiznis/fieldbooks/internal/joborder/repository"
	"github.com/smallbiznis/fieldbooks/internal/orgcontext"
	podomain "github.com/smallbiznis/fieldbooks/internal/purchaseorder/domain"
	porepo "github.com/smallbiznis/fieldbooks/internal/purchaseorder/repository"
	poservice "github.com/smallbiznis/fieldbooks/internal/purchaseorder/service"
	vendordomain "github.com/smallbiznis/fieldbooks/internal/supplier/domain"
	vendorrepo "github.com/smallbiznis/fieldbooks/internal/supplier/repository"
	"github.com/smallbiznis/fieldbooks/internal/vendorbill/domain"
	"github.com/smallbiznis/fieldbooks/internal/vendorbill/repository"
	"github.com/smallbiznis/fieldbooks/pkg/db"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const testOrg = snowflake.ID(21)

type flakyProvider struct {
	err error
}

func (p *flakyProvider) Name() string { return "flaky" }

func (p *flakyProvider) Push(_ context.Context, doc accountingdomain.Document, ref accountingdomain.ExternalRef) (accountingdomain.ExternalRef, error) {
	if p.err != nil {
		return ref, p.err
	}
	return accountingdomain.ExternalRef{ID: "bill-" + doc.EntityID.String()}, nil
}

type fixture struct {
	svc      domain.Service
	pos      podomain.Service
	conn     *gorm.DB
	node     *snowflake.Node
	provider *flakyProvider
	vendorID snowflake.ID
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	conn := db.NewTest(t,
		&vendordomain.Vendor{},
		&joborderdomain.JobOrder{},
		&podomain.PurchaseOrder{},
		&podomain.Line{},
		&domain.VendorBill{},
		&domain.Line{},
		&domain.Payment{},
		&accountingdomain.SyncMapping{},
	)
	node, err := snowflake.NewNode(6)
	require.NoError(t, err)
	now := time.Date(2026, 8, 17, 9, 0, 0, 0, time.UTC)
	clk := clock.NewFakeClock(now)

	vendor := vendordomain.Vendor{ID: node.Generate(), OrgID: testOrg, Name: "Cascade Concrete", CreatedAt: now, UpdatedAt: now}
	require.NoError(t, conn.Create(&vendor).Error)

	provider := &flakyProvider{}
	svc := New(Params{
		DB:             conn,
		Log:            zap.NewNop(),
		GenID:          node,
		Clock:          clk,
		Repo:           repository.Provide(),
		Vendors:        vendorrepo.Provide(),
		PurchaseOrders: porepo.Provide(),
		Accounting: accountingsvc.New(accountingsvc.Params{
			DB:       conn,
			Log:      zap.NewNop(),
			GenID:    node,
			Clock:    clk,
			Repo:     accountingrepo.Provide(),
			Provider: provider,
		}),
		AccountingRepo: accountingrepo.Provide(),
	})
	pos := poservice.New(poservice.Params{
		DB:        conn,
		Log:       zap.NewNop(),
		GenID:     node,
		Clock:     clk,
		Repo:      porepo.Provide(),
		Vendors:   vendorrepo.Provide(),
		JobOrders: joborderrepo.Provide(),
	})
	return fixture{svc: svc, pos: pos, conn: conn, node: node, provider: provider, vendorID: vendor.ID}
}

func ctx() context.Context {
	return orgcontext.WithOrgID(context.Background(), testOrg)
}

func portal(vendorID snowflake.ID) context.Context {
	return orgcontext.WithActor(ctx(), orgcontext.Actor{ID: "portal-7", Role: "vendor", VendorID: &vendorID})
}

// purchaseOrder orders 10 yards of concrete at 500 and 2 pump days at 1500: total 8000.
func (f fixture) purchaseOrder(t *testing.T) podomain.PurchaseOrder {
	t.Helper()
	po, err := f.pos.Create(ctx(), podomain.CreatePurchaseOrderRequest{VendorID: f.vendorID, Lines: []podomain.LineInput{
		{Description: "Concrete, yards", Quantity: decimal.NewFromInt(10), UnitPrice: 500},
		{Description: "Pump truck, days", Quantity: decimal.NewFromInt(2), UnitPrice: 1500},
	}})
	require.NoError(t, err)
	return po
}

func (f fixture) reloadPO(t *testing.T, id snowflake.ID) podomain.PurchaseOrder {
	t.Helper()
	po, err := f.pos.GetByID(ctx(), id.String())
	require.NoError(t, err)
	return po
}

func billLine(poLine *podomain.Line, quantity string, unitPrice int64) domain.LineInput {
	input := domain.LineInput{Description: "Delivered", Quantity: decimal.RequireFromString(quantity), UnitPrice: unitPrice}
	if poLine != nil {
		input.PurchaseOrderLineID = &poLine.ID
	}
	return input
}

func TestBillLifecycleMovesPurchaseOrder(t *testing.T) {
	f := newFixture(t)
	po := f.purchaseOrder(t)

	bill, warnings, err := f.svc.Create(ctx(), domain.CreateVendorBillRequest{
		VendorID:        f.vendorID,
		PurchaseOrderID: &po.ID,
		Lines:           []domain.LineInput{billLine(&po.Lines[0], "4", 500)},
	})
	require.NoError(t, err)
	assert.Empty(t, warnings)
	assert.Equal(t, "BILL-00001", bill.Number)
	assert.Equal(t, domain.StatusOpen, bill.Status)
	assert.Equal(t, int64(2000), bill.RemainingAmount)

	got := f.reloadPO(t, po.ID)
	assert.Equal(t, int64(2000), got.BilledAmount)
	assert.Equal(t, int64(6000), got.RemainingAmount)
	assert.True(t, decimal.NewFromInt(4).Equal(got.Lines[0].BilledQuantity))
	assert.True(t, got.Lines[1].BilledQuantity.IsZero())

	_, err = f.svc.Delete(ctx(), bill.ID.String())
	require.NoError(t, err)
	got = f.reloadPO(t, po.ID)
	assert.Equal(t, int64(0), got.BilledAmount)
	assert.Equal(t, int64(8000), got.RemainingAmount)
	assert.True(t, got.Lines[0].BilledQuantity.IsZero())

	_, err = f.svc.Delete(ctx(), bill.ID.String())
	assert.ErrorIs(t, err, domain.ErrAlreadyDeleted)
	assert.Equal(t, int64(8000), f.reloadPO(t, po.ID).RemainingAmount)

	_, _, err = f.svc.Restore(ctx(), bill.ID.String())
	require.NoError(t, err)
	got = f.reloadPO(t, po.ID)
	assert.Equal(t, int64(2000), got.BilledAmount)
	assert.True(t, decimal.NewFromInt(4).Equal(got.Lines[0].BilledQuantity))
}

func TestBillExceedingPurchaseOrderIsRejected(t *testing.T) {
	f := newFixture(t)
	po := f.purchaseOrder(t)

	_, _, err := f.svc.Create(ctx(), domain.CreateVendorBillRequest{
		VendorID:        f.vendorID,
		PurchaseOrderID: &po.ID,
		Lines:           []domain.LineInput{billLine(&po.Lines[1], "3", 3000)},
	})
	assert.ErrorIs(t, err, domain.ErrExceedsRemaining)

	var bills int64
	require.NoError(t, f.conn.Model(&domain.VendorBill{}).Count(&bills).Error)
	assert.Zero(t, bills)
	got := f.reloadPO(t, po.ID)
	assert.Equal(t, int64(8000), got.RemainingAmount)
	assert.True(t, got.Lines[1].BilledQuantity.IsZero())
}

func TestBillQuantityBeyondOrderedIsRejected(t *testing.T) {
	f := newFixture(t)
	po := f.purchaseOrder(t)

	first, _, err := f.svc.Create(ctx(), domain.CreateVendorBillRequest{
		VendorID:        f.vendorID,
		PurchaseOrderID: &po.ID,
		Lines:           []domain.LineInput{billLine(&po.Lines[0], "6", 100)},
	})
	require.NoError(t, err)

	_, _, err = f.svc.Create(ctx(), domain.CreateVendorBillRequest{
		VendorID:        f.vendorID,
		PurchaseOrderID: &po.ID,
		Lines:           []domain.LineInput{billLine(&po.Lines[0], "6", 100)},
	})
	assert.ErrorIs(t, err, domain.ErrQuantityExceeds)
	got := f.reloadPO(t, po.ID)
	assert.True(t, decimal.NewFromInt(6).Equal(got.Lines[0].BilledQuantity))
	assert.Equal(t, int64(600), got.BilledAmount)

	// Two lines on one bill draw from the same ordered quantity.
	_, _, err = f.svc.Create(ctx(), domain.CreateVendorBillRequest{
		VendorID:        f.vendorID,
		PurchaseOrderID: &po.ID,
		Lines: []domain.LineInput{
			billLine(&po.Lines[0], "3", 100),
			billLine(&po.Lines[0], "2", 100),
		},
	})
	assert.ErrorIs(t, err, domain.ErrQuantityExceeds)

	second, _, err := f.svc.Create(ctx(), domain.CreateVendorBillRequest{
		VendorID:        f.vendorID,
		PurchaseOrderID: &po.ID,
		Lines:           []domain.LineInput{billLine(&po.Lines[0], "4", 100)},
	})
	require.NoError(t, err)
	assert.True(t, decimal.NewFromInt(10).Equal(f.reloadPO(t, po.ID).Lines[0].BilledQuantity))

	_, _, err = f.svc.Update(ctx(), second.ID.String(), domain.UpdateVendorBillRequest{
		Lines: []domain.LineInput{billLine(&po.Lines[0], "5", 100)},
	})
	assert.ErrorIs(t, err, domain.ErrQuantityExceeds)

	_, err = f.svc.Delete(ctx(), first.ID.String())
	require.NoError(t, err)
	got = f.reloadPO(t, po.ID)
	assert.True(t, decimal.NewFromInt(4).Equal(got.Lines[0].BilledQuantity))
	assert.Equal(t, int64(400), got.BilledAmount)
	assert.True(t, got.Ledger().Consistent())
}

func TestBillLineValidation(t *testing.T) {
	f := newFixture(t)
	po := f.purchaseOrder(t)
	stray := podomain.Line{ID: f.node.Generate()}

	_, _, err := f.svc.Create(ctx(), domain.CreateVendorBillRequest{VendorID: f.vendorID})
	assert.ErrorIs(t, err, domain.ErrInvalidLine)

	_, _, err = f.svc.Create(ctx(), domain.CreateVendorBillRequest{
		VendorID: f.vendorID,
		Lines:    []domain.LineInput{billLine(&po.Lines[0], "1", 100)},
	})
	assert.ErrorIs(t, err, domain.ErrInvalidLine)

	_, _, err = f.svc.Create(ctx(), domain.CreateVendorBillRequest{
		VendorID:        f.vendorID,
		PurchaseOrderID: &po.ID,
		Lines:           []domain.LineInput{billLine(&stray, "1", 100)},
	})
	assert.ErrorIs(t, err, domain.ErrInvalidLine)

	_, _, err = f.svc.Create(ctx(), domain.CreateVendorBillRequest{
		VendorID: f.vendorID,
		Lines:    []domain.LineInput{billLine(nil, "1", 0)},
	})
	assert.ErrorIs(t, err, domain.ErrInvalidTotal)

	_, err = f.pos.Close(ctx(), po.ID.String())
	require.NoError(t, err)
	_, _, err = f.svc.Create(ctx(), domain.CreateVendorBillRequest{
		VendorID:        f.vendorID,
		PurchaseOrderID: &po.ID,
		Lines:           []domain.LineInput{billLine(nil, "1", 100)},
	})
	assert.ErrorIs(t, err, domain.ErrPurchaseOrderClosed)
}

func TestUpdateLinesAdjustsPurchaseOrder(t *testing.T) {
	f := newFixture(t)
	po := f.purchaseOrder(t)
	bill, _, err := f.svc.Create(ctx(), domain.CreateVendorBillRequest{
		VendorID:        f.vendorID,
		PurchaseOrderID: &po.ID,
		Lines:           []domain.LineInput{billLine(&po.Lines[0], "4", 500)},
	})
	require.NoError(t, err)
	_, err = f.svc.AddPayment(ctx(), bill.ID.String(), domain.PaymentInput{Amount: 1500})
	require.NoError(t, err)

	_, _, err = f.svc.Update(ctx(), bill.ID.String(), domain.UpdateVendorBillRequest{
		Lines: []domain.LineInput{billLine(&po.Lines[0], "2", 500)},
	})
	assert.ErrorIs(t, err, domain.ErrTotalBelowPaid)

	updated, _, err := f.svc.Update(ctx(), bill.ID.String(), domain.UpdateVendorBillRequest{
		Lines: []domain.LineInput{billLine(&po.Lines[0], "3", 500), billLine(&po.Lines[1], "1", 1500)},
	})
	require.NoError(t, err)
	assert.Equal(t, int64(3000), updated.Total)
	assert.Equal(t, int64(1500), updated.RemainingAmount)
	assert.Equal(t, domain.StatusPartiallyPaid, updated.Status)

	got := f.reloadPO(t, po.ID)
	assert.Equal(t, int64(3000), got.BilledAmount)
	assert.Equal(t, int64(5000), got.RemainingAmount)
	assert.True(t, decimal.NewFromInt(3).Equal(got.Lines[0].BilledQuantity))
	assert.True(t, decimal.NewFromInt(1).Equal(got.Lines[1].BilledQuantity))
}

func TestBillPaymentsSettle(t *testing.T) {
	f := newFixture(t)
	bill, _, err := f.svc.Create(ctx(), domain.CreateVendorBillRequest{
		VendorID: f.vendorID,
		Lines:    []domain.LineInput{billLine(nil, "1", 500)},
	})
	require.NoError(t, err)

	first, err := f.svc.AddPayment(ctx(), bill.ID.String(), domain.PaymentInput{Amount: 200, Method: "ach"})
	require.NoError(t, err)
	assert.Equal(t, domain.StatusPartiallyPaid, first.VendorBill.Status)
	assert.Equal(t, int64(300), first.VendorBill.RemainingAmount)

	second, err := f.svc.AddPayment(ctx(), bill.ID.String(), domain.PaymentInput{Amount: 300})
	require.NoError(t, err)
	assert.Equal(t, domain.StatusPaid, second.VendorBill.Status)

	_, err = f.svc.AddPayment(ctx(), bill.ID.String(), domain.PaymentInput{Amount: 1})
	assert.ErrorIs(t, err, domain.ErrPaymentExceeds)

	_, err = f.svc.DeletePayment(ctx(), first.Payment.ID.String())
	require.NoError(t, err)
	removed, err := f.svc.DeletePayment(ctx(), second.Payment.ID.String())
	require.NoError(t, err)
	assert.Equal(t, domain.StatusOpen, removed.VendorBill.Status)
	assert.Equal(t, int64(0), removed.VendorBill.PaidAmount)

	results, err := f.svc.BulkPayments(ctx(), domain.BulkPaymentRequest{Payments: []domain.BulkPaymentItem{
		{VendorBillID: bill.ID, PaymentInput: domain.PaymentInput{Amount: 400}},
		{VendorBillID: bill.ID, PaymentInput: domain.PaymentInput{Amount: 400}},
	}})
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.NotNil(t, results[0].Payment)
	assert.Equal(t, domain.ErrPaymentExceeds.Error(), results[1].Error)

	_, err = f.svc.Delete(ctx(), bill.ID.String())
	require.NoError(t, err)
	_, err = f.svc.AddPayment(ctx(), bill.ID.String(), domain.PaymentInput{Amount: 50})
	assert.ErrorIs(t, err, domain.ErrDeleted)
}

// deleteOnLock soft-deletes a payment as the bill lock is taken, like a delete from
// another request that commits while this one waits.
type deleteOnLock struct {
	domain.Repository
	paymentID snowflake.ID
	fired     bool
}

func (r *deleteOnLock) FindByIDForUpdate(ctx context.Context, db *gorm.DB, orgID, id snowflake.ID) (*domain.VendorBill, error) {
	if !r.fired {
		r.fired = true
		if _, err := r.Repository.SoftDeletePayment(ctx, db, orgID, r.paymentID, "office-2", time.Now()); err != nil {
			return nil, err
		}
	}
	return r.Repository.FindByIDForUpdate(ctx, db, orgID, id)
}

func TestPaymentDeletedWhileWaitingForBillLock(t *testing.T) {
	f := newFixture(t)
	bill, _, err := f.svc.Create(ctx(), domain.CreateVendorBillRequest{
		VendorID: f.vendorID,
		Lines:    []domain.LineInput{billLine(nil, "1", 500)},
	})
	require.NoError(t, err)
	paid, err := f.svc.AddPayment(ctx(), bill.ID.String(), domain.PaymentInput{Amount: 200})
	require.NoError(t, err)

	racing := func() domain.Service {
		return New(Params{
			DB:             f.conn,
			Log:            zap.NewNop(),
			GenID:          f.node,
			Clock:          clock.NewFakeClock(time.Date(2026, 8, 17, 9, 0, 0, 0, time.UTC)),
			Repo:           &deleteOnLock{Repository: repository.Provide(), paymentID: paid.Payment.ID},
			Vendors:        vendorrepo.Provide(),
			PurchaseOrders: porepo.Provide(),
		})
	}

	amount := int64(450)
	_, err = racing().UpdatePayment(ctx(), paid.Payment.ID.String(), domain.UpdatePaymentRequest{Amount: &amount})
	assert.ErrorIs(t, err, domain.ErrPaymentNotFound)
	_, err = racing().DeletePayment(ctx(), paid.Payment.ID.String())
	assert.ErrorIs(t, err, domain.ErrPaymentNotFound)

	got, err := f.svc.GetByID(ctx(), bill.ID.String())
	require.NoError(t, err)
	assert.Equal(t, int64(200), got.PaidAmount)
	payments, err := f.svc.ListPayments(ctx(), bill.ID.String())
	require.NoError(t, err)
	require.Len(t, payments, 1)
	assert.Equal(t, int64(200), payments[0].Amount)
}

func TestVendorPortalScope(t *testing.T) {
	f := newFixture(t)
	other := vendordomain.Vendor{ID: f.node.Generate(), OrgID: testOrg, Name: "Summit Glazing"}
	require.NoError(t, f.conn.Create(&other).Error)

	mine, _, err := f.svc.Create(portal(f.vendorID), domain.CreateVendorBillRequest{
		Lines: []domain.LineInput{billLine(nil, "1", 900)},
	})
	require.NoError(t, err)
	assert.Equal(t, f.vendorID, mine.VendorID)

	_, _, err = f.svc.Create(portal(f.vendorID), domain.CreateVendorBillRequest{
		VendorID: other.ID,
		Lines:    []domain.LineInput{billLine(nil, "1", 900)},
	})
	assert.ErrorIs(t, err, domain.ErrVendorScope)

	theirs, _, err := f.svc.Create(ctx(), domain.CreateVendorBillRequest{
		VendorID: other.ID,
		Lines:    []domain.LineInput{billLine(nil, "1", 700)},
	})
	require.NoError(t, err)

	_, err = f.svc.GetByID(portal(f.vendorID), theirs.ID.String())
	assert.ErrorIs(t, err, domain.ErrNotFound)
	_, err = f.svc.Delete(portal(f.vendorID), theirs.ID.String())
	assert.ErrorIs(t, err, domain.ErrNotFound)

	list, err := f.svc.List(portal(f.vendorID), domain.ListVendorBillRequest{})
	require.NoError(t, err)
	require.Len(t, list.VendorBills, 1)
	assert.Equal(t, mine.ID, list.VendorBills[0].ID)
}

func TestFailingSyncStillCommitsBill(t *testing.T) {
	f := newFixture(t)
	f.provider.err = errors.New("token expired")

	bill, warnings, err := f.svc.Create(ctx(), domain.CreateVendorBillRequest{
		VendorID: f.vendorID,
		Lines:    []domain.LineInput{billLine(nil, "2", 450)},
	})
	require.NoError(t, err)
	require.Len(t, warnings, 1)
	assert.Contains(t, warnings[0], "token expired")

	var mapping accountingdomain.SyncMapping
	require.NoError(t, f.conn.First(&mapping, "entity_id = ?", bill.ID).Error)
	assert.Equal(t, accountingdomain.EntityVendorBill, mapping.EntityType)
	assert.Equal(t, accountingdomain.StatusFailed, mapping.Status)
}

func TestHardDeleteRemovesBillAndReleasesPurchaseOrder(t *testing.T) {
	f := newFixture(t)
	po := f.purchaseOrder(t)
	bill, _, err := f.svc.Create(ctx(), domain.CreateVendorBillRequest{
		VendorID:        f.vendorID,
		PurchaseOrderID: &po.ID,
		Lines:           []domain.LineInput{billLine(&po.Lines[1], "1", 1500)},
	})
	require.NoError(t, err)
	_, err = f.svc.AddPayment(ctx(), bill.ID.String(), domain.PaymentInput{Amount: 1500})
	require.NoError(t, err)

	require.NoError(t, f.svc.HardDelete(ctx(), bill.ID.String()))

	got := f.reloadPO(t, po.ID)
	assert.Equal(t, int64(0), got.BilledAmount)
	assert.True(t, got.Lines[1].BilledQuantity.IsZero())

	for _, model := range []any{&domain.VendorBill{}, &domain.Line{}, &domain.Payment{}, &accountingdomain.SyncMapping{}} {
		var count int64
		require.NoError(t, f.conn.Model(model).Count(&count).Error)
		assert.Zero(t, count, "%T", model)
	}
}
