package service

import (
	"context"
	"errors"
	"math/rand"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	accountingdomain "github.com/smallbiznis/fieldbooks/internal/accounting/domain"
	accountingrepo "github.com/smallbiznis/fieldbooks/internal/accounting/repository"
	accountingsvc "github.com/smallbiznis/fieldbooks/internal/accounting/service"
	"github.com/smallbiznis/fieldbooks/internal/clock"
	"github.com/smallbiznis/fieldbooks/internal/config"
	customerdomain "github.com/smallbiznis/fieldbooks/internal/customer/domain"
	customerrepo "github.com/smallbiznis/fieldbooks/internal/customer/repository"
	estimatedomain "github.com/smallbiznis/fieldbooks/internal/estimate/domain"
	estimaterepo "github.com/smallbiznis/fieldbooks/internal/estimate/repository"
	"github.com/smallbiznis/fieldbooks/internal/invoice/domain"
	"github.com/smallbiznis/fieldbooks/internal/invoice/repository"
	joborderdomain "github.com/smallbiznis/fieldbooks/internal/joborder/domain"
	joborderrepo "github.com/smallbiznis/fieldbooks/internal/joborder/repository"
	"github.com/smallbiznis/fieldbooks/internal/orgcontext"
	"github.com/smallbiznis/fieldbooks/internal/providers/email"
	"github.com/smallbiznis/fieldbooks/pkg/db"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const testOrg = snowflake.ID(9)

type stubProvider struct {
	err error
}

func (p *stubProvider) Name() string { return "stub" }

func (p *stubProvider) Push(_ context.Context, doc accountingdomain.Document, ref accountingdomain.ExternalRef) (accountingdomain.ExternalRef, error) {
	if p.err != nil {
		return ref, p.err
	}
	return accountingdomain.ExternalRef{ID: "qb-" + doc.EntityID.String(), Version: "0"}, nil
}

type outbox struct {
	sent []email.Message
	err  error
}

func (o *outbox) Send(_ context.Context, msg email.Message) error {
	if o.err != nil {
		return o.err
	}
	o.sent = append(o.sent, msg)
	return nil
}

type texts struct {
	to []string
}

func (t *texts) Send(_ context.Context, to, _ string) error {
	t.to = append(t.to, to)
	return nil
}

type fixture struct {
	svc        domain.Service
	conn       *gorm.DB
	node       *snowflake.Node
	provider   *stubProvider
	outbox     *outbox
	texts      *texts
	customerID snowflake.ID
	now        time.Time
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	conn := db.NewTest(t,
		&customerdomain.Customer{},
		&estimatedomain.Estimate{},
		&estimatedomain.Line{},
		&joborderdomain.JobOrder{},
		&joborderdomain.ChangeOrder{},
		&domain.Invoice{},
		&domain.Payment{},
		&accountingdomain.SyncMapping{},
	)
	node, err := snowflake.NewNode(3)
	require.NoError(t, err)
	now := time.Date(2026, 6, 1, 8, 0, 0, 0, time.UTC)
	clk := clock.NewFakeClock(now)

	customer := customerdomain.Customer{
		ID:        node.Generate(),
		OrgID:     testOrg,
		Name:      "Harbor View Condos",
		Email:     "ap@harborview.test",
		CreatedAt: now,
		UpdatedAt: now,
	}
	require.NoError(t, conn.Create(&customer).Error)

	provider := &stubProvider{}
	accounting := accountingsvc.New(accountingsvc.Params{
		DB:       conn,
		Log:      zap.NewNop(),
		GenID:    node,
		Clock:    clk,
		Repo:     accountingrepo.Provide(),
		Provider: provider,
	})
	box, sms := &outbox{}, &texts{}

	svc := New(Params{
		DB:             conn,
		Log:            zap.NewNop(),
		GenID:          node,
		Clock:          clk,
		Config:         config.Config{CompanyName: "Keel & Beam Builders"},
		Repo:           repository.Provide(),
		JobOrders:      joborderrepo.Provide(),
		Estimates:      estimaterepo.Provide(),
		Customers:      customerrepo.Provide(),
		Email:          box,
		SMS:            sms,
		Accounting:     accounting,
		AccountingRepo: accountingrepo.Provide(),
	})
	return fixture{
		svc:        svc,
		conn:       conn,
		node:       node,
		provider:   provider,
		outbox:     box,
		texts:      sms,
		customerID: customer.ID,
		now:        now,
	}
}

func ctx() context.Context {
	ctx := orgcontext.WithOrgID(context.Background(), testOrg)
	return orgcontext.WithActor(ctx, orgcontext.Actor{ID: "office-7", Role: "office"})
}

func (f fixture) jobOrder(t *testing.T, total int64) joborderdomain.JobOrder {
	t.Helper()
	job := joborderdomain.JobOrder{
		ID:              f.node.Generate(),
		OrgID:           testOrg,
		CustomerID:      f.customerID,
		Number:          "JO-" + f.node.Generate().String(),
		Title:           "Seawall repair",
		Status:          joborderdomain.StatusOpen,
		Total:           total,
		RemainingAmount: total,
		CreatedAt:       f.now,
		UpdatedAt:       f.now,
	}
	require.NoError(t, f.conn.Create(&job).Error)
	return job
}

func (f fixture) reloadJob(t *testing.T, id snowflake.ID) joborderdomain.JobOrder {
	t.Helper()
	var job joborderdomain.JobOrder
	require.NoError(t, f.conn.First(&job, "id = ?", id).Error)
	return job
}

func (f fixture) standalone(t *testing.T, total int64) domain.Invoice {
	t.Helper()
	inv, warnings, err := f.svc.Create(ctx(), domain.CreateInvoiceRequest{CustomerID: f.customerID, Total: total})
	require.NoError(t, err)
	require.Empty(t, warnings)
	return inv
}

func TestInvoiceLifecycleMovesJobOrderBalance(t *testing.T) {
	f := newFixture(t)
	job := f.jobOrder(t, 1000)

	inv, _, err := f.svc.Create(ctx(), domain.CreateInvoiceRequest{JobOrderID: &job.ID, Total: 400})
	require.NoError(t, err)
	assert.Equal(t, f.customerID, inv.CustomerID)
	assert.Equal(t, "INV-00001", inv.Number)
	assert.Equal(t, domain.StatusDraft, inv.Status)
	assert.Equal(t, int64(400), inv.RemainingAmount)

	got := f.reloadJob(t, job.ID)
	assert.Equal(t, int64(400), got.InvoicedAmount)
	assert.Equal(t, int64(600), got.RemainingAmount)

	_, err = f.svc.Delete(ctx(), inv.ID.String())
	require.NoError(t, err)
	got = f.reloadJob(t, job.ID)
	assert.Equal(t, int64(0), got.InvoicedAmount)
	assert.Equal(t, int64(1000), got.RemainingAmount)

	_, err = f.svc.Delete(ctx(), inv.ID.String())
	assert.ErrorIs(t, err, domain.ErrAlreadyDeleted)
	assert.Equal(t, got, f.reloadJob(t, job.ID))

	_, _, err = f.svc.Restore(ctx(), inv.ID.String())
	require.NoError(t, err)
	got = f.reloadJob(t, job.ID)
	assert.Equal(t, int64(400), got.InvoicedAmount)

	total := int64(700)
	inv, _, err = f.svc.Update(ctx(), inv.ID.String(), domain.UpdateInvoiceRequest{Total: &total})
	require.NoError(t, err)
	assert.Equal(t, int64(700), inv.RemainingAmount)
	got = f.reloadJob(t, job.ID)
	assert.Equal(t, int64(700), got.InvoicedAmount)
	assert.Equal(t, int64(300), got.RemainingAmount)

	_, _, err = f.svc.Create(ctx(), domain.CreateInvoiceRequest{JobOrderID: &job.ID, Total: 301})
	assert.ErrorIs(t, err, domain.ErrExceedsRemaining)
	assert.Equal(t, got, f.reloadJob(t, job.ID))

	var count int64
	require.NoError(t, f.conn.Model(&domain.Invoice{}).Count(&count).Error)
	assert.Equal(t, int64(1), count)
}

func TestCreateValidatesParent(t *testing.T) {
	f := newFixture(t)
	job := f.jobOrder(t, 1000)
	other := f.node.Generate()

	_, _, err := f.svc.Create(context.Background(), domain.CreateInvoiceRequest{Total: 1})
	assert.ErrorIs(t, err, domain.ErrInvalidOrganization)

	_, _, err = f.svc.Create(ctx(), domain.CreateInvoiceRequest{CustomerID: f.customerID, Total: 0})
	assert.ErrorIs(t, err, domain.ErrInvalidTotal)

	_, _, err = f.svc.Create(ctx(), domain.CreateInvoiceRequest{JobOrderID: &job.ID, ChangeOrderID: &other, Total: 10})
	assert.ErrorIs(t, err, domain.ErrInvalidParent)

	_, _, err = f.svc.Create(ctx(), domain.CreateInvoiceRequest{JobOrderID: &other, Total: 10})
	assert.ErrorIs(t, err, domain.ErrParentNotFound)

	_, _, err = f.svc.Create(ctx(), domain.CreateInvoiceRequest{CustomerID: other, JobOrderID: &job.ID, Total: 10})
	assert.ErrorIs(t, err, domain.ErrInvalidCustomer)

	_, _, err = f.svc.Create(ctx(), domain.CreateInvoiceRequest{Total: 10})
	assert.ErrorIs(t, err, domain.ErrInvalidCustomer)
}

func TestChangeOrderInvoicing(t *testing.T) {
	f := newFixture(t)
	job := f.jobOrder(t, 1000)
	co := joborderdomain.ChangeOrder{
		ID:              f.node.Generate(),
		OrgID:           testOrg,
		JobOrderID:      job.ID,
		Number:          "CO-00001",
		Description:     "Extra pilings",
		Kind:            joborderdomain.KindAdditive,
		Status:          joborderdomain.ChangeOrderPending,
		Total:           300,
		RemainingAmount: 300,
		CreatedAt:       f.now,
		UpdatedAt:       f.now,
	}
	require.NoError(t, f.conn.Create(&co).Error)

	_, _, err := f.svc.Create(ctx(), domain.CreateInvoiceRequest{ChangeOrderID: &co.ID, Total: 100})
	assert.ErrorIs(t, err, domain.ErrChangeOrderNotReady)

	require.NoError(t, f.conn.Model(&co).Update("status", joborderdomain.ChangeOrderApproved).Error)
	inv, _, err := f.svc.Create(ctx(), domain.CreateInvoiceRequest{ChangeOrderID: &co.ID, Total: 100})
	require.NoError(t, err)
	assert.Equal(t, f.customerID, inv.CustomerID)

	var stored joborderdomain.ChangeOrder
	require.NoError(t, f.conn.First(&stored, "id = ?", co.ID).Error)
	assert.Equal(t, int64(100), stored.InvoicedAmount)
	assert.Equal(t, int64(200), stored.RemainingAmount)
	assert.Equal(t, int64(0), f.reloadJob(t, job.ID).InvoicedAmount)
}

func TestPaymentsSettleInvoice(t *testing.T) {
	f := newFixture(t)
	inv := f.standalone(t, 500)

	first, err := f.svc.AddPayment(ctx(), inv.ID.String(), domain.PaymentInput{Amount: 200, Method: "check"})
	require.NoError(t, err)
	assert.Equal(t, domain.StatusPartiallyPaid, first.Invoice.Status)
	assert.Equal(t, int64(200), first.Invoice.PaidAmount)
	assert.Equal(t, int64(300), first.Invoice.RemainingAmount)
	assert.Equal(t, time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC), first.Payment.PaymentDate)

	second, err := f.svc.AddPayment(ctx(), inv.ID.String(), domain.PaymentInput{Amount: 300})
	require.NoError(t, err)
	assert.Equal(t, domain.StatusPaid, second.Invoice.Status)
	assert.Equal(t, int64(0), second.Invoice.RemainingAmount)

	_, err = f.svc.AddPayment(ctx(), inv.ID.String(), domain.PaymentInput{Amount: 1})
	assert.ErrorIs(t, err, domain.ErrPaymentExceeds)
	_, err = f.svc.AddPayment(ctx(), inv.ID.String(), domain.PaymentInput{Amount: 0})
	assert.ErrorIs(t, err, domain.ErrInvalidAmount)

	removed, err := f.svc.DeletePayment(ctx(), second.Payment.ID.String())
	require.NoError(t, err)
	assert.Equal(t, domain.StatusPartiallyPaid, removed.Invoice.Status)
	assert.Equal(t, int64(300), removed.Invoice.RemainingAmount)

	_, err = f.svc.DeletePayment(ctx(), second.Payment.ID.String())
	assert.ErrorIs(t, err, domain.ErrPaymentNotFound)

	amount := int64(500)
	raised, err := f.svc.UpdatePayment(ctx(), first.Payment.ID.String(), domain.UpdatePaymentRequest{Amount: &amount})
	require.NoError(t, err)
	assert.Equal(t, domain.StatusPaid, raised.Invoice.Status)
	assert.Equal(t, int64(500), raised.Invoice.PaidAmount)

	_, err = f.svc.DeletePayment(ctx(), first.Payment.ID.String())
	require.NoError(t, err)
	got, err := f.svc.GetByID(ctx(), inv.ID.String())
	require.NoError(t, err)
	assert.Equal(t, domain.StatusDraft, got.Status)
	assert.Equal(t, int64(0), got.PaidAmount)
	assert.Equal(t, int64(500), got.RemainingAmount)

	payments, err := f.svc.ListPayments(ctx(), inv.ID.String())
	require.NoError(t, err)
	assert.Empty(t, payments)
}

func TestPaymentsRejectedOnDeletedInvoice(t *testing.T) {
	f := newFixture(t)
	inv := f.standalone(t, 500)

	_, err := f.svc.Delete(ctx(), inv.ID.String())
	require.NoError(t, err)

	_, err = f.svc.AddPayment(ctx(), inv.ID.String(), domain.PaymentInput{Amount: 100})
	assert.ErrorIs(t, err, domain.ErrDeleted)
}

// deleteOnLock soft-deletes a payment when the invoice lock is taken, the way a delete
// from another request lands while this one waits on that lock.
type deleteOnLock struct {
	domain.Repository
	paymentID snowflake.ID
	at        time.Time
	fired     bool
}

func (r *deleteOnLock) FindByIDForUpdate(ctx context.Context, db *gorm.DB, orgID, id snowflake.ID) (*domain.Invoice, error) {
	if !r.fired {
		r.fired = true
		if _, err := r.Repository.SoftDeletePayment(ctx, db, orgID, r.paymentID, "office-2", r.at); err != nil {
			return nil, err
		}
	}
	return r.Repository.FindByIDForUpdate(ctx, db, orgID, id)
}

func TestPaymentDeletedWhileWaitingForInvoiceLock(t *testing.T) {
	f := newFixture(t)
	inv := f.standalone(t, 500)
	paid, err := f.svc.AddPayment(ctx(), inv.ID.String(), domain.PaymentInput{Amount: 200})
	require.NoError(t, err)

	for name, write := range map[string]func(domain.Service) error{
		"update": func(svc domain.Service) error {
			amount := int64(300)
			_, err := svc.UpdatePayment(ctx(), paid.Payment.ID.String(), domain.UpdatePaymentRequest{Amount: &amount})
			return err
		},
		"delete": func(svc domain.Service) error {
			_, err := svc.DeletePayment(ctx(), paid.Payment.ID.String())
			return err
		},
	} {
		t.Run(name, func(t *testing.T) {
			svc := New(Params{
				DB:        f.conn,
				Log:       zap.NewNop(),
				GenID:     f.node,
				Clock:     clock.NewFakeClock(f.now),
				Repo:      &deleteOnLock{Repository: repository.Provide(), paymentID: paid.Payment.ID, at: f.now},
				JobOrders: joborderrepo.Provide(),
			})
			assert.ErrorIs(t, write(svc), domain.ErrPaymentNotFound)

			got, err := f.svc.GetByID(ctx(), inv.ID.String())
			require.NoError(t, err)
			assert.Equal(t, int64(200), got.PaidAmount)
			payments, err := f.svc.ListPayments(ctx(), inv.ID.String())
			require.NoError(t, err)
			require.Len(t, payments, 1)
			assert.Equal(t, int64(200), payments[0].Amount)
		})
	}
}

func TestUpdateTotalBelowPaid(t *testing.T) {
	f := newFixture(t)
	inv := f.standalone(t, 500)
	_, err := f.svc.AddPayment(ctx(), inv.ID.String(), domain.PaymentInput{Amount: 300})
	require.NoError(t, err)

	total := int64(299)
	_, _, err = f.svc.Update(ctx(), inv.ID.String(), domain.UpdateInvoiceRequest{Total: &total})
	assert.ErrorIs(t, err, domain.ErrTotalBelowPaid)

	total = 300
	updated, _, err := f.svc.Update(ctx(), inv.ID.String(), domain.UpdateInvoiceRequest{Total: &total})
	require.NoError(t, err)
	assert.Equal(t, domain.StatusPaid, updated.Status)
	assert.Equal(t, int64(0), updated.RemainingAmount)
}

func TestBulkPaymentsReportEachItem(t *testing.T) {
	f := newFixture(t)
	a := f.standalone(t, 500)
	b := f.standalone(t, 100)

	results, err := f.svc.BulkPayments(ctx(), domain.BulkPaymentRequest{Payments: []domain.BulkPaymentItem{
		{InvoiceID: a.ID, PaymentInput: domain.PaymentInput{Amount: 200}},
		{InvoiceID: b.ID, PaymentInput: domain.PaymentInput{Amount: 150}},
		{InvoiceID: b.ID, PaymentInput: domain.PaymentInput{Amount: 100}},
		{InvoiceID: a.ID, PaymentInput: domain.PaymentInput{Amount: -5}},
	}})
	require.NoError(t, err)
	require.Len(t, results, 4)

	assert.NotNil(t, results[0].Payment)
	assert.Empty(t, results[0].Error)
	assert.Nil(t, results[1].Payment)
	assert.Equal(t, domain.ErrPaymentExceeds.Error(), results[1].Error)
	assert.NotNil(t, results[2].Payment)
	assert.Equal(t, domain.ErrInvalidAmount.Error(), results[3].Error)
	assert.Equal(t, 3, results[3].Index)

	got, err := f.svc.GetByID(ctx(), b.ID.String())
	require.NoError(t, err)
	assert.Equal(t, domain.StatusPaid, got.Status)

	_, err = f.svc.BulkPayments(ctx(), domain.BulkPaymentRequest{})
	assert.ErrorIs(t, err, domain.ErrEmptyBulk)
}

func TestCreateFromEstimateLinksJobOrder(t *testing.T) {
	f := newFixture(t)
	job := f.jobOrder(t, 2000)

	newEstimate := func(status estimatedomain.Status, jobID *snowflake.ID) estimatedomain.Estimate {
		est := estimatedomain.Estimate{
			ID:         f.node.Generate(),
			OrgID:      testOrg,
			CustomerID: f.customerID,
			Number:     "EST-" + f.node.Generate().String(),
			Title:      "Dock lighting",
			Status:     status,
			Total:      1500,
			JobOrderID: jobID,
			CreatedAt:  f.now,
			UpdatedAt:  f.now,
		}
		require.NoError(t, f.conn.Create(&est).Error)
		return est
	}

	draft := newEstimate(estimatedomain.StatusDraft, nil)
	_, _, err := f.svc.CreateFromEstimate(ctx(), draft.ID.String(), domain.ConvertEstimateRequest{})
	assert.ErrorIs(t, err, estimatedomain.ErrNotApproved)

	approved := newEstimate(estimatedomain.StatusApproved, &job.ID)
	inv, _, err := f.svc.CreateFromEstimate(ctx(), approved.ID.String(), domain.ConvertEstimateRequest{})
	require.NoError(t, err)
	assert.Equal(t, int64(1500), inv.Total)
	require.NotNil(t, inv.JobOrderID)
	assert.Equal(t, job.ID, *inv.JobOrderID)
	assert.Equal(t, int64(1500), f.reloadJob(t, job.ID).InvoicedAmount)

	_, _, err = f.svc.CreateFromEstimate(ctx(), approved.ID.String(), domain.ConvertEstimateRequest{})
	assert.ErrorIs(t, err, estimatedomain.ErrAlreadyConverted)
	assert.Equal(t, int64(1500), f.reloadJob(t, job.ID).InvoicedAmount)

	// The job order cannot absorb a second estimate's total, so the claim rolls back too.
	second := newEstimate(estimatedomain.StatusApproved, &job.ID)
	_, _, err = f.svc.CreateFromEstimate(ctx(), second.ID.String(), domain.ConvertEstimateRequest{})
	assert.ErrorIs(t, err, domain.ErrExceedsRemaining)
	var stored estimatedomain.Estimate
	require.NoError(t, f.conn.First(&stored, "id = ?", second.ID).Error)
	assert.Nil(t, stored.InvoiceID)
}

func TestFailingProviderStillCommits(t *testing.T) {
	f := newFixture(t)
	f.provider.err = errors.New("quickbooks unavailable")

	inv, warnings, err := f.svc.Create(ctx(), domain.CreateInvoiceRequest{CustomerID: f.customerID, Total: 900})
	require.NoError(t, err)
	require.Len(t, warnings, 1)
	assert.Contains(t, warnings[0], "quickbooks unavailable")

	got, err := f.svc.GetByID(ctx(), inv.ID.String())
	require.NoError(t, err)
	assert.Equal(t, int64(900), got.Total)

	var mapping accountingdomain.SyncMapping
	require.NoError(t, f.conn.First(&mapping, "entity_id = ?", inv.ID).Error)
	assert.Equal(t, accountingdomain.StatusFailed, mapping.Status)
	assert.Equal(t, "quickbooks unavailable", mapping.LastError)
}

func TestSendEmailsPDFAndMarksSent(t *testing.T) {
	f := newFixture(t)
	inv := f.standalone(t, 125000)

	sent, warnings, err := f.svc.Send(ctx(), inv.ID.String(), domain.SendInvoiceRequest{SMS: true})
	require.NoError(t, err)
	assert.Equal(t, domain.StatusSent, sent.Status)
	require.NotNil(t, sent.SentAt)
	require.Len(t, warnings, 1)
	assert.Contains(t, warnings[0], "no phone")

	require.Len(t, f.outbox.sent, 1)
	msg := f.outbox.sent[0]
	assert.Equal(t, []string{"ap@harborview.test"}, msg.To)
	assert.Equal(t, "Invoice INV-00001 from Keel & Beam Builders", msg.Subject)
	require.Len(t, msg.Attachments, 1)
	assert.Equal(t, "INV-00001.pdf", msg.Attachments[0].Filename)
	assert.Contains(t, msg.HTMLBody, "$1,250.00")

	// Removing every payment from a sent invoice leaves it sent, not draft.
	paid, err := f.svc.AddPayment(ctx(), inv.ID.String(), domain.PaymentInput{Amount: 1000})
	require.NoError(t, err)
	result, err := f.svc.DeletePayment(ctx(), paid.Payment.ID.String())
	require.NoError(t, err)
	assert.Equal(t, domain.StatusSent, result.Invoice.Status)
}

func TestSendFailures(t *testing.T) {
	f := newFixture(t)
	inv := f.standalone(t, 100)

	f.outbox.err = errors.New("smtp down")
	_, _, err := f.svc.Send(ctx(), inv.ID.String(), domain.SendInvoiceRequest{To: []string{"pm@harborview.test"}})
	assert.ErrorIs(t, err, domain.ErrDeliveryFailed)

	got, err := f.svc.GetByID(ctx(), inv.ID.String())
	require.NoError(t, err)
	assert.Equal(t, domain.StatusDraft, got.Status)
	assert.Nil(t, got.SentAt)

	require.NoError(t, f.conn.Model(&customerdomain.Customer{}).Where("id = ?", f.customerID).Update("email", "").Error)
	_, _, err = f.svc.Send(ctx(), inv.ID.String(), domain.SendInvoiceRequest{})
	assert.ErrorIs(t, err, domain.ErrNoRecipient)
}

func TestHardDeleteCascades(t *testing.T) {
	f := newFixture(t)
	job := f.jobOrder(t, 1000)
	inv, _, err := f.svc.Create(ctx(), domain.CreateInvoiceRequest{JobOrderID: &job.ID, Total: 600})
	require.NoError(t, err)
	_, err = f.svc.AddPayment(ctx(), inv.ID.String(), domain.PaymentInput{Amount: 100})
	require.NoError(t, err)

	require.NoError(t, f.svc.HardDelete(ctx(), inv.ID.String()))

	got := f.reloadJob(t, job.ID)
	assert.Equal(t, int64(0), got.InvoicedAmount)
	assert.Equal(t, int64(1000), got.RemainingAmount)

	var invoices, payments, mappings int64
	require.NoError(t, f.conn.Model(&domain.Invoice{}).Count(&invoices).Error)
	require.NoError(t, f.conn.Model(&domain.Payment{}).Count(&payments).Error)
	require.NoError(t, f.conn.Model(&accountingdomain.SyncMapping{}).Count(&mappings).Error)
	assert.Zero(t, invoices)
	assert.Zero(t, payments)
	assert.Zero(t, mappings)

	assert.ErrorIs(t, f.svc.HardDelete(ctx(), inv.ID.String()), domain.ErrNotFound)
}

// Random invoice create/update/delete/restore sequences against one job order must keep
// invoiced + remaining == total, both inside [0, total].
func TestJobOrderBalanceInvariant(t *testing.T) {
	f := newFixture(t)
	job := f.jobOrder(t, 5000)
	rng := rand.New(rand.NewSource(11))

	var live, deleted []snowflake.ID
	for step := 0; step < 60; step++ {
		switch rng.Intn(4) {
		case 0:
			inv, _, err := f.svc.Create(ctx(), domain.CreateInvoiceRequest{JobOrderID: &job.ID, Total: int64(rng.Intn(2000) + 1)})
			if err == nil {
				live = append(live, inv.ID)
			} else {
				require.ErrorIs(t, err, domain.ErrExceedsRemaining)
			}
		case 1:
			if len(live) == 0 {
				continue
			}
			total := int64(rng.Intn(2000) + 1)
			_, _, err := f.svc.Update(ctx(), live[rng.Intn(len(live))].String(), domain.UpdateInvoiceRequest{Total: &total})
			if err != nil {
				require.ErrorIs(t, err, domain.ErrExceedsRemaining)
			}
		case 2:
			if len(live) == 0 {
				continue
			}
			i := rng.Intn(len(live))
			_, err := f.svc.Delete(ctx(), live[i].String())
			require.NoError(t, err)
			deleted = append(deleted, live[i])
			live = append(live[:i], live[i+1:]...)
		case 3:
			if len(deleted) == 0 {
				continue
			}
			i := rng.Intn(len(deleted))
			_, _, err := f.svc.Restore(ctx(), deleted[i].String())
			if err != nil {
				require.ErrorIs(t, err, domain.ErrExceedsRemaining)
				continue
			}
			live = append(live, deleted[i])
			deleted = append(deleted[:i], deleted[i+1:]...)
		}

		got := f.reloadJob(t, job.ID)
		require.True(t, got.Ledger().Consistent(), "step %d: %+v", step, got.Ledger())

		var sum int64
		require.NoError(t, f.conn.Model(&domain.Invoice{}).
			Where("job_order_id = ? AND deleted_at IS NULL", job.ID).
			Select("COALESCE(SUM(total), 0)").Scan(&sum).Error)
		require.Equal(t, sum, got.InvoicedAmount, "step %d", step)
	}
}
