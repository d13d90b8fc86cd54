package service

import (
	"context"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/fieldbooks/internal/clock"
	customerdomain "github.com/smallbiznis/fieldbooks/internal/customer/domain"
	customerrepo "github.com/smallbiznis/fieldbooks/internal/customer/repository"
	"github.com/smallbiznis/fieldbooks/internal/estimate/domain"
	"github.com/smallbiznis/fieldbooks/internal/estimate/repository"
	"github.com/smallbiznis/fieldbooks/internal/orgcontext"
	"github.com/smallbiznis/fieldbooks/pkg/db"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const testOrg = snowflake.ID(99)

type fixture struct {
	svc        domain.Service
	repo       domain.Repository
	conn       *gorm.DB
	customerID snowflake.ID
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	conn := db.NewTest(t, &customerdomain.Customer{}, &domain.Estimate{}, &domain.Line{})
	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	now := time.Date(2026, 4, 1, 8, 0, 0, 0, time.UTC)
	customer := customerdomain.Customer{ID: node.Generate(), OrgID: testOrg, Name: "Harbor Homes", CreatedAt: now, UpdatedAt: now}
	require.NoError(t, conn.Create(&customer).Error)

	repo := repository.Provide()
	return fixture{
		svc: New(Params{
			DB:        conn,
			Log:       zap.NewNop(),
			GenID:     node,
			Clock:     clock.NewFakeClock(now),
			Repo:      repo,
			Customers: customerrepo.Provide(),
		}),
		repo:       repo,
		conn:       conn,
		customerID: customer.ID,
	}
}

func ctx() context.Context {
	return orgcontext.WithOrgID(context.Background(), testOrg)
}

func lines() []domain.LineInput {
	return []domain.LineInput{
		{Description: "Framing labor", Quantity: decimal.RequireFromString("12.5"), UnitPrice: 6500},
		{Description: "Lumber package", Quantity: decimal.NewFromInt(1), UnitPrice: 184250},
	}
}

func TestCreateComputesTotalAndNumber(t *testing.T) {
	f := newFixture(t)

	est, err := f.svc.Create(ctx(), domain.CreateEstimateRequest{CustomerID: f.customerID, Title: "Deck rebuild", Lines: lines()})
	require.NoError(t, err)
	assert.Equal(t, "EST-00001", est.Number)
	assert.Equal(t, domain.StatusDraft, est.Status)
	assert.Equal(t, int64(81250+184250), est.Total)

	got, err := f.svc.GetByID(ctx(), est.ID.String())
	require.NoError(t, err)
	require.Len(t, got.Lines, 2)
	assert.Equal(t, "Framing labor", got.Lines[0].Description)

	_, err = f.svc.Create(ctx(), domain.CreateEstimateRequest{CustomerID: 12345, Title: "Ghost"})
	assert.ErrorIs(t, err, domain.ErrInvalidCustomer)

	_, err = f.svc.Create(ctx(), domain.CreateEstimateRequest{
		CustomerID: f.customerID,
		Title:      "Bad line",
		Lines:      []domain.LineInput{{Description: "x", Quantity: decimal.Zero, UnitPrice: 1}},
	})
	assert.ErrorIs(t, err, domain.ErrInvalidLine)
}

func TestTransitions(t *testing.T) {
	f := newFixture(t)
	est, err := f.svc.Create(ctx(), domain.CreateEstimateRequest{CustomerID: f.customerID, Title: "Roof", Lines: lines()})
	require.NoError(t, err)

	_, err = f.svc.Transition(ctx(), est.ID.String(), domain.StatusRejected)
	assert.ErrorIs(t, err, domain.ErrInvalidTransition)

	sent, err := f.svc.Transition(ctx(), est.ID.String(), domain.StatusSent)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusSent, sent.Status)

	_, err = f.svc.Update(ctx(), est.ID.String(), domain.UpdateEstimateRequest{Lines: lines()[:1]})
	assert.ErrorIs(t, err, domain.ErrNotDraft)

	rejected, err := f.svc.Transition(ctx(), est.ID.String(), domain.StatusRejected)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusRejected, rejected.Status)

	revised, err := f.svc.Transition(ctx(), est.ID.String(), domain.StatusDraft)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusDraft, revised.Status)

	updated, err := f.svc.Update(ctx(), est.ID.String(), domain.UpdateEstimateRequest{Lines: lines()[1:]})
	require.NoError(t, err)
	assert.Equal(t, int64(184250), updated.Total)

	approved, err := f.svc.Transition(ctx(), est.ID.String(), domain.StatusApproved)
	require.NoError(t, err)
	require.NotNil(t, approved.ApprovedAt)
}

func TestMarkConvertedOnlyOnce(t *testing.T) {
	f := newFixture(t)
	est, err := f.svc.Create(ctx(), domain.CreateEstimateRequest{CustomerID: f.customerID, Title: "Kitchen", Lines: lines()})
	require.NoError(t, err)
	now := time.Now().UTC()

	won, err := f.repo.MarkConverted(context.Background(), f.conn, testOrg, est.ID, domain.ConvertedToJobOrder, 555, now)
	require.NoError(t, err)
	assert.False(t, won)
	assert.ErrorIs(t, f.repo.ConversionFailure(context.Background(), f.conn, testOrg, est.ID, domain.ConvertedToJobOrder), domain.ErrNotApproved)

	_, err = f.svc.Transition(ctx(), est.ID.String(), domain.StatusApproved)
	require.NoError(t, err)

	won, err = f.repo.MarkConverted(context.Background(), f.conn, testOrg, est.ID, domain.ConvertedToJobOrder, 555, now)
	require.NoError(t, err)
	assert.True(t, won)

	won, err = f.repo.MarkConverted(context.Background(), f.conn, testOrg, est.ID, domain.ConvertedToJobOrder, 556, now)
	require.NoError(t, err)
	assert.False(t, won)
	assert.ErrorIs(t, f.repo.ConversionFailure(context.Background(), f.conn, testOrg, est.ID, domain.ConvertedToJobOrder), domain.ErrAlreadyConverted)

	won, err = f.repo.MarkConverted(context.Background(), f.conn, testOrg, est.ID, domain.ConvertedToInvoice, 777, now)
	require.NoError(t, err)
	assert.True(t, won)

	assert.ErrorIs(t, f.repo.ConversionFailure(context.Background(), f.conn, testOrg, 1, domain.ConvertedToJobOrder), domain.ErrNotFound)
}

func TestDeleteAndRestore(t *testing.T) {
	f := newFixture(t)
	est, err := f.svc.Create(ctx(), domain.CreateEstimateRequest{CustomerID: f.customerID, Title: "Fence"})
	require.NoError(t, err)

	require.NoError(t, f.svc.Delete(ctx(), est.ID.String()))
	assert.ErrorIs(t, f.svc.Delete(ctx(), est.ID.String()), domain.ErrAlreadyDeleted)

	_, err = f.svc.GetByID(ctx(), est.ID.String())
	assert.ErrorIs(t, err, domain.ErrNotFound)

	restored, err := f.svc.Restore(ctx(), est.ID.String())
	require.NoError(t, err)
	assert.Nil(t, restored.DeletedAt)

	_, err = f.svc.Restore(ctx(), est.ID.String())
	assert.ErrorIs(t, err, domain.ErrNotDeleted)
}
