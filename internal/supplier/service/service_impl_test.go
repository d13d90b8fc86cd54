package service

import (
	"context"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/fieldbooks/internal/clock"
	"github.com/smallbiznis/fieldbooks/internal/orgcontext"
	"github.com/smallbiznis/fieldbooks/internal/supplier/domain"
	"github.com/smallbiznis/fieldbooks/internal/supplier/repository"
	"github.com/smallbiznis/fieldbooks/pkg/db"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestVendorCRUD(t *testing.T) {
	conn := db.NewTest(t, &domain.Vendor{})
	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	svc := New(Params{
		DB:    conn,
		Log:   zap.NewNop(),
		GenID: node,
		Clock: clock.NewFakeClock(time.Date(2026, 1, 5, 0, 0, 0, 0, time.UTC)),
		Repo:  repository.Provide(),
	})
	ctx := orgcontext.WithOrgID(context.Background(), snowflake.ID(7))

	_, err = svc.Create(ctx, domain.CreateVendorRequest{})
	assert.ErrorIs(t, err, domain.ErrInvalidName)

	sparky, err := svc.Create(ctx, domain.CreateVendorRequest{Name: "Sparky Electric", Trade: " Electrical "})
	require.NoError(t, err)
	assert.Equal(t, "electrical", sparky.Trade)
	_, err = svc.Create(ctx, domain.CreateVendorRequest{Name: "Drip Plumbing", Trade: "plumbing"})
	require.NoError(t, err)

	electricians, err := svc.List(ctx, domain.ListVendorRequest{Trade: "electrical"})
	require.NoError(t, err)
	require.Len(t, electricians.Vendors, 1)
	assert.Equal(t, sparky.ID, electricians.Vendors[0].ID)

	email := "bad"
	_, err = svc.Update(ctx, sparky.ID.String(), domain.UpdateVendorRequest{Email: &email})
	assert.ErrorIs(t, err, domain.ErrInvalidEmail)

	require.NoError(t, svc.Delete(ctx, sparky.ID.String()))
	_, err = svc.GetByID(ctx, sparky.ID.String())
	assert.ErrorIs(t, err, domain.ErrNotFound)

	other := orgcontext.WithOrgID(context.Background(), snowflake.ID(8))
	all, err := svc.List(other, domain.ListVendorRequest{})
	require.NoError(t, err)
	assert.Empty(t, all.Vendors)
}
