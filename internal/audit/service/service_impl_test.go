package service

import (
	"context"
	"testing"

	"github.com/bwmarrin/snowflake"
	auditdomain "github.com/smallbiznis/fieldbooks/internal/audit/domain"
	"github.com/smallbiznis/fieldbooks/internal/audit/repository"
	"github.com/smallbiznis/fieldbooks/internal/orgcontext"
	"github.com/smallbiznis/fieldbooks/pkg/db"
	"github.com/smallbiznis/fieldbooks/pkg/db/pagination"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestService(t *testing.T) auditdomain.Service {
	t.Helper()
	conn := db.NewTest(t, &auditdomain.AuditLog{})
	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	return NewService(Params{DB: conn, Log: zap.NewNop(), GenID: node, Repo: repository.Provide()})
}

func TestAuditLogRequiresOrg(t *testing.T) {
	svc := newTestService(t)
	err := svc.AuditLog(context.Background(), auditdomain.Entry{Action: "invoice.create", TargetType: "invoice"})
	assert.ErrorIs(t, err, auditdomain.ErrInvalidOrganization)
}

func TestAuditLogMasksAndLists(t *testing.T) {
	svc := newTestService(t)
	ctx := orgcontext.WithOrgID(context.Background(), snowflake.ID(10))
	ctx = orgcontext.WithActor(ctx, orgcontext.Actor{ID: "user-7", Role: "office"})

	for i := 0; i < 3; i++ {
		require.NoError(t, svc.AuditLog(ctx, auditdomain.Entry{
			Action:     "invoice.send",
			TargetType: "invoice",
			TargetID:   snowflake.ID(100 + i),
			Metadata:   map[string]any{"email": "client@example.com"},
		}))
	}
	require.NoError(t, svc.AuditLog(ctx, auditdomain.Entry{Action: "estimate.approve", TargetType: "estimate", TargetID: 5}))

	assert.ErrorIs(t, svc.AuditLog(ctx, auditdomain.Entry{TargetType: "invoice"}), auditdomain.ErrInvalidAction)

	resp, err := svc.List(ctx, auditdomain.ListAuditLogRequest{
		Pagination: pagination.Pagination{PageSize: 2},
		TargetType: "invoice",
	})
	require.NoError(t, err)
	require.Len(t, resp.AuditLogs, 2)
	assert.True(t, resp.HasMore)
	assert.Equal(t, "user-7", resp.AuditLogs[0].ActorID)
	assert.Equal(t, "****.com", resp.AuditLogs[0].Metadata["email"])

	next, err := svc.List(ctx, auditdomain.ListAuditLogRequest{
		Pagination: pagination.Pagination{PageSize: 2, PageToken: resp.NextPageToken},
		TargetType: "invoice",
	})
	require.NoError(t, err)
	assert.Len(t, next.AuditLogs, 1)
	assert.False(t, next.HasMore)

	fieldCtx := orgcontext.WithActor(ctx, orgcontext.Actor{ID: "crew-2", Role: "field"})
	require.NoError(t, svc.AuditLog(fieldCtx, auditdomain.Entry{Action: "time_entry.create", TargetType: "time_entry", TargetID: 9}))

	byActor, err := svc.List(ctx, auditdomain.ListAuditLogRequest{ActorID: "crew-2"})
	require.NoError(t, err)
	require.Len(t, byActor.AuditLogs, 1)
	assert.Equal(t, "time_entry.create", byActor.AuditLogs[0].Action)
	assert.Equal(t, "field", byActor.AuditLogs[0].ActorRole)

	other := orgcontext.WithOrgID(context.Background(), snowflake.ID(11))
	empty, err := svc.List(other, auditdomain.ListAuditLogRequest{})
	require.NoError(t, err)
	assert.Empty(t, empty.AuditLogs)
}
