package authorization

import (
	"context"
	"testing"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/fieldbooks/internal/orgcontext"
	"github.com/smallbiznis/fieldbooks/pkg/db"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestService(t *testing.T) Service {
	t.Helper()
	conn := db.NewTest(t)
	enforcer, err := NewEnforcer(conn)
	require.NoError(t, err)
	return NewService(Params{Log: zap.NewNop(), Enforcer: enforcer})
}

func ctxWithRole(role string) context.Context {
	ctx := orgcontext.WithOrgID(context.Background(), snowflake.ID(1))
	return orgcontext.WithActor(ctx, orgcontext.Actor{ID: "u-1", Role: role})
}

func TestAuthorizeMatrix(t *testing.T) {
	svc := newTestService(t)

	cases := []struct {
		role   string
		object string
		action string
		allow  bool
	}{
		{RoleAdmin, ObjectAuditLog, ActionRead, true},
		{RoleOffice, ObjectInvoice, ActionDelete, true},
		{RoleOffice, ObjectAuditLog, ActionRead, false},
		{RoleField, ObjectTimeEntry, ActionWrite, true},
		{RoleField, ObjectInvoice, ActionRead, false},
		{RoleVendor, ObjectVendorBill, ActionWrite, true},
		{RoleVendor, ObjectPurchaseOrder, ActionWrite, false},
		{RoleVendor, ObjectInvoice, ActionRead, false},
		{RoleAdmin, ObjectJob, ActionRun, true},
		{RoleOffice, ObjectJob, ActionRun, false},
	}

	for _, tc := range cases {
		err := svc.Authorize(ctxWithRole(tc.role), tc.object, tc.action)
		if tc.allow {
			assert.NoErrorf(t, err, "%s %s %s", tc.role, tc.object, tc.action)
		} else {
			assert.ErrorIsf(t, err, ErrForbidden, "%s %s %s", tc.role, tc.object, tc.action)
		}
	}
}

func TestAuthorizeRejectsUnknownActor(t *testing.T) {
	svc := newTestService(t)

	assert.ErrorIs(t, svc.Authorize(context.Background(), ObjectInvoice, ActionRead), ErrInvalidActor)
	assert.ErrorIs(t, svc.Authorize(ctxWithRole("superuser"), ObjectInvoice, ActionRead), ErrInvalidRole)
}

func TestSeedPoliciesIsIdempotent(t *testing.T) {
	conn := db.NewTest(t)
	_, err := NewEnforcer(conn)
	require.NoError(t, err)
	enforcer, err := NewEnforcer(conn)
	require.NoError(t, err)

	policies, err := enforcer.GetPolicy()
	require.NoError(t, err)
	seen := map[string]int{}
	for _, p := range policies {
		seen[p[0]+"|"+p[1]+"|"+p[2]]++
	}
	for key, count := range seen {
		assert.Equalf(t, 1, count, "duplicate policy %s", key)
	}
}
