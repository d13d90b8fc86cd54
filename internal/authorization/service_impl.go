package authorization

import (
	"context"
	_ "embed"
	"strings"

	"github.com/casbin/casbin/v2"
	"github.com/casbin/casbin/v2/model"
	gormadapter "github.com/casbin/gorm-adapter/v3"
	auditdomain "github.com/smallbiznis/fieldbooks/internal/audit/domain"
	"github.com/smallbiznis/fieldbooks/internal/orgcontext"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

//go:embed model.conf
var modelText string

type Params struct {
	fx.In

	Log      *zap.Logger
	Enforcer *casbin.SyncedEnforcer
	AuditSvc auditdomain.Service `optional:"true"`
}

type ServiceImpl struct {
	log      *zap.Logger
	enforcer *casbin.SyncedEnforcer
	auditSvc auditdomain.Service
}

func NewEnforcer(db *gorm.DB) (*casbin.SyncedEnforcer, error) {
	adapter, err := gormadapter.NewAdapterByDB(db)
	if err != nil {
		return nil, err
	}
	m, err := model.NewModelFromString(modelText)
	if err != nil {
		return nil, err
	}
	enforcer, err := casbin.NewSyncedEnforcer(m, adapter)
	if err != nil {
		return nil, err
	}
	enforcer.EnableAutoSave(true)
	if err := enforcer.LoadPolicy(); err != nil {
		return nil, err
	}
	if err := seedPolicies(enforcer); err != nil {
		return nil, err
	}
	return enforcer, nil
}

func NewService(p Params) Service {
	return &ServiceImpl{
		log:      p.Log.Named("authorization.service"),
		enforcer: p.Enforcer,
		auditSvc: p.AuditSvc,
	}
}

func (s *ServiceImpl) Authorize(ctx context.Context, object, action string) error {
	actor, ok := orgcontext.ActorFromContext(ctx)
	if !ok || strings.TrimSpace(actor.ID) == "" {
		return ErrInvalidActor
	}
	role := strings.ToLower(strings.TrimSpace(actor.Role))
	if !knownRole(role) {
		return ErrInvalidRole
	}

	allowed, err := s.enforcer.Enforce(roleSubject(role), object, action)
	if err != nil {
		return err
	}
	if !allowed {
		s.auditDenied(ctx, object, action)
		return ErrForbidden
	}
	return nil
}

func (s *ServiceImpl) auditDenied(ctx context.Context, object, action string) {
	s.log.Info("authorization denied",
		zap.String("actor_id", orgcontext.ActorID(ctx)),
		zap.String("object", object),
		zap.String("action", action),
	)
	if s.auditSvc == nil {
		return
	}
	_ = s.auditSvc.AuditLog(ctx, auditdomain.Entry{
		Action:     "authorization.denied",
		TargetType: "authorization",
		Metadata: map[string]any{
			"object": object,
			"action": action,
		},
	})
}

func roleSubject(role string) string {
	return "role:" + role
}

func knownRole(role string) bool {
	switch role {
	case RoleAdmin, RoleOffice, RoleField, RoleVendor:
		return true
	default:
		return false
	}
}

func seedPolicies(enforcer *casbin.SyncedEnforcer) error {
	policies := [][]string{
		{roleSubject(RoleAdmin), "*", "*"},

		{roleSubject(RoleOffice), ObjectCustomer, "*"},
		{roleSubject(RoleOffice), ObjectVendor, "*"},
		{roleSubject(RoleOffice), ObjectEstimate, "*"},
		{roleSubject(RoleOffice), ObjectJobOrder, "*"},
		{roleSubject(RoleOffice), ObjectChangeOrder, "*"},
		{roleSubject(RoleOffice), ObjectInvoice, "*"},
		{roleSubject(RoleOffice), ObjectPayment, "*"},
		{roleSubject(RoleOffice), ObjectPurchaseOrder, "*"},
		{roleSubject(RoleOffice), ObjectVendorBill, "*"},
		{roleSubject(RoleOffice), ObjectTimeEntry, "*"},
		{roleSubject(RoleOffice), ObjectPersonnel, "*"},
		{roleSubject(RoleOffice), ObjectAttachment, "*"},
		{roleSubject(RoleOffice), ObjectSync, ActionRead},
		{roleSubject(RoleOffice), ObjectSync, ActionWrite},

		{roleSubject(RoleField), ObjectJobOrder, ActionRead},
		{roleSubject(RoleField), ObjectChangeOrder, ActionRead},
		{roleSubject(RoleField), ObjectEstimate, ActionRead},
		{roleSubject(RoleField), ObjectTimeEntry, ActionRead},
		{roleSubject(RoleField), ObjectTimeEntry, ActionWrite},
		{roleSubject(RoleField), ObjectPersonnel, ActionRead},
		{roleSubject(RoleField), ObjectAttachment, ActionRead},
		{roleSubject(RoleField), ObjectAttachment, ActionWrite},

		{roleSubject(RoleVendor), ObjectPurchaseOrder, ActionRead},
		{roleSubject(RoleVendor), ObjectVendorBill, ActionRead},
		{roleSubject(RoleVendor), ObjectVendorBill, ActionWrite},
		{roleSubject(RoleVendor), ObjectAttachment, ActionRead},
		{roleSubject(RoleVendor), ObjectAttachment, ActionWrite},
	}

	for _, policy := range policies {
		has, err := enforcer.HasPolicy(policy[0], policy[1], policy[2])
		if err != nil {
			return err
		}
		if has {
			continue
		}
		if _, err := enforcer.AddPolicy(policy[0], policy[1], policy[2]); err != nil {
			return err
		}
	}

	for _, role := range []string{RoleAdmin, RoleOffice, RoleField, RoleVendor} {
		has, err := enforcer.HasGroupingPolicy(roleSubject(role), roleSubject(role))
		if err != nil {
			return err
		}
		if has {
			continue
		}
		if _, err := enforcer.AddGroupingPolicy(roleSubject(role), roleSubject(role)); err != nil {
			return err
		}
	}
	return nil
}
