package service

import (
	"context"
	"strings"

	"github.com/smallbiznis/fieldbooks/internal/balance"
	"github.com/smallbiznis/fieldbooks/internal/docnumber"
	"github.com/smallbiznis/fieldbooks/internal/joborder/domain"
	"github.com/smallbiznis/fieldbooks/internal/orgcontext"
	"github.com/smallbiznis/fieldbooks/internal/viewcache"
	"github.com/smallbiznis/fieldbooks/pkg/db"
	"gorm.io/gorm"
)

func (s *Service) CreateChangeOrder(ctx context.Context, jobOrderID string, req domain.CreateChangeOrderRequest) (domain.ChangeOrder, error) {
	orgID, ok := orgcontext.OrgIDFromContext(ctx)
	if !ok {
		return domain.ChangeOrder{}, domain.ErrInvalidOrganization
	}
	jobID, err := parseID(jobOrderID)
	if err != nil {
		return domain.ChangeOrder{}, err
	}
	description := strings.TrimSpace(req.Description)
	if description == "" {
		return domain.ChangeOrder{}, domain.ErrInvalidDescription
	}
	switch req.Kind {
	case domain.KindAdditive, domain.KindDeductive:
	default:
		return domain.ChangeOrder{}, domain.ErrInvalidKind
	}
	if req.Total < 0 {
		return domain.ChangeOrder{}, domain.ErrInvalidTotal
	}

	now := s.clock.Now()
	co := domain.ChangeOrder{
		ID:          s.genID.Generate(),
		OrgID:       orgID,
		JobOrderID:  jobID,
		Description: description,
		Kind:        req.Kind,
		Status:      domain.ChangeOrderPending,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	co.SetLedger(balance.New(req.Total))

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		job, err := s.repo.FindJobOrder(ctx, tx, orgID, jobID)
		if err != nil {
			return err
		}
		if job == nil || job.DeletedAt != nil {
			return domain.ErrNotFound
		}
		number, err := docnumber.Resolve(ctx, tx, "change_orders", docnumber.PrefixChangeOrder, orgID, req.Number)
		if err != nil {
			return err
		}
		co.Number = number
		if err := s.repo.InsertChangeOrder(ctx, tx, &co); err != nil {
			if db.IsDuplicateKeyErr(err) {
				return domain.ErrDuplicateNumber
			}
			return err
		}
		return nil
	})
	if err != nil {
		return domain.ChangeOrder{}, err
	}

	s.afterCommit(ctx, "change_order.create", "change_order", orgID, co.ID, map[string]any{
		"job_order_id": jobID.String(),
		"kind":         string(co.Kind),
		"total":        co.Total,
	}, viewcache.TopicChangeOrder)
	return co, nil
}

func (s *Service) UpdateChangeOrder(ctx context.Context, id string, req domain.UpdateChangeOrderRequest) (domain.ChangeOrder, error) {
	orgID, ok := orgcontext.OrgIDFromContext(ctx)
	if !ok {
		return domain.ChangeOrder{}, domain.ErrInvalidOrganization
	}
	coID, err := parseID(id)
	if err != nil {
		return domain.ChangeOrder{}, err
	}
	if req.Description != nil && strings.TrimSpace(*req.Description) == "" {
		return domain.ChangeOrder{}, domain.ErrInvalidDescription
	}
	if req.Total != nil && *req.Total < 0 {
		return domain.ChangeOrder{}, domain.ErrInvalidTotal
	}

	var co domain.ChangeOrder
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		current, err := s.repo.FindChangeOrderForUpdate(ctx, tx, orgID, coID)
		if err != nil {
			return err
		}
		if current == nil || current.DeletedAt != nil {
			return domain.ErrChangeOrderNotFound
		}
		if req.Description != nil {
			current.Description = strings.TrimSpace(*req.Description)
		}
		if req.Total != nil {
			if current.Status != domain.ChangeOrderPending {
				return domain.ErrChangeOrderNotPending
			}
			ledger, err := current.Ledger().Retotal(*req.Total)
			if err != nil {
				return domain.ErrTotalBelowInvoiced
			}
			current.SetLedger(ledger)
		}
		current.UpdatedAt = s.clock.Now()
		if err := s.repo.UpdateChangeOrder(ctx, tx, current); err != nil {
			return err
		}
		co = *current
		return nil
	})
	if err != nil {
		return domain.ChangeOrder{}, err
	}

	s.afterCommit(ctx, "change_order.update", "change_order", orgID, co.ID, nil, viewcache.TopicChangeOrder)
	return co, nil
}

// DecideChangeOrder approves or rejects a pending change order.
func (s *Service) DecideChangeOrder(ctx context.Context, id string, to domain.ChangeOrderStatus) (domain.ChangeOrder, error) {
	orgID, ok := orgcontext.OrgIDFromContext(ctx)
	if !ok {
		return domain.ChangeOrder{}, domain.ErrInvalidOrganization
	}
	coID, err := parseID(id)
	if err != nil {
		return domain.ChangeOrder{}, err
	}
	if to != domain.ChangeOrderApproved && to != domain.ChangeOrderRejected {
		return domain.ChangeOrder{}, domain.ErrInvalidStatus
	}

	now := s.clock.Now()
	decided, err := s.repo.SetChangeOrderStatus(ctx, s.db, orgID, coID, to, now)
	if err != nil {
		return domain.ChangeOrder{}, err
	}
	co, err := s.repo.FindChangeOrder(ctx, s.db, orgID, coID)
	if err != nil {
		return domain.ChangeOrder{}, err
	}
	if co == nil || co.DeletedAt != nil {
		return domain.ChangeOrder{}, domain.ErrChangeOrderNotFound
	}
	if !decided {
		return domain.ChangeOrder{}, domain.ErrChangeOrderNotPending
	}

	s.afterCommit(ctx, "change_order."+string(to), "change_order", orgID, co.ID, map[string]any{
		"job_order_id": co.JobOrderID.String(),
	}, viewcache.TopicChangeOrder)
	return *co, nil
}

func (s *Service) GetChangeOrder(ctx context.Context, id string) (domain.ChangeOrder, error) {
	orgID, ok := orgcontext.OrgIDFromContext(ctx)
	if !ok {
		return domain.ChangeOrder{}, domain.ErrInvalidOrganization
	}
	coID, err := parseID(id)
	if err != nil {
		return domain.ChangeOrder{}, err
	}
	co, err := s.repo.FindChangeOrder(ctx, s.db, orgID, coID)
	if err != nil {
		return domain.ChangeOrder{}, err
	}
	if co == nil || co.DeletedAt != nil {
		return domain.ChangeOrder{}, domain.ErrChangeOrderNotFound
	}
	return *co, nil
}

func (s *Service) ListChangeOrders(ctx context.Context, jobOrderID string) ([]domain.ChangeOrder, error) {
	job, err := s.GetByID(ctx, jobOrderID)
	if err != nil {
		return nil, err
	}
	return s.repo.ListChangeOrders(ctx, s.db, job.OrgID, job.ID)
}

func (s *Service) DeleteChangeOrder(ctx context.Context, id string) error {
	orgID, ok := orgcontext.OrgIDFromContext(ctx)
	if !ok {
		return domain.ErrInvalidOrganization
	}
	coID, err := parseID(id)
	if err != nil {
		return err
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		co, err := s.repo.FindChangeOrderForUpdate(ctx, tx, orgID, coID)
		if err != nil {
			return err
		}
		if co == nil || co.DeletedAt != nil {
			return domain.ErrChangeOrderNotFound
		}
		live, err := s.repo.CountLiveInvoices(ctx, tx, orgID, "change_order_id", coID)
		if err != nil {
			return err
		}
		if live > 0 {
			return domain.ErrChangeOrderHasInvoices
		}
		_, err = s.repo.SoftDeleteChangeOrder(ctx, tx, orgID, coID, orgcontext.ActorID(ctx), s.clock.Now())
		return err
	})
	if err != nil {
		return err
	}

	s.afterCommit(ctx, "change_order.delete", "change_order", orgID, coID, nil, viewcache.TopicChangeOrder)
	return nil
}
