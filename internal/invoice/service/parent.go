package service

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/fieldbooks/internal/balance"
	"github.com/smallbiznis/fieldbooks/internal/invoice/domain"
	joborderdomain "github.com/smallbiznis/fieldbooks/internal/joborder/domain"
	"github.com/smallbiznis/fieldbooks/internal/viewcache"
	"gorm.io/gorm"
)

// parent is the locked job order or change order an invoice draws down.
type parent struct {
	ledger     balance.Ledger
	customerID snowflake.ID
	topic      viewcache.Topic
	save       func(balance.Ledger) error
}

// lockParent locks the invoice's parent row for the rest of the transaction. It returns nil
// for a standalone invoice. strict rejects parents that can no longer take new invoicing.
func (s *Service) lockParent(ctx context.Context, tx *gorm.DB, invoice *domain.Invoice, strict bool) (*parent, error) {
	switch {
	case invoice.JobOrderID != nil:
		job, err := s.jobOrders.FindJobOrderForUpdate(ctx, tx, invoice.OrgID, *invoice.JobOrderID)
		if err != nil {
			return nil, err
		}
		if job == nil || (strict && job.DeletedAt != nil) {
			return nil, domain.ErrParentNotFound
		}
		if strict && job.Status == joborderdomain.StatusCancelled {
			return nil, domain.ErrParentNotFound
		}
		return &parent{
			ledger:     job.Ledger(),
			customerID: job.CustomerID,
			topic:      viewcache.TopicJobOrder,
			save: func(l balance.Ledger) error {
				job.SetLedger(l)
				job.UpdatedAt = s.clock.Now()
				return s.jobOrders.UpdateJobOrderLedger(ctx, tx, job)
			},
		}, nil

	case invoice.ChangeOrderID != nil:
		co, err := s.jobOrders.FindChangeOrderForUpdate(ctx, tx, invoice.OrgID, *invoice.ChangeOrderID)
		if err != nil {
			return nil, err
		}
		if co == nil || (strict && co.DeletedAt != nil) {
			return nil, domain.ErrParentNotFound
		}
		if strict && (co.Status != joborderdomain.ChangeOrderApproved || co.Kind != joborderdomain.KindAdditive) {
			return nil, domain.ErrChangeOrderNotReady
		}
		job, err := s.jobOrders.FindJobOrder(ctx, tx, invoice.OrgID, co.JobOrderID)
		if err != nil {
			return nil, err
		}
		p := &parent{
			ledger: co.Ledger(),
			topic:  viewcache.TopicChangeOrder,
			save: func(l balance.Ledger) error {
				co.SetLedger(l)
				co.UpdatedAt = s.clock.Now()
				return s.jobOrders.UpdateChangeOrderLedger(ctx, tx, co)
			},
		}
		if job != nil {
			p.customerID = job.CustomerID
		}
		return p, nil
	}
	return nil, nil
}

func (p *parent) apply(amount int64) error {
	ledger, err := p.ledger.Apply(amount)
	if err != nil {
		return mapLedgerErr(err)
	}
	return p.commit(ledger)
}

func (p *parent) adjust(oldAmount, newAmount int64) error {
	ledger, err := p.ledger.Adjust(oldAmount, newAmount)
	if err != nil {
		return mapLedgerErr(err)
	}
	return p.commit(ledger)
}

func (p *parent) reverse(amount int64) error {
	return p.commit(p.ledger.Reverse(amount))
}

func (p *parent) commit(ledger balance.Ledger) error {
	if err := p.save(ledger); err != nil {
		return err
	}
	p.ledger = ledger
	return nil
}

func mapLedgerErr(err error) error {
	switch {
	case errors.Is(err, balance.ErrExceedsRemaining):
		return domain.ErrExceedsRemaining
	case errors.Is(err, balance.ErrNegativeAmount):
		return domain.ErrInvalidTotal
	}
	return err
}
