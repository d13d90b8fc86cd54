package service

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/fieldbooks/internal/balance"
	podomain "github.com/smallbiznis/fieldbooks/internal/purchaseorder/domain"
	"github.com/smallbiznis/fieldbooks/internal/vendorbill/domain"
	"gorm.io/gorm"
)

// purchaseOrder is a locked purchase order with its lines, ready to take or give back a
// bill's amount and quantities.
type purchaseOrder struct {
	po      *podomain.PurchaseOrder
	lines   map[snowflake.ID]*podomain.Line
	touched map[snowflake.ID]bool
}

// lockPurchaseOrder returns nil for a bill without a purchase order. strict rejects purchase
// orders that cannot take new billing.
func (s *Service) lockPurchaseOrder(ctx context.Context, tx *gorm.DB, bill *domain.VendorBill, strict bool) (*purchaseOrder, error) {
	if bill.PurchaseOrderID == nil {
		return nil, nil
	}
	po, err := s.purchaseOrders.FindByIDForUpdate(ctx, tx, bill.OrgID, *bill.PurchaseOrderID)
	if err != nil {
		return nil, err
	}
	if po == nil || (strict && po.DeletedAt != nil) {
		return nil, domain.ErrPurchaseOrderNotFound
	}
	if strict && po.Status == podomain.StatusClosed {
		return nil, domain.ErrPurchaseOrderClosed
	}
	if strict && po.VendorID != bill.VendorID {
		return nil, domain.ErrInvalidVendor
	}

	lines, err := s.purchaseOrders.ListLines(ctx, tx, po.ID)
	if err != nil {
		return nil, err
	}
	byID := make(map[snowflake.ID]*podomain.Line, len(lines))
	for i := range lines {
		byID[lines[i].ID] = &lines[i]
	}
	return &purchaseOrder{po: po, lines: byID, touched: map[snowflake.ID]bool{}}, nil
}

// checkLines verifies every referenced purchase order line belongs to this purchase order.
func (p *purchaseOrder) checkLines(lines []domain.Line) error {
	for _, line := range lines {
		if line.PurchaseOrderLineID == nil {
			continue
		}
		if _, ok := p.lines[*line.PurchaseOrderLineID]; !ok {
			return domain.ErrInvalidLine
		}
	}
	return nil
}

func (p *purchaseOrder) apply(lines []domain.Line, total int64) error {
	ledger, err := p.po.Ledger().Apply(total)
	if err != nil {
		return mapLedgerErr(err)
	}
	p.po.SetLedger(ledger)
	return p.bill(lines, 1)
}

func (p *purchaseOrder) reverse(lines []domain.Line, total int64) {
	p.po.SetLedger(p.po.Ledger().Reverse(total))
	_ = p.bill(lines, -1)
}

// replace swaps one set of bill lines for another on the same bill.
func (p *purchaseOrder) replace(oldLines []domain.Line, oldTotal int64, newLines []domain.Line, newTotal int64) error {
	ledger, err := p.po.Ledger().Adjust(oldTotal, newTotal)
	if err != nil {
		return mapLedgerErr(err)
	}
	p.po.SetLedger(ledger)
	_ = p.bill(oldLines, -1)
	return p.bill(newLines, 1)
}

// bill moves billed quantities on the linked purchase order lines. Adding more than a line
// has unbilled is rejected; giving quantity back is clamped at zero.
func (p *purchaseOrder) bill(lines []domain.Line, sign int64) error {
	for _, line := range lines {
		if line.PurchaseOrderLineID == nil {
			continue
		}
		target, ok := p.lines[*line.PurchaseOrderLineID]
		if !ok {
			continue
		}
		if sign > 0 && line.Quantity.GreaterThan(target.Unbilled()) {
			return domain.ErrQuantityExceeds
		}
		target.Bill(line.Quantity.Mul(decimal.NewFromInt(sign)))
		p.touched[target.ID] = true
	}
	return nil
}

func (s *Service) savePurchaseOrder(ctx context.Context, tx *gorm.DB, p *purchaseOrder) error {
	now := s.clock.Now()
	p.po.UpdatedAt = now
	if err := s.purchaseOrders.UpdateLedger(ctx, tx, p.po); err != nil {
		return err
	}
	for id := range p.touched {
		line := p.lines[id]
		line.UpdatedAt = now
		if err := s.purchaseOrders.UpdateLineBilled(ctx, tx, line); err != nil {
			return err
		}
	}
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
