package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	accountingdomain "github.com/smallbiznis/fieldbooks/internal/accounting/domain"
	"github.com/smallbiznis/fieldbooks/internal/balance"
	"github.com/smallbiznis/fieldbooks/internal/orgcontext"
	"github.com/smallbiznis/fieldbooks/internal/vendorbill/domain"
	"github.com/smallbiznis/fieldbooks/internal/viewcache"
	"gorm.io/gorm"
)

func (s *Service) AddPayment(ctx context.Context, billID string, req domain.PaymentInput) (domain.PaymentResult, error) {
	orgID, ok := orgcontext.OrgIDFromContext(ctx)
	if !ok {
		return domain.PaymentResult{}, domain.ErrInvalidOrganization
	}
	id, err := parseID(billID)
	if err != nil {
		return domain.PaymentResult{}, err
	}
	if req.Amount <= 0 {
		return domain.PaymentResult{}, domain.ErrInvalidAmount
	}

	now := s.clock.Now()
	payment := domain.Payment{
		ID:           s.genID.Generate(),
		OrgID:        orgID,
		VendorBillID: id,
		Amount:       req.Amount,
		PaymentDate:  paymentDate(req.PaymentDate, now),
		Method:       strings.TrimSpace(req.Method),
		Reference:    strings.TrimSpace(req.Reference),
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	var bill domain.VendorBill
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		current, err := s.loadLiveForUpdate(ctx, tx, orgID, id)
		if err != nil {
			return err
		}
		if err := validatePayment(payment.Amount, current.RemainingAmount); err != nil {
			return err
		}
		if err := s.repo.InsertPayment(ctx, tx, &payment); err != nil {
			return err
		}
		if err := s.resettle(ctx, tx, current); err != nil {
			return err
		}
		bill = *current
		return nil
	})
	if err != nil {
		return domain.PaymentResult{}, err
	}

	return s.paymentResult(ctx, "vendor_bill.payment.create", payment, bill, accountingdomain.OperationUpsert), nil
}

func (s *Service) UpdatePayment(ctx context.Context, paymentID string, req domain.UpdatePaymentRequest) (domain.PaymentResult, error) {
	orgID, ok := orgcontext.OrgIDFromContext(ctx)
	if !ok {
		return domain.PaymentResult{}, domain.ErrInvalidOrganization
	}
	id, err := parseID(paymentID)
	if err != nil {
		return domain.PaymentResult{}, err
	}
	if req.Amount != nil && *req.Amount <= 0 {
		return domain.PaymentResult{}, domain.ErrInvalidAmount
	}
	if req.PaymentDate != nil && req.PaymentDate.IsZero() {
		return domain.PaymentResult{}, domain.ErrInvalidPaymentDate
	}

	var payment domain.Payment
	var bill domain.VendorBill
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		current, owner, err := s.lockPayment(ctx, tx, orgID, id)
		if err != nil {
			return err
		}
		if req.Amount != nil && *req.Amount > current.Amount {
			if err := validatePayment(*req.Amount-current.Amount, owner.RemainingAmount); err != nil {
				return err
			}
		}

		if req.Amount != nil {
			current.Amount = *req.Amount
		}
		if req.PaymentDate != nil {
			current.PaymentDate = *req.PaymentDate
		}
		if req.Method != nil {
			current.Method = strings.TrimSpace(*req.Method)
		}
		if req.Reference != nil {
			current.Reference = strings.TrimSpace(*req.Reference)
		}
		current.UpdatedAt = s.clock.Now()
		if err := s.repo.UpdatePayment(ctx, tx, current); err != nil {
			return err
		}
		if err := s.resettle(ctx, tx, owner); err != nil {
			return err
		}
		payment, bill = *current, *owner
		return nil
	})
	if err != nil {
		return domain.PaymentResult{}, err
	}

	return s.paymentResult(ctx, "vendor_bill.payment.update", payment, bill, accountingdomain.OperationUpsert), nil
}

func (s *Service) DeletePayment(ctx context.Context, paymentID string) (domain.PaymentResult, error) {
	orgID, ok := orgcontext.OrgIDFromContext(ctx)
	if !ok {
		return domain.PaymentResult{}, domain.ErrInvalidOrganization
	}
	id, err := parseID(paymentID)
	if err != nil {
		return domain.PaymentResult{}, err
	}

	var payment domain.Payment
	var bill domain.VendorBill
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		current, owner, err := s.lockPayment(ctx, tx, orgID, id)
		if err != nil {
			return err
		}
		deleted, err := s.repo.SoftDeletePayment(ctx, tx, orgID, id, orgcontext.ActorID(ctx), s.clock.Now())
		if err != nil {
			return err
		}
		if !deleted {
			return domain.ErrPaymentNotFound
		}
		if err := s.resettle(ctx, tx, owner); err != nil {
			return err
		}
		payment, bill = *current, *owner
		return nil
	})
	if err != nil {
		return domain.PaymentResult{}, err
	}

	return s.paymentResult(ctx, "vendor_bill.payment.delete", payment, bill, accountingdomain.OperationDelete), nil
}

func (s *Service) ListPayments(ctx context.Context, billID string) ([]domain.Payment, error) {
	bill, err := s.GetByID(ctx, billID)
	if err != nil {
		return nil, err
	}
	return s.repo.ListPayments(ctx, s.db, bill.OrgID, bill.ID)
}

// BulkPayments records each item in its own transaction and reports every outcome by index.
func (s *Service) BulkPayments(ctx context.Context, req domain.BulkPaymentRequest) ([]domain.BulkPaymentResult, error) {
	if _, ok := orgcontext.OrgIDFromContext(ctx); !ok {
		return nil, domain.ErrInvalidOrganization
	}
	if len(req.Payments) == 0 {
		return nil, domain.ErrEmptyBulk
	}

	results := make([]domain.BulkPaymentResult, len(req.Payments))
	for i, item := range req.Payments {
		if err := ctx.Err(); err != nil {
			return results[:i], err
		}
		results[i] = domain.BulkPaymentResult{Index: i, VendorBillID: item.VendorBillID}
		result, err := s.AddPayment(ctx, item.VendorBillID.String(), item.PaymentInput)
		if err != nil {
			results[i].Error = err.Error()
			continue
		}
		payment := result.Payment
		results[i].Payment = &payment
		results[i].Warnings = result.Warnings
	}
	return results, nil
}

// lockPayment locks the owning bill before re-reading the payment, so a delete that
// committed while this call waited on the lock is seen.
func (s *Service) lockPayment(ctx context.Context, tx *gorm.DB, orgID, id snowflake.ID) (*domain.Payment, *domain.VendorBill, error) {
	payment, err := s.repo.FindPayment(ctx, tx, orgID, id)
	if err != nil {
		return nil, nil, err
	}
	if payment == nil || payment.DeletedAt != nil {
		return nil, nil, domain.ErrPaymentNotFound
	}
	owner, err := s.loadLiveForUpdate(ctx, tx, orgID, payment.VendorBillID)
	if err != nil {
		return nil, nil, err
	}
	if payment, err = s.repo.FindPayment(ctx, tx, orgID, id); err != nil {
		return nil, nil, err
	}
	if payment == nil || payment.DeletedAt != nil {
		return nil, nil, domain.ErrPaymentNotFound
	}
	return payment, owner, nil
}

func (s *Service) resettle(ctx context.Context, tx *gorm.DB, bill *domain.VendorBill) error {
	amounts, err := s.repo.LivePaymentAmounts(ctx, tx, bill.ID)
	if err != nil {
		return err
	}
	bill.Settle(amounts)
	bill.UpdatedAt = s.clock.Now()
	return s.repo.Update(ctx, tx, bill)
}

func (s *Service) paymentResult(ctx context.Context, action string, payment domain.Payment, bill domain.VendorBill, op accountingdomain.Operation) domain.PaymentResult {
	s.afterCommit(ctx, action, &bill, map[string]any{
		"payment_id": payment.ID.String(),
		"amount":     payment.Amount,
		"status":     string(bill.Status),
	}, viewcache.TopicVendorBill, viewcache.TopicVendorBillPayment)

	result := domain.PaymentResult{Payment: payment, VendorBill: bill}
	if s.accounting == nil {
		return result
	}
	result.Warnings = s.accounting.Sync(ctx, accountingdomain.Document{
		OrgID:      payment.OrgID,
		EntityType: accountingdomain.EntityVendorBillPayment,
		EntityID:   payment.ID,
		Operation:  op,
		Payload: map[string]any{
			"vendor_bill_id": payment.VendorBillID.String(),
			"amount":         payment.Amount,
			"payment_date":   payment.PaymentDate.UTC().Format(time.DateOnly),
			"method":         payment.Method,
			"reference":      payment.Reference,
		},
	})
	return result
}

func validatePayment(amount, remaining int64) error {
	err := balance.ValidatePayment(amount, remaining)
	switch {
	case errors.Is(err, balance.ErrNegativeAmount):
		return domain.ErrInvalidAmount
	case errors.Is(err, balance.ErrExceedsRemaining):
		return domain.ErrPaymentExceeds
	}
	return err
}

func paymentDate(value, now time.Time) time.Time {
	if value.IsZero() {
		value = now
	}
	return time.Date(value.Year(), value.Month(), value.Day(), 0, 0, 0, 0, time.UTC)
}
