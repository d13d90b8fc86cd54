package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	accountingdomain "github.com/smallbiznis/fieldbooks/internal/accounting/domain"
	"github.com/smallbiznis/fieldbooks/internal/balance"
	"github.com/smallbiznis/fieldbooks/internal/invoice/domain"
	"github.com/smallbiznis/fieldbooks/internal/orgcontext"
	"github.com/smallbiznis/fieldbooks/internal/viewcache"
	"gorm.io/gorm"
)

func (s *Service) AddPayment(ctx context.Context, invoiceID string, req domain.PaymentInput) (domain.PaymentResult, error) {
	orgID, ok := orgcontext.OrgIDFromContext(ctx)
	if !ok {
		return domain.PaymentResult{}, domain.ErrInvalidOrganization
	}
	id, err := parseID(invoiceID)
	if err != nil {
		return domain.PaymentResult{}, err
	}
	if req.Amount <= 0 {
		return domain.PaymentResult{}, domain.ErrInvalidAmount
	}

	now := s.clock.Now()
	payment := domain.Payment{
		ID:          s.genID.Generate(),
		OrgID:       orgID,
		InvoiceID:   id,
		Amount:      req.Amount,
		PaymentDate: paymentDate(req.PaymentDate, now),
		Method:      strings.TrimSpace(req.Method),
		Reference:   strings.TrimSpace(req.Reference),
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	var invoice domain.Invoice
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
		invoice = *current
		return nil
	})
	if err != nil {
		return domain.PaymentResult{}, err
	}

	s.afterPayment(ctx, "invoice.payment.create", payment, invoice)
	return domain.PaymentResult{
		Payment:  payment,
		Invoice:  invoice,
		Warnings: s.syncPayment(ctx, payment, accountingdomain.OperationUpsert),
	}, nil
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
	var invoice domain.Invoice
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
		payment, invoice = *current, *owner
		return nil
	})
	if err != nil {
		return domain.PaymentResult{}, err
	}

	s.afterPayment(ctx, "invoice.payment.update", payment, invoice)
	return domain.PaymentResult{
		Payment:  payment,
		Invoice:  invoice,
		Warnings: s.syncPayment(ctx, payment, accountingdomain.OperationUpsert),
	}, nil
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
	var invoice domain.Invoice
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
		payment, invoice = *current, *owner
		return nil
	})
	if err != nil {
		return domain.PaymentResult{}, err
	}

	s.afterPayment(ctx, "invoice.payment.delete", payment, invoice)
	return domain.PaymentResult{
		Payment:  payment,
		Invoice:  invoice,
		Warnings: s.syncPayment(ctx, payment, accountingdomain.OperationDelete),
	}, nil
}

func (s *Service) ListPayments(ctx context.Context, invoiceID string) ([]domain.Payment, error) {
	invoice, err := s.GetByID(ctx, invoiceID)
	if err != nil {
		return nil, err
	}
	return s.repo.ListPayments(ctx, s.db, invoice.OrgID, invoice.ID)
}

// BulkPayments records each item in its own transaction, in order. A failed item does not
// stop the rest; every outcome is reported by index.
func (s *Service) BulkPayments(ctx context.Context, req domain.BulkPaymentRequest) ([]domain.BulkPaymentResult, error) {
	if _, ok := orgcontext.OrgIDFromContext(ctx); !ok {
		return nil, domain.ErrInvalidOrganization
	}
	if len(req.Payments) == 0 {
		return nil, domain.ErrEmptyBulk
	}

	results := make([]domain.BulkPaymentResult, 0, len(req.Payments))
	for i, item := range req.Payments {
		if err := ctx.Err(); err != nil {
			return results, err
		}
		out := domain.BulkPaymentResult{Index: i, InvoiceID: item.InvoiceID}
		result, err := s.AddPayment(ctx, item.InvoiceID.String(), item.PaymentInput)
		if err != nil {
			out.Error = err.Error()
		} else {
			payment := result.Payment
			out.Payment = &payment
			out.Warnings = result.Warnings
		}
		results = append(results, out)
	}
	return results, nil
}

// lockPayment locks the invoice that owns the payment, then reads the payment again. Every
// payment write holds the invoice lock, so the second read cannot be stale.
func (s *Service) lockPayment(ctx context.Context, tx *gorm.DB, orgID, id snowflake.ID) (*domain.Payment, *domain.Invoice, error) {
	payment, err := s.repo.FindPayment(ctx, tx, orgID, id)
	if err != nil {
		return nil, nil, err
	}
	if payment == nil || payment.DeletedAt != nil {
		return nil, nil, domain.ErrPaymentNotFound
	}
	owner, err := s.loadLiveForUpdate(ctx, tx, orgID, payment.InvoiceID)
	if err != nil {
		return nil, nil, err
	}
	payment, err = s.repo.FindPayment(ctx, tx, orgID, id)
	if err != nil {
		return nil, nil, err
	}
	if payment == nil || payment.DeletedAt != nil {
		return nil, nil, domain.ErrPaymentNotFound
	}
	return payment, owner, nil
}

// resettle recomputes paid, remaining and status from the live payment rows and persists
// all three together.
func (s *Service) resettle(ctx context.Context, tx *gorm.DB, invoice *domain.Invoice) error {
	amounts, err := s.repo.LivePaymentAmounts(ctx, tx, invoice.ID)
	if err != nil {
		return err
	}
	invoice.Settle(amounts)
	invoice.UpdatedAt = s.clock.Now()
	return s.repo.Update(ctx, tx, invoice)
}

func (s *Service) afterPayment(ctx context.Context, action string, payment domain.Payment, invoice domain.Invoice) {
	s.afterCommit(ctx, action, invoice.OrgID, invoice.ID, map[string]any{
		"payment_id": payment.ID.String(),
		"amount":     payment.Amount,
		"status":     string(invoice.Status),
	}, viewcache.TopicInvoice, viewcache.TopicInvoicePayment)
}

func (s *Service) syncPayment(ctx context.Context, payment domain.Payment, op accountingdomain.Operation) []string {
	if s.accounting == nil {
		return nil
	}
	return s.accounting.Sync(ctx, accountingdomain.Document{
		OrgID:      payment.OrgID,
		EntityType: accountingdomain.EntityInvoicePayment,
		EntityID:   payment.ID,
		Operation:  op,
		Payload: map[string]any{
			"invoice_id":   payment.InvoiceID.String(),
			"amount":       payment.Amount,
			"payment_date": payment.PaymentDate.UTC().Format(time.DateOnly),
			"method":       payment.Method,
			"reference":    payment.Reference,
		},
	})
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
