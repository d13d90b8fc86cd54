package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/smallbiznis/fieldbooks/internal/invoice/domain"
	"github.com/smallbiznis/fieldbooks/internal/invoice/render"
	"github.com/smallbiznis/fieldbooks/internal/orgcontext"
	"github.com/smallbiznis/fieldbooks/internal/providers/email"
	"github.com/smallbiznis/fieldbooks/internal/providers/pdf"
	"github.com/smallbiznis/fieldbooks/internal/viewcache"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Send emails the invoice as a PDF and, when asked, texts the customer. A draft becomes
// sent. Email failure aborts; SMS failure is a warning.
func (s *Service) Send(ctx context.Context, id string, req domain.SendInvoiceRequest) (domain.Invoice, []string, error) {
	invoice, err := s.GetByID(ctx, id)
	if err != nil {
		return domain.Invoice{}, nil, err
	}

	customer, err := s.customers.FindByID(ctx, s.db, invoice.OrgID, invoice.CustomerID)
	if err != nil {
		return domain.Invoice{}, nil, err
	}
	var customerName, customerEmail, customerPhone, billingAddress string
	if customer != nil {
		customerName, customerEmail, customerPhone, billingAddress = customer.Name, customer.Email, customer.Phone, customer.BillingAddress
	}

	recipients := make([]string, 0, len(req.To))
	for _, to := range req.To {
		if to = strings.TrimSpace(to); to != "" {
			recipients = append(recipients, to)
		}
	}
	if len(recipients) == 0 && customerEmail != "" {
		recipients = append(recipients, customerEmail)
	}
	if len(recipients) == 0 {
		return domain.Invoice{}, nil, domain.ErrNoRecipient
	}

	data, err := s.printable(ctx, invoice)
	if err != nil {
		return domain.Invoice{}, nil, err
	}
	data.BillToName, data.BillToEmail, data.BillToAddress = customerName, customerEmail, billingAddress

	document, err := s.pdf.RenderInvoice(ctx, data)
	if err != nil {
		return domain.Invoice{}, nil, fmt.Errorf("render invoice pdf: %w", err)
	}
	body, err := s.renderer.RenderEmail(render.EmailView{
		CompanyName:  s.companyName,
		CustomerName: customerName,
		Number:       invoice.Number,
		JobReference: data.JobReference,
		DueDate:      invoice.DueDate,
		Total:        invoice.Total,
		Paid:         invoice.PaidAmount,
		AmountDue:    invoice.RemainingAmount,
		Notes:        invoice.Notes,
	})
	if err != nil {
		return domain.Invoice{}, nil, fmt.Errorf("render invoice email: %w", err)
	}

	err = s.email.Send(ctx, email.Message{
		To:       recipients,
		Subject:  fmt.Sprintf("Invoice %s from %s", invoice.Number, s.sender()),
		HTMLBody: body,
		Attachments: []email.Attachment{{
			Filename:    invoice.Number + ".pdf",
			ContentType: "application/pdf",
			Data:        document,
		}},
	})
	if err != nil {
		s.log.Warn("invoice email failed", zap.String("invoice_id", invoice.ID.String()), zap.Error(err))
		return domain.Invoice{}, nil, fmt.Errorf("%w: %v", domain.ErrDeliveryFailed, err)
	}

	var warnings []string
	if req.SMS {
		switch {
		case customerPhone == "":
			warnings = append(warnings, "sms skipped: customer has no phone number")
		default:
			message := fmt.Sprintf("%s: invoice %s for %s is due %s.",
				s.sender(), invoice.Number, render.FormatMoney(invoice.RemainingAmount), render.FormatDate(invoice.DueDate))
			if err := s.sms.Send(ctx, customerPhone, message); err != nil {
				s.log.Warn("invoice sms failed", zap.String("invoice_id", invoice.ID.String()), zap.Error(err))
				warnings = append(warnings, "sms failed: "+err.Error())
			}
		}
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		current, err := s.loadLiveForUpdate(ctx, tx, invoice.OrgID, invoice.ID)
		if err != nil {
			return err
		}
		now := s.clock.Now()
		current.SentAt = &now
		if current.Status == domain.StatusDraft {
			current.Status = domain.StatusSent
		}
		current.UpdatedAt = now
		if err := s.repo.Update(ctx, tx, current); err != nil {
			return err
		}
		invoice = *current
		return nil
	})
	if err != nil {
		return domain.Invoice{}, warnings, err
	}

	s.afterCommit(ctx, "invoice.send", invoice.OrgID, invoice.ID, map[string]any{
		"recipients": len(recipients),
		"sms":        req.SMS,
		"actor":      orgcontext.ActorID(ctx),
	}, viewcache.TopicInvoice)
	return invoice, warnings, nil
}

// printable builds the PDF view. Invoices converted from an estimate print its lines;
// others print a single line for the invoice total.
func (s *Service) printable(ctx context.Context, invoice domain.Invoice) (pdf.InvoiceData, error) {
	data := pdf.InvoiceData{
		CompanyName:   s.sender(),
		InvoiceNumber: invoice.Number,
		IssueDate:     invoice.CreatedAt.UTC().Format("2006-01-02"),
		DueDate:       render.FormatDate(invoice.DueDate),
		Total:         render.FormatMoney(invoice.Total),
		Paid:          render.FormatMoney(invoice.PaidAmount),
		AmountDue:     render.FormatMoney(invoice.RemainingAmount),
		Notes:         invoice.Notes,
	}

	if invoice.JobOrderID != nil {
		job, err := s.jobOrders.FindJobOrder(ctx, s.db, invoice.OrgID, *invoice.JobOrderID)
		if err != nil {
			return pdf.InvoiceData{}, err
		}
		if job != nil {
			data.JobReference = job.Number + " " + job.Title
		}
	}
	if invoice.ChangeOrderID != nil {
		co, err := s.jobOrders.FindChangeOrder(ctx, s.db, invoice.OrgID, *invoice.ChangeOrderID)
		if err != nil {
			return pdf.InvoiceData{}, err
		}
		if co != nil {
			data.JobReference = co.Number + " " + co.Description
		}
	}

	if invoice.EstimateID != nil {
		lines, err := s.estimates.ListLines(ctx, s.db, *invoice.EstimateID)
		if err != nil {
			return pdf.InvoiceData{}, err
		}
		for _, line := range lines {
			data.Items = append(data.Items, pdf.InvoiceItem{
				Description: line.Description,
				Quantity:    render.FormatQuantity(line.Quantity),
				UnitPrice:   render.FormatMoney(line.UnitPrice),
				Amount:      render.FormatMoney(line.Amount),
			})
		}
	}
	if len(data.Items) == 0 {
		description := invoice.Title
		if description == "" {
			description = "Invoice " + invoice.Number
		}
		data.Items = []pdf.InvoiceItem{{
			Description: description,
			Quantity:    "1",
			UnitPrice:   render.FormatMoney(invoice.Total),
			Amount:      render.FormatMoney(invoice.Total),
		}}
	}
	return data, nil
}

func (s *Service) sender() string {
	if s.companyName == "" {
		return "Fieldbooks"
	}
	return s.companyName
}
