package authorization

import (
	"context"
	"errors"
)

var (
	ErrForbidden    = errors.New("forbidden")
	ErrInvalidActor = errors.New("invalid_actor")
	ErrInvalidRole  = errors.New("invalid_role")
)

const (
	RoleAdmin  = "admin"
	RoleOffice = "office"
	RoleField  = "field"
	RoleVendor = "vendor"
)

const (
	ObjectCustomer      = "customer"
	ObjectVendor        = "vendor"
	ObjectEstimate      = "estimate"
	ObjectJobOrder      = "job_order"
	ObjectChangeOrder   = "change_order"
	ObjectInvoice       = "invoice"
	ObjectPayment       = "payment"
	ObjectPurchaseOrder = "purchase_order"
	ObjectVendorBill    = "vendor_bill"
	ObjectTimeEntry     = "time_entry"
	ObjectPersonnel     = "personnel"
	ObjectAttachment    = "attachment"
	ObjectSync          = "accounting_sync"
	ObjectAuditLog      = "audit_log"
	ObjectJob           = "job"
)

const (
	ActionRead   = "read"
	ActionWrite  = "write"
	ActionDelete = "delete"
	ActionSend   = "send"
	ActionRun    = "run"
)

type Service interface {
	// Authorize checks the actor carried by ctx against object and action.
	Authorize(ctx context.Context, object, action string) error
}
