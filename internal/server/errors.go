package server

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	accountingdomain "github.com/smallbiznis/fieldbooks/internal/accounting/domain"
	attachmentdomain "github.com/smallbiznis/fieldbooks/internal/attachment/domain"
	auditdomain "github.com/smallbiznis/fieldbooks/internal/audit/domain"
	"github.com/smallbiznis/fieldbooks/internal/authorization"
	customerdomain "github.com/smallbiznis/fieldbooks/internal/customer/domain"
	estimatedomain "github.com/smallbiznis/fieldbooks/internal/estimate/domain"
	invoicedomain "github.com/smallbiznis/fieldbooks/internal/invoice/domain"
	joborderdomain "github.com/smallbiznis/fieldbooks/internal/joborder/domain"
	personneldomain "github.com/smallbiznis/fieldbooks/internal/personnel/domain"
	purchaseorderdomain "github.com/smallbiznis/fieldbooks/internal/purchaseorder/domain"
	"github.com/smallbiznis/fieldbooks/internal/scheduler"
	vendordomain "github.com/smallbiznis/fieldbooks/internal/supplier/domain"
	timeentrydomain "github.com/smallbiznis/fieldbooks/internal/timeentry/domain"
	vendorbilldomain "github.com/smallbiznis/fieldbooks/internal/vendorbill/domain"
	"github.com/smallbiznis/fieldbooks/pkg/db/pagination"
	"gorm.io/gorm"
)

type ValidationError struct {
	Field   string `json:"field"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

type ValidationErrors struct {
	Errors []ValidationError `json:"errors"`
}

func (v ValidationErrors) Error() string {
	return "validation error"
}

type errorPayload struct {
	Type    string            `json:"type"`
	Message string            `json:"message"`
	Errors  []ValidationError `json:"errors,omitempty"`
}

type errorResponse struct {
	Error errorPayload `json:"error"`
}

var (
	ErrUnauthorized       = errors.New("unauthorized")
	ErrForbidden          = errors.New("forbidden")
	ErrConflict           = errors.New("conflict")
	ErrInternal           = errors.New("internal_error")
	ErrNotFound           = errors.New("not_found")
	ErrInvalidRequest     = errors.New("invalid_request")
	ErrServiceUnavailable = errors.New("service_unavailable")
)

var validationErrs = []error{
	ErrInvalidRequest,
	pagination.ErrInvalidPageToken,

	customerdomain.ErrInvalidOrganization,
	customerdomain.ErrInvalidName,
	customerdomain.ErrInvalidEmail,
	customerdomain.ErrInvalidID,

	vendordomain.ErrInvalidOrganization,
	vendordomain.ErrInvalidID,
	vendordomain.ErrInvalidName,
	vendordomain.ErrInvalidEmail,

	estimatedomain.ErrInvalidOrganization,
	estimatedomain.ErrInvalidID,
	estimatedomain.ErrInvalidCustomer,
	estimatedomain.ErrInvalidTitle,
	estimatedomain.ErrInvalidLine,
	estimatedomain.ErrInvalidStatus,

	joborderdomain.ErrInvalidOrganization,
	joborderdomain.ErrInvalidID,
	joborderdomain.ErrInvalidCustomer,
	joborderdomain.ErrInvalidTitle,
	joborderdomain.ErrInvalidTotal,
	joborderdomain.ErrInvalidStatus,
	joborderdomain.ErrInvalidKind,
	joborderdomain.ErrInvalidDescription,

	invoicedomain.ErrInvalidOrganization,
	invoicedomain.ErrInvalidID,
	invoicedomain.ErrInvalidCustomer,
	invoicedomain.ErrInvalidTotal,
	invoicedomain.ErrInvalidParent,
	invoicedomain.ErrInvalidStatus,
	invoicedomain.ErrInvalidAmount,
	invoicedomain.ErrInvalidPaymentDate,
	invoicedomain.ErrNoRecipient,
	invoicedomain.ErrEmptyBulk,

	purchaseorderdomain.ErrInvalidOrganization,
	purchaseorderdomain.ErrInvalidID,
	purchaseorderdomain.ErrInvalidVendor,
	purchaseorderdomain.ErrInvalidJobOrder,
	purchaseorderdomain.ErrInvalidLine,
	purchaseorderdomain.ErrNoLines,

	vendorbilldomain.ErrInvalidOrganization,
	vendorbilldomain.ErrInvalidID,
	vendorbilldomain.ErrInvalidVendor,
	vendorbilldomain.ErrInvalidLine,
	vendorbilldomain.ErrInvalidTotal,
	vendorbilldomain.ErrInvalidAmount,
	vendorbilldomain.ErrInvalidPaymentDate,
	vendorbilldomain.ErrEmptyBulk,

	timeentrydomain.ErrInvalidOrganization,
	timeentrydomain.ErrInvalidID,
	timeentrydomain.ErrInvalidPerson,
	timeentrydomain.ErrInvalidJobOrder,
	timeentrydomain.ErrInvalidWorkDate,
	timeentrydomain.ErrInvalidHours,
	timeentrydomain.ErrInvalidRange,

	personneldomain.ErrInvalidOrganization,
	personneldomain.ErrInvalidID,
	personneldomain.ErrInvalidName,
	personneldomain.ErrInvalidEmail,
	personneldomain.ErrInvalidHourlyRate,
	personneldomain.ErrInvalidActiveFilter,
	personneldomain.ErrInvalidCertification,
	personneldomain.ErrInvalidCertificateDates,
	personneldomain.ErrInvalidWindow,

	attachmentdomain.ErrInvalidOrganization,
	attachmentdomain.ErrInvalidID,
	attachmentdomain.ErrInvalidEntityType,
	attachmentdomain.ErrInvalidFilename,
	attachmentdomain.ErrEmptyFile,
	attachmentdomain.ErrTooLarge,

	accountingdomain.ErrInvalidOrganization,
	accountingdomain.ErrInvalidEntityType,
	accountingdomain.ErrInvalidID,

	auditdomain.ErrInvalidOrganization,
	auditdomain.ErrInvalidTimeRange,
	auditdomain.ErrInvalidAction,
	auditdomain.ErrInvalidTarget,
}

var notFoundErrs = []error{
	ErrNotFound,
	gorm.ErrRecordNotFound,
	customerdomain.ErrNotFound,
	vendordomain.ErrNotFound,
	estimatedomain.ErrNotFound,
	joborderdomain.ErrNotFound,
	joborderdomain.ErrChangeOrderNotFound,
	invoicedomain.ErrNotFound,
	invoicedomain.ErrParentNotFound,
	invoicedomain.ErrPaymentNotFound,
	purchaseorderdomain.ErrNotFound,
	vendorbilldomain.ErrNotFound,
	vendorbilldomain.ErrPurchaseOrderNotFound,
	vendorbilldomain.ErrPaymentNotFound,
	timeentrydomain.ErrNotFound,
	personneldomain.ErrNotFound,
	personneldomain.ErrCertificationNotFound,
	attachmentdomain.ErrNotFound,
	attachmentdomain.ErrEntityNotFound,
	accountingdomain.ErrMappingNotFound,
	scheduler.ErrUnknownJob,
}

var conflictErrs = []error{
	ErrConflict,

	estimatedomain.ErrInvalidTransition,
	estimatedomain.ErrNotDraft,
	estimatedomain.ErrNotApproved,
	estimatedomain.ErrAlreadyConverted,
	estimatedomain.ErrAlreadyDeleted,
	estimatedomain.ErrNotDeleted,
	estimatedomain.ErrDuplicateNumber,

	joborderdomain.ErrInvalidTransition,
	joborderdomain.ErrAlreadyDeleted,
	joborderdomain.ErrNotDeleted,
	joborderdomain.ErrHasLiveInvoices,
	joborderdomain.ErrTotalBelowInvoiced,
	joborderdomain.ErrDuplicateNumber,
	joborderdomain.ErrChangeOrderNotPending,
	joborderdomain.ErrChangeOrderHasInvoices,

	invoicedomain.ErrChangeOrderNotReady,
	invoicedomain.ErrDeleted,
	invoicedomain.ErrAlreadyDeleted,
	invoicedomain.ErrNotDeleted,
	invoicedomain.ErrExceedsRemaining,
	invoicedomain.ErrTotalBelowPaid,
	invoicedomain.ErrPaymentExceeds,
	invoicedomain.ErrDuplicateNumber,

	purchaseorderdomain.ErrAlreadyDeleted,
	purchaseorderdomain.ErrNotDeleted,
	purchaseorderdomain.ErrAlreadyBilled,
	purchaseorderdomain.ErrHasLiveBills,
	purchaseorderdomain.ErrInvalidTransition,
	purchaseorderdomain.ErrDuplicateNumber,

	vendorbilldomain.ErrPurchaseOrderClosed,
	vendorbilldomain.ErrDeleted,
	vendorbilldomain.ErrAlreadyDeleted,
	vendorbilldomain.ErrNotDeleted,
	vendorbilldomain.ErrExceedsRemaining,
	vendorbilldomain.ErrQuantityExceeds,
	vendorbilldomain.ErrTotalBelowPaid,
	vendorbilldomain.ErrPaymentExceeds,
	vendorbilldomain.ErrDuplicateNumber,

	timeentrydomain.ErrInactivePerson,
	timeentrydomain.ErrNotDeleted,
	timeentrydomain.ErrDuplicateEntry,
}

var forbiddenErrs = []error{
	ErrForbidden,
	authorization.ErrForbidden,
	vendorbilldomain.ErrVendorScope,
}

var unauthorizedErrs = []error{
	ErrUnauthorized,
	authorization.ErrInvalidActor,
	authorization.ErrInvalidRole,
}

var unavailableErrs = []error{
	ErrServiceUnavailable,
	invoicedomain.ErrDeliveryFailed,
}

func ErrorHandlingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if c.Writer.Written() {
			return
		}

		lastErr := c.Errors.Last()
		if lastErr == nil {
			return
		}

		status, payload := mapError(lastErr.Err)
		c.Header("Content-Type", "application/json")
		c.AbortWithStatusJSON(status, errorResponse{Error: payload})
	}
}

func AbortWithError(c *gin.Context, err error) {
	if err == nil {
		return
	}
	_ = c.Error(err)
	c.Abort()
}

func invalidRequestError() error {
	return newValidationError("request", "invalid_request", "invalid request")
}

func newValidationError(field, code, message string) error {
	return &ValidationErrors{
		Errors: []ValidationError{
			{
				Field:   field,
				Code:    code,
				Message: message,
			},
		},
	}
}

func mapError(err error) (int, errorPayload) {
	if err == nil {
		return http.StatusInternalServerError, errorPayload{
			Type:    "internal_error",
			Message: "internal server error",
		}
	}

	if vErr := asValidationErrors(err); vErr != nil {
		return http.StatusBadRequest, errorPayload{
			Type:    "validation_error",
			Message: "validation error",
			Errors:  vErr.Errors,
		}
	}

	if target, ok := match(err, validationErrs); ok {
		code := target.Error()
		return http.StatusBadRequest, errorPayload{
			Type:    "validation_error",
			Message: code,
			Errors: []ValidationError{
				{
					Field:   validationErrorField(code),
					Code:    code,
					Message: validationErrorMessage(code),
				},
			},
		}
	}

	if target, ok := match(err, unauthorizedErrs); ok {
		return http.StatusUnauthorized, errorPayload{Type: "unauthorized", Message: target.Error()}
	}
	if target, ok := match(err, forbiddenErrs); ok {
		return http.StatusForbidden, errorPayload{Type: "forbidden", Message: target.Error()}
	}
	if target, ok := match(err, notFoundErrs); ok {
		return http.StatusNotFound, errorPayload{Type: "not_found", Message: target.Error()}
	}
	if target, ok := match(err, conflictErrs); ok {
		return http.StatusConflict, errorPayload{Type: "conflict", Message: target.Error()}
	}
	if target, ok := match(err, unavailableErrs); ok {
		return http.StatusServiceUnavailable, errorPayload{Type: "service_unavailable", Message: target.Error()}
	}

	return http.StatusInternalServerError, errorPayload{
		Type:    "internal_error",
		Message: "internal server error",
	}
}

// classifyErrorForLog feeds the access log's error_type and error_code fields.
func classifyErrorForLog(err error) (string, string) {
	_, payload := mapError(err)
	if len(payload.Errors) > 0 {
		return payload.Type, payload.Errors[0].Code
	}
	return payload.Type, payload.Message
}

func match(err error, targets []error) (error, bool) {
	for _, target := range targets {
		if errors.Is(err, target) {
			return target, true
		}
	}
	return nil, false
}

func asValidationErrors(err error) *ValidationErrors {
	var vErr *ValidationErrors
	if errors.As(err, &vErr) && vErr != nil {
		return vErr
	}
	return nil
}

func validationErrorField(code string) string {
	if code == "invalid_request" {
		return "request"
	}
	if strings.HasPrefix(code, "invalid_") {
		return strings.TrimPrefix(code, "invalid_")
	}
	return ""
}

func validationErrorMessage(code string) string {
	switch code {
	case "invalid_request":
		return "invalid request"
	default:
		return "invalid value"
	}
}
