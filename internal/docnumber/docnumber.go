// Package docnumber assigns human-readable document numbers per organization.
package docnumber

import (
	"context"
	"fmt"
	"strings"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

const (
	PrefixEstimate      = "EST"
	PrefixJobOrder      = "JO"
	PrefixChangeOrder   = "CO"
	PrefixInvoice       = "INV"
	PrefixPurchaseOrder = "PO"
	PrefixVendorBill    = "BILL"
)

// Next returns the next number for table within orgID, e.g. INV-00042. It must run inside
// the transaction that inserts the row; the (org_id, number) unique index rejects a
// concurrent duplicate.
func Next(ctx context.Context, tx *gorm.DB, table, prefix string, orgID snowflake.ID) (string, error) {
	var count int64
	err := tx.WithContext(ctx).Table(table).Where("org_id = ?", orgID).Count(&count).Error
	if err != nil {
		return "", err
	}
	return Format(prefix, count+1), nil
}

// Format renders a sequence value with its prefix.
func Format(prefix string, seq int64) string {
	return fmt.Sprintf("%s-%05d", strings.ToUpper(prefix), seq)
}

// Resolve keeps a caller-supplied number or falls back to Next.
func Resolve(ctx context.Context, tx *gorm.DB, table, prefix string, orgID snowflake.ID, requested string) (string, error) {
	if number := strings.TrimSpace(requested); number != "" {
		return number, nil
	}
	return Next(ctx, tx, table, prefix, orgID)
}
