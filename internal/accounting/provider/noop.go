package provider

import (
	"context"

	"github.com/smallbiznis/fieldbooks/internal/accounting/domain"
)

// Noop accepts every push and keeps whatever reference it was given.
type Noop struct{}

func (Noop) Name() string { return "noop" }

func (Noop) Push(_ context.Context, _ domain.Document, ref domain.ExternalRef) (domain.ExternalRef, error) {
	return ref, nil
}
