package pdf

import (
	"context"

	"go.uber.org/fx"
)

var Module = fx.Module("providers.pdf",
	fx.Provide(New),
)

type Provider interface {
	RenderInvoice(ctx context.Context, data InvoiceData) ([]byte, error)
}

func New() Provider {
	return &MarotoProvider{}
}
