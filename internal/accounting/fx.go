package accounting

import (
	"github.com/smallbiznis/fieldbooks/internal/accounting/domain"
	"github.com/smallbiznis/fieldbooks/internal/accounting/provider"
	"github.com/smallbiznis/fieldbooks/internal/accounting/repository"
	"github.com/smallbiznis/fieldbooks/internal/accounting/service"
	"github.com/smallbiznis/fieldbooks/internal/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("accounting.service",
	fx.Provide(repository.Provide),
	fx.Provide(NewProvider),
	fx.Provide(service.New),
)

// NewProvider picks the accounting system from ACCOUNTING_PROVIDER.
func NewProvider(cfg config.Config, log *zap.Logger) domain.Provider {
	switch cfg.Accounting.Provider {
	case "quickbooks":
		if cfg.Accounting.RealmID == "" || cfg.Accounting.AccessToken == "" {
			log.Warn("quickbooks selected without credentials; pushes will fail until configured")
		}
		return provider.NewQuickBooks(provider.QuickBooksConfig{
			BaseURL:     cfg.Accounting.BaseURL,
			RealmID:     cfg.Accounting.RealmID,
			AccessToken: cfg.Accounting.AccessToken,
			Timeout:     cfg.Accounting.Timeout,
		}, nil)
	default:
		return provider.Noop{}
	}
}
