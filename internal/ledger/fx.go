package ledger

import (
	"github.com/blocksettle/ledgerbridge/internal/clock"
	"github.com/blocksettle/ledgerbridge/internal/config"
	"github.com/blocksettle/ledgerbridge/internal/ledger/adapters"
	"github.com/blocksettle/ledgerbridge/internal/ledger/adapters/quickbooks"
	"github.com/blocksettle/ledgerbridge/internal/ledger/adapters/xero"
	"github.com/blocksettle/ledgerbridge/internal/ledger/domain"
	"github.com/blocksettle/ledgerbridge/internal/ledger/oauth"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("ledger",
	fx.Provide(NewTokenSource),
	fx.Provide(NewRegistry),
	fx.Provide(NewAdapter),
)

func NewTokenSource(cfg config.Config, clk clock.Clock, log *zap.Logger) domain.TokenSource {
	return oauth.NewTokenSource(cfg.Ledger, clk, log)
}

func NewRegistry() *adapters.Registry {
	return adapters.NewRegistry(
		xero.NewFactory(),
		quickbooks.NewFactory(),
	)
}

func NewAdapter(cfg config.Config, registry *adapters.Registry, tokens domain.TokenSource) (domain.Adapter, error) {
	return registry.NewAdapter(cfg.Ledger.Backend, domain.AdapterConfig{
		BaseURL:     cfg.Ledger.BaseURL,
		TenantID:    cfg.Ledger.TenantID,
		AccountCode: cfg.Ledger.AccountCode,
		CallTimeout: cfg.Ledger.CallTimeout,
		Tokens:      tokens,
	})
}
