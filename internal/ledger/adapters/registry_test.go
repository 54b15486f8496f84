package adapters

import (
	"testing"
	"time"

	"github.com/blocksettle/ledgerbridge/internal/clock"
	"github.com/blocksettle/ledgerbridge/internal/config"
	"github.com/blocksettle/ledgerbridge/internal/ledger/adapters/quickbooks"
	"github.com/blocksettle/ledgerbridge/internal/ledger/adapters/xero"
	"github.com/blocksettle/ledgerbridge/internal/ledger/domain"
	"github.com/blocksettle/ledgerbridge/internal/ledger/oauth"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func testConfig() domain.AdapterConfig {
	return domain.AdapterConfig{
		BaseURL:     "https://api.example.com",
		TenantID:    "tenant-1",
		AccountCode: "090",
		CallTimeout: time.Second,
		Tokens:      oauth.NewTokenSource(config.LedgerConfig{}, clock.NewSystemClock(), zap.NewNop()),
	}
}

func TestRegistryResolvesBackends(t *testing.T) {
	registry := NewRegistry(xero.NewFactory(), quickbooks.NewFactory())

	assert.True(t, registry.BackendExists("xero"))
	assert.True(t, registry.BackendExists("QuickBooks"))
	assert.False(t, registry.BackendExists("netsuite"))

	adapter, err := registry.NewAdapter("xero", testConfig())
	require.NoError(t, err)
	assert.NotNil(t, adapter)

	adapter, err = registry.NewAdapter(" QUICKBOOKS ", testConfig())
	require.NoError(t, err)
	assert.NotNil(t, adapter)
}

func TestRegistryUnknownBackend(t *testing.T) {
	registry := NewRegistry(xero.NewFactory())
	_, err := registry.NewAdapter("netsuite", testConfig())
	assert.ErrorIs(t, err, domain.ErrBackendNotFound)
}

func TestRegistryIgnoresNilFactories(t *testing.T) {
	registry := NewRegistry(nil, xero.NewFactory())
	assert.True(t, registry.BackendExists("xero"))
}
