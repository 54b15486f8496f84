package store

import (
	"github.com/blocksettle/ledgerbridge/internal/store/service"
	"go.uber.org/fx"
)

var Module = fx.Module("store.service",
	fx.Provide(service.NewService),
)
