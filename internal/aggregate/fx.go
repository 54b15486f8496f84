package aggregate

import (
	"github.com/blocksettle/ledgerbridge/internal/aggregate/repository"
	"github.com/blocksettle/ledgerbridge/internal/aggregate/service"
	"go.uber.org/fx"
)

var Module = fx.Module("aggregate.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.NewService),
)
