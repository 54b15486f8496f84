package receiver

import (
	"github.com/blocksettle/ledgerbridge/internal/receiver/service"
	"go.uber.org/fx"
)

var Module = fx.Module("receiver",
	fx.Provide(service.NewService),
)
