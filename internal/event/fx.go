package event

import (
	"github.com/blocksettle/ledgerbridge/internal/event/repository"
	"go.uber.org/fx"
)

var Module = fx.Module("event.store",
	fx.Provide(repository.Provide),
)
