package orchestrator

import (
	"context"

	"github.com/blocksettle/ledgerbridge/internal/orchestrator/repository"
	"github.com/blocksettle/ledgerbridge/internal/orchestrator/service"
	"go.uber.org/fx"
)

var Module = fx.Module("orchestrator",
	fx.Provide(repository.Provide),
	fx.Provide(service.NewService),
	fx.Provide(service.NewWorker),
	fx.Invoke(StartWorker),
)

func StartWorker(lc fx.Lifecycle, worker *service.Worker) {
	ctx, cancel := context.WithCancel(context.Background())
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			go worker.RunForever(ctx)
			return nil
		},
		OnStop: func(context.Context) error {
			cancel()
			return nil
		},
	})
}
