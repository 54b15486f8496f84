package sweeper

import (
	"context"

	"github.com/blocksettle/ledgerbridge/internal/config"
	redis "github.com/redis/go-redis/v9"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("sweeper",
	fx.Provide(NewRedisClient),
	fx.Provide(NewLocker),
	fx.Provide(New),
	fx.Invoke(Start),
)

// NewRedisClient returns nil when no redis address is configured; the
// sweeper then runs without distributed locking.
func NewRedisClient(cfg config.Config) *redis.Client {
	if cfg.RedisAddr == "" {
		return nil
	}
	return redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
	})
}

func Start(lc fx.Lifecycle, cfg config.Config, sweeper *Sweeper, log *zap.Logger) {
	if !cfg.Sweep.Enabled {
		log.Info("fallback sweep disabled")
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			go sweeper.RunForever(ctx)
			return nil
		},
		OnStop: func(context.Context) error {
			cancel()
			return nil
		},
	})
}
