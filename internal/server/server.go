package server

import (
	"context"
	"net/http"
	"time"

	aggregatedomain "github.com/blocksettle/ledgerbridge/internal/aggregate/domain"
	"github.com/blocksettle/ledgerbridge/internal/config"
	eventdomain "github.com/blocksettle/ledgerbridge/internal/event/domain"
	ledgerdomain "github.com/blocksettle/ledgerbridge/internal/ledger/domain"
	"github.com/blocksettle/ledgerbridge/internal/observability"
	obslogger "github.com/blocksettle/ledgerbridge/internal/observability/logger"
	obstracing "github.com/blocksettle/ledgerbridge/internal/observability/tracing"
	orchestratordomain "github.com/blocksettle/ledgerbridge/internal/orchestrator/domain"
	receiverdomain "github.com/blocksettle/ledgerbridge/internal/receiver/domain"
	storedomain "github.com/blocksettle/ledgerbridge/internal/store/domain"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var Module = fx.Module("http.server",
	fx.Provide(registerGin),
	fx.Invoke(NewServer),
	fx.Invoke(run),
)

func NewEngine(obsCfg observability.Config) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(obslogger.GinMiddleware(obslogger.MiddlewareConfig{
		Debug: obsCfg.Debug(),
	}))
	r.Use(obstracing.GinMiddleware())
	r.Use(ErrorHandlingMiddleware())

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}

func registerGin(obsCfg observability.Config) *gin.Engine {
	return NewEngine(obsCfg)
}

type ServerParams struct {
	fx.In

	Gin          *gin.Engine
	Cfg          config.Config
	DB           *gorm.DB
	Log          *zap.Logger
	Receiver     receiverdomain.Service
	Orchestrator orchestratordomain.Service
	Aggregates   aggregatedomain.Service
	Events       eventdomain.Repository
	Stores       storedomain.Service
	Ledger       ledgerdomain.Adapter
}

type Server struct {
	engine       *gin.Engine
	cfg          config.Config
	db           *gorm.DB
	log          *zap.Logger
	receiver     receiverdomain.Service
	orchestrator orchestratordomain.Service
	aggregates   aggregatedomain.Service
	events       eventdomain.Repository
	stores       storedomain.Service
	ledger       ledgerdomain.Adapter
}

func NewServer(p ServerParams) *Server {
	s := &Server{
		engine:       p.Gin,
		cfg:          p.Cfg,
		db:           p.DB,
		log:          p.Log.Named("server"),
		receiver:     p.Receiver,
		orchestrator: p.Orchestrator,
		aggregates:   p.Aggregates,
		events:       p.Events,
		stores:       p.Stores,
		ledger:       p.Ledger,
	}
	s.RegisterWebhookRoutes()
	s.RegisterAPIRoutes()
	return s
}

func run(lc fx.Lifecycle, cfg config.Config, r *gin.Engine) {
	srv := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: r,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					panic(err)
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	})
}
