package main

import (
	"github.com/blocksettle/ledgerbridge/internal/aggregate"
	"github.com/blocksettle/ledgerbridge/internal/clock"
	"github.com/blocksettle/ledgerbridge/internal/config"
	"github.com/blocksettle/ledgerbridge/internal/database"
	"github.com/blocksettle/ledgerbridge/internal/event"
	"github.com/blocksettle/ledgerbridge/internal/ledger"
	"github.com/blocksettle/ledgerbridge/internal/observability"
	"github.com/blocksettle/ledgerbridge/internal/orchestrator"
	"github.com/blocksettle/ledgerbridge/internal/processor"
	"github.com/blocksettle/ledgerbridge/internal/receiver"
	"github.com/blocksettle/ledgerbridge/internal/server"
	"github.com/blocksettle/ledgerbridge/internal/store"
	"github.com/blocksettle/ledgerbridge/internal/sweeper"
	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
)

func main() {
	app := fx.New(
		config.Module,
		observability.Module,
		fx.Provide(RegisterSnowflake),
		database.Module,
		clock.Module,

		event.Module,
		store.Module,
		processor.Module,
		aggregate.Module,
		ledger.Module,
		orchestrator.Module,
		receiver.Module,
		sweeper.Module,

		server.Module,
	)
	app.Run()
}

func RegisterSnowflake() *snowflake.Node {
	node, err := snowflake.NewNode(1)
	if err != nil {
		panic(err)
	}
	return node
}
