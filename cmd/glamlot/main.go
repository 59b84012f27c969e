package main

import (
	"github.com/bwmarrin/snowflake"
	"github.com/glamlot/glamlot/internal/clock"
	"github.com/glamlot/glamlot/internal/config"
	"github.com/glamlot/glamlot/internal/migration"
	"github.com/glamlot/glamlot/internal/observability"
	"github.com/glamlot/glamlot/internal/scheduler"
	"github.com/glamlot/glamlot/internal/server"
	"github.com/glamlot/glamlot/pkg/db"
	"go.uber.org/fx"
)

// The all-in-one binary: HTTP API plus the settlement scheduler in a
// single process. Deployments that want the scheduler isolated run
// apps/api and apps/scheduler instead.
func main() {
	app := fx.New(
		config.Module,
		observability.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		clock.Module,
		migration.Module,

		server.Module,
		scheduler.Module,
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
