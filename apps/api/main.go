package main

import (
	"github.com/bwmarrin/snowflake"
	"github.com/glamlot/glamlot/internal/clock"
	"github.com/glamlot/glamlot/internal/config"
	"github.com/glamlot/glamlot/internal/migration"
	"github.com/glamlot/glamlot/internal/observability"
	"github.com/glamlot/glamlot/internal/server"
	"github.com/glamlot/glamlot/pkg/db"
	"go.uber.org/fx"
)

// API-only binary. The settlement scheduler runs in apps/scheduler; the
// operator endpoints here can still trigger a batch on demand.
func main() {
	app := fx.New(
		config.Module,
		observability.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		clock.Module,
		migration.Module,

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
