package main

import (
	"github.com/bwmarrin/snowflake"
	"github.com/glamlot/glamlot/internal/auction"
	"github.com/glamlot/glamlot/internal/audit"
	"github.com/glamlot/glamlot/internal/clock"
	"github.com/glamlot/glamlot/internal/config"
	"github.com/glamlot/glamlot/internal/notification"
	"github.com/glamlot/glamlot/internal/observability"
	"github.com/glamlot/glamlot/internal/payout"
	"github.com/glamlot/glamlot/internal/providers"
	"github.com/glamlot/glamlot/internal/ratelimit"
	"github.com/glamlot/glamlot/internal/scheduler"
	"github.com/glamlot/glamlot/internal/settlement"
	"github.com/glamlot/glamlot/internal/videotoken"
	"github.com/glamlot/glamlot/pkg/db"
	"go.uber.org/fx"
)

// Scheduler-only binary. No HTTP server; it ticks the settlement engine
// on its interval and relies on the redis lock to avoid overlapping with
// other replicas.
func main() {
	app := fx.New(
		config.Module,
		observability.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		clock.Module,

		audit.Module,
		auction.Module,
		payout.Module,
		providers.Module,
		videotoken.Module,
		notification.Module,
		settlement.Module,
		ratelimit.Module,
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
