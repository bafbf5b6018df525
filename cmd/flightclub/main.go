package main

import (
	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/flightclub/internal/clock"
	"github.com/smallbiznis/flightclub/internal/config"
	"github.com/smallbiznis/flightclub/internal/migration"
	"github.com/smallbiznis/flightclub/internal/observability"
	"github.com/smallbiznis/flightclub/internal/server"
	"github.com/smallbiznis/flightclub/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"
)

func main() {
	app := fx.New(
		config.Module,
		observability.Module,
		fx.WithLogger(func(log *zap.Logger) fxevent.Logger {
			return &fxevent.ZapLogger{Logger: log.Named("fx")}
		}),
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
