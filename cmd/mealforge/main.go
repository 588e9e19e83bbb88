package main

import (
	"github.com/bwmarrin/snowflake"
	"github.com/mealforge/mealforge/internal/clock"
	"github.com/mealforge/mealforge/internal/config"
	"github.com/mealforge/mealforge/internal/logger"
	"github.com/mealforge/mealforge/internal/metrics"
	"github.com/mealforge/mealforge/internal/migration"
	"github.com/mealforge/mealforge/internal/seed"
	"github.com/mealforge/mealforge/internal/server"
	"github.com/mealforge/mealforge/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

func main() {
	app := fx.New(
		config.Module,
		logger.Module,
		metrics.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		clock.Module,
		migration.Module,

		server.Module,
		seed.Module,

		fx.Invoke(func(log *zap.Logger, cfg config.Config) {
			log.Info("starting",
				zap.String("app", cfg.AppName),
				zap.String("version", cfg.AppVersion),
				zap.String("environment", cfg.Environment))
		}),
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
