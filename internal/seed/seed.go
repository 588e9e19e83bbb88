package seed

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	"github.com/mealforge/mealforge/internal/config"
	creditsdomain "github.com/mealforge/mealforge/internal/credits/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// demoUserID is a fixed snowflake so local tooling can mint tokens for it.
const demoUserID = snowflake.ID(1000000000000000001)

// EnsureDemoUser provisions a demo credit account for local development.
// No-op unless SEED_DEMO_USER is set.
func EnsureDemoUser(cfg config.Config, log *zap.Logger, creditSvc creditsdomain.Service) error {
	if !cfg.SeedDemoUser {
		return nil
	}
	if creditSvc == nil {
		return errors.New("seed credit service is required")
	}

	view, err := creditSvc.EnsureAccount(context.Background(), demoUserID)
	if err != nil {
		return err
	}

	log.Named("seed").Info("demo user ready",
		zap.String("user_id", demoUserID.String()),
		zap.Int64("balance", view.Balance))
	return nil
}

var Module = fx.Module("seed",
	fx.Invoke(EnsureDemoUser),
)
