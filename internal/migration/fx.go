package migration

import (
	achievementdomain "github.com/mealforge/mealforge/internal/achievement/domain"
	billingdomain "github.com/mealforge/mealforge/internal/billing/domain"
	"github.com/mealforge/mealforge/internal/config"
	creditsdomain "github.com/mealforge/mealforge/internal/credits/domain"
	streakdomain "github.com/mealforge/mealforge/internal/streak/domain"
	usagedomain "github.com/mealforge/mealforge/internal/usage/domain"
	"go.uber.org/fx"
	"gorm.io/gorm"
)

var Module = fx.Module("migrations",
	fx.Invoke(func(conn *gorm.DB, cfg config.Config) error {
		if cfg.DBType == "sqlite" {
			// Versioned SQL migrations target postgres; local sqlite
			// runs get the schema from the models instead.
			return conn.AutoMigrate(
				&creditsdomain.CreditBalance{},
				&creditsdomain.CreditLedgerEntry{},
				&usagedomain.RecipeEvent{},
				&streakdomain.StreakState{},
				&achievementdomain.AchievementUnlock{},
				&billingdomain.BillingWebhookEvent{},
			)
		}

		sqlDB, err := conn.DB()
		if err != nil {
			return err
		}
		return RunMigrations(sqlDB)
	}),
)
