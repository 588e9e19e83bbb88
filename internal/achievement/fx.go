package achievement

import (
	"github.com/mealforge/mealforge/internal/achievement/repository"
	"github.com/mealforge/mealforge/internal/achievement/service"
	"go.uber.org/fx"
)

var Module = fx.Module("achievement.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.NewService),
)
