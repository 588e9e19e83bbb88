package streak

import (
	"github.com/mealforge/mealforge/internal/streak/repository"
	"github.com/mealforge/mealforge/internal/streak/service"
	"go.uber.org/fx"
)

var Module = fx.Module("streak.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.NewService),
)
