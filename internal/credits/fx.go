package credits

import (
	"github.com/mealforge/mealforge/internal/credits/repository"
	"github.com/mealforge/mealforge/internal/credits/service"
	"go.uber.org/fx"
)

var Module = fx.Module("credits.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.NewService),
)
