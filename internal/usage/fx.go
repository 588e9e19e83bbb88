package usage

import (
	"github.com/mealforge/mealforge/internal/usage/repository"
	"github.com/mealforge/mealforge/internal/usage/service"
	"go.uber.org/fx"
)

var Module = fx.Module("usage.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.NewService),
)
