package billing

import (
	"github.com/mealforge/mealforge/internal/billing/adapter"
	"github.com/mealforge/mealforge/internal/billing/repository"
	"github.com/mealforge/mealforge/internal/billing/service"
	"go.uber.org/fx"
)

var Module = fx.Module("billing.service",
	fx.Provide(adapter.New),
	fx.Provide(repository.Provide),
	fx.Provide(service.NewService),
)
