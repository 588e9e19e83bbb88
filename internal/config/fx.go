package config

import "go.uber.org/fx"

// Module wires application configuration and the reward catalog holder.
var Module = fx.Module("config",
	fx.Provide(
		Load,
		NewRewardConfigHolder,
	),
)
