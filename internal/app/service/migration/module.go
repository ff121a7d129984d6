package migration

import "go.uber.org/fx"

// Module exposes the billing-mode migration service via Fx.
var Module = fx.Options(
	fx.Provide(NewService),
)
