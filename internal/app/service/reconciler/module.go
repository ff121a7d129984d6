package reconciler

import "go.uber.org/fx"

// Module exposes the router reconciler via Fx.
var Module = fx.Options(
	fx.Provide(NewService),
)
