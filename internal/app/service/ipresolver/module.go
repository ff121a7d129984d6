package ipresolver

import "go.uber.org/fx"

// Module exposes the IP resolver via Fx.
var Module = fx.Options(
	fx.Provide(NewResolver),
)
