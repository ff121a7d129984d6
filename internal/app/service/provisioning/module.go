package provisioning

import "go.uber.org/fx"

// Module exposes the provisioning bootstrapper via Fx.
var Module = fx.Options(
	fx.Provide(NewService),
)
