package scheduler

import (
	"context"

	"go.uber.org/fx"

	"github.com/lintasdata/enforcer/internal/app/service/reconciler"
	"github.com/lintasdata/enforcer/internal/app/service/subscription"
)

// Module exposes the scheduler driver via Fx and ties its loop to the
// application lifecycle.
var Module = fx.Options(
	fx.Provide(
		NewDriver,
		func(s *subscription.Service) StateMachine { return s },
		func(r *reconciler.Service) Enforcer { return r },
	),
	fx.Invoke(registerLoop),
)

func registerLoop(lc fx.Lifecycle, d *Driver) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			go func() {
				defer close(done)
				d.Run(ctx)
			}()
			return nil
		},
		OnStop: func(stopCtx context.Context) error {
			cancel()
			select {
			case <-done:
				return nil
			case <-stopCtx.Done():
				return stopCtx.Err()
			}
		},
	})
}
