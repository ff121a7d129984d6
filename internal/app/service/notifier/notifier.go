package notifier

import (
	"context"

	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Notifier triggers customer-facing events keyed by subscription id. Calls
// are fire-and-forget; the transport behind them is not this system's
// concern and errors never propagate into enforcement.
type Notifier interface {
	Activated(ctx context.Context, subscriptionID uint)
	ExpiringSoon(ctx context.Context, subscriptionID uint, daysLeft int)
	Expired(ctx context.Context, subscriptionID uint)
}

// LogNotifier is the default implementation: it records the event and
// leaves delivery to whatever tails the log stream.
type LogNotifier struct {
	log *zap.SugaredLogger
}

func NewLogNotifier(log *zap.SugaredLogger) *LogNotifier {
	return &LogNotifier{log: log}
}

func (n *LogNotifier) Activated(ctx context.Context, subscriptionID uint) {
	n.log.Infow("notify: subscription activated", "subscription_id", subscriptionID)
}

func (n *LogNotifier) ExpiringSoon(ctx context.Context, subscriptionID uint, daysLeft int) {
	n.log.Infow("notify: subscription expiring soon", "subscription_id", subscriptionID, "days_left", daysLeft)
}

func (n *LogNotifier) Expired(ctx context.Context, subscriptionID uint) {
	n.log.Infow("notify: subscription expired", "subscription_id", subscriptionID)
}

var Module = fx.Options(
	fx.Provide(
		NewLogNotifier,
		func(n *LogNotifier) Notifier { return n },
	),
)
