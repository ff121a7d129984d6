package scheduler

import (
	"context"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"

	"github.com/lintasdata/enforcer/internal/app/service/notifier"
	"github.com/lintasdata/enforcer/internal/app/service/subscription"
	"github.com/lintasdata/enforcer/internal/models"
	"github.com/lintasdata/enforcer/pkg/config"
	"github.com/lintasdata/enforcer/pkg/logctx"
	"github.com/lintasdata/enforcer/pkg/metrics"
	"github.com/lintasdata/enforcer/pkg/types"
)

// StateMachine is the slice of the subscription service the scheduler
// drives expiries through.
type StateMachine interface {
	Deactivate(ctx context.Context, subscriptionID uint, reason types.DeactivationReason) (*subscription.ActivationResult, error)
}

// Enforcer re-applies the active state for customers stuck redirected.
type Enforcer interface {
	Enforce(ctx context.Context, customer *models.Customer, sub *models.Subscription, pkg *models.PrepaidPackage) types.EnforceResult
}

// Driver is the periodic heartbeat of the enforcement core. A single
// logical timer; ticks are serialized by a re-entrancy guard, never by
// locking, so a slow router makes ticks sparse rather than overlapping.
type Driver struct {
	cfg      *config.Config
	db       *gorm.DB
	log      *zap.SugaredLogger
	sm       StateMachine
	enforcer Enforcer
	notify   notifier.Notifier
	metrics  *metrics.Enforcer

	running atomic.Bool
}

func NewDriver(cfg *config.Config, db *gorm.DB, log *zap.SugaredLogger, sm StateMachine, enforcer Enforcer, notify notifier.Notifier, m *metrics.Enforcer) *Driver {
	return &Driver{cfg: cfg, db: db, log: log, sm: sm, enforcer: enforcer, notify: notify, metrics: m}
}

// TickResult summarizes one scheduler pass.
type TickResult struct {
	Skipped        bool `json:"skipped"`
	Expired        int  `json:"expired"`
	ExpireFailures int  `json:"expire_failures"`
	Reminded       int  `json:"reminded"`
	Repaired       int  `json:"repaired"`
}

// RunOnce executes one tick: expire overdue subscriptions, send expiry
// reminders, repair customers whose isolation flag disagrees with their
// active subscription. A tick already in flight makes this a no-op.
func (d *Driver) RunOnce(ctx context.Context) (*TickResult, error) {
	if !d.running.CompareAndSwap(false, true) {
		d.metrics.SchedulerRuns.WithLabelValues("skipped").Inc()
		return &TickResult{Skipped: true}, nil
	}
	defer d.running.Store(false)

	log := logctx.FromCtx(ctx, d.log)
	start := time.Now()
	res := &TickResult{}

	d.expireOverdue(ctx, res)
	d.sendReminders(ctx, res)
	d.repairIsolation(ctx, res)

	outcome := "ok"
	if res.ExpireFailures > 0 {
		outcome = "error"
	}
	d.metrics.SchedulerRuns.WithLabelValues(outcome).Inc()
	log.Infow("scheduler tick finished",
		"elapsed_ms", time.Since(start).Milliseconds(),
		"expired", res.Expired, "expire_failures", res.ExpireFailures,
		"reminded", res.Reminded, "repaired", res.Repaired)
	return res, nil
}

// expireOverdue deactivates every active subscription past its expiry.
// Independent customers run concurrently through a bounded pool; one
// customer's failure never aborts the batch.
func (d *Driver) expireOverdue(ctx context.Context, res *TickResult) {
	log := logctx.FromCtx(ctx, d.log)

	var overdue []models.Subscription
	err := d.db.WithContext(ctx).
		Where("status = ? AND expiry_date < ?", types.SubscriptionStatusActive, time.Now()).
		Find(&overdue).Error
	if err != nil {
		log.Errorw("scheduler: cannot query overdue subscriptions", "err", err)
		return
	}
	if len(overdue) == 0 {
		return
	}

	workers := d.cfg.Scheduler.Workers
	if workers <= 0 {
		workers = 6
	}
	var expired, failed atomic.Int64
	g, gctx := errgroup.WithContext(context.WithoutCancel(ctx))
	g.SetLimit(workers)
	for _, sub := range overdue {
		g.Go(func() error {
			_, err := d.sm.Deactivate(gctx, sub.ID, types.DeactivationReasonExpired)
			if err != nil {
				failed.Add(1)
				d.metrics.ExpiredProcessed.WithLabelValues("error").Inc()
				log.Errorw("scheduler: deactivation failed",
					"subscription_id", sub.ID, "customer_id", sub.CustomerID, "err", err)
				return nil
			}
			expired.Add(1)
			d.metrics.ExpiredProcessed.WithLabelValues("ok").Inc()
			return nil
		})
	}
	_ = g.Wait()
	res.Expired = int(expired.Load())
	res.ExpireFailures = int(failed.Load())
}

// sendReminders notifies subscriptions expiring within the lookahead
// window, at most once per subscription per day.
func (d *Driver) sendReminders(ctx context.Context, res *TickResult) {
	log := logctx.FromCtx(ctx, d.log)

	lookahead := d.cfg.Scheduler.Lookahead
	if lookahead <= 0 {
		lookahead = 48 * time.Hour
	}
	now := time.Now()
	startOfToday := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())

	var expiring []models.Subscription
	err := d.db.WithContext(ctx).
		Where("status = ? AND expiry_date > ? AND expiry_date < ?",
			types.SubscriptionStatusActive, now, now.Add(lookahead)).
		Where("last_notified_at IS NULL OR last_notified_at < ?", startOfToday).
		Find(&expiring).Error
	if err != nil {
		log.Errorw("scheduler: cannot query expiring subscriptions", "err", err)
		return
	}

	for _, sub := range expiring {
		daysLeft := int(time.Until(sub.ExpiryDate).Hours() / 24)
		d.notify.ExpiringSoon(ctx, sub.ID, daysLeft)
		if err := d.db.WithContext(ctx).Model(&sub).Update("last_notified_at", now).Error; err != nil {
			log.Warnw("scheduler: cannot stamp last_notified_at", "subscription_id", sub.ID, "err", err)
			continue
		}
		res.Reminded++
	}
}

// repairIsolation re-enforces customers still flagged redirected although
// they hold an unexpired active subscription, healing drift left behind by
// earlier router failures.
func (d *Driver) repairIsolation(ctx context.Context, res *TickResult) {
	log := logctx.FromCtx(ctx, d.log)

	var stuck []models.Subscription
	err := d.db.WithContext(ctx).
		Preload("Package").
		Joins("JOIN customers ON customers.id = customer_subscriptions.customer_id").
		Where("customer_subscriptions.status = ? AND customer_subscriptions.expiry_date > ?",
			types.SubscriptionStatusActive, time.Now()).
		Where("customers.is_isolated = ?", true).
		Find(&stuck).Error
	if err != nil {
		log.Errorw("scheduler: cannot query stuck customers", "err", err)
		return
	}

	for _, sub := range stuck {
		var customer models.Customer
		if err := d.db.WithContext(ctx).First(&customer, sub.CustomerID).Error; err != nil {
			log.Errorw("scheduler: cannot load stuck customer", "customer_id", sub.CustomerID, "err", err)
			continue
		}
		network := d.enforcer.Enforce(ctx, &customer, &sub, sub.Package)
		if !network.Success {
			log.Warnw("scheduler: repair attempt failed",
				"customer_id", customer.ID, "subscription_id", sub.ID, "network", network.Message)
			continue
		}
		err := d.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			if err := tx.Model(&customer).Update("is_isolated", false).Error; err != nil {
				return err
			}
			return tx.Model(&sub).Update("mikrotik_synced", true).Error
		})
		if err != nil {
			log.Warnw("scheduler: repair flag update failed", "customer_id", customer.ID, "err", err)
			continue
		}
		res.Repaired++
	}
}

// Run loops until ctx is cancelled. Interval comes from config; the
// re-entrancy guard in RunOnce keeps a slow tick from stacking.
func (d *Driver) Run(ctx context.Context) {
	interval := d.cfg.Scheduler.Interval
	if interval <= 0 {
		interval = time.Hour
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	d.log.Infow("scheduler started", "interval", interval)
	for {
		select {
		case <-ctx.Done():
			d.log.Infow("scheduler stopped")
			return
		case <-ticker.C:
			if _, err := d.RunOnce(ctx); err != nil {
				d.log.Errorw("scheduler tick failed", "err", err)
			}
		}
	}
}
