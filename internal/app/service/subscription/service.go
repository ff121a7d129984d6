package subscription

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/samber/lo"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/lintasdata/enforcer/internal/app/service/notifier"
	"github.com/lintasdata/enforcer/internal/models"
	"github.com/lintasdata/enforcer/pkg/config"
	"github.com/lintasdata/enforcer/pkg/logctx"
	"github.com/lintasdata/enforcer/pkg/types"
)

var (
	// ErrCustomerNotFound and ErrPackageNotFound reject an operation before
	// anything is written.
	ErrCustomerNotFound = errors.New("customer not found")
	ErrPackageNotFound  = errors.New("package not found")
	// ErrInvalidTransition means the subscription is not in a state the
	// requested operation can act on.
	ErrInvalidTransition = errors.New("invalid subscription transition")
)

// Enforcer pushes a committed billing state to the router. Satisfied by the
// reconciler service.
type Enforcer interface {
	Enforce(ctx context.Context, customer *models.Customer, sub *models.Subscription, pkg *models.PrepaidPackage) types.EnforceResult
}

// Service is the subscription state machine. Every transition commits in
// the billing store first and only then touches the router; a network
// failure degrades the result but never reverses the commit.
type Service struct {
	cfg      *config.Config
	db       *gorm.DB
	log      *zap.SugaredLogger
	enforcer Enforcer
	notify   notifier.Notifier
}

func NewService(cfg *config.Config, db *gorm.DB, log *zap.SugaredLogger, enforcer Enforcer, notify notifier.Notifier) *Service {
	return &Service{cfg: cfg, db: db, log: log, enforcer: enforcer, notify: notify}
}

type ActivateRequest struct {
	CustomerID         uint `json:"customer_id" binding:"required"`
	PackageID          uint `json:"package_id" binding:"required"`
	CustomDownloadMbps int  `json:"custom_download_mbps"`
	CustomUploadMbps   int  `json:"custom_upload_mbps"`
}

// ActivationResult separates the billing outcome from the network outcome,
// so an operator is never told an activation failed when the customer was
// in fact billed and only needs a manual network fix.
type ActivationResult struct {
	Subscription *models.Subscription `json:"subscription"`
	Network      types.EnforceResult  `json:"network"`
}

// Activate creates a fresh active subscription. Any prior active row is
// superseded to replaced inside the same transaction, keeping at most one
// active row per customer.
func (s *Service) Activate(ctx context.Context, req *ActivateRequest) (*ActivationResult, error) {
	log := logctx.FromCtx(ctx, s.log)

	var customer models.Customer
	if err := s.db.WithContext(ctx).First(&customer, req.CustomerID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: id %d", ErrCustomerNotFound, req.CustomerID)
		}
		return nil, fmt.Errorf("load customer: %w", err)
	}
	var pkg models.PrepaidPackage
	if err := s.db.WithContext(ctx).First(&pkg, req.PackageID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: id %d", ErrPackageNotFound, req.PackageID)
		}
		return nil, fmt.Errorf("load package: %w", err)
	}
	if !pkg.IsActive {
		return nil, fmt.Errorf("%w: package %d is disabled", ErrPackageNotFound, pkg.ID)
	}
	if pkg.ConnectionType != customer.ConnectionType {
		return nil, fmt.Errorf("package %d is for %s but customer %d is %s",
			pkg.ID, pkg.ConnectionType, customer.ID, customer.ConnectionType)
	}

	now := time.Now()
	sub := &models.Subscription{
		CustomerID:         customer.ID,
		PackageID:          pkg.ID,
		Status:             types.SubscriptionStatusActive,
		ActivationDate:     now,
		ExpiryDate:         now.Add(pkg.Duration()),
		CustomDownloadMbps: req.CustomDownloadMbps,
		CustomUploadMbps:   req.CustomUploadMbps,
	}
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&models.Subscription{}).
			Where("customer_id = ? AND status = ?", customer.ID, types.SubscriptionStatusActive).
			Updates(map[string]any{
				"status":              types.SubscriptionStatusReplaced,
				"deactivation_reason": types.DeactivationReasonCancelled,
			}).Error; err != nil {
			return fmt.Errorf("supersede active subscription: %w", err)
		}
		if err := tx.Create(sub).Error; err != nil {
			return fmt.Errorf("create subscription: %w", err)
		}
		if err := tx.Model(&customer).Updates(map[string]any{
			"status":       "active",
			"is_isolated":  false,
			"billing_mode": types.BillingModePrepaid,
		}).Error; err != nil {
			return fmt.Errorf("update customer: %w", err)
		}
		download, upload := effectiveRates(sub, &pkg)
		speed := &models.SpeedHistory{
			CustomerID:     customer.ID,
			SubscriptionID: sub.ID,
			DownloadMbps:   download,
			UploadMbps:     upload,
			Reason:         "activation",
		}
		if err := tx.Create(speed).Error; err != nil {
			return fmt.Errorf("append speed history: %w", err)
		}
		entry := models.NewSubscriptionLog(types.ChangeReasonActivated, nil, sub,
			map[string]any{"package_id": pkg.ID, "trigger": "api"})
		if err := tx.Create(entry).Error; err != nil {
			return fmt.Errorf("append subscription log: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	sub.Package = &pkg
	network := s.enforcer.Enforce(ctx, &customer, sub, &pkg)
	if network.Success {
		if err := s.db.WithContext(ctx).Model(sub).Update("mikrotik_synced", true).Error; err != nil {
			log.Warnw("activation: cannot flag mikrotik_synced", "subscription_id", sub.ID, "err", err)
		} else {
			sub.MikrotikSynced = true
		}
	} else {
		log.Errorw("activation committed but enforcement degraded",
			"subscription_id", sub.ID, "customer_id", customer.ID, "network", network.Message)
	}
	s.notify.Activated(ctx, sub.ID)
	return &ActivationResult{Subscription: sub, Network: network}, nil
}

// Deactivate moves a subscription to its terminal state and returns the
// customer to the redirected no-package state. Calling it twice is safe;
// the second call is a no-op.
func (s *Service) Deactivate(ctx context.Context, subscriptionID uint, reason types.DeactivationReason) (*ActivationResult, error) {
	log := logctx.FromCtx(ctx, s.log)

	sub, customer, err := s.loadWithCustomer(ctx, subscriptionID)
	if err != nil {
		return nil, err
	}
	if sub.Status.Terminal() {
		return &ActivationResult{
			Subscription: sub,
			Network:      types.Ok("subscription %d already %s", sub.ID, sub.Status),
		}, nil
	}

	status := types.SubscriptionStatusCancelled
	switch reason {
	case types.DeactivationReasonExpired:
		status = types.SubscriptionStatusExpired
	case types.DeactivationReasonDepleted:
		status = types.SubscriptionStatusDepleted
	}
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		before := *sub
		if err := tx.Model(sub).Updates(map[string]any{
			"status":              status,
			"deactivation_reason": reason,
		}).Error; err != nil {
			return fmt.Errorf("deactivate subscription: %w", err)
		}
		if err := tx.Model(customer).Updates(map[string]any{
			"status":      "suspended",
			"is_isolated": true,
		}).Error; err != nil {
			return fmt.Errorf("isolate customer: %w", err)
		}
		after := before
		after.Status = status
		after.DeactivationReason = reason
		entry := models.NewSubscriptionLog(types.SubscriptionChangeReason(status), &before, &after,
			map[string]any{"reason": string(reason)})
		return tx.Create(entry).Error
	})
	if err != nil {
		return nil, err
	}
	sub.Status = status
	customer.IsIsolated = true

	network := s.enforcer.Enforce(ctx, customer, sub, sub.Package)
	if !network.Success {
		log.Errorw("deactivation committed but enforcement degraded",
			"subscription_id", sub.ID, "customer_id", customer.ID, "network", network.Message)
	}
	s.notify.Expired(ctx, sub.ID)
	return &ActivationResult{Subscription: sub, Network: network}, nil
}

// Deplete is the quota-based terminal transition.
func (s *Service) Deplete(ctx context.Context, subscriptionID uint) (*ActivationResult, error) {
	return s.Deactivate(ctx, subscriptionID, types.DeactivationReasonDepleted)
}

// Pause suspends an active subscription without consuming its remaining
// time; Resume gives the paused duration back.
func (s *Service) Pause(ctx context.Context, subscriptionID uint) (*ActivationResult, error) {
	sub, customer, err := s.loadWithCustomer(ctx, subscriptionID)
	if err != nil {
		return nil, err
	}
	if sub.Status != types.SubscriptionStatusActive {
		return nil, fmt.Errorf("%w: cannot pause a %s subscription", ErrInvalidTransition, sub.Status)
	}

	now := time.Now()
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		before := *sub
		if err := tx.Model(sub).Updates(map[string]any{
			"status":    types.SubscriptionStatusPaused,
			"paused_at": now,
		}).Error; err != nil {
			return fmt.Errorf("pause subscription: %w", err)
		}
		if err := tx.Model(customer).Update("is_isolated", true).Error; err != nil {
			return err
		}
		after := before
		after.Status = types.SubscriptionStatusPaused
		after.PausedAt = lo.ToPtr(now)
		return tx.Create(models.NewSubscriptionLog(types.ChangeReasonPaused, &before, &after, nil)).Error
	})
	if err != nil {
		return nil, err
	}
	sub.Status = types.SubscriptionStatusPaused
	sub.PausedAt = lo.ToPtr(now)

	network := s.enforcer.Enforce(ctx, customer, sub, sub.Package)
	return &ActivationResult{Subscription: sub, Network: network}, nil
}

// Resume reactivates a paused subscription and extends expiry by the time
// spent paused.
func (s *Service) Resume(ctx context.Context, subscriptionID uint) (*ActivationResult, error) {
	sub, customer, err := s.loadWithCustomer(ctx, subscriptionID)
	if err != nil {
		return nil, err
	}
	if sub.Status != types.SubscriptionStatusPaused || sub.PausedAt == nil {
		return nil, fmt.Errorf("%w: cannot resume a %s subscription", ErrInvalidTransition, sub.Status)
	}

	newExpiry := sub.ExpiryDate.Add(time.Since(*sub.PausedAt))
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		before := *sub
		if err := tx.Model(sub).Updates(map[string]any{
			"status":      types.SubscriptionStatusActive,
			"expiry_date": newExpiry,
			"paused_at":   nil,
		}).Error; err != nil {
			return fmt.Errorf("resume subscription: %w", err)
		}
		if err := tx.Model(customer).Updates(map[string]any{
			"status":      "active",
			"is_isolated": false,
		}).Error; err != nil {
			return err
		}
		after := before
		after.Status = types.SubscriptionStatusActive
		after.ExpiryDate = newExpiry
		after.PausedAt = nil
		return tx.Create(models.NewSubscriptionLog(types.ChangeReasonResumed, &before, &after, nil)).Error
	})
	if err != nil {
		return nil, err
	}
	sub.Status = types.SubscriptionStatusActive
	sub.ExpiryDate = newExpiry
	sub.PausedAt = nil
	customer.IsIsolated = false

	network := s.enforcer.Enforce(ctx, customer, sub, sub.Package)
	return &ActivationResult{Subscription: sub, Network: network}, nil
}

// ActiveSubscription returns the customer's single active row, or nil.
func (s *Service) ActiveSubscription(ctx context.Context, customerID uint) (*models.Subscription, error) {
	var sub models.Subscription
	err := s.db.WithContext(ctx).
		Preload("Package").
		Where("customer_id = ? AND status = ?", customerID, types.SubscriptionStatusActive).
		Order("id DESC").
		First(&sub).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load active subscription: %w", err)
	}
	return &sub, nil
}

// History lists the customer's subscriptions, newest first.
func (s *Service) History(ctx context.Context, customerID uint, limit int) ([]models.Subscription, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	var subs []models.Subscription
	err := s.db.WithContext(ctx).
		Preload("Package").
		Where("customer_id = ?", customerID).
		Order("id DESC").
		Limit(limit).
		Find(&subs).Error
	if err != nil {
		return nil, fmt.Errorf("load subscription history: %w", err)
	}
	return subs, nil
}

func (s *Service) loadWithCustomer(ctx context.Context, subscriptionID uint) (*models.Subscription, *models.Customer, error) {
	var sub models.Subscription
	err := s.db.WithContext(ctx).Preload("Package").First(&sub, subscriptionID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil, fmt.Errorf("subscription %d not found", subscriptionID)
	}
	if err != nil {
		return nil, nil, fmt.Errorf("load subscription: %w", err)
	}
	var customer models.Customer
	if err := s.db.WithContext(ctx).First(&customer, sub.CustomerID).Error; err != nil {
		return nil, nil, fmt.Errorf("load customer %d: %w", sub.CustomerID, err)
	}
	return &sub, &customer, nil
}

func effectiveRates(sub *models.Subscription, pkg *models.PrepaidPackage) (download, upload int) {
	download, upload = pkg.DownloadMbps, pkg.UploadMbps
	if sub.CustomDownloadMbps > 0 {
		download = sub.CustomDownloadMbps
	}
	if sub.CustomUploadMbps > 0 {
		upload = sub.CustomUploadMbps
	}
	return download, upload
}
