package migration

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/lintasdata/enforcer/internal/models"
	"github.com/lintasdata/enforcer/pkg/config"
	"github.com/lintasdata/enforcer/pkg/logctx"
	"github.com/lintasdata/enforcer/pkg/tool"
	"github.com/lintasdata/enforcer/pkg/types"
)

// ErrCustomerNotFound rejects a migration before anything is written.
var ErrCustomerNotFound = errors.New("customer not found")

// NetworkEnforcer is the slice of the reconciler migrations need. Enforce
// pushes the prepaid no-package state; Release undoes prepaid enforcement
// when the customer goes back to postpaid.
type NetworkEnforcer interface {
	Enforce(ctx context.Context, customer *models.Customer, sub *models.Subscription, pkg *models.PrepaidPackage) types.EnforceResult
	Release(ctx context.Context, customer *models.Customer) types.EnforceResult
}

// Service performs customer-level billing-mode transitions. The subscription
// state machine handles per-subscription transitions; this service handles
// the postpaid/prepaid switch, portal credential issuance and the
// append-only migration history.
type Service struct {
	cfg      *config.Config
	db       *gorm.DB
	log      *zap.SugaredLogger
	enforcer NetworkEnforcer
}

func NewService(cfg *config.Config, db *gorm.DB, log *zap.SugaredLogger, enforcer NetworkEnforcer) *Service {
	return &Service{cfg: cfg, db: db, log: log, enforcer: enforcer}
}

// Result reports a migration's outcome. PIN carries the clear portal PIN
// exactly once, on the migration that issued the credentials; it is never
// recoverable afterwards.
type Result struct {
	CustomerID        uint                `json:"customer_id"`
	AlreadyMigrated   bool                `json:"already_migrated"`
	CredentialsIssued bool                `json:"credentials_issued"`
	PortalID          string              `json:"portal_id,omitempty"`
	PIN               string              `json:"pin,omitempty"`
	Network           types.EnforceResult `json:"network"`
}

// ToPrepaid switches a customer to prepaid billing. Idempotent: a customer
// already on prepaid with portal access gets a no-op result, not an error.
// First migration issues portal credentials; re-migrations never rotate
// them. The customer lands isolated (no package yet), so enforcement pushes
// the redirect state after the commit.
func (s *Service) ToPrepaid(ctx context.Context, customerID, adminID uint) (*Result, error) {
	log := logctx.FromCtx(ctx, s.log)

	customer, err := s.loadCustomer(ctx, customerID)
	if err != nil {
		return nil, err
	}

	var portal models.PortalCustomer
	hasPortal := true
	if err := s.db.WithContext(ctx).Where("customer_id = ?", customerID).First(&portal).Error; err != nil {
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("load portal customer: %w", err)
		}
		hasPortal = false
	}

	if customer.BillingMode == types.BillingModePrepaid && hasPortal {
		return &Result{
			CustomerID:      customerID,
			AlreadyMigrated: true,
			PortalID:        portal.PortalID,
			Network:         types.Ok("customer %d already on prepaid", customerID),
		}, nil
	}

	var portalID, pin string
	issued := false
	if !hasPortal {
		if portalID, err = tool.GeneratePortalID(); err != nil {
			return nil, err
		}
		if pin, err = tool.GeneratePIN(); err != nil {
			return nil, err
		}
		issued = true
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&models.Subscription{}).
			Where("customer_id = ? AND status = ?", customerID, types.SubscriptionStatusActive).
			Updates(map[string]any{
				"status":              types.SubscriptionStatusCancelled,
				"deactivation_reason": types.DeactivationReasonCancelled,
			}).Error; err != nil {
			return fmt.Errorf("cancel active subscriptions: %w", err)
		}
		if err := tx.Model(customer).Updates(map[string]any{
			"billing_mode": types.BillingModePrepaid,
			"is_isolated":  true,
		}).Error; err != nil {
			return fmt.Errorf("update billing mode: %w", err)
		}
		if issued {
			hash, err := tool.HashPIN(pin)
			if err != nil {
				return err
			}
			if err := tx.Create(&models.PortalCustomer{
				CustomerID: customerID,
				PortalID:   portalID,
				PINHash:    hash,
			}).Error; err != nil {
				return fmt.Errorf("create portal credentials: %w", err)
			}
		}
		return tx.Create(&models.MigrationHistory{
			CustomerID:              customerID,
			FromMode:                types.BillingModePostpaid,
			ToMode:                  types.BillingModePrepaid,
			PortalCredentialsIssued: issued,
			AdminID:                 adminID,
		}).Error
	})
	if err != nil {
		return nil, err
	}
	customer.BillingMode = types.BillingModePrepaid
	customer.IsIsolated = true

	network := s.enforcer.Enforce(ctx, customer, nil, nil)
	if !network.Success {
		log.Errorw("migration committed but enforcement degraded",
			"customer_id", customerID, "network", network.Message)
	}
	res := &Result{
		CustomerID:        customerID,
		CredentialsIssued: issued,
		Network:           network,
	}
	if issued {
		res.PortalID = portalID
		res.PIN = pin
	} else {
		res.PortalID = portal.PortalID
	}
	return res, nil
}

// ToPostpaid is the inverse transition. Portal credentials are kept; only
// billing mode, subscriptions and router state change.
func (s *Service) ToPostpaid(ctx context.Context, customerID, adminID uint) (*Result, error) {
	log := logctx.FromCtx(ctx, s.log)

	customer, err := s.loadCustomer(ctx, customerID)
	if err != nil {
		return nil, err
	}
	if customer.BillingMode == types.BillingModePostpaid {
		return &Result{
			CustomerID:      customerID,
			AlreadyMigrated: true,
			Network:         types.Ok("customer %d already on postpaid", customerID),
		}, nil
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&models.Subscription{}).
			Where("customer_id = ? AND status = ?", customerID, types.SubscriptionStatusActive).
			Updates(map[string]any{
				"status":              types.SubscriptionStatusCancelled,
				"deactivation_reason": types.DeactivationReasonCancelled,
			}).Error; err != nil {
			return fmt.Errorf("cancel active subscriptions: %w", err)
		}
		if err := tx.Model(customer).Updates(map[string]any{
			"billing_mode": types.BillingModePostpaid,
			"is_isolated":  false,
		}).Error; err != nil {
			return fmt.Errorf("update billing mode: %w", err)
		}
		return tx.Create(&models.MigrationHistory{
			CustomerID: customerID,
			FromMode:   types.BillingModePrepaid,
			ToMode:     types.BillingModePostpaid,
			AdminID:    adminID,
		}).Error
	})
	if err != nil {
		return nil, err
	}
	customer.BillingMode = types.BillingModePostpaid
	customer.IsIsolated = false

	network := s.enforcer.Release(ctx, customer)
	if !network.Success {
		log.Errorw("migration committed but release degraded",
			"customer_id", customerID, "network", network.Message)
	}
	return &Result{CustomerID: customerID, Network: network}, nil
}

// History lists a customer's migrations, newest first.
func (s *Service) History(ctx context.Context, customerID uint) ([]models.MigrationHistory, error) {
	var rows []models.MigrationHistory
	err := s.db.WithContext(ctx).
		Where("customer_id = ?", customerID).
		Order("id DESC").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("load migration history: %w", err)
	}
	return rows, nil
}

func (s *Service) loadCustomer(ctx context.Context, customerID uint) (*models.Customer, error) {
	var customer models.Customer
	err := s.db.WithContext(ctx).First(&customer, customerID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: id %d", ErrCustomerNotFound, customerID)
	}
	if err != nil {
		return nil, fmt.Errorf("load customer: %w", err)
	}
	return &customer, nil
}
