package settings

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/lintasdata/enforcer/internal/models"
	"github.com/lintasdata/enforcer/internal/platform/router"
)

// ErrNotConfigured means no usable mikrotik_settings row exists. Callers
// must fail fast without dialing.
var ErrNotConfigured = errors.New("mikrotik settings not configured")

// Provider returns the router connection settings every enforcement
// operation starts from.
type Provider interface {
	Active(ctx context.Context) (*models.MikrotikSettings, error)
}

type GormProvider struct {
	db  *gorm.DB
	log *zap.SugaredLogger
}

func NewProvider(db *gorm.DB, log *zap.SugaredLogger) *GormProvider {
	return &GormProvider{db: db, log: log}
}

// Active returns the newest active settings row. When rows exist but none
// is flagged active, the newest row is activated in place and returned;
// the repair is logged so operators notice the drift.
func (p *GormProvider) Active(ctx context.Context) (*models.MikrotikSettings, error) {
	var s models.MikrotikSettings
	err := p.db.WithContext(ctx).
		Where("is_active = ?", true).
		Order("id DESC").
		First(&s).Error
	if err == nil {
		if err := validate(&s); err != nil {
			return nil, err
		}
		return &s, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("load mikrotik settings: %w", err)
	}

	// No active row. Repair by activating the newest one, if any.
	err = p.db.WithContext(ctx).Order("id DESC").First(&s).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotConfigured
	}
	if err != nil {
		return nil, fmt.Errorf("load mikrotik settings: %w", err)
	}
	if err := p.db.WithContext(ctx).Model(&s).Update("is_active", true).Error; err != nil {
		return nil, fmt.Errorf("activate mikrotik settings %d: %w", s.ID, err)
	}
	s.IsActive = true
	p.log.Warnw("no active mikrotik settings; activated newest row", "settings_id", s.ID, "host", s.Host)
	if err := validate(&s); err != nil {
		return nil, err
	}
	return &s, nil
}

func validate(s *models.MikrotikSettings) error {
	if s.Host == "" || s.Username == "" || s.Password == "" {
		return fmt.Errorf("%w: settings row %d has empty host or credentials", ErrNotConfigured, s.ID)
	}
	return nil
}

// Target converts a settings row into a dialable router target.
func Target(s *models.MikrotikSettings, dialTimeout time.Duration) router.Target {
	return router.Target{
		Host:        s.Host,
		Port:        s.Port,
		Username:    s.Username,
		Password:    s.Password,
		DialTimeout: dialTimeout,
	}
}

var Module = fx.Options(
	fx.Provide(
		NewProvider,
		func(p *GormProvider) Provider { return p },
	),
)
