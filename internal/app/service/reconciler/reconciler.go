package reconciler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/lintasdata/enforcer/internal/app/service/enforcement"
	"github.com/lintasdata/enforcer/internal/app/service/ipresolver"
	"github.com/lintasdata/enforcer/internal/models"
	"github.com/lintasdata/enforcer/internal/platform/router"
	"github.com/lintasdata/enforcer/internal/platform/settings"
	"github.com/lintasdata/enforcer/pkg/config"
	"github.com/lintasdata/enforcer/pkg/logctx"
	"github.com/lintasdata/enforcer/pkg/metrics"
	"github.com/lintasdata/enforcer/pkg/types"
)

// ErrDeviceInconsistent means the device acknowledged a write but a
// verification read disagrees. Not retried automatically: retrying a
// possibly-applied add can itself create duplicates.
var ErrDeviceInconsistent = errors.New("device state inconsistent after write")

// Service drives the router to the desired state computed by the
// enforcement mapper. Every apply runs after the billing transaction has
// committed and never reverses it; failures come back as EnforceResult.
type Service struct {
	cfg      *config.Config
	settings settings.Provider
	dial     router.Dialer
	resolver *ipresolver.Resolver
	log      *zap.SugaredLogger
	metrics  *metrics.Enforcer
}

func NewService(cfg *config.Config, sp settings.Provider, dial router.Dialer, resolver *ipresolver.Resolver, log *zap.SugaredLogger, m *metrics.Enforcer) *Service {
	return &Service{cfg: cfg, settings: sp, dial: dial, resolver: resolver, log: log, metrics: m}
}

// connect loads the active settings and opens a short-lived session. The
// caller must Close the connection.
func (s *Service) connect(ctx context.Context) (router.Conn, *models.MikrotikSettings, error) {
	cfgRow, err := s.settings.Active(ctx)
	if err != nil {
		return nil, nil, err
	}
	conn, err := s.dial(ctx, settings.Target(cfgRow, s.cfg.Router.DialTimeout))
	if err != nil {
		s.metrics.DeviceErrors.WithLabelValues("dial").Inc()
		return nil, nil, err
	}
	return conn, cfgRow, nil
}

// Enforce resolves, maps and applies the full desired state for one
// customer. Connection-type specific work is delegated; the EnforceResult
// distinguishes network degradation from success for the operator.
func (s *Service) Enforce(ctx context.Context, customer *models.Customer, sub *models.Subscription, pkg *models.PrepaidPackage) types.EnforceResult {
	start := time.Now()
	status := types.SubscriptionStatusExpired
	if sub != nil {
		status = sub.Status
	}
	target := enforcement.DesiredState(customer.ConnectionType, status, pkg, sub)

	result := s.enforce(ctx, customer, target)
	outcome := "ok"
	if !result.Success {
		outcome = "failed"
	}
	s.metrics.EnforceDur.WithLabelValues(string(customer.ConnectionType), outcome).Observe(metrics.MillisecondsSince(start))
	return result
}

func (s *Service) enforce(ctx context.Context, customer *models.Customer, target types.EnforcementTarget) types.EnforceResult {
	log := logctx.FromCtx(ctx, s.log)

	conn, cfgRow, err := s.connect(ctx)
	if err != nil {
		log.Errorw("enforce: cannot reach router", "customer_id", customer.ID, "err", err)
		return types.Failed("router unavailable: %v", err)
	}
	defer conn.Close()

	if customer.ConnectionType == types.ConnectionTypePPPoE {
		if customer.PPPoEUsername == "" {
			return types.Failed("customer %d has no pppoe username", customer.ID)
		}
		return s.applyPPPoE(ctx, conn, customer.PPPoEUsername, target)
	}

	ip, err := s.resolver.Resolve(ctx, customer.ID)
	if err != nil {
		log.Errorw("enforce: ip resolution failed", "customer_id", customer.ID, "err", err)
		return types.Failed("resolve ip: %v", err)
	}
	if err := s.resolver.Validate(ip, cfgRow.Host); err != nil {
		log.Errorw("enforce: ip rejected", "customer_id", customer.ID, "ip", ip, "err", err)
		return types.Failed("ip %s rejected: %v", ip, err)
	}

	if res := s.applyAddressList(ctx, conn, ip, target.AddressList); !res.Success {
		return res
	}
	if target.Queue != nil {
		q := *target.Queue
		q.CustomerName = customer.Name
		q.IP = ip
		return s.applyQueue(ctx, conn, q)
	}
	if res := s.removeQueue(ctx, conn, customer.Name); !res.Success {
		// Queue removal is cleanup; the address-list move already landed.
		log.Warnw("enforce: queue removal failed", "customer_id", customer.ID, "msg", res.Message)
	}
	return types.Ok("customer %d moved to %s", customer.ID, target.AddressList)
}

// ApplyPPPoE applies a profile change to the named secret over its own
// connection.
func (s *Service) ApplyPPPoE(ctx context.Context, username string, target types.EnforcementTarget) types.EnforceResult {
	conn, _, err := s.connect(ctx)
	if err != nil {
		return types.Failed("router unavailable: %v", err)
	}
	defer conn.Close()
	return s.applyPPPoE(ctx, conn, username, target)
}

// ApplyAddressList moves an IP to the list named in target over its own
// connection.
func (s *Service) ApplyAddressList(ctx context.Context, ip string, target types.EnforcementTarget) types.EnforceResult {
	conn, cfgRow, err := s.connect(ctx)
	if err != nil {
		return types.Failed("router unavailable: %v", err)
	}
	defer conn.Close()
	if err := s.resolver.Validate(ip, cfgRow.Host); err != nil {
		return types.Failed("ip %s rejected: %v", ip, err)
	}
	return s.applyAddressList(ctx, conn, ip, target.AddressList)
}

// ApplyQueue creates or updates the customer's queue pair over its own
// connection.
func (s *Service) ApplyQueue(ctx context.Context, q types.QueueSpec) types.EnforceResult {
	conn, _, err := s.connect(ctx)
	if err != nil {
		return types.Failed("router unavailable: %v", err)
	}
	defer conn.Close()
	return s.applyQueue(ctx, conn, q)
}

// RemoveQueue deletes the customer's queue pair over its own connection.
func (s *Service) RemoveQueue(ctx context.Context, customerName string) types.EnforceResult {
	conn, _, err := s.connect(ctx)
	if err != nil {
		return types.Failed("router unavailable: %v", err)
	}
	defer conn.Close()
	return s.removeQueue(ctx, conn, customerName)
}

func mbps(n int) string {
	return fmt.Sprintf("%dM", n)
}
