package provisioning

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/lintasdata/enforcer/internal/models"
	"github.com/lintasdata/enforcer/internal/platform/router"
	"github.com/lintasdata/enforcer/internal/platform/settings"
	"github.com/lintasdata/enforcer/pkg/config"
	"github.com/lintasdata/enforcer/pkg/logctx"
	"github.com/lintasdata/enforcer/pkg/metrics"
	"github.com/lintasdata/enforcer/pkg/types"
)

// ErrPartialProvisioning means setup created fewer objects than required.
// The error message carries counts so an operator can finish by hand.
var ErrPartialProvisioning = errors.New("provisioning incomplete")

// Comment markers identify every object this subsystem owns on the router.
// Reset and verification match on them, so they must stay stable.
const (
	commentMarker           = "prepaid-system"
	commentPlaceholder      = commentMarker + ": placeholder"
	commentPortalRedirect   = commentMarker + ": portal redirect"
	commentAllowActive      = commentMarker + ": allow active customers"
	commentAllowEstablished = commentMarker + ": allow established no-package"
	commentDropNoPackage    = commentMarker + ": drop no-package"
)

const (
	natPath     = "/ip/firewall/nat"
	filterPath  = "/ip/firewall/filter"
	profilePath = "/ppp/profile"
	listPath    = "/ip/firewall/address-list"
)

// Service is the one-shot, re-runnable bootstrapper that creates the router
// objects the reconciler depends on. Nothing here caches success: Status
// always re-derives readiness from the device.
type Service struct {
	cfg      *config.Config
	settings settings.Provider
	dial     router.Dialer
	log      *zap.SugaredLogger
	metrics  *metrics.Enforcer
}

func NewService(cfg *config.Config, sp settings.Provider, dial router.Dialer, log *zap.SugaredLogger, m *metrics.Enforcer) *Service {
	return &Service{cfg: cfg, settings: sp, dial: dial, log: log, metrics: m}
}

// SetupResult reports per-phase object counts from a Setup run.
type SetupResult struct {
	ListsEnsured    int `json:"lists_ensured"`
	ProfilesEnsured int `json:"profiles_ensured"`
	NATRules        int `json:"nat_rules"`
	FilterRules     int `json:"filter_rules"`
}

// Setup runs the full bootstrap: address lists, profiles, NAT redirect and
// filter rules. Safe to run repeatedly; existing objects are updated in
// place, never duplicated.
func (s *Service) Setup(ctx context.Context) (*SetupResult, error) {
	log := logctx.FromCtx(ctx, s.log)

	row, err := s.settings.Active(ctx)
	if err != nil {
		return nil, err
	}
	portalHost, portalPort, err := parsePortalURL(portalURL(row, s.cfg))
	if err != nil {
		return nil, err
	}

	conn, err := s.dial(ctx, settings.Target(row, s.cfg.Router.SetupTimeout))
	if err != nil {
		return nil, err
	}
	defer conn.Close()

	res := &SetupResult{}
	if res.ListsEnsured, err = s.ensureAddressLists(ctx, conn); err != nil {
		return res, err
	}
	if res.ProfilesEnsured, err = s.ensureProfiles(ctx, conn); err != nil {
		return res, err
	}
	if res.NATRules, err = s.ensureNATRules(ctx, conn, portalHost, portalPort); err != nil {
		return res, err
	}
	if res.FilterRules, err = s.ensureFilterRules(ctx, conn); err != nil {
		return res, err
	}
	log.Infow("provisioning complete",
		"lists", res.ListsEnsured, "profiles", res.ProfilesEnsured,
		"nat_rules", res.NATRules, "filter_rules", res.FilterRules)
	return res, nil
}

// StatusResult is readiness re-derived from the device alone.
type StatusResult struct {
	ProfilesReady bool `json:"profiles_ready"`
	NATReady      bool `json:"nat_ready"`
	FilterReady   bool `json:"filter_ready"`
	Ready         bool `json:"ready"`
}

// Status checks whether the router still carries everything enforcement
// needs. No local state is consulted; prior Setup success means nothing.
func (s *Service) Status(ctx context.Context) (*StatusResult, error) {
	row, err := s.settings.Active(ctx)
	if err != nil {
		return nil, err
	}
	conn, err := s.dial(ctx, settings.Target(row, s.cfg.Router.StatusTimeout))
	if err != nil {
		return nil, err
	}
	defer conn.Close()

	res := &StatusResult{ProfilesReady: true}
	for _, p := range expectedProfiles() {
		rows, err := conn.Run(ctx, profilePath+"/print", "?name="+p.name)
		if err != nil {
			return nil, fmt.Errorf("read profile %s: %w", p.name, err)
		}
		if len(rows) == 0 {
			res.ProfilesReady = false
		}
	}

	natRows, err := conn.Run(ctx, natPath+"/print")
	if err != nil {
		return nil, fmt.Errorf("read nat rules: %w", err)
	}
	res.NATReady = countByCommentPrefix(natRows, commentPortalRedirect) >= 2

	filterRows, err := conn.Run(ctx, filterPath+"/print")
	if err != nil {
		return nil, fmt.Errorf("read filter rules: %w", err)
	}
	res.FilterReady = countByCommentPrefix(filterRows, commentMarker) >= 2

	res.Ready = res.ProfilesReady && res.NATReady && res.FilterReady
	return res, nil
}

// ResetResult counts the objects removed by Reset.
type ResetResult struct {
	NATRules    int `json:"nat_rules"`
	FilterRules int `json:"filter_rules"`
	ListEntries int `json:"list_entries"`
}

// Reset removes every NAT rule, filter rule and address-list entry whose
// comment or list name marks it as this subsystem's, fully undoing Setup.
func (s *Service) Reset(ctx context.Context) (*ResetResult, error) {
	row, err := s.settings.Active(ctx)
	if err != nil {
		return nil, err
	}
	conn, err := s.dial(ctx, settings.Target(row, s.cfg.Router.SetupTimeout))
	if err != nil {
		return nil, err
	}
	defer conn.Close()

	res := &ResetResult{}
	if res.NATRules, err = s.removeByComment(ctx, conn, natPath, commentMarker); err != nil {
		return res, err
	}
	if res.FilterRules, err = s.removeByComment(ctx, conn, filterPath, commentMarker); err != nil {
		return res, err
	}

	for _, list := range []string{types.AddressListActive, types.AddressListNoPackage} {
		entries, err := conn.Run(ctx, listPath+"/print", "?list="+list)
		if err != nil {
			return res, fmt.Errorf("read list %s: %w", list, err)
		}
		for _, e := range entries {
			if _, err := conn.Run(ctx, listPath+"/remove", "=.id="+e[".id"]); err != nil {
				return res, fmt.Errorf("remove list entry %s: %w", e["address"], err)
			}
			res.ListEntries++
		}
	}
	return res, nil
}

// TestConnection dials the device and reads its identity.
func (s *Service) TestConnection(ctx context.Context) (string, error) {
	row, err := s.settings.Active(ctx)
	if err != nil {
		return "", err
	}
	conn, err := s.dial(ctx, settings.Target(row, s.cfg.Router.StatusTimeout))
	if err != nil {
		return "", err
	}
	defer conn.Close()

	rows, err := conn.Run(ctx, "/system/identity/print")
	if err != nil {
		return "", fmt.Errorf("read identity: %w", err)
	}
	if len(rows) == 0 {
		return "", nil
	}
	return rows[0]["name"], nil
}

func (s *Service) removeByComment(ctx context.Context, conn router.Conn, path, prefix string) (int, error) {
	rows, err := conn.Run(ctx, path+"/print")
	if err != nil {
		return 0, fmt.Errorf("read %s: %w", path, err)
	}
	removed := 0
	for _, r := range rows {
		if !strings.HasPrefix(r["comment"], prefix) {
			continue
		}
		if _, err := conn.Run(ctx, path+"/remove", "=.id="+r[".id"]); err != nil {
			return removed, fmt.Errorf("remove rule %s: %w", r[".id"], err)
		}
		removed++
	}
	return removed, nil
}

func countByCommentPrefix(rows []map[string]string, prefix string) int {
	n := 0
	for _, r := range rows {
		if strings.HasPrefix(r["comment"], prefix) {
			n++
		}
	}
	return n
}

func portalURL(row *models.MikrotikSettings, cfg *config.Config) string {
	if row.PortalURL != "" {
		return row.PortalURL
	}
	return cfg.Portal.URL
}
