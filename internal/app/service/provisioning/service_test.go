package provisioning

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/lintasdata/enforcer/internal/models"
	"github.com/lintasdata/enforcer/internal/platform/router/routertest"
	"github.com/lintasdata/enforcer/pkg/config"
	"github.com/lintasdata/enforcer/pkg/metrics"
	"github.com/lintasdata/enforcer/pkg/types"
)

type staticSettings struct {
	row models.MikrotikSettings
}

func (s staticSettings) Active(ctx context.Context) (*models.MikrotikSettings, error) {
	return &s.row, nil
}

func newTestService(t *testing.T, dev *routertest.Device) *Service {
	t.Helper()
	cfg := &config.Config{}
	cfg.Portal.URL = "http://portal.lintasdata.id:3000"
	sp := staticSettings{row: models.MikrotikSettings{
		ID: 1, Host: "10.255.0.1", Port: 8728, Username: "api", Password: "x", IsActive: true,
	}}
	return NewService(cfg, sp, dev.Dialer(), zap.NewNop().Sugar(), metrics.NewEnforcer("provisioning_test"))
}

func TestSetupFromScratch(t *testing.T) {
	dev := &routertest.Device{}
	svc := newTestService(t, dev)

	res, err := svc.Setup(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, res.ListsEnsured)
	assert.Equal(t, 5, res.ProfilesEnsured)
	assert.Equal(t, 2, res.NATRules)
	assert.Equal(t, 3, res.FilterRules)

	// Both lists carry the disabled placeholder.
	for _, list := range []string{types.AddressListActive, types.AddressListNoPackage} {
		found := false
		for _, e := range dev.Rows("/ip/firewall/address-list") {
			if e["list"] == list && e["address"] == "0.0.0.0" && e["disabled"] == "yes" {
				found = true
			}
		}
		assert.True(t, found, "placeholder for %s", list)
	}

	// NAT redirects point at the portal.
	nat := dev.Rows("/ip/firewall/nat")
	require.Len(t, nat, 2)
	for _, r := range nat {
		assert.Equal(t, "dstnat", r["chain"])
		assert.Equal(t, "portal.lintasdata.id", r["to-addresses"])
		assert.Equal(t, "3000", r["to-ports"])
	}

	// Filter rules in priority order: accepts before the drop.
	filter := dev.Rows("/ip/firewall/filter")
	require.Len(t, filter, 3)
	assert.Equal(t, "accept", filter[0]["action"])
	assert.Equal(t, types.AddressListActive, filter[0]["src-address-list"])
	assert.Equal(t, "accept", filter[1]["action"])
	assert.Equal(t, "established,related", filter[1]["connection-state"])
	assert.Equal(t, "drop", filter[2]["action"])
}

func TestSetupTwiceIsIdempotent(t *testing.T) {
	dev := &routertest.Device{}
	svc := newTestService(t, dev)

	first, err := svc.Setup(context.Background())
	require.NoError(t, err)
	counts1 := objectCounts(dev)

	second, err := svc.Setup(context.Background())
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.Equal(t, counts1, objectCounts(dev))
}

func objectCounts(dev *routertest.Device) map[string]int {
	out := map[string]int{}
	for _, path := range []string{"/ip/firewall/address-list", "/ppp/profile", "/ip/firewall/nat", "/ip/firewall/filter"} {
		out[path] = len(dev.Rows(path))
	}
	return out
}

func TestSetupUpdatesExistingNATRule(t *testing.T) {
	dev := &routertest.Device{}
	dev.Seed("/ip/firewall/nat", routertest.Row{
		"chain": "dstnat", "src-address-list": types.AddressListNoPackage,
		"dst-port": "80", "to-addresses": "10.9.9.9", "to-ports": "8080",
	})
	svc := newTestService(t, dev)

	_, err := svc.Setup(context.Background())
	require.NoError(t, err)

	nat := dev.Rows("/ip/firewall/nat")
	require.Len(t, nat, 2, "existing rule updated, not duplicated")
	for _, r := range nat {
		assert.Equal(t, "portal.lintasdata.id", r["to-addresses"])
	}
}

func TestSetupToleratesWriteErrorForAppliedRule(t *testing.T) {
	dev := &routertest.Device{
		ErrOnButApply: map[string]error{"/ip/firewall/filter/add": fmt.Errorf("timeout")},
	}
	svc := newTestService(t, dev)

	res, err := svc.Setup(context.Background())
	require.NoError(t, err, "rules were applied despite the reported error")
	assert.Equal(t, 3, res.FilterRules)
}

func TestSetupPartialFilterProvisioning(t *testing.T) {
	dev := &routertest.Device{
		DropWrites: map[string]bool{"/ip/firewall/filter/add": true},
	}
	svc := newTestService(t, dev)

	_, err := svc.Setup(context.Background())
	require.ErrorIs(t, err, ErrPartialProvisioning)
	assert.Contains(t, err.Error(), "0 of 3")
}

func TestStatusDerivesFromDeviceOnly(t *testing.T) {
	dev := &routertest.Device{}
	svc := newTestService(t, dev)

	status, err := svc.Status(context.Background())
	require.NoError(t, err)
	assert.False(t, status.Ready)

	_, err = svc.Setup(context.Background())
	require.NoError(t, err)

	status, err = svc.Status(context.Background())
	require.NoError(t, err)
	assert.True(t, status.ProfilesReady)
	assert.True(t, status.NATReady)
	assert.True(t, status.FilterReady)
	assert.True(t, status.Ready)
}

func TestResetUndoesSetup(t *testing.T) {
	dev := &routertest.Device{}
	// A foreign rule that must survive the reset.
	dev.Seed("/ip/firewall/filter", routertest.Row{"chain": "forward", "action": "accept", "comment": "office uplink"})
	svc := newTestService(t, dev)

	_, err := svc.Setup(context.Background())
	require.NoError(t, err)

	res, err := svc.Reset(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, res.NATRules)
	assert.Equal(t, 3, res.FilterRules)
	assert.Equal(t, 2, res.ListEntries)

	assert.Empty(t, dev.Rows("/ip/firewall/nat"))
	assert.Empty(t, dev.Rows("/ip/firewall/address-list"))
	filter := dev.Rows("/ip/firewall/filter")
	require.Len(t, filter, 1)
	assert.Equal(t, "office uplink", filter[0]["comment"])
}

func TestTestConnection(t *testing.T) {
	dev := &routertest.Device{}
	dev.Seed("/system/identity", routertest.Row{"name": "core-router-01"})
	svc := newTestService(t, dev)

	name, err := svc.TestConnection(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "core-router-01", name)
}

func TestParsePortalURL(t *testing.T) {
	tests := []struct {
		raw      string
		wantHost string
		wantPort string
		wantErr  bool
	}{
		{"http://portal.example.com:3000", "portal.example.com", "3000", false},
		{"https://portal.example.com", "portal.example.com", "443", false},
		{"http://portal.example.com", "portal.example.com", "80", false},
		{"portal.example.com", "portal.example.com", "3000", false},
		{"portal.example.com:8080", "portal.example.com", "8080", false},
		{"10.1.2.3:3000", "10.1.2.3", "3000", false},
		{"", "", "", true},
		{"   ", "", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			host, port, err := parsePortalURL(tt.raw)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantHost, host)
			assert.Equal(t, tt.wantPort, port)
		})
	}
}

func TestFilterRuleOrderAfterForeignRules(t *testing.T) {
	dev := &routertest.Device{}
	dev.Seed("/ip/firewall/filter", routertest.Row{"chain": "forward", "action": "drop", "comment": "blacklist"})
	svc := newTestService(t, dev)

	_, err := svc.Setup(context.Background())
	require.NoError(t, err)

	filter := dev.Rows("/ip/firewall/filter")
	require.Len(t, filter, 4)
	// Subsystem rules moved to the top, foreign rule pushed down.
	assert.True(t, strings.HasPrefix(filter[0]["comment"], commentMarker))
	assert.True(t, strings.HasPrefix(filter[1]["comment"], commentMarker))
	assert.True(t, strings.HasPrefix(filter[2]["comment"], commentMarker))
	assert.Equal(t, "blacklist", filter[3]["comment"])
	assert.Equal(t, "drop", filter[2]["action"], "drop rule stays last among subsystem rules")
}
