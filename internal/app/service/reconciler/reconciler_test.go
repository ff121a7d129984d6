package reconciler

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/lintasdata/enforcer/internal/app/service/ipresolver"
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

func newTestService(t *testing.T, dev *routertest.Device) (*Service, *gorm.DB) {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&models.StaticIPClient{}))

	cfg := &config.Config{}
	cfg.Router.VerifyDelay = 0

	log := zap.NewNop().Sugar()
	sp := staticSettings{row: models.MikrotikSettings{
		ID: 1, Host: "10.255.0.1", Port: 8728, Username: "api", Password: "x", IsActive: true,
	}}
	svc := NewService(cfg, sp, dev.Dialer(), ipresolver.NewResolver(db, log), log, metrics.NewEnforcer("reconciler_test"))
	return svc, db
}

func listEntries(dev *routertest.Device, list string) []string {
	var out []string
	for _, r := range dev.Rows("/ip/firewall/address-list") {
		if r["list"] == list {
			out = append(out, r["address"])
		}
	}
	return out
}

func TestEnforceStaticIPActivation(t *testing.T) {
	dev := &routertest.Device{}
	svc, db := newTestService(t, dev)
	require.NoError(t, db.Create(&models.StaticIPClient{CustomerID: 1, IPAddress: "10.0.0.1/30", Status: "active"}).Error)

	customer := &models.Customer{ID: 1, Name: "Budi Santoso", ConnectionType: types.ConnectionTypeStaticIP}
	pkg := &models.PrepaidPackage{
		ID: 1, ConnectionType: types.ConnectionTypeStaticIP,
		ParentDownloadQueue: "DOWNLOAD-MAIN", ParentUploadQueue: "UPLOAD-MAIN",
		DownloadMbps: 10, UploadMbps: 10,
	}
	sub := &models.Subscription{ID: 1, CustomerID: 1, PackageID: 1, Status: types.SubscriptionStatusActive}

	res := svc.Enforce(context.Background(), customer, sub, pkg)
	require.True(t, res.Success, res.Message)

	assert.Equal(t, []string{"10.0.0.2"}, listEntries(dev, types.AddressListActive))
	assert.Empty(t, listEntries(dev, types.AddressListNoPackage))

	queues := dev.Rows("/queue/tree")
	require.Len(t, queues, 2)
	byName := map[string]routertest.Row{}
	for _, q := range queues {
		byName[q["name"]] = q
	}
	dl := byName["Budi_Santoso_DOWNLOAD"]
	require.NotNil(t, dl)
	assert.Equal(t, "10M", dl["max-limit"])
	assert.Equal(t, "DOWNLOAD-MAIN", dl["parent"])
	assert.Equal(t, "pkt_10_0_0_2_download", dl["packet-mark"])
	ul := byName["Budi_Santoso_UPLOAD"]
	require.NotNil(t, ul)
	assert.Equal(t, "pkt_10_0_0_2_upload", ul["packet-mark"])
}

func TestEnforceStaticIPExpiry(t *testing.T) {
	dev := &routertest.Device{}
	svc, db := newTestService(t, dev)
	require.NoError(t, db.Create(&models.StaticIPClient{CustomerID: 1, IPAddress: "10.0.0.1/30", Status: "active"}).Error)
	dev.Seed("/ip/firewall/address-list", routertest.Row{"list": types.AddressListActive, "address": "10.0.0.2"})
	dev.Seed("/queue/tree", routertest.Row{"name": "Budi_Santoso_DOWNLOAD"})
	dev.Seed("/queue/tree", routertest.Row{"name": "Budi_Santoso_UPLOAD"})

	customer := &models.Customer{ID: 1, Name: "Budi Santoso", ConnectionType: types.ConnectionTypeStaticIP}
	sub := &models.Subscription{ID: 1, CustomerID: 1, Status: types.SubscriptionStatusExpired}

	res := svc.Enforce(context.Background(), customer, sub, nil)
	require.True(t, res.Success, res.Message)

	assert.Empty(t, listEntries(dev, types.AddressListActive))
	assert.Equal(t, []string{"10.0.0.2"}, listEntries(dev, types.AddressListNoPackage))
	assert.Empty(t, dev.Rows("/queue/tree"))
}

func TestApplyAddressListIdempotent(t *testing.T) {
	dev := &routertest.Device{}
	svc, _ := newTestService(t, dev)

	target := types.EnforcementTarget{AddressList: types.AddressListActive}
	for i := 0; i < 2; i++ {
		res := svc.ApplyAddressList(context.Background(), "10.0.0.2", target)
		require.True(t, res.Success, res.Message)
	}

	assert.Equal(t, []string{"10.0.0.2"}, listEntries(dev, types.AddressListActive))
	assert.Empty(t, listEntries(dev, types.AddressListNoPackage))
}

func TestApplyAddressListDetectsSilentlyDroppedWrite(t *testing.T) {
	dev := &routertest.Device{DropWrites: map[string]bool{"/ip/firewall/address-list/add": true}}
	svc, _ := newTestService(t, dev)

	res := svc.ApplyAddressList(context.Background(), "10.0.0.2", types.EnforcementTarget{AddressList: types.AddressListActive})
	require.False(t, res.Success)
	assert.Contains(t, res.Message, "after add")
}

func TestApplyAddressListRejectsGatewayIP(t *testing.T) {
	dev := &routertest.Device{}
	svc, _ := newTestService(t, dev)

	res := svc.ApplyAddressList(context.Background(), "192.168.5.1", types.EnforcementTarget{AddressList: types.AddressListActive})
	require.False(t, res.Success)
	assert.Empty(t, dev.Rows("/ip/firewall/address-list"))
}

func TestEnforcePPPoEActivation(t *testing.T) {
	dev := &routertest.Device{}
	svc, _ := newTestService(t, dev)
	dev.Seed("/ppp/secret", routertest.Row{"name": "budi@isp", "profile": "prepaid-no-package"})
	dev.Seed("/ppp/active", routertest.Row{"name": "budi@isp"})

	customer := &models.Customer{ID: 1, Name: "Budi", ConnectionType: types.ConnectionTypePPPoE, PPPoEUsername: "budi@isp"}
	pkg := &models.PrepaidPackage{ID: 1, MikrotikProfileName: "prepaid-20mbps", DownloadMbps: 20}
	sub := &models.Subscription{Status: types.SubscriptionStatusActive}

	res := svc.Enforce(context.Background(), customer, sub, pkg)
	require.True(t, res.Success, res.Message)

	secrets := dev.Rows("/ppp/secret")
	require.Len(t, secrets, 1)
	assert.Equal(t, "prepaid-20mbps", secrets[0]["profile"])
	assert.Equal(t, "no", secrets[0]["disabled"])
	assert.Empty(t, dev.Rows("/ppp/active"), "active session must be kicked")
}

func TestEnforcePPPoEDisconnectFailureSwallowed(t *testing.T) {
	dev := &routertest.Device{ErrOn: map[string]error{"/ppp/active/remove": fmt.Errorf("busy")}}
	svc, _ := newTestService(t, dev)
	dev.Seed("/ppp/secret", routertest.Row{"name": "budi@isp"})
	dev.Seed("/ppp/active", routertest.Row{"name": "budi@isp"})

	res := svc.ApplyPPPoE(context.Background(), "budi@isp", types.EnforcementTarget{Profile: "prepaid-10mbps"})
	assert.True(t, res.Success, res.Message)
}

func TestEnforcePPPoESecretMissing(t *testing.T) {
	dev := &routertest.Device{}
	svc, _ := newTestService(t, dev)

	res := svc.ApplyPPPoE(context.Background(), "ghost@isp", types.EnforcementTarget{Profile: "prepaid-10mbps"})
	require.False(t, res.Success)
	assert.Contains(t, res.Message, "not found")
}

func TestEnforceRouterUnreachable(t *testing.T) {
	dev := &routertest.Device{DialErr: fmt.Errorf("connection refused")}
	svc, _ := newTestService(t, dev)

	customer := &models.Customer{ID: 1, ConnectionType: types.ConnectionTypePPPoE, PPPoEUsername: "budi@isp"}
	res := svc.Enforce(context.Background(), customer, &models.Subscription{Status: types.SubscriptionStatusActive}, nil)
	require.False(t, res.Success)
	assert.Contains(t, res.Message, "router unavailable")
}

func TestQueueUpdateInPlace(t *testing.T) {
	dev := &routertest.Device{}
	svc, _ := newTestService(t, dev)
	dev.Seed("/queue/tree", routertest.Row{"name": "Budi_DOWNLOAD", "max-limit": "10M", "parent": "DOWNLOAD-MAIN"})
	dev.Seed("/queue/tree", routertest.Row{"name": "Budi_UPLOAD", "max-limit": "10M", "parent": "UPLOAD-MAIN"})

	res := svc.ApplyQueue(context.Background(), types.QueueSpec{
		CustomerName: "Budi", IP: "10.0.0.2",
		ParentDownload: "DOWNLOAD-MAIN", ParentUpload: "UPLOAD-MAIN",
		DownloadMbps: 50, UploadMbps: 25,
	})
	require.True(t, res.Success, res.Message)

	queues := dev.Rows("/queue/tree")
	require.Len(t, queues, 2, "update must not duplicate nodes")
	for _, q := range queues {
		switch q["name"] {
		case "Budi_DOWNLOAD":
			assert.Equal(t, "50M", q["max-limit"])
		case "Budi_UPLOAD":
			assert.Equal(t, "25M", q["max-limit"])
		}
	}
}
