package ipresolver

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/lintasdata/enforcer/internal/models"
)

func newResolver(t *testing.T) (*Resolver, *gorm.DB) {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&models.StaticIPClient{}))
	require.NoError(t, db.Exec(`CREATE TABLE customer_details (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		customer_id INTEGER NOT NULL,
		ip_address TEXT NOT NULL DEFAULT ''
	)`).Error)
	return NewResolver(db, zap.NewNop().Sugar()), db
}

func TestCustomerIP(t *testing.T) {
	r, _ := newResolver(t)

	tests := []struct {
		name   string
		stored string
		want   string
	}{
		{"gateway host of /30", "10.0.0.1/30", "10.0.0.2"},
		{"customer host of /30", "10.0.0.2/30", "10.0.0.2"},
		{"second /30 block gateway", "192.168.5.5/30", "192.168.5.6"},
		{"second /30 block customer", "192.168.5.6/30", "192.168.5.6"},
		{"network base of /30 defaults to customer", "10.0.0.0/30", "10.0.0.2"},
		{"broadcast of /30 defaults to customer", "10.0.0.3/30", "10.0.0.2"},
		{"non-/30 prefix is stripped only", "172.16.0.9/24", "172.16.0.9"},
		{"/32 prefix is stripped only", "172.16.0.1/32", "172.16.0.1"},
		{"bare address passes through", "10.20.30.40", "10.20.30.40"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, r.CustomerIP(tt.stored))
		})
	}
}

func TestCustomerIPGatewayAndCustomerAgree(t *testing.T) {
	r, _ := newResolver(t)

	// Both halves of any /30 resolve to the same customer host.
	for _, base := range []string{"10.0.0.0", "10.0.0.4", "192.168.5.0"} {
		gw := r.CustomerIP(incLast(base, 1) + "/30")
		cust := r.CustomerIP(incLast(base, 2) + "/30")
		assert.Equal(t, cust, gw, "base %s", base)
		assert.Equal(t, incLast(base, 2), cust, "base %s", base)
	}
}

func incLast(ip string, n byte) string {
	var a, b, c, d byte
	fmt.Sscanf(ip, "%d.%d.%d.%d", &a, &b, &c, &d)
	return fmt.Sprintf("%d.%d.%d.%d", a, b, c, d+n)
}

func TestValidate(t *testing.T) {
	r, _ := newResolver(t)

	tests := []struct {
		name       string
		ip         string
		routerHost string
		wantErr    error
	}{
		{"plain customer ip", "10.0.0.2", "10.255.0.1", nil},
		{"last octet 1 is a gateway", "192.168.5.1", "10.255.0.1", ErrGatewayAddress},
		{"last octet 254 is a gateway", "192.168.5.254", "10.255.0.1", ErrGatewayAddress},
		{"router host itself", "10.255.0.7", "10.255.0.7", ErrGatewayAddress},
		{"garbage", "not-an-ip", "10.255.0.1", ErrInvalidIP},
		{"empty", "", "10.255.0.1", ErrInvalidIP},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := r.Validate(tt.ip, tt.routerHost)
			if tt.wantErr == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestResolvePrefersActiveRecord(t *testing.T) {
	r, db := newResolver(t)
	require.NoError(t, db.Create(&models.StaticIPClient{CustomerID: 7, IPAddress: "10.0.0.9/30", Status: "inactive"}).Error)
	require.NoError(t, db.Create(&models.StaticIPClient{CustomerID: 7, IPAddress: "10.0.0.5/30", Status: "active"}).Error)

	ip, err := r.Resolve(context.Background(), 7)
	require.NoError(t, err)
	assert.Equal(t, "10.0.0.6", ip)
}

func TestResolveFallsBackToNewestAnyStatus(t *testing.T) {
	r, db := newResolver(t)
	require.NoError(t, db.Create(&models.StaticIPClient{CustomerID: 7, IPAddress: "10.0.0.1/30", Status: "inactive"}).Error)
	require.NoError(t, db.Create(&models.StaticIPClient{CustomerID: 7, IPAddress: "10.0.0.5/30", Status: "suspended"}).Error)

	ip, err := r.Resolve(context.Background(), 7)
	require.NoError(t, err)
	assert.Equal(t, "10.0.0.6", ip)
}

func TestResolveFallsBackToCustomerDetail(t *testing.T) {
	r, db := newResolver(t)
	require.NoError(t, db.Exec(`INSERT INTO customer_details (customer_id, ip_address) VALUES (7, '172.16.4.2/30')`).Error)

	ip, err := r.Resolve(context.Background(), 7)
	require.NoError(t, err)
	assert.Equal(t, "172.16.4.2", ip)
}

func TestResolveNoIPFound(t *testing.T) {
	r, _ := newResolver(t)

	_, err := r.Resolve(context.Background(), 404)
	assert.ErrorIs(t, err, ErrNoIPFound)
}
