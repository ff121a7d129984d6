package enforcement

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/lintasdata/enforcer/internal/models"
	"github.com/lintasdata/enforcer/pkg/types"
)

func TestDesiredStatePPPoE(t *testing.T) {
	pkg := &models.PrepaidPackage{MikrotikProfileName: "prepaid-20mbps", DownloadMbps: 20, UploadMbps: 10}

	tests := []struct {
		name        string
		status      types.SubscriptionStatus
		pkg         *models.PrepaidPackage
		wantProfile string
	}{
		{"active uses package profile", types.SubscriptionStatusActive, pkg, "prepaid-20mbps"},
		{"active without profile name derives from rate", types.SubscriptionStatusActive,
			&models.PrepaidPackage{DownloadMbps: 50}, "prepaid-50mbps"},
		{"expired redirects", types.SubscriptionStatusExpired, pkg, types.ProfileNoPackage},
		{"cancelled redirects", types.SubscriptionStatusCancelled, pkg, types.ProfileNoPackage},
		{"paused redirects", types.SubscriptionStatusPaused, pkg, types.ProfileNoPackage},
		{"depleted redirects", types.SubscriptionStatusDepleted, pkg, types.ProfileNoPackage},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := DesiredState(types.ConnectionTypePPPoE, tt.status, tt.pkg, nil)
			assert.Equal(t, tt.wantProfile, got.Profile)
			// Redirected means profile swap, never a disabled secret.
			assert.False(t, got.Disabled)
			assert.Empty(t, got.AddressList)
			assert.Nil(t, got.Queue)
		})
	}
}

func TestDesiredStateStaticIP(t *testing.T) {
	pkg := &models.PrepaidPackage{
		ParentDownloadQueue: "DOWNLOAD-MAIN",
		ParentUploadQueue:   "UPLOAD-MAIN",
		DownloadMbps:        10,
		UploadMbps:          10,
	}

	got := DesiredState(types.ConnectionTypeStaticIP, types.SubscriptionStatusActive, pkg, nil)
	assert.Equal(t, types.AddressListActive, got.AddressList)
	if assert.NotNil(t, got.Queue) {
		assert.Equal(t, 10, got.Queue.DownloadMbps)
		assert.Equal(t, 10, got.Queue.UploadMbps)
		assert.Equal(t, "DOWNLOAD-MAIN", got.Queue.ParentDownload)
	}

	for _, status := range []types.SubscriptionStatus{
		types.SubscriptionStatusExpired,
		types.SubscriptionStatusCancelled,
		types.SubscriptionStatusPaused,
		types.SubscriptionStatusDepleted,
	} {
		got := DesiredState(types.ConnectionTypeStaticIP, status, pkg, nil)
		assert.Equal(t, types.AddressListNoPackage, got.AddressList, "status %s", status)
		assert.Nil(t, got.Queue, "status %s", status)
	}
}

func TestDesiredStateCustomOverridesBeatPackageRates(t *testing.T) {
	pkg := &models.PrepaidPackage{DownloadMbps: 10, UploadMbps: 10}
	sub := &models.Subscription{CustomDownloadMbps: 25, CustomUploadMbps: 0}

	got := DesiredState(types.ConnectionTypeStaticIP, types.SubscriptionStatusActive, pkg, sub)
	if assert.NotNil(t, got.Queue) {
		assert.Equal(t, 25, got.Queue.DownloadMbps)
		assert.Equal(t, 10, got.Queue.UploadMbps)
	}
}

func TestDesiredStateIsDeterministicAndDistinct(t *testing.T) {
	pkg := &models.PrepaidPackage{MikrotikProfileName: "prepaid-10mbps", DownloadMbps: 10, UploadMbps: 10}

	for _, ct := range []types.ConnectionType{types.ConnectionTypePPPoE, types.ConnectionTypeStaticIP} {
		active1 := DesiredState(ct, types.SubscriptionStatusActive, pkg, nil)
		active2 := DesiredState(ct, types.SubscriptionStatusActive, pkg, nil)
		assert.Equal(t, active1, active2)

		for _, status := range []types.SubscriptionStatus{
			types.SubscriptionStatusExpired,
			types.SubscriptionStatusCancelled,
			types.SubscriptionStatusDepleted,
		} {
			assert.NotEqual(t, active1, DesiredState(ct, status, pkg, nil), "%s/%s", ct, status)
		}
	}
}
