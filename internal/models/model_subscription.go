package models

import (
	"time"

	"github.com/lintasdata/enforcer/pkg/types"
)

// Subscription stores a customer's prepaid subscription.
// Use Valid() to determine whether the subscription is currently valid.
// Rows are never deleted; terminal rows are retained for audit and history.
type Subscription struct {
	ID             uint                     `gorm:"column:id;primaryKey;autoIncrement" json:"id"`
	CustomerID     uint                     `gorm:"column:customer_id;not null;index" json:"customer_id"`
	PackageID      uint                     `gorm:"column:package_id;not null" json:"package_id"`
	Status         types.SubscriptionStatus `gorm:"column:status;type:varchar(32);not null;index" json:"status"`
	ActivationDate time.Time                `gorm:"column:activation_date;not null" json:"activation_date"`
	ExpiryDate     time.Time                `gorm:"column:expiry_date;not null;index" json:"expiry_date"`
	// Custom rate overrides beat the package rates when non-zero.
	CustomDownloadMbps int `gorm:"column:custom_download_mbps;not null;default:0" json:"custom_download_mbps"`
	CustomUploadMbps   int `gorm:"column:custom_upload_mbps;not null;default:0" json:"custom_upload_mbps"`
	// MikrotikSynced records whether the last enforcement for this row
	// reached the router. The billing commit never depends on it.
	MikrotikSynced bool `gorm:"column:mikrotik_synced;not null;default:false" json:"mikrotik_synced"`
	// PausedAt is set while the subscription is paused; Resume uses it to
	// extend the expiry by the paused duration.
	PausedAt           *time.Time               `gorm:"column:paused_at;default:null" json:"paused_at"`
	DeactivationReason types.DeactivationReason `gorm:"column:deactivation_reason;type:varchar(32)" json:"deactivation_reason"`
	// LastNotifiedAt stamps the most recent expiry reminder.
	LastNotifiedAt *time.Time `gorm:"column:last_notified_at;default:null" json:"last_notified_at"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`

	Package  *PrepaidPackage `gorm:"foreignKey:PackageID" json:"package,omitempty"`
	Customer *Customer       `gorm:"foreignKey:CustomerID" json:"customer,omitempty"`
}

func (Subscription) TableName() string {
	return "customer_subscriptions"
}

func (s *Subscription) Valid() bool {
	return s != nil &&
		s.Status == types.SubscriptionStatusActive &&
		s.ExpiryDate.After(time.Now())
}

// DownloadMbps returns the effective download rate for enforcement.
func (s *Subscription) DownloadMbps() int {
	if s.CustomDownloadMbps > 0 {
		return s.CustomDownloadMbps
	}
	if s.Package != nil {
		return s.Package.DownloadMbps
	}
	return 0
}

// UploadMbps returns the effective upload rate for enforcement.
func (s *Subscription) UploadMbps() int {
	if s.CustomUploadMbps > 0 {
		return s.CustomUploadMbps
	}
	if s.Package != nil {
		return s.Package.UploadMbps
	}
	return 0
}
