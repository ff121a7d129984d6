package models

import (
	"time"

	"github.com/lintasdata/enforcer/pkg/types"
)

// PrepaidPackage is a purchasable plan. Immutable from the enforcement
// core's perspective except that its rate limits propagate to the router.
type PrepaidPackage struct {
	ID             uint                 `gorm:"column:id;primaryKey;autoIncrement" json:"id"`
	Name           string               `gorm:"column:name;type:varchar(191);not null" json:"name"`
	ConnectionType types.ConnectionType `gorm:"column:connection_type;type:varchar(32);not null;default:pppoe" json:"connection_type"`
	// MikrotikProfileName applies to pppoe packages only.
	MikrotikProfileName string `gorm:"column:mikrotik_profile_name;type:varchar(191)" json:"mikrotik_profile_name"`
	// Parent queues apply to static_ip packages only.
	ParentDownloadQueue string `gorm:"column:parent_download_queue;type:varchar(191)" json:"parent_download_queue"`
	ParentUploadQueue   string `gorm:"column:parent_upload_queue;type:varchar(191)" json:"parent_upload_queue"`
	DownloadMbps        int    `gorm:"column:download_mbps;not null" json:"download_mbps"`
	UploadMbps          int    `gorm:"column:upload_mbps;not null" json:"upload_mbps"`
	DurationDays        int    `gorm:"column:duration_days;not null" json:"duration_days"`
	// DurationHours supplements DurationDays for sub-day trial packages.
	DurationHours int       `gorm:"column:duration_hours;not null;default:0" json:"duration_hours"`
	Price         int64     `gorm:"column:price;not null;default:0" json:"price"`
	IsActive      bool      `gorm:"column:is_active;not null;default:true" json:"is_active"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

func (PrepaidPackage) TableName() string {
	return "prepaid_packages"
}

// Duration is the package validity as a time.Duration.
func (p *PrepaidPackage) Duration() time.Duration {
	return time.Duration(p.DurationDays)*24*time.Hour + time.Duration(p.DurationHours)*time.Hour
}
