package models

import "time"

// MikrotikSettings holds the router connection parameters. The newest
// is_active row wins; the settings provider repairs the flag when no row
// is active.
type MikrotikSettings struct {
	ID       uint   `gorm:"column:id;primaryKey;autoIncrement" json:"id"`
	Host     string `gorm:"column:host;type:varchar(191);not null" json:"host"`
	Port     int    `gorm:"column:port;not null;default:8728" json:"port"`
	Username string `gorm:"column:username;type:varchar(191);not null" json:"username"`
	Password string `gorm:"column:password;type:varchar(191);not null" json:"-"`
	IsActive bool   `gorm:"column:is_active;not null;default:false;index" json:"is_active"`
	// PortalURL is where redirected customers land (NAT dst-nat target).
	PortalURL string    `gorm:"column:portal_url;type:varchar(255)" json:"portal_url"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (MikrotikSettings) TableName() string {
	return "mikrotik_settings"
}
