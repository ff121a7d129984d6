package models

import "time"

// SpeedHistory records every rate-limit change applied for a customer, one
// row per activation or override.
type SpeedHistory struct {
	ID             uint      `gorm:"column:id;primaryKey;autoIncrement" json:"id"`
	CustomerID     uint      `gorm:"column:customer_id;not null;index" json:"customer_id"`
	SubscriptionID uint      `gorm:"column:subscription_id;not null" json:"subscription_id"`
	DownloadMbps   int       `gorm:"column:download_mbps;not null" json:"download_mbps"`
	UploadMbps     int       `gorm:"column:upload_mbps;not null" json:"upload_mbps"`
	Reason         string    `gorm:"column:reason;type:varchar(64)" json:"reason"`
	CreatedAt      time.Time `json:"created_at"`
}

func (SpeedHistory) TableName() string {
	return "speed_history"
}
