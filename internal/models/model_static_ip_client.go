package models

import "time"

// StaticIPClient maps a static-IP customer to their assigned subnet on the
// router. IPAddress is typically a /30 in CIDR form; the resolver derives
// the usable customer host from it.
type StaticIPClient struct {
	ID         uint      `gorm:"column:id;primaryKey;autoIncrement" json:"id"`
	CustomerID uint      `gorm:"column:customer_id;not null;index" json:"customer_id"`
	IPAddress  string    `gorm:"column:ip_address;type:varchar(64);not null" json:"ip_address"`
	Status     string    `gorm:"column:status;type:varchar(32);not null;default:active" json:"status"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

func (StaticIPClient) TableName() string {
	return "static_ip_clients"
}
