package models

import "time"

// PortalCustomer is the customer's self-service portal login, issued once
// on first migration to prepaid. The PIN is stored bcrypt-hashed; the clear
// PIN is returned to the operator exactly once.
type PortalCustomer struct {
	ID         uint       `gorm:"column:id;primaryKey;autoIncrement" json:"id"`
	CustomerID uint       `gorm:"column:customer_id;not null;uniqueIndex" json:"customer_id"`
	PortalID   string     `gorm:"column:portal_id;type:varchar(16);not null;uniqueIndex" json:"portal_id"`
	PINHash    string     `gorm:"column:pin_hash;type:varchar(128);not null" json:"-"`
	LastLogin  *time.Time `gorm:"column:last_login;default:null" json:"last_login"`
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
}

func (PortalCustomer) TableName() string {
	return "portal_customers"
}
