package models

import (
	"time"

	"github.com/lintasdata/enforcer/pkg/types"
)

// Customer is the billing-store customer row. The enforcement core reads it
// and writes only billing_mode, status and is_isolated; everything else is
// owned by the billing layer.
type Customer struct {
	ID             uint                 `gorm:"column:id;primaryKey;autoIncrement" json:"id"`
	Name           string               `gorm:"column:name;type:varchar(191);not null" json:"name"`
	Phone          string               `gorm:"column:phone;type:varchar(32)" json:"phone"`
	ConnectionType types.ConnectionType `gorm:"column:connection_type;type:varchar(32);not null;default:pppoe" json:"connection_type"`
	// PPPoEUsername is required when ConnectionType is pppoe.
	PPPoEUsername string            `gorm:"column:pppoe_username;type:varchar(191);index" json:"pppoe_username"`
	BillingMode   types.BillingMode `gorm:"column:billing_mode;type:varchar(32);not null;default:postpaid" json:"billing_mode"`
	// Status is the billing-layer account status (active, suspended, ...).
	Status string `gorm:"column:status;type:varchar(32);not null;default:active" json:"status"`
	// IsIsolated tracks the intended redirect state on the router: true means
	// the customer should be in the no-package list / profile.
	IsIsolated bool      `gorm:"column:is_isolated;not null;default:false" json:"is_isolated"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

func (Customer) TableName() string {
	return "customers"
}

func (c *Customer) IsPPPoE() bool {
	return c != nil && c.ConnectionType == types.ConnectionTypePPPoE
}
