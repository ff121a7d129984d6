package models

import (
	"time"

	"github.com/lintasdata/enforcer/pkg/types"
)

// MigrationHistory is an append-only record of billing-mode transitions.
// Rows are only ever inserted.
type MigrationHistory struct {
	ID         uint              `gorm:"column:id;primaryKey;autoIncrement" json:"id"`
	CustomerID uint              `gorm:"column:customer_id;not null;index" json:"customer_id"`
	FromMode   types.BillingMode `gorm:"column:from_mode;type:varchar(32);not null" json:"from_mode"`
	ToMode     types.BillingMode `gorm:"column:to_mode;type:varchar(32);not null" json:"to_mode"`
	// PortalCredentialsIssued marks whether this migration created the
	// customer's portal login.
	PortalCredentialsIssued bool `gorm:"column:portal_credentials_issued;not null;default:false" json:"portal_credentials_issued"`
	// AdminID identifies the operator who triggered the migration.
	AdminID   uint      `gorm:"column:admin_id;not null;default:0" json:"admin_id"`
	Notes     string    `gorm:"column:notes;type:varchar(255)" json:"notes"`
	CreatedAt time.Time `json:"created_at"`
}

func (MigrationHistory) TableName() string {
	return "migration_history"
}
