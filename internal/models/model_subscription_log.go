package models

import (
	"time"

	"gorm.io/datatypes"

	"github.com/lintasdata/enforcer/pkg/types"
)

// SubscriptionLog records changes to customer subscriptions.
// Use case: troubleshooting drift between billing and the router.
type SubscriptionLog struct {
	ID             uint `gorm:"column:id;primaryKey;autoIncrement" json:"id"`
	CustomerID     uint `gorm:"column:customer_id;not null;index:idx_sub_log_customer" json:"customer_id"`
	SubscriptionID uint `gorm:"column:subscription_id;not null;index" json:"subscription_id"`
	// Reason is the change reason.
	Reason types.SubscriptionChangeReason `gorm:"column:reason;type:varchar(32);not null" json:"reason"`
	// Before stores subscription data before the change in JSON format.
	Before datatypes.JSONType[*Subscription] `gorm:"column:before;type:json" json:"before"`
	// After stores subscription data after the change in JSON format.
	After datatypes.JSONType[*Subscription] `gorm:"column:after;type:json" json:"after"`
	// Extra stores additional context such as the trigger source.
	Extra     datatypes.JSONMap `gorm:"column:extra;type:json" json:"extra"`
	CreatedAt time.Time         `json:"created_at"`
}

func (SubscriptionLog) TableName() string {
	return "subscription_log"
}

// NewSubscriptionLog snapshots a transition. Pass nil for before when the
// row is freshly created.
func NewSubscriptionLog(reason types.SubscriptionChangeReason, before, after *Subscription, extra map[string]any) *SubscriptionLog {
	l := &SubscriptionLog{
		Reason: reason,
		Before: datatypes.NewJSONType(before),
		After:  datatypes.NewJSONType(after),
		Extra:  datatypes.JSONMap(extra),
	}
	if after != nil {
		l.CustomerID = after.CustomerID
		l.SubscriptionID = after.ID
	} else if before != nil {
		l.CustomerID = before.CustomerID
		l.SubscriptionID = before.ID
	}
	return l
}
