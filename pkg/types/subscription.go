package types

type SubscriptionStatus string

const (
	SubscriptionStatusActive    SubscriptionStatus = "active"
	SubscriptionStatusPaused    SubscriptionStatus = "paused"
	SubscriptionStatusCancelled SubscriptionStatus = "cancelled"
	SubscriptionStatusExpired   SubscriptionStatus = "expired"
	SubscriptionStatusDepleted  SubscriptionStatus = "depleted"
	SubscriptionStatusReplaced  SubscriptionStatus = "replaced"
)

// Terminal reports whether the status is final. A new active subscription is
// always created fresh; a terminal one is never resumed.
func (s SubscriptionStatus) Terminal() bool {
	switch s {
	case SubscriptionStatusCancelled, SubscriptionStatusExpired,
		SubscriptionStatusDepleted, SubscriptionStatusReplaced:
		return true
	}
	return false
}

type ConnectionType string

const (
	ConnectionTypePPPoE    ConnectionType = "pppoe"
	ConnectionTypeStaticIP ConnectionType = "static_ip"
)

type BillingMode string

const (
	BillingModePostpaid BillingMode = "postpaid"
	BillingModePrepaid  BillingMode = "prepaid"
)

// SubscriptionChangeReason labels a subscription_log row.
type SubscriptionChangeReason string

const (
	ChangeReasonActivated SubscriptionChangeReason = "activated"
	ChangeReasonReplaced  SubscriptionChangeReason = "replaced"
	ChangeReasonExpired   SubscriptionChangeReason = "expired"
	ChangeReasonCancelled SubscriptionChangeReason = "cancelled"
	ChangeReasonDepleted  SubscriptionChangeReason = "depleted"
	ChangeReasonPaused    SubscriptionChangeReason = "paused"
	ChangeReasonResumed   SubscriptionChangeReason = "resumed"
)

type DeactivationReason string

const (
	DeactivationReasonExpired   DeactivationReason = "expired"
	DeactivationReasonDepleted  DeactivationReason = "depleted"
	DeactivationReasonCancelled DeactivationReason = "cancelled"
	DeactivationReasonPaused    DeactivationReason = "paused"
)
