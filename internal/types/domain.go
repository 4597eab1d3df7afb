// Package types defines the domain model shared across the subscription
// service: the user record, the gateway-mirrored subscription/order/add-on
// resources, the subscription status enum, and the error taxonomy.
package types

import (
	"encoding/json"
	"time"
)

// PlanType selects one of the two configured gateway plans.
type PlanType int

const (
	PlanTypeService1 PlanType = 1
	PlanTypeService2 PlanType = 2
)

// Valid reports whether the plan type is one of the configured variants.
func (p PlanType) Valid() bool {
	return p == PlanTypeService1 || p == PlanTypeService2
}

// SubscriptionStatus is the closed set of lifecycle states the gateway
// reports for a subscription.
type SubscriptionStatus string

const (
	SubStatusCreated       SubscriptionStatus = "created"
	SubStatusAuthenticated SubscriptionStatus = "authenticated"
	SubStatusActivated     SubscriptionStatus = "activated"
	SubStatusCharged       SubscriptionStatus = "charged"
	SubStatusCompleted     SubscriptionStatus = "completed"
	SubStatusUpdated       SubscriptionStatus = "updated"
	SubStatusPending       SubscriptionStatus = "pending"
	SubStatusHalted        SubscriptionStatus = "halted"
	SubStatusPaused        SubscriptionStatus = "paused"
	SubStatusResumed       SubscriptionStatus = "resumed"
	SubStatusCancelled     SubscriptionStatus = "cancelled"
)

// StatusEffect is the result of classifying a reported status against the
// enabled flag: enable it, disable it, or leave it untouched.
type StatusEffect int

const (
	EffectUnknown StatusEffect = iota
	EffectActivate
	EffectDeactivate
)

// Effect classifies the status into the activate/deactivate buckets used by
// webhook reconciliation. Statuses outside both buckets (including "charged"
// and "created") leave the enabled flag untouched.
func (s SubscriptionStatus) Effect() StatusEffect {
	switch s {
	case SubStatusAuthenticated, SubStatusActivated, SubStatusUpdated, SubStatusResumed:
		return EffectActivate
	case SubStatusCompleted, SubStatusPending, SubStatusHalted, SubStatusCancelled, SubStatusPaused:
		return EffectDeactivate
	default:
		return EffectUnknown
	}
}

// Subscription mirrors the gateway's subscription resource as stored on the
// user record. The gateway is the source of truth; this copy is overwritten
// wholesale by create/update/cancel responses and by webhook events.
type Subscription struct {
	ID             string             `json:"id"`
	PlanID         string             `json:"plan_id"`
	Status         SubscriptionStatus `json:"status"`
	ShortURL       string             `json:"short_url"`
	CustomerNotify bool               `json:"customer_notify"`
	Quantity       int                `json:"quantity"`
	TotalCount     int                `json:"total_count"`
	PaidCount      int                `json:"paid_count"`
	StartAt        int64              `json:"start_at"`
	EndedAt        int64              `json:"ended_at,omitempty"`
	ChargeAt       int64              `json:"charge_at,omitempty"`
	CurrentStart   int64              `json:"current_start,omitempty"`
	CurrentEnd     int64              `json:"current_end,omitempty"`
	CreatedAt      int64              `json:"created_at,omitempty"`
}

// Order mirrors the gateway's order resource. One is created when pending
// dues must be collected before a cancellation can proceed. Amounts are in
// the currency's minor unit (paise).
type Order struct {
	ID         string            `json:"id"`
	Amount     int64             `json:"amount"`
	AmountPaid int64             `json:"amount_paid"`
	AmountDue  int64             `json:"amount_due"`
	Currency   string            `json:"currency"`
	Receipt    string            `json:"receipt,omitempty"`
	Status     string            `json:"status"`
	Notes      map[string]string `json:"notes,omitempty"`
	CreatedAt  int64             `json:"created_at,omitempty"`
}

// AddOnItem is the billable item attached to a subscription add-on.
// Amount is in the currency's minor unit.
type AddOnItem struct {
	Name        string `json:"name"`
	Amount      int64  `json:"amount"`
	Currency    string `json:"currency"`
	Description string `json:"description,omitempty"`
}

// AddOn mirrors the gateway's add-on resource appended to the user's
// add-on history after each successful add-on purchase.
type AddOn struct {
	ID             string    `json:"id"`
	Item           AddOnItem `json:"item"`
	Quantity       int       `json:"quantity"`
	SubscriptionID string    `json:"subscription_id"`
	CreatedAt      int64     `json:"created_at,omitempty"`
}

// UserRecord is one document in the users collection. The record pre-exists
// (created by the signup flow); this service only reads contact fields and
// owns the subscription_* fields.
//
// Invariants:
//   - SubscriptionID, when set, equals SubscriptionDetails.ID.
//   - SubscriptionEnabled is nil until the first classified status event.
//   - CancelRequestOrder holds at most one pending dues order (overwritten).
//   - AddOnsHistory only grows.
type UserRecord struct {
	UID     string `json:"uid"`
	Email   string `json:"email"`
	Phone   string `json:"phone"`

	SubscriptionDetails *Subscription `json:"subscriptionDetails,omitempty"`
	SubscriptionID      string        `json:"subscriptionId,omitempty"`
	SubscriptionEnabled *bool         `json:"subscriptionEnabled,omitempty"`
	CancelRequestOrder  *Order        `json:"subscriptionCancelRequestDetails,omitempty"`
	AddOnsHistory       AddOnHistory  `json:"subscriptionAddOnsHistory,omitempty"`
}

// HasSubscription reports whether the record carries a subscription with a
// non-empty gateway id.
func (u *UserRecord) HasSubscription() bool {
	return u.SubscriptionDetails != nil && u.SubscriptionDetails.ID != ""
}

// AddOnHistory is the append-only sequence of gateway add-on responses.
type AddOnHistory []AddOn

// GatewayEvent is the webhook envelope the gateway posts on subscription
// status changes. Only the subscription payload is consumed.
type GatewayEvent struct {
	Event   string              `json:"event"`
	Payload GatewayEventPayload `json:"payload"`
}

// GatewayEventPayload carries the subscription object of a webhook event.
type GatewayEventPayload struct {
	Subscription Subscription `json:"subscription"`
}

// WebhookDeadLetter is the message published to the dead-letter queue when
// webhook processing fails after the event has already been acknowledged.
type WebhookDeadLetter struct {
	EventID        string          `json:"event_id"`
	SubscriptionID string          `json:"subscription_id"`
	Status         string          `json:"status"`
	Reason         string          `json:"reason"`
	Payload        json.RawMessage `json:"payload,omitempty"`
	FailedAt       time.Time       `json:"failed_at"`
}
