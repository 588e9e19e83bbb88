package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

// BillingEvent is the provider-neutral shape a webhook payload normalizes
// into before reconciliation.
type BillingEvent struct {
	ID               string
	Type             string
	UserID           snowflake.ID
	PlanID           string
	Status           string
	BillingReason    string
	CurrentPeriodEnd *time.Time
	OccurredAt       time.Time
	RawPayload       []byte
}

// Event types the reconciler acts on.
const (
	EventTypeSubscriptionCreated = "subscription.created"
	EventTypeSubscriptionUpdated = "subscription.updated"
	EventTypeSubscriptionDeleted = "subscription.deleted"
	EventTypePaymentSucceeded    = "invoice.payment_succeeded"
	EventTypePaymentFailed       = "invoice.payment_failed"
)

// BillingReasonSubscriptionCycle marks a renewal invoice; only renewals
// trigger a top-up grant.
const BillingReasonSubscriptionCycle = "subscription_cycle"

// BillingWebhookEvent is the processed-event record. The primary key is the
// provider's event id, so a redelivery fails the insert and short-circuits.
type BillingWebhookEvent struct {
	ID          string         `json:"id" gorm:"primaryKey"`
	Type        string         `json:"type"`
	UserID      snowflake.ID   `json:"user_id"`
	Payload     datatypes.JSON `json:"payload"`
	ProcessedAt time.Time      `json:"processed_at"`
}

func (BillingWebhookEvent) TableName() string {
	return "billing_webhook_events"
}
