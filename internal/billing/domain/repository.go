package domain

import (
	"context"

	"gorm.io/gorm"
)

type Repository interface {
	// InsertEvent returns false when the provider event id was already
	// recorded.
	InsertEvent(ctx context.Context, db *gorm.DB, event *BillingWebhookEvent) (bool, error)
	// DeleteEvent releases an event id so the provider redelivery can retry
	// after a failed apply.
	DeleteEvent(ctx context.Context, db *gorm.DB, eventID string) error
}
