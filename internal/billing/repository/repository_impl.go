package repository

import (
	"context"

	billingdomain "github.com/mealforge/mealforge/internal/billing/domain"
	pkgdb "github.com/mealforge/mealforge/pkg/db"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() billingdomain.Repository {
	return &repo{}
}

func (r *repo) InsertEvent(ctx context.Context, db *gorm.DB, event *billingdomain.BillingWebhookEvent) (bool, error) {
	err := db.WithContext(ctx).Create(event).Error
	if err != nil {
		if pkgdb.IsDuplicateKeyErr(err) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

func (r *repo) DeleteEvent(ctx context.Context, db *gorm.DB, eventID string) error {
	return db.WithContext(ctx).
		Where("id = ?", eventID).
		Delete(&billingdomain.BillingWebhookEvent{}).Error
}
