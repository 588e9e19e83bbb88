package repository

import (
	"context"

	"github.com/bwmarrin/snowflake"
	usagedomain "github.com/mealforge/mealforge/internal/usage/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() usagedomain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, event *usagedomain.RecipeEvent) (bool, error) {
	result := db.WithContext(ctx).Exec(
		`INSERT INTO recipe_events (
			id, user_id, kind, idempotency_key, occurred_at, created_at
		) VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (user_id, idempotency_key) DO NOTHING`,
		event.ID,
		event.UserID,
		event.Kind,
		event.IdempotencyKey,
		event.OccurredAt,
		event.CreatedAt,
	)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (r *repo) CountByKind(ctx context.Context, db *gorm.DB, userID snowflake.ID, kind usagedomain.EventKind) (int64, error) {
	var count int64
	err := db.WithContext(ctx).
		Model(&usagedomain.RecipeEvent{}).
		Where("user_id = ? AND kind = ?", userID, kind).
		Count(&count).Error
	return count, err
}
