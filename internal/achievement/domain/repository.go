package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	// InsertUnlock returns false when the (user, achievement) pair already
	// has a record.
	InsertUnlock(ctx context.Context, db *gorm.DB, unlock *AchievementUnlock) (bool, error)
	ListUnlocks(ctx context.Context, db *gorm.DB, userID snowflake.ID) ([]AchievementUnlock, error)
}
