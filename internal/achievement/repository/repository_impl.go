package repository

import (
	"context"

	"github.com/bwmarrin/snowflake"
	achievementdomain "github.com/mealforge/mealforge/internal/achievement/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() achievementdomain.Repository {
	return &repo{}
}

func (r *repo) InsertUnlock(ctx context.Context, db *gorm.DB, unlock *achievementdomain.AchievementUnlock) (bool, error) {
	result := db.WithContext(ctx).Exec(
		`INSERT INTO achievement_unlocks (
			id, user_id, achievement_id, reward_credits, unlocked_at
		) VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (user_id, achievement_id) DO NOTHING`,
		unlock.ID,
		unlock.UserID,
		unlock.AchievementID,
		unlock.RewardCredits,
		unlock.UnlockedAt,
	)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (r *repo) ListUnlocks(ctx context.Context, db *gorm.DB, userID snowflake.ID) ([]achievementdomain.AchievementUnlock, error) {
	var unlocks []achievementdomain.AchievementUnlock
	err := db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("unlocked_at ASC").
		Find(&unlocks).Error
	if err != nil {
		return nil, err
	}
	return unlocks, nil
}
