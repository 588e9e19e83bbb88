package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

// AchievementUnlock is the exactly-once record for a granted achievement.
// The unique (user_id, achievement_id) index is what makes concurrent
// evaluation safe.
type AchievementUnlock struct {
	ID            snowflake.ID `json:"id" gorm:"primaryKey"`
	UserID        snowflake.ID `json:"user_id" gorm:"uniqueIndex:ux_achievement_unlocks_user_achievement"`
	AchievementID string       `json:"achievement_id" gorm:"uniqueIndex:ux_achievement_unlocks_user_achievement"`
	RewardCredits int64        `json:"reward_credits"`
	UnlockedAt    time.Time    `json:"unlocked_at"`
}

func (AchievementUnlock) TableName() string {
	return "achievement_unlocks"
}
