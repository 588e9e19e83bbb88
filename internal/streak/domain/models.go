// Package domain contains the per-user consecutive-activity counter.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

// StreakState tracks consecutive days with at least one paid generation.
// Invariant: BestStreak >= CurrentStreak. LastActivityDate is a UTC midnight.
type StreakState struct {
	UserID           snowflake.ID `gorm:"primaryKey"`
	CurrentStreak    int64        `gorm:"not null;default:0"`
	BestStreak       int64        `gorm:"not null;default:0"`
	LastActivityDate *time.Time   `gorm:""`
	CreatedAt        time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt        time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (StreakState) TableName() string { return "streak_states" }

// Effective is the streak value achievements are judged against: the best
// ever, so a broken streak never revokes an already-earned milestone.
func (s StreakState) Effective() int64 {
	if s.BestStreak > s.CurrentStreak {
		return s.BestStreak
	}
	return s.CurrentStreak
}
