package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	Find(ctx context.Context, db *gorm.DB, userID snowflake.ID) (*StreakState, error)
	// Upsert writes the full row, creating it on first activity.
	Upsert(ctx context.Context, db *gorm.DB, state *StreakState) error
}
