package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
)

// StreakView is the external read shape of a streak row.
type StreakView struct {
	Current          int64      `json:"current"`
	Best             int64      `json:"best"`
	LastActivityDate *time.Time `json:"last_activity_date,omitempty"`
}

type Service interface {
	// Touch records qualifying activity for the given day: same day is a
	// no-op, the day after the last activity extends the streak, anything
	// else restarts it at 1.
	Touch(ctx context.Context, userID snowflake.ID, day time.Time) (StreakView, error)
	// Refresh is the reset check invoked opportunistically (app foreground):
	// a gap of more than one full day zeroes the current streak without
	// touching the best.
	Refresh(ctx context.Context, userID snowflake.ID) (StreakView, error)
	Get(ctx context.Context, userID snowflake.ID) (StreakView, error)
	// EffectiveStreak feeds achievement evaluation.
	EffectiveStreak(ctx context.Context, userID snowflake.ID) (int64, error)
}
