package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
)

// UnlockedView is the external shape of an unlocked achievement, catalog
// metadata joined onto the unlock record.
type UnlockedView struct {
	AchievementID string    `json:"achievement_id"`
	Title         string    `json:"title"`
	RewardCredits int64     `json:"reward_credits"`
	UnlockedAt    time.Time `json:"unlocked_at"`
}

// EvaluateResponse reports what a single evaluation pass granted.
type EvaluateResponse struct {
	Unlocked       []UnlockedView `json:"newly_unlocked"`
	CreditsAwarded int64          `json:"total_awarded"`
}

type Service interface {
	// Evaluate compares current counters against the catalog and unlocks
	// every threshold that is met and not yet recorded. Safe to call any
	// number of times; a pass with nothing new returns empty Unlocked.
	Evaluate(ctx context.Context, userID snowflake.ID) (EvaluateResponse, error)
	ListUnlocked(ctx context.Context, userID snowflake.ID) ([]UnlockedView, error)
}

var ErrEvaluationInProgress = errors.New("evaluation_in_progress")
