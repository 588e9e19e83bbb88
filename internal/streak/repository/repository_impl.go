package repository

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	streakdomain "github.com/mealforge/mealforge/internal/streak/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() streakdomain.Repository {
	return &repo{}
}

func (r *repo) Find(ctx context.Context, db *gorm.DB, userID snowflake.ID) (*streakdomain.StreakState, error) {
	var state streakdomain.StreakState
	err := db.WithContext(ctx).
		Where("user_id = ?", userID).
		First(&state).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &state, nil
}

func (r *repo) Upsert(ctx context.Context, db *gorm.DB, state *streakdomain.StreakState) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO streak_states (
			user_id, current_streak, best_streak, last_activity_date, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (user_id) DO UPDATE SET
			current_streak = excluded.current_streak,
			best_streak = excluded.best_streak,
			last_activity_date = excluded.last_activity_date,
			updated_at = excluded.updated_at`,
		state.UserID,
		state.CurrentStreak,
		state.BestStreak,
		state.LastActivityDate,
		state.CreatedAt,
		state.UpdatedAt,
	).Error
}
