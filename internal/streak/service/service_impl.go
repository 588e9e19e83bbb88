package service

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/mealforge/mealforge/internal/clock"
	streakdomain "github.com/mealforge/mealforge/internal/streak/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	Repo  streakdomain.Repository
	Clock clock.Clock
}

type Service struct {
	db    *gorm.DB
	log   *zap.Logger
	repo  streakdomain.Repository
	clock clock.Clock
}

func NewService(p Params) streakdomain.Service {
	return &Service{
		db:    p.DB,
		log:   p.Log.Named("streak.service"),
		repo:  p.Repo,
		clock: p.Clock,
	}
}

func (s *Service) Touch(ctx context.Context, userID snowflake.ID, day time.Time) (streakdomain.StreakView, error) {
	day = truncateToDay(day)
	now := s.clock.Now()

	state, err := s.repo.Find(ctx, s.db, userID)
	if err != nil {
		return streakdomain.StreakView{}, err
	}
	if state == nil {
		state = &streakdomain.StreakState{UserID: userID, CreatedAt: now}
	}

	switch {
	case state.LastActivityDate != nil && sameDay(*state.LastActivityDate, day):
		// Already counted today.
		return toView(state), nil
	case state.LastActivityDate != nil && sameDay(state.LastActivityDate.AddDate(0, 0, 1), day):
		state.CurrentStreak++
	default:
		state.CurrentStreak = 1
	}

	if state.CurrentStreak > state.BestStreak {
		state.BestStreak = state.CurrentStreak
	}
	state.LastActivityDate = &day
	state.UpdatedAt = now

	if err := s.repo.Upsert(ctx, s.db, state); err != nil {
		return streakdomain.StreakView{}, err
	}
	return toView(state), nil
}

func (s *Service) Refresh(ctx context.Context, userID snowflake.ID) (streakdomain.StreakView, error) {
	state, err := s.repo.Find(ctx, s.db, userID)
	if err != nil {
		return streakdomain.StreakView{}, err
	}
	if state == nil {
		return streakdomain.StreakView{}, nil
	}

	today := truncateToDay(s.clock.Now())
	if state.CurrentStreak > 0 && state.LastActivityDate != nil {
		gap := int(today.Sub(truncateToDay(*state.LastActivityDate)).Hours() / 24)
		if gap > 1 {
			state.CurrentStreak = 0
			state.UpdatedAt = s.clock.Now()
			if err := s.repo.Upsert(ctx, s.db, state); err != nil {
				return streakdomain.StreakView{}, err
			}
		}
	}
	return toView(state), nil
}

func (s *Service) Get(ctx context.Context, userID snowflake.ID) (streakdomain.StreakView, error) {
	state, err := s.repo.Find(ctx, s.db, userID)
	if err != nil {
		return streakdomain.StreakView{}, err
	}
	if state == nil {
		return streakdomain.StreakView{}, nil
	}
	return toView(state), nil
}

func (s *Service) EffectiveStreak(ctx context.Context, userID snowflake.ID) (int64, error) {
	state, err := s.repo.Find(ctx, s.db, userID)
	if err != nil {
		return 0, err
	}
	if state == nil {
		return 0, nil
	}
	return state.Effective(), nil
}

func truncateToDay(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

func sameDay(a, b time.Time) bool {
	return truncateToDay(a).Equal(truncateToDay(b))
}

func toView(state *streakdomain.StreakState) streakdomain.StreakView {
	return streakdomain.StreakView{
		Current:          state.CurrentStreak,
		Best:             state.BestStreak,
		LastActivityDate: state.LastActivityDate,
	}
}
