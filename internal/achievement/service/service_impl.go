package service

import (
	"context"
	"fmt"

	"github.com/bwmarrin/snowflake"
	achievementdomain "github.com/mealforge/mealforge/internal/achievement/domain"
	"github.com/mealforge/mealforge/internal/clock"
	"github.com/mealforge/mealforge/internal/config"
	creditsdomain "github.com/mealforge/mealforge/internal/credits/domain"
	"github.com/mealforge/mealforge/internal/metrics"
	streakdomain "github.com/mealforge/mealforge/internal/streak/domain"
	usagedomain "github.com/mealforge/mealforge/internal/usage/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB        *gorm.DB
	Log       *zap.Logger
	GenID     *snowflake.Node
	Repo      achievementdomain.Repository
	Rewards   *config.RewardConfigHolder
	Clock     clock.Clock
	CreditSvc creditsdomain.Service
	UsageSvc  usagedomain.Service
	StreakSvc streakdomain.Service
	Metrics   *metrics.Metrics `optional:"true"`
}

type Service struct {
	db        *gorm.DB
	log       *zap.Logger
	genID     *snowflake.Node
	repo      achievementdomain.Repository
	rewards   *config.RewardConfigHolder
	clock     clock.Clock
	creditSvc creditsdomain.Service
	usageSvc  usagedomain.Service
	streakSvc streakdomain.Service
	metrics   *metrics.Metrics
}

func NewService(p Params) achievementdomain.Service {
	return &Service{
		db:        p.DB,
		log:       p.Log.Named("achievement.service"),
		genID:     p.GenID,
		repo:      p.Repo,
		rewards:   p.Rewards,
		clock:     p.Clock,
		creditSvc: p.CreditSvc,
		usageSvc:  p.UsageSvc,
		streakSvc: p.StreakSvc,
		metrics:   p.Metrics,
	}
}

func (s *Service) Evaluate(ctx context.Context, userID snowflake.ID) (achievementdomain.EvaluateResponse, error) {
	counts, err := s.usageSvc.Counts(ctx, userID)
	if err != nil {
		return achievementdomain.EvaluateResponse{}, err
	}
	streak, err := s.streakSvc.EffectiveStreak(ctx, userID)
	if err != nil {
		return achievementdomain.EvaluateResponse{}, err
	}

	existing, err := s.repo.ListUnlocks(ctx, s.db, userID)
	if err != nil {
		return achievementdomain.EvaluateResponse{}, err
	}
	unlocked := make(map[string]struct{}, len(existing))
	for _, u := range existing {
		unlocked[u.AchievementID] = struct{}{}
	}

	resp := achievementdomain.EvaluateResponse{Unlocked: []achievementdomain.UnlockedView{}}
	for _, entry := range s.rewards.Get().Achievements {
		if _, done := unlocked[entry.ID]; done {
			continue
		}
		if s.metricValue(entry.Metric, counts, streak) < entry.Threshold {
			continue
		}

		now := s.clock.Now()
		inserted, err := s.repo.InsertUnlock(ctx, s.db, &achievementdomain.AchievementUnlock{
			ID:            s.genID.Generate(),
			UserID:        userID,
			AchievementID: entry.ID,
			RewardCredits: entry.RewardCredits,
			UnlockedAt:    now,
		})
		if err != nil {
			return resp, err
		}
		if !inserted {
			// Another evaluation won the race for this id; it also owns
			// the reward.
			continue
		}

		if s.metrics != nil {
			s.metrics.Unlocks.Inc()
		}

		// Reason keyed on the achievement id, so the grant dedupes even if
		// it is retried out of band.
		resp.Unlocked = append(resp.Unlocked, achievementdomain.UnlockedView{
			AchievementID: entry.ID,
			Title:         entry.Title,
			RewardCredits: entry.RewardCredits,
			UnlockedAt:    now,
		})

		_, err = s.creditSvc.Credit(ctx, creditsdomain.CreditRequest{
			UserID: userID,
			Amount: entry.RewardCredits,
			Reason: fmt.Sprintf("achievement:%s", entry.ID),
		})
		if err != nil {
			// The unlock row stands; the reason key makes a later grant
			// retry safe.
			s.log.Error("reward credit failed after unlock",
				zap.String("user_id", userID.String()),
				zap.String("achievement_id", entry.ID),
				zap.Error(err))
			continue
		}
		resp.CreditsAwarded += entry.RewardCredits
	}

	if len(resp.Unlocked) > 0 {
		s.log.Info("achievements unlocked",
			zap.String("user_id", userID.String()),
			zap.Int("count", len(resp.Unlocked)),
			zap.Int64("credits_awarded", resp.CreditsAwarded))
	}
	return resp, nil
}

func (s *Service) ListUnlocked(ctx context.Context, userID snowflake.ID) ([]achievementdomain.UnlockedView, error) {
	unlocks, err := s.repo.ListUnlocks(ctx, s.db, userID)
	if err != nil {
		return nil, err
	}

	titles := make(map[string]string)
	for _, entry := range s.rewards.Get().Achievements {
		titles[entry.ID] = entry.Title
	}

	views := make([]achievementdomain.UnlockedView, 0, len(unlocks))
	for _, u := range unlocks {
		views = append(views, achievementdomain.UnlockedView{
			AchievementID: u.AchievementID,
			Title:         titles[u.AchievementID],
			RewardCredits: u.RewardCredits,
			UnlockedAt:    u.UnlockedAt,
		})
	}
	return views, nil
}

func (s *Service) metricValue(metric string, counts usagedomain.Counts, streak int64) int64 {
	switch metric {
	case config.MetricRecipesGenerated:
		return counts.Generated
	case config.MetricRecipesCooked:
		return counts.Cooked
	case config.MetricStreak:
		return streak
	default:
		return 0
	}
}
