package server

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	achievementdomain "github.com/mealforge/mealforge/internal/achievement/domain"
	"go.uber.org/zap"
)

type AchievementView struct {
	ID            string     `json:"id"`
	Title         string     `json:"title"`
	Metric        string     `json:"metric"`
	Threshold     int64      `json:"threshold"`
	RewardCredits int64      `json:"reward_credits"`
	Unlocked      bool       `json:"unlocked"`
	UnlockedAt    *time.Time `json:"unlocked_at,omitempty"`
}

type ListAchievementsResponse struct {
	Achievements []AchievementView `json:"achievements"`
}

func (s *Server) EvaluateAchievements(c *gin.Context) {
	userID, ok := s.currentUserID(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	// The lock only suppresses redundant concurrent passes; losing it does
	// not risk double grants because unlocks dedupe on insert.
	token, acquired, err := s.limiter.TryLockEvaluate(c.Request.Context(), userID.String())
	if err != nil {
		s.log.Warn("evaluate lock check failed", zap.Error(err))
	} else if !acquired {
		AbortWithError(c, achievementdomain.ErrEvaluationInProgress)
		return
	}
	if token != "" {
		defer func() {
			if err := s.limiter.ReleaseEvaluate(c.Request.Context(), userID.String(), token); err != nil {
				s.log.Warn("evaluate lock release failed", zap.Error(err))
			}
		}()
	}

	resp, err := s.achievementSvc.Evaluate(c.Request.Context(), userID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

func (s *Server) ListAchievements(c *gin.Context) {
	userID, ok := s.currentUserID(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	unlocked, err := s.achievementSvc.ListUnlocked(c.Request.Context(), userID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	unlockedAt := make(map[string]time.Time, len(unlocked))
	for _, u := range unlocked {
		unlockedAt[u.AchievementID] = u.UnlockedAt
	}

	catalog := s.rewards.Get().Achievements
	resp := ListAchievementsResponse{Achievements: make([]AchievementView, 0, len(catalog))}
	for _, entry := range catalog {
		view := AchievementView{
			ID:            entry.ID,
			Title:         entry.Title,
			Metric:        entry.Metric,
			Threshold:     entry.Threshold,
			RewardCredits: entry.RewardCredits,
		}
		if at, ok := unlockedAt[entry.ID]; ok {
			view.Unlocked = true
			view.UnlockedAt = &at
		}
		resp.Achievements = append(resp.Achievements, view)
	}

	c.JSON(http.StatusOK, resp)
}
