package service

import (
	"context"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/mealforge/mealforge/internal/clock"
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
	Repo      usagedomain.Repository
	StreakSvc streakdomain.Service
	Clock     clock.Clock
}

type Service struct {
	db        *gorm.DB
	log       *zap.Logger
	genID     *snowflake.Node
	repo      usagedomain.Repository
	streakSvc streakdomain.Service
	clock     clock.Clock
}

func NewService(p Params) usagedomain.Service {
	return &Service{
		db:        p.DB,
		log:       p.Log.Named("usage.service"),
		genID:     p.GenID,
		repo:      p.Repo,
		streakSvc: p.StreakSvc,
		clock:     p.Clock,
	}
}

func (s *Service) Record(ctx context.Context, req usagedomain.RecordRequest) (usagedomain.RecordResponse, error) {
	if !req.Kind.Valid() {
		return usagedomain.RecordResponse{}, usagedomain.ErrInvalidKind
	}
	key := strings.TrimSpace(req.IdempotencyKey)
	if key == "" {
		return usagedomain.RecordResponse{}, usagedomain.ErrInvalidIdempotencyKey
	}

	occurredAt := req.OccurredAt
	if occurredAt.IsZero() {
		occurredAt = s.clock.Now()
	}

	inserted, err := s.repo.Insert(ctx, s.db, &usagedomain.RecipeEvent{
		ID:             s.genID.Generate(),
		UserID:         req.UserID,
		Kind:           req.Kind,
		IdempotencyKey: key,
		OccurredAt:     occurredAt,
		CreatedAt:      s.clock.Now(),
	})
	if err != nil {
		return usagedomain.RecordResponse{}, err
	}

	if inserted && req.Kind == usagedomain.EventKindGenerated {
		// Streak bookkeeping must never fail the recorded action.
		if _, err := s.streakSvc.Touch(ctx, req.UserID, occurredAt); err != nil {
			s.log.Warn("streak touch failed",
				zap.String("user_id", req.UserID.String()),
				zap.Error(err))
		}
	}

	return usagedomain.RecordResponse{Recorded: inserted}, nil
}

func (s *Service) Counts(ctx context.Context, userID snowflake.ID) (usagedomain.Counts, error) {
	generated, err := s.repo.CountByKind(ctx, s.db, userID, usagedomain.EventKindGenerated)
	if err != nil {
		return usagedomain.Counts{}, err
	}
	cooked, err := s.repo.CountByKind(ctx, s.db, userID, usagedomain.EventKindCooked)
	if err != nil {
		return usagedomain.Counts{}, err
	}
	return usagedomain.Counts{Generated: generated, Cooked: cooked}, nil
}
