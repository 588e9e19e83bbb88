package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/mealforge/mealforge/internal/clock"
	"github.com/mealforge/mealforge/internal/config"
	creditsdomain "github.com/mealforge/mealforge/internal/credits/domain"
	"github.com/mealforge/mealforge/internal/metrics"
	"github.com/mealforge/mealforge/pkg/db/pagination"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// casMaxAttempts bounds the read-check-write retry loop. Contention beyond
// this surfaces as ErrConflict for the caller to retry.
const casMaxAttempts = 3

// errCASMiss aborts the surrounding transaction when the conditional balance
// write matched zero rows, rolling back any ledger insert made alongside it.
var errCASMiss = errors.New("cas_miss")

type Params struct {
	fx.In

	DB      *gorm.DB
	Log     *zap.Logger
	GenID   *snowflake.Node
	Repo    creditsdomain.Repository
	Cfg     config.Config
	Clock   clock.Clock
	Metrics *metrics.Metrics `optional:"true"`
}

type Service struct {
	db      *gorm.DB
	log     *zap.Logger
	genID   *snowflake.Node
	repo    creditsdomain.Repository
	clock   clock.Clock
	metrics *metrics.Metrics

	trialCredits   int64
	maxDebitAmount int64
}

func NewService(p Params) creditsdomain.Service {
	return &Service{
		db:             p.DB,
		log:            p.Log.Named("credits.service"),
		genID:          p.GenID,
		repo:           p.Repo,
		clock:          p.Clock,
		metrics:        p.Metrics,
		trialCredits:   p.Cfg.TrialCredits,
		maxDebitAmount: p.Cfg.MaxDebitAmount,
	}
}

func (s *Service) EnsureAccount(ctx context.Context, userID snowflake.ID) (creditsdomain.BalanceView, error) {
	if userID == 0 {
		return creditsdomain.BalanceView{}, creditsdomain.ErrAccountNotFound
	}

	now := s.clock.Now()
	balance := &creditsdomain.CreditBalance{
		UserID:          userID,
		Balance:         s.trialCredits,
		UsedLifetime:    0,
		GrantedLifetime: s.trialCredits,
		Status:          creditsdomain.SubscriptionStatusTrialing,
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	inserted := false
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		ok, err := s.repo.InsertBalance(ctx, tx, balance)
		if err != nil {
			return err
		}
		if !ok {
			return nil
		}
		inserted = true

		_, err = s.repo.InsertLedgerEntry(ctx, tx, &creditsdomain.CreditLedgerEntry{
			ID:           s.genID.Generate(),
			UserID:       userID,
			Kind:         creditsdomain.LedgerEntryKindGrant,
			Amount:       s.trialCredits,
			Reason:       fmt.Sprintf("signup:%s", userID),
			BalanceAfter: s.trialCredits,
			CreatedAt:    now,
		})
		return err
	})
	if err != nil {
		return creditsdomain.BalanceView{}, err
	}

	if inserted {
		s.log.Info("account created with trial grant",
			zap.String("user_id", userID.String()),
			zap.Int64("trial_credits", s.trialCredits))
		return toView(balance), nil
	}

	existing, err := s.repo.FindBalance(ctx, s.db, userID)
	if err != nil {
		return creditsdomain.BalanceView{}, err
	}
	return toView(existing), nil
}

func (s *Service) Get(ctx context.Context, userID snowflake.ID) (creditsdomain.BalanceView, error) {
	balance, err := s.repo.FindBalance(ctx, s.db, userID)
	if err != nil {
		return creditsdomain.BalanceView{}, err
	}
	return toView(balance), nil
}

func (s *Service) Debit(ctx context.Context, req creditsdomain.DebitRequest) (creditsdomain.BalanceView, error) {
	if req.Amount <= 0 || req.Amount > s.maxDebitAmount {
		return creditsdomain.BalanceView{}, creditsdomain.ErrInvalidAmount
	}

	for attempt := 0; attempt < casMaxAttempts; attempt++ {
		balance, err := s.repo.FindBalance(ctx, s.db, req.UserID)
		if err != nil {
			return creditsdomain.BalanceView{}, err
		}
		if !balance.Status.Spendable() {
			return creditsdomain.BalanceView{}, creditsdomain.ErrSubscriptionNotActive
		}
		if balance.Balance < req.Amount {
			s.countDebit("insufficient")
			return creditsdomain.BalanceView{}, creditsdomain.ErrInsufficientBalance
		}

		now := s.clock.Now()
		entryID := s.genID.Generate()
		err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			ok, err := s.repo.ApplyDebit(ctx, tx, req.UserID, req.Amount, balance.Balance, now)
			if err != nil {
				return err
			}
			if !ok {
				return errCASMiss
			}
			_, err = s.repo.InsertLedgerEntry(ctx, tx, &creditsdomain.CreditLedgerEntry{
				ID:           entryID,
				UserID:       req.UserID,
				Kind:         creditsdomain.LedgerEntryKindDebit,
				Amount:       -req.Amount,
				Reason:       fmt.Sprintf("debit:%s", entryID),
				BalanceAfter: balance.Balance - req.Amount,
				CreatedAt:    now,
			})
			return err
		})
		if errors.Is(err, errCASMiss) {
			s.countCASRetry("debit")
			continue
		}
		if err != nil {
			return creditsdomain.BalanceView{}, err
		}

		balance.Balance -= req.Amount
		balance.UsedLifetime += req.Amount
		s.countDebit("applied")
		return toView(balance), nil
	}

	s.countDebit("conflict")
	return creditsdomain.BalanceView{}, creditsdomain.ErrConflict
}

func (s *Service) Credit(ctx context.Context, req creditsdomain.CreditRequest) (creditsdomain.BalanceView, error) {
	if req.Amount <= 0 {
		return creditsdomain.BalanceView{}, creditsdomain.ErrInvalidAmount
	}
	reason := strings.TrimSpace(req.Reason)
	if reason == "" {
		return creditsdomain.BalanceView{}, creditsdomain.ErrInvalidReason
	}

	for attempt := 0; attempt < casMaxAttempts; attempt++ {
		balance, err := s.repo.FindBalance(ctx, s.db, req.UserID)
		if err != nil {
			return creditsdomain.BalanceView{}, err
		}

		now := s.clock.Now()
		duplicate := false
		err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			inserted, err := s.repo.InsertLedgerEntry(ctx, tx, &creditsdomain.CreditLedgerEntry{
				ID:           s.genID.Generate(),
				UserID:       req.UserID,
				Kind:         creditsdomain.LedgerEntryKindGrant,
				Amount:       req.Amount,
				Reason:       reason,
				BalanceAfter: balance.Balance + req.Amount,
				CreatedAt:    now,
			})
			if err != nil {
				return err
			}
			if !inserted {
				duplicate = true
				return nil
			}
			ok, err := s.repo.ApplyCredit(ctx, tx, req.UserID, req.Amount, balance.Balance, now)
			if err != nil {
				return err
			}
			if !ok {
				return errCASMiss
			}
			return nil
		})
		if errors.Is(err, errCASMiss) {
			s.countCASRetry("credit")
			continue
		}
		if err != nil {
			return creditsdomain.BalanceView{}, err
		}

		if duplicate {
			s.countCredit("grant", "duplicate")
			return toView(balance), nil
		}

		balance.Balance += req.Amount
		balance.GrantedLifetime += req.Amount
		s.countCredit("grant", "applied")
		return toView(balance), nil
	}

	return creditsdomain.BalanceView{}, creditsdomain.ErrConflict
}

func (s *Service) Replace(ctx context.Context, req creditsdomain.ReplaceRequest) (creditsdomain.BalanceView, error) {
	if req.Amount <= 0 {
		return creditsdomain.BalanceView{}, creditsdomain.ErrInvalidAmount
	}
	reason := strings.TrimSpace(req.Reason)
	if reason == "" {
		return creditsdomain.BalanceView{}, creditsdomain.ErrInvalidReason
	}

	for attempt := 0; attempt < casMaxAttempts; attempt++ {
		balance, err := s.repo.FindBalance(ctx, s.db, req.UserID)
		if err != nil {
			return creditsdomain.BalanceView{}, err
		}

		now := s.clock.Now()
		duplicate := false
		err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			// Ledger records the delta so entry amounts still sum to the
			// balance across replaces.
			inserted, err := s.repo.InsertLedgerEntry(ctx, tx, &creditsdomain.CreditLedgerEntry{
				ID:           s.genID.Generate(),
				UserID:       req.UserID,
				Kind:         creditsdomain.LedgerEntryKindReplace,
				Amount:       req.Amount - balance.Balance,
				Reason:       reason,
				BalanceAfter: req.Amount,
				CreatedAt:    now,
			})
			if err != nil {
				return err
			}
			if !inserted {
				duplicate = true
				return nil
			}
			ok, err := s.repo.ApplyReplace(ctx, tx, req.UserID, req.Amount, balance.Balance, req.PlanID, req.Status, req.CurrentPeriodEnd, now)
			if err != nil {
				return err
			}
			if !ok {
				return errCASMiss
			}
			return nil
		})
		if errors.Is(err, errCASMiss) {
			s.countCASRetry("replace")
			continue
		}
		if err != nil {
			return creditsdomain.BalanceView{}, err
		}

		if duplicate {
			s.countCredit("replace", "duplicate")
			return toView(balance), nil
		}

		planID := req.PlanID
		balance.Balance = req.Amount
		balance.GrantedLifetime = balance.UsedLifetime + req.Amount
		balance.Status = req.Status
		balance.PlanID = &planID
		balance.CurrentPeriodEnd = req.CurrentPeriodEnd
		balance.CancelledAt = nil
		s.countCredit("replace", "applied")
		return toView(balance), nil
	}

	return creditsdomain.BalanceView{}, creditsdomain.ErrConflict
}

func (s *Service) Cancel(ctx context.Context, userID snowflake.ID, at time.Time) error {
	// Earned credits stay spendable until exhausted; only the status flips.
	return s.repo.UpdateStatus(ctx, s.db, userID, creditsdomain.SubscriptionStatusCancelled, &at, s.clock.Now())
}

func (s *Service) MarkPastDue(ctx context.Context, userID snowflake.ID) error {
	return s.repo.UpdateStatus(ctx, s.db, userID, creditsdomain.SubscriptionStatusPastDue, nil, s.clock.Now())
}

func (s *Service) ListLedger(ctx context.Context, req creditsdomain.ListLedgerRequest) (creditsdomain.ListLedgerResponse, error) {
	limit := req.PageSize
	if limit <= 0 || limit > 100 {
		limit = 20
	}

	var beforeID snowflake.ID
	if token := strings.TrimSpace(req.PageToken); token != "" {
		cursor, err := pagination.DecodeCursor(token)
		if err != nil {
			return creditsdomain.ListLedgerResponse{}, creditsdomain.ErrInvalidPageToken
		}
		parsed, err := snowflake.ParseString(cursor.ID)
		if err != nil {
			return creditsdomain.ListLedgerResponse{}, creditsdomain.ErrInvalidPageToken
		}
		beforeID = parsed
	}

	entries, err := s.repo.ListLedgerEntries(ctx, s.db, req.UserID, beforeID, limit+1)
	if err != nil {
		return creditsdomain.ListLedgerResponse{}, err
	}

	resp := creditsdomain.ListLedgerResponse{Entries: entries}
	if len(entries) > limit {
		resp.Entries = entries[:limit]
		resp.HasMore = true
		token, err := pagination.EncodeCursor(pagination.Cursor{ID: resp.Entries[limit-1].ID.String()})
		if err != nil {
			return creditsdomain.ListLedgerResponse{}, err
		}
		resp.NextPageToken = token
	}
	return resp, nil
}

func toView(balance *creditsdomain.CreditBalance) creditsdomain.BalanceView {
	return creditsdomain.BalanceView{
		Balance:          balance.Balance,
		Used:             balance.UsedLifetime,
		Total:            balance.GrantedLifetime,
		Status:           balance.Status,
		PlanID:           balance.PlanID,
		CurrentPeriodEnd: balance.CurrentPeriodEnd,
		CancelledAt:      balance.CancelledAt,
	}
}

func (s *Service) countDebit(outcome string) {
	if s.metrics != nil {
		s.metrics.Debits.WithLabelValues(outcome).Inc()
	}
}

func (s *Service) countCredit(mode, outcome string) {
	if s.metrics != nil {
		s.metrics.Credits.WithLabelValues(mode, outcome).Inc()
	}
}

func (s *Service) countCASRetry(op string) {
	if s.metrics != nil {
		s.metrics.CASRetries.WithLabelValues(op).Inc()
	}
}
