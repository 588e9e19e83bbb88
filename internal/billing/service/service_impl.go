package service

import (
	"context"
	"fmt"

	billingdomain "github.com/mealforge/mealforge/internal/billing/domain"
	"github.com/mealforge/mealforge/internal/clock"
	"github.com/mealforge/mealforge/internal/config"
	creditsdomain "github.com/mealforge/mealforge/internal/credits/domain"
	"github.com/mealforge/mealforge/internal/metrics"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB        *gorm.DB
	Log       *zap.Logger
	Repo      billingdomain.Repository
	Rewards   *config.RewardConfigHolder
	Clock     clock.Clock
	CreditSvc creditsdomain.Service
	Metrics   *metrics.Metrics `optional:"true"`
}

type Service struct {
	db        *gorm.DB
	log       *zap.Logger
	repo      billingdomain.Repository
	rewards   *config.RewardConfigHolder
	clock     clock.Clock
	creditSvc creditsdomain.Service
	metrics   *metrics.Metrics
}

func NewService(p Params) billingdomain.Service {
	return &Service{
		db:        p.DB,
		log:       p.Log.Named("billing.service"),
		repo:      p.Repo,
		rewards:   p.Rewards,
		clock:     p.Clock,
		creditSvc: p.CreditSvc,
		metrics:   p.Metrics,
	}
}

func (s *Service) Process(ctx context.Context, event *billingdomain.BillingEvent) error {
	inserted, err := s.repo.InsertEvent(ctx, s.db, &billingdomain.BillingWebhookEvent{
		ID:          event.ID,
		Type:        event.Type,
		UserID:      event.UserID,
		Payload:     datatypes.JSON(event.RawPayload),
		ProcessedAt: s.clock.Now(),
	})
	if err != nil {
		return err
	}
	if !inserted {
		s.countEvent(event.Type, "duplicate")
		return billingdomain.ErrEventAlreadyProcessed
	}

	if err := s.apply(ctx, event); err != nil {
		// Release the event id so the provider retry is not swallowed as
		// a duplicate. The apply operations dedupe on their own reasons.
		if delErr := s.repo.DeleteEvent(ctx, s.db, event.ID); delErr != nil {
			s.log.Error("failed to release webhook event after apply error",
				zap.String("event_id", event.ID),
				zap.Error(delErr))
		}
		s.countEvent(event.Type, "failed")
		return err
	}

	s.countEvent(event.Type, "applied")
	s.log.Info("billing event applied",
		zap.String("event_id", event.ID),
		zap.String("type", event.Type),
		zap.String("user_id", event.UserID.String()))
	return nil
}

func (s *Service) apply(ctx context.Context, event *billingdomain.BillingEvent) error {
	switch event.Type {
	case billingdomain.EventTypeSubscriptionCreated, billingdomain.EventTypeSubscriptionUpdated:
		return s.applySubscription(ctx, event)
	case billingdomain.EventTypeSubscriptionDeleted:
		return s.creditSvc.Cancel(ctx, event.UserID, event.OccurredAt)
	case billingdomain.EventTypePaymentSucceeded:
		return s.applyRenewal(ctx, event)
	case billingdomain.EventTypePaymentFailed:
		return s.creditSvc.MarkPastDue(ctx, event.UserID)
	default:
		return billingdomain.ErrEventIgnored
	}
}

func (s *Service) applySubscription(ctx context.Context, event *billingdomain.BillingEvent) error {
	grant, ok := s.rewards.Get().GrantForPlan(event.PlanID)
	if !ok {
		s.log.Warn("subscription event for unknown plan",
			zap.String("event_id", event.ID),
			zap.String("plan_id", event.PlanID))
		return billingdomain.ErrUnknownPlan
	}

	// The provider can race a signup; make sure the balance row exists
	// before replacing it.
	if _, err := s.creditSvc.EnsureAccount(ctx, event.UserID); err != nil {
		return err
	}

	_, err := s.creditSvc.Replace(ctx, creditsdomain.ReplaceRequest{
		UserID:           event.UserID,
		Amount:           grant,
		Reason:           fmt.Sprintf("billing-event:%s", event.ID),
		PlanID:           event.PlanID,
		Status:           normalizeStatus(event.Status),
		CurrentPeriodEnd: event.CurrentPeriodEnd,
	})
	return err
}

func (s *Service) applyRenewal(ctx context.Context, event *billingdomain.BillingEvent) error {
	if event.BillingReason != billingdomain.BillingReasonSubscriptionCycle {
		// First invoices and one-offs grant via the subscription events.
		return nil
	}

	planID := event.PlanID
	if planID == "" {
		balance, err := s.creditSvc.Get(ctx, event.UserID)
		if err != nil {
			return err
		}
		if balance.PlanID == nil {
			return billingdomain.ErrUnknownPlan
		}
		planID = *balance.PlanID
	}

	grant, ok := s.rewards.Get().GrantForPlan(planID)
	if !ok {
		return billingdomain.ErrUnknownPlan
	}

	// Top-up adds on the existing balance, so unspent credits carry over
	// across renewals.
	_, err := s.creditSvc.Credit(ctx, creditsdomain.CreditRequest{
		UserID: event.UserID,
		Amount: grant,
		Reason: fmt.Sprintf("billing-event:%s", event.ID),
	})
	return err
}

func normalizeStatus(raw string) creditsdomain.SubscriptionStatus {
	switch raw {
	case "trialing":
		return creditsdomain.SubscriptionStatusTrialing
	case "past_due":
		return creditsdomain.SubscriptionStatusPastDue
	case "canceled", "cancelled":
		return creditsdomain.SubscriptionStatusCancelled
	default:
		return creditsdomain.SubscriptionStatusActive
	}
}

func (s *Service) countEvent(eventType, outcome string) {
	if s.metrics != nil {
		s.metrics.WebhookEvents.WithLabelValues(eventType, outcome).Inc()
	}
}
