package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/mealforge/mealforge/pkg/db/pagination"
)

// BalanceView is the external read shape of a balance row.
type BalanceView struct {
	Balance          int64              `json:"balance"`
	Used             int64              `json:"used"`
	Total            int64              `json:"total"`
	Status           SubscriptionStatus `json:"status"`
	PlanID           *string            `json:"plan_id,omitempty"`
	CurrentPeriodEnd *time.Time         `json:"current_period_end,omitempty"`
	CancelledAt      *time.Time         `json:"cancelled_at,omitempty"`
}

type DebitRequest struct {
	UserID snowflake.ID
	Amount int64
}

type CreditRequest struct {
	UserID snowflake.ID
	Amount int64
	Reason string
}

// ReplaceRequest swaps the balance for a full-period allotment. Used on new
// and renewed subscriptions; the reason key makes redelivery harmless.
type ReplaceRequest struct {
	UserID           snowflake.ID
	Amount           int64
	Reason           string
	PlanID           string
	Status           SubscriptionStatus
	CurrentPeriodEnd *time.Time
}

type ListLedgerRequest struct {
	UserID    snowflake.ID
	PageToken string
	PageSize  int
}

type ListLedgerResponse struct {
	pagination.PageInfo
	Entries []CreditLedgerEntry `json:"entries"`
}

type Service interface {
	// EnsureAccount creates the balance row with the default trial grant if
	// it does not exist yet. Safe to call repeatedly and concurrently.
	EnsureAccount(ctx context.Context, userID snowflake.ID) (BalanceView, error)
	Get(ctx context.Context, userID snowflake.ID) (BalanceView, error)
	// Debit atomically spends credits. Not idempotent: callers must not
	// blindly retry after an ambiguous failure.
	Debit(ctx context.Context, req DebitRequest) (BalanceView, error)
	// Credit tops up the balance. Idempotent per (user, reason); a duplicate
	// reason returns the current balance without applying.
	Credit(ctx context.Context, req CreditRequest) (BalanceView, error)
	// Replace sets the balance to exactly the allotment. Same reason-key
	// idempotency as Credit.
	Replace(ctx context.Context, req ReplaceRequest) (BalanceView, error)
	Cancel(ctx context.Context, userID snowflake.ID, at time.Time) error
	MarkPastDue(ctx context.Context, userID snowflake.ID) error
	ListLedger(ctx context.Context, req ListLedgerRequest) (ListLedgerResponse, error)
}

var (
	ErrAccountNotFound       = errors.New("account_not_found")
	ErrInvalidAmount         = errors.New("invalid_amount")
	ErrInvalidReason         = errors.New("invalid_reason")
	ErrInvalidPageToken      = errors.New("invalid_page_token")
	ErrInsufficientBalance   = errors.New("insufficient_balance")
	ErrSubscriptionNotActive = errors.New("subscription_not_active")
	ErrConflict              = errors.New("conflict")
)
