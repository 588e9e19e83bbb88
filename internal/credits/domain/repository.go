package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	// InsertBalance creates the row if absent. Returns false when the row
	// already existed.
	InsertBalance(ctx context.Context, db *gorm.DB, balance *CreditBalance) (bool, error)
	FindBalance(ctx context.Context, db *gorm.DB, userID snowflake.ID) (*CreditBalance, error)
	// ApplyDebit decrements balance and increments used_lifetime in one
	// conditional write. Returns false when the row's balance no longer
	// matches expected (a concurrent writer won the race).
	ApplyDebit(ctx context.Context, db *gorm.DB, userID snowflake.ID, amount, expected int64, now time.Time) (bool, error)
	// ApplyCredit increments balance and granted_lifetime, CAS on expected.
	ApplyCredit(ctx context.Context, db *gorm.DB, userID snowflake.ID, amount, expected int64, now time.Time) (bool, error)
	// ApplyReplace sets balance to the allotment and granted_lifetime to
	// used_lifetime + allotment, CAS on expected.
	ApplyReplace(ctx context.Context, db *gorm.DB, userID snowflake.ID, allotment, expected int64, planID string, status SubscriptionStatus, periodEnd *time.Time, now time.Time) (bool, error)
	// UpdateStatus flips the subscription status. cancelledAt is written only
	// when non-nil; nil keeps whatever cancellation is already recorded.
	UpdateStatus(ctx context.Context, db *gorm.DB, userID snowflake.ID, status SubscriptionStatus, cancelledAt *time.Time, now time.Time) error
	// InsertLedgerEntry appends a posting. Returns false when the
	// (user_id, reason) pair already exists.
	InsertLedgerEntry(ctx context.Context, db *gorm.DB, entry *CreditLedgerEntry) (bool, error)
	ListLedgerEntries(ctx context.Context, db *gorm.DB, userID snowflake.ID, beforeID snowflake.ID, limit int) ([]CreditLedgerEntry, error)
}
