package repository

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	creditsdomain "github.com/mealforge/mealforge/internal/credits/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() creditsdomain.Repository {
	return &repo{}
}

func (r *repo) InsertBalance(ctx context.Context, db *gorm.DB, balance *creditsdomain.CreditBalance) (bool, error) {
	result := db.WithContext(ctx).Exec(
		`INSERT INTO credit_balances (
			user_id, balance, used_lifetime, granted_lifetime, status, plan_id,
			current_period_end, cancelled_at, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (user_id) DO NOTHING`,
		balance.UserID,
		balance.Balance,
		balance.UsedLifetime,
		balance.GrantedLifetime,
		balance.Status,
		balance.PlanID,
		balance.CurrentPeriodEnd,
		balance.CancelledAt,
		balance.CreatedAt,
		balance.UpdatedAt,
	)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (r *repo) FindBalance(ctx context.Context, db *gorm.DB, userID snowflake.ID) (*creditsdomain.CreditBalance, error) {
	var balance creditsdomain.CreditBalance
	err := db.WithContext(ctx).
		Where("user_id = ?", userID).
		First(&balance).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, creditsdomain.ErrAccountNotFound
		}
		return nil, err
	}
	return &balance, nil
}

func (r *repo) ApplyDebit(ctx context.Context, db *gorm.DB, userID snowflake.ID, amount, expected int64, now time.Time) (bool, error) {
	result := db.WithContext(ctx).Exec(
		`UPDATE credit_balances
		 SET balance = balance - ?, used_lifetime = used_lifetime + ?, updated_at = ?
		 WHERE user_id = ? AND balance = ?`,
		amount,
		amount,
		now,
		userID,
		expected,
	)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (r *repo) ApplyCredit(ctx context.Context, db *gorm.DB, userID snowflake.ID, amount, expected int64, now time.Time) (bool, error) {
	result := db.WithContext(ctx).Exec(
		`UPDATE credit_balances
		 SET balance = balance + ?, granted_lifetime = granted_lifetime + ?, updated_at = ?
		 WHERE user_id = ? AND balance = ?`,
		amount,
		amount,
		now,
		userID,
		expected,
	)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (r *repo) ApplyReplace(ctx context.Context, db *gorm.DB, userID snowflake.ID, allotment, expected int64, planID string, status creditsdomain.SubscriptionStatus, periodEnd *time.Time, now time.Time) (bool, error) {
	result := db.WithContext(ctx).Exec(
		`UPDATE credit_balances
		 SET balance = ?, granted_lifetime = used_lifetime + ?, status = ?, plan_id = ?,
		     current_period_end = ?, cancelled_at = NULL, updated_at = ?
		 WHERE user_id = ? AND balance = ?`,
		allotment,
		allotment,
		status,
		planID,
		periodEnd,
		now,
		userID,
		expected,
	)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (r *repo) UpdateStatus(ctx context.Context, db *gorm.DB, userID snowflake.ID, status creditsdomain.SubscriptionStatus, cancelledAt *time.Time, now time.Time) error {
	// A nil cancelledAt leaves any recorded cancellation in place, so a late
	// payment failure does not erase when the account was cancelled.
	query := `UPDATE credit_balances
		 SET status = ?, updated_at = ?
		 WHERE user_id = ?`
	args := []any{status, now, userID}
	if cancelledAt != nil {
		query = `UPDATE credit_balances
		 SET status = ?, cancelled_at = ?, updated_at = ?
		 WHERE user_id = ?`
		args = []any{status, cancelledAt, now, userID}
	}

	result := db.WithContext(ctx).Exec(query, args...)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return creditsdomain.ErrAccountNotFound
	}
	return nil
}

func (r *repo) InsertLedgerEntry(ctx context.Context, db *gorm.DB, entry *creditsdomain.CreditLedgerEntry) (bool, error) {
	result := db.WithContext(ctx).Exec(
		`INSERT INTO credit_ledger_entries (
			id, user_id, kind, amount, reason, balance_after, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (user_id, reason) DO NOTHING`,
		entry.ID,
		entry.UserID,
		entry.Kind,
		entry.Amount,
		entry.Reason,
		entry.BalanceAfter,
		entry.CreatedAt,
	)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (r *repo) ListLedgerEntries(ctx context.Context, db *gorm.DB, userID snowflake.ID, beforeID snowflake.ID, limit int) ([]creditsdomain.CreditLedgerEntry, error) {
	query := db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("id DESC").
		Limit(limit)
	if beforeID != 0 {
		query = query.Where("id < ?", beforeID)
	}

	var entries []creditsdomain.CreditLedgerEntry
	if err := query.Find(&entries).Error; err != nil {
		return nil, err
	}
	return entries, nil
}
