package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/mealforge/mealforge/internal/clock"
	"github.com/mealforge/mealforge/internal/config"
	creditsdomain "github.com/mealforge/mealforge/internal/credits/domain"
	"github.com/mealforge/mealforge/internal/credits/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		&creditsdomain.CreditBalance{},
		&creditsdomain.CreditLedgerEntry{},
	))
	return db
}

func newTestService(t *testing.T, db *gorm.DB, clk clock.Clock) creditsdomain.Service {
	t.Helper()
	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	return NewService(Params{
		DB:    db,
		Log:   zap.NewNop(),
		GenID: node,
		Repo:  repository.Provide(),
		Cfg:   config.Config{TrialCredits: 3, MaxDebitAmount: 10},
		Clock: clk,
	})
}

func userInvariant(t *testing.T, db *gorm.DB, userID snowflake.ID) {
	t.Helper()
	var balance creditsdomain.CreditBalance
	require.NoError(t, db.Where("user_id = ?", userID).First(&balance).Error)
	assert.Equal(t, balance.Balance, balance.GrantedLifetime-balance.UsedLifetime,
		"granted minus used must equal balance")

	var sum int64
	require.NoError(t, db.Model(&creditsdomain.CreditLedgerEntry{}).
		Where("user_id = ?", userID).
		Select("COALESCE(SUM(amount), 0)").
		Scan(&sum).Error)
	assert.Equal(t, balance.Balance, sum, "ledger amounts must sum to balance")
}

func TestEnsureAccount_TrialGrantOnce(t *testing.T) {
	db := newTestDB(t)
	clk := clock.NewFakeClock(time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC))
	svc := newTestService(t, db, clk)
	ctx := context.Background()
	userID := snowflake.ID(100)

	view, err := svc.EnsureAccount(ctx, userID)
	require.NoError(t, err)
	assert.Equal(t, int64(3), view.Balance)
	assert.Equal(t, creditsdomain.SubscriptionStatusTrialing, view.Status)

	// Second call must not grant again.
	view, err = svc.EnsureAccount(ctx, userID)
	require.NoError(t, err)
	assert.Equal(t, int64(3), view.Balance)

	var count int64
	require.NoError(t, db.Model(&creditsdomain.CreditLedgerEntry{}).
		Where("user_id = ?", userID).Count(&count).Error)
	assert.Equal(t, int64(1), count)
	userInvariant(t, db, userID)
}

func TestDebit_UpdatesBalanceAndLedger(t *testing.T) {
	db := newTestDB(t)
	clk := clock.NewFakeClock(time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC))
	svc := newTestService(t, db, clk)
	ctx := context.Background()
	userID := snowflake.ID(101)

	_, err := svc.EnsureAccount(ctx, userID)
	require.NoError(t, err)

	view, err := svc.Debit(ctx, creditsdomain.DebitRequest{UserID: userID, Amount: 2})
	require.NoError(t, err)
	assert.Equal(t, int64(1), view.Balance)
	assert.Equal(t, int64(2), view.Used)
	assert.Equal(t, int64(3), view.Total)
	userInvariant(t, db, userID)
}

func TestDebit_InsufficientBalance(t *testing.T) {
	db := newTestDB(t)
	clk := clock.NewFakeClock(time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC))
	svc := newTestService(t, db, clk)
	ctx := context.Background()
	userID := snowflake.ID(102)

	_, err := svc.EnsureAccount(ctx, userID)
	require.NoError(t, err)

	_, err = svc.Debit(ctx, creditsdomain.DebitRequest{UserID: userID, Amount: 5})
	assert.ErrorIs(t, err, creditsdomain.ErrInsufficientBalance)

	view, err := svc.Get(ctx, userID)
	require.NoError(t, err)
	assert.Equal(t, int64(3), view.Balance)
	userInvariant(t, db, userID)
}

func TestDebit_InvalidAmount(t *testing.T) {
	db := newTestDB(t)
	clk := clock.NewFakeClock(time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC))
	svc := newTestService(t, db, clk)
	ctx := context.Background()
	userID := snowflake.ID(103)

	_, err := svc.EnsureAccount(ctx, userID)
	require.NoError(t, err)

	_, err = svc.Debit(ctx, creditsdomain.DebitRequest{UserID: userID, Amount: 0})
	assert.ErrorIs(t, err, creditsdomain.ErrInvalidAmount)

	_, err = svc.Debit(ctx, creditsdomain.DebitRequest{UserID: userID, Amount: 11})
	assert.ErrorIs(t, err, creditsdomain.ErrInvalidAmount)
}

func TestDebit_SubscriptionNotActive(t *testing.T) {
	db := newTestDB(t)
	clk := clock.NewFakeClock(time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC))
	svc := newTestService(t, db, clk)
	ctx := context.Background()
	userID := snowflake.ID(104)

	_, err := svc.EnsureAccount(ctx, userID)
	require.NoError(t, err)
	require.NoError(t, svc.MarkPastDue(ctx, userID))

	_, err = svc.Debit(ctx, creditsdomain.DebitRequest{UserID: userID, Amount: 1})
	assert.ErrorIs(t, err, creditsdomain.ErrSubscriptionNotActive)
}

func TestDebit_CancelledKeepsSpending(t *testing.T) {
	db := newTestDB(t)
	clk := clock.NewFakeClock(time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC))
	svc := newTestService(t, db, clk)
	ctx := context.Background()
	userID := snowflake.ID(105)

	_, err := svc.EnsureAccount(ctx, userID)
	require.NoError(t, err)
	require.NoError(t, svc.Cancel(ctx, userID, clk.Now()))

	// Cancelled users keep spending what they already earned.
	view, err := svc.Debit(ctx, creditsdomain.DebitRequest{UserID: userID, Amount: 1})
	require.NoError(t, err)
	assert.Equal(t, int64(2), view.Balance)
	assert.Equal(t, creditsdomain.SubscriptionStatusCancelled, view.Status)
}

func TestDebit_ExhaustsExactly(t *testing.T) {
	db := newTestDB(t)
	clk := clock.NewFakeClock(time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC))
	svc := newTestService(t, db, clk)
	ctx := context.Background()
	userID := snowflake.ID(106)

	_, err := svc.EnsureAccount(ctx, userID)
	require.NoError(t, err)
	_, err = svc.Credit(ctx, creditsdomain.CreditRequest{UserID: userID, Amount: 7, Reason: "topup:test"})
	require.NoError(t, err)

	succeeded := 0
	for i := 0; i < 50; i++ {
		_, err := svc.Debit(ctx, creditsdomain.DebitRequest{UserID: userID, Amount: 1})
		if err == nil {
			succeeded++
			continue
		}
		assert.ErrorIs(t, err, creditsdomain.ErrInsufficientBalance)
	}
	assert.Equal(t, 10, succeeded)

	view, err := svc.Get(ctx, userID)
	require.NoError(t, err)
	assert.Equal(t, int64(0), view.Balance)
	userInvariant(t, db, userID)
}

func TestDebit_ConcurrentExhaustsExactly(t *testing.T) {
	db := newTestDB(t)
	clk := clock.NewFakeClock(time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC))
	svc := newTestService(t, db, clk)
	ctx := context.Background()
	userID := snowflake.ID(110)

	_, err := svc.EnsureAccount(ctx, userID)
	require.NoError(t, err)
	_, err = svc.Credit(ctx, creditsdomain.CreditRequest{UserID: userID, Amount: 7, Reason: "topup:concurrent"})
	require.NoError(t, err)

	results := make(chan error, 50)
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.Debit(ctx, creditsdomain.DebitRequest{UserID: userID, Amount: 1})
			results <- err
		}()
	}
	wg.Wait()
	close(results)

	succeeded, rejected := 0, 0
	for err := range results {
		switch {
		case err == nil:
			succeeded++
		case errors.Is(err, creditsdomain.ErrInsufficientBalance),
			errors.Is(err, creditsdomain.ErrConflict):
			rejected++
		default:
			t.Fatalf("unexpected debit error: %v", err)
		}
	}
	assert.Equal(t, 10, succeeded)
	assert.Equal(t, 40, rejected)

	view, err := svc.Get(ctx, userID)
	require.NoError(t, err)
	assert.Equal(t, int64(0), view.Balance)
	userInvariant(t, db, userID)
}

func TestCredit_IdempotentByReason(t *testing.T) {
	db := newTestDB(t)
	clk := clock.NewFakeClock(time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC))
	svc := newTestService(t, db, clk)
	ctx := context.Background()
	userID := snowflake.ID(107)

	_, err := svc.EnsureAccount(ctx, userID)
	require.NoError(t, err)

	view, err := svc.Credit(ctx, creditsdomain.CreditRequest{UserID: userID, Amount: 5, Reason: "achievement:first_recipe"})
	require.NoError(t, err)
	assert.Equal(t, int64(8), view.Balance)

	// Replayed reason is a no-op.
	view, err = svc.Credit(ctx, creditsdomain.CreditRequest{UserID: userID, Amount: 5, Reason: "achievement:first_recipe"})
	require.NoError(t, err)
	assert.Equal(t, int64(8), view.Balance)
	userInvariant(t, db, userID)
}

func TestReplace_SetsExactBalance(t *testing.T) {
	db := newTestDB(t)
	clk := clock.NewFakeClock(time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC))
	svc := newTestService(t, db, clk)
	ctx := context.Background()
	userID := snowflake.ID(108)

	_, err := svc.EnsureAccount(ctx, userID)
	require.NoError(t, err)
	_, err = svc.Debit(ctx, creditsdomain.DebitRequest{UserID: userID, Amount: 1})
	require.NoError(t, err)

	periodEnd := clk.Now().AddDate(0, 1, 0)
	view, err := svc.Replace(ctx, creditsdomain.ReplaceRequest{
		UserID:           userID,
		Amount:           20,
		Reason:           "billing-event:evt_1",
		PlanID:           "monthly",
		Status:           creditsdomain.SubscriptionStatusActive,
		CurrentPeriodEnd: &periodEnd,
	})
	require.NoError(t, err)
	assert.Equal(t, int64(20), view.Balance)
	assert.Equal(t, creditsdomain.SubscriptionStatusActive, view.Status)
	require.NotNil(t, view.PlanID)
	assert.Equal(t, "monthly", *view.PlanID)
	userInvariant(t, db, userID)

	// Redelivered event reason leaves the balance untouched.
	view, err = svc.Replace(ctx, creditsdomain.ReplaceRequest{
		UserID: userID,
		Amount: 20,
		Reason: "billing-event:evt_1",
		PlanID: "monthly",
		Status: creditsdomain.SubscriptionStatusActive,
	})
	require.NoError(t, err)
	assert.Equal(t, int64(20), view.Balance)
	userInvariant(t, db, userID)
}

func TestMarkPastDue_KeepsCancelledAt(t *testing.T) {
	db := newTestDB(t)
	clk := clock.NewFakeClock(time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC))
	svc := newTestService(t, db, clk)
	ctx := context.Background()
	userID := snowflake.ID(111)

	_, err := svc.EnsureAccount(ctx, userID)
	require.NoError(t, err)

	clk.Set(time.Date(2025, 6, 3, 9, 0, 0, 0, time.UTC))
	cancelledAt := clk.Now()
	require.NoError(t, svc.Cancel(ctx, userID, cancelledAt))

	// A trailing payment failure flips the status but must not erase the
	// cancellation timestamp.
	require.NoError(t, svc.MarkPastDue(ctx, userID))

	view, err := svc.Get(ctx, userID)
	require.NoError(t, err)
	assert.Equal(t, creditsdomain.SubscriptionStatusPastDue, view.Status)
	require.NotNil(t, view.CancelledAt)
	assert.True(t, view.CancelledAt.Equal(cancelledAt))
}

func TestListLedger_Pagination(t *testing.T) {
	db := newTestDB(t)
	clk := clock.NewFakeClock(time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC))
	svc := newTestService(t, db, clk)
	ctx := context.Background()
	userID := snowflake.ID(109)

	_, err := svc.EnsureAccount(ctx, userID)
	require.NoError(t, err)
	for i := 0; i < 5; i++ {
		_, err = svc.Credit(ctx, creditsdomain.CreditRequest{
			UserID: userID,
			Amount: 1,
			Reason: fmt.Sprintf("topup:%d", i),
		})
		require.NoError(t, err)
	}

	first, err := svc.ListLedger(ctx, creditsdomain.ListLedgerRequest{UserID: userID, PageSize: 4})
	require.NoError(t, err)
	assert.Len(t, first.Entries, 4)
	assert.True(t, first.HasMore)
	require.NotEmpty(t, first.NextPageToken)

	second, err := svc.ListLedger(ctx, creditsdomain.ListLedgerRequest{
		UserID:    userID,
		PageSize:  4,
		PageToken: first.NextPageToken,
	})
	require.NoError(t, err)
	assert.Len(t, second.Entries, 2)
	assert.False(t, second.HasMore)

	seen := map[snowflake.ID]struct{}{}
	for _, entry := range append(first.Entries, second.Entries...) {
		_, dup := seen[entry.ID]
		assert.False(t, dup)
		seen[entry.ID] = struct{}{}
	}
}

func TestListLedger_InvalidPageToken(t *testing.T) {
	db := newTestDB(t)
	clk := clock.NewFakeClock(time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC))
	svc := newTestService(t, db, clk)
	ctx := context.Background()
	userID := snowflake.ID(112)

	_, err := svc.EnsureAccount(ctx, userID)
	require.NoError(t, err)

	_, err = svc.ListLedger(ctx, creditsdomain.ListLedgerRequest{
		UserID:    userID,
		PageToken: "not-a-cursor",
	})
	assert.ErrorIs(t, err, creditsdomain.ErrInvalidPageToken)
}
