// Package domain contains persistence models for credit balances and the
// reason-keyed credit ledger.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

// SubscriptionStatus represents lifecycle states for a user's subscription.
type SubscriptionStatus string

const (
	SubscriptionStatusTrialing  SubscriptionStatus = "trialing"
	SubscriptionStatusActive    SubscriptionStatus = "active"
	SubscriptionStatusPastDue   SubscriptionStatus = "past_due"
	SubscriptionStatusCancelled SubscriptionStatus = "cancelled"
)

// Spendable reports whether the status allows debits.
func (s SubscriptionStatus) Spendable() bool {
	return s == SubscriptionStatusActive || s == SubscriptionStatusTrialing
}

// CreditBalance is the single per-user balance row. All mutations are atomic
// conditional writes; the row is never deleted.
//
// Invariant: GrantedLifetime - UsedLifetime == Balance.
type CreditBalance struct {
	UserID           snowflake.ID       `gorm:"primaryKey"`
	Balance          int64              `gorm:"not null;default:0"`
	UsedLifetime     int64              `gorm:"not null;default:0"`
	GrantedLifetime  int64              `gorm:"not null;default:0"`
	Status           SubscriptionStatus `gorm:"type:text;not null"`
	PlanID           *string            `gorm:"type:text"`
	CurrentPeriodEnd *time.Time         `gorm:""`
	CancelledAt      *time.Time         `gorm:""`
	CreatedAt        time.Time          `gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt        time.Time          `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (CreditBalance) TableName() string { return "credit_balances" }

// LedgerEntryKind classifies ledger postings.
type LedgerEntryKind string

const (
	LedgerEntryKindDebit   LedgerEntryKind = "debit"
	LedgerEntryKindGrant   LedgerEntryKind = "grant"
	LedgerEntryKindReplace LedgerEntryKind = "replace"
)

// CreditLedgerEntry is an immutable posting against a user's balance. The
// (user_id, reason) unique index is the idempotency boundary for grants:
// inserting the same reason twice is a no-op and the grant must not re-apply.
type CreditLedgerEntry struct {
	ID           snowflake.ID    `gorm:"primaryKey"`
	UserID       snowflake.ID    `gorm:"not null;index:ix_credit_ledger_user;uniqueIndex:ux_credit_ledger_user_reason,priority:1"`
	Kind         LedgerEntryKind `gorm:"type:text;not null"`
	Amount       int64           `gorm:"not null"`
	Reason       string          `gorm:"type:text;not null;uniqueIndex:ux_credit_ledger_user_reason,priority:2"`
	BalanceAfter int64           `gorm:"not null"`
	CreatedAt    time.Time       `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (CreditLedgerEntry) TableName() string { return "credit_ledger_entries" }
