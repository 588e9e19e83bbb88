// Package domain contains the append-only log of completed recipe actions.
// Events are never mutated; achievement thresholds are counts over this log.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

// EventKind classifies recipe activity.
type EventKind string

const (
	EventKindGenerated EventKind = "generated"
	EventKindCooked    EventKind = "cooked"
)

func (k EventKind) Valid() bool {
	return k == EventKindGenerated || k == EventKindCooked
}

// RecipeEvent is one completed paid action or cooking completion. The
// (user_id, idempotency_key) unique index absorbs client retries.
type RecipeEvent struct {
	ID             snowflake.ID `gorm:"primaryKey"`
	UserID         snowflake.ID `gorm:"not null;index:ix_recipe_events_user_kind,priority:1;uniqueIndex:ux_recipe_events_user_key,priority:1"`
	Kind           EventKind    `gorm:"type:text;not null;index:ix_recipe_events_user_kind,priority:2"`
	IdempotencyKey string       `gorm:"type:text;not null;uniqueIndex:ux_recipe_events_user_key,priority:2"`
	OccurredAt     time.Time    `gorm:"not null"`
	CreatedAt      time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (RecipeEvent) TableName() string { return "recipe_events" }
