package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	// Insert appends the event. Returns false when the idempotency key was
	// already used.
	Insert(ctx context.Context, db *gorm.DB, event *RecipeEvent) (bool, error)
	CountByKind(ctx context.Context, db *gorm.DB, userID snowflake.ID, kind EventKind) (int64, error)
}
