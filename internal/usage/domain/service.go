package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
)

type RecordRequest struct {
	UserID         snowflake.ID
	Kind           EventKind
	IdempotencyKey string
	OccurredAt     time.Time
}

type RecordResponse struct {
	Recorded bool `json:"recorded"`
}

// Counts are the cumulative usage counters achievement thresholds are
// compared against.
type Counts struct {
	Generated int64 `json:"generated"`
	Cooked    int64 `json:"cooked"`
}

type Service interface {
	// Record appends an event. A duplicate idempotency key is a no-op with
	// Recorded=false. Generated events also advance the streak, best-effort.
	Record(ctx context.Context, req RecordRequest) (RecordResponse, error)
	Counts(ctx context.Context, userID snowflake.ID) (Counts, error)
}

var (
	ErrInvalidKind           = errors.New("invalid_kind")
	ErrInvalidIdempotencyKey = errors.New("invalid_idempotency_key")
)
