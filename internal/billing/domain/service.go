package domain

import (
	"context"
	"errors"
	"net/http"
)

// Adapter verifies and normalizes raw webhook deliveries from the billing
// provider.
type Adapter interface {
	Verify(payload []byte, headers http.Header) error
	Parse(payload []byte) (*BillingEvent, error)
}

type Service interface {
	// Process applies one verified event to the credit state. Redeliveries
	// return ErrEventAlreadyProcessed, unknown types ErrEventIgnored; both
	// are acknowledged with success at the HTTP layer.
	Process(ctx context.Context, event *BillingEvent) error
}

var (
	ErrInvalidSignature      = errors.New("invalid_signature")
	ErrInvalidPayload        = errors.New("invalid_payload")
	ErrInvalidEvent          = errors.New("invalid_event")
	ErrEventIgnored          = errors.New("event_ignored")
	ErrEventAlreadyProcessed = errors.New("event_already_processed")
	ErrUnknownPlan           = errors.New("unknown_plan")
)
