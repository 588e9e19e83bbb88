package adapter

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	billingdomain "github.com/mealforge/mealforge/internal/billing/domain"
	"github.com/mealforge/mealforge/internal/config"
)

// SignatureHeader carries the delivery signature as "t=<unix>,v1=<hex hmac>".
const SignatureHeader = "Meal-Signature"

type Adapter struct {
	webhookSecret string
}

func New(cfg config.Config) billingdomain.Adapter {
	return &Adapter{webhookSecret: cfg.BillingWebhookSecret}
}

func (a *Adapter) Verify(payload []byte, headers http.Header) error {
	sigHeader := strings.TrimSpace(headers.Get(SignatureHeader))
	if sigHeader == "" {
		return billingdomain.ErrInvalidSignature
	}

	timestamp, signatures, err := parseSignatureHeader(sigHeader)
	if err != nil {
		return billingdomain.ErrInvalidSignature
	}

	signedPayload := fmt.Sprintf("%s.%s", timestamp, string(payload))
	mac := hmac.New(sha256.New, []byte(a.webhookSecret))
	_, _ = mac.Write([]byte(signedPayload))
	expected := hex.EncodeToString(mac.Sum(nil))

	for _, signature := range signatures {
		if hmac.Equal([]byte(signature), []byte(expected)) {
			return nil
		}
	}

	return billingdomain.ErrInvalidSignature
}

func (a *Adapter) Parse(payload []byte) (*billingdomain.BillingEvent, error) {
	var event webhookEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		return nil, billingdomain.ErrInvalidPayload
	}
	if strings.TrimSpace(event.ID) == "" {
		return nil, billingdomain.ErrInvalidEvent
	}

	switch strings.TrimSpace(event.Type) {
	case billingdomain.EventTypeSubscriptionCreated,
		billingdomain.EventTypeSubscriptionUpdated,
		billingdomain.EventTypeSubscriptionDeleted:
		return parseSubscription(event, payload)
	case billingdomain.EventTypePaymentSucceeded,
		billingdomain.EventTypePaymentFailed:
		return parseInvoice(event, payload)
	default:
		return nil, billingdomain.ErrEventIgnored
	}
}

type webhookEvent struct {
	ID      string           `json:"id"`
	Type    string           `json:"type"`
	Created int64            `json:"created"`
	Data    webhookEventData `json:"data"`
}

type webhookEventData struct {
	Object json.RawMessage `json:"object"`
}

type webhookSubscription struct {
	ID               string `json:"id"`
	UserID           string `json:"user_id"`
	PlanID           string `json:"plan_id"`
	Status           string `json:"status"`
	CurrentPeriodEnd int64  `json:"current_period_end"`
}

type webhookInvoice struct {
	ID            string `json:"id"`
	UserID        string `json:"user_id"`
	PlanID        string `json:"plan_id"`
	BillingReason string `json:"billing_reason"`
}

func parseSubscription(event webhookEvent, payload []byte) (*billingdomain.BillingEvent, error) {
	var sub webhookSubscription
	if err := json.Unmarshal(event.Data.Object, &sub); err != nil {
		return nil, billingdomain.ErrInvalidPayload
	}

	userID, err := parseUserID(sub.UserID)
	if err != nil {
		return nil, err
	}

	var periodEnd *time.Time
	if sub.CurrentPeriodEnd > 0 {
		t := time.Unix(sub.CurrentPeriodEnd, 0).UTC()
		periodEnd = &t
	}

	return &billingdomain.BillingEvent{
		ID:               event.ID,
		Type:             strings.TrimSpace(event.Type),
		UserID:           userID,
		PlanID:           strings.TrimSpace(sub.PlanID),
		Status:           strings.TrimSpace(sub.Status),
		CurrentPeriodEnd: periodEnd,
		OccurredAt:       eventTimestamp(event.Created),
		RawPayload:       payload,
	}, nil
}

func parseInvoice(event webhookEvent, payload []byte) (*billingdomain.BillingEvent, error) {
	var invoice webhookInvoice
	if err := json.Unmarshal(event.Data.Object, &invoice); err != nil {
		return nil, billingdomain.ErrInvalidPayload
	}

	userID, err := parseUserID(invoice.UserID)
	if err != nil {
		return nil, err
	}

	return &billingdomain.BillingEvent{
		ID:            event.ID,
		Type:          strings.TrimSpace(event.Type),
		UserID:        userID,
		PlanID:        strings.TrimSpace(invoice.PlanID),
		BillingReason: strings.TrimSpace(invoice.BillingReason),
		OccurredAt:    eventTimestamp(event.Created),
		RawPayload:    payload,
	}, nil
}

func parseUserID(raw string) (snowflake.ID, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, billingdomain.ErrInvalidEvent
	}
	id, err := snowflake.ParseString(raw)
	if err != nil {
		return 0, billingdomain.ErrInvalidEvent
	}
	return id, nil
}

func eventTimestamp(created int64) time.Time {
	if created > 0 {
		return time.Unix(created, 0).UTC()
	}
	return time.Now().UTC()
}

func parseSignatureHeader(header string) (string, []string, error) {
	parts := strings.Split(header, ",")
	var timestamp string
	signatures := []string{}
	for _, part := range parts {
		piece := strings.TrimSpace(part)
		if piece == "" {
			continue
		}
		keyValue := strings.SplitN(piece, "=", 2)
		if len(keyValue) != 2 {
			continue
		}
		key := strings.TrimSpace(keyValue[0])
		value := strings.TrimSpace(keyValue[1])
		if key == "t" {
			timestamp = value
		}
		if key == "v1" && value != "" {
			signatures = append(signatures, value)
		}
	}
	if timestamp == "" || len(signatures) == 0 {
		return "", nil, billingdomain.ErrInvalidSignature
	}
	return timestamp, signatures, nil
}

// Sign computes the signature header value for a payload. Exposed for tests
// and local delivery tooling.
func Sign(secret string, timestamp time.Time, payload []byte) string {
	signedPayload := fmt.Sprintf("%d.%s", timestamp.Unix(), string(payload))
	mac := hmac.New(sha256.New, []byte(secret))
	_, _ = mac.Write([]byte(signedPayload))
	return fmt.Sprintf("t=%d,v1=%s", timestamp.Unix(), hex.EncodeToString(mac.Sum(nil)))
}
