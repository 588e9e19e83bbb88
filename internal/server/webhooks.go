package server

import (
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	billingdomain "github.com/mealforge/mealforge/internal/billing/domain"
	"go.uber.org/zap"
)

const maxWebhookBodyBytes = 1 << 20

// BillingWebhook verifies, parses and applies a provider delivery. Ignored
// and already-processed events are acknowledged with 200 so the provider
// stops retrying them.
func (s *Server) BillingWebhook(c *gin.Context) {
	payload, err := io.ReadAll(io.LimitReader(c.Request.Body, maxWebhookBodyBytes))
	if err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	if err := s.billingAdapter.Verify(payload, c.Request.Header); err != nil {
		AbortWithError(c, err)
		return
	}

	event, err := s.billingAdapter.Parse(payload)
	if err != nil {
		if errors.Is(err, billingdomain.ErrEventIgnored) {
			c.JSON(http.StatusOK, gin.H{"status": "ignored"})
			return
		}
		AbortWithError(c, err)
		return
	}

	if err := s.billingSvc.Process(c.Request.Context(), event); err != nil {
		if errors.Is(err, billingdomain.ErrEventAlreadyProcessed) {
			c.JSON(http.StatusOK, gin.H{"status": "already_processed"})
			return
		}
		if errors.Is(err, billingdomain.ErrEventIgnored) {
			c.JSON(http.StatusOK, gin.H{"status": "ignored"})
			return
		}
		s.log.Error("billing webhook apply failed",
			zap.String("event_id", event.ID),
			zap.String("type", event.Type),
			zap.Error(err))
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "processed"})
}
