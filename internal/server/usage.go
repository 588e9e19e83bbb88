package server

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	usagedomain "github.com/mealforge/mealforge/internal/usage/domain"
	"go.uber.org/zap"
)

type RecordRecipeEventRequest struct {
	Kind           string     `json:"kind"`
	IdempotencyKey string     `json:"idempotency_key"`
	OccurredAt     *time.Time `json:"occurred_at"`
}

func (s *Server) RecordRecipeEvent(c *gin.Context) {
	userID, ok := s.currentUserID(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	allowed, err := s.limiter.AllowUsage(c.Request.Context(), userID.String())
	if err != nil {
		s.log.Warn("usage rate limit check failed", zap.Error(err))
	} else if !allowed {
		AbortWithError(c, ErrRateLimited)
		return
	}

	var req RecordRecipeEventRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	record := usagedomain.RecordRequest{
		UserID:         userID,
		Kind:           usagedomain.EventKind(req.Kind),
		IdempotencyKey: req.IdempotencyKey,
	}
	if req.OccurredAt != nil {
		record.OccurredAt = *req.OccurredAt
	}

	resp, err := s.usageSvc.Record(c.Request.Context(), record)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, resp)
}
