package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
	creditsdomain "github.com/mealforge/mealforge/internal/credits/domain"
	"github.com/mealforge/mealforge/pkg/db/pagination"
	"go.uber.org/zap"
)

type DebitRequest struct {
	Amount int64 `json:"amount"`
}

func (s *Server) GetCredits(c *gin.Context) {
	userID, ok := s.currentUserID(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	view, err := s.creditSvc.Get(c.Request.Context(), userID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, view)
}

func (s *Server) DebitCredits(c *gin.Context) {
	userID, ok := s.currentUserID(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	allowed, err := s.limiter.AllowDebit(c.Request.Context(), userID.String())
	if err != nil {
		s.log.Warn("debit rate limit check failed", zap.Error(err))
	} else if !allowed {
		AbortWithError(c, ErrRateLimited)
		return
	}

	var req DebitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	view, err := s.creditSvc.Debit(c.Request.Context(), creditsdomain.DebitRequest{
		UserID: userID,
		Amount: req.Amount,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, view)
}

func (s *Server) ListCreditLedger(c *gin.Context) {
	userID, ok := s.currentUserID(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	var page pagination.Pagination
	if err := c.ShouldBindQuery(&page); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.creditSvc.ListLedger(c.Request.Context(), creditsdomain.ListLedgerRequest{
		UserID:    userID,
		PageToken: page.PageToken,
		PageSize:  page.PageSize,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, resp)
}
