package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// GetStreak runs the lazy reset check before returning, so a lapsed streak
// reads as zero the moment it is looked at.
func (s *Server) GetStreak(c *gin.Context) {
	userID, ok := s.currentUserID(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	view, err := s.streakSvc.Refresh(c.Request.Context(), userID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, view)
}
