package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// Signup provisions the credit account for the authenticated user. Calling
// it again returns the existing balance without a second trial grant.
func (s *Server) Signup(c *gin.Context) {
	userID, ok := s.currentUserID(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	view, err := s.creditSvc.EnsureAccount(c.Request.Context(), userID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, view)
}
