package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/fitsphere/chat-service/internal/auth"
	"github.com/fitsphere/chat-service/internal/chat"
)

// respondError maps service errors to status codes. Unexpected errors are
// logged and hidden from the client.
func respondError(c *gin.Context, err error) {
	var status int
	switch {
	case errors.Is(err, auth.ErrInvalidToken), errors.Is(err, auth.ErrMissingToken):
		status = http.StatusUnauthorized
	case errors.Is(err, chat.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, chat.ErrValidation):
		status = http.StatusBadRequest
	case errors.Is(err, chat.ErrForbidden):
		status = http.StatusForbidden
	default:
		log.WithError(err).WithField("path", c.FullPath()).Error("request failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
		return
	}
	c.JSON(status, gin.H{"error": err.Error()})
}
