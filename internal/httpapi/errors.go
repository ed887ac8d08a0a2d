package httpapi

import (
	"errors"
	"net/http"

	"edutalks/internal/backend"
	"edutalks/internal/calls"
	"edutalks/pkg/logger"

	"github.com/gin-gonic/gin"
)

// statusFor maps domain errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, calls.ErrInvalidRating):
		return http.StatusBadRequest
	case errors.Is(err, calls.ErrSessionActiveElsewhere):
		return http.StatusConflict
	case errors.Is(err, calls.ErrNoCandidates), errors.Is(err, calls.ErrInvalidState):
		return http.StatusConflict
	case errors.Is(err, calls.ErrCallInitiationFailed), errors.Is(err, calls.ErrRatingFailed):
		return http.StatusBadGateway
	}
	var se *backend.StatusError
	if errors.As(err, &se) {
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

func abortWithError(c *gin.Context, err error) {
	code := statusFor(err)
	msg := err.Error()
	if code == http.StatusInternalServerError {
		msg = "internal error"
	}
	if code >= http.StatusInternalServerError {
		_ = c.Error(err)
	} else {
		logger.From(c.Request.Context()).Debug("request rejected", "status", code, "err", err)
	}
	c.AbortWithStatusJSON(code, gin.H{"error": msg})
}
