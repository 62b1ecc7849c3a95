package httpapi

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"itemcore/internal/export"
	"itemcore/pkg/domain"
)

// statusFor maps domain errors onto HTTP status codes.
func statusFor(err error) int {
	var (
		notFound   domain.ErrNotFound
		validation domain.ValidationError
		refused    domain.ErrCreationRefused
		violation  *domain.InvariantViolation
	)
	switch {
	case errors.As(err, &notFound):
		return http.StatusNotFound
	case errors.As(err, &validation):
		return http.StatusBadRequest
	case errors.As(err, &refused):
		return http.StatusForbidden
	case errors.As(err, &violation):
		return http.StatusConflict
	case errors.Is(err, export.ErrQueueFull):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func abortWithError(c *gin.Context, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		_ = c.Error(err)
	}
	c.AbortWithStatusJSON(status, gin.H{"error": err.Error()})
}

func badRequest(c *gin.Context, msg string) {
	c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": msg})
}

func itemIDParam(c *gin.Context, name string) (domain.ItemID, bool) {
	raw := c.Param(name)
	id, err := strconv.ParseUint(raw, 10, 32)
	if err != nil || id == 0 {
		badRequest(c, "invalid item id "+strconv.Quote(raw))
		return 0, false
	}
	return domain.ItemID(id), true
}
