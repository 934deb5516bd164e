package http

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"mail-market/internal/service"
)

// writeError maps service errors to status codes. Unknown errors are logged
// and reported without detail.
func (h *Handler) writeError(c *gin.Context, err error) {
	status, public := http.StatusInternalServerError, "internal server error"
	switch {
	case errors.Is(err, service.ErrInvalidRequest):
		status, public = http.StatusBadRequest, reason(err, service.ErrInvalidRequest)
	case errors.Is(err, service.ErrInsufficientFunds):
		status, public = http.StatusPaymentRequired, reason(err, service.ErrInsufficientFunds)
	case errors.Is(err, service.ErrOutOfStock):
		status, public = http.StatusServiceUnavailable, reason(err, service.ErrOutOfStock)
	case errors.Is(err, service.ErrAllocationFailed):
		status, public = http.StatusServiceUnavailable, "supplier could not deliver the items, you were not charged"
	case errors.Is(err, service.ErrUserNotFound):
		status, public = http.StatusNotFound, "user not found"
	case errors.Is(err, service.ErrDepositNotFound):
		status, public = http.StatusNotFound, reason(err, service.ErrDepositNotFound)
	case errors.Is(err, service.ErrUserAlreadyExists):
		status, public = http.StatusConflict, "username is already taken"
	case errors.Is(err, service.ErrInvalidCredentials):
		status, public = http.StatusUnauthorized, "invalid username or password"
	case errors.Is(err, service.ErrPaymentUnavailable):
		status, public = http.StatusBadGateway, "payment gateway unavailable, try again later"
	default:
		h.log.WithError(err).WithField("path", c.Request.URL.Path).Error("request failed")
	}
	c.JSON(status, gin.H{"error": public})
}

// reason renders "sentinel: detail" as "sentinel (detail)".
func reason(err, sentinel error) string {
	msg := err.Error()
	prefix := sentinel.Error() + ": "
	if detail, ok := strings.CutPrefix(msg, prefix); ok && detail != "" {
		return sentinel.Error() + " (" + detail + ")"
	}
	return sentinel.Error()
}
