package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"chance-winner-hub/internal/services"
)

func statusFor(err error) int {
	switch {
	case errors.Is(err, services.ErrAuthenticationRequired):
		return http.StatusUnauthorized
	case errors.Is(err, services.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, services.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, services.ErrAlreadyClaimed),
		errors.Is(err, services.ErrNotPending),
		errors.Is(err, services.ErrDuplicateRound),
		errors.Is(err, services.ErrRoundClosed),
		errors.Is(err, services.ErrDrawClosed),
		errors.Is(err, services.ErrSeedInUse),
		errors.Is(err, services.ErrAccountModeMismatch):
		return http.StatusConflict
	case errors.Is(err, services.ErrInsufficientFunds):
		return http.StatusPaymentRequired
	case errors.Is(err, services.ErrInvalidStake),
		errors.Is(err, services.ErrInvalidBet),
		errors.Is(err, services.ErrInvalidRequest),
		errors.Is(err, services.ErrRewardExpired):
		return http.StatusBadRequest
	case errors.Is(err, services.ErrRateLimited):
		return http.StatusTooManyRequests
	case errors.Is(err, services.ErrBackendUnavailable):
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

// respondError renders the user-facing message class. Server-side failures
// never leak their cause.
func respondError(c *gin.Context, err error) {
	status := statusFor(err)
	class, message := services.Classify(err)

	body := gin.H{
		"error": message,
		"class": class,
	}
	if status < http.StatusInternalServerError {
		body["details"] = err.Error()
	}
	c.JSON(status, body)
}

func badRequest(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, gin.H{
		"error":   "Invalid request",
		"details": err.Error(),
	})
}

func currentUser(c *gin.Context) string {
	return c.GetString("user_id")
}
