package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/aihub-platform/backend/pkg/apperr"
)

// writeError maps an error to the HTTP surface described in the
// specification's error handling design and writes the JSON body, or falls
// back to 500 for anything that isn't an *apperr.Error.
func writeError(c *gin.Context, err error) {
	appErr, ok := apperr.As(err)
	if !ok {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "InternalError", "message": "an unexpected error occurred"})
		return
	}

	status, code := statusFor(appErr)
	body := gin.H{"error": code, "message": appErr.Message}
	if appErr.Field != "" {
		body["field"] = appErr.Field
	}
	if appErr.Kind == apperr.KindRateLimited {
		body["retry_after"] = appErr.RetryAfter
	}
	c.JSON(status, body)
}

func statusFor(e *apperr.Error) (int, string) {
	switch e.Kind {
	case apperr.KindNotFound:
		return http.StatusNotFound, "NotFound"
	case apperr.KindValidation:
		return http.StatusUnprocessableEntity, "ValidationError"
	case apperr.KindAuthentication:
		return http.StatusUnauthorized, "AuthenticationError"
	case apperr.KindAuthorization:
		return http.StatusForbidden, "AuthorizationError"
	case apperr.KindConflict:
		return http.StatusConflict, "Conflict"
	case apperr.KindRateLimited:
		return http.StatusTooManyRequests, "RateLimitExceeded"
	case apperr.KindQuotaExceeded:
		return http.StatusPaymentRequired, "QuotaExceeded"
	case apperr.KindUpstreamUnavailable:
		return http.StatusBadGateway, "UpstreamUnavailable"
	case apperr.KindFileProcessing:
		return http.StatusUnprocessableEntity, "FileProcessingError"
	default:
		return http.StatusInternalServerError, "InternalError"
	}
}
