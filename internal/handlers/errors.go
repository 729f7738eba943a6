package handlers

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"chat-gateway/internal/service"
)

func statusFor(kind service.Kind) int {
	switch kind {
	case service.KindValidation:
		return http.StatusBadRequest
	case service.KindAuthentication:
		return http.StatusUnauthorized
	case service.KindAuthorization:
		return http.StatusForbidden
	case service.KindNotFound:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

// respondError maps a service error to a JSON response. Persistence failures are logged and
// reported with fallback instead of the underlying message.
func respondError(c *gin.Context, log *slog.Logger, err error, fallback string) {
	kind := service.KindOf(err)
	status := statusFor(kind)
	if status == http.StatusInternalServerError {
		log.Error(fallback, "error", err, "path", c.FullPath(), "request_id", requestIDFromContext(c))
		c.JSON(status, gin.H{"error": fallback})
		return
	}
	c.JSON(status, gin.H{"error": err.Error()})
}
