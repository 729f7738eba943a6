package handlers

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"chat-gateway/internal/models"
	"chat-gateway/internal/observability"
)

const (
	requestIDContextKey = "request_id"
	userIDContextKey    = "userID"
	userNameContextKey  = "userName"
	userEmailContextKey = "userEmail"
)

func requestIDFromContext(c *gin.Context) string {
	if val, ok := c.Get(requestIDContextKey); ok {
		if id, ok := val.(string); ok && id != "" {
			return id
		}
	}

	requestID := c.GetHeader(observability.RequestIDHeader)
	if requestID == "" {
		requestID = uuid.NewString()
	}
	c.Set(requestIDContextKey, requestID)
	return requestID
}

func userIDFromContext(c *gin.Context) string {
	return c.GetString(userIDContextKey)
}

// callerFromContext returns the authenticated caller as carried by the bearer token.
func callerFromContext(c *gin.Context) models.UserRef {
	return models.UserRef{
		ID:    c.GetString(userIDContextKey),
		Name:  c.GetString(userNameContextKey),
		Email: c.GetString(userEmailContextKey),
	}
}
