package ws

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"chat-gateway/internal/observability"
)

// Handle authenticates the handshake and upgrades the connection.
func (g *Gateway) Handle(c *gin.Context) {
	ctx, span := g.tracer.Start(c.Request.Context(), "ws.handshake")
	defer span.End()
	c.Request = c.Request.WithContext(ctx)

	userID, err := principalFromRequest(c.Request)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		c.JSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
		return
	}

	identity, err := g.auth.Authenticate(ctx, userID)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		message := "authentication failed"
		if errors.Is(err, ErrUserNotFound) || errors.Is(err, ErrMalformedUserID) {
			message = err.Error()
		} else {
			g.log.Error("websocket authentication failed", "user_id", userID, "error", err)
		}
		c.JSON(http.StatusUnauthorized, gin.H{"error": message})
		return
	}
	span.SetAttributes(attribute.String("user.id", identity.ID))

	conn, err := g.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		g.log.Warn("websocket upgrade failed", "user_id", identity.ID, "error", err)
		return
	}

	info := ConnInfo{
		ConnID:      newConnID(),
		UserID:      identity.ID,
		UserName:    identity.Name,
		UserEmail:   identity.Email,
		DeviceID:    observability.DeviceIDFromRequest(c.Request),
		IP:          observability.IPFromRequest(c.Request),
		RequestID:   observability.RequestIDFromRequest(c.Request),
		TraceID:     span.SpanContext().TraceID().String(),
		ConnectedAt: time.Now(),
	}
	g.serve(conn, info)
}
