package ws

import (
	"time"

	"chat-gateway/internal/models"
)

// ConnInfo is the identity and request metadata captured at handshake.
type ConnInfo struct {
	ConnID      string
	UserID      string
	UserName    string
	UserEmail   string
	DeviceID    string
	IP          string
	RequestID   string
	TraceID     string
	ConnectedAt time.Time
}

// Identity returns the handshake snapshot of the connected user.
func (i ConnInfo) Identity() models.UserRef {
	return models.UserRef{ID: i.UserID, Name: i.UserName, Email: i.UserEmail}
}

func (i ConnInfo) lifecyclePayload(event, reason string, rooms int) map[string]interface{} {
	return map[string]interface{}{
		"ws": map[string]interface{}{
			"event":       event,
			"conn_id":     i.ConnID,
			"rooms":       rooms,
			"duration_ms": time.Since(i.ConnectedAt).Milliseconds(),
			"reason":      reason,
		},
		"identity": map[string]interface{}{
			"user_id":   i.UserID,
			"device_id": i.DeviceID,
			"ip":        i.IP,
		},
	}
}
