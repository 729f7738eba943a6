package observability

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type capturePublisher struct {
	keys   []string
	events []any
	err    error
}

func (p *capturePublisher) Publish(_ context.Context, routingKey string, event any) error {
	p.keys = append(p.keys, routingKey)
	p.events = append(p.events, event)
	return p.err
}

func TestEventsEmitWrapsEnvelope(t *testing.T) {
	pub := &capturePublisher{}
	events := NewEvents(pub, nil)

	events.Emit(context.Background(), RoutingMessageSent, "chat_events", "message_sent", map[string]string{"id": "m1"})

	require.Len(t, pub.events, 1)
	assert.Equal(t, RoutingMessageSent, pub.keys[0])
	envelope, ok := pub.events[0].(EventEnvelope)
	require.True(t, ok)
	assert.Equal(t, "message_sent", envelope.EventName)
	assert.NotEmpty(t, envelope.OccurredAt)
}

func TestEventsEmitToleratesFailureAndNil(t *testing.T) {
	pub := &capturePublisher{err: errors.New("broker down")}
	NewEvents(pub, nil).Emit(context.Background(), RoutingPresence, "presence_events", "user_online", nil)
	assert.Len(t, pub.events, 1)

	var events *Events
	events.Emit(context.Background(), RoutingPresence, "presence_events", "user_online", nil)
	PresenceEvents{}.UserOnline("u1")
}

func TestRequestIDMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(RequestIDMiddleware())
	var seen string
	router.GET("/", func(c *gin.Context) {
		seen = RequestIDFromContext(c.Request.Context())
		c.Status(http.StatusNoContent)
	})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(RequestIDHeader, "req-1")
	router.ServeHTTP(w, req)
	assert.Equal(t, "req-1", seen)
	assert.Equal(t, "req-1", w.Header().Get(RequestIDHeader))

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.NotEmpty(t, seen)
	assert.Equal(t, seen, w.Header().Get(RequestIDHeader))
}

func TestHeadersFromContext(t *testing.T) {
	headers := HeadersFromContext(WithRequestID(context.Background(), "req-9"))
	assert.Equal(t, map[string]string{"x-request-id": "req-9"}, headers)
	assert.Empty(t, HeadersFromContext(context.Background()))
}

func TestIPFromRequest(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "10.0.0.1:5555"
	assert.Equal(t, "10.0.0.1", IPFromRequest(req))
	req.Header.Set("X-Forwarded-For", "1.2.3.4, 10.0.0.1")
	assert.Equal(t, "1.2.3.4", IPFromRequest(req))
}

func TestSplitFullMethod(t *testing.T) {
	service, method := splitFullMethod("/grpc.health.v1.Health/Check")
	assert.Equal(t, "grpc.health.v1.Health", service)
	assert.Equal(t, "Check", method)
	service, method = splitFullMethod("bogus")
	assert.Equal(t, "unknown", service)
	assert.Equal(t, "unknown", method)
}
