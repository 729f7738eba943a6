package ws

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type received struct {
	Event string          `json:"event"`
	Ack   *int64          `json:"ack"`
	Data  json.RawMessage `json:"data"`
}

func testClient(connID, userID string) *Client {
	return newClient(nil, ConnInfo{ConnID: connID, UserID: userID, UserName: "name-" + userID}, nil)
}

// drain returns every frame queued for c without blocking.
func drain(t *testing.T, c *Client) []received {
	t.Helper()
	var out []received
	for {
		select {
		case payload := <-c.send:
			var f received
			require.NoError(t, json.Unmarshal(payload, &f))
			out = append(out, f)
		default:
			return out
		}
	}
}

func eventsOf(frames []received) []string {
	names := make([]string, 0, len(frames))
	for _, f := range frames {
		names = append(names, f.Event)
	}
	return names
}

func TestHubJoinLeaveUnregister(t *testing.T) {
	hub := NewHub(nil, nil)
	a := testClient("c1", "u1")
	hub.Register(a)

	hub.Join("room1", a)
	hub.Join("room2", a)
	assert.True(t, hub.InRoom("room1", a))
	assert.Equal(t, 1, hub.RoomSize("room2"))

	hub.Leave("room2", a)
	assert.False(t, hub.InRoom("room2", a))
	assert.Equal(t, 0, hub.RoomSize("room2"))

	assert.Equal(t, 1, hub.Unregister(a))
	assert.False(t, hub.InRoom("room1", a))
	_, ok := hub.Client("c1")
	assert.False(t, ok)
}

func TestHubJoinRequiresRegistration(t *testing.T) {
	hub := NewHub(nil, nil)
	a := testClient("c1", "u1")

	hub.Join("room1", a)
	assert.Equal(t, 0, hub.RoomSize("room1"))
}

func TestHubEmitToRoomSkipsSender(t *testing.T) {
	hub := NewHub(nil, nil)
	a, b, outsider := testClient("c1", "u1"), testClient("c2", "u2"), testClient("c3", "u3")
	for _, c := range []*Client{a, b, outsider} {
		hub.Register(c)
	}
	hub.Join("room1", a)
	hub.Join("room1", b)

	hub.EmitToRoom("room1", EventTypingStarted, typingPayload{ConversationID: "room1", UserID: "u1"}, a)

	assert.Empty(t, drain(t, a))
	assert.Equal(t, []string{EventTypingStarted}, eventsOf(drain(t, b)))
	assert.Empty(t, drain(t, outsider))
}

func TestHubEmitToConnsAndAll(t *testing.T) {
	hub := NewHub(nil, nil)
	a, b := testClient("c1", "u1"), testClient("c2", "u2")
	hub.Register(a)
	hub.Register(b)

	hub.EmitToConns([]string{"c2", "missing"}, EventUserOnline, userPresencePayload{UserID: "u9"})
	assert.Empty(t, drain(t, a))
	assert.Equal(t, []string{EventUserOnline}, eventsOf(drain(t, b)))

	hub.EmitAll(EventUserOffline, userPresencePayload{UserID: "u9"})
	assert.Len(t, drain(t, a), 1)
	assert.Len(t, drain(t, b), 1)
}

func TestHubEmitToCarriesAck(t *testing.T) {
	hub := NewHub(nil, nil)
	a := testClient("c1", "u1")
	hub.Register(a)

	ack := int64(7)
	hub.EmitTo(a, EventAck, &ack, AckPayload{Status: AckOK})

	frames := drain(t, a)
	require.Len(t, frames, 1)
	require.NotNil(t, frames[0].Ack)
	assert.Equal(t, int64(7), *frames[0].Ack)
	assert.JSONEq(t, `{"status":"ok"}`, string(frames[0].Data))
}

func TestHubClosesSlowClient(t *testing.T) {
	hub := NewHub(nil, nil)
	slow, fast := testClient("c1", "u1"), testClient("c2", "u2")
	hub.Register(slow)
	hub.Register(fast)

	for i := 0; i < sendQueueSize; i++ {
		hub.EmitTo(slow, EventUserOnline, nil, userPresencePayload{UserID: "x"})
	}
	assert.False(t, slow.closed())

	hub.EmitAll(EventUserOnline, userPresencePayload{UserID: "x"})
	assert.True(t, slow.closed())
	assert.False(t, fast.closed())
	assert.Len(t, drain(t, fast), 1)
}
