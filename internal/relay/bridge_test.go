package relay

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chat-gateway/internal/models"
)

type emission struct {
	userID string
	event  string
	data   any
}

type recordingEmitter struct {
	mu    sync.Mutex
	calls []emission
}

func (r *recordingEmitter) EmitToUser(userID, event string, data any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, emission{userID, event, data})
}

func TestBridgeAttachOnce(t *testing.T) {
	b := NewBridge(nil)
	assert.False(t, b.Attached())
	require.NoError(t, b.Attach(&recordingEmitter{}))
	assert.True(t, b.Attached())
	assert.ErrorIs(t, b.Attach(&recordingEmitter{}), ErrAlreadyAttached)
	assert.Error(t, b.Attach(nil))
}

func TestBridgeDropsWithoutEmitter(t *testing.T) {
	b := NewBridge(nil)
	b.ConversationCreated(context.Background(), models.Conversation{ID: "c1", Participants: []string{"u1"}}, nil)
}

func TestBridgeNamesConversationPerRecipient(t *testing.T) {
	b := NewBridge(nil)
	rec := &recordingEmitter{}
	require.NoError(t, b.Attach(rec))

	conv := models.Conversation{ID: "c1", Type: models.ConversationDirect, Participants: []string{"u1", "u2"}}
	b.ConversationCreated(context.Background(), conv, []models.UserRef{
		{ID: "u1", Name: "Ann"},
		{ID: "u2", Name: "Bob"},
	})

	require.Len(t, rec.calls, 2)
	names := map[string]string{}
	for _, call := range rec.calls {
		assert.Equal(t, EventConversationCreated, call.event)
		payload := call.data.(map[string]any)
		names[call.userID] = payload["conversation"].(models.ConversationView).Name
	}
	assert.Equal(t, map[string]string{"u1": "Bob", "u2": "Ann"}, names)
}

func TestBridgeGroupKeepsStoredName(t *testing.T) {
	b := NewBridge(nil)
	rec := &recordingEmitter{}
	require.NoError(t, b.Attach(rec))

	conv := models.Conversation{ID: "c2", Type: models.ConversationGroup, Name: "Team", Participants: []string{"u1", "u2", "u3"}}
	b.ConversationCreated(context.Background(), conv, nil)

	require.Len(t, rec.calls, 3)
	for _, call := range rec.calls {
		assert.Equal(t, "Team", call.data.(map[string]any)["conversation"].(models.ConversationView).Name)
	}
}

func TestNoopSatisfiesNotifier(t *testing.T) {
	Noop{}.ConversationCreated(context.Background(), models.Conversation{}, nil)
}
