// Package relay lets the request/response path push events to connected users through
// the realtime gateway.
package relay

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"

	"chat-gateway/internal/models"
)

// EventConversationCreated is emitted to each participant's personal channel.
const EventConversationCreated = "conversation:created"

var ErrAlreadyAttached = errors.New("relay: emitter already attached")

// Emitter delivers an event to every live connection of one user.
type Emitter interface {
	EmitToUser(userID, event string, data any)
}

type emitterBox struct{ Emitter }

// Bridge forwards notifications to the attached Emitter.
type Bridge struct {
	emitter atomic.Pointer[emitterBox]
	log     *slog.Logger
}

func NewBridge(log *slog.Logger) *Bridge {
	if log == nil {
		log = slog.Default()
	}
	return &Bridge{log: log}
}

// Attach installs the emitter. It may be called once.
func (b *Bridge) Attach(e Emitter) error {
	if e == nil {
		return errors.New("relay: nil emitter")
	}
	if !b.emitter.CompareAndSwap(nil, &emitterBox{e}) {
		return ErrAlreadyAttached
	}
	return nil
}

// Attached reports whether an emitter is installed.
func (b *Bridge) Attached() bool {
	return b.emitter.Load() != nil
}

// ConversationCreated tells every participant about conv, named from their perspective.
func (b *Bridge) ConversationCreated(_ context.Context, conv models.Conversation, participants []models.UserRef) {
	box := b.emitter.Load()
	if box == nil {
		b.log.Warn("relay emitter not attached, dropping event", "event", EventConversationCreated, "conversation_id", conv.ID)
		return
	}

	users := make(map[string]models.UserRef, len(participants))
	for _, p := range participants {
		users[p.ID] = p
	}
	for _, userID := range conv.Participants {
		view := models.NewConversationView(conv, userID, users, nil)
		box.EmitToUser(userID, EventConversationCreated, map[string]any{"conversation": view})
	}
}

// Noop discards notifications.
type Noop struct{}

func (Noop) ConversationCreated(context.Context, models.Conversation, []models.UserRef) {}
