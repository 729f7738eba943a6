package models

import (
	"strings"
	"time"
)

// Conversation types.
const (
	ConversationDirect = "direct"
	ConversationGroup  = "group"
)

// Participant limits per conversation type, creator included.
const (
	DirectParticipants   = 2
	MinGroupParticipants = 2
	MaxGroupParticipants = 50
	MaxConversationName  = 100
)

// Conversation is a durable direct or group conversation.
type Conversation struct {
	ID            string    `db:"id" json:"id"`
	Name          string    `db:"name" json:"name,omitempty"`
	Type          string    `db:"type" json:"type"`
	Participants  []string  `db:"-" json:"participants"`
	CreatedBy     string    `db:"created_by" json:"createdBy"`
	LastMessageID string    `db:"-" json:"lastMessage,omitempty"`
	CreatedAt     time.Time `db:"created_at" json:"createdAt"`
	UpdatedAt     time.Time `db:"updated_at" json:"updatedAt"`
}

// HasParticipant reports whether userID belongs to the conversation.
func (c Conversation) HasParticipant(userID string) bool {
	for _, p := range c.Participants {
		if p == userID {
			return true
		}
	}
	return false
}

// ConversationView is the API shape of a conversation as seen by one user.
type ConversationView struct {
	ID           string          `json:"id"`
	Name         string          `json:"name"`
	Type         string          `json:"type"`
	Participants []UserRef       `json:"participants"`
	LastMessage  *LastMessageRef `json:"lastMessage,omitempty"`
	CreatedAt    time.Time       `json:"createdAt"`
	UpdatedAt    time.Time       `json:"updatedAt"`
}

// LastMessageRef summarises the newest message of a conversation.
type LastMessageRef struct {
	ID        string    `json:"id"`
	Content   string    `json:"content"`
	Sender    UserRef   `json:"sender"`
	CreatedAt time.Time `json:"createdAt"`
}

// DirectKey returns the order-independent key identifying a direct conversation
// between two users.
func DirectKey(a, b string) string {
	if a > b {
		a, b = b, a
	}
	return a + ":" + b
}

// DisplayName returns the conversation name as seen by viewerID: the other participants'
// names for a direct conversation, the stored name for a group.
func DisplayName(conv Conversation, viewerID string, users map[string]UserRef) string {
	if conv.Type != ConversationDirect {
		return conv.Name
	}
	var names []string
	for _, id := range conv.Participants {
		if id == viewerID {
			continue
		}
		if u, ok := users[id]; ok {
			names = append(names, u.Name)
		} else {
			names = append(names, UnknownUser(id).Name)
		}
	}
	if len(names) == 0 {
		return conv.Name
	}
	return strings.Join(names, ", ")
}

// NewConversationView resolves participants from users and names the conversation for viewerID.
func NewConversationView(conv Conversation, viewerID string, users map[string]UserRef, last *LastMessageRef) ConversationView {
	refs := make([]UserRef, 0, len(conv.Participants))
	for _, id := range conv.Participants {
		if u, ok := users[id]; ok {
			refs = append(refs, u)
		} else {
			refs = append(refs, UnknownUser(id))
		}
	}
	return ConversationView{
		ID:           conv.ID,
		Name:         DisplayName(conv, viewerID, users),
		Type:         conv.Type,
		Participants: refs,
		LastMessage:  last,
		CreatedAt:    conv.CreatedAt,
		UpdatedAt:    conv.UpdatedAt,
	}
}
