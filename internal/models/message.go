package models

import "time"

// Message types.
const (
	MessageText   = "text"
	MessageImage  = "image"
	MessageFile   = "file"
	MessageSystem = "system"
)

// Message statuses in delivery order.
const (
	StatusSent      = "sent"
	StatusDelivered = "delivered"
	StatusRead      = "read"
)

// MaxMessageContent is the maximum message length in characters after sanitization.
const MaxMessageContent = 5000

// ValidMessageType reports whether t is a known message type.
func ValidMessageType(t string) bool {
	switch t {
	case MessageText, MessageImage, MessageFile, MessageSystem:
		return true
	}
	return false
}

// StatusRank orders statuses so transitions can be kept monotonic.
func StatusRank(status string) int {
	switch status {
	case StatusSent:
		return 1
	case StatusDelivered:
		return 2
	case StatusRead:
		return 3
	}
	return 0
}

// ReadReceipt records that a user has read a message.
type ReadReceipt struct {
	UserID string    `db:"user_id" json:"user"`
	ReadAt time.Time `db:"read_at" json:"readAt"`
}

// Message is a persisted chat message. Content never changes after creation.
type Message struct {
	ID             string        `db:"id" json:"id"`
	ConversationID string        `db:"conversation_id" json:"conversation"`
	SenderID       string        `db:"sender_id" json:"sender"`
	Content        string        `db:"content" json:"content"`
	Type           string        `db:"type" json:"type"`
	Status         string        `db:"status" json:"status"`
	ReadBy         []ReadReceipt `db:"-" json:"readBy"`
	CreatedAt      time.Time     `db:"created_at" json:"createdAt"`
}

// NewMessage carries the fields needed to persist a message.
type NewMessage struct {
	ConversationID string
	SenderID       string
	Content        string
	Type           string
	CreatedAt      time.Time
}

// MessageView is the resolved message emitted as message:new and returned by the API.
type MessageView struct {
	ID             string        `json:"_id"`
	ConversationID string        `json:"conversation"`
	Sender         UserRef       `json:"sender"`
	Content        string        `json:"content"`
	Type           string        `json:"type"`
	Status         string        `json:"status"`
	ReadBy         []ReadReceipt `json:"readBy,omitempty"`
	CreatedAt      time.Time     `json:"createdAt"`
}

// NewMessageView joins a message with its resolved sender.
func NewMessageView(m Message, sender UserRef) MessageView {
	return MessageView{
		ID:             m.ID,
		ConversationID: m.ConversationID,
		Sender:         sender,
		Content:        m.Content,
		Type:           m.Type,
		Status:         m.Status,
		ReadBy:         m.ReadBy,
		CreatedAt:      m.CreatedAt,
	}
}
