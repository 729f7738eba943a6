package ws

import (
	"encoding/json"
)

// Inbound events.
const (
	EventJoin        = "conversation:join"
	EventLeave       = "conversation:leave"
	EventSend        = "message:send"
	EventTypingStart = "typing:start"
	EventTypingStop  = "typing:stop"
	EventDeliver     = "message:deliver"
)

// Outbound events.
const (
	EventAck               = "ack"
	EventUserConnected     = "user:connected"
	EventUserOnline        = "user:online"
	EventUserOffline       = "user:offline"
	EventMessageNew        = "message:new"
	EventMessagesRead      = "messages:read"
	EventMessagesDelivered = "messages:delivered"
	EventTypingStarted     = "typing:started"
	EventTypingStopped     = "typing:stopped"
	EventError             = "error"
)

// Ack statuses.
const (
	AckOK    = "ok"
	AckError = "error"
)

// Frame is the envelope for every message in both directions.
type Frame struct {
	Event string          `json:"event"`
	Ack   *int64          `json:"ack,omitempty"`
	Data  json.RawMessage `json:"data,omitempty"`
}

type outFrame struct {
	Event string `json:"event"`
	Ack   *int64 `json:"ack,omitempty"`
	Data  any    `json:"data,omitempty"`
}

func encodeFrame(event string, ack *int64, data any) ([]byte, error) {
	return json.Marshal(outFrame{Event: event, Ack: ack, Data: data})
}

type sendPayload struct {
	ConversationID string `json:"conversationId" validate:"required,objectid"`
	Content        string `json:"content"`
	Type           string `json:"type" validate:"msgtype"`
}

type deliverPayload struct {
	ConversationID string   `json:"conversationId" validate:"required,objectid"`
	MessageIDs     []string `json:"messageIds" validate:"required,min=1,dive,objectid"`
}

type AckPayload struct {
	Status       string `json:"status"`
	Message      any    `json:"message,omitempty"`
	ErrorMessage string `json:"errorMessage,omitempty"`
}

type ErrorPayload struct {
	Message string `json:"message"`
	Event   string `json:"event,omitempty"`
}

type userPresencePayload struct {
	UserID string `json:"userId"`
}

type connectedPayload struct {
	UserID   string `json:"userId"`
	SocketID string `json:"socketId"`
}

type readPayload struct {
	ConversationID string `json:"conversationId"`
	UserID         string `json:"userId"`
}

type deliveredPayload struct {
	ConversationID string   `json:"conversationId"`
	MessageIDs     []string `json:"messageIds"`
}

type typingPayload struct {
	ConversationID string `json:"conversationId"`
	UserID         string `json:"userId"`
	UserName       string `json:"userName,omitempty"`
}
