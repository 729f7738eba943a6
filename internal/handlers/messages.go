package handlers

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"chat-gateway/internal/models"
	"chat-gateway/internal/service"
)

// Broadcaster pushes HTTP-originated changes to the conversation's live room.
type Broadcaster interface {
	BroadcastMessage(conversationID string, msg models.MessageView)
	BroadcastRead(conversationID, readerID string)
}

// MessageHandler serves the HTTP fallback for message history and sending.
type MessageHandler struct {
	svc         *service.Service
	broadcaster Broadcaster
	log         *slog.Logger
}

func NewMessageHandler(svc *service.Service, broadcaster Broadcaster, log *slog.Logger) *MessageHandler {
	if log == nil {
		log = slog.Default()
	}
	return &MessageHandler{svc: svc, broadcaster: broadcaster, log: log}
}

// ListMessages returns a page of messages, oldest first.
func (h *MessageHandler) ListMessages(c *gin.Context) {
	limit := queryInt(c, "limit", service.DefaultPageLimit)
	skip := queryInt(c, "skip", 0)

	msgs, err := h.svc.ListMessages(c.Request.Context(), userIDFromContext(c), c.Param("id"), limit, skip)
	if err != nil {
		respondError(c, h.log, err, "failed to load messages")
		return
	}
	c.JSON(http.StatusOK, msgs)
}

// PostMessage persists a message and multicasts it to the room.
func (h *MessageHandler) PostMessage(c *gin.Context) {
	var req struct {
		Content string `json:"content"`
		Type    string `json:"type"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	conversationID := c.Param("id")
	view, err := h.svc.SendMessage(c.Request.Context(), callerFromContext(c), service.SendMessageInput{
		ConversationID: conversationID,
		Content:        req.Content,
		Type:           req.Type,
	}, service.TransportHTTP)
	if err != nil {
		respondError(c, h.log, err, "could not send message")
		return
	}

	if h.broadcaster != nil {
		h.broadcaster.BroadcastMessage(conversationID, view)
	}
	c.JSON(http.StatusCreated, view)
}

// MarkRead marks the conversation read for the caller.
func (h *MessageHandler) MarkRead(c *gin.Context) {
	conversationID := c.Param("id")
	userID := userIDFromContext(c)
	n, err := h.svc.MarkRead(c.Request.Context(), userID, conversationID)
	if err != nil {
		respondError(c, h.log, err, "failed to mark messages as read")
		return
	}
	if n > 0 && h.broadcaster != nil {
		h.broadcaster.BroadcastRead(conversationID, userID)
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "modifiedCount": n})
}

func queryInt(c *gin.Context, key string, fallback int) int {
	raw := c.Query(key)
	if raw == "" {
		return fallback
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return v
}
