package handlers

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"chat-gateway/internal/service"
)

// ConversationHandler serves conversation CRUD.
type ConversationHandler struct {
	svc *service.Service
	log *slog.Logger
}

func NewConversationHandler(svc *service.Service, log *slog.Logger) *ConversationHandler {
	if log == nil {
		log = slog.Default()
	}
	return &ConversationHandler{svc: svc, log: log}
}

// ListConversations returns the caller's conversations, most recently updated first.
func (h *ConversationHandler) ListConversations(c *gin.Context) {
	views, err := h.svc.ListConversations(c.Request.Context(), userIDFromContext(c))
	if err != nil {
		respondError(c, h.log, err, "failed to load conversations")
		return
	}
	c.JSON(http.StatusOK, views)
}

// CreateConversation creates a conversation, or returns the existing direct one with 200.
func (h *ConversationHandler) CreateConversation(c *gin.Context) {
	var req service.CreateConversationInput
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	view, created, err := h.svc.CreateConversation(c.Request.Context(), userIDFromContext(c), req)
	if err != nil {
		respondError(c, h.log, err, "could not create conversation")
		return
	}
	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	c.JSON(status, view)
}

func (h *ConversationHandler) GetConversation(c *gin.Context) {
	view, err := h.svc.GetConversation(c.Request.Context(), userIDFromContext(c), c.Param("id"))
	if err != nil {
		respondError(c, h.log, err, "failed to load conversation")
		return
	}
	c.JSON(http.StatusOK, view)
}

func (h *ConversationHandler) DeleteConversation(c *gin.Context) {
	if err := h.svc.DeleteConversation(c.Request.Context(), userIDFromContext(c), c.Param("id")); err != nil {
		respondError(c, h.log, err, "failed to delete conversation")
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}
