package service

import (
	"context"
	"errors"
	"fmt"

	"chat-gateway/internal/models"
	"chat-gateway/internal/observability"
	"chat-gateway/internal/repositories"
	"chat-gateway/internal/validation"
)

// Transports reported on persisted messages.
const (
	TransportWS   = "ws"
	TransportHTTP = "http"
)

type SendMessageInput struct {
	ConversationID string `json:"conversationId"`
	Content        string `json:"content"`
	Type           string `json:"type"`
}

// SendMessage validates and persists a message from sender, then resolves the sender's
// current identity. sender is the snapshot used when the account no longer resolves.
func (s *Service) SendMessage(ctx context.Context, sender models.UserRef, in SendMessageInput, transport string) (models.MessageView, error) {
	if !validation.IsObjectID(in.ConversationID) {
		return models.MessageView{}, ErrInvalidConversationID
	}
	typ := in.Type
	if typ == "" {
		typ = models.MessageText
	}
	if !models.ValidMessageType(typ) {
		return models.MessageView{}, ErrInvalidMessageType
	}
	content, err := validation.MessageContent(in.Content)
	if err != nil {
		return models.MessageView{}, err
	}
	if err := s.Authorize(ctx, in.ConversationID, sender.ID); err != nil {
		return models.MessageView{}, err
	}

	now := s.now()
	msg, err := s.messages.CreateMessage(ctx, models.NewMessage{
		ConversationID: in.ConversationID,
		SenderID:       sender.ID,
		Content:        content,
		Type:           typ,
		CreatedAt:      now,
	})
	if err != nil {
		return models.MessageView{}, fmt.Errorf("create message: %w", err)
	}
	if err := s.conversations.TouchLastMessage(ctx, in.ConversationID, msg.ID, msg.CreatedAt); err != nil {
		s.log.Warn("update last message failed", "conversation_id", in.ConversationID, "message_id", msg.ID, "error", err)
	}
	observability.IncMessagePersisted(transport)

	view := models.NewMessageView(msg, s.resolveSender(ctx, sender))
	s.events.Emit(ctx, observability.RoutingMessageSent, "chat_events", "message_sent", map[string]interface{}{
		"message_id":      msg.ID,
		"conversation_id": msg.ConversationID,
		"sender_id":       msg.SenderID,
		"type":            msg.Type,
		"transport":       transport,
	})
	return view, nil
}

func (s *Service) resolveSender(ctx context.Context, snapshot models.UserRef) models.UserRef {
	user, err := s.users.FindByID(ctx, snapshot.ID)
	if err == nil {
		return user.Ref()
	}
	if !errors.Is(err, repositories.ErrUserNotFound) {
		s.log.Warn("resolve sender failed", "user_id", snapshot.ID, "error", err)
	}
	return snapshot
}

// ListMessages returns a page of messages oldest first. limit is clamped to 1..100.
func (s *Service) ListMessages(ctx context.Context, userID, conversationID string, limit, skip int) ([]models.MessageView, error) {
	if err := s.Authorize(ctx, conversationID, userID); err != nil {
		return nil, err
	}
	if skip < 0 {
		skip = 0
	}
	msgs, err := s.messages.ListPage(ctx, conversationID, ClampLimit(limit), skip)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}

	senders := make([]string, 0, len(msgs))
	for _, m := range msgs {
		senders = append(senders, m.SenderID)
	}
	users, err := s.userMap(ctx, uniqueStrings(senders))
	if err != nil {
		return nil, fmt.Errorf("load senders: %w", err)
	}

	views := make([]models.MessageView, 0, len(msgs))
	for _, m := range msgs {
		views = append(views, models.NewMessageView(m, refOf(users, m.SenderID)))
	}
	return views, nil
}

// MarkRead marks other senders' unread messages in the conversation as read by userID.
func (s *Service) MarkRead(ctx context.Context, userID, conversationID string) (int64, error) {
	if err := s.Authorize(ctx, conversationID, userID); err != nil {
		return 0, err
	}
	return s.MarkReadAuthorized(ctx, userID, conversationID)
}

// MarkReadAuthorized is MarkRead for callers that already ran Authorize for this user and
// conversation.
func (s *Service) MarkReadAuthorized(ctx context.Context, userID, conversationID string) (int64, error) {
	n, err := s.messages.MarkRead(ctx, conversationID, userID, s.now())
	if err != nil {
		return 0, fmt.Errorf("mark read: %w", err)
	}
	return n, nil
}

// MarkDelivered moves the named messages from sent to delivered.
func (s *Service) MarkDelivered(ctx context.Context, userID, conversationID string, messageIDs []string) (int64, error) {
	if !validation.IsObjectID(conversationID) {
		return 0, ErrInvalidConversationID
	}
	if len(messageIDs) == 0 || validation.ObjectIDs(messageIDs) != nil {
		return 0, ErrInvalidMessageIDs
	}
	if err := s.Authorize(ctx, conversationID, userID); err != nil {
		return 0, err
	}
	n, err := s.messages.MarkDelivered(ctx, conversationID, messageIDs)
	if err != nil {
		return 0, fmt.Errorf("mark delivered: %w", err)
	}
	return n, nil
}
