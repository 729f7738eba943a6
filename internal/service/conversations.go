package service

import (
	"context"
	"errors"
	"fmt"

	"chat-gateway/internal/models"
	"chat-gateway/internal/observability"
	"chat-gateway/internal/repositories"
	"chat-gateway/internal/telemetry"
	"chat-gateway/internal/validation"
)

type CreateConversationInput struct {
	ParticipantIDs []string `json:"participantIds" validate:"required,min=1,dive,objectid"`
	Name           string   `json:"name"`
	Type           string   `json:"type" validate:"omitempty,oneof=direct group"`
}

// CreateConversation creates a direct or group conversation for creatorID. An existing direct
// conversation for the same pair is returned with created=false.
func (s *Service) CreateConversation(ctx context.Context, creatorID string, in CreateConversationInput) (models.ConversationView, bool, error) {
	if in.Type == "" {
		in.Type = models.ConversationDirect
	}
	if err := validation.Struct(in); err != nil {
		if in.Type != models.ConversationDirect && in.Type != models.ConversationGroup {
			return models.ConversationView{}, false, ErrInvalidConversationType
		}
		return models.ConversationView{}, false, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	name, err := validation.ConversationName(in.Name)
	if err != nil {
		return models.ConversationView{}, false, err
	}

	requested := uniqueStrings(in.ParticipantIDs)
	var others []string
	for _, id := range requested {
		if id != creatorID {
			others = append(others, id)
		}
	}

	var conv models.Conversation
	created := true
	switch in.Type {
	case models.ConversationDirect:
		if len(requested) == 1 && len(others) == 0 {
			return models.ConversationView{}, false, repositories.ErrSelfConversation
		}
		if len(others) != models.DirectParticipants-1 {
			return models.ConversationView{}, false, ErrDirectParticipants
		}
		if _, err := s.users.FindByID(ctx, others[0]); err != nil {
			if errors.Is(err, repositories.ErrUserNotFound) {
				return models.ConversationView{}, false, ErrParticipantNotFound
			}
			return models.ConversationView{}, false, err
		}
		conv, created, err = s.conversations.CreateOrGetDirect(ctx, creatorID, others[0], name)
		if err != nil {
			return models.ConversationView{}, false, fmt.Errorf("create direct conversation: %w", err)
		}
	case models.ConversationGroup:
		members := append([]string{creatorID}, others...)
		if len(members) < models.MinGroupParticipants || len(members) > models.MaxGroupParticipants {
			return models.ConversationView{}, false, ErrGroupParticipants
		}
		found, err := s.users.FindByIDs(ctx, others)
		if err != nil {
			return models.ConversationView{}, false, err
		}
		if len(found) != len(others) {
			return models.ConversationView{}, false, ErrParticipantNotFound
		}
		conv, err = s.conversations.CreateGroup(ctx, creatorID, members, name)
		if err != nil {
			return models.ConversationView{}, false, fmt.Errorf("create group conversation: %w", err)
		}
	}

	views, err := s.views(ctx, creatorID, []models.Conversation{conv})
	if err != nil {
		return models.ConversationView{}, false, err
	}
	if created {
		s.announce(ctx, conv, views[0].Participants)
	}
	return views[0], created, nil
}

func (s *Service) announce(ctx context.Context, conv models.Conversation, participants []models.UserRef) {
	s.events.Emit(ctx, observability.RoutingConversationCreated, "chat_events", "conversation_created", map[string]interface{}{
		"conversation_id": conv.ID,
		"type":            conv.Type,
		"created_by":      conv.CreatedBy,
		"participants":    conv.Participants,
	})
	if s.notifier != nil {
		s.notifier.ConversationCreated(ctx, conv, participants)
	}
}

// ListConversations returns userID's conversations, most recently updated first.
func (s *Service) ListConversations(ctx context.Context, userID string) ([]models.ConversationView, error) {
	convs, err := s.conversations.ListForUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list conversations: %w", err)
	}
	return s.views(ctx, userID, convs)
}

// GetConversation returns one conversation visible to userID.
func (s *Service) GetConversation(ctx context.Context, userID, conversationID string) (models.ConversationView, error) {
	if !validation.IsObjectID(conversationID) {
		return models.ConversationView{}, ErrInvalidConversationID
	}
	conv, err := s.conversations.GetConversation(ctx, conversationID)
	if err != nil {
		return models.ConversationView{}, err
	}
	if !conv.HasParticipant(userID) {
		return models.ConversationView{}, ErrNotParticipant
	}
	views, err := s.views(ctx, userID, []models.Conversation{conv})
	if err != nil {
		return models.ConversationView{}, err
	}
	return views[0], nil
}

// DeleteConversation removes a conversation userID participates in, with its messages.
func (s *Service) DeleteConversation(ctx context.Context, userID, conversationID string) error {
	if !validation.IsObjectID(conversationID) {
		return ErrInvalidConversationID
	}
	if err := s.conversations.DeleteForParticipant(ctx, conversationID, userID); err != nil {
		return err
	}
	s.audit.Emit(ctx, telemetry.AuditEntry{
		Action:         "conversation.deleted",
		UserID:         userID,
		ConversationID: conversationID,
		Text:           "conversation deleted by participant",
	})
	return nil
}

// views resolves participants and last messages for a batch of conversations.
func (s *Service) views(ctx context.Context, viewerID string, convs []models.Conversation) ([]models.ConversationView, error) {
	var userIDs, lastIDs []string
	for _, c := range convs {
		userIDs = append(userIDs, c.Participants...)
		if c.LastMessageID != "" {
			lastIDs = append(lastIDs, c.LastMessageID)
		}
	}

	last := map[string]models.Message{}
	if len(lastIDs) > 0 {
		msgs, err := s.messages.GetMessages(ctx, lastIDs)
		if err != nil {
			return nil, fmt.Errorf("load last messages: %w", err)
		}
		for _, m := range msgs {
			last[m.ID] = m
			userIDs = append(userIDs, m.SenderID)
		}
	}

	users, err := s.userMap(ctx, uniqueStrings(userIDs))
	if err != nil {
		return nil, fmt.Errorf("load participants: %w", err)
	}

	views := make([]models.ConversationView, 0, len(convs))
	for _, c := range convs {
		var ref *models.LastMessageRef
		if m, ok := last[c.LastMessageID]; ok {
			ref = &models.LastMessageRef{
				ID:        m.ID,
				Content:   m.Content,
				Sender:    refOf(users, m.SenderID),
				CreatedAt: m.CreatedAt,
			}
		}
		views = append(views, models.NewConversationView(c, viewerID, users, ref))
	}
	return views, nil
}

// Authorize checks that userID participates in conversationID.
func (s *Service) Authorize(ctx context.Context, conversationID, userID string) error {
	if !validation.IsObjectID(conversationID) {
		return ErrInvalidConversationID
	}
	ok, err := s.conversations.IsParticipant(ctx, conversationID, userID)
	if err != nil {
		return fmt.Errorf("check participant: %w", err)
	}
	if !ok {
		return ErrNotParticipant
	}
	return nil
}

func uniqueStrings(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
