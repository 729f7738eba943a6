package repositories

import (
	"context"
	"errors"
	"time"

	"chat-gateway/internal/models"
)

var (
	ErrConversationNotFound = errors.New("conversation not found")
	ErrMessageNotFound      = errors.New("message not found")
	ErrUserNotFound         = errors.New("user not found")
	ErrSelfConversation     = errors.New("cannot create direct conversation with self")
)

// ConversationRepository abstracts conversation persistence.
type ConversationRepository interface {
	// CreateOrGetDirect returns the direct conversation for the unordered pair,
	// creating it when absent. The bool reports whether it was created.
	CreateOrGetDirect(ctx context.Context, creatorID, otherID, name string) (models.Conversation, bool, error)
	CreateGroup(ctx context.Context, creatorID string, participants []string, name string) (models.Conversation, error)
	GetConversation(ctx context.Context, id string) (models.Conversation, error)
	IsParticipant(ctx context.Context, id, userID string) (bool, error)
	ListForUser(ctx context.Context, userID string) ([]models.Conversation, error)
	TouchLastMessage(ctx context.Context, id, messageID string, at time.Time) error
	DeleteForParticipant(ctx context.Context, id, userID string) error
}

// MessageRepository defines message persistence.
type MessageRepository interface {
	CreateMessage(ctx context.Context, msg models.NewMessage) (models.Message, error)
	GetMessage(ctx context.Context, id string) (models.Message, error)
	GetMessages(ctx context.Context, ids []string) ([]models.Message, error)
	// ListPage returns up to limit messages after skipping the newest skip, oldest first.
	ListPage(ctx context.Context, conversationID string, limit, skip int) ([]models.Message, error)
	// MarkRead marks messages from other senders still sent or delivered as read by readerID.
	MarkRead(ctx context.Context, conversationID, readerID string, at time.Time) (int64, error)
	// MarkDelivered moves the named messages from sent to delivered.
	MarkDelivered(ctx context.Context, conversationID string, messageIDs []string) (int64, error)
}

// UserRepository reads user identities.
type UserRepository interface {
	FindByID(ctx context.Context, id string) (models.User, error)
	FindByIDs(ctx context.Context, ids []string) ([]models.User, error)
	Search(ctx context.Context, query, excludeID string, limit int) ([]models.User, error)
}

// Store bundles the repositories of one backend.
type Store struct {
	Conversations ConversationRepository
	Messages      MessageRepository
	Users         UserRepository

	ping  func(ctx context.Context) error
	close func(ctx context.Context) error
}

// Ping checks that the backend is reachable.
func (s Store) Ping(ctx context.Context) error {
	if s.ping == nil {
		return nil
	}
	return s.ping(ctx)
}

// Close releases the backend connection.
func (s Store) Close(ctx context.Context) error {
	if s.close == nil {
		return nil
	}
	return s.close(ctx)
}

// reverseMessages flips a newest-first page into oldest-first order.
func reverseMessages(msgs []models.Message) {
	for i, j := 0, len(msgs)-1; i < j; i, j = i+1, j-1 {
		msgs[i], msgs[j] = msgs[j], msgs[i]
	}
}

// uniqueIDs drops duplicates while keeping the first-seen order.
func uniqueIDs(ids []string) []string {
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
