package mocks

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"

	"chat-gateway/internal/models"
	"chat-gateway/internal/repositories"
)

type ConversationRepositoryMock struct {
	mock.Mock
}

func (m *ConversationRepositoryMock) CreateOrGetDirect(ctx context.Context, creatorID, otherID, name string) (models.Conversation, bool, error) {
	args := m.Called(ctx, creatorID, otherID, name)
	var conv models.Conversation
	if val := args.Get(0); val != nil {
		conv = val.(models.Conversation)
	}
	return conv, args.Bool(1), args.Error(2)
}

func (m *ConversationRepositoryMock) CreateGroup(ctx context.Context, creatorID string, participants []string, name string) (models.Conversation, error) {
	args := m.Called(ctx, creatorID, participants, name)
	var conv models.Conversation
	if val := args.Get(0); val != nil {
		conv = val.(models.Conversation)
	}
	return conv, args.Error(1)
}

func (m *ConversationRepositoryMock) GetConversation(ctx context.Context, id string) (models.Conversation, error) {
	args := m.Called(ctx, id)
	var conv models.Conversation
	if val := args.Get(0); val != nil {
		conv = val.(models.Conversation)
	}
	return conv, args.Error(1)
}

func (m *ConversationRepositoryMock) IsParticipant(ctx context.Context, id, userID string) (bool, error) {
	args := m.Called(ctx, id, userID)
	return args.Bool(0), args.Error(1)
}

func (m *ConversationRepositoryMock) ListForUser(ctx context.Context, userID string) ([]models.Conversation, error) {
	args := m.Called(ctx, userID)
	var list []models.Conversation
	if val := args.Get(0); val != nil {
		list = val.([]models.Conversation)
	}
	return list, args.Error(1)
}

func (m *ConversationRepositoryMock) TouchLastMessage(ctx context.Context, id, messageID string, at time.Time) error {
	args := m.Called(ctx, id, messageID, at)
	return args.Error(0)
}

func (m *ConversationRepositoryMock) DeleteForParticipant(ctx context.Context, id, userID string) error {
	args := m.Called(ctx, id, userID)
	return args.Error(0)
}

type MessageRepositoryMock struct {
	mock.Mock
}

func (m *MessageRepositoryMock) CreateMessage(ctx context.Context, msg models.NewMessage) (models.Message, error) {
	args := m.Called(ctx, msg)
	var out models.Message
	if val := args.Get(0); val != nil {
		out = val.(models.Message)
	}
	return out, args.Error(1)
}

func (m *MessageRepositoryMock) GetMessage(ctx context.Context, id string) (models.Message, error) {
	args := m.Called(ctx, id)
	var out models.Message
	if val := args.Get(0); val != nil {
		out = val.(models.Message)
	}
	return out, args.Error(1)
}

func (m *MessageRepositoryMock) GetMessages(ctx context.Context, ids []string) ([]models.Message, error) {
	args := m.Called(ctx, ids)
	var list []models.Message
	if val := args.Get(0); val != nil {
		list = val.([]models.Message)
	}
	return list, args.Error(1)
}

func (m *MessageRepositoryMock) ListPage(ctx context.Context, conversationID string, limit, skip int) ([]models.Message, error) {
	args := m.Called(ctx, conversationID, limit, skip)
	var list []models.Message
	if val := args.Get(0); val != nil {
		list = val.([]models.Message)
	}
	return list, args.Error(1)
}

func (m *MessageRepositoryMock) MarkRead(ctx context.Context, conversationID, readerID string, at time.Time) (int64, error) {
	args := m.Called(ctx, conversationID, readerID, at)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MessageRepositoryMock) MarkDelivered(ctx context.Context, conversationID string, messageIDs []string) (int64, error) {
	args := m.Called(ctx, conversationID, messageIDs)
	return args.Get(0).(int64), args.Error(1)
}

type UserRepositoryMock struct {
	mock.Mock
}

func (m *UserRepositoryMock) FindByID(ctx context.Context, id string) (models.User, error) {
	args := m.Called(ctx, id)
	var user models.User
	if val := args.Get(0); val != nil {
		user = val.(models.User)
	}
	return user, args.Error(1)
}

func (m *UserRepositoryMock) FindByIDs(ctx context.Context, ids []string) ([]models.User, error) {
	args := m.Called(ctx, ids)
	var list []models.User
	if val := args.Get(0); val != nil {
		list = val.([]models.User)
	}
	return list, args.Error(1)
}

func (m *UserRepositoryMock) Search(ctx context.Context, query, excludeID string, limit int) ([]models.User, error) {
	args := m.Called(ctx, query, excludeID, limit)
	var list []models.User
	if val := args.Get(0); val != nil {
		list = val.([]models.User)
	}
	return list, args.Error(1)
}

// Store bundles fresh repository mocks.
type Store struct {
	Conversations *ConversationRepositoryMock
	Messages      *MessageRepositoryMock
	Users         *UserRepositoryMock
}

func NewStore() *Store {
	return &Store{
		Conversations: new(ConversationRepositoryMock),
		Messages:      new(MessageRepositoryMock),
		Users:         new(UserRepositoryMock),
	}
}

// Store returns the mocks as a repositories.Store.
func (s *Store) Store() repositories.Store {
	return repositories.Store{
		Conversations: s.Conversations,
		Messages:      s.Messages,
		Users:         s.Users,
	}
}

// AssertExpectations checks every repository mock.
func (s *Store) AssertExpectations(t mock.TestingT) {
	s.Conversations.AssertExpectations(t)
	s.Messages.AssertExpectations(t)
	s.Users.AssertExpectations(t)
}

type NotifierMock struct {
	mock.Mock
}

func (m *NotifierMock) ConversationCreated(ctx context.Context, conv models.Conversation, participants []models.UserRef) {
	m.Called(ctx, conv, participants)
}

// PublisherMock satisfies the rabbitmq, observability and telemetry publisher interfaces.
type PublisherMock struct {
	mock.Mock
}

func (m *PublisherMock) Publish(ctx context.Context, routingKey string, event any) error {
	return m.Called(ctx, routingKey, event).Error(0)
}

func (m *PublisherMock) Close() error {
	return m.Called().Error(0)
}
