// Package service holds the chat operations shared by the WebSocket gateway and the
// HTTP fallback.
package service

import (
	"context"
	"log/slog"
	"time"

	"chat-gateway/internal/models"
	"chat-gateway/internal/observability"
	"chat-gateway/internal/repositories"
	"chat-gateway/internal/telemetry"
)

// Message page bounds.
const (
	DefaultPageLimit = 50
	MaxPageLimit     = 100
	userSearchLimit  = 10
	minSearchQuery   = 2
)

// Notifier receives conversations created through the request/response path.
type Notifier interface {
	ConversationCreated(ctx context.Context, conv models.Conversation, participants []models.UserRef)
}

type Options struct {
	Notifier Notifier
	Events   *observability.Events
	Audit    *telemetry.AuditEmitter
	Logger   *slog.Logger
	Now      func() time.Time
}

type Service struct {
	conversations repositories.ConversationRepository
	messages      repositories.MessageRepository
	users         repositories.UserRepository
	notifier      Notifier
	events        *observability.Events
	audit         *telemetry.AuditEmitter
	log           *slog.Logger
	now           func() time.Time
}

func New(store repositories.Store, opts Options) *Service {
	s := &Service{
		conversations: store.Conversations,
		messages:      store.Messages,
		users:         store.Users,
		notifier:      opts.Notifier,
		events:        opts.Events,
		audit:         opts.Audit,
		log:           opts.Logger,
		now:           opts.Now,
	}
	if s.log == nil {
		s.log = slog.Default()
	}
	if s.now == nil {
		s.now = time.Now
	}
	return s
}

// ClampLimit bounds a requested page size to 1..100.
func ClampLimit(limit int) int {
	if limit < 1 {
		return 1
	}
	if limit > MaxPageLimit {
		return MaxPageLimit
	}
	return limit
}

func (s *Service) userMap(ctx context.Context, ids []string) (map[string]models.UserRef, error) {
	users, err := s.users.FindByIDs(ctx, ids)
	if err != nil {
		return nil, err
	}
	refs := make(map[string]models.UserRef, len(users))
	for _, u := range users {
		refs[u.ID] = u.Ref()
	}
	return refs, nil
}

func refOf(users map[string]models.UserRef, id string) models.UserRef {
	if u, ok := users[id]; ok {
		return u
	}
	return models.UnknownUser(id)
}
