package service

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"chat-gateway/internal/models"
	"chat-gateway/internal/validation"
)

// ResolveUser loads an account by id.
func (s *Service) ResolveUser(ctx context.Context, userID string) (models.User, error) {
	if !validation.IsObjectID(userID) {
		return models.User{}, ErrUnauthenticated
	}
	return s.users.FindByID(ctx, userID)
}

// SearchUsers finds up to ten users other than userID by name or email. Queries shorter
// than two characters return no results.
func (s *Service) SearchUsers(ctx context.Context, userID, query string) ([]models.UserRef, error) {
	query = strings.TrimSpace(query)
	refs := []models.UserRef{}
	if utf8.RuneCountInString(query) < minSearchQuery {
		return refs, nil
	}
	users, err := s.users.Search(ctx, query, userID, userSearchLimit)
	if err != nil {
		return nil, fmt.Errorf("search users: %w", err)
	}
	for _, u := range users {
		refs = append(refs, u.Ref())
	}
	return refs, nil
}
