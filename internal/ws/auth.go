package ws

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"chat-gateway/internal/config"
	"chat-gateway/internal/models"
	"chat-gateway/internal/repositories"
	"chat-gateway/internal/validation"
)

var (
	ErrMissingUserID   = errors.New("missing userId")
	ErrMalformedUserID = errors.New("invalid userId format")
	ErrUserNotFound    = errors.New("user not found")
)

// Authenticator turns a handshake principal into a connection identity.
type Authenticator interface {
	Authenticate(ctx context.Context, userID string) (models.UserRef, error)
}

// UserResolver loads accounts for the verifying policy.
type UserResolver interface {
	ResolveUser(ctx context.Context, userID string) (models.User, error)
}

// VerifyAuth accepts only ids that resolve to an existing account.
type VerifyAuth struct {
	Users UserResolver
}

func (a VerifyAuth) Authenticate(ctx context.Context, userID string) (models.UserRef, error) {
	if !validation.IsObjectID(userID) {
		return models.UserRef{}, ErrMalformedUserID
	}
	user, err := a.Users.ResolveUser(ctx, userID)
	if err != nil {
		if errors.Is(err, repositories.ErrUserNotFound) {
			return models.UserRef{}, ErrUserNotFound
		}
		return models.UserRef{}, fmt.Errorf("authentication failed: %w", err)
	}
	return user.Ref(), nil
}

// TrustAuth accepts any well-formed id without a lookup. Development only.
type TrustAuth struct{}

func (TrustAuth) Authenticate(_ context.Context, userID string) (models.UserRef, error) {
	if !validation.IsObjectID(userID) {
		return models.UserRef{}, ErrMalformedUserID
	}
	return models.UserRef{ID: userID, Name: "User", Email: "user@localhost"}, nil
}

// NewAuthenticator picks the policy for mode. Trust mode is refused in production.
func NewAuthenticator(cfg config.Config, users UserResolver) (Authenticator, error) {
	switch cfg.WSAuthMode {
	case config.AuthVerify, "":
		if users == nil {
			return nil, errors.New("verify auth requires a user resolver")
		}
		return VerifyAuth{Users: users}, nil
	case config.AuthTrust:
		if cfg.IsProduction() {
			return nil, errors.New("trust auth is not allowed in production")
		}
		return TrustAuth{}, nil
	default:
		return nil, fmt.Errorf("unknown auth mode %q", cfg.WSAuthMode)
	}
}

// principalFromRequest reads the user id from the query string or X-User-Id header.
func principalFromRequest(r *http.Request) (string, error) {
	userID := r.URL.Query().Get("userId")
	if userID == "" {
		userID = r.Header.Get("X-User-Id")
	}
	if userID == "" {
		return "", ErrMissingUserID
	}
	if !validation.IsObjectID(userID) {
		return "", ErrMalformedUserID
	}
	return userID, nil
}
