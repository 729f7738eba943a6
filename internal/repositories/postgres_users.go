package repositories

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"chat-gateway/internal/models"
)

// UserRepo reads the users table owned by the account service.
type UserRepo struct {
	db *sqlx.DB
}

// NewUserRepo constructs a UserRepo.
func NewUserRepo(db *sqlx.DB) *UserRepo {
	return &UserRepo{db: db}
}

func (r *UserRepo) FindByID(ctx context.Context, id string) (models.User, error) {
	var user models.User
	err := r.db.GetContext(ctx, &user, `SELECT id, name, email, created_at FROM users WHERE id=$1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return models.User{}, ErrUserNotFound
	}
	return user, err
}

func (r *UserRepo) FindByIDs(ctx context.Context, ids []string) ([]models.User, error) {
	ids = uniqueIDs(ids)
	users := []models.User{}
	if len(ids) == 0 {
		return users, nil
	}
	err := r.db.SelectContext(ctx, &users, `SELECT id, name, email, created_at FROM users WHERE id = ANY($1)`, pq.Array(ids))
	return users, err
}

// Search matches name or email case-insensitively, excluding the caller.
func (r *UserRepo) Search(ctx context.Context, query, excludeID string, limit int) ([]models.User, error) {
	users := []models.User{}
	pattern := "%" + escapeLike(query) + "%"
	err := r.db.SelectContext(ctx, &users, `SELECT id, name, email, created_at FROM users
        WHERE (name ILIKE $1 OR email ILIKE $1) AND id <> $2
        ORDER BY name LIMIT $3`, pattern, excludeID, limit)
	return users, err
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func escapeLike(s string) string {
	return likeEscaper.Replace(s)
}

// NewPostgresStore wires the sqlx repositories over db.
func NewPostgresStore(db *sqlx.DB) Store {
	return Store{
		Conversations: NewConversationRepo(db),
		Messages:      NewMessageRepo(db),
		Users:         NewUserRepo(db),
		ping:          db.PingContext,
		close: func(context.Context) error {
			return db.Close()
		},
	}
}
