package repositories

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"chat-gateway/internal/models"
)

const conversationColumns = `c.id, c.name, c.type, c.created_by, c.last_message_id, c.created_at, c.updated_at,
        ARRAY(SELECT p.user_id FROM conversation_participants p WHERE p.conversation_id = c.id ORDER BY p.position) AS participants`

type conversationRow struct {
	ID            string         `db:"id"`
	Name          string         `db:"name"`
	Type          string         `db:"type"`
	CreatedBy     string         `db:"created_by"`
	LastMessageID sql.NullString `db:"last_message_id"`
	CreatedAt     time.Time      `db:"created_at"`
	UpdatedAt     time.Time      `db:"updated_at"`
	Participants  pq.StringArray `db:"participants"`
}

func (r conversationRow) model() models.Conversation {
	return models.Conversation{
		ID:            r.ID,
		Name:          r.Name,
		Type:          r.Type,
		Participants:  []string(r.Participants),
		CreatedBy:     r.CreatedBy,
		LastMessageID: r.LastMessageID.String,
		CreatedAt:     r.CreatedAt,
		UpdatedAt:     r.UpdatedAt,
	}
}

// ConversationRepo is a sqlx implementation of ConversationRepository.
type ConversationRepo struct {
	db *sqlx.DB
}

// NewConversationRepo constructs a ConversationRepo.
func NewConversationRepo(db *sqlx.DB) *ConversationRepo {
	return &ConversationRepo{db: db}
}

// CreateOrGetDirect inserts the pair's conversation unless the direct_key already exists.
func (r *ConversationRepo) CreateOrGetDirect(ctx context.Context, creatorID, otherID, name string) (models.Conversation, bool, error) {
	if creatorID == otherID {
		return models.Conversation{}, false, ErrSelfConversation
	}
	key := models.DirectKey(creatorID, otherID)

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return models.Conversation{}, false, err
	}
	defer tx.Rollback()

	id := primitive.NewObjectID().Hex()
	now := time.Now().UTC()
	res, err := tx.ExecContext(ctx, `INSERT INTO conversations (id, name, type, created_by, direct_key, created_at, updated_at)
        VALUES ($1, $2, $3, $4, $5, $6, $6) ON CONFLICT (direct_key) DO NOTHING`,
		id, name, models.ConversationDirect, creatorID, key, now)
	if err != nil {
		return models.Conversation{}, false, err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		_ = tx.Rollback()
		conv, err := r.get(ctx, `c.direct_key = $1`, key)
		return conv, false, err
	}
	if err := insertParticipants(ctx, tx, id, []string{creatorID, otherID}); err != nil {
		return models.Conversation{}, false, err
	}
	if err := tx.Commit(); err != nil {
		return models.Conversation{}, false, err
	}
	return models.Conversation{
		ID:           id,
		Name:         name,
		Type:         models.ConversationDirect,
		Participants: []string{creatorID, otherID},
		CreatedBy:    creatorID,
		CreatedAt:    now,
		UpdatedAt:    now,
	}, true, nil
}

// CreateGroup inserts a group conversation and its participant rows.
func (r *ConversationRepo) CreateGroup(ctx context.Context, creatorID string, participants []string, name string) (models.Conversation, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return models.Conversation{}, err
	}
	defer tx.Rollback()

	id := primitive.NewObjectID().Hex()
	now := time.Now().UTC()
	if _, err := tx.ExecContext(ctx, `INSERT INTO conversations (id, name, type, created_by, created_at, updated_at)
        VALUES ($1, $2, $3, $4, $5, $5)`, id, name, models.ConversationGroup, creatorID, now); err != nil {
		return models.Conversation{}, err
	}
	members := uniqueIDs(participants)
	if err := insertParticipants(ctx, tx, id, members); err != nil {
		return models.Conversation{}, err
	}
	if err := tx.Commit(); err != nil {
		return models.Conversation{}, err
	}
	return models.Conversation{
		ID:           id,
		Name:         name,
		Type:         models.ConversationGroup,
		Participants: members,
		CreatedBy:    creatorID,
		CreatedAt:    now,
		UpdatedAt:    now,
	}, nil
}

func insertParticipants(ctx context.Context, tx *sqlx.Tx, conversationID string, userIDs []string) error {
	for i, userID := range userIDs {
		if _, err := tx.ExecContext(ctx, `INSERT INTO conversation_participants (conversation_id, user_id, position)
            VALUES ($1, $2, $3) ON CONFLICT DO NOTHING`, conversationID, userID, i); err != nil {
			return err
		}
	}
	return nil
}

// GetConversation fetches a conversation by id.
func (r *ConversationRepo) GetConversation(ctx context.Context, id string) (models.Conversation, error) {
	return r.get(ctx, `c.id = $1`, id)
}

func (r *ConversationRepo) get(ctx context.Context, where string, arg any) (models.Conversation, error) {
	var row conversationRow
	err := r.db.GetContext(ctx, &row, `SELECT `+conversationColumns+` FROM conversations c WHERE `+where, arg)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Conversation{}, ErrConversationNotFound
	}
	if err != nil {
		return models.Conversation{}, err
	}
	return row.model(), nil
}

// IsParticipant checks whether a user belongs to the conversation.
func (r *ConversationRepo) IsParticipant(ctx context.Context, id, userID string) (bool, error) {
	var exists bool
	err := r.db.GetContext(ctx, &exists, `SELECT EXISTS(SELECT 1 FROM conversation_participants
        WHERE conversation_id=$1 AND user_id=$2)`, id, userID)
	return exists, err
}

// ListForUser returns the user's conversations, most recently updated first.
func (r *ConversationRepo) ListForUser(ctx context.Context, userID string) ([]models.Conversation, error) {
	var rows []conversationRow
	err := r.db.SelectContext(ctx, &rows, `SELECT `+conversationColumns+` FROM conversations c
        WHERE EXISTS (SELECT 1 FROM conversation_participants p WHERE p.conversation_id = c.id AND p.user_id = $1)
        ORDER BY c.updated_at DESC`, userID)
	if err != nil {
		return nil, err
	}
	result := make([]models.Conversation, 0, len(rows))
	for _, row := range rows {
		result = append(result, row.model())
	}
	return result, nil
}

// TouchLastMessage points the conversation at its newest message.
func (r *ConversationRepo) TouchLastMessage(ctx context.Context, id, messageID string, at time.Time) error {
	res, err := r.db.ExecContext(ctx, `UPDATE conversations SET last_message_id=$2, updated_at=$3 WHERE id=$1`, id, messageID, at)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrConversationNotFound
	}
	return nil
}

// DeleteForParticipant deletes the conversation when userID participates. Messages cascade.
func (r *ConversationRepo) DeleteForParticipant(ctx context.Context, id, userID string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM conversations c WHERE c.id=$1
        AND EXISTS (SELECT 1 FROM conversation_participants p WHERE p.conversation_id = c.id AND p.user_id = $2)`, id, userID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrConversationNotFound
	}
	return nil
}
