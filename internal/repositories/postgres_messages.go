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

const messageColumns = `id, conversation_id, sender_id, content, type, status, created_at`

// MessageRepo is a sqlx implementation of MessageRepository.
type MessageRepo struct {
	db *sqlx.DB
}

// NewMessageRepo constructs a MessageRepo.
func NewMessageRepo(db *sqlx.DB) *MessageRepo {
	return &MessageRepo{db: db}
}

// CreateMessage inserts a message with status sent and the sender's own read receipt.
func (r *MessageRepo) CreateMessage(ctx context.Context, msg models.NewMessage) (models.Message, error) {
	at := msg.CreatedAt
	if at.IsZero() {
		at = time.Now()
	}
	at = at.UTC()
	typ := msg.Type
	if typ == "" {
		typ = models.MessageText
	}
	out := models.Message{
		ID:             primitive.NewObjectID().Hex(),
		ConversationID: msg.ConversationID,
		SenderID:       msg.SenderID,
		Content:        msg.Content,
		Type:           typ,
		Status:         models.StatusSent,
		ReadBy:         []models.ReadReceipt{{UserID: msg.SenderID, ReadAt: at}},
		CreatedAt:      at,
	}

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return models.Message{}, err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `INSERT INTO messages (id, conversation_id, sender_id, content, type, status, created_at, updated_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $7)`,
		out.ID, out.ConversationID, out.SenderID, out.Content, out.Type, out.Status, at); err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23503" {
			return models.Message{}, ErrConversationNotFound
		}
		return models.Message{}, err
	}
	if _, err := tx.ExecContext(ctx, `INSERT INTO message_reads (message_id, user_id, read_at) VALUES ($1, $2, $3)`,
		out.ID, out.SenderID, at); err != nil {
		return models.Message{}, err
	}
	if err := tx.Commit(); err != nil {
		return models.Message{}, err
	}
	return out, nil
}

// GetMessage fetches a message by id.
func (r *MessageRepo) GetMessage(ctx context.Context, id string) (models.Message, error) {
	var msg models.Message
	err := r.db.GetContext(ctx, &msg, `SELECT `+messageColumns+` FROM messages WHERE id=$1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Message{}, ErrMessageNotFound
	}
	if err != nil {
		return models.Message{}, err
	}
	msgs := []models.Message{msg}
	if err := r.attachReads(ctx, msgs); err != nil {
		return models.Message{}, err
	}
	return msgs[0], nil
}

// GetMessages fetches the messages with the given ids, skipping unknown ones.
func (r *MessageRepo) GetMessages(ctx context.Context, ids []string) ([]models.Message, error) {
	ids = uniqueIDs(ids)
	if len(ids) == 0 {
		return []models.Message{}, nil
	}
	msgs := []models.Message{}
	if err := r.db.SelectContext(ctx, &msgs, `SELECT `+messageColumns+` FROM messages WHERE id = ANY($1)
        ORDER BY created_at, id`, pq.Array(ids)); err != nil {
		return nil, err
	}
	return msgs, r.attachReads(ctx, msgs)
}

// ListPage reads the newest page and returns it oldest first.
func (r *MessageRepo) ListPage(ctx context.Context, conversationID string, limit, skip int) ([]models.Message, error) {
	msgs := []models.Message{}
	if err := r.db.SelectContext(ctx, &msgs, `SELECT `+messageColumns+` FROM messages WHERE conversation_id=$1
        ORDER BY created_at DESC, id DESC LIMIT $2 OFFSET $3`, conversationID, limit, skip); err != nil {
		return nil, err
	}
	reverseMessages(msgs)
	return msgs, r.attachReads(ctx, msgs)
}

type readRow struct {
	MessageID string    `db:"message_id"`
	UserID    string    `db:"user_id"`
	ReadAt    time.Time `db:"read_at"`
}

func (r *MessageRepo) attachReads(ctx context.Context, msgs []models.Message) error {
	if len(msgs) == 0 {
		return nil
	}
	ids := make([]string, len(msgs))
	for i, m := range msgs {
		ids[i] = m.ID
	}
	var rows []readRow
	if err := r.db.SelectContext(ctx, &rows, `SELECT message_id, user_id, read_at FROM message_reads
        WHERE message_id = ANY($1) ORDER BY read_at`, pq.Array(ids)); err != nil {
		return err
	}
	byMessage := make(map[string][]models.ReadReceipt, len(msgs))
	for _, row := range rows {
		byMessage[row.MessageID] = append(byMessage[row.MessageID], models.ReadReceipt{UserID: row.UserID, ReadAt: row.ReadAt})
	}
	for i := range msgs {
		msgs[i].ReadBy = byMessage[msgs[i].ID]
	}
	return nil
}

// MarkRead flips unread messages from other senders to read and records a receipt, atomically.
func (r *MessageRepo) MarkRead(ctx context.Context, conversationID, readerID string, at time.Time) (int64, error) {
	var modified int64
	err := r.db.GetContext(ctx, &modified, `WITH target AS (
            SELECT m.id FROM messages m
            WHERE m.conversation_id = $1 AND m.sender_id <> $2 AND m.status IN ('sent', 'delivered')
              AND NOT EXISTS (SELECT 1 FROM message_reads mr WHERE mr.message_id = m.id AND mr.user_id = $2)
            FOR UPDATE
        ), upd AS (
            UPDATE messages SET status = 'read', updated_at = $3 WHERE id IN (SELECT id FROM target) RETURNING id
        ), ins AS (
            INSERT INTO message_reads (message_id, user_id, read_at)
            SELECT id, $2, $3 FROM upd ON CONFLICT DO NOTHING
        )
        SELECT count(*) FROM upd`, conversationID, readerID, at.UTC())
	return modified, err
}

// MarkDelivered moves the named messages of the conversation from sent to delivered.
func (r *MessageRepo) MarkDelivered(ctx context.Context, conversationID string, messageIDs []string) (int64, error) {
	ids := uniqueIDs(messageIDs)
	if len(ids) == 0 {
		return 0, nil
	}
	res, err := r.db.ExecContext(ctx, `UPDATE messages SET status = 'delivered', updated_at = NOW()
        WHERE conversation_id = $1 AND id = ANY($2) AND status = 'sent'`, conversationID, pq.Array(ids))
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
