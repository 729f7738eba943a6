package repositories

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"chat-gateway/internal/models"
)

type readReceiptDoc struct {
	User   string    `bson:"user"`
	ReadAt time.Time `bson:"readAt"`
}

type messageDoc struct {
	ID           primitive.ObjectID `bson:"_id,omitempty"`
	Conversation primitive.ObjectID `bson:"conversation"`
	Sender       string             `bson:"sender"`
	Content      string             `bson:"content"`
	Type         string             `bson:"type"`
	Status       string             `bson:"status"`
	ReadBy       []readReceiptDoc   `bson:"readBy"`
	CreatedAt    time.Time          `bson:"createdAt"`
	UpdatedAt    time.Time          `bson:"updatedAt"`
}

func (d messageDoc) model() models.Message {
	msg := models.Message{
		ID:             d.ID.Hex(),
		ConversationID: d.Conversation.Hex(),
		SenderID:       d.Sender,
		Content:        d.Content,
		Type:           d.Type,
		Status:         d.Status,
		CreatedAt:      d.CreatedAt,
	}
	for _, r := range d.ReadBy {
		msg.ReadBy = append(msg.ReadBy, models.ReadReceipt{UserID: r.User, ReadAt: r.ReadAt})
	}
	return msg
}

// MongoMessageRepo stores messages in the "messages" collection.
type MongoMessageRepo struct {
	coll *mongo.Collection
}

// NewMongoMessageRepo constructs a MongoMessageRepo.
func NewMongoMessageRepo(db *mongo.Database) *MongoMessageRepo {
	return &MongoMessageRepo{coll: db.Collection("messages")}
}

// CreateMessage inserts a message with status sent, read by its sender.
func (r *MongoMessageRepo) CreateMessage(ctx context.Context, msg models.NewMessage) (models.Message, error) {
	convOID, err := primitive.ObjectIDFromHex(msg.ConversationID)
	if err != nil {
		return models.Message{}, ErrConversationNotFound
	}
	at := msg.CreatedAt
	if at.IsZero() {
		at = time.Now()
	}
	at = at.UTC().Truncate(time.Millisecond)
	typ := msg.Type
	if typ == "" {
		typ = models.MessageText
	}
	doc := messageDoc{
		ID:           primitive.NewObjectID(),
		Conversation: convOID,
		Sender:       msg.SenderID,
		Content:      msg.Content,
		Type:         typ,
		Status:       models.StatusSent,
		ReadBy:       []readReceiptDoc{{User: msg.SenderID, ReadAt: at}},
		CreatedAt:    at,
		UpdatedAt:    at,
	}
	if _, err := r.coll.InsertOne(ctx, doc); err != nil {
		return models.Message{}, err
	}
	return doc.model(), nil
}

// GetMessage fetches a message by id.
func (r *MongoMessageRepo) GetMessage(ctx context.Context, id string) (models.Message, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return models.Message{}, ErrMessageNotFound
	}
	var doc messageDoc
	if err := r.coll.FindOne(ctx, bson.M{"_id": oid}).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return models.Message{}, ErrMessageNotFound
		}
		return models.Message{}, err
	}
	return doc.model(), nil
}

// GetMessages fetches the messages with the given ids, skipping unknown ones.
func (r *MongoMessageRepo) GetMessages(ctx context.Context, ids []string) ([]models.Message, error) {
	oids := objectIDs(ids)
	if len(oids) == 0 {
		return []models.Message{}, nil
	}
	return r.find(ctx, bson.M{"_id": bson.M{"$in": oids}}, nil)
}

// ListPage reads the newest page and returns it oldest first.
func (r *MongoMessageRepo) ListPage(ctx context.Context, conversationID string, limit, skip int) ([]models.Message, error) {
	oid, err := primitive.ObjectIDFromHex(conversationID)
	if err != nil {
		return []models.Message{}, nil
	}
	opts := options.Find().
		SetSort(bson.D{{Key: "createdAt", Value: -1}, {Key: "_id", Value: -1}}).
		SetSkip(int64(skip)).
		SetLimit(int64(limit))
	msgs, err := r.find(ctx, bson.M{"conversation": oid}, opts)
	if err != nil {
		return nil, err
	}
	reverseMessages(msgs)
	return msgs, nil
}

func (r *MongoMessageRepo) find(ctx context.Context, filter bson.M, opts *options.FindOptions) ([]models.Message, error) {
	cursor, err := r.coll.Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	var docs []messageDoc
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, err
	}
	msgs := make([]models.Message, 0, len(docs))
	for _, d := range docs {
		msgs = append(msgs, d.model())
	}
	return msgs, nil
}

// MarkRead flips unread messages from other senders to read and appends a receipt.
func (r *MongoMessageRepo) MarkRead(ctx context.Context, conversationID, readerID string, at time.Time) (int64, error) {
	oid, err := primitive.ObjectIDFromHex(conversationID)
	if err != nil {
		return 0, ErrConversationNotFound
	}
	at = at.UTC().Truncate(time.Millisecond)
	filter := bson.M{
		"conversation": oid,
		"sender":       bson.M{"$ne": readerID},
		"status":       bson.M{"$in": bson.A{models.StatusSent, models.StatusDelivered}},
		"readBy.user":  bson.M{"$ne": readerID},
	}
	update := bson.M{
		"$set":  bson.M{"status": models.StatusRead, "updatedAt": at},
		"$push": bson.M{"readBy": readReceiptDoc{User: readerID, ReadAt: at}},
	}
	res, err := r.coll.UpdateMany(ctx, filter, update)
	if err != nil {
		return 0, err
	}
	return res.ModifiedCount, nil
}

// MarkDelivered moves the named messages of the conversation from sent to delivered.
func (r *MongoMessageRepo) MarkDelivered(ctx context.Context, conversationID string, messageIDs []string) (int64, error) {
	oid, err := primitive.ObjectIDFromHex(conversationID)
	if err != nil {
		return 0, ErrConversationNotFound
	}
	oids := objectIDs(messageIDs)
	if len(oids) == 0 {
		return 0, nil
	}
	res, err := r.coll.UpdateMany(ctx,
		bson.M{"_id": bson.M{"$in": oids}, "conversation": oid, "status": models.StatusSent},
		bson.M{"$set": bson.M{"status": models.StatusDelivered, "updatedAt": time.Now().UTC()}},
	)
	if err != nil {
		return 0, err
	}
	return res.ModifiedCount, nil
}

func objectIDs(ids []string) []primitive.ObjectID {
	oids := make([]primitive.ObjectID, 0, len(ids))
	for _, id := range uniqueIDs(ids) {
		oid, err := primitive.ObjectIDFromHex(id)
		if err != nil {
			continue
		}
		oids = append(oids, oid)
	}
	return oids
}
