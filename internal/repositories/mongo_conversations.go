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

type conversationDoc struct {
	ID           primitive.ObjectID  `bson:"_id,omitempty"`
	Name         string              `bson:"name,omitempty"`
	Type         string              `bson:"type"`
	Participants []string            `bson:"participants"`
	CreatedBy    string              `bson:"createdBy"`
	LastMessage  *primitive.ObjectID `bson:"lastMessage,omitempty"`
	DirectKey    string              `bson:"directKey,omitempty"`
	CreatedAt    time.Time           `bson:"createdAt"`
	UpdatedAt    time.Time           `bson:"updatedAt"`
}

func (d conversationDoc) model() models.Conversation {
	conv := models.Conversation{
		ID:           d.ID.Hex(),
		Name:         d.Name,
		Type:         d.Type,
		Participants: d.Participants,
		CreatedBy:    d.CreatedBy,
		CreatedAt:    d.CreatedAt,
		UpdatedAt:    d.UpdatedAt,
	}
	if d.LastMessage != nil {
		conv.LastMessageID = d.LastMessage.Hex()
	}
	return conv
}

// MongoConversationRepo stores conversations in the "conversations" collection.
type MongoConversationRepo struct {
	conversations *mongo.Collection
	messages      *mongo.Collection
}

// NewMongoConversationRepo constructs a MongoConversationRepo.
func NewMongoConversationRepo(db *mongo.Database) *MongoConversationRepo {
	return &MongoConversationRepo{
		conversations: db.Collection("conversations"),
		messages:      db.Collection("messages"),
	}
}

// CreateOrGetDirect finds the direct conversation for the pair or inserts it. The unique
// directKey index settles concurrent creations.
func (r *MongoConversationRepo) CreateOrGetDirect(ctx context.Context, creatorID, otherID, name string) (models.Conversation, bool, error) {
	if creatorID == otherID {
		return models.Conversation{}, false, ErrSelfConversation
	}
	key := models.DirectKey(creatorID, otherID)

	existing, err := r.findDirect(ctx, key, creatorID, otherID)
	if err == nil {
		return existing, false, nil
	}
	if !errors.Is(err, ErrConversationNotFound) {
		return models.Conversation{}, false, err
	}

	now := time.Now().UTC().Truncate(time.Millisecond)
	doc := conversationDoc{
		ID:           primitive.NewObjectID(),
		Name:         name,
		Type:         models.ConversationDirect,
		Participants: []string{creatorID, otherID},
		CreatedBy:    creatorID,
		DirectKey:    key,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if _, err := r.conversations.InsertOne(ctx, doc); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			existing, err := r.findDirect(ctx, key, creatorID, otherID)
			return existing, false, err
		}
		return models.Conversation{}, false, err
	}
	return doc.model(), true, nil
}

func (r *MongoConversationRepo) findDirect(ctx context.Context, key, a, b string) (models.Conversation, error) {
	filter := bson.M{"$or": bson.A{
		bson.M{"directKey": key},
		bson.M{
			"type":         models.ConversationDirect,
			"participants": bson.M{"$all": bson.A{a, b}, "$size": 2},
		},
	}}
	var doc conversationDoc
	if err := r.conversations.FindOne(ctx, filter).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return models.Conversation{}, ErrConversationNotFound
		}
		return models.Conversation{}, err
	}
	return doc.model(), nil
}

// CreateGroup inserts a new group conversation.
func (r *MongoConversationRepo) CreateGroup(ctx context.Context, creatorID string, participants []string, name string) (models.Conversation, error) {
	now := time.Now().UTC().Truncate(time.Millisecond)
	doc := conversationDoc{
		ID:           primitive.NewObjectID(),
		Name:         name,
		Type:         models.ConversationGroup,
		Participants: uniqueIDs(participants),
		CreatedBy:    creatorID,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if _, err := r.conversations.InsertOne(ctx, doc); err != nil {
		return models.Conversation{}, err
	}
	return doc.model(), nil
}

// GetConversation fetches a conversation by id.
func (r *MongoConversationRepo) GetConversation(ctx context.Context, id string) (models.Conversation, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return models.Conversation{}, ErrConversationNotFound
	}
	var doc conversationDoc
	if err := r.conversations.FindOne(ctx, bson.M{"_id": oid}).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return models.Conversation{}, ErrConversationNotFound
		}
		return models.Conversation{}, err
	}
	return doc.model(), nil
}

// IsParticipant checks the persisted participant list.
func (r *MongoConversationRepo) IsParticipant(ctx context.Context, id, userID string) (bool, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return false, nil
	}
	n, err := r.conversations.CountDocuments(ctx, bson.M{"_id": oid, "participants": userID}, options.Count().SetLimit(1))
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// ListForUser returns the user's conversations, most recently updated first.
func (r *MongoConversationRepo) ListForUser(ctx context.Context, userID string) ([]models.Conversation, error) {
	opts := options.Find().SetSort(bson.D{{Key: "updatedAt", Value: -1}})
	cursor, err := r.conversations.Find(ctx, bson.M{"participants": userID}, opts)
	if err != nil {
		return nil, err
	}
	var docs []conversationDoc
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, err
	}
	result := make([]models.Conversation, 0, len(docs))
	for _, d := range docs {
		result = append(result, d.model())
	}
	return result, nil
}

// TouchLastMessage points the conversation at its newest message.
func (r *MongoConversationRepo) TouchLastMessage(ctx context.Context, id, messageID string, at time.Time) error {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return ErrConversationNotFound
	}
	msgOID, err := primitive.ObjectIDFromHex(messageID)
	if err != nil {
		return ErrMessageNotFound
	}
	res, err := r.conversations.UpdateOne(ctx, bson.M{"_id": oid}, bson.M{
		"$set": bson.M{"lastMessage": msgOID, "updatedAt": at},
	})
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return ErrConversationNotFound
	}
	return nil
}

// DeleteForParticipant removes the conversation and its messages when userID participates.
func (r *MongoConversationRepo) DeleteForParticipant(ctx context.Context, id, userID string) error {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return ErrConversationNotFound
	}
	res, err := r.conversations.DeleteOne(ctx, bson.M{"_id": oid, "participants": userID})
	if err != nil {
		return err
	}
	if res.DeletedCount == 0 {
		return ErrConversationNotFound
	}
	_, err = r.messages.DeleteMany(ctx, bson.M{"conversation": oid})
	return err
}
