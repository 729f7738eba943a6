package repositories

import (
	"context"
	"errors"
	"regexp"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	"chat-gateway/internal/models"
)

type userDoc struct {
	ID        primitive.ObjectID `bson:"_id"`
	Name      string             `bson:"name"`
	Email     string             `bson:"email"`
	CreatedAt time.Time          `bson:"createdAt"`
}

func (d userDoc) model() models.User {
	return models.User{ID: d.ID.Hex(), Name: d.Name, Email: d.Email, CreatedAt: d.CreatedAt}
}

// userProjection keeps credentials owned by the account service out of reads.
var userProjection = bson.M{"name": 1, "email": 1, "createdAt": 1}

// MongoUserRepo reads the "users" collection owned by the account service.
type MongoUserRepo struct {
	coll *mongo.Collection
}

// NewMongoUserRepo constructs a MongoUserRepo.
func NewMongoUserRepo(db *mongo.Database) *MongoUserRepo {
	return &MongoUserRepo{coll: db.Collection("users")}
}

func (r *MongoUserRepo) FindByID(ctx context.Context, id string) (models.User, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return models.User{}, ErrUserNotFound
	}
	var doc userDoc
	err = r.coll.FindOne(ctx, bson.M{"_id": oid}, options.FindOne().SetProjection(userProjection)).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return models.User{}, ErrUserNotFound
		}
		return models.User{}, err
	}
	return doc.model(), nil
}

func (r *MongoUserRepo) FindByIDs(ctx context.Context, ids []string) ([]models.User, error) {
	oids := objectIDs(ids)
	if len(oids) == 0 {
		return []models.User{}, nil
	}
	return r.find(ctx, bson.M{"_id": bson.M{"$in": oids}}, options.Find().SetProjection(userProjection))
}

// Search matches name or email case-insensitively, excluding the caller.
func (r *MongoUserRepo) Search(ctx context.Context, query, excludeID string, limit int) ([]models.User, error) {
	pattern := primitive.Regex{Pattern: regexp.QuoteMeta(query), Options: "i"}
	filter := bson.M{"$or": bson.A{
		bson.M{"name": pattern},
		bson.M{"email": pattern},
	}}
	if oid, err := primitive.ObjectIDFromHex(excludeID); err == nil {
		filter["_id"] = bson.M{"$ne": oid}
	}
	opts := options.Find().SetProjection(userProjection).SetLimit(int64(limit))
	return r.find(ctx, filter, opts)
}

func (r *MongoUserRepo) find(ctx context.Context, filter bson.M, opts *options.FindOptions) ([]models.User, error) {
	cursor, err := r.coll.Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	var docs []userDoc
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, err
	}
	users := make([]models.User, 0, len(docs))
	for _, d := range docs {
		users = append(users, d.model())
	}
	return users, nil
}

// NewMongoStore wires the Mongo repositories over db.
func NewMongoStore(db *mongo.Database) Store {
	client := db.Client()
	return Store{
		Conversations: NewMongoConversationRepo(db),
		Messages:      NewMongoMessageRepo(db),
		Users:         NewMongoUserRepo(db),
		ping: func(ctx context.Context) error {
			return client.Ping(ctx, readpref.Primary())
		},
		close: client.Disconnect,
	}
}
