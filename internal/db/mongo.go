package db

import (
	"context"
	"fmt"
	"log/slog"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
)

// ConnectMongo opens the document store, verifies it and ensures indexes.
func ConnectMongo(ctx context.Context, uri, database string) (*mongo.Database, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("connect mongo: %w", err)
	}
	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("ping mongo: %w", err)
	}
	db := client.Database(database)
	if err := EnsureIndexes(ctx, db); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("ensure indexes: %w", err)
	}
	return db, nil
}

// EnsureIndexes creates the indexes the repositories rely on. The partial unique index on
// directKey keeps one direct conversation per pair.
func EnsureIndexes(ctx context.Context, db *mongo.Database) error {
	conversations := []mongo.IndexModel{
		{Keys: bson.D{{Key: "participants", Value: 1}}},
		{Keys: bson.D{{Key: "updatedAt", Value: -1}}},
		{
			Keys: bson.D{{Key: "directKey", Value: 1}},
			Options: options.Index().
				SetUnique(true).
				SetPartialFilterExpression(bson.M{"directKey": bson.M{"$type": "string"}}),
		},
	}
	if _, err := db.Collection("conversations").Indexes().CreateMany(ctx, conversations); err != nil {
		return err
	}

	messages := []mongo.IndexModel{
		{Keys: bson.D{{Key: "conversation", Value: 1}, {Key: "createdAt", Value: -1}}},
		{Keys: bson.D{{Key: "sender", Value: 1}}},
	}
	if _, err := db.Collection("messages").Indexes().CreateMany(ctx, messages); err != nil {
		return err
	}
	slog.Info("mongo indexes ensured", "database", db.Name())
	return nil
}
