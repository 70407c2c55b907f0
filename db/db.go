// Package db connects to MongoDB.
package db

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	"deepfakeapi/config"
)

type Store struct {
	Client          *mongo.Client
	FilesCollection *mongo.Collection
}

// Connect opens the configured database. It returns nil when no URI is set.
func Connect(ctx context.Context, cfg config.MongoConfig) (*Store, error) {
	if cfg.URI == "" {
		return nil, nil
	}
	clientOptions := options.Client().
		ApplyURI(cfg.URI).
		SetServerSelectionTimeout(5 * time.Second)
	client, err := mongo.Connect(ctx, clientOptions)
	if err != nil {
		return nil, err
	}
	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		client.Disconnect(context.Background())
		return nil, err
	}
	return &Store{
		Client:          client,
		FilesCollection: client.Database(cfg.Database).Collection("files"),
	}, nil
}

func (s *Store) Close(ctx context.Context) error {
	if s == nil {
		return nil
	}
	return s.Client.Disconnect(ctx)
}
