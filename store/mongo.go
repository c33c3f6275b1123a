package store

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

type mongoStore struct {
	client *mongo.Client
	coll   *mongo.Collection
}

func openMongo(ctx context.Context, dsn string) (Store, error) {
	client, err := mongo.Connect(options.Client().ApplyURI(dsn))
	if err != nil {
		return nil, fmt.Errorf("store: connect mongo: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		client.Disconnect(ctx)
		return nil, fmt.Errorf("store: ping mongo: %w", err)
	}
	return &mongoStore{
		client: client,
		coll:   client.Database("phonepilot").Collection("task_runs"),
	}, nil
}

func (s *mongoStore) SaveTask(ctx context.Context, rec *TaskRecord) error {
	if rec.ID == "" {
		rec.ID = NewTaskID()
	}
	if _, err := s.coll.InsertOne(ctx, rec); err != nil {
		return fmt.Errorf("store: save task: %w", err)
	}
	return nil
}

func (s *mongoStore) ListTasks(ctx context.Context, deviceSerial string, limit int) ([]TaskRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	opts := options.Find().
		SetSort(bson.D{{Key: "started_at", Value: -1}}).
		SetLimit(int64(limit))
	cur, err := s.coll.Find(ctx, bson.M{"device_serial": deviceSerial}, opts)
	if err != nil {
		return nil, fmt.Errorf("store: list tasks: %w", err)
	}
	defer cur.Close(ctx)

	var out []TaskRecord
	if err := cur.All(ctx, &out); err != nil {
		return nil, fmt.Errorf("store: decode tasks: %w", err)
	}
	return out, nil
}

func (s *mongoStore) Close() error {
	return s.client.Disconnect(context.Background())
}
