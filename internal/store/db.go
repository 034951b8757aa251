package store

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const (
	collUsers         = "users"
	collProjects      = "projects"
	collTasks         = "tasks"
	collNotifications = "notifications"
	collAnnouncements = "announcements"
	collFolders       = "folders"
	collFiles         = "files"
	collHistories     = "histories"
)

func Open(ctx context.Context, uri, database string) (*mongo.Client, *mongo.Database, error) {
	opts := options.Client().
		ApplyURI(uri).
		SetMaxPoolSize(20).
		SetMaxConnIdleTime(5 * time.Minute).
		SetServerSelectionTimeout(10 * time.Second)

	client, err := mongo.Connect(ctx, opts)
	if err != nil {
		return nil, nil, fmt.Errorf("connect mongo: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, nil, fmt.Errorf("ping mongo: %w", err)
	}
	return client, client.Database(database), nil
}

type indexSpec struct {
	collection string
	keys       bson.D
}

var indexSpecs = []indexSpec{
	{collection: collUsers, keys: bson.D{{Key: "email", Value: 1}}},
	{collection: collUsers, keys: bson.D{{Key: "role", Value: 1}}},
	{collection: collProjects, keys: bson.D{{Key: "leader_id", Value: 1}}},
	{collection: collProjects, keys: bson.D{{Key: "member_ids", Value: 1}}},
	{collection: collTasks, keys: bson.D{{Key: "project_id", Value: 1}, {Key: "assignee_id", Value: 1}}},
	{collection: collTasks, keys: bson.D{{Key: "end_at", Value: 1}}},
	{collection: collNotifications, keys: bson.D{{Key: "for_user", Value: 1}, {Key: "created_at", Value: -1}}},
	{collection: collNotifications, keys: bson.D{{Key: "type", Value: 1}, {Key: "data.task_id", Value: 1}, {Key: "created_at", Value: -1}}},
	{collection: collFolders, keys: bson.D{{Key: "project_id", Value: 1}}},
	{collection: collFiles, keys: bson.D{{Key: "folder_id", Value: 1}}},
	{collection: collHistories, keys: bson.D{{Key: "timestamp", Value: -1}}},
}

// EnsureIndexes creates the secondary indexes the queries rely on. Creating
// an index that already exists is a no-op on the server.
func EnsureIndexes(ctx context.Context, db *mongo.Database) error {
	for _, spec := range indexSpecs {
		model := mongo.IndexModel{Keys: spec.keys}
		if _, err := db.Collection(spec.collection).Indexes().CreateOne(ctx, model); err != nil {
			return fmt.Errorf("ensure index on %s: %w", spec.collection, err)
		}
	}
	return nil
}
