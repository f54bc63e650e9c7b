// Package mongostore implements the storage contract against the MongoDB
// instance shared with the CRUD API. Tasks live as subdocuments of the
// projects collection, so workspace writes use the positional operator.
package mongostore

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/KUMARAN-07/Academic-Collab/internal/storage"
	"github.com/KUMARAN-07/Academic-Collab/pkg/config"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
)

type Store struct {
	client   *mongo.Client
	projects *mongo.Collection
	users    *mongo.Collection
	logger   *slog.Logger
}

var _ storage.Store = (*Store)(nil)

// Connect dials MongoDB and verifies the connection with a ping.
func Connect(ctx context.Context, logger *slog.Logger, cfg config.StorageConfig) (*Store, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.URI))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to mongodb: %w", err)
	}
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx, readpref.Primary()); err != nil {
		return nil, fmt.Errorf("mongodb ping failed: %w", err)
	}

	db := client.Database(cfg.Database)
	return &Store{
		client:   client,
		projects: db.Collection("projects"),
		users:    db.Collection("users"),
		logger:   logger.With(slog.String("component", "mongostore")),
	}, nil
}

func (s *Store) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}

// idFilter matches documents whose _id is either the given hex ObjectID or
// the raw string. The CRUD API stores ObjectIDs; fixtures use plain strings.
func idFilter(id string) bson.M {
	if oid, err := primitive.ObjectIDFromHex(id); err == nil {
		return bson.M{"_id": bson.M{"$in": bson.A{oid, id}}}
	}
	return bson.M{"_id": id}
}

func (s *Store) FindUser(ctx context.Context, userID string) (*storage.User, error) {
	var doc struct {
		ID    any    `bson:"_id"`
		Name  string `bson:"name"`
		Email string `bson:"email"`
	}
	err := s.users.FindOne(ctx, idFilter(userID)).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find user %q: %w", userID, err)
	}
	return &storage.User{ID: userID, Name: doc.Name, Email: doc.Email}, nil
}

func (s *Store) GetTaskWorkspace(ctx context.Context, projectID, taskID string) (*storage.Task, error) {
	var project storage.Project
	err := s.projects.FindOne(ctx, idFilter(projectID)).Decode(&project)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load project %q: %w", projectID, err)
	}

	for i := range project.Tasks {
		if project.Tasks[i].ID == taskID {
			task := project.Tasks[i]
			return &task, nil
		}
	}
	return nil, storage.ErrNotFound
}

func (s *Store) SaveTaskWorkspace(ctx context.Context, projectID, taskID string, task *storage.Task) error {
	filter := idFilter(projectID)
	filter["tasks._id"] = taskID

	update := bson.M{"$set": bson.M{
		"tasks.$.status":      task.Status,
		"tasks.$.workspace":   task.Workspace,
		"tasks.$.submissions": task.Submissions,
		"tasks.$.updatedAt":   time.Now(),
	}}

	res, err := s.projects.UpdateOne(ctx, filter, update)
	if err != nil {
		return fmt.Errorf("failed to save task workspace %s/%s: %w", projectID, taskID, err)
	}
	if res.MatchedCount == 0 {
		return storage.ErrNotFound
	}
	return nil
}

func (s *Store) AppendProjectMessage(ctx context.Context, projectID string, msg *storage.Message) error {
	res, err := s.projects.UpdateOne(ctx, idFilter(projectID), bson.M{"$push": bson.M{"messages": msg}})
	if err != nil {
		return fmt.Errorf("failed to append message to project %q: %w", projectID, err)
	}
	if res.MatchedCount == 0 {
		return storage.ErrNotFound
	}
	return nil
}
