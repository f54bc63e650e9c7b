// Package storage is the persistence boundary of the coordination server. The
// server never talks to the database beyond the Store contract: fetch a task
// workspace, write it back, append a chat message, look up a user record.
package storage

import (
	"context"
	"errors"
)

var (
	// ErrNotFound is returned when the referenced user, project, task or
	// submission does not exist.
	ErrNotFound = errors.New("not found")
	// ErrConflict is returned when a workspace write lost against a
	// concurrent update.
	ErrConflict = errors.New("write conflict")
)

type Store interface {
	FindUser(ctx context.Context, userID string) (*User, error)
	GetTaskWorkspace(ctx context.Context, projectID, taskID string) (*Task, error)
	SaveTaskWorkspace(ctx context.Context, projectID, taskID string, task *Task) error
	AppendProjectMessage(ctx context.Context, projectID string, msg *Message) error
}
