// Package memstore is a map-backed implementation of the storage contract,
// used by tests and for running the server without a database.
package memstore

import (
	"context"
	"slices"
	"sync"

	"github.com/KUMARAN-07/Academic-Collab/internal/storage"
)

type Store struct {
	mu       sync.RWMutex
	users    map[string]*storage.User
	projects map[string]*storage.Project
}

var _ storage.Store = (*Store)(nil)

func New() *Store {
	return &Store{
		users:    make(map[string]*storage.User),
		projects: make(map[string]*storage.Project),
	}
}

func (s *Store) PutUser(u storage.User) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[u.ID] = &u
}

func (s *Store) PutProject(p storage.Project) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.projects[p.ID] = &p
}

func (s *Store) FindUser(_ context.Context, userID string) (*storage.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.users[userID]
	if !ok {
		return nil, storage.ErrNotFound
	}
	copied := *u
	return &copied, nil
}

func (s *Store) GetTaskWorkspace(_ context.Context, projectID, taskID string) (*storage.Task, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.projects[projectID]
	if !ok {
		return nil, storage.ErrNotFound
	}
	for i := range p.Tasks {
		if p.Tasks[i].ID == taskID {
			task := cloneTask(p.Tasks[i])
			return &task, nil
		}
	}
	return nil, storage.ErrNotFound
}

func (s *Store) SaveTaskWorkspace(_ context.Context, projectID, taskID string, task *storage.Task) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.projects[projectID]
	if !ok {
		return storage.ErrNotFound
	}
	for i := range p.Tasks {
		if p.Tasks[i].ID == taskID {
			p.Tasks[i] = cloneTask(*task)
			return nil
		}
	}
	return storage.ErrNotFound
}

// cloneTask detaches the slices a caller is allowed to mutate, so writes only
// reach the store through SaveTaskWorkspace, same as the database-backed store.
func cloneTask(t storage.Task) storage.Task {
	t.Workspace.OpenFiles = slices.Clone(t.Workspace.OpenFiles)
	t.Workspace.Collaborators = slices.Clone(t.Workspace.Collaborators)
	t.Submissions = slices.Clone(t.Submissions)
	return t
}

func (s *Store) AppendProjectMessage(_ context.Context, projectID string, msg *storage.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.projects[projectID]
	if !ok {
		return storage.ErrNotFound
	}
	p.Messages = append(p.Messages, *msg)
	return nil
}

// Messages returns a copy of a project's chat log.
func (s *Store) Messages(projectID string) []storage.Message {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.projects[projectID]
	if !ok {
		return nil
	}
	out := make([]storage.Message, len(p.Messages))
	copy(out, p.Messages)
	return out
}
