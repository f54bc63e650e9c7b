// Package workspace implements the state transitions a workspace room can go
// through: members joining and leaving, files opened and edited, chat, and
// the submit/review cycle that drives the task status machine.
package workspace

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/KUMARAN-07/Academic-Collab/internal/broadcast"
	"github.com/KUMARAN-07/Academic-Collab/internal/protocol"
	"github.com/KUMARAN-07/Academic-Collab/internal/storage"
	"github.com/KUMARAN-07/Academic-Collab/pkg/state"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

type Handlers struct {
	logger      *slog.Logger
	store       storage.Store
	manager     state.Manager
	broadcaster *broadcast.Broadcaster
	locks       *keyedLocks

	now func() time.Time
}

func NewHandlers(logger *slog.Logger, store storage.Store, manager state.Manager, broadcaster *broadcast.Broadcaster) *Handlers {
	return &Handlers{
		logger:      logger.With(slog.String("component", "workspace_handlers")),
		store:       store,
		manager:     manager,
		broadcaster: broadcaster,
		locks:       newKeyedLocks(),
		now:         time.Now,
	}
}

// Join adds the connection to the task's room, records the user as an active
// collaborator and tells everyone already there.
func (h *Handlers) Join(ctx context.Context, conn *state.Connection, msg protocol.JoinTaskWorkspace) error {
	key := state.RoomKey{ProjectID: msg.ProjectID, TaskID: msg.TaskID}
	if err := h.manager.Join(key, conn.ID); err != nil {
		return err
	}

	unlock := h.locks.lock(key)
	defer unlock()

	task, err := h.store.GetTaskWorkspace(ctx, msg.ProjectID, msg.TaskID)
	if err != nil {
		// Membership without a backing task is useless; undo the join.
		h.manager.Leave(key, conn.ID)
		return fmt.Errorf("join workspace %s: %w", key, err)
	}

	// One collaborator entry per user. A rejoin (second tab, reconnect)
	// refreshes the timestamp instead of stacking duplicates.
	idx := slices.IndexFunc(task.Workspace.Collaborators, func(c storage.Collaborator) bool {
		return c.UserID == conn.UserID
	})
	if idx >= 0 {
		task.Workspace.Collaborators[idx].LastActive = h.now()
		task.Workspace.Collaborators[idx].Name = conn.UserName
	} else {
		task.Workspace.Collaborators = append(task.Workspace.Collaborators, storage.Collaborator{
			UserID:     conn.UserID,
			Name:       conn.UserName,
			LastActive: h.now(),
		})
	}

	if err := h.store.SaveTaskWorkspace(ctx, msg.ProjectID, msg.TaskID, task); err != nil {
		return fmt.Errorf("join workspace %s: %w", key, err)
	}

	return h.broadcaster.ToRoom(key, protocol.CollaboratorUpdateEvent{
		Type:          protocol.EventCollaboratorUpdate,
		Collaborators: task.Workspace.Collaborators,
	}, conn.ID)
}

// OpenFile sets the workspace's current file and records it in the open-file
// list, then pushes the new file state to every member including the opener.
func (h *Handlers) OpenFile(ctx context.Context, conn *state.Connection, msg protocol.OpenFile) error {
	key := state.RoomKey{ProjectID: msg.ProjectID, TaskID: msg.TaskID}
	unlock := h.locks.lock(key)
	defer unlock()

	task, err := h.store.GetTaskWorkspace(ctx, msg.ProjectID, msg.TaskID)
	if err != nil {
		return fmt.Errorf("open file in %s: %w", key, err)
	}

	task.Workspace.CurrentFile = msg.FilePath
	if !slices.Contains(task.Workspace.OpenFiles, msg.FilePath) {
		task.Workspace.OpenFiles = append(task.Workspace.OpenFiles, msg.FilePath)
	}

	if err := h.store.SaveTaskWorkspace(ctx, msg.ProjectID, msg.TaskID, task); err != nil {
		return fmt.Errorf("open file in %s: %w", key, err)
	}

	return h.broadcaster.ToRoom(key, protocol.FileUpdateEvent{
		Type:        protocol.EventFileUpdate,
		CurrentFile: task.Workspace.CurrentFile,
		OpenFiles:   task.Workspace.OpenFiles,
	}, broadcast.NoExclusion)
}

// FileChange relays an edit delta to everyone except the editor. Deltas are
// not persisted and not merged; last broadcast wins on the clients.
func (h *Handlers) FileChange(_ context.Context, conn *state.Connection, msg protocol.FileChange) error {
	key := state.RoomKey{ProjectID: msg.ProjectID, TaskID: msg.TaskID}
	return h.broadcaster.ToRoom(key, protocol.FileChangeEvent{
		Type:     protocol.EventFileChange,
		FilePath: msg.FilePath,
		Changes:  msg.Changes,
	}, conn.ID)
}

// Chat appends the message to the project's chat log and fans it out to all
// members, sender included.
func (h *Handlers) Chat(ctx context.Context, conn *state.Connection, msg protocol.SendMessage) error {
	key := state.RoomKey{ProjectID: msg.ProjectID, TaskID: msg.TaskID}

	message := storage.Message{
		SenderID:   conn.UserID,
		SenderName: conn.UserName,
		Content:    msg.Content,
		Timestamp:  h.now(),
	}
	if err := h.store.AppendProjectMessage(ctx, msg.ProjectID, &message); err != nil {
		return fmt.Errorf("append chat message to project %s: %w", msg.ProjectID, err)
	}

	return h.broadcaster.ToRoom(key, protocol.NewMessageEvent{
		Type:    protocol.EventNewMessage,
		Message: message,
	}, broadcast.NoExclusion)
}

// Submit appends a new submission and moves the task under review.
func (h *Handlers) Submit(ctx context.Context, conn *state.Connection, msg protocol.SubmitTask) error {
	key := state.RoomKey{ProjectID: msg.ProjectID, TaskID: msg.TaskID}
	unlock := h.locks.lock(key)
	defer unlock()

	task, err := h.store.GetTaskWorkspace(ctx, msg.ProjectID, msg.TaskID)
	if err != nil {
		return fmt.Errorf("submit task %s: %w", key, err)
	}

	submission := storage.Submission{
		ID:           primitive.NewObjectID(),
		SubmittedAt:  h.now(),
		SubmittedBy:  conn.UserID,
		Files:        msg.Files,
		Comment:      msg.Comment,
		ReviewStatus: storage.ReviewPending,
	}
	task.Submissions = append(task.Submissions, submission)
	task.Status = storage.StatusUnderReview

	if err := h.store.SaveTaskWorkspace(ctx, msg.ProjectID, msg.TaskID, task); err != nil {
		return fmt.Errorf("submit task %s: %w", key, err)
	}

	h.logger.Info("Task submitted",
		slog.String("room", key.String()),
		slog.String("userID", conn.UserID),
		slog.String("submissionID", submission.ID.Hex()),
	)

	return h.broadcaster.ToRoom(key, protocol.TaskSubmittedEvent{
		Type:       protocol.EventTaskSubmitted,
		Status:     task.Status,
		Submission: submission,
	}, broadcast.NoExclusion)
}

// Review records the verdict on a submission and moves the task to Completed
// or Needs Revision.
func (h *Handlers) Review(ctx context.Context, conn *state.Connection, msg protocol.ReviewTask) error {
	key := state.RoomKey{ProjectID: msg.ProjectID, TaskID: msg.TaskID}

	// The verdict is a closed enum; anything else is a malformed message.
	verdict := storage.ReviewStatus(msg.Status)
	if verdict != storage.ReviewApproved && verdict != storage.ReviewNeedsRevision {
		return fmt.Errorf("review task %s: invalid review status %q", key, msg.Status)
	}

	unlock := h.locks.lock(key)
	defer unlock()

	task, err := h.store.GetTaskWorkspace(ctx, msg.ProjectID, msg.TaskID)
	if err != nil {
		return fmt.Errorf("review task %s: %w", key, err)
	}

	idx := slices.IndexFunc(task.Submissions, func(s storage.Submission) bool {
		return s.ID.Hex() == msg.SubmissionID
	})
	if idx < 0 {
		return fmt.Errorf("review task %s: submission %q: %w", key, msg.SubmissionID, storage.ErrNotFound)
	}

	now := h.now()
	submission := &task.Submissions[idx]
	submission.ReviewStatus = verdict
	submission.ReviewComment = msg.Comment
	submission.ReviewedBy = conn.UserID
	submission.ReviewedAt = &now

	if submission.ReviewStatus == storage.ReviewApproved {
		task.Status = storage.StatusCompleted
	} else {
		task.Status = storage.StatusNeedsRevision
	}

	if err := h.store.SaveTaskWorkspace(ctx, msg.ProjectID, msg.TaskID, task); err != nil {
		return fmt.Errorf("review task %s: %w", key, err)
	}

	h.logger.Info("Task reviewed",
		slog.String("room", key.String()),
		slog.String("reviewer", conn.UserID),
		slog.String("status", string(task.Status)),
	)

	return h.broadcaster.ToRoom(key, protocol.TaskReviewedEvent{
		Type:       protocol.EventTaskReviewed,
		Status:     task.Status,
		Submission: *submission,
	}, broadcast.NoExclusion)
}

// Disconnect removes the connection from every room it was part of, drops its
// collaborator entries from the persisted workspaces and notifies whoever is
// still there. Called from the transport close path and the health monitor.
func (h *Handlers) Disconnect(ctx context.Context, conn *state.Connection) {
	keys := h.manager.LeaveAll(conn.ID)
	for _, key := range keys {
		// Another connection of the same user may still be in the room; the
		// collaborator entry stays until the last one goes.
		if h.userStillInRoom(key, conn.UserID) {
			continue
		}
		if err := h.removeCollaborator(ctx, key, conn.UserID); err != nil {
			h.logger.Warn("Failed to clean up collaborator entry on disconnect",
				slog.String("room", key.String()),
				slog.String("userID", conn.UserID),
				slog.Any("error", err),
			)
			continue
		}
		h.broadcaster.ToRoom(key, protocol.CollaboratorLeftEvent{
			Type:   protocol.EventCollaboratorLeft,
			UserID: conn.UserID,
		}, broadcast.NoExclusion)
	}
}

func (h *Handlers) userStillInRoom(key state.RoomKey, userID string) bool {
	for _, member := range h.manager.RoomMembers(key) {
		if member.UserID == userID {
			return true
		}
	}
	return false
}

func (h *Handlers) removeCollaborator(ctx context.Context, key state.RoomKey, userID string) error {
	unlock := h.locks.lock(key)
	defer unlock()

	task, err := h.store.GetTaskWorkspace(ctx, key.ProjectID, key.TaskID)
	if err != nil {
		return err
	}
	before := len(task.Workspace.Collaborators)
	task.Workspace.Collaborators = slices.DeleteFunc(task.Workspace.Collaborators, func(c storage.Collaborator) bool {
		return c.UserID == userID
	})
	if len(task.Workspace.Collaborators) == before {
		return nil
	}
	return h.store.SaveTaskWorkspace(ctx, key.ProjectID, key.TaskID, task)
}
