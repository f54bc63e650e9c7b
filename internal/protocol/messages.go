// Package protocol defines the wire messages exchanged over a workspace
// connection: six client-to-server types and the server-to-client events they
// produce. The set is closed; the router matches exhaustively over it.
package protocol

import (
	"encoding/json"

	"github.com/KUMARAN-07/Academic-Collab/internal/storage"
)

// Inbound message types.
const (
	TypeJoinTaskWorkspace = "JOIN_TASK_WORKSPACE"
	TypeOpenFile          = "OPEN_FILE"
	TypeFileChange        = "FILE_CHANGE"
	TypeSendMessage       = "SEND_MESSAGE"
	TypeSubmitTask        = "SUBMIT_TASK"
	TypeReviewTask        = "REVIEW_TASK"
)

// Outbound event types.
const (
	EventCollaboratorUpdate = "COLLABORATOR_UPDATE"
	EventCollaboratorLeft   = "COLLABORATOR_LEFT"
	EventFileUpdate         = "FILE_UPDATE"
	EventFileChange         = "FILE_CHANGE"
	EventNewMessage         = "NEW_MESSAGE"
	EventTaskSubmitted      = "TASK_SUBMITTED"
	EventTaskReviewed       = "TASK_REVIEWED"
	EventError              = "ERROR"
)

type JoinTaskWorkspace struct {
	ProjectID string `json:"projectId"`
	TaskID    string `json:"taskId"`
}

type OpenFile struct {
	ProjectID string `json:"projectId"`
	TaskID    string `json:"taskId"`
	FilePath  string `json:"filePath"`
}

type FileChange struct {
	ProjectID string          `json:"projectId"`
	TaskID    string          `json:"taskId"`
	FilePath  string          `json:"filePath"`
	Changes   json.RawMessage `json:"changes"`
}

type SendMessage struct {
	ProjectID string `json:"projectId"`
	TaskID    string `json:"taskId"`
	Content   string `json:"content"`
}

type SubmitTask struct {
	ProjectID string            `json:"projectId"`
	TaskID    string            `json:"taskId"`
	Comment   string            `json:"comment"`
	Files     []storage.FileRef `json:"files"`
}

type ReviewTask struct {
	ProjectID    string `json:"projectId"`
	TaskID       string `json:"taskId"`
	SubmissionID string `json:"submissionId"`
	Status       string `json:"status"` // "Approved" or "Needs Revision"
	Comment      string `json:"comment"`
}

// --- Server events ---

type CollaboratorUpdateEvent struct {
	Type          string                 `json:"type"`
	Collaborators []storage.Collaborator `json:"collaborators"`
}

type CollaboratorLeftEvent struct {
	Type   string `json:"type"`
	UserID string `json:"userId"`
}

type FileUpdateEvent struct {
	Type        string   `json:"type"`
	CurrentFile string   `json:"currentFile"`
	OpenFiles   []string `json:"openFiles"`
}

type FileChangeEvent struct {
	Type     string          `json:"type"`
	FilePath string          `json:"filePath"`
	Changes  json.RawMessage `json:"changes"`
}

type NewMessageEvent struct {
	Type    string          `json:"type"`
	Message storage.Message `json:"message"`
}

type TaskSubmittedEvent struct {
	Type       string             `json:"type"`
	Status     storage.TaskStatus `json:"status"`
	Submission storage.Submission `json:"submission"`
}

type TaskReviewedEvent struct {
	Type       string             `json:"type"`
	Status     storage.TaskStatus `json:"status"`
	Submission storage.Submission `json:"submission"`
}

type ErrorEvent struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

func NewErrorEvent(message string) ErrorEvent {
	return ErrorEvent{Type: EventError, Message: message}
}
