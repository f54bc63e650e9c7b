package storage

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

type TaskStatus string

const (
	StatusPending       TaskStatus = "Pending"
	StatusInProgress    TaskStatus = "In Progress"
	StatusUnderReview   TaskStatus = "Under Review"
	StatusNeedsRevision TaskStatus = "Needs Revision"
	StatusCompleted     TaskStatus = "Completed"
)

type ReviewStatus string

const (
	ReviewPending       ReviewStatus = "Pending"
	ReviewApproved      ReviewStatus = "Approved"
	ReviewNeedsRevision ReviewStatus = "Needs Revision"
)

type User struct {
	ID    string `bson:"_id" json:"id"`
	Name  string `bson:"name" json:"name"`
	Email string `bson:"email" json:"email"`
}

type FileRef struct {
	Name string `bson:"name" json:"name"`
	Path string `bson:"path" json:"path"`
}

// Collaborator is one presence entry in a task workspace. Exactly one entry
// exists per user currently joined to the task's room.
type Collaborator struct {
	UserID     string    `bson:"user" json:"user"`
	Name       string    `bson:"name,omitempty" json:"name,omitempty"`
	LastActive time.Time `bson:"lastActive" json:"lastActive"`
}

type Workspace struct {
	CurrentFile   string         `bson:"currentFile" json:"currentFile"`
	OpenFiles     []string       `bson:"openFiles" json:"openFiles"`
	Collaborators []Collaborator `bson:"collaborators" json:"collaborators"`
}

// Submission is one unit of work handed in for review. Appended on submit,
// never deleted; only the review fields are mutated afterwards.
type Submission struct {
	ID            primitive.ObjectID `bson:"_id" json:"id"`
	SubmittedAt   time.Time          `bson:"submittedAt" json:"submittedAt"`
	SubmittedBy   string             `bson:"submittedBy" json:"submittedBy"`
	Files         []FileRef          `bson:"files" json:"files"`
	Comment       string             `bson:"comment" json:"comment"`
	ReviewStatus  ReviewStatus       `bson:"reviewStatus" json:"reviewStatus"`
	ReviewComment string             `bson:"reviewComment,omitempty" json:"reviewComment,omitempty"`
	ReviewedBy    string             `bson:"reviewedBy,omitempty" json:"reviewedBy,omitempty"`
	ReviewedAt    *time.Time         `bson:"reviewedAt,omitempty" json:"reviewedAt,omitempty"`
}

type Task struct {
	ID          string       `bson:"_id" json:"id"`
	Name        string       `bson:"name" json:"name"`
	Description string       `bson:"description" json:"description"`
	Status      TaskStatus   `bson:"status" json:"status"`
	Workspace   Workspace    `bson:"workspace" json:"workspace"`
	Submissions []Submission `bson:"submissions" json:"submissions"`
	UpdatedAt   time.Time    `bson:"updatedAt" json:"updatedAt"`
}

type Message struct {
	SenderID   string    `bson:"sender" json:"sender"`
	SenderName string    `bson:"senderName,omitempty" json:"senderName,omitempty"`
	Content    string    `bson:"content" json:"content"`
	Timestamp  time.Time `bson:"timestamp" json:"timestamp"`
}

// Project is the persisted document that owns tasks and the chat log. Only
// the fields this server touches are modelled here; the CRUD API owns the rest.
type Project struct {
	ID       string    `bson:"_id" json:"id"`
	Name     string    `bson:"name" json:"name"`
	Tasks    []Task    `bson:"tasks" json:"tasks"`
	Messages []Message `bson:"messages" json:"messages"`
}
