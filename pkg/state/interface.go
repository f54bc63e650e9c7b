package state

import (
	"time"

	"github.com/google/uuid"
)

type Manager interface {
	// --- Connection Lifecycle ---
	RegisterConnection(link Link, userID, userName string, tokenExpiry time.Time) (*Connection, error)
	DeregisterConnection(connID uuid.UUID) error
	GetConnection(connID uuid.UUID) (*Connection, bool)
	Connections() []*Connection
	ConnectionCount(userID string) int
	FindOldestUserConnection(userID string) (*Connection, bool)

	// --- Health flag ---
	MarkAlive(connID uuid.UUID)
	// MarkPending clears the liveness flag and reports its previous value.
	MarkPending(connID uuid.UUID) (wasAlive bool)

	// --- Room & Membership Management ---
	// Join adds a connection to a room, creating the room if it doesn't exist.
	Join(key RoomKey, connID uuid.UUID) error
	Leave(key RoomKey, connID uuid.UUID)
	// LeaveAll removes the connection from every room it belongs to and
	// returns the keys of the rooms it was a member of.
	LeaveAll(connID uuid.UUID) []RoomKey
	// RoomMembers returns a snapshot of the room's member set, safe to iterate
	// while other goroutines join and leave.
	RoomMembers(key RoomKey) []*Connection
	FindRoom(key RoomKey) (*Room, bool)
}
