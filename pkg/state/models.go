package state

import (
	"context"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"
)

// Link is the slice of the transport connection the registries need. Keeping
// it an interface lets tests drive rooms and broadcasts without a live socket.
type Link interface {
	ID() uuid.UUID
	Send(message []byte) error
	Ping(ctx context.Context) error
	Close(err error)
	CloseWithStatus(code websocket.StatusCode, reason string)
}

// RoomKey identifies one task workspace room.
type RoomKey struct {
	ProjectID string
	TaskID    string
}

func (k RoomKey) String() string {
	return k.ProjectID + "-" + k.TaskID
}

// representation of a single transport-layer connection with its bound identity.
type Connection struct {
	ID          uuid.UUID
	UserID      string
	UserName    string
	TokenExpiry time.Time
	Transport   Link
	CreatedAt   time.Time

	// Alive is the health-probe flag. It is owned by the Manager: cleared at
	// the start of a probe cycle, set again when the pong arrives.
	Alive bool

	// Rooms this connection is currently joined to, maintained by the Manager.
	Rooms map[RoomKey]struct{}
}

// Expired reports whether the bound credential has passed its expiry instant.
func (c *Connection) Expired(now time.Time) bool {
	return !c.TokenExpiry.IsZero() && now.After(c.TokenExpiry)
}

// Room is the set of connections collaborating on one (project, task) pair.
type Room struct {
	Key     RoomKey
	Members map[uuid.UUID]*Connection
}
