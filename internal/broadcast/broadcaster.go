// Package broadcast fans messages out to the members of a workspace room.
package broadcast

import (
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/KUMARAN-07/Academic-Collab/pkg/state"
	"github.com/google/uuid"
)

// NoExclusion is passed when every room member should receive the message.
var NoExclusion = uuid.Nil

type Broadcaster struct {
	logger  *slog.Logger
	manager state.Manager
}

func NewBroadcaster(logger *slog.Logger, manager state.Manager) *Broadcaster {
	return &Broadcaster{
		logger:  logger.With(slog.String("component", "broadcaster")),
		manager: manager,
	}
}

// ToRoom serializes the event once and delivers it to every member of the
// room except the excluded connection. A member that fails to accept delivery
// is closed, which evicts it from the room through the disconnect path; the
// fan-out continues for the remaining members.
func (b *Broadcaster) ToRoom(key state.RoomKey, event any, exclude uuid.UUID) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal broadcast event: %w", err)
	}

	members := b.manager.RoomMembers(key)

	var failed []*state.Connection
	delivered := 0
	for _, member := range members {
		if member.ID == exclude {
			continue
		}
		if err := member.Transport.Send(payload); err != nil {
			b.logger.Warn("Broadcast delivery failed, pruning connection",
				slog.String("room", key.String()),
				slog.String("connID", member.ID.String()),
				slog.Any("error", err),
			)
			failed = append(failed, member)
			continue
		}
		delivered++
	}

	// Close failed connections outside the delivery loop; Close triggers the
	// disconnect cleanup path which takes the registry locks.
	for _, member := range failed {
		conn := member
		go conn.Transport.Close(fmt.Errorf("broadcast delivery failed"))
	}

	b.logger.Debug("Broadcast delivered",
		slog.String("room", key.String()),
		slog.Int("recipients", delivered),
	)
	return nil
}
