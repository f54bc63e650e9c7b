package statemanager

import (
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/KUMARAN-07/Academic-Collab/pkg/state"
	"github.com/google/uuid"
)

// InMemoryManager keeps all connection and room state process-local. Rooms are
// created on first join and destroyed when their member set empties; nothing
// here survives a restart, clients are expected to rejoin.
type InMemoryManager struct {
	conns map[uuid.UUID]*state.Connection
	rooms map[state.RoomKey]*state.Room

	mu sync.RWMutex

	logger *slog.Logger
}

func NewInMemoryManager(logger *slog.Logger) *InMemoryManager {
	return &InMemoryManager{
		conns:  make(map[uuid.UUID]*state.Connection),
		rooms:  make(map[state.RoomKey]*state.Room),
		logger: logger.With(slog.String("component", "state_manager_inmemory")),
	}
}

// compile-time check to ensure InMemoryManager implements Manager.
var _ state.Manager = (*InMemoryManager)(nil)

func (m *InMemoryManager) RegisterConnection(link state.Link, userID, userName string, tokenExpiry time.Time) (*state.Connection, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	connID := link.ID()
	if _, exists := m.conns[connID]; exists {
		return nil, errors.New("connection is already registered")
	}
	newConn := &state.Connection{
		ID:          connID,
		UserID:      userID,
		UserName:    userName,
		TokenExpiry: tokenExpiry,
		Transport:   link,
		CreatedAt:   time.Now(),
		Alive:       true,
	}
	m.conns[connID] = newConn
	m.logger.Debug("Connection registered",
		slog.String("connID", connID.String()),
		slog.String("userID", userID),
	)
	return newConn, nil
}

func (m *InMemoryManager) DeregisterConnection(connID uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	conn, ok := m.conns[connID]
	if !ok {
		// connection is already deregistered
		return nil
	}
	delete(m.conns, connID)
	m.removeFromRoomsLocked(conn)
	m.logger.Debug("Connection deregistered", "connID", connID.String())
	return nil
}

func (m *InMemoryManager) GetConnection(connID uuid.UUID) (*state.Connection, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	conn, ok := m.conns[connID]
	return conn, ok
}

func (m *InMemoryManager) Connections() []*state.Connection {
	m.mu.RLock()
	defer m.mu.RUnlock()

	conns := make([]*state.Connection, 0, len(m.conns))
	for _, c := range m.conns {
		conns = append(conns, c)
	}
	return conns
}

func (m *InMemoryManager) ConnectionCount(userID string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()

	count := 0
	for _, c := range m.conns {
		if c.UserID == userID {
			count++
		}
	}
	return count
}

func (m *InMemoryManager) FindOldestUserConnection(userID string) (*state.Connection, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var oldestConn *state.Connection
	var oldestTime time.Time

	for _, conn := range m.conns {
		if conn.UserID != userID {
			continue
		}
		if oldestConn == nil || conn.CreatedAt.Before(oldestTime) {
			oldestConn = conn
			oldestTime = conn.CreatedAt
		}
	}

	if oldestConn == nil {
		return nil, false // User has no connections.
	}
	return oldestConn, true
}

// --- Health flag ---

func (m *InMemoryManager) MarkAlive(connID uuid.UUID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if conn, ok := m.conns[connID]; ok {
		conn.Alive = true
	}
}

func (m *InMemoryManager) MarkPending(connID uuid.UUID) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	conn, ok := m.conns[connID]
	if !ok {
		return false
	}
	wasAlive := conn.Alive
	conn.Alive = false
	return wasAlive
}

// --- Room & Membership Management ---

func (m *InMemoryManager) Join(key state.RoomKey, connID uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	conn, ok := m.conns[connID]
	if !ok {
		return errors.New("cannot join room: connection not registered")
	}

	// Find or create the room.
	room, exists := m.rooms[key]
	if !exists {
		room = &state.Room{
			Key:     key,
			Members: make(map[uuid.UUID]*state.Connection),
		}
		m.rooms[key] = room
	}

	room.Members[connID] = conn
	if conn.Rooms == nil {
		conn.Rooms = make(map[state.RoomKey]struct{})
	}
	conn.Rooms[key] = struct{}{}

	m.logger.Debug("Connection joined room", "connID", connID.String(), "room", key.String())
	return nil
}

func (m *InMemoryManager) Leave(key state.RoomKey, connID uuid.UUID) {
	m.mu.Lock()
	defer m.mu.Unlock()

	room, ok := m.rooms[key]
	if !ok {
		return
	}
	delete(room.Members, connID)
	if conn, ok := m.conns[connID]; ok && conn.Rooms != nil {
		delete(conn.Rooms, key)
	}

	// For memory hygiene, remove the room if it's now empty.
	if len(room.Members) == 0 {
		delete(m.rooms, key)
		m.logger.Debug("Removed empty room", "room", key.String())
	}

	m.logger.Debug("Connection left room", "connID", connID.String(), "room", key.String())
}

func (m *InMemoryManager) LeaveAll(connID uuid.UUID) []state.RoomKey {
	m.mu.Lock()
	defer m.mu.Unlock()

	conn, ok := m.conns[connID]
	if !ok {
		return nil
	}
	return m.removeFromRoomsLocked(conn)
}

func (m *InMemoryManager) removeFromRoomsLocked(conn *state.Connection) []state.RoomKey {
	if len(conn.Rooms) == 0 {
		return nil
	}
	left := make([]state.RoomKey, 0, len(conn.Rooms))
	for key := range conn.Rooms {
		left = append(left, key)
		room, ok := m.rooms[key]
		if !ok {
			continue
		}
		delete(room.Members, conn.ID)
		if len(room.Members) == 0 {
			delete(m.rooms, key)
			m.logger.Debug("Removed empty room", "room", key.String())
		}
	}
	conn.Rooms = nil
	return left
}

func (m *InMemoryManager) RoomMembers(key state.RoomKey) []*state.Connection {
	m.mu.RLock()
	defer m.mu.RUnlock()

	room, ok := m.rooms[key]
	if !ok {
		return nil
	}
	members := make([]*state.Connection, 0, len(room.Members))
	for _, c := range room.Members {
		members = append(members, c)
	}
	return members
}

func (m *InMemoryManager) FindRoom(key state.RoomKey) (*state.Room, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	room, ok := m.rooms[key]
	return room, ok
}
