package statemanager_test

import (
	"log/slog"
	"os"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/KUMARAN-07/Academic-Collab/pkg/state"
	"github.com/KUMARAN-07/Academic-Collab/pkg/state/statemanager"
	"github.com/KUMARAN-07/Academic-Collab/pkg/state/statetest"
)

// --- Test Suite Setup ---

func newTestLogger() *slog.Logger {
	// Discard logger output during tests by setting a high level
	handler := slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError + 1})
	return slog.New(handler)
}

func newTestManager() *statemanager.InMemoryManager {
	return statemanager.NewInMemoryManager(newTestLogger())
}

func register(t *testing.T, m *statemanager.InMemoryManager, userID string) *state.Connection {
	t.Helper()
	link := statetest.NewFakeLink()
	conn, err := m.RegisterConnection(link, userID, "User "+userID, time.Now().Add(time.Hour))
	if err != nil {
		t.Fatalf("RegisterConnection failed: %v", err)
	}
	return conn
}

// --- Connection Lifecycle Tests ---

func TestConnectionLifecycle(t *testing.T) {
	m := newTestManager()
	link := statetest.NewFakeLink()

	// 1. Register
	stateConn, err := m.RegisterConnection(link, "user-1", "User One", time.Now().Add(time.Hour))
	if err != nil {
		t.Fatalf("RegisterConnection failed: %v", err)
	}
	if stateConn.ID != link.ID() {
		t.Errorf("Registered connection ID mismatch")
	}
	if !stateConn.Alive {
		t.Error("Expected new connection to start alive")
	}

	// 2. Get
	retrievedConn, found := m.GetConnection(link.ID())
	if !found {
		t.Fatal("GetConnection failed to find registered connection")
	}
	if retrievedConn.UserID != "user-1" {
		t.Errorf("Expected bound userID 'user-1', got %q", retrievedConn.UserID)
	}

	// 3. Duplicate registration is rejected
	if _, err := m.RegisterConnection(link, "user-1", "User One", time.Now().Add(time.Hour)); err == nil {
		t.Error("Expected duplicate registration to fail")
	}

	// 4. Deregister
	if err := m.DeregisterConnection(link.ID()); err != nil {
		t.Fatalf("DeregisterConnection failed: %v", err)
	}
	if _, found := m.GetConnection(link.ID()); found {
		t.Error("Found connection after it should have been deregistered")
	}
}

func TestConnectionCount(t *testing.T) {
	m := newTestManager()
	conn1 := register(t, m, "user-1")
	register(t, m, "user-1")
	register(t, m, "user-2")

	if count := m.ConnectionCount("user-1"); count != 2 {
		t.Errorf("Expected connection count 2, got %d", count)
	}

	m.DeregisterConnection(conn1.ID)
	if count := m.ConnectionCount("user-1"); count != 1 {
		t.Errorf("Expected connection count 1 after deregister, got %d", count)
	}
	if count := m.ConnectionCount("user-3"); count != 0 {
		t.Errorf("Expected connection count 0 for unknown user, got %d", count)
	}
}

func TestFindOldestUserConnection(t *testing.T) {
	m := newTestManager()
	conn1 := register(t, m, "user-cycle")
	time.Sleep(5 * time.Millisecond) // Ensure timestamps are different
	register(t, m, "user-cycle")

	oldest, found := m.FindOldestUserConnection("user-cycle")
	if !found {
		t.Fatal("Expected to find oldest connection, but did not")
	}
	if oldest.ID != conn1.ID {
		t.Errorf("Expected oldest connection ID to be %s, got %s", conn1.ID, oldest.ID)
	}
}

// --- Health Flag Tests ---

func TestMarkPendingReturnsPreviousFlag(t *testing.T) {
	m := newTestManager()
	conn := register(t, m, "user-1")

	if wasAlive := m.MarkPending(conn.ID); !wasAlive {
		t.Error("Expected first MarkPending to report the connection alive")
	}
	if wasAlive := m.MarkPending(conn.ID); wasAlive {
		t.Error("Expected second MarkPending to report the connection pending")
	}

	m.MarkAlive(conn.ID)
	if wasAlive := m.MarkPending(conn.ID); !wasAlive {
		t.Error("Expected MarkAlive to restore the liveness flag")
	}
}

// --- Room Management Tests ---

func TestRoomMembership(t *testing.T) {
	m := newTestManager()
	key := state.RoomKey{ProjectID: "p1", TaskID: "t1"}
	conn1 := register(t, m, "user-room-1")
	conn2 := register(t, m, "user-room-2")

	// Join
	if err := m.Join(key, conn1.ID); err != nil {
		t.Fatalf("Conn1 failed to join room: %v", err)
	}
	if err := m.Join(key, conn2.ID); err != nil {
		t.Fatalf("Conn2 failed to join room: %v", err)
	}

	// Get Members
	members := m.RoomMembers(key)
	if len(members) != 2 {
		t.Fatalf("Expected 2 members in room, got %d", len(members))
	}

	// Joining twice keeps the member set a set
	if err := m.Join(key, conn1.ID); err != nil {
		t.Fatalf("Rejoin failed: %v", err)
	}
	if members := m.RoomMembers(key); len(members) != 2 {
		t.Fatalf("Expected 2 members after rejoin, got %d", len(members))
	}

	// Leave
	m.Leave(key, conn1.ID)
	members = m.RoomMembers(key)
	if len(members) != 1 {
		t.Fatalf("Expected 1 member after leave, got %d", len(members))
	}
	if members[0].UserID != "user-room-2" {
		t.Errorf("Expected remaining member to be user-room-2, got %s", members[0].UserID)
	}

	// Test empty room cleanup
	m.Leave(key, conn2.ID)
	if _, found := m.FindRoom(key); found {
		t.Error("Expected room to be deleted after last member left, but it was found")
	}
}

func TestLeaveAll(t *testing.T) {
	m := newTestManager()
	key1 := state.RoomKey{ProjectID: "p1", TaskID: "t1"}
	key2 := state.RoomKey{ProjectID: "p1", TaskID: "t2"}
	conn := register(t, m, "user-1")
	other := register(t, m, "user-2")

	m.Join(key1, conn.ID)
	m.Join(key2, conn.ID)
	m.Join(key1, other.ID)

	left := m.LeaveAll(conn.ID)
	if len(left) != 2 {
		t.Fatalf("Expected LeaveAll to report 2 rooms, got %d", len(left))
	}

	// key1 still has the other member; key2 should be gone entirely.
	if members := m.RoomMembers(key1); len(members) != 1 {
		t.Errorf("Expected 1 member left in key1, got %d", len(members))
	}
	if _, found := m.FindRoom(key2); found {
		t.Error("Expected key2 room to be deleted after sole member left")
	}
}

func TestDeregisterCleansUpRooms(t *testing.T) {
	m := newTestManager()
	key := state.RoomKey{ProjectID: "p1", TaskID: "t1"}
	conn := register(t, m, "user-1")
	m.Join(key, conn.ID)

	m.DeregisterConnection(conn.ID)
	if _, found := m.FindRoom(key); found {
		t.Error("Expected room to be cleaned up when its sole member deregistered")
	}
}

func TestConcurrentJoinLeave(t *testing.T) {
	m := newTestManager()
	key := state.RoomKey{ProjectID: "p1", TaskID: "t1"}
	numGoroutines := 50
	conns := make([]*state.Connection, numGoroutines)
	for i := range conns {
		conns[i] = register(t, m, "user-"+strconv.Itoa(i))
	}

	var wg sync.WaitGroup
	for i := 0; i < numGoroutines; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			m.Join(key, conns[i].ID)
			m.RoomMembers(key)
			if i%2 == 0 {
				m.Leave(key, conns[i].ID)
			}
		}(i)
	}
	wg.Wait()

	members := m.RoomMembers(key)
	if len(members) != numGoroutines/2 {
		t.Errorf("Expected %d members after concurrent join/leave, got %d", numGoroutines/2, len(members))
	}
}
