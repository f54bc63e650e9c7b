package broadcast_test

import (
	"errors"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/KUMARAN-07/Academic-Collab/internal/broadcast"
	"github.com/KUMARAN-07/Academic-Collab/pkg/state"
	"github.com/KUMARAN-07/Academic-Collab/pkg/state/statemanager"
	"github.com/KUMARAN-07/Academic-Collab/pkg/state/statetest"
)

func newTestLogger() *slog.Logger {
	handler := slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError + 1})
	return slog.New(handler)
}

type fixture struct {
	manager     *statemanager.InMemoryManager
	broadcaster *broadcast.Broadcaster
	key         state.RoomKey
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	logger := newTestLogger()
	manager := statemanager.NewInMemoryManager(logger)
	return &fixture{
		manager:     manager,
		broadcaster: broadcast.NewBroadcaster(logger, manager),
		key:         state.RoomKey{ProjectID: "p1", TaskID: "t1"},
	}
}

func (f *fixture) addMember(t *testing.T, userID string) *statetest.FakeLink {
	t.Helper()
	link := statetest.NewFakeLink()
	if _, err := f.manager.RegisterConnection(link, userID, "User "+userID, time.Now().Add(time.Hour)); err != nil {
		t.Fatalf("RegisterConnection failed: %v", err)
	}
	if err := f.manager.Join(f.key, link.ID()); err != nil {
		t.Fatalf("Join failed: %v", err)
	}
	return link
}

type testEvent struct {
	Type string `json:"type"`
}

func TestBroadcastExcludesSender(t *testing.T) {
	f := newFixture(t)
	sender := f.addMember(t, "user-a")
	peer1 := f.addMember(t, "user-b")
	peer2 := f.addMember(t, "user-c")

	if err := f.broadcaster.ToRoom(f.key, testEvent{Type: "PING"}, sender.ID()); err != nil {
		t.Fatalf("ToRoom failed: %v", err)
	}

	if got := len(sender.Sent()); got != 0 {
		t.Errorf("Expected sender to receive nothing, got %d messages", got)
	}
	for _, peer := range []*statetest.FakeLink{peer1, peer2} {
		if got := len(peer.Sent()); got != 1 {
			t.Errorf("Expected peer to receive 1 message, got %d", got)
		}
	}
}

func TestBroadcastToSoleMemberExcluded(t *testing.T) {
	f := newFixture(t)
	sender := f.addMember(t, "user-a")

	if err := f.broadcaster.ToRoom(f.key, testEvent{Type: "PING"}, sender.ID()); err != nil {
		t.Fatalf("ToRoom failed: %v", err)
	}
	if got := len(sender.Sent()); got != 0 {
		t.Errorf("Expected no deliveries for a sole excluded member, got %d", got)
	}
}

func TestBroadcastNoExclusionReachesEveryone(t *testing.T) {
	f := newFixture(t)
	a := f.addMember(t, "user-a")
	b := f.addMember(t, "user-b")

	if err := f.broadcaster.ToRoom(f.key, testEvent{Type: "PING"}, broadcast.NoExclusion); err != nil {
		t.Fatalf("ToRoom failed: %v", err)
	}
	for _, link := range []*statetest.FakeLink{a, b} {
		if got := len(link.Sent()); got != 1 {
			t.Errorf("Expected 1 delivery, got %d", got)
		}
	}
}

func TestBroadcastPrunesFailedConnections(t *testing.T) {
	f := newFixture(t)
	healthy := f.addMember(t, "user-a")
	broken := f.addMember(t, "user-b")
	broken.FailSends(errors.New("buffer full"))

	if err := f.broadcaster.ToRoom(f.key, testEvent{Type: "PING"}, broadcast.NoExclusion); err != nil {
		t.Fatalf("ToRoom failed: %v", err)
	}

	// The healthy member still got the message.
	if got := len(healthy.Sent()); got != 1 {
		t.Errorf("Expected healthy member to receive 1 message, got %d", got)
	}

	// The broken one is closed asynchronously.
	deadline := time.After(time.Second)
	for !broken.Closed() {
		select {
		case <-deadline:
			t.Fatal("Expected failed connection to be closed")
		default:
			time.Sleep(5 * time.Millisecond)
		}
	}
}

func TestBroadcastToUnknownRoomIsNoop(t *testing.T) {
	f := newFixture(t)
	if err := f.broadcaster.ToRoom(state.RoomKey{ProjectID: "nope", TaskID: "nope"}, testEvent{Type: "PING"}, broadcast.NoExclusion); err != nil {
		t.Fatalf("ToRoom to empty room should not fail: %v", err)
	}
}
