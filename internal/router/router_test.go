package router_test

import (
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/KUMARAN-07/Academic-Collab/internal/broadcast"
	"github.com/KUMARAN-07/Academic-Collab/internal/protocol"
	"github.com/KUMARAN-07/Academic-Collab/internal/router"
	"github.com/KUMARAN-07/Academic-Collab/internal/storage"
	"github.com/KUMARAN-07/Academic-Collab/internal/storage/memstore"
	"github.com/KUMARAN-07/Academic-Collab/internal/workspace"
	"github.com/KUMARAN-07/Academic-Collab/pkg/state/statemanager"
	"github.com/KUMARAN-07/Academic-Collab/pkg/state/statetest"
	"github.com/coder/websocket"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixture struct {
	manager *statemanager.InMemoryManager
	store   *memstore.Store
	router  *router.MessageRouter
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError + 1}))
	manager := statemanager.NewInMemoryManager(logger)
	store := memstore.New()
	store.PutProject(storage.Project{
		ID:    "p1",
		Tasks: []storage.Task{{ID: "t1", Status: storage.StatusPending}},
	})
	handlers := workspace.NewHandlers(logger, store, manager, broadcast.NewBroadcaster(logger, manager))
	return &fixture{
		manager: manager,
		store:   store,
		router:  router.NewMessageRouter(logger, manager, handlers),
	}
}

func (f *fixture) connect(t *testing.T, expiry time.Time) *statetest.FakeLink {
	t.Helper()
	link := statetest.NewFakeLink()
	_, err := f.manager.RegisterConnection(link, "user-a", "Alice", expiry)
	require.NoError(t, err)
	return link
}

func errorReply(t *testing.T, link *statetest.FakeLink) protocol.ErrorEvent {
	t.Helper()
	sent := link.Sent()
	require.NotEmpty(t, sent, "expected an ERROR reply")
	var event protocol.ErrorEvent
	require.NoError(t, json.Unmarshal(sent[len(sent)-1], &event))
	require.Equal(t, protocol.EventError, event.Type)
	return event
}

func TestDispatchJoin(t *testing.T) {
	f := newFixture(t)
	link := f.connect(t, time.Now().Add(time.Hour))

	msg := []byte(`{"type":"JOIN_TASK_WORKSPACE","projectId":"p1","taskId":"t1"}`)
	f.router.HandleMessage(context.Background(), link.ID(), msg)

	task, err := f.store.GetTaskWorkspace(context.Background(), "p1", "t1")
	require.NoError(t, err)
	assert.Len(t, task.Workspace.Collaborators, 1)
	assert.Empty(t, link.Sent(), "successful join produces no reply to the joiner")
}

func TestMalformedPayloadGetsErrorReplyAndConnectionStaysOpen(t *testing.T) {
	f := newFixture(t)
	link := f.connect(t, time.Now().Add(time.Hour))

	f.router.HandleMessage(context.Background(), link.ID(), []byte(`{not json`))

	errorReply(t, link)
	assert.False(t, link.Closed(), "malformed payload must not close the connection")
}

func TestMissingTypeFieldGetsErrorReply(t *testing.T) {
	f := newFixture(t)
	link := f.connect(t, time.Now().Add(time.Hour))

	f.router.HandleMessage(context.Background(), link.ID(), []byte(`{"projectId":"p1"}`))

	event := errorReply(t, link)
	assert.Contains(t, event.Message, "type")
}

func TestUnknownTypeGetsErrorReply(t *testing.T) {
	f := newFixture(t)
	link := f.connect(t, time.Now().Add(time.Hour))

	f.router.HandleMessage(context.Background(), link.ID(), []byte(`{"type":"DANCE"}`))

	event := errorReply(t, link)
	assert.Contains(t, event.Message, "DANCE")
	assert.False(t, link.Closed())
}

func TestNotFoundGetsErrorReplyWithoutBroadcast(t *testing.T) {
	f := newFixture(t)
	link := f.connect(t, time.Now().Add(time.Hour))

	msg := []byte(`{"type":"OPEN_FILE","projectId":"p1","taskId":"missing","filePath":"x.py"}`)
	f.router.HandleMessage(context.Background(), link.ID(), msg)

	event := errorReply(t, link)
	assert.Contains(t, event.Message, "not found")
}

func TestExpiredCredentialClosesConnection(t *testing.T) {
	f := newFixture(t)
	link := f.connect(t, time.Now().Add(-time.Minute))

	msg := []byte(`{"type":"JOIN_TASK_WORKSPACE","projectId":"p1","taskId":"t1"}`)
	f.router.HandleMessage(context.Background(), link.ID(), msg)

	require.True(t, link.Closed())
	code, reason := link.CloseStatus()
	assert.Equal(t, websocket.StatusPolicyViolation, code)
	assert.Equal(t, "Token expired", reason)

	// Nothing was dispatched on behalf of the expired credential.
	task, err := f.store.GetTaskWorkspace(context.Background(), "p1", "t1")
	require.NoError(t, err)
	assert.Empty(t, task.Workspace.Collaborators)
}

func TestUnknownConnectionIsIgnored(t *testing.T) {
	f := newFixture(t)
	// Must not panic.
	f.router.HandleMessage(context.Background(), uuid.New(), []byte(`{"type":"OPEN_FILE"}`))
}
