// Package statetest provides a fake transport link for exercising registries,
// broadcasts and handlers without a live websocket.
package statetest

import (
	"context"
	"errors"
	"sync"

	"github.com/KUMARAN-07/Academic-Collab/pkg/state"
	"github.com/coder/websocket"
	"github.com/google/uuid"
)

type FakeLink struct {
	id uuid.UUID

	mu       sync.Mutex
	sent     [][]byte
	sendErr  error
	pingErr  error
	closed   bool
	closeErr error
	code     websocket.StatusCode
	reason   string

	// OnClose mirrors the transport's close callback wiring.
	OnClose func(id uuid.UUID, err error)
}

var _ state.Link = (*FakeLink)(nil)

func NewFakeLink() *FakeLink {
	return &FakeLink{id: uuid.New()}
}

func (l *FakeLink) ID() uuid.UUID { return l.id }

func (l *FakeLink) Send(message []byte) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return errors.New("connection closed")
	}
	if l.sendErr != nil {
		return l.sendErr
	}
	buf := make([]byte, len(message))
	copy(buf, message)
	l.sent = append(l.sent, buf)
	return nil
}

func (l *FakeLink) Ping(_ context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return errors.New("connection closed")
	}
	return l.pingErr
}

func (l *FakeLink) Close(err error) {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return
	}
	l.closed = true
	l.closeErr = err
	cb := l.OnClose
	l.mu.Unlock()
	if cb != nil {
		cb(l.id, err)
	}
}

func (l *FakeLink) CloseWithStatus(code websocket.StatusCode, reason string) {
	l.mu.Lock()
	l.code = code
	l.reason = reason
	l.mu.Unlock()
	l.Close(errors.New(reason))
}

// FailSends makes every subsequent Send return the given error.
func (l *FakeLink) FailSends(err error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.sendErr = err
}

// FailPings makes every subsequent Ping return the given error.
func (l *FakeLink) FailPings(err error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.pingErr = err
}

// Sent returns a copy of everything delivered to this link so far.
func (l *FakeLink) Sent() [][]byte {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([][]byte, len(l.sent))
	copy(out, l.sent)
	return out
}

func (l *FakeLink) Closed() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.closed
}

// CloseStatus reports the close code and reason of a policy close.
func (l *FakeLink) CloseStatus() (websocket.StatusCode, string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.code, l.reason
}
