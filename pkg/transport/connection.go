package transport

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"
)

// callback executed when a message is received.
type MessageHandler func(ctx context.Context, connId uuid.UUID, msg []byte)

type OnCloseHandler func(connId uuid.UUID, err error)

type ConnectionConfig struct {
	ReadTimeout time.Duration
}

// ErrSendBufferFull is returned by Send when the client is not draining its
// outbound queue. The caller decides whether that is grounds for eviction.
var ErrSendBufferFull = errors.New("send buffer full")

var errConnectionClosed = errors.New("connection closed")

// Connection represents a single, thread-safe WebSocket connection.
type Connection struct {
	id     uuid.UUID
	conn   *websocket.Conn
	config ConnectionConfig
	send   chan []byte

	onMessage MessageHandler
	onClose   OnCloseHandler

	done      chan struct{}
	wg        *sync.WaitGroup
	ctx       context.Context
	closeOnce sync.Once
	cancel    context.CancelFunc

	closeCode   websocket.StatusCode
	closeReason string
	statusMu    sync.Mutex

	logger *slog.Logger
}

func NewConnection(parentCtx context.Context, wg *sync.WaitGroup, conn *websocket.Conn, config ConnectionConfig, onMessage MessageHandler, onClose OnCloseHandler, logger *slog.Logger) *Connection {
	id := uuid.New()
	connCtx, cancel := context.WithCancel(parentCtx)
	connLogger := logger.With(slog.String("connID", id.String()))

	return &Connection{
		id:        id,
		conn:      conn,
		logger:    connLogger,
		config:    config,
		onMessage: onMessage,
		send:      make(chan []byte, 256), // Buffered channel
		done:      make(chan struct{}),
		ctx:       connCtx,
		cancel:    cancel,
		onClose:   onClose,
		wg:        wg,

		closeCode: websocket.StatusNormalClosure,
	}
}

func (c *Connection) Run() {
	c.wg.Add(1)
	go c.readPump()
	go c.writePump()

	c.logger.Info("connection established")
}

// readPump pumps messages from the WebSocket connection to the message handler.
func (c *Connection) readPump() {
	var readErr error
	defer func() {
		c.Close(readErr)
	}()

	for {
		readCtx, cancelRead := context.WithTimeout(c.ctx, c.config.ReadTimeout)
		typ, r, err := c.conn.Reader(readCtx)
		if err != nil {
			readErr = err
			cancelRead()
			return
		}
		// Ensure we are only handling text or binary messages.
		if typ != websocket.MessageText && typ != websocket.MessageBinary {
			cancelRead()
			continue
		}
		// Read the full message. Use io.ReadAll for safety.
		message, err := io.ReadAll(r)
		cancelRead()
		if err != nil {
			c.logger.Error("Failed to read inbound frame", slog.Any("error", err))
			readErr = err
			return
		}
		// Pass a connection-scoped context to the handler.
		c.onMessage(c.ctx, c.id, message)
	}
}

// writePump pumps messages from the send channel to the WebSocket connection.
func (c *Connection) writePump() {
	var writeErr error

	defer func() {
		c.Close(writeErr)
	}()

	for {
		select {
		case message := <-c.send:
			if err := c.conn.Write(c.ctx, websocket.MessageText, message); err != nil {
				writeErr = err
				return
			}
		case <-c.ctx.Done():
			c.closeTransport()
			return
		}
	}
}

// Send queues a message for delivery. It is safe for concurrent use and never
// blocks: a full outbound buffer means the client has stopped draining, and a
// stalled member must not hold up a room broadcast.
func (c *Connection) Send(message []byte) error {
	// Checked before the enqueue attempt so a send racing Close reports the
	// closure instead of queueing into a buffer nobody will drain.
	select {
	case <-c.ctx.Done():
		return errConnectionClosed
	default:
	}
	select {
	case c.send <- message:
		return nil
	case <-c.ctx.Done():
		return errConnectionClosed
	default:
		return ErrSendBufferFull
	}
}

// Ping sends a websocket ping and waits for the matching pong.
func (c *Connection) Ping(ctx context.Context) error {
	select {
	case <-c.ctx.Done():
		return errConnectionClosed
	default:
	}
	return c.conn.Ping(ctx)
}

// Close gracefully shuts down the connection and its resources.
func (c *Connection) Close(err error) {
	c.closeOnce.Do(func() {
		c.statusMu.Lock()
		code, reason := c.closeCode, c.closeReason
		c.statusMu.Unlock()

		c.logger.Info("Transport connection closing",
			slog.Any("reason", err),
			slog.String("status", code.String()),
		)

		// The send channel is never closed; concurrent Send calls observe the
		// canceled context instead.
		c.cancel()
		c.conn.Close(code, reason)
		c.logger.Info("Connection closed")
		if c.onClose != nil {
			c.onClose(c.id, err)
		}
		c.wg.Done()
		close(c.done)
	})
}

// CloseWithStatus closes the connection with an explicit close code and
// human-readable reason, e.g. 1008 "Token expired".
func (c *Connection) CloseWithStatus(code websocket.StatusCode, reason string) {
	c.statusMu.Lock()
	c.closeCode = code
	c.closeReason = reason
	c.statusMu.Unlock()
	c.Close(errors.New(reason))
}

func (c *Connection) closeTransport() {
	c.statusMu.Lock()
	code, reason := c.closeCode, c.closeReason
	c.statusMu.Unlock()
	c.conn.Close(code, reason)
}

// Done returns a channel that is closed when the connection is fully terminated.
func (c *Connection) Done() <-chan struct{} {
	return c.done
}

// ID returns the unique identifier of the connection.
func (c *Connection) ID() uuid.UUID {
	return c.id
}

func (c *Connection) SetOnMessageHandler(handler MessageHandler) {
	c.onMessage = handler
}

func (c *Connection) SetOnCloseHandler(handler OnCloseHandler) {
	c.onClose = handler
}
