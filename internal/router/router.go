// Package router classifies inbound workspace messages and dispatches them to
// the matching state handler.
package router

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/KUMARAN-07/Academic-Collab/internal/protocol"
	"github.com/KUMARAN-07/Academic-Collab/internal/storage"
	"github.com/KUMARAN-07/Academic-Collab/internal/workspace"
	"github.com/KUMARAN-07/Academic-Collab/pkg/state"
	"github.com/coder/websocket"
	"github.com/google/uuid"
	"github.com/tidwall/gjson"
)

type MessageRouter struct {
	logger   *slog.Logger
	manager  state.Manager
	handlers *workspace.Handlers
	now      func() time.Time
}

func NewMessageRouter(logger *slog.Logger, manager state.Manager, handlers *workspace.Handlers) *MessageRouter {
	return &MessageRouter{
		logger:   logger.With(slog.String("component", "message_router")),
		manager:  manager,
		handlers: handlers,
		now:      time.Now,
	}
}

// HandleMessage is the transport's inbound callback. Per-message failures are
// answered with an ERROR event and never tear the connection down; the only
// exception is a credential that expired mid-session, which closes it.
func (r *MessageRouter) HandleMessage(ctx context.Context, connID uuid.UUID, msg []byte) {
	conn, ok := r.manager.GetConnection(connID)
	if !ok {
		r.logger.Error("Received message for unknown connection", slog.String("connID", connID.String()))
		return
	}

	if conn.Expired(r.now()) {
		r.logger.Info("Credential expired mid-session, closing connection",
			slog.String("connID", connID.String()),
			slog.String("userID", conn.UserID),
		)
		conn.Transport.CloseWithStatus(websocket.StatusPolicyViolation, "Token expired")
		return
	}

	if !gjson.ValidBytes(msg) {
		r.sendError(conn, "malformed message payload")
		return
	}
	discriminator := gjson.GetBytes(msg, "type")
	if !discriminator.Exists() {
		r.sendError(conn, "message is missing required 'type' field")
		return
	}

	msgType := discriminator.String()
	r.logger.Debug("Dispatching message",
		slog.String("type", msgType),
		slog.String("connID", connID.String()),
	)

	var err error
	switch msgType {
	case protocol.TypeJoinTaskWorkspace:
		var m protocol.JoinTaskWorkspace
		if err = json.Unmarshal(msg, &m); err == nil {
			err = r.handlers.Join(ctx, conn, m)
		}
	case protocol.TypeOpenFile:
		var m protocol.OpenFile
		if err = json.Unmarshal(msg, &m); err == nil {
			err = r.handlers.OpenFile(ctx, conn, m)
		}
	case protocol.TypeFileChange:
		var m protocol.FileChange
		if err = json.Unmarshal(msg, &m); err == nil {
			err = r.handlers.FileChange(ctx, conn, m)
		}
	case protocol.TypeSendMessage:
		var m protocol.SendMessage
		if err = json.Unmarshal(msg, &m); err == nil {
			err = r.handlers.Chat(ctx, conn, m)
		}
	case protocol.TypeSubmitTask:
		var m protocol.SubmitTask
		if err = json.Unmarshal(msg, &m); err == nil {
			err = r.handlers.Submit(ctx, conn, m)
		}
	case protocol.TypeReviewTask:
		var m protocol.ReviewTask
		if err = json.Unmarshal(msg, &m); err == nil {
			err = r.handlers.Review(ctx, conn, m)
		}
	default:
		// The inbound set is closed. An unrecognized type is a client bug and
		// is reported back instead of silently dropped.
		r.sendError(conn, "unknown message type '"+msgType+"'")
		return
	}

	if err != nil {
		r.logger.Warn("Message handling failed",
			slog.String("type", msgType),
			slog.String("connID", connID.String()),
			slog.Any("error", err),
		)
		if errors.Is(err, storage.ErrNotFound) {
			r.sendError(conn, "referenced project, task or submission was not found")
		} else {
			r.sendError(conn, "failed to process '"+msgType+"' message")
		}
	}
}

func (r *MessageRouter) sendError(conn *state.Connection, message string) {
	payload, err := json.Marshal(protocol.NewErrorEvent(message))
	if err != nil {
		return
	}
	if err := conn.Transport.Send(payload); err != nil {
		r.logger.Debug("Failed to deliver error reply", slog.String("connID", conn.ID.String()))
	}
}
