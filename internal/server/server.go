package server

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/KUMARAN-07/Academic-Collab/internal/auth"
	"github.com/KUMARAN-07/Academic-Collab/internal/broadcast"
	"github.com/KUMARAN-07/Academic-Collab/internal/health"
	"github.com/KUMARAN-07/Academic-Collab/internal/router"
	"github.com/KUMARAN-07/Academic-Collab/internal/server/middleware"
	"github.com/KUMARAN-07/Academic-Collab/internal/storage"
	"github.com/KUMARAN-07/Academic-Collab/internal/workspace"
	"github.com/KUMARAN-07/Academic-Collab/pkg/config"
	"github.com/KUMARAN-07/Academic-Collab/pkg/state"
	"github.com/KUMARAN-07/Academic-Collab/pkg/state/statemanager"
	"github.com/KUMARAN-07/Academic-Collab/pkg/transport"
	"github.com/coder/websocket"
	"github.com/google/uuid"
)

// state.Link is satisfied by the real transport connection.
var _ state.Link = (*transport.Connection)(nil)

type App struct {
	logger        *slog.Logger
	stateManager  state.Manager
	store         storage.Store
	verifier      *auth.Verifier
	messageRouter *router.MessageRouter
	handlers      *workspace.Handlers
	healthMonitor *health.Monitor
	wg            sync.WaitGroup
	http          *http.Server
	config        *config.Config

	ctx context.Context
}

func NewApp(logger *slog.Logger, rootCtx context.Context, cfg *config.Config, store storage.Store) *App {
	stateManager := statemanager.NewInMemoryManager(logger)
	broadcaster := broadcast.NewBroadcaster(logger, stateManager)
	handlers := workspace.NewHandlers(logger, store, stateManager, broadcaster)
	messageRouter := router.NewMessageRouter(logger, stateManager, handlers)
	healthMonitor := health.NewMonitor(logger, stateManager, cfg.Health.Interval, cfg.Health.ProbeTimeout)

	app := &App{
		logger:        logger,
		stateManager:  stateManager,
		store:         store,
		verifier:      auth.NewVerifier(cfg.Server.Auth.JWTSecret),
		messageRouter: messageRouter,
		handlers:      handlers,
		healthMonitor: healthMonitor,
		config:        cfg,
		ctx:           rootCtx,
	}

	mux := http.NewServeMux()
	upgradeHandler := http.HandlerFunc(app.upgradeHandler)
	mux.Handle("/ws",
		middleware.Chain(upgradeHandler,
			middleware.RequestMetadataMiddleware(),
			middleware.NewRequestLogger(app.logger),
		),
	)

	app.http = &http.Server{Addr: cfg.Server.Address, Handler: mux, BaseContext: func(l net.Listener) context.Context {
		return app.ctx
	}}

	return app
}

func (a *App) Run() error {
	go a.healthMonitor.Start(a.ctx)
	go func() {
		a.logger.Info("Server starting", slog.String("addr", a.http.Addr))
		if err := a.http.ListenAndServe(); err != http.ErrServerClosed {
			a.logger.Error("HTTP server failed", slog.Any("error", err))
		}
	}()

	<-a.ctx.Done()
	return a.Shutdown()
}

func (a *App) upgradeHandler(w http.ResponseWriter, r *http.Request) {
	reqMeta, _ := middleware.ReqMetadataFrom(r.Context())
	connLogger := a.logger.With(slog.String("remoteAddr", reqMeta.IP))

	wsConn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		InsecureSkipVerify: true,
	})
	if err != nil {
		a.logger.Error("Failed to accept websocket connection", slog.Any("error", err))
		return
	}

	// Credential is carried as a query parameter on the connection URL. Any
	// handshake failure closes the socket with 1008 and a readable reason,
	// distinguishing an absent credential from a bad one.
	token := r.URL.Query().Get("token")
	if token == "" {
		connLogger.Warn("Rejecting connection: no credential supplied")
		wsConn.Close(websocket.StatusPolicyViolation, "Authentication required")
		return
	}
	identity, err := a.verifier.Verify(token)
	if err != nil {
		connLogger.Warn("Rejecting connection: authentication failed", slog.Any("error", err))
		wsConn.Close(websocket.StatusPolicyViolation, "Authentication failed")
		return
	}

	user, err := a.store.FindUser(r.Context(), identity.UserID)
	if err != nil {
		connLogger.Warn("Rejecting connection: user lookup failed",
			slog.String("userID", identity.UserID),
			slog.Any("error", err),
		)
		wsConn.Close(websocket.StatusPolicyViolation, "User not found")
		return
	}
	connLogger = connLogger.With(slog.String("userID", user.ID))

	if closed := a.enforceConnectionLimit(wsConn, user.ID, connLogger); closed {
		return
	}

	conn := transport.NewConnection(
		r.Context(),
		&a.wg,
		wsConn,
		transport.ConnectionConfig(a.config.Transport),
		nil,
		nil,
		a.logger,
	)
	if _, err := a.stateManager.RegisterConnection(conn, user.ID, user.Name, identity.ExpiresAt); err != nil {
		connLogger.Error("Failed to register connection state", slog.Any("error", err))
		conn.Close(err)
		return
	}

	conn.SetOnMessageHandler(a.messageRouter.HandleMessage)
	conn.SetOnCloseHandler(func(id uuid.UUID, err error) {
		connLogger.Info("Deregistering connection due to closure", slog.String("connID", id.String()))
		// Cleanup runs on a background context: the request context is
		// already gone when the socket closes.
		cleanupCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if stateConn, ok := a.stateManager.GetConnection(id); ok {
			a.handlers.Disconnect(cleanupCtx, stateConn)
		}
		if dErr := a.stateManager.DeregisterConnection(id); dErr != nil {
			connLogger.Error("Failed to deregister connection from state", slog.Any("error", dErr))
		}
	})

	connLogger.Info("User connection fully established")
	conn.Run()
	<-conn.Done()
}

// enforceConnectionLimit applies the per-user connection cap. In "cycle" mode
// the oldest connection makes room for the new one; in "reject" mode the new
// one is turned away.
func (a *App) enforceConnectionLimit(wsConn *websocket.Conn, userID string, logger *slog.Logger) (closed bool) {
	limit := a.config.Server.ConnectionLimit
	if limit.MaxPerUser <= 0 {
		return false
	}
	count := a.stateManager.ConnectionCount(userID)
	if count < limit.MaxPerUser {
		return false
	}

	logger.Warn("User connection limit reached", slog.Int("count", count))
	switch limit.Mode {
	case "reject":
		wsConn.Close(websocket.StatusPolicyViolation, "Too many active connections")
		return true
	default: // "cycle"
		if oldest, found := a.stateManager.FindOldestUserConnection(userID); found {
			logger.Info("Cycling connection: closing oldest", slog.String("connID", oldest.ID.String()))
			oldest.Transport.Close(errors.New("connection cycled by new connection"))
		}
		return false
	}
}

// Shutdown runs the graceful shutdown sequence.
func (a *App) Shutdown() error {
	a.logger.Info("Shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := a.http.Shutdown(shutdownCtx); err != nil {
		return err
	}

	a.healthMonitor.Stop()

	// close all active WebSocket connections.
	a.logger.Info("Closing all active connections...")
	for _, conn := range a.stateManager.Connections() {
		conn.Transport.Close(errors.New("graceful shutdown"))
	}

	// wait for all connection goroutines to finish their cleanup.
	a.wg.Wait()
	a.logger.Info("Server shut down gracefully.")
	return nil
}
