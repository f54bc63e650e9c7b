// Package health supervises connection liveness. Every interval each
// connection either proves it answered the previous probe or gets evicted, so
// a departed client's presence lingers in room state for at most one cycle.
package health

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/KUMARAN-07/Academic-Collab/pkg/state"
)

type Monitor struct {
	logger       *slog.Logger
	manager      state.Manager
	interval     time.Duration
	probeTimeout time.Duration

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewMonitor(logger *slog.Logger, manager state.Manager, interval, probeTimeout time.Duration) *Monitor {
	ctx, cancel := context.WithCancel(context.Background())
	return &Monitor{
		logger:       logger.With(slog.String("component", "health_monitor")),
		manager:      manager,
		interval:     interval,
		probeTimeout: probeTimeout,
		ctx:          ctx,
		cancel:       cancel,
	}
}

// Start runs the probe loop until the context is canceled. It blocks; run it
// in its own goroutine.
func (m *Monitor) Start(ctx context.Context) {
	m.wg.Add(1)
	defer m.wg.Done()

	if ctx == nil {
		ctx = m.ctx
	}

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	m.logger.Info("Health monitor started", slog.Duration("interval", m.interval))

	for {
		select {
		case <-ticker.C:
			m.Sweep(ctx)
		case <-ctx.Done():
			m.logger.Info("Health monitor stopping")
			return
		case <-m.ctx.Done():
			m.logger.Info("Health monitor stopping")
			return
		}
	}
}

// Stop cancels the probe loop and waits for it to finish.
func (m *Monitor) Stop() {
	m.cancel()
	m.wg.Wait()
}

// Sweep runs one probe cycle: connections that never answered the previous
// probe are closed (the transport close path handles registry and room
// cleanup), the rest get their flag cleared and a fresh ping.
func (m *Monitor) Sweep(ctx context.Context) {
	for _, conn := range m.manager.Connections() {
		wasAlive := m.manager.MarkPending(conn.ID)
		if !wasAlive {
			m.logger.Warn("Connection failed health check, evicting",
				slog.String("connID", conn.ID.String()),
				slog.String("userID", conn.UserID),
			)
			conn.Transport.Close(errors.New("health check failed"))
			continue
		}
		m.wg.Add(1)
		go m.probe(ctx, conn)
	}
}

func (m *Monitor) probe(ctx context.Context, conn *state.Connection) {
	defer m.wg.Done()

	probeCtx, cancel := context.WithTimeout(ctx, m.probeTimeout)
	defer cancel()

	if err := conn.Transport.Ping(probeCtx); err != nil {
		m.logger.Debug("Health probe got no pong",
			slog.String("connID", conn.ID.String()),
			slog.Any("error", err),
		)
		return
	}
	m.manager.MarkAlive(conn.ID)
}
