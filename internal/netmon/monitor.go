// Package netmon watches connectivity by probing the remote store and turns
// offline→online transitions into resyncs: drain pending records, then
// re-select the authoritative list.
package netmon

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// prober is the subset of remote.Store the monitor requires.
type prober interface {
	Ping(ctx context.Context) error
}

// drainer is the sync engine surface the monitor invokes on reconnect.
type drainer interface {
	Drain(ctx context.Context) (int, error)
}

// onlineState is the reconciler surface the monitor is allowed to touch.
type onlineState interface {
	SetOnline(v bool)
	Refetch(ctx context.Context)
}

type Monitor struct {
	probe    prober
	engine   drainer
	state    onlineState
	interval time.Duration
	logger   *slog.Logger

	mu     sync.Mutex
	online bool
}

func New(probe prober, engine drainer, state onlineState, interval time.Duration, logger *slog.Logger) *Monitor {
	return &Monitor{
		probe:    probe,
		engine:   engine,
		state:    state,
		interval: interval,
		logger:   logger,
	}
}

// Online reports the last probed connectivity.
func (m *Monitor) Online() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.online
}

// Check probes once and records the result without side effects beyond the
// state flag. Called at startup before hydration.
func (m *Monitor) Check(ctx context.Context) bool {
	online := m.probe.Ping(ctx) == nil
	m.mu.Lock()
	m.online = online
	m.mu.Unlock()
	m.state.SetOnline(online)
	return online
}

// Run drives the probe loop until ctx is cancelled. If the process starts
// online it resyncs eagerly once, covering pending records left over from a
// prior offline session.
func (m *Monitor) Run(ctx context.Context) {
	if m.Online() {
		m.resync(ctx)
	}

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.tick(ctx)
		}
	}
}

// tick probes once and reacts to a transition. Going online flips the flag
// and resyncs; going offline flips the flag only.
func (m *Monitor) tick(ctx context.Context) {
	online := m.probe.Ping(ctx) == nil

	m.mu.Lock()
	was := m.online
	m.online = online
	m.mu.Unlock()

	if online == was {
		return
	}

	m.state.SetOnline(online)
	if online {
		m.logger.Info("connectivity restored")
		m.resync(ctx)
	} else {
		m.logger.Warn("connectivity lost")
	}
}

// resync drains pending records and then re-selects the authoritative list.
// Records drained while the change feed was down have no notification coming,
// so the drain alone would leave them missing from the list until restart.
func (m *Monitor) resync(ctx context.Context) {
	if _, err := m.engine.Drain(ctx); err != nil {
		m.logger.Warn("drain aborted", "error", err)
	}
	m.state.Refetch(ctx)
}
