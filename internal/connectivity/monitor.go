// Package connectivity tracks whether the remote store is reachable and
// drives automatic sync runs: on recovery and on a fixed interval.
package connectivity

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/GerrieStrongbow/hospital-stats-MVP-sub000/internal/types"
)

// DefaultInterval is the auto-sync period.
const DefaultInterval = 5 * time.Minute

// DefaultProbeTimeout bounds one reachability check.
const DefaultProbeTimeout = 10 * time.Second

// Prober verifies reachability of the remote store.
type Prober interface {
	Ping(ctx context.Context) error
}

// Syncer is the sync engine as seen by the monitor.
type Syncer interface {
	SyncPatientRecords(ctx context.Context) types.SyncResult
	Running() bool
}

// Option configures a Monitor.
type Option func(*Monitor)

// WithInterval overrides DefaultInterval.
func WithInterval(d time.Duration) Option {
	return func(m *Monitor) { m.interval = d }
}

// WithProbeTimeout overrides DefaultProbeTimeout.
func WithProbeTimeout(d time.Duration) Option {
	return func(m *Monitor) { m.probeTimeout = d }
}

// WithInitialState sets the state before the first probe.
func WithInitialState(online bool) Option {
	return func(m *Monitor) { m.online.Store(online) }
}

// Monitor holds the online/offline state. Online signals are hints and are
// verified with a probe before they take effect; offline signals apply
// immediately.
type Monitor struct {
	prober       Prober
	syncer       Syncer
	interval     time.Duration
	probeTimeout time.Duration

	online atomic.Bool

	mu        sync.Mutex
	listeners []func(online bool)
}

// New creates a Monitor. syncer may be nil for a probe-only monitor.
func New(prober Prober, syncer Syncer, opts ...Option) *Monitor {
	m := &Monitor{
		prober:       prober,
		syncer:       syncer,
		interval:     DefaultInterval,
		probeTimeout: DefaultProbeTimeout,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Online reports the current state.
func (m *Monitor) Online() bool {
	return m.online.Load()
}

// OnChange registers fn to be called after every state transition.
func (m *Monitor) OnChange(fn func(online bool)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.listeners = append(m.listeners, fn)
}

func (m *Monitor) set(online bool) {
	if m.online.Swap(online) == online {
		return
	}
	slog.Info("connectivity changed",
		"component", "connectivity",
		"online", online,
	)

	m.mu.Lock()
	listeners := append([]func(bool){}, m.listeners...)
	m.mu.Unlock()
	for _, fn := range listeners {
		fn(online)
	}
}

// Probe checks reachability and updates the state. It reports the result.
func (m *Monitor) Probe(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, m.probeTimeout)
	defer cancel()

	err := m.prober.Ping(ctx)
	if err != nil {
		slog.Debug("reachability probe failed",
			"component", "connectivity",
			"error", err,
		)
	}
	m.set(err == nil)
	return err == nil
}

// HandleSignal applies an external connectivity hint. An online hint is
// confirmed by a probe and, if confirmed, followed by a sync run. The agent
// command feeds it from SIGUSR1 (online) and SIGUSR2 (offline).
func (m *Monitor) HandleSignal(ctx context.Context, online bool) {
	if !online {
		m.set(false)
		return
	}
	if m.Probe(ctx) {
		m.sync(ctx, "signal")
	}
}

// Run probes once, then on every interval either syncs (when online and
// idle) or re-probes (when offline). It blocks until ctx is cancelled.
func (m *Monitor) Run(ctx context.Context) {
	slog.Info("connectivity monitor started",
		"component", "connectivity",
		"interval", m.interval.String(),
	)

	if m.Probe(ctx) {
		m.sync(ctx, "startup")
	}

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("connectivity monitor stopped",
				"component", "connectivity",
				"reason", "context_cancelled",
			)
			return
		case <-ticker.C:
			m.tick(ctx)
		}
	}
}

func (m *Monitor) tick(ctx context.Context) {
	if !m.Online() {
		if m.Probe(ctx) {
			m.sync(ctx, "recovered")
		}
		return
	}
	m.sync(ctx, "interval")
}

func (m *Monitor) sync(ctx context.Context, trigger string) {
	if m.syncer == nil || m.syncer.Running() || ctx.Err() != nil {
		return
	}
	res := m.syncer.SyncPatientRecords(ctx)
	slog.Info("auto sync finished",
		"component", "connectivity",
		"trigger", trigger,
		"success", res.Success,
		"synced", res.SyncedCount,
		"failed", res.FailedCount,
		"message", res.Message,
	)
}
