// Package observability aggregates live counters from the coordination
// engine into a snapshot served on the web endpoint. It is deliberately
// self-contained: the engine pushes increments, nothing reads back.
package observability

import (
	"context"
	"log/slog"
	"runtime"
	"sync"
	"sync/atomic"
	"time"
)

// Stats is the snapshot served on /stats.
type Stats struct {
	SessionsActive   int64   `json:"sessions_active"`
	SessionsCreated  uint64  `json:"sessions_created"`
	JoinsApplied     uint64  `json:"joins_applied"`
	WorkerRequests   uint64  `json:"worker_requests"`
	ResultsDelivered uint64  `json:"results_delivered"`
	ErrorReplies     uint64  `json:"error_replies"`
	UptimeSeconds    float64 `json:"uptime_seconds"`

	AllocMemMb uint64 `json:"alloc_mem_mb"`
	NumGC      uint32 `json:"num_gc"`
}

// Monitor collects telemetry in real time. Counters are atomic so the
// hot paths never contend; the snapshot is rebuilt on a ticker.
type Monitor struct {
	log     *slog.Logger
	started time.Time

	mu     sync.RWMutex
	latest Stats

	sessionsActive   atomic.Int64
	sessionsCreated  atomic.Uint64
	joinsApplied     atomic.Uint64
	workerRequests   atomic.Uint64
	resultsDelivered atomic.Uint64
	errorReplies     atomic.Uint64
}

func NewMonitor(log *slog.Logger) *Monitor {
	return &Monitor{log: log, started: time.Now()}
}

func (m *Monitor) SessionOpened() {
	m.sessionsActive.Add(1)
	m.sessionsCreated.Add(1)
}

func (m *Monitor) SessionClosed() {
	m.sessionsActive.Add(-1)
}

func (m *Monitor) JoinApplied() {
	m.joinsApplied.Add(1)
}

func (m *Monitor) WorkerRequested() {
	m.workerRequests.Add(1)
}

func (m *Monitor) ResultDelivered() {
	m.resultsDelivered.Add(1)
}

func (m *Monitor) ErrorReplied() {
	m.errorReplies.Add(1)
}

// Run refreshes the snapshot once a second until the context is
// canceled. It runs under the supervisor like the listeners do.
func (m *Monitor) Run(ctx context.Context) error {
	ticker := time.NewTicker(1 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			m.log.Info("Monitor stopped")
			return nil
		case <-ticker.C:
			m.refresh()
		}
	}
}

func (m *Monitor) refresh() {
	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)

	m.mu.Lock()
	defer m.mu.Unlock()
	m.latest = Stats{
		SessionsActive:   m.sessionsActive.Load(),
		SessionsCreated:  m.sessionsCreated.Load(),
		JoinsApplied:     m.joinsApplied.Load(),
		WorkerRequests:   m.workerRequests.Load(),
		ResultsDelivered: m.resultsDelivered.Load(),
		ErrorReplies:     m.errorReplies.Load(),
		UptimeSeconds:    time.Since(m.started).Seconds(),
		AllocMemMb:       mem.Alloc / 1024 / 1024,
		NumGC:            mem.NumGC,
	}
}

// Latest returns the last built snapshot. It refreshes on first use so
// a probe right after startup does not read zeros for memory.
func (m *Monitor) Latest() Stats {
	m.mu.RLock()
	stale := m.latest.UptimeSeconds == 0
	m.mu.RUnlock()
	if stale {
		m.refresh()
	}

	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.latest
}
