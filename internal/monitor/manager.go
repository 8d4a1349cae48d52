package monitor

import (
	"context"
	"log"
	"sync"

	"bus-monitor/internal/metrics"
	"bus-monitor/internal/sink"
)

// Manager fans the monitor out per stop: each configured stop gets its
// own Monitor and tracker, all sharing the same source and sinks. With
// no stops configured a single Monitor watches the whole feed.
type Manager struct {
	source  SnapshotSource
	sinks   sink.Sink
	audit   *sink.AuditLog
	metrics *metrics.Collector
	base    Config

	mu      sync.Mutex
	running map[string]context.CancelFunc
	wg      sync.WaitGroup
}

func NewManager(source SnapshotSource, sinks sink.Sink, audit *sink.AuditLog, mcol *metrics.Collector, base Config) *Manager {
	return &Manager{
		source:  source,
		sinks:   sinks,
		audit:   audit,
		metrics: mcol,
		base:    base,
		running: make(map[string]context.CancelFunc),
	}
}

func (mgr *Manager) Start(ctx context.Context, stopIDs []string) {
	if len(stopIDs) == 0 {
		mgr.startMonitor(ctx, "")
		return
	}
	for _, stop := range stopIDs {
		mgr.startMonitor(ctx, stop)
	}
}

func (mgr *Manager) startMonitor(parent context.Context, stopID string) {
	mgr.mu.Lock()
	if _, exists := mgr.running[stopID]; exists {
		mgr.mu.Unlock()
		return
	}
	ctx, cancel := context.WithCancel(parent)
	mgr.running[stopID] = cancel
	mgr.wg.Add(1)
	mgr.mu.Unlock()

	cfg := mgr.base
	cfg.StopID = stopID
	m := New(mgr.source, mgr.sinks, mgr.audit, mgr.metrics, cfg)

	go func() {
		defer mgr.wg.Done()
		if err := m.Run(ctx); err != nil && err != context.Canceled {
			log.Printf("monitor for %s exited: %v", m.describeScope(), err)
		}
		mgr.mu.Lock()
		delete(mgr.running, stopID)
		mgr.mu.Unlock()
	}()
}

// Stop cancels all monitors and waits for in-flight cycles to finish.
func (mgr *Manager) Stop() {
	mgr.mu.Lock()
	for _, cancel := range mgr.running {
		cancel()
	}
	mgr.mu.Unlock()
	mgr.wg.Wait()
}
