package monitor

import (
	"context"
	"log"
	"time"

	"bus-monitor/internal/feed"
	"bus-monitor/internal/metrics"
	"bus-monitor/internal/sink"
	"bus-monitor/internal/tracker"
)

// SnapshotSource produces live feed responses on demand. The int result
// is how many fetch attempts failed and were retried before success.
type SnapshotSource interface {
	Fetch(ctx context.Context, stopIDs []string) (*feed.LiveResponse, int, error)
}

// Config carries the per-monitor settings resolved by the host.
type Config struct {
	StopID       string // empty means the feed is queried for all stops
	Routes       []string
	PollInterval time.Duration
	Tracker      tracker.Options
	Location     *time.Location
}

// Monitor runs the poll loop for one stop: fetch with retry, ingest the
// snapshot into its tracker, and fan completed journeys out to sinks.
// Each cycle runs to completion before the next fetch begins; the
// tracker is never touched concurrently.
type Monitor struct {
	source  SnapshotSource
	sinks   sink.Sink
	audit   *sink.AuditLog
	metrics *metrics.Collector

	stopID    string
	routes    map[string]struct{}
	interval  time.Duration
	threshold time.Duration
	grace     time.Duration
	tz        *time.Location
	tracker   *tracker.Tracker

	now func() time.Time
}

func New(source SnapshotSource, sinks sink.Sink, audit *sink.AuditLog, mcol *metrics.Collector, cfg Config) *Monitor {
	tz := cfg.Location
	if tz == nil {
		tz = time.Local
	}
	var routes map[string]struct{}
	if len(cfg.Routes) > 0 {
		routes = make(map[string]struct{}, len(cfg.Routes))
		for _, r := range cfg.Routes {
			routes[r] = struct{}{}
		}
	}
	m := &Monitor{
		source:    source,
		sinks:     sinks,
		audit:     audit,
		metrics:   mcol,
		stopID:    cfg.StopID,
		routes:    routes,
		interval:  cfg.PollInterval,
		threshold: cfg.Tracker.TrackingThreshold,
		grace:     cfg.Tracker.GraceWindow,
		tz:        tz,
		tracker:   tracker.New(cfg.Tracker),
	}
	m.now = func() time.Time { return time.Now().In(tz) }
	return m
}

// Run polls until the context is cancelled. The first cycle runs
// immediately rather than waiting a full interval.
func (m *Monitor) Run(ctx context.Context) error {
	log.Printf("monitoring %s (threshold %s, grace %s, poll %s)",
		m.describeScope(), m.threshold, m.grace, m.interval)

	m.cycle(ctx, m.now())

	tick := time.NewTicker(m.interval)
	defer tick.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-tick.C:
			m.cycle(ctx, m.now())
		}
	}
}

// cycle performs one fetch-ingest-persist pass. A failed fetch abandons
// the cycle; the loop carries on at the next tick.
func (m *Monitor) cycle(ctx context.Context, now time.Time) {
	cycleStart := time.Now()
	label := m.stopLabel()
	if m.metrics != nil {
		m.metrics.Polls.WithLabelValues(label).Inc()
	}

	var stops []string
	if m.stopID != "" {
		stops = []string{m.stopID}
	}
	fetchStart := time.Now()
	resp, retries, err := m.source.Fetch(ctx, stops)
	if m.metrics != nil {
		m.metrics.FetchDuration.Observe(time.Since(fetchStart).Seconds())
		m.metrics.FetchRetries.Add(float64(retries))
	}
	if err != nil {
		log.Printf("poll for %s abandoned: %v", m.describeScope(), err)
		if m.metrics != nil {
			m.metrics.PollErrors.WithLabelValues(label).Inc()
		}
		return
	}

	if m.audit != nil {
		if err := m.audit.Record(m.stopID, now, resp); err != nil {
			log.Printf("audit log write failed: %v", err)
		}
	}

	before := m.tracker.Len()
	completed := m.tracker.Ingest(m.buildSnapshot(resp, now))
	started := m.tracker.Len() - before + len(completed)
	if started > 0 {
		log.Printf("%s: started tracking %d journeys (%d in flight)", m.describeScope(), started, m.tracker.Len())
	}

	for _, j := range completed {
		if j.ClockAnomaly {
			log.Printf("clock anomaly: trip %s completed with negative duration %ds", j.TripID, j.ActualDurationSeconds)
			if m.metrics != nil {
				m.metrics.ClockAnomalies.Inc()
			}
		}
		if err := m.sinks.Write(ctx, m.stopID, j); err != nil {
			log.Printf("persist journey %s failed: %v", j.TripID, err)
			if m.metrics != nil {
				m.metrics.SinkErrors.WithLabelValues(m.sinks.Name()).Inc()
			}
		}
		log.Printf("journey completed: route %s trip %s, prediction off by %.2f minutes",
			j.Route, j.TripID, j.PredictionDifferenceMinutes)
	}

	if m.metrics != nil {
		stats := m.tracker.Stats()
		m.metrics.TrackedJourneys.WithLabelValues(label).Set(float64(stats.Tracked))
		m.metrics.MalformedObservations.WithLabelValues(label).Set(float64(stats.Malformed))
		m.metrics.DroppedObservations.WithLabelValues(label).Set(float64(stats.Dropped))
		m.metrics.JourneysStarted.WithLabelValues(label).Add(float64(started))
		m.metrics.JourneysCompleted.WithLabelValues(label).Add(float64(len(completed)))
		m.metrics.CycleDuration.Observe(time.Since(cycleStart).Seconds())
	}
}

// buildSnapshot converts a raw feed response into tracker input,
// applying the host-side route filter.
func (m *Monitor) buildSnapshot(resp *feed.LiveResponse, now time.Time) tracker.Snapshot {
	obs := make([]tracker.Observation, 0, len(resp.Live))
	for _, bus := range resp.Live {
		if m.routes != nil {
			if _, ok := m.routes[bus.Route]; !ok {
				continue
			}
		}
		obs = append(obs, tracker.Observation{
			TripID:       bus.TripID,
			Route:        bus.Route,
			Headsign:     bus.Headsign,
			Direction:    bus.Direction,
			DueInSeconds: bus.DueInSeconds,
		})
	}
	return tracker.Snapshot{ObservedAt: now, Observations: obs}
}

func (m *Monitor) stopLabel() string {
	if m.stopID == "" {
		return "all"
	}
	return m.stopID
}

func (m *Monitor) describeScope() string {
	if m.stopID == "" {
		return "all stops"
	}
	return "stop " + m.stopID
}
