package monitor

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bus-monitor/internal/feed"
	"bus-monitor/internal/sink"
	"bus-monitor/internal/tracker"
)

// scriptedSource replays a fixed sequence of responses, then repeats the
// last one. A nil response entry yields an error for that call.
type scriptedSource struct {
	mu        sync.Mutex
	responses []*feed.LiveResponse
	calls     int
	gotStops  [][]string
}

func (s *scriptedSource) Fetch(_ context.Context, stopIDs []string) (*feed.LiveResponse, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.gotStops = append(s.gotStops, stopIDs)
	idx := s.calls
	if idx >= len(s.responses) {
		idx = len(s.responses) - 1
	}
	s.calls++
	if s.responses[idx] == nil {
		return nil, 0, errors.New("feed unavailable")
	}
	return s.responses[idx], 0, nil
}

type capturedWrite struct {
	stopID  string
	journey tracker.CompletedJourney
}

type captureSink struct {
	mu     sync.Mutex
	writes []capturedWrite
	err    error
}

func (c *captureSink) Name() string { return "capture" }

func (c *captureSink) Write(_ context.Context, stopID string, j tracker.CompletedJourney) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return c.err
	}
	c.writes = append(c.writes, capturedWrite{stopID: stopID, journey: j})
	return nil
}

func (c *captureSink) Close() error { return nil }

func (c *captureSink) all() []capturedWrite {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]capturedWrite(nil), c.writes...)
}

func live(buses ...feed.LiveBus) *feed.LiveResponse {
	return &feed.LiveResponse{Live: buses}
}

func testConfig(stopID string) Config {
	return Config{
		StopID:       stopID,
		Routes:       []string{"41"},
		PollInterval: 20 * time.Second,
		Location:     time.UTC,
		Tracker: tracker.Options{
			TrackingThreshold: 10 * time.Minute,
			GraceWindow:       5 * time.Minute,
		},
	}
}

func TestMonitorReconstructsJourneyAcrossCycles(t *testing.T) {
	t0 := time.Date(2025, time.March, 3, 8, 0, 0, 0, time.UTC)
	src := &scriptedSource{responses: []*feed.LiveResponse{
		live(
			feed.LiveBus{TripID: "T1", Route: "41", Headsign: "Lower Abbey St", Direction: "inbound", DueInSeconds: 540},
			feed.LiveBus{TripID: "X9", Route: "99", DueInSeconds: 100}, // filtered by route
		),
		live(feed.LiveBus{TripID: "T1", Route: "41", DueInSeconds: 520}),
		live(),
	}}
	rec := &captureSink{}

	m := New(src, sink.Multi{rec}, nil, nil, testConfig("8220DB000017"))
	ctx := context.Background()

	m.cycle(ctx, t0)
	m.cycle(ctx, t0.Add(20*time.Second))
	assert.Equal(t, 1, m.tracker.Len(), "route-filtered bus must not be tracked")
	assert.Empty(t, rec.all())

	m.cycle(ctx, t0.Add(560*time.Second))

	writes := rec.all()
	require.Len(t, writes, 1)
	assert.Equal(t, "8220DB000017", writes[0].stopID)

	j := writes[0].journey
	assert.Equal(t, "T1", j.TripID)
	assert.Equal(t, t0.Add(20*time.Second), j.ArrivalAt)
	assert.Equal(t, 20, j.ActualDurationSeconds)
	assert.Equal(t, 20-540, j.PredictionDifferenceSeconds)
	assert.Equal(t, 0, m.tracker.Len())

	// Stop scoping was passed through to the source on every fetch.
	for _, stops := range src.gotStops {
		assert.Equal(t, []string{"8220DB000017"}, stops)
	}
}

func TestMonitorAbandonsCycleOnFetchError(t *testing.T) {
	t0 := time.Date(2025, time.March, 3, 8, 0, 0, 0, time.UTC)
	src := &scriptedSource{responses: []*feed.LiveResponse{
		live(feed.LiveBus{TripID: "T1", Route: "41", DueInSeconds: 300}),
		nil, // fetch failure
		live(feed.LiveBus{TripID: "T1", Route: "41", DueInSeconds: 100}),
	}}
	rec := &captureSink{}
	m := New(src, sink.Multi{rec}, nil, nil, testConfig(""))
	ctx := context.Background()

	m.cycle(ctx, t0)
	require.Equal(t, 1, m.tracker.Len())

	// A failed poll long after the grace window must not complete
	// anything: the tracker never sees that cycle.
	m.cycle(ctx, t0.Add(time.Hour))
	assert.Empty(t, rec.all())
	assert.Equal(t, 1, m.tracker.Len())

	// Next successful cycle resumes the same journey.
	m.cycle(ctx, t0.Add(time.Hour+20*time.Second))
	assert.Equal(t, 1, m.tracker.Len())
	assert.Empty(t, rec.all())
}

func TestMonitorContinuesPastSinkErrors(t *testing.T) {
	t0 := time.Date(2025, time.March, 3, 8, 0, 0, 0, time.UTC)
	src := &scriptedSource{responses: []*feed.LiveResponse{
		live(feed.LiveBus{TripID: "T1", Route: "41", DueInSeconds: 60}),
		live(),
		live(feed.LiveBus{TripID: "T2", Route: "41", DueInSeconds: 60}),
		live(),
	}}
	failing := &captureSink{err: errors.New("disk full")}
	working := &captureSink{}
	m := New(src, sink.Multi{failing, working}, nil, nil, testConfig(""))
	ctx := context.Background()

	m.cycle(ctx, t0)
	m.cycle(ctx, t0.Add(6*time.Minute))

	// The failing sink did not prevent the working sink's write.
	require.Len(t, working.all(), 1)
	assert.Equal(t, "T1", working.all()[0].journey.TripID)

	m.cycle(ctx, t0.Add(7*time.Minute))
	m.cycle(ctx, t0.Add(13*time.Minute))
	require.Len(t, working.all(), 2)
	assert.Equal(t, "T2", working.all()[1].journey.TripID)
}

func TestManagerFansOutPerStop(t *testing.T) {
	src := &scriptedSource{responses: []*feed.LiveResponse{live()}}
	rec := &captureSink{}

	base := testConfig("")
	base.PollInterval = 10 * time.Millisecond
	mgr := NewManager(src, sink.Multi{rec}, nil, nil, base)

	ctx, cancel := context.WithCancel(context.Background())
	mgr.Start(ctx, []string{"stopA", "stopB"})

	seenStops := func() map[string]bool {
		src.mu.Lock()
		defer src.mu.Unlock()
		seen := map[string]bool{}
		for _, stops := range src.gotStops {
			if len(stops) == 1 {
				seen[stops[0]] = true
			}
		}
		return seen
	}

	require.Eventually(t, func() bool {
		seen := seenStops()
		return seen["stopA"] && seen["stopB"]
	}, 2*time.Second, 5*time.Millisecond)

	cancel()
	mgr.Stop()

	seen := seenStops()
	assert.True(t, seen["stopA"])
	assert.True(t, seen["stopB"])
}
