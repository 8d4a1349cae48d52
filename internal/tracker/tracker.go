package tracker

import (
	"sort"
	"time"
)

// Observation is a single vehicle as reported by one poll of the live feed.
// DueInSeconds is the feed's predicted seconds until arrival; it can be
// stale or negative and no monotonicity is assumed.
type Observation struct {
	TripID       string
	Route        string
	Headsign     string
	Direction    string
	DueInSeconds int
}

// Snapshot is the set of vehicles visible in one poll cycle. ObservedAt
// is the poll instant and serves as the tracker's clock: sighting times
// and absence silence are both measured against it.
type Snapshot struct {
	ObservedAt   time.Time
	Observations []Observation
}

// TrackedJourney is one in-flight journey. Route, headsign and direction
// are fixed at first sighting; only LastSeenAt and LastSeenDueInSeconds
// change on later observations.
type TrackedJourney struct {
	TripID    string `json:"trip_id"`
	Route     string `json:"route"`
	Headsign  string `json:"headsign"`
	Direction string `json:"direction"`

	FirstSeenAt          time.Time `json:"first_seen_at"`
	LastSeenAt           time.Time `json:"last_seen_at"`
	InitialDueInSeconds  int       `json:"initial_due_in_seconds"`
	LastSeenDueInSeconds int       `json:"last_seen_due_seconds"`
}

// Options tune the entry and exit rules of a Tracker.
type Options struct {
	// TrackingThreshold is the maximum predicted time-to-arrival at which
	// a trip starts being tracked. Unlike GraceWindow, zero is not
	// meaningful here: non-positive values fall back to
	// DefaultTrackingThreshold.
	TrackingThreshold time.Duration
	// GraceWindow is how long a tracked trip may be absent from the feed
	// before it is judged arrived. Zero means any absence completes it.
	GraceWindow time.Duration
	// MaxTracked caps the tracked set as a guard against feed or threshold
	// misconfiguration. Zero disables the cap.
	MaxTracked int
}

const (
	DefaultTrackingThreshold = 10 * time.Minute
	DefaultGraceWindow       = 5 * time.Minute
)

// Tracker reconstructs completed journeys from a sequence of snapshots.
// It owns its journey map exclusively and performs no I/O; time comes
// solely from each snapshot's ObservedAt, so replays are deterministic.
// Not safe for concurrent use.
type Tracker struct {
	opts     Options
	journeys map[string]*TrackedJourney

	started   int
	completed int
	malformed int
	dropped   int
}

func New(opts Options) *Tracker {
	if opts.TrackingThreshold <= 0 {
		opts.TrackingThreshold = DefaultTrackingThreshold
	}
	return &Tracker{
		opts:     opts,
		journeys: make(map[string]*TrackedJourney),
	}
}

// Ingest applies one snapshot to the tracked set and returns the journeys
// newly completed by this cycle. A journey completes when it has been
// absent from the feed for longer than the grace window; the arrival
// instant is the last time it was actually observed, not the time its
// absence was confirmed.
func (t *Tracker) Ingest(snap Snapshot) []CompletedJourney {
	now := snap.ObservedAt
	seen := make(map[string]struct{}, len(snap.Observations))

	for _, obs := range snap.Observations {
		if obs.TripID == "" || obs.Route == "" {
			t.malformed++
			continue
		}
		seen[obs.TripID] = struct{}{}

		if j, ok := t.journeys[obs.TripID]; ok {
			j.LastSeenAt = now
			j.LastSeenDueInSeconds = obs.DueInSeconds
			continue
		}
		if obs.DueInSeconds > int(t.opts.TrackingThreshold/time.Second) {
			continue
		}
		if t.opts.MaxTracked > 0 && len(t.journeys) >= t.opts.MaxTracked {
			t.dropped++
			continue
		}
		t.journeys[obs.TripID] = &TrackedJourney{
			TripID:               obs.TripID,
			Route:                obs.Route,
			Headsign:             obs.Headsign,
			Direction:            obs.Direction,
			FirstSeenAt:          now,
			LastSeenAt:           now,
			InitialDueInSeconds:  obs.DueInSeconds,
			LastSeenDueInSeconds: obs.DueInSeconds,
		}
		t.started++
	}

	var done []CompletedJourney
	for id, j := range t.journeys {
		if _, ok := seen[id]; ok {
			continue
		}
		if now.Sub(j.LastSeenAt) <= t.opts.GraceWindow {
			continue // transient feed gap
		}
		done = append(done, newCompletedJourney(*j, j.LastSeenAt))
		delete(t.journeys, id)
		t.completed++
	}

	sort.Slice(done, func(i, k int) bool { return done[i].TripID < done[k].TripID })
	return done
}

// Len returns the number of journeys currently being tracked.
func (t *Tracker) Len() int { return len(t.journeys) }

// Stats reports cumulative tracker activity since construction.
type Stats struct {
	Tracked   int // journeys currently in flight
	Started   int
	Completed int
	Malformed int // observations skipped for missing fields
	Dropped   int // observations rejected by the MaxTracked cap
}

func (t *Tracker) Stats() Stats {
	return Stats{
		Tracked:   len(t.journeys),
		Started:   t.started,
		Completed: t.completed,
		Malformed: t.malformed,
		Dropped:   t.dropped,
	}
}
