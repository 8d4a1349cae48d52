package tracker

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func isNaN(f float64) bool { return math.IsNaN(f) }

func TestTimeOfDayBuckets(t *testing.T) {
	tests := []struct {
		hour     int
		expected string
	}{
		{0, Night},
		{4, Night},
		{5, Morning},
		{11, Morning},
		{12, Afternoon},
		{16, Afternoon},
		{17, Evening},
		{20, Evening},
		{21, Night},
		{23, Night},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.expected, TimeOfDay(tt.hour), "hour %d", tt.hour)
	}
}

func TestIsPeakHour(t *testing.T) {
	day := func(d time.Weekday, hour int) time.Time {
		// 2025-03-03 is a Monday; offset to the requested weekday.
		base := time.Date(2025, time.March, 3, hour, 30, 0, 0, time.UTC)
		return base.AddDate(0, 0, int(d-time.Monday))
	}

	tests := []struct {
		name     string
		at       time.Time
		expected bool
	}{
		{"weekday morning peak", day(time.Monday, 7), true},
		{"weekday just before morning peak", day(time.Monday, 6), false},
		{"weekday after morning peak", day(time.Wednesday, 9), false},
		{"weekday evening peak", day(time.Friday, 16), true},
		{"weekday late evening", day(time.Friday, 18), false},
		{"weekend morning peak hour", day(time.Saturday, 8), false},
		{"weekend evening peak hour", day(time.Sunday, 17), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, IsPeakHour(tt.at))
		})
	}
}

func TestDerivedMetricsExactness(t *testing.T) {
	firstSeen := time.Date(2025, time.March, 8, 14, 0, 0, 0, time.UTC) // Saturday afternoon
	arrival := firstSeen.Add(10 * time.Minute)

	j := newCompletedJourney(TrackedJourney{
		TripID:               "T1",
		Route:                "41",
		FirstSeenAt:          firstSeen,
		LastSeenAt:           arrival,
		InitialDueInSeconds:  480,
		LastSeenDueInSeconds: 15,
	}, arrival)

	assert.Equal(t, 600, j.ActualDurationSeconds)
	assert.Equal(t, 120, j.PredictionDifferenceSeconds)
	assert.InDelta(t, 2.0, j.PredictionDifferenceMinutes, 1e-9)
	assert.Equal(t, 120, j.AbsoluteDifferenceSeconds)
	assert.InDelta(t, 25.0, j.PercentageDifference, 1e-9)
	assert.Equal(t, "Saturday", j.DayOfWeek)
	assert.True(t, j.IsWeekend)
	assert.Equal(t, Afternoon, j.TimeOfDay)
	assert.False(t, j.IsPeakHour)
	assert.Equal(t, 600, j.TrackingDurationSeconds)
	assert.Equal(t, 15, j.LastSeenDueInSeconds)
	assert.False(t, j.ClockAnomaly)
}

func TestEarlyArrivalYieldsNegativeDifference(t *testing.T) {
	firstSeen := time.Date(2025, time.March, 4, 10, 0, 0, 0, time.UTC)
	arrival := firstSeen.Add(5 * time.Minute)

	j := newCompletedJourney(TrackedJourney{
		TripID:              "T1",
		Route:               "41",
		FirstSeenAt:         firstSeen,
		LastSeenAt:          arrival,
		InitialDueInSeconds: 540,
	}, arrival)

	assert.Equal(t, 300, j.ActualDurationSeconds)
	assert.Equal(t, -240, j.PredictionDifferenceSeconds)
	assert.InDelta(t, -4.0, j.PredictionDifferenceMinutes, 1e-9)
	assert.Equal(t, 240, j.AbsoluteDifferenceSeconds)
	assert.False(t, j.ClockAnomaly)
}

func TestClockAnomalyFlagged(t *testing.T) {
	firstSeen := time.Date(2025, time.March, 4, 10, 0, 0, 0, time.UTC)
	arrival := firstSeen.Add(-time.Minute) // host clock went backwards

	j := newCompletedJourney(TrackedJourney{
		TripID:              "T1",
		Route:               "41",
		FirstSeenAt:         firstSeen,
		LastSeenAt:          arrival,
		InitialDueInSeconds: 60,
	}, arrival)

	assert.Equal(t, -60, j.ActualDurationSeconds)
	assert.True(t, j.ClockAnomaly)
}

func TestZeroInitialDueProducesNaN(t *testing.T) {
	firstSeen := time.Date(2025, time.March, 4, 10, 0, 0, 0, time.UTC)
	j := newCompletedJourney(TrackedJourney{
		TripID:      "T1",
		Route:       "41",
		FirstSeenAt: firstSeen,
		LastSeenAt:  firstSeen,
	}, firstSeen)

	assert.True(t, math.IsNaN(j.PercentageDifference))
}
