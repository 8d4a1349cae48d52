package tracker

import (
	"math"
	"time"
)

// Time-of-day buckets derived from the first-sighting hour.
const (
	Morning   = "Morning"   // [05:00, 12:00)
	Afternoon = "Afternoon" // [12:00, 17:00)
	Evening   = "Evening"   // [17:00, 21:00)
	Night     = "Night"     // [21:00, 05:00)
)

// CompletedJourney is a finalized journey with derived timing and
// calendar metrics. Immutable once produced.
type CompletedJourney struct {
	TrackedJourney

	ArrivalAt                   time.Time `json:"arrival_time"`
	ActualDurationSeconds       int       `json:"actual_duration_seconds"`
	PredictionDifferenceSeconds int       `json:"prediction_difference_seconds"`
	PredictionDifferenceMinutes float64   `json:"prediction_difference_minutes"`
	AbsoluteDifferenceSeconds   int       `json:"absolute_difference_seconds"`

	// PercentageDifference is NaN when InitialDueInSeconds is zero, since
	// the ratio is undefined. Sinks render it as NULL or an empty field.
	PercentageDifference float64 `json:"-"`

	DayOfWeek               string `json:"day_of_week"`
	IsWeekend               bool   `json:"is_weekend"`
	TimeOfDay               string `json:"time_of_day"`
	IsPeakHour              bool   `json:"peak_hours"`
	TrackingDurationSeconds int    `json:"tracking_duration_seconds"`

	// ClockAnomaly marks a negative actual duration, which can only come
	// from a clock or ordering problem on the monitoring host.
	ClockAnomaly bool `json:"clock_anomaly,omitempty"`
}

func newCompletedJourney(j TrackedJourney, arrivalAt time.Time) CompletedJourney {
	actual := int(arrivalAt.Sub(j.FirstSeenAt) / time.Second)
	diff := actual - j.InitialDueInSeconds

	pct := math.NaN()
	if j.InitialDueInSeconds != 0 {
		pct = float64(diff) / float64(j.InitialDueInSeconds) * 100
	}

	return CompletedJourney{
		TrackedJourney:              j,
		ArrivalAt:                   arrivalAt,
		ActualDurationSeconds:       actual,
		PredictionDifferenceSeconds: diff,
		PredictionDifferenceMinutes: float64(diff) / 60,
		AbsoluteDifferenceSeconds:   abs(diff),
		PercentageDifference:        pct,
		DayOfWeek:                   j.FirstSeenAt.Weekday().String(),
		IsWeekend:                   isWeekend(j.FirstSeenAt),
		TimeOfDay:                   TimeOfDay(j.FirstSeenAt.Hour()),
		IsPeakHour:                  IsPeakHour(j.FirstSeenAt),
		TrackingDurationSeconds:     actual,
		ClockAnomaly:                actual < 0,
	}
}

// TimeOfDay buckets an hour of day (0-23).
func TimeOfDay(hour int) string {
	switch {
	case hour >= 5 && hour < 12:
		return Morning
	case hour >= 12 && hour < 17:
		return Afternoon
	case hour >= 17 && hour < 21:
		return Evening
	default:
		return Night
	}
}

// IsPeakHour reports whether t falls in a weekday rush-hour window
// (07:00-09:00 or 16:00-18:00).
func IsPeakHour(t time.Time) bool {
	if isWeekend(t) {
		return false
	}
	h := t.Hour()
	return (h >= 7 && h < 9) || (h >= 16 && h < 18)
}

func isWeekend(t time.Time) bool {
	wd := t.Weekday()
	return wd == time.Saturday || wd == time.Sunday
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}
