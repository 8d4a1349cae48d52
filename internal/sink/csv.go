package sink

import (
	"context"
	"encoding/csv"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"bus-monitor/internal/tracker"
)

const timeLayout = "2006-01-02 15:04:05"

var csvHeader = []string{
	"trip_id",
	"route",
	"stop_id",
	"headsign",
	"direction",
	"first_seen_at",
	"initial_due_in_seconds",
	"arrival_time",
	"actual_duration_seconds",
	"prediction_difference_seconds",
	"prediction_difference_minutes",
	"absolute_difference_seconds",
	"percentage_difference",
	"day_of_week",
	"is_weekend",
	"time_of_day",
	"peak_hours",
	"tracking_duration_seconds",
	"last_seen_due_seconds",
}

// CSVSink appends completed journeys to a per-session CSV file named
// after the time the monitor started.
type CSVSink struct {
	mu   sync.Mutex
	file *os.File
	w    *csv.Writer
	path string
}

func NewCSVSink(dir string, startedAt time.Time) (*CSVSink, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}
	path := filepath.Join(dir, fmt.Sprintf("bus_monitoring_%s.csv", startedAt.Format("2006-01-02_15-04-05")))
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("create csv file: %w", err)
	}
	w := csv.NewWriter(f)
	if err := w.Write(csvHeader); err != nil {
		f.Close()
		return nil, fmt.Errorf("write csv header: %w", err)
	}
	w.Flush()
	if err := w.Error(); err != nil {
		f.Close()
		return nil, err
	}
	return &CSVSink{file: f, w: w, path: path}, nil
}

// Path returns the file the sink is writing to.
func (s *CSVSink) Path() string { return s.path }

func (s *CSVSink) Name() string { return "csv" }

func (s *CSVSink) Write(_ context.Context, stopID string, j tracker.CompletedJourney) error {
	pct := ""
	if !math.IsNaN(j.PercentageDifference) {
		pct = strconv.FormatFloat(j.PercentageDifference, 'f', -1, 64)
	}

	record := []string{
		j.TripID,
		j.Route,
		stopID,
		j.Headsign,
		j.Direction,
		j.FirstSeenAt.Format(timeLayout),
		strconv.Itoa(j.InitialDueInSeconds),
		j.ArrivalAt.Format(timeLayout),
		strconv.Itoa(j.ActualDurationSeconds),
		strconv.Itoa(j.PredictionDifferenceSeconds),
		strconv.FormatFloat(j.PredictionDifferenceMinutes, 'f', -1, 64),
		strconv.Itoa(j.AbsoluteDifferenceSeconds),
		pct,
		j.DayOfWeek,
		strconv.FormatBool(j.IsWeekend),
		j.TimeOfDay,
		strconv.FormatBool(j.IsPeakHour),
		strconv.Itoa(j.TrackingDurationSeconds),
		strconv.Itoa(j.LastSeenDueInSeconds),
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.w.Write(record); err != nil {
		return fmt.Errorf("write csv record: %w", err)
	}
	s.w.Flush()
	return s.w.Error()
}

func (s *CSVSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.w.Flush()
	if err := s.w.Error(); err != nil {
		s.file.Close()
		return err
	}
	return s.file.Close()
}
