package sink

import (
	"context"
	"database/sql"
	"fmt"
	"math"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"bus-monitor/internal/tracker"
)

const createJourneysTable = `
CREATE TABLE IF NOT EXISTS completed_journeys (
    trip_id                       TEXT NOT NULL,
    route                         TEXT NOT NULL,
    stop_id                       TEXT NOT NULL DEFAULT '',
    headsign                      TEXT,
    direction                     TEXT,
    first_seen_at                 TIMESTAMPTZ NOT NULL,
    initial_due_in_seconds        INTEGER NOT NULL,
    arrival_time                  TIMESTAMPTZ NOT NULL,
    actual_duration_seconds       INTEGER NOT NULL,
    prediction_difference_seconds INTEGER NOT NULL,
    prediction_difference_minutes DOUBLE PRECISION NOT NULL,
    absolute_difference_seconds   INTEGER NOT NULL,
    percentage_difference         DOUBLE PRECISION,
    day_of_week                   TEXT NOT NULL,
    is_weekend                    BOOLEAN NOT NULL,
    time_of_day                   TEXT NOT NULL,
    peak_hours                    BOOLEAN NOT NULL,
    tracking_duration_seconds     INTEGER NOT NULL,
    last_seen_due_seconds         INTEGER NOT NULL,
    clock_anomaly                 BOOLEAN NOT NULL DEFAULT FALSE,
    PRIMARY KEY (trip_id, first_seen_at)
)`

const insertJourney = `
INSERT INTO completed_journeys (
    trip_id, route, stop_id, headsign, direction,
    first_seen_at, initial_due_in_seconds, arrival_time,
    actual_duration_seconds, prediction_difference_seconds,
    prediction_difference_minutes, absolute_difference_seconds,
    percentage_difference, day_of_week, is_weekend, time_of_day,
    peak_hours, tracking_duration_seconds, last_seen_due_seconds,
    clock_anomaly
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20)
ON CONFLICT (trip_id, first_seen_at) DO NOTHING`

// PostgresSink stores completed journeys in a completed_journeys table.
type PostgresSink struct {
	db *sql.DB
}

func OpenPostgres(ctx context.Context, dsn string) (*PostgresSink, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(5)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(30 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("db ping: %w", err)
	}

	if _, err := db.ExecContext(ctx, createJourneysTable); err != nil {
		db.Close()
		return nil, fmt.Errorf("create completed_journeys table: %w", err)
	}
	return &PostgresSink{db: db}, nil
}

func (s *PostgresSink) Name() string { return "postgres" }

func (s *PostgresSink) Write(ctx context.Context, stopID string, j tracker.CompletedJourney) error {
	// NULL rather than NaN when the initial prediction was zero
	var pct any
	if !math.IsNaN(j.PercentageDifference) {
		pct = j.PercentageDifference
	}

	_, err := s.db.ExecContext(ctx, insertJourney,
		j.TripID, j.Route, stopID, j.Headsign, j.Direction,
		j.FirstSeenAt, j.InitialDueInSeconds, j.ArrivalAt,
		j.ActualDurationSeconds, j.PredictionDifferenceSeconds,
		j.PredictionDifferenceMinutes, j.AbsoluteDifferenceSeconds,
		pct, j.DayOfWeek, j.IsWeekend, j.TimeOfDay,
		j.IsPeakHour, j.TrackingDurationSeconds, j.LastSeenDueInSeconds,
		j.ClockAnomaly,
	)
	if err != nil {
		return fmt.Errorf("insert completed journey %s: %w", j.TripID, err)
	}
	return nil
}

func (s *PostgresSink) Close() error { return s.db.Close() }
