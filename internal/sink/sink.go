// Package sink persists completed journeys. Sinks are fan-out targets:
// a write failure in one sink must not prevent writes to the others.
package sink

import (
	"context"
	"errors"

	"bus-monitor/internal/tracker"
)

type Sink interface {
	// Name identifies the sink in logs and metrics.
	Name() string
	// Write persists one completed journey. stopID is empty when the
	// monitor is not fanned out per stop.
	Write(ctx context.Context, stopID string, j tracker.CompletedJourney) error
	Close() error
}

// Multi writes each journey to every sink, continuing past failures.
type Multi []Sink

func (m Multi) Name() string { return "multi" }

func (m Multi) Write(ctx context.Context, stopID string, j tracker.CompletedJourney) error {
	var errs []error
	for _, s := range m {
		if err := s.Write(ctx, stopID, j); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (m Multi) Close() error {
	var errs []error
	for _, s := range m {
		if err := s.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
