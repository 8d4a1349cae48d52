package sink

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"math"
	"strings"
	"time"

	"github.com/nats-io/nats.go"

	"bus-monitor/internal/tracker"
)

// PublisherMetrics lets the host observe publish activity without the
// sink depending on a concrete metrics implementation.
type PublisherMetrics interface {
	PublishedInc()
	PublishErrInc()
	PublishObserve(d time.Duration)
	SetConnected(connected bool)
}

// NATSSink publishes each completed journey to journeys.<route>.<trip>.
type NATSSink struct {
	nc      *nats.Conn
	metrics PublisherMetrics
}

func NewNATSSink(url string, m PublisherMetrics) (*NATSSink, error) {
	nc, err := nats.Connect(url,
		nats.Name("bus-monitor"),
		nats.DisconnectHandler(func(_ *nats.Conn) {
			if m != nil {
				m.SetConnected(false)
			}
			log.Printf("nats disconnected")
		}),
		nats.ReconnectHandler(func(_ *nats.Conn) {
			if m != nil {
				m.SetConnected(true)
			}
			log.Printf("nats reconnected")
		}),
		nats.ClosedHandler(func(_ *nats.Conn) {
			if m != nil {
				m.SetConnected(false)
			}
			log.Printf("nats closed")
		}),
	)
	if err != nil {
		return nil, err
	}
	if m != nil {
		m.SetConnected(true)
	}
	return &NATSSink{nc: nc, metrics: m}, nil
}

// journeyMessage is the wire form of a completed journey. The percentage
// difference is a pointer so an undefined ratio serializes as null.
type journeyMessage struct {
	tracker.CompletedJourney
	StopID               string   `json:"stop_id,omitempty"`
	PercentageDifference *float64 `json:"percentage_difference"`
}

func (s *NATSSink) Name() string { return "nats" }

func (s *NATSSink) Write(_ context.Context, stopID string, j tracker.CompletedJourney) error {
	msg := journeyMessage{CompletedJourney: j, StopID: stopID}
	if !math.IsNaN(j.PercentageDifference) {
		pct := j.PercentageDifference
		msg.PercentageDifference = &pct
	}
	b, err := json.Marshal(msg)
	if err != nil {
		return err
	}

	subject := fmt.Sprintf("journeys.%s.%s", subjectToken(j.Route), subjectToken(j.TripID))
	start := time.Now()
	err = s.nc.Publish(subject, b)
	if s.metrics != nil {
		s.metrics.PublishObserve(time.Since(start))
		if err != nil {
			s.metrics.PublishErrInc()
		} else {
			s.metrics.PublishedInc()
		}
	}
	return err
}

func (s *NATSSink) Close() error {
	if s.nc != nil {
		s.nc.Drain()
		s.nc.Close()
	}
	return nil
}

func subjectToken(s string) string {
	s = strings.TrimSpace(s)
	// NATS token cannot contain spaces, '>', '*', or trailing '.'
	repl := strings.NewReplacer(" ", "_", ".", "_", ">", "_", "*", "_", "/", "_", "\t", "_")
	s = repl.Replace(s)
	if s == "" {
		s = "_"
	}
	return s
}
