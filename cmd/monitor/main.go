package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"
	"time"

	"bus-monitor/internal/config"
	"bus-monitor/internal/feed"
	"bus-monitor/internal/metrics"
	"bus-monitor/internal/monitor"
	"bus-monitor/internal/sink"
	"bus-monitor/internal/tracker"
)

func main() {
	// Load configuration from .env and environment
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}

	// Root context with cancellation on SIGINT/SIGTERM
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	startedAt := time.Now().In(cfg.Location)

	// Metrics setup
	var mcol *metrics.Collector
	var metricsSrvCancel context.CancelFunc
	if cfg.MetricsAddr != "" {
		mcol = metrics.NewCollector(cfg.PollInterval, cfg.TrackingThreshold, cfg.GraceWindow)
		mctx, mcancel := context.WithCancel(ctx)
		metricsSrvCancel = mcancel
		srv := mcol.Serve(cfg.MetricsAddr)
		go func() {
			<-mctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()
	}

	// CSV sink is always on; Postgres and NATS join when configured.
	csvSink, err := sink.NewCSVSink(cfg.DataDir, startedAt)
	if err != nil {
		log.Fatalf("csv sink error: %v", err)
	}
	log.Printf("writing completed journeys to %s", csvSink.Path())
	sinks := sink.Multi{csvSink}

	if cfg.DatabaseURL != "" {
		pg, err := sink.OpenPostgres(ctx, cfg.DatabaseURL)
		if err != nil {
			log.Fatalf("postgres sink error: %v", err)
		}
		sinks = append(sinks, pg)
		log.Printf("postgres sink enabled")
	}

	if cfg.NATSURL != "" {
		ns, err := sink.NewNATSSink(cfg.NATSURL, wrapPublisherMetrics(mcol))
		if err != nil {
			log.Fatalf("nats error: %v", err)
		}
		sinks = append(sinks, ns)
		log.Printf("nats sink enabled")
	}

	// Optional raw-snapshot audit log
	var audit *sink.AuditLog
	if cfg.AuditDir != "" {
		audit, err = sink.NewAuditLog(cfg.AuditDir, startedAt)
		if err != nil {
			log.Fatalf("audit log error: %v", err)
		}
		log.Printf("auditing raw snapshots to %s", audit.Path())
	}

	client := feed.NewClient(cfg.FeedURL, cfg.MaxFetchRetries, cfg.RetryBackoff)

	mgr := monitor.NewManager(client, sinks, audit, mcol, monitor.Config{
		Routes:       cfg.Routes,
		PollInterval: cfg.PollInterval,
		Location:     cfg.Location,
		Tracker: tracker.Options{
			TrackingThreshold: cfg.TrackingThreshold,
			GraceWindow:       cfg.GraceWindow,
			MaxTracked:        cfg.MaxTracked,
		},
	})
	mgr.Start(ctx, cfg.StopIDs)

	// Block until context cancelled
	<-ctx.Done()
	mgr.Stop()
	if err := sinks.Close(); err != nil {
		log.Printf("sink close error: %v", err)
	}
	if audit != nil {
		if err := audit.Close(); err != nil {
			log.Printf("audit close error: %v", err)
		}
	}
	if metricsSrvCancel != nil {
		metricsSrvCancel()
	}
	log.Println("shutdown complete")
}

// wrapPublisherMetrics adapts our Collector to the PublisherMetrics interface.
func wrapPublisherMetrics(c *metrics.Collector) sink.PublisherMetrics {
	if c == nil {
		return nil
	}
	return &pubMetrics{c: c}
}

type pubMetrics struct{ c *metrics.Collector }

func (p *pubMetrics) PublishedInc()                  { p.c.NATSPublished.Inc() }
func (p *pubMetrics) PublishErrInc()                 { p.c.NATSPublishErrs.Inc() }
func (p *pubMetrics) PublishObserve(d time.Duration) { p.c.PublishDuration.Observe(d.Seconds()) }
func (p *pubMetrics) SetConnected(b bool) {
	if b {
		p.c.NATSConnected.Set(1)
	} else {
		p.c.NATSConnected.Set(0)
	}
}
