package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	FeedURL           string
	StopIDs           []string
	Routes            []string
	PollInterval      time.Duration
	TrackingThreshold time.Duration
	GraceWindow       time.Duration
	MaxFetchRetries   int
	RetryBackoff      time.Duration
	MaxTracked        int

	DataDir     string
	AuditDir    string // empty disables the raw-snapshot audit log
	DatabaseURL string // empty disables the Postgres sink
	NATSURL     string // empty disables the NATS publisher
	MetricsAddr string // empty disables the metrics server

	Location *time.Location
}

func Load() (*Config, error) {
	// Load .env into environment (ignore if missing)
	_ = godotenv.Load()

	cfg := &Config{}

	cfg.FeedURL = getenvDefault("FEED_URL", "http://127.0.0.1:6824/live.json")
	cfg.StopIDs = splitList(os.Getenv("STOP_IDS"))
	cfg.Routes = splitList(os.Getenv("ROUTES"))

	var err error
	if cfg.PollInterval, err = secondsEnv("POLL_INTERVAL_SEC", 20); err != nil {
		return nil, err
	}
	if cfg.PollInterval == 0 {
		// The poll ticker requires a positive interval.
		return nil, fmt.Errorf("invalid POLL_INTERVAL_SEC: must be positive")
	}
	if cfg.TrackingThreshold, err = secondsEnv("TRACKING_THRESHOLD_SEC", 600); err != nil {
		return nil, err
	}
	if cfg.TrackingThreshold == 0 {
		return nil, fmt.Errorf("invalid TRACKING_THRESHOLD_SEC: must be positive")
	}
	if cfg.GraceWindow, err = secondsEnv("GRACE_WINDOW_SEC", 300); err != nil {
		return nil, err
	}
	if cfg.RetryBackoff, err = secondsEnv("RETRY_BACKOFF_SEC", 30); err != nil {
		return nil, err
	}

	if v := os.Getenv("MAX_FETCH_RETRIES"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			return nil, fmt.Errorf("invalid MAX_FETCH_RETRIES: %q", v)
		}
		cfg.MaxFetchRetries = n
	} else {
		cfg.MaxFetchRetries = 3
	}

	if v := os.Getenv("MAX_TRACKED"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return nil, fmt.Errorf("invalid MAX_TRACKED: %q", v)
		}
		cfg.MaxTracked = n
	}

	cfg.DataDir = getenvDefault("DATA_DIR", "monitoring_data")
	cfg.AuditDir = os.Getenv("AUDIT_DIR")

	// Database URL: prefer DATABASE_URL / PG_DSN, else build from PG* vars.
	// All unset leaves the Postgres sink disabled.
	dsn := firstNonEmpty(
		os.Getenv("DATABASE_URL"),
		os.Getenv("PG_DSN"),
	)
	if dsn == "" && os.Getenv("PGDATABASE") != "" {
		host := getenvDefault("PGHOST", "127.0.0.1")
		port := getenvDefault("PGPORT", "5432")
		user := getenvDefault("PGUSER", "postgres")
		pass := os.Getenv("PGPASSWORD")
		db := os.Getenv("PGDATABASE")
		sslmode := getenvDefault("PGSSLMODE", "disable")
		if pass != "" {
			dsn = fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s", urlEscape(user), urlEscape(pass), host, port, db, sslmode)
		} else {
			dsn = fmt.Sprintf("postgres://%s@%s:%s/%s?sslmode=%s", urlEscape(user), host, port, db, sslmode)
		}
	}
	cfg.DatabaseURL = dsn

	cfg.NATSURL = os.Getenv("NATS_URL")
	cfg.MetricsAddr = os.Getenv("METRICS_ADDR")

	// Calendar bucketing of completed journeys follows the monitoring
	// host's local zone unless TZ overrides it.
	tzName := getenvDefault("TZ", "")
	if tzName == "" {
		cfg.Location = time.Local
	} else {
		loc, err := time.LoadLocation(tzName)
		if err != nil {
			return nil, fmt.Errorf("invalid TZ: %v", err)
		}
		cfg.Location = loc
	}

	return cfg, nil
}

func secondsEnv(key string, def int) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return time.Duration(def) * time.Second, nil
	}
	sec, err := strconv.Atoi(v)
	if err != nil || sec < 0 {
		return 0, fmt.Errorf("invalid %s: %q", key, v)
	}
	return time.Duration(sec) * time.Second, nil
}

func splitList(v string) []string {
	if strings.TrimSpace(v) == "" {
		return nil
	}
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func getenvDefault(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

func urlEscape(s string) string {
	// Minimal escape for DSN user/pass with special chars
	r := strings.NewReplacer("@", "%40", ":", "%3A", "/", "%2F", "?", "%3F", "#", "%23")
	return r.Replace(s)
}
