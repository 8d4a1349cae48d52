package sink

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"bus-monitor/internal/feed"
)

// AuditLog appends every raw feed response to a per-session JSON-lines
// file, one entry per poll, for later replay or debugging.
type AuditLog struct {
	mu   sync.Mutex
	file *os.File
	enc  *json.Encoder
	path string
}

type auditEntry struct {
	Timestamp time.Time          `json:"timestamp"`
	StopID    string             `json:"stop_id,omitempty"`
	Response  *feed.LiveResponse `json:"response"`
}

func NewAuditLog(dir string, startedAt time.Time) (*AuditLog, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create audit dir: %w", err)
	}
	path := filepath.Join(dir, fmt.Sprintf("api_responses_%s.jsonl", startedAt.Format("2006-01-02_15-04-05")))
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("create audit log: %w", err)
	}
	return &AuditLog{file: f, enc: json.NewEncoder(f), path: path}, nil
}

// Path returns the file the log is writing to.
func (a *AuditLog) Path() string { return a.path }

func (a *AuditLog) Record(stopID string, observedAt time.Time, resp *feed.LiveResponse) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.enc.Encode(auditEntry{
		Timestamp: observedAt,
		StopID:    stopID,
		Response:  resp,
	})
}

func (a *AuditLog) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.file.Close()
}
