// Package audit records security-relevant events: login attempts, application
// status changes, client record edits, permission changes. Audit records are
// kept apart from application logs because their consumers differ — compliance
// reviewers rather than on-call engineers — and their retention is measured in
// years rather than days. The Shipper interface routes each record to any
// number of destinations (file, webhook, syslog) independently of the
// application's own logging pipeline.
package audit

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"sync"
	"time"
)

// LogEntry is one audit record on the wire.
type LogEntry struct {
	Timestamp    time.Time              `json:"timestamp"`
	Action       string                 `json:"action"`
	UserID       string                 `json:"user_id,omitempty"`
	ResourceType string                 `json:"resource_type,omitempty"`
	ResourceID   string                 `json:"resource_id,omitempty"`
	IPAddress    string                 `json:"ip_address,omitempty"`
	UserAgent    string                 `json:"user_agent,omitempty"`
	Details      map[string]interface{} `json:"details,omitempty"`
}

// Shipper delivers audit records to one destination.
type Shipper interface {
	Ship(ctx context.Context, entry *LogEntry) error
	Close() error
}

// ShipperConfig selects and configures one shipping destination. Exactly one
// of the per-type sections should be set, matching Type.
type ShipperConfig struct {
	Enabled bool           `json:"enabled"`
	Type    string         `json:"type"`
	Syslog  *SyslogConfig  `json:"syslog,omitempty"`
	Webhook *WebhookConfig `json:"webhook,omitempty"`
	File    *FileConfig    `json:"file,omitempty"`
}

// SyslogConfig configures delivery to a syslog daemon.
type SyslogConfig struct {
	Network  string `json:"network"` // udp, tcp, unix
	Address  string `json:"address"`
	Tag      string `json:"tag"`
	Facility string `json:"facility"`
}

// WebhookConfig configures HTTP delivery. BatchSize 0 ships every entry
// immediately; a positive BatchSize accumulates entries and posts them as a
// JSON array.
type WebhookConfig struct {
	URL           string            `json:"url"`
	Headers       map[string]string `json:"headers,omitempty"`
	Timeout       time.Duration     `json:"timeout"`
	BatchSize     int               `json:"batch_size"`
	FlushInterval time.Duration     `json:"flush_interval"`
}

// FileConfig configures append-only JSON lines output with size-based
// rotation.
type FileConfig struct {
	Path       string `json:"path"`
	MaxSizeMB  int    `json:"max_size_mb"`
	MaxBackups int    `json:"max_backups"`
}

// MultiShipper fans each record out to every enabled destination.
type MultiShipper struct {
	shippers []Shipper
	mu       sync.RWMutex
}

// NewMultiShipper builds a shipper per enabled config entry. A config error
// in any entry fails the whole construction.
func NewMultiShipper(configs []ShipperConfig) (*MultiShipper, error) {
	ms := &MultiShipper{shippers: make([]Shipper, 0)}

	for _, cfg := range configs {
		if !cfg.Enabled {
			continue
		}
		shipper, err := buildShipper(cfg)
		if err != nil {
			return nil, err
		}
		ms.shippers = append(ms.shippers, shipper)
	}

	return ms, nil
}

func buildShipper(cfg ShipperConfig) (Shipper, error) {
	switch cfg.Type {
	case "syslog":
		if cfg.Syslog == nil {
			return nil, fmt.Errorf("syslog config is required for syslog shipper")
		}
		s, err := NewSyslogShipper(cfg.Syslog)
		if err != nil {
			return nil, fmt.Errorf("failed to create syslog shipper: %w", err)
		}
		return s, nil
	case "webhook":
		if cfg.Webhook == nil {
			return nil, fmt.Errorf("webhook config is required for webhook shipper")
		}
		s, err := NewWebhookShipper(cfg.Webhook)
		if err != nil {
			return nil, fmt.Errorf("failed to create webhook shipper: %w", err)
		}
		return s, nil
	case "file":
		if cfg.File == nil {
			return nil, fmt.Errorf("file config is required for file shipper")
		}
		s, err := NewFileShipper(cfg.File)
		if err != nil {
			return nil, fmt.Errorf("failed to create file shipper: %w", err)
		}
		return s, nil
	default:
		return nil, fmt.Errorf("unknown shipper type: %s", cfg.Type)
	}
}

// Ship delivers to every destination. A failing destination does not stop
// the others; the last error is returned.
func (ms *MultiShipper) Ship(ctx context.Context, entry *LogEntry) error {
	ms.mu.RLock()
	defer ms.mu.RUnlock()

	var lastErr error
	for _, shipper := range ms.shippers {
		if err := shipper.Ship(ctx, entry); err != nil {
			lastErr = err
			slog.Error("audit shipper delivery failed", "error", err)
		}
	}
	return lastErr
}

// Close closes every destination, returning the last error seen.
func (ms *MultiShipper) Close() error {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	var lastErr error
	for _, shipper := range ms.shippers {
		if err := shipper.Close(); err != nil {
			lastErr = err
		}
	}
	return lastErr
}

// WebhookShipper posts audit records to an HTTP endpoint, optionally batched.
type WebhookShipper struct {
	cfg       *WebhookConfig
	client    *http.Client
	queue     chan *LogEntry
	pending   []*LogEntry
	pendingMu sync.Mutex
	done      chan struct{}
	closeOnce sync.Once
}

// NewWebhookShipper builds the shipper and, when batching is configured,
// starts its flush loop.
func NewWebhookShipper(cfg *WebhookConfig) (*WebhookShipper, error) {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 10 * time.Second
	}

	ws := &WebhookShipper{
		cfg:     cfg,
		client:  &http.Client{Timeout: timeout},
		queue:   make(chan *LogEntry, 1000),
		pending: make([]*LogEntry, 0),
		done:    make(chan struct{}),
	}

	if cfg.BatchSize > 0 {
		go ws.flushLoop()
	}

	return ws, nil
}

// flushLoop drains the queue into the pending batch and flushes it when it
// fills, on a timer, and once more on close.
func (ws *WebhookShipper) flushLoop() {
	interval := ws.cfg.FlushInterval
	if interval == 0 {
		interval = 5 * time.Second
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case entry := <-ws.queue:
			ws.pendingMu.Lock()
			ws.pending = append(ws.pending, entry)
			if len(ws.pending) >= ws.cfg.BatchSize {
				ws.flushPending()
			}
			ws.pendingMu.Unlock()
		case <-ticker.C:
			ws.pendingMu.Lock()
			ws.flushPending()
			ws.pendingMu.Unlock()
		case <-ws.done:
			ws.pendingMu.Lock()
			ws.flushPending()
			ws.pendingMu.Unlock()
			return
		}
	}
}

// flushPending posts the accumulated batch. Callers hold pendingMu.
func (ws *WebhookShipper) flushPending() {
	if len(ws.pending) == 0 {
		return
	}

	data, err := json.Marshal(ws.pending)
	if err != nil {
		slog.Error("failed to marshal audit batch", "error", err)
		ws.pending = ws.pending[:0]
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), ws.cfg.Timeout)
	defer cancel()

	if err := ws.post(ctx, data); err != nil {
		slog.Error("failed to deliver audit batch", "error", err)
	}

	ws.pending = ws.pending[:0]
}

// Ship queues the entry when batching is on, posting directly if the queue is
// full or batching is off.
func (ws *WebhookShipper) Ship(ctx context.Context, entry *LogEntry) error {
	if ws.cfg.BatchSize > 0 {
		select {
		case ws.queue <- entry:
			return nil
		default:
		}
	}

	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to marshal audit entry: %w", err)
	}

	return ws.post(ctx, data)
}

func (ws *WebhookShipper) post(ctx context.Context, data []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, ws.cfg.URL, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	for k, v := range ws.cfg.Headers {
		req.Header.Set(k, v)
	}

	resp, err := ws.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send webhook: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}

	return nil
}

// Close stops the flush loop, which drains anything still pending. Safe to
// call more than once.
func (ws *WebhookShipper) Close() error {
	ws.closeOnce.Do(func() {
		close(ws.done)
	})
	return nil
}

// FileShipper appends audit records as JSON lines, rotating by size.
type FileShipper struct {
	cfg  *FileConfig
	file *os.File
	mu   sync.Mutex
}

func NewFileShipper(cfg *FileConfig) (*FileShipper, error) {
	file, err := os.OpenFile(cfg.Path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0600)
	if err != nil {
		return nil, fmt.Errorf("failed to open audit log file: %w", err)
	}
	return &FileShipper{cfg: cfg, file: file}, nil
}

// Ship appends the entry, rotating first when the file has grown past the
// configured limit.
func (fs *FileShipper) Ship(ctx context.Context, entry *LogEntry) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	if fs.cfg.MaxSizeMB > 0 {
		if info, err := fs.file.Stat(); err == nil && info.Size() > int64(fs.cfg.MaxSizeMB)*1024*1024 {
			if err := fs.rotate(); err != nil {
				slog.Error("failed to rotate audit log", "error", err)
			}
		}
	}

	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to marshal audit entry: %w", err)
	}

	if _, err := fs.file.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("failed to write audit entry: %w", err)
	}

	return nil
}

// rotate shifts path.N to path.N+1, moves the live file to path.1, and opens
// a fresh file. Callers hold mu.
func (fs *FileShipper) rotate() error {
	if err := fs.file.Close(); err != nil {
		return err
	}

	for i := fs.cfg.MaxBackups - 1; i >= 1; i-- {
		_ = os.Rename(
			fmt.Sprintf("%s.%d", fs.cfg.Path, i),
			fmt.Sprintf("%s.%d", fs.cfg.Path, i+1),
		)
	}
	_ = os.Rename(fs.cfg.Path, fs.cfg.Path+".1")

	if fs.cfg.MaxBackups > 0 {
		_ = os.Remove(fmt.Sprintf("%s.%d", fs.cfg.Path, fs.cfg.MaxBackups+1))
	}

	file, err := os.OpenFile(fs.cfg.Path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0600)
	if err != nil {
		return err
	}
	fs.file = file
	return nil
}

func (fs *FileShipper) Close() error {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	return fs.file.Close()
}
