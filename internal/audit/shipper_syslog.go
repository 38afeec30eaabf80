//go:build unix

package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"log/syslog"
	"sync"
)

// facilities maps config facility names to syslog priorities.
var facilities = map[string]syslog.Priority{
	"user":     syslog.LOG_USER,
	"daemon":   syslog.LOG_DAEMON,
	"auth":     syslog.LOG_AUTH,
	"authpriv": syslog.LOG_AUTHPRIV,
	"syslog":   syslog.LOG_SYSLOG,
	"local0":   syslog.LOG_LOCAL0,
	"local1":   syslog.LOG_LOCAL1,
	"local2":   syslog.LOG_LOCAL2,
	"local3":   syslog.LOG_LOCAL3,
	"local4":   syslog.LOG_LOCAL4,
	"local5":   syslog.LOG_LOCAL5,
	"local6":   syslog.LOG_LOCAL6,
	"local7":   syslog.LOG_LOCAL7,
}

// SyslogShipper writes each audit record to a syslog daemon as one JSON
// message at informational severity. An empty network and address use the
// local daemon.
type SyslogShipper struct {
	writer *syslog.Writer
	mu     sync.Mutex
}

// NewSyslogShipper connects to the configured syslog daemon. The facility
// defaults to local0 and the tag to the service name.
func NewSyslogShipper(cfg *SyslogConfig) (*SyslogShipper, error) {
	facility := syslog.LOG_LOCAL0
	if cfg.Facility != "" {
		f, ok := facilities[cfg.Facility]
		if !ok {
			return nil, fmt.Errorf("unknown syslog facility: %s", cfg.Facility)
		}
		facility = f
	}

	tag := cfg.Tag
	if tag == "" {
		tag = "tarim-backoffice-audit"
	}

	writer, err := syslog.Dial(cfg.Network, cfg.Address, facility|syslog.LOG_INFO, tag)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to syslog: %w", err)
	}

	return &SyslogShipper{writer: writer}, nil
}

// Ship writes the entry as a single JSON message.
func (ss *SyslogShipper) Ship(ctx context.Context, entry *LogEntry) error {
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to marshal audit entry: %w", err)
	}

	ss.mu.Lock()
	defer ss.mu.Unlock()

	if err := ss.writer.Info(string(data)); err != nil {
		return fmt.Errorf("failed to write audit entry to syslog: %w", err)
	}
	return nil
}

func (ss *SyslogShipper) Close() error {
	ss.mu.Lock()
	defer ss.mu.Unlock()
	return ss.writer.Close()
}
