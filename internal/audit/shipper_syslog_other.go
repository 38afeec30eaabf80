//go:build !unix

package audit

import "fmt"

// NewSyslogShipper fails on platforms where log/syslog is not implemented.
// A config that demands a destination we cannot reach is a startup error, not
// something to silently drop.
func NewSyslogShipper(cfg *SyslogConfig) (Shipper, error) {
	return nil, fmt.Errorf("syslog shipper is not supported on this platform")
}
