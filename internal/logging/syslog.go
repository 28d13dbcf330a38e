package logging

import (
	"fmt"
	"net"
	"os"
	"sync"
	"time"

	"grimm.is/halyard/internal/brand"
)

// SyslogConfig describes an optional RFC 3164 syslog sink.
type SyslogConfig struct {
	Host     string
	Port     int
	Protocol string // udp or tcp
	Tag      string
	Facility int
}

func (c *SyslogConfig) normalize() {
	if c.Port == 0 {
		c.Port = 514
	}
	if c.Protocol == "" {
		c.Protocol = "udp"
	}
	if c.Tag == "" {
		c.Tag = brand.LowerName
	}
	if c.Facility == 0 {
		c.Facility = 3 // daemon
	}
}

// SyslogWriter is an io.Writer that forwards each write as one syslog message.
type SyslogWriter struct {
	mu       sync.Mutex
	conn     net.Conn
	cfg      SyslogConfig
	hostname string
}

// NewSyslogWriter dials the configured server.
func NewSyslogWriter(cfg SyslogConfig) (*SyslogWriter, error) {
	if cfg.Host == "" {
		return nil, fmt.Errorf("syslog host is required")
	}
	cfg.normalize()

	hostname, err := os.Hostname()
	if err != nil || hostname == "" {
		hostname = brand.LowerName
	}

	w := &SyslogWriter{cfg: cfg, hostname: hostname}
	if err := w.dial(); err != nil {
		return nil, err
	}
	return w, nil
}

func (w *SyslogWriter) dial() error {
	addr := net.JoinHostPort(w.cfg.Host, fmt.Sprint(w.cfg.Port))
	conn, err := net.DialTimeout(w.cfg.Protocol, addr, 5*time.Second)
	if err != nil {
		return fmt.Errorf("failed to connect to syslog server %s: %w", addr, err)
	}
	w.conn = conn
	return nil
}

// Write implements io.Writer. Severity is fixed at informational.
func (w *SyslogWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.conn == nil {
		if err := w.dial(); err != nil {
			return 0, err
		}
	}

	priority := w.cfg.Facility*8 + 6
	msg := fmt.Sprintf("<%d>%s %s %s: %s", priority, time.Now().Format(time.Stamp), w.hostname, w.cfg.Tag, p)
	if _, err := w.conn.Write([]byte(msg)); err != nil {
		w.conn.Close()
		w.conn = nil
		return 0, err
	}
	return len(p), nil
}

// Close closes the syslog connection.
func (w *SyslogWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.conn == nil {
		return nil
	}
	err := w.conn.Close()
	w.conn = nil
	return err
}
