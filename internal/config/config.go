package config

import (
	"path/filepath"
	"slices"
	"time"

	"grimm.is/halyard/internal/brand"
)

// CurrentSchemaVersion is the only schema version this build understands.
const CurrentSchemaVersion = "1.0"

// Backend names.
const (
	BackendDBus   = "dbus"
	BackendMemory = "memory"
)

// Config is the daemon configuration.
type Config struct {
	SchemaVersion string `hcl:"schema_version,optional" json:"schema_version,omitempty" validate:"omitempty,eq=1.0"`

	Listen   string `hcl:"listen,optional" json:"listen,omitempty" validate:"required,hostname_port"`
	LogLevel string `hcl:"log_level,optional" json:"log_level,omitempty" validate:"omitempty,oneof=debug info warn warning error"`
	LogJSON  bool   `hcl:"log_json,optional" json:"log_json,omitempty"`

	Backend string `hcl:"backend,optional" json:"backend,omitempty" validate:"required,oneof=dbus memory"`
	CertDir string `hcl:"cert_dir,optional" json:"cert_dir,omitempty" validate:"required"`
	StateDB string `hcl:"state_db,optional" json:"state_db,omitempty"`

	// UnmanagedDevices are hidden from every read path.
	UnmanagedDevices []string `hcl:"unmanaged_devices,optional" json:"unmanaged_devices,omitempty" validate:"dive,ifname"`
	// ManagedSoftwareDevices are listed even when the backend does not report
	// them, provided ModemEnableFile exists.
	ManagedSoftwareDevices []string `hcl:"managed_software_devices,optional" json:"managed_software_devices,omitempty" validate:"dive,ifname"`
	ModemEnableFile        string   `hcl:"modem_enable_file,optional" json:"modem_enable_file,omitempty"`
	// ReservedProfiles cannot be deleted or replaced. Matched by id or uuid.
	ReservedProfiles []string `hcl:"reserved_profiles,optional" json:"reserved_profiles,omitempty"`

	StatusRefresh  string `hcl:"status_refresh,optional" json:"status_refresh,omitempty" validate:"omitempty,duration"`
	ShellTimeout   string `hcl:"shell_timeout,optional" json:"shell_timeout,omitempty" validate:"omitempty,duration"`
	VerifyAttempts int    `hcl:"verify_attempts,optional" json:"verify_attempts,omitempty" validate:"gte=1,lte=100"`
	VerifyInterval string `hcl:"verify_interval,optional" json:"verify_interval,omitempty" validate:"omitempty,duration"`

	Wifi   *WifiConfig   `hcl:"wifi,block" json:"wifi,omitempty"`
	Syslog *SyslogConfig `hcl:"syslog,block" json:"syslog,omitempty"`
}

// SyslogConfig forwards the daemon log to a remote syslog server in addition
// to stderr.
type SyslogConfig struct {
	Host     string `hcl:"host" json:"host" validate:"required"`
	Port     int    `hcl:"port,optional" json:"port,omitempty" validate:"omitempty,gte=1,lte=65535"`
	Protocol string `hcl:"protocol,optional" json:"protocol,omitempty" validate:"omitempty,oneof=udp tcp"`
	Tag      string `hcl:"tag,optional" json:"tag,omitempty"`
}

// WifiConfig names the radio used for scans and AP+STA virtual interfaces.
type WifiConfig struct {
	Interface        string `hcl:"interface,optional" json:"interface,omitempty" validate:"omitempty,ifname"`
	VirtualInterface string `hcl:"virtual_interface,optional" json:"virtual_interface,omitempty" validate:"omitempty,ifname"`
	IWPath           string `hcl:"iw_path,optional" json:"iw_path,omitempty"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		SchemaVersion:          CurrentSchemaVersion,
		Listen:                 "127.0.0.1:8742",
		LogLevel:               "info",
		Backend:                BackendDBus,
		CertDir:                brand.DefaultCertDir,
		StateDB:                filepath.Join(brand.GetStateDir(), brand.LowerName+".db"),
		UnmanagedDevices:       []string{"lo"},
		ManagedSoftwareDevices: []string{},
		ModemEnableFile:        filepath.Join(brand.GetStateDir(), "modem-enable"),
		ReservedProfiles:       []string{},
		StatusRefresh:          "10s",
		ShellTimeout:           "5s",
		VerifyAttempts:         5,
		VerifyInterval:         "100ms",
		Wifi:                   DefaultWifi(),
	}
}

// DefaultWifi returns the default radio configuration.
func DefaultWifi() *WifiConfig {
	return &WifiConfig{
		Interface:        "wlan0",
		VirtualInterface: "wlan1",
		IWPath:           "/usr/sbin/iw",
	}
}

// IsUnmanaged reports whether iface is configured as unmanaged.
func (c *Config) IsUnmanaged(iface string) bool {
	return iface != "" && slices.Contains(c.UnmanagedDevices, iface)
}

// StatusRefreshInterval returns status_refresh, or its default when unset.
func (c *Config) StatusRefreshInterval() time.Duration {
	return durationOr(c.StatusRefresh, 10*time.Second)
}

// ShellTimeoutDuration returns shell_timeout, or its default when unset.
func (c *Config) ShellTimeoutDuration() time.Duration {
	return durationOr(c.ShellTimeout, 5*time.Second)
}

// VerifyIntervalDuration returns verify_interval, or its default when unset.
func (c *Config) VerifyIntervalDuration() time.Duration {
	return durationOr(c.VerifyInterval, 100*time.Millisecond)
}

func durationOr(s string, def time.Duration) time.Duration {
	if s == "" {
		return def
	}
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return def
	}
	return d
}
