package nm

import (
	"context"
	"errors"
)

// Well-known bus names, object paths and interfaces.
const (
	BusName      = "org.freedesktop.NetworkManager"
	ManagerPath  = "/org/freedesktop/NetworkManager"
	ManagerIface = "org.freedesktop.NetworkManager"
	SettingsPath = "/org/freedesktop/NetworkManager/Settings"

	SettingsIface           = "org.freedesktop.NetworkManager.Settings"
	SettingsConnectionIface = "org.freedesktop.NetworkManager.Settings.Connection"
	DeviceIface             = "org.freedesktop.NetworkManager.Device"
	WiredIface              = "org.freedesktop.NetworkManager.Device.Wired"
	WirelessIface           = "org.freedesktop.NetworkManager.Device.Wireless"
	ActiveConnectionIface   = "org.freedesktop.NetworkManager.Connection.Active"
	IP4ConfigIface          = "org.freedesktop.NetworkManager.IP4Config"
	IP6ConfigIface          = "org.freedesktop.NetworkManager.IP6Config"
	DHCP4ConfigIface        = "org.freedesktop.NetworkManager.DHCP4Config"
	DHCP6ConfigIface        = "org.freedesktop.NetworkManager.DHCP6Config"
	AccessPointIface        = "org.freedesktop.NetworkManager.AccessPoint"

	// RootPath is the "no object" path; passed as the device for
	// device-independent activations such as bridges.
	RootPath = "/"
)

var (
	// ErrUnavailable is returned (wrapped) when the backend cannot be reached.
	ErrUnavailable = errors.New("connection manager unavailable")
	// ErrUnknownObject is returned (wrapped) for object paths that do not exist.
	ErrUnknownObject = errors.New("unknown object")
)

// Backend is the object/property contract of the connection manager. All
// methods are safe for concurrent use.
type Backend interface {
	// GetProperties returns every property of iface on the object at path.
	GetProperties(ctx context.Context, path, iface string) (Properties, error)
	// SetProperty writes one property.
	SetProperty(ctx context.Context, path, iface, name string, value Variant) error

	// ListConnections enumerates all stored profile object paths.
	ListConnections(ctx context.Context) ([]string, error)
	// GetSettings returns the stored settings of a profile without secrets.
	GetSettings(ctx context.Context, path string) (ConnectionSettings, error)
	// GetSecrets returns the secrets of one setting group of a profile.
	GetSecrets(ctx context.Context, path, group string) (ConnectionSettings, error)
	// AddConnection persists a new profile and returns its object path.
	AddConnection(ctx context.Context, settings ConnectionSettings) (string, error)
	// UpdateConnection replaces the stored settings of a profile.
	UpdateConnection(ctx context.Context, path string, settings ConnectionSettings) error
	// DeleteConnection removes a profile.
	DeleteConnection(ctx context.Context, path string) error
	// ReloadConnections asks the backend to re-read profiles from disk.
	ReloadConnections(ctx context.Context) error

	// GetDevices enumerates all device object paths.
	GetDevices(ctx context.Context) ([]string, error)
	// ActivateConnection binds a profile to a device and returns the
	// active-connection object path.
	ActivateConnection(ctx context.Context, connection, device, specificObject string) (string, error)
	// DeactivateConnection tears down an active connection.
	DeactivateConnection(ctx context.Context, active string) error
	// RequestScan asks a wireless device to scan. It returns before the scan completes.
	RequestScan(ctx context.Context, device string) error
}
