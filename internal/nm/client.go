package nm

import (
	"context"
	"errors"
	"fmt"

	"grimm.is/halyard/internal/logging"
)

// Client wraps a Backend with typed reads.
type Client struct {
	backend Backend
	log     *logging.Logger
}

// NewClient creates a Client over b.
func NewClient(b Backend) *Client {
	return &Client{backend: b, log: logging.WithComponent("nm")}
}

// Backend returns the underlying backend for writes and method calls.
func (c *Client) Backend() Backend {
	return c.backend
}

// Connection is a stored profile and its object path.
type Connection struct {
	Path     string
	Settings ConnectionSettings
}

// Connections reads every stored profile. Profiles that cannot be read are
// skipped and logged.
func (c *Client) Connections(ctx context.Context) ([]Connection, error) {
	paths, err := c.backend.ListConnections(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list connections: %w", err)
	}
	out := make([]Connection, 0, len(paths))
	for _, path := range paths {
		cs, err := c.backend.GetSettings(ctx, path)
		if err != nil {
			if errors.Is(err, ErrUnavailable) {
				return nil, err
			}
			c.log.Warn("unable to read connection settings", "path", path, "error", err)
			continue
		}
		out = append(out, Connection{Path: path, Settings: cs})
	}
	return out, nil
}

// Devices reads every device. Devices that disappear while being read are skipped.
func (c *Client) Devices(ctx context.Context) ([]Device, error) {
	paths, err := c.backend.GetDevices(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list devices: %w", err)
	}
	out := make([]Device, 0, len(paths))
	for _, path := range paths {
		d, err := c.Device(ctx, path)
		if err != nil {
			if errors.Is(err, ErrUnknownObject) {
				continue
			}
			return nil, err
		}
		out = append(out, d)
	}
	return out, nil
}

// Device reads one device.
func (c *Client) Device(ctx context.Context, path string) (Device, error) {
	p, err := c.backend.GetProperties(ctx, path, DeviceIface)
	if err != nil {
		return Device{}, fmt.Errorf("failed to read device %s: %w", path, err)
	}
	return DeviceFromProperties(path, p), nil
}

// Wired reads the wired sub-object of a device.
func (c *Client) Wired(ctx context.Context, path string) (WiredDevice, error) {
	p, err := c.backend.GetProperties(ctx, path, WiredIface)
	if err != nil {
		return WiredDevice{}, fmt.Errorf("failed to read wired properties of %s: %w", path, err)
	}
	return WiredFromProperties(p), nil
}

// Wireless reads the wireless sub-object of a device.
func (c *Client) Wireless(ctx context.Context, path string) (WirelessDevice, error) {
	p, err := c.backend.GetProperties(ctx, path, WirelessIface)
	if err != nil {
		return WirelessDevice{}, fmt.Errorf("failed to read wireless properties of %s: %w", path, err)
	}
	return WirelessFromProperties(p), nil
}

// AccessPoint reads one access point.
func (c *Client) AccessPoint(ctx context.Context, path string) (AccessPoint, error) {
	p, err := c.backend.GetProperties(ctx, path, AccessPointIface)
	if err != nil {
		return AccessPoint{}, fmt.Errorf("failed to read access point %s: %w", path, err)
	}
	return AccessPointFromProperties(path, p), nil
}

// AccessPoints reads the cached scan results of a wireless device. Access
// points that expire while being read are skipped.
func (c *Client) AccessPoints(ctx context.Context, devicePath string) ([]AccessPoint, error) {
	w, err := c.Wireless(ctx, devicePath)
	if err != nil {
		return nil, err
	}
	out := make([]AccessPoint, 0, len(w.AccessPoints))
	for _, path := range w.AccessPoints {
		ap, err := c.AccessPoint(ctx, path)
		if err != nil {
			if errors.Is(err, ErrUnknownObject) {
				continue
			}
			return nil, err
		}
		out = append(out, ap)
	}
	return out, nil
}

// ActiveConnectionPaths lists the active-connection object paths.
func (c *Client) ActiveConnectionPaths(ctx context.Context) ([]string, error) {
	p, err := c.backend.GetProperties(ctx, ManagerPath, ManagerIface)
	if err != nil {
		return nil, fmt.Errorf("failed to read manager properties: %w", err)
	}
	return p.Strings("ActiveConnections"), nil
}

// ActiveConnection reads one active connection.
func (c *Client) ActiveConnection(ctx context.Context, path string) (ActiveConnection, error) {
	p, err := c.backend.GetProperties(ctx, path, ActiveConnectionIface)
	if err != nil {
		return ActiveConnection{}, fmt.Errorf("failed to read active connection %s: %w", path, err)
	}
	return ActiveConnectionFromProperties(path, p), nil
}

// ActiveConnections reads every active connection, skipping ones that
// deactivate while being read.
func (c *Client) ActiveConnections(ctx context.Context) ([]ActiveConnection, error) {
	paths, err := c.ActiveConnectionPaths(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]ActiveConnection, 0, len(paths))
	for _, path := range paths {
		ac, err := c.ActiveConnection(ctx, path)
		if err != nil {
			if errors.Is(err, ErrUnknownObject) {
				continue
			}
			return nil, err
		}
		out = append(out, ac)
	}
	return out, nil
}

// ActiveConnectionByUUID finds the active connection of a profile.
func (c *Client) ActiveConnectionByUUID(ctx context.Context, uuid string) (ActiveConnection, bool, error) {
	acs, err := c.ActiveConnections(ctx)
	if err != nil {
		return ActiveConnection{}, false, err
	}
	for _, ac := range acs {
		if ac.UUID == uuid {
			return ac, true, nil
		}
	}
	return ActiveConnection{}, false, nil
}

// IPConfig reads an IP4Config or IP6Config object.
func (c *Client) IPConfig(ctx context.Context, path string, v6 bool) (IPConfig, error) {
	iface := IP4ConfigIface
	if v6 {
		iface = IP6ConfigIface
	}
	p, err := c.backend.GetProperties(ctx, path, iface)
	if err != nil {
		return IPConfig{}, fmt.Errorf("failed to read ip config %s: %w", path, err)
	}
	return IPConfigFromProperties(p, v6), nil
}

// DHCPConfig reads a DHCP4Config or DHCP6Config object.
func (c *Client) DHCPConfig(ctx context.Context, path string, v6 bool) (DHCPConfig, error) {
	iface := DHCP4ConfigIface
	if v6 {
		iface = DHCP6ConfigIface
	}
	p, err := c.backend.GetProperties(ctx, path, iface)
	if err != nil {
		return DHCPConfig{}, fmt.Errorf("failed to read dhcp config %s: %w", path, err)
	}
	return DHCPConfigFromProperties(p), nil
}
