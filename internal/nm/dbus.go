package nm

import (
	"context"
	"errors"
	"fmt"

	"github.com/godbus/dbus/v5"
)

const propertiesIface = "org.freedesktop.DBus.Properties"

// DBusBackend implements Backend against NetworkManager on the system bus.
type DBusBackend struct {
	conn *dbus.Conn
}

// DialSystemBus connects to the system bus.
func DialSystemBus(ctx context.Context) (*DBusBackend, error) {
	conn, err := dbus.ConnectSystemBus(dbus.WithContext(ctx))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to system bus: %w: %w", ErrUnavailable, err)
	}
	return &DBusBackend{conn: conn}, nil
}

// Close closes the bus connection.
func (b *DBusBackend) Close() error {
	return b.conn.Close()
}

func (b *DBusBackend) call(ctx context.Context, path, method string, out []any, args ...any) error {
	obj := b.conn.Object(BusName, dbus.ObjectPath(path))
	call := obj.CallWithContext(ctx, method, 0, args...)
	if call.Err != nil {
		return classify(method, call.Err)
	}
	if len(out) == 0 {
		return nil
	}
	if err := call.Store(out...); err != nil {
		return fmt.Errorf("%s: failed to decode reply: %w", method, err)
	}
	return nil
}

// classify maps bus errors onto the package sentinels.
func classify(method string, err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%s: %w", method, err)
	}
	name := ""
	var dv dbus.Error
	var dp *dbus.Error
	switch {
	case errors.As(err, &dp):
		name = dp.Name
	case errors.As(err, &dv):
		name = dv.Name
	default:
		return fmt.Errorf("%s: %w: %w", method, ErrUnavailable, err)
	}
	switch name {
	case "org.freedesktop.DBus.Error.UnknownObject",
		"org.freedesktop.DBus.Error.UnknownInterface",
		"org.freedesktop.DBus.Error.UnknownMethod",
		"org.freedesktop.NetworkManager.Settings.InvalidConnection",
		"org.freedesktop.NetworkManager.ConnectionNotActive":
		return fmt.Errorf("%s: %w: %w", method, ErrUnknownObject, err)
	case "org.freedesktop.DBus.Error.ServiceUnknown",
		"org.freedesktop.DBus.Error.NameHasNoOwner",
		"org.freedesktop.DBus.Error.NoReply",
		"org.freedesktop.DBus.Error.Disconnected",
		"org.freedesktop.DBus.Error.Timeout":
		return fmt.Errorf("%s: %w: %w", method, ErrUnavailable, err)
	}
	return fmt.Errorf("%s: %w", method, err)
}

// GetProperties implements Backend.
func (b *DBusBackend) GetProperties(ctx context.Context, path, iface string) (Properties, error) {
	var raw map[string]dbus.Variant
	if err := b.call(ctx, path, propertiesIface+".GetAll", []any{&raw}, iface); err != nil {
		return nil, err
	}
	out := make(Properties, len(raw))
	for k, v := range raw {
		out[k] = fromDBus(v)
	}
	return out, nil
}

// SetProperty implements Backend.
func (b *DBusBackend) SetProperty(ctx context.Context, path, iface, name string, value Variant) error {
	return b.call(ctx, path, propertiesIface+".Set", nil, iface, name, toDBus(value))
}

// ListConnections implements Backend.
func (b *DBusBackend) ListConnections(ctx context.Context) ([]string, error) {
	var paths []dbus.ObjectPath
	if err := b.call(ctx, SettingsPath, SettingsIface+".ListConnections", []any{&paths}); err != nil {
		return nil, err
	}
	return pathsIn(paths), nil
}

// GetSettings implements Backend.
func (b *DBusBackend) GetSettings(ctx context.Context, path string) (ConnectionSettings, error) {
	var raw map[string]map[string]dbus.Variant
	if err := b.call(ctx, path, SettingsConnectionIface+".GetSettings", []any{&raw}); err != nil {
		return nil, err
	}
	return settingsIn(raw), nil
}

// GetSecrets implements Backend.
func (b *DBusBackend) GetSecrets(ctx context.Context, path, group string) (ConnectionSettings, error) {
	var raw map[string]map[string]dbus.Variant
	if err := b.call(ctx, path, SettingsConnectionIface+".GetSecrets", []any{&raw}, group); err != nil {
		return nil, err
	}
	return settingsIn(raw), nil
}

// AddConnection implements Backend.
func (b *DBusBackend) AddConnection(ctx context.Context, settings ConnectionSettings) (string, error) {
	var path dbus.ObjectPath
	if err := b.call(ctx, SettingsPath, SettingsIface+".AddConnection", []any{&path}, settingsOut(settings)); err != nil {
		return "", err
	}
	return string(path), nil
}

// UpdateConnection implements Backend.
func (b *DBusBackend) UpdateConnection(ctx context.Context, path string, settings ConnectionSettings) error {
	return b.call(ctx, path, SettingsConnectionIface+".Update", nil, settingsOut(settings))
}

// DeleteConnection implements Backend.
func (b *DBusBackend) DeleteConnection(ctx context.Context, path string) error {
	return b.call(ctx, path, SettingsConnectionIface+".Delete", nil)
}

// ReloadConnections implements Backend.
func (b *DBusBackend) ReloadConnections(ctx context.Context) error {
	var ok bool
	if err := b.call(ctx, SettingsPath, SettingsIface+".ReloadConnections", []any{&ok}); err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("reload connections was refused")
	}
	return nil
}

// GetDevices implements Backend.
func (b *DBusBackend) GetDevices(ctx context.Context) ([]string, error) {
	var paths []dbus.ObjectPath
	if err := b.call(ctx, ManagerPath, ManagerIface+".GetAllDevices", []any{&paths}); err != nil {
		return nil, err
	}
	return pathsIn(paths), nil
}

// ActivateConnection implements Backend.
func (b *DBusBackend) ActivateConnection(ctx context.Context, connection, device, specificObject string) (string, error) {
	if device == "" {
		device = RootPath
	}
	if specificObject == "" {
		specificObject = RootPath
	}
	var active dbus.ObjectPath
	err := b.call(ctx, ManagerPath, ManagerIface+".ActivateConnection", []any{&active},
		dbus.ObjectPath(connection), dbus.ObjectPath(device), dbus.ObjectPath(specificObject))
	if err != nil {
		return "", err
	}
	return string(active), nil
}

// DeactivateConnection implements Backend.
func (b *DBusBackend) DeactivateConnection(ctx context.Context, active string) error {
	return b.call(ctx, ManagerPath, ManagerIface+".DeactivateConnection", nil, dbus.ObjectPath(active))
}

// RequestScan implements Backend.
func (b *DBusBackend) RequestScan(ctx context.Context, device string) error {
	return b.call(ctx, device, WirelessIface+".RequestScan", nil, map[string]dbus.Variant{})
}

func pathsIn(paths []dbus.ObjectPath) []string {
	out := make([]string, len(paths))
	for i, p := range paths {
		out[i] = string(p)
	}
	return out
}

func settingsIn(raw map[string]map[string]dbus.Variant) ConnectionSettings {
	out := make(ConnectionSettings, len(raw))
	for group, props := range raw {
		g := make(map[string]Variant, len(props))
		for k, v := range props {
			g[k] = fromDBus(v)
		}
		out[group] = g
	}
	return out
}

func settingsOut(cs ConnectionSettings) map[string]map[string]dbus.Variant {
	out := make(map[string]map[string]dbus.Variant, len(cs))
	for group, props := range cs {
		g := make(map[string]dbus.Variant, len(props))
		for k, v := range props {
			g[k] = toDBus(v)
		}
		out[group] = g
	}
	return out
}

func fromDBus(v dbus.Variant) Variant {
	return Variant{Sig: v.Signature().String(), Value: valueIn(v.Value())}
}

func valueIn(x any) any {
	switch val := x.(type) {
	case dbus.ObjectPath:
		return string(val)
	case []dbus.ObjectPath:
		return pathsIn(val)
	case dbus.Variant:
		return fromDBus(val)
	case map[string]dbus.Variant:
		out := make(map[string]Variant, len(val))
		for k, item := range val {
			out[k] = fromDBus(item)
		}
		return out
	case []map[string]dbus.Variant:
		out := make([]map[string]Variant, len(val))
		for i, d := range val {
			m := make(map[string]Variant, len(d))
			for k, item := range d {
				m[k] = fromDBus(item)
			}
			out[i] = m
		}
		return out
	case []any:
		// Structs such as StateReason (uu) arrive as []any.
		nums := make([]uint32, 0, len(val))
		for _, item := range val {
			n, ok := item.(uint32)
			if !ok {
				return val
			}
			nums = append(nums, n)
		}
		return nums
	default:
		return x
	}
}

func toDBus(v Variant) dbus.Variant {
	value := valueOut(v.Sig, v.Value)
	sig, err := dbus.ParseSignature(v.Sig)
	if err != nil {
		return dbus.MakeVariant(value)
	}
	return dbus.MakeVariantWithSignature(value, sig)
}

func valueOut(sig string, x any) any {
	switch val := x.(type) {
	case string:
		if sig == SigObjectPath {
			return dbus.ObjectPath(val)
		}
		return val
	case []string:
		if sig == SigObjectPaths {
			out := make([]dbus.ObjectPath, len(val))
			for i, p := range val {
				out[i] = dbus.ObjectPath(p)
			}
			return out
		}
		return val
	case Variant:
		return toDBus(val)
	case map[string]Variant:
		out := make(map[string]dbus.Variant, len(val))
		for k, item := range val {
			out[k] = toDBus(item)
		}
		return out
	case []map[string]Variant:
		out := make([]map[string]dbus.Variant, len(val))
		for i, d := range val {
			m := make(map[string]dbus.Variant, len(d))
			for k, item := range d {
				m[k] = toDBus(item)
			}
			out[i] = m
		}
		return out
	default:
		return x
	}
}

var _ Backend = (*DBusBackend)(nil)
