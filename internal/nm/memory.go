package nm

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"
)

// Valid ipv4/ipv6 methods, as the backend enforces them on add.
var (
	ipv4Methods = []string{"auto", "manual", "link-local", "shared", "disabled"}
	ipv6Methods = []string{"auto", "dhcp", "manual", "link-local", "shared", "ignore", "disabled"}
)

// DeviceSpec describes a device registered with a MemoryBackend.
type DeviceSpec struct {
	Interface       string
	Type            DeviceType
	Driver          string
	DriverVersion   string
	FirmwareVersion string
	HwAddress       string
	Mtu             uint32
	Unmanaged       bool
	Speed           uint32
	Carrier         bool
}

// AccessPointSpec describes a scan result registered with a MemoryBackend.
type AccessPointSpec struct {
	SSID       string
	HwAddress  string
	Strength   uint8
	Frequency  uint32
	MaxBitrate uint32
	Mode       WifiMode
	Flags      uint32
	WpaFlags   uint32
	RsnFlags   uint32
	LastSeen   int32
}

// MemoryBackend is an in-process model of the connection manager. It keeps
// profiles, devices, active connections and access points in memory and
// applies the same basic validation the real service applies on add.
type MemoryBackend struct {
	mu sync.Mutex

	seq         int
	connections map[string]ConnectionSettings
	connOrder   []string
	devices     []string
	active      []string
	objects     map[string]map[string]Properties

	addHook     func(ConnectionSettings) error
	unavailable bool
	scans       int
	reloads     int
}

// NewMemoryBackend creates an empty MemoryBackend.
func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{
		connections: make(map[string]ConnectionSettings),
		objects:     make(map[string]map[string]Properties),
	}
}

func (m *MemoryBackend) nextPath(kind string) string {
	m.seq++
	return fmt.Sprintf("%s/%s/%d", ManagerPath, kind, m.seq)
}

func (m *MemoryBackend) check(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if m.unavailable {
		return ErrUnavailable
	}
	return nil
}

// SetAddHook installs a function consulted before every AddConnection. A
// non-nil error from the hook fails the add.
func (m *MemoryBackend) SetAddHook(hook func(ConnectionSettings) error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.addHook = hook
}

// SetUnavailable makes every call fail with ErrUnavailable.
func (m *MemoryBackend) SetUnavailable(down bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.unavailable = down
}

// ScanRequests returns how many scans were requested.
func (m *MemoryBackend) ScanRequests() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.scans
}

// Reloads returns how many times ReloadConnections was called.
func (m *MemoryBackend) Reloads() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.reloads
}

// AddDevice registers a device and returns its object path.
func (m *MemoryBackend) AddDevice(spec DeviceSpec) string {
	m.mu.Lock()
	defer m.mu.Unlock()

	path := m.nextPath("Devices")
	state := DeviceStateDisconnected
	if spec.Unmanaged {
		state = DeviceStateUnmanaged
	}
	mtu := spec.Mtu
	if mtu == 0 {
		mtu = 1500
	}
	m.objects[path] = map[string]Properties{
		DeviceIface: {
			"Interface":        String(spec.Interface),
			"IpInterface":      String(""),
			"Udi":              String("/sys/devices/virtual/net/" + spec.Interface),
			"Driver":           String(spec.Driver),
			"DriverVersion":    String(spec.DriverVersion),
			"FirmwareVersion":  String(spec.FirmwareVersion),
			"HwAddress":        String(spec.HwAddress),
			"DeviceType":       Uint32(uint32(spec.Type)),
			"State":            Uint32(uint32(state)),
			"StateReason":      Variant{"(uu)", []uint32{uint32(state), 0}},
			"Mtu":              Uint32(mtu),
			"Managed":          Bool(!spec.Unmanaged),
			"Autoconnect":      Bool(true),
			"Real":             Bool(true),
			"Metered":          Uint32(0),
			"Capabilities":     Uint32(0x7),
			"InterfaceFlags":   Uint32(0x10001),
			"ActiveConnection": ObjectPath(RootPath),
			"Ip4Config":        ObjectPath(RootPath),
			"Ip6Config":        ObjectPath(RootPath),
			"Dhcp4Config":      ObjectPath(RootPath),
			"Dhcp6Config":      ObjectPath(RootPath),
			"Ip4Connectivity":  Uint32(0),
			"Ip6Connectivity":  Uint32(0),
		},
	}
	switch spec.Type {
	case DeviceTypeEthernet:
		m.objects[path][WiredIface] = Properties{
			"HwAddress":     String(spec.HwAddress),
			"PermHwAddress": String(spec.HwAddress),
			"Speed":         Uint32(spec.Speed),
			"Carrier":       Bool(spec.Carrier),
		}
	case DeviceTypeWifi:
		m.objects[path][WirelessIface] = Properties{
			"HwAddress":         String(spec.HwAddress),
			"PermHwAddress":     String(spec.HwAddress),
			"Mode":              Uint32(uint32(WifiModeInfra)),
			"Bitrate":           Uint32(0),
			"ActiveAccessPoint": ObjectPath(RootPath),
			"AccessPoints":      ObjectPaths([]string{}),
			"LastScan":          Int64(-1),
		}
	}
	m.devices = append(m.devices, path)
	return path
}

// RemoveDevice unregisters a device, tearing down its active connection.
func (m *MemoryBackend) RemoveDevice(path string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if dev, ok := m.objects[path]; ok {
		if ac := dev[DeviceIface].ObjectPath("ActiveConnection"); ac != "" {
			m.deactivateLocked(ac)
		}
	}
	delete(m.objects, path)
	m.devices = slices.DeleteFunc(m.devices, func(p string) bool { return p == path })
}

// AddAccessPoint registers a scan result on a wireless device.
func (m *MemoryBackend) AddAccessPoint(device string, spec AccessPointSpec) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	wireless, ok := m.objects[device][WirelessIface]
	if !ok {
		return "", fmt.Errorf("device %s is not wireless: %w", device, ErrUnknownObject)
	}
	path := m.nextPath("AccessPoint")
	m.objects[path] = map[string]Properties{
		AccessPointIface: {
			"Ssid":       Bytes([]byte(spec.SSID)),
			"HwAddress":  String(spec.HwAddress),
			"Strength":   Variant{SigByte, spec.Strength},
			"Frequency":  Uint32(spec.Frequency),
			"MaxBitrate": Uint32(spec.MaxBitrate),
			"Mode":       Uint32(uint32(spec.Mode)),
			"Flags":      Uint32(spec.Flags),
			"WpaFlags":   Uint32(spec.WpaFlags),
			"RsnFlags":   Uint32(spec.RsnFlags),
			"LastSeen":   Int32(spec.LastSeen),
		},
	}
	aps := append(slices.Clone(wireless.Strings("AccessPoints")), path)
	wireless["AccessPoints"] = ObjectPaths(aps)
	return path, nil
}

// GetProperties implements Backend.
func (m *MemoryBackend) GetProperties(ctx context.Context, path, iface string) (Properties, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.check(ctx); err != nil {
		return nil, err
	}

	switch {
	case path == ManagerPath && iface == ManagerIface:
		return Properties{
			"ActiveConnections": ObjectPaths(slices.Clone(m.active)),
			"Devices":           ObjectPaths(slices.Clone(m.devices)),
		}, nil
	case path == SettingsPath && iface == SettingsIface:
		return Properties{"Connections": ObjectPaths(slices.Clone(m.connOrder))}, nil
	}

	obj, ok := m.objects[path]
	if !ok {
		return nil, fmt.Errorf("%s: %w", path, ErrUnknownObject)
	}
	props, ok := obj[iface]
	if !ok {
		return nil, fmt.Errorf("%s has no interface %s: %w", path, iface, ErrUnknownObject)
	}
	out := make(Properties, len(props)+1)
	for k, v := range props {
		out[k] = v.Clone()
	}
	if iface == DeviceIface {
		out["AvailableConnections"] = ObjectPaths(m.availableLocked(props))
	}
	return out, nil
}

// availableLocked lists profiles bound to the device's interface name.
func (m *MemoryBackend) availableLocked(dev Properties) []string {
	name := dev.String("Interface")
	var out []string
	for _, path := range m.connOrder {
		if ifname, _ := m.connections[path]["connection"]["interface-name"].Value.(string); ifname == name {
			out = append(out, path)
		}
	}
	return out
}

// SetProperty implements Backend.
func (m *MemoryBackend) SetProperty(ctx context.Context, path, iface, name string, value Variant) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.check(ctx); err != nil {
		return err
	}
	props, ok := m.objects[path][iface]
	if !ok {
		return fmt.Errorf("%s %s: %w", path, iface, ErrUnknownObject)
	}
	props[name] = value.Clone()
	return nil
}

// ListConnections implements Backend.
func (m *MemoryBackend) ListConnections(ctx context.Context) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.check(ctx); err != nil {
		return nil, err
	}
	return slices.Clone(m.connOrder), nil
}

// GetSettings implements Backend.
func (m *MemoryBackend) GetSettings(ctx context.Context, path string) (ConnectionSettings, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.check(ctx); err != nil {
		return nil, err
	}
	cs, ok := m.connections[path]
	if !ok {
		return nil, fmt.Errorf("connection %s: %w", path, ErrUnknownObject)
	}
	return StripSecrets(cs), nil
}

// GetSecrets implements Backend.
func (m *MemoryBackend) GetSecrets(ctx context.Context, path, group string) (ConnectionSettings, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.check(ctx); err != nil {
		return nil, err
	}
	cs, ok := m.connections[path]
	if !ok {
		return nil, fmt.Errorf("connection %s: %w", path, ErrUnknownObject)
	}
	return OnlySecrets(cs, group), nil
}

// validate applies the checks the real service performs on stored settings.
func (m *MemoryBackend) validate(cs ConnectionSettings, self string) error {
	conn, ok := cs["connection"]
	if !ok {
		return fmt.Errorf("connection.type: setting is required")
	}
	id, _ := conn["id"].Value.(string)
	if id == "" {
		return fmt.Errorf("connection.id: property is missing")
	}
	typ, _ := conn["type"].Value.(string)
	if typ == "" {
		return fmt.Errorf("connection.type: property is missing")
	}
	uuid, _ := conn["uuid"].Value.(string)
	if uuid == "" {
		return fmt.Errorf("connection.uuid: property is missing")
	}
	for path, other := range m.connections {
		if path == self {
			continue
		}
		if u, _ := other["connection"]["uuid"].Value.(string); u == uuid {
			return fmt.Errorf("connection.uuid: a connection with uuid %q already exists", uuid)
		}
	}
	if method, ok := cs["ipv4"]["method"].Value.(string); ok && !slices.Contains(ipv4Methods, method) {
		return fmt.Errorf("ipv4.method: property is invalid: %q", method)
	}
	if method, ok := cs["ipv6"]["method"].Value.(string); ok && !slices.Contains(ipv6Methods, method) {
		return fmt.Errorf("ipv6.method: property is invalid: %q", method)
	}
	if typ == "802-11-wireless" {
		if ssid, _ := cs["802-11-wireless"]["ssid"].Value.([]byte); len(ssid) == 0 {
			return fmt.Errorf("802-11-wireless.ssid: property is missing")
		}
	}
	return nil
}

// AddConnection implements Backend.
func (m *MemoryBackend) AddConnection(ctx context.Context, settings ConnectionSettings) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.check(ctx); err != nil {
		return "", err
	}
	if m.addHook != nil {
		if err := m.addHook(settings.Clone()); err != nil {
			return "", err
		}
	}
	if err := m.validate(settings, ""); err != nil {
		return "", err
	}
	path := m.nextPath("Settings")
	m.connections[path] = settings.Clone()
	m.connOrder = append(m.connOrder, path)
	return path, nil
}

// UpdateConnection implements Backend. The stored settings are replaced as a whole.
func (m *MemoryBackend) UpdateConnection(ctx context.Context, path string, settings ConnectionSettings) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.check(ctx); err != nil {
		return err
	}
	if _, ok := m.connections[path]; !ok {
		return fmt.Errorf("connection %s: %w", path, ErrUnknownObject)
	}
	if err := m.validate(settings, path); err != nil {
		return err
	}
	m.connections[path] = settings.Clone()
	return nil
}

// DeleteConnection implements Backend.
func (m *MemoryBackend) DeleteConnection(ctx context.Context, path string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.check(ctx); err != nil {
		return err
	}
	if _, ok := m.connections[path]; !ok {
		return fmt.Errorf("connection %s: %w", path, ErrUnknownObject)
	}
	for _, ac := range slices.Clone(m.active) {
		if m.objects[ac][ActiveConnectionIface].String("Connection") == path {
			m.deactivateLocked(ac)
		}
	}
	delete(m.connections, path)
	m.connOrder = slices.DeleteFunc(m.connOrder, func(p string) bool { return p == path })
	return nil
}

// ReloadConnections implements Backend.
func (m *MemoryBackend) ReloadConnections(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.check(ctx); err != nil {
		return err
	}
	m.reloads++
	return nil
}

// GetDevices implements Backend.
func (m *MemoryBackend) GetDevices(ctx context.Context) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.check(ctx); err != nil {
		return nil, err
	}
	return slices.Clone(m.devices), nil
}

// ActivateConnection implements Backend. Any connection already active on
// the device is torn down first.
func (m *MemoryBackend) ActivateConnection(ctx context.Context, connection, device, specificObject string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.check(ctx); err != nil {
		return "", err
	}
	cs, ok := m.connections[connection]
	if !ok {
		return "", fmt.Errorf("connection %s: %w", connection, ErrUnknownObject)
	}

	var dev Properties
	devices := []string{}
	if device != RootPath && device != "" {
		obj, ok := m.objects[device]
		if !ok {
			return "", fmt.Errorf("device %s: %w", device, ErrUnknownObject)
		}
		dev = obj[DeviceIface]
		if !dev.Bool("Managed") {
			return "", fmt.Errorf("device %s is not managed", dev.String("Interface"))
		}
		if prev := dev.ObjectPath("ActiveConnection"); prev != "" {
			m.deactivateLocked(prev)
		}
		devices = append(devices, device)
	}

	conn := cs["connection"]
	ipv4 := cs["ipv4"]
	method, _ := ipv4["method"].Value.(string)
	gateway, _ := ipv4["gateway"].Value.(string)

	ip4Path := m.nextPath("IP4Config")
	ip4 := Properties{
		"Gateway":   String(gateway),
		"Domains":   Strings([]string{}),
		"RouteData": Dicts(nil),
	}
	if ad, ok := ipv4["address-data"].Value.([]map[string]Variant); ok && len(ad) > 0 {
		ip4["AddressData"] = Dicts(ad).Clone()
	} else {
		ip4["AddressData"] = Dicts(AddressesToDicts([]Address{{Address: fmt.Sprintf("10.0.0.%d", 100+m.seq%100), Prefix: 24}}))
	}
	if rd, ok := ipv4["route-data"].Value.([]map[string]Variant); ok {
		ip4["RouteData"] = Dicts(rd).Clone()
	}
	var servers []map[string]Variant
	dns, _ := ipv4["dns"].Value.([]uint32)
	for _, u := range dns {
		servers = append(servers, map[string]Variant{"address": String(Uint32ToIP4(u).String())})
	}
	ip4["NameserverData"] = Dicts(servers)
	if search, ok := ipv4["dns-search"].Value.([]string); ok {
		ip4["Domains"] = Strings(slices.Clone(search))
	}
	m.objects[ip4Path] = map[string]Properties{IP4ConfigIface: ip4}

	dhcp4Path := RootPath
	if method == "" || method == "auto" {
		dhcp4Path = m.nextPath("DHCP4Config")
		addr := AddressesFromDicts(ip4.Dicts("AddressData"))[0]
		m.objects[dhcp4Path] = map[string]Properties{
			DHCP4ConfigIface: {"Options": Dict(map[string]Variant{
				"ip_address":  String(addr.Address),
				"subnet_mask": String("255.255.255.0"),
				"routers":     String(gateway),
			})},
		}
	}

	id, _ := conn["id"].Value.(string)
	uuid, _ := conn["uuid"].Value.(string)
	typ, _ := conn["type"].Value.(string)
	master := RootPath
	if mp, ok := conn["master"].Value.(string); ok && mp != "" {
		master = mp
	}
	if specificObject == "" {
		specificObject = RootPath
	}

	acPath := m.nextPath("ActiveConnection")
	m.objects[acPath] = map[string]Properties{
		ActiveConnectionIface: {
			"Id":             String(id),
			"Uuid":           String(uuid),
			"Type":           String(typ),
			"Devices":        ObjectPaths(devices),
			"State":          Uint32(uint32(ActiveStateActivated)),
			"Default":        Bool(gateway != ""),
			"Default6":       Bool(false),
			"Vpn":            Bool(false),
			"SpecificObject": ObjectPath(specificObject),
			"Connection":     ObjectPath(connection),
			"Master":         ObjectPath(master),
			"Ip4Config":      ObjectPath(ip4Path),
			"Ip6Config":      ObjectPath(RootPath),
			"Dhcp4Config":    ObjectPath(dhcp4Path),
			"Dhcp6Config":    ObjectPath(RootPath),
		},
	}
	m.active = append(m.active, acPath)

	if dev != nil {
		if wireless, ok := m.objects[device][WirelessIface]; ok {
			ssid, _ := cs["802-11-wireless"]["ssid"].Value.([]byte)
			for _, ap := range wireless.Strings("AccessPoints") {
				if string(m.objects[ap][AccessPointIface].Bytes("Ssid")) == string(ssid) {
					wireless["ActiveAccessPoint"] = ObjectPath(ap)
					break
				}
			}
		}
		dev["ActiveConnection"] = ObjectPath(acPath)
		dev["State"] = Uint32(uint32(DeviceStateActivated))
		dev["Ip4Config"] = ObjectPath(ip4Path)
		dev["Dhcp4Config"] = ObjectPath(dhcp4Path)
		dev["Ip4Connectivity"] = Uint32(4)
	}
	return acPath, nil
}

// DeactivateConnection implements Backend.
func (m *MemoryBackend) DeactivateConnection(ctx context.Context, active string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.check(ctx); err != nil {
		return err
	}
	if !slices.Contains(m.active, active) {
		return fmt.Errorf("active connection %s: %w", active, ErrUnknownObject)
	}
	m.deactivateLocked(active)
	return nil
}

func (m *MemoryBackend) deactivateLocked(active string) {
	ac := m.objects[active][ActiveConnectionIface]
	for _, dev := range ac.Strings("Devices") {
		if props, ok := m.objects[dev][DeviceIface]; ok {
			props["ActiveConnection"] = ObjectPath(RootPath)
			props["State"] = Uint32(uint32(DeviceStateDisconnected))
			props["Ip4Config"] = ObjectPath(RootPath)
			props["Dhcp4Config"] = ObjectPath(RootPath)
			props["Ip4Connectivity"] = Uint32(0)
		}
		if wireless, ok := m.objects[dev][WirelessIface]; ok {
			wireless["ActiveAccessPoint"] = ObjectPath(RootPath)
		}
	}
	for _, key := range []string{"Ip4Config", "Ip6Config", "Dhcp4Config", "Dhcp6Config"} {
		if p := ac.ObjectPath(key); p != "" {
			delete(m.objects, p)
		}
	}
	delete(m.objects, active)
	m.active = slices.DeleteFunc(m.active, func(p string) bool { return p == active })
}

// RequestScan implements Backend.
func (m *MemoryBackend) RequestScan(ctx context.Context, device string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.check(ctx); err != nil {
		return err
	}
	wireless, ok := m.objects[device][WirelessIface]
	if !ok {
		return fmt.Errorf("device %s is not wireless: %w", device, ErrUnknownObject)
	}
	m.scans++
	wireless["LastScan"] = Int64(time.Now().UnixMilli())
	return nil
}

var _ Backend = (*MemoryBackend)(nil)
