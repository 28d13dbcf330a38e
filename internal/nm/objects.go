package nm

import (
	"encoding/binary"
	"fmt"
	"net"
)

// Device is the typed view of org.freedesktop.NetworkManager.Device.
type Device struct {
	Path                 string
	Interface            string
	IPInterface          string
	Udi                  string
	Driver               string
	DriverVersion        string
	FirmwareVersion      string
	PhysicalPortID       string
	HwAddress            string
	Capabilities         uint32
	State                DeviceState
	StateReason          []uint32
	DeviceType           DeviceType
	Mtu                  uint32
	Metered              Metered
	Managed              bool
	Autoconnect          bool
	FirmwareMissing      bool
	NMPluginMissing      bool
	Real                 bool
	ActiveConnection     string
	IP4Config            string
	IP6Config            string
	DHCP4Config          string
	DHCP6Config          string
	AvailableConnections []string
	LLDPNeighbors        []map[string]any
	IP4Connectivity      Connectivity
	IP6Connectivity      Connectivity
	InterfaceFlags       uint32
}

// DeviceFromProperties builds a Device from its property map.
func DeviceFromProperties(path string, p Properties) Device {
	d := Device{
		Path:                 path,
		Interface:            p.String("Interface"),
		IPInterface:          p.String("IpInterface"),
		Udi:                  p.String("Udi"),
		Driver:               p.String("Driver"),
		DriverVersion:        p.String("DriverVersion"),
		FirmwareVersion:      p.String("FirmwareVersion"),
		PhysicalPortID:       p.String("PhysicalPortId"),
		HwAddress:            p.String("HwAddress"),
		Capabilities:         p.Uint32("Capabilities"),
		State:                DeviceState(p.Uint32("State")),
		StateReason:          p.Uint32s("StateReason"),
		DeviceType:           DeviceType(p.Uint32("DeviceType")),
		Mtu:                  p.Uint32("Mtu"),
		Metered:              Metered(p.Uint32("Metered")),
		Managed:              p.Bool("Managed"),
		Autoconnect:          p.Bool("Autoconnect"),
		FirmwareMissing:      p.Bool("FirmwareMissing"),
		NMPluginMissing:      p.Bool("NmPluginMissing"),
		Real:                 p.Bool("Real"),
		ActiveConnection:     p.ObjectPath("ActiveConnection"),
		IP4Config:            p.ObjectPath("Ip4Config"),
		IP6Config:            p.ObjectPath("Ip6Config"),
		DHCP4Config:          p.ObjectPath("Dhcp4Config"),
		DHCP6Config:          p.ObjectPath("Dhcp6Config"),
		AvailableConnections: p.Strings("AvailableConnections"),
		IP4Connectivity:      Connectivity(p.Uint32("Ip4Connectivity")),
		IP6Connectivity:      Connectivity(p.Uint32("Ip6Connectivity")),
		InterfaceFlags:       p.Uint32("InterfaceFlags"),
	}
	if v, ok := p["LldpNeighbors"]; ok {
		if n, ok := v.Plain().([]map[string]any); ok {
			d.LLDPNeighbors = n
		}
	}
	return d
}

// WiredDevice is the typed view of Device.Wired.
type WiredDevice struct {
	HwAddress     string
	PermHwAddress string
	Speed         uint32
	Carrier       bool
}

// WiredFromProperties builds a WiredDevice.
func WiredFromProperties(p Properties) WiredDevice {
	return WiredDevice{
		HwAddress:     p.String("HwAddress"),
		PermHwAddress: p.String("PermHwAddress"),
		Speed:         p.Uint32("Speed"),
		Carrier:       p.Bool("Carrier"),
	}
}

// WirelessDevice is the typed view of Device.Wireless.
type WirelessDevice struct {
	HwAddress         string
	PermHwAddress     string
	Mode              WifiMode
	Bitrate           uint32
	ActiveAccessPoint string
	AccessPoints      []string
	LastScan          int64
}

// WirelessFromProperties builds a WirelessDevice.
func WirelessFromProperties(p Properties) WirelessDevice {
	lastScan, ok := p.Int64("LastScan")
	if !ok {
		lastScan = -1
	}
	return WirelessDevice{
		HwAddress:         p.String("HwAddress"),
		PermHwAddress:     p.String("PermHwAddress"),
		Mode:              WifiMode(p.Uint32("Mode")),
		Bitrate:           p.Uint32("Bitrate"),
		ActiveAccessPoint: p.ObjectPath("ActiveAccessPoint"),
		AccessPoints:      p.Strings("AccessPoints"),
		LastScan:          lastScan,
	}
}

// ActiveConnection is the typed view of Connection.Active.
type ActiveConnection struct {
	Path           string
	ID             string
	UUID           string
	Type           string
	Devices        []string
	State          ActiveState
	Default        bool
	Default6       bool
	Vpn            bool
	SpecificObject string
	Connection     string
	Master         string
	IP4Config      string
	IP6Config      string
	DHCP4Config    string
	DHCP6Config    string
}

// ActiveConnectionFromProperties builds an ActiveConnection.
func ActiveConnectionFromProperties(path string, p Properties) ActiveConnection {
	return ActiveConnection{
		Path:           path,
		ID:             p.String("Id"),
		UUID:           p.String("Uuid"),
		Type:           p.String("Type"),
		Devices:        p.Strings("Devices"),
		State:          ActiveState(p.Uint32("State")),
		Default:        p.Bool("Default"),
		Default6:       p.Bool("Default6"),
		Vpn:            p.Bool("Vpn"),
		SpecificObject: p.String("SpecificObject"),
		Connection:     p.String("Connection"),
		Master:         p.String("Master"),
		IP4Config:      p.ObjectPath("Ip4Config"),
		IP6Config:      p.ObjectPath("Ip6Config"),
		DHCP4Config:    p.ObjectPath("Dhcp4Config"),
		DHCP6Config:    p.ObjectPath("Dhcp6Config"),
	}
}

// AccessPoint is the typed view of org.freedesktop.NetworkManager.AccessPoint.
type AccessPoint struct {
	Path       string
	SSID       []byte
	HwAddress  string
	Strength   uint8
	MaxBitrate uint32
	Frequency  uint32
	Mode       WifiMode
	Flags      uint32
	WpaFlags   uint32
	RsnFlags   uint32
	LastSeen   int32
}

// AccessPointFromProperties builds an AccessPoint. LastSeen is -1 when the
// backend does not report it.
func AccessPointFromProperties(path string, p Properties) AccessPoint {
	lastSeen := int32(-1)
	if n, ok := p.Int64("LastSeen"); ok {
		lastSeen = int32(n)
	}
	return AccessPoint{
		Path:       path,
		SSID:       p.Bytes("Ssid"),
		HwAddress:  p.String("HwAddress"),
		Strength:   uint8(p.Uint32("Strength")),
		MaxBitrate: p.Uint32("MaxBitrate"),
		Frequency:  p.Uint32("Frequency"),
		Mode:       WifiMode(p.Uint32("Mode")),
		Flags:      p.Uint32("Flags"),
		WpaFlags:   p.Uint32("WpaFlags"),
		RsnFlags:   p.Uint32("RsnFlags"),
		LastSeen:   lastSeen,
	}
}

// Address is one entry of address-data.
type Address struct {
	Address string `json:"address"`
	Prefix  uint32 `json:"prefix"`
}

// Route is one entry of route-data. Metric is -1 when unset.
type Route struct {
	Dest    string `json:"dest"`
	Prefix  uint32 `json:"prefix"`
	NextHop string `json:"next-hop"`
	Metric  int64  `json:"metric"`
}

// IPConfig is the typed view of IP4Config / IP6Config.
type IPConfig struct {
	Addresses   []Address
	Gateway     string
	Nameservers []string
	Domains     []string
	Routes      []Route
}

// IPConfigFromProperties builds an IPConfig.
func IPConfigFromProperties(p Properties, v6 bool) IPConfig {
	cfg := IPConfig{
		Addresses: AddressesFromDicts(p.Dicts("AddressData")),
		Gateway:   p.String("Gateway"),
		Domains:   p.Strings("Domains"),
		Routes:    RoutesFromDicts(p.Dicts("RouteData")),
	}
	switch {
	case !v6 && p.Has("NameserverData"):
		for _, d := range p.Dicts("NameserverData") {
			if s, ok := d["address"].Value.(string); ok {
				cfg.Nameservers = append(cfg.Nameservers, s)
			}
		}
	case !v6:
		for _, u := range p.Uint32s("Nameservers") {
			cfg.Nameservers = append(cfg.Nameservers, Uint32ToIP4(u).String())
		}
	default:
		for _, b := range p.ByteArrays("Nameservers") {
			cfg.Nameservers = append(cfg.Nameservers, net.IP(b).String())
		}
	}
	return cfg
}

// AddressesFromDicts converts an aa{sv} address-data value.
func AddressesFromDicts(dicts []map[string]Variant) []Address {
	out := make([]Address, 0, len(dicts))
	for _, d := range dicts {
		addr, _ := d["address"].Value.(string)
		prefix, _ := toInt64(d["prefix"].Value)
		out = append(out, Address{Address: addr, Prefix: uint32(prefix)})
	}
	return out
}

// AddressesToDicts is the inverse of AddressesFromDicts.
func AddressesToDicts(addrs []Address) []map[string]Variant {
	out := make([]map[string]Variant, 0, len(addrs))
	for _, a := range addrs {
		out = append(out, map[string]Variant{
			"address": String(a.Address),
			"prefix":  Uint32(a.Prefix),
		})
	}
	return out
}

// RoutesFromDicts converts an aa{sv} route-data value.
func RoutesFromDicts(dicts []map[string]Variant) []Route {
	out := make([]Route, 0, len(dicts))
	for _, d := range dicts {
		r := Route{Metric: -1}
		r.Dest, _ = d["dest"].Value.(string)
		r.NextHop, _ = d["next-hop"].Value.(string)
		if n, ok := toInt64(d["prefix"].Value); ok {
			r.Prefix = uint32(n)
		}
		if n, ok := toInt64(d["metric"].Value); ok {
			r.Metric = n
		}
		out = append(out, r)
	}
	return out
}

// RoutesToDicts is the inverse of RoutesFromDicts. A negative metric is omitted.
func RoutesToDicts(routes []Route) []map[string]Variant {
	out := make([]map[string]Variant, 0, len(routes))
	for _, r := range routes {
		d := map[string]Variant{
			"dest":   String(r.Dest),
			"prefix": Uint32(r.Prefix),
		}
		if r.NextHop != "" {
			d["next-hop"] = String(r.NextHop)
		}
		if r.Metric >= 0 {
			d["metric"] = Uint32(uint32(r.Metric))
		}
		out = append(out, d)
	}
	return out
}

// DHCPConfig is the typed view of DHCP4Config / DHCP6Config.
type DHCPConfig struct {
	Options map[string]string
}

// DHCPConfigFromProperties builds a DHCPConfig.
func DHCPConfigFromProperties(p Properties) DHCPConfig {
	opts := map[string]string{}
	for k, v := range p.Dict("Options") {
		opts[k] = fmt.Sprint(v.Plain())
	}
	return DHCPConfig{Options: opts}
}

// Uint32ToIP4 decodes an IPv4 address stored as a uint32 in network byte order.
func Uint32ToIP4(u uint32) net.IP {
	b := make([]byte, 4)
	binary.NativeEndian.PutUint32(b, u)
	return net.IPv4(b[0], b[1], b[2], b[3]).To4()
}

// IP4ToUint32 encodes an IPv4 address the way the backend stores it.
func IP4ToUint32(ip net.IP) (uint32, error) {
	v4 := ip.To4()
	if v4 == nil {
		return 0, fmt.Errorf("%q is not an IPv4 address", ip.String())
	}
	return binary.NativeEndian.Uint32(v4), nil
}
