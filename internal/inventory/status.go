package inventory

import (
	"context"
	"errors"
	"maps"

	"grimm.is/halyard/internal/fault"
	"grimm.is/halyard/internal/nm"
)

// DeviceStatus is the state summary of a device.
type DeviceStatus struct {
	State          nm.DeviceState `json:"state"`
	StateText      string         `json:"stateText"`
	Mtu            uint32         `json:"mtu"`
	DeviceType     nm.DeviceType  `json:"deviceType"`
	DeviceTypeText string         `json:"deviceTypeText"`
}

// ConnectionRef names a profile.
type ConnectionRef struct {
	ID            string `json:"id"`
	UUID          string `json:"uuid"`
	Type          string `json:"type,omitempty"`
	InterfaceName string `json:"interfaceName,omitempty"`
	Zone          string `json:"zone,omitempty"`
}

// IPStatus is the live IPv4 or IPv6 configuration of a device.
type IPStatus struct {
	Addresses []nm.Address `json:"addressData"`
	Gateway   string       `json:"gateway"`
	DNS       []string     `json:"dns"`
	Domains   []string     `json:"domains"`
	Routes    []nm.Route   `json:"routeData"`
}

// DHCPStatus holds the options of a DHCP lease.
type DHCPStatus struct {
	Options map[string]string `json:"options"`
}

// WiredStatus is the Ethernet sub-object of a device.
type WiredStatus struct {
	HwAddress     string `json:"hwAddress"`
	PermHwAddress string `json:"permHwAddress"`
	Speed         uint32 `json:"speed"`
	Carrier       bool   `json:"carrier"`
}

// WirelessStatus is the Wi-Fi sub-object of a device.
type WirelessStatus struct {
	HwAddress     string      `json:"hwAddress"`
	PermHwAddress string      `json:"permHwAddress"`
	Bitrate       uint32      `json:"bitrate"`
	Mode          nm.WifiMode `json:"mode"`
	ModeText      string      `json:"modeText"`
	RegDomain     string      `json:"regDomain"`
}

// ActiveAccessPoint is the access point a wireless device is associated
// with, or the one it provides in AP mode.
type ActiveAccessPoint struct {
	SSID       string  `json:"ssid"`
	HwAddress  string  `json:"hwAddress"`
	MaxBitrate uint32  `json:"maxBitrate"`
	Flags      uint32  `json:"flags"`
	WpaFlags   uint32  `json:"wpaFlags"`
	RsnFlags   uint32  `json:"rsnFlags"`
	Strength   uint8   `json:"strength"`
	Frequency  uint32  `json:"frequency"`
	Channel    uint32  `json:"channel"`
	Signal     float64 `json:"signal"`
}

// InterfaceStatus is the status of one managed interface.
type InterfaceStatus struct {
	Status            DeviceStatus       `json:"status"`
	ActiveConnection  *ConnectionRef     `json:"activeConnection,omitempty"`
	IP4Config         *IPStatus          `json:"ip4Config,omitempty"`
	IP6Config         *IPStatus          `json:"ip6Config,omitempty"`
	DHCP4Config       *DHCPStatus        `json:"dhcp4Config,omitempty"`
	DHCP6Config       *DHCPStatus        `json:"dhcp6Config,omitempty"`
	Wired             *WiredStatus       `json:"wired,omitempty"`
	Wireless          *WirelessStatus    `json:"wireless,omitempty"`
	ActiveAccessPoint *ActiveAccessPoint `json:"activeAccessPoint,omitempty"`
}

// InterfaceDetail is an InterfaceStatus plus the full device record.
type InterfaceDetail struct {
	InterfaceStatus

	Path                 string           `json:"path"`
	Udi                  string           `json:"udi"`
	Interface            string           `json:"interface"`
	IPInterface          string           `json:"ipInterface"`
	Driver               string           `json:"driver"`
	DriverVersion        string           `json:"driverVersion"`
	FirmwareVersion      string           `json:"firmwareVersion"`
	Capabilities         uint32           `json:"capabilities"`
	CapabilitiesText     []string         `json:"capabilitiesText"`
	StateReason          uint32           `json:"stateReason"`
	Managed              bool             `json:"managed"`
	Autoconnect          bool             `json:"autoconnect"`
	FirmwareMissing      bool             `json:"firmwareMissing"`
	NMPluginMissing      bool             `json:"nmPluginMissing"`
	Real                 bool             `json:"real"`
	PhysicalPortID       string           `json:"physicalPortId"`
	Metered              nm.Metered       `json:"metered"`
	MeteredText          string           `json:"meteredText"`
	LLDPNeighbors        []map[string]any `json:"lldpNeighbors"`
	IP4Connectivity      nm.Connectivity  `json:"ip4Connectivity"`
	IP4ConnectivityText  string           `json:"ip4ConnectivityText"`
	IP6Connectivity      nm.Connectivity  `json:"ip6Connectivity"`
	IP6ConnectivityText  string           `json:"ip6ConnectivityText"`
	InterfaceFlags       uint32           `json:"interfaceFlags"`
	InterfaceFlagsText   []string         `json:"interfaceFlagsText"`
	LinkFlags            []string         `json:"linkFlags,omitempty"`
	AvailableConnections []ConnectionRef  `json:"availableConnections"`
}

// Status builds the status of every managed interface, keyed by interface
// name. A device that disappears mid-read is left out.
func (a *Aggregator) Status(ctx context.Context) (map[string]InterfaceStatus, error) {
	devices, err := a.devices(ctx, OpStatus)
	if err != nil {
		return nil, err
	}
	out := make(map[string]InterfaceStatus, len(devices))
	for _, d := range devices {
		if d.State == nm.DeviceStateUnmanaged || d.Interface == "" {
			continue
		}
		st, err := a.deviceStatus(ctx, d)
		if err != nil {
			if errors.Is(err, nm.ErrUnknownObject) {
				continue
			}
			return nil, backendErr(OpStatus, d.Interface, "read device status", err)
		}
		out[d.Interface] = st
	}
	return out, nil
}

// Interface returns the detailed status of one managed interface.
func (a *Aggregator) Interface(ctx context.Context, name string) (InterfaceDetail, error) {
	devices, err := a.devices(ctx, OpInterface)
	if err != nil {
		return InterfaceDetail{}, err
	}
	for _, d := range devices {
		if d.Interface != name || d.State == nm.DeviceStateUnmanaged {
			continue
		}
		st, err := a.deviceStatus(ctx, d)
		if err != nil {
			return InterfaceDetail{}, backendErr(OpInterface, name, "read device status", err)
		}
		return a.detail(ctx, d, st), nil
	}
	return InterfaceDetail{}, fault.New(fault.NotFound, OpInterface, name, "no such interface")
}

func (a *Aggregator) deviceStatus(ctx context.Context, d nm.Device) (InterfaceStatus, error) {
	st := InterfaceStatus{
		Status: DeviceStatus{
			State:          d.State,
			StateText:      d.State.String(),
			Mtu:            d.Mtu,
			DeviceType:     d.DeviceType,
			DeviceTypeText: d.DeviceType.String(),
		},
	}

	if d.State == nm.DeviceStateActivated {
		st.ActiveConnection = a.activeProfile(ctx, d.ActiveConnection)
		var err error
		if st.IP4Config, err = a.ipStatus(ctx, d.IP4Config, false); err != nil {
			return st, err
		}
		if st.IP6Config, err = a.ipStatus(ctx, d.IP6Config, true); err != nil {
			return st, err
		}
		st.DHCP4Config = a.dhcpStatus(ctx, d.DHCP4Config, false)
		st.DHCP6Config = a.dhcpStatus(ctx, d.DHCP6Config, true)
	}

	switch d.DeviceType {
	case nm.DeviceTypeEthernet:
		w, err := a.client.Wired(ctx, d.Path)
		if err != nil {
			return st, err
		}
		st.Wired = &WiredStatus{
			HwAddress:     d.HwAddress,
			PermHwAddress: w.PermHwAddress,
			Speed:         w.Speed,
			Carrier:       w.Carrier,
		}
	case nm.DeviceTypeWifi:
		w, err := a.client.Wireless(ctx, d.Path)
		if err != nil {
			return st, err
		}
		st.Wireless = &WirelessStatus{
			HwAddress:     w.HwAddress,
			PermHwAddress: w.PermHwAddress,
			Bitrate:       w.Bitrate,
			Mode:          w.Mode,
			ModeText:      w.Mode.String(),
			RegDomain:     a.iw.RegDomain(ctx),
		}
		if d.State == nm.DeviceStateActivated && w.ActiveAccessPoint != "" {
			st.ActiveAccessPoint = a.activeAccessPoint(ctx, d.Interface, w.ActiveAccessPoint)
		}
	}
	return st, nil
}

// activeProfile names the profile behind an active connection. Read
// failures leave it out.
func (a *Aggregator) activeProfile(ctx context.Context, path string) *ConnectionRef {
	if path == "" {
		return nil
	}
	ac, err := a.client.ActiveConnection(ctx, path)
	if err != nil || ac.Connection == "" {
		return nil
	}
	cs, err := a.client.Backend().GetSettings(ctx, ac.Connection)
	if err != nil {
		return nil
	}
	ref := connectionRef(cs)
	return &ref
}

func connectionRef(cs nm.ConnectionSettings) ConnectionRef {
	conn := nm.Properties(cs["connection"])
	return ConnectionRef{
		ID:            conn.String("id"),
		UUID:          conn.String("uuid"),
		Type:          conn.String("type"),
		InterfaceName: conn.String("interface-name"),
		Zone:          conn.String("zone"),
	}
}

func (a *Aggregator) ipStatus(ctx context.Context, path string, v6 bool) (*IPStatus, error) {
	if path == "" {
		return nil, nil
	}
	cfg, err := a.client.IPConfig(ctx, path, v6)
	if err != nil {
		return nil, err
	}
	st := &IPStatus{
		Addresses: cfg.Addresses,
		Gateway:   cfg.Gateway,
		DNS:       cfg.Nameservers,
		Domains:   cfg.Domains,
		Routes:    cfg.Routes,
	}
	if st.DNS == nil {
		st.DNS = []string{}
	}
	if st.Domains == nil {
		st.Domains = []string{}
	}
	return st, nil
}

func (a *Aggregator) dhcpStatus(ctx context.Context, path string, v6 bool) *DHCPStatus {
	if path == "" {
		return nil
	}
	cfg, err := a.client.DHCPConfig(ctx, path, v6)
	if err != nil {
		return nil
	}
	return &DHCPStatus{Options: maps.Clone(cfg.Options)}
}

// activeAccessPoint reports the associated access point. In AP mode the
// strength is pinned to 100 and the frequency comes from iw; otherwise the
// signal is read from the current link.
func (a *Aggregator) activeAccessPoint(ctx context.Context, ifname, path string) *ActiveAccessPoint {
	ap, err := a.client.AccessPoint(ctx, path)
	if err != nil {
		a.log.Debug("could not read access point", "path", path, "error", err)
		return nil
	}
	out := &ActiveAccessPoint{
		SSID:       ssidText(ap.SSID),
		HwAddress:  ap.HwAddress,
		MaxBitrate: ap.MaxBitrate,
		Flags:      ap.Flags,
		WpaFlags:   ap.WpaFlags,
		RsnFlags:   ap.RsnFlags,
		Signal:     InvalidRSSI,
	}
	if ap.Mode == nm.WifiModeAP {
		out.Strength = 100
		out.Frequency = a.iw.Frequency(ctx, ifname, ap.Frequency)
	} else {
		out.Strength = ap.Strength
		out.Frequency = ap.Frequency
		if signal, ok := a.iw.LinkSignal(ctx, ifname); ok {
			out.Signal = signal
		}
	}
	out.Channel = Channel(out.Frequency)
	return out
}

// detail adds the full device record to st. Driver and firmware fall back to
// ethtool when the backend leaves them empty.
func (a *Aggregator) detail(ctx context.Context, d nm.Device, st InterfaceStatus) InterfaceDetail {
	out := InterfaceDetail{
		InterfaceStatus:     st,
		Path:                d.Path,
		Udi:                 d.Udi,
		Interface:           d.Interface,
		IPInterface:         d.IPInterface,
		Driver:              d.Driver,
		DriverVersion:       d.DriverVersion,
		FirmwareVersion:     d.FirmwareVersion,
		Capabilities:        d.Capabilities,
		CapabilitiesText:    CapabilitiesText(d.Capabilities),
		Managed:             d.Managed,
		Autoconnect:         d.Autoconnect,
		FirmwareMissing:     d.FirmwareMissing,
		NMPluginMissing:     d.NMPluginMissing,
		Real:                d.Real,
		PhysicalPortID:      d.PhysicalPortID,
		Metered:             d.Metered,
		MeteredText:         d.Metered.String(),
		LLDPNeighbors:       d.LLDPNeighbors,
		IP4Connectivity:     d.IP4Connectivity,
		IP4ConnectivityText: d.IP4Connectivity.String(),
		IP6Connectivity:     d.IP6Connectivity,
		IP6ConnectivityText: d.IP6Connectivity.String(),
		InterfaceFlags:      d.InterfaceFlags,
		InterfaceFlagsText:  InterfaceFlagsText(d.InterfaceFlags),
	}
	if len(d.StateReason) > 1 {
		out.StateReason = d.StateReason[1]
	}
	if out.LLDPNeighbors == nil {
		out.LLDPNeighbors = []map[string]any{}
	}

	if out.Driver == "" || out.FirmwareVersion == "" {
		if info, err := a.links.DriverInfo(d.Interface); err == nil {
			if out.Driver == "" {
				out.Driver = info.Driver
				out.DriverVersion = info.Version
			}
			if out.FirmwareVersion == "" {
				out.FirmwareVersion = info.Firmware
			}
		} else {
			a.log.Debug("ethtool driver info unavailable", "interface", d.Interface, "error", err)
		}
	}
	if flags, err := a.links.LinkFlags(d.Interface); err == nil {
		out.LinkFlags = flags
	}

	out.AvailableConnections = []ConnectionRef{}
	for _, path := range d.AvailableConnections {
		cs, err := a.client.Backend().GetSettings(ctx, path)
		if err != nil {
			continue
		}
		out.AvailableConnections = append(out.AvailableConnections, connectionRef(cs))
	}
	return out
}
