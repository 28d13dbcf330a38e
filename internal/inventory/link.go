package inventory

import (
	"context"

	"grimm.is/halyard/internal/metrics"
)

// DriverInfo is driver metadata read from the kernel.
type DriverInfo struct {
	Driver   string
	Version  string
	Firmware string
	BusInfo  string
}

// LinkInspector reads kernel-side facts about an interface that the
// connection manager does not always report.
type LinkInspector interface {
	DriverInfo(name string) (DriverInfo, error)
	LinkFlags(name string) ([]string, error)
	Stats(name string) (metrics.InterfaceStats, error)
}

// Device interface flags (NMDeviceInterfaceFlags).
const (
	ifaceFlagUp                = 0x1
	ifaceFlagLowerUp           = 0x2
	ifaceFlagPromisc           = 0x4
	ifaceFlagCarrier           = 0x10000
	ifaceFlagLLDPClientEnabled = 0x20000
)

var ifaceFlagNames = []struct {
	bit  uint32
	name string
}{
	{ifaceFlagUp, "UP"},
	{ifaceFlagLowerUp, "LOWER_UP"},
	{ifaceFlagPromisc, "PROMISC"},
	{ifaceFlagCarrier, "CARRIER"},
	{ifaceFlagLLDPClientEnabled, "LLDP_CLIENT_ENABLED"},
}

// InterfaceFlagsText names the set bits of a device's InterfaceFlags.
func InterfaceFlagsText(flags uint32) []string {
	out := []string{}
	for _, f := range ifaceFlagNames {
		if flags&f.bit != 0 {
			out = append(out, f.name)
		}
	}
	return out
}

// Device capabilities (NMDeviceCapabilities).
var capabilityNames = []struct {
	bit  uint32
	name string
}{
	{0x1, "NM_SUPPORTED"},
	{0x2, "CARRIER_DETECT"},
	{0x4, "IS_SOFTWARE"},
	{0x8, "SRIOV"},
}

// CapabilitiesText names the set bits of a device's Capabilities.
func CapabilitiesText(caps uint32) []string {
	out := []string{}
	for _, c := range capabilityNames {
		if caps&c.bit != 0 {
			out = append(out, c.name)
		}
	}
	return out
}

// Stats returns traffic counters for a managed interface. Counters that
// cannot be read are -1.
func (a *Aggregator) Stats(ctx context.Context, name string) (metrics.InterfaceStats, error) {
	if err := a.checkManaged(ctx, OpStats, name); err != nil {
		return metrics.UnknownInterfaceStats(name), err
	}
	s, err := a.links.Stats(name)
	if err != nil {
		a.log.Warn("unable to read interface statistics", "interface", name, "error", err)
		return metrics.UnknownInterfaceStats(name), nil
	}
	return s, nil
}

// AllInterfaceStats implements metrics.StatsSource over the managed interfaces.
func (a *Aggregator) AllInterfaceStats(ctx context.Context) (map[string]metrics.InterfaceStats, error) {
	names, err := a.Interfaces(ctx)
	if err != nil {
		return nil, err
	}
	out := make(map[string]metrics.InterfaceStats, len(names))
	for _, name := range names {
		s, err := a.links.Stats(name)
		if err != nil {
			s = metrics.UnknownInterfaceStats(name)
		}
		out[name] = s
	}
	return out, nil
}

var _ metrics.StatsSource = (*Aggregator)(nil)
