//go:build linux

package inventory

import (
	"fmt"
	"sync"

	"github.com/safchain/ethtool"
	"github.com/vishvananda/netlink"
	"golang.org/x/sys/unix"

	"grimm.is/halyard/internal/metrics"
)

// SystemLinks inspects interfaces through ethtool and netlink.
type SystemLinks struct {
	mu     sync.Mutex
	handle *ethtool.Ethtool
}

// NewSystemLinks creates a SystemLinks. The ethtool handle is opened lazily.
func NewSystemLinks() *SystemLinks {
	return &SystemLinks{}
}

// Close releases the ethtool handle.
func (s *SystemLinks) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.handle != nil {
		s.handle.Close()
		s.handle = nil
	}
}

func (s *SystemLinks) ethtool() (*ethtool.Ethtool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.handle == nil {
		h, err := ethtool.NewEthtool()
		if err != nil {
			return nil, fmt.Errorf("failed to open ethtool handle: %w", err)
		}
		s.handle = h
	}
	return s.handle, nil
}

// DriverInfo implements LinkInspector.
func (s *SystemLinks) DriverInfo(name string) (DriverInfo, error) {
	h, err := s.ethtool()
	if err != nil {
		return DriverInfo{}, err
	}
	info, err := h.DriverInfo(name)
	if err != nil {
		return DriverInfo{}, fmt.Errorf("ethtool DriverInfo failed for %s: %w", name, err)
	}
	return DriverInfo{
		Driver:   info.Driver,
		Version:  info.Version,
		Firmware: info.FwVersion,
		BusInfo:  info.BusInfo,
	}, nil
}

var linkFlagNames = []struct {
	bit  uint32
	name string
}{
	{unix.IFF_UP, "UP"},
	{unix.IFF_BROADCAST, "BROADCAST"},
	{unix.IFF_LOOPBACK, "LOOPBACK"},
	{unix.IFF_POINTOPOINT, "POINTOPOINT"},
	{unix.IFF_RUNNING, "RUNNING"},
	{unix.IFF_NOARP, "NOARP"},
	{unix.IFF_PROMISC, "PROMISC"},
	{unix.IFF_ALLMULTI, "ALLMULTI"},
	{unix.IFF_MULTICAST, "MULTICAST"},
	{unix.IFF_LOWER_UP, "LOWER_UP"},
	{unix.IFF_DORMANT, "DORMANT"},
}

// LinkFlags implements LinkInspector with the kernel IFF_* flags.
func (s *SystemLinks) LinkFlags(name string) ([]string, error) {
	link, err := netlink.LinkByName(name)
	if err != nil {
		return nil, fmt.Errorf("link %s: %w", name, err)
	}
	raw := link.Attrs().RawFlags
	out := []string{}
	for _, f := range linkFlagNames {
		if raw&f.bit != 0 {
			out = append(out, f.name)
		}
	}
	return out, nil
}

// Stats implements LinkInspector.
func (s *SystemLinks) Stats(name string) (metrics.InterfaceStats, error) {
	link, err := netlink.LinkByName(name)
	if err != nil {
		return metrics.UnknownInterfaceStats(name), fmt.Errorf("link %s: %w", name, err)
	}
	st := link.Attrs().Statistics
	if st == nil {
		return metrics.UnknownInterfaceStats(name), fmt.Errorf("link %s reports no statistics", name)
	}
	return metrics.InterfaceStats{
		Name:      name,
		RxBytes:   int64(st.RxBytes),
		RxPackets: int64(st.RxPackets),
		RxErrors:  int64(st.RxErrors),
		RxDropped: int64(st.RxDropped),
		Multicast: int64(st.Multicast),
		TxBytes:   int64(st.TxBytes),
		TxPackets: int64(st.TxPackets),
		TxErrors:  int64(st.TxErrors),
		TxDropped: int64(st.TxDropped),
	}, nil
}

var _ LinkInspector = (*SystemLinks)(nil)
