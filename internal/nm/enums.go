package nm

import "fmt"

// DeviceState is NMDeviceState.
type DeviceState uint32

const (
	DeviceStateUnknown      DeviceState = 0
	DeviceStateUnmanaged    DeviceState = 10
	DeviceStateUnavailable  DeviceState = 20
	DeviceStateDisconnected DeviceState = 30
	DeviceStatePrepare      DeviceState = 40
	DeviceStateConfig       DeviceState = 50
	DeviceStateNeedAuth     DeviceState = 60
	DeviceStateIPConfig     DeviceState = 70
	DeviceStateIPCheck      DeviceState = 80
	DeviceStateSecondaries  DeviceState = 90
	DeviceStateActivated    DeviceState = 100
	DeviceStateDeactivating DeviceState = 110
	DeviceStateFailed       DeviceState = 120
)

var deviceStateText = map[DeviceState]string{
	DeviceStateUnknown:      "Unknown",
	DeviceStateUnmanaged:    "Unmanaged",
	DeviceStateUnavailable:  "Unavailable",
	DeviceStateDisconnected: "Disconnected",
	DeviceStatePrepare:      "Prepare",
	DeviceStateConfig:       "Config",
	DeviceStateNeedAuth:     "Need Auth",
	DeviceStateIPConfig:     "IP Config",
	DeviceStateIPCheck:      "IP Check",
	DeviceStateSecondaries:  "Secondaries",
	DeviceStateActivated:    "Activated",
	DeviceStateDeactivating: "Deactivating",
	DeviceStateFailed:       "Failed",
}

func (s DeviceState) String() string { return lookup(deviceStateText, s) }

// ActiveState is NMActiveConnectionState.
type ActiveState uint32

const (
	ActiveStateUnknown      ActiveState = 0
	ActiveStateActivating   ActiveState = 1
	ActiveStateActivated    ActiveState = 2
	ActiveStateDeactivating ActiveState = 3
	ActiveStateDeactivated  ActiveState = 4
)

// Active-connection states are rendered the way nmcli prints them.
var activeStateText = map[ActiveState]string{
	ActiveStateUnknown:      "unknown",
	ActiveStateActivating:   "activating",
	ActiveStateActivated:    "activated",
	ActiveStateDeactivating: "deactivating",
	ActiveStateDeactivated:  "deactivated",
}

func (s ActiveState) String() string { return lookup(activeStateText, s) }

// Metered is NMMetered.
type Metered uint32

var meteredText = map[Metered]string{
	0: "Unknown",
	1: "Metered",
	2: "Not metered",
	3: "Metered (guessed)",
	4: "Not metered (guessed)",
}

func (m Metered) String() string { return lookup(meteredText, m) }

// Connectivity is NMConnectivityState.
type Connectivity uint32

var connectivityText = map[Connectivity]string{
	0: "Unknown",
	1: "None",
	2: "Portal",
	3: "Limited",
	4: "Full",
}

func (c Connectivity) String() string { return lookup(connectivityText, c) }

// DeviceType is NMDeviceType.
type DeviceType uint32

const (
	DeviceTypeUnknown  DeviceType = 0
	DeviceTypeEthernet DeviceType = 1
	DeviceTypeWifi     DeviceType = 2
	DeviceTypeModem    DeviceType = 8
	DeviceTypeBridge   DeviceType = 13
	DeviceTypeLoopback DeviceType = 32
)

var deviceTypeText = map[DeviceType]string{
	0:  "Unknown",
	1:  "Ethernet",
	2:  "Wi-Fi",
	5:  "Bluetooth",
	6:  "OLPC",
	7:  "WiMAX",
	8:  "Modem",
	9:  "InfiniBand",
	10: "Bond",
	11: "VLAN",
	12: "ADSL",
	13: "Bridge Master",
	14: "Generic",
	15: "Team Master",
	16: "TUN/TAP",
	17: "IP Tunnel",
	18: "MACVLAN",
	19: "VXLAN",
	20: "VETH",
	21: "MACsec",
	22: "dummy",
	23: "PPP",
	24: "Open vSwitch interface",
	25: "Open vSwitch port",
	26: "Open vSwitch bridge",
	27: "WPAN",
	28: "6LoWPAN",
	29: "WireGuard",
	30: "WiFi P2P",
	31: "VRF",
	32: "Loopback",
}

func (t DeviceType) String() string { return lookup(deviceTypeText, t) }

// WifiMode is NM80211Mode.
type WifiMode uint32

const (
	WifiModeUnknown WifiMode = 0
	WifiModeAdhoc   WifiMode = 1
	WifiModeInfra   WifiMode = 2
	WifiModeAP      WifiMode = 3
	WifiModeMesh    WifiMode = 4
)

var wifiModeText = map[WifiMode]string{
	WifiModeUnknown: "Unknown",
	WifiModeAdhoc:   "Ad-Hoc",
	WifiModeInfra:   "Infrastructure",
	WifiModeAP:      "Access point",
	WifiModeMesh:    "Mesh",
}

func (m WifiMode) String() string { return lookup(wifiModeText, m) }

// Access point capability flags (NM80211ApFlags).
const (
	APFlagsNone    uint32 = 0x0
	APFlagsPrivacy uint32 = 0x1
	APFlagsWPS     uint32 = 0x2
	APFlagsWPSPBC  uint32 = 0x4
	APFlagsWPSPIN  uint32 = 0x8
)

// Access point security flags (NM80211ApSecurityFlags).
const (
	APSecNone             uint32 = 0x0
	APSecPairWEP40        uint32 = 0x1
	APSecPairWEP104       uint32 = 0x2
	APSecPairTKIP         uint32 = 0x4
	APSecPairCCMP         uint32 = 0x8
	APSecGroupWEP40       uint32 = 0x10
	APSecGroupWEP104      uint32 = 0x20
	APSecGroupTKIP        uint32 = 0x40
	APSecGroupCCMP        uint32 = 0x80
	APSecKeyMgmtPSK       uint32 = 0x100
	APSecKeyMgmt8021X     uint32 = 0x200
	APSecKeyMgmtSAE       uint32 = 0x400
	APSecKeyMgmtOWE       uint32 = 0x800
	APSecKeyMgmtOWETM     uint32 = 0x1000
	APSecKeyMgmtEAPSuiteB uint32 = 0x2000
)

func lookup[K ~uint32](table map[K]string, k K) string {
	if s, ok := table[k]; ok {
		return s
	}
	return fmt.Sprintf("Unknown (%d)", uint32(k))
}
