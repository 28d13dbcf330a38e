package inventory

import (
	"context"
	"strings"
	"unicode/utf8"

	"grimm.is/halyard/internal/nm"
)

// Key management values reported for access points.
const (
	KeyMgmtNone   = "none"
	KeyMgmtStatic = "static"
	KeyMgmtEAP    = "wpa-eap"
	KeyMgmtPSK    = "wpa-psk"
)

// ClassifyAP derives the security string and key management of an access
// point from its capability and security flags. Tags accumulate in the order
// WEP, WPA1, WPA2, 802.1X, PSK and the last matching tag decides keymgmt.
func ClassifyAP(flags, wpaFlags, rsnFlags uint32) (security, keymgmt string) {
	var sb strings.Builder
	keymgmt = KeyMgmtNone

	if flags&nm.APFlagsPrivacy != 0 && wpaFlags == nm.APSecNone && rsnFlags == nm.APSecNone {
		sb.WriteString("WEP ")
		keymgmt = KeyMgmtStatic
	}
	if wpaFlags != nm.APSecNone {
		sb.WriteString("WPA1 ")
	}
	if rsnFlags != nm.APSecNone {
		sb.WriteString("WPA2 ")
	}
	if (wpaFlags|rsnFlags)&nm.APSecKeyMgmt8021X != 0 {
		sb.WriteString("802.1X ")
		keymgmt = KeyMgmtEAP
	}
	if (wpaFlags|rsnFlags)&nm.APSecKeyMgmtPSK != 0 {
		sb.WriteString("PSK")
		keymgmt = KeyMgmtPSK
	}
	return sb.String(), keymgmt
}

// Channel converts a frequency in MHz to its 802.11 channel number, or 0.
func Channel(mhz uint32) uint32 {
	switch {
	case mhz == 2484:
		return 14
	case mhz >= 2412 && mhz < 2484:
		return (mhz - 2407) / 5
	case mhz >= 5160 && mhz <= 5885:
		return (mhz - 5000) / 5
	case mhz > 5950 && mhz <= 7115:
		return (mhz - 5950) / 5
	}
	return 0
}

// AccessPointInfo is one cached scan result.
type AccessPointInfo struct {
	SSID       string `json:"ssid"`
	HwAddress  string `json:"hwAddress"`
	Strength   uint8  `json:"strength"`
	MaxBitrate uint32 `json:"maxBitrate"`
	Frequency  uint32 `json:"frequency"`
	Channel    uint32 `json:"channel"`
	Flags      uint32 `json:"flags"`
	WpaFlags   uint32 `json:"wpaFlags"`
	RsnFlags   uint32 `json:"rsnFlags"`
	LastSeen   int32  `json:"lastSeen"`
	Security   string `json:"security"`
	Keymgmt    string `json:"keymgmt"`
}

// NewAccessPointInfo classifies ap.
func NewAccessPointInfo(ap nm.AccessPoint) AccessPointInfo {
	security, keymgmt := ClassifyAP(ap.Flags, ap.WpaFlags, ap.RsnFlags)
	return AccessPointInfo{
		SSID:       ssidText(ap.SSID),
		HwAddress:  ap.HwAddress,
		Strength:   ap.Strength,
		MaxBitrate: ap.MaxBitrate,
		Frequency:  ap.Frequency,
		Channel:    Channel(ap.Frequency),
		Flags:      ap.Flags,
		WpaFlags:   ap.WpaFlags,
		RsnFlags:   ap.RsnFlags,
		LastSeen:   ap.LastSeen,
		Security:   security,
		Keymgmt:    keymgmt,
	}
}

// Legacy renders the access point with the capitalised keys of the legacy API.
func (a AccessPointInfo) Legacy() map[string]any {
	return map[string]any{
		"SSID":       a.SSID,
		"HwAddress":  a.HwAddress,
		"Strength":   a.Strength,
		"MaxBitrate": a.MaxBitrate,
		"Frequency":  a.Frequency,
		"Flags":      a.Flags,
		"WpaFlags":   a.WpaFlags,
		"RsnFlags":   a.RsnFlags,
		"LastSeen":   a.LastSeen,
		"Security":   a.Security,
		"Keymgmt":    a.Keymgmt,
	}
}

// ssidText decodes an SSID, replacing invalid UTF-8.
func ssidText(b []byte) string {
	if utf8.Valid(b) {
		return string(b)
	}
	return strings.ToValidUTF8(string(b), "�")
}

// AccessPoints lists the cached scan results of every wireless device and
// updates the access point gauge.
func (a *Aggregator) AccessPoints(ctx context.Context) ([]AccessPointInfo, error) {
	devices, err := a.devices(ctx, OpAccessPoints)
	if err != nil {
		return nil, err
	}
	out := []AccessPointInfo{}
	counts := map[string]int{}
	for _, d := range devices {
		if d.DeviceType != nm.DeviceTypeWifi {
			continue
		}
		aps, err := a.client.AccessPoints(ctx, d.Path)
		if err != nil {
			return nil, backendErr(OpAccessPoints, d.Interface, "read access points", err)
		}
		for _, ap := range aps {
			info := NewAccessPointInfo(ap)
			counts[info.Keymgmt]++
			out = append(out, info)
		}
	}
	a.metrics.SetAccessPoints(counts)
	return out, nil
}

// RequestScan asks the first wireless device to scan. It returns once the
// request is accepted; results show up in later AccessPoints calls.
func (a *Aggregator) RequestScan(ctx context.Context) error {
	devices, err := a.devices(ctx, OpScan)
	if err != nil {
		return err
	}
	for _, d := range devices {
		if d.DeviceType != nm.DeviceTypeWifi {
			continue
		}
		if err := a.client.Backend().RequestScan(ctx, d.Path); err != nil {
			return backendErr(OpScan, d.Interface, "request scan", err)
		}
		a.log.Debug("scan requested", "interface", d.Interface)
		return nil
	}
	return errNoWifi(OpScan)
}
