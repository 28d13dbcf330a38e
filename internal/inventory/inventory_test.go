package inventory

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"grimm.is/halyard/internal/fault"
	"grimm.is/halyard/internal/logging"
	"grimm.is/halyard/internal/metrics"
	"grimm.is/halyard/internal/nm"
)

const iwPath = "/usr/sbin/iw"

type mockRunner struct {
	mock.Mock
}

func (m *mockRunner) Run(ctx context.Context, name string, args ...string) ([]byte, error) {
	ret := m.Called(name, strings.Join(args, " "))
	out, _ := ret.Get(0).([]byte)
	return out, ret.Error(1)
}

type mockLinks struct {
	mock.Mock
}

func (m *mockLinks) DriverInfo(name string) (DriverInfo, error) {
	ret := m.Called(name)
	return ret.Get(0).(DriverInfo), ret.Error(1)
}

func (m *mockLinks) LinkFlags(name string) ([]string, error) {
	ret := m.Called(name)
	flags, _ := ret.Get(0).([]string)
	return flags, ret.Error(1)
}

func (m *mockLinks) Stats(name string) (metrics.InterfaceStats, error) {
	ret := m.Called(name)
	return ret.Get(0).(metrics.InterfaceStats), ret.Error(1)
}

func quietLogger() *logging.Logger {
	cfg := logging.DefaultConfig()
	cfg.Output = io.Discard
	return logging.New(cfg)
}

func newTestIW(r Runner) *IW {
	iw := NewIW(iwPath, time.Second, r, quietLogger())
	iw.stat = func(string) error { return nil }
	return iw
}

type fixture struct {
	agg     *Aggregator
	backend *nm.MemoryBackend
	runner  *mockRunner
	links   *mockLinks
	wlan0   string
	eth0    string
}

func newFixture(t *testing.T, opts Options) *fixture {
	t.Helper()
	backend := nm.NewMemoryBackend()
	f := &fixture{
		backend: backend,
		runner:  &mockRunner{},
		links:   &mockLinks{},
		wlan0:   backend.AddDevice(nm.DeviceSpec{Interface: "wlan0", Type: nm.DeviceTypeWifi, Driver: "ath6kl_sdio", FirmwareVersion: "3.5.0.604", HwAddress: "C0:EE:40:00:00:01"}),
		eth0:    backend.AddDevice(nm.DeviceSpec{Interface: "eth0", Type: nm.DeviceTypeEthernet, HwAddress: "C0:EE:40:00:00:02", Carrier: true, Speed: 100}),
	}
	backend.AddDevice(nm.DeviceSpec{Interface: "eth1", Type: nm.DeviceTypeEthernet})
	backend.AddDevice(nm.DeviceSpec{Interface: "usb0", Type: nm.DeviceTypeEthernet, Unmanaged: true})

	if opts.Unmanaged == nil {
		opts.Unmanaged = []string{"eth1"}
	}
	opts.IW = newTestIW(f.runner)
	opts.Links = f.links
	opts.Logger = quietLogger()
	f.agg = NewAggregator(nm.NewClient(backend), opts)
	return f
}

func (f *fixture) activate(t *testing.T, device string, cs nm.ConnectionSettings) {
	t.Helper()
	ctx := context.Background()
	path, err := f.backend.AddConnection(ctx, cs)
	require.NoError(t, err)
	_, err = f.backend.ActivateConnection(ctx, path, device, nm.RootPath)
	require.NoError(t, err)
}

func officeSettings() nm.ConnectionSettings {
	return nm.ConnectionSettings{
		"connection": {
			"id":             nm.String("office"),
			"uuid":           nm.String("6a7e0a3e-0000-4000-8000-000000000001"),
			"type":           nm.String("802-11-wireless"),
			"interface-name": nm.String("wlan0"),
		},
		"802-11-wireless": {"ssid": nm.Bytes([]byte("CorpNet"))},
		"ipv4":            {"method": nm.String("auto")},
	}
}

func TestClassifyAP(t *testing.T) {
	tests := []struct {
		name     string
		flags    uint32
		wpa      uint32
		rsn      uint32
		security string
		keymgmt  string
	}{
		{name: "open", security: "", keymgmt: "none"},
		{name: "wep", flags: nm.APFlagsPrivacy, security: "WEP ", keymgmt: "static"},
		{name: "rsn psk", flags: nm.APFlagsPrivacy, rsn: nm.APSecPairCCMP | nm.APSecGroupCCMP | nm.APSecKeyMgmtPSK, security: "WPA2 PSK", keymgmt: "wpa-psk"},
		{name: "wpa1 wpa2 psk", flags: nm.APFlagsPrivacy, wpa: nm.APSecPairTKIP | nm.APSecKeyMgmtPSK, rsn: nm.APSecPairCCMP | nm.APSecKeyMgmtPSK, security: "WPA1 WPA2 PSK", keymgmt: "wpa-psk"},
		{name: "enterprise", flags: nm.APFlagsPrivacy, rsn: nm.APSecPairCCMP | nm.APSecKeyMgmt8021X, security: "WPA2 802.1X ", keymgmt: "wpa-eap"},
		{name: "psk wins over 802.1X", flags: nm.APFlagsPrivacy, rsn: nm.APSecKeyMgmt8021X | nm.APSecKeyMgmtPSK, security: "WPA2 802.1X PSK", keymgmt: "wpa-psk"},
		{name: "sae only", flags: nm.APFlagsPrivacy, rsn: nm.APSecPairCCMP | nm.APSecKeyMgmtSAE, security: "WPA2 ", keymgmt: "none"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			security, keymgmt := ClassifyAP(tt.flags, tt.wpa, tt.rsn)
			assert.Equal(t, tt.security, security)
			assert.Equal(t, tt.keymgmt, keymgmt)
		})
	}
}

func TestChannel(t *testing.T) {
	assert.Equal(t, uint32(1), Channel(2412))
	assert.Equal(t, uint32(6), Channel(2437))
	assert.Equal(t, uint32(14), Channel(2484))
	assert.Equal(t, uint32(36), Channel(5180))
	assert.Equal(t, uint32(165), Channel(5825))
	assert.Equal(t, uint32(0), Channel(0))
}

func TestAccessPoints(t *testing.T) {
	f := newFixture(t, Options{})
	_, err := f.backend.AddAccessPoint(f.wlan0, nm.AccessPointSpec{
		SSID: "CorpNet", HwAddress: "00:11:22:33:44:55", Strength: 70, Frequency: 5180,
		Flags: nm.APFlagsPrivacy, RsnFlags: nm.APSecPairCCMP | nm.APSecKeyMgmtPSK, LastSeen: 1200,
	})
	require.NoError(t, err)
	_, err = f.backend.AddAccessPoint(f.wlan0, nm.AccessPointSpec{
		SSID: "Legacy", HwAddress: "00:11:22:33:44:66", Strength: 30, Frequency: 2437, Flags: nm.APFlagsPrivacy,
	})
	require.NoError(t, err)

	aps, err := f.agg.AccessPoints(context.Background())
	require.NoError(t, err)
	require.Len(t, aps, 2)

	assert.Equal(t, "CorpNet", aps[0].SSID)
	assert.Equal(t, "WPA2 PSK", aps[0].Security)
	assert.Equal(t, "wpa-psk", aps[0].Keymgmt)
	assert.Equal(t, uint32(36), aps[0].Channel)
	assert.Equal(t, int32(1200), aps[0].LastSeen)

	assert.Equal(t, "static", aps[1].Keymgmt)
	legacy := aps[1].Legacy()
	assert.Equal(t, "Legacy", legacy["SSID"])
	assert.Equal(t, "WEP ", legacy["Security"])
	assert.Equal(t, "static", legacy["Keymgmt"])
}

func TestAccessPointsEmpty(t *testing.T) {
	f := newFixture(t, Options{})
	aps, err := f.agg.AccessPoints(context.Background())
	require.NoError(t, err)
	assert.NotNil(t, aps)
	assert.Empty(t, aps)
}

func TestRequestScan(t *testing.T) {
	f := newFixture(t, Options{})
	require.NoError(t, f.agg.RequestScan(context.Background()))
	assert.Equal(t, 1, f.backend.ScanRequests())

	f.backend.RemoveDevice(f.wlan0)
	err := f.agg.RequestScan(context.Background())
	assert.Equal(t, fault.NotFound, fault.KindOf(err))
}

func TestBackendUnavailable(t *testing.T) {
	f := newFixture(t, Options{})
	f.backend.SetUnavailable(true)

	_, err := f.agg.Status(context.Background())
	assert.Equal(t, fault.BackendUnavailable, fault.KindOf(err))
	_, err = f.agg.AccessPoints(context.Background())
	assert.Equal(t, fault.BackendUnavailable, fault.KindOf(err))
}

func TestInterfacesExcludesUnmanaged(t *testing.T) {
	f := newFixture(t, Options{})
	names, err := f.agg.Interfaces(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"wlan0", "eth0"}, names)
}

func TestInterfacesAddsManagedSoftwareDevices(t *testing.T) {
	enable := filepath.Join(t.TempDir(), "modem-enable")
	f := newFixture(t, Options{ManagedSoftware: []string{"wwan0", "eth0"}, ModemEnableFile: enable})

	names, err := f.agg.Interfaces(context.Background())
	require.NoError(t, err)
	assert.NotContains(t, names, "wwan0")

	require.NoError(t, os.WriteFile(enable, nil, 0o644))
	names, err = f.agg.Interfaces(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"wlan0", "eth0", "wwan0"}, names)
}

func TestStatusExcludesUnmanaged(t *testing.T) {
	f := newFixture(t, Options{})
	f.runner.On("Run", iwPath, "reg get").Return([]byte("global\ncountry US: DFS-FCC\n"), nil)

	status, err := f.agg.Status(context.Background())
	require.NoError(t, err)
	assert.Len(t, status, 2)
	assert.NotContains(t, status, "eth1")
	assert.NotContains(t, status, "usb0")

	eth0 := status["eth0"]
	assert.Equal(t, "Disconnected", eth0.Status.StateText)
	assert.Equal(t, "Ethernet", eth0.Status.DeviceTypeText)
	require.NotNil(t, eth0.Wired)
	assert.True(t, eth0.Wired.Carrier)
	assert.Equal(t, uint32(100), eth0.Wired.Speed)
	assert.Nil(t, eth0.IP4Config)
	assert.Nil(t, eth0.Wireless)

	wlan0 := status["wlan0"]
	require.NotNil(t, wlan0.Wireless)
	assert.Equal(t, "US", wlan0.Wireless.RegDomain)
	assert.Equal(t, "Infrastructure", wlan0.Wireless.ModeText)
	assert.Nil(t, wlan0.ActiveAccessPoint)
}

func TestStatusOfActivatedWirelessDevice(t *testing.T) {
	f := newFixture(t, Options{})
	_, err := f.backend.AddAccessPoint(f.wlan0, nm.AccessPointSpec{
		SSID: "CorpNet", HwAddress: "00:11:22:33:44:55", Strength: 70, Frequency: 2437, Mode: nm.WifiModeInfra,
		Flags: nm.APFlagsPrivacy, RsnFlags: nm.APSecKeyMgmtPSK,
	})
	require.NoError(t, err)
	f.activate(t, f.wlan0, officeSettings())

	f.runner.On("Run", iwPath, "reg get").Return(nil, errors.New("exit status 1"))
	f.runner.On("Run", iwPath, "dev wlan0 link").Return([]byte("Connected to 00:11:22:33:44:55 (on wlan0)\n\tSSID: CorpNet\n\tfreq: 2437\n\tsignal: -52 dBm\n"), nil)

	status, err := f.agg.Status(context.Background())
	require.NoError(t, err)

	wlan0 := status["wlan0"]
	assert.Equal(t, nm.DeviceStateActivated, wlan0.Status.State)
	require.NotNil(t, wlan0.ActiveConnection)
	assert.Equal(t, "office", wlan0.ActiveConnection.ID)
	require.NotNil(t, wlan0.IP4Config)
	assert.Len(t, wlan0.IP4Config.Addresses, 1)
	require.NotNil(t, wlan0.DHCP4Config)
	assert.Contains(t, wlan0.DHCP4Config.Options, "ip_address")
	assert.Equal(t, DefaultRegDomain, wlan0.Wireless.RegDomain)

	ap := wlan0.ActiveAccessPoint
	require.NotNil(t, ap)
	assert.Equal(t, "CorpNet", ap.SSID)
	assert.Equal(t, -52.0, ap.Signal)
	assert.Equal(t, uint8(70), ap.Strength)
	assert.Equal(t, uint32(6), ap.Channel)
	f.runner.AssertExpectations(t)
}

func TestActiveAccessPointInAPMode(t *testing.T) {
	f := newFixture(t, Options{})
	_, err := f.backend.AddAccessPoint(f.wlan0, nm.AccessPointSpec{SSID: "Hotspot", Frequency: 2412, Mode: nm.WifiModeAP})
	require.NoError(t, err)
	hotspot := officeSettings()
	hotspot["802-11-wireless"] = map[string]nm.Variant{"ssid": nm.Bytes([]byte("Hotspot")), "mode": nm.String("ap")}
	f.activate(t, f.wlan0, hotspot)

	f.runner.On("Run", iwPath, "reg get").Return([]byte("global\ncountry US: DFS-FCC\n\nphy#0\ncountry CA: DFS-FCC\n"), nil)
	f.runner.On("Run", iwPath, "dev").Return([]byte("phy#0\n\tInterface wlan0\n\t\tifindex 3\n\t\ttype AP\n\t\tchannel 36 (5180 MHz), width: 20 MHz, center1: 5180 MHz\n"), nil)

	status, err := f.agg.Status(context.Background())
	require.NoError(t, err)

	wlan0 := status["wlan0"]
	assert.Equal(t, "CA", wlan0.Wireless.RegDomain)
	ap := wlan0.ActiveAccessPoint
	require.NotNil(t, ap)
	assert.Equal(t, uint8(100), ap.Strength)
	assert.Equal(t, uint32(5180), ap.Frequency)
	assert.Equal(t, InvalidRSSI, ap.Signal)
	f.runner.AssertNotCalled(t, "Run", iwPath, "dev wlan0 link")
}

func TestInterfaceDetail(t *testing.T) {
	f := newFixture(t, Options{})
	_, err := f.backend.AddConnection(context.Background(), nm.ConnectionSettings{
		"connection": {
			"id":             nm.String("wired"),
			"uuid":           nm.String("6a7e0a3e-0000-4000-8000-000000000002"),
			"type":           nm.String("802-3-ethernet"),
			"interface-name": nm.String("eth0"),
		},
	})
	require.NoError(t, err)

	f.links.On("DriverInfo", "eth0").Return(DriverInfo{Driver: "macb", Version: "6.1", Firmware: "n/a"}, nil)
	f.links.On("LinkFlags", "eth0").Return([]string{"UP", "BROADCAST", "RUNNING", "MULTICAST"}, nil)

	d, err := f.agg.Interface(context.Background(), "eth0")
	require.NoError(t, err)
	assert.Equal(t, "eth0", d.Interface)
	assert.Equal(t, "macb", d.Driver)
	assert.Equal(t, "n/a", d.FirmwareVersion)
	assert.Equal(t, []string{"UP", "BROADCAST", "RUNNING", "MULTICAST"}, d.LinkFlags)
	assert.Equal(t, []string{"UP", "CARRIER"}, d.InterfaceFlagsText)
	assert.Equal(t, []string{"NM_SUPPORTED", "CARRIER_DETECT", "IS_SOFTWARE"}, d.CapabilitiesText)
	require.Len(t, d.AvailableConnections, 1)
	assert.Equal(t, "wired", d.AvailableConnections[0].ID)
	require.NotNil(t, d.Wired)
	f.links.AssertExpectations(t)
}

func TestInterfaceDetailKeepsBackendDriver(t *testing.T) {
	f := newFixture(t, Options{})
	f.runner.On("Run", iwPath, "reg get").Return(nil, errors.New("exit status 1"))
	f.links.On("LinkFlags", "wlan0").Return(nil, errors.New("no such device"))

	d, err := f.agg.Interface(context.Background(), "wlan0")
	require.NoError(t, err)
	assert.Equal(t, "ath6kl_sdio", d.Driver)
	assert.Nil(t, d.LinkFlags)
	f.links.AssertNotCalled(t, "DriverInfo", "wlan0")
}

func TestInterfaceUnmanagedIsNotFound(t *testing.T) {
	f := newFixture(t, Options{})
	_, err := f.agg.Interface(context.Background(), "eth1")
	assert.Equal(t, fault.NotFound, fault.KindOf(err))

	_, err = f.agg.Stats(context.Background(), "eth1")
	assert.Equal(t, fault.NotFound, fault.KindOf(err))
}

func TestStats(t *testing.T) {
	f := newFixture(t, Options{})
	f.links.On("Stats", "eth0").Return(metrics.InterfaceStats{Name: "eth0", RxBytes: 1024, TxBytes: 2048}, nil)
	f.links.On("Stats", "wlan0").Return(metrics.InterfaceStats{}, errors.New("link not found"))

	s, err := f.agg.Stats(context.Background(), "eth0")
	require.NoError(t, err)
	assert.Equal(t, int64(1024), s.RxBytes)

	s, err = f.agg.Stats(context.Background(), "wlan0")
	require.NoError(t, err)
	assert.Equal(t, metrics.UnknownInterfaceStats("wlan0"), s)

	all, err := f.agg.AllInterfaceStats(context.Background())
	require.NoError(t, err)
	assert.Len(t, all, 2)
	assert.Equal(t, int64(-1), all["wlan0"].TxDropped)
}

func TestVirtualInterface(t *testing.T) {
	f := newFixture(t, Options{WifiInterface: "wlan0", VirtualInterface: "wlan1"})
	f.runner.On("Run", iwPath, "dev wlan0 interface add wlan1 type managed").Return([]byte{}, nil)
	f.runner.On("Run", iwPath, "dev wlan1 del").Return(nil, errors.New("No such device"))

	require.NoError(t, f.agg.AddVirtualInterface(context.Background()))
	err := f.agg.RemoveVirtualInterface(context.Background())
	require.Error(t, err)
	assert.Equal(t, fault.Internal, fault.KindOf(err))
	f.runner.AssertExpectations(t)
}

func TestVirtualInterfaceNotConfigured(t *testing.T) {
	f := newFixture(t, Options{})
	err := f.agg.AddVirtualInterface(context.Background())
	assert.Equal(t, fault.Validation, fault.KindOf(err))
	assert.Equal(t, fault.Validation, fault.KindOf(f.agg.CheckVirtualName(OpAddVirtual, "wlan1")))
}

func TestCheckVirtualName(t *testing.T) {
	f := newFixture(t, Options{WifiInterface: "wlan0", VirtualInterface: "wlan1"})

	assert.NoError(t, f.agg.CheckVirtualName(OpAddVirtual, "wlan1"))
	err := f.agg.CheckVirtualName(OpDelVirtual, "wlan0")
	require.Error(t, err)
	assert.Equal(t, fault.Validation, fault.KindOf(err))
	assert.Contains(t, err.Error(), "only wlan1 is supported")
}
