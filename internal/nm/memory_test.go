package nm

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func wiredProfile(id, uuid, ifname string) ConnectionSettings {
	return ConnectionSettings{
		"connection": {
			"id":             String(id),
			"uuid":           String(uuid),
			"type":           String("802-3-ethernet"),
			"interface-name": String(ifname),
		},
		"ipv4": {"method": String("manual"), "gateway": String("10.0.0.1"),
			"address-data": Dicts(AddressesToDicts([]Address{{Address: "10.0.0.5", Prefix: 24}}))},
	}
}

func TestMemoryBackendAddValidates(t *testing.T) {
	ctx := context.Background()
	m := NewMemoryBackend()

	_, err := m.AddConnection(ctx, ConnectionSettings{"connection": {"id": String("x")}})
	assert.Error(t, err)

	cs := wiredProfile("lan", "u-1", "eth0")
	cs["ipv4"]["method"] = String("bogus")
	_, err = m.AddConnection(ctx, cs)
	assert.ErrorContains(t, err, "ipv4.method")

	_, err = m.AddConnection(ctx, wiredProfile("lan", "u-1", "eth0"))
	require.NoError(t, err)
	_, err = m.AddConnection(ctx, wiredProfile("lan2", "u-1", "eth0"))
	assert.ErrorContains(t, err, "already exists")
}

func TestMemoryBackendActivateDeactivate(t *testing.T) {
	ctx := context.Background()
	m := NewMemoryBackend()
	dev := m.AddDevice(DeviceSpec{Interface: "eth0", Type: DeviceTypeEthernet, Carrier: true})
	path, err := m.AddConnection(ctx, wiredProfile("lan", "u-1", "eth0"))
	require.NoError(t, err)

	c := NewClient(m)
	d, err := c.Device(ctx, dev)
	require.NoError(t, err)
	assert.Equal(t, []string{path}, d.AvailableConnections)
	assert.Equal(t, DeviceStateDisconnected, d.State)

	active, err := m.ActivateConnection(ctx, path, dev, "")
	require.NoError(t, err)

	ac, found, err := c.ActiveConnectionByUUID(ctx, "u-1")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, active, ac.Path)
	assert.Equal(t, ActiveStateActivated, ac.State)
	assert.True(t, ac.Default)

	ip4, err := c.IPConfig(ctx, ac.IP4Config, false)
	require.NoError(t, err)
	assert.Equal(t, "10.0.0.1", ip4.Gateway)
	assert.Equal(t, []Address{{Address: "10.0.0.5", Prefix: 24}}, ip4.Addresses)

	d, err = c.Device(ctx, dev)
	require.NoError(t, err)
	assert.Equal(t, DeviceStateActivated, d.State)
	assert.Equal(t, active, d.ActiveConnection)

	require.NoError(t, m.DeactivateConnection(ctx, active))
	_, found, err = c.ActiveConnectionByUUID(ctx, "u-1")
	require.NoError(t, err)
	assert.False(t, found)

	err = m.DeactivateConnection(ctx, active)
	assert.True(t, errors.Is(err, ErrUnknownObject))
}

func TestMemoryBackendDeleteTearsDownActive(t *testing.T) {
	ctx := context.Background()
	m := NewMemoryBackend()
	dev := m.AddDevice(DeviceSpec{Interface: "eth0", Type: DeviceTypeEthernet})
	path, err := m.AddConnection(ctx, wiredProfile("lan", "u-1", "eth0"))
	require.NoError(t, err)
	_, err = m.ActivateConnection(ctx, path, dev, "")
	require.NoError(t, err)

	require.NoError(t, m.DeleteConnection(ctx, path))
	paths, err := NewClient(m).ActiveConnectionPaths(ctx)
	require.NoError(t, err)
	assert.Empty(t, paths)

	_, err = m.GetSettings(ctx, path)
	assert.True(t, errors.Is(err, ErrUnknownObject))
}

func TestMemoryBackendSecretsAndHooks(t *testing.T) {
	ctx := context.Background()
	m := NewMemoryBackend()
	cs := ConnectionSettings{
		"connection":               {"id": String("office"), "uuid": String("u-2"), "type": String("802-11-wireless")},
		"802-11-wireless":          {"ssid": Bytes([]byte("CorpNet"))},
		"802-11-wireless-security": {"key-mgmt": String("wpa-psk"), "psk": String("secret123")},
	}
	path, err := m.AddConnection(ctx, cs)
	require.NoError(t, err)

	got, err := m.GetSettings(ctx, path)
	require.NoError(t, err)
	assert.NotContains(t, got["802-11-wireless-security"], "psk")

	sec, err := m.GetSecrets(ctx, path, "802-11-wireless-security")
	require.NoError(t, err)
	assert.Equal(t, "secret123", sec["802-11-wireless-security"]["psk"].Value)

	boom := errors.New("boom")
	m.SetAddHook(func(ConnectionSettings) error { return boom })
	_, err = m.AddConnection(ctx, wiredProfile("lan", "u-3", "eth0"))
	assert.ErrorIs(t, err, boom)

	m.SetUnavailable(true)
	_, err = m.ListConnections(ctx)
	assert.ErrorIs(t, err, ErrUnavailable)
}

func TestMemoryBackendAccessPointsAndScan(t *testing.T) {
	ctx := context.Background()
	m := NewMemoryBackend()
	wlan := m.AddDevice(DeviceSpec{Interface: "wlan0", Type: DeviceTypeWifi})
	eth := m.AddDevice(DeviceSpec{Interface: "eth0", Type: DeviceTypeEthernet})

	_, err := m.AddAccessPoint(wlan, AccessPointSpec{SSID: "CorpNet", HwAddress: "00:11:22:33:44:55", Strength: 80, RsnFlags: APSecKeyMgmtPSK})
	require.NoError(t, err)
	_, err = m.AddAccessPoint(eth, AccessPointSpec{SSID: "x"})
	assert.Error(t, err)

	aps, err := NewClient(m).AccessPoints(ctx, wlan)
	require.NoError(t, err)
	require.Len(t, aps, 1)
	assert.Equal(t, []byte("CorpNet"), aps[0].SSID)
	assert.Equal(t, uint8(80), aps[0].Strength)
	assert.Equal(t, APSecKeyMgmtPSK, aps[0].RsnFlags)

	require.NoError(t, m.RequestScan(ctx, wlan))
	assert.Error(t, m.RequestScan(ctx, eth))
	assert.Equal(t, 1, m.ScanRequests())
}
