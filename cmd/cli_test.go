package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"grimm.is/halyard/internal/nm"
)

type cliFixture struct {
	backend *nm.MemoryBackend
	wlan0   string
	url     string
}

func newCLIFixture(t *testing.T) *cliFixture {
	t.Helper()
	Printer = message.NewPrinter(language.English)

	backend := nm.NewMemoryBackend()
	f := &cliFixture{
		backend: backend,
		wlan0:   backend.AddDevice(nm.DeviceSpec{Interface: "wlan0", Type: nm.DeviceTypeWifi}),
	}
	backend.AddDevice(nm.DeviceSpec{Interface: "eth0", Type: nm.DeviceTypeEthernet, Carrier: true})

	d, err := newDaemon(context.Background(), testConfig(t), backend, discardLogger())
	require.NoError(t, err)
	t.Cleanup(d.Close)

	hs := httptest.NewServer(d.server.Handler())
	t.Cleanup(hs.Close)
	f.url = hs.URL
	return f
}

// run executes the root command against the fixture daemon.
func (f *cliFixture) run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(append([]string{"--server", f.url}, args...))
	err := rootCmd.ExecuteContext(context.Background())
	return out.String(), err
}

func writeFile(path, content string) error {
	return os.WriteFile(path, []byte(content), 0644)
}

func TestCLIConnectionLifecycle(t *testing.T) {
	f := newCLIFixture(t)

	doc := map[string]any{
		"connection":               map[string]any{"id": "office", "type": "802-11-wireless", "interface-name": "wlan0"},
		"802-11-wireless":          map[string]any{"ssid": "CorpNet"},
		"802-11-wireless-security": map[string]any{"key-mgmt": "wpa-psk", "psk": "secret123"},
	}
	raw, err := json.Marshal(doc)
	require.NoError(t, err)
	path := filepath.Join(t.TempDir(), "office.json")
	require.NoError(t, os.WriteFile(path, raw, 0644))

	out, err := f.run(t, "connections", "create", "-f", path)
	require.NoError(t, err, out)
	assert.Contains(t, out, "connection office created")

	out, err = f.run(t, "connections", "list")
	require.NoError(t, err)
	assert.Contains(t, out, "ID")
	assert.Contains(t, out, "office")
	assert.Contains(t, out, "802-11-wireless")

	out, err = f.run(t, "connections", "show", "office")
	require.NoError(t, err)
	var shown map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &shown))
	assert.Equal(t, "CorpNet", shown["802-11-wireless"].(map[string]any)["ssid"])

	out, err = f.run(t, "connections", "up", "office")
	require.NoError(t, err, out)
	assert.Contains(t, out, "connection office activated")

	out, err = f.run(t, "status")
	require.NoError(t, err)
	assert.Contains(t, out, "wlan0")
	assert.Contains(t, out, "office")

	out, err = f.run(t, "connections", "down", "office")
	require.NoError(t, err, out)
	assert.Contains(t, out, "deactivated")

	out, err = f.run(t, "connections", "delete", "office")
	require.NoError(t, err)
	assert.Contains(t, out, "connection office deleted")

	_, err = f.run(t, "connections", "delete", "office")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "404")
}

func TestCLICreateRejectsBadDocument(t *testing.T) {
	f := newCLIFixture(t)
	path := filepath.Join(t.TempDir(), "bad.json")
	require.NoError(t, writeFile(path, `{"connection": {"id": "x", "type": "802-3-ethernet"}, "ipv4": {"method": "bogus"}}`))

	_, err := f.run(t, "connections", "create", "-f", path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ipv4.method")

	require.NoError(t, writeFile(path, `{not json`))
	_, err = f.run(t, "connections", "create", "-f", path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to parse settings document")
}

func TestCLIAccessPoints(t *testing.T) {
	f := newCLIFixture(t)
	_, err := f.backend.AddAccessPoint(f.wlan0, nm.AccessPointSpec{
		SSID: "CorpNet", HwAddress: "00:11:22:33:44:55", Strength: 82, Frequency: 5180,
		Flags: nm.APFlagsPrivacy, RsnFlags: nm.APSecKeyMgmtPSK,
	})
	require.NoError(t, err)

	out, err := f.run(t, "aps", "list")
	require.NoError(t, err)
	assert.Contains(t, out, "CorpNet")
	assert.Contains(t, out, "00:11:22:33:44:55")
	assert.Contains(t, out, "36")
	assert.Contains(t, out, "82%")

	out, err = f.run(t, "aps", "scan")
	require.NoError(t, err)
	assert.Contains(t, out, "Scan requested")
}

func TestCLIInterfaces(t *testing.T) {
	f := newCLIFixture(t)

	out, err := f.run(t, "interfaces", "list")
	require.NoError(t, err)
	assert.Contains(t, out, "wlan0")
	assert.Contains(t, out, "eth0")
}
