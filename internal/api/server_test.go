package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"grimm.is/halyard/internal/health"
	"grimm.is/halyard/internal/inventory"
	"grimm.is/halyard/internal/logging"
	"grimm.is/halyard/internal/metrics"
	"grimm.is/halyard/internal/nm"
	"grimm.is/halyard/internal/profile"
)

type stubLinks struct{}

func (stubLinks) DriverInfo(name string) (inventory.DriverInfo, error) {
	return inventory.DriverInfo{}, errors.New("ethtool unavailable")
}

func (stubLinks) LinkFlags(name string) ([]string, error) {
	return []string{"UP", "BROADCAST", "RUNNING", "MULTICAST"}, nil
}

func (stubLinks) Stats(name string) (metrics.InterfaceStats, error) {
	return metrics.InterfaceStats{Name: name, RxBytes: 1024, RxPackets: 8, TxBytes: 2048, TxPackets: 16}, nil
}

type testServer struct {
	srv     *Server
	backend *nm.MemoryBackend
	wlan0   string
}

func quietLogger() *logging.Logger {
	cfg := logging.DefaultConfig()
	cfg.Output = io.Discard
	return logging.New(cfg)
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	backend := nm.NewMemoryBackend()
	ts := &testServer{
		backend: backend,
		wlan0:   backend.AddDevice(nm.DeviceSpec{Interface: "wlan0", Type: nm.DeviceTypeWifi, Driver: "ath6kl_sdio", HwAddress: "C0:EE:40:00:00:01"}),
	}
	backend.AddDevice(nm.DeviceSpec{Interface: "eth0", Type: nm.DeviceTypeEthernet, Driver: "macb", HwAddress: "C0:EE:40:00:00:02", Carrier: true, Speed: 100})
	backend.AddDevice(nm.DeviceSpec{Interface: "eth1", Type: nm.DeviceTypeEthernet})

	log := quietLogger()
	client := nm.NewClient(backend)
	mgr := profile.NewManager(client, profile.Options{
		CertDir:        "/etc/halyard/certs",
		Reserved:       []string{"default"},
		Unmanaged:      []string{"eth1"},
		VerifyAttempts: 3,
		VerifyInterval: time.Millisecond,
		Logger:         log,
	})
	agg := inventory.NewAggregator(client, inventory.Options{
		Unmanaged:        []string{"eth1"},
		WifiInterface:    "wlan0",
		VirtualInterface: "wlan1",
		IW:               inventory.NewIW("/nonexistent/iw", time.Second, nil, log),
		Links:            stubLinks{},
		Logger:           log,
	})

	srv, err := NewServer(ServerOptions{Profiles: mgr, Inventory: agg, Logger: log})
	require.NoError(t, err)
	ts.srv = srv
	return ts
}

func (ts *testServer) do(t *testing.T, method, path string, body any) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	var rd io.Reader
	switch b := body.(type) {
	case nil:
	case string:
		rd = strings.NewReader(b)
	default:
		raw, err := json.Marshal(b)
		require.NoError(t, err)
		rd = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, rd)
	if rd != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	ts.srv.Handler().ServeHTTP(rec, req)

	var out map[string]any
	if strings.HasPrefix(strings.TrimSpace(rec.Body.String()), "{") {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	}
	return rec, out
}

func officeBody() map[string]any {
	return map[string]any{
		"connection": map[string]any{
			"id":             "office",
			"type":           "802-11-wireless",
			"interface-name": "wlan0",
		},
		"802-11-wireless":          map[string]any{"ssid": "CorpNet"},
		"802-11-wireless-security": map[string]any{"key-mgmt": "wpa-psk", "psk": "secret123"},
	}
}

func guestBody(gateway, method string) map[string]any {
	return map[string]any{
		"connection": map[string]any{
			"id":             "guest",
			"type":           "802-3-ethernet",
			"interface-name": "eth0",
		},
		"ipv4": map[string]any{
			"method":       method,
			"gateway":      gateway,
			"address-data": []any{map[string]any{"address": "10.0.0.20", "prefix": 24}},
		},
	}
}

func TestNewServerRequiresCollaborators(t *testing.T) {
	_, err := NewServer(ServerOptions{})
	assert.Error(t, err)
}

func TestOfficeScenario(t *testing.T) {
	ts := newTestServer(t)

	rec, body := ts.do(t, http.MethodPost, "/connections", officeBody())
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	uuid, _ := body["uuid"].(string)
	require.NotEmpty(t, uuid)
	assert.Equal(t, "office", body["id"])

	rec, body = ts.do(t, http.MethodPatch, "/connections/"+uuid, map[string]any{"activate": true})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, true, body["activated"])

	rec, body = ts.do(t, http.MethodGet, "/connections/"+uuid+"?extended=true", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	general := body["GENERAL"].(map[string]any)
	assert.Equal(t, "activated", general["state"])
	security := body["802-11-wireless-security"].(map[string]any)
	assert.Equal(t, "<hidden>", security["psk"])

	rec, body = ts.do(t, http.MethodPatch, "/connections/office", map[string]any{"activate": true})
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, body["message"], "already active")
}

func TestListConnections(t *testing.T) {
	ts := newTestServer(t)

	rec, _ := ts.do(t, http.MethodPost, "/connections", officeBody())
	require.Equal(t, http.StatusCreated, rec.Code)
	hidden := guestBody("10.0.0.1", "manual")
	hidden["connection"].(map[string]any)["interface-name"] = "eth1"
	rec, _ = ts.do(t, http.MethodPost, "/connections", hidden)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec, body := ts.do(t, http.MethodGet, "/connections", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.EqualValues(t, 1, body["count"])
	conns := body["connections"].([]any)
	first := conns[0].(map[string]any)
	assert.Equal(t, "office", first["id"])
	assert.Equal(t, "infrastructure", first["type"])
	assert.Equal(t, false, first["activated"])
}

func TestCreateDuplicateIsConflict(t *testing.T) {
	ts := newTestServer(t)

	rec, _ := ts.do(t, http.MethodPost, "/connections", officeBody())
	require.Equal(t, http.StatusCreated, rec.Code)

	rec, body := ts.do(t, http.MethodPost, "/connections", officeBody())
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "conflict", body["kind"])
}

func TestCreateValidationErrors(t *testing.T) {
	ts := newTestServer(t)

	doc := officeBody()
	doc["ipv4"] = map[string]any{"method": "bogus"}
	doc["802-11-wireless"].(map[string]any)["colour"] = "blue"

	rec, body := ts.do(t, http.MethodPost, "/connections", doc)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "validation", body["kind"])
	assert.Len(t, body["fields"], 2)

	rec, _ = ts.do(t, http.MethodPost, "/connections", "{not json")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, _ = ts.do(t, http.MethodPost, "/connections", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGetConnection(t *testing.T) {
	ts := newTestServer(t)

	rec, _ := ts.do(t, http.MethodGet, "/connections/nope", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	ts.do(t, http.MethodPost, "/connections", guestBody("10.0.0.1", "manual"))

	rec, _ = ts.do(t, http.MethodGet, "/connections/guest?extended=maybe", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, body := ts.do(t, http.MethodGet, "/connections/guest?extended=1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotContains(t, body, "GENERAL")

	rec, body = ts.do(t, http.MethodGet, "/connections/guest?legacy=true", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	ipv4 := body["ipv4"].(map[string]any)
	assert.Equal(t, []any{"10.0.0.20/24"}, ipv4["addresses"])
}

func TestReplaceGuestScenarioRestores(t *testing.T) {
	ts := newTestServer(t)

	rec, _ := ts.do(t, http.MethodPost, "/connections", guestBody("10.0.0.1", "manual"))
	require.Equal(t, http.StatusCreated, rec.Code)

	ts.backend.SetAddHook(func(cs nm.ConnectionSettings) error {
		if m, _ := cs["ipv4"]["method"].Value.(string); m == "shared" {
			return errors.New("ipv4.method: property is invalid")
		}
		return nil
	})

	rec, body := ts.do(t, http.MethodPut, "/connections/guest", guestBody("10.0.0.1", "shared"))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, true, body["restored"])

	rec, body = ts.do(t, http.MethodGet, "/connections/guest", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	ipv4 := body["ipv4"].(map[string]any)
	assert.Equal(t, "10.0.0.1", ipv4["gateway"])
	assert.Equal(t, "manual", ipv4["method"])

	rec, body = ts.do(t, http.MethodPut, "/connections/guest", guestBody("10.0.0.254", "manual"))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "guest", body["id"])
}

func TestDeleteConnection(t *testing.T) {
	ts := newTestServer(t)

	rec, _ := ts.do(t, http.MethodDelete, "/connections/missing", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	reserved := guestBody("10.0.0.1", "manual")
	reserved["connection"].(map[string]any)["id"] = "default"
	rec, _ = ts.do(t, http.MethodPost, "/connections", reserved)
	require.Equal(t, http.StatusCreated, rec.Code)

	rec, body := ts.do(t, http.MethodDelete, "/connections/default", nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, "reserved", body["kind"])

	ts.do(t, http.MethodPost, "/connections", officeBody())
	rec, _ = ts.do(t, http.MethodDelete, "/connections/office", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	rec, _ = ts.do(t, http.MethodGet, "/connections/office", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestReloadConnections(t *testing.T) {
	ts := newTestServer(t)

	rec, _ := ts.do(t, http.MethodPost, "/connections/reload", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, ts.backend.Reloads())
}

func TestBackendUnavailable(t *testing.T) {
	ts := newTestServer(t)
	ts.backend.SetUnavailable(true)

	rec, body := ts.do(t, http.MethodGet, "/connections", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "backend_unavailable", body["kind"])
}

func TestAccessPoints(t *testing.T) {
	ts := newTestServer(t)
	_, err := ts.backend.AddAccessPoint(ts.wlan0, nm.AccessPointSpec{
		SSID: "CorpNet", HwAddress: "00:11:22:33:44:55", Strength: 70, Frequency: 5180,
		Flags: nm.APFlagsPrivacy, RsnFlags: nm.APSecPairCCMP | nm.APSecKeyMgmtPSK,
	})
	require.NoError(t, err)

	rec, body := ts.do(t, http.MethodGet, "/accessPoints", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.EqualValues(t, 1, body["count"])
	ap := body["accessPoints"].([]any)[0].(map[string]any)
	assert.Equal(t, "CorpNet", ap["ssid"])
	assert.Equal(t, "wpa-psk", ap["keymgmt"])
	assert.EqualValues(t, 36, ap["channel"])

	rec, body = ts.do(t, http.MethodPut, "/accessPoints", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Scan requested", body["message"])
	assert.Equal(t, 1, ts.backend.ScanRequests())
}

func TestInterfaces(t *testing.T) {
	ts := newTestServer(t)

	rec := httptest.NewRecorder()
	ts.srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/interfaces", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var names []string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &names))
	assert.ElementsMatch(t, []string{"wlan0", "eth0"}, names)

	rec, _ = ts.do(t, http.MethodGet, "/interfaces/eth1", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec, body := ts.do(t, http.MethodGet, "/interfaces/eth0", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Contains(t, body, "status")

	rec, body = ts.do(t, http.MethodGet, "/interfaces/eth0/stats", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.EqualValues(t, 1024, body["rxBytes"])
	assert.EqualValues(t, 2048, body["txBytes"])
}

func TestVirtualInterface(t *testing.T) {
	ts := newTestServer(t)

	rec, _ := ts.do(t, http.MethodPost, "/interfaces", map[string]any{"interface": "wlan2", "type": "STA"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, body := ts.do(t, http.MethodPost, "/interfaces", map[string]any{"interface": "wlan1", "type": "AP"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	require.Len(t, body["fields"], 1)
	assert.Equal(t, "type", body["fields"].([]any)[0].(map[string]any)["field"])

	rec, _ = ts.do(t, http.MethodPost, "/interfaces", map[string]any{"interface": "wlan1", "type": "STA"})
	assert.Equal(t, http.StatusInternalServerError, rec.Code, "iw is not installed")

	rec, _ = ts.do(t, http.MethodPut, "/interfaces/wlan0", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, _ = ts.do(t, http.MethodDelete, "/interfaces/wlan1", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestStatusExcludesUnmanaged(t *testing.T) {
	ts := newTestServer(t)

	rec, body := ts.do(t, http.MethodGet, "/status", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	status := body["status"].(map[string]any)
	assert.Contains(t, status, "eth0")
	assert.Contains(t, status, "wlan0")
	assert.NotContains(t, status, "eth1")
	assert.EqualValues(t, 2, body["devices"])
}

func TestStatusInvalidatedByActivation(t *testing.T) {
	ts := newTestServer(t)

	_, body := ts.do(t, http.MethodGet, "/status", nil)
	eth0 := body["status"].(map[string]any)["eth0"].(map[string]any)
	assert.NotContains(t, eth0, "activeConnection")

	rec, _ := ts.do(t, http.MethodPost, "/connections", guestBody("10.0.0.1", "manual"))
	require.Equal(t, http.StatusCreated, rec.Code)
	rec, _ = ts.do(t, http.MethodPatch, "/connections/guest", map[string]any{"activate": true})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	_, body = ts.do(t, http.MethodGet, "/status", nil)
	eth0 = body["status"].(map[string]any)["eth0"].(map[string]any)
	assert.Contains(t, eth0, "activeConnection")
}

func TestStatusInvalidatedByCreate(t *testing.T) {
	ts := newTestServer(t)

	_, body := ts.do(t, http.MethodGet, "/status", nil)
	eth0 := body["status"].(map[string]any)["eth0"].(map[string]any)["status"].(map[string]any)
	assert.Empty(t, eth0["availableConnections"])

	rec, _ := ts.do(t, http.MethodPost, "/connections", guestBody("10.0.0.1", "manual"))
	require.Equal(t, http.StatusCreated, rec.Code)

	_, body = ts.do(t, http.MethodGet, "/status", nil)
	eth0 = body["status"].(map[string]any)["eth0"].(map[string]any)["status"].(map[string]any)
	available := eth0["availableConnections"].([]any)
	require.Len(t, available, 1)
	assert.Equal(t, "guest", available[0].(map[string]any)["id"])
}

func TestMetricsEndpoint(t *testing.T) {
	ts := newTestServer(t)
	ts.do(t, http.MethodGet, "/connections", nil)

	rec := httptest.NewRecorder()
	ts.srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "halyard_api_requests_total")
	assert.Contains(t, rec.Body.String(), "halyard_profile_operations_total")
}

func TestShutdownWithoutStart(t *testing.T) {
	ts := newTestServer(t)
	assert.NoError(t, ts.srv.Shutdown(context.Background()))
	assert.NoError(t, ts.srv.Start("127.0.0.1:0"), "Start after Shutdown must return immediately")
}

func TestHealthEndpoints(t *testing.T) {
	ts := newTestServer(t)

	rec, body := ts.do(t, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "degraded", body["status"], "no status snapshot has been taken yet")

	ts.do(t, http.MethodGet, "/status", nil)
	checker := health.NewChecker(0)
	checker.Register("status", health.SnapshotCheck(ts.srv.status, time.Minute))
	checker.Register("backend", health.BackendCheck(nm.NewClient(ts.backend)))
	srv, err := NewServer(ServerOptions{Profiles: ts.srv.profiles, Inventory: ts.srv.inventory, Status: ts.srv.status, Health: checker, Logger: quietLogger()})
	require.NoError(t, err)
	ts.srv = srv

	rec, body = ts.do(t, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "healthy", body["status"])

	ts.backend.SetUnavailable(true)
	rec, _ = ts.do(t, http.MethodGet, "/readyz", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	rec, _ = ts.do(t, http.MethodGet, "/healthz", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}
