package settings

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"grimm.is/halyard/internal/fault"
	"grimm.is/halyard/internal/nm"
)

const testCertDir = "/etc/halyard/certs"

func overlay(t *testing.T, group string, values Group) Group {
	t.Helper()
	g, ok := Defaults(group)
	require.True(t, ok, "no schema for %s", group)
	for k, v := range values {
		g[k] = v
	}
	derive(group, g)
	return g
}

func TestDefaultsMatchEmptyRendering(t *testing.T) {
	c := NewCodec(testCertDir)
	for _, group := range Groups() {
		t.Run(group, func(t *testing.T) {
			want, ok := Defaults(group)
			require.True(t, ok)
			got, err := c.GroupToJSON(group, map[string]nm.Variant{})
			require.NoError(t, err)
			assert.Equal(t, want, got)
		})
	}
}

func TestDefaultsAreIndependentCopies(t *testing.T) {
	a, _ := Defaults(GroupIPv4)
	a["dns-search"] = append(a["dns-search"].([]string), "example.com")
	b, _ := Defaults(GroupIPv4)
	assert.Empty(t, b["dns-search"])
}

func TestRoundTrip(t *testing.T) {
	c := NewCodec(testCertDir)

	tests := []struct {
		group  string
		values Group
	}{
		{GroupConnection, Group{
			"id":             "office",
			"uuid":           "6b1f4c0e-5f2b-4a4c-9d0e-1f0a3f6b2c11",
			"type":           "802-11-wireless",
			"interface-name": "wlan0",
			"autoconnect":    false,
			"metered":        int64(2),
			"permissions":    []string{"user:root"},
			"timestamp":      uint64(1700000000),
		}},
		{GroupIPv4, Group{
			"method": "manual",
			"address-data": []any{
				map[string]any{"address": "192.168.1.10", "prefix": int64(24)},
			},
			"route-data": []any{
				map[string]any{"dest": "10.0.0.0", "prefix": int64(8), "next-hop": "192.168.1.1", "metric": int64(100)},
				map[string]any{"dest": "172.16.0.0", "prefix": int64(12), "next-hop": nil, "metric": int64(-1)},
			},
			"gateway":      "192.168.1.1",
			"dns":          []string{"1.1.1.1", "8.8.8.8"},
			"dns-search":   []string{"corp.example"},
			"route-metric": int64(600),
		}},
		{GroupIPv6, Group{
			"method": "manual",
			"address-data": []any{
				map[string]any{"address": "fd00::10", "prefix": int64(64)},
			},
			"dns": []string{"fd00::53"},
			"mtu": int64(1400),
		}},
		{GroupWireless, Group{
			"ssid":        "CorpNet",
			"mode":        "infrastructure",
			"bssid":       "AA:BB:CC:DD:EE:FF",
			"hidden":      true,
			"band":        "a",
			"channel":     int64(36),
			"seen-bssids": []string{"AA:BB:CC:DD:EE:FF"},
		}},
		{GroupWirelessSecurity, Group{
			"key-mgmt": "wpa-psk",
			"proto":    []string{"rsn"},
			"pairwise": []string{"ccmp"},
		}},
		{Group8021X, Group{
			"eap":         []string{"tls"},
			"identity":    "device01",
			"ca-cert":     "ca.pem",
			"client-cert": "client.pem",
			"private-key": "client.key",
			"pac-file":    "fast.pac",
		}},
		{GroupWired, Group{
			"mac-address":  "00:11:22:33:44:55",
			"duplex":       "full",
			"speed":        int64(1000),
			"s390-options": map[string]string{"portno": "0"},
		}},
		{GroupGSM, Group{
			"apn":         "internet",
			"auto-config": true,
		}},
		{GroupProxy, Group{
			"method":  int64(1),
			"pac-url": "http://wpad/wpad.dat",
		}},
	}

	for _, tt := range tests {
		t.Run(tt.group, func(t *testing.T) {
			x := overlay(t, tt.group, tt.values)
			props, err := c.GroupFromJSON(tt.group, x)
			require.NoError(t, err)
			y, err := c.GroupToJSON(tt.group, props)
			require.NoError(t, err)
			assert.Equal(t, x, y)
		})
	}
}

func TestRoundTripThroughJSONEncoding(t *testing.T) {
	c := NewCodec(testCertDir)
	x := overlay(t, GroupIPv4, Group{
		"method": "manual",
		"address-data": []any{
			map[string]any{"address": "192.168.1.10", "prefix": int64(24)},
		},
		"dns": []string{"9.9.9.9"},
	})

	raw, err := json.Marshal(x)
	require.NoError(t, err)
	var decoded Group
	require.NoError(t, json.Unmarshal(raw, &decoded))

	props, err := c.GroupFromJSON(GroupIPv4, decoded)
	require.NoError(t, err)
	y, err := c.GroupToJSON(GroupIPv4, props)
	require.NoError(t, err)

	out, err := json.Marshal(y)
	require.NoError(t, err)
	assert.JSONEq(t, string(raw), string(out))
}

func TestSecretsAreRedacted(t *testing.T) {
	c := NewCodec(testCertDir)
	g, err := c.GroupToJSON(GroupWirelessSecurity, map[string]nm.Variant{
		"key-mgmt": nm.String("wpa-psk"),
		"psk":      nm.String("secret123"),
	})
	require.NoError(t, err)
	assert.Equal(t, Hidden, g["psk"])
	assert.Nil(t, g["wep-key0"])

	g, err = c.GroupToJSON(Group8021X, map[string]nm.Variant{
		"password":     nm.String("hunter2"),
		"password-raw": nm.Bytes([]byte{1, 2, 3}),
	})
	require.NoError(t, err)
	assert.Equal(t, Hidden, g["password"])
	assert.Equal(t, Hidden, g["password-raw"])
}

func TestSecretSentinelMeansUnchanged(t *testing.T) {
	c := NewCodec(testCertDir)
	props, err := c.GroupFromJSON(GroupWirelessSecurity, Group{
		"key-mgmt": "wpa-psk",
		"psk":      Hidden,
	})
	require.NoError(t, err)
	assert.NotContains(t, props, "psk")

	props, err = c.GroupFromJSON(GroupWirelessSecurity, Group{"psk": "newsecret"})
	require.NoError(t, err)
	assert.Equal(t, nm.String("newsecret"), props["psk"])
}

func TestCertificatePaths(t *testing.T) {
	c := NewCodec(testCertDir)
	props, err := c.GroupFromJSON(Group8021X, Group{"ca-cert": "ca.pem", "pac-file": "fast.pac"})
	require.NoError(t, err)
	assert.Equal(t, []byte("file:///etc/halyard/certs/ca.pem\x00"), props["ca-cert"].Value)
	assert.Equal(t, "/etc/halyard/certs/fast.pac", props["pac-file"].Value)

	g, err := c.GroupToJSON(Group8021X, map[string]nm.Variant{
		"ca-cert": nm.Bytes([]byte("file:///some/other/dir/root.pem\x00")),
	})
	require.NoError(t, err)
	assert.Equal(t, "root.pem", g["ca-cert"])

	_, err = c.GroupFromJSON(Group8021X, Group{"ca-cert": "../../etc/shadow"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "802-1x.ca-cert")
}

func TestInvalidSSIDIsFieldError(t *testing.T) {
	c := NewCodec(testCertDir)
	g, err := c.GroupToJSON(GroupWireless, map[string]nm.Variant{
		"ssid": nm.Bytes([]byte{0xff, 0xfe, 0x41}),
		"mode": nm.String("infrastructure"),
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "802-11-wireless.ssid")
	assert.Nil(t, g["ssid"])
	assert.Equal(t, "infrastructure", g["mode"])
}

func TestFromJSONCollectsAllErrors(t *testing.T) {
	c := NewCodec(testCertDir)
	_, err := c.FromJSON(Document{
		GroupConnection: {"id": 42, "bogus": true},
		GroupIPv4: {
			"method":       "sometimes",
			"address-data": []any{map[string]any{"address": "fd00::1", "prefix": 24}},
		},
		GroupWireless: {"ssid": "this-ssid-is-definitely-longer-than-32-bytes"},
	})
	require.Error(t, err)

	var verrs ValidationErrors
	require.ErrorAs(t, err, &verrs)
	fields := make([]string, 0, len(verrs))
	for _, e := range verrs {
		fields = append(fields, e.Field)
	}
	assert.ElementsMatch(t, []string{
		"802-11-wireless.ssid",
		"connection.bogus",
		"connection.id",
		"ipv4.address-data",
		"ipv4.method",
	}, fields)
	assert.Equal(t, fault.Validation, fault.KindOf(err))
}

func TestLegacyFields(t *testing.T) {
	c := NewCodec(testCertDir)
	props := map[string]nm.Variant{
		"method": nm.String("manual"),
		"address-data": nm.Dicts(nm.AddressesToDicts([]nm.Address{
			{Address: "192.168.1.10", Prefix: 24},
		})),
		"route-data": nm.Dicts(nm.RoutesToDicts([]nm.Route{
			{Dest: "10.0.0.0", Prefix: 8, NextHop: "192.168.1.1", Metric: 50},
		})),
	}

	g, err := c.GroupToJSON(GroupIPv4, props)
	require.NoError(t, err)
	assert.NotContains(t, g, "addresses")

	g, err = c.WithLegacy().GroupToJSON(GroupIPv4, props)
	require.NoError(t, err)
	assert.Equal(t, []string{"192.168.1.10/24"}, g["addresses"])
	assert.Equal(t, []string{"10.0.0.0/8 via 192.168.1.1 metric 50"}, g["routes"])

	_, err = c.GroupFromJSON(GroupIPv4, g)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ipv4.addresses")
	assert.Contains(t, err.Error(), "route-data")
}

func TestScalarCoercedToList(t *testing.T) {
	c := NewCodec(testCertDir)
	props, err := c.GroupFromJSON(GroupIPv4, Group{"dns-search": "corp.example", "dns": "10.0.0.53"})
	require.NoError(t, err)
	assert.Equal(t, []string{"corp.example"}, props["dns-search"].Value)
	require.Len(t, props["dns"].Value, 1)
}

func TestDerivedFieldsIgnoredOnWrite(t *testing.T) {
	c := NewCodec(testCertDir)
	props, err := c.GroupFromJSON(GroupConnection, Group{"id": "x", "metered": 1, "metered-text": "whatever"})
	require.NoError(t, err)
	assert.NotContains(t, props, "metered-text")

	g, err := c.GroupToJSON(GroupConnection, props)
	require.NoError(t, err)
	assert.Equal(t, "Metered", g["metered-text"])
}

func TestNullAndMissingFieldsAreOmitted(t *testing.T) {
	c := NewCodec(testCertDir)
	props, err := c.GroupFromJSON(GroupConnection, Group{"id": "x", "zone": nil, "interface-name": ""})
	require.NoError(t, err)
	assert.Equal(t, map[string]nm.Variant{"id": nm.String("x")}, props)
}

func TestUnsupportedGroup(t *testing.T) {
	c := NewCodec(testCertDir)
	_, err := c.FromJSON(Document{"wireguard": {"private-key": "abc"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported setting group")

	_, err = c.FromJSON(Document{
		"connection": {"id": "br0", "type": "bridge"},
		"bridge":     {"stp": false},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bridge: unsupported setting group")
}

func TestGroupsWithoutSchemaAreReadOnly(t *testing.T) {
	c := NewCodec(testCertDir)
	doc, err := c.ToJSON(nm.ConnectionSettings{
		"connection": {"id": nm.String("br0"), "type": nm.String("bridge")},
		"bridge":     {"stp": nm.Bool(false), "priority": nm.Uint32(32768)},
		"vpn": {
			"service-type": nm.String("org.freedesktop.NetworkManager.openvpn"),
			"user-name":    nm.String("ops"),
			"secrets":      nm.StringMap(map[string]string{"password": "hunter2"}),
			"data":         nm.StringMap(map[string]string{"remote": "vpn.example.com"}),
		},
	})
	require.NoError(t, err)
	assert.Equal(t, Group{"stp": false, "priority": uint32(32768)}, doc["bridge"])
	assert.Equal(t, "ops", doc["vpn"]["user-name"])
	assert.Equal(t, Hidden, doc["vpn"]["secrets"])
	assert.Equal(t, map[string]string{"remote": "vpn.example.com"}, doc["vpn"]["data"])
	assert.Equal(t, "br0", doc["connection"]["id"])
}

func TestDocumentFromMap(t *testing.T) {
	doc, err := DocumentFromMap(map[string]any{
		"connection": map[string]any{"id": "guest"},
	})
	require.NoError(t, err)
	assert.Equal(t, "guest", IdentityOfDocument(doc).ID)

	_, err = DocumentFromMap(map[string]any{"connection": "guest"})
	require.Error(t, err)
	assert.True(t, fault.Is(err, fault.Validation))
}

func TestIdentityOf(t *testing.T) {
	id := IdentityOf(nm.ConnectionSettings{
		"connection": {
			"id":             nm.String("office"),
			"uuid":           nm.String("u-1"),
			"type":           nm.String("802-11-wireless"),
			"interface-name": nm.String("wlan0"),
		},
		"802-11-wireless": {"mode": nm.String("ap")},
	})
	assert.Equal(t, Identity{ID: "office", UUID: "u-1", Type: "802-11-wireless", InterfaceName: "wlan0"}, id)
	assert.Empty(t, IdentityOf(nm.ConnectionSettings{}).ID)
}
