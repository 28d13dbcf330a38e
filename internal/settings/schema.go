package settings

import (
	"maps"
	"slices"

	"grimm.is/halyard/internal/nm"
)

// Setting group names.
const (
	GroupConnection       = "connection"
	GroupIPv4             = "ipv4"
	GroupIPv6             = "ipv6"
	GroupProxy            = "proxy"
	GroupWired            = "802-3-ethernet"
	GroupWireless         = "802-11-wireless"
	GroupWirelessSecurity = "802-11-wireless-security"
	Group8021X            = "802-1x"
	GroupGSM              = "gsm"
)

// Kind describes how a field is carried by the backend and rendered as JSON.
type Kind int

const (
	KindBool        Kind = iota // b
	KindInt32                   // i
	KindUint32                  // u
	KindInt64                   // x
	KindUint64                  // t
	KindString                  // s
	KindStrings                 // as
	KindStringMap               // a{ss}
	KindMAC                     // ay, colon notation in JSON
	KindSSID                    // ay, UTF-8 string in JSON
	KindCert                    // ay file:// URI, basename in JSON
	KindCertPath                // s absolute path, basename in JSON
	KindBlob                    // ay, string in JSON
	KindAddressData             // aa{sv} {address,prefix}
	KindRouteData               // aa{sv} {dest,prefix,next-hop,metric}
	KindDNS4                    // au
	KindDNS6                    // aay
)

// Field declares one property of a setting group.
type Field struct {
	Name    string
	Kind    Kind
	Default any
	// Allowed restricts string fields to a fixed vocabulary.
	Allowed []string
}

// Schema is the template of one setting group.
type Schema struct {
	Name   string
	Fields []Field
	index  map[string]int
}

// Field looks up a field by name.
func (s *Schema) Field(name string) (Field, bool) {
	i, ok := s.index[name]
	if !ok {
		return Field{}, false
	}
	return s.Fields[i], true
}

// IsSecret reports whether the named field is a secret of this group.
func (s *Schema) IsSecret(name string) bool {
	return nm.IsSecret(s.Name, name)
}

func newSchema(name string, fields ...[]Field) *Schema {
	s := &Schema{Name: name, index: map[string]int{}}
	for _, set := range fields {
		for _, f := range set {
			s.index[f.Name] = len(s.Fields)
			s.Fields = append(s.Fields, f)
		}
	}
	return s
}

func boolField(name string, def bool) Field { return Field{Name: name, Kind: KindBool, Default: def} }
func int32Field(name string, def int64) Field {
	return Field{Name: name, Kind: KindInt32, Default: def}
}
func uint32Field(name string, def int64) Field {
	return Field{Name: name, Kind: KindUint32, Default: def}
}
func int64Field(name string, def int64) Field {
	return Field{Name: name, Kind: KindInt64, Default: def}
}
func uint64Field(name string) Field       { return Field{Name: name, Kind: KindUint64, Default: uint64(0)} }
func stringField(name string) Field       { return Field{Name: name, Kind: KindString} }
func listField(name string) Field         { return Field{Name: name, Kind: KindStrings, Default: []string{}} }
func kindField(name string, k Kind) Field { return Field{Name: name, Kind: k} }
func secretField(name string) Field       { return Field{Name: name, Kind: KindString} }
func enumField(name string, allowed ...string) Field {
	return Field{Name: name, Kind: KindString, Allowed: allowed}
}

var connectionFields = []Field{
	int32Field("auth-retries", -1),
	boolField("autoconnect", true),
	int32Field("autoconnect-priority", 0),
	int32Field("autoconnect-retries", -1),
	int32Field("autoconnect-slaves", -1),
	int32Field("dns-over-tls", -1),
	uint32Field("gateway-ping-timeout", 0),
	stringField("id"),
	stringField("interface-name"),
	int32Field("lldp", -1),
	int32Field("llmnr", -1),
	stringField("master"),
	int32Field("mdns", -1),
	int32Field("metered", 0),
	uint32Field("mptcp-flags", 0),
	stringField("mud-url"),
	int32Field("multi-connect", 0),
	listField("permissions"),
	boolField("read-only", false),
	listField("secondaries"),
	stringField("slave-type"),
	stringField("stable-id"),
	uint64Field("timestamp"),
	stringField("type"),
	stringField("uuid"),
	int32Field("wait-activation-delay", -1),
	int32Field("wait-device-timeout", -1),
	stringField("zone"),
}

var ipFields = []Field{
	kindField("address-data", KindAddressData),
	int32Field("auto-route-ext-gw", -1),
	int32Field("dad-timeout", -1),
	stringField("dhcp-hostname"),
	uint32Field("dhcp-hostname-flags", 0),
	stringField("dhcp-iaid"),
	listField("dhcp-reject-servers"),
	boolField("dhcp-send-hostname", true),
	int32Field("dhcp-timeout", 0),
	listField("dns-options"),
	int32Field("dns-priority", 0),
	listField("dns-search"),
	stringField("gateway"),
	boolField("ignore-auto-dns", false),
	boolField("ignore-auto-routes", false),
	boolField("may-fail", true),
	boolField("never-default", false),
	int32Field("required-timeout", -1),
	int64Field("route-metric", -1),
	kindField("route-data", KindRouteData),
	uint32Field("route-table", 0),
}

var ip4Fields = []Field{
	stringField("dhcp-client-id"),
	stringField("dhcp-fqdn"),
	stringField("dhcp-vendor-class-identifier"),
	kindField("dns", KindDNS4),
	int32Field("link-local", 0),
	enumField("method", "auto", "link-local", "manual", "shared", "disabled"),
}

var ip6Fields = []Field{
	int32Field("addr-gen-mode", 1),
	stringField("dhcp-duid"),
	kindField("dns", KindDNS6),
	int32Field("ip6-privacy", -1),
	enumField("method", "ignore", "auto", "dhcp", "link-local", "manual", "shared", "disabled"),
	uint32Field("mtu", 0),
	int32Field("ra-timeout", 0),
	stringField("token"),
}

var proxyFields = []Field{
	boolField("browser-only", false),
	int32Field("method", 0),
	stringField("pac-script"),
	stringField("pac-url"),
}

var wiredFields = []Field{
	int32Field("accept-all-mac-addresses", -1),
	boolField("auto-negotiate", false),
	kindField("cloned-mac-address", KindMAC),
	enumField("duplex", "half", "full"),
	stringField("generate-mac-address-mask"),
	kindField("mac-address", KindMAC),
	listField("mac-address-blacklist"),
	uint32Field("mtu", 0),
	stringField("port"),
	stringField("s390-nettype"),
	kindField("s390-options", KindStringMap),
	listField("s390-subchannels"),
	uint32Field("speed", 0),
	uint32Field("wake-on-lan", 1),
	stringField("wake-on-lan-password"),
}

var wirelessFields = []Field{
	int32Field("ap-isolation", -1),
	enumField("band", "a", "bg"),
	kindField("bssid", KindMAC),
	uint32Field("channel", 0),
	kindField("cloned-mac-address", KindMAC),
	stringField("generate-mac-address-mask"),
	boolField("hidden", false),
	kindField("mac-address", KindMAC),
	listField("mac-address-blacklist"),
	uint32Field("mac-address-randomization", 0),
	enumField("mode", "infrastructure", "adhoc", "ap", "mesh"),
	uint32Field("mtu", 0),
	uint32Field("powersave", 0),
	uint32Field("rate", 0),
	listField("seen-bssids"),
	kindField("ssid", KindSSID),
	uint32Field("tx-power", 0),
	uint32Field("wake-on-wlan", 1),
}

var wirelessSecurityFields = []Field{
	enumField("auth-alg", "open", "shared", "leap"),
	int32Field("fils", 0),
	listField("group"),
	enumField("key-mgmt", "none", "ieee8021x", "wpa-psk", "wpa-eap", "wpa-eap-suite-b-192", "sae", "owe"),
	secretField("leap-password"),
	uint32Field("leap-password-flags", 0),
	stringField("leap-username"),
	listField("pairwise"),
	int32Field("pmf", 0),
	listField("proto"),
	secretField("psk"),
	uint32Field("psk-flags", 0),
	secretField("wep-key0"),
	secretField("wep-key1"),
	secretField("wep-key2"),
	secretField("wep-key3"),
	uint32Field("wep-key-flags", 0),
	uint32Field("wep-key-type", 0),
	uint32Field("wep-tx-keyidx", 0),
	uint32Field("wps-method", 0),
}

var ieee8021xFields = []Field{
	listField("altsubject-matches"),
	stringField("anonymous-identity"),
	int32Field("auth-timeout", 0),
	kindField("ca-cert", KindCert),
	secretField("ca-cert-password"),
	uint32Field("ca-cert-password-flags", 0),
	stringField("ca-path"),
	kindField("client-cert", KindCert),
	secretField("client-cert-password"),
	uint32Field("client-cert-password-flags", 0),
	stringField("domain-match"),
	stringField("domain-suffix-match"),
	listField("eap"),
	stringField("identity"),
	boolField("optional", false),
	kindField("pac-file", KindCertPath),
	secretField("password"),
	uint32Field("password-flags", 0),
	kindField("password-raw", KindBlob),
	uint32Field("password-raw-flags", 0),
	uint32Field("phase1-auth-flags", 0),
	stringField("phase1-fast-provisioning"),
	stringField("phase1-peaplabel"),
	stringField("phase1-peapver"),
	listField("phase2-altsubject-matches"),
	stringField("phase2-auth"),
	stringField("phase2-autheap"),
	kindField("phase2-ca-cert", KindCert),
	secretField("phase2-ca-cert-password"),
	uint32Field("phase2-ca-cert-password-flags", 0),
	stringField("phase2-ca-path"),
	kindField("phase2-client-cert", KindCert),
	secretField("phase2-client-cert-password"),
	uint32Field("phase2-client-cert-password-flags", 0),
	stringField("phase2-domain-match"),
	stringField("phase2-domain-suffix-match"),
	kindField("phase2-private-key", KindCert),
	secretField("phase2-private-key-password"),
	uint32Field("phase2-private-key-password-flags", 0),
	stringField("phase2-subject-match"),
	secretField("pin"),
	uint32Field("pin-flags", 0),
	kindField("private-key", KindCert),
	secretField("private-key-password"),
	uint32Field("private-key-password-flags", 0),
	stringField("subject-match"),
	boolField("system-ca-certs", false),
}

var gsmFields = []Field{
	stringField("apn"),
	boolField("auto-config", false),
	stringField("device-id"),
	boolField("home-only", false),
	uint32Field("mtu", 0),
	stringField("network-id"),
	stringField("number"),
	secretField("password"),
	uint32Field("password-flags", 0),
	secretField("pin"),
	uint32Field("pin-flags", 0),
	stringField("sim-id"),
	stringField("sim-operator-id"),
	stringField("username"),
}

var registry = map[string]*Schema{
	GroupConnection:       newSchema(GroupConnection, connectionFields),
	GroupIPv4:             newSchema(GroupIPv4, ipFields, ip4Fields),
	GroupIPv6:             newSchema(GroupIPv6, ipFields, ip6Fields),
	GroupProxy:            newSchema(GroupProxy, proxyFields),
	GroupWired:            newSchema(GroupWired, wiredFields),
	GroupWireless:         newSchema(GroupWireless, wirelessFields),
	GroupWirelessSecurity: newSchema(GroupWirelessSecurity, wirelessSecurityFields),
	Group8021X:            newSchema(Group8021X, ieee8021xFields),
	GroupGSM:              newSchema(GroupGSM, gsmFields),
}

// derivedFields are rendered on read and ignored on write.
var derivedFields = map[string][]string{
	GroupConnection: {"metered-text"},
}

// legacyFields are rendered only in legacy mode and rejected on write.
var legacyFields = map[string][]string{
	GroupIPv4: {"addresses", "routes"},
	GroupIPv6: {"addresses", "routes"},
}

var legacyReplacement = map[string]string{
	"addresses": "address-data",
	"routes":    "route-data",
}

// Lookup returns the schema of a setting group.
func Lookup(group string) (*Schema, bool) {
	s, ok := registry[group]
	return s, ok
}

// Groups returns the supported setting group names, sorted.
func Groups() []string {
	return slices.Sorted(maps.Keys(registry))
}

// Defaults returns a fresh copy of a group's default JSON rendering.
func Defaults(group string) (Group, bool) {
	s, ok := registry[group]
	if !ok {
		return nil, false
	}
	out := template(s)
	derive(group, out)
	return out, true
}

func template(s *Schema) Group {
	out := make(Group, len(s.Fields))
	for _, f := range s.Fields {
		switch def := f.Default.(type) {
		case []string:
			out[f.Name] = slices.Clone(def)
		default:
			out[f.Name] = def
		}
		switch f.Kind {
		case KindAddressData, KindRouteData:
			out[f.Name] = []any{}
		case KindDNS4, KindDNS6:
			out[f.Name] = []string{}
		}
	}
	return out
}

func derive(group string, g Group) {
	if group == GroupConnection {
		n, _ := g["metered"].(int64)
		g["metered-text"] = nm.Metered(n).String()
	}
}
