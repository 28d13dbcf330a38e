package settings

import (
	"encoding/json"
	"fmt"
	"math"
	"net"
	"path/filepath"
	"slices"
	"strings"
	"unicode/utf8"

	"grimm.is/halyard/internal/nm"
	"grimm.is/halyard/internal/validation"
)

// Hidden replaces secret values on every read path.
const Hidden = "<hidden>"

// Group is the JSON rendering of one setting group.
type Group map[string]any

// Document is the JSON rendering of a full connection profile, keyed by
// setting group name.
type Document map[string]Group

// DocumentFromMap converts a decoded JSON object into a Document. Every value
// must itself be an object.
func DocumentFromMap(m map[string]any) (Document, error) {
	var errs ValidationErrors
	doc := make(Document, len(m))
	for _, name := range sortedKeys(m) {
		switch g := m[name].(type) {
		case map[string]any:
			doc[name] = Group(g)
		case Group:
			doc[name] = g
		default:
			errs.Add(name, "setting group must be an object")
		}
	}
	return doc, errs.Err()
}

// Codec translates between backend settings and their JSON rendering.
// Certificate names are resolved against a fixed certificate directory.
type Codec struct {
	certDir string
	legacy  bool
}

// NewCodec creates a codec rooted at certDir.
func NewCodec(certDir string) *Codec {
	return &Codec{certDir: certDir}
}

// WithLegacy returns a copy that also renders the derived legacy
// addresses/routes string lists.
func (c *Codec) WithLegacy() *Codec {
	cp := *c
	cp.legacy = true
	return &cp
}

// CertDir returns the certificate directory.
func (c *Codec) CertDir() string { return c.certDir }

// ToJSON renders every group of cs. Groups without a schema are passed
// through read-only by [Passthrough]. Field problems such as an undecodable
// SSID are returned alongside the document; the affected field renders as
// null.
func (c *Codec) ToJSON(cs nm.ConnectionSettings) (Document, error) {
	var errs ValidationErrors
	doc := make(Document, len(cs))
	for group, props := range cs {
		if _, ok := registry[group]; !ok {
			doc[group] = Passthrough(props)
			continue
		}
		g, gerrs := c.groupToJSON(group, props)
		doc[group] = g
		errs = append(errs, gerrs...)
	}
	slices.SortFunc(errs, func(a, b ValidationError) int { return strings.Compare(a.Field, b.Field) })
	return doc, errs.Err()
}

// Passthrough renders a group that has no schema (bridge, vpn, ...) as plain
// values. Such groups cannot be written; values whose name marks them as a
// secret render as [Hidden].
func Passthrough(props map[string]nm.Variant) Group {
	out := make(Group, len(props))
	for name, v := range props {
		if secretName(name) {
			if nonEmpty(v.Value) {
				out[name] = Hidden
			} else {
				out[name] = nil
			}
			continue
		}
		out[name] = v.Plain()
	}
	return out
}

func secretName(name string) bool {
	switch {
	case name == "secrets", name == "psk", name == "pin":
		return true
	case strings.Contains(name, "password"), strings.HasSuffix(name, "private-key"):
		return true
	}
	return false
}

// GroupToJSON renders a single group.
func (c *Codec) GroupToJSON(group string, props map[string]nm.Variant) (Group, error) {
	if _, ok := registry[group]; !ok {
		return nil, ValidationErrors{{Field: group, Message: "unsupported setting group"}}
	}
	g, errs := c.groupToJSON(group, props)
	return g, errs.Err()
}

func (c *Codec) groupToJSON(group string, props map[string]nm.Variant) (Group, ValidationErrors) {
	schema := registry[group]
	out := template(schema)
	var errs ValidationErrors
	for name, v := range props {
		f, ok := schema.Field(name)
		if !ok {
			continue
		}
		if schema.IsSecret(name) {
			if nonEmpty(v.Value) {
				out[name] = Hidden
			}
			continue
		}
		val, err := c.decode(f, v)
		if err != nil {
			errs.Add(group+"."+name, "%v", err)
			out[name] = nil
			continue
		}
		out[name] = val
	}
	derive(group, out)
	if c.legacy {
		if _, ok := legacyFields[group]; ok {
			out["addresses"] = legacyAddresses(out["address-data"])
			out["routes"] = legacyRoutes(out["route-data"])
		}
	}
	return out, errs
}

func (c *Codec) decode(f Field, v nm.Variant) (any, error) {
	switch f.Kind {
	case KindBool:
		b, _ := v.Value.(bool)
		return b, nil
	case KindInt32, KindUint32, KindInt64:
		n, ok := toInt64(v.Value)
		if !ok {
			return nil, fmt.Errorf("unexpected %s value", v.Sig)
		}
		return n, nil
	case KindUint64:
		switch n := v.Value.(type) {
		case uint64:
			return n, nil
		default:
			i, ok := toInt64(n)
			if !ok || i < 0 {
				return nil, fmt.Errorf("unexpected %s value", v.Sig)
			}
			return uint64(i), nil
		}
	case KindString:
		s, _ := v.Value.(string)
		return nullIfEmpty(s), nil
	case KindCertPath:
		s, _ := v.Value.(string)
		if s == "" {
			return nil, nil
		}
		return filepath.Base(s), nil
	case KindStrings:
		s, _ := v.Value.([]string)
		if s == nil {
			return []string{}, nil
		}
		return slices.Clone(s), nil
	case KindStringMap:
		m, _ := v.Value.(map[string]string)
		if m == nil {
			return nil, nil
		}
		out := make(map[string]string, len(m))
		for k, s := range m {
			out[k] = s
		}
		return out, nil
	case KindMAC:
		b, _ := v.Value.([]byte)
		if len(b) == 0 {
			return nil, nil
		}
		return strings.ToUpper(net.HardwareAddr(b).String()), nil
	case KindSSID:
		b, _ := v.Value.([]byte)
		if len(b) == 0 {
			return nil, nil
		}
		if !utf8.Valid(b) {
			return nil, fmt.Errorf("ssid is not valid UTF-8")
		}
		return string(b), nil
	case KindCert:
		b, _ := v.Value.([]byte)
		return certName(b), nil
	case KindBlob:
		b, _ := v.Value.([]byte)
		if len(b) == 0 {
			return nil, nil
		}
		return string(b), nil
	case KindAddressData:
		dicts, _ := v.Value.([]map[string]nm.Variant)
		out := make([]any, 0, len(dicts))
		for _, a := range nm.AddressesFromDicts(dicts) {
			out = append(out, map[string]any{"address": a.Address, "prefix": int64(a.Prefix)})
		}
		return out, nil
	case KindRouteData:
		dicts, _ := v.Value.([]map[string]nm.Variant)
		out := make([]any, 0, len(dicts))
		for _, r := range nm.RoutesFromDicts(dicts) {
			out = append(out, map[string]any{
				"dest":     r.Dest,
				"prefix":   int64(r.Prefix),
				"next-hop": nullIfEmpty(r.NextHop),
				"metric":   r.Metric,
			})
		}
		return out, nil
	case KindDNS4:
		nums, _ := v.Value.([]uint32)
		out := make([]string, 0, len(nums))
		for _, u := range nums {
			out = append(out, nm.Uint32ToIP4(u).String())
		}
		return out, nil
	case KindDNS6:
		addrs, _ := v.Value.([][]byte)
		out := make([]string, 0, len(addrs))
		for _, b := range addrs {
			out = append(out, net.IP(b).String())
		}
		return out, nil
	}
	return v.Plain(), nil
}

// FromJSON converts a Document into backend settings. Every field problem
// across every group is collected before returning.
func (c *Codec) FromJSON(doc Document) (nm.ConnectionSettings, error) {
	var errs ValidationErrors
	cs := make(nm.ConnectionSettings, len(doc))
	for _, group := range sortedKeys(doc) {
		props, gerrs := c.groupFromJSON(group, doc[group])
		errs = append(errs, gerrs...)
		if props != nil {
			cs[group] = props
		}
	}
	if errs.HasErrors() {
		return nil, errs
	}
	return cs, nil
}

// GroupFromJSON converts a single group.
func (c *Codec) GroupFromJSON(group string, in Group) (map[string]nm.Variant, error) {
	props, errs := c.groupFromJSON(group, in)
	if errs.HasErrors() {
		return nil, errs
	}
	return props, nil
}

func (c *Codec) groupFromJSON(group string, in Group) (map[string]nm.Variant, ValidationErrors) {
	var errs ValidationErrors
	schema, ok := registry[group]
	if !ok {
		errs.Add(group, "unsupported setting group")
		return nil, errs
	}
	props := make(map[string]nm.Variant, len(in))
	for _, name := range sortedKeys(in) {
		val := in[name]
		key := group + "." + name
		if slices.Contains(derivedFields[group], name) {
			continue
		}
		if slices.Contains(legacyFields[group], name) {
			errs.Add(key, "read-only legacy field; use %s", legacyReplacement[name])
			continue
		}
		f, ok := schema.Field(name)
		if !ok {
			errs.Add(key, "unknown field")
			continue
		}
		if val == nil {
			continue
		}
		if schema.IsSecret(name) {
			if s, isStr := val.(string); isStr && (s == Hidden || s == "") {
				continue
			}
		}
		v, err := c.encode(group, f, val)
		if err != nil {
			errs.Add(key, "%v", err)
			continue
		}
		if v == nil {
			continue
		}
		props[name] = *v
	}
	return props, errs
}

// encode returns nil for values that mean "not set".
func (c *Codec) encode(group string, f Field, val any) (*nm.Variant, error) {
	var v nm.Variant
	switch f.Kind {
	case KindBool:
		b, ok := val.(bool)
		if !ok {
			return nil, fmt.Errorf("expected boolean, got %s", describe(val))
		}
		v = nm.Bool(b)
	case KindInt32:
		n, err := integer(val, math.MinInt32, math.MaxInt32)
		if err != nil {
			return nil, err
		}
		v = nm.Int32(int32(n))
	case KindUint32:
		n, err := integer(val, 0, math.MaxUint32)
		if err != nil {
			return nil, err
		}
		v = nm.Uint32(uint32(n))
	case KindInt64:
		n, err := integer(val, math.MinInt64, math.MaxInt64)
		if err != nil {
			return nil, err
		}
		v = nm.Int64(n)
	case KindUint64:
		if u, ok := val.(uint64); ok {
			v = nm.Uint64(u)
			break
		}
		n, err := integer(val, 0, math.MaxInt64)
		if err != nil {
			return nil, err
		}
		v = nm.Uint64(uint64(n))
	case KindString:
		s, ok := val.(string)
		if !ok {
			return nil, fmt.Errorf("expected string, got %s", describe(val))
		}
		if s == "" {
			return nil, nil
		}
		if len(f.Allowed) > 0 && !slices.Contains(f.Allowed, s) {
			return nil, fmt.Errorf("must be one of: %s", strings.Join(f.Allowed, ", "))
		}
		v = nm.String(s)
	case KindCertPath:
		name, err := c.certArg(val)
		if err != nil || name == "" {
			return nil, err
		}
		v = nm.String(filepath.Join(c.certDir, name))
	case KindCert:
		name, err := c.certArg(val)
		if err != nil || name == "" {
			return nil, err
		}
		v = nm.Bytes([]byte("file://" + filepath.Join(c.certDir, name) + "\x00"))
	case KindStrings:
		list, err := stringList(val)
		if err != nil {
			return nil, err
		}
		v = nm.Strings(list)
	case KindStringMap:
		m, err := stringMap(val)
		if err != nil {
			return nil, err
		}
		v = nm.StringMap(m)
	case KindMAC:
		s, ok := val.(string)
		if !ok {
			return nil, fmt.Errorf("expected MAC address string, got %s", describe(val))
		}
		if s == "" {
			return nil, nil
		}
		if err := validation.ValidateMAC(s); err != nil {
			return nil, err
		}
		hw, _ := net.ParseMAC(s)
		v = nm.Bytes([]byte(hw))
	case KindSSID:
		s, ok := val.(string)
		if !ok {
			return nil, fmt.Errorf("expected string, got %s", describe(val))
		}
		if err := validation.ValidateSSID(s); err != nil {
			return nil, err
		}
		v = nm.Bytes([]byte(s))
	case KindBlob:
		s, ok := val.(string)
		if !ok {
			return nil, fmt.Errorf("expected string, got %s", describe(val))
		}
		v = nm.Bytes([]byte(s))
	case KindAddressData:
		addrs, err := addressList(val, familyOf(group))
		if err != nil {
			return nil, err
		}
		v = nm.Dicts(nm.AddressesToDicts(addrs))
	case KindRouteData:
		routes, err := routeList(val, familyOf(group))
		if err != nil {
			return nil, err
		}
		v = nm.Dicts(nm.RoutesToDicts(routes))
	case KindDNS4:
		list, err := stringList(val)
		if err != nil {
			return nil, err
		}
		nums := make([]uint32, 0, len(list))
		for _, s := range list {
			if err := validation.ValidateIP(s, 4); err != nil {
				return nil, err
			}
			n, _ := nm.IP4ToUint32(net.ParseIP(s))
			nums = append(nums, n)
		}
		v = nm.Uint32s(nums)
	case KindDNS6:
		list, err := stringList(val)
		if err != nil {
			return nil, err
		}
		addrs := make([][]byte, 0, len(list))
		for _, s := range list {
			if err := validation.ValidateIP(s, 6); err != nil {
				return nil, err
			}
			addrs = append(addrs, []byte(net.ParseIP(s).To16()))
		}
		v = nm.ByteArrays(addrs)
	default:
		return nil, fmt.Errorf("unsupported field kind %d", f.Kind)
	}
	return &v, nil
}

func (c *Codec) certArg(val any) (string, error) {
	s, ok := val.(string)
	if !ok {
		return "", fmt.Errorf("expected certificate name, got %s", describe(val))
	}
	if s == "" {
		return "", nil
	}
	if err := validation.ValidateCertName(s); err != nil {
		return "", err
	}
	return s, nil
}

func familyOf(group string) int {
	if group == GroupIPv6 {
		return 6
	}
	return 4
}

func certName(b []byte) any {
	s := strings.TrimRight(string(b), "\x00")
	if !strings.HasPrefix(s, "file://") {
		return nil
	}
	s = strings.TrimPrefix(s, "file://")
	if s == "" {
		return nil
	}
	return filepath.Base(s)
}

func addressList(val any, fam int) ([]nm.Address, error) {
	items, err := objectList(val)
	if err != nil {
		return nil, err
	}
	out := make([]nm.Address, 0, len(items))
	for i, item := range items {
		addr, _ := item["address"].(string)
		if err := validation.ValidateIP(addr, fam); err != nil {
			return nil, fmt.Errorf("[%d].address: %w", i, err)
		}
		prefix, err := integer(item["prefix"], 0, 128)
		if err != nil {
			return nil, fmt.Errorf("[%d].prefix: %w", i, err)
		}
		if err := validation.ValidatePrefix(prefix, ipFamily(addr)); err != nil {
			return nil, fmt.Errorf("[%d].prefix: %w", i, err)
		}
		for k := range item {
			if k != "address" && k != "prefix" {
				return nil, fmt.Errorf("[%d].%s: unknown field", i, k)
			}
		}
		out = append(out, nm.Address{Address: addr, Prefix: uint32(prefix)})
	}
	return out, nil
}

func routeList(val any, fam int) ([]nm.Route, error) {
	items, err := objectList(val)
	if err != nil {
		return nil, err
	}
	out := make([]nm.Route, 0, len(items))
	for i, item := range items {
		r := nm.Route{Metric: -1}
		r.Dest, _ = item["dest"].(string)
		if err := validation.ValidateIP(r.Dest, fam); err != nil {
			return nil, fmt.Errorf("[%d].dest: %w", i, err)
		}
		prefix, err := integer(item["prefix"], 0, 128)
		if err != nil {
			return nil, fmt.Errorf("[%d].prefix: %w", i, err)
		}
		if err := validation.ValidatePrefix(prefix, ipFamily(r.Dest)); err != nil {
			return nil, fmt.Errorf("[%d].prefix: %w", i, err)
		}
		r.Prefix = uint32(prefix)
		if hop, ok := item["next-hop"]; ok && hop != nil {
			s, isStr := hop.(string)
			if !isStr {
				return nil, fmt.Errorf("[%d].next-hop: expected string, got %s", i, describe(hop))
			}
			if s != "" {
				if err := validation.ValidateIP(s, ipFamily(r.Dest)); err != nil {
					return nil, fmt.Errorf("[%d].next-hop: %w", i, err)
				}
				r.NextHop = s
			}
		}
		if m, ok := item["metric"]; ok && m != nil {
			n, err := integer(m, -1, math.MaxUint32)
			if err != nil {
				return nil, fmt.Errorf("[%d].metric: %w", i, err)
			}
			r.Metric = n
		}
		for k := range item {
			switch k {
			case "dest", "prefix", "next-hop", "metric":
			default:
				return nil, fmt.Errorf("[%d].%s: unknown field", i, k)
			}
		}
		out = append(out, r)
	}
	return out, nil
}

func ipFamily(addr string) int {
	if ip := net.ParseIP(addr); ip != nil && ip.To4() == nil {
		return 6
	}
	return 4
}

func objectList(val any) ([]map[string]any, error) {
	switch list := val.(type) {
	case []map[string]any:
		return list, nil
	case []any:
		out := make([]map[string]any, 0, len(list))
		for i, item := range list {
			m, ok := item.(map[string]any)
			if !ok {
				return nil, fmt.Errorf("[%d]: expected object, got %s", i, describe(item))
			}
			out = append(out, m)
		}
		return out, nil
	}
	return nil, fmt.Errorf("expected array of objects, got %s", describe(val))
}

// stringList accepts a list of strings, or a single string which is
// treated as a one-element list.
func stringList(val any) ([]string, error) {
	switch list := val.(type) {
	case string:
		return []string{list}, nil
	case []string:
		return slices.Clone(list), nil
	case []any:
		out := make([]string, 0, len(list))
		for i, item := range list {
			s, ok := item.(string)
			if !ok {
				return nil, fmt.Errorf("[%d]: expected string, got %s", i, describe(item))
			}
			out = append(out, s)
		}
		return out, nil
	}
	return nil, fmt.Errorf("expected array of strings, got %s", describe(val))
}

func stringMap(val any) (map[string]string, error) {
	switch m := val.(type) {
	case map[string]string:
		out := make(map[string]string, len(m))
		for k, s := range m {
			out[k] = s
		}
		return out, nil
	case map[string]any:
		out := make(map[string]string, len(m))
		for k, item := range m {
			s, ok := item.(string)
			if !ok {
				return nil, fmt.Errorf("%s: expected string, got %s", k, describe(item))
			}
			out[k] = s
		}
		return out, nil
	}
	return nil, fmt.Errorf("expected object of strings, got %s", describe(val))
}

// integer accepts JSON numbers and Go integer types within [lo, hi].
func integer(val any, lo, hi int64) (int64, error) {
	var n int64
	switch x := val.(type) {
	case float64:
		if x != math.Trunc(x) || x < float64(math.MinInt64) || x > float64(math.MaxInt64) {
			return 0, fmt.Errorf("expected integer, got %v", x)
		}
		n = int64(x)
	case json.Number:
		i, err := x.Int64()
		if err != nil {
			return 0, fmt.Errorf("expected integer, got %s", x)
		}
		n = i
	case uint64:
		if x > math.MaxInt64 {
			return 0, fmt.Errorf("value %d out of range", x)
		}
		n = int64(x)
	default:
		i, ok := toInt64(val)
		if !ok {
			return 0, fmt.Errorf("expected integer, got %s", describe(val))
		}
		n = i
	}
	if n < lo || n > hi {
		return 0, fmt.Errorf("value %d out of range [%d, %d]", n, lo, hi)
	}
	return n, nil
}

func toInt64(v any) (int64, bool) {
	switch n := v.(type) {
	case int:
		return int64(n), true
	case int8:
		return int64(n), true
	case int16:
		return int64(n), true
	case int32:
		return int64(n), true
	case int64:
		return n, true
	case uint8:
		return int64(n), true
	case uint16:
		return int64(n), true
	case uint32:
		return int64(n), true
	case uint64:
		if n > math.MaxInt64 {
			return 0, false
		}
		return int64(n), true
	}
	return 0, false
}

func describe(val any) string {
	switch val.(type) {
	case nil:
		return "null"
	case bool:
		return "boolean"
	case string:
		return "string"
	case float64, json.Number, int, int32, int64, uint32, uint64:
		return "number"
	case []any, []string:
		return "array"
	case map[string]any:
		return "object"
	}
	return fmt.Sprintf("%T", val)
}

func nonEmpty(v any) bool {
	switch x := v.(type) {
	case nil:
		return false
	case string:
		return x != ""
	case []byte:
		return len(x) > 0
	}
	return true
}

func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func legacyAddresses(v any) []string {
	list, _ := v.([]any)
	out := make([]string, 0, len(list))
	for _, item := range list {
		m, _ := item.(map[string]any)
		out = append(out, fmt.Sprintf("%v/%v", m["address"], m["prefix"]))
	}
	return out
}

func legacyRoutes(v any) []string {
	list, _ := v.([]any)
	out := make([]string, 0, len(list))
	for _, item := range list {
		m, _ := item.(map[string]any)
		s := fmt.Sprintf("%v/%v", m["dest"], m["prefix"])
		if hop, ok := m["next-hop"].(string); ok {
			s += " via " + hop
		}
		if metric, ok := m["metric"].(int64); ok && metric >= 0 {
			s += fmt.Sprintf(" metric %d", metric)
		}
		out = append(out, s)
	}
	return out
}

func sortedKeys[M ~map[string]V, V any](m M) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}
