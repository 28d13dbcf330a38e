package nm

import (
	"fmt"
	"maps"
	"slices"
)

// D-Bus type signatures used by the backend.
const (
	SigBool        = "b"
	SigByte        = "y"
	SigInt32       = "i"
	SigUint32      = "u"
	SigInt64       = "x"
	SigUint64      = "t"
	SigDouble      = "d"
	SigString      = "s"
	SigObjectPath  = "o"
	SigStrings     = "as"
	SigObjectPaths = "ao"
	SigBytes       = "ay"
	SigUint32s     = "au"
	SigByteArrays  = "aay"
	SigStringMap   = "a{ss}"
	SigDict        = "a{sv}"
	SigDicts       = "aa{sv}"
	SigVariant     = "v"
)

// Variant is a self-describing backend value. Value holds the Go
// representation of Sig:
//
//	b bool, y byte, i int32, u uint32, x int64, t uint64, d float64,
//	s and o string, as and ao []string, ay []byte, au []uint32,
//	aay [][]byte, a{ss} map[string]string, a{sv} map[string]Variant,
//	aa{sv} []map[string]Variant
type Variant struct {
	Sig   string
	Value any
}

func (v Variant) String() string {
	return fmt.Sprintf("%s:%v", v.Sig, v.Value)
}

func Bool(b bool) Variant                   { return Variant{SigBool, b} }
func Int32(i int32) Variant                 { return Variant{SigInt32, i} }
func Uint32(u uint32) Variant               { return Variant{SigUint32, u} }
func Int64(i int64) Variant                 { return Variant{SigInt64, i} }
func Uint64(u uint64) Variant               { return Variant{SigUint64, u} }
func String(s string) Variant               { return Variant{SigString, s} }
func ObjectPath(p string) Variant           { return Variant{SigObjectPath, p} }
func Strings(s []string) Variant            { return Variant{SigStrings, s} }
func ObjectPaths(p []string) Variant        { return Variant{SigObjectPaths, p} }
func Bytes(b []byte) Variant                { return Variant{SigBytes, b} }
func Uint32s(u []uint32) Variant            { return Variant{SigUint32s, u} }
func ByteArrays(b [][]byte) Variant         { return Variant{SigByteArrays, b} }
func StringMap(m map[string]string) Variant { return Variant{SigStringMap, m} }
func Dict(m map[string]Variant) Variant     { return Variant{SigDict, m} }
func Dicts(d []map[string]Variant) Variant  { return Variant{SigDicts, d} }

// Clone returns a deep copy so stored values cannot be mutated through the copy.
func (v Variant) Clone() Variant {
	switch val := v.Value.(type) {
	case []string:
		return Variant{v.Sig, slices.Clone(val)}
	case []byte:
		return Variant{v.Sig, slices.Clone(val)}
	case []uint32:
		return Variant{v.Sig, slices.Clone(val)}
	case [][]byte:
		out := make([][]byte, len(val))
		for i, b := range val {
			out[i] = slices.Clone(b)
		}
		return Variant{v.Sig, out}
	case map[string]string:
		return Variant{v.Sig, maps.Clone(val)}
	case map[string]Variant:
		return Variant{v.Sig, cloneDict(val)}
	case []map[string]Variant:
		out := make([]map[string]Variant, len(val))
		for i, d := range val {
			out[i] = cloneDict(d)
		}
		return Variant{v.Sig, out}
	default:
		return v
	}
}

func cloneDict(d map[string]Variant) map[string]Variant {
	if d == nil {
		return nil
	}
	out := make(map[string]Variant, len(d))
	for k, v := range d {
		out[k] = v.Clone()
	}
	return out
}

// Plain converts a Variant to JSON-friendly Go values. Byte arrays stay []byte.
func (v Variant) Plain() any {
	switch val := v.Value.(type) {
	case map[string]Variant:
		out := make(map[string]any, len(val))
		for k, item := range val {
			out[k] = item.Plain()
		}
		return out
	case []map[string]Variant:
		out := make([]map[string]any, len(val))
		for i, d := range val {
			m := make(map[string]any, len(d))
			for k, item := range d {
				m[k] = item.Plain()
			}
			out[i] = m
		}
		return out
	case Variant:
		return val.Plain()
	default:
		return val
	}
}

// Properties is a property map returned by GetProperties.
type Properties map[string]Variant

// Has reports whether the property is present.
func (p Properties) Has(name string) bool {
	_, ok := p[name]
	return ok
}

// String returns a string or object-path property, or "".
func (p Properties) String(name string) string {
	if s, ok := p[name].Value.(string); ok {
		return s
	}
	return ""
}

// ObjectPath returns an object-path property, treating "/" as unset.
func (p Properties) ObjectPath(name string) string {
	s := p.String(name)
	if s == "/" {
		return ""
	}
	return s
}

// Bool returns a boolean property, or false.
func (p Properties) Bool(name string) bool {
	b, _ := p[name].Value.(bool)
	return b
}

// Int64 returns any integer property widened to int64.
func (p Properties) Int64(name string) (int64, bool) {
	return toInt64(p[name].Value)
}

// Uint32 returns an unsigned property, or 0.
func (p Properties) Uint32(name string) uint32 {
	n, _ := toInt64(p[name].Value)
	return uint32(n)
}

// Int32 returns a signed property, or 0.
func (p Properties) Int32(name string) int32 {
	n, _ := toInt64(p[name].Value)
	return int32(n)
}

// Strings returns a string-array or object-path-array property.
func (p Properties) Strings(name string) []string {
	s, _ := p[name].Value.([]string)
	return s
}

// Bytes returns a byte-array property.
func (p Properties) Bytes(name string) []byte {
	b, _ := p[name].Value.([]byte)
	return b
}

// Uint32s returns a uint32-array property.
func (p Properties) Uint32s(name string) []uint32 {
	u, _ := p[name].Value.([]uint32)
	return u
}

// ByteArrays returns an array-of-byte-arrays property.
func (p Properties) ByteArrays(name string) [][]byte {
	b, _ := p[name].Value.([][]byte)
	return b
}

// Dict returns an a{sv} property.
func (p Properties) Dict(name string) map[string]Variant {
	d, _ := p[name].Value.(map[string]Variant)
	return d
}

// Dicts returns an aa{sv} property.
func (p Properties) Dicts(name string) []map[string]Variant {
	d, _ := p[name].Value.([]map[string]Variant)
	return d
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
		return int64(n), true
	default:
		return 0, false
	}
}

// ConnectionSettings is a profile as the backend stores it: setting group
// name to property map.
type ConnectionSettings map[string]map[string]Variant

// Clone deep-copies the settings.
func (cs ConnectionSettings) Clone() ConnectionSettings {
	if cs == nil {
		return nil
	}
	out := make(ConnectionSettings, len(cs))
	for group, props := range cs {
		out[group] = cloneDict(props)
		if out[group] == nil {
			out[group] = map[string]Variant{}
		}
	}
	return out
}

// Merge overlays the groups of other onto cs at group granularity: a group
// present in other replaces the stored one property by property.
func (cs ConnectionSettings) Merge(other ConnectionSettings) {
	for group, props := range other {
		dst, ok := cs[group]
		if !ok {
			dst = map[string]Variant{}
			cs[group] = dst
		}
		for k, v := range props {
			dst[k] = v.Clone()
		}
	}
}
