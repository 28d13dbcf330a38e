package nm

import (
	"encoding/json"
	"fmt"
)

type wireVariant struct {
	Sig   string          `json:"sig"`
	Value json.RawMessage `json:"value"`
}

// MarshalJSON keeps the signature next to the value so that a persisted
// variant decodes back to the same Go type.
func (v Variant) MarshalJSON() ([]byte, error) {
	raw, err := json.Marshal(v.Value)
	if err != nil {
		return nil, fmt.Errorf("failed to encode %s value: %w", v.Sig, err)
	}
	return json.Marshal(wireVariant{Sig: v.Sig, Value: raw})
}

// UnmarshalJSON implements json.Unmarshaler.
func (v *Variant) UnmarshalJSON(b []byte) error {
	var w wireVariant
	if err := json.Unmarshal(b, &w); err != nil {
		return err
	}
	var (
		val any
		err error
	)
	switch w.Sig {
	case SigBool:
		val, err = decodeAs[bool](w.Value)
	case SigByte:
		val, err = decodeAs[byte](w.Value)
	case SigInt32:
		val, err = decodeAs[int32](w.Value)
	case SigUint32:
		val, err = decodeAs[uint32](w.Value)
	case SigInt64:
		val, err = decodeAs[int64](w.Value)
	case SigUint64:
		val, err = decodeAs[uint64](w.Value)
	case SigDouble:
		val, err = decodeAs[float64](w.Value)
	case SigString, SigObjectPath:
		val, err = decodeAs[string](w.Value)
	case SigStrings, SigObjectPaths:
		val, err = decodeAs[[]string](w.Value)
	case SigBytes:
		val, err = decodeAs[[]byte](w.Value)
	case SigUint32s:
		val, err = decodeAs[[]uint32](w.Value)
	case SigByteArrays:
		val, err = decodeAs[[][]byte](w.Value)
	case SigStringMap:
		val, err = decodeAs[map[string]string](w.Value)
	case SigDict:
		val, err = decodeAs[map[string]Variant](w.Value)
	case SigDicts:
		val, err = decodeAs[[]map[string]Variant](w.Value)
	case SigVariant:
		val, err = decodeAs[Variant](w.Value)
	default:
		return fmt.Errorf("unsupported variant signature %q", w.Sig)
	}
	if err != nil {
		return fmt.Errorf("failed to decode %s value: %w", w.Sig, err)
	}
	v.Sig = w.Sig
	v.Value = val
	return nil
}

func decodeAs[T any](raw json.RawMessage) (any, error) {
	var x T
	if err := json.Unmarshal(raw, &x); err != nil {
		return nil, err
	}
	return x, nil
}
