// Package keys normalizes, orders, and encodes record keys, and resolves
// dotted key paths inside records.
package keys

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math"
	"strings"

	"github.com/mesh-intelligence/larder/pkg/types"
)

// Type tags. Numbers sort before strings.
const (
	tagNumber byte = 0x10
	tagString byte = 0x30
)

// Normalize converts v to a canonical key: every numeric type becomes
// float64 and strings stay strings. Anything else, including NaN, returns
// types.ErrDataError.
func Normalize(v any) (types.Key, error) {
	var f float64
	switch k := v.(type) {
	case string:
		return k, nil
	case float64:
		f = k
	case float32:
		f = float64(k)
	case int:
		f = float64(k)
	case int8:
		f = float64(k)
	case int16:
		f = float64(k)
	case int32:
		f = float64(k)
	case int64:
		f = float64(k)
	case uint:
		f = float64(k)
	case uint8:
		f = float64(k)
	case uint16:
		f = float64(k)
	case uint32:
		f = float64(k)
	case uint64:
		f = float64(k)
	case json.Number:
		n, err := k.Float64()
		if err != nil {
			return nil, fmt.Errorf("%w: %q is not a number", types.ErrDataError, k)
		}
		f = n
	default:
		return nil, fmt.Errorf("%w: %T is not a valid key", types.ErrDataError, v)
	}
	if math.IsNaN(f) {
		return nil, fmt.Errorf("%w: NaN is not a valid key", types.ErrDataError)
	}
	return f, nil
}

// IsZero reports whether v is absent or falsy (nil, false, "", or 0).
// Operations that skip work on a missing key use it.
func IsZero(v any) bool {
	if v == nil {
		return true
	}
	if b, ok := v.(bool); ok {
		return !b
	}
	k, err := Normalize(v)
	if err != nil {
		return false
	}
	switch k := k.(type) {
	case string:
		return k == ""
	case float64:
		return k == 0
	}
	return false
}

// Encode returns an order-preserving byte encoding of a key.
func Encode(v any) ([]byte, error) {
	k, err := Normalize(v)
	if err != nil {
		return nil, err
	}
	switch k := k.(type) {
	case float64:
		bits := math.Float64bits(k)
		if k == 0 {
			bits = 0 // -0 and +0 are the same key
		}
		if bits&(1<<63) != 0 {
			bits = ^bits
		} else {
			bits |= 1 << 63
		}
		out := make([]byte, 9)
		out[0] = tagNumber
		binary.BigEndian.PutUint64(out[1:], bits)
		return out, nil
	case string:
		out := make([]byte, 1+len(k))
		out[0] = tagString
		copy(out[1:], k)
		return out, nil
	}
	return nil, fmt.Errorf("%w: %T", types.ErrDataError, v)
}

// Extract resolves a dotted key path inside rec. ok is false if any segment
// is missing or traverses a non-object.
func Extract(rec types.Record, path string) (any, bool) {
	var cur any = rec
	for _, seg := range strings.Split(path, ".") {
		m, isMap := cur.(map[string]any)
		if !isMap {
			return nil, false
		}
		v, found := m[seg]
		if !found {
			return nil, false
		}
		cur = v
	}
	return cur, true
}

// Inject sets the value at a dotted key path, creating intermediate objects.
// It fails if an intermediate segment holds a non-object value.
func Inject(rec types.Record, path string, value any) error {
	segs := strings.Split(path, ".")
	cur := rec
	for _, seg := range segs[:len(segs)-1] {
		next, found := cur[seg]
		if !found {
			m := map[string]any{}
			cur[seg] = m
			cur = m
			continue
		}
		m, isMap := next.(map[string]any)
		if !isMap {
			return fmt.Errorf("%w: cannot set key path %q through %T", types.ErrDataError, path, next)
		}
		cur = m
	}
	cur[segs[len(segs)-1]] = value
	return nil
}
