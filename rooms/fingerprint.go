package rooms

import (
	"fmt"
	"math"
	"sort"
	"strconv"

	"github.com/cespare/xxhash/v2"
)

// Fingerprint computes the canonical content hash identifying a room.
// The filter is normalized before hashing: object keys are sorted
// recursively and scalars formatted canonically, so two structurally
// identical filters hash the same regardless of serialization order.
func Fingerprint(collection string, filter map[string]any) RoomID {
	buf := make([]byte, 0, 128)
	buf = append(buf, collection...)
	buf = append(buf, 0)
	buf = appendCanonical(buf, filter)
	return RoomID(strconv.FormatUint(xxhash.Sum64(buf), 16))
}

// CanonicalBytes returns the canonical byte form of a filter value, stable
// across key order. Usable as a hashing input for sub-predicates.
func CanonicalBytes(v any) []byte {
	return appendCanonical(nil, v)
}

// appendCanonical writes a type-tagged canonical encoding. Tags keep the
// string "1" and the number 1 from colliding.
func appendCanonical(dst []byte, v any) []byte {
	switch val := v.(type) {
	case nil:
		dst = append(dst, 'z')
	case bool:
		if val {
			dst = append(dst, 't')
		} else {
			dst = append(dst, 'f')
		}
	case string:
		dst = append(dst, 's')
		dst = strconv.AppendQuote(dst, val)
	case float64:
		dst = appendCanonicalNumber(dst, val)
	case float32:
		dst = appendCanonicalNumber(dst, float64(val))
	case int:
		dst = appendCanonicalNumber(dst, float64(val))
	case int8:
		dst = appendCanonicalNumber(dst, float64(val))
	case int16:
		dst = appendCanonicalNumber(dst, float64(val))
	case int32:
		dst = appendCanonicalNumber(dst, float64(val))
	case int64:
		dst = appendCanonicalNumber(dst, float64(val))
	case uint:
		dst = appendCanonicalNumber(dst, float64(val))
	case uint8:
		dst = appendCanonicalNumber(dst, float64(val))
	case uint16:
		dst = appendCanonicalNumber(dst, float64(val))
	case uint32:
		dst = appendCanonicalNumber(dst, float64(val))
	case uint64:
		dst = appendCanonicalNumber(dst, float64(val))
	case []any:
		dst = append(dst, '[')
		for _, item := range val {
			dst = appendCanonical(dst, item)
			dst = append(dst, ',')
		}
		dst = append(dst, ']')
	case map[string]any:
		keys := make([]string, 0, len(val))
		for k := range val {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		dst = append(dst, '{')
		for _, k := range keys {
			dst = strconv.AppendQuote(dst, k)
			dst = append(dst, ':')
			dst = appendCanonical(dst, val[k])
			dst = append(dst, ',')
		}
		dst = append(dst, '}')
	default:
		dst = append(dst, '?')
		dst = append(dst, fmt.Sprintf("%v", val)...)
	}
	return dst
}

// appendCanonicalNumber formats integral values without exponent or
// fraction so 2.0 and 2 encode identically.
func appendCanonicalNumber(dst []byte, f float64) []byte {
	dst = append(dst, 'n')
	if f == math.Trunc(f) && math.Abs(f) < 1e15 {
		return strconv.AppendInt(dst, int64(f), 10)
	}
	return strconv.AppendFloat(dst, f, 'g', -1, 64)
}
