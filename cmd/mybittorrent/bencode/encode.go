package bencode

import (
	"bytes"
	"fmt"
	"math"
	"slices"
	"strconv"
)

// Encode returns the canonical bencoding of value. Dictionary keys are always
// written in ascending byte order, whatever order the map was built in.
//
// Supported types: string, []byte, signed and unsigned integers, []any and
// map[string]any, nested arbitrarily.
func Encode(value any) ([]byte, error) {
	var buf bytes.Buffer
	if err := encodeValue(&buf, value); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func encodeValue(buf *bytes.Buffer, value any) error {
	switch v := value.(type) {
	case string:
		encodeString(buf, v)
	case []byte: // for info.pieces
		encodeString(buf, string(v))
	case int:
		encodeInteger(buf, int64(v))
	case int8:
		encodeInteger(buf, int64(v))
	case int16:
		encodeInteger(buf, int64(v))
	case int32:
		encodeInteger(buf, int64(v))
	case int64:
		encodeInteger(buf, v)
	case uint8:
		encodeInteger(buf, int64(v))
	case uint16:
		encodeInteger(buf, int64(v))
	case uint32:
		encodeInteger(buf, int64(v))
	case uint:
		if uint64(v) > math.MaxInt64 {
			return fmt.Errorf("integer %d overflows int64", v)
		}
		encodeInteger(buf, int64(v))
	case uint64:
		if v > math.MaxInt64 {
			return fmt.Errorf("integer %d overflows int64", v)
		}
		encodeInteger(buf, int64(v))
	case []any:
		buf.WriteByte('l')
		for _, item := range v {
			if err := encodeValue(buf, item); err != nil {
				return fmt.Errorf("failed to encode list item: %w", err)
			}
		}
		buf.WriteByte('e')
	case map[string]any:
		keys := make([]string, 0, len(v))
		for k := range v {
			keys = append(keys, k)
		}
		// Go strings compare bytewise, which is the order bencode requires.
		slices.Sort(keys)

		buf.WriteByte('d')
		for _, key := range keys {
			encodeString(buf, key)
			if err := encodeValue(buf, v[key]); err != nil {
				return fmt.Errorf("failed to encode dictionary value %q: %w", key, err)
			}
		}
		buf.WriteByte('e')
	default:
		return fmt.Errorf("unsupported type for bencode encoding: %T", value)
	}
	return nil
}

func encodeString(buf *bytes.Buffer, s string) {
	buf.WriteString(strconv.Itoa(len(s)))
	buf.WriteByte(':')
	buf.WriteString(s)
}

func encodeInteger(buf *bytes.Buffer, n int64) {
	buf.WriteByte('i')
	buf.WriteString(strconv.FormatInt(n, 10))
	buf.WriteByte('e')
}
