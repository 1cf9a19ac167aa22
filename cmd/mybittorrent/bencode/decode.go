package bencode

import (
	"bytes"
	"fmt"
	"strconv"

	"github.com/mcheviron/bittorrent/cmd/mybittorrent/errs"
)

// maxDepth bounds list/dictionary nesting so hostile input cannot exhaust the stack.
const maxDepth = 256

// Decode decodes a single bencoded value which must span all of data.
//
// Values come back as int64, string (raw bytes, not necessarily UTF-8),
// []any and map[string]any.
func Decode(data []byte) (any, error) {
	value, n, err := DecodePrefix(data)
	if err != nil {
		return nil, err
	}
	if n != len(data) {
		return nil, errs.Errorf(errs.Parse, "decode", "%d trailing bytes after value", len(data)-n)
	}
	return value, nil
}

// DecodeAs decodes data and checks that the top-level value has type T.
func DecodeAs[T any](data []byte) (T, error) {
	var result T
	decoded, err := Decode(data)
	if err != nil {
		return result, err
	}
	result, ok := decoded.(T)
	if !ok {
		return result, errs.Errorf(errs.Parse, "decode", "expected %T at top level, got %T", result, decoded)
	}
	return result, nil
}

// DecodePrefix decodes the value at the start of data and returns the number
// of bytes it occupied.
func DecodePrefix(data []byte) (any, int, error) {
	d := decoder{data: data}
	value, err := d.decodeValue(0)
	if err != nil {
		return nil, 0, err
	}
	return value, d.pos, nil
}

type decoder struct {
	data []byte
	pos  int
}

func (d *decoder) fail(format string, args ...any) error {
	return errs.Errorf(errs.Parse, "decode", "offset %d: %s", d.pos, fmt.Sprintf(format, args...))
}

func (d *decoder) decodeValue(depth int) (any, error) {
	if depth > maxDepth {
		return nil, d.fail("nesting deeper than %d levels", maxDepth)
	}
	if d.pos >= len(d.data) {
		return nil, d.fail("unexpected end of input")
	}

	switch c := d.data[d.pos]; {
	case c >= '0' && c <= '9':
		return d.decodeString()
	case c == 'i':
		return d.decodeInteger()
	case c == 'l':
		return d.decodeList(depth)
	case c == 'd':
		return d.decodeDictionary(depth)
	default:
		return nil, d.fail("invalid type tag %q", c)
	}
}

func (d *decoder) decodeString() (string, error) {
	colon := bytes.IndexByte(d.data[d.pos:], ':')
	if colon == -1 {
		return "", d.fail("missing ':' after string length")
	}

	lengthStr := string(d.data[d.pos : d.pos+colon])
	if !isDigits(lengthStr) || (len(lengthStr) > 1 && lengthStr[0] == '0') {
		return "", d.fail("invalid string length %q", lengthStr)
	}
	length, err := strconv.Atoi(lengthStr)
	if err != nil {
		return "", d.fail("invalid string length %q", lengthStr)
	}

	start := d.pos + colon + 1
	if length > len(d.data)-start {
		return "", d.fail("string length %d exceeds remaining %d bytes", length, len(d.data)-start)
	}

	d.pos = start + length
	return string(d.data[start:d.pos]), nil
}

// e.g. i42e, i-3e. Leading zeros and negative zero are rejected so that
// re-encoding always reproduces the input bytes.
func (d *decoder) decodeInteger() (int64, error) {
	end := bytes.IndexByte(d.data[d.pos+1:], 'e')
	if end == -1 {
		return 0, d.fail("unterminated integer")
	}

	numStr := string(d.data[d.pos+1 : d.pos+1+end])
	digits := numStr
	if len(digits) > 0 && digits[0] == '-' {
		digits = digits[1:]
		if digits == "0" {
			return 0, d.fail("negative zero")
		}
	}
	if !isDigits(digits) || (len(digits) > 1 && digits[0] == '0') {
		return 0, d.fail("invalid integer %q", numStr)
	}

	num, err := strconv.ParseInt(numStr, 10, 64)
	if err != nil {
		return 0, d.fail("integer %q out of range", numStr)
	}

	d.pos += end + 2 // 'i' and 'e'
	return num, nil
}

func (d *decoder) decodeList(depth int) ([]any, error) {
	d.pos++ // 'l'
	result := make([]any, 0)

	for {
		if d.pos >= len(d.data) {
			return nil, d.fail("unterminated list")
		}
		if d.data[d.pos] == 'e' {
			d.pos++
			return result, nil
		}

		value, err := d.decodeValue(depth + 1)
		if err != nil {
			return nil, err
		}
		result = append(result, value)
	}
}

func (d *decoder) decodeDictionary(depth int) (map[string]any, error) {
	d.pos++ // 'd'
	result := make(map[string]any)

	for {
		if d.pos >= len(d.data) {
			return nil, d.fail("unterminated dictionary")
		}
		if d.data[d.pos] == 'e' {
			d.pos++
			return result, nil
		}

		if c := d.data[d.pos]; c < '0' || c > '9' {
			return nil, d.fail("dictionary key must be a byte string, got tag %q", c)
		}
		key, err := d.decodeString()
		if err != nil {
			return nil, err
		}
		if _, dup := result[key]; dup {
			return nil, d.fail("duplicate dictionary key %q", key)
		}

		value, err := d.decodeValue(depth + 1)
		if err != nil {
			return nil, err
		}
		result[key] = value
	}
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}
