package bencode

import (
	"reflect"
	"strings"
	"testing"

	"github.com/mcheviron/bittorrent/cmd/mybittorrent/errs"
)

func TestDecode(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected any
		wantErr  bool
	}{
		{"string", "4:spam", "spam", false},
		{"empty string", "0:", "", false},
		{"binary string", "3:\x00\xff\x13", "\x00\xff\x13", false},
		{"integer", "i52e", int64(52), false},
		{"negative integer", "i-52e", int64(-52), false},
		{"zero", "i0e", int64(0), false},
		{"max int64", "i9223372036854775807e", int64(9223372036854775807), false},
		{"empty list", "le", []any{}, false},
		{"list", "l5:helloi52ee", []any{"hello", int64(52)}, false},
		{"nested list", "ll4:spamee", []any{[]any{"spam"}}, false},
		{"empty dict", "de", map[string]any{}, false},
		{"dict", "d3:foo3:bar5:helloi52ee", map[string]any{"foo": "bar", "hello": int64(52)}, false},
		{"dict with binary key", "d2:\x01\x02i1ee", map[string]any{"\x01\x02": int64(1)}, false},
		{"nested dict", "d4:dictd3:cow3:mooee", map[string]any{"dict": map[string]any{"cow": "moo"}}, false},

		// Error cases
		{"empty input", "", nil, true},
		{"no colon", "4spam", nil, true},
		{"negative length", "-1:spam", nil, true},
		{"truncated string", "4:spa", nil, true},
		{"length exceeds input", "99999999999999999999:a", nil, true},
		{"leading zero length", "04:spam", nil, true},
		{"leading zero integer", "i03e", nil, true},
		{"negative zero", "i-0e", nil, true},
		{"empty integer", "ie", nil, true},
		{"unterminated integer", "i123", nil, true},
		{"plus sign", "i+1e", nil, true},
		{"integer overflow", "i9223372036854775808e", nil, true},
		{"invalid tag", "x", nil, true},
		{"unterminated list", "l4:spam", nil, true},
		{"unterminated dict", "d4:spam", nil, true},
		{"dict key not a string", "di1ei2ee", nil, true},
		{"dict missing value", "d3:fooe", nil, true},
		{"duplicate key", "d1:ai1e1:ai2ee", nil, true},
		{"trailing bytes", "i1ei2e", nil, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Decode([]byte(tt.input))
			if (err != nil) != tt.wantErr {
				t.Fatalf("Decode(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
			if tt.wantErr {
				if !errs.Is(err, errs.Parse) {
					t.Errorf("Decode(%q) error kind = %v, want %v", tt.input, errs.KindOf(err), errs.Parse)
				}
				return
			}
			if !reflect.DeepEqual(got, tt.expected) {
				t.Errorf("Decode(%q) = %#v, want %#v", tt.input, got, tt.expected)
			}
		})
	}
}

func TestDecodePrefix(t *testing.T) {
	value, n, err := DecodePrefix([]byte("l1:ae1:b"))
	if err != nil {
		t.Fatalf("DecodePrefix() error = %v", err)
	}
	if n != 5 {
		t.Errorf("DecodePrefix() consumed %d bytes, want 5", n)
	}
	if !reflect.DeepEqual(value, []any{"a"}) {
		t.Errorf("DecodePrefix() = %#v", value)
	}
}

func TestDecodeAs(t *testing.T) {
	if _, err := DecodeAs[map[string]any]([]byte("de")); err != nil {
		t.Errorf("DecodeAs[map] error = %v", err)
	}

	_, err := DecodeAs[map[string]any]([]byte("i1e"))
	if !errs.Is(err, errs.Parse) {
		t.Errorf("DecodeAs[map] on integer error = %v, want parse error", err)
	}
}

func TestDecodeNestingLimit(t *testing.T) {
	deep := strings.Repeat("l", maxDepth+2) + strings.Repeat("e", maxDepth+2)
	if _, err := Decode([]byte(deep)); !errs.Is(err, errs.Parse) {
		t.Errorf("Decode(deep) error = %v, want parse error", err)
	}

	shallow := strings.Repeat("l", maxDepth) + strings.Repeat("e", maxDepth)
	if _, err := Decode([]byte(shallow)); err != nil {
		t.Errorf("Decode(shallow) error = %v", err)
	}
}
