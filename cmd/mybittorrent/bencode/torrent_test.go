package bencode

import (
	"bytes"
	"crypto/sha1"
	"strings"
	"testing"

	"github.com/mcheviron/bittorrent/cmd/mybittorrent/errs"
)

func buildTorrent(t *testing.T, info map[string]any) []byte {
	t.Helper()
	data, err := Encode(map[string]any{
		"announce":   "http://tracker.example.com/announce",
		"created by": "mktorrent",
		"info":       info,
	})
	if err != nil {
		t.Fatalf("Encode() error = %v", err)
	}
	return data
}

func TestInfo(t *testing.T) {
	pieces := strings.Repeat("a", 20) + strings.Repeat("b", 20) + strings.Repeat("c", 20)
	data := buildTorrent(t, map[string]any{
		"length":       int64(40000),
		"name":         "sample.txt",
		"piece length": int64(16384),
		"pieces":       pieces,
	})

	info, err := Info(data)
	if err != nil {
		t.Fatalf("Info() error = %v", err)
	}

	if info.Announce != "http://tracker.example.com/announce" {
		t.Errorf("Announce = %q", info.Announce)
	}
	if info.CreatedBy != "mktorrent" {
		t.Errorf("CreatedBy = %q", info.CreatedBy)
	}
	if info.Info.Length == nil || *info.Info.Length != 40000 {
		t.Errorf("Length = %v, want 40000", info.Info.Length)
	}
	if info.Info.Name != "sample.txt" || info.Info.PieceLength != 16384 {
		t.Errorf("Name/PieceLength = %q/%d", info.Info.Name, info.Info.PieceLength)
	}
	if !bytes.Equal(info.Info.Pieces, []byte(pieces)) {
		t.Errorf("Pieces mismatch")
	}
	if info.NumPieces() != 3 {
		t.Errorf("NumPieces() = %d, want 3", info.NumPieces())
	}

	hash, err := info.PieceHash(1)
	if err != nil || string(hash[:]) != strings.Repeat("b", 20) {
		t.Errorf("PieceHash(1) = %q, %v", hash, err)
	}
	if _, err := info.PieceHash(3); err == nil {
		t.Errorf("PieceHash(3) expected an error")
	}

	sizes := []int64{16384, 16384, 40000 - 2*16384}
	for i, want := range sizes {
		if got, err := info.PieceSize(i); err != nil || got != want {
			t.Errorf("PieceSize(%d) = %d, %v, want %d", i, got, err, want)
		}
	}
}

func TestInfoErrors(t *testing.T) {
	hashes := strings.Repeat("x", 20)

	tests := []struct {
		name string
		data []byte
	}{
		{"not bencode", []byte("garbage")},
		{"not a dictionary", []byte("li1ee")},
		{"missing announce", mustEncode(t, map[string]any{"info": map[string]any{}})},
		{"missing info", mustEncode(t, map[string]any{"announce": "http://x"})},
		{"missing name", buildTorrent(t, map[string]any{"length": 1, "piece length": 16384, "pieces": hashes})},
		{"name is an integer", buildTorrent(t, map[string]any{"length": 1, "name": 5, "piece length": 16384, "pieces": hashes})},
		{"pieces is an integer", buildTorrent(t, map[string]any{"length": 1, "name": "a", "piece length": 16384, "pieces": 7})},
		{"zero piece length", buildTorrent(t, map[string]any{"length": 1, "name": "a", "piece length": 0, "pieces": hashes})},
		{"ragged pieces", buildTorrent(t, map[string]any{"length": 1, "name": "a", "piece length": 16384, "pieces": "short"})},
		{"piece count mismatch", buildTorrent(t, map[string]any{"length": 40000, "name": "a", "piece length": 16384, "pieces": hashes})},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Info(tt.data)
			if !errs.Is(err, errs.Parse) {
				t.Errorf("Info() error = %v, want parse error", err)
			}
		})
	}
}

func TestMultiFileTorrent(t *testing.T) {
	data := buildTorrent(t, map[string]any{
		"name":         "dir",
		"piece length": int64(16384),
		"pieces":       strings.Repeat("x", 20),
		"files":        []any{map[string]any{"length": int64(10), "path": []any{"a.txt"}}},
	})

	info, err := Info(data)
	if err != nil {
		t.Fatalf("Info() error = %v", err)
	}
	if _, err := info.TotalLength(); !errs.Is(err, errs.Parse) {
		t.Errorf("TotalLength() error = %v, want parse error", err)
	}
}

func TestHashInfo(t *testing.T) {
	// Keys deliberately out of order; the canonical form sorts them.
	pieces := strings.Repeat("p", 40)
	received := "d7:privatei1e4:name8:test.txt6:lengthi32768e6:pieces40:" + pieces + "12:piece lengthi16384ee"
	canonical := "d6:lengthi32768e4:name8:test.txt12:piece lengthi16384e6:pieces40:" + pieces + "7:privatei1ee"
	data := []byte("d8:announce9:http://x/4:info" + received + "e")

	info, err := Info(data)
	if err != nil {
		t.Fatalf("Info() error = %v", err)
	}

	hexHash, hash, err := HashInfo(info)
	if err != nil {
		t.Fatalf("HashInfo() error = %v", err)
	}

	want := sha1.Sum([]byte(canonical))
	if hash != want {
		t.Errorf("HashInfo() = %x, want %x", hash, want)
	}
	if len(hexHash) != 40 {
		t.Errorf("hex hash %q has length %d", hexHash, len(hexHash))
	}

	// Same structure parsed again yields the same fingerprint.
	again, _ := Info(data)
	if _, second, _ := HashInfo(again); second != hash {
		t.Errorf("HashInfo() not deterministic: %x vs %x", second, hash)
	}
}

func TestHashInfoFromFields(t *testing.T) {
	length := int64(5)
	info := &TorrentInfo{
		Announce: "http://x/",
		Info: InnerInfo{
			Length:      &length,
			Name:        "a",
			PieceLength: 16384,
			Pieces:      bytes.Repeat([]byte{0xAB}, 20),
		},
	}

	_, hash, err := HashInfo(info)
	if err != nil {
		t.Fatalf("HashInfo() error = %v", err)
	}

	canonical := "d6:lengthi5e4:name1:a12:piece lengthi16384e6:pieces20:" + strings.Repeat("\xab", 20) + "e"
	if want := sha1.Sum([]byte(canonical)); hash != want {
		t.Errorf("HashInfo() = %x, want %x", hash, want)
	}
}

func mustEncode(t *testing.T, v any) []byte {
	t.Helper()
	data, err := Encode(v)
	if err != nil {
		t.Fatal(err)
	}
	return data
}
