package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/mcheviron/bittorrent/cmd/mybittorrent/bencode"
	"github.com/mcheviron/bittorrent/cmd/mybittorrent/errs"
)

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	a := &app{environ: []string{"MYBT_LOG_LEVEL=error", "MYBT_PEER_ID=-MY0001-123456789012"}}
	root := a.rootCommand()

	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func writeTorrent(t *testing.T) string {
	t.Helper()
	data, err := bencode.Encode(map[string]any{
		"announce": "http://bittorrent-test-tracker.codecrafters.io/announce",
		"info": map[string]any{
			"length":       int64(92063),
			"name":         "sample.txt",
			"piece length": int64(32768),
			"pieces":       strings.Repeat("\x01", 20) + strings.Repeat("\x02", 20) + strings.Repeat("\xff", 20),
		},
	})
	if err != nil {
		t.Fatalf("Encode() error = %v", err)
	}

	path := filepath.Join(t.TempDir(), "sample.torrent")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
	return path
}

func TestDecodeCommand(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"5:hello", `"hello"`},
		{"i-52e", "-52"},
		{"l5:helloi52ee", `["hello",52]`},
		{"d3:foo3:bar5:helloi52ee", `{"foo":"bar","hello":52}`},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			out, err := run(t, "decode", tt.input)
			if err != nil {
				t.Fatalf("decode error = %v", err)
			}
			if strings.TrimSpace(out) != tt.want {
				t.Errorf("decode = %q, want %q", out, tt.want)
			}
		})
	}
}

func TestDecodeCommandInvalid(t *testing.T) {
	_, err := run(t, "decode", "i03e")
	if !errs.Is(err, errs.Parse) {
		t.Errorf("decode error = %v, want parse error", err)
	}
}

func TestInfoCommand(t *testing.T) {
	path := writeTorrent(t)
	out, err := run(t, "info", path)
	if err != nil {
		t.Fatalf("info error = %v", err)
	}

	lines := strings.Split(strings.TrimSpace(out), "\n")
	want := []string{
		"Tracker URL: http://bittorrent-test-tracker.codecrafters.io/announce",
		"Length: 92063",
		"", // info hash, checked below
		"Piece Length: 32768",
		"Piece Hashes:",
		strings.Repeat("01", 20),
		strings.Repeat("02", 20),
		strings.Repeat("ff", 20),
	}
	if len(lines) != len(want) {
		t.Fatalf("info printed %d lines, want %d:\n%s", len(lines), len(want), out)
	}
	for i, w := range want {
		if w != "" && lines[i] != w {
			t.Errorf("line %d = %q, want %q", i, lines[i], w)
		}
	}
	if !strings.HasPrefix(lines[2], "Info Hash: ") || len(lines[2]) != len("Info Hash: ")+40 {
		t.Errorf("info hash line = %q", lines[2])
	}
}

func TestInfoCommandMissingFile(t *testing.T) {
	if _, err := run(t, "info", filepath.Join(t.TempDir(), "missing.torrent")); err == nil {
		t.Error("info succeeded on a missing file")
	}
}

func TestMagnetParseCommand(t *testing.T) {
	out, err := run(t, "magnet_parse",
		"magnet:?xt=urn:btih:ad42ce8109f54c99613ce38f9b4d87e70f24a165&dn=magnet1.gif&tr=http%3A%2F%2Fbittorrent-test-tracker.codecrafters.io%2Fannounce")
	if err != nil {
		t.Fatalf("magnet_parse error = %v", err)
	}
	want := "Tracker URL: http://bittorrent-test-tracker.codecrafters.io/announce\n" +
		"Info Hash: ad42ce8109f54c99613ce38f9b4d87e70f24a165\n"
	if out != want {
		t.Errorf("magnet_parse = %q, want %q", out, want)
	}
}

func TestCommandArgs(t *testing.T) {
	tests := []struct {
		name string
		args []string
	}{
		{"decode without value", []string{"decode"}},
		{"download_piece without output", []string{"download_piece", "a.torrent", "0"}},
		{"download_piece bad index", []string{"download_piece", "-o", "/tmp/x", "a.torrent", "one"}},
		{"download with extra args", []string{"download", "-o", "/tmp/x", "a.torrent", "b.torrent"}},
		{"handshake without peer", []string{"handshake", "a.torrent"}},
		{"bad log level", []string{"--log-level", "loud", "decode", "i1e"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := run(t, tt.args...); err == nil {
				t.Errorf("%v succeeded", tt.args)
			}
		})
	}
}

func TestBadEnvironment(t *testing.T) {
	a := &app{environ: []string{"MYBT_PORT=many"}}
	root := a.rootCommand()
	root.SetArgs([]string{"decode", "i1e"})
	root.SetOut(&bytes.Buffer{})
	if err := root.Execute(); err == nil {
		t.Error("Execute() succeeded with an invalid port")
	}
	if a.log() == nil {
		t.Error("log() returned nil before setup")
	}
}
