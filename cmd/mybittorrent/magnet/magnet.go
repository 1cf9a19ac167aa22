// Package magnet parses magnet URIs that name a torrent by its info hash.
package magnet

import (
	"encoding/hex"
	"fmt"
	"net/url"
	"strings"

	"github.com/mcheviron/bittorrent/cmd/mybittorrent/bencode"
	"github.com/mcheviron/bittorrent/cmd/mybittorrent/errs"
)

const (
	scheme     = "magnet:?"
	btihPrefix = "urn:btih:"
)

// Link represents a parsed magnet link with its components
type Link struct {
	// InfoHash is the lowercase hex form of Hash.
	InfoHash   string
	Hash       [bencode.HashSize]byte
	Name       string
	Trackers   []string
	ExactTopic string
}

// Parse parses a magnet URI. The xt parameter must carry a 40-digit hex
// BitTorrent info hash; dn and tr are optional.
func Parse(uri string) (*Link, error) {
	if !strings.HasPrefix(uri, scheme) {
		return nil, errs.Errorf(errs.Parse, "magnet", "invalid magnet URI format")
	}

	values, err := url.ParseQuery(uri[len(scheme):])
	if err != nil {
		return nil, errs.New(errs.Parse, "magnet", fmt.Errorf("failed to parse magnet URI query: %w", err))
	}

	xt := values.Get("xt")
	if !strings.HasPrefix(xt, btihPrefix) {
		return nil, errs.Errorf(errs.Parse, "magnet", "invalid or missing urn:btih prefix in xt parameter")
	}

	encoded := strings.TrimPrefix(xt, btihPrefix)
	if len(encoded) != 2*bencode.HashSize {
		return nil, errs.Errorf(errs.Parse, "magnet", "invalid info hash length %d", len(encoded))
	}

	link := &Link{
		ExactTopic: xt,
		Name:       values.Get("dn"),
		Trackers:   values["tr"],
	}
	if _, err := hex.Decode(link.Hash[:], []byte(encoded)); err != nil {
		return nil, errs.New(errs.Parse, "magnet", fmt.Errorf("invalid hex-encoded info hash: %w", err))
	}
	link.InfoHash = hex.EncodeToString(link.Hash[:])

	return link, nil
}

// Tracker returns the first tracker URL, if any.
func (l *Link) Tracker() (string, bool) {
	if len(l.Trackers) == 0 {
		return "", false
	}
	return l.Trackers[0], true
}
