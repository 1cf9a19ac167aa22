// Package peering talks to trackers and peers: announce, handshake, message
// framing and the sequential piece download.
package peering

import (
	"encoding/binary"
	"net"
	"strconv"

	"github.com/mcheviron/bittorrent/cmd/mybittorrent/errs"
)

// compactPeerSize is 4 bytes of IPv4 address plus a 2-byte big-endian port.
const compactPeerSize = 6

type Peer struct {
	IP   net.IP
	Port uint16
}

func (p Peer) String() string {
	return net.JoinHostPort(p.IP.String(), strconv.Itoa(int(p.Port)))
}

// ParsePeers decodes a compact peer list.
func ParsePeers(peersData []byte) ([]Peer, error) {
	if len(peersData)%compactPeerSize != 0 {
		return nil, errs.Errorf(errs.Protocol, "announce", "compact peer list length %d is not a multiple of %d",
			len(peersData), compactPeerSize)
	}

	peers := make([]Peer, 0, len(peersData)/compactPeerSize)
	for i := 0; i < len(peersData); i += compactPeerSize {
		peers = append(peers, Peer{
			IP:   net.IPv4(peersData[i], peersData[i+1], peersData[i+2], peersData[i+3]),
			Port: binary.BigEndian.Uint16(peersData[i+4 : i+6]),
		})
	}

	return peers, nil
}
