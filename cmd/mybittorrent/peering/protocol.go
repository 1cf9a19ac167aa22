package peering

import (
	"bytes"
	"fmt"
	"io"

	"github.com/mcheviron/bittorrent/cmd/mybittorrent/bencode"
	"github.com/mcheviron/bittorrent/cmd/mybittorrent/errs"
)

const (
	protocolID = "BitTorrent protocol"
	// HandshakeLen is 1 length byte, the protocol string, 8 reserved bytes,
	// the info hash and the peer id.
	HandshakeLen = 1 + len(protocolID) + 8 + bencode.HashSize + 20
)

// Handshake is the first message exchanged on a peer connection.
type Handshake struct {
	Reserved [8]byte
	InfoHash [bencode.HashSize]byte
	PeerID   [20]byte
}

// NewHandshake builds our handshake. No extension bits are advertised.
func NewHandshake(infoHash [bencode.HashSize]byte, peerID [20]byte) *Handshake {
	return &Handshake{InfoHash: infoHash, PeerID: peerID}
}

func (h *Handshake) Serialize() []byte {
	buf := make([]byte, 0, HandshakeLen)
	buf = append(buf, byte(len(protocolID)))
	buf = append(buf, protocolID...)
	buf = append(buf, h.Reserved[:]...)
	buf = append(buf, h.InfoHash[:]...)
	buf = append(buf, h.PeerID[:]...)
	return buf
}

// ReadHandshake reads exactly one handshake from r; anything after it
// belongs to the message stream.
func ReadHandshake(r io.Reader) (*Handshake, error) {
	response := make([]byte, HandshakeLen)
	if _, err := io.ReadFull(r, response); err != nil {
		return nil, errs.New(errs.Network, "handshake", fmt.Errorf("failed to receive handshake: %w", err))
	}
	return parseHandshake(response)
}

func parseHandshake(data []byte) (*Handshake, error) {
	if len(data) < HandshakeLen {
		return nil, errs.Errorf(errs.Parse, "handshake", "got %d bytes, want %d", len(data), HandshakeLen)
	}
	if data[0] != byte(len(protocolID)) || string(data[1:20]) != protocolID {
		return nil, errs.Errorf(errs.Protocol, "handshake", "handshake mismatch")
	}

	h := &Handshake{}
	copy(h.Reserved[:], data[20:28])
	copy(h.InfoHash[:], data[28:48])
	copy(h.PeerID[:], data[48:68])
	return h, nil
}

// Validate checks that the peer is serving the torrent we asked for.
func (h *Handshake) Validate(infoHash [bencode.HashSize]byte) error {
	if !bytes.Equal(h.InfoHash[:], infoHash[:]) {
		return errs.Errorf(errs.Protocol, "handshake", "descriptor mismatch: got %x, want %x", h.InfoHash, infoHash)
	}
	return nil
}

// PerformHandshake sends our handshake in a single write, then reads and
// validates the peer's.
func PerformHandshake(rw io.ReadWriter, infoHash [bencode.HashSize]byte, peerID [20]byte) (*Handshake, error) {
	if _, err := rw.Write(NewHandshake(infoHash, peerID).Serialize()); err != nil {
		return nil, errs.New(errs.Network, "handshake", fmt.Errorf("failed to send handshake: %w", err))
	}

	response, err := ReadHandshake(rw)
	if err != nil {
		return nil, err
	}
	if err := response.Validate(infoHash); err != nil {
		return nil, err
	}
	return response, nil
}
