package peering

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/mcheviron/bittorrent/cmd/mybittorrent/errs"
)

type MessageID uint8

const (
	MsgChoke         MessageID = 0
	MsgUnchoke       MessageID = 1
	MsgInterested    MessageID = 2
	MsgNotInterested MessageID = 3
	MsgHave          MessageID = 4
	MsgBitfield      MessageID = 5
	MsgRequest       MessageID = 6
	MsgPiece         MessageID = 7
	MsgCancel        MessageID = 8
)

// maxFrameLength rejects absurd length prefixes before allocating.
const maxFrameLength = 4 << 20

// Message is one frame of the peer wire protocol: KeepAlive, Choke, Unchoke,
// Interested, NotInterested, Have, Bitfield, Request, Piece or Cancel.
type Message interface {
	// appendBody appends the type tag and payload. KeepAlive appends nothing.
	appendBody(b []byte) []byte
}

// KeepAlive is the zero-length frame.
type KeepAlive struct{}

type Choke struct{}

type Unchoke struct{}

type Interested struct{}

type NotInterested struct{}

type Have struct {
	Index uint32
}

// Bitfield has one bit per piece, high bit of byte 0 being piece 0.
type Bitfield []byte

type Request struct {
	Index  uint32
	Begin  uint32
	Length uint32
}

type Piece struct {
	Index uint32
	Begin uint32
	Block []byte
}

type Cancel struct {
	Index  uint32
	Begin  uint32
	Length uint32
}

func (KeepAlive) appendBody(b []byte) []byte     { return b }
func (Choke) appendBody(b []byte) []byte         { return append(b, byte(MsgChoke)) }
func (Unchoke) appendBody(b []byte) []byte       { return append(b, byte(MsgUnchoke)) }
func (Interested) appendBody(b []byte) []byte    { return append(b, byte(MsgInterested)) }
func (NotInterested) appendBody(b []byte) []byte { return append(b, byte(MsgNotInterested)) }

func (m Have) appendBody(b []byte) []byte {
	return binary.BigEndian.AppendUint32(append(b, byte(MsgHave)), m.Index)
}

func (m Bitfield) appendBody(b []byte) []byte {
	return append(append(b, byte(MsgBitfield)), m...)
}

func (m Request) appendBody(b []byte) []byte {
	return appendTriple(append(b, byte(MsgRequest)), m.Index, m.Begin, m.Length)
}

func (m Piece) appendBody(b []byte) []byte {
	b = append(b, byte(MsgPiece))
	b = binary.BigEndian.AppendUint32(b, m.Index)
	b = binary.BigEndian.AppendUint32(b, m.Begin)
	return append(b, m.Block...)
}

func (m Cancel) appendBody(b []byte) []byte {
	return appendTriple(append(b, byte(MsgCancel)), m.Index, m.Begin, m.Length)
}

func appendTriple(b []byte, index, begin, length uint32) []byte {
	b = binary.BigEndian.AppendUint32(b, index)
	b = binary.BigEndian.AppendUint32(b, begin)
	return binary.BigEndian.AppendUint32(b, length)
}

// HasPiece reports whether the bitfield marks a piece as available.
func (bf Bitfield) HasPiece(index int) bool {
	if index < 0 || index >= len(bf)*8 {
		return false
	}
	return bf[index/8]>>(7-index%8)&1 != 0
}

// SetPiece marks a piece as available; indexes past the end are ignored.
func (bf Bitfield) SetPiece(index int) {
	if index < 0 || index >= len(bf)*8 {
		return
	}
	bf[index/8] |= 1 << (7 - index%8)
}

// Marshal frames a message with its 4-byte big-endian length prefix.
func Marshal(m Message) []byte {
	frame := m.appendBody(make([]byte, 4, 4+16))
	binary.BigEndian.PutUint32(frame[:4], uint32(len(frame)-4))
	return frame
}

// Unmarshal decodes exactly one complete frame.
func Unmarshal(frame []byte) (Message, error) {
	if len(frame) < 4 {
		return nil, errs.Errorf(errs.Parse, "message", "frame shorter than its length prefix")
	}
	length := binary.BigEndian.Uint32(frame[:4])
	if uint64(length) != uint64(len(frame)-4) {
		return nil, errs.Errorf(errs.Parse, "message", "length prefix %d does not match %d body bytes", length, len(frame)-4)
	}
	return parseBody(frame[4:])
}

// ReadMessage reads the next frame from r.
func ReadMessage(r io.Reader) (Message, error) {
	var lengthBuf [4]byte
	if _, err := io.ReadFull(r, lengthBuf[:]); err != nil {
		return nil, readError("failed to read message length", err)
	}

	length := binary.BigEndian.Uint32(lengthBuf[:])
	if length == 0 {
		return KeepAlive{}, nil
	}
	if length > maxFrameLength {
		return nil, errs.Errorf(errs.Parse, "message", "frame length %d exceeds %d", length, maxFrameLength)
	}

	body := make([]byte, length)
	if _, err := io.ReadFull(r, body); err != nil {
		return nil, readError("failed to read message body", err)
	}
	return parseBody(body)
}

func readError(what string, err error) error {
	if errors.Is(err, io.EOF) {
		err = fmt.Errorf("connection closed by peer: %w", err)
	}
	return errs.New(errs.Network, "message", fmt.Errorf("%s: %w", what, err))
}

// WriteMessage writes one framed message to w.
func WriteMessage(w io.Writer, m Message) error {
	if _, err := w.Write(Marshal(m)); err != nil {
		return errs.New(errs.Network, "message", fmt.Errorf("failed to send %s: %w", MessageName(m), err))
	}
	return nil
}

func parseBody(body []byte) (Message, error) {
	if len(body) == 0 {
		return KeepAlive{}, nil
	}

	id, payload := MessageID(body[0]), body[1:]
	switch id {
	case MsgChoke, MsgUnchoke, MsgInterested, MsgNotInterested:
		if len(payload) != 0 {
			return nil, errs.Errorf(errs.Parse, "message", "message %d carries %d unexpected payload bytes", id, len(payload))
		}
		return [...]Message{Choke{}, Unchoke{}, Interested{}, NotInterested{}}[id], nil
	case MsgHave:
		if len(payload) != 4 {
			return nil, errs.Errorf(errs.Parse, "message", "invalid have payload length: %d", len(payload))
		}
		return Have{Index: binary.BigEndian.Uint32(payload)}, nil
	case MsgBitfield:
		return Bitfield(payload), nil
	case MsgRequest, MsgCancel:
		if len(payload) != 12 {
			return nil, errs.Errorf(errs.Parse, "message", "invalid request payload length: %d", len(payload))
		}
		index := binary.BigEndian.Uint32(payload[0:4])
		begin := binary.BigEndian.Uint32(payload[4:8])
		length := binary.BigEndian.Uint32(payload[8:12])
		if id == MsgCancel {
			return Cancel{Index: index, Begin: begin, Length: length}, nil
		}
		return Request{Index: index, Begin: begin, Length: length}, nil
	case MsgPiece:
		if len(payload) < 8 {
			return nil, errs.Errorf(errs.Parse, "message", "invalid piece payload length: %d", len(payload))
		}
		return Piece{
			Index: binary.BigEndian.Uint32(payload[0:4]),
			Begin: binary.BigEndian.Uint32(payload[4:8]),
			Block: payload[8:],
		}, nil
	default:
		return nil, errs.Errorf(errs.Protocol, "message", "unknown message type %d", id)
	}
}

// MessageName is used in logs and errors.
func MessageName(m Message) string {
	switch m := m.(type) {
	case KeepAlive:
		return "keep-alive"
	case Choke:
		return "choke"
	case Unchoke:
		return "unchoke"
	case Interested:
		return "interested"
	case NotInterested:
		return "not interested"
	case Have:
		return fmt.Sprintf("have (piece %d)", m.Index)
	case Bitfield:
		return "bitfield"
	case Request:
		return fmt.Sprintf("request (piece %d, begin %d, length %d)", m.Index, m.Begin, m.Length)
	case Piece:
		return fmt.Sprintf("piece (piece %d, begin %d, %d bytes)", m.Index, m.Begin, len(m.Block))
	case Cancel:
		return fmt.Sprintf("cancel (piece %d, begin %d)", m.Index, m.Begin)
	default:
		return fmt.Sprintf("unknown (%T)", m)
	}
}
