package peering

import (
	"bytes"
	"crypto/sha1"
	"fmt"
	"io"

	"go.uber.org/zap"

	"github.com/mcheviron/bittorrent/cmd/mybittorrent/bencode"
	"github.com/mcheviron/bittorrent/cmd/mybittorrent/errs"
	"github.com/mcheviron/bittorrent/cmd/mybittorrent/logging"
)

// MessageConn is the framed half of a handshaken connection.
type MessageConn interface {
	Send(m Message) error
	Receive() (Message, error)
}

// Session downloads pieces one block at a time over a single connection.
// It is not safe for concurrent use.
type Session struct {
	conn     MessageConn
	info     *bencode.TorrentInfo
	logger   *zap.Logger
	state    State
	bitfield Bitfield
}

func NewSession(conn MessageConn, info *bencode.TorrentInfo, logger *zap.Logger) *Session {
	return &Session{
		conn:   conn,
		info:   info,
		logger: logging.OrNop(logger),
		state:  StateAwaitBitfield,
	}
}

func (s *Session) State() State {
	return s.state
}

// Bitfield returns the pieces the peer has announced so far.
func (s *Session) Bitfield() Bitfield {
	return s.bitfield
}

// Start waits for the peer's bitfield, declares interest and waits to be
// unchoked. Keep-alives are absorbed; any other frame is fatal.
func (s *Session) Start() error {
	if s.state != StateAwaitBitfield {
		return nil
	}

	for {
		msg, err := s.conn.Receive()
		if err != nil {
			return err
		}
		if _, ok := msg.(KeepAlive); ok {
			continue
		}
		bf, ok := msg.(Bitfield)
		if !ok {
			return errs.Errorf(errs.Protocol, "session", "expected bitfield, got %s", MessageName(msg))
		}
		s.bitfield = append(Bitfield(nil), bf...)
		break
	}
	s.setState(StateNegotiating)

	if err := s.conn.Send(Interested{}); err != nil {
		return err
	}
	for {
		msg, err := s.conn.Receive()
		if err != nil {
			return err
		}
		switch msg.(type) {
		case KeepAlive:
			continue
		case Unchoke:
			s.setState(StateRequesting)
			return nil
		default:
			return errs.Errorf(errs.Protocol, "session", "expected unchoke, got %s", MessageName(msg))
		}
	}
}

// DownloadPiece fetches, verifies and writes one piece to sink at offset.
func (s *Session) DownloadPiece(index int, sink io.WriterAt, offset int64) error {
	if err := s.Start(); err != nil {
		return err
	}
	if index < 0 || index >= s.info.NumPieces() {
		return fmt.Errorf("piece index %d out of range [0, %d)", index, s.info.NumPieces())
	}
	if !s.bitfield.HasPiece(index) {
		return errs.Errorf(errs.Protocol, "session", "peer does not have piece %d", index)
	}

	s.setState(StateRequesting)
	blocks, err := PieceBlocks(s.info, index)
	if err != nil {
		return err
	}

	received := make([][]byte, 0, len(blocks))
	for _, blk := range blocks {
		data, err := s.fetchBlock(index, blk)
		if err != nil {
			return err
		}
		received = append(received, data)
	}

	s.setState(StateAssembling)
	piece := bytes.Join(received, nil)

	s.setState(StateVerifying)
	expected, err := s.info.PieceHash(index)
	if err != nil {
		return err
	}
	if actual := sha1.Sum(piece); actual != expected {
		return errs.Errorf(errs.Integrity, "session", "piece %d hash mismatch: got %x, want %x", index, actual, expected)
	}

	if _, err := sink.WriteAt(piece, offset); err != nil {
		return fmt.Errorf("failed to write piece %d: %w", index, err)
	}
	s.setState(StateDone)
	s.logger.Info("Piece verified", zap.Int("piece", index), zap.Int("bytes", len(piece)))
	return nil
}

// fetchBlock sends one request and waits for the piece frame answering it.
// Unrelated frames are skipped.
func (s *Session) fetchBlock(index int, blk Block) ([]byte, error) {
	req := Request{Index: uint32(index), Begin: uint32(blk.Begin), Length: uint32(blk.Length)}
	if err := s.conn.Send(req); err != nil {
		return nil, err
	}

	for {
		msg, err := s.conn.Receive()
		if err != nil {
			return nil, err
		}
		switch m := msg.(type) {
		case Piece:
			if m.Index != req.Index || m.Begin != req.Begin {
				s.logger.Debug("Skipping unrequested block", zap.String("message", MessageName(m)))
				continue
			}
			if len(m.Block) != blk.Length {
				return nil, errs.Errorf(errs.Protocol, "session", "block at %d of piece %d has %d bytes, want %d",
					blk.Begin, index, len(m.Block), blk.Length)
			}
			return m.Block, nil
		case Have:
			s.bitfield.SetPiece(int(m.Index))
		default:
			s.logger.Debug("Skipping message while requesting", zap.String("message", MessageName(m)))
		}
	}
}

// DownloadAll writes every piece in ascending order at its absolute offset.
func (s *Session) DownloadAll(sink io.WriterAt) error {
	for i, n := 0, s.info.NumPieces(); i < n; i++ {
		if err := s.DownloadPiece(i, sink, int64(i)*s.info.Info.PieceLength); err != nil {
			return err
		}
	}
	return nil
}

func (s *Session) setState(next State) {
	if s.state == next {
		return
	}
	s.logger.Debug("Session state", zap.Stringer("from", s.state), zap.Stringer("to", next))
	s.state = next
}
