package peering

import (
	"context"
	"fmt"
	"net"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/mcheviron/bittorrent/cmd/mybittorrent/bencode"
	"github.com/mcheviron/bittorrent/cmd/mybittorrent/errs"
	"github.com/mcheviron/bittorrent/cmd/mybittorrent/logging"
)

// Conn is a handshaken peer connection carrying framed messages.
type Conn struct {
	conn        net.Conn
	idleTimeout time.Duration
	logger      *zap.Logger

	// Remote is the handshake the peer answered with.
	Remote *Handshake
}

// NewConn wraps an established connection. A positive idleTimeout bounds
// every Receive; zero waits indefinitely.
func NewConn(conn net.Conn, idleTimeout time.Duration, logger *zap.Logger) *Conn {
	return &Conn{
		conn:        conn,
		idleTimeout: idleTimeout,
		logger:      logging.OrNop(logger),
	}
}

// Handshake exchanges handshakes and records the peer's.
func (c *Conn) Handshake(infoHash [bencode.HashSize]byte, peerID [20]byte) (*Handshake, error) {
	if err := c.extendDeadline(); err != nil {
		return nil, err
	}
	remote, err := PerformHandshake(c.conn, infoHash, peerID)
	if err != nil {
		return nil, err
	}
	c.Remote = remote
	c.logger.Debug("Handshake complete",
		zap.Stringer("addr", c.conn.RemoteAddr()),
		zap.String("peer_id", fmt.Sprintf("%x", remote.PeerID)))
	return remote, nil
}

func (c *Conn) Send(m Message) error {
	c.logger.Debug("Sending message", zap.String("message", MessageName(m)))
	return WriteMessage(c.conn, m)
}

func (c *Conn) Receive() (Message, error) {
	if err := c.extendDeadline(); err != nil {
		return nil, err
	}
	msg, err := ReadMessage(c.conn)
	if err != nil {
		return nil, err
	}
	c.logger.Debug("Received message", zap.String("message", MessageName(msg)))
	return msg, nil
}

func (c *Conn) extendDeadline() error {
	if c.idleTimeout <= 0 {
		return nil
	}
	if err := c.conn.SetReadDeadline(time.Now().Add(c.idleTimeout)); err != nil {
		return errs.New(errs.Network, "deadline", err)
	}
	return nil
}

func (c *Conn) Close() error {
	return c.conn.Close()
}

// Dialer opens TCP connections to peers.
type Dialer struct {
	Timeout     time.Duration
	IdleTimeout time.Duration
	// RecvBuffer sets SO_RCVBUF before connecting when positive.
	RecvBuffer int
	Logger     *zap.Logger
}

func (d *Dialer) control(network, address string, c syscall.RawConn) error {
	if d.RecvBuffer <= 0 {
		return nil
	}
	return setReceiveBuffer(c, d.RecvBuffer)
}

// Dial connects to addr and performs the handshake.
func (d *Dialer) Dial(ctx context.Context, addr string, infoHash [bencode.HashSize]byte, peerID [20]byte) (*Conn, error) {
	dialer := net.Dialer{Timeout: d.Timeout, Control: d.control}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, errs.New(errs.Network, "dial", fmt.Errorf("failed to connect to peer: %w", err))
	}

	c := NewConn(conn, d.IdleTimeout, d.Logger)
	if _, err := c.Handshake(infoHash, peerID); err != nil {
		conn.Close()
		return nil, err
	}
	return c, nil
}
