package peering

import (
	"context"
	"fmt"
	"io"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/mcheviron/bittorrent/cmd/mybittorrent/bencode"
	"github.com/mcheviron/bittorrent/cmd/mybittorrent/errs"
	"github.com/mcheviron/bittorrent/cmd/mybittorrent/logging"
)

// Client downloads a torrent from the peers a tracker returned, one peer
// connection at a time.
type Client struct {
	info     *bencode.TorrentInfo
	peers    []Peer
	infoHash [bencode.HashSize]byte
	peerID   [20]byte
	dialer   *Dialer
	logger   *zap.Logger
}

// NewClient announces info to tracker and keeps the returned peers in order.
func NewClient(ctx context.Context, info *bencode.TorrentInfo, tracker *Tracker, dialer *Dialer, peerID string, logger *zap.Logger) (*Client, error) {
	id, err := PeerIDBytes(peerID)
	if err != nil {
		return nil, err
	}

	peers, err := tracker.GetPeers(ctx, info)
	if err != nil {
		return nil, err
	}
	if len(peers) == 0 {
		return nil, errs.Errorf(errs.Protocol, "announce", "no peers available")
	}

	_, infoHash, err := bencode.HashInfo(info)
	if err != nil {
		return nil, fmt.Errorf("failed to get info hash: %w", err)
	}

	return &Client{
		info:     info,
		peers:    peers,
		infoHash: infoHash,
		peerID:   id,
		dialer:   dialer,
		logger:   logging.OrNop(logger),
	}, nil
}

func (c *Client) Peers() []Peer {
	return c.peers
}

// DownloadPiece writes one verified piece to sink at offset 0.
func (c *Client) DownloadPiece(ctx context.Context, pieceIndex int, sink io.WriterAt) error {
	return c.withPeer(ctx, func(s *Session) error {
		return s.DownloadPiece(pieceIndex, sink, 0)
	})
}

// DownloadAll writes every piece to sink at its absolute offset.
func (c *Client) DownloadAll(ctx context.Context, sink io.WriterAt) error {
	return c.withPeer(ctx, func(s *Session) error {
		return s.DownloadAll(sink)
	})
}

// withPeer runs fn against peers in tracker order. Only network failures
// move on to the next peer; anything else is returned as is.
func (c *Client) withPeer(ctx context.Context, fn func(*Session) error) error {
	var failures error
	for _, peer := range c.peers {
		if err := ctx.Err(); err != nil {
			return multierr.Append(failures, err)
		}

		err := c.tryPeer(ctx, peer, fn)
		if err == nil {
			return nil
		}
		if !errs.Is(err, errs.Network) {
			return err
		}
		c.logger.Warn("Peer failed, trying next", zap.Stringer("peer", peer), zap.Error(err))
		failures = multierr.Append(failures, fmt.Errorf("%s: %w", peer, err))
	}
	return fmt.Errorf("failed to download from any peer: %w", failures)
}

func (c *Client) tryPeer(ctx context.Context, peer Peer, fn func(*Session) error) (err error) {
	conn, err := c.dialer.Dial(ctx, peer.String(), c.infoHash, c.peerID)
	if err != nil {
		return err
	}
	defer func() {
		err = multierr.Append(err, conn.Close())
	}()

	return fn(NewSession(conn, c.info, c.logger.With(zap.Stringer("peer", peer))))
}
