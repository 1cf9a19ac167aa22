package peering

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"go.uber.org/zap"

	"github.com/mcheviron/bittorrent/cmd/mybittorrent/bencode"
	"github.com/mcheviron/bittorrent/cmd/mybittorrent/errs"
	"github.com/mcheviron/bittorrent/cmd/mybittorrent/logging"
)

// maxTrackerResponse caps how much of a tracker reply is read.
const maxTrackerResponse = 4 << 20

type TrackerRequest struct {
	InfoHash   [bencode.HashSize]byte
	PeerID     string
	Port       int
	Uploaded   int64
	Downloaded int64
	Left       int64
	Compact    bool
}

// Query renders the announce parameters. info_hash and peer_id are binary,
// so every byte is percent-encoded, printable or not.
func (r TrackerRequest) Query() string {
	compact := "0"
	if r.Compact {
		compact = "1"
	}

	var b strings.Builder
	b.WriteString("info_hash=")
	b.WriteString(escapeBytes(r.InfoHash[:]))
	b.WriteString("&peer_id=")
	b.WriteString(escapeBytes([]byte(r.PeerID)))
	b.WriteString("&port=" + strconv.Itoa(r.Port))
	b.WriteString("&uploaded=" + strconv.FormatInt(r.Uploaded, 10))
	b.WriteString("&downloaded=" + strconv.FormatInt(r.Downloaded, 10))
	b.WriteString("&left=" + strconv.FormatInt(r.Left, 10))
	b.WriteString("&compact=" + compact)
	return b.String()
}

func escapeBytes(data []byte) string {
	const hexDigits = "0123456789ABCDEF"
	escaped := make([]byte, 0, 3*len(data))
	for _, c := range data {
		escaped = append(escaped, '%', hexDigits[c>>4], hexDigits[c&0x0F])
	}
	return string(escaped)
}

type TrackerResponse struct {
	FailureReason string `mapstructure:"failure reason"`
	Interval      *int64 `mapstructure:"interval"`
	Complete      *int64 `mapstructure:"complete"`
	Incomplete    *int64 `mapstructure:"incomplete"`
	Peers         string `mapstructure:"peers"`
}

// Tracker announces to HTTP trackers on behalf of one client identity.
type Tracker struct {
	client *http.Client
	peerID string
	port   int
	logger *zap.Logger
}

func NewTracker(peerID string, port int, timeout time.Duration, logger *zap.Logger) *Tracker {
	return &Tracker{
		client: &http.Client{Timeout: timeout},
		peerID: peerID,
		port:   port,
		logger: logging.OrNop(logger),
	}
}

// GetPeers announces the torrent and returns the peers in tracker order.
func (t *Tracker) GetPeers(ctx context.Context, info *bencode.TorrentInfo) ([]Peer, error) {
	_, infoHash, err := bencode.HashInfo(info)
	if err != nil {
		return nil, fmt.Errorf("failed to get info hash: %w", err)
	}
	left, err := info.TotalLength()
	if err != nil {
		return nil, err
	}

	resp, err := t.Announce(ctx, info.Announce, TrackerRequest{
		InfoHash:   infoHash,
		PeerID:     t.peerID,
		Port:       t.port,
		Uploaded:   0,
		Downloaded: 0,
		Left:       left,
		Compact:    true,
	})
	if err != nil {
		return nil, err
	}

	peers, err := ParsePeers([]byte(resp.Peers))
	if err != nil {
		return nil, err
	}
	t.logger.Debug("Tracker returned peers", zap.Int("count", len(peers)))
	return peers, nil
}

// Announce sends one GET to announceURL and parses the bencoded reply.
func (t *Tracker) Announce(ctx context.Context, announceURL string, req TrackerRequest) (*TrackerResponse, error) {
	u, err := url.Parse(announceURL)
	if err != nil {
		return nil, errs.New(errs.Parse, "announce", fmt.Errorf("invalid tracker URL: %w", err))
	}
	if u.RawQuery != "" {
		u.RawQuery += "&" + req.Query()
	} else {
		u.RawQuery = req.Query()
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, errs.New(errs.Network, "announce", err)
	}

	t.logger.Debug("Announcing to tracker", zap.String("host", u.Host), zap.Int64("left", req.Left))
	resp, err := t.client.Do(httpReq)
	if err != nil {
		return nil, errs.New(errs.Network, "announce", fmt.Errorf("failed to contact tracker: %w", err))
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, errs.Errorf(errs.Network, "announce", "unexpected tracker response: %s", resp.Status)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxTrackerResponse))
	if err != nil {
		return nil, errs.New(errs.Network, "announce", fmt.Errorf("failed to read tracker response: %w", err))
	}

	return parseTrackerResponse(body)
}

func parseTrackerResponse(body []byte) (*TrackerResponse, error) {
	decoded, err := bencode.DecodeAs[map[string]any](body)
	if err != nil {
		return nil, errs.New(errs.Protocol, "announce", fmt.Errorf("failed to decode tracker response: %w", err))
	}

	response := &TrackerResponse{}
	if err := mapstructure.Decode(decoded, response); err != nil {
		return nil, errs.New(errs.Protocol, "announce", fmt.Errorf("malformed tracker response: %w", err))
	}

	if response.FailureReason != "" {
		return nil, errs.Errorf(errs.Protocol, "announce", "tracker error: %s", response.FailureReason)
	}
	if _, ok := decoded["peers"]; !ok {
		return nil, errs.Errorf(errs.Protocol, "announce", "tracker response has no peers")
	}

	return response, nil
}
