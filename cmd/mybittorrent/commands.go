package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/cobra"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/mcheviron/bittorrent/cmd/mybittorrent/bencode"
	"github.com/mcheviron/bittorrent/cmd/mybittorrent/config"
	"github.com/mcheviron/bittorrent/cmd/mybittorrent/logging"
	"github.com/mcheviron/bittorrent/cmd/mybittorrent/magnet"
	"github.com/mcheviron/bittorrent/cmd/mybittorrent/peering"
)

// app carries the configuration and logger shared by every command.
type app struct {
	environ  []string
	logLevel string

	cfg    config.Config
	logger *zap.Logger
}

func (a *app) rootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:           "mybittorrent",
		Short:         "A minimal BitTorrent client",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.setup(cmd)
		},
	}
	root.PersistentFlags().StringVar(&a.logLevel, "log-level", "", "log level (debug, info, warn, error)")

	root.AddCommand(
		a.decodeCommand(),
		a.infoCommand(),
		a.peersCommand(),
		a.handshakeCommand(),
		a.downloadPieceCommand(),
		a.downloadCommand(),
		a.magnetParseCommand(),
	)
	return root
}

func (a *app) setup(cmd *cobra.Command) error {
	cfg, err := config.Load(a.environ)
	if err != nil {
		return err
	}
	if cmd.Flags().Changed("log-level") {
		cfg.LogLevel = a.logLevel
	}

	logger, err := logging.New(cfg.LogLevel)
	if err != nil {
		return err
	}
	a.cfg = cfg
	a.logger = logger
	return nil
}

// log returns the configured logger, or an info-level one when setup
// never completed.
func (a *app) log() *zap.Logger {
	if a.logger != nil {
		return a.logger
	}
	logger, err := logging.New(config.Default().LogLevel)
	if err != nil {
		return zap.NewNop()
	}
	return logger
}

func (a *app) tracker() *peering.Tracker {
	return peering.NewTracker(a.cfg.PeerID, a.cfg.Port, a.cfg.TrackerTimeout, a.logger)
}

func (a *app) dialer() *peering.Dialer {
	return &peering.Dialer{
		Timeout:     a.cfg.DialTimeout,
		IdleTimeout: a.cfg.IdleTimeout,
		RecvBuffer:  a.cfg.RecvBuffer,
		Logger:      a.logger,
	}
}

func loadTorrent(path string) (*bencode.TorrentInfo, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read torrent file: %w", err)
	}
	return bencode.Info(data)
}

func (a *app) decodeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "decode <value>",
		Short: "Decode a bencoded value and print it as JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			decoded, err := bencode.Decode([]byte(args[0]))
			if err != nil {
				return err
			}
			jsonOutput, err := json.Marshal(decoded)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(jsonOutput))
			return nil
		},
	}
}

func (a *app) infoCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "info <torrent-file>",
		Short: "Print the metadata of a torrent file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			info, err := loadTorrent(args[0])
			if err != nil {
				return err
			}
			length, err := info.TotalLength()
			if err != nil {
				return err
			}
			hash, _, err := bencode.HashInfo(info)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Tracker URL: %s\n", info.Announce)
			fmt.Fprintf(out, "Length: %d\n", length)
			fmt.Fprintf(out, "Info Hash: %s\n", hash)
			fmt.Fprintf(out, "Piece Length: %d\n", info.Info.PieceLength)
			fmt.Fprintln(out, "Piece Hashes:")
			for i, n := 0, info.NumPieces(); i < n; i++ {
				pieceHash, err := info.PieceHash(i)
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "%x\n", pieceHash)
			}
			return nil
		},
	}
}

func (a *app) peersCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "peers <torrent-file>",
		Short: "Announce to the tracker and list the peers it returns",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			info, err := loadTorrent(args[0])
			if err != nil {
				return err
			}
			peers, err := a.tracker().GetPeers(cmd.Context(), info)
			if err != nil {
				return err
			}
			for _, peer := range peers {
				fmt.Fprintln(cmd.OutOrStdout(), peer)
			}
			return nil
		},
	}
}

func (a *app) handshakeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "handshake <torrent-file> <peer-address>",
		Short: "Handshake with a peer and print its peer id",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			info, err := loadTorrent(args[0])
			if err != nil {
				return err
			}
			_, infoHash, err := bencode.HashInfo(info)
			if err != nil {
				return err
			}
			peerID, err := peering.PeerIDBytes(a.cfg.PeerID)
			if err != nil {
				return err
			}

			conn, err := a.dialer().Dial(cmd.Context(), args[1], infoHash, peerID)
			if err != nil {
				return err
			}
			defer conn.Close()

			fmt.Fprintf(cmd.OutOrStdout(), "Peer ID: %x\n", conn.Remote.PeerID)
			return nil
		},
	}
}

func (a *app) downloadPieceCommand() *cobra.Command {
	var output string
	cmd := &cobra.Command{
		Use:   "download_piece -o <output-path> <torrent-file> <piece-index>",
		Short: "Download and verify a single piece",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			pieceIndex, err := strconv.Atoi(args[1])
			if err != nil {
				return fmt.Errorf("invalid piece index: %w", err)
			}
			info, err := loadTorrent(args[0])
			if err != nil {
				return err
			}
			if pieceIndex < 0 || pieceIndex >= info.NumPieces() {
				return fmt.Errorf("piece index %d out of range [0, %d)", pieceIndex, info.NumPieces())
			}

			client, err := peering.NewClient(cmd.Context(), info, a.tracker(), a.dialer(), a.cfg.PeerID, a.logger)
			if err != nil {
				return err
			}
			err = writeOutput(output, func(f *os.File) error {
				return client.DownloadPiece(cmd.Context(), pieceIndex, f)
			})
			if err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Piece %d downloaded to %s.\n", pieceIndex, output)
			return nil
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "", "output file path")
	cmd.MarkFlagRequired("output")
	return cmd
}

func (a *app) downloadCommand() *cobra.Command {
	var output string
	cmd := &cobra.Command{
		Use:   "download -o <output-path> <torrent-file>",
		Short: "Download and verify a whole single-file torrent",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			info, err := loadTorrent(args[0])
			if err != nil {
				return err
			}
			if _, err := info.TotalLength(); err != nil {
				return err
			}

			client, err := peering.NewClient(cmd.Context(), info, a.tracker(), a.dialer(), a.cfg.PeerID, a.logger)
			if err != nil {
				return err
			}
			err = writeOutput(output, func(f *os.File) error {
				return client.DownloadAll(cmd.Context(), f)
			})
			if err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Downloaded %s to %s.\n", args[0], output)
			return nil
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "", "output file path")
	cmd.MarkFlagRequired("output")
	return cmd
}

func (a *app) magnetParseCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "magnet_parse <magnet-link>",
		Short: "Print the tracker and info hash of a magnet link",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			link, err := magnet.Parse(args[0])
			if err != nil {
				return err
			}
			tracker, ok := link.Tracker()
			if !ok {
				return fmt.Errorf("no trackers found in magnet link")
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Tracker URL: %s\n", tracker)
			fmt.Fprintf(cmd.OutOrStdout(), "Info Hash: %s\n", link.InfoHash)
			return nil
		},
	}
}

// writeOutput creates path and hands it to fn. The file is removed again
// when fn fails so no partial download is left behind.
func writeOutput(path string, fn func(*os.File) error) (err error) {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create output file: %w", err)
	}
	defer func() {
		err = multierr.Append(err, f.Close())
		if err != nil {
			os.Remove(path)
		}
	}()
	return fn(f)
}
