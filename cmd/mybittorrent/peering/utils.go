package peering

import (
	"github.com/mcheviron/bittorrent/cmd/mybittorrent/bencode"
)

// BlockSize is the unit requested from peers (16 KiB).
const BlockSize = 16 * 1024

type Block struct {
	Begin  int
	Length int
}

// dividePiece splits a piece into consecutive blocks; only the last block
// may be shorter than blockSize.
func dividePiece(pieceLength int, blockSize int) []Block {
	var blocks []Block
	for begin := 0; begin < pieceLength; begin += blockSize {
		end := begin + blockSize
		if end > pieceLength {
			end = pieceLength
		}
		blocks = append(blocks, Block{Begin: begin, Length: end - begin})
	}
	return blocks
}

// PieceBlocks returns the ordered blocks of one piece of info.
func PieceBlocks(info *bencode.TorrentInfo, pieceIndex int) ([]Block, error) {
	size, err := info.PieceSize(pieceIndex)
	if err != nil {
		return nil, err
	}
	return dividePiece(int(size), BlockSize), nil
}
