package bencode

import (
	"crypto/sha1"
	"fmt"
	"reflect"

	"github.com/go-viper/mapstructure/v2"

	"github.com/mcheviron/bittorrent/cmd/mybittorrent/errs"
)

// HashSize is the size of a SHA-1 digest, used for both the info hash and
// every entry of the piece table.
const HashSize = sha1.Size

type TorrentInfo struct {
	Announce  string    `mapstructure:"announce"`
	CreatedBy string    `mapstructure:"created by"`
	Comment   string    `mapstructure:"comment"`
	Info      InnerInfo `mapstructure:"info"`

	// rawInfo is the info dictionary exactly as decoded; the info hash is
	// computed from it so keys this type does not model still count.
	rawInfo map[string]any
}

type InnerInfo struct {
	// Length is nil for multi-file torrents, which this client does not download.
	Length      *int64 `mapstructure:"length"`
	Name        string `mapstructure:"name"`
	PieceLength int64  `mapstructure:"piece length"`
	Pieces      []byte `mapstructure:"pieces"`
}

// Info parses a .torrent file.
func Info(data []byte) (*TorrentInfo, error) {
	decoded, err := DecodeAs[map[string]any](data)
	if err != nil {
		return nil, err
	}

	if _, ok := decoded["announce"].(string); !ok {
		return nil, errs.Errorf(errs.Parse, "descriptor", "missing or invalid announce URL")
	}
	rawInfo, ok := decoded["info"].(map[string]any)
	if !ok {
		return nil, errs.Errorf(errs.Parse, "descriptor", "missing or invalid info dictionary")
	}
	if _, ok := rawInfo["name"]; !ok {
		return nil, errs.Errorf(errs.Parse, "descriptor", "info dictionary has no name")
	}

	torrentInfo := &TorrentInfo{}
	if err := decodeInto(decoded, torrentInfo); err != nil {
		return nil, errs.New(errs.Parse, "descriptor", err)
	}
	torrentInfo.rawInfo = rawInfo

	if err := torrentInfo.validate(); err != nil {
		return nil, err
	}
	return torrentInfo, nil
}

// decodeInto maps a decoded dictionary onto a struct with mapstructure tags.
// Byte strings decode to string, so []byte fields get an explicit conversion.
func decodeInto(input map[string]any, result any) error {
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		DecodeHook: stringToBytesHook,
		Result:     result,
	})
	if err != nil {
		return err
	}
	return decoder.Decode(input)
}

func stringToBytesHook(from reflect.Type, to reflect.Type, data any) (any, error) {
	if from.Kind() == reflect.String && to == reflect.TypeOf([]byte(nil)) {
		return []byte(reflect.ValueOf(data).String()), nil
	}
	return data, nil
}

func (t *TorrentInfo) validate() error {
	if t.Info.PieceLength <= 0 {
		return errs.Errorf(errs.Parse, "descriptor", "piece length must be positive, got %d", t.Info.PieceLength)
	}
	if len(t.Info.Pieces)%HashSize != 0 {
		return errs.Errorf(errs.Parse, "descriptor", "pieces length %d is not a multiple of %d", len(t.Info.Pieces), HashSize)
	}
	if t.Info.Length == nil {
		return nil
	}

	length := *t.Info.Length
	if length < 0 {
		return errs.Errorf(errs.Parse, "descriptor", "negative length %d", length)
	}
	numPieces := (length + t.Info.PieceLength - 1) / t.Info.PieceLength
	if int64(len(t.Info.Pieces)) != numPieces*HashSize {
		return errs.Errorf(errs.Parse, "descriptor", "expected %d piece hashes for %d bytes, got %d",
			numPieces, length, len(t.Info.Pieces)/HashSize)
	}
	return nil
}

// TotalLength returns the single-file length.
func (t *TorrentInfo) TotalLength() (int64, error) {
	if t.Info.Length == nil {
		return 0, errs.Errorf(errs.Parse, "descriptor", "multi-file torrents are not supported")
	}
	return *t.Info.Length, nil
}

func (t *TorrentInfo) NumPieces() int {
	return len(t.Info.Pieces) / HashSize
}

// PieceHash returns the expected SHA-1 of a piece.
func (t *TorrentInfo) PieceHash(index int) ([HashSize]byte, error) {
	var hash [HashSize]byte
	if index < 0 || index >= t.NumPieces() {
		return hash, fmt.Errorf("piece index %d out of range [0, %d)", index, t.NumPieces())
	}
	copy(hash[:], t.Info.Pieces[index*HashSize:(index+1)*HashSize])
	return hash, nil
}

// PieceSize returns the size of a piece; only the last one may be short.
func (t *TorrentInfo) PieceSize(index int) (int64, error) {
	totalLength, err := t.TotalLength()
	if err != nil {
		return 0, err
	}
	if index < 0 || index >= t.NumPieces() {
		return 0, fmt.Errorf("piece index %d out of range [0, %d)", index, t.NumPieces())
	}

	if index < t.NumPieces()-1 {
		return t.Info.PieceLength, nil
	}
	if last := totalLength % t.Info.PieceLength; last != 0 {
		return last, nil
	}
	return t.Info.PieceLength, nil
}

// HashInfo returns the info hash as hex and raw bytes.
func HashInfo(info *TorrentInfo) (string, [HashSize]byte, error) {
	infoMap := info.rawInfo
	if infoMap == nil {
		infoMap = map[string]any{
			"name":         info.Info.Name,
			"piece length": info.Info.PieceLength,
			"pieces":       info.Info.Pieces,
		}
		if info.Info.Length != nil {
			infoMap["length"] = *info.Info.Length
		}
	}

	encoded, err := Encode(infoMap)
	if err != nil {
		return "", [HashSize]byte{}, fmt.Errorf("failed to encode info: %w", err)
	}

	infoHash := sha1.Sum(encoded)
	return fmt.Sprintf("%x", infoHash), infoHash, nil
}
