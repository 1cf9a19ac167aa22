package peering

import "fmt"

// State is the progress of a Session through one piece.
type State uint8

const (
	StateAwaitBitfield State = iota
	StateNegotiating
	StateRequesting
	StateAssembling
	StateVerifying
	StateDone
)

func (s State) String() string {
	switch s {
	case StateAwaitBitfield:
		return "await-bitfield"
	case StateNegotiating:
		return "negotiating"
	case StateRequesting:
		return "requesting"
	case StateAssembling:
		return "assembling"
	case StateVerifying:
		return "verifying"
	case StateDone:
		return "done"
	default:
		return fmt.Sprintf("state(%d)", uint8(s))
	}
}

// PeerIDBytes converts a 20-character client identity to its wire form.
func PeerIDBytes(peerID string) ([20]byte, error) {
	var id [20]byte
	if len(peerID) != len(id) {
		return id, fmt.Errorf("peer id must be %d bytes, got %d", len(id), len(peerID))
	}
	copy(id[:], peerID)
	return id, nil
}
