package types

// ids.go defines the identifier types used throughout the system. All
// identifiers are value types so that they can be used as map keys and
// compared directly.

import (
	"encoding/hex"
	"encoding/json"

	"github.com/contemptx/usenetsync-sub004/crypto"

	"github.com/NebulousLabs/errors"
)

const (
	// FolderIDSize is the size of a folder identifier.
	FolderIDSize = 16

	// maxSegmentIndex is the largest segment index that can be encoded into
	// a SegmentID. 20 bits of index at the default segment size covers files
	// of up to 768 GiB.
	maxSegmentIndex = 1<<20 - 1

	// maxSegmentFileID is the largest file id that can be encoded into a
	// SegmentID.
	maxSegmentFileID = 1<<24 - 1
)

type (
	// FolderID is the opaque identifier of a synchronized folder.
	FolderID [FolderIDSize]byte

	// FileID identifies one version row of one file. FileIDs are assigned
	// monotonically by the store; a new content version receives a new
	// FileID.
	FileID uint32

	// SegmentID identifies one replica of one segment. The encoding packs
	// (replica_index, file_id, segment_index) into a single integer:
	// bits 44+ hold the replica index, bits 20-43 the file id, bits 0-19 the
	// segment index. The encoding is injective over the full tuple, which is
	// all the rest of the system relies on.
	SegmentID uint64

	// MessageID is a usenet article identifier, including the angle
	// brackets.
	MessageID string
)

var (
	// ErrInvalidFolderID is returned when decoding a malformed folder id.
	ErrInvalidFolderID = errors.New("folder id has the wrong length")
)

// NewFolderID returns a random folder identifier.
func NewFolderID() (fid FolderID) {
	crypto.Read(fid[:])
	return fid
}

// String prints the folder id in hex.
func (fid FolderID) String() string {
	return hex.EncodeToString(fid[:])
}

// LoadString decodes a hex string into the folder id.
func (fid *FolderID) LoadString(s string) error {
	if len(s) != FolderIDSize*2 {
		return ErrInvalidFolderID
	}
	b, err := hex.DecodeString(s)
	if err != nil {
		return errors.AddContext(err, "could not load folder id")
	}
	copy(fid[:], b)
	return nil
}

// MarshalJSON marshals a folder id as a hex string.
func (fid FolderID) MarshalJSON() ([]byte, error) {
	return json.Marshal(fid.String())
}

// UnmarshalJSON decodes the json hex string of the folder id.
func (fid *FolderID) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	return fid.LoadString(s)
}

// NewSegmentID encodes a (file id, segment index, replica index) tuple.
func NewSegmentID(fileID FileID, segmentIndex uint32, replicaIndex uint8) SegmentID {
	return SegmentID(uint64(replicaIndex)<<44 | (uint64(fileID)&maxSegmentFileID)<<20 | uint64(segmentIndex)&maxSegmentIndex)
}

// FileID returns the file id encoded in the segment id.
func (sid SegmentID) FileID() FileID {
	return FileID((uint64(sid) >> 20) & maxSegmentFileID)
}

// SegmentIndex returns the segment index encoded in the segment id.
func (sid SegmentID) SegmentIndex() uint32 {
	return uint32(uint64(sid) & maxSegmentIndex)
}

// ReplicaIndex returns the replica index encoded in the segment id.
func (sid SegmentID) ReplicaIndex() uint8 {
	return uint8(uint64(sid) >> 44)
}
