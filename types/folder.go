package types

// folder.go defines the entities produced by scanning and segmenting a
// folder. Folder state machines only move forward: a File is indexed, then
// segmented, then uploaded, and may finally become obsolete when a newer
// content version replaces it.

import (
	"time"

	"github.com/contemptx/usenetsync-sub004/crypto"
)

// FolderState describes the lifecycle state of a folder.
type FolderState string

const (
	// FolderActive is the state of a folder that is being synchronized.
	FolderActive FolderState = "active"

	// FolderArchived is the state of a folder that is retained but no
	// longer scanned.
	FolderArchived FolderState = "archived"
)

// FileState describes the lifecycle state of one version of one file.
type FileState string

const (
	// FileIndexed means the file has been scanned and hashed.
	FileIndexed FileState = "indexed"

	// FileSegmented means segment rows exist for the file.
	FileSegmented FileState = "segmented"

	// FileUploaded means every segment of the file has a message id.
	FileUploaded FileState = "uploaded"

	// FileObsolete means a newer version of the file has been indexed.
	FileObsolete FileState = "obsolete"
)

// A Folder is a local directory tree registered for synchronization.
type Folder struct {
	ID          FolderID    `json:"id"`
	DisplayName string      `json:"displayname"`
	LocalPath   string      `json:"localpath"`
	State       FolderState `json:"state"`
	CreatedAt   time.Time   `json:"createdat"`
}

// A File is one content version of one file within a folder. Each content
// change appends a new File row with an incremented Version; rows are never
// rewritten in place.
type File struct {
	ID            FileID      `json:"id"`
	FolderID      FolderID    `json:"folderid"`
	RelativePath  string      `json:"relativepath"`
	Size          uint64      `json:"size"`
	ContentHash   crypto.Hash `json:"contenthash"`
	Version       int         `json:"version"`
	PreviousID    FileID      `json:"previousid,omitempty"` // zero when Version == 1
	State         FileState   `json:"state"`
	ModifiedAt    time.Time   `json:"modifiedat"`
	SegmentCount  uint32      `json:"segmentcount"`
}

// A Segment is one replica of one fixed-size slice of a file. ReplicaIndex 0
// is the original; replicas 1..R carry identical plaintext under independent
// message ids.
type Segment struct {
	ID            SegmentID   `json:"id"`
	FileID        FileID      `json:"fileid"`
	Index         uint32      `json:"index"`
	Offset        uint64      `json:"offset"`
	Size          uint64      `json:"size"`
	PlaintextHash crypto.Hash `json:"plaintexthash"`
	ReplicaIndex  uint8       `json:"replicaindex"`
	Compressed    bool        `json:"compressed"`
	MessageID     MessageID   `json:"messageid,omitempty"`
	WireSubject   string      `json:"wiresubject,omitempty"`
	Newsgroup     string      `json:"newsgroup,omitempty"`
}

// A Pack groups several segments into one container article. The pack
// posts under its own message id, independent of its members' ids.
type Pack struct {
	ID          string      `json:"id"`
	Checksum    crypto.Hash `json:"checksum"`
	Members     []SegmentID `json:"members"`
	MessageID   MessageID   `json:"messageid,omitempty"`
	WireSubject string      `json:"wiresubject,omitempty"`
}
