package modules

import (
	"time"

	"github.com/contemptx/usenetsync-sub004/crypto"
	"github.com/contemptx/usenetsync-sub004/types"
)

// A ScannedFile describes one regular file found during a folder walk.
type ScannedFile struct {
	RelativePath string
	Size         uint64
	ModTime      time.Time
	ContentHash  crypto.Hash
}

// A ScanResult partitions a folder's files into the sets of paths that were
// added, modified, or deleted since the previous scan, keyed by relative
// path.
type ScanResult struct {
	Added    []types.File
	Modified []types.File
	Deleted  []string

	// FolderHash is a quick equivalence check over the folder: the hash of
	// the sorted concatenation of (relative_path || size || content_hash).
	FolderHash crypto.Hash

	// FileCount and TotalSize describe the folder after the scan.
	FileCount int
	TotalSize uint64
}

// A Scanner walks registered folders, hashes file contents with bounded
// memory, and appends new file version rows for anything that changed. A
// file counts as modified only when both its (size, mtime) pair and its
// content hash differ from the previous version.
type Scanner interface {
	// Scan walks the folder on disk, compares it against the store's
	// snapshot, and persists the changes. Hashing runs on a bounded worker
	// pool.
	Scan(folder types.FolderID) (ScanResult, error)

	// FolderHash recomputes the equivalence hash for the folder's current
	// snapshot without touching the disk.
	FolderHash(folder types.FolderID) (crypto.Hash, error)

	// Duplicates groups the folder's current files by content hash,
	// returning only groups with more than one path.
	Duplicates(folder types.FolderID) (map[crypto.Hash][]string, error)

	Close() error
}
