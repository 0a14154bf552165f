package modules

import (
	"github.com/contemptx/usenetsync-sub004/crypto"
	"github.com/contemptx/usenetsync-sub004/types"
)

// FileStatus is the user-visible outcome of one file of a download.
type FileStatus string

const (
	// FileComplete means the file was written and passed its content hash
	// check.
	FileComplete FileStatus = "complete"

	// FileIncomplete means one or more segments were missing on the relay
	// after every replica was tried. The file was not written.
	FileIncomplete FileStatus = "incomplete"
)

// A FileOutcome reports the result of downloading one file. Missing
// segments are reported by index.
type FileOutcome struct {
	Path            string     `json:"path"`
	WrittenBytes    uint64     `json:"writtenbytes"`
	TotalBytes      uint64     `json:"totalbytes"`
	Status          FileStatus `json:"status"`
	MissingSegments []uint32   `json:"missingsegments,omitempty"`
}

// A DownloadOutcome is the structured result of a consume operation. No
// error escapes the public API for per-file problems; incompleteness is a
// status, not an exception.
type DownloadOutcome struct {
	ShareID types.ShareID `json:"shareid"`
	Files   []FileOutcome `json:"files"`
}

// Complete returns true when every file of the outcome is complete.
func (o DownloadOutcome) Complete() bool {
	for _, f := range o.Files {
		if f.Status != FileComplete {
			return false
		}
	}
	return true
}

// A Downloader fetches the segments named by a decrypted core index with a
// bounded worker pool, verifies them, and reconstructs the files under a
// destination root. Verified segments are staged so that a resumed download
// skips completed work. Replicas are tried in order when an article is
// missing, fails its tag, or fails its hash check.
type Downloader interface {
	// Download fetches the selected files of the index into the
	// destination directory. A nil selection means every file. Segment
	// bodies are decrypted with the index's segment key.
	Download(index IndexDocument, session crypto.SessionKey, destination string, selection []types.FileID) (DownloadOutcome, error)

	// Stats reports queue occupancy.
	Stats() (QueueStats, error)

	Close() error
}
