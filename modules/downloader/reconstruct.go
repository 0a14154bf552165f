package downloader

import (
	"os"
	"path/filepath"
	"sort"

	"github.com/contemptx/usenetsync-sub004/crypto"
	"github.com/contemptx/usenetsync-sub004/modules"
	"github.com/contemptx/usenetsync-sub004/persist"
	"github.com/contemptx/usenetsync-sub004/types"

	"github.com/NebulousLabs/errors"
)

// reconstruct assembles every selected file from the staging store,
// verifies the whole-file content hash, and writes the result atomically
// under the destination root. Files with missing segments or a failed
// content check are reported incomplete; nothing partial is ever left at
// the final path.
func (d *Downloader) reconstruct(index modules.IndexDocument, destination string, selection []types.FileID) (modules.DownloadOutcome, error) {
	selected := func(id types.FileID) bool {
		if len(selection) == 0 {
			return true
		}
		for _, want := range selection {
			if want == id {
				return true
			}
		}
		return false
	}

	outcome := modules.DownloadOutcome{ShareID: index.Share.ShareID}
	for _, file := range index.Files {
		if !selected(file.FileID) {
			continue
		}
		result, err := d.reconstructFile(index.Share.ShareID, file, destination)
		if err != nil {
			return modules.DownloadOutcome{}, err
		}
		outcome.Files = append(outcome.Files, result)
	}
	return outcome, nil
}

// reconstructFile assembles one file.
func (d *Downloader) reconstructFile(share types.ShareID, file modules.IndexFile, destination string) (modules.FileOutcome, error) {
	result := modules.FileOutcome{
		Path:       file.Path,
		TotalBytes: file.Size,
	}

	segments := append([]modules.IndexSegment(nil), file.Segments...)
	sort.Slice(segments, func(i, j int) bool { return segments[i].Index < segments[j].Index })

	// Collect the staged bodies; any absence makes the file incomplete.
	bodies := make([][]byte, 0, len(segments))
	for _, seg := range segments {
		body, err := d.stageGet(share, file.FileID, seg.Index)
		if err != nil {
			return modules.FileOutcome{}, err
		}
		if body == nil {
			result.MissingSegments = append(result.MissingSegments, seg.Index)
			continue
		}
		bodies = append(bodies, body)
	}
	if len(result.MissingSegments) > 0 {
		result.Status = modules.FileIncomplete
		return result, nil
	}

	// Write to a temp file and hash while writing, then rename into place
	// only after the content hash checks out.
	target := filepath.Join(destination, filepath.FromSlash(file.Path))
	if err := os.MkdirAll(filepath.Dir(target), 0700); err != nil {
		return modules.FileOutcome{}, err
	}
	safe, err := persist.NewSafeFile(target)
	if err != nil {
		return modules.FileOutcome{}, err
	}
	defer safe.Close()

	hasher := crypto.NewHash()
	var written uint64
	for _, body := range bodies {
		if _, err := safe.Write(body); err != nil {
			return modules.FileOutcome{}, errors.AddContext(err, "unable to write reconstructed file")
		}
		hasher.Write(body)
		written += uint64(len(body))
	}
	var contentHash crypto.Hash
	hasher.Sum(contentHash[:0])
	if contentHash != file.ContentHash || written != file.Size {
		// Every replica already passed its segment hash, yet the whole
		// does not match; leave nothing behind and report the file
		// incomplete.
		d.log.Printf("content hash mismatch for %v after reconstruction", file.Path)
		result.Status = modules.FileIncomplete
		return result, nil
	}
	if err := safe.Commit(); err != nil {
		return modules.FileOutcome{}, err
	}

	result.WrittenBytes = written
	result.Status = modules.FileComplete

	// The staged bodies are no longer needed.
	if err := d.stageDropFile(share, file.FileID); err != nil {
		d.log.Severe("unable to drop staged segments:", err)
	}
	return result, nil
}
