package persist

import (
	"encoding/base32"
	"os"
	"path/filepath"

	"github.com/NebulousLabs/errors"
	"github.com/NebulousLabs/fastrand"
)

const (
	// persistDir is the name of the directory used during testing.
	persistDir = "persist"

	// tempSuffix is the suffix that is applied to the temporary files created
	// by SaveJSON, so that the most recent previous version is not lost in
	// the event of a crash mid-write.
	tempSuffix = "_temp"
)

var (
	// ErrBadFilenameSuffix indicates that SaveJSON or LoadJSON was called
	// using a filename that is potentially a bad idea.
	ErrBadFilenameSuffix = errors.New("filename suffix not allowed")

	// ErrBadHeader indicates that the file opened is not the file that was
	// expected.
	ErrBadHeader = errors.New("wrong header")

	// ErrBadVersion indicates that the version number of the file is not
	// compatible with the current codebase.
	ErrBadVersion = errors.New("incompatible version")
)

// Metadata contains the header and version of the data being stored.
type Metadata struct {
	Header, Version string
}

// RandomSuffix returns a 20 character base32 suffix for a filename. There are
// 100 bits of entropy, and a very low probability of colliding with existing
// files unintentionally.
func RandomSuffix() string {
	str := base32.StdEncoding.EncodeToString(fastrand.Bytes(20))
	return str[:20]
}

// RemoveFile removes an atomic file from disk, along with any uncommitted
// or temporary files.
func RemoveFile(filename string) error {
	err := os.RemoveAll(filename)
	if err != nil {
		return err
	}
	return os.RemoveAll(filename + tempSuffix)
}

// absolutePath returns the absolute version of a path, falling back to the
// input if the working directory cannot be determined.
func absolutePath(path string) string {
	abs, err := filepath.Abs(path)
	if err != nil {
		return path
	}
	return abs
}
