package persist

import (
	"fmt"
	"os"
)

// sprintln mirrors fmt.Sprintln without the trailing newline.
func sprintln(v ...interface{}) string {
	s := fmt.Sprintln(v...)
	return s[:len(s)-1]
}

// A SafeFile is a file that is stored under a temporary filename. When Commit
// is called, the file is renamed to its "final" filename. This allows for
// atomic updating of files; otherwise, an unexpected shutdown could leave a
// valuable file in a corrupted state. Callers must still Close the file
// handle as usual.
type SafeFile struct {
	*os.File
	finalName string
	committed bool
}

// NewSafeFile returns a file that can atomically be written to disk,
// minimizing the risk of corruption.
func NewSafeFile(filename string) (*SafeFile, error) {
	// The final name is made absolute at creation so that a changed working
	// directory between creation and commit cannot misdirect the rename.
	finalName := absolutePath(filename)
	file, err := os.Create(finalName + "_temp" + RandomSuffix())
	if err != nil {
		return nil, err
	}
	return &SafeFile{
		File:      file,
		finalName: finalName,
	}, nil
}

// Commit syncs the file, closes it, and then renames it to the intended final
// filename. Commit can not be called after Close.
func (sf *SafeFile) Commit() error {
	if err := sf.Sync(); err != nil {
		return err
	}
	if err := sf.File.Close(); err != nil {
		return err
	}
	if err := os.Rename(sf.Name(), sf.finalName); err != nil {
		return err
	}
	sf.committed = true
	return nil
}

// Close closes the file handle and removes the temporary file if it was never
// committed.
func (sf *SafeFile) Close() error {
	if sf.committed {
		return nil
	}
	if err := sf.File.Close(); err != nil {
		return err
	}
	return os.Remove(sf.Name())
}
