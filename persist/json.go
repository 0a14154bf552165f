package persist

import (
	"bytes"
	"encoding/json"
	"io"
	"os"
	"sync"

	"github.com/contemptx/usenetsync-sub004/crypto"

	"github.com/NebulousLabs/errors"
)

var (
	// activeFiles tracks which files are currently being written by
	// SaveJSON. Concurrent writes to the same file are developer error and
	// result in a panic, because interleaved writes can corrupt both the
	// main file and the temp file.
	activeFiles   = make(map[string]struct{})
	activeFilesMu sync.Mutex
)

// readJSON will try to read a persisted json object from a file, verifying
// the metadata and the checksum before decoding into the object.
func readJSON(meta Metadata, object interface{}, filename string) error {
	// Open the file.
	file, err := os.Open(filename)
	if err != nil {
		return err
	}
	defer file.Close()

	// Read the metadata from the file.
	var header, version string
	dec := json.NewDecoder(file)
	if err := dec.Decode(&header); err != nil {
		return errors.AddContext(err, "unable to read header from persisted json object file")
	}
	if header != meta.Header {
		return ErrBadHeader
	}
	if err := dec.Decode(&version); err != nil {
		return errors.AddContext(err, "unable to read version from persisted json object file")
	}
	if version != meta.Version {
		return ErrBadVersion
	}

	// Read the checksum and the remaining data from the file.
	var checksum string
	if err := dec.Decode(&checksum); err != nil {
		return errors.AddContext(err, "unable to read checksum from persisted json object file")
	}
	remainingBytes, err := io.ReadAll(dec.Buffered())
	if err != nil {
		return errors.AddContext(err, "unable to read persisted json object data")
	}
	remainingBytes = append(remainingBytes, mustReadAll(file)...)
	remainingBytes = bytes.TrimSpace(remainingBytes)

	// Verify the checksum. A manual checksum allows hand-edited files to be
	// loaded during recovery.
	if checksum != "manual" && checksum != crypto.HashBytes(remainingBytes).String() {
		return errors.New("loaded persisted json object has a bad checksum")
	}

	// Parse the json object.
	return json.Unmarshal(remainingBytes, &object)
}

// mustReadAll reads the remainder of a reader, swallowing errors. It is only
// used after the json decoder has consumed an unknown amount of the file.
func mustReadAll(r io.Reader) []byte {
	b, _ := io.ReadAll(r)
	return b
}

// LoadJSON will load a persisted json object from disk. If the main file is
// corrupt, the most recent temporary file written by SaveJSON is tried
// before giving up.
func LoadJSON(meta Metadata, object interface{}, filename string) error {
	// Verify that the filename does not have the persist temp suffix.
	if len(filename) > len(tempSuffix) && filename[len(filename)-len(tempSuffix):] == tempSuffix {
		return ErrBadFilenameSuffix
	}

	// Try the main file first, and fall back to the temp file.
	errMain := readJSON(meta, object, filename)
	if errMain == nil {
		return nil
	}
	if os.IsNotExist(errMain) {
		return errMain
	}
	errTemp := readJSON(meta, object, filename+tempSuffix)
	if errTemp == nil {
		return nil
	}
	return errors.Compose(errors.AddContext(errMain, "main file"), errors.AddContext(errTemp, "temp file"))
}

// SaveJSON will save a json object to disk in a durable, atomic way. The
// resulting file will have a header, a version, and a checksum, and a copy is
// written to a temp file first so that an interrupted write cannot destroy
// the previous version.
func SaveJSON(meta Metadata, object interface{}, filename string) error {
	// Verify that the filename does not have the persist temp suffix.
	if len(filename) > len(tempSuffix) && filename[len(filename)-len(tempSuffix):] == tempSuffix {
		return ErrBadFilenameSuffix
	}

	// Guard against concurrent writes to the same file.
	activeFilesMu.Lock()
	if _, exists := activeFiles[filename]; exists {
		activeFilesMu.Unlock()
		panic("concurrent SaveJSON: " + filename)
	}
	activeFiles[filename] = struct{}{}
	activeFilesMu.Unlock()
	defer func() {
		activeFilesMu.Lock()
		delete(activeFiles, filename)
		activeFilesMu.Unlock()
	}()

	// Write the metadata, checksum, and object into a buffer.
	buf := new(bytes.Buffer)
	enc := json.NewEncoder(buf)
	if err := enc.Encode(meta.Header); err != nil {
		return errors.AddContext(err, "unable to encode metadata header")
	}
	if err := enc.Encode(meta.Version); err != nil {
		return errors.AddContext(err, "unable to encode metadata version")
	}
	objBytes, err := json.MarshalIndent(object, "", "\t")
	if err != nil {
		return errors.AddContext(err, "unable to marshal the provided object")
	}
	checksum := crypto.HashBytes(objBytes).String()
	if err := enc.Encode(checksum); err != nil {
		return errors.AddContext(err, "unable to encode the checksum")
	}
	buf.Write(objBytes)
	data := buf.Bytes()

	// Write the data to the temp file first and sync it, then write the main
	// file. If the process dies between the two writes, the temp file holds
	// the newest consistent copy.
	writeFile := func(name string) error {
		file, err := os.OpenFile(name, os.O_RDWR|os.O_TRUNC|os.O_CREATE, 0600)
		if err != nil {
			return errors.AddContext(err, "unable to open file "+name)
		}
		defer file.Close()
		if _, err := file.Write(data); err != nil {
			return errors.AddContext(err, "unable to write file "+name)
		}
		return errors.AddContext(file.Sync(), "unable to sync file "+name)
	}
	if err := writeFile(filename + tempSuffix); err != nil {
		return err
	}
	return writeFile(filename)
}
