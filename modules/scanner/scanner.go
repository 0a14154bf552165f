// Package scanner walks registered folders, hashes file contents with
// bounded memory, and appends file version rows for everything that
// changed. The scanner is the only component that reads folder metadata
// from disk; everything downstream works from the store's snapshot.
package scanner

import (
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/contemptx/usenetsync-sub004/crypto"
	"github.com/contemptx/usenetsync-sub004/modules"
	"github.com/contemptx/usenetsync-sub004/persist"
	siasync "github.com/contemptx/usenetsync-sub004/sync"
	"github.com/contemptx/usenetsync-sub004/types"

	"github.com/NebulousLabs/errors"
)

const logFile = "scanner.log"

// A candidate is a file on disk that may need hashing.
type candidate struct {
	relPath string
	size    uint64
	modTime time.Time
}

// hashed pairs a candidate with its content hash.
type hashed struct {
	candidate
	hash crypto.Hash
	err  error
}

// Scanner implements modules.Scanner.
type Scanner struct {
	store  modules.Store
	config modules.Config

	log *persist.Logger
	tg  siasync.ThreadGroup
}

// New creates a scanner.
func New(store modules.Store, config modules.Config, persistDir string) (*Scanner, error) {
	if err := os.MkdirAll(persistDir, 0700); err != nil {
		return nil, err
	}
	logger, err := persist.NewLogger(filepath.Join(persistDir, logFile))
	if err != nil {
		return nil, err
	}
	s := &Scanner{
		store:  store,
		config: config,
		log:    logger,
	}
	s.tg.AfterStop(func() { logger.Close() })
	return s, nil
}

// Close stops the scanner.
func (s *Scanner) Close() error {
	return s.tg.Stop()
}

// shouldSkip applies the skip patterns to one path element.
func (s *Scanner) shouldSkip(name string) bool {
	for _, pattern := range s.config.SkipPatterns {
		if pattern == ".*" {
			if strings.HasPrefix(name, ".") {
				return true
			}
			continue
		}
		if name == pattern || strings.Contains(name, pattern) {
			return true
		}
	}
	return false
}

// walk lists the folder's regular files, applying skip patterns to both
// directories and files.
func (s *Scanner) walk(root string) ([]candidate, error) {
	var found []candidate
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if path == root {
			return nil
		}
		if s.shouldSkip(d.Name()) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		found = append(found, candidate{
			relPath: filepath.ToSlash(rel),
			size:    uint64(info.Size()),
			modTime: info.ModTime(),
		})
		return nil
	})
	return found, err
}

// Scan walks the folder, compares it against the store snapshot, persists
// the changes, and returns the partitioned result.
func (s *Scanner) Scan(folderID types.FolderID) (modules.ScanResult, error) {
	if err := s.tg.Add(); err != nil {
		return modules.ScanResult{}, modules.ErrCancelled
	}
	defer s.tg.Done()

	folder, err := s.store.Folder(folderID)
	if err != nil {
		return modules.ScanResult{}, err
	}
	previous, err := s.store.LatestFiles(folderID)
	if err != nil {
		return modules.ScanResult{}, err
	}
	prevByPath := make(map[string]types.File, len(previous))
	for _, file := range previous {
		prevByPath[file.RelativePath] = file
	}

	onDisk, err := s.walk(folder.LocalPath)
	if err != nil {
		return modules.ScanResult{}, errors.AddContext(err, "unable to walk folder")
	}

	// Partition: files whose (size, mtime) matches the snapshot are
	// unchanged and skip hashing entirely; the rest get hashed on the
	// worker pool.
	var toHash []candidate
	seen := make(map[string]struct{}, len(onDisk))
	for _, c := range onDisk {
		seen[c.relPath] = struct{}{}
		prev, exists := prevByPath[c.relPath]
		if exists && prev.Size == c.size && prev.ModifiedAt.Unix() == c.modTime.Unix() {
			continue
		}
		toHash = append(toHash, c)
	}

	hashedFiles, err := s.hashAll(folder.LocalPath, toHash)
	if err != nil {
		return modules.ScanResult{}, err
	}

	var result modules.ScanResult
	for _, h := range hashedFiles {
		if h.err != nil {
			s.log.Printf("skipping %v: %v", h.relPath, h.err)
			continue
		}
		prev, exists := prevByPath[h.relPath]
		if exists && prev.ContentHash == h.hash {
			// Metadata changed but content did not; not a new version.
			continue
		}
		file := types.File{
			FolderID:     folderID,
			RelativePath: h.relPath,
			Size:         h.size,
			ContentHash:  h.hash,
			ModifiedAt:   h.modTime,
		}
		assigned, err := s.store.AddFileVersion(file)
		if err != nil {
			return modules.ScanResult{}, err
		}
		file.ID = assigned
		file.State = types.FileIndexed
		if exists {
			file.Version = prev.Version + 1
			file.PreviousID = prev.ID
			result.Modified = append(result.Modified, file)
		} else {
			file.Version = 1
			result.Added = append(result.Added, file)
		}
	}

	// Anything in the snapshot that is no longer on disk is deleted; its
	// row is marked obsolete so future snapshots exclude it.
	for path, prev := range prevByPath {
		if _, exists := seen[path]; exists {
			continue
		}
		if err := s.store.SetFileState(prev.ID, types.FileObsolete); err != nil {
			return modules.ScanResult{}, err
		}
		result.Deleted = append(result.Deleted, path)
	}
	sort.Strings(result.Deleted)

	// Summarize the post-scan snapshot.
	current, err := s.store.LatestFiles(folderID)
	if err != nil {
		return modules.ScanResult{}, err
	}
	result.FileCount = len(current)
	for _, file := range current {
		result.TotalSize += file.Size
	}
	result.FolderHash = folderHash(current)

	s.log.Printf("scanned %v: %d added, %d modified, %d deleted, %d files total",
		folder.DisplayName, len(result.Added), len(result.Modified),
		len(result.Deleted), result.FileCount)
	return result, nil
}

// hashAll hashes the candidates on a bounded worker pool. Results arrive in
// any order.
func (s *Scanner) hashAll(root string, candidates []candidate) ([]hashed, error) {
	workers := s.config.ScannerWorkers
	if workers < 1 {
		workers = 1
	}
	jobs := make(chan candidate)
	results := make(chan hashed)

	for i := 0; i < workers; i++ {
		if err := s.tg.Add(); err != nil {
			return nil, modules.ErrCancelled
		}
		go func() {
			defer s.tg.Done()
			for c := range jobs {
				hash, err := hashFile(filepath.Join(root, filepath.FromSlash(c.relPath)))
				select {
				case results <- hashed{candidate: c, hash: hash, err: err}:
				case <-s.tg.StopChan():
					return
				}
			}
		}()
	}

	go func() {
		defer close(jobs)
		for _, c := range candidates {
			select {
			case jobs <- c:
			case <-s.tg.StopChan():
				return
			}
		}
	}()

	out := make([]hashed, 0, len(candidates))
	for range candidates {
		select {
		case h := <-results:
			out = append(out, h)
		case <-s.tg.StopChan():
			return nil, modules.ErrCancelled
		}
	}
	// Deterministic processing order regardless of worker scheduling.
	sort.Slice(out, func(i, j int) bool { return out[i].relPath < out[j].relPath })
	return out, nil
}

// FolderHash recomputes the equivalence hash for the folder's snapshot.
func (s *Scanner) FolderHash(folderID types.FolderID) (crypto.Hash, error) {
	files, err := s.store.LatestFiles(folderID)
	if err != nil {
		return crypto.Hash{}, err
	}
	return folderHash(files), nil
}

// folderHash hashes the sorted concatenation of
// (relative_path || size || content_hash).
func folderHash(files []types.File) crypto.Hash {
	sorted := append([]types.File(nil), files...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].RelativePath < sorted[j].RelativePath })
	h := crypto.NewHash()
	for _, file := range sorted {
		h.Write([]byte(file.RelativePath))
		h.Write([]byte(strconv.FormatUint(file.Size, 10)))
		h.Write([]byte(file.ContentHash.String()))
	}
	var out crypto.Hash
	h.Sum(out[:0])
	return out
}

// Duplicates groups the folder's files by content hash, returning only
// groups with more than one member.
func (s *Scanner) Duplicates(folderID types.FolderID) (map[crypto.Hash][]string, error) {
	files, err := s.store.LatestFiles(folderID)
	if err != nil {
		return nil, err
	}
	groups := make(map[crypto.Hash][]string)
	for _, file := range files {
		groups[file.ContentHash] = append(groups[file.ContentHash], file.RelativePath)
	}
	for hash, paths := range groups {
		if len(paths) < 2 {
			delete(groups, hash)
		}
	}
	return groups, nil
}
