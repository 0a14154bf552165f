// Package syncer composes the pipeline into the two end-to-end operations:
// publishing a folder as a share, and consuming a share string into a
// destination directory. The actor of every operation is explicit; the
// syncer holds no notion of a current user.
package syncer

import (
	"os"
	"path/filepath"
	"time"

	"github.com/contemptx/usenetsync-sub004/crypto"
	"github.com/contemptx/usenetsync-sub004/modules"
	"github.com/contemptx/usenetsync-sub004/persist"
	siasync "github.com/contemptx/usenetsync-sub004/sync"
	"github.com/contemptx/usenetsync-sub004/types"

	"github.com/NebulousLabs/errors"
)

const logFile = "syncer.log"

// Syncer implements modules.Syncer.
type Syncer struct {
	store      modules.Store
	access     modules.AccessManager
	scanner    modules.Scanner
	segmenter  modules.Segmenter
	uploader   modules.Uploader
	indexer    modules.Indexer
	downloader modules.Downloader
	config     modules.Config

	log *persist.Logger
	tg  siasync.ThreadGroup
}

// New creates a syncer over already-constructed modules.
func New(store modules.Store, access modules.AccessManager, scanner modules.Scanner, segmenter modules.Segmenter, uploader modules.Uploader, indexer modules.Indexer, downloader modules.Downloader, config modules.Config, persistDir string) (*Syncer, error) {
	if err := os.MkdirAll(persistDir, 0700); err != nil {
		return nil, err
	}
	logger, err := persist.NewLogger(filepath.Join(persistDir, logFile))
	if err != nil {
		return nil, err
	}
	s := &Syncer{
		store:      store,
		access:     access,
		scanner:    scanner,
		segmenter:  segmenter,
		uploader:   uploader,
		indexer:    indexer,
		downloader: downloader,
		config:     config,
		log:        logger,
	}
	s.tg.AfterStop(func() { logger.Close() })
	return s, nil
}

// Close stops the syncer.
func (s *Syncer) Close() error {
	return s.tg.Stop()
}

// AddFolder registers a local directory and creates its key material.
func (s *Syncer) AddFolder(localPath, displayName string) (types.Folder, error) {
	if err := s.tg.Add(); err != nil {
		return types.Folder{}, modules.ErrCancelled
	}
	defer s.tg.Done()

	info, err := os.Stat(localPath)
	if err != nil {
		return types.Folder{}, errors.AddContext(err, "unable to stat folder path")
	}
	if !info.IsDir() {
		return types.Folder{}, errors.Extend(errors.New("path is not a directory"), modules.ErrInvalidFormat)
	}
	abs, err := filepath.Abs(localPath)
	if err != nil {
		return types.Folder{}, err
	}
	if displayName == "" {
		displayName = filepath.Base(abs)
	}

	folder := types.Folder{
		ID:          types.NewFolderID(),
		DisplayName: displayName,
		LocalPath:   abs,
		State:       types.FolderActive,
		CreatedAt:   time.Now().UTC(),
	}
	if err := s.store.AddFolder(folder); err != nil {
		return types.Folder{}, err
	}
	if _, err := s.access.CreateFolderKeys(folder.ID); err != nil {
		return types.Folder{}, err
	}
	s.log.Printf("added folder %v at %v", folder.DisplayName, folder.LocalPath)
	return folder, nil
}

// Folders lists registered folders.
func (s *Syncer) Folders() ([]types.Folder, error) {
	return s.store.Folders()
}

// Shares lists published shares.
func (s *Syncer) Shares() ([]types.Share, error) {
	return s.store.Shares()
}

// Publish runs the full publish pipeline for one folder: scan, segment,
// upload, and index publication. It returns the share string for
// recipients.
func (s *Syncer) Publish(folderID types.FolderID, opts modules.PublishOptions) (string, error) {
	if err := s.tg.Add(); err != nil {
		return "", modules.ErrCancelled
	}
	defer s.tg.Done()

	switch opts.AccessClass {
	case types.SharePublic, types.SharePrivate, types.ShareProtected:
	default:
		return "", errors.Extend(errors.New("unknown access class"), modules.ErrInvalidFormat)
	}
	if opts.AccessClass == types.SharePrivate && len(opts.Users) == 0 {
		return "", errors.Extend(errors.New("private share requires at least one user"), modules.ErrInvalidFormat)
	}
	if opts.AccessClass == types.ShareProtected && opts.Password == "" {
		return "", errors.Extend(errors.New("protected share requires a password"), modules.ErrInvalidFormat)
	}

	// Scan for changes and segment everything that is newly indexed.
	if _, err := s.scanner.Scan(folderID); err != nil {
		return "", err
	}
	files, err := s.store.LatestFiles(folderID)
	if err != nil {
		return "", err
	}
	snapshot := 0
	for i, file := range files {
		if file.Version > snapshot {
			snapshot = file.Version
		}
		if file.State == types.FileIndexed {
			if _, err := s.segmenter.SegmentFile(file, opts.Redundancy); err != nil {
				return "", err
			}
			updated, err := s.store.File(file.ID)
			if err != nil {
				return "", err
			}
			files[i] = updated
		}
	}

	// Create the share and its session key before any upload, so a resumed
	// publish after a crash finds both in the store.
	share := types.Share{
		ID:              types.NewShareID(),
		FolderID:        folderID,
		VersionSnapshot: snapshot,
		AccessClass:     opts.AccessClass,
		CreatedAt:       time.Now().UTC(),
	}
	if err := s.store.AddShare(share); err != nil {
		return "", err
	}
	if _, err := s.access.AssignSessionKey(share.ID, folderID); err != nil {
		return "", err
	}

	// Upload everything not yet posted. Files already uploaded for an
	// earlier share keep their message ids; the new index simply
	// references them.
	var toUpload []types.File
	for _, file := range files {
		if file.State == types.FileSegmented {
			toUpload = append(toUpload, file)
		}
	}
	if len(toUpload) > 0 {
		if _, err := s.uploader.Enqueue(share, toUpload); err != nil {
			return "", err
		}
		ok, err := s.uploader.Wait(share.ID)
		if err != nil {
			return "", err
		}
		if !ok {
			return "", errors.Extend(errors.New("one or more upload tasks failed"), modules.ErrPermanent)
		}
	}

	// Index publication is ordered-after every selected file is durably
	// posted.
	shareString, err := s.indexer.Publish(share, opts.Users, opts.Password)
	if err != nil {
		return "", err
	}
	s.log.Printf("published share %v for folder %v (%d files)", share.ID, folderID, len(files))
	return shareString, nil
}

// Consume fetches a share's index and downloads the folder into the
// destination. Per-file failures land in the outcome, not in the error.
func (s *Syncer) Consume(shareString string, destination string, creds modules.Credentials) (modules.DownloadOutcome, error) {
	if err := s.tg.Add(); err != nil {
		return modules.DownloadOutcome{}, modules.ErrCancelled
	}
	defer s.tg.Done()

	doc, err := s.indexer.Fetch(shareString, creds)
	if err != nil {
		return modules.DownloadOutcome{}, err
	}
	if len(doc.SegmentKey) != crypto.KeySize {
		return modules.DownloadOutcome{}, errors.Extend(errors.New("index is missing the segment key"), modules.ErrInvalidFormat)
	}
	var segmentKey crypto.SessionKey
	copy(segmentKey[:], doc.SegmentKey)

	outcome, err := s.downloader.Download(doc, segmentKey, destination, nil)
	if err != nil {
		return modules.DownloadOutcome{}, err
	}
	return outcome, nil
}
