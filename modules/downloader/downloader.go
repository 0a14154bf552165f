// Package downloader fetches the segments named by a decrypted core index,
// verifies every byte against the index before it can reach the
// destination, and reconstructs the files. Segments are retrieved by a
// bounded worker pool in a priority order that fetches the first segment of
// every file before any interior segment, enabling progressive previews.
// Verified bodies are staged in a bolt database so a resumed download skips
// completed work.
package downloader

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/contemptx/usenetsync-sub004/build"
	"github.com/contemptx/usenetsync-sub004/crypto"
	"github.com/contemptx/usenetsync-sub004/modules"
	"github.com/contemptx/usenetsync-sub004/persist"
	siasync "github.com/contemptx/usenetsync-sub004/sync"
	"github.com/contemptx/usenetsync-sub004/types"

	"github.com/NebulousLabs/errors"
)

const (
	logFile     = "downloader.log"
	stagingFile = "staging.db"
)

// relayTimeout is the deadline applied to one fetch.
var relayTimeout = build.Select(build.Var{
	Standard: 2 * time.Minute,
	Dev:      30 * time.Second,
	Testing:  10 * time.Second,
}).(time.Duration)

// Downloader implements modules.Downloader.
type Downloader struct {
	store  modules.Store
	relay  modules.Relay
	config modules.Config

	staging *bolt.DB

	ctx    context.Context
	cancel context.CancelFunc

	log *persist.Logger
	tg  siasync.ThreadGroup
}

// New creates a downloader.
func New(store modules.Store, relay modules.Relay, config modules.Config, persistDir string) (*Downloader, error) {
	if err := os.MkdirAll(persistDir, 0700); err != nil {
		return nil, err
	}
	logger, err := persist.NewLogger(filepath.Join(persistDir, logFile))
	if err != nil {
		return nil, err
	}
	staging, err := bolt.Open(filepath.Join(persistDir, stagingFile), 0600, &bolt.Options{Timeout: 3 * time.Second})
	if err != nil {
		return nil, errors.AddContext(err, "unable to open the staging database")
	}

	ctx, cancel := context.WithCancel(context.Background())
	d := &Downloader{
		store:   store,
		relay:   relay,
		config:  config,
		staging: staging,
		ctx:     ctx,
		cancel:  cancel,
		log:     logger,
	}
	d.tg.OnStop(cancel)
	d.tg.AfterStop(func() {
		staging.Close()
		logger.Close()
	})
	return d, nil
}

// Close stops the downloader.
func (d *Downloader) Close() error {
	return d.tg.Stop()
}

// Stats reports download queue occupancy.
func (d *Downloader) Stats() (modules.QueueStats, error) {
	return d.store.TaskStats(false)
}

// job is one segment to retrieve.
type job struct {
	file    modules.IndexFile
	segment modules.IndexSegment
}

// jobResult reports one retrieval attempt.
type jobResult struct {
	job     job
	missing bool
	err     error
}

// buildJobs produces the retrieval order: segment 0 of every selected file
// first, then interior segments ascending within each file.
func buildJobs(index modules.IndexDocument, selection []types.FileID) []job {
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

	var heads, interiors []job
	for _, file := range index.Files {
		if !selected(file.FileID) {
			continue
		}
		segments := append([]modules.IndexSegment(nil), file.Segments...)
		sort.Slice(segments, func(i, j int) bool { return segments[i].Index < segments[j].Index })
		for i, seg := range segments {
			entry := job{file: file, segment: seg}
			if i == 0 {
				heads = append(heads, entry)
			} else {
				interiors = append(interiors, entry)
			}
		}
	}
	return append(heads, interiors...)
}

// Download retrieves the selected files of the index into the destination
// directory. Per-file problems become statuses in the outcome; only
// infrastructural failures return an error.
func (d *Downloader) Download(index modules.IndexDocument, session crypto.SessionKey, destination string, selection []types.FileID) (modules.DownloadOutcome, error) {
	if err := d.tg.Add(); err != nil {
		return modules.DownloadOutcome{}, modules.ErrCancelled
	}
	defer d.tg.Done()

	// Record the operation as a persistent task for observability and
	// progress checkpointing.
	task := types.DownloadTask{
		Task: types.Task{
			ID:         types.NewTaskID(),
			Priority:   1,
			Status:     types.TaskPending,
			MaxRetries: d.config.MaxRetries,
		},
		Payload: types.DownloadPayload{
			ShareID:     index.Share.ShareID,
			Destination: destination,
			FileIDs:     selection,
		},
	}
	if err := d.store.AddDownloadTask(task); err != nil {
		return modules.DownloadOutcome{}, err
	}
	if _, _, err := d.store.ClaimDownloadTask(); err != nil {
		return modules.DownloadOutcome{}, err
	}

	jobs := buildJobs(index, selection)
	d.fetchAll(task.ID, index, session, jobs)

	// Reconstruction derives completeness from the staging store alone, so
	// a worker failure and a missing article are handled identically.
	outcome, err := d.reconstruct(index, destination, selection)
	if err != nil {
		d.store.FailTask(task.ID)
		return modules.DownloadOutcome{}, err
	}
	if err := d.store.CompleteTask(task.ID); err != nil {
		return modules.DownloadOutcome{}, err
	}
	d.log.Printf("download of share %v finished: %d files", index.Share.ShareID, len(outcome.Files))
	return outcome, nil
}

// fetchAll drives the worker pool over the jobs and returns the set of
// missing segments keyed by (file id, segment index).
func (d *Downloader) fetchAll(taskID types.TaskID, index modules.IndexDocument, session crypto.SessionKey, jobs []job) map[types.FileID]map[uint32]bool {
	workers := d.config.DownloadWorkers
	if workers < 1 {
		workers = modules.DefaultWorkers
	}

	jobChan := make(chan job)
	resultChan := make(chan jobResult)
	for i := 0; i < workers; i++ {
		if d.tg.Add() != nil {
			break
		}
		go func() {
			defer d.tg.Done()
			for j := range jobChan {
				result := d.fetchSegment(index, session, j)
				select {
				case resultChan <- result:
				case <-d.tg.StopChan():
					return
				}
			}
		}()
	}
	go func() {
		defer close(jobChan)
		for _, j := range jobs {
			select {
			case jobChan <- j:
			case <-d.tg.StopChan():
				return
			}
		}
	}()

	missing := make(map[types.FileID]map[uint32]bool)
	var completed, bytes uint64
	for range jobs {
		select {
		case result := <-resultChan:
			if result.missing {
				if missing[result.job.file.FileID] == nil {
					missing[result.job.file.FileID] = make(map[uint32]bool)
				}
				missing[result.job.file.FileID][result.job.segment.Index] = true
				d.log.Printf("segment %d of %v missing after all replicas", result.job.segment.Index, result.job.file.Path)
				continue
			}
			if result.err != nil {
				d.log.Printf("segment %d of %v: %v", result.job.segment.Index, result.job.file.Path, result.err)
				continue
			}
			completed++
			bytes += result.job.segment.Size
			if err := d.store.CheckpointDownload(taskID, completed, bytes, result.job.segment.MessageID); err != nil {
				d.log.Severe("unable to checkpoint download:", err)
			}
		case <-d.tg.StopChan():
			return missing
		}
	}
	return missing
}
