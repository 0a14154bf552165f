// Package uploader drives the persistent upload queue. A bounded pool of
// workers claims tasks from the store, derives each segment's body, draws
// and persists its wire identity, encrypts it under the folder's content
// key, and posts it through the relay. Progress is checkpointed with every
// posted segment, so a crash at any point resumes without data loss and
// without posting under new message ids.
package uploader

import (
	"context"
	"os"
	"path/filepath"
	"time"

	"github.com/contemptx/usenetsync-sub004/build"
	"github.com/contemptx/usenetsync-sub004/modules"
	"github.com/contemptx/usenetsync-sub004/persist"
	siasync "github.com/contemptx/usenetsync-sub004/sync"
	"github.com/contemptx/usenetsync-sub004/types"

	"github.com/NebulousLabs/errors"
)

const logFile = "uploader.log"

var (
	// pollInterval is how often an idle worker re-checks the queue even
	// without a wake signal.
	pollInterval = build.Select(build.Var{
		Standard: 2 * time.Second,
		Dev:      500 * time.Millisecond,
		Testing:  20 * time.Millisecond,
	}).(time.Duration)

	// relayTimeout is the deadline applied to one post.
	relayTimeout = build.Select(build.Var{
		Standard: 2 * time.Minute,
		Dev:      30 * time.Second,
		Testing:  10 * time.Second,
	}).(time.Duration)

	// admissionTimeout bounds how long Enqueue blocks on backpressure
	// before giving up.
	admissionTimeout = build.Select(build.Var{
		Standard: 5 * time.Minute,
		Dev:      30 * time.Second,
		Testing:  2 * time.Second,
	}).(time.Duration)

	// waitPoll is the interval at which Wait re-checks task states.
	waitPoll = build.Select(build.Var{
		Standard: 500 * time.Millisecond,
		Dev:      100 * time.Millisecond,
		Testing:  20 * time.Millisecond,
	}).(time.Duration)
)

// Uploader implements modules.Uploader.
type Uploader struct {
	store      modules.Store
	access     modules.AccessManager
	segmenter  modules.Segmenter
	obfuscator modules.Obfuscator
	relay      modules.Relay
	config     modules.Config

	// wake nudges idle workers after an enqueue.
	wake chan struct{}

	// ctx is cancelled when the uploader stops, aborting in-flight posts.
	ctx    context.Context
	cancel context.CancelFunc

	log *persist.Logger
	tg  siasync.ThreadGroup
}

// New creates an uploader and starts its worker pool.
func New(store modules.Store, access modules.AccessManager, segmenter modules.Segmenter, obfuscator modules.Obfuscator, relay modules.Relay, config modules.Config, persistDir string) (*Uploader, error) {
	if err := os.MkdirAll(persistDir, 0700); err != nil {
		return nil, err
	}
	logger, err := persist.NewLogger(filepath.Join(persistDir, logFile))
	if err != nil {
		return nil, err
	}

	workers := config.UploadWorkers
	if workers < 1 {
		workers = modules.DefaultWorkers
	}
	if caps := relay.Capabilities(); caps.MaxConnections > 0 && workers > caps.MaxConnections {
		workers = caps.MaxConnections
	}

	ctx, cancel := context.WithCancel(context.Background())
	u := &Uploader{
		store:      store,
		access:     access,
		segmenter:  segmenter,
		obfuscator: obfuscator,
		relay:      relay,
		config:     config,
		wake:       make(chan struct{}, 1),
		ctx:        ctx,
		cancel:     cancel,
		log:        logger,
	}
	u.tg.OnStop(cancel)
	u.tg.AfterStop(func() { logger.Close() })

	for i := 0; i < workers; i++ {
		if err := u.tg.Add(); err != nil {
			return nil, err
		}
		go func() {
			defer u.tg.Done()
			u.workerLoop()
		}()
	}
	u.log.Printf("uploader started with %d workers", workers)
	return u, nil
}

// Close stops the worker pool. In-flight posts are abandoned; their tasks
// return to the queue and resume on restart.
func (u *Uploader) Close() error {
	return u.tg.Stop()
}

// nudge wakes one idle worker.
func (u *Uploader) nudge() {
	select {
	case u.wake <- struct{}{}:
	default:
	}
}

// Enqueue adds one upload task per file, blocking while the queue is above
// the backpressure high-water mark.
func (u *Uploader) Enqueue(share types.Share, files []types.File) ([]types.TaskID, error) {
	if err := u.tg.Add(); err != nil {
		return nil, modules.ErrCancelled
	}
	defer u.tg.Done()

	highWater := modules.BackpressureFactor * u.config.UploadWorkers
	deadline := time.Now().Add(admissionTimeout)
	for {
		pending, err := u.store.PendingTaskCount()
		if err != nil {
			return nil, err
		}
		if pending < highWater {
			break
		}
		if time.Now().After(deadline) {
			return nil, errors.Extend(errors.New("upload queue is saturated"), modules.ErrQuotaExceeded)
		}
		select {
		case <-time.After(waitPoll):
		case <-u.tg.StopChan():
			return nil, modules.ErrCancelled
		}
	}

	var ids []types.TaskID
	for _, file := range files {
		segments, err := u.store.SegmentsForFile(file.ID)
		if err != nil {
			return nil, err
		}
		if len(segments) == 0 {
			continue
		}
		payload := types.UploadPayload{
			ShareID:  share.ID,
			FolderID: share.FolderID,
			FileID:   file.ID,
		}
		for _, seg := range segments {
			payload.SegmentIDs = append(payload.SegmentIDs, seg.ID)
		}
		task := types.UploadTask{
			Task: types.Task{
				ID:         types.NewTaskID(),
				Priority:   1,
				Status:     types.TaskPending,
				MaxRetries: u.config.MaxRetries,
			},
			Payload: payload,
		}
		if err := u.store.AddUploadTask(task); err != nil {
			return nil, err
		}
		ids = append(ids, task.ID)
	}
	u.nudge()
	return ids, nil
}

// EnqueuePack adds one task posting a pack container as a single article.
func (u *Uploader) EnqueuePack(share types.Share, packID string) (types.TaskID, error) {
	if err := u.tg.Add(); err != nil {
		return "", modules.ErrCancelled
	}
	defer u.tg.Done()

	// The pack must exist before it can be queued.
	if _, err := u.store.Pack(packID); err != nil {
		return "", err
	}
	task := types.UploadTask{
		Task: types.Task{
			ID:         types.NewTaskID(),
			Priority:   1,
			Status:     types.TaskPending,
			MaxRetries: u.config.MaxRetries,
		},
		Payload: types.UploadPayload{
			ShareID:  share.ID,
			FolderID: share.FolderID,
			PackID:   packID,
		},
	}
	if err := u.store.AddUploadTask(task); err != nil {
		return "", err
	}
	u.nudge()
	return task.ID, nil
}

// Wait blocks until every task of the share is terminal, reporting whether
// all completed.
func (u *Uploader) Wait(share types.ShareID) (bool, error) {
	if err := u.tg.Add(); err != nil {
		return false, modules.ErrCancelled
	}
	defer u.tg.Done()

	for {
		tasks, err := u.store.UploadTasksForShare(share)
		if err != nil {
			return false, err
		}
		allTerminal := true
		allCompleted := true
		for _, task := range tasks {
			if !task.Status.Terminal() {
				allTerminal = false
				break
			}
			if task.Status != types.TaskCompleted {
				allCompleted = false
			}
		}
		if allTerminal {
			return allCompleted, nil
		}
		select {
		case <-time.After(waitPoll):
		case <-u.tg.StopChan():
			return false, modules.ErrCancelled
		}
	}
}

// Stats reports upload queue occupancy.
func (u *Uploader) Stats() (modules.QueueStats, error) {
	return u.store.TaskStats(true)
}
