package modules

import (
	"github.com/contemptx/usenetsync-sub004/types"
)

// QueueStats summarizes a queue's occupancy.
type QueueStats struct {
	Pending    int `json:"pending"`
	InProgress int `json:"inprogress"`
	Retrying   int `json:"retrying"`
	Completed  int `json:"completed"`
	Failed     int `json:"failed"`
}

// An Uploader drives the persistent upload queue with a bounded worker
// pool. Workers draw a wire subject and message id for each segment,
// encrypt the segment body under the folder's content key, post it, and
// checkpoint progress. Tasks survive restarts; message ids are persisted
// before the first post attempt so retries are idempotent.
type Uploader interface {
	// Enqueue adds one upload task per file for the share's snapshot. It
	// blocks while the pending queue is above the backpressure high-water
	// mark, and fails with ErrQuotaExceeded if blocked past the admission
	// deadline.
	Enqueue(share types.Share, files []types.File) ([]types.TaskID, error)

	// EnqueuePack adds one upload task posting a whole pack container as
	// a single article under the pack's own message id.
	EnqueuePack(share types.Share, packID string) (types.TaskID, error)

	// Wait blocks until every task of the share has reached a terminal
	// state, and reports whether all of them completed.
	Wait(share types.ShareID) (bool, error)

	// Stats reports queue occupancy.
	Stats() (QueueStats, error)

	Close() error
}
