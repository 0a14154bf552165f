package types

// tasks.go defines the persistent queue entries that drive upload and
// download workers. Tasks survive process restarts; a task found in the
// in_progress or retrying state at startup is reclaimed as pending.

import (
	"time"

	"github.com/google/uuid"
)

// TaskStatus describes the lifecycle state of a queue task.
type TaskStatus string

const (
	// TaskPending tasks are waiting to be claimed by a worker.
	TaskPending TaskStatus = "pending"

	// TaskInProgress tasks are held by exactly one worker.
	TaskInProgress TaskStatus = "in_progress"

	// TaskRetrying tasks hit a retryable error and are waiting to be
	// requeued.
	TaskRetrying TaskStatus = "retrying"

	// TaskCompleted is a terminal state.
	TaskCompleted TaskStatus = "completed"

	// TaskFailed is a terminal state.
	TaskFailed TaskStatus = "failed"
)

// TaskID is the unique identifier of a queue task.
type TaskID string

// NewTaskID returns a fresh random task id.
func NewTaskID() TaskID {
	return TaskID(uuid.New().String())
}

type (
	// TaskProgress is checkpointed alongside every segment success so that
	// a resumed task skips completed work.
	TaskProgress struct {
		CompletedSegments uint64    `json:"completedsegments"`
		BytesTransferred  uint64    `json:"bytestransferred"`
		LastMessageID     MessageID `json:"lastmessageid,omitempty"`
	}

	// UploadPayload references the segments an upload task must post.
	// Either SegmentIDs or PackID is set, never both.
	UploadPayload struct {
		ShareID    ShareID     `json:"shareid"`
		FolderID   FolderID    `json:"folderid"`
		FileID     FileID      `json:"fileid"`
		SegmentIDs []SegmentID `json:"segmentids,omitempty"`
		PackID     string      `json:"packid,omitempty"`
	}

	// DownloadPayload references the files a download task must fetch. An
	// empty FileIDs slice means the full share.
	DownloadPayload struct {
		ShareID     ShareID  `json:"shareid"`
		Destination string   `json:"destination"`
		FileIDs     []FileID `json:"fileids,omitempty"`
	}

	// Task is the common queue bookkeeping shared by uploads and
	// downloads.
	Task struct {
		ID         TaskID       `json:"id"`
		Priority   int          `json:"priority"`
		Status     TaskStatus   `json:"status"`
		RetryCount int          `json:"retrycount"`
		MaxRetries int          `json:"maxretries"`
		CreatedAt  time.Time    `json:"createdat"`
		UpdatedAt  time.Time    `json:"updatedat"`
		Progress   TaskProgress `json:"progress"`
	}

	// UploadTask is a Task carrying an upload payload.
	UploadTask struct {
		Task
		Payload UploadPayload `json:"payload"`
	}

	// DownloadTask is a Task carrying a download payload.
	DownloadTask struct {
		Task
		Payload DownloadPayload `json:"payload"`
	}
)

// Terminal returns true if the task status can no longer change.
func (ts TaskStatus) Terminal() bool {
	return ts == TaskCompleted || ts == TaskFailed
}
