package modules

import (
	"github.com/contemptx/usenetsync-sub004/types"
)

// FileChange is emitted on the store's file change stream whenever a file
// row transitions state.
type FileChange struct {
	FileID   types.FileID
	FolderID types.FolderID
	State    types.FileState
}

// TaskTransition is emitted on the store's task stream whenever a queue
// task changes status.
type TaskTransition struct {
	TaskID types.TaskID
	Status types.TaskStatus
	Upload bool
}

// EncryptedFolderKeys holds a folder's key material as stored at rest. Both
// fields are ciphertexts under the store key; plaintext key material never
// touches the database.
type EncryptedFolderKeys struct {
	SigningKey []byte
	Root       []byte
}

// A Store provides transactional persistence for every entity in the
// pipeline: folders, file versions, segments, packs, shares, commitments,
// folder keys, and the upload/download queues. Implementations must enforce
// the schema invariants:
//
//   - (folder_id, relative_path, version) is unique among files.
//   - (file_id, segment_index, replica_index) is unique among segments.
//   - A non-null segment message id is unique.
//   - A share's index message id is set only after a successful index post.
//
// All mutating operations are atomic. Operations that belong together,
// such as recording a segment's message id and checkpointing task
// progress, happen in a single transaction.
type Store interface {
	Close() error

	// Folders.
	AddFolder(folder types.Folder) error
	Folder(id types.FolderID) (types.Folder, error)
	Folders() ([]types.Folder, error)
	SetFolderState(id types.FolderID, state types.FolderState) error

	// File versions. AddFileVersion assigns the FileID, marks any previous
	// version of the same path obsolete, and links the new row to it.
	AddFileVersion(file types.File) (types.FileID, error)
	File(id types.FileID) (types.File, error)
	LatestFiles(folder types.FolderID) ([]types.File, error)
	SetFileState(id types.FileID, state types.FileState) error

	// Segments. AssignSegmentWire stores the drawn message id and wire
	// subject on a segment row before the first post attempt; it is a
	// no-op when the segment already has a message id, so retries reuse
	// the original id.
	AddSegments(segments []types.Segment) error
	Segment(id types.SegmentID) (types.Segment, error)
	SegmentsForFile(file types.FileID) ([]types.Segment, error)
	AssignSegmentWire(id types.SegmentID, mid types.MessageID, wireSubject string) error

	// Packs. AssignPackWire mirrors AssignSegmentWire for pack containers,
	// which post under their own message id.
	AddPack(pack types.Pack) error
	Pack(id string) (types.Pack, error)
	AssignPackWire(id string, mid types.MessageID, wireSubject string) error

	// Shares and commitments.
	AddShare(share types.Share) error
	Share(id types.ShareID) (types.Share, error)
	Shares() ([]types.Share, error)
	SetShareIndexMessageID(id types.ShareID, mid types.MessageID) error
	SetShareSessionKey(id types.ShareID, wrapped []byte) error
	ShareSessionKey(id types.ShareID) ([]byte, error)
	SetShareKDF(id types.ShareID, salt []byte, params *types.KDFParams) error
	AddAccessCommitments(id types.ShareID, commitments []types.AccessCommitment) error
	AccessCommitments(id types.ShareID) ([]types.AccessCommitment, error)

	// Folder keys, encrypted at rest.
	SaveFolderKeys(id types.FolderID, keys EncryptedFolderKeys) error
	FolderKeys(id types.FolderID) (EncryptedFolderKeys, error)

	// Upload queue. ClaimUploadTask atomically moves the best pending task
	// to in_progress, honoring priority order, FIFO within a priority, and
	// the per-folder in-flight ceiling. It returns false when no task is
	// claimable.
	AddUploadTask(task types.UploadTask) error
	UploadTask(id types.TaskID) (types.UploadTask, error)
	ClaimUploadTask(maxPerFolder int) (types.UploadTask, bool, error)

	// Download queue.
	AddDownloadTask(task types.DownloadTask) error
	DownloadTask(id types.TaskID) (types.DownloadTask, error)
	ClaimDownloadTask() (types.DownloadTask, bool, error)

	// Task transitions shared by both queues.
	RequeueTask(id types.TaskID, priority, retryCount int) error
	CompleteTask(id types.TaskID) error
	FailTask(id types.TaskID) error
	PendingTaskCount() (int, error)
	TaskStats(upload bool) (QueueStats, error)
	UploadTasksForShare(share types.ShareID) ([]types.UploadTask, error)

	// TaskCheckpoints lists the segments a task has already completed, so
	// a resumed task skips them.
	TaskCheckpoints(id types.TaskID) ([]types.SegmentID, error)

	// CheckpointUpload records a posted segment: it stores the message id
	// on the segment row and advances the task's progress in the same
	// transaction.
	CheckpointUpload(id types.TaskID, segment types.SegmentID, mid types.MessageID, bytes uint64) error

	// CheckpointDownload advances a download task's progress.
	CheckpointDownload(id types.TaskID, completedSegments, bytes uint64, last types.MessageID) error

	// Change streams. The returned channels receive best-effort
	// notifications; a slow consumer drops events rather than blocking the
	// store.
	FileChanges() <-chan FileChange
	TaskTransitions() <-chan TaskTransition
}
