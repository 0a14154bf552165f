package modules

import (
	"github.com/contemptx/usenetsync-sub004/types"
)

// PublishOptions parameterize one publish operation.
type PublishOptions struct {
	// AccessClass selects public, private, or protected access.
	AccessClass types.AccessClass

	// Users lists the recipient user ids of a private share. A private
	// share with zero users is rejected as invalid.
	Users []string

	// Password protects a protected share.
	Password string

	// Redundancy is the replica count per segment. Negative means the
	// configured default.
	Redundancy int
}

// A Syncer is the composition root of the pipeline: it owns the publish and
// consume operations end to end. The actor performing an operation is always
// an explicit parameter; the syncer holds no notion of a current user.
type Syncer interface {
	// AddFolder registers a local directory for synchronization, creating
	// its key material.
	AddFolder(localPath, displayName string) (types.Folder, error)

	// Folders lists the registered folders.
	Folders() ([]types.Folder, error)

	// Publish scans the folder, segments every changed file, uploads all
	// segments, publishes the core index, and returns the share string to
	// hand to recipients.
	Publish(folder types.FolderID, opts PublishOptions) (string, error)

	// Consume fetches a share's index with the given credentials and
	// downloads the folder into the destination directory. Per-file
	// failures are reported in the outcome, not as errors.
	Consume(shareString string, destination string, creds Credentials) (DownloadOutcome, error)

	// Shares lists the shares published from this store.
	Shares() ([]types.Share, error)

	Close() error
}
