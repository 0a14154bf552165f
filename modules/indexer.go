package modules

import (
	"time"

	"github.com/contemptx/usenetsync-sub004/crypto"
	"github.com/contemptx/usenetsync-sub004/types"
)

// The core index is the bootstrap document of a share: it maps the share to
// every message id needed to reconstruct the folder. It is serialized as
// compact json, deflated, encrypted under a fresh session key, signed with
// the folder signing key, and posted as a single article.
type (
	// IndexSegment names the articles of one segment: the original message
	// id plus any replica message ids.
	IndexSegment struct {
		Index             uint32            `json:"index"`
		Size              uint64            `json:"size"`
		PlaintextHash     crypto.Hash       `json:"plaintexthash"`
		MessageID         types.MessageID   `json:"messageid"`
		ReplicaMessageIDs []types.MessageID `json:"replicamessageids,omitempty"`
		Compressed        bool              `json:"compressed,omitempty"`
	}

	// IndexFile describes one file of the snapshot.
	IndexFile struct {
		FileID      types.FileID   `json:"fileid"`
		Path        string         `json:"path"`
		Size        uint64         `json:"size"`
		ContentHash crypto.Hash    `json:"contenthash"`
		Segments    []IndexSegment `json:"segments"`
	}

	// IndexShare echoes the share metadata inside the document.
	IndexShare struct {
		ShareID     types.ShareID     `json:"shareid"`
		FolderID    types.FolderID    `json:"folderid"`
		AccessClass types.AccessClass `json:"accessclass"`
		ExpiresAt   *time.Time        `json:"expiresat,omitempty"`
	}

	// IndexFolder summarizes the folder snapshot.
	IndexFolder struct {
		RelativeRoot string `json:"relativeroot"`
		FileCount    int    `json:"filecount"`
		TotalSize    uint64 `json:"totalsize"`
	}

	// IndexDocument is the decrypted core index. SegmentKey is the folder
	// content key that decrypts the referenced segment articles; it is
	// meaningful only inside the encrypted envelope.
	IndexDocument struct {
		Version    int         `json:"version"`
		CreatedAt  time.Time   `json:"createdat"`
		Share      IndexShare  `json:"share"`
		Folder     IndexFolder `json:"folder"`
		Files      []IndexFile `json:"files"`
		SegmentKey []byte      `json:"segmentkey"`
	}
)

// An Indexer builds, publishes, and retrieves core indexes.
type Indexer interface {
	// Publish builds the index for the share's snapshot, asserts that
	// every original segment has a message id, encrypts and signs the
	// envelope, posts it, and records the index message id on the share.
	// It returns the share string handed to recipients, which carries both
	// the share id and the index message id.
	Publish(share types.Share, users []string, password string) (string, error)

	// Fetch resolves a share string to the index article, verifies the
	// envelope signature, unwraps the session key with the supplied
	// credentials, and returns the decrypted document.
	Fetch(shareString string, creds Credentials) (IndexDocument, error)
}
