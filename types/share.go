package types

// share.go defines shares and the identifiers handed to recipients. A share
// is immutable once published; changing the audience of a folder means
// publishing a new share with a fresh session key.

import (
	"encoding/base32"
	"strings"
	"time"

	"github.com/contemptx/usenetsync-sub004/crypto"

	"github.com/NebulousLabs/errors"
)

const (
	// ShareIDLength is the length of a share identifier in characters.
	ShareIDLength = 24

	// shareIDEntropy is the number of random bytes encoded into a share id.
	// 15 bytes of entropy encode to exactly 24 base32 characters.
	shareIDEntropy = 15

	// shareAlphabet is the base32 alphabet used for share identifiers and
	// share strings. The characters 0, O, 1, and I are excluded to avoid
	// transcription mistakes.
	shareAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"
)

// shareEncoding encodes share identifiers without padding.
var shareEncoding = base32.NewEncoding(shareAlphabet).WithPadding(base32.NoPadding)

// AccessClass describes who can decrypt a share's core index.
type AccessClass string

const (
	// SharePublic shares are decryptable by anyone holding the share string.
	SharePublic AccessClass = "public"

	// SharePrivate shares are decryptable only by users whose access
	// commitment appears in the index.
	SharePrivate AccessClass = "private"

	// ShareProtected shares are decryptable by anyone holding the share
	// string and the password.
	ShareProtected AccessClass = "protected"
)

var (
	// ErrInvalidShareID is returned when parsing a malformed share id.
	ErrInvalidShareID = errors.New("invalid share id")

	// ErrInvalidShareString is returned when parsing a malformed share
	// string.
	ErrInvalidShareString = errors.New("invalid share string")
)

type (
	// ShareID is the 24-character identifier of a share.
	ShareID string

	// KDFParams records how a protected share's wrapping key is derived
	// from the password.
	KDFParams struct {
		Algorithm  string `json:"algorithm"`
		Salt       []byte `json:"salt"`
		Iterations int    `json:"iterations,omitempty"`
		N          int    `json:"n,omitempty"`
		R          int    `json:"r,omitempty"`
		P          int    `json:"p,omitempty"`
	}

	// A Share names one published snapshot of one folder.
	Share struct {
		ID              ShareID     `json:"id"`
		FolderID        FolderID    `json:"folderid"`
		VersionSnapshot int         `json:"versionsnapshot"`
		AccessClass     AccessClass `json:"accessclass"`
		IndexMessageID  MessageID   `json:"indexmessageid,omitempty"`
		CreatedAt       time.Time   `json:"createdat"`
		ExpiresAt       *time.Time  `json:"expiresat,omitempty"`
		PasswordSalt    []byte      `json:"passwordsalt,omitempty"`
		KDFParams       *KDFParams  `json:"kdfparams,omitempty"`
	}

	// An AccessCommitment grants exactly one user the ability to unwrap a
	// private share's session key.
	AccessCommitment struct {
		UserIDHash       crypto.Hash `json:"useridhash"`
		VerificationKey  crypto.Hash `json:"verificationkey"`
		WrappedSessionKey []byte     `json:"wrappedsessionkey"`
	}
)

// NewShareID returns a random share identifier.
func NewShareID() ShareID {
	return ShareID(shareEncoding.EncodeToString(crypto.RandBytes(shareIDEntropy)))
}

// Valid checks that a share id has the correct length and alphabet.
func (sid ShareID) Valid() error {
	if len(sid) != ShareIDLength {
		return ErrInvalidShareID
	}
	for _, c := range sid {
		if !strings.ContainsRune(shareAlphabet, c) {
			return ErrInvalidShareID
		}
	}
	return nil
}

// ShareString builds the opaque string handed to recipients. The string
// carries both the share id and the message id of the index article, so a
// recipient can locate the index without any lookup service. The message id
// is encoded with the same confusion-resistant alphabet as the share id.
func ShareString(sid ShareID, indexMessageID MessageID) string {
	return string(sid) + "." + shareEncoding.EncodeToString([]byte(indexMessageID))
}

// ParseShareString splits a share string into the share id and the index
// message id.
func ParseShareString(s string) (ShareID, MessageID, error) {
	dot := strings.IndexByte(s, '.')
	if dot != ShareIDLength {
		return "", "", ErrInvalidShareString
	}
	sid := ShareID(s[:dot])
	if err := sid.Valid(); err != nil {
		return "", "", err
	}
	midBytes, err := shareEncoding.DecodeString(s[dot+1:])
	if err != nil {
		return "", "", errors.Compose(ErrInvalidShareString, err)
	}
	return sid, MessageID(midBytes), nil
}
