package modules

import (
	"github.com/contemptx/usenetsync-sub004/crypto"
	"github.com/contemptx/usenetsync-sub004/types"
)

// A SubjectPair is the two-layer subject of one segment. The internal
// subject is deterministic and is used only for verification; it is never
// posted. The wire subject is drawn from a CSPRNG with no derivation from
// internal data, so the two cannot be correlated.
type SubjectPair struct {
	Internal string // 64 hex characters, never posted
	Wire     string // 20 random alphanumerics, posted
}

// An Obfuscator generates the wire artifacts of a post: subjects, message
// ids, and headers. The contract is unlinkability: given only wire subjects,
// message ids, and headers, no function of those alone recovers folder ids,
// file paths, segment ordering, or file boundaries.
type Obfuscator interface {
	// SubjectPair derives the internal subject from the folder, file
	// version, and segment index under the folder signing key, and draws an
	// unrelated random wire subject.
	SubjectPair(folder types.FolderID, fileVersion int, segmentIndex uint32, signingKey crypto.SecretKey) SubjectPair

	// NewMessageID draws a random message id of the form
	// <16 lowercase alphanumerics>@<pool domain>.
	NewMessageID() types.MessageID

	// PostHeaders assembles the full header set for one post: the wire
	// subject, newsgroup, message id, and randomized From, Date, Path, and
	// User-Agent headers that blend with ordinary traffic.
	PostHeaders(subject string, newsgroup string, id types.MessageID) ArticleHeaders

	// ObfuscateFilename replaces a filename with a random one, keeping the
	// extension.
	ObfuscateFilename(name string) string

	// SanitizeBody dot-stuffs a text body for nntp transmission.
	SanitizeBody(body []byte) []byte
}
