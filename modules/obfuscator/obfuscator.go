// Package obfuscator generates the wire-facing artifacts of a post. Every
// value that reaches the relay is either drawn from a CSPRNG or sampled from
// a pool of values that ordinary posting tools produce, so that nothing on
// the wire correlates with the content, the folder, or the ordering of
// segments. The only derived value, the internal subject, never leaves the
// local store.
package obfuscator

import (
	"bytes"
	"path/filepath"
	"strconv"
	"time"

	"github.com/contemptx/usenetsync-sub004/crypto"
	"github.com/contemptx/usenetsync-sub004/encoding"
	"github.com/contemptx/usenetsync-sub004/modules"
	"github.com/contemptx/usenetsync-sub004/types"
)

const (
	// wireSubjectLength is the length of a posted subject.
	wireSubjectLength = 20

	// messageIDLocalLength is the length of the local part of a message
	// id.
	messageIDLocalLength = 16

	// obfuscatedNameLength is the length of a randomized filename stem.
	obfuscatedNameLength = 12
)

// Character sets for the random draws. Message id local parts are lowercase
// to match the output of common posting tools.
const (
	alnum      = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	lowerAlnum = "abcdefghijklmnopqrstuvwxyz0123456789"
	lowerAlpha = "abcdefghijklmnopqrstuvwxyz"
)

// domains is the fixed pool of plausible message id domains.
var domains = []string{
	"ngPost.com",
	"news.local",
	"usenet.local",
	"posting.local",
	"nntp.local",
}

// userAgents is the pool of common posting tools sampled for the User-Agent
// header.
var userAgents = []string{
	"Mozilla Thunderbird",
	"Pan/0.146",
	"slrn/1.0.3",
	"Xnews/5.04.25",
	"Forte Agent 8.0",
	"MesNews/1.08.06.00",
	"Gnus/5.13",
	"tin/2.4.5",
	"ngPost/4.14",
}

// fromDomains is the pool of domains used in the From header.
var fromDomains = []string{
	"example.com",
	"invalid.local",
	"nospam.invalid",
	"poster.local",
}

// organizations is the pool of Organization header values. The empty string
// means the header is omitted, which is the most common case.
var organizations = []string{"", "", "Private", "Personal", "Home"}

// Obfuscator implements modules.Obfuscator.
type Obfuscator struct{}

// New returns an Obfuscator.
func New() *Obfuscator {
	return &Obfuscator{}
}

// randString draws n characters from the given set.
func randString(set string, n int) string {
	out := make([]byte, n)
	for i := range out {
		out[i] = set[crypto.RandIntn(len(set))]
	}
	return string(out)
}

// SubjectPair derives the internal subject and draws an unrelated wire
// subject. The internal subject hashes the identifying tuple, then binds the
// folder signing key, yielding 64 hex characters that are deterministic for
// the tuple and that only the folder owner can reproduce or verify.
func (o *Obfuscator) SubjectPair(folder types.FolderID, fileVersion int, segmentIndex uint32, signingKey crypto.SecretKey) modules.SubjectPair {
	internal := new(bytes.Buffer)
	internal.Write(folder[:])
	internal.Write(encoding.EncUint64(uint64(fileVersion)))
	internal.Write(encoding.EncUint32(segmentIndex))
	inner := crypto.HashBytes(internal.Bytes())
	outer := crypto.HashAll(inner[:], signingKey[:32])
	return modules.SubjectPair{
		Internal: outer.String(),
		Wire:     randString(alnum, wireSubjectLength),
	}
}

// NewMessageID draws a random message id from the domain pool.
func (o *Obfuscator) NewMessageID() types.MessageID {
	local := randString(lowerAlnum, messageIDLocalLength)
	domain := domains[crypto.RandIntn(len(domains))]
	return types.MessageID("<" + local + "@" + domain + ">")
}

// PostHeaders assembles the complete header set for one post. No timestamp
// precision beyond the Date header is exposed, and every identity-shaped
// field is drawn from a pool. User-Agent and X-Newsreader are drawn
// independently, the way real posting tools disagree about which of the
// two to fill in, and Lines carries a fixed placeholder so the header
// count never varies with content.
func (o *Obfuscator) PostHeaders(subject string, newsgroup string, id types.MessageID) modules.ArticleHeaders {
	headers := modules.ArticleHeaders{
		modules.HeaderSubject:     subject,
		modules.HeaderNewsgroups:  newsgroup,
		modules.HeaderMessageID:   string(id),
		modules.HeaderFrom:        randString(lowerAlpha, 8) + "@" + fromDomains[crypto.RandIntn(len(fromDomains))],
		modules.HeaderDate:        time.Now().UTC().Format(time.RFC1123Z),
		modules.HeaderPath:        "not-for-mail!.POSTED!news.local",
		modules.HeaderUserAgent:   userAgents[crypto.RandIntn(len(userAgents))],
		modules.HeaderXNewsreader: userAgents[crypto.RandIntn(len(userAgents))],
		modules.HeaderLines:       "1000",
	}
	if org := organizations[crypto.RandIntn(len(organizations))]; org != "" {
		headers["Organization"] = org
	}
	return headers
}

// ObfuscateFilename replaces the name with a random stem, keeping the
// extension so that the article still looks like an ordinary binary post.
func (o *Obfuscator) ObfuscateFilename(name string) string {
	ext := filepath.Ext(name)
	return randString(lowerAlnum, obfuscatedNameLength) + ext
}

// PartName builds a yEnc-style part name for a segment.
func (o *Obfuscator) PartName(segmentIndex, totalSegments uint32) string {
	stem := randString(lowerAlnum, 16)
	return stem + ".part" + pad3(segmentIndex) + "of" + pad3(totalSegments)
}

// pad3 formats an integer with at least three digits.
func pad3(n uint32) string {
	s := strconv.FormatUint(uint64(n), 10)
	for len(s) < 3 {
		s = "0" + s
	}
	return s
}

// SanitizeBody dot-stuffs a body for nntp transmission: any line beginning
// with a dot gets a second dot prepended.
func (o *Obfuscator) SanitizeBody(body []byte) []byte {
	lines := bytes.Split(body, []byte("\n"))
	for i, line := range lines {
		if bytes.HasPrefix(line, []byte(".")) {
			lines[i] = append([]byte("."), line...)
		}
	}
	return bytes.Join(lines, []byte("\n"))
}

// VerifyInternalSubject checks that a stored internal subject has the
// expected shape: 64 hex characters.
func VerifyInternalSubject(subject string) bool {
	if len(subject) != 64 {
		return false
	}
	var h crypto.Hash
	return h.LoadString(subject) == nil
}
