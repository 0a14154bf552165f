package modules

import (
	"context"

	"github.com/contemptx/usenetsync-sub004/types"
)

// ArticleHeaders are the wire headers of one posted article. The relay
// forwards them verbatim; no header may correlate with content beyond the
// unavoidable article size.
type ArticleHeaders map[string]string

// Canonical header names used on every post.
const (
	HeaderMessageID   = "Message-ID"
	HeaderSubject     = "Subject"
	HeaderNewsgroups  = "Newsgroups"
	HeaderFrom        = "From"
	HeaderDate        = "Date"
	HeaderPath        = "Path"
	HeaderUserAgent   = "User-Agent"
	HeaderXNewsreader = "X-Newsreader"
	HeaderLines       = "Lines"
)

// RelayCapabilities reports the limits of a relay implementation.
type RelayCapabilities struct {
	// MaxArticleBytes bounds the body size of one article. Posts above the
	// bound fail permanently.
	MaxArticleBytes uint64

	// MaxConnections bounds how many operations may be in flight at once.
	MaxConnections int

	// SupportsTLS and SupportsStreaming describe transport features.
	SupportsTLS       bool
	SupportsStreaming bool
}

// A Relay is an append-only usenet service. Posted articles are immutable
// and are never rewritten by the server; in particular the client-generated
// Message-ID is authoritative.
//
// Connection pooling, TLS, authentication, and yEnc framing are concerns of
// the implementation; the pipeline only requires a bounded number of
// concurrent Post and Fetch operations.
type Relay interface {
	// Post submits one article. The Message-ID header must be set by the
	// caller. Re-posting an already-accepted Message-ID is success, which
	// makes retries idempotent. Errors are classified retryable or
	// permanent.
	Post(ctx context.Context, headers ArticleHeaders, body []byte) (types.MessageID, error)

	// Fetch retrieves one article by Message-ID. A missing article yields
	// ErrNotFound.
	Fetch(ctx context.Context, id types.MessageID) (ArticleHeaders, []byte, error)

	// Capabilities reports the relay's limits.
	Capabilities() RelayCapabilities
}
