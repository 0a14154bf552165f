package relay

import (
	"context"
	"sync"

	"github.com/contemptx/usenetsync-sub004/modules"
	"github.com/contemptx/usenetsync-sub004/types"

	"github.com/NebulousLabs/errors"
)

// defaultMaxArticleBytes mirrors the article limit of typical providers.
const defaultMaxArticleBytes = 4 * 1024 * 1024

// article is one stored post.
type article struct {
	headers modules.ArticleHeaders
	body    []byte
}

// Memory is an append-only in-memory relay. It honors the full relay
// contract: client message ids are authoritative, re-posting an accepted
// message id is success, and articles are immutable. Fault injection hooks
// let tests exercise retry and replica-fallback paths.
type Memory struct {
	articles map[types.MessageID]article

	// dropped message ids respond NotFound on fetch, simulating articles
	// the provider expired or never propagated.
	dropped map[types.MessageID]struct{}

	// failPosts and failFetches make the next n operations fail with a
	// retryable error.
	failPosts   int
	failFetches int

	caps modules.RelayCapabilities
	mu   sync.Mutex
}

// NewMemory returns an empty in-memory relay with the given connection
// budget.
func NewMemory(maxConnections int) *Memory {
	return &Memory{
		articles: make(map[types.MessageID]article),
		dropped:  make(map[types.MessageID]struct{}),
		caps: modules.RelayCapabilities{
			MaxArticleBytes: defaultMaxArticleBytes,
			MaxConnections:  maxConnections,
			SupportsTLS:     false,
		},
	}
}

// Post stores one article. The Message-ID header must be present; a body
// above the article limit fails permanently; a duplicate message id is
// treated as success without modifying the stored article.
func (m *Memory) Post(ctx context.Context, headers modules.ArticleHeaders, body []byte) (types.MessageID, error) {
	select {
	case <-ctx.Done():
		return "", modules.Retryable(modules.ErrCancelled)
	default:
	}

	id := types.MessageID(headers[modules.HeaderMessageID])
	if id == "" {
		return "", modules.Permanent(errors.New("post is missing a message id"))
	}
	if uint64(len(body)) > m.caps.MaxArticleBytes {
		return "", modules.Permanent(errors.New("article exceeds the relay size limit"))
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failPosts > 0 {
		m.failPosts--
		return "", modules.Retryable(errors.New("injected transient post failure"))
	}
	if _, exists := m.articles[id]; exists {
		// Idempotent: the relay already holds this article.
		return id, nil
	}
	stored := article{headers: make(modules.ArticleHeaders, len(headers)), body: append([]byte(nil), body...)}
	for k, v := range headers {
		stored.headers[k] = v
	}
	m.articles[id] = stored
	return id, nil
}

// Fetch returns one article by message id.
func (m *Memory) Fetch(ctx context.Context, id types.MessageID) (modules.ArticleHeaders, []byte, error) {
	select {
	case <-ctx.Done():
		return nil, nil, modules.Retryable(modules.ErrCancelled)
	default:
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failFetches > 0 {
		m.failFetches--
		return nil, nil, modules.Retryable(errors.New("injected transient fetch failure"))
	}
	if _, dropped := m.dropped[id]; dropped {
		return nil, nil, modules.ErrNotFound
	}
	art, exists := m.articles[id]
	if !exists {
		return nil, nil, modules.ErrNotFound
	}
	headers := make(modules.ArticleHeaders, len(art.headers))
	for k, v := range art.headers {
		headers[k] = v
	}
	return headers, append([]byte(nil), art.body...), nil
}

// Capabilities reports the relay limits.
func (m *Memory) Capabilities() modules.RelayCapabilities {
	return m.caps
}

// Drop makes future fetches of the message id return NotFound. The article
// data is retained, matching a provider that lost the article but not the
// history.
func (m *Memory) Drop(id types.MessageID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.dropped[id] = struct{}{}
}

// Restore undoes a Drop.
func (m *Memory) Restore(id types.MessageID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.dropped, id)
}

// FailNextPosts makes the next n posts fail with a retryable error.
func (m *Memory) FailNextPosts(n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failPosts = n
}

// FailNextFetches makes the next n fetches fail with a retryable error.
func (m *Memory) FailNextFetches(n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failFetches = n
}

// ArticleCount reports how many articles the relay holds.
func (m *Memory) ArticleCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.articles)
}

// MessageIDs returns every stored message id. Tests use this to reason
// about the wire surface as an observer would.
func (m *Memory) MessageIDs() []types.MessageID {
	m.mu.Lock()
	defer m.mu.Unlock()
	ids := make([]types.MessageID, 0, len(m.articles))
	for id := range m.articles {
		ids = append(ids, id)
	}
	return ids
}

// Headers returns a copy of the stored headers of one article.
func (m *Memory) Headers(id types.MessageID) (modules.ArticleHeaders, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	art, exists := m.articles[id]
	if !exists {
		return nil, false
	}
	headers := make(modules.ArticleHeaders, len(art.headers))
	for k, v := range art.headers {
		headers[k] = v
	}
	return headers, true
}
