// Package relay provides the helpers shared by every relay consumer: a fair
// bounded pool gating concurrent operations, and an in-memory relay used by
// tests and by the daemon's development mode.
package relay

import (
	"context"

	"github.com/contemptx/usenetsync-sub004/modules"
	"github.com/contemptx/usenetsync-sub004/types"
)

// A Pool is a fair bounded semaphore over a relay's connection budget. The
// uploader, downloader, and indexer all acquire from the same pool, so no
// producer can starve the others of relay capacity. Pool itself implements
// modules.Relay.
type Pool struct {
	slots chan struct{}
	relay modules.Relay
}

// NewPool wraps a relay with a pool sized from its capabilities.
func NewPool(r modules.Relay) *Pool {
	size := r.Capabilities().MaxConnections
	if size < 1 {
		size = 1
	}
	return &Pool{
		slots: make(chan struct{}, size),
		relay: r,
	}
}

// acquire claims a slot, honoring the context.
func (p *Pool) acquire(ctx context.Context) error {
	select {
	case p.slots <- struct{}{}:
		return nil
	case <-ctx.Done():
		return modules.Retryable(modules.ErrCancelled)
	}
}

// release returns a slot.
func (p *Pool) release() {
	<-p.slots
}

// Post forwards a post through the pool.
func (p *Pool) Post(ctx context.Context, headers modules.ArticleHeaders, body []byte) (types.MessageID, error) {
	if err := p.acquire(ctx); err != nil {
		return "", err
	}
	defer p.release()
	return p.relay.Post(ctx, headers, body)
}

// Fetch forwards a fetch through the pool.
func (p *Pool) Fetch(ctx context.Context, id types.MessageID) (modules.ArticleHeaders, []byte, error) {
	if err := p.acquire(ctx); err != nil {
		return nil, nil, err
	}
	defer p.release()
	return p.relay.Fetch(ctx, id)
}

// Capabilities reports the wrapped relay's capabilities.
func (p *Pool) Capabilities() modules.RelayCapabilities {
	return p.relay.Capabilities()
}
