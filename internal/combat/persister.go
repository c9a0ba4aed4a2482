package combat

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/belulok/quest-chain/internal/metrics"
	"github.com/belulok/quest-chain/internal/persistence"
)

// persister is a single write-behind goroutine. It coalesces to the latest value, so
// writes never reorder and a slow backend never blocks a mutation.
type persister struct {
	backend persistence.Backend
	key     string
	timeout time.Duration

	mu      sync.Mutex
	pending int
	dirty   bool
	closed  bool

	wake chan struct{}
	stop chan struct{}
	done chan struct{}
}

func newPersister(backend persistence.Backend, key string, timeout time.Duration) *persister {
	return &persister{
		backend: backend,
		key:     key,
		timeout: timeout,
		wake:    make(chan struct{}, 1),
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
	}
}

func (p *persister) enqueue(hp int) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.pending = hp
	p.dirty = true
	p.mu.Unlock()

	select {
	case p.wake <- struct{}{}:
	default:
	}
}

func (p *persister) run() {
	defer close(p.done)
	for {
		select {
		case <-p.wake:
			p.flush()
		case <-p.stop:
			p.flush()
			return
		}
	}
}

func (p *persister) flush() {
	p.mu.Lock()
	if !p.dirty {
		p.mu.Unlock()
		return
	}
	hp := p.pending
	p.dirty = false
	p.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), p.timeout)
	defer cancel()

	if err := p.backend.Save(ctx, p.key, hp); err != nil {
		metrics.PersistenceErrorsTotal.WithLabelValues("save").Inc()
		slog.Warn("persistence write failed, in-memory combat state stays authoritative",
			"backend", p.backend.Name(), "key", p.key, "hp", hp, "error", err)
	}
}

func (p *persister) close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	p.mu.Unlock()

	close(p.stop)
	<-p.done
}
