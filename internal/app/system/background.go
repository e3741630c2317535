package system

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/seanotes/seanotes/internal/logging"
)

// DefaultTaskTimeout bounds a single background task.
const DefaultTaskTimeout = 2 * time.Minute

// Background runs fire-and-forget tasks (title generation, embedding sync)
// and waits for them on shutdown.
type Background struct {
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	mu      sync.Mutex
	stopped bool
	timeout time.Duration
	log     *logging.Logger
}

// NewBackground creates a task runner. Tasks may be submitted before Start.
func NewBackground(log *logging.Logger) *Background {
	if log == nil {
		log = logging.NewDefault("background")
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Background{ctx: ctx, cancel: cancel, timeout: DefaultTaskTimeout, log: log}
}

// Go runs fn in a goroutine with a bounded context. Panics are logged. Tasks
// submitted once Stop has begun are dropped.
func (b *Background) Go(name string, fn func(ctx context.Context) error) {
	b.mu.Lock()
	if b.stopped || b.ctx.Err() != nil {
		b.mu.Unlock()
		b.log.WithField("task", name).Warn("background runner stopped, task dropped")
		return
	}
	b.wg.Add(1)
	b.mu.Unlock()
	go func() {
		defer b.wg.Done()
		defer func() {
			if r := recover(); r != nil {
				b.log.WithField("task", name).WithField("panic", fmt.Sprint(r)).Error("background task panicked")
			}
		}()
		ctx, cancel := context.WithTimeout(b.ctx, b.timeout)
		defer cancel()
		if err := fn(ctx); err != nil {
			b.log.WithField("task", name).WithError(err).Warn("background task failed")
		}
	}()
}

// Wait blocks until every submitted task has finished.
func (b *Background) Wait() {
	b.wg.Wait()
}

// Name implements Service.
func (b *Background) Name() string { return "background" }

// Start implements Service.
func (b *Background) Start(context.Context) error { return nil }

// Stop waits for running tasks until ctx expires, then cancels them.
func (b *Background) Stop(ctx context.Context) error {
	b.mu.Lock()
	b.stopped = true
	b.mu.Unlock()

	done := make(chan struct{})
	go func() {
		b.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		b.cancel()
		return nil
	case <-ctx.Done():
		b.cancel()
		<-done
		return ctx.Err()
	}
}
