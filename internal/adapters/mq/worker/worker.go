// Package worker runs the two halves of the timing pipeline: the detect
// worker turns frames into crossings and the lap worker turns crossings into
// laps and race results.
package worker

import (
	"context"
	"fmt"
	"sync"

	"github.com/okian/laptimer/internal/domain/model"
	"github.com/okian/laptimer/pkg/logger"
)

// Worker is a long-running pipeline stage.
type Worker interface {
	// Run processes input until ctx is canceled, the input ends or Shutdown is called.
	Run(ctx context.Context)

	// Shutdown stops the worker and waits for Run to return.
	Shutdown(ctx context.Context) error
}

// Queue is how the lap worker receives crossings.
type Queue interface {
	Dequeue(ctx context.Context) <-chan model.Crossing
}

// Enqueuer is how the detect worker hands off crossings.
type Enqueuer interface {
	Enqueue(ctx context.Context, c model.Crossing) bool
}

// base carries the shutdown handshake and logging shared by workers.
type base struct {
	name   string
	logger logger.Logger

	once     sync.Once
	shutdown chan struct{}
	done     chan struct{}
}

func (b *base) setup(name string, opts []Option) {
	b.name = name
	b.shutdown = make(chan struct{})
	b.done = make(chan struct{})
	for _, opt := range opts {
		opt(b)
	}
	if b.logger == nil {
		b.logger = logger.Get().Named(b.name)
	}
}

// runContext returns a context that also ends when Shutdown is called.
func (b *base) runContext(ctx context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(ctx)
	go func() {
		select {
		case <-b.shutdown:
			cancel()
		case <-ctx.Done():
		}
	}()
	return ctx, cancel
}

// Shutdown signals the worker to stop and waits for Run to return.
func (b *base) Shutdown(ctx context.Context) error {
	b.once.Do(func() { close(b.shutdown) })

	select {
	case <-b.done:
		return nil
	case <-ctx.Done():
		b.logger.Warn(ctx, "shutdown timed out")
		return fmt.Errorf("shutdown timed out: %w", ctx.Err())
	}
}

// Done is closed when Run has returned.
func (b *base) Done() <-chan struct{} { return b.done }
