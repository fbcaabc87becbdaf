// Package inline runs dispatched summarize requests in background goroutines
// of the current process. It replaces the NATS queue for single-binary setups.
package inline

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"golang.org/x/sync/semaphore"

	"github.com/kirillkom/legal-lens/internal/core/domain"
	"github.com/kirillkom/legal-lens/internal/core/ports"
)

const DefaultConcurrency = 4

type Dispatcher struct {
	base   context.Context
	stop   context.CancelFunc
	slots  *semaphore.Weighted
	logger *slog.Logger

	mu        sync.RWMutex
	processor ports.SummaryProcessor
	closed    bool
	wg        sync.WaitGroup
}

func New(concurrency int, logger *slog.Logger) *Dispatcher {
	if concurrency <= 0 {
		concurrency = DefaultConcurrency
	}
	if logger == nil {
		logger = slog.Default()
	}
	base, stop := context.WithCancel(context.Background())
	return &Dispatcher{
		base:   base,
		stop:   stop,
		slots:  semaphore.NewWeighted(int64(concurrency)),
		logger: logger,
	}
}

// Bind sets the processor. The summarize use case needs a dispatcher for
// reprocessing, so the two are wired in two steps.
func (d *Dispatcher) Bind(processor ports.SummaryProcessor) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.processor = processor
}

func (d *Dispatcher) Dispatch(_ context.Context, documentID string) error {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return domain.WrapError(domain.ErrTemporary, "inline dispatch", errors.New("dispatcher is closed"))
	}
	if d.processor == nil {
		return domain.WrapError(domain.ErrTemporary, "inline dispatch", errors.New("no processor bound"))
	}

	processor := d.processor
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		if err := d.slots.Acquire(d.base, 1); err != nil {
			return
		}
		defer d.slots.Release(1)

		if err := processor.ProcessByID(d.base, documentID); err != nil {
			d.logger.Error("inline_summarize_failed", "document_id", documentID, "error", err)
		}
	}()
	return nil
}

// Close stops accepting work and waits for dispatched requests to finish.
// When ctx expires first, the remaining runs are cancelled.
func (d *Dispatcher) Close(ctx context.Context) {
	d.mu.Lock()
	d.closed = true
	d.mu.Unlock()

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		d.stop()
		<-done
	}
	d.stop()
}
