package realtime

import (
	"context"
	"errors"
	"sync"

	"github.com/AgusMolinaCode/bitlab/internal/logger"
)

// Recomputer runs compute once per Trigger. A new trigger cancels the run
// in flight, and a run that was superseded never reaches deliver, even if
// compute ignored its context and finished anyway.
type Recomputer[T any] struct {
	compute func(ctx context.Context) (T, error)
	deliver func(T)
	onError func(error)

	mu        sync.Mutex
	deliverMu sync.Mutex
	gen       uint64
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	discarded int
}

// NewRecomputer builds a Recomputer. onError may be nil; errors of runs
// that were superseded are never reported.
func NewRecomputer[T any](compute func(ctx context.Context) (T, error), deliver func(T), onError func(error)) *Recomputer[T] {
	return &Recomputer[T]{compute: compute, deliver: deliver, onError: onError}
}

// Trigger starts a run derived from parent.
func (r *Recomputer[T]) Trigger(parent context.Context) {
	r.mu.Lock()
	if r.cancel != nil {
		r.cancel()
	}
	r.gen++
	gen := r.gen
	ctx, cancel := context.WithCancel(parent)
	r.cancel = cancel
	r.wg.Add(1)
	r.mu.Unlock()

	go func() {
		defer r.wg.Done()
		defer cancel()

		result, err := r.compute(ctx)

		r.deliverMu.Lock()
		defer r.deliverMu.Unlock()
		if !r.current(gen) || ctx.Err() != nil {
			r.mu.Lock()
			r.discarded++
			r.mu.Unlock()
			logger.FromContext(ctx).Debug("discarded superseded recomputation", "generation", gen)
			return
		}
		if err != nil {
			if r.onError != nil && !errors.Is(err, context.Canceled) {
				r.onError(err)
			}
			return
		}
		r.deliver(result)
	}()
}

func (r *Recomputer[T]) current(gen uint64) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.gen == gen
}

// Stop cancels the run in flight and waits for every run to return.
func (r *Recomputer[T]) Stop() {
	r.mu.Lock()
	r.gen++
	if r.cancel != nil {
		r.cancel()
	}
	r.mu.Unlock()
	r.wg.Wait()
}

// Wait blocks until every started run has returned.
func (r *Recomputer[T]) Wait() { r.wg.Wait() }

// Discarded reports how many results were dropped as stale.
func (r *Recomputer[T]) Discarded() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.discarded
}
