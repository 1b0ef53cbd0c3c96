package queue

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"

	"embedbot/internal/metrics"
)

var (
	ErrQueueFull = errors.New("pipeline queue is full")
	ErrStopped   = errors.New("spawner stopped")
)

// Spawner starts pipelines independently of the update loop.
type Spawner interface {
	// Go schedules fn. The context passed to fn is cancelled only when a
	// Shutdown deadline expires.
	Go(id string, fn func(ctx context.Context)) error
	Active() int
	Shutdown(ctx context.Context) error
}

// base carries what both spawners share: the cancel-on-deadline context,
// panic recovery and active accounting.
type base struct {
	ctx     context.Context
	cancel  context.CancelFunc
	active  atomic.Int64
	metrics *metrics.Registry
	logger  zerolog.Logger
}

func newBase(reg *metrics.Registry, logger zerolog.Logger) base {
	ctx, cancel := context.WithCancel(context.Background())
	return base{ctx: ctx, cancel: cancel, metrics: reg, logger: logger}
}

// run executes fn; the caller has already counted it as active.
func (b *base) run(id string, fn func(ctx context.Context)) {
	defer b.active.Add(-1)
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error().Str("token", id).Str("panic", fmt.Sprint(r)).Msg("pipeline panicked")
		}
	}()
	fn(b.ctx)
}

func (b *base) Active() int { return int(b.active.Load()) }

// wait blocks until done closes or ctx expires, cancelling running work on
// expiry.
func (b *base) wait(ctx context.Context, done <-chan struct{}) error {
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

// Unbounded starts one goroutine per request with no cap.
type Unbounded struct {
	base
	mu      sync.Mutex
	stopped bool
	wg      sync.WaitGroup
}

func NewUnbounded(reg *metrics.Registry, logger zerolog.Logger) *Unbounded {
	return &Unbounded{base: newBase(reg, logger)}
}

func (u *Unbounded) Go(id string, fn func(ctx context.Context)) error {
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.stopped {
		return ErrStopped
	}
	u.wg.Add(1)
	u.active.Add(1)
	go func() {
		defer u.wg.Done()
		u.run(id, fn)
	}()
	return nil
}

func (u *Unbounded) Shutdown(ctx context.Context) error {
	u.mu.Lock()
	u.stopped = true
	u.mu.Unlock()

	done := make(chan struct{})
	go func() {
		u.wg.Wait()
		close(done)
	}()
	return u.wait(ctx, done)
}

// Pool runs pipelines on a fixed set of workers fed by a FIFO queue.
type Pool struct {
	base
	queue *Queue
	pool  *WorkerPool
}

func NewPool(workers, capacity int, reg *metrics.Registry, logger zerolog.Logger) *Pool {
	p := &Pool{base: newBase(reg, logger), queue: NewQueue(capacity)}
	p.pool = NewWorkerPool(workers, p.queue, func(j Job) {
		if p.metrics != nil {
			p.metrics.QueuedJobs.Add(-1)
		}
		j.Run()
	})
	if reg != nil {
		reg.Workers.Store(int64(workers))
		reg.QueueCapacity.Store(int64(capacity))
	}
	p.pool.Start()
	return p
}

func (p *Pool) Go(id string, fn func(ctx context.Context)) error {
	job := Job{ID: id, Run: func() {
		p.active.Add(1)
		p.run(id, fn)
	}}
	if !p.queue.Enqueue(job) {
		p.queue.mu.Lock()
		closed := p.queue.closed
		p.queue.mu.Unlock()
		if closed {
			return ErrStopped
		}
		return ErrQueueFull
	}
	if p.metrics != nil {
		p.metrics.QueuedJobs.Add(1)
	}
	return nil
}

// Position reports where id waits in the queue, 0 once it is running.
func (p *Pool) Position(id string) int { return p.queue.Position(id) }

func (p *Pool) Shutdown(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		p.pool.Stop()
		close(done)
	}()
	return p.wait(ctx, done)
}
