// Package ratelimit funnels calls to a rate-limited downstream service through
// a single FIFO scheduler that bounds both concurrency and start spacing.
//
// One Dispatcher is meant to be shared by every caller in the process; limiting
// per handler or per session cannot bound the aggregate rate.
package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"
)

// ErrPanic wraps the value recovered from a scheduled call that panicked.
var ErrPanic = errors.New("ratelimit: scheduled call panicked")

// Config bounds the downstream call pattern.
type Config struct {
	// MinTime is the minimum gap between two consecutive call starts.
	MinTime time.Duration
	// MaxConcurrent is the maximum number of calls in flight.
	MaxConcurrent int
}

// Validate reports whether the config can construct a Dispatcher.
func (c Config) Validate() error {
	if c.MinTime < 0 {
		return fmt.Errorf("min time must not be negative, got %s", c.MinTime)
	}
	if c.MaxConcurrent < 1 {
		return fmt.Errorf("max concurrent must be at least 1, got %d", c.MaxConcurrent)
	}
	return nil
}

// Stats is a point-in-time view of the dispatcher.
type Stats struct {
	Queued   int
	InFlight int
	Admitted uint64
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithLogger sets the logger used for panics recovered from scheduled calls.
func WithLogger(l *slog.Logger) Option {
	return func(d *Dispatcher) {
		if l != nil {
			d.log = l
		}
	}
}

// WithWaitObserver registers a callback receiving how long each admitted call
// waited in the queue.
func WithWaitObserver(fn func(time.Duration)) Option {
	return func(d *Dispatcher) { d.observeWait = fn }
}

type ticket struct {
	ready    chan struct{}
	enqueued time.Time
}

// Dispatcher admits calls in submission order. Only the head of the queue
// evaluates admission, so a free slot and an elapsed spacing interval are
// never consumed by two callers at once.
type Dispatcher struct {
	cfg     Config
	slots   chan struct{}
	limiter *rate.Limiter
	log     *slog.Logger

	observeWait func(time.Duration)

	mu    sync.Mutex
	queue []*ticket

	inFlight atomic.Int64
	admitted atomic.Uint64
}

// New constructs a Dispatcher. The config is copied and never changes afterwards.
func New(cfg Config, opts ...Option) (*Dispatcher, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	limit := rate.Inf
	if cfg.MinTime > 0 {
		limit = rate.Every(cfg.MinTime)
	}

	d := &Dispatcher{
		cfg:     cfg,
		slots:   make(chan struct{}, cfg.MaxConcurrent),
		limiter: rate.NewLimiter(limit, 1),
		log:     slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d, nil
}

// Config returns the configuration the dispatcher was built with.
func (d *Dispatcher) Config() Config { return d.cfg }

// Stats returns queue depth, in-flight count and the total number of admissions.
func (d *Dispatcher) Stats() Stats {
	d.mu.Lock()
	queued := len(d.queue)
	d.mu.Unlock()
	return Stats{
		Queued:   queued,
		InFlight: int(d.inFlight.Load()),
		Admitted: d.admitted.Load(),
	}
}

// Do schedules fn and returns its error unchanged.
func (d *Dispatcher) Do(ctx context.Context, fn func(context.Context) error) error {
	_, err := Schedule(ctx, d, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, fn(ctx)
	})
	return err
}

// Schedule waits for admission and then runs fn on the calling goroutine. The
// value and error returned by fn pass through untouched. If ctx ends before
// admission, Schedule returns ctx.Err() without running fn. Once admitted, fn
// owns its concurrency slot until it returns, errors or panics.
func Schedule[T any](ctx context.Context, d *Dispatcher, fn func(context.Context) (T, error)) (res T, err error) {
	if err := d.admit(ctx); err != nil {
		return res, err
	}
	defer d.release()
	defer func() {
		if r := recover(); r != nil {
			d.log.ErrorContext(ctx, "dispatch.panic", slog.String("err", fmt.Sprint(r)))
			err = fmt.Errorf("%w: %v", ErrPanic, r)
		}
	}()
	return fn(ctx)
}

func (d *Dispatcher) admit(ctx context.Context) error {
	t := d.enqueue()
	defer d.leave(t)

	select {
	case <-t.ready:
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case d.slots <- struct{}{}:
	case <-ctx.Done():
		return ctx.Err()
	}

	if err := d.limiter.Wait(ctx); err != nil {
		<-d.slots
		return err
	}

	d.inFlight.Add(1)
	d.admitted.Add(1)
	if d.observeWait != nil {
		d.observeWait(time.Since(t.enqueued))
	}
	return nil
}

func (d *Dispatcher) release() {
	d.inFlight.Add(-1)
	<-d.slots
}

func (d *Dispatcher) enqueue() *ticket {
	t := &ticket{ready: make(chan struct{}), enqueued: time.Now()}
	d.mu.Lock()
	d.queue = append(d.queue, t)
	if len(d.queue) == 1 {
		close(t.ready)
	}
	d.mu.Unlock()
	return t
}

// leave removes t from the queue, promoting the next ticket when t was the head.
func (d *Dispatcher) leave(t *ticket) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for i, q := range d.queue {
		if q != t {
			continue
		}
		copy(d.queue[i:], d.queue[i+1:])
		d.queue[len(d.queue)-1] = nil
		d.queue = d.queue[:len(d.queue)-1]
		if i == 0 && len(d.queue) > 0 {
			close(d.queue[0].ready)
		}
		return
	}
}
