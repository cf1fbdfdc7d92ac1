// Package txqueue runs a contract's transactions one at a time on a dedicated
// goroutine, so contract state is never touched concurrently.
package txqueue

import (
	"context"
	"errors"
	"time"
)

var (
	ErrBusy    = errors.New("transaction queue is busy")
	ErrTimeout = errors.New("transaction took too long")
	ErrClosed  = errors.New("transaction queue is closed")
)

// DefaultTimeout bounds both waiting for the queue and waiting for the reply.
const DefaultTimeout = 2 * time.Second

// Observer is told about every finished transaction.
type Observer interface {
	ObserveTransaction(contract, function string, err error, elapsed time.Duration)
}

// job envelopes the work the queue goroutine must perform.
type job struct {
	function string
	ctx      context.Context
	run      func(context.Context) error
	reply    chan error
}

// Queue orchestrates the serialized execution of one contract's calls.
type Queue struct {
	contract string
	timeout  time.Duration
	observer Observer
	jobs     chan job
	quit     chan struct{}
	done     chan struct{}
}

// Option customizes a Queue.
type Option func(*Queue)

// WithTimeout replaces DefaultTimeout.
func WithTimeout(d time.Duration) Option {
	return func(q *Queue) {
		if d > 0 {
			q.timeout = d
		}
	}
}

// WithObserver reports every transaction outcome to o.
func WithObserver(o Observer) Option {
	return func(q *Queue) { q.observer = o }
}

// New launches the coordinating goroutine immediately so callers never block on scheduling.
func New(contract string, opts ...Option) *Queue {
	q := &Queue{
		contract: contract,
		timeout:  DefaultTimeout,
		jobs:     make(chan job),
		quit:     make(chan struct{}),
		done:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(q)
	}
	go q.loop()
	return q
}

// Contract names the contract this queue serves.
func (q *Queue) Contract() string { return q.contract }

// loop runs jobs sequentially so no mutexes are needed around contract state.
func (q *Queue) loop() {
	defer close(q.done)
	for {
		select {
		case j := <-q.jobs:
			start := time.Now()
			// Once started a transaction runs to completion; a caller giving up must not
			// leave half of its writes behind.
			err := j.run(context.WithoutCancel(j.ctx))
			if q.observer != nil {
				q.observer.ObserveTransaction(q.contract, j.function, err, time.Since(start))
			}
			j.reply <- err
		case <-q.quit:
			return
		}
	}
}

// Do submits fn and waits for the queue goroutine to run it.
func (q *Queue) Do(ctx context.Context, function string, fn func(context.Context) error) error {
	reply := make(chan error, 1)
	j := job{function: function, ctx: ctx, run: fn, reply: reply}

	timer := time.NewTimer(q.timeout)
	defer timer.Stop()

	select {
	case q.jobs <- j:
	case <-q.quit:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return ErrBusy
	}

	timer.Reset(q.timeout)
	select {
	case err := <-reply:
		return err
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return ErrTimeout
	}
}

// Call is Do for functions producing a value.
func Call[T any](ctx context.Context, q *Queue, function string, fn func(context.Context) (T, error)) (T, error) {
	var out T
	err := q.Do(ctx, function, func(ctx context.Context) error {
		v, err := fn(ctx)
		if err != nil {
			return err
		}
		out = v
		return nil
	})
	if err != nil {
		var zero T
		return zero, err
	}
	return out, nil
}

// Close stops the goroutine after the running job, if any, finishes.
func (q *Queue) Close() {
	select {
	case <-q.quit:
	default:
		close(q.quit)
	}
	<-q.done
}
