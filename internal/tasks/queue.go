package tasks

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

var ErrClosed = errors.New("task queue closed")

// Func is one unit of work. A non-nil error schedules a retry.
type Func func(ctx context.Context) error

// Enqueuer accepts named tasks.
type Enqueuer interface {
	Enqueue(ctx context.Context, name string, fn Func) error
}

// Config controls worker count, buffering and retry.
type Config struct {
	Workers     int
	BufferSize  int
	MaxAttempts int
	Backoff     time.Duration
	// Timeout bounds a single attempt.
	Timeout time.Duration
}

func DefaultConfig() Config {
	return Config{
		Workers:     4,
		BufferSize:  256,
		MaxAttempts: 5,
		Backoff:     200 * time.Millisecond,
		Timeout:     30 * time.Second,
	}
}

type job struct {
	name string
	fn   Func
}

// Queue is an in-process worker pool.
type Queue struct {
	cfg  Config
	log  *zap.Logger
	ch   chan job
	done chan struct{}
	g    errgroup.Group

	closed    atomic.Bool
	closeOnce sync.Once
	failed    atomic.Uint64
	completed atomic.Uint64
}

// NewQueue starts cfg.Workers workers.
func NewQueue(cfg Config, log *zap.Logger) *Queue {
	def := DefaultConfig()
	if cfg.Workers <= 0 {
		cfg.Workers = def.Workers
	}
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = def.BufferSize
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = def.MaxAttempts
	}
	if cfg.Backoff <= 0 {
		cfg.Backoff = def.Backoff
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = def.Timeout
	}
	if log == nil {
		log = zap.NewNop()
	}

	q := &Queue{
		cfg:  cfg,
		log:  log,
		ch:   make(chan job, cfg.BufferSize),
		done: make(chan struct{}),
	}
	for i := 0; i < cfg.Workers; i++ {
		q.g.Go(q.work)
	}
	return q
}

// Enqueue blocks until the task is buffered, ctx ends, or the queue closes.
func (q *Queue) Enqueue(ctx context.Context, name string, fn Func) error {
	if q.closed.Load() {
		return ErrClosed
	}
	select {
	case q.ch <- job{name: name, fn: fn}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-q.done:
		return ErrClosed
	}
}

func (q *Queue) work() error {
	for {
		select {
		case j := <-q.ch:
			q.run(j)
		case <-q.done:
			for {
				select {
				case j := <-q.ch:
					q.run(j)
				default:
					return nil
				}
			}
		}
	}
}

func (q *Queue) run(j job) {
	backoff := q.cfg.Backoff
	for attempt := 1; ; attempt++ {
		err := q.attempt(j)
		if err == nil {
			q.completed.Add(1)
			return
		}
		if attempt >= q.cfg.MaxAttempts {
			q.failed.Add(1)
			q.log.Error("task failed",
				zap.String("task", j.name),
				zap.Int("attempts", attempt),
				zap.Error(err),
			)
			return
		}
		q.log.Warn("task attempt failed, retrying",
			zap.String("task", j.name),
			zap.Int("attempt", attempt),
			zap.Duration("backoff", backoff),
			zap.Error(err),
		)
		time.Sleep(backoff)
		backoff *= 2
	}
}

func (q *Queue) attempt(j job) (err error) {
	ctx, cancel := context.WithTimeout(context.Background(), q.cfg.Timeout)
	defer cancel()
	defer func() {
		if r := recover(); r != nil {
			err = errors.New("task panicked")
			q.log.Error("task panic", zap.String("task", j.name), zap.Any("panic", r))
		}
	}()
	return j.fn(ctx)
}

// Close stops accepting tasks, drains the buffer and waits for workers.
func (q *Queue) Close() error {
	q.closeOnce.Do(func() {
		q.closed.Store(true)
		close(q.done)
	})
	return q.g.Wait()
}

// Stats reports completed and permanently failed task counts.
func (q *Queue) Stats() (completed, failed uint64) {
	return q.completed.Load(), q.failed.Load()
}

// Inline runs tasks synchronously in the caller, retrying like a Queue with
// zero backoff. Tests use it to observe side effects deterministically.
type Inline struct {
	MaxAttempts int
	Log         *zap.Logger
}

func (in Inline) Enqueue(ctx context.Context, name string, fn Func) error {
	attempts := in.MaxAttempts
	if attempts <= 0 {
		attempts = 1
	}
	var err error
	for i := 0; i < attempts; i++ {
		if err = fn(ctx); err == nil {
			return nil
		}
	}
	if in.Log != nil {
		in.Log.Error("task failed", zap.String("task", name), zap.Error(err))
	}
	return nil
}
