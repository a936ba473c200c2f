// Package writeback runs remote persistence jobs in the background so the
// caller never waits on them. Failed jobs are retried, then logged and
// dropped.
package writeback

import (
	"context"
	"errors"
	"hash/fnv"
	"log/slog"
	"sync"
	"time"
)

// ErrClosed is logged for jobs submitted after Close.
var ErrClosed = errors.New("writeback queue closed")

// Options tunes a Queue. Zero fields get defaults.
type Options struct {
	Workers  int           // default 4, minimum 2
	Attempts int           // per job, default 3
	Backoff  time.Duration // multiplied by the attempt number, default 500ms
	Buffer   int           // per worker, default 64
	Timeout  time.Duration // per attempt, default 10s
}

type job struct {
	key  string
	name string
	fn   func(ctx context.Context) error
}

// Queue shards jobs over workers by key: jobs with the same key run one
// after another in submission order, different keys run concurrently.
type Queue struct {
	logger *slog.Logger
	opts   Options

	ctx    context.Context
	cancel context.CancelFunc
	shards []chan job
	wg     sync.WaitGroup

	mu     sync.RWMutex
	closed bool
}

// New starts the queue's workers.
func New(logger *slog.Logger, opts Options) *Queue {
	opts.Workers = max(2, defaultIfZero(opts.Workers, 4))
	opts.Attempts = defaultIfZero(opts.Attempts, 3)
	opts.Buffer = defaultIfZero(opts.Buffer, 64)
	if opts.Backoff <= 0 {
		opts.Backoff = 500 * time.Millisecond
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}

	ctx, cancel := context.WithCancel(context.Background())
	q := &Queue{
		logger: logger,
		opts:   opts,
		ctx:    ctx,
		cancel: cancel,
		shards: make([]chan job, opts.Workers),
	}
	for i := range q.shards {
		q.shards[i] = make(chan job, opts.Buffer)
		q.wg.Add(1)
		go q.work(q.shards[i])
	}
	return q
}

func defaultIfZero(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}

// Go enqueues fn. It blocks only while the key's shard buffer is full.
func (q *Queue) Go(key, name string, fn func(ctx context.Context) error) {
	q.mu.RLock()
	defer q.mu.RUnlock()
	if q.closed {
		q.logger.Error("Dropping write", "job", name, "key", key, "error", ErrClosed)
		return
	}
	q.shards[q.shardFor(key)] <- job{key: key, name: name, fn: fn}
}

func (q *Queue) shardFor(key string) int {
	h := fnv.New32a()
	h.Write([]byte(key))
	return int(h.Sum32() % uint32(len(q.shards)))
}

func (q *Queue) work(jobs <-chan job) {
	defer q.wg.Done()
	for j := range jobs {
		q.run(j)
	}
}

func (q *Queue) run(j job) {
	var err error
	for attempt := 1; attempt <= q.opts.Attempts; attempt++ {
		ctx, cancel := context.WithTimeout(q.ctx, q.opts.Timeout)
		err = j.fn(ctx)
		cancel()
		if err == nil {
			return
		}
		if attempt == q.opts.Attempts {
			break
		}
		q.logger.Warn("Write failed, retrying", "job", j.name, "key", j.key, "attempt", attempt, "error", err)
		select {
		case <-time.After(time.Duration(attempt) * q.opts.Backoff):
		case <-q.ctx.Done():
			q.logger.Error("Write abandoned on shutdown", "job", j.name, "key", j.key, "error", err)
			return
		}
	}
	q.logger.Error("Write failed", "job", j.name, "key", j.key, "attempts", q.opts.Attempts, "error", err)
}

// Close stops accepting jobs and waits for queued ones to finish. When ctx
// ends first, in-flight retries are abandoned and ctx.Err() is returned.
func (q *Queue) Close(ctx context.Context) error {
	q.mu.Lock()
	if !q.closed {
		q.closed = true
		for _, ch := range q.shards {
			close(ch)
		}
	}
	q.mu.Unlock()

	done := make(chan struct{})
	go func() {
		q.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		q.cancel()
		return nil
	case <-ctx.Done():
		q.cancel()
		<-done
		return ctx.Err()
	}
}
