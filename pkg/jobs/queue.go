package jobs

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

// ErrQueueFull is returned by TryEnqueue when the buffer has no room.
var ErrQueueFull = errors.New("queue full")

// Task wraps a payload with retry bookkeeping.
type Task[T any] struct {
	Key      string
	Payload  T
	Attempt  int
	Enqueued time.Time
}

// Handler processes a single task.
type Handler[T any] func(context.Context, T) error

// Config tunes the worker pool.
type Config struct {
	Workers    int
	BufferSize int
	MaxRetries int
	RetryDelay time.Duration
	Logger     *zap.Logger
}

// Queue fans tasks out to a fixed pool of goroutines. A key runs on at most
// one worker at a time: tasks sharing a key with one still waiting are
// coalesced, and a key enqueued while its task runs is run once more after.
type Queue[T any] struct {
	name    string
	handler Handler[T]
	cfg     Config
	logger  *zap.Logger

	tasks   chan Task[T]
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	mu      sync.Mutex
	queued  map[string]struct{}
	running map[string]struct{}
	dirty   map[string]T
	started bool
}

// New builds a stopped queue; call Start before enqueueing.
func New[T any](name string, handler Handler[T], cfg Config) *Queue[T] {
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = cfg.Workers * 8
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = 500 * time.Millisecond
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Queue[T]{
		name:    name,
		handler: handler,
		cfg:     cfg,
		logger:  logger.With(zap.String("queue", name)),
		tasks:   make(chan Task[T], cfg.BufferSize),
		queued:  make(map[string]struct{}),
		running: make(map[string]struct{}),
		dirty:   make(map[string]T),
	}
}

// Start launches the workers. Subsequent calls are no-ops.
func (q *Queue[T]) Start(ctx context.Context) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.started {
		return
	}
	q.ctx, q.cancel = context.WithCancel(ctx)
	for i := 0; i < q.cfg.Workers; i++ {
		q.wg.Add(1)
		go q.worker()
	}
	q.started = true
	q.logger.Info("queue started", zap.Int("workers", q.cfg.Workers))
}

// Stop cancels in-flight work and waits for workers to exit.
func (q *Queue[T]) Stop() {
	q.mu.Lock()
	if !q.started {
		q.mu.Unlock()
		return
	}
	q.cancel()
	q.started = false
	q.mu.Unlock()
	q.wg.Wait()
	q.logger.Info("queue stopped")
}

// TryEnqueue schedules payload without blocking. A key still waiting is
// dropped silently; a key currently running is marked to rerun with the
// latest payload once the running task returns. An empty key is never
// coalesced.
func (q *Queue[T]) TryEnqueue(key string, payload T) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if !q.started {
		return fmt.Errorf("queue %s not started", q.name)
	}
	if key != "" {
		if _, ok := q.queued[key]; ok {
			return nil
		}
		if _, ok := q.running[key]; ok {
			q.dirty[key] = payload
			return nil
		}
	}
	task := Task[T]{Key: key, Payload: payload, Enqueued: time.Now().UTC()}
	select {
	case q.tasks <- task:
		if key != "" {
			q.queued[key] = struct{}{}
		}
		return nil
	default:
		return ErrQueueFull
	}
}

// Pending reports how many keys are waiting or running.
func (q *Queue[T]) Pending() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.queued) + len(q.running)
}

func (q *Queue[T]) worker() {
	defer q.wg.Done()
	for {
		select {
		case <-q.ctx.Done():
			return
		case task := <-q.tasks:
			q.process(task)
		}
	}
}

// process runs task and then any rerun requested for its key while it ran.
func (q *Queue[T]) process(task Task[T]) {
	if task.Key == "" {
		q.run(task)
		return
	}
	q.mu.Lock()
	delete(q.queued, task.Key)
	q.running[task.Key] = struct{}{}
	q.mu.Unlock()

	for {
		q.run(task)

		q.mu.Lock()
		payload, again := q.dirty[task.Key]
		delete(q.dirty, task.Key)
		if !again || q.ctx.Err() != nil {
			delete(q.running, task.Key)
			q.mu.Unlock()
			return
		}
		q.mu.Unlock()
		task = Task[T]{Key: task.Key, Payload: payload, Enqueued: time.Now().UTC()}
	}
}

func (q *Queue[T]) run(task Task[T]) {
	for {
		err := q.handler(q.ctx, task.Payload)
		if err == nil || q.ctx.Err() != nil {
			break
		}
		task.Attempt++
		if task.Attempt > q.cfg.MaxRetries {
			q.logger.Warn("task dropped after retries", zap.String("key", task.Key), zap.Int("attempts", task.Attempt), zap.Error(err))
			break
		}
		timer := time.NewTimer(q.cfg.RetryDelay)
		select {
		case <-q.ctx.Done():
			timer.Stop()
		case <-timer.C:
		}
	}
}
