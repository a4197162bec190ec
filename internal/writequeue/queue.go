// Package writequeue runs deferred record mutations one at a time per record
// identifier. Tasks for different keys run concurrently; tasks for the same key
// run in enqueue order with at most one in flight.
package writequeue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"

	"github.com/flashdeck/flashdeck/internal/logger"
)

// ErrClosed is returned by Enqueue after Close.
var ErrClosed = errors.New("write queue is closed")

// Task is one deferred mutation. Its error is logged, never returned to the
// code that enqueued it.
type Task func(ctx context.Context) error

// lane holds the pending tasks of one key. done closes when the lane drains.
type lane struct {
	tasks []Task
	done  chan struct{}
}

// Queue is a set of per-key task lanes.
type Queue struct {
	logger *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc

	mu     sync.Mutex
	lanes  map[string]*lane
	closed bool

	running sync.WaitGroup
}

// New creates an empty queue. A nil logger discards.
func New(l *slog.Logger) *Queue {
	ctx, cancel := context.WithCancel(context.Background())
	return &Queue{
		logger: logger.OrDiscard(l),
		ctx:    ctx,
		cancel: cancel,
		lanes:  make(map[string]*lane),
	}
}

// Enqueue schedules task to run after every task already queued for key.
func (q *Queue) Enqueue(key string, task Task) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return ErrClosed
	}

	if l, ok := q.lanes[key]; ok {
		l.tasks = append(l.tasks, task)
		return nil
	}

	l := &lane{tasks: []Task{task}, done: make(chan struct{})}
	q.lanes[key] = l
	q.running.Add(1)
	go q.drain(key, l)
	return nil
}

func (q *Queue) drain(key string, l *lane) {
	defer q.running.Done()

	for {
		q.mu.Lock()
		if len(l.tasks) == 0 {
			delete(q.lanes, key)
			close(l.done)
			q.mu.Unlock()
			return
		}
		task := l.tasks[0]
		l.tasks[0] = nil
		l.tasks = l.tasks[1:]
		q.mu.Unlock()

		q.run(key, task)
	}
}

func (q *Queue) run(key string, task Task) {
	defer func() {
		if r := recover(); r != nil {
			q.logger.Error("write task panicked",
				"key", key,
				"panic", fmt.Sprint(r),
				"stack", string(debug.Stack()))
		}
	}()

	if err := task(q.ctx); err != nil {
		q.logger.Warn("write task failed", "key", key, "error", err)
	}
}

// Pending returns the number of keys with queued or running tasks.
func (q *Queue) Pending() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.lanes)
}

// SettleKey waits until every task queued for key so far has finished, or ctx ends.
func (q *Queue) SettleKey(ctx context.Context, key string) error {
	q.mu.Lock()
	l, ok := q.lanes[key]
	q.mu.Unlock()
	if !ok {
		return nil
	}

	select {
	case <-l.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Settle waits until the queue is empty, including tasks enqueued by running
// tasks, or ctx ends.
func (q *Queue) Settle(ctx context.Context) error {
	for {
		q.mu.Lock()
		waits := make([]chan struct{}, 0, len(q.lanes))
		for _, l := range q.lanes {
			waits = append(waits, l.done)
		}
		q.mu.Unlock()

		if len(waits) == 0 {
			return nil
		}

		for _, done := range waits {
			select {
			case <-done:
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}
}

// Close stops accepting tasks and waits for queued tasks to finish.
func (q *Queue) Close() error {
	q.mu.Lock()
	q.closed = true
	q.mu.Unlock()

	q.running.Wait()
	q.cancel()
	return nil
}
