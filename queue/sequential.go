// Package queue provides the serialized task queue the trigger dispatcher submits to.
package queue

import (
	"errors"
	"log/slog"
	"sync"
)

// ErrClosed is returned by Submit after Close.
var ErrClosed = errors.New("queue is closed")

const defaultCapacity = 64

// Sequential runs submitted tasks one at a time, in submission order, on a single goroutine.
// a panicking task is recovered and logged, the worker keeps going.
type Sequential struct {
	tasks  chan func()
	done   chan struct{}
	logger *slog.Logger

	mu     sync.RWMutex
	closed bool
}

// NewSequential starts the worker goroutine. capacity bounds how many tasks may
// wait before Submit blocks, values below 1 use a default.
func NewSequential(capacity int, logger *slog.Logger) *Sequential {
	if capacity < 1 {
		capacity = defaultCapacity
	}
	sequential := &Sequential{
		tasks:  make(chan func(), capacity),
		done:   make(chan struct{}),
		logger: logger,
	}
	go sequential.run()
	return sequential
}

// Submit enqueues a task. it blocks while the queue is full.
func (sequential *Sequential) Submit(task func()) error {
	sequential.mu.RLock()
	defer sequential.mu.RUnlock()

	if sequential.closed {
		return ErrClosed
	}
	sequential.tasks <- task
	return nil
}

// Close stops accepting tasks and waits until the queued ones have run.
func (sequential *Sequential) Close() {
	sequential.mu.Lock()
	if sequential.closed {
		sequential.mu.Unlock()
		<-sequential.done
		return
	}
	sequential.closed = true
	close(sequential.tasks)
	sequential.mu.Unlock()

	<-sequential.done
}

func (sequential *Sequential) run() {
	defer close(sequential.done)
	for task := range sequential.tasks {
		sequential.runTask(task)
	}
}

func (sequential *Sequential) runTask(task func()) {
	defer func() {
		if recovered := recover(); recovered != nil {
			sequential.logger.Error("queued task panicked", "panic", recovered)
		}
	}()
	task()
}
