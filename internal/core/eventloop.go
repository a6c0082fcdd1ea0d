package core

import (
	"context"
	"errors"
	"log/slog"
)

// ErrLoopStopped is returned by Do when the loop exits before running fn.
var ErrLoopStopped = errors.New("event loop stopped")

// EventLoop runs posted closures one at a time on a single goroutine. Each
// closure runs to completion before the next one starts, so state touched
// only from inside the loop needs no locking.
type EventLoop struct {
	queue chan func()
	done  chan struct{}
}

func NewEventLoop(capacity int) *EventLoop {
	if capacity < 1 {
		capacity = 1
	}
	return &EventLoop{
		queue: make(chan func(), capacity),
		done:  make(chan struct{}),
	}
}

// Run drains the queue until ctx is done. It must be called exactly once.
func (l *EventLoop) Run(ctx context.Context) error {
	defer close(l.done)
	slog.Debug("EventLoop: started")
	for {
		select {
		case <-ctx.Done():
			slog.Debug("EventLoop: stopped", "reason", ctx.Err())
			return nil
		case fn := <-l.queue:
			fn()
		}
	}
}

// Post enqueues fn without waiting for it. It returns false when the loop has
// already stopped.
func (l *EventLoop) Post(fn func()) bool {
	select {
	case <-l.done:
		return false
	default:
	}
	select {
	case l.queue <- fn:
		return true
	case <-l.done:
		return false
	}
}

// Do runs fn on the loop and waits for its error.
func (l *EventLoop) Do(ctx context.Context, fn func() error) error {
	fnErr, err := Submit(ctx, l, fn)
	if err != nil {
		return err
	}
	return fnErr
}

// Submit runs fn on the loop and waits for its result. When ctx is done first
// fn may still run later; its result is discarded.
func Submit[T any](ctx context.Context, l *EventLoop, fn func() T) (T, error) {
	var zero T
	result := make(chan T, 1)
	if !l.Post(func() { result <- fn() }) {
		return zero, ErrLoopStopped
	}
	select {
	case r := <-result:
		return r, nil
	case <-ctx.Done():
		return zero, ctx.Err()
	case <-l.done:
		// fn may have run just before the loop stopped
		select {
		case r := <-result:
			return r, nil
		default:
			return zero, ErrLoopStopped
		}
	}
}

// Done is closed once Run has returned.
func (l *EventLoop) Done() <-chan struct{} {
	return l.done
}
