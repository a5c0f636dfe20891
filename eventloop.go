package pulsecalc

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
)

// Dispatcher runs funcs in a single consumer context, one at a time and in
// the order they were posted. Post must never block the caller.
type Dispatcher interface {
	Post(fn func())
}

// EventLoop is the default [Dispatcher]: an unbounded FIFO queue drained by
// the goroutine that calls [EventLoop.Run]. Every posted func runs exactly
// once as long as the loop keeps running.
type EventLoop struct {
	logger  *slog.Logger
	running atomic.Bool

	mu     sync.Mutex
	queue  []func()
	notify chan struct{}
}

// NewEventLoop creates an idle [EventLoop]. A nil logger falls back to
// slog.Default().
func NewEventLoop(logger *slog.Logger) *EventLoop {
	if logger == nil {
		logger = slog.Default()
	}
	return &EventLoop{
		logger: logger,
		notify: make(chan struct{}, 1),
	}
}

// Post enqueues fn. It never blocks and never drops; funcs posted before Run
// starts are kept until it does.
func (l *EventLoop) Post(fn func()) {
	if fn == nil {
		return
	}
	l.mu.Lock()
	l.queue = append(l.queue, fn)
	l.mu.Unlock()

	select {
	case l.notify <- struct{}{}:
	default:
	}
}

// Run drains the queue on the calling goroutine until ctx is done. Funcs
// still queued at that point stay queued for a later Run.
//
// Returns an error if the loop is already running.
func (l *EventLoop) Run(ctx context.Context) error {
	if !l.running.CompareAndSwap(false, true) {
		return errors.New("event loop already running")
	}
	defer l.running.Store(false)

	for {
		for {
			if ctx.Err() != nil {
				return nil
			}
			fn, ok := l.pop()
			if !ok {
				break
			}
			l.invokeSafe(fn)
		}

		select {
		case <-ctx.Done():
			return nil
		case <-l.notify:
		}
	}
}

// Pending returns the number of queued funcs.
func (l *EventLoop) Pending() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.queue)
}

func (l *EventLoop) pop() (func(), bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.queue) == 0 {
		return nil, false
	}
	fn := l.queue[0]
	l.queue[0] = nil
	l.queue = l.queue[1:]
	return fn, true
}

// invokeSafe runs fn with panic recovery so one faulty listener cannot stop
// the loop.
func (l *EventLoop) invokeSafe(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			l.logger.Error("event loop func panicked",
				"correlation_id", uuid.NewString(),
				"panic", fmt.Sprintf("%v", r),
				"stack", string(debug.Stack()),
			)
		}
	}()
	fn()
}
