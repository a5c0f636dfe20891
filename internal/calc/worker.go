package calc

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/jpalmerr/pulsecalc/internal/eval"
	"github.com/jpalmerr/pulsecalc/internal/metrics"
)

// updateBuffer is the capacity of the Updates channel. Senders block when it
// is full rather than drop notifications.
const updateBuffer = 64

// Worker evaluates one calculation on a dedicated goroutine.
//
// The value and connection maps are private to the worker. Input callbacks
// and the recompute step are serialized by mu, which is never held while the
// expression runs.
//
// All lifecycle methods (Start, Stop) are safe for concurrent use.
type Worker struct {
	name      string
	subs      []Subscription
	filter    map[string]struct{}
	evaluator *eval.Evaluator
	channels  []Channel
	logger    *slog.Logger

	mu          sync.Mutex
	values      map[string]any
	connections map[string]bool
	value       any
	hasValue    bool
	started     bool
	stopped     bool

	state    atomic.Int32
	wake     chan struct{}
	updates  chan Update
	ctx      context.Context
	cancel   context.CancelFunc
	done     chan struct{}
	stopOnce sync.Once
}

// New creates a [Worker] for cfg and opens one input channel per
// subscription. Inputs are not connected until [Worker.Start].
//
// Returns an error if cfg has no expression or if any input cannot be
// opened; inputs opened before the failure are released.
func New(cfg Config, open Opener, logger *slog.Logger) (*Worker, error) {
	if cfg.Expression == "" {
		return nil, errors.New("calc: expression is required")
	}
	if open == nil {
		return nil, errors.New("calc: opener is required")
	}
	if logger == nil {
		logger = slog.Default()
	}

	ctx, cancel := context.WithCancel(context.Background())
	w := &Worker{
		name:        cfg.Name,
		subs:        append([]Subscription(nil), cfg.Subscriptions...),
		evaluator:   eval.New(cfg.Expression),
		logger:      logger.With("calc", cfg.Name),
		values:      make(map[string]any, len(cfg.Subscriptions)),
		connections: make(map[string]bool, len(cfg.Subscriptions)),
		wake:        make(chan struct{}, 1),
		updates:     make(chan Update, updateBuffer),
		ctx:         ctx,
		cancel:      cancel,
		done:        make(chan struct{}),
	}

	if cfg.Update != nil {
		w.filter = make(map[string]struct{}, len(cfg.Update))
		for _, n := range cfg.Update {
			w.filter[n] = struct{}{}
		}
	}

	for _, sub := range w.subs {
		name := sub.Name
		ch, err := open(sub.Address,
			func(connected bool) { w.onConnection(name, connected) },
			func(value any) { w.onValue(name, value) },
		)
		if err != nil {
			for _, opened := range w.channels {
				opened.Disconnect()
			}
			cancel()
			return nil, fmt.Errorf("calc %s: open %s=%s: %w", cfg.Name, name, sub.Address, err)
		}
		w.channels = append(w.channels, ch)
	}

	return w, nil
}

// Name returns the calculation name.
func (w *Worker) Name() string {
	return w.name
}

// State returns the current lifecycle state.
func (w *Worker) State() State {
	return State(w.state.Load())
}

// Updates returns the ordered stream of notifications for the adapter.
//
// The channel is closed by [Worker.Stop]. Consumers should read until it is
// closed.
func (w *Worker) Updates() <-chan Update {
	return w.updates
}

// Start connects every input and launches the worker goroutine.
//
// Cancelling ctx has the same effect as calling [Worker.Stop] except that
// the inputs are released only when Stop is called. Start is idempotent and
// a no-op after Stop.
func (w *Worker) Start(ctx context.Context) {
	w.mu.Lock()
	if w.started || w.stopped {
		w.mu.Unlock()
		return
	}
	w.started = true
	w.mu.Unlock()

	if ctx != nil {
		context.AfterFunc(ctx, w.cancel)
	}

	metrics.ActiveWorkers.Inc()
	go w.run()

	for i, ch := range w.channels {
		if w.ctx.Err() != nil {
			return
		}
		if err := ch.Connect(); err != nil {
			w.logger.Warn("input connect failed",
				"input", w.subs[i].Name,
				"address", w.subs[i].Address,
				"error", err,
			)
		}
	}
}

// Stop requests termination and waits for it to complete.
//
// An evaluation already in progress finishes first. After Stop returns, no
// further callbacks are processed, every input is disconnected and the
// Updates channel is closed. Stop is idempotent and safe to call before
// Start.
func (w *Worker) Stop() {
	w.stopOnce.Do(func() {
		w.cancel()

		w.mu.Lock()
		started := w.started
		w.stopped = true
		w.mu.Unlock()

		if started {
			<-w.done
			metrics.ActiveWorkers.Dec()
		}
		w.state.Store(int32(StateStopped))

		for _, ch := range w.channels {
			ch.Disconnect()
		}
		close(w.updates)
		w.logger.Debug("calculation stopped")
	})
}

// run waits on the wake slot and recomputes once per wake.
func (w *Worker) run() {
	defer close(w.done)

	for {
		select {
		case <-w.ctx.Done():
			return
		case <-w.wake:
			// interruption is only observed here, between evaluations
			if w.ctx.Err() != nil {
				return
			}
			w.recompute()
		}
	}
}

// onValue records a new input value and requests a recompute when the value
// qualifies as a trigger.
func (w *Worker) onValue(name string, value any) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.stopped {
		return
	}
	w.values[name] = value

	if !w.connectedLocked() {
		w.logger.Debug("not all inputs are connected, skipping execution", "input", name)
		return
	}
	if w.filter != nil {
		if _, ok := w.filter[name]; !ok {
			return
		}
	}
	w.trigger()
}

// onConnection records an input connection change and always notifies the
// adapter with the aggregate state and the last computed value.
func (w *Worker) onConnection(name string, connected bool) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.stopped {
		return
	}
	w.connections[name] = connected
	w.emitLocked(Update{
		Connected: w.connectedLocked(),
		Value:     w.value,
		HasValue:  w.hasValue,
	})
}

// trigger sets the wake slot. A pending wake absorbs further triggers.
func (w *Worker) trigger() {
	select {
	case w.wake <- struct{}{}:
	default:
	}
}

// connectedLocked reports the aggregate connection state. A calculation with
// no inputs, or with inputs that have not reported yet, is not connected.
func (w *Worker) connectedLocked() bool {
	if len(w.subs) == 0 {
		return false
	}
	for _, sub := range w.subs {
		if !w.connections[sub.Name] {
			return false
		}
	}
	return true
}

// emitLocked hands u to the adapter. While there is buffer room the update
// is always delivered, even when Stop is pending, so the result of an
// evaluation that was running when Stop was called is emitted. Once the
// buffer is full it waits for the adapter and gives up only when the worker
// is stopping.
func (w *Worker) emitLocked(u Update) {
	select {
	case w.updates <- u:
		return
	default:
	}
	select {
	case w.updates <- u:
	case <-w.ctx.Done():
	}
}

// recompute evaluates the expression over a snapshot of the input values.
func (w *Worker) recompute() {
	w.mu.Lock()
	snapshot := make(map[string]any, len(w.subs))
	for _, sub := range w.subs {
		v, ok := w.values[sub.Name]
		if !ok || v == nil {
			w.mu.Unlock()
			w.logger.Debug("skipping execution as not all values are set", "missing", sub.Name)
			metrics.Evaluations.WithLabelValues(w.name, metrics.ResultSkipped).Inc()
			return
		}
		snapshot[sub.Name] = v
	}
	w.mu.Unlock()

	w.state.CompareAndSwap(int32(StateIdle), int32(StateEvaluating))
	defer w.state.CompareAndSwap(int32(StateEvaluating), int32(StateIdle))

	start := time.Now()
	result, err := w.safeEvaluate(snapshot)
	metrics.EvaluationDuration.WithLabelValues(w.name).Observe(time.Since(start).Seconds())

	if err != nil {
		metrics.Evaluations.WithLabelValues(w.name, metrics.ResultError).Inc()
		w.logger.Error("error while evaluating calculation",
			"expression", w.evaluator.Expression(),
			"error", err,
		)
		return
	}
	metrics.Evaluations.WithLabelValues(w.name, metrics.ResultOK).Inc()

	w.mu.Lock()
	defer w.mu.Unlock()
	w.value = result
	w.hasValue = true
	w.emitLocked(Update{
		Connected: w.connectedLocked(),
		Value:     result,
		HasValue:  true,
	})
}

// safeEvaluate runs the evaluator with panic recovery.
// A panic is logged with a correlation ID and reported as an evaluation error.
func (w *Worker) safeEvaluate(values map[string]any) (result any, err error) {
	defer func() {
		if r := recover(); r != nil {
			correlationID := uuid.NewString()
			w.logger.Error("evaluation panic",
				"correlation_id", correlationID,
				"panic", fmt.Sprintf("%v", r),
				"stack", string(debug.Stack()),
			)
			result = nil
			err = fmt.Errorf("%w: panic (correlation_id: %s)", eval.ErrEvaluation, correlationID)
		}
	}()
	return w.evaluator.Evaluate(values)
}
