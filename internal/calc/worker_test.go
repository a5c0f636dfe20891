package calc

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// testLogger returns a logger that discards all output for clean test output.
func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// syncBuffer is a goroutine-safe log sink.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

type fakeChannel struct {
	onConnection func(bool)
	onValue      func(any)
	connects     atomic.Int32
	disconnects  atomic.Int32
}

func (c *fakeChannel) Connect() error { c.connects.Add(1); return nil }
func (c *fakeChannel) Disconnect()    { c.disconnects.Add(1) }

// fakeSources hands out fakeChannels keyed by address.
type fakeSources struct {
	mu       sync.Mutex
	channels map[string]*fakeChannel
	fail     string
}

func newFakeSources() *fakeSources {
	return &fakeSources{channels: make(map[string]*fakeChannel)}
}

func (f *fakeSources) open(address string, onConnection func(bool), onValue func(any)) (Channel, error) {
	if address == f.fail {
		return nil, errors.New("unsupported address")
	}
	ch := &fakeChannel{onConnection: onConnection, onValue: onValue}
	f.mu.Lock()
	f.channels[address] = ch
	f.mu.Unlock()
	return ch, nil
}

func (f *fakeSources) get(address string) *fakeChannel {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.channels[address]
}

func sumConfig(update []string) Config {
	return Config{
		Name:       "sum",
		Expression: "a + b",
		Subscriptions: []Subscription{
			{Name: "a", Address: "A"},
			{Name: "b", Address: "B"},
		},
		Update: update,
	}
}

func startWorker(t *testing.T, cfg Config, logger *slog.Logger) (*Worker, *fakeSources) {
	t.Helper()
	src := newFakeSources()
	w, err := New(cfg, src.open, logger)
	require.NoError(t, err)
	w.Start(context.Background())
	t.Cleanup(w.Stop)
	return w, src
}

func next(t *testing.T, w *Worker) Update {
	t.Helper()
	select {
	case u, ok := <-w.Updates():
		require.True(t, ok, "updates channel closed")
		return u
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for update")
		return Update{}
	}
}

func expectNone(t *testing.T, w *Worker) {
	t.Helper()
	select {
	case u := <-w.Updates():
		t.Fatalf("unexpected update %+v", u)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestWorker_RecomputesOnEveryUpdate(t *testing.T) {
	w, src := startWorker(t, sumConfig(nil), testLogger())
	a, b := src.get("A"), src.get("B")

	assert.EqualValues(t, 1, a.connects.Load())
	assert.EqualValues(t, 1, b.connects.Load())

	a.onConnection(true)
	assert.Equal(t, Update{Connected: false}, next(t, w))

	a.onValue(2.0)
	expectNone(t, w)

	b.onConnection(true)
	assert.Equal(t, Update{Connected: true}, next(t, w))

	b.onValue(3.0)
	assert.Equal(t, Update{Connected: true, Value: 5.0, HasValue: true}, next(t, w))

	a.onValue(4.0)
	assert.Equal(t, Update{Connected: true, Value: 7.0, HasValue: true}, next(t, w))
}

func TestWorker_UpdateFilter(t *testing.T) {
	w, src := startWorker(t, sumConfig([]string{"a"}), testLogger())
	a, b := src.get("A"), src.get("B")

	a.onConnection(true)
	next(t, w)
	b.onConnection(true)
	next(t, w)

	b.onValue(3.0)
	expectNone(t, w)

	a.onValue(2.0)
	assert.Equal(t, 5.0, next(t, w).Value)

	// b is not in the filter: its new value is recorded but does not trigger
	b.onValue(10.0)
	expectNone(t, w)

	a.onValue(1.0)
	assert.Equal(t, 11.0, next(t, w).Value)
}

func TestWorker_ValueIgnoredUntilAllConnected(t *testing.T) {
	w, src := startWorker(t, sumConfig(nil), testLogger())
	a, b := src.get("A"), src.get("B")

	a.onConnection(true)
	next(t, w)
	a.onValue(1.0)
	b.onValue(2.0)
	expectNone(t, w)

	b.onConnection(true)
	assert.Equal(t, Update{Connected: true}, next(t, w))

	// the stored values are used once a trigger arrives
	a.onValue(5.0)
	assert.Equal(t, 7.0, next(t, w).Value)
}

func TestWorker_NoRecomputeWhileValueUnset(t *testing.T) {
	events := []string{"connA", "connB", "valA", "valB"}

	for _, order := range permutations(events) {
		t.Run(strings.Join(order, ","), func(t *testing.T) {
			w, src := startWorker(t, sumConfig(nil), testLogger())
			a, b := src.get("A"), src.get("B")

			apply := map[string]func(){
				"connA": func() { a.onConnection(true) },
				"connB": func() { b.onConnection(true) },
				"valA":  func() { a.onValue(2.0) },
				"valB":  func() { b.onValue(3.0) },
			}

			for i, ev := range order {
				apply[ev]()
				last := i == len(order)-1
				if last {
					break
				}
				drainNoValue(t, w)
			}

			// connection events never trigger a recompute, so a value only
			// follows when the last event was a value
			if strings.HasPrefix(order[len(order)-1], "val") {
				for {
					u := next(t, w)
					if u.HasValue {
						assert.Equal(t, 5.0, u.Value)
						break
					}
				}
			} else {
				drainNoValue(t, w)
			}
		})
	}
}

func drainNoValue(t *testing.T, w *Worker) {
	t.Helper()
	deadline := time.After(20 * time.Millisecond)
	for {
		select {
		case u := <-w.Updates():
			require.False(t, u.HasValue, "recompute ran before every input had a value")
		case <-deadline:
			return
		}
	}
}

func permutations(items []string) [][]string {
	if len(items) <= 1 {
		return [][]string{append([]string(nil), items...)}
	}
	var out [][]string
	for i := range items {
		rest := make([]string, 0, len(items)-1)
		rest = append(rest, items[:i]...)
		rest = append(rest, items[i+1:]...)
		for _, p := range permutations(rest) {
			out = append(out, append([]string{items[i]}, p...))
		}
	}
	return out
}

func TestWorker_ConnectionChangesAlwaysNotify(t *testing.T) {
	w, src := startWorker(t, sumConfig(nil), testLogger())
	a, b := src.get("A"), src.get("B")

	a.onConnection(true)
	b.onConnection(true)
	a.onConnection(false)
	a.onConnection(true)

	assert.False(t, next(t, w).Connected)
	assert.True(t, next(t, w).Connected)
	assert.False(t, next(t, w).Connected)
	assert.True(t, next(t, w).Connected)
}

func TestWorker_EvaluationFailureKeepsLastValue(t *testing.T) {
	logs := &syncBuffer{}
	logger := slog.New(slog.NewTextHandler(logs, nil))

	cfg := Config{
		Name:          "ratio",
		Expression:    "10 / a",
		Subscriptions: []Subscription{{Name: "a", Address: "A"}},
	}
	w, src := startWorker(t, cfg, logger)
	a := src.get("A")

	a.onConnection(true)
	next(t, w)
	a.onValue(2.0)
	assert.Equal(t, 5.0, next(t, w).Value)

	a.onValue(0.0)
	expectNone(t, w)
	require.Eventually(t, func() bool {
		return strings.Contains(logs.String(), "error while evaluating calculation") &&
			w.State() == StateIdle
	}, time.Second, 10*time.Millisecond)

	// the connection notification still carries the last good value
	a.onConnection(true)
	assert.Equal(t, Update{Connected: true, Value: 5.0, HasValue: true}, next(t, w))
}

func TestWorker_DivisionByZeroEmitsNothing(t *testing.T) {
	logs := &syncBuffer{}
	logger := slog.New(slog.NewTextHandler(logs, nil))

	cfg := Config{
		Name:          "broken",
		Expression:    "1/0",
		Subscriptions: []Subscription{{Name: "a", Address: "A"}},
	}
	w, src := startWorker(t, cfg, logger)
	a := src.get("A")

	a.onConnection(true)
	next(t, w)
	a.onValue(1.0)

	expectNone(t, w)
	require.Eventually(t, func() bool {
		return strings.Contains(logs.String(), "error while evaluating calculation") &&
			w.State() == StateIdle
	}, time.Second, 10*time.Millisecond)
}

func TestWorker_TriggersCoalesce(t *testing.T) {
	src := newFakeSources()
	w, err := New(sumConfig(nil), src.open, testLogger())
	require.NoError(t, err)
	defer w.Stop()

	for i := 0; i < 5; i++ {
		w.trigger()
	}
	assert.Len(t, w.wake, 1, "pending triggers must collapse into one wake")
}

func TestWorker_EmptySubscriptionsNeverConnected(t *testing.T) {
	w, err := New(Config{Name: "const", Expression: "1 + 1"}, newFakeSources().open, testLogger())
	require.NoError(t, err)
	defer w.Stop()

	w.mu.Lock()
	defer w.mu.Unlock()
	assert.False(t, w.connectedLocked())
}

func TestWorker_Stop(t *testing.T) {
	w, src := startWorker(t, sumConfig(nil), testLogger())
	a, b := src.get("A"), src.get("B")

	w.Stop()

	assert.Equal(t, StateStopped, w.State())
	assert.EqualValues(t, 1, a.disconnects.Load())
	assert.EqualValues(t, 1, b.disconnects.Load())

	_, ok := <-w.Updates()
	assert.False(t, ok, "Updates must be closed after Stop")

	// callbacks after Stop are ignored and must not panic
	a.onConnection(true)
	a.onValue(1.0)

	// idempotent
	w.Stop()
	assert.EqualValues(t, 1, a.disconnects.Load())
}

func TestWorker_StopWaitsForEvaluation(t *testing.T) {
	cfg := Config{
		Name:          "slow",
		Expression:    "a() * 2",
		Subscriptions: []Subscription{{Name: "a", Address: "A"}},
	}
	w, src := startWorker(t, cfg, testLogger())
	a := src.get("A")

	started := make(chan struct{})
	release := make(chan struct{})
	slow := func() float64 {
		close(started)
		<-release
		return 21
	}

	a.onConnection(true)
	next(t, w)
	a.onValue(slow)

	select {
	case <-started:
	case <-time.After(2 * time.Second):
		t.Fatal("evaluation never started")
	}
	assert.Equal(t, StateEvaluating, w.State())

	stopped := make(chan struct{})
	go func() {
		w.Stop()
		close(stopped)
	}()

	select {
	case <-stopped:
		t.Fatal("Stop() returned while an evaluation was running")
	case <-time.After(100 * time.Millisecond):
	}

	close(release)
	select {
	case <-stopped:
	case <-time.After(2 * time.Second):
		t.Fatal("Stop() did not return after the evaluation finished")
	}
	assert.Equal(t, StateStopped, w.State())

	// the finished evaluation is still delivered before Updates closes
	u, ok := <-w.Updates()
	require.True(t, ok)
	assert.Equal(t, 42.0, u.Value)
	_, ok = <-w.Updates()
	assert.False(t, ok)
}

func TestWorker_StopBeforeStart(t *testing.T) {
	src := newFakeSources()
	w, err := New(sumConfig(nil), src.open, testLogger())
	require.NoError(t, err)

	w.Stop()
	w.Start(context.Background())

	assert.Equal(t, StateStopped, w.State())
	assert.EqualValues(t, 0, src.get("A").connects.Load())
}

func TestWorker_StopWithFullBuffer(t *testing.T) {
	w, src := startWorker(t, sumConfig(nil), testLogger())
	a := src.get("A")

	// nobody reads Updates: the callback blocks once the buffer is full
	// and must be released by Stop
	go func() {
		for i := 0; i < updateBuffer*2; i++ {
			a.onConnection(i%2 == 0)
		}
	}()
	time.Sleep(50 * time.Millisecond)

	done := make(chan struct{})
	go func() {
		w.Stop()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Stop() blocked on a full update buffer")
	}
}

func TestNew_Errors(t *testing.T) {
	_, err := New(Config{Name: "x"}, newFakeSources().open, testLogger())
	assert.Error(t, err)

	src := newFakeSources()
	src.fail = "B"
	_, err = New(sumConfig(nil), src.open, testLogger())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "b=B")
	assert.EqualValues(t, 1, src.get("A").disconnects.Load(), "inputs opened before the failure are released")
}

func TestState_String(t *testing.T) {
	assert.Equal(t, "idle", StateIdle.String())
	assert.Equal(t, "evaluating", StateEvaluating.String())
	assert.Equal(t, "stopped", StateStopped.String())
	assert.Equal(t, "state(9)", State(9).String())
}
