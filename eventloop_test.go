package pulsecalc

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func runLoop(t *testing.T, loop *EventLoop) context.CancelFunc {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = loop.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return cancel
}

func TestEventLoop_RunsInPostOrder(t *testing.T) {
	loop := NewEventLoop(testLogger())
	runLoop(t, loop)

	var (
		mu  sync.Mutex
		got []int
	)
	for i := 0; i < 100; i++ {
		loop.Post(func() {
			mu.Lock()
			got = append(got, i)
			mu.Unlock()
		})
	}

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(got) == 100
	}, time.Second, 5*time.Millisecond)

	for i, v := range got {
		assert.Equal(t, i, v)
	}
}

func TestEventLoop_KeepsFuncsPostedBeforeRun(t *testing.T) {
	loop := NewEventLoop(testLogger())

	ran := make(chan struct{})
	loop.Post(func() { close(ran) })
	assert.Equal(t, 1, loop.Pending())

	runLoop(t, loop)

	select {
	case <-ran:
	case <-time.After(time.Second):
		t.Fatal("func posted before Run never ran")
	}
	assert.Equal(t, 0, loop.Pending())
}

func TestEventLoop_PostNeverBlocks(t *testing.T) {
	loop := NewEventLoop(testLogger())

	done := make(chan struct{})
	go func() {
		for i := 0; i < 10000; i++ {
			loop.Post(func() {})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Post blocked without a running loop")
	}
	assert.Equal(t, 10000, loop.Pending())
}

func TestEventLoop_IgnoresNil(t *testing.T) {
	loop := NewEventLoop(nil)
	loop.Post(nil)
	assert.Equal(t, 0, loop.Pending())
}

func TestEventLoop_RecoversPanics(t *testing.T) {
	loop := NewEventLoop(testLogger())
	runLoop(t, loop)

	after := make(chan struct{})
	loop.Post(func() { panic("listener bug") })
	loop.Post(func() { close(after) })

	select {
	case <-after:
	case <-time.After(time.Second):
		t.Fatal("loop stopped after a panicking func")
	}
}

func TestEventLoop_RunTwice(t *testing.T) {
	loop := NewEventLoop(testLogger())
	runLoop(t, loop)

	require.Eventually(t, loop.running.Load, time.Second, time.Millisecond)
	err := loop.Run(context.Background())
	assert.Error(t, err)
}

func TestEventLoop_StopsOnCancel(t *testing.T) {
	loop := NewEventLoop(testLogger())
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- loop.Run(ctx) }()
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
}
