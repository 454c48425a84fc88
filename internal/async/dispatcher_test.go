package async

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDispatcher_RunsInOrder(t *testing.T) {
	d := NewDispatcher(nil, WithQueueSize(4))

	var mu sync.Mutex
	var got []int
	for i := 0; i < 20; i++ {
		i := i
		require.True(t, d.Submit(func() {
			mu.Lock()
			got = append(got, i)
			mu.Unlock()
		}))
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	d.Shutdown(ctx)

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, got, 20)
	for i, v := range got {
		assert.Equal(t, i, v)
	}
}

func TestDispatcher_SubmitAfterShutdown(t *testing.T) {
	d := NewDispatcher(nil)
	d.Shutdown(context.Background())
	assert.False(t, d.Submit(func() {}))
	// second shutdown is a no-op
	d.Shutdown(context.Background())
}

func TestDispatcher_PanicDoesNotStopWorker(t *testing.T) {
	d := NewDispatcher(nil)
	done := make(chan struct{})
	d.Submit(func() { panic("boom") })
	d.Submit(func() { close(done) })

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("worker stopped after panic")
	}
	d.Shutdown(context.Background())
}

func TestDispatcher_TaskMaySubmitPastQueueSize(t *testing.T) {
	d := NewDispatcher(nil, WithQueueSize(1))
	done := make(chan struct{})

	var mu sync.Mutex
	var got []int
	record := func(i int) func() {
		return func() {
			mu.Lock()
			got = append(got, i)
			mu.Unlock()
		}
	}
	require.True(t, d.Submit(func() {
		// runs on the worker: these must queue, not wait for it
		for i := 1; i <= 5; i++ {
			d.Submit(record(i))
		}
		d.Submit(func() { close(done) })
	}))

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("worker deadlocked submitting to itself")
	}
	mu.Lock()
	assert.Equal(t, []int{1, 2, 3, 4, 5}, got)
	mu.Unlock()
	d.Shutdown(context.Background())
}

func TestDispatcher_ShutdownWithBlockedWorker(t *testing.T) {
	d := NewDispatcher(nil, WithQueueSize(1))
	release := make(chan struct{})
	d.Submit(func() { <-release })

	submitted := make(chan bool)
	go func() {
		// the worker is busy and the backlog is past its size
		d.Submit(func() {})
		submitted <- d.Submit(func() {})
	}()
	select {
	case ok := <-submitted:
		assert.True(t, ok)
	case <-time.After(2 * time.Second):
		t.Fatal("Submit blocked on a busy worker")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	finished := make(chan struct{})
	go func() { defer close(finished); d.Shutdown(ctx) }()
	select {
	case <-finished:
	case <-time.After(2 * time.Second):
		t.Fatal("Shutdown did not honour its context")
	}
	assert.False(t, d.Submit(func() {}))
	close(release)
}
