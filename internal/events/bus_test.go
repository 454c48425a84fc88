package events

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joseph-ayodele/docflow/internal/async"
)

func TestBus_InlineDelivery(t *testing.T) {
	bus := NewBus(nil)
	var got []string
	unsubscribe := bus.Subscribe(func(e Event) { got = append(got, e.EventName()) })

	bus.Publish(SaveCompleted{})
	bus.Publish(SaveFailed{Err: errors.New("x")})
	unsubscribe()
	bus.Publish(PreviewCleared{})

	assert.Equal(t, []string{"save.completed", "save.failed"}, got)
}

func TestBus_DispatcherKeepsOrder(t *testing.T) {
	d := async.NewDispatcher(nil)
	bus := NewBus(d)

	var mu sync.Mutex
	var pages []int
	bus.Subscribe(func(e Event) {
		if sp, ok := e.(SnapshotProduced); ok {
			mu.Lock()
			pages = append(pages, sp.PageNumber)
			mu.Unlock()
		}
	})
	for i := 1; i <= 5; i++ {
		bus.Publish(SnapshotProduced{PageNumber: i})
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	d.Shutdown(ctx)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []int{1, 2, 3, 4, 5}, pages)
}

func TestRecorder_Of(t *testing.T) {
	var r Recorder
	r.Publish(FileFailed{FileName: "a.pdf"})
	r.Publish(RunFinished{Files: 2})
	r.Publish(FileFailed{FileName: "b.pdf"})

	failed := Of[FileFailed](&r)
	require.Len(t, failed, 2)
	assert.Equal(t, "b.pdf", failed[1].FileName)
	assert.Equal(t, []string{"file.failed", "run.finished", "file.failed"}, r.Names())
}
