package preview

import (
	"context"
	"errors"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joseph-ayodele/docflow/internal/common"
	"github.com/joseph-ayodele/docflow/internal/entity"
	"github.com/joseph-ayodele/docflow/internal/events"
	"github.com/joseph-ayodele/docflow/internal/state"
)

type fetchCall struct {
	key  string
	page int
}

// fakeFetcher serves "<key>:<page>" as image bytes. Keys listed in gates
// block until their gate is closed; ignoreCancel makes a blocked fetch
// return data even after its context was cancelled.
type fakeFetcher struct {
	mu           sync.Mutex
	calls        []fetchCall
	gates        map[string]chan struct{}
	errs         map[string]error
	ignoreCancel bool
}

func (f *fakeFetcher) PreviewImage(ctx context.Context, key string, page int) ([]byte, string, error) {
	f.mu.Lock()
	f.calls = append(f.calls, fetchCall{key, page})
	gate := f.gates[key]
	err := f.errs[key]
	f.mu.Unlock()

	if gate != nil {
		if f.ignoreCancel {
			<-gate
		} else {
			select {
			case <-gate:
			case <-ctx.Done():
				return nil, "", ctx.Err()
			}
		}
	}
	if err != nil {
		return nil, "", err
	}
	return []byte(key + ":" + string(rune('0'+page))), "image/png", nil
}

func (f *fakeFetcher) PreviewDocumentURL(key string) string {
	return "http://localhost/api/preview/" + key + "/pdf"
}

func (f *fakeFetcher) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func newWorkspace() *state.Workspace {
	ws := state.NewWorkspace(nil)
	ws.Table.Replace(entity.Snapshot{
		{FileKey: "A", PageCount: 1},
		{FileKey: "B", PageCount: 1},
		{FileKey: "C", PageCount: 3},
	})
	return ws
}

func newController(t *testing.T, f *fakeFetcher, ws *state.Workspace) (*Controller, *events.Recorder, string) {
	t.Helper()
	dir := t.TempDir()
	rec := &events.Recorder{}
	c := NewController(f, ws, nil, WithDir(dir), WithPublisher(rec))
	t.Cleanup(c.Close)
	return c, rec, dir
}

func files(t *testing.T, dir string) []string {
	t.Helper()
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	var names []string
	for _, e := range entries {
		names = append(names, e.Name())
	}
	return names
}

func TestSelect_SupersededFetchNeverShown(t *testing.T) {
	for _, ignoreCancel := range []bool{false, true} {
		f := &fakeFetcher{gates: map[string]chan struct{}{"A": make(chan struct{})}, ignoreCancel: ignoreCancel}
		c, rec, dir := newController(t, f, newWorkspace())

		c.Select(entity.Selection{FileKey: "A", Page: 1}, false)
		c.Select(entity.Selection{FileKey: "B", Page: 1}, false)
		close(f.gates["A"])
		c.Wait()

		ready := events.Of[events.PreviewReady](rec)
		require.Len(t, ready, 1, "ignoreCancel=%v", ignoreCancel)
		assert.Equal(t, "B", ready[0].View.Selection.FileKey)
		assert.Empty(t, events.Of[events.PreviewFailed](rec))

		data, err := os.ReadFile(ready[0].View.Path)
		require.NoError(t, err)
		assert.Equal(t, "B:1", string(data))
		assert.Len(t, files(t, dir), 1)
	}
}

func TestSelect_RedundantIsNoop(t *testing.T) {
	f := &fakeFetcher{}
	c, _, _ := newController(t, f, newWorkspace())

	c.Select(entity.Selection{FileKey: "A", Page: 1}, false)
	c.Wait()
	c.Select(entity.Selection{FileKey: "A", Page: 1}, false)
	c.Wait()
	assert.Equal(t, 1, f.callCount())

	c.Select(entity.Selection{FileKey: "A", Page: 1}, true)
	c.Wait()
	assert.Equal(t, 2, f.callCount())
}

func TestSelect_ReleasesPreviousResource(t *testing.T) {
	f := &fakeFetcher{}
	c, rec, dir := newController(t, f, newWorkspace())

	for _, key := range []string{"A", "B", "A", "B"} {
		c.Select(entity.Selection{FileKey: key, Page: 1}, false)
		c.Wait()
		assert.Len(t, files(t, dir), 1)
	}
	ready := events.Of[events.PreviewReady](rec)
	require.Len(t, ready, 4)
	_, err := os.Stat(ready[0].View.Path)
	assert.True(t, os.IsNotExist(err))

	c.Clear()
	assert.Empty(t, files(t, dir))
	_, ok := c.Current()
	assert.False(t, ok)
}

func TestNavigation_ClampsAtBoundaries(t *testing.T) {
	f := &fakeFetcher{}
	ws := newWorkspace()
	c, _, _ := newController(t, f, ws)

	c.Select(entity.Selection{FileKey: "C", Page: 1}, false)
	c.Wait()
	assert.False(t, c.Prev())

	assert.True(t, c.Next())
	c.Wait()
	assert.True(t, c.Next())
	c.Wait()
	assert.False(t, c.Next())
	assert.Equal(t, 3, ws.Selection().Page)

	c.Select(entity.Selection{FileKey: "C", Page: 9}, false)
	assert.Equal(t, 3, ws.Selection().Page)
	c.Wait()

	f.mu.Lock()
	defer f.mu.Unlock()
	pages := make([]int, 0, len(f.calls))
	for _, call := range f.calls {
		pages = append(pages, call.page)
	}
	assert.Equal(t, []int{1, 2, 3}, pages)
}

func TestSelect_DocumentFallback(t *testing.T) {
	f := &fakeFetcher{}
	ws := newWorkspace()
	msg := "renderer missing"
	ws.SetPreviewCapability(entity.PreviewCapability{Available: false, Error: &msg})
	c, rec, dir := newController(t, f, ws)

	c.Select(entity.Selection{FileKey: "B", Page: 1}, false)
	c.Wait()

	assert.Equal(t, 0, f.callCount())
	ready := events.Of[events.PreviewReady](rec)
	require.Len(t, ready, 1)
	assert.Equal(t, events.PreviewDocument, ready[0].View.Mode)
	assert.Equal(t, "http://localhost/api/preview/B/pdf", ready[0].View.URL)
	assert.Empty(t, files(t, dir))
}

func TestSelect_FetchErrorSurfaces(t *testing.T) {
	f := &fakeFetcher{errs: map[string]error{"A": &common.APIError{Op: "preview_image", StatusCode: 404}}}
	c, rec, _ := newController(t, f, newWorkspace())

	c.Select(entity.Selection{FileKey: "A", Page: 1}, false)
	c.Wait()

	failed := events.Of[events.PreviewFailed](rec)
	require.Len(t, failed, 1)
	assert.Equal(t, common.GenericRequestMessage, common.UserMessage(failed[0].Err))

	// a failed fetch can be retried by selecting again
	f.mu.Lock()
	f.errs = nil
	f.mu.Unlock()
	c.Select(entity.Selection{FileKey: "A", Page: 1}, false)
	c.Wait()
	assert.Len(t, events.Of[events.PreviewReady](rec), 1)
}

func TestSelect_FailureReplacesPreviousPreview(t *testing.T) {
	f := &fakeFetcher{errs: map[string]error{"B": &common.APIError{Op: "preview_image", StatusCode: 500}}}
	c, rec, dir := newController(t, f, newWorkspace())

	c.Select(entity.Selection{FileKey: "A", Page: 1}, false)
	c.Wait()
	_, ok := c.Current()
	require.True(t, ok)

	c.Select(entity.Selection{FileKey: "B", Page: 1}, false)
	c.Wait()

	_, ok = c.Current()
	assert.False(t, ok, "A's image must not stay up after B failed")
	assert.Empty(t, files(t, dir))

	failed := events.Of[events.PreviewFailed](rec)
	require.Len(t, failed, 1)
	assert.Equal(t, "B", failed[0].Selection.FileKey)
	assert.Equal(t, "B", c.ws.Selection().FileKey)

	// reselecting A is a fresh fetch, not a no-op against the released view
	c.Select(entity.Selection{FileKey: "A", Page: 1}, false)
	c.Wait()
	assert.Len(t, events.Of[events.PreviewReady](rec), 2)
	_, ok = c.Current()
	assert.True(t, ok)
}

func TestSelect_UnknownRow(t *testing.T) {
	c, rec, _ := newController(t, &fakeFetcher{}, newWorkspace())
	c.Select(entity.Selection{FileKey: "nope", Page: 1}, false)
	failed := events.Of[events.PreviewFailed](rec)
	require.Len(t, failed, 1)
	assert.True(t, errors.Is(failed[0].Err, common.ErrNotFound))
}

func TestClear_CancelsInFlight(t *testing.T) {
	f := &fakeFetcher{gates: map[string]chan struct{}{"A": make(chan struct{})}}
	c, rec, _ := newController(t, f, newWorkspace())

	c.Select(entity.Selection{FileKey: "A", Page: 1}, false)
	c.Clear()

	done := make(chan struct{})
	go func() { c.Wait(); close(done) }()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("fetch was not cancelled")
	}
	assert.Empty(t, events.Of[events.PreviewReady](rec))
}
