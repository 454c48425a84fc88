// Package preview resolves the selected row and page to a displayable preview.
package preview

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/joseph-ayodele/docflow/internal/common"
	"github.com/joseph-ayodele/docflow/internal/entity"
	"github.com/joseph-ayodele/docflow/internal/events"
	"github.com/joseph-ayodele/docflow/internal/metrics"
	"github.com/joseph-ayodele/docflow/internal/state"
)

// Fetcher loads preview content from the server.
type Fetcher interface {
	PreviewImage(ctx context.Context, fileKey string, page int) ([]byte, string, error)
	PreviewDocumentURL(fileKey string) string
}

// Controller keeps at most one fetch in flight. A newer selection cancels the
// older fetch and a fetch that completes after being superseded is dropped.
// Only one local image resource exists at a time.
type Controller struct {
	fetcher   Fetcher
	ws        *state.Workspace
	dir       string
	publisher events.Publisher
	metrics   metrics.Recorder
	logger    *slog.Logger

	mu        sync.Mutex
	gen       uint64
	cancel    context.CancelFunc
	requested *entity.Selection
	displayed *entity.Selection
	current   *resource
	wg        sync.WaitGroup
}

type Option func(*Controller)

// WithDir sets where image resources are written (default: os.TempDir()).
func WithDir(dir string) Option {
	return func(c *Controller) { c.dir = dir }
}

func WithPublisher(p events.Publisher) Option {
	return func(c *Controller) { c.publisher = p }
}

func WithMetrics(m metrics.Recorder) Option {
	return func(c *Controller) { c.metrics = m }
}

func NewController(f Fetcher, ws *state.Workspace, logger *slog.Logger, opts ...Option) *Controller {
	if logger == nil {
		logger = slog.Default()
	}
	c := &Controller{
		fetcher:   f,
		ws:        ws,
		publisher: events.Nop{},
		metrics:   metrics.Nop{},
		logger:    logger,
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Select shows sel. Reselecting what is already shown or being fetched is a
// no-op unless force is set. Select never blocks on the network.
func (c *Controller) Select(sel entity.Selection, force bool) {
	if sel.IsZero() {
		c.Clear()
		return
	}
	row, ok := c.ws.Table.Row(sel.FileKey)
	if !ok {
		err := common.NewAppError("NOT_FOUND", fmt.Sprintf("row %q not found", sel.FileKey), common.ErrNotFound)
		c.publisher.Publish(events.PreviewFailed{Selection: sel, Err: err})
		return
	}
	sel.Page = clamp(sel.Page, row.Pages())

	c.mu.Lock()
	if !force && (same(c.requested, sel) || (c.requested == nil && same(c.displayed, sel))) {
		c.mu.Unlock()
		c.ws.SetSelection(sel)
		return
	}
	c.supersedeLocked()
	c.gen++
	gen := c.gen
	c.requested = &sel
	c.ws.SetSelection(sel)

	if capability, known := c.ws.PreviewCapability(); known && !capability.Available {
		view := c.showDocumentLocked(sel)
		c.mu.Unlock()
		c.publisher.Publish(events.PreviewReady{View: view})
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	c.cancel = cancel
	c.wg.Add(1)
	c.mu.Unlock()

	go c.fetch(ctx, gen, sel)
}

// Refresh re-fetches the current selection, e.g. after a save.
func (c *Controller) Refresh() {
	sel := c.ws.Selection()
	if sel.IsZero() {
		return
	}
	c.Select(sel, true)
}

// Next moves one page forward. It is a no-op on the last page.
func (c *Controller) Next() bool { return c.step(1) }

// Prev moves one page back. It is a no-op on the first page.
func (c *Controller) Prev() bool { return c.step(-1) }

func (c *Controller) step(delta int) bool {
	sel := c.ws.Selection()
	if sel.IsZero() {
		return false
	}
	row, ok := c.ws.Table.Row(sel.FileKey)
	if !ok {
		return false
	}
	cur := clamp(sel.Page, row.Pages())
	next := clamp(cur+delta, row.Pages())
	if next == cur {
		return false
	}
	c.Select(entity.Selection{FileKey: sel.FileKey, Page: next}, false)
	return true
}

// Clear cancels any fetch and releases the current resource.
func (c *Controller) Clear() {
	c.mu.Lock()
	c.supersedeLocked()
	c.gen++
	c.requested = nil
	c.displayed = nil
	c.releaseLocked()
	c.mu.Unlock()
	c.publisher.Publish(events.PreviewCleared{})
}

// Wait blocks until no fetch goroutine is running.
func (c *Controller) Wait() {
	c.wg.Wait()
}

// Close clears the preview and waits for outstanding fetches to exit.
func (c *Controller) Close() {
	c.Clear()
	c.Wait()
}

// Current returns the path of the live image resource, if any.
func (c *Controller) Current() (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.current == nil {
		return "", false
	}
	return c.current.path, true
}

func (c *Controller) fetch(ctx context.Context, gen uint64, sel entity.Selection) {
	defer c.wg.Done()
	data, contentType, err := c.fetcher.PreviewImage(ctx, sel.FileKey, sel.Page)

	c.mu.Lock()
	if gen != c.gen || ctx.Err() != nil {
		c.mu.Unlock()
		c.fail(sel, fmt.Errorf("preview %s page %d: %w", sel.FileKey, sel.Page, common.ErrSuperseded))
		return
	}
	c.requested = nil
	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}
	if err != nil {
		if !errors.Is(err, context.Canceled) {
			// the failed selection replaces whatever was shown before
			c.releaseLocked()
			c.displayed = nil
		}
		c.mu.Unlock()
		c.fail(sel, err)
		return
	}

	c.releaseLocked()
	res, err := allocate(c.dir, contentType, data)
	if err != nil {
		c.displayed = nil
		c.mu.Unlock()
		c.fail(sel, fmt.Errorf("allocate preview resource: %w", err))
		return
	}
	c.current = res
	c.displayed = &sel
	view := events.PreviewView{
		Selection:   sel,
		Mode:        events.PreviewImage,
		Path:        res.path,
		ContentType: contentType,
		Size:        res.size,
	}
	c.mu.Unlock()

	c.metrics.RecordPreviewFetch(metrics.OutcomeOK)
	c.logger.Debug("preview.fetch.ok", "file_key", sel.FileKey, "page", sel.Page, "bytes", res.size)
	c.publisher.Publish(events.PreviewReady{View: view})
}

// fail reports a fetch that produced nothing to show. Superseded and
// cancelled fetches are counted but never surfaced.
func (c *Controller) fail(sel entity.Selection, err error) {
	if errors.Is(err, common.ErrSuperseded) || errors.Is(err, context.Canceled) {
		c.metrics.RecordPreviewFetch(metrics.OutcomeSuperseded)
		c.logger.Debug("preview.fetch.superseded", "file_key", sel.FileKey, "page", sel.Page)
		return
	}
	c.metrics.RecordPreviewFetch(metrics.OutcomeFailed)
	c.logger.Warn("preview.fetch.failed", "file_key", sel.FileKey, "page", sel.Page, "error", err)
	c.publisher.Publish(events.PreviewFailed{Selection: sel, Err: err})
}

// showDocumentLocked switches to the embedded original document when the
// server cannot render page images.
func (c *Controller) showDocumentLocked(sel entity.Selection) events.PreviewView {
	c.releaseLocked()
	c.requested = nil
	c.displayed = &sel
	return events.PreviewView{
		Selection: sel,
		Mode:      events.PreviewDocument,
		URL:       c.fetcher.PreviewDocumentURL(sel.FileKey),
	}
}

func (c *Controller) supersedeLocked() {
	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}
}

func (c *Controller) releaseLocked() {
	if c.current == nil {
		return
	}
	if err := c.current.release(); err != nil {
		c.logger.Warn("preview.resource.release_failed", "path", c.current.path, "error", err)
	}
	c.current = nil
}

func clamp(page, pages int) int {
	if page < 1 {
		return 1
	}
	if page > pages {
		return pages
	}
	return page
}

func same(a *entity.Selection, b entity.Selection) bool {
	return a != nil && *a == b
}
