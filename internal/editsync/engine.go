// Package editsync keeps locally edited cells in step with the server copy
// of the results table.
package editsync

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/joseph-ayodele/docflow/constants"
	"github.com/joseph-ayodele/docflow/internal/async"
	"github.com/joseph-ayodele/docflow/internal/common"
	"github.com/joseph-ayodele/docflow/internal/entity"
	"github.com/joseph-ayodele/docflow/internal/events"
	"github.com/joseph-ayodele/docflow/internal/metrics"
	"github.com/joseph-ayodele/docflow/internal/state"
)

// Saver persists the full table and returns the server's canonical copy.
type Saver interface {
	UpdateResults(ctx context.Context, rows entity.Snapshot) (entity.Snapshot, error)
}

// Journal durably records edits until the server confirms them.
type Journal interface {
	Record(ctx context.Context, edit entity.PendingEdit) error
	// Confirm closes the open entries of a cell recorded at or before cutoff.
	Confirm(ctx context.Context, sessionID, fileKey, field string, cutoff time.Time) error
	// Discard closes every open entry of a row that left the table.
	Discard(ctx context.Context, sessionID, fileKey string) error
	Pending(ctx context.Context, sessionID string) ([]entity.PendingEdit, error)
	Purge(ctx context.Context, sessionID string) (int64, error)
}

const saveKey = "results"

// Engine tracks pending edits, autosaves them after a quiet period and
// reconciles each save response with edits made while it was in flight.
type Engine struct {
	saver      Saver
	ws         *state.Workspace
	journal    Journal
	publisher  events.Publisher
	metrics    metrics.Recorder
	logger     *slog.Logger
	delay      time.Duration
	maxRetries int
	afterFunc  async.AfterFunc
	now        func() time.Time

	debounce *async.Debouncer
	group    singleflight.Group

	mu       sync.Mutex
	pending  pendingSet
	inflight pendingSet
	failures int
	stopped  bool
}

type Option func(*Engine)

// WithDelay sets the autosave quiet period (default 1.5s).
func WithDelay(d time.Duration) Option {
	return func(e *Engine) {
		if d > 0 {
			e.delay = d
		}
	}
}

// WithMaxRetries bounds how many consecutive save cycles may leave the same
// edits unconfirmed before autosave gives up (default 3).
func WithMaxRetries(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.maxRetries = n
		}
	}
}

func WithAfterFunc(f async.AfterFunc) Option {
	return func(e *Engine) { e.afterFunc = f }
}

// WithClock replaces time.Now for journal timestamps.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

func WithJournal(j Journal) Option {
	return func(e *Engine) { e.journal = j }
}

func WithPublisher(p events.Publisher) Option {
	return func(e *Engine) { e.publisher = p }
}

func WithMetrics(m metrics.Recorder) Option {
	return func(e *Engine) { e.metrics = m }
}

func NewEngine(saver Saver, ws *state.Workspace, logger *slog.Logger, opts ...Option) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	e := &Engine{
		saver:      saver,
		ws:         ws,
		publisher:  events.Nop{},
		metrics:    metrics.Nop{},
		logger:     logger,
		delay:      1500 * time.Millisecond,
		maxRetries: 3,
		now:        time.Now,
		pending:    pendingSet{},
	}
	for _, o := range opts {
		o(e)
	}
	e.debounce = async.NewDebouncer(e.delay, e.autosave, e.afterFunc)
	return e
}

func (e *Engine) sessionID() string {
	if e.ws.Session == nil {
		return ""
	}
	return e.ws.Session.ID()
}

// Edit records a new value for one cell. It is a no-op returning false when
// the value matches what the table already holds. The table is updated
// immediately and an autosave is (re)scheduled.
func (e *Engine) Edit(ctx context.Context, fileKey, field string, value any) (bool, error) {
	if field == "" {
		return false, common.InputError("field name is required")
	}
	e.mu.Lock()
	row, ok := e.ws.Table.Row(fileKey)
	if !ok {
		e.mu.Unlock()
		return false, common.NewAppError("NOT_FOUND", fmt.Sprintf("row %q not found", fileKey), common.ErrNotFound)
	}
	current, _ := row.Fields.Get(field)
	if entity.ValuesEqual(current, value) {
		e.mu.Unlock()
		return false, nil
	}
	if err := e.ws.Table.SetField(fileKey, field, value); err != nil {
		e.mu.Unlock()
		return false, err
	}
	e.pending.put(fileKey, field, value)
	e.failures = 0
	e.stopped = false
	n := e.pending.count()
	recordedAt := e.now().UTC()
	e.mu.Unlock()

	e.metrics.SetPendingEdits(n)
	e.logger.Debug("editsync.edit", "file_key", fileKey, "field", field, "pending", n)
	if e.journal != nil {
		edit := entity.PendingEdit{SessionID: e.sessionID(), FileKey: fileKey, Field: field, Value: value, RecordedAt: recordedAt}
		if err := e.journal.Record(ctx, edit); err != nil {
			e.logger.Warn("editsync.journal.record_failed", "file_key", fileKey, "field", field, "error", err)
		}
	}
	e.debounce.Trigger()
	return true, nil
}

// Pending returns the unconfirmed edits in a stable order.
func (e *Engine) Pending() []entity.PendingEdit {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.pending.edits()
}

func (e *Engine) HasPending() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.pending) > 0
}

// CellState reports where a cell is in the clean -> dirty -> saving cycle.
func (e *Engine) CellState(fileKey, field string) constants.CellState {
	e.mu.Lock()
	defer e.mu.Unlock()
	v, ok := e.pending.get(fileKey, field)
	if !ok {
		return constants.CellClean
	}
	if sent, ok := e.inflight.get(fileKey, field); ok && entity.ValuesEqual(sent, v) {
		return constants.CellSaving
	}
	return constants.CellDirty
}

// Adopt replaces the working table with rows, keeping pending edits on top.
// Edits for rows that no longer exist are dropped.
func (e *Engine) Adopt(rows entity.Snapshot) entity.Snapshot {
	e.mu.Lock()
	merged := rows.Clone()
	orphans := e.pending.overlay(merged)
	for _, key := range orphans {
		e.logger.Warn("editsync.pending.orphaned", "file_key", key)
		delete(e.pending, key)
	}
	e.ws.Table.Replace(merged)
	n := e.pending.count()
	e.mu.Unlock()
	e.discard(context.Background(), orphans)
	e.metrics.SetPendingEdits(n)
	return merged.Clone()
}

// Save persists the table now. Concurrent callers join the save already in
// flight instead of sending another request. Silent saves suppress the
// success notification, never the failure one.
func (e *Engine) Save(ctx context.Context, silent bool) error {
	if !silent {
		e.mu.Lock()
		e.failures = 0
		e.stopped = false
		e.mu.Unlock()
	}
	led := false
	ch := e.group.DoChan(saveKey, func() (any, error) {
		led = true
		return e.save(context.WithoutCancel(ctx), silent)
	})
	res := <-ch
	if led {
		return res.Err
	}
	e.metrics.RecordSave(metrics.OutcomeJoined, silent, 0)
	// an explicit save that joined an autosave still gets its notification
	if completed, ok := res.Val.(events.SaveCompleted); ok && res.Err == nil && completed.Silent && !silent {
		completed.Silent = false
		completed.Snapshot = completed.Snapshot.Clone()
		e.publisher.Publish(completed)
	}
	return res.Err
}

// Flush saves and waits when edits are pending, and does nothing otherwise.
// Edits made while a flush save is in flight are flushed too, bounded by the
// retry limit.
func (e *Engine) Flush(ctx context.Context) error {
	for attempt := 0; e.HasPending(); attempt++ {
		if attempt > e.maxRetries {
			return common.NewAppError("EDITS_PENDING", "edits could not be saved", common.ErrEditRejected)
		}
		if err := e.Save(ctx, true); err != nil {
			return err
		}
	}
	return nil
}

// Close stops the autosave timer.
func (e *Engine) Close() {
	e.debounce.Cancel()
}

// Finish stops autosave and, when every edit reached the server, purges
// the session from the journal. Unconfirmed entries are kept for Restore.
func (e *Engine) Finish(ctx context.Context) {
	e.Close()
	if e.journal == nil || e.HasPending() {
		return
	}
	n, err := e.journal.Purge(ctx, e.sessionID())
	if err != nil {
		e.logger.Warn("editsync.journal.purge_failed", "error", err)
		return
	}
	e.logger.Debug("editsync.journal.purged", "entries", n)
}

func (e *Engine) autosave() {
	e.mu.Lock()
	stopped := e.stopped
	e.mu.Unlock()
	if stopped {
		return
	}
	if err := e.Save(context.Background(), true); err != nil {
		e.logger.Debug("editsync.autosave.failed", "error", err)
	}
}

func (e *Engine) save(ctx context.Context, silent bool) (events.SaveCompleted, error) {
	e.debounce.Cancel()

	e.mu.Lock()
	snapshot := e.ws.Table.Snapshot()
	if len(snapshot) == 0 {
		e.mu.Unlock()
		return events.SaveCompleted{}, common.NewAppError("NO_RESULTS", "no results to save", common.ErrNoResults)
	}
	sent := e.pending.clone()
	e.inflight = sent
	// journal entries stamped after this point belong to a later save
	cutoff := e.now().UTC()
	e.mu.Unlock()

	start := time.Now()
	canonical, err := e.saver.UpdateResults(ctx, snapshot)
	if err != nil {
		return events.SaveCompleted{}, e.saveFailed(silent, err, start)
	}

	e.mu.Lock()
	e.inflight = nil
	rejected := 0
	var confirmed []entity.PendingEdit
	for key, fields := range sent {
		i := canonical.Index(key)
		for field, sentValue := range fields {
			var serverValue any
			if i >= 0 {
				serverValue, _ = canonical[i].Fields.Get(field)
			}
			current, stillPending := e.pending.get(key, field)
			if !stillPending || !entity.ValuesEqual(current, sentValue) {
				// edited again while the save was in flight
				continue
			}
			if !entity.ValuesEqual(serverValue, sentValue) {
				rejected++
				continue
			}
			e.pending.drop(key, field)
			confirmed = append(confirmed, entity.PendingEdit{FileKey: key, Field: field})
		}
	}
	merged := canonical.Clone()
	orphans := e.pending.overlay(merged)
	for _, key := range orphans {
		delete(e.pending, key)
	}
	e.ws.Table.Replace(merged)
	remaining := e.pending.count()
	if rejected > 0 {
		e.failures++
	} else {
		e.failures = 0
	}
	giveUp := remaining > 0 && e.failures >= e.maxRetries
	if giveUp {
		e.stopped = true
	}
	e.mu.Unlock()

	for _, c := range confirmed {
		e.confirm(ctx, c.FileKey, c.Field, cutoff)
	}
	e.discard(ctx, orphans)
	e.metrics.SetPendingEdits(remaining)
	if giveUp {
		err := common.NewAppError("EDITS_REJECTED", fmt.Sprintf("%d edit(s) were not accepted after %d attempts", rejected, e.maxRetries), common.ErrEditRejected)
		e.metrics.RecordSave(metrics.OutcomeRejected, silent, time.Since(start))
		e.logger.Warn("editsync.save.rejected", "pending", remaining, "attempts", e.maxRetries)
		e.publisher.Publish(events.SaveFailed{Silent: silent, Err: err, Pending: remaining})
		return events.SaveCompleted{}, err
	}

	e.metrics.RecordSave(metrics.OutcomeOK, silent, time.Since(start))
	e.logger.Info("editsync.save.ok", "silent", silent, "rows", len(merged), "sent_edits", sent.count(), "pending", remaining, "elapsed_ms", time.Since(start).Milliseconds())
	completed := events.SaveCompleted{Silent: silent, Snapshot: merged.Clone(), Pending: remaining}
	e.publisher.Publish(completed)
	if remaining > 0 {
		e.debounce.Trigger()
	}
	return events.SaveCompleted{Silent: silent, Snapshot: merged, Pending: remaining}, nil
}

func (e *Engine) saveFailed(silent bool, err error, start time.Time) error {
	e.mu.Lock()
	e.inflight = nil
	e.failures++
	failures := e.failures
	remaining := e.pending.count()
	giveUp := failures >= e.maxRetries
	if giveUp {
		e.stopped = true
	}
	e.mu.Unlock()

	e.metrics.RecordSave(metrics.OutcomeFailed, silent, time.Since(start))
	e.logger.Error("editsync.save.failed", "silent", silent, "pending", remaining, "failures", failures, "error", err)
	if giveUp {
		err = fmt.Errorf("%w: %w", common.ErrEditRejected, err)
	}
	e.publisher.Publish(events.SaveFailed{Silent: silent, Err: err, Pending: remaining})
	if !giveUp && remaining > 0 {
		e.debounce.Trigger()
	}
	return err
}

func (e *Engine) confirm(ctx context.Context, key, field string, cutoff time.Time) {
	if e.journal == nil {
		return
	}
	if err := e.journal.Confirm(ctx, e.sessionID(), key, field, cutoff); err != nil {
		e.logger.Warn("editsync.journal.confirm_failed", "file_key", key, "field", field, "error", err)
	}
}

func (e *Engine) discard(ctx context.Context, keys []string) {
	if e.journal == nil {
		return
	}
	for _, key := range keys {
		if err := e.journal.Discard(ctx, e.sessionID(), key); err != nil {
			e.logger.Warn("editsync.journal.discard_failed", "file_key", key, "error", err)
		}
	}
}

// Restore re-applies edits the journal still holds for this session, for
// example after resuming with an explicit session id.
func (e *Engine) Restore(ctx context.Context) (int, error) {
	if e.journal == nil {
		return 0, nil
	}
	edits, err := e.journal.Pending(ctx, e.sessionID())
	if err != nil {
		return 0, fmt.Errorf("restore pending edits: %w", err)
	}
	applied := 0
	for _, ed := range edits {
		e.mu.Lock()
		_, ok := e.ws.Table.Row(ed.FileKey)
		if ok {
			_ = e.ws.Table.SetField(ed.FileKey, ed.Field, ed.Value)
			e.pending.put(ed.FileKey, ed.Field, ed.Value)
			applied++
		}
		e.mu.Unlock()
	}
	if applied > 0 {
		e.metrics.SetPendingEdits(len(e.Pending()))
		e.debounce.Trigger()
	}
	if skipped := len(edits) - applied; skipped > 0 {
		e.logger.Warn("editsync.restore.skipped", "edits", skipped, "reason", "row not in table")
	}
	return applied, nil
}

// IsRejected reports whether err means the server kept refusing edits.
func IsRejected(err error) bool {
	return errors.Is(err, common.ErrEditRejected)
}
