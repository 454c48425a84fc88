// Package events carries notifications from the processing, edit sync and
// preview components to whatever consumes them (the CLI, tests).
package events

import (
	"sync"

	"github.com/joseph-ayodele/docflow/constants"
	"github.com/joseph-ayodele/docflow/internal/entity"
)

// Event is anything published on a Bus.
type Event interface {
	EventName() string
}

// Publisher is what components depend on.
type Publisher interface {
	Publish(Event)
}

// SnapshotProduced is emitted after every successful page step.
type SnapshotProduced struct {
	FileName       string
	PageNumber     int
	TotalPages     int
	PageLabel      string
	Snapshot       entity.Snapshot
	Summary        entity.Summary
	Meta           *entity.Meta
	ExportsEnabled bool
	Done           bool
}

// FileFailed is emitted when a file could not be initialised; the run moves on.
type FileFailed struct {
	FileName string
	Err      error
}

// RunFinished closes a multi-file run.
type RunFinished struct {
	Status      constants.RunStatus
	Files       int
	FailedFiles int
	Rows        int
	Err         error
}

// SaveCompleted is emitted after a save was reconciled. Silent marks autosaves.
type SaveCompleted struct {
	Silent   bool
	Snapshot entity.Snapshot
	Pending  int
}

// SaveFailed is emitted when a save request failed or edits kept being rejected.
type SaveFailed struct {
	Silent  bool
	Err     error
	Pending int
}

// PreviewMode says how a preview is shown.
type PreviewMode string

const (
	PreviewImage    PreviewMode = "image"
	PreviewDocument PreviewMode = "document"
)

// PreviewView describes a displayable preview. For images Path points at the
// local resource; for documents URL is the embeddable original.
type PreviewView struct {
	Selection   entity.Selection
	Mode        PreviewMode
	Path        string
	URL         string
	ContentType string
	Size        int64
}

type PreviewReady struct {
	View PreviewView
}

type PreviewFailed struct {
	Selection entity.Selection
	Err       error
}

// PreviewCleared is emitted when the preview was cleared and its resource released.
type PreviewCleared struct{}

func (SnapshotProduced) EventName() string { return "snapshot.produced" }
func (FileFailed) EventName() string       { return "file.failed" }
func (RunFinished) EventName() string      { return "run.finished" }
func (SaveCompleted) EventName() string    { return "save.completed" }
func (SaveFailed) EventName() string       { return "save.failed" }
func (PreviewReady) EventName() string     { return "preview.ready" }
func (PreviewFailed) EventName() string    { return "preview.failed" }
func (PreviewCleared) EventName() string   { return "preview.cleared" }

// Nop drops every event.
type Nop struct{}

func (Nop) Publish(Event) {}

// Recorder keeps every published event in order.
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *Recorder) Publish(e Event) {
	r.mu.Lock()
	r.events = append(r.events, e)
	r.mu.Unlock()
}

// Events returns a copy of what was recorded so far.
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}

// Names returns the event names in publish order.
func (r *Recorder) Names() []string {
	evs := r.Events()
	names := make([]string, len(evs))
	for i, e := range evs {
		names[i] = e.EventName()
	}
	return names
}

// Of returns the recorded events of type T.
func Of[T Event](r *Recorder) []T {
	var out []T
	for _, e := range r.Events() {
		if t, ok := e.(T); ok {
			out = append(out, t)
		}
	}
	return out
}
