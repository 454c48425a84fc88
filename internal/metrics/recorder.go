// Package metrics records counters for processing runs, saves and previews.
package metrics

import "time"

// Recorder receives measurements from the core components.
type Recorder interface {
	RecordStep(outcome string, elapsed time.Duration)
	RecordRun(status string, files int)
	RecordSave(outcome string, silent bool, elapsed time.Duration)
	SetPendingEdits(n int)
	RecordPreviewFetch(outcome string)
	RecordExport(format string, bytes int)
}

// Nop discards everything.
type Nop struct{}

func (Nop) RecordStep(string, time.Duration)       {}
func (Nop) RecordRun(string, int)                  {}
func (Nop) RecordSave(string, bool, time.Duration) {}
func (Nop) SetPendingEdits(int)                    {}
func (Nop) RecordPreviewFetch(string)              {}
func (Nop) RecordExport(string, int)               {}

// Outcome labels.
const (
	OutcomeOK         = "ok"
	OutcomeFailed     = "failed"
	OutcomeSuperseded = "superseded"
	OutcomeJoined     = "joined"
	OutcomeNoop       = "noop"
	OutcomeRejected   = "rejected"
)
