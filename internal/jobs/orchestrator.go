// Package jobs drives the page-at-a-time processing protocol: one split-init
// per file, then split-next until the file's pages are exhausted.
package jobs

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/joseph-ayodele/docflow/constants"
	"github.com/joseph-ayodele/docflow/internal/common"
	"github.com/joseph-ayodele/docflow/internal/entity"
	"github.com/joseph-ayodele/docflow/internal/events"
	"github.com/joseph-ayodele/docflow/internal/metrics"
	"github.com/joseph-ayodele/docflow/internal/state"
)

// Processor is the server side of the protocol.
type Processor interface {
	SplitInit(ctx context.Context, upload entity.Upload, cfg entity.ProcessConfig, sessionID string) (entity.InitResult, error)
	SplitNext(ctx context.Context, jobID, sessionID string, appendRows bool) (entity.StepResult, error)
}

// TableSink adopts each new snapshot into the working table and returns
// what the table holds afterwards.
type TableSink interface {
	Adopt(rows entity.Snapshot) entity.Snapshot
}

// Selector is told when a run auto-selects a row.
type Selector interface {
	Select(sel entity.Selection, force bool)
}

// FileError records a file that could not be initialised.
type FileError struct {
	FileName string
	Err      error
}

// RunResult summarises a multi-file run.
type RunResult struct {
	Status     constants.RunStatus
	Files      int
	Failed     []FileError
	Snapshot   entity.Snapshot
	Summary    entity.Summary
	Meta       *entity.Meta
	SplitNotes []string
	Err        error
}

type Orchestrator struct {
	processor Processor
	ws        *state.Workspace
	sink      TableSink
	selector  Selector
	publisher events.Publisher
	metrics   metrics.Recorder
	logger    *slog.Logger
}

type Option func(*Orchestrator)

func WithTableSink(s TableSink) Option {
	return func(o *Orchestrator) { o.sink = s }
}

func WithSelector(s Selector) Option {
	return func(o *Orchestrator) { o.selector = s }
}

func WithPublisher(p events.Publisher) Option {
	return func(o *Orchestrator) { o.publisher = p }
}

func WithMetrics(m metrics.Recorder) Option {
	return func(o *Orchestrator) { o.metrics = m }
}

func NewOrchestrator(p Processor, ws *state.Workspace, logger *slog.Logger, opts ...Option) *Orchestrator {
	if logger == nil {
		logger = slog.Default()
	}
	o := &Orchestrator{
		processor: p,
		ws:        ws,
		publisher: events.Nop{},
		metrics:   metrics.Nop{},
		logger:    logger,
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.sink == nil {
		o.sink = replaceSink{table: ws.Table}
	}
	return o
}

type replaceSink struct{ table *state.Table }

func (s replaceSink) Adopt(rows entity.Snapshot) entity.Snapshot {
	s.table.Replace(rows)
	return s.table.Snapshot()
}

// ValidateUploads checks the files locally. Nothing is sent when it fails.
func ValidateUploads(uploads []entity.Upload) error {
	if len(uploads) == 0 {
		return common.InputError("no file selected")
	}
	for _, u := range uploads {
		if u.Name == "" {
			return common.InputError("file name is required")
		}
		if !constants.IsAllowedExt(filepath.Ext(u.Name)) {
			return common.InputError(fmt.Sprintf("%s: only PDF files are accepted", u.Name))
		}
		if len(u.Data) == 0 {
			return common.InputError(fmt.Sprintf("%s: file is empty", u.Name))
		}
	}
	return nil
}

// Run processes uploads in order. A file whose initialisation fails is
// skipped; a failed page step aborts the whole run. Run never returns an
// error for request failures, they are reported in the result. Only local
// validation errors are returned.
func (o *Orchestrator) Run(ctx context.Context, uploads []entity.Upload, cfg entity.ProcessConfig) (*RunResult, error) {
	if err := ValidateUploads(uploads); err != nil {
		return nil, err
	}
	sessionID := ""
	if o.ws.Session != nil {
		sessionID = o.ws.Session.ID()
		ctx = common.WithSessionID(ctx, sessionID)
	}

	res := &RunResult{Files: len(uploads)}
	hasRows := o.ws.Table.Len() > 0
	start := time.Now()
	o.logger.Info("jobs.run.start", "files", len(uploads), "engine", cfg.Engine, "languages", cfg.Languages)

	for _, up := range uploads {
		initRes, err := o.processor.SplitInit(ctx, up, cfg, sessionID)
		if err != nil {
			o.logger.Warn("jobs.init.failed", "file", up.Name, "error", err)
			res.Failed = append(res.Failed, FileError{FileName: up.Name, Err: err})
			o.publisher.Publish(events.FileFailed{FileName: up.Name, Err: err})
			continue
		}
		res.SplitNotes = append(res.SplitNotes, initRes.SplitNotes...)
		o.logger.Info("jobs.init.ok", "file", up.Name, "job_id", initRes.JobID, "total_pages", initRes.TotalPages)

		produced, err := o.runJob(ctx, up.Name, initRes, sessionID, hasRows, res)
		hasRows = hasRows || produced
		if err != nil {
			res.Status = constants.RunFailed
			res.Err = err
			o.finish(res, start)
			return res, nil
		}
	}

	switch {
	case len(res.Failed) == 0:
		res.Status = constants.RunCompleted
	case len(res.Failed) == len(uploads):
		res.Status = constants.RunFailed
		res.Err = res.Failed[len(res.Failed)-1].Err
	default:
		res.Status = constants.RunPartial
	}
	o.finish(res, start)
	return res, nil
}

// runJob advances one job page by page. It reports whether any page produced rows.
func (o *Orchestrator) runJob(ctx context.Context, fileName string, job entity.InitResult, sessionID string, hasRows bool, res *RunResult) (bool, error) {
	total := job.TotalPages
	if total < 1 {
		total = 1
	}
	produced := false
	for page := 0; page < total; page++ {
		appendRows := hasRows || produced || page > 0
		stepStart := time.Now()
		step, err := o.processor.SplitNext(ctx, job.JobID, sessionID, appendRows)
		if err != nil {
			o.metrics.RecordStep(metrics.OutcomeFailed, time.Since(stepStart))
			o.logger.Error("jobs.step.failed", "file", fileName, "job_id", job.JobID, "page", page+1, "error", err)
			if common.IsNotFound(err) {
				// the server dropped the job, stepping again cannot succeed
				err = common.NewAppError("JOB_EXPIRED", fmt.Sprintf("processing of %s expired on the server, resubmit the file", fileName), err)
			}
			return produced, err
		}
		if !step.HasPayload() {
			o.metrics.RecordStep(metrics.OutcomeNoop, time.Since(stepStart))
			o.logger.Debug("jobs.step.noop", "job_id", job.JobID, "page", page+1, "done", step.Done)
			if step.Done {
				break
			}
			continue
		}
		o.metrics.RecordStep(metrics.OutcomeOK, time.Since(stepStart))
		o.apply(fileName, step, appendRows, res)
		produced = true
		o.logger.Info("jobs.step.ok", "file", fileName, "job_id", job.JobID, "page", page+1, "of", total, "rows", len(res.Snapshot), "done", step.Done)
		if step.Done {
			break
		}
	}
	return produced, nil
}

func (o *Orchestrator) apply(fileName string, step entity.StepResult, appendRows bool, res *RunResult) {
	rows := step.Table
	if rows == nil {
		// latest row only: fold it into what we already have
		if appendRows {
			rows = o.ws.Table.Snapshot()
		}
		rows = append(rows, step.LatestRow.Clone())
	}
	snap := o.sink.Adopt(rows)

	summary := entity.Summarize(snap)
	if step.Summary != nil {
		summary = *step.Summary
	}
	if step.PDFPreview != nil {
		o.ws.SetPreviewCapability(*step.PDFPreview)
	}

	latest := step.LatestRow
	if latest == nil && len(snap) > 0 {
		latest = &snap[len(snap)-1]
	}
	if latest != nil {
		sel := entity.Selection{FileKey: latest.FileKey, Page: 1}
		if o.ws.SelectIfEmpty(sel) && o.selector != nil {
			o.selector.Select(sel, false)
		}
	}

	res.Snapshot = snap
	res.Summary = summary
	if step.Meta != nil {
		res.Meta = step.Meta
	}

	label := step.PageLabel
	if label == "" && latest != nil {
		label = latest.Label()
	}
	o.publisher.Publish(events.SnapshotProduced{
		FileName:       fileName,
		PageNumber:     step.PageNumber,
		TotalPages:     step.TotalPages,
		PageLabel:      label,
		Snapshot:       snap.Clone(),
		Summary:        summary,
		Meta:           step.Meta,
		ExportsEnabled: len(snap) > 0,
		Done:           step.Done,
	})
}

func (o *Orchestrator) finish(res *RunResult, start time.Time) {
	if res.Snapshot == nil {
		res.Snapshot = o.ws.Table.Snapshot()
		res.Summary = entity.Summarize(res.Snapshot)
	}
	o.metrics.RecordRun(string(res.Status), res.Files)
	o.logger.Info("jobs.run.finished",
		"status", res.Status,
		"files", res.Files,
		"failed_files", len(res.Failed),
		"rows", len(res.Snapshot),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	o.publisher.Publish(events.RunFinished{
		Status:      res.Status,
		Files:       res.Files,
		FailedFiles: len(res.Failed),
		Rows:        len(res.Snapshot),
		Err:         res.Err,
	})
}
