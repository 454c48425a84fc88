package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/joseph-ayodele/docflow/internal/apiclient"
	"github.com/joseph-ayodele/docflow/internal/async"
	"github.com/joseph-ayodele/docflow/internal/common"
	"github.com/joseph-ayodele/docflow/internal/editsync"
	"github.com/joseph-ayodele/docflow/internal/events"
	"github.com/joseph-ayodele/docflow/internal/export"
	"github.com/joseph-ayodele/docflow/internal/jobs"
	"github.com/joseph-ayodele/docflow/internal/metrics"
	"github.com/joseph-ayodele/docflow/internal/preview"
	"github.com/joseph-ayodele/docflow/internal/repository"
	"github.com/joseph-ayodele/docflow/internal/session"
	"github.com/joseph-ayodele/docflow/internal/state"
	"github.com/joseph-ayodele/docflow/internal/table"
)

// app holds one wired review session.
type app struct {
	logger       *slog.Logger
	client       *apiclient.Client
	session      *session.Manager
	ws           *state.Workspace
	dispatcher   *async.Dispatcher
	bus          *events.Bus
	metrics      metrics.Recorder
	metricsSrv   *http.Server
	journalDB    *repository.DB
	edits        *editsync.Engine
	preview      *preview.Controller
	orchestrator *jobs.Orchestrator
	renderer     *table.Renderer
	exporter     *export.Service
	unsubscribe  func()
}

func newApp(ctx context.Context, cfg *common.Config, logger *slog.Logger) (*app, error) {
	client, err := apiclient.NewClient(apiclient.Config{
		BaseURL:   cfg.API.BaseURL,
		Timeout:   cfg.API.Timeout,
		RateLimit: cfg.API.RateLimit,
		RateBurst: cfg.API.RateBurst,
	}, logger)
	if err != nil {
		return nil, err
	}

	beacon := apiclient.NewBeacon(client, 2*time.Second)
	sessOpts := []session.Option{
		session.WithTransports(beacon, session.TransportFunc(client.EndSession)),
	}
	if cfg.Session.ID != "" {
		sessOpts = append(sessOpts, session.WithID(cfg.Session.ID))
	}

	a := &app{
		logger:  logger,
		client:  client,
		session: session.NewManager(logger, sessOpts...),
		metrics: metrics.Nop{},
	}
	a.ws = state.NewWorkspace(a.session)
	a.dispatcher = async.NewDispatcher(logger)
	a.bus = events.NewBus(a.dispatcher)

	if cfg.Metrics.Addr != "" {
		rec := metrics.NewPrometheusRecorder()
		a.metrics = rec
		a.serveMetrics(cfg.Metrics.Addr, rec.Handler())
	}

	editOpts := []editsync.Option{
		editsync.WithDelay(cfg.Editing.AutosaveDelay),
		editsync.WithMaxRetries(cfg.Editing.SaveMaxRetries),
		editsync.WithPublisher(a.bus),
		editsync.WithMetrics(a.metrics),
	}
	if cfg.Journal.DSN != "" {
		db, err := repository.Open(ctx, repository.Config{DSN: cfg.Journal.DSN, MaxConns: 4}, logger)
		if err != nil {
			a.close()
			return nil, err
		}
		a.journalDB = db
		editOpts = append(editOpts, editsync.WithJournal(repository.NewEditJournal(db, logger)))
	}
	a.edits = editsync.NewEngine(client, a.ws, logger, editOpts...)

	a.preview = preview.NewController(client, a.ws, logger,
		preview.WithDir(cfg.Preview.Dir),
		preview.WithPublisher(a.bus),
		preview.WithMetrics(a.metrics),
	)
	a.orchestrator = jobs.NewOrchestrator(client, a.ws, logger,
		jobs.WithTableSink(a.edits),
		jobs.WithSelector(a.preview),
		jobs.WithPublisher(a.bus),
		jobs.WithMetrics(a.metrics),
	)
	a.renderer = table.NewRenderer(a.ws, a.edits, table.DefaultVisibility(), logger)
	a.exporter = export.NewService(a.edits, client, a.renderer, a.metrics, logger)
	a.unsubscribe = a.bus.Subscribe(refreshAfterSave(a.preview))
	return a, nil
}

type refresher interface {
	Refresh()
}

// refreshAfterSave re-fetches the shown page once a save was reconciled so
// the preview reflects the server copy.
func refreshAfterSave(r refresher) events.Handler {
	return func(e events.Event) {
		if _, ok := e.(events.SaveCompleted); ok {
			r.Refresh()
		}
	}
}

func (a *app) serveMetrics(addr string, h http.Handler) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", h)
	a.metricsSrv = &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		a.logger.Info("metrics.listening", "addr", addr)
		if err := a.metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.logger.Error("metrics.serve_failed", "error", err)
		}
	}()
}

// close ends the session and releases everything the app opened.
func (a *app) close() {
	if a.unsubscribe != nil {
		a.unsubscribe()
	}
	if a.preview != nil {
		a.preview.Close()
	}
	if a.edits != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		a.edits.Finish(ctx)
		cancel()
	}
	a.session.End()
	if !a.session.Wait(3 * time.Second) {
		a.logger.Warn("session.end.timeout", "session_id", a.session.ID())
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	a.dispatcher.Shutdown(ctx)
	if a.metricsSrv != nil {
		_ = a.metricsSrv.Shutdown(ctx)
	}
	repository.Close(a.journalDB, a.logger)
}
