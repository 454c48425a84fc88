package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/dustin/go-humanize"

	"github.com/joseph-ayodele/docflow/constants"
	"github.com/joseph-ayodele/docflow/internal/common"
	"github.com/joseph-ayodele/docflow/internal/entity"
	"github.com/joseph-ayodele/docflow/internal/events"
	"github.com/joseph-ayodele/docflow/internal/export"
	"github.com/joseph-ayodele/docflow/internal/schema"
	"github.com/joseph-ayodele/docflow/internal/table"
)

// cellEdit is one -set flag: key:field=value.
type cellEdit struct {
	FileKey string
	Field   string
	Value   string
}

type editFlags []cellEdit

func (e *editFlags) String() string {
	parts := make([]string, len(*e))
	for i, ed := range *e {
		parts[i] = ed.FileKey + ":" + ed.Field + "=" + ed.Value
	}
	return strings.Join(parts, ",")
}

func (e *editFlags) Set(raw string) error {
	ed, err := parseCellEdit(raw)
	if err != nil {
		return err
	}
	*e = append(*e, ed)
	return nil
}

// parseCellEdit splits key:field=value. The key may itself contain colons, so
// the field starts after the last colon before the '='.
func parseCellEdit(raw string) (cellEdit, error) {
	target, value, ok := strings.Cut(raw, "=")
	if !ok {
		return cellEdit{}, fmt.Errorf("edit %q: expected key:field=value", raw)
	}
	i := strings.LastIndex(target, ":")
	if i <= 0 || i == len(target)-1 {
		return cellEdit{}, fmt.Errorf("edit %q: expected key:field=value", raw)
	}
	return cellEdit{FileKey: target[:i], Field: target[i+1:], Value: value}, nil
}

func runProcess(ctx context.Context, cfg *common.Config, logger *slog.Logger, args []string) error {
	fs := flag.NewFlagSet("process", flag.ContinueOnError)
	var (
		files  = fs.String("files", "", "comma separated PDF files to process (required)")
		engine = fs.String("engine", cfg.Processing.Engine, "OCR engine")
		langs  = fs.String("langs", strings.Join(cfg.Processing.Languages, ","), "comma separated OCR languages")
		format = fs.String("export", "", "export format: "+strings.Join(constants.ExportFormats(), "|"))
		out    = fs.String("out", "", "export output path (defaults to ocr_results.<ext>)")
		edits  editFlags
	)
	fs.Var(&edits, "set", "cell edit key:field=value (repeatable)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *files == "" {
		return common.InputError("-files is required")
	}

	uploads, err := readUploads(strings.Split(*files, ","))
	if err != nil {
		return err
	}

	a, err := newApp(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.close()

	unsubscribe := a.bus.Subscribe(progressPrinter(logger))
	defer unsubscribe()

	// column order and cell coercion follow the schema when it is reachable
	if _, err := schema.NewService(a.client, a.ws.Schema, logger).Get(ctx); err != nil {
		logger.Warn("schema.fetch_failed", "error", err)
	}

	res, err := a.orchestrator.Run(ctx, uploads, entity.ProcessConfig{
		Engine:    *engine,
		Languages: common.ParseLanguages(*langs),
	})
	if err != nil {
		return err
	}
	fmt.Printf("Run %s: %d file(s), %d failed, %d row(s)\n", res.Status, res.Files, len(res.Failed), len(res.Snapshot))
	for _, n := range res.SplitNotes {
		fmt.Printf("- note: %s\n", n)
	}
	if res.Status == constants.RunFailed {
		if res.Err != nil {
			return res.Err
		}
		return common.NewAppError("RUN_FAILED", "processing failed, resubmit the files", common.ErrRequestFailed)
	}

	if cfg.Session.ID != "" {
		if n, err := a.edits.Restore(ctx); err != nil {
			logger.Warn("editsync.restore_failed", "error", err)
		} else if n > 0 {
			fmt.Printf("Restored %d pending edit(s)\n", n)
		}
	}

	for _, ed := range edits {
		changed, err := a.renderer.Edit(ctx, ed.FileKey, ed.Field, ed.Value)
		if err != nil {
			return err
		}
		if !changed {
			logger.Info("edit.unchanged", "file_key", ed.FileKey, "field", ed.Field)
		}
	}

	table.WriteText(os.Stdout, a.renderer.Build())

	if *format == "" {
		// nothing to export, but edits still have to reach the server
		return a.edits.Flush(ctx)
	}
	f := constants.ExportFormat(*format)
	data, err := a.exporter.Export(ctx, f)
	if err != nil {
		return err
	}
	path := *out
	if path == "" {
		path = export.FileName(f)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write export: %w", err)
	}
	fmt.Printf("Exported %s to %s\n", humanize.Bytes(uint64(len(data))), path)
	return nil
}

func readUploads(paths []string) ([]entity.Upload, error) {
	var uploads []entity.Upload
	for _, p := range paths {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		data, err := os.ReadFile(p)
		if err != nil {
			return nil, common.NewAppError("INVALID_INPUT", fmt.Sprintf("read %s", p), err)
		}
		uploads = append(uploads, entity.Upload{Name: filepath.Base(p), Data: data})
	}
	return uploads, nil
}

// progressPrinter reports run and save progress on stdout.
func progressPrinter(logger *slog.Logger) func(events.Event) {
	return func(e events.Event) {
		switch ev := e.(type) {
		case events.SnapshotProduced:
			fmt.Printf("%s %s: %d row(s), avg confidence %.1f%%\n",
				ev.FileName, ev.PageLabel, ev.Summary.TotalFiles, ev.Summary.AverageConfidence*100)
		case events.FileFailed:
			fmt.Printf("%s: %s\n", ev.FileName, common.UserMessage(ev.Err))
		case events.SaveCompleted:
			if !ev.Silent {
				fmt.Println("Saved.")
			}
		case events.SaveFailed:
			fmt.Printf("Save failed: %s\n", common.UserMessage(ev.Err))
		case events.PreviewReady:
			logger.Debug("preview.ready", "file_key", ev.View.Selection.FileKey, "page", ev.View.Selection.Page, "mode", ev.View.Mode)
		case events.PreviewFailed:
			logger.Debug("preview.failed", "file_key", ev.Selection.FileKey, "error", ev.Err)
		}
	}
}
