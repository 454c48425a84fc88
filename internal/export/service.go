package export

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/joseph-ayodele/docflow/constants"
	"github.com/joseph-ayodele/docflow/internal/common"
	"github.com/joseph-ayodele/docflow/internal/metrics"
	"github.com/joseph-ayodele/docflow/internal/table"
)

// Flusher saves pending edits and waits for the result.
type Flusher interface {
	Flush(ctx context.Context) error
}

// Downloader fetches server-side exports.
type Downloader interface {
	Download(ctx context.Context, format constants.ExportFormat) ([]byte, error)
}

// GridSource renders the current table.
type GridSource interface {
	Build() table.Grid
}

// Service produces export bytes once the server has every pending edit.
type Service struct {
	edits      Flusher
	downloader Downloader
	grid       GridSource
	metrics    metrics.Recorder
	logger     *slog.Logger
}

func NewService(edits Flusher, downloader Downloader, grid GridSource, rec metrics.Recorder, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	if rec == nil {
		rec = metrics.Nop{}
	}
	return &Service{edits: edits, downloader: downloader, grid: grid, metrics: rec, logger: logger}
}

// Export flushes pending edits, then returns the export in format.
// A failed flush cancels the export and returns the save error.
func (s *Service) Export(ctx context.Context, format constants.ExportFormat) ([]byte, error) {
	start := time.Now()
	if !isKnown(format) {
		return nil, common.InputError(fmt.Sprintf("unknown export format %q", format))
	}

	if err := s.edits.Flush(ctx); err != nil {
		s.logger.Warn("export.cancelled", "format", format, "error", err)
		return nil, err
	}

	var (
		data []byte
		err  error
	)
	if format == constants.ExportLocalXLSX {
		data, err = table.WriteXLSX(s.grid.Build())
	} else {
		data, err = s.downloader.Download(ctx, format)
	}
	if err != nil {
		s.logger.Error("export.failed", "format", format, "error", err)
		return nil, err
	}

	s.metrics.RecordExport(string(format), len(data))
	s.logger.Info("export.ok",
		"format", format,
		"size", humanize.Bytes(uint64(len(data))),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return data, nil
}

// FileName is the default download name for format.
func FileName(format constants.ExportFormat) string {
	return "ocr_results." + format.FileExt()
}

func isKnown(format constants.ExportFormat) bool {
	for _, f := range constants.ExportFormats() {
		if string(format) == f {
			return true
		}
	}
	return false
}
