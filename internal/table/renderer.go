// Package table builds the result grid from the schema and the current rows.
package table

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"

	"github.com/joseph-ayodele/docflow/constants"
	"github.com/joseph-ayodele/docflow/internal/common"
	"github.com/joseph-ayodele/docflow/internal/entity"
	"github.com/joseph-ayodele/docflow/internal/state"
)

// EditSink receives cell edits.
type EditSink interface {
	Edit(ctx context.Context, fileKey, field string, value any) (bool, error)
}

// Grid is one rendered view of the table.
type Grid struct {
	Columns []Column
	Rows    []GridRow
}

// GridRow holds the display text of every column for one row.
type GridRow struct {
	FileKey string
	Cells   []string
}

// Headers returns the column titles.
func (g Grid) Headers() []string {
	out := make([]string, len(g.Columns))
	for i, c := range g.Columns {
		out[i] = c.Title
	}
	return out
}

// Renderer reads the workspace and never mutates the table itself; edits go
// through the sink.
type Renderer struct {
	ws     *state.Workspace
	sink   EditSink
	logger *slog.Logger

	mu     sync.Mutex
	vis    Visibility
	widths map[string]float64
}

func NewRenderer(ws *state.Workspace, sink EditSink, vis Visibility, logger *slog.Logger) *Renderer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Renderer{ws: ws, sink: sink, vis: vis, widths: make(map[string]float64), logger: logger}
}

func (r *Renderer) SetVisibility(v Visibility) {
	r.mu.Lock()
	r.vis = v
	r.mu.Unlock()
}

// SetWidth overrides a column width. Overrides survive every rebuild.
func (r *Renderer) SetWidth(key string, width float64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if width <= 0 {
		delete(r.widths, key)
		return
	}
	r.widths[key] = width
}

// Columns resolves the column set: visible base columns, then schema fields
// in schema order. Without a schema the first row's field keys are used.
func (r *Renderer) Columns() []Column {
	rows := r.ws.Table.Snapshot()
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.columnsLocked(rows)
}

func (r *Renderer) columnsLocked(rows entity.Snapshot) []Column {
	var cols []Column
	for _, key := range r.vis.BaseColumns {
		bc, ok := baseColumns[key]
		if !ok {
			continue
		}
		cols = append(cols, Column{Key: key, Title: bc.title, Width: r.widths[key]})
	}

	schema, _ := r.ws.Schema.Get()
	fields := schema.Names()
	if len(fields) == 0 && len(rows) > 0 {
		fields = rows[0].Fields.Keys()
	}
	for _, f := range fields {
		if r.vis.hidden(f) {
			continue
		}
		cols = append(cols, Column{Key: f, Title: f, Field: true, Width: r.widths[f]})
	}

	if len(cols) == 0 {
		cols = append(cols, Column{Key: colFallback, Title: "File", Fallback: true, Width: r.widths[colFallback]})
	}
	return cols
}

// Build renders the current rows. Missing field values render as empty cells.
func (r *Renderer) Build() Grid {
	rows := r.ws.Table.Snapshot()
	r.mu.Lock()
	cols := r.columnsLocked(rows)
	r.mu.Unlock()

	grid := Grid{Columns: cols, Rows: make([]GridRow, 0, len(rows))}
	for _, row := range rows {
		cells := make([]string, len(cols))
		for i, c := range cols {
			cells[i] = cellText(row, c)
		}
		grid.Rows = append(grid.Rows, GridRow{FileKey: row.FileKey, Cells: cells})
	}
	return grid
}

func cellText(row entity.Row, c Column) string {
	switch {
	case c.Fallback:
		if row.FileName != "" {
			return row.FileName
		}
		return row.FileKey
	case c.Field:
		v, _ := row.Fields.Get(c.Key)
		return entity.DisplayValue(v)
	default:
		return baseColumns[c.Key].value(row)
	}
}

// Edit forwards a cell edit when the displayed text differs from the held
// value. Only schema field columns are editable.
func (r *Renderer) Edit(ctx context.Context, fileKey, column, text string) (bool, error) {
	if column == "" {
		return false, common.InputError("field name is required")
	}
	if _, base := baseColumns[column]; base || column == colFallback {
		return false, common.InputError(fmt.Sprintf("column %q is not editable", column))
	}
	if !r.isFieldColumn(column) {
		return false, common.InputError(fmt.Sprintf("column %q is not a visible schema field", column))
	}
	row, ok := r.ws.Table.Row(fileKey)
	if !ok {
		return false, common.NewAppError("NOT_FOUND", fmt.Sprintf("row %q not found", fileKey), common.ErrNotFound)
	}
	current, _ := row.Fields.Get(column)
	if entity.DisplayValue(current) == text {
		return false, nil
	}
	changed, err := r.sink.Edit(ctx, fileKey, column, r.coerce(column, text))
	if err != nil {
		r.logger.Warn("table.edit.failed", "file_key", fileKey, "field", column, "error", err)
		return false, err
	}
	return changed, nil
}

func (r *Renderer) isFieldColumn(key string) bool {
	for _, c := range r.Columns() {
		if c.Field && c.Key == key {
			return true
		}
	}
	return false
}

// coerce turns typed text into the schema type when it parses cleanly.
func (r *Renderer) coerce(field, text string) any {
	schema, _ := r.ws.Schema.Get()
	spec, ok := schema.Field(field)
	if !ok {
		return text
	}
	trimmed := strings.TrimSpace(text)
	switch spec.Type {
	case constants.FieldNumber:
		if f, err := strconv.ParseFloat(trimmed, 64); err == nil {
			return f
		}
	case constants.FieldBoolean:
		if b, err := strconv.ParseBool(trimmed); err == nil {
			return b
		}
	}
	return text
}
