package table

import (
	"fmt"
	"strings"

	"github.com/joseph-ayodele/docflow/internal/entity"
)

// Base column keys.
const (
	ColFileName     = "fileName"
	ColPageLabel    = "pageLabel"
	ColConfidence   = "confidence"
	ColWarnings     = "warnings"
	ColOriginalName = "originalName"
	ColFilePath     = "filePath"

	colFallback = "fileKey"
)

type baseColumn struct {
	title string
	value func(entity.Row) string
}

var baseColumns = map[string]baseColumn{
	ColFileName:     {"File", func(r entity.Row) string { return r.FileName }},
	ColPageLabel:    {"Page", func(r entity.Row) string { return r.Label() }},
	ColConfidence:   {"Confidence", confidenceText},
	ColWarnings:     {"Warnings", func(r entity.Row) string { return strings.Join(r.Warnings, "; ") }},
	ColOriginalName: {"Original name", func(r entity.Row) string { return r.OriginalName }},
	ColFilePath:     {"Path", func(r entity.Row) string { return r.FilePath }},
}

// BaseColumnKeys lists every base column in display order.
func BaseColumnKeys() []string {
	return []string{ColFileName, ColPageLabel, ColConfidence, ColWarnings, ColOriginalName, ColFilePath}
}

func confidenceText(r entity.Row) string {
	if r.ConfidenceDisplay != "" {
		return r.ConfidenceDisplay
	}
	return fmt.Sprintf("%.1f%%", r.Confidence*100)
}

// Visibility picks the base columns to show and the schema fields to hide.
type Visibility struct {
	BaseColumns  []string
	HiddenFields []string
}

// DefaultVisibility shows the file, page, confidence and warnings columns.
func DefaultVisibility() Visibility {
	return Visibility{BaseColumns: []string{ColFileName, ColPageLabel, ColConfidence, ColWarnings}}
}

func (v Visibility) hidden(field string) bool {
	for _, h := range v.HiddenFields {
		if h == field {
			return true
		}
	}
	return false
}

// Column is one rendered column. Field columns are editable.
type Column struct {
	Key      string
	Title    string
	Field    bool
	Width    float64
	Fallback bool
}
