package entity

// Upload is one file queued for processing.
type Upload struct {
	Name string
	Data []byte
}

// ProcessConfig is sent with every split-init request.
type ProcessConfig struct {
	Engine    string
	Languages []string
}

// InitResult is the split-init response.
type InitResult struct {
	JobID      string   `json:"jobId"`
	TotalPages int      `json:"totalPages"`
	SplitNotes []string `json:"splitNotes,omitempty"`
}

// Summary holds aggregate stats over the current table.
type Summary struct {
	TotalFiles        int     `json:"totalFiles"`
	AverageConfidence float64 `json:"averageConfidence"`
	WarningsCount     int     `json:"warningsCount"`
}

// Meta describes how the current table was produced.
type Meta struct {
	TotalFiles      int      `json:"total_files"`
	Language        string   `json:"language,omitempty"`
	SchemaVersion   string   `json:"schema_version,omitempty"`
	ParsingStrategy string   `json:"parsing_strategy,omitempty"`
	SplitNotes      []string `json:"split_notes,omitempty"`
	OCREngine       string   `json:"ocr_engine,omitempty"`
	OCRLanguages    []string `json:"ocr_languages,omitempty"`
}

// PreviewCapability says whether the server can render page images.
type PreviewCapability struct {
	Available bool    `json:"available"`
	Error     *string `json:"error"`
}

// StepResult is the split-next response. Done with a nil Table means the
// job cursor was already exhausted and nothing new was produced.
type StepResult struct {
	Done       bool               `json:"done"`
	Table      Snapshot           `json:"table"`
	Summary    *Summary           `json:"summary,omitempty"`
	Meta       *Meta              `json:"meta,omitempty"`
	PDFPreview *PreviewCapability `json:"pdfPreview,omitempty"`
	LatestRow  *Row               `json:"latestRow,omitempty"`
	PageLabel  string             `json:"pageLabel,omitempty"`
	PageNumber int                `json:"pageNumber,omitempty"`
	TotalPages int                `json:"totalPages,omitempty"`
}

// HasPayload reports whether the step carried a table or a latest row.
func (r StepResult) HasPayload() bool {
	return r.Table != nil || r.LatestRow != nil
}

// Selection identifies the row and page the preview should show.
type Selection struct {
	FileKey string
	Page    int
}

// IsZero reports whether nothing is selected.
func (s Selection) IsZero() bool {
	return s.FileKey == ""
}

// Summarize computes the summary stats for rows the same way the server does.
func Summarize(rows Snapshot) Summary {
	s := Summary{TotalFiles: len(rows)}
	if len(rows) == 0 {
		return s
	}
	var total float64
	for _, r := range rows {
		total += r.Confidence
		if len(r.Warnings) > 0 {
			s.WarningsCount++
		}
	}
	s.AverageConfidence = total / float64(len(rows))
	return s
}
