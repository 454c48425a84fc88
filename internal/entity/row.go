package entity

import "fmt"

// Row is one extracted record, keyed by FileKey.
type Row struct {
	FileKey           string   `json:"fileKey"`
	FileName          string   `json:"fileName"`
	FilePath          string   `json:"filePath"`
	Confidence        float64  `json:"confidence"`
	ConfidenceDisplay string   `json:"confidenceDisplay,omitempty"`
	Warnings          []string `json:"warnings"`
	Fields            Fields   `json:"fields"`
	PageCount         int      `json:"pageCount"`
	OriginalName      string   `json:"originalName,omitempty"`
	PageNumber        int      `json:"pageNumber"`
	TotalPages        int      `json:"totalPages"`
	PageLabel         string   `json:"pageLabel,omitempty"`
}

// Clone returns a deep copy of r.
func (r Row) Clone() Row {
	out := r
	out.Warnings = append([]string(nil), r.Warnings...)
	out.Fields = r.Fields.Clone()
	return out
}

// Pages is the number of previewable pages, never less than one.
func (r Row) Pages() int {
	if r.PageCount < 1 {
		return 1
	}
	return r.PageCount
}

// Label returns the page label, deriving it when the server sent none.
func (r Row) Label() string {
	if r.PageLabel != "" {
		return r.PageLabel
	}
	page, total := r.PageNumber, r.TotalPages
	if page < 1 {
		page = 1
	}
	if total < page {
		total = page
	}
	return fmt.Sprintf("Page %d/%d", page, total)
}

// Snapshot is the full ordered table at one point in time.
type Snapshot []Row

// Clone deep copies every row.
func (s Snapshot) Clone() Snapshot {
	if s == nil {
		return nil
	}
	out := make(Snapshot, len(s))
	for i, r := range s {
		out[i] = r.Clone()
	}
	return out
}

// Index returns the position of fileKey, or -1.
func (s Snapshot) Index(fileKey string) int {
	for i := range s {
		if s[i].FileKey == fileKey {
			return i
		}
	}
	return -1
}

// Keys returns the file keys in table order.
func (s Snapshot) Keys() []string {
	keys := make([]string, len(s))
	for i := range s {
		keys[i] = s[i].FileKey
	}
	return keys
}
