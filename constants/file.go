package constants

import "strings"

// AllowedExtensions holds the upload extensions the document service accepts.
var AllowedExtensions = map[string]struct{}{
	"pdf": {},
}

// NormalizeExt lowercases and trims the dot from a file extension.
func NormalizeExt(ext string) string {
	return strings.ToLower(strings.TrimPrefix(ext, "."))
}

// IsAllowedExt reports whether a file with this extension may be submitted.
func IsAllowedExt(ext string) bool {
	_, ok := AllowedExtensions[NormalizeExt(ext)]
	return ok
}

// ExportFormat names a download produced after pending edits are flushed.
type ExportFormat string

const (
	ExportExcel     ExportFormat = "excel"
	ExportCSV       ExportFormat = "csv"
	ExportJSON      ExportFormat = "json"
	ExportLocalXLSX ExportFormat = "local-xlsx"
)

// ExportFormats lists every supported export format.
func ExportFormats() []string {
	return []string{string(ExportExcel), string(ExportCSV), string(ExportJSON), string(ExportLocalXLSX)}
}

// FileExt returns the extension written for a format.
func (f ExportFormat) FileExt() string {
	switch f {
	case ExportCSV:
		return "csv"
	case ExportJSON:
		return "json"
	default:
		return "xlsx"
	}
}
