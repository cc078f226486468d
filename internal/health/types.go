package health

import (
	"context"
	"time"
)

// Category classifies a code issue
type Category string

const (
	CategoryUnusedImport Category = "unused_import"
	CategoryDeadCode     Category = "dead_code"
	CategoryPerformance  Category = "performance"
	CategorySecurity     Category = "security"
)

// Severity of an issue
type Severity string

const (
	SeverityLow    Severity = "low"
	SeverityMedium Severity = "medium"
	SeverityHigh   Severity = "high"
)

// CodeIssue is one finding at a specific line of a file.
type CodeIssue struct {
	// FilePath is relative to the scan root, with forward slashes
	FilePath string `json:"file"`
	// Line is 1-based
	Line     int      `json:"line"`
	Category Category `json:"category"`
	Severity Severity `json:"severity"`

	Description string `json:"description"`

	// Evidence carries the matched text and check-specific details
	Evidence map[string]any `json:"evidence,omitempty"`
}

// SourceFile is a fully-read file handed to each FileCheck.
type SourceFile struct {
	// Path relative to the scan root
	Path string
	// Ext is the lower-case extension including the dot
	Ext   string
	Lines []string
	// ModulePath is the Go module the scan root belongs to ("" if none)
	ModulePath string
}

// IsGo reports whether the file is Go source
func (f SourceFile) IsGo() bool {
	return f.Ext == ".go"
}

// FileCheck inspects one file and reports issues.
type FileCheck interface {
	// Name returns the unique identifier for this check.
	Name() string

	// Check returns the issues found in file. It must not retain file.
	Check(ctx context.Context, file SourceFile) []CodeIssue
}

// ScanStats tracks statistics from a scan.
type ScanStats struct {
	FilesScanned int           `json:"files_scanned"`
	FilesSkipped int           `json:"files_skipped"`
	IssuesFound  int           `json:"issues_found"`
	Truncated    bool          `json:"truncated"`
	Duration     time.Duration `json:"duration"`
}

// ScanResult is the output of one scan.
type ScanResult struct {
	Issues    []CodeIssue `json:"issues"`
	Stats     ScanStats   `json:"stats"`
	CheckedAt time.Time   `json:"checked_at"`
}
