// Package export renders a program's scoreboard to HTML, PDF, or CSV.
package export

import (
	"errors"
	"time"
)

// Format represents the export output format
type Format string

const (
	FormatHTML Format = "html"
	FormatPDF  Format = "pdf"
	FormatCSV  Format = "csv"
)

// LabelTotal is one aggregated metric line.
type LabelTotal struct {
	Label string
	Value int
}

// CategoryTotals groups aggregated metrics under one category heading.
type CategoryTotals struct {
	Name   string
	Totals []LabelTotal
}

// InitiativeSummary is one initiative on the exported scoreboard.
type InitiativeSummary struct {
	Name        string
	Description string
	ImageURL    string
	Categories  []CategoryTotals
}

// ScoreboardData holds everything the templates need.
type ScoreboardData struct {
	ProgramName string
	GeneratedAt time.Time
	Initiatives []InitiativeSummary
}

// Result contains the export output
type Result struct {
	Data     []byte
	Filename string
	MimeType string
}

// ErrPDFDependencyMissing indicates PDF export runtime dependencies are
// unavailable.
var ErrPDFDependencyMissing = errors.New("export pdf dependency missing")

// ErrUnsupportedFormat indicates an unknown export format.
var ErrUnsupportedFormat = errors.New("unsupported export format")
