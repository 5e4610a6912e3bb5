package report

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/nao1215/pepfetch/internal/model"
)

// Writer defines the interface for report output.
type Writer interface {
	// Write renders the summary to the configured destination.
	// Returns the number of bytes written and any error encountered.
	Write(summary *model.Summary) (int, error)
}

// MultiWriter writes to multiple Writers in order.
type MultiWriter struct {
	writers []Writer
}

// NewMultiWriter creates a Writer that writes to all provided Writers.
func NewMultiWriter(writers ...Writer) *MultiWriter {
	return &MultiWriter{writers: writers}
}

// Write outputs the summary to all configured Writers.
// Stops on first error encountered.
func (m *MultiWriter) Write(summary *model.Summary) (int, error) {
	var total int
	for _, w := range m.writers {
		n, err := w.Write(summary)
		total += n
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

// Format selects a report format.
type Format int

const (
	// FormatText is the human-readable default.
	FormatText Format = iota
	// FormatJSON is indented JSON.
	FormatJSON
	// FormatMarkdown is GitHub-flavored Markdown.
	FormatMarkdown
)

// String returns the format name.
func (f Format) String() string {
	switch f {
	case FormatText:
		return "text"
	case FormatJSON:
		return "json"
	case FormatMarkdown:
		return "markdown"
	default:
		return "unknown"
	}
}

// New returns the Writer for a format.
func New(output io.Writer, format Format) (Writer, error) {
	switch format {
	case FormatText:
		return NewSimpleWriter(output), nil
	case FormatJSON:
		return NewJSONWriter(output, WithPrettyPrint()), nil
	case FormatMarkdown:
		return NewMarkdownWriter(output), nil
	default:
		return nil, fmt.Errorf("unsupported report format %d", int(format))
	}
}

// CreateFile creates (or truncates) a report file, creating parent
// directories as needed.
func CreateFile(path string) (*os.File, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return nil, fmt.Errorf("failed to create report directory: %w", err)
		}
	}
	f, err := os.Create(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("failed to create report file: %w", err)
	}
	return f, nil
}

// baseWriter provides common functionality for report writers.
type baseWriter struct {
	output io.Writer
}

// newBaseWriter creates a baseWriter with the given output destination.
func newBaseWriter(output io.Writer) baseWriter {
	return baseWriter{output: output}
}

// statusLabel turns "fetch_failed" into "Fetch Failed".
func statusLabel(s model.Status) string {
	return cases.Title(language.English).String(strings.ReplaceAll(s.String(), "_", " "))
}

// displayStatuses is the order statuses appear in reports.
var displayStatuses = []model.Status{
	model.StatusWritten,
	model.StatusSkipped,
	model.StatusFetchFailed,
	model.StatusExtractFailed,
	model.StatusWriteFailed,
}

// formatDuration rounds durations for display.
func formatDuration(d time.Duration) string {
	if d < time.Second {
		return d.Round(time.Millisecond).String()
	}
	return d.Round(10 * time.Millisecond).String()
}
