package report

import (
	"fmt"
	"io"
	"strings"

	"github.com/nao1215/pepfetch/internal/model"
)

// SimpleWriter outputs human-readable text reports for terminal display.
type SimpleWriter struct {
	baseWriter

	// verbose lists every outcome, not only failures.
	verbose bool
}

// SimpleWriterOption configures a SimpleWriter.
type SimpleWriterOption func(*SimpleWriter)

// WithVerbose enables listing of every outcome.
func WithVerbose(verbose bool) SimpleWriterOption {
	return func(w *SimpleWriter) {
		w.verbose = verbose
	}
}

// NewSimpleWriter creates a SimpleWriter that outputs to the given writer.
func NewSimpleWriter(output io.Writer, opts ...SimpleWriterOption) *SimpleWriter {
	w := &SimpleWriter{
		baseWriter: newBaseWriter(output),
	}

	for _, opt := range opts {
		opt(w)
	}

	return w
}

// Write outputs the summary in human-readable format.
func (w *SimpleWriter) Write(summary *model.Summary) (int, error) {
	var sb strings.Builder

	w.writeHeader(&sb, summary)
	w.writeCounts(&sb, summary)
	w.writeFailures(&sb, summary)
	if w.verbose {
		w.writeOutcomes(&sb, summary)
	}
	sb.WriteString(strings.Repeat("=", 70))
	sb.WriteString("\n")

	return io.WriteString(w.output, sb.String())
}

// writeHeader writes the run information.
func (w *SimpleWriter) writeHeader(sb *strings.Builder, summary *model.Summary) {
	sb.WriteString("\n")
	sb.WriteString(strings.Repeat("=", 70))
	sb.WriteString("\n")
	sb.WriteString("                          PEPFETCH SUMMARY\n")
	sb.WriteString(strings.Repeat("=", 70))
	sb.WriteString("\n\n")

	if summary.RunID != 0 {
		fmt.Fprintf(sb, "Run:        #%d\n", summary.RunID)
	}
	fmt.Fprintf(sb, "Index:      %s\n", summary.IndexURL)
	fmt.Fprintf(sb, "Output Dir: %s\n", summary.OutputDir)
	fmt.Fprintf(sb, "Started:    %s\n", summary.StartedAt.Format("2006-01-02 15:04:05 MST"))
	fmt.Fprintf(sb, "Elapsed:    %s\n", formatDuration(summary.Elapsed()))
	sb.WriteString("\n")
}

// writeCounts writes one line per status.
func (w *SimpleWriter) writeCounts(sb *strings.Builder, summary *model.Summary) {
	sb.WriteString(strings.Repeat("-", 70))
	sb.WriteString("\n")
	sb.WriteString("RESULTS\n")
	sb.WriteString(strings.Repeat("-", 70))
	sb.WriteString("\n\n")

	for _, status := range displayStatuses {
		fmt.Fprintf(sb, "  %-16s %d\n", statusLabel(status)+":", summary.Count(status))
	}
	sb.WriteString("\n")
	fmt.Fprintf(sb, "  %-16s %d\n", "Total:", summary.Total())
	sb.WriteString("\n")
}

// writeFailures lists every failed entry with its reason.
func (w *SimpleWriter) writeFailures(sb *strings.Builder, summary *model.Summary) {
	failures := summary.Failures()
	if len(failures) == 0 {
		return
	}

	sb.WriteString(strings.Repeat("-", 70))
	sb.WriteString("\n")
	sb.WriteString("FAILURES\n")
	sb.WriteString(strings.Repeat("-", 70))
	sb.WriteString("\n\n")

	for _, o := range failures {
		fmt.Fprintf(sb, "  [!] PEP %s (%s)\n", o.Number, statusLabel(o.Status))
		if o.URL != "" {
			fmt.Fprintf(sb, "      URL:   %s\n", o.URL)
		}
		if o.Err != "" {
			fmt.Fprintf(sb, "      Error: %s\n", o.Err)
		}
	}
	sb.WriteString("\n")
}

// writeOutcomes lists every outcome.
func (w *SimpleWriter) writeOutcomes(sb *strings.Builder, summary *model.Summary) {
	sb.WriteString(strings.Repeat("-", 70))
	sb.WriteString("\n")
	sb.WriteString("ALL ENTRIES\n")
	sb.WriteString(strings.Repeat("-", 70))
	sb.WriteString("\n\n")

	for _, o := range summary.Outcomes {
		line := fmt.Sprintf("  PEP %-5s %-15s", o.Number, o.Status)
		if o.Status == model.StatusWritten {
			line += fmt.Sprintf(" %s (%d bytes)", o.Path, o.Bytes)
			if o.Changed != nil && *o.Changed {
				line += " changed"
			}
		}
		sb.WriteString(strings.TrimRight(line, " "))
		sb.WriteString("\n")
	}
	sb.WriteString("\n")
}
