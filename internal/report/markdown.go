package report

import (
	"io"
	"strconv"

	"github.com/nao1215/markdown"
	"github.com/nao1215/markdown/mermaid/piechart"

	"github.com/nao1215/pepfetch/internal/model"
)

// MarkdownWriter outputs summaries in Markdown format for documentation
// and sharing.
type MarkdownWriter struct {
	baseWriter
}

// NewMarkdownWriter creates a MarkdownWriter that outputs to the given writer.
func NewMarkdownWriter(output io.Writer) *MarkdownWriter {
	return &MarkdownWriter{
		baseWriter: newBaseWriter(output),
	}
}

// Write outputs the summary in Markdown format.
func (w *MarkdownWriter) Write(summary *model.Summary) (int, error) {
	md := markdown.NewMarkdown(w.output)

	w.writeHeader(md, summary)
	w.writeResults(md, summary)
	w.writeFailures(md, summary)
	w.writeFooter(md)

	return len(md.String()), md.Build()
}

// writeHeader writes the run information table.
func (w *MarkdownWriter) writeHeader(md *markdown.Markdown, summary *model.Summary) {
	md.H1("PEP Fetch Summary")
	md.PlainText("")

	rows := [][]string{
		{"Index", "`" + summary.IndexURL + "`"},
		{"Output Directory", "`" + summary.OutputDir + "`"},
		{"Started", summary.StartedAt.Format("2006-01-02 15:04:05 MST")},
		{"Elapsed", formatDuration(summary.Elapsed())},
	}
	if summary.RunID != 0 {
		rows = append([][]string{{"Run", "#" + strconv.FormatInt(summary.RunID, 10)}}, rows...)
	}

	md.Table(markdown.TableSet{
		Header: []string{"Property", "Value"},
		Rows:   rows,
	})
	md.PlainText("")
}

// writeResults writes the per-status counts, a pie chart and an alert.
func (w *MarkdownWriter) writeResults(md *markdown.Markdown, summary *model.Summary) {
	md.H2("Results")
	md.PlainText("")

	rows := make([][]string, 0, len(displayStatuses)+1)
	for _, status := range displayStatuses {
		rows = append(rows, []string{statusLabel(status), strconv.Itoa(summary.Count(status))})
	}
	rows = append(rows, []string{"**Total**", "**" + strconv.Itoa(summary.Total()) + "**"})

	md.Table(markdown.TableSet{
		Header: []string{"Status", "Count"},
		Rows:   rows,
	})
	md.PlainText("")

	if summary.Total() > 0 {
		w.writePieChart(md, summary)
	}
	w.writeAlert(md, summary)
}

// writePieChart writes a mermaid pie chart of the status distribution.
func (w *MarkdownWriter) writePieChart(md *markdown.Markdown, summary *model.Summary) {
	chart := piechart.NewPieChart(
		io.Discard,
		piechart.WithTitle("Outcome Distribution"),
		piechart.WithShowData(true),
	)

	for _, status := range displayStatuses {
		if n := summary.Count(status); n > 0 {
			chart.LabelAndIntValue(statusLabel(status), uint64(n))
		}
	}

	md.PlainText("")
	md.CodeBlocks(markdown.SyntaxHighlightMermaid, chart.String())
	md.PlainText("")
}

// writeAlert writes an alert matching the run result.
func (w *MarkdownWriter) writeAlert(md *markdown.Markdown, summary *model.Summary) {
	switch {
	case summary.Total() > 0 && summary.Failed() == summary.Total():
		md.Cautionf("Every entry failed. %d PEP(s) could not be written.", summary.Failed())
	case summary.HasFailures():
		md.Warningf("%d of %d PEP(s) failed. Earlier copies of those files were left untouched.",
			summary.Failed(), summary.Total())
	case summary.Total() == 0:
		md.Note("The index contained no entries.")
	default:
		md.Tip("All PEPs with a URL were written.")
	}
	md.PlainText("")
}

// writeFailures writes a table of failed entries.
func (w *MarkdownWriter) writeFailures(md *markdown.Markdown, summary *model.Summary) {
	failures := summary.Failures()
	if len(failures) == 0 {
		return
	}

	md.H2("Failures")
	md.PlainText("")

	rows := make([][]string, len(failures))
	for i, o := range failures {
		reason := o.Err
		if reason == "" {
			reason = "-"
		}
		rows[i] = []string{
			o.Number.String(),
			statusLabel(o.Status),
			truncateString(o.URL, 60),
			truncateString(reason, 80),
		}
	}

	md.Table(markdown.TableSet{
		Header: []string{"PEP", "Status", "URL", "Reason"},
		Rows:   rows,
	})
	md.PlainText("")

	for _, o := range failures {
		if len(o.Err) > 80 {
			md.Details("PEP "+o.Number.String(), o.Err)
		}
	}
	md.PlainText("")
}

// writeFooter writes the report footer.
func (w *MarkdownWriter) writeFooter(md *markdown.Markdown) {
	md.HorizontalRule()
	md.PlainText("")
	md.PlainTextf("*Report generated by [pepfetch](https://github.com/nao1215/pepfetch)*")
}

// truncateString truncates a string to maxLen characters with ellipsis.
func truncateString(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return s[:maxLen]
	}
	return s[:maxLen-3] + "..."
}
