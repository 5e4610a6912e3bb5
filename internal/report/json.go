package report

import (
	"encoding/json"
	"io"

	"github.com/nao1215/pepfetch/internal/model"
)

// JSONWriter outputs summaries in JSON format for tool integration.
type JSONWriter struct {
	baseWriter

	// indent enables pretty-printed JSON output.
	indent bool

	// indentPrefix is the prefix for each line in indented output.
	indentPrefix string

	// indentString is the indentation string (typically "  " or "\t").
	indentString string
}

// JSONWriterOption configures a JSONWriter.
type JSONWriterOption func(*JSONWriter)

// WithIndent enables pretty-printed JSON output.
func WithIndent(prefix, indent string) JSONWriterOption {
	return func(w *JSONWriter) {
		w.indent = true
		w.indentPrefix = prefix
		w.indentString = indent
	}
}

// WithPrettyPrint is shorthand for WithIndent("", "  ").
func WithPrettyPrint() JSONWriterOption {
	return WithIndent("", "  ")
}

// NewJSONWriter creates a JSONWriter that outputs to the given writer.
func NewJSONWriter(output io.Writer, opts ...JSONWriterOption) *JSONWriter {
	w := &JSONWriter{
		baseWriter: newBaseWriter(output),
	}

	for _, opt := range opts {
		opt(w)
	}

	return w
}

// jsonCounts is the counters block of a JSON report.
type jsonCounts struct {
	Total         int `json:"total"`
	Written       int `json:"written"`
	Skipped       int `json:"skipped"`
	Failed        int `json:"failed"`
	FetchFailed   int `json:"fetch_failed"`
	ExtractFailed int `json:"extract_failed"`
	WriteFailed   int `json:"write_failed"`
}

// JSONReport wraps a summary with precomputed counters so consumers
// do not have to tally outcomes themselves.
type JSONReport struct {
	*model.Summary

	ElapsedMS int64      `json:"elapsed_ms"`
	Counts    jsonCounts `json:"counts"`
}

// NewJSONReport builds the JSON document for a summary.
func NewJSONReport(summary *model.Summary) *JSONReport {
	return &JSONReport{
		Summary:   summary,
		ElapsedMS: summary.Elapsed().Milliseconds(),
		Counts: jsonCounts{
			Total:         summary.Total(),
			Written:       summary.Written(),
			Skipped:       summary.Skipped(),
			Failed:        summary.Failed(),
			FetchFailed:   summary.Count(model.StatusFetchFailed),
			ExtractFailed: summary.Count(model.StatusExtractFailed),
			WriteFailed:   summary.Count(model.StatusWriteFailed),
		},
	}
}

// Write outputs the summary in JSON format.
func (w *JSONWriter) Write(summary *model.Summary) (int, error) {
	return w.writeJSON(NewJSONReport(summary))
}

// writeJSON marshals the given value to JSON and writes it to the output.
func (w *JSONWriter) writeJSON(v any) (int, error) {
	var data []byte
	var err error

	if w.indent {
		data, err = json.MarshalIndent(v, w.indentPrefix, w.indentString)
	} else {
		data, err = json.Marshal(v)
	}

	if err != nil {
		return 0, err
	}

	// Trailing newline for terminal output
	data = append(data, '\n')

	return w.output.Write(data)
}
