// Package report renders run summaries.
//
// Three formats are provided:
//   - SimpleWriter: human-readable text for terminal display
//   - JSONWriter: structured JSON for tool integration
//   - MarkdownWriter: Markdown with tables and a Mermaid pie chart
//
// Writers implement the Writer interface and can be combined with
// MultiWriter. The summary data itself lives in the model package.
package report
