// Package fetcher downloads PEP documents concurrently and turns each one
// into an output artifact.
//
// FetchAll schedules one task per index entry that has a URL. Entries
// without a URL are recorded as skipped and never scheduled. Every task
// fetches the document, extracts the content region and writes it
// through the store; any failure is confined to that task's Outcome, so
// one bad PEP never aborts the batch. All tasks share one HTTP session.
//
// Each entry follows the same lifecycle:
//
//	scheduled -> fetching -> fetch_failed | extract_failed | write_failed | written
//
// There are no retries.
package fetcher
