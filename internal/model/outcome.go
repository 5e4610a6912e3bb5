package model

import (
	"fmt"
	"time"
)

// Status is the terminal state of one index entry in a run.
type Status int

const (
	// StatusSkipped means the entry had no URL and no task was scheduled.
	// A skip is not a failure.
	StatusSkipped Status = iota

	// StatusFetchFailed covers transport errors, timeouts, non-2xx responses
	// and bodies that could not be read or decoded.
	StatusFetchFailed

	// StatusExtractFailed means the document was fetched but the content
	// region marker was not found.
	StatusExtractFailed

	// StatusWriteFailed means the artifact could not be written.
	StatusWriteFailed

	// StatusWritten means the artifact was created or overwritten.
	StatusWritten
)

var statusNames = map[Status]string{
	StatusSkipped:       "skipped",
	StatusFetchFailed:   "fetch_failed",
	StatusExtractFailed: "extract_failed",
	StatusWriteFailed:   "write_failed",
	StatusWritten:       "written",
}

// String returns the stable lowercase name used in logs, reports and the database.
func (s Status) String() string {
	if name, ok := statusNames[s]; ok {
		return name
	}
	return "unknown"
}

// ParseStatus is the inverse of Status.String.
func ParseStatus(name string) (Status, error) {
	for status, n := range statusNames {
		if n == name {
			return status, nil
		}
	}
	return 0, fmt.Errorf("unknown status %q", name)
}

// MarshalText implements encoding.TextMarshaler.
func (s Status) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *Status) UnmarshalText(text []byte) error {
	parsed, err := ParseStatus(string(text))
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// IsFailure reports whether the status counts as a failed item.
func (s Status) IsFailure() bool {
	switch s {
	case StatusFetchFailed, StatusExtractFailed, StatusWriteFailed:
		return true
	default:
		return false
	}
}

// Outcome is the result of processing one index entry.
// Exactly one Outcome exists per entry per run.
type Outcome struct {
	// Number is the PEP number.
	Number Number `json:"number"`

	// URL is the document URL; empty for skipped entries.
	URL string `json:"url,omitempty"`

	// Title is copied from the index entry for reporting.
	Title string `json:"title,omitempty"`

	// Path is the artifact path. Set for every scheduled entry, even on failure,
	// so reports can show where the file would have been written.
	Path string `json:"path,omitempty"`

	// Status is the terminal state.
	Status Status `json:"status"`

	// Err is the failure reason. Empty unless Status.IsFailure().
	Err string `json:"error,omitempty"`

	// Bytes is the size of the written artifact.
	Bytes int64 `json:"bytes,omitempty"`

	// Digest is the hex BLAKE2b-256 digest of the written artifact.
	Digest string `json:"digest,omitempty"`

	// Changed reports whether Digest differs from the previously recorded digest.
	// Nil when there is no previous record to compare with.
	Changed *bool `json:"changed,omitempty"`

	// Duration is the wall time spent on the entry.
	Duration time.Duration `json:"duration_ns"`
}

// Failed builds a failure outcome from an error.
func Failed(number Number, url, path string, status Status, err error) Outcome {
	o := Outcome{
		Number: number,
		URL:    url,
		Path:   path,
		Status: status,
	}
	if err != nil {
		o.Err = err.Error()
	}
	return o
}

// Skipped builds the outcome for an entry without a URL.
func Skipped(entry Entry) Outcome {
	return Outcome{
		Number: entry.Number,
		Title:  entry.Title,
		Status: StatusSkipped,
	}
}
