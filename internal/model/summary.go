package model

import (
	"sort"
	"time"
)

// Summary aggregates the outcomes of one run.
type Summary struct {
	// RunID is the history database identifier of the run. Zero when history is disabled.
	RunID int64 `json:"run_id,omitempty"`

	// IndexURL is the index endpoint the run was driven from.
	IndexURL string `json:"index_url"`

	// OutputDir is the directory artifacts were written to.
	OutputDir string `json:"output_dir"`

	// StartedAt and FinishedAt bound the batch.
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`

	// Outcomes holds one outcome per index entry, sorted by PEP number.
	Outcomes []Outcome `json:"outcomes"`
}

// NewSummary creates an empty summary stamped with the current time.
func NewSummary(indexURL, outputDir string) *Summary {
	return &Summary{
		IndexURL:  indexURL,
		OutputDir: outputDir,
		StartedAt: time.Now(),
		Outcomes:  make([]Outcome, 0),
	}
}

// Add appends an outcome.
func (s *Summary) Add(o Outcome) {
	s.Outcomes = append(s.Outcomes, o)
}

// Finish sorts the outcomes by PEP number and stamps the finish time.
func (s *Summary) Finish() {
	sort.Slice(s.Outcomes, func(i, j int) bool {
		return s.Outcomes[i].Number < s.Outcomes[j].Number
	})
	s.FinishedAt = time.Now()
}

// Elapsed returns the batch duration, or zero if the run has not finished.
func (s *Summary) Elapsed() time.Duration {
	if s.FinishedAt.IsZero() {
		return 0
	}
	return s.FinishedAt.Sub(s.StartedAt)
}

// Count returns the number of outcomes with the given status.
func (s *Summary) Count(status Status) int {
	n := 0
	for _, o := range s.Outcomes {
		if o.Status == status {
			n++
		}
	}
	return n
}

// Written returns the number of artifacts written.
func (s *Summary) Written() int {
	return s.Count(StatusWritten)
}

// Skipped returns the number of entries skipped for lack of a URL.
func (s *Summary) Skipped() int {
	return s.Count(StatusSkipped)
}

// Failed returns the number of failed entries of any failure kind.
func (s *Summary) Failed() int {
	n := 0
	for _, o := range s.Outcomes {
		if o.Status.IsFailure() {
			n++
		}
	}
	return n
}

// Total returns the number of outcomes.
func (s *Summary) Total() int {
	return len(s.Outcomes)
}

// HasFailures reports whether any entry failed.
func (s *Summary) HasFailures() bool {
	return s.Failed() > 0
}

// Filter returns the outcomes matching the predicate, in order.
func (s *Summary) Filter(keep func(Outcome) bool) []Outcome {
	var out []Outcome
	for _, o := range s.Outcomes {
		if keep(o) {
			out = append(out, o)
		}
	}
	return out
}

// Failures returns the failed outcomes, in order.
func (s *Summary) Failures() []Outcome {
	return s.Filter(func(o Outcome) bool { return o.Status.IsFailure() })
}
