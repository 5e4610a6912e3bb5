package model

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ArtifactPrefix and ArtifactExt frame the artifact file name of every PEP.
const (
	ArtifactPrefix = "pep-"
	ArtifactExt    = ".txt"
)

// ErrInvalidNumber is returned when a PEP number cannot be parsed or is negative.
var ErrInvalidNumber = errors.New("invalid PEP number")

// Number is a PEP number. PEP numbers are non-negative.
type Number int

// ParseNumber parses a decimal PEP number as it appears in index keys.
// Surrounding whitespace is tolerated; signs, fractions and negative values are not.
func ParseNumber(s string) (Number, error) {
	trimmed := strings.TrimSpace(s)
	if trimmed == "" || trimmed[0] == '+' || trimmed[0] == '-' {
		return 0, fmt.Errorf("%w: %q", ErrInvalidNumber, s)
	}
	n, err := strconv.Atoi(trimmed)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidNumber, s)
	}
	return Number(n), nil
}

// String returns the decimal representation without padding.
func (n Number) String() string {
	return strconv.Itoa(int(n))
}

// Padded returns the number zero-padded to at least four digits.
// Numbers wider than four digits are never truncated, which keeps the
// mapping from number to file name injective.
func (n Number) Padded() string {
	return fmt.Sprintf("%04d", int(n))
}

// FileName returns the artifact file name for this PEP, e.g. "pep-0008.txt".
func (n Number) FileName() string {
	return ArtifactPrefix + n.Padded() + ArtifactExt
}

// Entry is one record of the PEP index.
//
// Only URL drives behavior; the remaining fields are carried for reporting.
// Fields the index publishes but pepfetch does not use are ignored on decode.
type Entry struct {
	// Number is the PEP number, taken from the index key.
	Number Number `json:"number"`

	// URL is the HTML document URL. Empty means the entry is skipped.
	URL string `json:"url"`

	// Title is the PEP title.
	Title string `json:"title,omitempty"`

	// Status is the PEP status (Draft, Accepted, Final, ...).
	Status string `json:"status,omitempty"`

	// Type is the PEP type (Standards Track, Informational, Process).
	Type string `json:"type,omitempty"`

	// Authors is the author list as published by the index.
	Authors string `json:"authors,omitempty"`

	// Created is the creation date as published by the index.
	Created string `json:"created,omitempty"`
}

// HasURL reports whether the entry carries a usable document URL.
func (e Entry) HasURL() bool {
	return strings.TrimSpace(e.URL) != ""
}
