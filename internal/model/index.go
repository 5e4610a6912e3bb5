package model

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
)

// ErrMalformedEntry is returned when an index value is not a JSON object.
var ErrMalformedEntry = errors.New("index entry is not an object")

// Index maps PEP numbers to their index entries.
// It is read once per run and never mutated afterwards.
type Index map[Number]Entry

// entryWire mirrors the per-PEP object of the index response.
// URL is a pointer so that an explicit null and a missing field decode the same way.
// The remaining fields only feed reports and are kept raw so that a value of
// an unexpected type never fails the decode.
type entryWire struct {
	URL     *string         `json:"url"`
	Title   json.RawMessage `json:"title"`
	Status  json.RawMessage `json:"status"`
	Type    json.RawMessage `json:"type"`
	Authors json.RawMessage `json:"authors"`
	Created json.RawMessage `json:"created"`
}

// metadataString returns raw as a string when it is a JSON string, and ""
// for anything else.
func metadataString(raw json.RawMessage) string {
	var s string
	if len(raw) == 0 || json.Unmarshal(raw, &s) != nil {
		return ""
	}
	return s
}

// UnmarshalJSON decodes the index response: an object keyed by decimal PEP
// numbers whose values are objects with an optional "url" field.
//
// A key that is not a non-negative integer, a value that is not an object,
// or a "url" that is not a string fails the whole decode. Metadata fields
// of another type are dropped. A missing or null "url" is not an error;
// the entry is kept with an empty URL and skipped by the fetcher.
func (idx *Index) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if raw == nil {
		return fmt.Errorf("%w: top-level value is null", ErrMalformedEntry)
	}

	out := make(Index, len(raw))
	for key, value := range raw {
		number, err := ParseNumber(key)
		if err != nil {
			return err
		}

		trimmed := bytes.TrimSpace(value)
		if len(trimmed) == 0 || trimmed[0] != '{' {
			return fmt.Errorf("%w: key %q", ErrMalformedEntry, key)
		}

		var wire entryWire
		if err := json.Unmarshal(trimmed, &wire); err != nil {
			return fmt.Errorf("decode entry %q: %w", key, err)
		}

		entry := Entry{
			Number:  number,
			Title:   metadataString(wire.Title),
			Status:  metadataString(wire.Status),
			Type:    metadataString(wire.Type),
			Authors: metadataString(wire.Authors),
			Created: metadataString(wire.Created),
		}
		if wire.URL != nil {
			entry.URL = *wire.URL
		}
		out[number] = entry
	}

	*idx = out
	return nil
}

// Numbers returns the PEP numbers of the index in ascending order.
func (idx Index) Numbers() []Number {
	numbers := make([]Number, 0, len(idx))
	for n := range idx {
		numbers = append(numbers, n)
	}
	sort.Slice(numbers, func(i, j int) bool { return numbers[i] < numbers[j] })
	return numbers
}

// Select returns the sub-index containing only the given numbers.
// Numbers not present in the index are returned separately so callers can report them.
// An empty selection returns the full index.
func (idx Index) Select(numbers ...Number) (Index, []Number) {
	if len(numbers) == 0 {
		return idx, nil
	}

	selected := make(Index, len(numbers))
	var missing []Number
	for _, n := range numbers {
		entry, ok := idx[n]
		if !ok {
			missing = append(missing, n)
			continue
		}
		selected[n] = entry
	}
	return selected, missing
}

// WithURL counts the entries that carry a usable URL.
func (idx Index) WithURL() int {
	count := 0
	for _, entry := range idx {
		if entry.HasURL() {
			count++
		}
	}
	return count
}
