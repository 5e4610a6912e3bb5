// Package model defines the data structures shared by the pepfetch packages.
//
// This package contains the following main types:
//   - Number: a PEP number and the artifact file name derived from it
//   - Entry / Index: the decoded PEP index returned by the index endpoint
//   - Outcome: the result of processing one index entry
//   - Summary: the aggregate of all outcomes for one run
//
// The index, fetcher, report and database packages all exchange these
// types, so they live here to keep the import graph acyclic.
package model
