// Package store persists extracted PEP text as output artifacts.
//
// Each PEP maps to exactly one file, <dir>/pep-NNNN.txt. Writes go to a
// temporary file in the same directory that is renamed over the target,
// so a failed write never leaves a partial or truncated artifact and a
// reader never observes one mid-write.
package store
