// Package database provides SQLite-based run history for pepfetch.
//
// HistoryDB records every run (index URL, output directory, counters) and
// the outcome of every PEP in it, including the digest of each written
// artifact. The digests let a later run tell whether a PEP's text changed,
// and the history command lists past runs and their failures.
//
// SQLite is used through modernc.org/sqlite, a CGO-free driver, so the
// binary cross-compiles without a C toolchain. The database is a single
// file, pepfetch.db, in the XDG data directory by default.
package database
