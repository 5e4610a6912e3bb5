package store

import (
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/nao1215/pepfetch/internal/model"
	"golang.org/x/crypto/blake2b"
)

const (
	dirPerm  = 0o750
	filePerm = 0o644

	tempPattern = ".pep-*.tmp"
)

// ErrNotDirectory is returned when the output path exists but is not a directory.
var ErrNotDirectory = errors.New("output path is not a directory")

// Artifact describes a written output file.
type Artifact struct {
	// Path is the artifact location.
	Path string

	// Bytes is the number of bytes written.
	Bytes int64

	// Digest is the hex-encoded BLAKE2b-256 digest of the content.
	Digest string
}

// Store writes artifacts into one output directory.
// Distinct PEP numbers map to distinct paths, so concurrent writes for
// different numbers never touch the same file.
type Store struct {
	dir string
}

// New creates a Store rooted at dir. The directory is not created until EnsureDir.
func New(dir string) *Store {
	return &Store{dir: dir}
}

// Dir returns the output directory.
func (s *Store) Dir() string {
	return s.dir
}

// Path returns the artifact path for a PEP number.
func (s *Store) Path(number model.Number) string {
	return filepath.Join(s.dir, number.FileName())
}

// EnsureDir creates the output directory and its parents if missing.
// It is idempotent.
func (s *Store) EnsureDir() error {
	if err := os.MkdirAll(s.dir, dirPerm); err != nil {
		return fmt.Errorf("create output directory %s: %w", s.dir, err)
	}
	info, err := os.Stat(s.dir)
	if err != nil {
		return fmt.Errorf("stat output directory %s: %w", s.dir, err)
	}
	if !info.IsDir() {
		return fmt.Errorf("%w: %s", ErrNotDirectory, s.dir)
	}
	return nil
}

// Write stores text as the artifact for number, replacing any previous
// artifact. Content is written verbatim as UTF-8.
func (s *Store) Write(number model.Number, text string) (Artifact, error) {
	path := s.Path(number)
	data := []byte(text)

	tmp, err := os.CreateTemp(s.dir, tempPattern)
	if err != nil {
		return Artifact{}, fmt.Errorf("create temp file: %w", err)
	}
	tmpPath := tmp.Name()

	_, writeErr := tmp.Write(data)
	closeErr := tmp.Close()
	if writeErr != nil {
		_ = os.Remove(tmpPath)
		return Artifact{}, fmt.Errorf("write %s: %w", path, writeErr)
	}
	if closeErr != nil {
		_ = os.Remove(tmpPath)
		return Artifact{}, fmt.Errorf("close temp file: %w", closeErr)
	}

	// CreateTemp uses 0600; artifacts are ordinary readable files.
	if err := os.Chmod(tmpPath, filePerm); err != nil {
		_ = os.Remove(tmpPath)
		return Artifact{}, fmt.Errorf("chmod temp file: %w", err)
	}

	if err := os.Rename(tmpPath, path); err != nil {
		_ = os.Remove(tmpPath)
		return Artifact{}, fmt.Errorf("rename to %s: %w", path, err)
	}

	return Artifact{
		Path:   path,
		Bytes:  int64(len(data)),
		Digest: Digest(data),
	}, nil
}

// Digest returns the hex-encoded BLAKE2b-256 digest of data.
func Digest(data []byte) string {
	sum := blake2b.Sum256(data)
	return hex.EncodeToString(sum[:])
}
