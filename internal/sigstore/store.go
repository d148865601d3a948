// Package sigstore maps published artifacts to their detached signature files
// and persists signatures atomically.
//
// Signatures live in a "gpg" directory that is a sibling of the directory
// holding the artifact:
//
//	releases/mp3/s01e01.mp3 -> releases/gpg/s01e01.mp3.asc
package sigstore

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"podsig/internal/fileutil"
)

// DirName is the signature directory placed beside each artifact directory.
const DirName = "gpg"

// DefaultExtension is used when no extension is configured.
const DefaultExtension = "asc"

// ErrNotFound reports that an artifact has no signature on disk.
var ErrNotFound = errors.New("signature not found")

// Store resolves and persists detached signatures.
type Store struct {
	ext string
}

// New returns a Store that names signatures <artifact>.<ext>. A leading dot in
// ext is ignored.
func New(ext string) *Store {
	ext = strings.TrimPrefix(strings.TrimSpace(ext), ".")
	if ext == "" {
		ext = DefaultExtension
	}
	return &Store{ext: ext}
}

// Extension returns the signature file extension without the leading dot.
func (s *Store) Extension() string {
	return s.ext
}

// PathFor returns the signature path for artifact.
func (s *Store) PathFor(artifact string) string {
	parent := filepath.Dir(filepath.Dir(artifact))
	return filepath.Join(parent, DirName, filepath.Base(artifact)+"."+s.ext)
}

// Read loads the signature at path. Missing files wrap ErrNotFound.
func (s *Store) Read(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, path)
		}
		return nil, fmt.Errorf("read signature %s: %w", path, err)
	}
	return data, nil
}

// Write atomically replaces the signature at path, creating the signature
// directory when needed.
func (s *Store) Write(ctx context.Context, path string, data []byte) error {
	if err := fileutil.EnsureDir(filepath.Dir(path)); err != nil {
		return err
	}
	if err := fileutil.WriteFileAtomic(ctx, path, data, 0o644); err != nil {
		return fmt.Errorf("write signature %s: %w", path, err)
	}
	return nil
}
