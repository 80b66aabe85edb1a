// Package disk implements the static (non-expiring) durable tier on a
// filesystem: realm maps to a subdirectory, id to a file name. Built on
// afero.Fs so tests run against an in-memory filesystem.
package disk

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/afero"
)

// Store is the disk-backed static store. Entry ids and realms are used as
// path components verbatim and must not contain path separators.
type Store struct {
	fs   afero.Fs
	root string
}

// New verifies the cache root exists (creating it if needed) and is writable.
// An unusable root is a configuration error and fails construction.
func New(fs afero.Fs, root string) (*Store, error) {
	if root == "" {
		return nil, fmt.Errorf("disk: cache root is required")
	}
	if fs == nil {
		fs = afero.NewOsFs()
	}
	if err := fs.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("disk: cache root %q: %w", root, err)
	}

	// Write probe: MkdirAll on an existing directory succeeds even when the
	// directory is read-only, so prove writability explicitly.
	probe := filepath.Join(root, ".write_probe")
	f, err := fs.Create(probe)
	if err != nil {
		return nil, fmt.Errorf("disk: cache root %q not writable: %w", root, err)
	}
	f.Close()
	_ = fs.Remove(probe)

	return &Store{fs: fs, root: root}, nil
}

func (s *Store) path(id, realm string) string {
	return filepath.Join(s.root, realm, id)
}

func (s *Store) Exists(_ context.Context, id, realm string) (bool, error) {
	ok, err := afero.Exists(s.fs, s.path(id, realm))
	if err != nil {
		return false, fmt.Errorf("disk: stat %q/%q: %w", realm, id, err)
	}
	return ok, nil
}

func (s *Store) Get(_ context.Context, id, realm string) ([]byte, bool, error) {
	b, err := afero.ReadFile(s.fs, s.path(id, realm))
	if os.IsNotExist(err) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("disk: read %q/%q: %w", realm, id, err)
	}
	return b, true, nil
}

// Store overwrites unconditionally; the realm directory is created lazily on
// first write.
func (s *Store) Store(_ context.Context, id string, data []byte, realm string) error {
	dir := filepath.Join(s.root, realm)
	if err := s.fs.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("disk: realm %q: %w", realm, err)
	}
	if err := afero.WriteFile(s.fs, filepath.Join(dir, id), data, 0o644); err != nil {
		return fmt.Errorf("disk: write %q/%q: %w", realm, id, err)
	}
	return nil
}

func (s *Store) Remove(_ context.Context, id, realm string) (bool, error) {
	err := s.fs.Remove(s.path(id, realm))
	if os.IsNotExist(err) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("disk: remove %q/%q: %w", realm, id, err)
	}
	return true, nil
}

// Clear removes every entry of realm; an empty realm wipes all realms while
// keeping the cache root itself in place.
func (s *Store) Clear(_ context.Context, realm string) error {
	if realm != "" {
		if err := s.fs.RemoveAll(filepath.Join(s.root, realm)); err != nil {
			return fmt.Errorf("disk: clear realm %q: %w", realm, err)
		}
		return nil
	}

	entries, err := afero.ReadDir(s.fs, s.root)
	if err != nil {
		return fmt.Errorf("disk: clear: %w", err)
	}
	for _, e := range entries {
		if err := s.fs.RemoveAll(filepath.Join(s.root, e.Name())); err != nil {
			return fmt.Errorf("disk: clear %q: %w", e.Name(), err)
		}
	}
	return nil
}
