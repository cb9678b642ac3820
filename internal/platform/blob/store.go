// Package blob persists named binary blobs on the local filesystem. It backs
// the uploaded workbooks and the persisted journal configuration.
package blob

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// ErrNotFound is returned when a named blob does not exist.
var ErrNotFound = errors.New("blob not found")

// Store writes blobs under a single base directory. Writes go through a
// temporary file and a rename, so readers never observe a partial blob.
type Store struct {
	dir string
}

func New(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("blob: create dir: %w", err)
	}
	return &Store{dir: dir}, nil
}

// Put stores the reader's contents under name and returns the byte count.
func (s *Store) Put(name string, r io.Reader) (int64, error) {
	if err := validName(name); err != nil {
		return 0, err
	}
	tmp, err := os.CreateTemp(s.dir, name+".tmp*")
	if err != nil {
		return 0, fmt.Errorf("blob: create temp: %w", err)
	}
	defer os.Remove(tmp.Name())

	n, err := io.Copy(tmp, r)
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return 0, fmt.Errorf("blob: write %s: %w", name, err)
	}
	if err := os.Rename(tmp.Name(), filepath.Join(s.dir, name)); err != nil {
		return 0, fmt.Errorf("blob: store %s: %w", name, err)
	}
	return n, nil
}

// Open returns a reader over the named blob.
func (s *Store) Open(name string) (io.ReadCloser, error) {
	if err := validName(name); err != nil {
		return nil, err
	}
	f, err := os.Open(filepath.Join(s.dir, name))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, name)
		}
		return nil, fmt.Errorf("blob: open %s: %w", name, err)
	}
	return f, nil
}

// Exists reports whether the named blob is present.
func (s *Store) Exists(name string) bool {
	if validName(name) != nil {
		return false
	}
	_, err := os.Stat(filepath.Join(s.dir, name))
	return err == nil
}

// Remove deletes the named blobs, ignoring those that do not exist.
func (s *Store) Remove(names ...string) error {
	for _, name := range names {
		if err := validName(name); err != nil {
			return err
		}
		if err := os.Remove(filepath.Join(s.dir, name)); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("blob: remove %s: %w", name, err)
		}
	}
	return nil
}

func validName(name string) error {
	if name == "" || strings.ContainsAny(name, `/\`) || strings.Contains(name, "..") {
		return fmt.Errorf("blob: invalid name %q", name)
	}
	return nil
}
