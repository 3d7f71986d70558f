// Package gamestate persists the client's opaque game-state blob to a single
// file.
package gamestate

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/spf13/afero"
)

var (
	// ErrNotFound is returned by Load when nothing has been saved.
	ErrNotFound = errors.New("no saved game state found")
	// ErrInvalid is returned by Load when the stored content is not JSON.
	ErrInvalid = errors.New("saved game state is not valid JSON")
)

// File stores the blob at one path. Saves are whole-file and last-write-wins.
type File struct {
	fs   afero.Fs
	path string
	mu   sync.Mutex
}

// New returns a File backed by fs. A nil fs means the OS filesystem.
func New(fs afero.Fs, path string) *File {
	if fs == nil {
		fs = afero.NewOsFs()
	}
	return &File{fs: fs, path: path}
}

// Path returns the location of the state file.
func (f *File) Path() string { return f.path }

// Save overwrites the stored blob with state. The content is written to a
// temporary file in the same directory and renamed into place.
func (f *File) Save(state string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	dir := filepath.Dir(f.path)
	if err := f.fs.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create state dir: %w", err)
	}
	tmp, err := afero.TempFile(f.fs, dir, "."+filepath.Base(f.path)+"-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	if _, err := tmp.WriteString(state); err != nil {
		tmp.Close()
		f.fs.Remove(tmp.Name())
		return fmt.Errorf("write game state: %w", err)
	}
	if err := tmp.Close(); err != nil {
		f.fs.Remove(tmp.Name())
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := f.fs.Rename(tmp.Name(), f.path); err != nil {
		f.fs.Remove(tmp.Name())
		return fmt.Errorf("rename game state: %w", err)
	}
	return nil
}

// Load returns the stored blob exactly as saved.
func (f *File) Load() (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	data, err := afero.ReadFile(f.fs, f.path)
	if errors.Is(err, os.ErrNotExist) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("read game state: %w", err)
	}
	if !json.Valid(data) {
		return "", ErrInvalid
	}
	return string(data), nil
}

// Reset deletes the stored blob. A missing file is not an error.
func (f *File) Reset() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	err := f.fs.Remove(f.path)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove game state: %w", err)
	}
	return nil
}
