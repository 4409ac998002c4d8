package storage

import (
	"fmt"
	"os"
)

// Dir is a temporary directory with explicit cleanup, used for the
// browser user data dir and for staged brief files.
type Dir struct {
	Dir    string
	remove bool
}

// NewDir creates a temporary directory under tmpDir with the given
// pattern. An empty tmpDir uses the OS default.
func NewDir(tmpDir, pattern string) (*Dir, error) {
	dir, err := os.MkdirTemp(tmpDir, pattern)
	if err != nil {
		return nil, fmt.Errorf("creating temporary directory: %w", err)
	}
	return &Dir{Dir: dir, remove: true}, nil
}

// WrapDir returns a Dir for an existing directory that Cleanup will
// leave in place.
func WrapDir(dir string) *Dir {
	return &Dir{Dir: dir}
}

// Cleanup removes the directory and everything in it, unless the Dir
// wraps a caller-owned directory.
func (d *Dir) Cleanup() error {
	if !d.remove {
		return nil
	}
	if err := os.RemoveAll(d.Dir); err != nil {
		return fmt.Errorf("removing temporary directory %q: %w", d.Dir, err)
	}
	return nil
}
