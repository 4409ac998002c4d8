// Package storage persists probe run artifacts (screenshots, staged
// brief files) and manages temporary directories.
package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/oxtoacart/bpool"
)

// FilePersister will persist files. It abstracts away the where and how
// of writing files to the destination.
type FilePersister interface {
	Persist(ctx context.Context, path string, data io.Reader) error
}

// LocalFilePersister will persist files to the local disk. Screenshot
// payloads are staged through a buffer pool to keep large writes from
// churning allocations across a long probe run.
type LocalFilePersister struct {
	pool *bpool.BufferPool
}

// NewLocalFilePersister returns a LocalFilePersister ready for use.
func NewLocalFilePersister() *LocalFilePersister {
	return &LocalFilePersister{
		pool: bpool.NewBufferPool(4),
	}
}

// Persist writes the contents of data to the local disk at the given
// path, creating parent directories as needed and truncating any
// existing file.
func (l *LocalFilePersister) Persist(_ context.Context, path string, data io.Reader) (err error) {
	cp := filepath.Clean(path)

	dir := filepath.Dir(cp)
	if err = os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating a local directory %q: %w", dir, err)
	}

	buf := l.buffer()
	defer l.release(buf)
	if _, err = io.Copy(buf, data); err != nil {
		return fmt.Errorf("staging data for %q: %w", cp, err)
	}

	f, err := os.OpenFile(cp, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o600)
	if err != nil {
		return fmt.Errorf("creating a local file %q: %w", cp, err)
	}
	defer func() {
		tempErr := f.Close()
		// Only return the close error if there isn't already one.
		if tempErr != nil && err == nil {
			err = fmt.Errorf("closing the local file %q: %w", cp, tempErr)
		}
	}()

	_, err = io.Copy(f, buf)

	return
}

func (l *LocalFilePersister) buffer() *bytes.Buffer {
	if l.pool == nil {
		l.pool = bpool.NewBufferPool(4)
	}
	return l.pool.Get()
}

func (l *LocalFilePersister) release(buf *bytes.Buffer) {
	l.pool.Put(buf)
}
