// Package storage reads measurement files and writes analysis artifacts,
// either on the local disk or in an S3-compatible bucket.
package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
)

// ErrNotFound is returned by a Source that has no file with the given name.
var ErrNotFound = errors.New("file not found")

// Source opens measurement files by name.
type Source interface {
	Open(ctx context.Context, name string) (io.ReadCloser, error)
}

// Sink stores artifacts. Put returns where the artifact ended up: a path on
// disk or an object key.
type Sink interface {
	Put(ctx context.Context, name, contentType string, data []byte) (string, error)
}

// Dir is a directory on the local disk. Relative names resolve against it;
// absolute names are used as they are.
type Dir string

func (d Dir) path(name string) string {
	if filepath.IsAbs(name) {
		return name
	}
	return filepath.Join(string(d), filepath.FromSlash(name))
}

// Open opens a file under the directory.
func (d Dir) Open(_ context.Context, name string) (io.ReadCloser, error) {
	f, err := os.Open(d.path(name))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, d.path(name))
	}
	return f, err
}

// Put writes data under the directory, creating parent directories.
func (d Dir) Put(_ context.Context, name, _ string, data []byte) (string, error) {
	p := d.path(name)
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return "", err
	}
	if err := os.WriteFile(p, data, 0o644); err != nil {
		return "", err
	}
	return p, nil
}

// Files is an in-memory Source, used once a job's inputs have been fetched.
type Files map[string][]byte

// Open returns the named file's contents.
func (f Files) Open(_ context.Context, name string) (io.ReadCloser, error) {
	data, ok := f[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

// Names returns the file names in sorted order.
func (f Files) Names() []string {
	names := make([]string, 0, len(f))
	for name := range f {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
