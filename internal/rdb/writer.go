// Package rdb reads and writes slot snapshots in the Redis RDB format, one
// string object per slot key.
package rdb

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/hdt3213/rdb/core"
	"github.com/hdt3213/rdb/encoder"
)

// Writer streams a snapshot into a temporary file next to the target path.
// Commit renames it into place; Close without Commit discards it.
type Writer struct {
	path      string
	file      *os.File
	enc       *core.Encoder
	committed bool
}

func NewWriter(path string) (*Writer, error) {
	file, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return nil, fmt.Errorf("failed to create RDB file: %w", err)
	}
	enc := encoder.NewEncoder(file)
	if err := enc.WriteHeader(); err != nil {
		_ = file.Close()
		_ = os.Remove(file.Name())
		return nil, err
	}
	return &Writer{path: path, file: file, enc: enc}, nil
}

// WriteHeader writes the aux fields and, for a non-empty snapshot, the
// database header
func (w *Writer) WriteHeader(keyCount uint64) error {
	aux := [][2]string{
		{"redis-ver", "7.0.0"},
		{"redis-bits", "64"},
		{"slotcache", "1"},
	}
	for _, kv := range aux {
		if err := w.enc.WriteAux(kv[0], kv[1]); err != nil {
			return err
		}
	}
	if keyCount == 0 {
		return nil
	}
	return w.enc.WriteDBHeader(0, keyCount, 0)
}

func (w *Writer) WriteString(key, value string) error {
	return w.enc.WriteStringObject(key, []byte(value))
}

func (w *Writer) WriteEOF() error {
	return w.enc.WriteEnd()
}

// Commit flushes the snapshot to disk and moves it over the target path
func (w *Writer) Commit() error {
	if err := w.file.Sync(); err != nil {
		return err
	}
	if err := w.file.Close(); err != nil {
		return err
	}
	if err := os.Rename(w.file.Name(), w.path); err != nil {
		return fmt.Errorf("failed to move RDB file into place: %w", err)
	}
	w.committed = true
	return nil
}

// Close discards an uncommitted snapshot
func (w *Writer) Close() error {
	if w.committed {
		return nil
	}
	_ = w.file.Close()
	return os.Remove(w.file.Name())
}
