package rdb

import (
	"fmt"
	"os"

	"github.com/hdt3213/rdb/parser"

	"slotcache/internal/logger"
)

// Loader receives every string object of a snapshot
type Loader interface {
	Load(key, value string) error
}

type Reader struct {
	file *os.File
}

func NewReader(path string) (*Reader, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open RDB file: %w", err)
	}
	return &Reader{file: file}, nil
}

// ReadAll feeds every string object to l and returns how many were loaded.
// Objects of other Redis types are skipped.
func (r *Reader) ReadAll(l Loader) (int, error) {
	var (
		loaded  int
		loadErr error
	)
	decoder := parser.NewDecoder(r.file)
	err := decoder.Parse(func(o parser.RedisObject) bool {
		if o.GetType() != parser.StringType {
			logger.Warnf("Skipping %s object %q in snapshot", o.GetType(), o.GetKey())
			return true
		}
		str := o.(*parser.StringObject)
		if loadErr = l.Load(str.Key, string(str.Value)); loadErr != nil {
			return false
		}
		loaded++
		return true
	})
	if loadErr != nil {
		return loaded, fmt.Errorf("failed to load snapshot after %d keys: %w", loaded, loadErr)
	}
	return loaded, err
}

func (r *Reader) Close() error {
	return r.file.Close()
}
