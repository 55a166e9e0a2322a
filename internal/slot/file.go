package slot

import (
	"encoding/base64"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"

	"slotcache/internal/logger"
)

const fileExt = ".json"

// File is a Slot that keeps one file per key inside a directory. Several
// processes may open the same directory; each one learns about the others'
// writes through filesystem notifications, which makes File the shared
// persistent slot of the CLI.
type File struct {
	dir           string
	maxValueBytes int

	mu     sync.Mutex
	known  map[string]fileState
	closed bool

	subs    fanout
	watcher *fsnotify.Watcher
	done    chan struct{}
}

// fileState is the last content this process wrote or announced for a key
type fileState struct {
	value   string
	present bool
}

var (
	_ Slot         = (*File)(nil)
	_ ChangeSource = (*File)(nil)
)

// FileOption configures a File slot
type FileOption func(*File)

// WithFileMaxValueBytes rejects values longer than n bytes with ErrQuotaExceeded
func WithFileMaxValueBytes(n int) FileOption {
	return func(f *File) { f.maxValueBytes = n }
}

// NewFile opens (creating if needed) a directory-backed slot
func NewFile(dir string, opts ...FileOption) (*File, error) {
	if strings.TrimSpace(dir) == "" {
		return nil, fmt.Errorf("file slot directory is required")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create slot directory: %w", err)
	}

	f := &File{
		dir:   filepath.Clean(dir),
		known: make(map[string]fileState),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f, nil
}

// Dir returns the directory holding the slot files
func (f *File) Dir() string { return f.dir }

func (f *File) path(key string) string {
	return filepath.Join(f.dir, base64.RawURLEncoding.EncodeToString([]byte(key))+fileExt)
}

// keyFromName maps a directory entry back to its key. Temp files and
// foreign files are rejected.
func keyFromName(name string) (string, bool) {
	if strings.HasPrefix(name, ".") || !strings.HasSuffix(name, fileExt) {
		return "", false
	}
	raw, err := base64.RawURLEncoding.DecodeString(strings.TrimSuffix(name, fileExt))
	if err != nil {
		return "", false
	}
	return string(raw), true
}

func (f *File) isClosed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

func (f *File) Get(key string) (string, bool, error) {
	if f.isClosed() {
		return "", false, ErrClosed
	}
	return f.read(key)
}

func (f *File) read(key string) (string, bool, error) {
	data, err := os.ReadFile(f.path(key))
	if errors.Is(err, os.ErrNotExist) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("read %q: %w", key, err)
	}
	return string(data), true, nil
}

// Set writes through a temp file and rename so readers in other processes
// never observe a partial value.
func (f *File) Set(key, value string) error {
	if f.maxValueBytes > 0 && len(value) > f.maxValueBytes {
		return fmt.Errorf("set %q: %d bytes over %d byte limit: %w", key, len(value), f.maxValueBytes, ErrQuotaExceeded)
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return ErrClosed
	}

	tmp, err := os.CreateTemp(f.dir, ".tmp-*")
	if err != nil {
		return fmt.Errorf("set %q: %w", key, err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.WriteString(value); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return fmt.Errorf("set %q: %w", key, err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("set %q: %w", key, err)
	}

	f.known[key] = fileState{value: value, present: true}
	if err := os.Rename(tmpName, f.path(key)); err != nil {
		delete(f.known, key)
		_ = os.Remove(tmpName)
		return fmt.Errorf("set %q: %w", key, err)
	}
	return nil
}

func (f *File) Remove(key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return ErrClosed
	}

	if err := os.Remove(f.path(key)); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove %q: %w", key, err)
	}
	f.known[key] = fileState{}
	return nil
}

// Subscribe starts watching the directory on first use
func (f *File) Subscribe(fn func(Change)) (cancel func()) {
	cancel = f.subs.add(fn)

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.watcher != nil || f.closed {
		return cancel
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		logger.Warnf("file slot: cannot watch %s: %v", f.dir, err)
		return cancel
	}
	if err := watcher.Add(f.dir); err != nil {
		_ = watcher.Close()
		logger.Warnf("file slot: cannot watch %s: %v", f.dir, err)
		return cancel
	}

	f.watcher = watcher
	f.done = make(chan struct{})
	go f.watch(watcher, f.done)
	logger.Debugf("file slot: watching %s for changes", f.dir)

	return cancel
}

func (f *File) watch(watcher *fsnotify.Watcher, done chan struct{}) {
	defer close(done)

	for {
		select {
		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			key, ok := keyFromName(filepath.Base(event.Name))
			if !ok {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) &&
				!event.Has(fsnotify.Remove) && !event.Has(fsnotify.Rename) {
				continue
			}
			f.announce(key)

		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			logger.Errorf("file slot: watcher error: %v", err)
		}
	}
}

// announce publishes the current state of key unless this process already
// wrote or announced exactly that state.
// The read happens under the lock so it cannot interleave with this
// process's own Set or Remove of the same key.
func (f *File) announce(key string) {
	f.mu.Lock()
	value, present, err := f.read(key)
	if err != nil {
		f.mu.Unlock()
		logger.Warnf("file slot: %v", err)
		return
	}

	state := fileState{value: value, present: present}
	prev, seen := f.known[key]
	if seen && prev == state {
		f.mu.Unlock()
		return
	}
	f.known[key] = state
	f.mu.Unlock()

	f.subs.publish(Change{Key: key, Value: value, Present: present})
}

// Close stops watching. Further operations fail with ErrClosed.
func (f *File) Close() error {
	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return nil
	}
	f.closed = true
	watcher, done := f.watcher, f.done
	f.mu.Unlock()

	if watcher == nil {
		return nil
	}
	err := watcher.Close()
	<-done
	return err
}
