// Package persistence snapshots an in-memory slot to an RDB file and
// restores it on startup.
package persistence

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"slotcache/internal/logger"
	"slotcache/internal/rdb"
	"slotcache/internal/slot"
)

type Config struct {
	// Path of the snapshot file
	Path string
	// SaveInterval is how often the background saver checks for changes.
	// Zero disables background saves.
	SaveInterval time.Duration
	// MinChanges is how many slot writes must accumulate before a background
	// save runs
	MinChanges int64
}

type Manager struct {
	config Config
	mem    *slot.Memory
	mu     sync.Mutex

	lastSave      time.Time
	savedChanges  int64 // slot change counter at the last save
	saves         int64
	bgSaveRunning int32

	stopChan  chan struct{}
	wg        sync.WaitGroup
	closeOnce sync.Once
}

func NewManager(config Config, mem *slot.Memory) (*Manager, error) {
	if config.Path == "" {
		return nil, errors.New("snapshot path is required")
	}
	logger.Infof("Initializing snapshot manager at %s", config.Path)

	if err := os.MkdirAll(filepath.Dir(config.Path), 0755); err != nil {
		logger.Errorf("Failed to create snapshot directory for %s: %v", config.Path, err)
		return nil, fmt.Errorf("failed to create snapshot directory: %w", err)
	}

	m := &Manager{
		config:   config,
		mem:      mem,
		stopChan: make(chan struct{}),
	}

	if config.SaveInterval > 0 {
		logger.Debugf("Starting background snapshot goroutine every %v", config.SaveInterval)
		m.wg.Add(1)
		go m.backgroundSave()
	}
	return m, nil
}

// LoadData restores the snapshot into the slot. A missing file is not an
// error.
func (m *Manager) LoadData() (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	reader, err := rdb.NewReader(m.config.Path)
	if errors.Is(err, os.ErrNotExist) {
		logger.Info("No snapshot to load")
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	defer func() {
		_ = reader.Close()
	}()

	n, err := reader.ReadAll(m.mem)
	if err != nil {
		logger.Warnf("Failed to load snapshot %s: %v", m.config.Path, err)
		return n, err
	}
	m.savedChanges = m.mem.Changes()
	logger.Infof("Loaded %d keys from snapshot", n)
	return n, nil
}

// Pending returns the slot writes not yet captured by a snapshot
func (m *Manager) Pending() int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.mem.Changes() - m.savedChanges
}

func (m *Manager) backgroundSave() {
	defer m.wg.Done()
	ticker := time.NewTicker(m.config.SaveInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			pending := m.Pending()
			if pending == 0 || pending < m.config.MinChanges {
				continue
			}
			if !atomic.CompareAndSwapInt32(&m.bgSaveRunning, 0, 1) {
				continue
			}
			logger.Debugf("Triggering background snapshot with %d changes", pending)
			if err := m.Save(); err != nil {
				logger.Errorf("Background snapshot failed: %v", err)
			}
			atomic.StoreInt32(&m.bgSaveRunning, 0)
		case <-m.stopChan:
			logger.Debug("Background snapshot stopped")
			return
		}
	}
}

// Save writes every slot key to the snapshot file
func (m *Manager) Save() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.save()
}

func (m *Manager) save() error {
	changes := m.mem.Changes()
	keys := m.mem.Keys()

	values := make(map[string]string, len(keys))
	for _, key := range keys {
		if v, ok, _ := m.mem.Get(key); ok {
			values[key] = v
		}
	}

	writer, err := rdb.NewWriter(m.config.Path)
	if err != nil {
		logger.Errorf("Failed to create snapshot writer: %v", err)
		return err
	}
	defer func() {
		_ = writer.Close()
	}()

	if err := writer.WriteHeader(uint64(len(values))); err != nil {
		return fmt.Errorf("failed to write snapshot header: %w", err)
	}
	for _, key := range keys {
		v, ok := values[key]
		if !ok {
			continue
		}
		if err := writer.WriteString(key, v); err != nil {
			logger.Errorf("Failed to write key '%s' to snapshot: %v", key, err)
			return err
		}
	}
	if err := writer.WriteEOF(); err != nil {
		return fmt.Errorf("failed to write snapshot EOF: %w", err)
	}
	if err := writer.Commit(); err != nil {
		return err
	}

	m.savedChanges = changes
	m.lastSave = time.Now()
	m.saves++
	logger.Infof("Snapshot saved with %d keys", len(values))
	return nil
}

// ClearData removes the snapshot file
func (m *Manager) ClearData() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := os.Remove(m.config.Path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to remove snapshot: %w", err)
	}
	m.savedChanges = m.mem.Changes()
	m.lastSave = time.Now()
	return nil
}

// Close stops the background saver and writes a final snapshot if anything
// changed since the last one
func (m *Manager) Close() error {
	var err error
	m.closeOnce.Do(func() {
		close(m.stopChan)
		m.wg.Wait()

		m.mu.Lock()
		defer m.mu.Unlock()
		if m.mem.Changes() != m.savedChanges {
			err = m.save()
		}
	})
	return err
}

func (m *Manager) Stats() map[string]interface{} {
	m.mu.Lock()
	defer m.mu.Unlock()

	return map[string]interface{}{
		"path":          m.config.Path,
		"save_interval": m.config.SaveInterval.String(),
		"min_changes":   m.config.MinChanges,
		"changes_since": m.mem.Changes() - m.savedChanges,
		"saves":         m.saves,
		"last_save":     m.lastSave,
	}
}
