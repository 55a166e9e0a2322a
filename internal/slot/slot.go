// Package slot defines the string-only key/value backing slot a cache
// store sits on, together with the drivers that implement it.
package slot

import (
	"errors"
	"sync"
)

var (
	// ErrQuotaExceeded is returned by Set when a value exceeds the slot quota
	ErrQuotaExceeded = errors.New("slot quota exceeded")
	// ErrClosed is returned by operations on a closed slot
	ErrClosed = errors.New("slot closed")
)

// Slot is a synchronous key→string map. Any operation may fail.
type Slot interface {
	// Get returns the value stored under key and whether it was present
	Get(key string) (string, bool, error)
	// Set stores value under key
	Set(key, value string) error
	// Remove deletes key. Removing an absent key is not an error.
	Remove(key string) error
}

// Change describes a mutation of one key made by another execution context
// sharing the same slot.
type Change struct {
	Key     string
	Value   string
	Present bool
}

// ChangeSource delivers changes made by other contexts. Callbacks may run on
// a goroutine owned by the source. The returned function cancels the
// subscription.
type ChangeSource interface {
	Subscribe(fn func(Change)) (cancel func())
}

// fanout is an ordered subscriber list shared by the notifying drivers
type fanout struct {
	mu     sync.RWMutex
	nextID uint64
	subs   []subscriber
}

type subscriber struct {
	id uint64
	fn func(Change)
}

func (f *fanout) add(fn func(Change)) (cancel func()) {
	f.mu.Lock()
	f.nextID++
	id := f.nextID
	f.subs = append(f.subs, subscriber{id: id, fn: fn})
	f.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			f.mu.Lock()
			defer f.mu.Unlock()
			kept := f.subs[:0]
			for _, s := range f.subs {
				if s.id != id {
					kept = append(kept, s)
				}
			}
			f.subs = kept
		})
	}
}

func (f *fanout) len() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return len(f.subs)
}

func (f *fanout) publish(c Change) {
	f.mu.RLock()
	subs := make([]subscriber, len(f.subs))
	copy(subs, f.subs)
	f.mu.RUnlock()

	for _, s := range subs {
		s.fn(c)
	}
}
