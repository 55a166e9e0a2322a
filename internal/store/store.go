// Package store turns one key of a string-only backing slot into a typed,
// expiring, observable JSON collection.
//
// Every write funnels through SetData: the value is validated as an object
// or a sequence, encoded to JSON, written to the slot and announced to
// "updated" listeners. Reads check the optional TTL first and clear the key
// once it has elapsed. Changes made to the same key by other contexts that
// share the slot are re-announced as "updated" events.
package store

import (
	"encoding/json"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"slotcache/internal/logger"
	"slotcache/internal/slot"
	"slotcache/internal/stats"
)

// Config configures a Store
type Config struct {
	// Slot is the backing slot. Required.
	Slot slot.Slot
	// Key is the slot key holding the payload. Required, non-blank.
	Key string
	// ExpireAfter is a rolling TTL measured from the last successful write.
	// Zero disables expiry; negative values are rejected.
	ExpireAfter time.Duration
	// Changes delivers writes made by other contexts. When nil and Slot
	// implements slot.ChangeSource, the slot itself is used. A source must
	// not echo this store's own writes back synchronously.
	Changes slot.ChangeSource
	// OnChange, when set, is registered as the first "updated" listener.
	OnChange Listener
	// Clock overrides time.Now
	Clock func() time.Time
	// Stats receives store-level counters. A private instance is used when nil.
	Stats *stats.Stats
}

// Store owns one (key, slot) pair
type Store struct {
	key   string
	slot  slot.Slot
	stats *stats.Stats

	// mu serializes slot access and the expiry deadline. It is never held
	// while listeners run.
	mu     sync.Mutex
	expiry expiry

	listenersMu sync.RWMutex
	listeners   []listenerEntry

	closeOnce     sync.Once
	cancelChanges func()
}

// New validates cfg and binds a store to its key. It performs no slot I/O.
func New(cfg Config) (*Store, error) {
	if cfg.Slot == nil {
		return nil, &ConfigurationError{Field: "slot", Reason: "is required"}
	}
	if strings.TrimSpace(cfg.Key) == "" {
		return nil, &ConfigurationError{Field: "key", Reason: "must be a non-empty string"}
	}
	if cfg.ExpireAfter < 0 {
		return nil, &ConfigurationError{Field: "expireAfter", Reason: "must not be negative"}
	}

	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	st := cfg.Stats
	if st == nil {
		st = stats.New()
	}

	s := &Store{
		key:    cfg.Key,
		slot:   cfg.Slot,
		stats:  st,
		expiry: expiry{after: cfg.ExpireAfter, now: clock},
	}

	if cfg.OnChange != nil {
		s.listeners = append(s.listeners, listenerEntry{
			typ: EventUpdated,
			sub: &Subscription{typ: EventUpdated},
			fn:  cfg.OnChange,
		})
	}

	changes := cfg.Changes
	if changes == nil {
		if cs, ok := cfg.Slot.(slot.ChangeSource); ok {
			changes = cs
		}
	}
	if changes != nil {
		s.cancelChanges = changes.Subscribe(s.handleChange)
	}

	s.log().WithField("expire_after", cfg.ExpireAfter).Debug("store created")
	return s, nil
}

// Key returns the slot key this store is bound to
func (s *Store) Key() string { return s.key }

// Stats returns the counters this store reports into
func (s *Store) Stats() *stats.Stats { return s.stats }

// ExpiresAt returns the current expiry deadline, if any
func (s *Store) ExpiresAt() (time.Time, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.expiry.deadline()
}

// Close stops listening for external changes. Listeners stay registered.
func (s *Store) Close() {
	s.closeOnce.Do(func() {
		if s.cancelChanges != nil {
			s.cancelChanges()
		}
	})
}

func (s *Store) log() *logrus.Entry {
	return logger.ForKey(s.key)
}

// GetRaw returns the text stored under the key. An elapsed TTL clears the
// key before reading.
func (s *Store) GetRaw() (string, bool, error) {
	s.mu.Lock()
	raw, found, cleared, err := s.getRawLocked()
	s.mu.Unlock()

	if cleared {
		s.emit(EventReset, nil)
	}
	return raw, found, err
}

// GetParsed decodes the payload. An absent or blank payload is the empty
// sequence; anything that is not a JSON object or array is a
// CorruptDataError.
func (s *Store) GetParsed() (Value, error) {
	s.mu.Lock()
	v, cleared, err := s.getParsedLocked()
	s.mu.Unlock()

	if cleared {
		s.emit(EventReset, nil)
	}
	return v, err
}

// GetAsSequence returns the payload coerced to a sequence
func (s *Store) GetAsSequence() (Sequence, error) {
	v, err := s.GetParsed()
	if err != nil {
		return nil, err
	}
	return v.AsSequence(), nil
}

// SetData validates, encodes and writes v, then fires "updated"
func (s *Store) SetData(v any) error {
	s.mu.Lock()
	decoded, err := s.setDataLocked(v)
	s.mu.Unlock()

	if err != nil {
		return err
	}
	s.emit(EventUpdated, decoded)
	return nil
}

// Count is 0 for an absent payload, 1 for a bare object and the length of a
// sequence
func (s *Store) Count() (int, error) {
	v, err := s.GetParsed()
	if err != nil {
		return 0, err
	}
	return v.Len(), nil
}

// Clear removes the key from the slot, drops the expiry deadline and fires
// "reset"
func (s *Store) Clear() error {
	s.mu.Lock()
	err := s.clearLocked()
	s.mu.Unlock()

	if err != nil {
		return err
	}
	s.emit(EventReset, nil)
	return nil
}

func (s *Store) getRawLocked() (raw string, found, cleared bool, err error) {
	if s.expiry.expired() {
		if err := s.clearLocked(); err != nil {
			return "", false, false, err
		}
		cleared = true
		s.stats.RecordExpiration()
		s.log().Debug("payload expired")
	}

	raw, found, err = s.slot.Get(s.key)
	if err != nil {
		return "", false, cleared, &BackingStoreError{Op: "get", Key: s.key, Err: err}
	}
	return raw, found, cleared, nil
}

func (s *Store) getParsedLocked() (Value, bool, error) {
	raw, found, cleared, err := s.getRawLocked()
	if err != nil {
		return Value{}, cleared, err
	}
	if !found {
		return SequenceValue(Sequence{}), cleared, nil
	}

	v, err := decodeValue(raw)
	if err != nil {
		s.stats.RecordCorruptRead()
		return Value{}, cleared, &CorruptDataError{Key: s.key, Raw: raw, Err: err}
	}
	return v, cleared, nil
}

func (s *Store) setDataLocked(v any) (Value, error) {
	val, err := toValue(v)
	if err != nil {
		return Value{}, err
	}

	data, err := json.Marshal(val)
	if err != nil {
		return Value{}, &InvalidDataError{Reason: "elements are not JSON encodable", Err: err}
	}
	decoded, err := decodeValue(string(data))
	if err != nil {
		return Value{}, &InvalidDataError{Reason: "value did not round-trip through JSON", Err: err}
	}

	if err := s.slot.Set(s.key, string(data)); err != nil {
		s.log().WithError(err).Warn("slot rejected write")
		return Value{}, &BackingStoreError{Op: "set", Key: s.key, Err: err}
	}
	s.expiry.touch()
	return decoded, nil
}

func (s *Store) clearLocked() error {
	if err := s.slot.Remove(s.key); err != nil {
		return &BackingStoreError{Op: "remove", Key: s.key, Err: err}
	}
	s.expiry.reset()
	return nil
}

// handleChange re-announces another context's write to this key. Corrupt
// text is logged and the notification dropped; nothing is written back.
func (s *Store) handleChange(c slot.Change) {
	if c.Key != s.key {
		return
	}

	v, err := s.GetParsed()
	if err != nil {
		s.log().WithError(err).Warn("dropping external change")
		return
	}
	s.log().WithField("present", c.Present).Debug("external change")
	s.emit(EventUpdated, v)
}
