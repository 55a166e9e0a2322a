package slot

import (
	"time"

	"slotcache/internal/stats"
)

// Instrumented wraps any Slot and records counts and latencies into a
// stats.Stats. A wrapped ChangeSource keeps working through the decorator.
type Instrumented struct {
	slot  Slot
	stats *stats.Stats
}

var (
	_ Slot         = (*Instrumented)(nil)
	_ ChangeSource = (*Instrumented)(nil)
)

// NewInstrumented wraps a slot with instrumentation
func NewInstrumented(s Slot, st *stats.Stats) *Instrumented {
	return &Instrumented{slot: s, stats: st}
}

// Unwrap returns the decorated slot
func (i *Instrumented) Unwrap() Slot { return i.slot }

func (i *Instrumented) Get(key string) (string, bool, error) {
	start := time.Now()
	value, found, err := i.slot.Get(key)
	i.stats.RecordLatency("get", time.Since(start))

	if err != nil {
		i.stats.RecordError()
		return value, found, err
	}
	i.stats.RecordGet(found)
	return value, found, nil
}

func (i *Instrumented) Set(key, value string) error {
	start := time.Now()
	err := i.slot.Set(key, value)
	i.stats.RecordLatency("set", time.Since(start))

	if err != nil {
		i.stats.RecordError()
		return err
	}
	i.stats.RecordSet()
	return nil
}

func (i *Instrumented) Remove(key string) error {
	start := time.Now()
	err := i.slot.Remove(key)
	i.stats.RecordLatency("remove", time.Since(start))

	if err != nil {
		i.stats.RecordError()
		return err
	}
	i.stats.RecordRemove()
	return nil
}

// Subscribe forwards to the wrapped slot when it publishes changes. Slots
// without notifications yield a subscription that never fires.
func (i *Instrumented) Subscribe(fn func(Change)) (cancel func()) {
	src, ok := i.slot.(ChangeSource)
	if !ok {
		return func() {}
	}
	return src.Subscribe(func(c Change) {
		i.stats.RecordExternalChange()
		fn(c)
	})
}
