package store

import "fmt"

// EventType names a store notification. Any non-empty string may be
// registered; only EventUpdated and EventReset are ever fired.
type EventType string

const (
	// EventUpdated fires after every successful write, including writes by
	// other contexts sharing the slot. The value is the decoded payload.
	EventUpdated EventType = "updated"
	// EventReset fires after every clear, explicit or caused by expiry. The
	// value is nil.
	EventReset EventType = "reset"
)

// Listener receives the event value and the store that fired it
type Listener func(value any, s *Store)

// Subscription identifies one registration. Registering the same function
// twice yields two subscriptions.
type Subscription struct {
	typ EventType
}

// Type returns the event type the subscription was registered for
func (sub *Subscription) Type() EventType { return sub.typ }

type listenerEntry struct {
	typ EventType
	sub *Subscription
	fn  Listener
}

// AddEventListener appends fn to the listeners of t
func (s *Store) AddEventListener(t EventType, fn Listener) (*Subscription, error) {
	if t == "" {
		return nil, &InvalidArgumentError{Argument: "type", Reason: "must be a non-empty string"}
	}
	if fn == nil {
		return nil, &InvalidArgumentError{Argument: "callback", Reason: "must be a function"}
	}

	sub := &Subscription{typ: t}
	s.listenersMu.Lock()
	s.listeners = append(s.listeners, listenerEntry{typ: t, sub: sub, fn: fn})
	s.listenersMu.Unlock()
	return sub, nil
}

// RemoveEventListener drops every registration matching both t and sub. An
// unknown pair is a no-op.
func (s *Store) RemoveEventListener(t EventType, sub *Subscription) error {
	if t == "" {
		return &InvalidArgumentError{Argument: "type", Reason: "must be a non-empty string"}
	}
	if sub == nil {
		return &InvalidArgumentError{Argument: "callback", Reason: "must be a subscription"}
	}

	s.listenersMu.Lock()
	defer s.listenersMu.Unlock()

	kept := make([]listenerEntry, 0, len(s.listeners))
	for _, l := range s.listeners {
		if l.typ == t && l.sub == sub {
			continue
		}
		kept = append(kept, l)
	}
	s.listeners = kept
	return nil
}

// emit calls the listeners of t synchronously in registration order. The
// list is copied first so listeners may add or remove registrations.
func (s *Store) emit(t EventType, value any) {
	s.listenersMu.RLock()
	matched := make([]listenerEntry, 0, len(s.listeners))
	for _, l := range s.listeners {
		if l.typ == t {
			matched = append(matched, l)
		}
	}
	s.listenersMu.RUnlock()

	for _, l := range matched {
		s.invoke(l, value)
	}
}

// invoke isolates one listener so a panic cannot stop the others
func (s *Store) invoke(l listenerEntry, value any) {
	defer func() {
		if r := recover(); r != nil {
			s.stats.RecordListenerPanic()
			s.log().WithField("event", string(l.typ)).
				WithError(fmt.Errorf("%v", r)).
				Error("listener panicked")
		}
	}()

	s.stats.RecordEvent()
	l.fn(value, s)
}
