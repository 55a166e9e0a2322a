package store

import "time"

// expiry tracks one rolling deadline as Unix nanoseconds. Zero means no
// deadline. Staleness is only checked when a read asks for it.
type expiry struct {
	after time.Duration
	at    int64
	now   func() time.Time
}

func (e *expiry) enabled() bool { return e.after > 0 }

// touch restarts the deadline from now
func (e *expiry) touch() {
	if !e.enabled() {
		return
	}
	e.at = e.now().Add(e.after).UnixNano()
}

func (e *expiry) reset() { e.at = 0 }

// expired reports whether the deadline has been reached
func (e *expiry) expired() bool {
	return e.at != 0 && e.now().UnixNano() >= e.at
}

func (e *expiry) deadline() (time.Time, bool) {
	if e.at == 0 {
		return time.Time{}, false
	}
	return time.Unix(0, e.at), true
}
