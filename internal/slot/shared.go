package slot

import "sync"

// Shared models one slot opened by several execution contexts, like a
// browser origin's storage seen from multiple tabs. Every context reads and
// writes the same data; a write made through one context is announced to the
// subscribers of every other context, never to its own.
type Shared struct {
	mem *Memory

	mu       sync.RWMutex
	contexts []*SharedContext
}

// NewShared creates a shared slot over a fresh Memory slot
func NewShared(opts ...MemoryOption) *Shared {
	return &Shared{mem: NewMemory(opts...)}
}

// Context opens a new context on the shared data
func (s *Shared) Context() *SharedContext {
	c := &SharedContext{shared: s, subs: &fanout{}}
	s.mu.Lock()
	s.contexts = append(s.contexts, c)
	s.mu.Unlock()
	return c
}

func (s *Shared) broadcast(from *SharedContext, ch Change) {
	s.mu.RLock()
	peers := make([]*SharedContext, 0, len(s.contexts))
	for _, c := range s.contexts {
		if c != from {
			peers = append(peers, c)
		}
	}
	s.mu.RUnlock()

	for _, c := range peers {
		c.subs.publish(ch)
	}
}

// SharedContext is one context's view of a Shared slot
type SharedContext struct {
	shared *Shared
	subs   *fanout
}

var (
	_ Slot         = (*SharedContext)(nil)
	_ ChangeSource = (*SharedContext)(nil)
)

func (c *SharedContext) Get(key string) (string, bool, error) {
	return c.shared.mem.Get(key)
}

func (c *SharedContext) Set(key, value string) error {
	if err := c.shared.mem.Set(key, value); err != nil {
		return err
	}
	c.shared.broadcast(c, Change{Key: key, Value: value, Present: true})
	return nil
}

func (c *SharedContext) Remove(key string) error {
	if err := c.shared.mem.Remove(key); err != nil {
		return err
	}
	c.shared.broadcast(c, Change{Key: key})
	return nil
}

func (c *SharedContext) Subscribe(fn func(Change)) (cancel func()) {
	return c.subs.add(fn)
}
