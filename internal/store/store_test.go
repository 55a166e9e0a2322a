package store

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"slotcache/internal/slot"
	"slotcache/internal/stats"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// countingSlot records every call made to the wrapped memory slot
type countingSlot struct {
	*slot.Memory
	mu    sync.Mutex
	calls int
}

func (c *countingSlot) bump() {
	c.mu.Lock()
	c.calls++
	c.mu.Unlock()
}

func (c *countingSlot) Get(key string) (string, bool, error) {
	c.bump()
	return c.Memory.Get(key)
}

func (c *countingSlot) Set(key, value string) error {
	c.bump()
	return c.Memory.Set(key, value)
}

func (c *countingSlot) Remove(key string) error {
	c.bump()
	return c.Memory.Remove(key)
}

func (c *countingSlot) Calls() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls
}

type brokenSlot struct{ err error }

func (b brokenSlot) Get(string) (string, bool, error) { return "", false, b.err }
func (b brokenSlot) Set(string, string) error         { return b.err }
func (b brokenSlot) Remove(string) error              { return b.err }

func newTestStore(t *testing.T, cfg Config) *Store {
	t.Helper()
	if cfg.Slot == nil {
		cfg.Slot = slot.NewMemory()
	}
	if cfg.Key == "" {
		cfg.Key = "items"
	}
	s, err := New(cfg)
	require.NoError(t, err)
	t.Cleanup(s.Close)
	return s
}

func recordEvents(t *testing.T, s *Store, typ EventType) *[]any {
	t.Helper()
	var (
		mu  sync.Mutex
		got []any
	)
	_, err := s.AddEventListener(typ, func(value any, _ *Store) {
		mu.Lock()
		got = append(got, value)
		mu.Unlock()
	})
	require.NoError(t, err)
	return &got
}

func TestNewValidation(t *testing.T) {
	_, err := New(Config{Key: "items"})
	require.ErrorIs(t, err, ErrConfiguration)

	_, err = New(Config{Slot: slot.NewMemory(), Key: "   "})
	require.ErrorIs(t, err, ErrConfiguration)
	var cfgErr *ConfigurationError
	require.ErrorAs(t, err, &cfgErr)
	require.Equal(t, "key", cfgErr.Field)

	_, err = New(Config{Slot: slot.NewMemory(), Key: "items", ExpireAfter: -time.Second})
	require.ErrorIs(t, err, ErrConfiguration)
}

func TestNewPerformsNoSlotIO(t *testing.T) {
	cs := &countingSlot{Memory: slot.NewMemory()}
	s := newTestStore(t, Config{Slot: cs, ExpireAfter: time.Minute})
	require.Equal(t, "items", s.Key())
	require.Equal(t, 0, cs.Calls())
}

func TestEmptyStore(t *testing.T) {
	s := newTestStore(t, Config{})

	raw, found, err := s.GetRaw()
	require.NoError(t, err)
	require.False(t, found)
	require.Equal(t, "", raw)

	v, err := s.GetParsed()
	require.NoError(t, err)
	require.Equal(t, KindSequence, v.Kind())
	require.Equal(t, Sequence{}, v.Interface())

	n, err := s.Count()
	require.NoError(t, err)
	require.Equal(t, 0, n)
}

func TestSetDataRoundTrip(t *testing.T) {
	mem := slot.NewMemory()
	s := newTestStore(t, Config{Slot: mem})

	require.NoError(t, s.SetData(Object{"name": "a", "n": 1}))
	raw, found, err := mem.Get("items")
	require.NoError(t, err)
	require.True(t, found)
	require.JSONEq(t, `{"name":"a","n":1}`, raw)

	v, err := s.GetParsed()
	require.NoError(t, err)
	obj, ok := v.Object()
	require.True(t, ok)
	require.Equal(t, "a", obj["name"])
	require.Equal(t, float64(1), obj["n"])

	n, err := s.Count()
	require.NoError(t, err)
	require.Equal(t, 1, n)

	require.NoError(t, s.SetData(Sequence{1, "two", Object{"three": 3}}))
	n, err = s.Count()
	require.NoError(t, err)
	require.Equal(t, 3, n)

	seq, err := s.GetAsSequence()
	require.NoError(t, err)
	require.Equal(t, Sequence{float64(1), "two", map[string]any{"three": float64(3)}}, seq)
}

func TestSetDataAcceptsStructs(t *testing.T) {
	type item struct {
		ID   int    `json:"id"`
		Name string `json:"name"`
	}
	s := newTestStore(t, Config{})

	require.NoError(t, s.SetData([]item{{ID: 1, Name: "a"}, {ID: 2, Name: "b"}}))
	raw, _, err := s.GetRaw()
	require.NoError(t, err)
	require.JSONEq(t, `[{"id":1,"name":"a"},{"id":2,"name":"b"}]`, raw)

	require.NoError(t, s.SetData(item{ID: 3}))
	v, err := s.GetParsed()
	require.NoError(t, err)
	require.Equal(t, KindObject, v.Kind())
}

func TestSetDataRejectsInvalid(t *testing.T) {
	mem := slot.NewMemory()
	s := newTestStore(t, Config{Slot: mem})
	require.NoError(t, s.SetData(Sequence{"keep"}))
	updates := recordEvents(t, s, EventUpdated)

	cases := map[string]any{
		"nil":          nil,
		"string":       "text",
		"number":       42,
		"bool":         true,
		"nil map":      map[string]any(nil),
		"channel elem": Sequence{make(chan int)},
		"func field":   Object{"f": func() {}},
		"named scalar": time.Second,
	}
	for name, v := range cases {
		t.Run(name, func(t *testing.T) {
			err := s.SetData(v)
			require.ErrorIs(t, err, ErrInvalidData)

			raw, _, err := mem.Get("items")
			require.NoError(t, err)
			require.Equal(t, `["keep"]`, raw)
		})
	}
	require.Empty(t, *updates)
}

func TestCorruptData(t *testing.T) {
	mem := slot.NewMemory()
	st := stats.New()
	s := newTestStore(t, Config{Slot: mem, Stats: st})

	for _, raw := range []string{"not json", "42", `"text"`, "null", "{"} {
		require.NoError(t, mem.Set("items", raw))
		_, err := s.GetParsed()
		require.ErrorIs(t, err, ErrCorruptData, raw)

		var corrupt *CorruptDataError
		require.ErrorAs(t, err, &corrupt)
		require.Equal(t, raw, corrupt.Raw)

		_, err = s.Count()
		require.ErrorIs(t, err, ErrCorruptData)
	}
	require.Equal(t, int64(10), st.Snapshot().CorruptReads)

	// Blank text reads as the empty sequence
	require.NoError(t, mem.Set("items", "  "))
	v, err := s.GetParsed()
	require.NoError(t, err)
	require.Equal(t, 0, v.Len())

	// Corrupt text can be overwritten
	require.NoError(t, mem.Set("items", "garbage"))
	require.NoError(t, s.SetData(Sequence{}))
	_, err = s.GetParsed()
	require.NoError(t, err)
}

func TestBackingStoreErrors(t *testing.T) {
	boom := errors.New("boom")
	s := newTestStore(t, Config{Slot: brokenSlot{err: boom}})

	_, _, err := s.GetRaw()
	require.ErrorIs(t, err, ErrBackingStore)
	require.ErrorIs(t, err, boom)

	err = s.SetData(Sequence{})
	require.ErrorIs(t, err, ErrBackingStore)
	var bse *BackingStoreError
	require.ErrorAs(t, err, &bse)
	require.Equal(t, "set", bse.Op)

	require.ErrorIs(t, s.Clear(), ErrBackingStore)
}

func TestQuotaExceededLeavesStateUnchanged(t *testing.T) {
	mem := slot.NewMemory(slot.WithMaxValueBytes(16))
	s := newTestStore(t, Config{Slot: mem})
	require.NoError(t, s.SetData(Sequence{1}))
	updates := recordEvents(t, s, EventUpdated)

	err := s.Insert("a long string that does not fit")
	require.ErrorIs(t, err, ErrBackingStore)
	require.ErrorIs(t, err, slot.ErrQuotaExceeded)

	raw, _, err := s.GetRaw()
	require.NoError(t, err)
	require.Equal(t, "[1]", raw)
	require.Empty(t, *updates)
}

func TestExpiry(t *testing.T) {
	clock := newFakeClock()
	mem := slot.NewMemory()
	st := stats.New()
	s := newTestStore(t, Config{Slot: mem, ExpireAfter: time.Minute, Clock: clock.Now, Stats: st})
	resets := recordEvents(t, s, EventReset)

	require.NoError(t, s.SetData(Sequence{"a"}))
	deadline, ok := s.ExpiresAt()
	require.True(t, ok)
	require.Equal(t, clock.Now().Add(time.Minute), deadline)

	clock.Advance(59 * time.Second)
	n, err := s.Count()
	require.NoError(t, err)
	require.Equal(t, 1, n)
	require.Empty(t, *resets)

	// Reaching the deadline exactly counts as expired
	clock.Advance(time.Second)
	n, err = s.Count()
	require.NoError(t, err)
	require.Equal(t, 0, n)
	require.Len(t, *resets, 1)
	require.Nil(t, (*resets)[0])

	_, found, err := mem.Get("items")
	require.NoError(t, err)
	require.False(t, found)
	_, ok = s.ExpiresAt()
	require.False(t, ok)
	require.Equal(t, int64(1), st.Snapshot().Expirations)

	// A cleared store does not expire again
	clock.Advance(time.Hour)
	_, err = s.GetParsed()
	require.NoError(t, err)
	require.Len(t, *resets, 1)
}

func TestExpiryRenewsOnWrite(t *testing.T) {
	clock := newFakeClock()
	s := newTestStore(t, Config{ExpireAfter: time.Minute, Clock: clock.Now})

	require.NoError(t, s.SetData(Sequence{"a"}))
	clock.Advance(50 * time.Second)
	require.NoError(t, s.Insert("b"))
	clock.Advance(50 * time.Second)

	n, err := s.Count()
	require.NoError(t, err)
	require.Equal(t, 2, n)
}

func TestExpiryLeavesPreexistingDataAlone(t *testing.T) {
	clock := newFakeClock()
	mem := slot.NewMemory()
	require.NoError(t, mem.Set("items", `["old"]`))

	s := newTestStore(t, Config{Slot: mem, ExpireAfter: time.Minute, Clock: clock.Now})
	_, ok := s.ExpiresAt()
	require.False(t, ok)

	clock.Advance(2 * time.Minute)
	n, err := s.Count()
	require.NoError(t, err)
	require.Equal(t, 1, n)
	raw, found, err := mem.Get("items")
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, `["old"]`, raw)

	// The deadline starts with this store's first write
	require.NoError(t, s.Insert("new"))
	clock.Advance(time.Minute)
	n, err = s.Count()
	require.NoError(t, err)
	require.Equal(t, 0, n)
}

func TestNoExpiryWhenDisabled(t *testing.T) {
	clock := newFakeClock()
	s := newTestStore(t, Config{Clock: clock.Now})

	require.NoError(t, s.SetData(Sequence{"a"}))
	clock.Advance(24 * 365 * time.Hour)
	n, err := s.Count()
	require.NoError(t, err)
	require.Equal(t, 1, n)
	_, ok := s.ExpiresAt()
	require.False(t, ok)
}

func TestClear(t *testing.T) {
	mem := slot.NewMemory()
	s := newTestStore(t, Config{Slot: mem})
	resets := recordEvents(t, s, EventReset)

	require.NoError(t, s.SetData(Sequence{"a"}))
	require.NoError(t, s.Clear())
	_, found, err := mem.Get("items")
	require.NoError(t, err)
	require.False(t, found)
	require.Len(t, *resets, 1)

	// Clearing an empty store still fires
	require.NoError(t, s.Clear())
	require.Len(t, *resets, 2)
}

func TestStoresWithDifferentKeysAreIndependent(t *testing.T) {
	mem := slot.NewMemory()
	a := newTestStore(t, Config{Slot: mem, Key: "a"})
	b := newTestStore(t, Config{Slot: mem, Key: "b"})

	require.NoError(t, a.SetData(Sequence{1, 2}))
	require.NoError(t, b.SetData(Object{"x": 1}))
	require.NoError(t, a.Clear())

	n, err := b.Count()
	require.NoError(t, err)
	require.Equal(t, 1, n)
}
