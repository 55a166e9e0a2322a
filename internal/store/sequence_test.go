package store

import (
	"cmp"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"slotcache/internal/slot"
)

func seedStore(t *testing.T, data any) (*Store, *slot.Memory) {
	t.Helper()
	mem := slot.NewMemory()
	s := newTestStore(t, Config{Slot: mem})
	require.NoError(t, s.SetData(data))
	return s, mem
}

func rawOf(t *testing.T, mem *slot.Memory) string {
	t.Helper()
	raw, _, err := mem.Get("items")
	require.NoError(t, err)
	return raw
}

func byID(id float64) Predicate {
	return func(elem any, _ int) bool {
		obj, ok := elem.(map[string]any)
		return ok && obj["id"] == id
	}
}

func TestInsert(t *testing.T) {
	mem := slot.NewMemory()
	s := newTestStore(t, Config{Slot: mem})
	updates := recordEvents(t, s, EventUpdated)

	require.NoError(t, s.Insert(Object{"id": 1}))
	require.NoError(t, s.Insert(Object{"id": 2}, Object{"id": 3}))
	require.JSONEq(t, `[{"id":1},{"id":2},{"id":3}]`, rawOf(t, mem))
	require.Len(t, *updates, 2)

	// Nothing to insert means nothing written
	before := mem.Changes()
	require.NoError(t, s.Insert())
	require.Equal(t, before, mem.Changes())
	require.Len(t, *updates, 2)
}

func TestInsertIntoBareObject(t *testing.T) {
	s, mem := seedStore(t, Object{"id": 1})

	require.NoError(t, s.Insert(Object{"id": 2}))
	require.JSONEq(t, `[{"id":1},{"id":2}]`, rawOf(t, mem))
}

func TestInsertRejectsUnencodable(t *testing.T) {
	s, mem := seedStore(t, Sequence{1})

	require.ErrorIs(t, s.Insert(make(chan int)), ErrInvalidData)
	require.Equal(t, "[1]", rawOf(t, mem))
}

func TestFindOneAndUpdate(t *testing.T) {
	s, mem := seedStore(t, Sequence{
		Object{"id": 1, "name": "a", "tag": "x"},
		Object{"id": 2, "name": "b"},
		Object{"id": 2, "name": "c"},
	})

	require.NoError(t, s.FindOneAndUpdate(byID(2), Object{"name": "B", "extra": true}))
	require.JSONEq(t, `[
		{"id":1,"name":"a","tag":"x"},
		{"id":2,"name":"B","extra":true},
		{"id":2,"name":"c"}
	]`, rawOf(t, mem))
}

func TestFindOneAndUpdateNoMatchIsNoop(t *testing.T) {
	s, mem := seedStore(t, Sequence{Object{"id": 1}})
	updates := recordEvents(t, s, EventUpdated)
	before := mem.Changes()

	require.NoError(t, s.FindOneAndUpdate(byID(9), Object{"name": "x"}))
	require.Equal(t, before, mem.Changes())
	require.Empty(t, *updates)
}

func TestFindOneAndUpdateNonObject(t *testing.T) {
	s, mem := seedStore(t, Sequence{"plain", Object{"id": 1}})

	err := s.FindOneAndUpdate(func(any, int) bool { return true }, Object{"x": 1})
	require.ErrorIs(t, err, ErrInvalidData)
	require.JSONEq(t, `["plain",{"id":1}]`, rawOf(t, mem))
}

func TestFindOneAndReplace(t *testing.T) {
	s, mem := seedStore(t, Sequence{Object{"id": 1}, Object{"id": 2}})

	require.NoError(t, s.FindOneAndReplace(byID(2), "replaced"))
	require.JSONEq(t, `[{"id":1},"replaced"]`, rawOf(t, mem))

	require.NoError(t, s.FindOneAndReplace(byID(7), "nope"))
	require.JSONEq(t, `[{"id":1},"replaced"]`, rawOf(t, mem))
}

func TestFindOneAndRemove(t *testing.T) {
	s, mem := seedStore(t, Sequence{Object{"id": 1}, Object{"id": 2}, Object{"id": 2}})

	require.NoError(t, s.FindOneAndRemove(byID(2)))
	require.JSONEq(t, `[{"id":1},{"id":2}]`, rawOf(t, mem))

	updates := recordEvents(t, s, EventUpdated)
	require.NoError(t, s.FindOneAndRemove(byID(5)))
	require.Empty(t, *updates)
}

func TestFindOneAndRemoveOnBareObject(t *testing.T) {
	s, mem := seedStore(t, Object{"id": 1})

	require.NoError(t, s.FindOneAndRemove(byID(1)))
	require.Equal(t, "[]", rawOf(t, mem))
}

func TestRemoveByIndex(t *testing.T) {
	s, mem := seedStore(t, Sequence{"a", "b", "c"})
	updates := recordEvents(t, s, EventUpdated)

	require.NoError(t, s.RemoveByIndex(1))
	require.Equal(t, `["a","c"]`, rawOf(t, mem))

	// Negative indexes are ignored entirely
	require.NoError(t, s.RemoveByIndex(-1))
	require.Len(t, *updates, 1)

	// Past the end rewrites the sequence unchanged and still notifies
	require.NoError(t, s.RemoveByIndex(10))
	require.Equal(t, `["a","c"]`, rawOf(t, mem))
	require.Len(t, *updates, 2)
}

func TestMutationsRequirePredicate(t *testing.T) {
	s, _ := seedStore(t, Sequence{})

	require.ErrorIs(t, s.FindOneAndUpdate(nil, Object{}), ErrInvalidArgument)
	require.ErrorIs(t, s.FindOneAndReplace(nil, "x"), ErrInvalidArgument)
	require.ErrorIs(t, s.FindOneAndRemove(nil), ErrInvalidArgument)
}

func TestMutationsSurfaceCorruptData(t *testing.T) {
	s, mem := seedStore(t, Sequence{})
	require.NoError(t, mem.Set("items", "{oops"))

	require.ErrorIs(t, s.Insert("x"), ErrCorruptData)
	require.ErrorIs(t, s.RemoveByIndex(0), ErrCorruptData)
	require.Equal(t, "{oops", rawOf(t, mem))
}

func TestViews(t *testing.T) {
	s, mem := seedStore(t, Sequence{
		Object{"id": 3, "group": "b"},
		Object{"id": 1, "group": "a"},
		Object{"id": 2, "group": "b"},
	})
	before := mem.Changes()

	var visited []int
	require.NoError(t, s.ForEach(func(_ any, i int) { visited = append(visited, i) }))
	require.Equal(t, []int{0, 1, 2}, visited)

	groupB := func(elem any, _ int) bool { return elem.(map[string]any)["group"] == "b" }
	filtered, err := s.Filter(groupB)
	require.NoError(t, err)
	require.Len(t, filtered, 2)

	none, err := s.Filter(func(any, int) bool { return false })
	require.NoError(t, err)
	require.NotNil(t, none)
	require.Empty(t, none)

	found, ok, err := s.Find(groupB)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, float64(3), found.(map[string]any)["id"])

	_, ok, err = s.Find(byID(42))
	require.NoError(t, err)
	require.False(t, ok)

	idx, err := s.FindIndex(byID(2))
	require.NoError(t, err)
	require.Equal(t, 2, idx)
	idx, err = s.FindIndex(byID(42))
	require.NoError(t, err)
	require.Equal(t, -1, idx)

	ids, err := s.Map(func(elem any, _ int) any { return elem.(map[string]any)["id"] })
	require.NoError(t, err)
	require.Equal(t, Sequence{float64(3), float64(1), float64(2)}, ids)

	sum, err := s.Reduce(func(acc, elem any, _ int) any {
		return acc.(float64) + elem.(map[string]any)["id"].(float64)
	}, float64(0))
	require.NoError(t, err)
	require.Equal(t, float64(6), sum)

	require.Equal(t, before, mem.Changes())
}

func TestSortIsStableAndDoesNotPersist(t *testing.T) {
	s, mem := seedStore(t, Sequence{
		Object{"k": 2, "n": "first"},
		Object{"k": 1, "n": "x"},
		Object{"k": 2, "n": "second"},
	})
	raw := rawOf(t, mem)

	sorted, err := s.Sort(func(a, b any) int {
		return cmp.Compare(a.(map[string]any)["k"].(float64), b.(map[string]any)["k"].(float64))
	})
	require.NoError(t, err)

	var names []any
	for _, e := range sorted {
		names = append(names, e.(map[string]any)["n"])
	}
	require.Equal(t, []any{"x", "first", "second"}, names)
	require.Equal(t, raw, rawOf(t, mem))
}

func TestViewsOnBareObject(t *testing.T) {
	s, _ := seedStore(t, Object{"id": 1})

	out, err := s.Map(func(elem any, i int) any { return i })
	require.NoError(t, err)
	require.Equal(t, Sequence{0}, out)
}

func TestViewsRequireCallbacks(t *testing.T) {
	s, _ := seedStore(t, Sequence{})

	require.ErrorIs(t, s.ForEach(nil), ErrInvalidArgument)
	_, err := s.Filter(nil)
	require.ErrorIs(t, err, ErrInvalidArgument)
	_, _, err = s.Find(nil)
	require.ErrorIs(t, err, ErrInvalidArgument)
	idx, err := s.FindIndex(nil)
	require.ErrorIs(t, err, ErrInvalidArgument)
	require.Equal(t, -1, idx)
	_, err = s.Map(nil)
	require.ErrorIs(t, err, ErrInvalidArgument)
	_, err = s.Sort(nil)
	require.ErrorIs(t, err, ErrInvalidArgument)
	_, err = s.Reduce(nil, 0)
	require.ErrorIs(t, err, ErrInvalidArgument)
}

func TestViewsSurfaceCorruptData(t *testing.T) {
	s, mem := seedStore(t, Sequence{})
	require.NoError(t, mem.Set("items", "true"))

	_, err := s.Filter(func(any, int) bool { return true })
	require.ErrorIs(t, err, ErrCorruptData)
	_, err = s.Reduce(func(acc, _ any, _ int) any { return acc }, nil)
	require.ErrorIs(t, err, ErrCorruptData)
}

func TestPredicatesMayCallBackIntoStore(t *testing.T) {
	s, mem := seedStore(t, Sequence{Object{"id": 1}, Object{"id": 2}, Object{"id": 3}})

	// Matches the last element by asking the store for its length
	last := func(_ any, i int) bool {
		n, err := s.Count()
		return err == nil && i == n-1
	}

	done := make(chan error, 1)
	go func() {
		if err := s.FindOneAndUpdate(last, Object{"last": true}); err != nil {
			done <- err
			return
		}
		if err := s.FindOneAndReplace(last, Object{"id": 4}); err != nil {
			done <- err
			return
		}
		done <- s.FindOneAndRemove(func(elem any, i int) bool {
			found, _, _ := s.Find(byID(1))
			return found != nil && i == 0
		})
	}()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("store call from a predicate did not return")
	}
	require.JSONEq(t, `[{"id":2},{"id":4}]`, rawOf(t, mem))

	// The store is still usable afterwards
	n, err := s.Count()
	require.NoError(t, err)
	require.Equal(t, 2, n)
}
