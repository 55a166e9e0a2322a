package store

import "slices"

// Predicate selects elements of the payload sequence
type Predicate func(elem any, index int) bool

// mutate runs one read-compute-write cycle under the store lock. fn returns
// the next sequence and whether it should be written. fn must not call back
// into the store; caller callbacks go through findAndWrite instead.
func (s *Store) mutate(fn func(seq Sequence) (Sequence, bool, error)) error {
	s.mu.Lock()
	var (
		decoded Value
		wrote   bool
	)
	current, cleared, err := s.getParsedLocked()
	if err == nil {
		var (
			next    Sequence
			changed bool
		)
		next, changed, err = fn(current.AsSequence())
		if err == nil && changed {
			decoded, err = s.setDataLocked(next)
			wrote = err == nil
		}
	}
	s.mu.Unlock()

	if cleared {
		s.emit(EventReset, nil)
	}
	if wrote {
		s.emit(EventUpdated, decoded)
	}
	return err
}

func indexOf(seq Sequence, pred Predicate) int {
	for i, elem := range seq {
		if pred(elem, i) {
			return i
		}
	}
	return -1
}

func requireFunc(ok bool, name string) error {
	if ok {
		return nil
	}
	return &InvalidArgumentError{Argument: name, Reason: "must be a function"}
}

// Insert appends items in order. Inserting nothing is a no-op.
func (s *Store) Insert(items ...any) error {
	if len(items) == 0 {
		return nil
	}
	return s.mutate(func(seq Sequence) (Sequence, bool, error) {
		return append(seq, items...), true, nil
	})
}

// findAndWrite reads the sequence, runs pred without holding the store
// lock and writes what fn returns for the first match. No match is a no-op.
// pred may call back into the store; a write racing the lookup wins or
// loses like any other SetData.
func (s *Store) findAndWrite(pred Predicate, fn func(seq Sequence, idx int) (Sequence, error)) error {
	if err := requireFunc(pred != nil, "predicate"); err != nil {
		return err
	}
	seq, err := s.GetAsSequence()
	if err != nil {
		return err
	}
	idx := indexOf(seq, pred)
	if idx < 0 {
		return nil
	}
	next, err := fn(seq, idx)
	if err != nil {
		return err
	}
	return s.SetData(next)
}

// FindOneAndUpdate shallow-merges patch into the first element matching
// pred. No match is a no-op; a match that is not an object is rejected.
func (s *Store) FindOneAndUpdate(pred Predicate, patch Object) error {
	return s.findAndWrite(pred, func(seq Sequence, idx int) (Sequence, error) {
		found, ok := seq[idx].(map[string]any)
		if !ok {
			return nil, &InvalidDataError{Reason: "matched element is not an object and cannot be patched"}
		}

		merged := make(Object, len(found)+len(patch))
		for k, v := range found {
			merged[k] = v
		}
		for k, v := range patch {
			merged[k] = v
		}
		seq[idx] = merged
		return seq, nil
	})
}

// FindOneAndReplace swaps the first element matching pred for item
func (s *Store) FindOneAndReplace(pred Predicate, item any) error {
	return s.findAndWrite(pred, func(seq Sequence, idx int) (Sequence, error) {
		seq[idx] = item
		return seq, nil
	})
}

// FindOneAndRemove removes the first element matching pred
func (s *Store) FindOneAndRemove(pred Predicate) error {
	return s.findAndWrite(pred, func(seq Sequence, idx int) (Sequence, error) {
		return withoutIndex(seq, idx), nil
	})
}

// RemoveByIndex writes the sequence without the element at idx. A negative
// index is a no-op.
func (s *Store) RemoveByIndex(idx int) error {
	if idx < 0 {
		return nil
	}
	return s.mutate(func(seq Sequence) (Sequence, bool, error) {
		return withoutIndex(seq, idx), true, nil
	})
}

// withoutIndex filters by position rather than splicing
func withoutIndex(seq Sequence, idx int) Sequence {
	out := make(Sequence, 0, len(seq))
	for i, elem := range seq {
		if i != idx {
			out = append(out, elem)
		}
	}
	return out
}

// The views below read the current sequence and never write.

// ForEach calls fn for every element
func (s *Store) ForEach(fn func(elem any, index int)) error {
	if err := requireFunc(fn != nil, "callback"); err != nil {
		return err
	}
	seq, err := s.GetAsSequence()
	if err != nil {
		return err
	}
	for i, elem := range seq {
		fn(elem, i)
	}
	return nil
}

// Filter returns the elements matching pred
func (s *Store) Filter(pred Predicate) (Sequence, error) {
	if err := requireFunc(pred != nil, "predicate"); err != nil {
		return nil, err
	}
	seq, err := s.GetAsSequence()
	if err != nil {
		return nil, err
	}
	out := Sequence{}
	for i, elem := range seq {
		if pred(elem, i) {
			out = append(out, elem)
		}
	}
	return out, nil
}

// Find returns the first element matching pred
func (s *Store) Find(pred Predicate) (any, bool, error) {
	if err := requireFunc(pred != nil, "predicate"); err != nil {
		return nil, false, err
	}
	seq, err := s.GetAsSequence()
	if err != nil {
		return nil, false, err
	}
	if idx := indexOf(seq, pred); idx >= 0 {
		return seq[idx], true, nil
	}
	return nil, false, nil
}

// FindIndex returns the index of the first element matching pred, or -1
func (s *Store) FindIndex(pred Predicate) (int, error) {
	if err := requireFunc(pred != nil, "predicate"); err != nil {
		return -1, err
	}
	seq, err := s.GetAsSequence()
	if err != nil {
		return -1, err
	}
	return indexOf(seq, pred), nil
}

// Map returns fn applied to every element
func (s *Store) Map(fn func(elem any, index int) any) (Sequence, error) {
	if err := requireFunc(fn != nil, "callback"); err != nil {
		return nil, err
	}
	seq, err := s.GetAsSequence()
	if err != nil {
		return nil, err
	}
	out := make(Sequence, len(seq))
	for i, elem := range seq {
		out[i] = fn(elem, i)
	}
	return out, nil
}

// Sort returns a stably sorted copy. cmp follows slices.SortFunc.
func (s *Store) Sort(cmp func(a, b any) int) (Sequence, error) {
	if err := requireFunc(cmp != nil, "comparator"); err != nil {
		return nil, err
	}
	seq, err := s.GetAsSequence()
	if err != nil {
		return nil, err
	}
	slices.SortStableFunc(seq, cmp)
	return seq, nil
}

// Reduce folds the elements left to right starting from initial
func (s *Store) Reduce(fn func(acc, elem any, index int) any, initial any) (any, error) {
	if err := requireFunc(fn != nil, "reducer"); err != nil {
		return nil, err
	}
	seq, err := s.GetAsSequence()
	if err != nil {
		return nil, err
	}
	acc := initial
	for i, elem := range seq {
		acc = fn(acc, elem, i)
	}
	return acc, nil
}
