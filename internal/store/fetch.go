package store

import "context"

// FetchFunc loads a fresh payload, typically from a remote source
type FetchFunc func(ctx context.Context) (any, error)

// Fetch runs fn and writes its result with SetData. A failed or cancelled
// fetch leaves the store untouched.
func (s *Store) Fetch(ctx context.Context, fn FetchFunc) error {
	if fn == nil {
		return &InvalidArgumentError{Argument: "fetch", Reason: "must be a function"}
	}

	v, err := fn(ctx)
	if err != nil {
		s.log().WithError(err).Warn("fetch failed")
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.SetData(v)
}
