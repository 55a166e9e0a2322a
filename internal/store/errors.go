package store

import (
	"errors"
	"fmt"
)

// Sentinel kinds for errors.Is. Every typed error below matches exactly one.
var (
	ErrConfiguration   = errors.New("configuration error")
	ErrInvalidData     = errors.New("invalid data")
	ErrInvalidArgument = errors.New("invalid argument")
	ErrCorruptData     = errors.New("corrupt data")
	ErrBackingStore    = errors.New("backing store error")
)

// ConfigurationError reports bad constructor input
type ConfigurationError struct {
	Field  string
	Reason string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("configuration error: %s %s", e.Field, e.Reason)
}

func (e *ConfigurationError) Is(target error) bool { return target == ErrConfiguration }

// InvalidDataError reports a write whose value is not an object or a
// sequence of JSON-encodable elements
type InvalidDataError struct {
	Reason string
	Err    error
}

func (e *InvalidDataError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("invalid data: %s: %v", e.Reason, e.Err)
	}
	return "invalid data: " + e.Reason
}

func (e *InvalidDataError) Unwrap() error         { return e.Err }
func (e *InvalidDataError) Is(target error) bool { return target == ErrInvalidData }

// InvalidArgumentError reports a bad listener registration or callback
type InvalidArgumentError struct {
	Argument string
	Reason   string
}

func (e *InvalidArgumentError) Error() string {
	return fmt.Sprintf("invalid argument: %s %s", e.Argument, e.Reason)
}

func (e *InvalidArgumentError) Is(target error) bool { return target == ErrInvalidArgument }

// CorruptDataError reports text under the key that is not a JSON object or
// array
type CorruptDataError struct {
	Key string
	Raw string
	Err error
}

func (e *CorruptDataError) Error() string {
	return fmt.Sprintf("corrupt data under %q: %v", e.Key, e.Err)
}

func (e *CorruptDataError) Unwrap() error         { return e.Err }
func (e *CorruptDataError) Is(target error) bool { return target == ErrCorruptData }

// BackingStoreError wraps a failure of the underlying slot
type BackingStoreError struct {
	Op  string
	Key string
	Err error
}

func (e *BackingStoreError) Error() string {
	return fmt.Sprintf("backing store %s %q: %v", e.Op, e.Key, e.Err)
}

func (e *BackingStoreError) Unwrap() error         { return e.Err }
func (e *BackingStoreError) Is(target error) bool { return target == ErrBackingStore }
