package store

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// Kind tags the two payload shapes a store accepts
type Kind int

const (
	KindSequence Kind = iota
	KindObject
)

func (k Kind) String() string {
	switch k {
	case KindObject:
		return "object"
	default:
		return "sequence"
	}
}

// Object is a decoded JSON object
type Object = map[string]any

// Sequence is a decoded JSON array
type Sequence = []any

// Value is the closed union Object | Sequence. The zero Value is the empty
// sequence.
type Value struct {
	kind     Kind
	object   Object
	sequence Sequence
}

// ObjectValue wraps an object. A nil map is the empty object.
func ObjectValue(o Object) Value {
	if o == nil {
		o = Object{}
	}
	return Value{kind: KindObject, object: o}
}

// SequenceValue wraps a sequence
func SequenceValue(s Sequence) Value {
	return Value{kind: KindSequence, sequence: s}
}

func (v Value) Kind() Kind { return v.kind }

// Object returns the object and true when the value is an object
func (v Value) Object() (Object, bool) {
	if v.kind != KindObject {
		return nil, false
	}
	return v.object, true
}

// Sequence returns the sequence and true when the value is a sequence
func (v Value) Sequence() (Sequence, bool) {
	if v.kind != KindSequence {
		return nil, false
	}
	if v.sequence == nil {
		return Sequence{}, true
	}
	return v.sequence, true
}

// AsSequence coerces the value to a sequence: a bare object becomes a
// one-element sequence. The result is a fresh slice.
func (v Value) AsSequence() Sequence {
	if v.kind == KindObject {
		return Sequence{v.object}
	}
	out := make(Sequence, len(v.sequence))
	copy(out, v.sequence)
	return out
}

// Len is 1 for an object and the element count for a sequence
func (v Value) Len() int {
	if v.kind == KindObject {
		return 1
	}
	return len(v.sequence)
}

// Interface returns the underlying Object or Sequence
func (v Value) Interface() any {
	if v.kind == KindObject {
		return v.object
	}
	if v.sequence == nil {
		return Sequence{}
	}
	return v.sequence
}

func (v Value) MarshalJSON() ([]byte, error) {
	return json.Marshal(v.Interface())
}

func (v *Value) UnmarshalJSON(data []byte) error {
	decoded, err := decodeValue(string(data))
	if err != nil {
		return err
	}
	*v = decoded
	return nil
}

var errNotContainer = errors.New("not a JSON object or array")

// decodeValue parses slot text. Blank text is the empty sequence.
func decodeValue(raw string) (Value, error) {
	if strings.TrimSpace(raw) == "" {
		return SequenceValue(Sequence{}), nil
	}

	var decoded any
	if err := json.Unmarshal([]byte(raw), &decoded); err != nil {
		return Value{}, err
	}
	switch x := decoded.(type) {
	case map[string]any:
		return ObjectValue(x), nil
	case []any:
		return SequenceValue(x), nil
	default:
		return Value{}, errNotContainer
	}
}

// toValue validates a write at the boundary. Anything whose JSON encoding
// is an object or array is accepted; scalars and nil are rejected.
func toValue(v any) (Value, error) {
	switch x := v.(type) {
	case Value:
		return x, nil
	case *Value:
		if x == nil {
			return Value{}, &InvalidDataError{Reason: "nil value"}
		}
		return *x, nil
	case map[string]any:
		if x == nil {
			return Value{}, &InvalidDataError{Reason: "nil object"}
		}
		return ObjectValue(x), nil
	case []any:
		return SequenceValue(x), nil
	case nil:
		return Value{}, &InvalidDataError{Reason: "nil value"}
	case string, bool, json.Number,
		int, int8, int16, int32, int64,
		uint, uint8, uint16, uint32, uint64,
		float32, float64:
		return Value{}, &InvalidDataError{Reason: fmt.Sprintf("%T is neither an object nor a sequence", v)}
	}

	data, err := json.Marshal(v)
	if err != nil {
		return Value{}, &InvalidDataError{Reason: fmt.Sprintf("%T is not JSON encodable", v), Err: err}
	}
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || (trimmed[0] != '{' && trimmed[0] != '[') {
		return Value{}, &InvalidDataError{Reason: fmt.Sprintf("%T is neither an object nor a sequence", v)}
	}
	decoded, err := decodeValue(string(trimmed))
	if err != nil {
		return Value{}, &InvalidDataError{Reason: fmt.Sprintf("%T did not round-trip through JSON", v), Err: err}
	}
	return decoded, nil
}
