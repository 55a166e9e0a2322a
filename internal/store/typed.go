package store

import "encoding/json"

// Decode reads the payload into T through its JSON encoding
func Decode[T any](s *Store) (T, error) {
	var out T
	v, err := s.GetParsed()
	if err != nil {
		return out, err
	}
	if err := remarshal(v.Interface(), &out); err != nil {
		return out, &InvalidDataError{Reason: "payload does not fit the requested type", Err: err}
	}
	return out, nil
}

// DecodeSequence reads the payload as a sequence of T. A bare object
// decodes as one element.
func DecodeSequence[T any](s *Store) ([]T, error) {
	seq, err := s.GetAsSequence()
	if err != nil {
		return nil, err
	}
	out := make([]T, 0, len(seq))
	if err := remarshal(seq, &out); err != nil {
		return nil, &InvalidDataError{Reason: "elements do not fit the requested type", Err: err}
	}
	return out, nil
}

func remarshal(in, out any) error {
	data, err := json.Marshal(in)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, out)
}
