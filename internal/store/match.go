package store

import "reflect"

// FieldEquals matches object elements whose field equals want once both
// sides are in decoded JSON form, so FieldEquals("id", 2) matches {"id":2}.
func FieldEquals(field string, want any) Predicate {
	var normalized any
	if err := remarshal(want, &normalized); err != nil {
		return func(any, int) bool { return false }
	}
	return func(elem any, _ int) bool {
		obj, ok := elem.(map[string]any)
		if !ok {
			return false
		}
		got, ok := obj[field]
		return ok && reflect.DeepEqual(got, normalized)
	}
}
