package flow

import (
	"iter"
	"reflect"
)

// values expands the argument of Execute: a lazy sequence or any slice other
// than []byte yields its elements, everything else is a single value.
func values(value any) iter.Seq[any] {
	switch v := value.(type) {
	case iter.Seq[any]:
		return v
	case []any:
		return func(yield func(any) bool) {
			for _, item := range v {
				if !yield(item) {
					return
				}
			}
		}
	case []byte:
		return single(v)
	}

	rv := reflect.ValueOf(value)
	if rv.Kind() != reflect.Slice {
		return single(value)
	}
	return func(yield func(any) bool) {
		for i := range rv.Len() {
			if !yield(rv.Index(i).Interface()) {
				return
			}
		}
	}
}

func single(value any) iter.Seq[any] {
	return func(yield func(any) bool) {
		yield(value)
	}
}
