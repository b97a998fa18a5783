package facade

import (
	"fmt"
	"reflect"
)

// maxNaturalAlignment is the alignment the segment layout guarantees a
// slot starts at (slots are packed at element_size strides right after
// the timestamp table, which is itself 8-byte aligned — see
// ringbuffer/header.go). A type that demands stricter alignment than
// this cannot be safely placed in a slot.
const maxNaturalAlignment = 8

// ErrTypeConstraintViolated is spec.md §7's TypeConstraintViolated: the
// value type is not trivially copyable, or its alignment exceeds what
// the segment layout guarantees. This is a construction-time error,
// never a publish-time one (spec.md §4.3: "violations are a program
// error... detected at facade construction").
var ErrTypeConstraintViolated = fmt.Errorf("facade: type is not trivially copyable or is over-aligned")

// assertTriviallyCopyable rejects any T containing a pointer,
// interface, map, slice, channel, func, string, or unsafe.Pointer —
// anything whose bytes cannot be memcpy'd across a process boundary
// without invoking Go's own reference semantics — and any T whose
// natural alignment exceeds maxNaturalAlignment.
func assertTriviallyCopyable[T any]() error {
	var zero T
	t := reflect.TypeOf(zero)
	if t == nil {
		return fmt.Errorf("%w: nil/interface element type", ErrTypeConstraintViolated)
	}
	if containsReference(t) {
		return fmt.Errorf("%w: %s contains a reference type", ErrTypeConstraintViolated, t)
	}
	if t.Align() > maxNaturalAlignment {
		return fmt.Errorf("%w: %s requires alignment %d > %d", ErrTypeConstraintViolated, t, t.Align(), maxNaturalAlignment)
	}
	return nil
}

func containsReference(t reflect.Type) bool {
	switch t.Kind() {
	case reflect.Ptr, reflect.Interface, reflect.Map, reflect.Slice,
		reflect.Chan, reflect.Func, reflect.String, reflect.UnsafePointer:
		return true
	case reflect.Struct:
		for i := 0; i < t.NumField(); i++ {
			if containsReference(t.Field(i).Type) {
				return true
			}
		}
		return false
	case reflect.Array:
		return containsReference(t.Elem())
	default:
		return false
	}
}
