package storage

import "fmt"

// Segment is a typed value vector holding one column's values within one
// chunk. NULLs are not modeled; every position holds a value.
type Segment interface {
	Len() int
	DataType() DataType
	// ValueAt returns the value at position i boxed as interface{}
	ValueAt(i int) interface{}
	// appendAny appends a boxed value, converting compatible literal
	// types; a non-convertible value is a type mismatch
	appendAny(v interface{}) error
}

// ValueSegment is the single concrete Segment implementation,
// monomorphized per column type.
type ValueSegment[T ColumnValue] struct {
	values []T
}

// NewValueSegment creates an empty segment with the given capacity hint
func NewValueSegment[T ColumnValue](capacity int) *ValueSegment[T] {
	return &ValueSegment[T]{values: make([]T, 0, capacity)}
}

// NewSegment creates an empty segment for a runtime data type
func NewSegment(dt DataType, capacity int) (Segment, error) {
	switch dt {
	case Int32:
		return NewValueSegment[int32](capacity), nil
	case Int64:
		return NewValueSegment[int64](capacity), nil
	case Float32:
		return NewValueSegment[float32](capacity), nil
	case Float64:
		return NewValueSegment[float64](capacity), nil
	case String:
		return NewValueSegment[string](capacity), nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedType, dt)
	}
}

// Len returns the number of values in the segment
func (s *ValueSegment[T]) Len() int {
	return len(s.values)
}

// DataType returns the runtime data type of the segment
func (s *ValueSegment[T]) DataType() DataType {
	return TypeOf[T]()
}

// Value returns the value at position i
func (s *ValueSegment[T]) Value(i int) T {
	return s.values[i]
}

// ValueAt returns the value at position i boxed as interface{}
func (s *ValueSegment[T]) ValueAt(i int) interface{} {
	return s.values[i]
}

// Values exposes the backing slice; callers must not mutate it
func (s *ValueSegment[T]) Values() []T {
	return s.values
}

// Append adds a value to the end of the segment
func (s *ValueSegment[T]) Append(v T) {
	s.values = append(s.values, v)
}

func (s *ValueSegment[T]) appendAny(v interface{}) error {
	cast, err := CastValue[T](v)
	if err != nil {
		return err
	}
	s.values = append(s.values, cast)
	return nil
}

// SegmentValues returns the typed backing slice of a segment, failing with
// a type mismatch when T does not match the segment's runtime type.
func SegmentValues[T ColumnValue](s Segment) ([]T, error) {
	typed, ok := s.(*ValueSegment[T])
	if !ok {
		return nil, fmt.Errorf("%w: segment holds %s", ErrTypeMismatch, s.DataType())
	}
	return typed.values, nil
}

// CastValue converts a boxed literal to the column value type T. Integer
// literals convert between integer widths when the value is representable;
// numeric literals never convert implicitly to or from strings.
func CastValue[T ColumnValue](v interface{}) (T, error) {
	var zero T
	if direct, ok := v.(T); ok {
		return direct, nil
	}
	switch any(zero).(type) {
	case int32:
		switch n := v.(type) {
		case int:
			if int(int32(n)) == n {
				return any(int32(n)).(T), nil
			}
		case int64:
			if int64(int32(n)) == n {
				return any(int32(n)).(T), nil
			}
		}
	case int64:
		switch n := v.(type) {
		case int:
			return any(int64(n)).(T), nil
		case int32:
			return any(int64(n)).(T), nil
		}
	case float32:
		switch n := v.(type) {
		case int:
			return any(float32(n)).(T), nil
		case float64:
			return any(float32(n)).(T), nil
		}
	case float64:
		switch n := v.(type) {
		case int:
			return any(float64(n)).(T), nil
		case float32:
			return any(float64(n)).(T), nil
		}
	}
	return zero, fmt.Errorf("%w: cannot use %T as %s", ErrTypeMismatch, v, TypeOf[T]())
}
