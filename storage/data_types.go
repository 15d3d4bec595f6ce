package storage

import (
	"encoding/binary"
	"fmt"
	"strings"
)

// DataType represents the data type of a column
type DataType uint8

const (
	Int32 DataType = iota
	Int64
	Float32
	Float64
	String
)

// ByteOrder is the byte order used for all binary encodings
var ByteOrder = binary.LittleEndian

// String returns the canonical lower-case name of the data type
func (dt DataType) String() string {
	switch dt {
	case Int32:
		return "int32"
	case Int64:
		return "int64"
	case Float32:
		return "float32"
	case Float64:
		return "float64"
	case String:
		return "string"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(dt))
	}
}

// ParseDataType resolves a canonical type name back to its DataType
func ParseDataType(name string) (DataType, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "int32", "int":
		return Int32, nil
	case "int64", "long":
		return Int64, nil
	case "float32", "float":
		return Float32, nil
	case "float64", "double":
		return Float64, nil
	case "string", "text":
		return String, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrUnsupportedType, name)
	}
}

// ColumnValue constrains the Go types a column segment can hold. Comparison
// is the natural total order for numerics and lexicographic order for text.
type ColumnValue interface {
	int32 | int64 | float32 | float64 | string
}

// TypeOf returns the DataType corresponding to the type parameter T
func TypeOf[T ColumnValue]() DataType {
	var zero T
	switch any(zero).(type) {
	case int32:
		return Int32
	case int64:
		return Int64
	case float32:
		return Float32
	case float64:
		return Float64
	default:
		return String
	}
}

// IsIntegerType reports whether T is one of the signed integer column types
func IsIntegerType[T ColumnValue]() bool {
	dt := TypeOf[T]()
	return dt == Int32 || dt == Int64
}

// IsFloatType reports whether T is one of the floating point column types
func IsFloatType[T ColumnValue]() bool {
	dt := TypeOf[T]()
	return dt == Float32 || dt == Float64
}
