package storage

import "errors"

// Errors
var (
	ErrColumnNotFound      = errors.New("column not found")
	ErrTableNotFound       = errors.New("table not found")
	ErrDuplicateTable      = errors.New("table already registered")
	ErrUnsupportedType     = errors.New("unsupported column type")
	ErrTypeMismatch        = errors.New("value type does not match column type")
	ErrColumnCountMismatch = errors.New("value count does not match column count")
	ErrColumnsFrozen       = errors.New("cannot add columns to a table that already holds rows")
)
