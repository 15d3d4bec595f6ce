package mergejoin

import (
	"errors"

	"quarrydb/storage"
)

// Errors
var (
	ErrInvalidClusterCount = errors.New("cluster count must be a positive power of two")
	ErrNilInput            = errors.New("input table is nil")
	ErrRowCountMismatch    = errors.New("materialized row count does not match source row count")
)

// MaterializedValue is one column value paired with the row id it came
// from. Row ids pass through every pipeline stage verbatim.
type MaterializedValue[T storage.ColumnValue] struct {
	Value T
	RowID storage.RowID
}

// MaterializedChunk is an ordered sequence of materialized values. Before
// clustering a chunk mirrors one source chunk; afterwards it is one
// cluster.
type MaterializedChunk[T storage.ColumnValue] []MaterializedValue[T]

// MaterializedColumnList is a chunked sequence of (value, row id) records
// extracted from one column.
type MaterializedColumnList[T storage.ColumnValue] []MaterializedChunk[T]

// TotalSize returns the record count across all chunks
func (mcl MaterializedColumnList[T]) TotalSize() int {
	total := 0
	for _, chunk := range mcl {
		total += len(chunk)
	}
	return total
}
