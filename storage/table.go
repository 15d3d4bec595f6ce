package storage

import (
	"fmt"

	"quarrydb/trace"
)

// DefaultChunkSize is the target row count per chunk
const DefaultChunkSize = 1024

// ColumnDefinition pairs a column name with its data type
type ColumnDefinition struct {
	Name string
	Type DataType
}

// Table is a chunked in-memory column store. Rows append into the last
// chunk; a new chunk starts once the target chunk size is reached. Tables
// are write-once in practice: the engine's operators never mutate a table
// after it has been handed to them.
type Table struct {
	columns   []ColumnDefinition
	chunks    []*Chunk
	chunkSize int
}

// NewTable creates an empty table with the given target chunk size.
// A non-positive chunk size falls back to DefaultChunkSize.
func NewTable(chunkSize int) *Table {
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	return &Table{chunkSize: chunkSize}
}

// AddColumn appends a column definition. Columns are frozen once the
// first row has been appended.
func (t *Table) AddColumn(name string, dt DataType) error {
	if t.RowCount() > 0 {
		return ErrColumnsFrozen
	}
	t.columns = append(t.columns, ColumnDefinition{Name: name, Type: dt})
	// Row-less chunks must be rebuilt to include the new segment
	t.chunks = nil
	return nil
}

// Columns returns the table's column definitions
func (t *Table) Columns() []ColumnDefinition {
	return t.columns
}

// ColumnCount returns the number of columns
func (t *Table) ColumnCount() int {
	return len(t.columns)
}

// ColumnName returns the name of the column with the given id
func (t *Table) ColumnName(columnID int) string {
	return t.columns[columnID].Name
}

// ColumnType returns the data type of the column with the given id
func (t *Table) ColumnType(columnID int) DataType {
	return t.columns[columnID].Type
}

// ColumnIDByName resolves a column name to its id
func (t *Table) ColumnIDByName(name string) (int, error) {
	for i, col := range t.columns {
		if col.Name == name {
			return i, nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrColumnNotFound, name)
}

// ChunkSize returns the target row count per chunk
func (t *Table) ChunkSize() int {
	return t.chunkSize
}

// ChunkCount returns the number of chunks
func (t *Table) ChunkCount() int {
	return len(t.chunks)
}

// Chunk returns the chunk at the given index
func (t *Table) Chunk(i int) *Chunk {
	return t.chunks[i]
}

// RowCount returns the total number of rows across all chunks
func (t *Table) RowCount() int {
	total := 0
	for _, c := range t.chunks {
		total += c.Size()
	}
	return total
}

func (t *Table) columnTypes() []DataType {
	types := make([]DataType, len(t.columns))
	for i, col := range t.columns {
		types[i] = col.Type
	}
	return types
}

// AppendRow appends one row of values, one per column in definition
// order. Integer literals convert between widths when representable.
func (t *Table) AppendRow(values ...interface{}) error {
	if len(values) != len(t.columns) {
		return fmt.Errorf("%w: got %d values for %d columns",
			ErrColumnCountMismatch, len(values), len(t.columns))
	}

	// Validate every value before touching any segment; all segments
	// of a chunk must stay equal length
	cast := make([]interface{}, len(values))
	for i, v := range values {
		converted, err := castForType(t.columns[i].Type, v)
		if err != nil {
			return fmt.Errorf("column %q: %w", t.columns[i].Name, err)
		}
		cast[i] = converted
	}

	if len(t.chunks) == 0 || t.chunks[len(t.chunks)-1].Size() >= t.chunkSize {
		chunk, err := NewChunk(t.columnTypes(), t.chunkSize)
		if err != nil {
			return err
		}
		t.chunks = append(t.chunks, chunk)
		trace.GetTracer().Verbose(trace.ComponentStorage, "Started new chunk",
			trace.Context("chunk", len(t.chunks)-1))
	}

	return t.chunks[len(t.chunks)-1].appendRow(cast)
}

// Value returns the boxed value stored at (column, row id)
func (t *Table) Value(columnID int, rid RowID) (interface{}, error) {
	if int(rid.Chunk) >= len(t.chunks) {
		return nil, fmt.Errorf("row id %s out of range: table has %d chunks", rid, len(t.chunks))
	}
	chunk := t.chunks[rid.Chunk]
	if int(rid.Offset) >= chunk.Size() {
		return nil, fmt.Errorf("row id %s out of range: chunk holds %d rows", rid, chunk.Size())
	}
	return chunk.Segment(columnID).ValueAt(int(rid.Offset)), nil
}

func castForType(dt DataType, v interface{}) (interface{}, error) {
	switch dt {
	case Int32:
		return castBoxed[int32](v)
	case Int64:
		return castBoxed[int64](v)
	case Float32:
		return castBoxed[float32](v)
	case Float64:
		return castBoxed[float64](v)
	case String:
		return castBoxed[string](v)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedType, dt)
	}
}

func castBoxed[T ColumnValue](v interface{}) (interface{}, error) {
	cast, err := CastValue[T](v)
	if err != nil {
		return nil, err
	}
	return cast, nil
}
