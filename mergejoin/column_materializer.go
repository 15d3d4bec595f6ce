package mergejoin

import (
	"fmt"
	"sort"

	"quarrydb/storage"
	"quarrydb/trace"
)

// ColumnMaterializer extracts one column of a table into a materialized
// column list, one materialized chunk per source chunk. The column's
// runtime type is resolved once per column, never per row.
type ColumnMaterializer[T storage.ColumnValue] struct {
	sortPerChunk bool
}

// NewColumnMaterializer creates a materializer. With sortPerChunk set,
// every output chunk is ordered by value ascending; records across
// chunks stay unordered.
func NewColumnMaterializer[T storage.ColumnValue](sortPerChunk bool) *ColumnMaterializer[T] {
	return &ColumnMaterializer[T]{sortPerChunk: sortPerChunk}
}

// Materialize reads the named column out of the table
func (m *ColumnMaterializer[T]) Materialize(table *storage.Table, column string) (MaterializedColumnList[T], error) {
	if table == nil {
		return nil, ErrNilInput
	}
	columnID, err := table.ColumnIDByName(column)
	if err != nil {
		return nil, err
	}
	if want, got := storage.TypeOf[T](), table.ColumnType(columnID); want != got {
		return nil, fmt.Errorf("%w: column %q holds %s, materializer expects %s",
			storage.ErrTypeMismatch, column, got, want)
	}

	output := make(MaterializedColumnList[T], table.ChunkCount())
	for chunkID := 0; chunkID < table.ChunkCount(); chunkID++ {
		values, err := storage.SegmentValues[T](table.Chunk(chunkID).Segment(columnID))
		if err != nil {
			return nil, err
		}

		materialized := make(MaterializedChunk[T], len(values))
		for offset, value := range values {
			materialized[offset] = MaterializedValue[T]{
				Value: value,
				RowID: storage.RowID{Chunk: uint32(chunkID), Offset: uint32(offset)},
			}
		}
		if m.sortPerChunk {
			// Stable keeps ties in source order, which makes the
			// result deterministic for a given input
			sort.SliceStable(materialized, func(i, j int) bool {
				return materialized[i].Value < materialized[j].Value
			})
		}
		output[chunkID] = materialized
	}

	trace.GetTracer().Debug(trace.ComponentMaterialize, "Materialized column", trace.Context(
		"column", column,
		"chunks", len(output),
		"rows", output.TotalSize(),
		"sorted", m.sortPerChunk,
	))

	return output, nil
}
