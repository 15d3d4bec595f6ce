package operators

import (
	"fmt"

	"github.com/RoaringBitmap/roaring/v2"

	"quarrydb/storage"
	"quarrydb/trace"
)

// TableScan filters one column against a literal predicate. Matching row
// positions are collected per chunk in a roaring bitmap before the output
// rows are materialized, keeping the match set compact for selective
// predicates.
type TableScan struct {
	input    Operator
	column   string
	scanType ScanType
	value    interface{}
	value2   interface{}

	output   *storage.Table
	executed bool
}

// NewTableScan creates a scan over the input operator's output. value2 is
// only consulted for ScanBetween and may be nil otherwise.
func NewTableScan(input Operator, column string, scanType ScanType, value, value2 interface{}) *TableScan {
	return &TableScan{
		input:    input,
		column:   column,
		scanType: scanType,
		value:    value,
		value2:   value2,
	}
}

// Execute runs the scan
func (ts *TableScan) Execute() error {
	if ts.executed {
		return ErrAlreadyExecuted
	}

	in, err := resolveInput(ts.input)
	if err != nil {
		return err
	}
	columnID, err := in.ColumnIDByName(ts.column)
	if err != nil {
		return err
	}
	if ts.scanType == ScanBetween && ts.value2 == nil {
		return ErrMissingSecondValue
	}

	var out *storage.Table
	switch in.ColumnType(columnID) {
	case storage.Int32:
		out, err = scanColumn[int32](ts, in, columnID)
	case storage.Int64:
		out, err = scanColumn[int64](ts, in, columnID)
	case storage.Float32:
		out, err = scanColumn[float32](ts, in, columnID)
	case storage.Float64:
		out, err = scanColumn[float64](ts, in, columnID)
	case storage.String:
		out, err = scanColumn[string](ts, in, columnID)
	default:
		err = fmt.Errorf("%w: %s", storage.ErrUnsupportedType, in.ColumnType(columnID))
	}
	if err != nil {
		return err
	}

	trace.GetTracer().Debug(trace.ComponentScan, "Scan complete", trace.Context(
		"column", ts.column,
		"predicate", ts.scanType.String(),
		"input_rows", in.RowCount(),
		"output_rows", out.RowCount(),
	))

	ts.output = out
	ts.executed = true
	return nil
}

// Output returns the filtered table
func (ts *TableScan) Output() (*storage.Table, error) {
	if !ts.executed {
		return nil, ErrNotExecuted
	}
	return ts.output, nil
}

func scanColumn[T storage.ColumnValue](ts *TableScan, in *storage.Table, columnID int) (*storage.Table, error) {
	value, err := storage.CastValue[T](ts.value)
	if err != nil {
		return nil, err
	}
	var value2 T
	if ts.scanType == ScanBetween {
		value2, err = storage.CastValue[T](ts.value2)
		if err != nil {
			return nil, err
		}
	}

	out := storage.NewTable(in.ChunkSize())
	for _, col := range in.Columns() {
		if err := out.AddColumn(col.Name, col.Type); err != nil {
			return nil, err
		}
	}

	columnCount := in.ColumnCount()
	row := make([]interface{}, columnCount)
	for chunkID := 0; chunkID < in.ChunkCount(); chunkID++ {
		chunk := in.Chunk(chunkID)
		values, err := storage.SegmentValues[T](chunk.Segment(columnID))
		if err != nil {
			return nil, err
		}

		matches := roaring.New()
		for i, v := range values {
			if matchesPredicate(ts.scanType, v, value, value2) {
				matches.Add(uint32(i))
			}
		}

		iter := matches.Iterator()
		for iter.HasNext() {
			offset := int(iter.Next())
			for colID := 0; colID < columnCount; colID++ {
				row[colID] = chunk.Segment(colID).ValueAt(offset)
			}
			if err := out.AppendRow(row...); err != nil {
				return nil, err
			}
		}
	}
	return out, nil
}

func matchesPredicate[T storage.ColumnValue](scanType ScanType, v, value, value2 T) bool {
	switch scanType {
	case ScanEquals:
		return v == value
	case ScanNotEquals:
		return v != value
	case ScanLessThan:
		return v < value
	case ScanLessThanEquals:
		return v <= value
	case ScanGreaterThan:
		return v > value
	case ScanGreaterThanEquals:
		return v >= value
	case ScanBetween:
		return v >= value && v <= value2
	default:
		return false
	}
}
