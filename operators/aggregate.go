package operators

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/cespare/xxhash/v2"

	"quarrydb/storage"
	"quarrydb/trace"
)

// AggregateSpec names one aggregate column: the input column and the
// function applied to it.
type AggregateSpec struct {
	Column string
	Func   AggregateFunc
}

// Aggregate groups the input by the group-by columns and computes the
// requested aggregates per group. The output holds one row per distinct
// group key: group-by columns first, then the aggregate columns in the
// supplied order. With no aggregates at all the operator degenerates to a
// distinct-count oracle, its output row count being the number of
// distinct group keys.
type Aggregate struct {
	input      Operator
	aggregates []AggregateSpec
	groupBy    []string

	output   *storage.Table
	executed bool
}

// NewAggregate creates an aggregate operator
func NewAggregate(input Operator, aggregates []AggregateSpec, groupBy []string) *Aggregate {
	return &Aggregate{
		input:      input,
		aggregates: aggregates,
		groupBy:    groupBy,
	}
}

// groupState accumulates one group. Groups are kept in hash buckets
// keyed by the xxhash of the encoded group key; the encoded key itself
// disambiguates collisions.
type groupState struct {
	keyBytes  []byte
	keyValues []interface{}
	accs      []*accumulator
}

type accumulator struct {
	count int64
	sumI  int64
	sumF  float64
	min   interface{}
	max   interface{}
}

// Execute runs the aggregation
func (a *Aggregate) Execute() error {
	if a.executed {
		return ErrAlreadyExecuted
	}

	in, err := resolveInput(a.input)
	if err != nil {
		return err
	}

	groupByIDs := make([]int, len(a.groupBy))
	for i, name := range a.groupBy {
		if groupByIDs[i], err = in.ColumnIDByName(name); err != nil {
			return err
		}
	}
	aggIDs := make([]int, len(a.aggregates))
	for i, spec := range a.aggregates {
		if aggIDs[i], err = in.ColumnIDByName(spec.Column); err != nil {
			return err
		}
		colType := in.ColumnType(aggIDs[i])
		if colType == storage.String && (spec.Func == AggSum || spec.Func == AggAvg) {
			return fmt.Errorf("%w: %s over string column %q",
				storage.ErrUnsupportedType, spec.Func, spec.Column)
		}
	}

	groups := make(map[uint64][]*groupState)
	var order []*groupState
	var keyBuf []byte

	for chunkID := 0; chunkID < in.ChunkCount(); chunkID++ {
		chunk := in.Chunk(chunkID)
		for offset := 0; offset < chunk.Size(); offset++ {
			keyBuf = keyBuf[:0]
			for _, colID := range groupByIDs {
				keyBuf = encodeGroupValue(keyBuf, chunk.Segment(colID).ValueAt(offset))
			}

			group := findGroup(groups, keyBuf)
			if group == nil {
				group = &groupState{
					keyBytes:  append([]byte(nil), keyBuf...),
					keyValues: make([]interface{}, len(groupByIDs)),
					accs:      make([]*accumulator, len(a.aggregates)),
				}
				for i, colID := range groupByIDs {
					group.keyValues[i] = chunk.Segment(colID).ValueAt(offset)
				}
				for i := range group.accs {
					group.accs[i] = &accumulator{}
				}
				hash := xxhash.Sum64(group.keyBytes)
				groups[hash] = append(groups[hash], group)
				order = append(order, group)
			}

			for i, colID := range aggIDs {
				group.accs[i].observe(in.ColumnType(colID), chunk.Segment(colID).ValueAt(offset))
			}
		}
	}

	out, err := a.buildOutput(in, order)
	if err != nil {
		return err
	}

	trace.GetTracer().Debug(trace.ComponentAggregate, "Aggregation complete", trace.Context(
		"input_rows", in.RowCount(),
		"groups", len(order),
		"aggregates", len(a.aggregates),
	))

	a.output = out
	a.executed = true
	return nil
}

// Output returns the aggregated table
func (a *Aggregate) Output() (*storage.Table, error) {
	if !a.executed {
		return nil, ErrNotExecuted
	}
	return a.output, nil
}

func (a *Aggregate) buildOutput(in *storage.Table, order []*groupState) (*storage.Table, error) {
	out := storage.NewTable(in.ChunkSize())
	for _, name := range a.groupBy {
		colID, _ := in.ColumnIDByName(name)
		if err := out.AddColumn(name, in.ColumnType(colID)); err != nil {
			return nil, err
		}
	}
	for _, spec := range a.aggregates {
		colID, _ := in.ColumnIDByName(spec.Column)
		name := fmt.Sprintf("%s(%s)", spec.Func, spec.Column)
		if err := out.AddColumn(name, aggregateOutputType(spec.Func, in.ColumnType(colID))); err != nil {
			return nil, err
		}
	}

	row := make([]interface{}, len(a.groupBy)+len(a.aggregates))
	for _, group := range order {
		copy(row, group.keyValues)
		for i, spec := range a.aggregates {
			colID, _ := in.ColumnIDByName(spec.Column)
			row[len(a.groupBy)+i] = group.accs[i].result(spec.Func, in.ColumnType(colID))
		}
		if err := out.AppendRow(row...); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// aggregateOutputType maps an aggregate function over a column type to
// the output column type
func aggregateOutputType(fn AggregateFunc, colType storage.DataType) storage.DataType {
	switch fn {
	case AggMin, AggMax:
		return colType
	case AggCount:
		return storage.Int64
	case AggAvg:
		return storage.Float64
	case AggSum:
		if colType == storage.Int32 || colType == storage.Int64 {
			return storage.Int64
		}
		return storage.Float64
	default:
		return colType
	}
}

func findGroup(groups map[uint64][]*groupState, key []byte) *groupState {
	for _, g := range groups[xxhash.Sum64(key)] {
		if string(g.keyBytes) == string(key) {
			return g
		}
	}
	return nil
}

// encodeGroupValue appends the little-endian encoding of a group-by
// value. Strings are length-framed so adjacent key parts cannot alias.
func encodeGroupValue(buf []byte, v interface{}) []byte {
	switch val := v.(type) {
	case int32:
		buf = storage.ByteOrder.AppendUint32(buf, uint32(val))
	case int64:
		buf = storage.ByteOrder.AppendUint64(buf, uint64(val))
	case float32:
		buf = storage.ByteOrder.AppendUint32(buf, floatBits32(val))
	case float64:
		buf = storage.ByteOrder.AppendUint64(buf, floatBits64(val))
	case string:
		buf = binary.AppendUvarint(buf, uint64(len(val)))
		buf = append(buf, val...)
	}
	return buf
}

func floatBits32(v float32) uint32 { return math.Float32bits(v) }

func floatBits64(v float64) uint64 { return math.Float64bits(v) }

func floatFrom32(u uint32) float32 { return math.Float32frombits(u) }

func floatFrom64(u uint64) float64 { return math.Float64frombits(u) }

func (acc *accumulator) observe(colType storage.DataType, v interface{}) {
	acc.count++
	switch val := v.(type) {
	case int32:
		acc.sumI += int64(val)
		acc.sumF += float64(val)
	case int64:
		acc.sumI += val
		acc.sumF += float64(val)
	case float32:
		acc.sumF += float64(val)
	case float64:
		acc.sumF += val
	}
	if acc.min == nil || compareBoxed(colType, v, acc.min) < 0 {
		acc.min = v
	}
	if acc.max == nil || compareBoxed(colType, v, acc.max) > 0 {
		acc.max = v
	}
}

func (acc *accumulator) result(fn AggregateFunc, colType storage.DataType) interface{} {
	switch fn {
	case AggMin:
		return acc.min
	case AggMax:
		return acc.max
	case AggCount:
		return acc.count
	case AggAvg:
		if acc.count == 0 {
			return float64(0)
		}
		return acc.sumF / float64(acc.count)
	case AggSum:
		if colType == storage.Int32 || colType == storage.Int64 {
			return acc.sumI
		}
		return acc.sumF
	default:
		return nil
	}
}

// compareBoxed compares two boxed values of the same column type
func compareBoxed(colType storage.DataType, a, b interface{}) int {
	switch colType {
	case storage.Int32:
		return compareOrdered(a.(int32), b.(int32))
	case storage.Int64:
		return compareOrdered(a.(int64), b.(int64))
	case storage.Float32:
		return compareOrdered(a.(float32), b.(float32))
	case storage.Float64:
		return compareOrdered(a.(float64), b.(float64))
	default:
		return compareOrdered(a.(string), b.(string))
	}
}

func compareOrdered[T storage.ColumnValue](a, b T) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}
