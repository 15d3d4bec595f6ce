package optimizer

import (
	"fmt"

	"quarrydb/operators"
	"quarrydb/storage"
	"quarrydb/trace"
)

// ValuePlaceholder stands in for a prepared-statement parameter whose
// value is unknown at planning time.
type ValuePlaceholder struct {
	Index int
}

// AbstractColumnStatistics is the type-erased view of a statistics
// snapshot, used to pass statistics of unknown column type across the
// planner. The concrete type must match in two-column predicates.
type AbstractColumnStatistics interface {
	ColumnID() int
}

// ColumnStatistics maintains a (min, max, distinct count) snapshot for
// one column. Bound to a table by name, the fields are computed lazily
// through the aggregate operator on first access and cached; constructed
// from literals, they describe the subset remaining after a predicate.
// Once materialized a snapshot never changes.
type ColumnStatistics[T storage.ColumnValue] struct {
	columnID  int
	tableName string
	manager   *storage.StorageManager

	distinctCount float64
	haveDistinct  bool
	minValue      T
	maxValue      T
	haveMinMax    bool
}

// NewColumnStatistics binds a lazy statistics snapshot to a registered
// table. The manager reference is non-owning: if the table has been
// dropped by the time a statistic is first requested, the request fails.
func NewColumnStatistics[T storage.ColumnValue](columnID int, tableName string,
	manager *storage.StorageManager) *ColumnStatistics[T] {
	return &ColumnStatistics[T]{
		columnID:  columnID,
		tableName: tableName,
		manager:   manager,
	}
}

// NewLiteralColumnStatistics creates an eagerly filled snapshot
func NewLiteralColumnStatistics[T storage.ColumnValue](columnID int, distinctCount float64,
	minValue, maxValue T) *ColumnStatistics[T] {
	return &ColumnStatistics[T]{
		columnID:      columnID,
		distinctCount: distinctCount,
		haveDistinct:  true,
		minValue:      minValue,
		maxValue:      maxValue,
		haveMinMax:    true,
	}
}

// ColumnID returns the id of the described column
func (s *ColumnStatistics[T]) ColumnID() int {
	return s.columnID
}

// DistinctCount returns the number of distinct values, computing and
// caching it on first access
func (s *ColumnStatistics[T]) DistinctCount() (float64, error) {
	if !s.haveDistinct {
		if err := s.updateDistinctCount(); err != nil {
			return 0, err
		}
	}
	return s.distinctCount, nil
}

// Min returns the smallest value, computing and caching it on first
// access
func (s *ColumnStatistics[T]) Min() (T, error) {
	if !s.haveMinMax {
		if err := s.updateMinMax(); err != nil {
			var zero T
			return zero, err
		}
	}
	return s.minValue, nil
}

// Max returns the largest value, computing and caching it on first
// access
func (s *ColumnStatistics[T]) Max() (T, error) {
	if !s.haveMinMax {
		if err := s.updateMinMax(); err != nil {
			var zero T
			return zero, err
		}
	}
	return s.maxValue, nil
}

func (s *ColumnStatistics[T]) boundTable() (*storage.Table, error) {
	if s.manager == nil {
		return nil, fmt.Errorf("%w: statistics have no bound table", storage.ErrTableNotFound)
	}
	table, err := s.manager.Get(s.tableName)
	if err != nil {
		return nil, fmt.Errorf("statistics source gone: %w", err)
	}
	return table, nil
}

// updateDistinctCount delegates to the aggregate operator: grouping by
// the column alone yields one output row per distinct value.
func (s *ColumnStatistics[T]) updateDistinctCount() error {
	table, err := s.boundTable()
	if err != nil {
		return err
	}
	wrapper := operators.NewTableWrapper(table)
	if err := wrapper.Execute(); err != nil {
		return err
	}
	aggregate := operators.NewAggregate(wrapper, nil, []string{table.ColumnName(s.columnID)})
	if err := aggregate.Execute(); err != nil {
		return err
	}
	out, err := aggregate.Output()
	if err != nil {
		return err
	}
	s.distinctCount = float64(out.RowCount())
	s.haveDistinct = true
	trace.GetTracer().Debug(trace.ComponentStats, "Computed distinct count", trace.Context(
		"table", s.tableName,
		"column", s.columnID,
		"distinct", s.distinctCount,
	))
	return nil
}

// updateMinMax delegates to the aggregate operator
func (s *ColumnStatistics[T]) updateMinMax() error {
	table, err := s.boundTable()
	if err != nil {
		return err
	}
	wrapper := operators.NewTableWrapper(table)
	if err := wrapper.Execute(); err != nil {
		return err
	}
	columnName := table.ColumnName(s.columnID)
	aggregate := operators.NewAggregate(wrapper, []operators.AggregateSpec{
		{Column: columnName, Func: operators.AggMin},
		{Column: columnName, Func: operators.AggMax},
	}, nil)
	if err := aggregate.Execute(); err != nil {
		return err
	}
	out, err := aggregate.Output()
	if err != nil {
		return err
	}
	minBoxed, err := out.Value(0, storage.RowID{})
	if err != nil {
		return err
	}
	maxBoxed, err := out.Value(1, storage.RowID{})
	if err != nil {
		return err
	}
	if s.minValue, err = storage.CastValue[T](minBoxed); err != nil {
		return err
	}
	if s.maxValue, err = storage.CastValue[T](maxBoxed); err != nil {
		return err
	}
	s.haveMinMax = true
	return nil
}
