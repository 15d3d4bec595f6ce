package optimizer

import (
	"fmt"

	"quarrydb/operators"
	"quarrydb/storage"
)

// PredicateSelectivity estimates the fraction of rows a constant-value
// predicate retains, together with a derived statistics snapshot for the
// surviving subset. An unsatisfiable predicate yields (0, nil); an
// always-true or unestimated predicate yields (1, nil).
//
// Integer range widths are inclusive (max − min + 1); floating point
// widths omit the +1. Text columns only estimate = and != predicates.
func (s *ColumnStatistics[T]) PredicateSelectivity(scanType operators.ScanType,
	value, value2 interface{}) (float64, *ColumnStatistics[T], error) {
	castValue, err := storage.CastValue[T](value)
	if err != nil {
		return 0, nil, err
	}

	if storage.TypeOf[T]() == storage.String {
		return s.stringSelectivity(scanType, castValue)
	}
	return s.numericSelectivity(scanType, castValue, value2)
}

// stringSelectivity covers the text specialization: = and != predicates
// only, everything else is unestimated.
func (s *ColumnStatistics[T]) stringSelectivity(scanType operators.ScanType,
	value T) (float64, *ColumnStatistics[T], error) {
	lo, hi, d, err := s.snapshot()
	if err != nil {
		return 0, nil, err
	}

	switch scanType {
	case operators.ScanEquals:
		if value < lo || value > hi {
			return 0, nil, nil
		}
		return clamp01(1 / d), NewLiteralColumnStatistics[T](s.columnID, 1, value, value), nil
	case operators.ScanNotEquals:
		if value < lo || value > hi {
			return 1, nil, nil
		}
		return clamp01((d - 1) / d), NewLiteralColumnStatistics[T](s.columnID, d-1, lo, hi), nil
	default:
		return 1, nil, nil
	}
}

func (s *ColumnStatistics[T]) numericSelectivity(scanType operators.ScanType,
	value T, value2 interface{}) (float64, *ColumnStatistics[T], error) {
	lo, hi, d, err := s.snapshot()
	if err != nil {
		return 0, nil, err
	}
	width := numericOf(hi) - numericOf(lo) + rangeAdjust[T]()

	switch scanType {
	case operators.ScanEquals:
		if value < lo || value > hi {
			return 0, nil, nil
		}
		return clamp01(1 / d), NewLiteralColumnStatistics[T](s.columnID, 1, value, value), nil

	case operators.ScanNotEquals:
		if value < lo || value > hi {
			return 1, nil, nil
		}
		return clamp01((d - 1) / d), NewLiteralColumnStatistics[T](s.columnID, d-1, lo, hi), nil

	case operators.ScanLessThan:
		if storage.IsIntegerType[T]() {
			if value <= lo {
				return 0, nil, nil
			}
			selectivity := clamp01((numericOf(value) - numericOf(lo)) / width)
			derived := NewLiteralColumnStatistics[T](s.columnID, selectivity*d, lo, prevValue(value))
			return selectivity, derived, nil
		}
		// A floating point strict comparison estimates like <=:
		// with a continuous domain the boundary value carries no
		// measurable fraction
		if value <= lo {
			return 0, nil, nil
		}
		return s.lessThanEquals(value, lo, hi, d, width)

	case operators.ScanLessThanEquals:
		if value < lo {
			return 0, nil, nil
		}
		return s.lessThanEquals(value, lo, hi, d, width)

	case operators.ScanGreaterThan:
		if storage.IsIntegerType[T]() {
			if value >= hi {
				return 0, nil, nil
			}
			selectivity := clamp01((numericOf(hi) - numericOf(value)) / width)
			derived := NewLiteralColumnStatistics[T](s.columnID, selectivity*d, nextValue(value), hi)
			return selectivity, derived, nil
		}
		if value >= hi {
			return 0, nil, nil
		}
		return s.greaterThanEquals(value, lo, hi, d, width)

	case operators.ScanGreaterThanEquals:
		if value > hi {
			return 0, nil, nil
		}
		return s.greaterThanEquals(value, lo, hi, d, width)

	case operators.ScanBetween:
		if value2 == nil {
			return 0, nil, operators.ErrMissingSecondValue
		}
		castValue2, err := storage.CastValue[T](value2)
		if err != nil {
			return 0, nil, err
		}
		if value > castValue2 || value > hi || castValue2 < lo {
			return 0, nil, nil
		}
		if value < lo {
			value = lo
		}
		if castValue2 > hi {
			castValue2 = hi
		}
		selectivity := clamp01((numericOf(castValue2) - numericOf(value) + rangeAdjust[T]()) / width)
		derived := NewLiteralColumnStatistics[T](s.columnID, selectivity*d, value, castValue2)
		return selectivity, derived, nil

	default:
		return 1, nil, nil
	}
}

func (s *ColumnStatistics[T]) lessThanEquals(value, lo, hi T, d, width float64) (float64, *ColumnStatistics[T], error) {
	if value >= hi {
		return 1, nil, nil
	}
	selectivity := clamp01((numericOf(value) - numericOf(lo) + rangeAdjust[T]()) / width)
	derived := NewLiteralColumnStatistics[T](s.columnID, selectivity*d, lo, value)
	return selectivity, derived, nil
}

func (s *ColumnStatistics[T]) greaterThanEquals(value, lo, hi T, d, width float64) (float64, *ColumnStatistics[T], error) {
	if value <= lo {
		return 1, nil, nil
	}
	selectivity := clamp01((numericOf(hi) - numericOf(value) + rangeAdjust[T]()) / width)
	derived := NewLiteralColumnStatistics[T](s.columnID, selectivity*d, value, hi)
	return selectivity, derived, nil
}

// PredicateSelectivityTwoColumn estimates a predicate comparing this
// column against another column. Only equality is modeled: the estimate
// assumes uniformly distributed values over the overlapping range of
// both columns. The selectivity is clamped to [0, 1]; the underlying
// uniform model can otherwise exceed 1, a known weakness.
func (s *ColumnStatistics[T]) PredicateSelectivityTwoColumn(scanType operators.ScanType,
	other AbstractColumnStatistics, value2 interface{}) (float64, *ColumnStatistics[T], *ColumnStatistics[T], error) {
	otherStats, ok := other.(*ColumnStatistics[T])
	if !ok {
		return 0, nil, nil, fmt.Errorf("%w: cannot compare columns of different type",
			storage.ErrTypeMismatch)
	}

	if storage.TypeOf[T]() == storage.String || scanType != operators.ScanEquals {
		return 1, nil, nil, nil
	}

	lo, hi, d, err := s.snapshot()
	if err != nil {
		return 0, nil, nil, err
	}
	otherLo, otherHi, otherD, err := otherStats.snapshot()
	if err != nil {
		return 0, nil, nil, err
	}

	commonMin := lo
	if otherLo > commonMin {
		commonMin = otherLo
	}
	commonMax := hi
	if otherHi < commonMax {
		commonMax = otherHi
	}
	if commonMin > commonMax {
		return 0, nil, nil, nil
	}

	adjust := rangeAdjust[T]()
	commonWidth := numericOf(commonMax) - numericOf(commonMin) + adjust
	overlapRatioThis := commonWidth / (numericOf(hi) - numericOf(lo) + adjust)
	overlapRatioOther := commonWidth / (numericOf(otherHi) - numericOf(otherLo) + adjust)

	overlapDistinctThis := overlapRatioThis * d
	overlapDistinctOther := overlapRatioOther * otherD
	overlapDistinct := overlapDistinctThis
	if overlapDistinctOther < overlapDistinct {
		overlapDistinct = overlapDistinctOther
	}

	// The probing side is the argument column; its hit probability per
	// distinct value of this column scales the overlap
	probabilityHit := otherD / d
	selectivity := clamp01(overlapDistinct * probabilityHit)

	derivedThis := NewLiteralColumnStatistics[T](s.columnID, overlapDistinct, commonMin, commonMax)
	derivedOther := NewLiteralColumnStatistics[T](otherStats.columnID, overlapDistinct, commonMin, commonMax)
	return selectivity, derivedThis, derivedOther, nil
}

// PredicateSelectivityPlaceholder estimates a predicate whose comparison
// value is a prepared-statement parameter, assumed uniformly distributed
// over the column's domain.
func (s *ColumnStatistics[T]) PredicateSelectivityPlaceholder(scanType operators.ScanType,
	value2 interface{}) (float64, *ColumnStatistics[T], error) {
	lo, hi, d, err := s.snapshot()
	if err != nil {
		return 0, nil, err
	}

	switch scanType {
	case operators.ScanEquals:
		return clamp01(1 / d), NewLiteralColumnStatistics[T](s.columnID, 1, lo, hi), nil
	case operators.ScanNotEquals:
		return clamp01((d - 1) / d), NewLiteralColumnStatistics[T](s.columnID, d-1, lo, hi), nil
	default:
		return 1, nil, nil
	}
}

// snapshot fetches (min, max, distinct count), materializing lazily
func (s *ColumnStatistics[T]) snapshot() (lo, hi T, d float64, err error) {
	if lo, err = s.Min(); err != nil {
		return
	}
	if hi, err = s.Max(); err != nil {
		return
	}
	d, err = s.DistinctCount()
	return
}

// numericOf converts a numeric column value to float64 for the
// selectivity arithmetic. Text columns never reach this path.
func numericOf[T storage.ColumnValue](v T) float64 {
	switch n := any(v).(type) {
	case int32:
		return float64(n)
	case int64:
		return float64(n)
	case float32:
		return float64(n)
	case float64:
		return n
	default:
		return 0
	}
}

// rangeAdjust is the inclusive-width correction: integer ranges span
// max − min + 1 values, floating point ranges measure max − min.
func rangeAdjust[T storage.ColumnValue]() float64 {
	if storage.IsIntegerType[T]() {
		return 1
	}
	return 0
}

// prevValue returns the predecessor of an integer value; other types
// pass through unchanged
func prevValue[T storage.ColumnValue](v T) T {
	switch n := any(v).(type) {
	case int32:
		return any(n - 1).(T)
	case int64:
		return any(n - 1).(T)
	default:
		return v
	}
}

// nextValue returns the successor of an integer value; other types pass
// through unchanged
func nextValue[T storage.ColumnValue](v T) T {
	switch n := any(v).(type) {
	case int32:
		return any(n + 1).(T)
	case int64:
		return any(n + 1).(T)
	default:
		return v
	}
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
