package optimizer

import (
	"errors"
	"math"
	"testing"

	"quarrydb/operators"
	"quarrydb/storage"
)

func almostEqual(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

func TestPredicateSelectivityEquals(t *testing.T) {
	stats := NewLiteralColumnStatistics[int32](0, 5, 10, 20)

	t.Run("InRange", func(t *testing.T) {
		selectivity, derived, err := stats.PredicateSelectivity(operators.ScanEquals, int32(15), nil)
		if err != nil {
			t.Fatalf("PredicateSelectivity failed: %v", err)
		}
		if !almostEqual(selectivity, 0.2) {
			t.Errorf("Expected selectivity 0.2, got %v", selectivity)
		}
		if derived == nil {
			t.Fatal("Expected derived statistics")
		}
		d, _ := derived.DistinctCount()
		lo, _ := derived.Min()
		hi, _ := derived.Max()
		if d != 1 || lo != 15 || hi != 15 {
			t.Errorf("Expected derived (1, 15, 15), got (%v, %v, %v)", d, lo, hi)
		}
	})

	t.Run("OutOfRange", func(t *testing.T) {
		selectivity, derived, err := stats.PredicateSelectivity(operators.ScanEquals, int32(25), nil)
		if err != nil {
			t.Fatalf("PredicateSelectivity failed: %v", err)
		}
		if selectivity != 0 {
			t.Errorf("Expected selectivity 0, got %v", selectivity)
		}
		if derived != nil {
			t.Error("Expected no derived statistics for an unsatisfiable predicate")
		}
	})
}

func TestPredicateSelectivityNotEquals(t *testing.T) {
	stats := NewLiteralColumnStatistics[int32](0, 5, 10, 20)

	t.Run("InRange", func(t *testing.T) {
		selectivity, derived, err := stats.PredicateSelectivity(operators.ScanNotEquals, int32(15), nil)
		if err != nil {
			t.Fatalf("PredicateSelectivity failed: %v", err)
		}
		if !almostEqual(selectivity, 0.8) {
			t.Errorf("Expected selectivity 0.8, got %v", selectivity)
		}
		d, _ := derived.DistinctCount()
		lo, _ := derived.Min()
		hi, _ := derived.Max()
		if d != 4 || lo != 10 || hi != 20 {
			t.Errorf("Expected derived (4, 10, 20), got (%v, %v, %v)", d, lo, hi)
		}
	})

	t.Run("OutOfRange", func(t *testing.T) {
		selectivity, derived, err := stats.PredicateSelectivity(operators.ScanNotEquals, int32(9), nil)
		if err != nil {
			t.Fatalf("PredicateSelectivity failed: %v", err)
		}
		if selectivity != 1 || derived != nil {
			t.Errorf("Expected (1, nil), got (%v, %v)", selectivity, derived)
		}
	})
}

func TestPredicateSelectivityRanges(t *testing.T) {
	stats := NewLiteralColumnStatistics[int32](0, 5, 10, 20)

	t.Run("LessThanUnsatisfiable", func(t *testing.T) {
		selectivity, derived, err := stats.PredicateSelectivity(operators.ScanLessThan, int32(10), nil)
		if err != nil {
			t.Fatalf("PredicateSelectivity failed: %v", err)
		}
		if selectivity != 0 || derived != nil {
			t.Errorf("Expected (0, nil), got (%v, %v)", selectivity, derived)
		}
	})

	t.Run("LessThan", func(t *testing.T) {
		selectivity, derived, err := stats.PredicateSelectivity(operators.ScanLessThan, int32(15), nil)
		if err != nil {
			t.Fatalf("PredicateSelectivity failed: %v", err)
		}
		if !almostEqual(selectivity, 5.0/11.0) {
			t.Errorf("Expected selectivity 5/11, got %v", selectivity)
		}
		lo, _ := derived.Min()
		hi, _ := derived.Max()
		if lo != 10 || hi != 14 {
			t.Errorf("Expected derived range [10, 14], got [%v, %v]", lo, hi)
		}
	})

	t.Run("LessThanEqualsAlwaysTrue", func(t *testing.T) {
		selectivity, derived, err := stats.PredicateSelectivity(operators.ScanLessThanEquals, int32(20), nil)
		if err != nil {
			t.Fatalf("PredicateSelectivity failed: %v", err)
		}
		if selectivity != 1 || derived != nil {
			t.Errorf("Expected (1, nil), got (%v, %v)", selectivity, derived)
		}
	})

	t.Run("GreaterThan", func(t *testing.T) {
		selectivity, derived, err := stats.PredicateSelectivity(operators.ScanGreaterThan, int32(15), nil)
		if err != nil {
			t.Fatalf("PredicateSelectivity failed: %v", err)
		}
		if !almostEqual(selectivity, 5.0/11.0) {
			t.Errorf("Expected selectivity 5/11, got %v", selectivity)
		}
		lo, _ := derived.Min()
		hi, _ := derived.Max()
		if lo != 16 || hi != 20 {
			t.Errorf("Expected derived range [16, 20], got [%v, %v]", lo, hi)
		}
	})

	t.Run("GreaterThanEqualsAlwaysTrue", func(t *testing.T) {
		selectivity, derived, err := stats.PredicateSelectivity(operators.ScanGreaterThanEquals, int32(10), nil)
		if err != nil {
			t.Fatalf("PredicateSelectivity failed: %v", err)
		}
		if selectivity != 1 || derived != nil {
			t.Errorf("Expected (1, nil), got (%v, %v)", selectivity, derived)
		}
	})

	t.Run("Between", func(t *testing.T) {
		selectivity, derived, err := stats.PredicateSelectivity(operators.ScanBetween, int32(12), int32(18))
		if err != nil {
			t.Fatalf("PredicateSelectivity failed: %v", err)
		}
		if !almostEqual(selectivity, 7.0/11.0) {
			t.Errorf("Expected selectivity 7/11, got %v", selectivity)
		}
		lo, _ := derived.Min()
		hi, _ := derived.Max()
		if lo != 12 || hi != 18 {
			t.Errorf("Expected derived range [12, 18], got [%v, %v]", lo, hi)
		}
	})

	t.Run("BetweenClampsToDomain", func(t *testing.T) {
		selectivity, derived, err := stats.PredicateSelectivity(operators.ScanBetween, int32(5), int32(25))
		if err != nil {
			t.Fatalf("PredicateSelectivity failed: %v", err)
		}
		if selectivity != 1 {
			t.Errorf("Expected selectivity 1, got %v", selectivity)
		}
		lo, _ := derived.Min()
		hi, _ := derived.Max()
		if lo != 10 || hi != 20 {
			t.Errorf("Expected derived range [10, 20], got [%v, %v]", lo, hi)
		}
	})

	t.Run("BetweenUnsatisfiable", func(t *testing.T) {
		selectivity, derived, err := stats.PredicateSelectivity(operators.ScanBetween, int32(18), int32(12))
		if err != nil {
			t.Fatalf("PredicateSelectivity failed: %v", err)
		}
		if selectivity != 0 || derived != nil {
			t.Errorf("Expected (0, nil), got (%v, %v)", selectivity, derived)
		}
	})

	t.Run("BetweenMissingSecondValue", func(t *testing.T) {
		_, _, err := stats.PredicateSelectivity(operators.ScanBetween, int32(12), nil)
		if !errors.Is(err, operators.ErrMissingSecondValue) {
			t.Errorf("Expected ErrMissingSecondValue, got %v", err)
		}
	})
}

func TestPredicateSelectivityFloatWidth(t *testing.T) {
	// Floating point ranges measure max - min without the inclusive +1
	stats := NewLiteralColumnStatistics[float64](0, 10, 0, 10)

	selectivity, derived, err := stats.PredicateSelectivity(operators.ScanLessThanEquals, 5.0, nil)
	if err != nil {
		t.Fatalf("PredicateSelectivity failed: %v", err)
	}
	if !almostEqual(selectivity, 0.5) {
		t.Errorf("Expected selectivity 0.5, got %v", selectivity)
	}
	hi, _ := derived.Max()
	if hi != 5.0 {
		t.Errorf("Expected derived max 5.0, got %v", hi)
	}
}

func TestPredicateSelectivityMonotonicity(t *testing.T) {
	stats := NewLiteralColumnStatistics[int32](0, 17, -50, 150)
	previous := -1.0
	for v := int32(-60); v <= 160; v += 5 {
		selectivity, _, err := stats.PredicateSelectivity(operators.ScanLessThan, v, nil)
		if err != nil {
			t.Fatalf("PredicateSelectivity failed at %d: %v", v, err)
		}
		if selectivity < 0 || selectivity > 1 {
			t.Errorf("Selectivity out of bounds at %d: %v", v, selectivity)
		}
		if selectivity < previous {
			t.Errorf("Selectivity not monotonic at %d: %v < %v", v, selectivity, previous)
		}
		previous = selectivity
	}
}

func TestPredicateSelectivityStrings(t *testing.T) {
	stats := NewLiteralColumnStatistics[string](0, 4, "alpha", "delta")

	t.Run("Equals", func(t *testing.T) {
		selectivity, derived, err := stats.PredicateSelectivity(operators.ScanEquals, "bravo", nil)
		if err != nil {
			t.Fatalf("PredicateSelectivity failed: %v", err)
		}
		if !almostEqual(selectivity, 0.25) {
			t.Errorf("Expected selectivity 0.25, got %v", selectivity)
		}
		lo, _ := derived.Min()
		if lo != "bravo" {
			t.Errorf("Expected derived min bravo, got %v", lo)
		}
	})

	t.Run("EqualsOutOfRange", func(t *testing.T) {
		selectivity, derived, err := stats.PredicateSelectivity(operators.ScanEquals, "zulu", nil)
		if err != nil {
			t.Fatalf("PredicateSelectivity failed: %v", err)
		}
		if selectivity != 0 || derived != nil {
			t.Errorf("Expected (0, nil), got (%v, %v)", selectivity, derived)
		}
	})

	t.Run("RangePredicatesUnestimated", func(t *testing.T) {
		selectivity, derived, err := stats.PredicateSelectivity(operators.ScanLessThan, "bravo", nil)
		if err != nil {
			t.Fatalf("PredicateSelectivity failed: %v", err)
		}
		if selectivity != 1 || derived != nil {
			t.Errorf("Expected (1, nil), got (%v, %v)", selectivity, derived)
		}
	})
}

func TestTwoColumnSelectivity(t *testing.T) {
	t.Run("OverlappingRanges", func(t *testing.T) {
		a := NewLiteralColumnStatistics[int32](0, 11, 0, 10)
		b := NewLiteralColumnStatistics[int32](1, 11, 5, 15)

		selectivity, derivedA, derivedB, err := a.PredicateSelectivityTwoColumn(operators.ScanEquals, b, nil)
		if err != nil {
			t.Fatalf("PredicateSelectivityTwoColumn failed: %v", err)
		}
		// The raw uniform model yields 6 here; the result must be
		// clamped into [0, 1]
		if selectivity != 1 {
			t.Errorf("Expected clamped selectivity 1, got %v", selectivity)
		}
		if derivedA == nil || derivedB == nil {
			t.Fatal("Expected derived statistics for both sides")
		}
		loA, _ := derivedA.Min()
		hiA, _ := derivedA.Max()
		if loA != 5 || hiA != 10 {
			t.Errorf("Expected common range [5, 10], got [%v, %v]", loA, hiA)
		}
		dA, _ := derivedA.DistinctCount()
		if !almostEqual(dA, 6) {
			t.Errorf("Expected overlap distinct count 6, got %v", dA)
		}
		if derivedB.ColumnID() != 1 {
			t.Errorf("Expected derived B to keep column id 1, got %d", derivedB.ColumnID())
		}
	})

	t.Run("DisjointRanges", func(t *testing.T) {
		a := NewLiteralColumnStatistics[int32](0, 5, 0, 10)
		b := NewLiteralColumnStatistics[int32](1, 5, 20, 30)

		selectivity, derivedA, derivedB, err := a.PredicateSelectivityTwoColumn(operators.ScanEquals, b, nil)
		if err != nil {
			t.Fatalf("PredicateSelectivityTwoColumn failed: %v", err)
		}
		if selectivity != 0 || derivedA != nil || derivedB != nil {
			t.Errorf("Expected (0, nil, nil), got (%v, %v, %v)", selectivity, derivedA, derivedB)
		}
	})

	t.Run("TypeMismatch", func(t *testing.T) {
		a := NewLiteralColumnStatistics[int32](0, 5, 0, 10)
		b := NewLiteralColumnStatistics[int64](1, 5, 0, 10)

		_, _, _, err := a.PredicateSelectivityTwoColumn(operators.ScanEquals, b, nil)
		if !errors.Is(err, storage.ErrTypeMismatch) {
			t.Errorf("Expected ErrTypeMismatch, got %v", err)
		}
	})

	t.Run("NonEqualityUnestimated", func(t *testing.T) {
		a := NewLiteralColumnStatistics[int32](0, 5, 0, 10)
		b := NewLiteralColumnStatistics[int32](1, 5, 0, 10)

		selectivity, derivedA, derivedB, err := a.PredicateSelectivityTwoColumn(operators.ScanLessThan, b, nil)
		if err != nil {
			t.Fatalf("PredicateSelectivityTwoColumn failed: %v", err)
		}
		if selectivity != 1 || derivedA != nil || derivedB != nil {
			t.Errorf("Expected (1, nil, nil), got (%v, %v, %v)", selectivity, derivedA, derivedB)
		}
	})
}

func TestPlaceholderSelectivity(t *testing.T) {
	stats := NewLiteralColumnStatistics[int32](0, 5, 10, 20)

	t.Run("Equals", func(t *testing.T) {
		selectivity, derived, err := stats.PredicateSelectivityPlaceholder(operators.ScanEquals, nil)
		if err != nil {
			t.Fatalf("PredicateSelectivityPlaceholder failed: %v", err)
		}
		if !almostEqual(selectivity, 0.2) {
			t.Errorf("Expected selectivity 0.2, got %v", selectivity)
		}
		d, _ := derived.DistinctCount()
		if d != 1 {
			t.Errorf("Expected derived distinct count 1, got %v", d)
		}
	})

	t.Run("NotEquals", func(t *testing.T) {
		selectivity, _, err := stats.PredicateSelectivityPlaceholder(operators.ScanNotEquals, nil)
		if err != nil {
			t.Fatalf("PredicateSelectivityPlaceholder failed: %v", err)
		}
		if !almostEqual(selectivity, 0.8) {
			t.Errorf("Expected selectivity 0.8, got %v", selectivity)
		}
	})

	t.Run("OthersUnestimated", func(t *testing.T) {
		selectivity, derived, err := stats.PredicateSelectivityPlaceholder(operators.ScanLessThan, nil)
		if err != nil {
			t.Fatalf("PredicateSelectivityPlaceholder failed: %v", err)
		}
		if selectivity != 1 || derived != nil {
			t.Errorf("Expected (1, nil), got (%v, %v)", selectivity, derived)
		}
	})
}

func TestLazyStatisticsFromTable(t *testing.T) {
	manager := storage.NewStorageManager()
	table := storage.NewTable(4)
	if err := table.AddColumn("price", storage.Int32); err != nil {
		t.Fatalf("Failed to add column: %v", err)
	}
	for _, v := range []int32{12, 7, 19, 7, 3, 12, 19, 3, 7} {
		if err := table.AppendRow(v); err != nil {
			t.Fatalf("Failed to append row: %v", err)
		}
	}
	if err := manager.Add("prices", table); err != nil {
		t.Fatalf("Failed to register table: %v", err)
	}

	stats := NewColumnStatistics[int32](0, "prices", manager)

	d, err := stats.DistinctCount()
	if err != nil {
		t.Fatalf("DistinctCount failed: %v", err)
	}
	if d != 4 {
		t.Errorf("Expected distinct count 4, got %v", d)
	}

	lo, err := stats.Min()
	if err != nil {
		t.Fatalf("Min failed: %v", err)
	}
	hi, err := stats.Max()
	if err != nil {
		t.Fatalf("Max failed: %v", err)
	}
	if lo != 3 || hi != 19 {
		t.Errorf("Expected range [3, 19], got [%v, %v]", lo, hi)
	}

	// Cached values survive the table being dropped
	if err := manager.Drop("prices"); err != nil {
		t.Fatalf("Drop failed: %v", err)
	}
	if d, err := stats.DistinctCount(); err != nil || d != 4 {
		t.Errorf("Cached distinct count lost after drop: (%v, %v)", d, err)
	}
}

func TestLazyStatisticsTableGone(t *testing.T) {
	manager := storage.NewStorageManager()
	stats := NewColumnStatistics[int32](0, "missing", manager)

	if _, err := stats.DistinctCount(); !errors.Is(err, storage.ErrTableNotFound) {
		t.Errorf("Expected ErrTableNotFound, got %v", err)
	}
	if _, err := stats.Min(); !errors.Is(err, storage.ErrTableNotFound) {
		t.Errorf("Expected ErrTableNotFound, got %v", err)
	}
}
