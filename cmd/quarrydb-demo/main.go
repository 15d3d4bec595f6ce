// Command quarrydb-demo loads a CSV table pair and walks it through the
// engine: a predicate scan, an aggregation, a selectivity estimate, and
// an equi sort-merge join preparation.
//
// Usage:
//
//	quarrydb-demo <left.csv> <left-column> <right.csv> <right-column>
//
// Each CSV file needs its <file>.meta sidecar. Set QUARRYDB_TRACE_LEVEL
// (and optionally QUARRYDB_TRACE_COMPONENTS) to watch the stages run.
package main

import (
	"fmt"
	"os"

	"quarrydb/mergejoin"
	"quarrydb/operators"
	"quarrydb/optimizer"
	"quarrydb/scheduler"
	"quarrydb/storage"
)

func main() {
	if len(os.Args) != 5 {
		fmt.Fprintf(os.Stderr, "usage: %s <left.csv> <left-column> <right.csv> <right-column>\n", os.Args[0])
		os.Exit(2)
	}
	leftPath, leftColumn := os.Args[1], os.Args[2]
	rightPath, rightColumn := os.Args[3], os.Args[4]

	if err := run(leftPath, leftColumn, rightPath, rightColumn); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(leftPath, leftColumn, rightPath, rightColumn string) error {
	manager := storage.NewStorageManager()

	importLeft := operators.NewImportCSV(leftPath).WithRegistration("left", manager)
	if err := importLeft.Execute(); err != nil {
		return err
	}
	left, err := importLeft.Output()
	if err != nil {
		return err
	}
	importRight := operators.NewImportCSV(rightPath).WithRegistration("right", manager)
	if err := importRight.Execute(); err != nil {
		return err
	}
	right, err := importRight.Output()
	if err != nil {
		return err
	}
	fmt.Printf("left: %d rows in %d chunks, right: %d rows in %d chunks\n",
		left.RowCount(), left.ChunkCount(), right.RowCount(), right.ChunkCount())

	leftID, err := left.ColumnIDByName(leftColumn)
	if err != nil {
		return err
	}
	if left.ColumnType(leftID) != storage.Int32 {
		return fmt.Errorf("demo expects an int32 join column, %q holds %s",
			leftColumn, left.ColumnType(leftID))
	}

	// Column statistics drive the selectivity estimate for a sample
	// equality predicate against the column's midpoint
	stats := optimizer.NewColumnStatistics[int32](leftID, "left", manager)
	lo, err := stats.Min()
	if err != nil {
		return err
	}
	hi, err := stats.Max()
	if err != nil {
		return err
	}
	distinct, err := stats.DistinctCount()
	if err != nil {
		return err
	}
	fmt.Printf("stats(%s): min=%d max=%d distinct=%.0f\n", leftColumn, lo, hi, distinct)

	midpoint := lo + (hi-lo)/2
	selectivity, _, err := stats.PredicateSelectivity(operators.ScanEquals, midpoint, nil)
	if err != nil {
		return err
	}
	fmt.Printf("estimated selectivity of %s = %d: %.4f\n", leftColumn, midpoint, selectivity)

	// Scan the rows at or below the midpoint
	wrapper := operators.NewTableWrapper(left)
	if err := wrapper.Execute(); err != nil {
		return err
	}
	scan := operators.NewTableScan(wrapper, leftColumn, operators.ScanLessThanEquals, midpoint, nil)
	if err := scan.Execute(); err != nil {
		return err
	}
	scanned, err := scan.Output()
	if err != nil {
		return err
	}
	fmt.Printf("scan %s <= %d keeps %d of %d rows\n",
		leftColumn, midpoint, scanned.RowCount(), left.RowCount())

	// Prepare both sides for an equi sort-merge join
	sched, err := scheduler.NewScheduler(0)
	if err != nil {
		return err
	}
	defer sched.Release()

	rcs, err := mergejoin.NewRadixClusterSort[int32](left, right, leftColumn, rightColumn, true, 8, sched)
	if err != nil {
		return err
	}
	if err := rcs.Execute(); err != nil {
		return err
	}
	outLeft, outRight, err := rcs.Output()
	if err != nil {
		return err
	}
	fmt.Printf("join preparation: %d left clusters (%d rows), %d right clusters (%d rows)\n",
		len(outLeft), outLeft.TotalSize(), len(outRight), outRight.TotalSize())

	return nil
}
