package mergejoin

import (
	"fmt"
	"math"
	"sort"
	"sync"

	"quarrydb/operators"
	"quarrydb/scheduler"
	"quarrydb/storage"
	"quarrydb/trace"
)

/*
RadixClusterSort prepares two input relations for a sort merge join. The
radix clustering algorithm clusters on the basis of the least significant
bits of the values because the values there are much more evenly
distributed than for the most significant bits. As a result, equal values
always get moved to the same cluster and the clusters are sorted in
themselves but not in between the clusters. This is okay for the equi
join, because we are only interested in equality. In the case of a
non-equi join however, complete sortedness is required, because join
matches exist beyond cluster borders. Therefore, the clustering defaults
to a range clustering algorithm for the non-equi join.

General clustering process:
  - Input chunks are materialized, sorted per chunk in the non-equi case.
    Every value is stored together with its row id.
  - Then, either radix clustering or range clustering is performed.
  - At last, the resulting clusters are sorted.
*/
type RadixClusterSort[T storage.ColumnValue] struct {
	left, right             *storage.Table
	leftColumn, rightColumn string
	equiCase                bool
	clusterCount            int
	sched                   *scheduler.Scheduler

	state       driverState
	err         error
	outputLeft  MaterializedColumnList[T]
	outputRight MaterializedColumnList[T]
}

// driverState tracks the single-shot pipeline progress
type driverState uint8

const (
	stateConstructed driverState = iota
	stateMaterialized
	stateClustered
	stateSorted
	stateDelivered
	stateFailed
)

func (s driverState) String() string {
	switch s {
	case stateConstructed:
		return "constructed"
	case stateMaterialized:
		return "materialized"
	case stateClustered:
		return "clustered"
	case stateSorted:
		return "sorted"
	case stateDelivered:
		return "delivered"
	case stateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// NewRadixClusterSort creates the driver. clusterCount must be a
// strictly positive power of two.
func NewRadixClusterSort[T storage.ColumnValue](left, right *storage.Table,
	leftColumn, rightColumn string, equiCase bool, clusterCount int,
	sched *scheduler.Scheduler) (*RadixClusterSort[T], error) {
	if left == nil || right == nil {
		return nil, ErrNilInput
	}
	if clusterCount <= 0 || clusterCount&(clusterCount-1) != 0 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidClusterCount, clusterCount)
	}
	return &RadixClusterSort[T]{
		left:         left,
		right:        right,
		leftColumn:   leftColumn,
		rightColumn:  rightColumn,
		equiCase:     equiCase,
		clusterCount: clusterCount,
		sched:        sched,
	}, nil
}

// radix32 reinterprets a value as an unsigned 32-bit integer: integers
// contribute the low 32 bits of their two's complement representation,
// floats the low word of their IEEE-754 bit pattern, and strings their
// first four bytes read little-endian, zero-extended to the right when
// shorter than four bytes.
func radix32[T storage.ColumnValue](value T) uint32 {
	switch v := any(value).(type) {
	case int32:
		return uint32(v)
	case int64:
		return uint32(uint64(v))
	case float32:
		return math.Float32bits(v)
	case float64:
		return uint32(math.Float64bits(v))
	case string:
		var bits uint32
		for i := 0; i < 4 && i < len(v); i++ {
			bits |= uint32(v[i]) << (8 * i)
		}
		return bits
	default:
		return 0
	}
}

// concatenateChunks merges all materialized chunks into a single chunk
func concatenateChunks[T storage.ColumnValue](input MaterializedColumnList[T]) MaterializedColumnList[T] {
	combined := make(MaterializedChunk[T], 0, input.TotalSize())
	for _, chunk := range input {
		combined = append(combined, chunk...)
	}
	return MaterializedColumnList[T]{combined}
}

// cluster moves every record into the cluster chosen by the clusterer
// function. One task per input chunk runs on the scheduler; appends to a
// destination cluster happen under that cluster's mutex. Record order
// within a cluster after partitioning is unspecified; the subsequent
// sort establishes the documented order.
func (r *RadixClusterSort[T]) cluster(input MaterializedColumnList[T],
	clusterer func(T) int) (MaterializedColumnList[T], error) {
	output := make(MaterializedColumnList[T], r.clusterCount)
	clusterMutexes := make([]sync.Mutex, r.clusterCount)

	// Reserve output space assuming a uniform distribution
	sizeHint := input.TotalSize() / r.clusterCount
	for clusterID := range output {
		output[clusterID] = make(MaterializedChunk[T], 0, sizeHint)
	}

	handles := make([]*scheduler.TaskHandle, 0, len(input))
	for chunkID := range input {
		chunk := input[chunkID]
		handle, err := r.sched.Schedule(func() error {
			for _, entry := range chunk {
				clusterID := clusterer(entry.Value)
				clusterMutexes[clusterID].Lock()
				output[clusterID] = append(output[clusterID], entry)
				clusterMutexes[clusterID].Unlock()
			}
			return nil
		})
		if err != nil {
			// Join whatever was dispatched before surfacing the error
			r.sched.WaitForAll(handles)
			return nil, err
		}
		handles = append(handles, handle)
	}

	if err := r.sched.WaitForAll(handles); err != nil {
		return nil, err
	}
	return output, nil
}

// radixCluster performs least significant bit radix clustering, used in
// the equi join case.
func (r *RadixClusterSort[T]) radixCluster(input MaterializedColumnList[T]) (MaterializedColumnList[T], error) {
	radixBitmask := uint32(r.clusterCount - 1)
	return r.cluster(input, func(value T) int {
		return int(radix32(value) & radixBitmask)
	})
}

// pickSampleValues samples boundary candidates from a materialized
// table.
//
// Note:
//   - The materialized chunks are sorted; between the chunks there is no
//     order, so every chunk can contain values for every cluster.
//   - To sample for range border values we look at the position where
//     the values for each cluster would start if every chunk had an even
//     value distribution for every cluster.
//   - The samples are aggregated later to determine the actual cluster
//     borders.
func (r *RadixClusterSort[T]) pickSampleValues(sampleValues []map[T]int, table MaterializedColumnList[T]) {
	for _, chunk := range table {
		if len(chunk) == 0 {
			continue
		}
		for clusterID := 0; clusterID < r.clusterCount-1; clusterID++ {
			index := len(chunk) * (clusterID + 1) / r.clusterCount
			sampleValues[clusterID][chunk[index].Value]++
		}
	}
}

// rangeCluster performs range clustering for the non-equi case
// (<, <=, >, >=), which requires the complete relation to be ordered
// across clusters and not only within them. Split values are derived
// from samples of both inputs so both sides share the same boundaries.
func (r *RadixClusterSort[T]) rangeCluster(inputLeft, inputRight MaterializedColumnList[T]) (MaterializedColumnList[T], MaterializedColumnList[T], error) {
	sampleValues := make([]map[T]int, r.clusterCount-1)
	for i := range sampleValues {
		sampleValues[i] = make(map[T]int)
	}
	r.pickSampleValues(sampleValues, inputLeft)
	r.pickSampleValues(sampleValues, inputRight)

	// Pick the most frequently sampled value as the split value for
	// each boundary; ties go to the smaller value so the result is
	// deterministic. The last cluster needs no split value because it
	// covers everything greater than all split values. A split value
	// is the inclusive end of its range; the next range holds only
	// greater values.
	splitValues := make([]T, r.clusterCount-1)
	for clusterID, samples := range sampleValues {
		first := true
		var bestValue T
		bestCount := 0
		for value, count := range samples {
			if first || count > bestCount || (count == bestCount && value < bestValue) {
				bestValue = value
				bestCount = count
				first = false
			}
		}
		splitValues[clusterID] = bestValue
	}

	// Find the first split value greater or equal to the entry. Each
	// split value is picked for its boundary on its own, so the values
	// need not be ascending; because the first match wins, every
	// cluster still holds only values greater than those of the lower
	// clusters. A value greater than all split values belongs in the
	// last cluster.
	clusterer := func(value T) int {
		for clusterID := 0; clusterID < r.clusterCount-1; clusterID++ {
			if value <= splitValues[clusterID] {
				return clusterID
			}
		}
		return r.clusterCount - 1
	}

	outputLeft, err := r.cluster(inputLeft, clusterer)
	if err != nil {
		return nil, nil, err
	}
	outputRight, err := r.cluster(inputRight, clusterer)
	if err != nil {
		return nil, nil, err
	}
	return outputLeft, outputRight, nil
}

// sortClusters orders every cluster in place by value ascending
func sortClusters[T storage.ColumnValue](clusters MaterializedColumnList[T]) {
	for _, cluster := range clusters {
		sort.Slice(cluster, func(i, j int) bool {
			return cluster[i].Value < cluster[j].Value
		})
	}
}

func (r *RadixClusterSort[T]) fail(err error) error {
	r.state = stateFailed
	r.err = err
	return err
}

// Execute runs materialization, clustering and sorting for both inputs.
// The driver is single-shot.
func (r *RadixClusterSort[T]) Execute() error {
	if r.state != stateConstructed {
		return operators.ErrAlreadyExecuted
	}
	tracer := trace.GetTracer()

	// The chunks of the input tables are pre-sorted in the non-equi
	// case, where sampling relies on per-chunk order
	materializer := NewColumnMaterializer[T](!r.equiCase)
	chunksLeft, err := materializer.Materialize(r.left, r.leftColumn)
	if err != nil {
		return r.fail(err)
	}
	chunksRight, err := materializer.Materialize(r.right, r.rightColumn)
	if err != nil {
		return r.fail(err)
	}
	r.state = stateMaterialized

	switch {
	case r.clusterCount == 1:
		r.outputLeft = concatenateChunks(chunksLeft)
		r.outputRight = concatenateChunks(chunksRight)
	case r.equiCase:
		if r.outputLeft, err = r.radixCluster(chunksLeft); err != nil {
			return r.fail(err)
		}
		if r.outputRight, err = r.radixCluster(chunksRight); err != nil {
			return r.fail(err)
		}
	default:
		if r.outputLeft, r.outputRight, err = r.rangeCluster(chunksLeft, chunksRight); err != nil {
			return r.fail(err)
		}
	}
	r.state = stateClustered
	tracer.Debug(trace.ComponentCluster, "Clustering complete", trace.Context(
		"clusters", r.clusterCount,
		"equi", r.equiCase,
		"left_rows", r.outputLeft.TotalSize(),
		"right_rows", r.outputRight.TotalSize(),
	))

	sortClusters(r.outputLeft)
	sortClusters(r.outputRight)
	r.state = stateSorted

	if got, want := r.outputLeft.TotalSize(), r.left.RowCount(); got != want {
		return r.fail(fmt.Errorf("%w: left output has %d rows, source has %d",
			ErrRowCountMismatch, got, want))
	}
	if got, want := r.outputRight.TotalSize(), r.right.RowCount(); got != want {
		return r.fail(fmt.Errorf("%w: right output has %d rows, source has %d",
			ErrRowCountMismatch, got, want))
	}

	r.state = stateDelivered
	return nil
}

// Output returns both prepared relations. It is an error to call Output
// before a successful Execute.
func (r *RadixClusterSort[T]) Output() (MaterializedColumnList[T], MaterializedColumnList[T], error) {
	switch r.state {
	case stateDelivered:
		return r.outputLeft, r.outputRight, nil
	case stateFailed:
		return nil, nil, r.err
	default:
		return nil, nil, operators.ErrNotExecuted
	}
}
