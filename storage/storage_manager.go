package storage

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"quarrydb/scheduler"
	"quarrydb/trace"
)

// TableSummary is a cached snapshot of a registered table's shape,
// maintained by the manager's background refresh loop.
type TableSummary struct {
	RowCount    int
	ChunkCount  int
	LastRefresh time.Time
}

// StorageManager is a table registry keyed by name. It is an explicit
// collaborator: operators that need lookups receive a manager value, the
// engine core never reaches for ambient state.
type StorageManager struct {
	mu        sync.RWMutex
	tables    map[string]*Table
	summaries map[string]TableSummary

	refresh *scheduler.PausableLoop
}

// NewStorageManager creates an empty registry
func NewStorageManager() *StorageManager {
	return &StorageManager{
		tables:    make(map[string]*Table),
		summaries: make(map[string]TableSummary),
	}
}

// Add registers a table under the given name
func (sm *StorageManager) Add(name string, table *Table) error {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	if _, exists := sm.tables[name]; exists {
		return fmt.Errorf("%w: %q", ErrDuplicateTable, name)
	}
	sm.tables[name] = table
	trace.GetTracer().Info(trace.ComponentStorage, "Registered table",
		trace.Context("table", name, "rows", table.RowCount()))
	return nil
}

// Get looks up a table by name
func (sm *StorageManager) Get(name string) (*Table, error) {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	table, exists := sm.tables[name]
	if !exists {
		return nil, fmt.Errorf("%w: %q", ErrTableNotFound, name)
	}
	return table, nil
}

// Has reports whether a table is registered under the given name
func (sm *StorageManager) Has(name string) bool {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	_, exists := sm.tables[name]
	return exists
}

// Drop removes a table from the registry
func (sm *StorageManager) Drop(name string) error {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	if _, exists := sm.tables[name]; !exists {
		return fmt.Errorf("%w: %q", ErrTableNotFound, name)
	}
	delete(sm.tables, name)
	delete(sm.summaries, name)
	return nil
}

// Names returns the registered table names in sorted order
func (sm *StorageManager) Names() []string {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	names := make([]string, 0, len(sm.tables))
	for name := range sm.tables {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Summary returns the cached summary for a table, if one has been taken
func (sm *StorageManager) Summary(name string) (TableSummary, bool) {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	summary, ok := sm.summaries[name]
	return summary, ok
}

// RefreshSummaries recomputes the cached summaries for all tables
func (sm *StorageManager) RefreshSummaries() {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	now := time.Now()
	for name, table := range sm.tables {
		sm.summaries[name] = TableSummary{
			RowCount:    table.RowCount(),
			ChunkCount:  table.ChunkCount(),
			LastRefresh: now,
		}
	}
}

// StartSummaryRefresh begins periodic background summary refreshes.
// The loop can be paused and resumed through the returned handle;
// StopSummaryRefresh finishes it.
func (sm *StorageManager) StartSummaryRefresh(interval time.Duration) *scheduler.PausableLoop {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	if sm.refresh != nil {
		return sm.refresh
	}
	sm.refresh = scheduler.NewPausableLoop(interval, func(iteration uint64) {
		sm.RefreshSummaries()
		trace.GetTracer().Verbose(trace.ComponentStorage, "Refreshed table summaries",
			trace.Context("iteration", iteration))
	})
	return sm.refresh
}

// StopSummaryRefresh finishes the background refresh loop, if running
func (sm *StorageManager) StopSummaryRefresh() {
	sm.mu.Lock()
	loop := sm.refresh
	sm.refresh = nil
	sm.mu.Unlock()
	if loop != nil {
		loop.Finish()
	}
}
