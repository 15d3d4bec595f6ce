package operators

import "quarrydb/storage"

// TableWrapper adapts an existing table to the operator contract so it
// can feed downstream operators.
type TableWrapper struct {
	table    *storage.Table
	executed bool
}

// NewTableWrapper wraps a table
func NewTableWrapper(table *storage.Table) *TableWrapper {
	return &TableWrapper{table: table}
}

// Execute marks the wrapper as executed
func (tw *TableWrapper) Execute() error {
	if tw.executed {
		return ErrAlreadyExecuted
	}
	if tw.table == nil {
		return ErrNilInput
	}
	tw.executed = true
	return nil
}

// Output returns the wrapped table
func (tw *TableWrapper) Output() (*storage.Table, error) {
	if !tw.executed {
		return nil, ErrNotExecuted
	}
	return tw.table, nil
}
