package operators

import (
	"errors"

	"quarrydb/storage"
)

// Errors
var (
	ErrNotExecuted        = errors.New("operator has not been executed")
	ErrAlreadyExecuted    = errors.New("operator was already executed")
	ErrMissingSecondValue = errors.New("between predicate needs a second value")
	ErrNilInput           = errors.New("input operator is nil")
)

// Operator is the contract every relational operator satisfies. Operators
// are single-shot: Execute runs the operator exactly once and Output
// returns the produced table afterwards. Calling Output before Execute is
// an error, as is executing twice.
type Operator interface {
	Execute() error
	Output() (*storage.Table, error)
}

// ScanType enumerates the predicate comparison operators
type ScanType uint8

const (
	ScanEquals ScanType = iota
	ScanNotEquals
	ScanLessThan
	ScanLessThanEquals
	ScanGreaterThan
	ScanGreaterThanEquals
	ScanBetween
)

// String returns the SQL-ish rendering of the scan type
func (st ScanType) String() string {
	switch st {
	case ScanEquals:
		return "="
	case ScanNotEquals:
		return "!="
	case ScanLessThan:
		return "<"
	case ScanLessThanEquals:
		return "<="
	case ScanGreaterThan:
		return ">"
	case ScanGreaterThanEquals:
		return ">="
	case ScanBetween:
		return "BETWEEN"
	default:
		return "UNKNOWN"
	}
}

// AggregateFunc enumerates the supported aggregate functions
type AggregateFunc uint8

const (
	AggMin AggregateFunc = iota
	AggMax
	AggSum
	AggCount
	AggAvg
)

// String returns the canonical name of the aggregate function
func (af AggregateFunc) String() string {
	switch af {
	case AggMin:
		return "MIN"
	case AggMax:
		return "MAX"
	case AggSum:
		return "SUM"
	case AggCount:
		return "COUNT"
	case AggAvg:
		return "AVG"
	default:
		return "UNKNOWN"
	}
}

// resolveInput fetches the output table of an upstream operator
func resolveInput(input Operator) (*storage.Table, error) {
	if input == nil {
		return nil, ErrNilInput
	}
	return input.Output()
}
