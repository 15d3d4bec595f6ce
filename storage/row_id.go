package storage

import "fmt"

// RowID identifies a source row as a (chunk index, offset within chunk)
// pair. RowIDs are opaque to every consumer: pipeline stages carry them
// through verbatim and never synthesize or renumber them.
type RowID struct {
	Chunk  uint32
	Offset uint32
}

// String returns a compact chunk:offset rendering
func (r RowID) String() string {
	return fmt.Sprintf("%d:%d", r.Chunk, r.Offset)
}
