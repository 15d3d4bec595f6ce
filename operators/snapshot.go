package operators

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"os"

	"github.com/golang/snappy"

	"quarrydb/storage"
	"quarrydb/trace"
)

// Snapshot file constants
const (
	snapshotMagic        = 0x51525953 // "QRYS"
	snapshotMajorVersion = 1
	snapshotMinorVersion = 0
)

// ExportSnapshot writes the input table to a binary snapshot file: a
// fixed header with the column definitions and chunking, followed by one
// snappy-compressed block per (chunk, column) pair. ImportSnapshot
// reconstructs the table exactly, chunk boundaries included.
type ExportSnapshot struct {
	input    Operator
	filename string

	output   *storage.Table
	executed bool
}

// NewExportSnapshot creates a snapshot export to the given path
func NewExportSnapshot(input Operator, filename string) *ExportSnapshot {
	return &ExportSnapshot{input: input, filename: filename}
}

// Execute runs the export
func (es *ExportSnapshot) Execute() error {
	if es.executed {
		return ErrAlreadyExecuted
	}

	in, err := resolveInput(es.input)
	if err != nil {
		return err
	}

	file, err := os.Create(es.filename)
	if err != nil {
		return fmt.Errorf("failed to create snapshot file: %w", err)
	}
	defer file.Close()
	w := bufio.NewWriter(file)

	header := make([]byte, 0, 64)
	header = storage.ByteOrder.AppendUint32(header, snapshotMagic)
	header = storage.ByteOrder.AppendUint16(header, snapshotMajorVersion)
	header = storage.ByteOrder.AppendUint16(header, snapshotMinorVersion)
	header = storage.ByteOrder.AppendUint32(header, uint32(in.ChunkSize()))
	header = storage.ByteOrder.AppendUint32(header, uint32(in.ColumnCount()))
	for _, col := range in.Columns() {
		header = binary.AppendUvarint(header, uint64(len(col.Name)))
		header = append(header, col.Name...)
		header = append(header, byte(col.Type))
	}
	header = storage.ByteOrder.AppendUint32(header, uint32(in.ChunkCount()))
	if _, err := w.Write(header); err != nil {
		return fmt.Errorf("failed to write snapshot header: %w", err)
	}

	for chunkID := 0; chunkID < in.ChunkCount(); chunkID++ {
		chunk := in.Chunk(chunkID)
		var sizeBuf [4]byte
		storage.ByteOrder.PutUint32(sizeBuf[:], uint32(chunk.Size()))
		if _, err := w.Write(sizeBuf[:]); err != nil {
			return fmt.Errorf("failed to write chunk size: %w", err)
		}
		for colID := 0; colID < in.ColumnCount(); colID++ {
			block := encodeSegment(chunk.Segment(colID))
			compressed := snappy.Encode(nil, block)
			storage.ByteOrder.PutUint32(sizeBuf[:], uint32(len(compressed)))
			if _, err := w.Write(sizeBuf[:]); err != nil {
				return fmt.Errorf("failed to write block size: %w", err)
			}
			if _, err := w.Write(compressed); err != nil {
				return fmt.Errorf("failed to write block: %w", err)
			}
		}
	}
	if err := w.Flush(); err != nil {
		return fmt.Errorf("failed to flush snapshot file: %w", err)
	}

	trace.GetTracer().Info(trace.ComponentExport, "Snapshot export complete", trace.Context(
		"file", es.filename,
		"rows", in.RowCount(),
		"chunks", in.ChunkCount(),
	))

	es.output = in
	es.executed = true
	return nil
}

// Output returns the (unchanged) input table
func (es *ExportSnapshot) Output() (*storage.Table, error) {
	if !es.executed {
		return nil, ErrNotExecuted
	}
	return es.output, nil
}

// ImportSnapshot reads a binary snapshot file back into a table
type ImportSnapshot struct {
	filename string

	output   *storage.Table
	executed bool
}

// NewImportSnapshot creates a snapshot import from the given path
func NewImportSnapshot(filename string) *ImportSnapshot {
	return &ImportSnapshot{filename: filename}
}

// Execute runs the import
func (is *ImportSnapshot) Execute() error {
	if is.executed {
		return ErrAlreadyExecuted
	}

	data, err := os.ReadFile(is.filename)
	if err != nil {
		return fmt.Errorf("failed to read snapshot file: %w", err)
	}
	r := &byteCursor{data: data}

	magic, err := r.uint32()
	if err != nil {
		return err
	}
	if magic != snapshotMagic {
		return fmt.Errorf("invalid snapshot magic number %#x", magic)
	}
	major, err := r.uint16()
	if err != nil {
		return err
	}
	if _, err := r.uint16(); err != nil {
		return err
	}
	if major != snapshotMajorVersion {
		return fmt.Errorf("unsupported snapshot version %d", major)
	}

	chunkSize, err := r.uint32()
	if err != nil {
		return err
	}
	columnCount, err := r.uint32()
	if err != nil {
		return err
	}

	table := storage.NewTable(int(chunkSize))
	types := make([]storage.DataType, columnCount)
	for i := 0; i < int(columnCount); i++ {
		name, err := r.lengthPrefixedString()
		if err != nil {
			return err
		}
		typeByte, err := r.byte()
		if err != nil {
			return err
		}
		types[i] = storage.DataType(typeByte)
		if err := table.AddColumn(name, types[i]); err != nil {
			return err
		}
	}

	chunkCount, err := r.uint32()
	if err != nil {
		return err
	}
	for chunkID := 0; chunkID < int(chunkCount); chunkID++ {
		rowCount, err := r.uint32()
		if err != nil {
			return err
		}
		columns := make([][]interface{}, columnCount)
		for colID := 0; colID < int(columnCount); colID++ {
			compLen, err := r.uint32()
			if err != nil {
				return err
			}
			compressed, err := r.bytes(int(compLen))
			if err != nil {
				return err
			}
			block, err := snappy.Decode(nil, compressed)
			if err != nil {
				return fmt.Errorf("failed to decompress block: %w", err)
			}
			if columns[colID], err = decodeSegment(types[colID], block, int(rowCount)); err != nil {
				return err
			}
		}
		row := make([]interface{}, columnCount)
		for offset := 0; offset < int(rowCount); offset++ {
			for colID := range row {
				row[colID] = columns[colID][offset]
			}
			if err := table.AppendRow(row...); err != nil {
				return err
			}
		}
	}

	trace.GetTracer().Info(trace.ComponentImport, "Snapshot import complete", trace.Context(
		"file", is.filename,
		"rows", table.RowCount(),
	))

	is.output = table
	is.executed = true
	return nil
}

// Output returns the imported table
func (is *ImportSnapshot) Output() (*storage.Table, error) {
	if !is.executed {
		return nil, ErrNotExecuted
	}
	return is.output, nil
}

// encodeSegment serializes a segment's values little-endian; strings are
// length-framed
func encodeSegment(seg storage.Segment) []byte {
	buf := make([]byte, 0, seg.Len()*8)
	for i := 0; i < seg.Len(); i++ {
		switch v := seg.ValueAt(i).(type) {
		case int32:
			buf = storage.ByteOrder.AppendUint32(buf, uint32(v))
		case int64:
			buf = storage.ByteOrder.AppendUint64(buf, uint64(v))
		case float32:
			buf = storage.ByteOrder.AppendUint32(buf, floatBits32(v))
		case float64:
			buf = storage.ByteOrder.AppendUint64(buf, floatBits64(v))
		case string:
			buf = binary.AppendUvarint(buf, uint64(len(v)))
			buf = append(buf, v...)
		}
	}
	return buf
}

func decodeSegment(dt storage.DataType, block []byte, rowCount int) ([]interface{}, error) {
	values := make([]interface{}, 0, rowCount)
	r := &byteCursor{data: block}
	for i := 0; i < rowCount; i++ {
		switch dt {
		case storage.Int32:
			u, err := r.uint32()
			if err != nil {
				return nil, err
			}
			values = append(values, int32(u))
		case storage.Int64:
			u, err := r.uint64()
			if err != nil {
				return nil, err
			}
			values = append(values, int64(u))
		case storage.Float32:
			u, err := r.uint32()
			if err != nil {
				return nil, err
			}
			values = append(values, floatFrom32(u))
		case storage.Float64:
			u, err := r.uint64()
			if err != nil {
				return nil, err
			}
			values = append(values, floatFrom64(u))
		case storage.String:
			s, err := r.lengthPrefixedString()
			if err != nil {
				return nil, err
			}
			values = append(values, s)
		default:
			return nil, fmt.Errorf("%w: %s", storage.ErrUnsupportedType, dt)
		}
	}
	return values, nil
}

// byteCursor is a bounds-checked reader over an in-memory buffer
type byteCursor struct {
	data []byte
	pos  int
}

func (c *byteCursor) bytes(n int) ([]byte, error) {
	if c.pos+n > len(c.data) {
		return nil, io.ErrUnexpectedEOF
	}
	out := c.data[c.pos : c.pos+n]
	c.pos += n
	return out, nil
}

func (c *byteCursor) byte() (byte, error) {
	b, err := c.bytes(1)
	if err != nil {
		return 0, err
	}
	return b[0], nil
}

func (c *byteCursor) uint16() (uint16, error) {
	b, err := c.bytes(2)
	if err != nil {
		return 0, err
	}
	return storage.ByteOrder.Uint16(b), nil
}

func (c *byteCursor) uint32() (uint32, error) {
	b, err := c.bytes(4)
	if err != nil {
		return 0, err
	}
	return storage.ByteOrder.Uint32(b), nil
}

func (c *byteCursor) uint64() (uint64, error) {
	b, err := c.bytes(8)
	if err != nil {
		return 0, err
	}
	return storage.ByteOrder.Uint64(b), nil
}

func (c *byteCursor) lengthPrefixedString() (string, error) {
	length, n := binary.Uvarint(c.data[c.pos:])
	if n <= 0 {
		return "", io.ErrUnexpectedEOF
	}
	c.pos += n
	b, err := c.bytes(int(length))
	if err != nil {
		return "", err
	}
	return string(b), nil
}
