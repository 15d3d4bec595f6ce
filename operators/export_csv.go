package operators

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"strconv"

	"quarrydb/storage"
	"quarrydb/trace"
)

// ExportCSV writes the input operator's table to a CSV data file plus
// the metadata sidecar ImportCSV needs to reconstruct the table exactly
// (column definitions and chunking included).
type ExportCSV struct {
	input    Operator
	filename string
	config   CSVConfig

	output   *storage.Table
	executed bool
}

// NewExportCSV creates an export to the given data file path
func NewExportCSV(input Operator, filename string) *ExportCSV {
	return &ExportCSV{input: input, filename: filename, config: NewCSVConfig()}
}

// WithConfig overrides the CSV formatting configuration
func (ec *ExportCSV) WithConfig(config CSVConfig) *ExportCSV {
	ec.config = config
	return ec
}

// Execute runs the export
func (ec *ExportCSV) Execute() error {
	if ec.executed {
		return ErrAlreadyExecuted
	}

	in, err := resolveInput(ec.input)
	if err != nil {
		return err
	}

	meta := CSVMeta{ChunkSize: in.ChunkSize()}
	for _, col := range in.Columns() {
		meta.Columns = append(meta.Columns, CSVColumnMeta{Name: col.Name, Type: col.Type.String()})
	}
	metaData, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal csv meta: %w", err)
	}
	if err := os.WriteFile(MetaFilename(ec.filename), metaData, 0644); err != nil {
		return fmt.Errorf("failed to write csv meta file: %w", err)
	}

	file, err := os.Create(ec.filename)
	if err != nil {
		return fmt.Errorf("failed to create csv file: %w", err)
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	writer.Comma = ec.config.Delimiter

	record := make([]string, in.ColumnCount())
	for chunkID := 0; chunkID < in.ChunkCount(); chunkID++ {
		chunk := in.Chunk(chunkID)
		for offset := 0; offset < chunk.Size(); offset++ {
			for colID := 0; colID < in.ColumnCount(); colID++ {
				record[colID] = formatCSVField(chunk.Segment(colID).ValueAt(offset))
			}
			if err := writer.Write(record); err != nil {
				return fmt.Errorf("failed to write csv record: %w", err)
			}
		}
	}
	writer.Flush()
	if err := writer.Error(); err != nil {
		return fmt.Errorf("failed to flush csv file: %w", err)
	}

	trace.GetTracer().Info(trace.ComponentExport, "CSV export complete", trace.Context(
		"file", ec.filename,
		"rows", in.RowCount(),
	))

	ec.output = in
	ec.executed = true
	return nil
}

// Output returns the (unchanged) input table
func (ec *ExportCSV) Output() (*storage.Table, error) {
	if !ec.executed {
		return nil, ErrNotExecuted
	}
	return ec.output, nil
}

func formatCSVField(v interface{}) string {
	switch val := v.(type) {
	case int32:
		return strconv.FormatInt(int64(val), 10)
	case int64:
		return strconv.FormatInt(val, 10)
	case float32:
		return strconv.FormatFloat(float64(val), 'g', -1, 32)
	case float64:
		return strconv.FormatFloat(val, 'g', -1, 64)
	case string:
		return val
	default:
		return fmt.Sprintf("%v", val)
	}
}
