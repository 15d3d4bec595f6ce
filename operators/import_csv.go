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

// CSVConfig carries the parsing configuration for CSV import and export
type CSVConfig struct {
	Delimiter rune
}

// NewCSVConfig returns the default CSV configuration
func NewCSVConfig() CSVConfig {
	return CSVConfig{Delimiter: ','}
}

// CSVColumnMeta describes one column in the metadata sidecar
type CSVColumnMeta struct {
	Name string `json:"name"`
	Type string `json:"type"`
}

// CSVMeta is the metadata sidecar written next to every exported CSV
// file. It round-trips column names, types and chunking with ImportCSV.
type CSVMeta struct {
	ChunkSize int             `json:"chunk_size"`
	Columns   []CSVColumnMeta `json:"columns"`
}

// MetaFilename returns the sidecar path for a CSV data file
func MetaFilename(filename string) string {
	return filename + ".meta"
}

// ImportCSV reads a CSV data file and its metadata sidecar into a table.
// With a registration target set, the imported table is stored in the
// storage manager under the given name; if a table with that name already
// exists it is returned and no import is performed.
//
// Note: ImportCSV does not support null values at the moment.
type ImportCSV struct {
	filename  string
	config    CSVConfig
	tableName string
	manager   *storage.StorageManager

	output   *storage.Table
	executed bool
}

// NewImportCSV creates an import for the given data file path
func NewImportCSV(filename string) *ImportCSV {
	return &ImportCSV{filename: filename, config: NewCSVConfig()}
}

// WithConfig overrides the CSV parsing configuration
func (ic *ImportCSV) WithConfig(config CSVConfig) *ImportCSV {
	ic.config = config
	return ic
}

// WithRegistration stores the imported table in the manager under name
func (ic *ImportCSV) WithRegistration(name string, manager *storage.StorageManager) *ImportCSV {
	ic.tableName = name
	ic.manager = manager
	return ic
}

// Execute runs the import
func (ic *ImportCSV) Execute() error {
	if ic.executed {
		return ErrAlreadyExecuted
	}

	if ic.tableName != "" && ic.manager != nil && ic.manager.Has(ic.tableName) {
		table, err := ic.manager.Get(ic.tableName)
		if err != nil {
			return err
		}
		ic.output = table
		ic.executed = true
		return nil
	}

	meta, err := readCSVMeta(MetaFilename(ic.filename))
	if err != nil {
		return err
	}

	table := storage.NewTable(meta.ChunkSize)
	types := make([]storage.DataType, len(meta.Columns))
	for i, col := range meta.Columns {
		if types[i], err = storage.ParseDataType(col.Type); err != nil {
			return fmt.Errorf("column %q: %w", col.Name, err)
		}
		if err := table.AddColumn(col.Name, types[i]); err != nil {
			return err
		}
	}

	file, err := os.Open(ic.filename)
	if err != nil {
		return fmt.Errorf("failed to open csv file: %w", err)
	}
	defer file.Close()

	reader := csv.NewReader(file)
	reader.Comma = ic.config.Delimiter
	reader.FieldsPerRecord = len(meta.Columns)

	records, err := reader.ReadAll()
	if err != nil {
		return fmt.Errorf("failed to parse csv file %s: %w", ic.filename, err)
	}

	row := make([]interface{}, len(types))
	for lineNo, record := range records {
		for i, field := range record {
			if row[i], err = parseCSVField(types[i], field); err != nil {
				return fmt.Errorf("line %d column %q: %w", lineNo+1, meta.Columns[i].Name, err)
			}
		}
		if err := table.AppendRow(row...); err != nil {
			return err
		}
	}

	trace.GetTracer().Info(trace.ComponentImport, "CSV import complete", trace.Context(
		"file", ic.filename,
		"rows", table.RowCount(),
		"chunks", table.ChunkCount(),
	))

	if ic.tableName != "" && ic.manager != nil {
		if err := ic.manager.Add(ic.tableName, table); err != nil {
			return err
		}
	}

	ic.output = table
	ic.executed = true
	return nil
}

// Output returns the imported table
func (ic *ImportCSV) Output() (*storage.Table, error) {
	if !ic.executed {
		return nil, ErrNotExecuted
	}
	return ic.output, nil
}

func readCSVMeta(path string) (*CSVMeta, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read csv meta file: %w", err)
	}
	var meta CSVMeta
	if err := json.Unmarshal(data, &meta); err != nil {
		return nil, fmt.Errorf("failed to parse csv meta file %s: %w", path, err)
	}
	return &meta, nil
}

func parseCSVField(dt storage.DataType, field string) (interface{}, error) {
	switch dt {
	case storage.Int32:
		n, err := strconv.ParseInt(field, 10, 32)
		if err != nil {
			return nil, fmt.Errorf("invalid int32 %q: %w", field, err)
		}
		return int32(n), nil
	case storage.Int64:
		n, err := strconv.ParseInt(field, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid int64 %q: %w", field, err)
		}
		return n, nil
	case storage.Float32:
		f, err := strconv.ParseFloat(field, 32)
		if err != nil {
			return nil, fmt.Errorf("invalid float32 %q: %w", field, err)
		}
		return float32(f), nil
	case storage.Float64:
		f, err := strconv.ParseFloat(field, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid float64 %q: %w", field, err)
		}
		return f, nil
	case storage.String:
		return field, nil
	default:
		return nil, fmt.Errorf("%w: %s", storage.ErrUnsupportedType, dt)
	}
}
