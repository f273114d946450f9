package pipeline

import (
	"errors"
	"fmt"
	"path/filepath"

	"github.com/aluiziolira/go-scrape-products/models"
)

// OutputWriter persists a finished product list.
type OutputWriter interface {
	Write(products []*models.Product) error
	// Paths lists the files Write produces.
	Paths() []string
}

// JSONWriter writes <name>.json.
type JSONWriter struct {
	path string
}

// NewJSONWriter returns a writer for filename.
func NewJSONWriter(filename string) *JSONWriter {
	return &JSONWriter{path: filename}
}

func (jw *JSONWriter) Write(products []*models.Product) error {
	return WriteJSON(jw.path, products)
}

func (jw *JSONWriter) Paths() []string {
	return []string{jw.path}
}

// CSVWriter writes <name>.csv.
type CSVWriter struct {
	path string
}

// NewCSVWriter returns a writer for filename.
func NewCSVWriter(filename string) *CSVWriter {
	return &CSVWriter{path: filename}
}

func (cw *CSVWriter) Write(products []*models.Product) error {
	return WriteCSV(cw.path, products)
}

func (cw *CSVWriter) Paths() []string {
	return []string{cw.path}
}

// DualWriter outputs to both CSV and JSON formats. A failure in one format
// does not prevent the other from being written.
type DualWriter struct {
	csvWriter  *CSVWriter
	jsonWriter *JSONWriter
}

// NewDualWriter creates a new dual writer for both CSV and JSON output
func NewDualWriter(csvFilename, jsonFilename string) *DualWriter {
	return &DualWriter{
		csvWriter:  NewCSVWriter(csvFilename),
		jsonWriter: NewJSONWriter(jsonFilename),
	}
}

func (dw *DualWriter) Write(products []*models.Product) error {
	var errs []error
	if err := dw.jsonWriter.Write(products); err != nil {
		errs = append(errs, fmt.Errorf("JSON write failed: %w", err))
	}
	if err := dw.csvWriter.Write(products); err != nil {
		errs = append(errs, fmt.Errorf("CSV write failed: %w", err))
	}
	return errors.Join(errs...)
}

func (dw *DualWriter) Paths() []string {
	return []string{dw.jsonWriter.path, dw.csvWriter.path}
}

// NewWriter picks the writer for format, writing into dir/name.{json,csv}.
func NewWriter(format, dir, name string) (OutputWriter, error) {
	jsonPath := filepath.Join(dir, name+".json")
	csvPath := filepath.Join(dir, name+".csv")
	switch format {
	case "json":
		return NewJSONWriter(jsonPath), nil
	case "csv":
		return NewCSVWriter(csvPath), nil
	case "dual":
		return NewDualWriter(csvPath, jsonPath), nil
	default:
		return nil, fmt.Errorf("unsupported format: %s", format)
	}
}
