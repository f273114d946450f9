// Package pipeline persists scraped products as flat JSON and CSV files.
package pipeline

import (
	"bufio"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
)

// ErrSchemaMismatch is returned when CSV rows do not share one header.
var ErrSchemaMismatch = errors.New("pipeline: records do not share the same keys")

// Row is a record that can be laid out as a CSV line.
type Row interface {
	Header() []string
	Record() []string
}

// WriteJSON writes records as a pretty-printed JSON array. Nothing is created
// when records is empty.
func WriteJSON[T any](filename string, records []T) error {
	if len(records) == 0 {
		return nil
	}
	if err := ensureDir(filename); err != nil {
		return err
	}

	f, err := os.Create(filename)
	if err != nil {
		return fmt.Errorf("create json file: %w", err)
	}
	defer f.Close()

	buffer := bufio.NewWriter(f)
	encoder := json.NewEncoder(buffer)
	encoder.SetEscapeHTML(false)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(records); err != nil {
		return fmt.Errorf("encode json records: %w", err)
	}
	if err := buffer.Flush(); err != nil {
		return fmt.Errorf("flush json writer: %w", err)
	}
	return f.Close()
}

// WriteCSV writes a header taken from the first row followed by every row.
// Rows with a different header fail with ErrSchemaMismatch before anything
// is written. Nothing is created when rows is empty.
func WriteCSV[T Row](filename string, rows []T) error {
	if len(rows) == 0 {
		return nil
	}
	header := rows[0].Header()
	for i, row := range rows[1:] {
		if !slices.Equal(header, row.Header()) {
			return fmt.Errorf("row %d: %w", i+1, ErrSchemaMismatch)
		}
	}
	if err := ensureDir(filename); err != nil {
		return err
	}

	f, err := os.Create(filename)
	if err != nil {
		return fmt.Errorf("create csv file: %w", err)
	}
	defer f.Close()

	writer := csv.NewWriter(f)
	if err := writer.Write(header); err != nil {
		return fmt.Errorf("write csv header: %w", err)
	}
	for _, row := range rows {
		if err := writer.Write(row.Record()); err != nil {
			return fmt.Errorf("write csv record: %w", err)
		}
	}
	writer.Flush()
	if err := writer.Error(); err != nil {
		return fmt.Errorf("flush csv records: %w", err)
	}
	return f.Close()
}

func ensureDir(filename string) error {
	dir := filepath.Dir(filename)
	if dir == "" || dir == "." {
		return nil
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create directory %q: %w", dir, err)
	}
	return nil
}
