// Package tabular decodes uploaded spreadsheet files into rows of string fields.
package tabular

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/xuri/excelize/v2"
)

// Row is one record keyed by header name
type Row map[string]string

// Get returns the value of the first present key, and whether any key was present
func (r Row) Get(keys ...string) (string, bool) {
	for _, k := range keys {
		if v, ok := r[k]; ok {
			return v, true
		}
	}
	return "", false
}

// Format identifies a supported file format
type Format string

const (
	FormatCSV  Format = "csv"
	FormatXLSX Format = "xlsx"
)

// ErrUnsupportedFormat is returned for files that are neither CSV nor XLSX
var ErrUnsupportedFormat = errors.New("unsupported file format")

// DetectFormat picks the decoder from a file name extension
func DetectFormat(name string) (Format, error) {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".csv", ".txt":
		return FormatCSV, nil
	case ".xlsx", ".xlsm":
		return FormatXLSX, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnsupportedFormat, name)
	}
}

// Read decodes r according to format
func Read(r io.Reader, format Format) ([]Row, error) {
	switch format {
	case FormatCSV:
		return ReadCSV(r)
	case FormatXLSX:
		return ReadXLSX(r)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, format)
	}
}

// ReadFile opens path and decodes it by extension
func ReadFile(path string) ([]Row, error) {
	format, err := DetectFormat(path)
	if err != nil {
		return nil, err
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", path, err)
	}
	defer f.Close()

	rows, err := Read(f, format)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	return rows, nil
}

// ReadCSV reads a CSV file whose first record is the header. Blank lines are skipped
// and records may have fewer or more fields than the header.
func ReadCSV(r io.Reader) ([]Row, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err == io.EOF {
		return []Row{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading CSV header: %w", err)
	}
	header = normalizeHeader(header)

	rows := make([]Row, 0)
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("reading CSV record: %w", err)
		}
		if row := toRow(header, record); row != nil {
			rows = append(rows, row)
		}
	}
	return rows, nil
}

// ReadXLSX reads the first sheet of a workbook whose first row is the header
func ReadXLSX(r io.Reader) ([]Row, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("opening workbook: %w", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return []Row{}, nil
	}

	records, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("reading sheet %q: %w", sheets[0], err)
	}
	if len(records) == 0 {
		return []Row{}, nil
	}

	header := normalizeHeader(records[0])
	rows := make([]Row, 0, len(records)-1)
	for _, record := range records[1:] {
		if row := toRow(header, record); row != nil {
			rows = append(rows, row)
		}
	}
	return rows, nil
}

func normalizeHeader(header []string) []string {
	out := make([]string, len(header))
	for i, h := range header {
		h = strings.TrimPrefix(h, "\ufeff")
		out[i] = strings.TrimSpace(h)
	}
	return out
}

// toRow pairs a record with the header. Records with no non-blank field yield nil.
func toRow(header, record []string) Row {
	row := make(Row, len(header))
	blank := true
	for i, key := range header {
		if key == "" {
			continue
		}
		if i >= len(record) {
			continue
		}
		row[key] = record[i]
		if strings.TrimSpace(record[i]) != "" {
			blank = false
		}
	}
	if blank {
		return nil
	}
	return row
}
