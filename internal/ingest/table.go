package ingest

import (
	"bufio"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/xuri/excelize/v2"
)

// ErrUnsupportedFormat is returned for files outside the allowed extensions.
var ErrUnsupportedFormat = errors.New("ingest: unsupported file format")

// ErrEmptyFile is returned when the upload has no header row.
var ErrEmptyFile = errors.New("ingest: file has no header row")

// ErrUnreadableFile is returned when the upload cannot be decoded as the
// format its extension claims.
var ErrUnreadableFile = errors.New("ingest: file could not be read")

// Format identifies a supported tabular file type.
type Format string

const (
	FormatCSV  Format = "csv"
	FormatXLSX Format = "xlsx"
)

var allowedExtensions = map[string]Format{
	".csv":  FormatCSV,
	".xlsx": FormatXLSX,
	".xlsm": FormatXLSX,
}

// AllowedExtensions lists the accepted upload extensions.
func AllowedExtensions() []string {
	return []string{".csv", ".xlsx", ".xlsm"}
}

// DetectFormat maps a file name to its Format by extension.
func DetectFormat(filename string) (Format, error) {
	ext := strings.ToLower(filepath.Ext(strings.TrimSpace(filename)))
	format, ok := allowedExtensions[ext]
	if !ok {
		return "", fmt.Errorf("%w: %q (allowed: %s)", ErrUnsupportedFormat, ext, strings.Join(AllowedExtensions(), ", "))
	}
	return format, nil
}

// Row is a data row with its 1-based line in the source sheet.
type Row struct {
	Line  int
	Cells []string
}

// Cell returns the trimmed value at idx, or "" when the row is short.
func (r Row) Cell(idx int) string {
	if idx < 0 || idx >= len(r.Cells) {
		return ""
	}
	return strings.TrimSpace(r.Cells[idx])
}

// Blank reports whether every cell is empty.
func (r Row) Blank() bool {
	for _, cell := range r.Cells {
		if strings.TrimSpace(cell) != "" {
			return false
		}
	}
	return true
}

// Table is a header plus data rows read from the first sheet of a file.
type Table struct {
	Header []string
	Rows   []Row
}

// ReadTable reads a CSV or XLSX upload into a Table.
func ReadTable(filename string, r io.Reader) (*Table, error) {
	format, err := DetectFormat(filename)
	if err != nil {
		return nil, err
	}

	switch format {
	case FormatCSV:
		return readCSV(r)
	default:
		return readXLSX(r)
	}
}

func readCSV(r io.Reader) (*Table, error) {
	reader := csv.NewReader(bufio.NewReader(r))
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true
	reader.LazyQuotes = true

	table := &Table{}
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: read csv: %w", ErrUnreadableFile, err)
		}

		line, _ := reader.FieldPos(0)
		if table.Header == nil {
			if len(record) > 0 {
				record[0] = strings.TrimPrefix(record[0], "\ufeff")
			}
			table.Header = record
			continue
		}
		table.Rows = append(table.Rows, Row{Line: line, Cells: record})
	}

	if len(table.Header) == 0 {
		return nil, ErrEmptyFile
	}
	return table, nil
}

func readXLSX(r io.Reader) (*Table, error) {
	book, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("%w: open workbook: %w", ErrUnreadableFile, err)
	}
	defer book.Close()

	sheets := book.GetSheetList()
	if len(sheets) == 0 {
		return nil, ErrEmptyFile
	}

	rows, err := book.GetRows(sheets[0], excelize.Options{RawCellValue: true})
	if err != nil {
		return nil, fmt.Errorf("%w: read sheet %q: %w", ErrUnreadableFile, sheets[0], err)
	}

	table := &Table{}
	for idx, cells := range rows {
		if table.Header == nil {
			if len(cells) == 0 {
				continue
			}
			table.Header = cells
			continue
		}
		table.Rows = append(table.Rows, Row{Line: idx + 1, Cells: cells})
	}

	if len(table.Header) == 0 {
		return nil, ErrEmptyFile
	}
	return table, nil
}
