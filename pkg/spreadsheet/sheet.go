// Package spreadsheet reads tabular files into named columns and rows.
package spreadsheet

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"
)

var (
	ErrUnsupportedFormat = errors.New("unsupported spreadsheet format")
	ErrSheetNotFound     = errors.New("sheet not found")
	ErrMissingHeader     = errors.New("missing header")
)

// UnnamedPrefix prefixes the generated name of a column with a blank header cell.
const UnnamedPrefix = "Unnamed: "

type Sheet struct {
	Name    string
	Columns []string
	Rows    []Row

	// Date1904 reports a workbook that counts date serials from 1904.
	Date1904 bool
}

// Row holds one data row keyed by column name. Line is the 1-based line in
// the source, counting the header as line 1.
type Row struct {
	Line  int
	cells map[string]string
}

func NewRow(line int, cells map[string]string) Row {
	if cells == nil {
		cells = map[string]string{}
	}
	return Row{Line: line, cells: cells}
}

// Get returns the cell value and whether the column exists in the row.
func (r Row) Get(col string) (string, bool) {
	v, ok := r.cells[col]
	return v, ok
}

// IsEmpty reports whether every cell is blank.
func (r Row) IsEmpty() bool {
	for _, v := range r.cells {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}

const (
	formatXLSX = "xlsx"
	formatCSV  = "csv"
)

// Open reads path, choosing the reader by file extension, or by content when
// the extension is not a spreadsheet one. sheet selects a workbook sheet and
// is ignored for csv; empty means the first sheet.
func Open(path, sheet string) (*Sheet, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()

	ext := strings.ToLower(filepath.Ext(path))
	format := formatByExtension(ext)
	if format == "" {
		if format, err = sniffFormat(f); err != nil {
			return nil, err
		}
	}

	switch format {
	case formatXLSX:
		return ReadXLSX(f, sheet)
	case formatCSV:
		s, err := ReadCSV(f)
		if err != nil {
			return nil, err
		}
		s.Name = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
		return s, nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, ext)
	}
}

func formatByExtension(ext string) string {
	switch ext {
	case ".xlsx", ".xlsm", ".xltx", ".xltm":
		return formatXLSX
	case ".csv":
		return formatCSV
	default:
		return ""
	}
}

// sniffFormat detects the format from the leading bytes of f and rewinds it.
func sniffFormat(f *os.File) (string, error) {
	mime, err := mimetype.DetectReader(f)
	if err != nil {
		return "", err
	}
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return "", err
	}
	switch {
	case mime.Is("application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"):
		return formatXLSX, nil
	case mime.Is("text/csv"):
		return formatCSV, nil
	default:
		return "", fmt.Errorf("%w: detected %s", ErrUnsupportedFormat, mime.String())
	}
}

// columnNames trims header cells, names blank ones by position and suffixes
// repeated names with ".1", ".2", ...
func columnNames(header []string) []string {
	out := make([]string, len(header))
	seen := make(map[string]int, len(header))
	for i, h := range header {
		name := strings.TrimSpace(h)
		if name == "" {
			name = fmt.Sprintf("%s%d", UnnamedPrefix, i)
		}
		if n, ok := seen[name]; ok {
			seen[name] = n + 1
			name = fmt.Sprintf("%s.%d", name, n+1)
		} else {
			seen[name] = 0
		}
		out[i] = name
	}
	return out
}

// buildSheet maps body records onto the header. lines holds the source line
// of each body record; nil means records follow the header without gaps.
func buildSheet(name string, header []string, body [][]string, lines []int) *Sheet {
	columns := columnNames(header)
	s := &Sheet{Name: name, Columns: columns}
	for i, rec := range body {
		cells := make(map[string]string, len(columns))
		for j, col := range columns {
			if j < len(rec) {
				cells[col] = rec[j]
			} else {
				cells[col] = ""
			}
		}
		line := i + 2
		if lines != nil {
			line = lines[i]
		}
		s.Rows = append(s.Rows, NewRow(line, cells))
	}
	return s
}
