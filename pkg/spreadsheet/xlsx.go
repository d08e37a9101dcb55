package spreadsheet

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/lithammer/fuzzysearch/fuzzy"
	"github.com/xuri/excelize/v2"
)

// ReadXLSX reads one sheet of a workbook. Cells are read raw: numbers keep
// their stored digits and date cells come back as Excel serial numbers.
func ReadXLSX(r io.Reader, sheet string) (*Sheet, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("open workbook: %w", err)
	}
	defer func() { _ = f.Close() }()

	name, err := resolveSheetName(f.GetSheetList(), sheet)
	if err != nil {
		return nil, err
	}

	records, err := f.GetRows(name, excelize.Options{RawCellValue: true})
	if err != nil {
		return nil, fmt.Errorf("read sheet %q: %w", name, err)
	}
	if len(records) == 0 {
		return nil, ErrMissingHeader
	}
	props, err := f.GetWorkbookProps()
	if err != nil {
		return nil, fmt.Errorf("read workbook properties: %w", err)
	}

	s := buildSheet(name, records[0], records[1:], nil)
	s.Date1904 = props.Date1904 != nil && *props.Date1904
	return s, nil
}

// resolveSheetName picks want from the workbook's sheets. A name that differs
// only in case is accepted; otherwise the error suggests the closest sheet.
func resolveSheetName(available []string, want string) (string, error) {
	if len(available) == 0 {
		return "", fmt.Errorf("%w: workbook has no sheets", ErrSheetNotFound)
	}
	want = strings.TrimSpace(want)
	if want == "" {
		return available[0], nil
	}
	for _, name := range available {
		if name == want {
			return name, nil
		}
	}
	for _, name := range available {
		if strings.EqualFold(name, want) {
			return name, nil
		}
	}

	ranks := fuzzy.RankFindNormalizedFold(want, available)
	sort.Sort(ranks)
	if len(ranks) > 0 {
		return "", fmt.Errorf("%w: %q, did you mean %q? (available: %v)", ErrSheetNotFound, want, ranks[0].Target, available)
	}
	return "", fmt.Errorf("%w: %q (available: %v)", ErrSheetNotFound, want, available)
}
