package services

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/iota-uz/familytree/pkg/spreadsheet"
)

// addressMarker introduces the address of the member at that slot, as in
// "1. 12 Main St 2. 5 Oak Ave".
var addressMarker = regexp.MustCompile(`\d+\.`)

// PrepareSheet returns a copy of s without unnamed or blank columns and blank
// rows. Values of columns whose name contains "phone" lose everything from
// the first period on, undoing the ".0" that numeric cells pick up.
func PrepareSheet(s *spreadsheet.Sheet) *spreadsheet.Sheet {
	out := &spreadsheet.Sheet{Name: s.Name, Date1904: s.Date1904}
	for _, col := range s.Columns {
		if strings.HasPrefix(col, spreadsheet.UnnamedPrefix) || blankColumn(s, col) {
			continue
		}
		out.Columns = append(out.Columns, col)
	}

	for _, row := range s.Rows {
		cells := make(map[string]string, len(out.Columns))
		for _, col := range out.Columns {
			v, _ := row.Get(col)
			if isPhoneColumn(col) {
				v = stripDecimal(v)
			}
			cells[col] = v
		}
		r := spreadsheet.NewRow(row.Line, cells)
		if r.IsEmpty() {
			continue
		}
		out.Rows = append(out.Rows, r)
	}
	return out
}

func blankColumn(s *spreadsheet.Sheet, col string) bool {
	for _, row := range s.Rows {
		if v, _ := row.Get(col); strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}

func isPhoneColumn(col string) bool {
	return strings.Contains(strings.ToLower(col), "phone")
}

func stripDecimal(v string) string {
	if i := strings.IndexByte(v, '.'); i >= 0 {
		return v[:i]
	}
	return v
}

// SplitAddresses splits a numbered address cell into addresses keyed by slot.
// Text before the first marker is dropped; text without markers yields an
// empty map.
func SplitAddresses(text string) map[int]string {
	out := map[int]string{}
	text = strings.NewReplacer("\r\n", " ", "\n", " ", "\r", " ").Replace(text)
	if strings.TrimSpace(text) == "" {
		return out
	}

	locs := addressMarker.FindAllStringIndex(text, -1)
	for i, loc := range locs {
		slot, err := strconv.Atoi(text[loc[0] : loc[1]-1])
		if err != nil {
			continue
		}
		end := len(text)
		if i+1 < len(locs) {
			end = locs[i+1][0]
		}
		out[slot] = strings.TrimSpace(text[loc[1]:end])
	}
	return out
}
