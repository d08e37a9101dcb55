package services

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/iota-uz/familytree/modules/family/domain/aggregates/member"
	"github.com/iota-uz/familytree/pkg/spreadsheet"
)

const (
	AddressColumn = "Address"
	ImagesColumn  = "Images"
)

func NameColumn(slot int) string        { return fmt.Sprintf("Name%d", slot) }
func DateOfBirthColumn(slot int) string { return fmt.Sprintf("Date of Birth%d", slot) }
func OccupationColumn(slot int) string  { return fmt.Sprintf("Occupation%d", slot) }
func PhoneColumn(slot int) string       { return fmt.Sprintf("Phone%d", slot) }

// placeholders mean "no data" in the family diary sheets.
var placeholders = map[string]struct{}{
	"":     {},
	"NAN":  {},
	"NIL":  {},
	"NONE": {},
	"NAT":  {},
	"?":    {},
}

func isPlaceholder(v string) bool {
	_, ok := placeholders[strings.ToUpper(strings.TrimSpace(v))]
	return ok
}

// CleanPhone returns the trimmed phone text, or "" for a placeholder.
func CleanPhone(v string) string {
	if isPlaceholder(v) {
		return ""
	}
	return strings.TrimSpace(v)
}

// CleanField returns the trimmed value, or nil for a placeholder.
func CleanField(v string) *string {
	if isPlaceholder(v) {
		return nil
	}
	s := strings.TrimSpace(v)
	return &s
}

// Day-first layouts, tried in order.
var birthDateLayouts = []string{
	"2/1/2006",
	"2-1-2006",
	"2.1.2006",
	"2/1/06",
	"2-1-06",
	"2.1.06",
	"2006-01-02",
	"2006-01-02T15:04:05Z07:00",
	"2006/01/02",
	"2 January 2006",
	"2 Jan 2006",
	"2-Jan-2006",
	"2-Jan-06",
	"January 2, 2006",
	"Jan 2, 2006",
	"January 2006",
	"Jan 2006",
}

// Bare numbers in this range are years rather than serials; serials there
// would fall in 1904-1905.
const (
	minBirthYear = 1800
	maxBirthYear = 2100
)

var (
	yearOnly    = regexp.MustCompile(`^\d{4}$`)
	serialValue = regexp.MustCompile(`^\d+(\.\d+)?$`)
	// A time of day after the date, as csv exports of date columns write it.
	timeSuffix = regexp.MustCompile(`[ T]\d{1,2}:\d{2}(:\d{2}(\.\d+)?)?( ?[AaPp][Mm])?$`)
)

// ParseBirthDate reads a birth date cell day-first. Plain numbers are Excel
// date serials unless they look like a year; date1904 selects the workbook's
// 1904 date system for them. A trailing time of day is ignored. Placeholders
// and values that do not parse give nil.
func ParseBirthDate(v string, date1904 bool) *time.Time {
	if isPlaceholder(v) {
		return nil
	}
	s := strings.Join(strings.Fields(v), " ")

	if yearOnly.MatchString(s) {
		if y, _ := strconv.Atoi(s); y >= minBirthYear && y <= maxBirthYear {
			t := time.Date(y, time.January, 1, 0, 0, 0, 0, time.UTC)
			return &t
		}
	}
	if serialValue.MatchString(s) {
		f, err := strconv.ParseFloat(s, 64)
		if err != nil || f < 1 {
			return nil
		}
		t, err := excelize.ExcelDateToTime(f, date1904)
		if err != nil {
			return nil
		}
		d := member.DateOnlyUTC(t)
		return &d
	}
	if d := parseDateLayouts(s); d != nil {
		return d
	}
	if loc := timeSuffix.FindStringIndex(s); loc != nil && loc[0] > 0 {
		return parseDateLayouts(s[:loc[0]])
	}
	return nil
}

func parseDateLayouts(s string) *time.Time {
	for _, layout := range birthDateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			d := member.DateOnlyUTC(t)
			return &d
		}
	}
	return nil
}

// SlotSchema knows how many member slots a sheet's columns define. Slots run
// from Name1 up to the last Name{i} with no gap before it.
type SlotSchema struct {
	slots    int
	date1904 bool
}

func NewSlotSchema(columns []string) SlotSchema {
	present := make(map[string]struct{}, len(columns))
	for _, c := range columns {
		present[c] = struct{}{}
	}
	n := 0
	for {
		if _, ok := present[NameColumn(n+1)]; !ok {
			break
		}
		n++
	}
	return SlotSchema{slots: n}
}

// schemaFor builds the slot schema of sheet and takes over its date system.
func schemaFor(sheet *spreadsheet.Sheet) SlotSchema {
	s := NewSlotSchema(sheet.Columns)
	s.date1904 = sheet.Date1904
	return s
}

func (s SlotSchema) Slots() int { return s.slots }

// Candidates builds one member per populated slot of row, stopping at the
// first slot without a name. addresses comes from SplitAddresses.
func (s SlotSchema) Candidates(row spreadsheet.Row, addresses map[int]string) []member.Member {
	image := cell(row, ImagesColumn)
	out := make([]member.Member, 0, s.slots)
	for i := 1; i <= s.slots; i++ {
		name := strings.TrimSpace(cell(row, NameColumn(i)))
		if name == "" {
			break
		}

		opts := []member.Option{
			member.WithDateOfBirth(ParseBirthDate(cell(row, DateOfBirthColumn(i)), s.date1904)),
			member.WithPhone(CleanPhone(cell(row, PhoneColumn(i)))),
			member.WithOccupation(CleanField(cell(row, OccupationColumn(i)))),
			member.WithImage(CleanField(image)),
		}
		if addr, ok := addresses[i]; ok {
			opts = append(opts, member.WithAddress(&addr))
		}
		out = append(out, member.New(name, opts...))
	}
	return out
}

func cell(row spreadsheet.Row, col string) string {
	v, _ := row.Get(col)
	return v
}
