package services

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/iota-uz/familytree/pkg/spreadsheet"
)

func TestSplitAddresses(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		in   string
		want map[int]string
	}{
		{name: "two slots", in: "1. 12 Main St 2. 5 Oak Ave", want: map[int]string{1: "12 Main St", 2: "5 Oak Ave"}},
		{name: "no marker", in: "12 Main St", want: map[int]string{}},
		{name: "empty", in: "", want: map[int]string{}},
		{name: "newlines", in: "1. Rose Villa\nKottayam\r\n2. Oak House", want: map[int]string{1: "Rose Villa Kottayam", 2: "Oak House"}},
		{name: "leading text dropped", in: "Family home: 1. Rose Villa", want: map[int]string{1: "Rose Villa"}},
		{name: "out of order", in: "3. C 1. A", want: map[int]string{3: "C", 1: "A"}},
		{name: "empty segment", in: "1. 2. Oak House", want: map[int]string{1: "", 2: "Oak House"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			require.Equal(t, tc.want, SplitAddresses(tc.in))
		})
	}
}

func TestPrepareSheet(t *testing.T) {
	t.Parallel()

	in := strings.Join([]string{
		"Name1,Phone1,,Blank,Mobile Phone2,Address",
		"Anna,9876543210.0,x,,12.5,1. Main",
		",,,,,",
		"Ben,NIL,,,,",
	}, "\n")
	s, err := spreadsheet.ReadCSV(strings.NewReader(in))
	require.NoError(t, err)

	got := PrepareSheet(s)
	require.Equal(t, []string{"Name1", "Phone1", "Mobile Phone2", "Address"}, got.Columns)
	require.Len(t, got.Rows, 2)
	require.Equal(t, 2, got.Rows[0].Line)
	require.Equal(t, 4, got.Rows[1].Line)

	phone, _ := got.Rows[0].Get("Phone1")
	require.Equal(t, "9876543210", phone)
	mobile, _ := got.Rows[0].Get("Mobile Phone2")
	require.Equal(t, "12", mobile)
	address, _ := got.Rows[0].Get("Address")
	require.Equal(t, "1. Main", address, "only phone columns lose decimals")

	_, ok := got.Rows[0].Get("Unnamed: 2")
	require.False(t, ok)

	// the input is left alone
	raw, _ := s.Rows[0].Get("Phone1")
	require.Equal(t, "9876543210.0", raw)
}
