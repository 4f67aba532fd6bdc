package dataset

import "testing"

func TestColumnKinds(t *testing.T) {
	ds := New("k", []string{"id", "price", "active", "day", "name", "blank"}, [][]string{
		{"1", "1.5", "true", "2024-01-02", "a", ""},
		{"2", "1,234.50", "false", "2024-02-03", "b", ""},
		{"3", "7", "TRUE", "2024-03-04", "c", ""},
	})
	want := []Kind{KindInt, KindFloat, KindBool, KindDatetime, KindString, KindString}
	got := ds.Kinds()
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("column %s: got %s, want %s", ds.Columns[i], got[i], want[i])
		}
	}
}

func TestParseNumber(t *testing.T) {
	cases := []struct {
		in   string
		want float64
		ok   bool
	}{
		{"42", 42, true},
		{" 3.25 ", 3.25, true},
		{"1,234.5", 1234.5, true},
		{"1.234,5", 1234.5, true},
		{"12,5", 12.5, true},
		{"1,234", 1234, true},
		{"15%", 15, true},
		{"NaN", 0, false},
		{"Inf", 0, false},
		{"abc", 0, false},
		{"", 0, false},
	}
	for _, c := range cases {
		got, ok := ParseNumber(c.in)
		if ok != c.ok || (ok && got != c.want) {
			t.Errorf("ParseNumber(%q) = %v,%v want %v,%v", c.in, got, ok, c.want, c.ok)
		}
	}
}
