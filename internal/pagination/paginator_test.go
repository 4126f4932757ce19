package pagination

import (
	"strconv"
	"testing"
)

func TestParse(t *testing.T) {
	p := NewParser(20, 100)
	cases := []struct {
		name          string
		page, perPage string
		want          Page
		wantErr       bool
	}{
		{"defaults", "", "", Page{Page: 1, PerPage: 20}, false},
		{"explicit", "3", "10", Page{Page: 3, PerPage: 10}, false},
		{"clamped", "1", "1000", Page{Page: 1, PerPage: 100}, false},
		{"zero page", "0", "", Page{}, true},
		{"garbage", "x", "", Page{}, true},
		{"negative per page", "", "-5", Page{}, true},
		{"max int page", "9223372036854775807", "", Page{}, true},
		{"max int page small per page", "9223372036854775807", "1", Page{}, true},
		{"page past max offset", strconv.Itoa(MaxOffset/100 + 2), "100", Page{}, true},
		{"last page within max offset", strconv.Itoa(MaxOffset/100 + 1), "100", Page{Page: MaxOffset/100 + 1, PerPage: 100}, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := p.parse(tc.page, tc.perPage)
			if (err != nil) != tc.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tc.wantErr)
			}
			if got != tc.want {
				t.Fatalf("got %+v, want %+v", got, tc.want)
			}
		})
	}
}

func TestMeta(t *testing.T) {
	m := NewMeta(Page{Page: 2, PerPage: 10}, 25)
	if m.LastPage != 3 {
		t.Fatalf("LastPage = %d, want 3", m.LastPage)
	}
	if got := (Page{Page: 3, PerPage: 10}).Offset(); got != 20 {
		t.Fatalf("Offset = %d, want 20", got)
	}
	if NewMeta(Page{Page: 1, PerPage: 10}, 0).LastPage != 1 {
		t.Fatal("empty result should still report one page")
	}
}
