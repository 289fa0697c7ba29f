package dates

import "testing"

func TestToYearFromCompactForm(t *testing.T) {
	if got := ToYear("20210315"); got != "2021" {
		t.Fatalf("expected 2021, got %q", got)
	}
}

func TestToYearFromDashedForm(t *testing.T) {
	if got := ToYear("2021-03-15"); got != "2021" {
		t.Fatalf("expected 2021, got %q", got)
	}
}

func TestToYearEmptyInput(t *testing.T) {
	if got := ToYear(""); got != "" {
		t.Fatalf("expected empty string, got %q", got)
	}
}

func TestToYearUnparseableInput(t *testing.T) {
	if got := ToYear("not-a-date"); got != "" {
		t.Fatalf("expected empty string for garbage input, got %q", got)
	}
}

func TestToYearQuarterBoundaries(t *testing.T) {
	cases := map[string]string{
		"20210101": "2021Q1",
		"20210331": "2021Q1",
		"20210401": "2021Q2",
		"20210701": "2021Q3",
		"20211001": "2021Q4",
		"20211231": "2021Q4",
	}
	for input, want := range cases {
		if got := ToYearQuarter(input); got != want {
			t.Errorf("ToYearQuarter(%q) = %q, want %q", input, got, want)
		}
	}
}

func TestToYearQuarterEmptyInput(t *testing.T) {
	if got := ToYearQuarter(""); got != "" {
		t.Fatalf("expected empty string, got %q", got)
	}
}
