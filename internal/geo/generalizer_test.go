package geo

import "testing"

func TestGeneralizeZipAboveThreshold(t *testing.T) {
	table := PopulationTable{"78701": 50000}
	g := NewGeneralizer(table, nil, 20000)
	if got := g.GeneralizeZip("78701"); got != "787" {
		t.Fatalf("expected 787, got %q", got)
	}
}

func TestGeneralizeZipSumsAcrossMatchingPrefix(t *testing.T) {
	table := PopulationTable{"78701": 12000, "78702": 12000}
	g := NewGeneralizer(table, nil, 20000)
	if got := g.GeneralizeZip("78701"); got != "787" {
		t.Fatalf("expected summed population (24000) to clear threshold, got %q", got)
	}
}

func TestGeneralizeZipBelowThresholdSuppressed(t *testing.T) {
	table := PopulationTable{"79901": 500}
	g := NewGeneralizer(table, nil, 20000)
	if got := g.GeneralizeZip("79901"); got != SuppressedZip {
		t.Fatalf("expected suppression to %q, got %q", SuppressedZip, got)
	}
}

func TestGeneralizeZipUnknownSuppressed(t *testing.T) {
	table := PopulationTable{"78701": 50000}
	g := NewGeneralizer(table, nil, 20000)
	if got := g.GeneralizeZip("00501"); got != SuppressedZip {
		t.Fatalf("expected suppression for unknown prefix, got %q", got)
	}
}

func TestGeneralizeZipShortInputSuppressed(t *testing.T) {
	g := NewGeneralizer(PopulationTable{}, nil, 20000)
	if got := g.GeneralizeZip("12"); got != SuppressedZip {
		t.Fatalf("expected suppression for short ZIP, got %q", got)
	}
}

func TestGeneralizeFipsAboveThreshold(t *testing.T) {
	table := PopulationTable{"48201": 4000000}
	g := NewGeneralizer(nil, table, 20000)
	if got := g.GeneralizeFips("48201"); got != "48201" {
		t.Fatalf("expected 48201, got %q", got)
	}
}

func TestGeneralizeFipsPrependsTexasStateCode(t *testing.T) {
	table := PopulationTable{"48113": 2000000}
	g := NewGeneralizer(nil, table, 20000)
	if got := g.GeneralizeFips("113"); got != "48113" {
		t.Fatalf("expected 3-char county code prefixed with Texas state FIPS 48, got %q", got)
	}
}

func TestGeneralizeFipsFourCharPrependsLeadingDigit(t *testing.T) {
	table := PopulationTable{"48029": 2000000}
	g := NewGeneralizer(nil, table, 20000)
	if got := g.GeneralizeFips("8029"); got != "48029" {
		t.Fatalf("expected 4-char code prefixed with a single leading 4, got %q", got)
	}
}

func TestGeneralizeFipsBelowThresholdSuppressed(t *testing.T) {
	table := PopulationTable{"48301": 100}
	g := NewGeneralizer(nil, table, 20000)
	if got := g.GeneralizeFips("48301"); got != "000" {
		t.Fatalf("expected suppression to \"000\", got %q", got)
	}
}

func TestGeneralizeFipsEmptySuppressed(t *testing.T) {
	g := NewGeneralizer(nil, PopulationTable{}, 20000)
	if got := g.GeneralizeFips(""); got != "000" {
		t.Fatalf("expected suppression for empty FIPS, got %q", got)
	}
}

func TestGeneralizeFipsUnknownEmittedUnchanged(t *testing.T) {
	g := NewGeneralizer(nil, PopulationTable{"48201": 4000000}, 20000)
	if got := g.GeneralizeFips("48999"); got != "48999" {
		t.Fatalf("expected unknown FIPS to be emitted unchanged, got %q", got)
	}
}

func TestNewGeneralizerFallsBackToSyntheticTables(t *testing.T) {
	g := NewGeneralizer(nil, nil, 20000)
	if g.zipPrefixPop == nil || g.fipsTable == nil {
		t.Fatalf("expected synthetic tables when none supplied")
	}
}
