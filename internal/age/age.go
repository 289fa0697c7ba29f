// Package age computes age in years from a date of birth and buckets it
// into 22 general age groups plus 5 HIV/substance-use groups.
package age

import "github.com/golang-sql/civil"

// Group is an age-bucket code. General buckets are 1-22; HIV/substance-
// use buckets are 23-27 and are never selected automatically — a caller
// must opt in via Bucketer.HIVDrugBucketing.
type Group int

// generalBounds is the upper bound (inclusive) of each of the first 21
// general age buckets, in order ([0..1]=1 through [95..99]=21);
// anything past the last bound falls into the 22nd bucket ("100+").
var generalBounds = []int{1, 4, 9, 14, 19, 24, 29, 34, 39, 44, 49, 54, 59, 64, 69, 74, 79, 84, 89, 94, 99}

// hivDrugBounds is the upper bound (inclusive) of each of the first 4
// HIV/substance-use age buckets (codes 23-26); anything past the last
// bound falls into the 5th bucket, code 27 ("65+").
var hivDrugBounds = []int{17, 34, 49, 64}

// Bucketer computes age in years relative to a reference date, then
// maps it to a bucket code.
type Bucketer struct {
	// ReferenceDate is the date ages are computed against. Bucketer does
	// not substitute "now" for a zero value; cmd/deid sets it from
	// DEID_REFERENCE_DATE, or to today when that is empty, so runs are
	// reproducible in tests and in reprocessing of historical extracts.
	ReferenceDate civil.Date
	// HIVDrugBucketing selects the 5-bucket HIV/substance-use scheme
	// instead of the 22-bucket general scheme for every row in a run.
	HIVDrugBucketing bool
}

// maxAgeYears caps computed age; values above 90 clamp to 90.
const maxAgeYears = 90

// Years computes whole years of age between dob and b.ReferenceDate,
// clamped to maxAgeYears.
func (b Bucketer) Years(dob civil.Date) int {
	years := b.ReferenceDate.Year - dob.Year
	if b.ReferenceDate.Month < dob.Month || (b.ReferenceDate.Month == dob.Month && b.ReferenceDate.Day < dob.Day) {
		years--
	}
	if years < 0 {
		return 0
	}
	if years > maxAgeYears {
		return maxAgeYears
	}
	return years
}

// Group buckets years into a code per the active scheme.
func (b Bucketer) Group(years int) Group {
	if b.HIVDrugBucketing {
		return hivDrugGroup(years)
	}
	return generalGroup(years)
}

func generalGroup(years int) Group {
	for i, bound := range generalBounds {
		if years <= bound {
			return Group(i + 1)
		}
	}
	return Group(len(generalBounds) + 1)
}

func hivDrugGroup(years int) Group {
	for i, bound := range hivDrugBounds {
		if years <= bound {
			return Group(23 + i)
		}
	}
	return Group(23 + len(hivDrugBounds))
}
