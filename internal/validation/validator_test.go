package validation

import (
	"testing"

	"github.com/txapcd/deid-engine/internal/schema"
)

func TestFinalizeReportsPassWhenClean(t *testing.T) {
	v := NewValidator()
	v.ObserveEligibility(schema.Row{
		schema.ColDeidMemberID:     "m1",
		schema.ColDeidSubscriberID: "s1",
		schema.ColAgeGroup:         5,
	}, false)
	v.ObserveProvider(schema.Row{schema.ColDeidProviderID: "p1"})
	v.ObserveMedical(schema.Row{
		schema.ColDeidMemberID: "m1",
		schema.ColDeidClaimID:  "c1",
		schema.ColAgeGroup:     5,
	}, false)

	report := v.Finalize()
	if !report.Passed() {
		t.Fatalf("expected a clean run to pass, got issues: %v", report.Issues)
	}
	if report.MembersInBothFiles != 1 {
		t.Fatalf("expected 1 member linked across eligibility and medical, got %d", report.MembersInBothFiles)
	}
}

func TestFinalizeFlagsPIIFieldStillPresent(t *testing.T) {
	v := NewValidator()
	v.ObserveEligibility(schema.Row{
		schema.ColDeidMemberID:          "m1",
		"member_social_security_number": "111-22-3333",
	}, false)

	report := v.Finalize()
	if report.Passed() {
		t.Fatalf("expected a PII leak to fail validation")
	}
}

func TestFinalizeFlagsAllNullAgeGroup(t *testing.T) {
	v := NewValidator()
	v.ObserveEligibility(schema.Row{schema.ColDeidMemberID: "m1"}, false)
	v.ObserveEligibility(schema.Row{schema.ColDeidMemberID: "m2"}, false)

	report := v.Finalize()
	if report.Passed() {
		t.Fatalf("expected all-null AGE_GROUP to fail validation")
	}
}

func TestFinalizeFlagsAllNullDeidID(t *testing.T) {
	v := NewValidator()
	v.ObserveProvider(schema.Row{"provider_city": "Austin"})

	report := v.Finalize()
	if report.Passed() {
		t.Fatalf("expected an all-null DEID_PROVIDER_ID to fail validation")
	}
}

func TestFinalizeCountsMaskedDemographics(t *testing.T) {
	v := NewValidator()
	v.ObserveMedical(schema.Row{schema.ColDeidMemberID: "m1", schema.ColDeidClaimID: "c1"}, true)
	v.ObserveMedical(schema.Row{schema.ColDeidMemberID: "m2", schema.ColDeidClaimID: "c2"}, false)

	report := v.Finalize()
	if report.MaskedDemographics != 1 {
		t.Fatalf("expected 1 masked record, got %d", report.MaskedDemographics)
	}
}

func TestSummaryMentionsStatus(t *testing.T) {
	v := NewValidator()
	v.ObserveProvider(schema.Row{schema.ColDeidProviderID: "p1"})
	report := v.Finalize()
	if report.Summary() == "" {
		t.Fatalf("expected a non-empty summary")
	}
}
