package internal

import (
	"context"
	"testing"

	"github.com/golang-sql/civil"

	"github.com/txapcd/deid-engine/internal/age"
	"github.com/txapcd/deid-engine/internal/classify"
	"github.com/txapcd/deid-engine/internal/geo"
	"github.com/txapcd/deid-engine/internal/pipeline"
	"github.com/txapcd/deid-engine/internal/pseudonym"
	"github.com/txapcd/deid-engine/internal/schema"
	"github.com/txapcd/deid-engine/internal/transform"
	"github.com/txapcd/deid-engine/internal/validation"
)

type sliceSource struct {
	rows []schema.Row
	pos  int
}

func (s *sliceSource) Next(ctx context.Context, chunkSize int) ([]schema.Row, error) {
	if s.pos >= len(s.rows) {
		return nil, nil
	}
	end := s.pos + chunkSize
	if end > len(s.rows) {
		end = len(s.rows)
	}
	chunk := s.rows[s.pos:end]
	s.pos = end
	return chunk, nil
}

type collectingSink struct {
	written []schema.Row
}

func (s *collectingSink) Write(ctx context.Context, rows []schema.Row) error {
	s.written = append(s.written, rows...)
	return nil
}

// TestFullDeidentificationRun drives all three relations through the
// pipeline in order and checks the cross-relation guarantees: a member's
// pseudonym agrees between eligibility and medical output, the medical
// row inherits AGE_GROUP from the eligibility-built lookup even though
// its own date of birth is dropped, and a claim carrying a sensitive
// diagnosis loses its demographics.
func TestFullDeidentificationRun(t *testing.T) {
	ctx := context.Background()

	keys := pseudonym.KeySet{
		MemberKey:   []byte("member-key"),
		ProviderKey: []byte("provider-key"),
		ClaimKey:    []byte("claim-key"),
	}
	generalizer := geo.NewGeneralizer(
		geo.PopulationTable{"75201": 30000, "75202": 15000},
		geo.PopulationTable{"48113": 2600000},
		20000,
	)
	validator := validation.NewValidator()

	p := &pipeline.Pipeline{
		Keys:       keys,
		Geo:        generalizer,
		Age:        age.Bucketer{ReferenceDate: civil.Date{Year: 2026, Month: 7, Day: 29}},
		Classifier: classify.Classifier{},
		Submitter:  "TX01",
		Config:     pipeline.Config{ChunkSize: 100},
		Validation: validator,
	}

	// 1. Eligibility pass builds the age lookup.
	eligSrc := &sliceSource{rows: []schema.Row{
		{
			schema.ColMemberID:          "ABC",
			schema.ColSubscriberID:      "SUB-ABC",
			schema.ColMemberDOB:         "19800615",
			schema.ColMemberZip:         "75201",
			schema.ColMemberFips:        "48113",
			schema.ColPlanEffectiveDate: "20200101",
			schema.ColSMIBFromDate:      "20200315",
			schema.ColDeathDate:         "",
			"member_first_name":         "Jane",
		},
	}}
	eligSink := &collectingSink{}
	lookup := transform.AgeLookup{}
	if err := p.RunEligibility(ctx, eligSrc, eligSink, lookup); err != nil {
		t.Fatalf("eligibility pass failed: %v", err)
	}

	elig := eligSink.written[0]
	if got := elig.GetString(schema.ColMemberZip); got != "752" {
		t.Errorf("expected zip generalized to 752, got %q", got)
	}
	if got := elig.GetString(schema.ColPlanEffectiveDate); got != "2020" {
		t.Errorf("expected plan_effective_date 2020, got %q", got)
	}
	if got := elig.GetString(schema.ColSMIBFromDate); got != "2020Q1" {
		t.Errorf("expected smib_from_date 2020Q1, got %q", got)
	}
	if got := elig.GetString(schema.ColDeceasedIndicator); got != "N" {
		t.Errorf("expected deceased_indicator N, got %q", got)
	}
	if elig.Has("member_first_name") || elig.Has(schema.ColMemberDOB) {
		t.Errorf("expected direct identifiers dropped from eligibility output")
	}
	deidMember := elig.GetString(schema.ColDeidMemberID)
	if deidMember == "" {
		t.Fatalf("expected DEID_MEMBER_ID in eligibility output")
	}

	// 2. Provider pass.
	provSrc := &sliceSource{rows: []schema.Row{
		{schema.ColProviderNPI: "1234567890", schema.ColProviderOfficeZip: "75201"},
	}}
	provSink := &collectingSink{}
	if err := p.RunProvider(ctx, provSrc, provSink); err != nil {
		t.Fatalf("provider pass failed: %v", err)
	}
	if provSink.written[0].GetString(schema.ColDeidProviderID) == "" {
		t.Fatalf("expected DEID_PROVIDER_ID in provider output")
	}

	// 3. Rarity build plus medical pass over the same rows.
	medicalRows := func() []schema.Row {
		rows := make([]schema.Row, 0, 12)
		// A claim for the eligibility member with a benign diagnosis seen
		// often enough to clear K=10.
		for i := 0; i < 11; i++ {
			rows = append(rows, schema.Row{
				schema.ColMemberID:           "ABC",
				schema.ColClaimControlNumber: "C" + string(rune('A'+i)),
				schema.ColPrincipalDiagnosis: "E119",
				schema.ColMemberZip:          "75201",
				schema.ColMedicalFips:        "48113",
				schema.ColMemberSex:          "F",
			})
		}
		// One claim with an HIV diagnosis: demographics must be masked.
		rows = append(rows, schema.Row{
			schema.ColMemberID:           "XYZ",
			schema.ColClaimControlNumber: "C-HIV",
			schema.ColPrincipalDiagnosis: "B20.1",
			schema.ColMemberZip:          "75201",
			schema.ColMedicalFips:        "48113",
			schema.ColMemberSex:          "F",
		})
		return rows
	}

	idx, err := pipeline.BuildRarityIndex(ctx, &sliceSource{rows: medicalRows()}, 100, 10)
	if err != nil {
		t.Fatalf("rarity build failed: %v", err)
	}

	medSink := &collectingSink{}
	if err := p.RunMedical(ctx, &sliceSource{rows: medicalRows()}, medSink, idx, lookup); err != nil {
		t.Fatalf("medical pass failed: %v", err)
	}
	if len(medSink.written) != 12 {
		t.Fatalf("expected 12 medical rows written, got %d", len(medSink.written))
	}

	var memberClaim, hivClaim schema.Row
	for _, row := range medSink.written {
		if row.GetString(schema.ColDeidMemberID) == deidMember {
			memberClaim = row
		}
		if row.GetString(schema.ColDeidClaimID) == p.Keys.Claim("TX01", "C-HIV", "") {
			hivClaim = row
		}
	}

	// Cross-relation linkage: same (member_id, submitter) pseudonymizes
	// identically, and AGE_GROUP flows from the eligibility lookup.
	if memberClaim == nil {
		t.Fatalf("expected a medical row linked to the eligibility member")
	}
	if memberClaim[schema.ColAgeGroup] != elig[schema.ColAgeGroup] {
		t.Errorf("expected medical AGE_GROUP %v to match eligibility's, got %v",
			elig[schema.ColAgeGroup], memberClaim[schema.ColAgeGroup])
	}

	// Sensitive-diagnosis cascade: zip/fips suppressed, sex nulled. B20.1
	// occurs once in this fixture (below K=10), so it is also rare and
	// the diagnosis is truncated to its 3-character category.
	if hivClaim == nil {
		t.Fatalf("expected the HIV claim in the output")
	}
	if got := hivClaim.GetString(schema.ColPrincipalDiagnosis); got != "B20" {
		t.Errorf("expected rare HIV diagnosis truncated to B20, got %q", got)
	}
	if got := hivClaim.GetString(schema.ColMemberZip); got != geo.SuppressedZip {
		t.Errorf("expected HIV claim zip suppressed, got %q", got)
	}
	if got := hivClaim.GetString(schema.ColMedicalFips); got != geo.SuppressedFips {
		t.Errorf("expected HIV claim fips suppressed, got %q", got)
	}
	if hivClaim[schema.ColMemberSex] != nil {
		t.Errorf("expected HIV claim member_sex nulled, got %v", hivClaim[schema.ColMemberSex])
	}

	// The unmasked member claim keeps its generalized geography.
	if got := memberClaim.GetString(schema.ColMemberZip); got != "752" {
		t.Errorf("expected unmasked claim zip 752, got %q", got)
	}

	// 4. Final report passes.
	report := validator.Finalize()
	if !report.Passed() {
		t.Fatalf("expected validation to pass, got issues: %v", report.Issues)
	}
	if report.MembersInBothFiles != 1 {
		t.Errorf("expected 1 member linked across eligibility and medical, got %d", report.MembersInBothFiles)
	}
}

// TestRareDiagnosisTruncationEndToEnd checks that a code too rare to
// clear the k-anonymity threshold is truncated in-column and masks the
// row's demographics.
func TestRareDiagnosisTruncationEndToEnd(t *testing.T) {
	ctx := context.Background()

	p := &pipeline.Pipeline{
		Keys: pseudonym.KeySet{
			MemberKey:   []byte("member-key"),
			ProviderKey: []byte("provider-key"),
			ClaimKey:    []byte("claim-key"),
		},
		Geo:        geo.NewGeneralizer(geo.PopulationTable{"75201": 30000}, geo.PopulationTable{"48113": 2600000}, 20000),
		Age:        age.Bucketer{ReferenceDate: civil.Date{Year: 2026, Month: 7, Day: 29}},
		Classifier: classify.Classifier{},
		Submitter:  "TX01",
		Config:     pipeline.Config{ChunkSize: 100},
	}

	rows := func() []schema.Row {
		out := []schema.Row{{
			schema.ColMemberID:           "RARE",
			schema.ColClaimControlNumber: "C-RARE",
			schema.ColPrincipalDiagnosis: "Q8702",
			schema.ColMemberZip:          "75201",
			schema.ColMedicalFips:        "48113",
			schema.ColMemberSex:          "M",
		}}
		for i := 0; i < 11; i++ {
			out = append(out, schema.Row{
				schema.ColMemberID:           "COMMON",
				schema.ColClaimControlNumber: "C" + string(rune('A'+i)),
				schema.ColPrincipalDiagnosis: "E119",
			})
		}
		return out
	}

	idx, err := pipeline.BuildRarityIndex(ctx, &sliceSource{rows: rows()}, 100, 10)
	if err != nil {
		t.Fatalf("rarity build failed: %v", err)
	}

	sink := &collectingSink{}
	if err := p.RunMedical(ctx, &sliceSource{rows: rows()}, sink, idx, nil); err != nil {
		t.Fatalf("medical pass failed: %v", err)
	}

	var rare schema.Row
	for _, row := range sink.written {
		if row.GetString(schema.ColDeidClaimID) == p.Keys.Claim("TX01", "C-RARE", "") {
			rare = row
		}
	}
	if rare == nil {
		t.Fatalf("expected the rare claim in the output")
	}
	if got := rare.GetString(schema.ColPrincipalDiagnosis); got != "Q87" {
		t.Errorf("expected rare diagnosis truncated to Q87, got %q", got)
	}
	if got := rare.GetString(schema.ColMemberZip); got != geo.SuppressedZip {
		t.Errorf("expected rare claim zip suppressed, got %q", got)
	}
	if rare[schema.ColMemberSex] != nil {
		t.Errorf("expected rare claim member_sex nulled, got %v", rare[schema.ColMemberSex])
	}
}
