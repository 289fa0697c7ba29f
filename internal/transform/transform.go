// Package transform implements the three relation transformers —
// eligibility, provider, medical — composed from internal/pseudonym,
// internal/geo, internal/dates, internal/age, internal/classify,
// internal/rarity, and internal/mask.
package transform

import (
	"github.com/golang-sql/civil"

	"github.com/txapcd/deid-engine/internal/age"
	"github.com/txapcd/deid-engine/internal/classify"
	"github.com/txapcd/deid-engine/internal/dates"
	"github.com/txapcd/deid-engine/internal/geo"
	"github.com/txapcd/deid-engine/internal/mask"
	"github.com/txapcd/deid-engine/internal/pseudonym"
	"github.com/txapcd/deid-engine/internal/rarity"
	"github.com/txapcd/deid-engine/internal/schema"
)

// AgeLookup is the cross-relation map the eligibility transformer
// builds and the medical transformer consumes read-only:
// DEID_MEMBER_ID -> AGE_GROUP, keyed by the member's pseudonym so the
// lookup survives past the point the raw member ID and DOB are dropped.
type AgeLookup map[string]age.Group

// Result is a transformed row plus bookkeeping the pipeline needs for
// metrics and the validation report.
type Result struct {
	Row    schema.Row
	Masked bool
	// Reasons lists why the row was masked; empty unless Masked.
	Reasons []mask.Reason
}

func generalizeRow(row schema.Row, geoGen *geo.Generalizer, zipCols, fipsCols []string) {
	for _, col := range zipCols {
		if row.Has(col) {
			row.Set(col, geoGen.GeneralizeZip(row.GetString(col)))
		}
	}
	for _, col := range fipsCols {
		if row.Has(col) {
			row.Set(col, geoGen.GeneralizeFips(row.GetString(col)))
		}
	}
}

func generalizeYearOnlyDates(row schema.Row, cols []string) {
	for _, col := range cols {
		if row.Has(col) {
			row.Set(col, dates.ToYear(row.GetString(col)))
		}
	}
}

func generalizeYearQuarterDates(row schema.Row, cols []string) {
	for _, col := range cols {
		if row.Has(col) {
			row.Set(col, dates.ToYearQuarter(row.GetString(col)))
		}
	}
}

// deceasedIndicator renders the boolean "has a death date" as a
// "Y"/"N" string rather than a Go bool that would stringify as
// "true"/"false".
func deceasedIndicator(deceased bool) string {
	if deceased {
		return "Y"
	}
	return "N"
}

func submitterCode(row schema.Row, fallback string) string {
	if code := row.GetString(schema.ColSubmitterCode); code != "" {
		return code
	}
	return fallback
}

// EligibilityTransformer transforms one eligibility row.
type EligibilityTransformer struct {
	Keys             pseudonym.KeySet
	Geo              *geo.Generalizer
	Age              age.Bucketer
	DefaultSubmitter string
}

// Transform pseudonymizes member/subscriber IDs, generalizes geography
// and dates, derives eligibility_year and deceased_indicator, computes
// AGE_GROUP, records it into lookup for the medical transformer, and
// drops every direct identifier named in schema.EligibilityDropColumns.
func (t EligibilityTransformer) Transform(row schema.Row, lookup AgeLookup) Result {
	out := row.Clone()
	code := submitterCode(out, t.DefaultSubmitter)

	memberID := out.GetString(schema.ColMemberID)
	subscriberID := out.GetString(schema.ColSubscriberID)
	deidMember := t.Keys.Member(code, memberID)
	deidSubscriber := t.Keys.Subscriber(code, subscriberID)
	out.Set(schema.ColDeidMemberID, deidMember)
	out.Set(schema.ColDeidSubscriberID, deidSubscriber)

	if dob := out.GetString(schema.ColMemberDOB); dob != "" {
		if years, ok := t.ageInYears(dob); ok {
			group := t.Age.Group(years)
			out.Set(schema.ColAgeGroup, int(group))
			if lookup != nil && deidMember != "" {
				lookup[deidMember] = group
			}
		}
	}

	if startYear := out.GetString(schema.ColStartYearOfSubmission); startYear != "" {
		out.Set(schema.ColEligibilityYear, startYear)
	}
	out.Set(schema.ColDeceasedIndicator, deceasedIndicator(out.GetString(schema.ColDeathDate) != ""))

	generalizeRow(out, t.Geo, schema.EligibilityZipColumns, schema.EligibilityFipsColumns)
	generalizeYearOnlyDates(out, schema.EligibilityYearOnlyDateColumns)
	generalizeYearQuarterDates(out, schema.EligibilityYearQuarterDateColumns)

	out.DropAll(schema.EligibilityDropColumns)
	return Result{Row: out, Masked: false}
}

func (t EligibilityTransformer) ageInYears(dob string) (int, bool) {
	d, ok := dates.ParseCivil(dob)
	if !ok {
		return 0, false
	}
	return t.Age.Years(d), true
}

// ProviderTransformer transforms one provider row.
type ProviderTransformer struct {
	Keys pseudonym.KeySet
	Geo  *geo.Generalizer
}

// Transform pseudonymizes the provider's identity, generalizes its
// office geography, and drops every direct identifier named in
// schema.ProviderDropColumns.
func (t ProviderTransformer) Transform(row schema.Row) Result {
	out := row.Clone()
	npi := out.GetString(schema.ColProviderNPI)
	payorID := out.GetString(schema.ColPayorAssignedProviderID)
	out.Set(schema.ColDeidProviderID, t.Keys.Provider(npi, payorID))

	generalizeRow(out, t.Geo, schema.ProviderZipColumns, schema.ProviderFipsColumns)

	out.DropAll(schema.ProviderDropColumns)
	return Result{Row: out, Masked: false}
}

// MedicalTransformer transforms one medical claim row.
// It is the only transformer that consumes the rarity index
// and the sensitive-code classifier, and the only one that reads the
// eligibility-built AgeLookup.
type MedicalTransformer struct {
	Keys             pseudonym.KeySet
	Geo              *geo.Generalizer
	Classifier       classify.Classifier
	Rarity           *rarity.Index
	DefaultSubmitter string
	// ReferenceDate and HIVDrugBucketing back the member_date_of_birth
	// fallback in resolveAgeGroup; they should match the ReferenceDate
	// and HIVDrugBucketing the pipeline's EligibilityTransformer uses so
	// a fallback-computed AGE_GROUP agrees with one from the lookup.
	ReferenceDate    civil.Date
	HIVDrugBucketing bool
}

// Transform pseudonymizes the claim and its member/provider-role
// identifiers, generalizes geography and dates, evaluates the
// sensitive/rare-code demographic mask, looks up AGE_GROUP from the
// eligibility-built lookup, and drops every direct identifier named in
// schema.MedicalDropColumns.
func (t MedicalTransformer) Transform(row schema.Row, lookup AgeLookup) Result {
	out := row.Clone()
	code := submitterCode(out, t.DefaultSubmitter)

	memberID := out.GetString(schema.ColMemberID)
	deidMember := t.Keys.Member(code, memberID)
	out.Set(schema.ColDeidMemberID, deidMember)

	if subscriberID := out.GetString(schema.ColSubscriberID); subscriberID != "" {
		out.Set(schema.ColDeidSubscriberID, t.Keys.Subscriber(code, subscriberID))
	}

	out.Set(schema.ColDeidClaimID, t.Keys.Claim(code, out.GetString(schema.ColClaimControlNumber), out.GetString(schema.ColCrossReferenceClaimID)))

	for _, role := range schema.ProviderRoles {
		npi := out.GetString(role.NPIColumn())
		out.Set(role.DeidColumn(), t.Keys.RoleProvider(npi))
	}

	if group, ok := t.resolveAgeGroup(out, lookup, deidMember); ok {
		out.Set(schema.ColAgeGroup, int(group))
	}

	diagnosisCodes := collectCodes(out, schema.AllDiagnosisColumns())
	procedureCodes := collectCodes(out, schema.AllProcedureColumns())
	drugCode := out.GetString(schema.ColDrugCode)

	masker := mask.Masker{Classifier: t.Classifier, Rarity: t.Rarity}
	decision := masker.Evaluate(diagnosisCodes, procedureCodes, drugCode)

	// Rare-code truncation and the generalization-table rewrite apply
	// to every diagnosis column
	// regardless of the mask decision, and must read the raw code
	// (computed above, before any rewrite) so the rare lookup isn't
	// defeated by an already-truncated value.
	for _, col := range schema.AllDiagnosisColumns() {
		if raw := out.GetString(col); raw != "" {
			out.Set(col, masker.RewriteDiagnosis(raw))
		}
	}

	generalizeRow(out, t.Geo, schema.MedicalZipColumns, schema.MedicalFipsColumns)
	generalizeYearQuarterDates(out, schema.MedicalYearQuarterDateColumns)

	if decision.Masked {
		zip, fips, sexMasked := mask.ApplyDemographicMask(geo.SuppressedZip, geo.SuppressedFips)
		for _, col := range schema.MedicalZipColumns {
			if out.Has(col) {
				out.Set(col, zip)
			}
		}
		for _, col := range schema.MedicalFipsColumns {
			if out.Has(col) {
				out.Set(col, fips)
			}
		}
		if sexMasked && out.Has(schema.ColMemberSex) {
			out.Set(schema.ColMemberSex, nil)
		}
	}

	out.DropAll(schema.MedicalDropColumns)
	return Result{Row: out, Masked: decision.Masked, Reasons: decision.Reasons}
}

// resolveAgeGroup joins AGE_GROUP from the eligibility-built lookup by
// DEID_MEMBER_ID; on a miss it falls back to computing the group directly
// from member_date_of_birth when present.
func (t MedicalTransformer) resolveAgeGroup(row schema.Row, lookup AgeLookup, deidMember string) (age.Group, bool) {
	if lookup != nil && deidMember != "" {
		if group, ok := lookup[deidMember]; ok {
			return group, true
		}
	}
	dob := row.GetString(schema.ColMemberDOB)
	if dob == "" {
		return 0, false
	}
	d, ok := dates.ParseCivil(dob)
	if !ok {
		return 0, false
	}
	bucketer := age.Bucketer{ReferenceDate: t.ReferenceDate, HIVDrugBucketing: t.HIVDrugBucketing}
	return bucketer.Group(bucketer.Years(d)), true
}

func collectCodes(row schema.Row, cols []string) []string {
	codes := make([]string, 0, len(cols))
	for _, c := range cols {
		if v := row.GetString(c); v != "" {
			codes = append(codes, v)
		}
	}
	return codes
}
