package validation

import "github.com/txapcd/deid-engine/internal/schema"

// eligibilityPIIFields and friends list columns that must never survive
// into the de-identified output. They're re-checked here even though
// internal/schema's drop lists already remove them at the row level —
// the report attests to what the output actually contains, not to what
// the transformers were supposed to do.
var (
	eligibilityPIIFields = []string{
		"subscriber_social_security_number", "member_social_security_number",
		"member_last_name", "member_first_name",
	}
	providerPIIFields = []string{"provider_tax_id", "provider_npi", "provider_first_name"}
	medicalPIIFields  = []string{
		"member_social_security_number", "patient_control_number", "medical_record_number",
	}
)

// Validator accumulates cross-relation state over a streamed run so the
// final Report can check member linkage between eligibility and medical
// and AGE_GROUP coverage without holding every relation in memory at
// once. Subscriber and provider IDs are counted, not cross-checked.
type Validator struct {
	eligibilityRecords int
	providerRecords    int
	medicalRecords     int

	eligibilityMembers     stringSet
	eligibilitySubscribers stringSet
	medicalMembers         stringSet
	medicalSubscribers     stringSet
	providerIDs            stringSet
	medicalProviderRefs    stringSet
	claimIDs               stringSet

	eligibilityNullAgeGroup int
	medicalNullAgeGroup     int
	maskedDemographics      int

	piiFieldsSeen stringSet
}

// NewValidator returns a Validator ready to observe rows.
func NewValidator() *Validator {
	return &Validator{
		eligibilityMembers:     stringSet{},
		eligibilitySubscribers: stringSet{},
		medicalMembers:         stringSet{},
		medicalSubscribers:     stringSet{},
		providerIDs:            stringSet{},
		medicalProviderRefs:    stringSet{},
		claimIDs:               stringSet{},
		piiFieldsSeen:          stringSet{},
	}
}

// ObserveEligibility records one transformed eligibility row.
func (v *Validator) ObserveEligibility(row schema.Row, masked bool) {
	v.eligibilityRecords++
	checkPII(row, "eligibility", eligibilityPIIFields, v.piiFieldsSeen)

	v.eligibilityMembers.add(row.GetString(schema.ColDeidMemberID))
	v.eligibilitySubscribers.add(row.GetString(schema.ColDeidSubscriberID))

	if row.IsNull(schema.ColAgeGroup) {
		v.eligibilityNullAgeGroup++
	}
}

// ObserveProvider records one transformed provider row.
func (v *Validator) ObserveProvider(row schema.Row) {
	v.providerRecords++
	checkPII(row, "provider", providerPIIFields, v.piiFieldsSeen)
	v.providerIDs.add(row.GetString(schema.ColDeidProviderID))
}

// ObserveMedical records one transformed medical row.
func (v *Validator) ObserveMedical(row schema.Row, masked bool) {
	v.medicalRecords++
	checkPII(row, "medical", medicalPIIFields, v.piiFieldsSeen)

	v.medicalMembers.add(row.GetString(schema.ColDeidMemberID))
	v.medicalSubscribers.add(row.GetString(schema.ColDeidSubscriberID))
	v.claimIDs.add(row.GetString(schema.ColDeidClaimID))

	for _, role := range schema.ProviderRoles {
		v.medicalProviderRefs.add(row.GetString(role.DeidColumn()))
	}

	if row.IsNull(schema.ColAgeGroup) {
		v.medicalNullAgeGroup++
	}
	if masked {
		v.maskedDemographics++
	}
}

func checkPII(row schema.Row, relation string, fields []string, seen stringSet) {
	for _, f := range fields {
		if row.Has(f) {
			seen.add(relation + ":" + f)
		}
	}
}

// Finalize produces the Report. A PII field still present, a DEID id
// column missing or entirely null, or AGE_GROUP entirely null in a
// relation that should carry it, are all reported issues.
func (v *Validator) Finalize() Report {
	r := Report{
		EligibilityRecords:      v.eligibilityRecords,
		ProviderRecords:         v.providerRecords,
		MedicalRecords:          v.medicalRecords,
		UniqueMembers:           len(v.eligibilityMembers),
		UniqueSubscribers:       len(v.eligibilitySubscribers),
		UniqueProviders:         len(v.providerIDs),
		UniqueClaims:            len(v.claimIDs),
		MembersInBothFiles:      intersectionSize(v.eligibilityMembers, v.medicalMembers),
		EligibilityNullAgeGroup: v.eligibilityNullAgeGroup,
		MedicalNullAgeGroup:     v.medicalNullAgeGroup,
		MaskedDemographics:      v.maskedDemographics,
	}

	for field := range v.piiFieldsSeen {
		r.Issues = append(r.Issues, "PII field still present: "+field)
	}

	if v.eligibilityRecords > 0 && v.eligibilityNullAgeGroup == v.eligibilityRecords {
		r.Issues = append(r.Issues, "all AGE_GROUP values are null in eligibility file")
	}
	if v.medicalRecords > 0 && v.medicalNullAgeGroup == v.medicalRecords {
		r.Issues = append(r.Issues, "all AGE_GROUP values are null in medical file")
	}
	if v.eligibilityRecords > 0 && len(v.eligibilityMembers) == 0 {
		r.Issues = append(r.Issues, "DEID_MEMBER_ID is all null in eligibility file")
	}
	if v.medicalRecords > 0 && len(v.medicalMembers) == 0 {
		r.Issues = append(r.Issues, "DEID_MEMBER_ID is all null in medical file")
	}
	if v.providerRecords > 0 && len(v.providerIDs) == 0 {
		r.Issues = append(r.Issues, "DEID_PROVIDER_ID is all null in provider file")
	}
	if v.medicalRecords > 0 && len(v.claimIDs) == 0 {
		r.Issues = append(r.Issues, "DEID_CLAIM_ID is all null in medical file")
	}

	return r
}
