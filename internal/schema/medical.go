package schema

import "strconv"

// Medical claim column names.
const (
	ColClaimControlNumber    = "payor_claim_control_number"
	ColCrossReferenceClaimID = "cross_reference_claims_id"
	ColDrugCode              = "drug_code"

	ColPrincipalDiagnosis = "principal_diagnosis"
	ColPrincipalProcedure = "procedure_code"

	ColDateOfServiceFrom = "date_of_service_from"
	ColDateOfServiceThru = "date_of_service_thru"
	ColAdmissionDate     = "admission_date"
	ColDischargeDate     = "discharge_date"
	ColPaidDate          = "paid_date"

	ColMedicalZip  = "member_zip_code"
	ColMedicalFips = "member_county_fips"

	ColDeidClaimID = "DEID_CLAIM_ID"
)

// ProviderRole identifies one of the four provider roles a claim can carry.
type ProviderRole string

const (
	RoleRendering ProviderRole = "rendering"
	RoleBilling   ProviderRole = "billing"
	RoleAttending ProviderRole = "attending"
	RoleOperating ProviderRole = "operating"
)

// ProviderRoles lists the four roles in the order they appear on a claim.
var ProviderRoles = []ProviderRole{RoleRendering, RoleBilling, RoleAttending, RoleOperating}

// NPIColumn returns the role's NPI column name.
func (r ProviderRole) NPIColumn() string {
	return string(r) + "_provider_npi"
}

// PayerIDColumn returns the role's payer-assigned-ID column name.
func (r ProviderRole) PayerIDColumn() string {
	return string(r) + "_provider_id"
}

// DeidColumn returns the emitted pseudonym column for this role,
// DEID_{ROLE}_PROVIDER_ID.
func (r ProviderRole) DeidColumn() string {
	switch r {
	case RoleRendering:
		return "DEID_RENDERING_PROVIDER_ID"
	case RoleBilling:
		return "DEID_BILLING_PROVIDER_ID"
	case RoleAttending:
		return "DEID_ATTENDING_PROVIDER_ID"
	case RoleOperating:
		return "DEID_OPERATING_PROVIDER_ID"
	default:
		return "DEID_" + string(r) + "_PROVIDER_ID"
	}
}

// OtherDiagnosisColumns returns other_diagnosis_1..24, the 24 secondary
// diagnosis columns a claim carries.
func OtherDiagnosisColumns() []string {
	return numberedColumns("other_diagnosis_", 1, 24)
}

// OtherProcedureColumns returns icd_cm_pcs_other_procedure_code_1..25,
// the 25 secondary procedure columns a claim carries.
func OtherProcedureColumns() []string {
	return numberedColumns("icd_cm_pcs_other_procedure_code_", 1, 25)
}

// AllDiagnosisColumns returns principal_diagnosis plus all secondary
// diagnosis columns, in order — the union rarity counting runs over.
func AllDiagnosisColumns() []string {
	return append([]string{ColPrincipalDiagnosis}, OtherDiagnosisColumns()...)
}

// AllProcedureColumns returns procedure_code plus all secondary procedure
// columns, in order.
func AllProcedureColumns() []string {
	return append([]string{ColPrincipalProcedure}, OtherProcedureColumns()...)
}

func numberedColumns(prefix string, from, to int) []string {
	cols := make([]string, 0, to-from+1)
	for i := from; i <= to; i++ {
		cols = append(cols, prefix+strconv.Itoa(i))
	}
	return cols
}

// MedicalDropColumns is the exhaustive field drop set for the medical
// relation. The claim-identifier and role-identifier columns used to
// derive pseudonyms are dropped after derivation.
var MedicalDropColumns = []string{
	"subscriber_social_security_number",
	"subscriber_last_name",
	"subscriber_first_name",
	"sequence_number",
	"member_social_security_number",
	"member_last_name",
	"member_first_name",
	"patient_control_number",
	"rendering_provider_first_name",
	"rendering_provider_middle_name",
	"rendering_provider_last_name_or_organization_name",
	"rendering_provider_suffix",
	"billing_provider_last_name_or_organization_name",
	"billing_providertax_id",
	"rendering_provider_street_address",
	"medical_record_number",
	"member_date_of_birth",
	"rendering_provider_city_name",
	ColClaimControlNumber,
	ColCrossReferenceClaimID,
	"rendering_provider_id",
	"rendering_provider_npi",
	"billing_provider_id",
	"billing_provider_npi",
	"referring_provider_id",
	"referring_provider_npi",
	"attending_provider_id",
	"attending_provider_npi",
	"carrier_specific_unique_member_id",
	"carrier_specific_unique_subscriber_id",
	// operating_provider_npi and _id are direct identifiers like the
	// other roles' pairs above; dropped for the same reason.
	"operating_provider_npi",
	"operating_provider_id",
}

var (
	MedicalZipColumns  = []string{ColMedicalZip}
	MedicalFipsColumns = []string{ColMedicalFips}
)

// MedicalYearQuarterDateColumns generalize to a "YYYYQn" string.
var MedicalYearQuarterDateColumns = []string{
	ColPaidDate,
	ColAdmissionDate,
	ColDischargeDate,
	ColDateOfServiceFrom,
	ColDateOfServiceThru,
	ColDataPeriodStart,
	ColDataPeriodEnd,
}
