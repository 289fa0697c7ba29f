package schema

// Eligibility column names.
const (
	ColMemberID              = "carrier_specific_unique_member_id"
	ColSubscriberID          = "carrier_specific_unique_subscriber_id"
	ColSubmitterCode         = "data_submitter_code"
	ColMemberDOB             = "member_date_of_birth"
	ColMemberSex             = "member_sex"
	ColMemberZip             = "member_zip_code"
	ColMemberFips            = "member_county_fips"
	ColPCPEffectiveDate      = "member_pcp_effective_date"
	ColPlanEffectiveDate     = "plan_effective_date"
	ColPlanTermDate          = "plan_term_date"
	ColSMIBFromDate          = "smib_from_date"
	ColSMIBToDate            = "smib_to_date"
	ColDataPeriodStart       = "data_period_start"
	ColDataPeriodEnd         = "data_period_end"
	ColStartYearOfSubmission = "start_year_of_submission"
	ColDeathDate             = "death_date"

	ColDeidMemberID      = "DEID_MEMBER_ID"
	ColDeidSubscriberID  = "DEID_SUBSCRIBER_ID"
	ColAgeGroup          = "AGE_GROUP"
	ColEligibilityYear   = "eligibility_year"
	ColDeceasedIndicator = "deceased_indicator"
)

// EligibilityDropColumns is the exhaustive field drop set for the
// eligibility relation. start_year_of_submission and
// death_date are dropped here too: they are replaced by derived fields
// (eligibility_year, deceased_indicator) rather than surviving verbatim.
var EligibilityDropColumns = []string{
	"subscriber_social_security_number",
	"plan_specific_contract_number",
	"subscriber_last_name",
	"subscriber_first_name",
	"subscriber_middle_initial",
	"sequence_number",
	"member_social_security_number",
	"member_last_name",
	"member_first_name",
	"member_middle_initial",
	"member_street_address",
	"hios_plan_id",
	"payor_assigned_id_for_medical_home",
	"employer_tax_id",
	ColMemberID,
	ColSubscriberID,
	"subscriber_medicare_beneficiary_identifier",
	"member_medicare_beneficiary_identifier",
	"member_street_address_2",
	"case_number",
	ColMemberDOB,
	"member_city_name",
	"member_country_code",
	ColStartYearOfSubmission,
	ColDeathDate,
}

// EligibilityZipColumns and EligibilityFipsColumns are the relation's
// geography columns.
var (
	EligibilityZipColumns  = []string{ColMemberZip}
	EligibilityFipsColumns = []string{ColMemberFips}
)

// EligibilityYearOnlyDateColumns generalize to a year-only string.
var EligibilityYearOnlyDateColumns = []string{
	ColPCPEffectiveDate,
	ColPlanEffectiveDate,
	ColPlanTermDate,
}

// EligibilityYearQuarterDateColumns generalize to a "YYYYQn" string.
var EligibilityYearQuarterDateColumns = []string{
	ColSMIBFromDate,
	ColSMIBToDate,
	ColDataPeriodStart,
	ColDataPeriodEnd,
}
