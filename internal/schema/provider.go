package schema

// Provider column names.
const (
	ColProviderNPI             = "provider_npi"
	ColPayorAssignedProviderID = "payor_assigned_provider_id"
	ColProviderOfficeZip       = "provider_office_zip_code"
	ColProviderOfficeFips      = "provider_office_county_fips"

	ColDeidProviderID = "DEID_PROVIDER_ID"
)

// ProviderDropColumns is the exhaustive field drop set for the provider
// relation. provider_npi and payor_assigned_provider_id are dropped
// too: DEID_PROVIDER_ID is derived from them before the drop.
var ProviderDropColumns = []string{
	"provider_tax_id",
	"provider_dea_number",
	"provider_state_license_number",
	"provider_first_name",
	"provider_middle_name_or_initial",
	"provider_last_name_or_organization_name",
	"provider_suffix",
	"provider_office_street_address",
	"provider_phone",
	ColPayorAssignedProviderID,
	ColProviderNPI,
	"provider_medicare_provider_id",
	"provider_medicaid_provider_id",
	"provider_office_city",
}

var (
	ProviderZipColumns  = []string{ColProviderOfficeZip}
	ProviderFipsColumns = []string{ColProviderOfficeFips}
)
