// Package pseudonym derives the deterministic, irreversible pseudonyms
// that link records across the eligibility, provider, and medical
// relations without carrying a direct identifier.
//
// Pseudonyms are keyed HMACs in three independent namespaces — member,
// provider, and claim — so that a member ID and a claim control number
// that happen to collide as raw strings never collide as pseudonyms.
package pseudonym

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"strings"
)

// maxLen is the emitted pseudonym length: 16 alphanumeric characters.
const maxLen = 16

// KeySet holds the three HMAC keys used to pseudonymize members,
// providers, and claims. Keys never leave this package once loaded; see
// internal/keys for how they're generated, persisted, and loaded.
type KeySet struct {
	MemberKey   []byte
	ProviderKey []byte
	ClaimKey    []byte
}

// derive runs HMAC-SHA256 over input with key, base64url-encodes the
// MAC, strips non-alphanumeric characters, and truncates to maxLen.
func derive(key []byte, input string) string {
	mac := hmac.New(sha256.New, key)
	mac.Write([]byte(input))
	sum := mac.Sum(nil)
	encoded := base64.RawURLEncoding.EncodeToString(sum)
	return alnumTruncate(encoded, maxLen)
}

func alnumTruncate(s string, n int) string {
	var b strings.Builder
	b.Grow(n)
	for _, r := range s {
		if b.Len() >= n {
			break
		}
		switch {
		case r >= '0' && r <= '9', r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z':
			b.WriteRune(r)
		}
	}
	return b.String()
}

// join concatenates composite-key components with the literal "|"
// separator; missing components render as the empty string between
// separators.
func join(parts ...string) string {
	return strings.Join(parts, "|")
}

// Member derives DEID_MEMBER_ID from `member_id | submitter_code`.
func (k KeySet) Member(submitterCode, memberID string) string {
	if memberID == "" {
		return ""
	}
	return derive(k.MemberKey, join(memberID, submitterCode))
}

// Subscriber derives DEID_SUBSCRIBER_ID from
// `subscriber_id | submitter_code`. It shares the member namespace key
// because a subscriber and a member are the same person-space and must
// be linkable across the two roles.
func (k KeySet) Subscriber(submitterCode, subscriberID string) string {
	if subscriberID == "" {
		return ""
	}
	return derive(k.MemberKey, join(subscriberID, submitterCode))
}

// Claim derives DEID_CLAIM_ID from
// `claim_control_number | cross_reference_claims_id | submitter_code`.
// A null claim control number (the primary component) yields no
// pseudonym.
func (k KeySet) Claim(submitterCode, claimControlNumber, crossReferenceClaimsID string) string {
	if claimControlNumber == "" {
		return ""
	}
	return derive(k.ClaimKey, join(claimControlNumber, crossReferenceClaimsID, submitterCode))
}

// Provider derives DEID_PROVIDER_ID for the provider relation. NPI is
// preferred when present; a payor-assigned ID is the fallback for
// providers without an NPI on file.
func (k KeySet) Provider(npi, payorAssignedID string) string {
	raw := npi
	if raw == "" {
		raw = payorAssignedID
	}
	if raw == "" {
		return ""
	}
	return derive(k.ProviderKey, raw)
}

// RoleProvider derives DEID_{ROLE}_PROVIDER_ID for a medical claim's
// rendering/billing/attending/operating provider from the role's NPI
// alone — unlike Provider, there is no payor-assigned-ID fallback.
// It uses the same provider key as Provider
// so a provider's pseudonym is identical whether it's looked up from
// the provider relation or from a claim's role columns.
func (k KeySet) RoleProvider(npi string) string {
	if npi == "" {
		return ""
	}
	return derive(k.ProviderKey, npi)
}
