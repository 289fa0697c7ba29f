// Package mask applies the record-level demographic-mask cascade:
// when a medical row carries a sensitive diagnosis code or a rare
// diagnosis/procedure/drug code, its ZIP/FIPS are forced to the
// suppressed value and member_sex is nulled, on top of (not instead
// of) the ordinary geographic/date generalization every row receives.
package mask

import (
	"github.com/txapcd/deid-engine/internal/classify"
	"github.com/txapcd/deid-engine/internal/rarity"
)

// RewriteDiagnosis applies the two orthogonal in-place rewrites a
// diagnosis column receives, independent of whether the row ends up
// demographically masked:
//
//  1. if the raw code is in the rarity index's rare-diagnosis set,
//     replace it with its normalized 3-character prefix (truncation);
//  2. if the code's normalized prefix is in the generalization table,
//     replace it with the generalized label — this runs after (and can
//     override) the truncation.
//
// The rare-code lookup is always performed against the raw,
// untruncated code — truncating first would make an already-truncated
// code miss the rare set it was computed against.
func (m Masker) RewriteDiagnosis(code string) string {
	if code == "" {
		return code
	}
	out := code
	if m.Rarity != nil && m.Rarity.IsRare(rarity.VocabularyDiagnosis, code) {
		out = classify.Normalize(code)
	}
	if label, ok := m.Classifier.Generalize(code); ok {
		out = label
	}
	return out
}

// Reason names why a row was masked, for metrics (internal/shared/metrics
// RecordFlag, called by the pipeline's medical pass).
type Reason string

const (
	ReasonSensitiveDiagnosis Reason = "sensitive_dx"
	ReasonRareDiagnosis      Reason = "rare_dx"
	ReasonRareProcedure      Reason = "rare_cpt"
	ReasonRareDrug           Reason = "rare_ndc"
)

// Decision is the outcome of evaluating one row's diagnosis, procedure,
// and drug codes against the sensitive-code classifier and the rarity
// index.
type Decision struct {
	// Masked is true if any reason fired — the row's demographics must
	// be nulled.
	Masked  bool
	Reasons []Reason
}

// Masker evaluates one row's codes and decides whether it must be
// demographically masked.
type Masker struct {
	Classifier classify.Classifier
	Rarity     *rarity.Index
}

// Evaluate checks diagnosisCodes against the sensitive-code classifier,
// then diagnosisCodes/procedureCodes/drugCode against the rarity index.
// All reasons are collected — a row can be masked for more than one
// reason, and the pipeline records a metric for each of them, not just
// the first.
func (m Masker) Evaluate(diagnosisCodes, procedureCodes []string, drugCode string) Decision {
	var reasons []Reason

	for _, code := range diagnosisCodes {
		if code != "" && m.Classifier.IsSensitive(code) {
			reasons = append(reasons, ReasonSensitiveDiagnosis)
			break
		}
	}

	if m.Rarity != nil {
		if m.Rarity.AnyRare(rarity.VocabularyDiagnosis, diagnosisCodes) {
			reasons = append(reasons, ReasonRareDiagnosis)
		}
		if m.Rarity.AnyRare(rarity.VocabularyProcedure, procedureCodes) {
			reasons = append(reasons, ReasonRareProcedure)
		}
		if m.Rarity.IsRare(rarity.VocabularyDrug, drugCode) {
			reasons = append(reasons, ReasonRareDrug)
		}
	}

	return Decision{Masked: len(reasons) > 0, Reasons: reasons}
}

// ApplyDemographicMask forces zip/fips to their suppressed generalized
// value and returns sexMasked=true to signal member_sex must be set to
// nil, as directed by a Decision with Masked=true. Geographic
// generalization (internal/geo) must already have run; this only
// escalates its output, it never relaxes it.
func ApplyDemographicMask(suppressedZip, suppressedFips string) (zip, fips string, sexMasked bool) {
	return suppressedZip, suppressedFips, true
}
