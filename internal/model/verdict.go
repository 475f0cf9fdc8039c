package model

import "time"

// Outcome is the three-valued result of evaluating one rule
type Outcome string

const (
	OutcomePass    Outcome = "PASS"    // Rule satisfied / does not disqualify
	OutcomeFail    Outcome = "FAIL"    // Requirement unmet or disqualifier present
	OutcomeUnknown Outcome = "UNKNOWN" // Not enough patient data, or not evaluable
)

// Tier is the aggregate eligibility classification for a patient x trial pair
type Tier string

const (
	TierLikelyEligible   Tier = "LIKELY_ELIGIBLE"
	TierPossiblyEligible Tier = "POSSIBLY_ELIGIBLE"
	TierLikelyIneligible Tier = "LIKELY_INELIGIBLE"
	TierInsufficientData Tier = "INSUFFICIENT_DATA"
)

// Missing-field tokens produced by the matching engine. Lab analytes and
// timelines are built with LabToken and TimelineToken.
const (
	MissingAge          = "demographics.age"
	MissingSex          = "demographics.sex"
	MissingConditions   = "conditions"
	MissingHistory      = "history"
	MissingMedications  = "medications"
	MissingProcedures   = "procedures"
	MissingLabs         = "labs"
	MissingManualReview = "manual_review"

	labTokenPrefix      = "labs."
	timelineTokenSuffix = "_timeline"
)

// LabToken names a specific missing analyte
func LabToken(name string) string {
	return labTokenPrefix + name
}

// TimelineToken names a missing date for a section (e.g., "medications_timeline")
func TimelineToken(section string) string {
	return section + timelineTokenSuffix
}

// LabFromToken extracts the analyte from a "labs.<name>" token
func LabFromToken(token string) (string, bool) {
	if len(token) <= len(labTokenPrefix) || token[:len(labTokenPrefix)] != labTokenPrefix {
		return "", false
	}
	return token[len(labTokenPrefix):], true
}

// SectionFromTimeline extracts the section from a "<section>_timeline" token
func SectionFromTimeline(token string) (string, bool) {
	n := len(token) - len(timelineTokenSuffix)
	if n <= 0 || token[n:] != timelineTokenSuffix {
		return "", false
	}
	return token[:n], true
}

// MatchVerdict is the result of evaluating one rule against one profile
type MatchVerdict struct {
	Rule           EligibilityRule `json:"rule"`                      // Originating rule, evidence included
	Outcome        Outcome         `json:"outcome"`                   // PASS, FAIL, UNKNOWN
	MissingField   string          `json:"missing_field,omitempty"`   // Set only for UNKNOWN
	RequiredAction string          `json:"required_action,omitempty"` // Narrated instruction for UNKNOWN
	Diagnostic     string          `json:"diagnostic,omitempty"`      // Malformed rule, unit mismatch, etc.
	Detail         string          `json:"detail,omitempty"`          // Human-readable comparison
}

// MatchSummary aggregates verdicts for one trial x patient pair at one point in time
type MatchSummary struct {
	TrialID          string    `json:"trial_id"`
	PatientID        string    `json:"patient_id"`
	ParserIdentity   string    `json:"parser_identity,omitempty"`
	Pass             int       `json:"pass"`
	Fail             int       `json:"fail"`
	Unknown          int       `json:"unknown"`
	Tier             Tier      `json:"tier"`
	EvaluatedAt      time.Time `json:"evaluated_at"`
	ProfileUpdatedAt time.Time `json:"profile_updated_at"`
	RulesParsedAt    time.Time `json:"rules_parsed_at,omitempty"`
}

// Total returns the number of evaluated rules
func (s MatchSummary) Total() int {
	return s.Pass + s.Fail + s.Unknown
}

// IsStale reports whether the profile or rule set changed after this summary was computed
func (s MatchSummary) IsStale(profileUpdatedAt, rulesParsedAt time.Time) bool {
	return profileUpdatedAt.After(s.ProfileUpdatedAt) || rulesParsedAt.After(s.RulesParsedAt)
}

// MatchResult is the engine output: one verdict per rule plus the summary
type MatchResult struct {
	Verdicts []MatchVerdict `json:"verdicts"`
	Summary  MatchSummary   `json:"summary"`
}

// MatchRecord is a persisted, immutable evaluation
type MatchRecord struct {
	ID        string      `json:"id"`
	Result    MatchResult `json:"result"`
	CreatedAt time.Time   `json:"created_at"`
}
