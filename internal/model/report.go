package model

// Report is the presentation payload for one match: a checklist of verdicts
// with cited evidence and the aggregate tier
type Report struct {
	Subject    string         `json:"subject"`             // e.g., "NCT01234567 x patient-42"
	Summary    MatchSummary   `json:"summary"`             // Counts and tier
	Verdicts   []MatchVerdict `json:"verdicts"`            // One row per rule, in rule order
	Stale      bool           `json:"stale"`               // Profile or rules changed since evaluation
	RecordID   string         `json:"record_id,omitempty"` // Match log id
	Principles Principles     `json:"principles"`          // Principles applied
	Disclaimer string         `json:"disclaimer"`          // Always present
}

// Principles documents which principles were applied
type Principles struct {
	NonNormative  bool `json:"non_normative"` // Informational assessment, never a recommendation
	Transparent   bool `json:"transparent"`   // Every verdict cites its evidence
	Deterministic bool `json:"deterministic"` // Same rules + profile give the same result
}

// DefaultPrinciples returns the standard principles
func DefaultPrinciples() Principles {
	return Principles{
		NonNormative:  true,
		Transparent:   true,
		Deterministic: true,
	}
}

// Disclaimer accompanies every report
const Disclaimer = "This assessment is informational only and is not medical advice. " +
	"Eligibility is decided by the study team."

// NewReport wraps a match result for presentation
func NewReport(result MatchResult) Report {
	return Report{
		Subject:    result.Summary.TrialID + " x " + result.Summary.PatientID,
		Summary:    result.Summary,
		Verdicts:   result.Verdicts,
		Principles: DefaultPrinciples(),
		Disclaimer: Disclaimer,
	}
}
