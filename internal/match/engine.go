// Package match evaluates a trial's rule set against a patient profile.
// Evaluation is a pure function of the rules, the profile snapshot and the
// evaluation time: it performs no I/O and never fails.
package match

import (
	"time"

	"github.com/ppiankov/trialmatch/internal/model"
	"github.com/ppiankov/trialmatch/internal/narrate"
)

// Policy holds the tier aggregation constants
type Policy struct {
	// UnknownThreshold is the UNKNOWN share above which the tier is INSUFFICIENT_DATA
	UnknownThreshold float64

	// CentralFields are inclusion fields whose UNKNOWN verdict alone is insufficient data
	CentralFields []model.Field
}

// DefaultPolicy returns the built-in aggregation policy
func DefaultPolicy() Policy {
	return PolicyFromConfig(model.DefaultConfig().Match)
}

// PolicyFromConfig builds a policy from configuration, ignoring unknown field names
func PolicyFromConfig(cfg model.MatchConfig) Policy {
	p := Policy{UnknownThreshold: cfg.UnknownThreshold}
	for _, name := range cfg.CentralFields {
		if f, err := model.ParseField(name); err == nil {
			p.CentralFields = append(p.CentralFields, f)
		}
	}
	return p
}

// Engine evaluates rule sets. It is safe for concurrent use.
type Engine struct {
	policy Policy
}

// NewEngine creates an engine with the given policy
func NewEngine(policy Policy) *Engine {
	return &Engine{policy: policy}
}

// Policy returns the engine's aggregation policy
func (e *Engine) Policy() Policy {
	return e.policy
}

// Evaluate produces one verdict per rule, in rule order, and the summary.
// Identical inputs give identical results.
func (e *Engine) Evaluate(set model.RuleSet, profile model.PatientProfile, at time.Time) model.MatchResult {
	verdicts := make([]model.MatchVerdict, 0, len(set.Rules))
	for _, rule := range set.Rules {
		v := evaluateRule(rule, profile, at)
		if v.Outcome == model.OutcomeUnknown {
			v.RequiredAction = narrate.Action(v.MissingField, rule)
		}
		verdicts = append(verdicts, v)
	}

	summary := model.MatchSummary{
		TrialID:          set.TrialID,
		PatientID:        profile.ID,
		ParserIdentity:   set.ParserIdentity,
		EvaluatedAt:      at,
		ProfileUpdatedAt: profile.UpdatedAt,
		RulesParsedAt:    set.ParsedAt,
	}
	for _, v := range verdicts {
		switch v.Outcome {
		case model.OutcomePass:
			summary.Pass++
		case model.OutcomeFail:
			summary.Fail++
		default:
			summary.Unknown++
		}
	}
	summary.Tier = e.policy.Tier(verdicts)

	return model.MatchResult{Verdicts: verdicts, Summary: summary}
}
